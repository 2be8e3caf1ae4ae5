// Package telegram delivers alerts and operational notices through the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/oddsmonitor/internal/alert"
	"github.com/rewired-gh/oddsmonitor/internal/logger"
	"github.com/rewired-gh/oddsmonitor/internal/models"
	"golang.org/x/time/rate"
)

// StatusProvider reports the latest analysis of every tracked match side.
type StatusProvider interface {
	Latest() []alert.Observation
}

// AlertHistory returns recently delivered alerts, newest first.
type AlertHistory interface {
	GetRecentAlerts(k int) ([]models.Alert, error)
}

// Options tune delivery and the command handlers.
type Options struct {
	MaxRetries     int
	RetryDelayBase time.Duration
	MessagesPerMin int // send pacing, 0 for the default of 20
	Status         StatusProvider
	History        AlertHistory
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client sends alerts and notices to a single chat.
type Client struct {
	api     sender
	bot     *tgbotapi.BotAPI // nil when api is not a live bot
	chatID  int64
	opts    Options
	limiter *rate.Limiter
}

// NewClient creates a Telegram client.
func NewClient(botToken, chatID string, opts Options) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	c := newClient(bot, chatIDInt, opts)
	c.bot = bot
	return c, nil
}

func newClient(api sender, chatID int64, opts Options) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelayBase <= 0 {
		opts.RetryDelayBase = time.Second
	}
	if opts.MessagesPerMin <= 0 {
		opts.MessagesPerMin = 20
	}
	return &Client{
		api:     api,
		chatID:  chatID,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.MessagesPerMin)), 1),
	}
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	if c.bot == nil {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message.Chat.ID, update.Message.Command())
				}
			}
		}
	}()
}

func (c *Client) handleCommand(chatID int64, command string) {
	var reply tgbotapi.MessageConfig
	switch command {
	case "ping":
		reply = tgbotapi.NewMessage(chatID, "Pong")
	case "status":
		reply = tgbotapi.NewMessage(chatID, c.formatStatus())
		reply.ParseMode = tgbotapi.ModeMarkdownV2
	case "alerts":
		reply = tgbotapi.NewMessage(chatID, c.formatRecentAlerts(5))
		reply.ParseMode = tgbotapi.ModeMarkdownV2
	default:
		return
	}
	if _, err := c.api.Send(reply); err != nil {
		logger.Warn("Failed to answer /%s: %v", command, err)
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with rate pacing and linear-backoff retry.
func (c *Client) sendMarkdownV2(ctx context.Context, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.opts.MaxRetries; i++ {
		_, err := c.api.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == c.opts.MaxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opts.RetryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.opts.MaxRetries, lastErr)
}

// Deliver implements alert.Sink.
func (c *Client) Deliver(ctx context.Context, a models.Alert) error {
	if err := c.sendMarkdownV2(ctx, formatAlert(a)); err != nil {
		return fmt.Errorf("%w: telegram: %v", models.ErrDispatchFailure, err)
	}
	return nil
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Collection error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(context.Background(), text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Collection recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(context.Background(), text)
}

var severityEmoji = map[models.Severity]string{
	models.SeverityInfo:     "ℹ️",
	models.SeverityWarning:  "⚠️",
	models.SeverityCritical: "🚨",
}

var kindTitle = map[string]string{
	models.KindValue:        "Value bet",
	models.KindVolatility:   "Volatile odds",
	models.KindOddsMovement: "Odds movement",
	models.KindArbitrage:    "Arbitrage",
}

func formatAlert(a models.Alert) string {
	emoji, ok := severityEmoji[a.Severity]
	if !ok {
		emoji = "🔔"
	}
	title, ok := kindTitle[a.Kind]
	if !ok {
		title = a.Kind
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* \\| %s\n\n", emoji, escapeMarkdownV2(title), escapeMarkdownV2(a.MatchID))
	b.WriteString(escapeMarkdownV2(a.Message))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "📅 %s", escapeMarkdownV2(a.FiredAt.UTC().Format("2006-01-02 15:04:05 UTC")))
	return b.String()
}

func (c *Client) formatStatus() string {
	if c.opts.Status == nil {
		return "Status is not available"
	}
	latest := c.opts.Status.Latest()
	if len(latest) == 0 {
		return "No matches tracked yet"
	}

	var b strings.Builder
	b.WriteString("📊 *Tracked matches*\n\n")
	for _, o := range latest {
		line := fmt.Sprintf("%s (%s) %.2f @ %s | EV %.1f%% | %s | %.0f%% %s",
			o.MatchID, o.Side, o.Odds, o.SourceID, o.Signal.EVPercentage,
			o.Signal.TrendDirection, o.Report.OverallScore*100, o.Report.Recommendation)
		b.WriteString(escapeMarkdownV2(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (c *Client) formatRecentAlerts(k int) string {
	if c.opts.History == nil {
		return "Alert history is not available"
	}
	alerts, err := c.opts.History.GetRecentAlerts(k)
	if err != nil {
		return escapeMarkdownV2(fmt.Sprintf("Failed to load alerts: %v", err))
	}
	if len(alerts) == 0 {
		return "No alerts yet"
	}

	var b strings.Builder
	b.WriteString("🗂 *Recent alerts*\n\n")
	for i, a := range alerts {
		line := fmt.Sprintf("%d. [%s] %s %s", i+1, a.FiredAt.UTC().Format("15:04"), a.Kind, a.Message)
		b.WriteString(escapeMarkdownV2(line))
		b.WriteString("\n")
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
