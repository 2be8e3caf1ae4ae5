// Package storage provides SQLite-backed persistence for the quote log and delivered alerts.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/oddsmonitor/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db        *sql.DB
	maxAlerts int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/oddsmonitor/data.db.
func New(maxAlerts int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "oddsmonitor", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxAlerts: maxAlerts}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS quotes (
			observed_at INTEGER NOT NULL,
			match_id    TEXT NOT NULL,
			side        TEXT NOT NULL,
			odds        REAL NOT NULL,
			source_id   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quotes_observed_at ON quotes(observed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_quotes_match_side ON quotes(match_id, side, observed_at)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id       TEXT PRIMARY KEY,
			kind     TEXT NOT NULL,
			match_id TEXT NOT NULL,
			message  TEXT NOT NULL,
			severity TEXT NOT NULL,
			fired_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_fired_at ON alerts(fired_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AppendQuotes writes a batch of quotes in one transaction. Invalid quotes are rejected
// before anything is written.
func (s *Storage) AppendQuotes(quotes []models.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	for i := range quotes {
		if err := quotes[i].Validate(); err != nil {
			return fmt.Errorf("quote %d: %w", i, err)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`
		INSERT INTO quotes (observed_at, match_id, side, odds, source_id)
		VALUES (?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, q := range quotes {
		if _, err := stmt.Exec(q.ObservedAt.UnixNano(), q.MatchID, string(q.Side), q.Odds, q.SourceID); err != nil {
			return fmt.Errorf("failed to insert quote: %w", err)
		}
	}
	return tx.Commit()
}

// LoadQuotesSince returns quotes observed at or after since, oldest first.
func (s *Storage) LoadQuotesSince(since time.Time) ([]models.Quote, error) {
	rows, err := s.db.Query(`
		SELECT observed_at, match_id, side, odds, source_id
		FROM quotes WHERE observed_at >= ?
		ORDER BY observed_at ASC, rowid ASC`, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	quotes := []models.Quote{}
	for rows.Next() {
		var q models.Quote
		var observedAtNano int64
		var side string
		if err := rows.Scan(&observedAtNano, &q.MatchID, &side, &q.Odds, &q.SourceID); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		q.Side = models.Side(side)
		q.ObservedAt = time.Unix(0, observedAtNano)
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// PurgeQuotesBefore deletes quotes observed before cutoff and returns how many were removed.
func (s *Storage) PurgeQuotesBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM quotes WHERE observed_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge quotes: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountQuotes returns the number of stored quotes.
func (s *Storage) CountQuotes() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM quotes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count quotes: %w", err)
	}
	return n, nil
}

// AddAlert records a delivered alert and keeps at most maxAlerts newest rows.
func (s *Storage) AddAlert(alert *models.Alert) error {
	if alert.ID == "" {
		return fmt.Errorf("alert ID must not be empty")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO alerts (id, kind, match_id, message, severity, fired_at)
		VALUES (?,?,?,?,?,?)`,
		alert.ID, alert.Kind, alert.MatchID, alert.Message, string(alert.Severity),
		alert.FiredAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	if s.maxAlerts > 0 {
		if _, err = tx.Exec(`
			DELETE FROM alerts WHERE id NOT IN (
				SELECT id FROM alerts ORDER BY fired_at DESC LIMIT ?
			)`, s.maxAlerts); err != nil {
			return fmt.Errorf("failed to enforce alert cap: %w", err)
		}
	}

	return tx.Commit()
}

// GetRecentAlerts returns up to k alerts, newest first.
func (s *Storage) GetRecentAlerts(k int) ([]models.Alert, error) {
	rows, err := s.db.Query(`SELECT `+alertCols+` FROM alerts ORDER BY fired_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// PurgeAlertsBefore deletes alerts fired before cutoff.
func (s *Storage) PurgeAlertsBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM alerts WHERE fired_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge alerts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

const alertCols = `id, kind, match_id, message, severity, fired_at`

func scanAlert(scan func(...any) error) (*models.Alert, error) {
	var a models.Alert
	var severity string
	var firedAtNano int64
	if err := scan(&a.ID, &a.Kind, &a.MatchID, &a.Message, &severity, &firedAtNano); err != nil {
		return nil, err
	}
	a.Severity = models.Severity(severity)
	a.FiredAt = time.Unix(0, firedAtNano)
	return &a, nil
}
