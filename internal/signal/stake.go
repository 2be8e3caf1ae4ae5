package signal

import (
	"github.com/shopspring/decimal"
)

// StakeAmount converts a Kelly fraction into a currency amount of bankroll, rounded down to cents.
func StakeAmount(bankroll decimal.Decimal, fraction float64) decimal.Decimal {
	if bankroll.Sign() <= 0 || fraction <= 0 {
		return decimal.Zero
	}
	return bankroll.Mul(decimal.NewFromFloat(fraction)).RoundDown(2)
}
