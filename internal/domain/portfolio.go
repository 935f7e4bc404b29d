package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PortfolioEntry available balance of one currency in the trading account.
type PortfolioEntry struct {
	// Name uppercase currency code.
	Name string
	// Amount available quantity, funds locked in open orders excluded.
	Amount decimal.Decimal
}

// String returns a human-readable string representation.
func (e PortfolioEntry) String() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Amount.String())
}

// Ticker best bid and ask of a pair.
type Ticker struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// Spread returns ask minus bid.
func (t Ticker) Spread() decimal.Decimal {
	return t.Ask.Sub(t.Bid)
}
