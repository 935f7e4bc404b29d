package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Trade public trade of a pair.
type Trade struct {
	// Date time the trade was executed.
	Date time.Time
	// Price execution price.
	Price decimal.Decimal
	// Amount quantity of the base currency.
	Amount decimal.Decimal
}

// String returns a human-readable string representation.
func (t Trade) String() string {
	return fmt.Sprintf("%s price: %s amount: %s", t.Date.UTC().Format(time.RFC3339), t.Price.String(), t.Amount.String())
}

// ReverseTrades reverses the slice in place and returns it.
func ReverseTrades(trades []Trade) []Trade {
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return trades
}

// TradesSince keeps trades executed at or after since. A nil since keeps everything.
func TradesSince(trades []Trade, since *time.Time) []Trade {
	if since == nil {
		return trades
	}
	filtered := trades[:0]
	for _, tr := range trades {
		if !tr.Date.Before(*since) {
			filtered = append(filtered, tr)
		}
	}
	return filtered
}
