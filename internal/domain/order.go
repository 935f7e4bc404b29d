package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderID opaque order identifier assigned by the venue.
type OrderID string

// String returns the string representation.
func (id OrderID) String() string {
	return string(id)
}

// Side order side.
type Side string

const (
	// SideBuy buy order.
	SideBuy Side = "buy"
	// SideSell sell order.
	SideSell Side = "sell"
)

// String returns the string representation.
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the Side value is valid.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// OrderEventType kind of order lifecycle event.
type OrderEventType string

const (
	OrderEventSubmitted       OrderEventType = "submitted"
	OrderEventRejected        OrderEventType = "rejected"
	OrderEventCancelRequested OrderEventType = "cancel_requested"
	OrderEventCancelFailed    OrderEventType = "cancel_failed"
	// OrderEventFilled is written only by the paper trading adapter, which sees its own fills.
	OrderEventFilled OrderEventType = "filled"
)

// OrderEvent a single order lifecycle event observed by an adapter.
type OrderEvent struct {
	ID      string          `json:"id"`
	Venue   string          `json:"venue"`
	Pair    string          `json:"pair"`
	Type    OrderEventType  `json:"type"`
	OrderID OrderID         `json:"order_id,omitempty"`
	Side    Side            `json:"side,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
	Price   decimal.Decimal `json:"price"`
	Error   string          `json:"error,omitempty"`
	Time    time.Time       `json:"time"`
}

// String returns a human-readable string representation.
func (e OrderEvent) String() string {
	return fmt.Sprintf("%s %s %s order %s", e.Venue, e.Pair, e.Type, e.OrderID)
}
