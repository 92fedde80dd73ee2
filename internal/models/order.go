package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderType string

const (
	OrderTypeBuy  OrderType = "buy"
	OrderTypeSell OrderType = "sell"
)

// Order is one row of the orders table. An order is open while ClosedAt is
// nil. TradeID is set only when the order was closed by a settlement, so a
// canceled order keeps TradeID nil. On the wire closed_at stays as an
// explicit null while trade_id/user/trade are omitted when absent.
type Order struct {
	ID        int64      `json:"id"`
	Type      OrderType  `json:"type"`
	UserID    uuid.UUID  `json:"user_id"`
	Amount    int64      `json:"amount"`
	Price     int64      `json:"price"`
	ClosedAt  *time.Time `json:"closed_at"`
	TradeID   *int64     `json:"trade_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`

	User  *User  `json:"user,omitempty"`
	Trade *Trade `json:"trade,omitempty"`
}

func (o *Order) IsOpen() bool {
	return o.ClosedAt == nil
}

// Opposite returns the other side of the book.
func (t OrderType) Opposite() OrderType {
	if t == OrderTypeBuy {
		return OrderTypeSell
	}
	return OrderTypeBuy
}
