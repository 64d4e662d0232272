package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StatusChangedEvent is published after an order transition commits.
type StatusChangedEvent struct {
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	ClientID    int64           `json:"client_id"`
	Event       string          `json:"event"`
	From        Status          `json:"from,omitempty"`
	To          Status          `json:"to"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	At          time.Time       `json:"at"`
}

// Notifier receives committed order events. Delivery is fire-and-forget.
type Notifier interface {
	OrderStatusChanged(ctx context.Context, evt StatusChangedEvent)
}
