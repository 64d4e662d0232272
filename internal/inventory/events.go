package inventory

import (
	"context"
	"time"
)

// InboundRegisteredEvent is published after a new lot is committed.
type InboundRegisteredEvent struct {
	LotID      int64     `json:"lot_id"`
	LotNumber  string    `json:"lot_number"`
	ProductID  int64     `json:"product_id"`
	Quantity   int64     `json:"quantity"`
	ExpiryDate time.Time `json:"expiry_date"`
	Grade      Grade     `json:"quality_grade"`
	At         time.Time `json:"registered_at"`
}

// Notifier receives committed inventory events. Delivery is fire-and-forget.
type Notifier interface {
	InboundRegistered(ctx context.Context, evt InboundRegisteredEvent)
}
