package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scope selects whose orders a dashboard counts. Zero ClientID means every client.
type Scope struct {
	ClientID int64
}

// GradeTotal aggregates lots sharing a quality grade.
type GradeTotal struct {
	Grade    string `json:"quality_grade"`
	Lots     int    `json:"lots"`
	Quantity int64  `json:"quantity"`
}

// Dashboard is a read-only snapshot of order and stock figures.
type Dashboard struct {
	ClientID      int64            `json:"client_id,omitempty"`
	OrderCounts   map[string]int64 `json:"order_counts"`
	Grades        []GradeTotal     `json:"grades,omitempty"`
	TotalQuantity int64            `json:"total_quantity"`
	AssetValue    decimal.Decimal  `json:"asset_value"`
	GeneratedAt   time.Time        `json:"generated_at"`
}

// SettlementFilter narrows the delivered orders fed to settlement.
type SettlementFilter struct {
	From     time.Time
	To       time.Time
	ClientID int64
}

// SettlementOrder is a delivered order as seen by the settlement batch.
type SettlementOrder struct {
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	ClientID    int64           `json:"client_id"`
	CreatedAt   time.Time       `json:"created_at"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// ClientSettlement sums delivered orders per client.
type ClientSettlement struct {
	ClientID int64           `json:"client_id"`
	Orders   int             `json:"orders"`
	Total    decimal.Decimal `json:"total"`
}

// SettlementFeed is the delivered-order extract for a date range.
type SettlementFeed struct {
	From    time.Time          `json:"from"`
	To      time.Time          `json:"to"`
	Orders  []SettlementOrder  `json:"orders"`
	Clients []ClientSettlement `json:"clients"`
	Total   decimal.Decimal    `json:"total"`
}
