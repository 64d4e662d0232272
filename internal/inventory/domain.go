package inventory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/age-b2b/backoffice/internal/shared"
)

// Grade is the derived quality grade of a lot.
type Grade string

const (
	GradeNormal   Grade = "NORMAL"
	GradeManaged  Grade = "MANAGED"
	GradeCaution  Grade = "CAUTION"
	GradeDisposal Grade = "DISPOSAL"
)

// Valid reports whether g is a known grade.
func (g Grade) Valid() bool {
	switch g {
	case GradeNormal, GradeManaged, GradeCaution, GradeDisposal:
		return true
	}
	return false
}

// Reason classifies a quantity change in the adjustment log.
type Reason string

const (
	ReasonInbound          Reason = "INBOUND"
	ReasonOutbound         Reason = "OUTBOUND"
	ReasonLost             Reason = "LOST"
	ReasonDamaged          Reason = "DAMAGED"
	ReasonExpired          Reason = "EXPIRED"
	ReasonCountMismatch    Reason = "COUNT_MISMATCH"
	ReasonReturn           Reason = "RETURN"
	ReasonManualAdjustment Reason = "MANUAL_ADJUSTMENT"
	ReasonOther            Reason = "ETC"
)

// Valid reports whether r is a known reason code.
func (r Reason) Valid() bool {
	switch r {
	case ReasonInbound, ReasonOutbound, ReasonLost, ReasonDamaged, ReasonExpired,
		ReasonCountMismatch, ReasonReturn, ReasonManualAdjustment, ReasonOther:
		return true
	}
	return false
}

// Lot is a dated batch of a single product.
type Lot struct {
	ID          int64     `json:"id"`
	LotNumber   string    `json:"lot_number"`
	ProductID   int64     `json:"product_id"`
	Quantity    int64     `json:"quantity"`
	ExpiryDate  time.Time `json:"expiry_date"`
	InboundDate time.Time `json:"inbound_date"`
	Grade       Grade     `json:"quality_grade"`
	Location    string    `json:"location"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AdjustmentLog is an immutable ledger entry for a lot.
type AdjustmentLog struct {
	ID       int64     `json:"id"`
	LotID    int64     `json:"lot_id"`
	Change   int64     `json:"change_quantity"`
	Snapshot int64     `json:"snapshot_quantity"`
	Reason   Reason    `json:"reason"`
	Note     string    `json:"note"`
	At       time.Time `json:"created_at"`
}

// Allocation records units of a lot consumed on behalf of an order.
type Allocation struct {
	ID        int64     `json:"id"`
	OrderRef  string    `json:"order_ref"`
	ProductID int64     `json:"product_id"`
	LotID     int64     `json:"lot_id"`
	Quantity  int64     `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// InboundInput registers a newly received lot.
type InboundInput struct {
	ProductID   int64
	Quantity    int64
	ExpiryDate  time.Time
	InboundDate time.Time
	Location    string
	Note        string
	Actor       shared.Principal
}

// AdjustInput changes a lot's quantity through the ledger.
type AdjustInput struct {
	LotID  int64
	Change int64
	Reason Reason
	Note   string
	Actor  shared.Principal
}

// UpdateLotInput edits a received lot. Nil fields are left unchanged.
type UpdateLotInput struct {
	LotID      int64
	ExpiryDate *time.Time
	Location   *string
	Quantity   *int64
	Note       string
	Actor      shared.Principal
}

// LotFilter narrows lot listings. Keyword matches the lot number or the product code or name.
type LotFilter struct {
	ProductID int64
	Grade     Grade
	Keyword   string
	Page      int
	PerPage   int
}

// LotView is a lot enriched for display.
type LotView struct {
	Lot
	ProductCode   string          `json:"product_code"`
	ProductName   string          `json:"product_name"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	AssetValue    decimal.Decimal `json:"asset_value"`
	RemainingDays int             `json:"remaining_days"`
}

// Reconciliation compares a lot's quantity with the sum of its ledger.
type Reconciliation struct {
	LotID     int64 `json:"lot_id"`
	Quantity  int64 `json:"quantity"`
	LedgerSum int64 `json:"ledger_sum"`
	Entries   int   `json:"entries"`
	Balanced  bool  `json:"balanced"`
}

// RegradeResult summarises a grade refresh run.
type RegradeResult struct {
	Scanned int `json:"scanned"`
	Changed int `json:"changed"`
}
