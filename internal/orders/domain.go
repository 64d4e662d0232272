package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/age-b2b/backoffice/internal/shared"
)

// ============================================================================
// ORDER STATUS
// ============================================================================

// Status represents the lifecycle of a client order.
type Status string

const (
	StatusPending         Status = "PENDING"          // Placed, awaiting payment
	StatusPreparing       Status = "PREPARING"        // Paid, being picked
	StatusShipped         Status = "SHIPPED"          // Shipment created, stock deducted
	StatusDelivered       Status = "DELIVERED"        // Received by client
	StatusCancelRequested Status = "CANCEL_REQUESTED" // Client asked to cancel a paid order
	StatusCancelled       Status = "CANCELLED"
	StatusReturnRequested Status = "RETURN_REQUESTED"
	StatusReturned        Status = "RETURNED" // Return approved, stock restored
	StatusReturnRejected  Status = "RETURN_REJECTED"
	StatusCancelRejected  Status = "CANCEL_REJECTED"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusShipped, StatusDelivered, StatusCancelRequested,
		StatusCancelled, StatusReturnRequested, StatusReturned, StatusReturnRejected, StatusCancelRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the order lifecycle has ended.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusReturned, StatusReturnRejected, StatusCancelRejected, StatusDelivered:
		return true
	default:
		return false
	}
}

// AllStatuses lists every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusPending, StatusPreparing, StatusShipped, StatusDelivered, StatusCancelRequested,
		StatusCancelled, StatusReturnRequested, StatusReturned, StatusReturnRejected, StatusCancelRejected,
	}
}

// ============================================================================
// ORDER ENTITY
// ============================================================================

// DeliveryInfo is the destination snapshot copied at order time.
type DeliveryInfo struct {
	ReceiverName  string `json:"receiver_name" validate:"required,max=100"`
	ReceiverPhone string `json:"receiver_phone" validate:"required,max=30"`
	ZipCode       string `json:"zip_code" validate:"max=10"`
	Address       string `json:"address" validate:"required,max=255"`
	DetailAddress string `json:"detail_address" validate:"max=255"`
	Memo          string `json:"memo" validate:"max=500"`
}

// LineItem is an ordered product with its price frozen at order time.
type LineItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductCode string          `json:"product_code"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Total returns quantity x frozen unit price.
func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(li.Quantity))
}

// Order is a client's purchase aggregate.
type Order struct {
	ID           int64           `json:"id"`
	OrderNumber  string          `json:"order_number"`
	ClientID     int64           `json:"client_id"`
	Status       Status          `json:"status"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Delivery     DeliveryInfo    `json:"delivery"`
	Items        []LineItem      `json:"items"`
	CancelReason string          `json:"cancel_reason,omitempty"`
	CancelDetail string          `json:"cancel_detail,omitempty"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
	ReturnReason string          `json:"return_reason,omitempty"`
	ReturnDetail string          `json:"return_detail,omitempty"`
	ReturnedAt   *time.Time      `json:"returned_at,omitempty"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
	DeliveredAt  *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Shipment     *Shipment       `json:"shipment,omitempty"`
}

// ItemsTotal sums the line totals.
func (o Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Total())
	}
	return total
}

// ProductIDs returns the distinct products on the order.
func (o Order) ProductIDs() []int64 {
	ids := make([]int64, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// Shipment is the 1:1 dispatch record of a shipped order.
type Shipment struct {
	ID             int64     `json:"id"`
	OrderID        int64     `json:"order_id"`
	ShipmentNumber string    `json:"shipment_number"`
	Carrier        string    `json:"carrier"`
	TrackingNumber string    `json:"tracking_number"`
	ShippedAt      time.Time `json:"shipped_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// ShipmentView is a shipment listed with its order context.
type ShipmentView struct {
	Shipment
	OrderNumber   string `json:"order_number"`
	ClientID      int64  `json:"client_id"`
	ItemCount     int    `json:"item_count"`
	TotalQuantity int64  `json:"total_quantity"`
}

// ============================================================================
// INPUTS
// ============================================================================

// ItemInput is a requested product and quantity.
type ItemInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

// PlaceOrderInput describes a new order.
type PlaceOrderInput struct {
	Client   shared.Principal
	Items    []ItemInput
	Delivery *DeliveryInfo
}

// ReasonInput carries a client's cancel or return reason.
type ReasonInput struct {
	Reason string `json:"reason" validate:"required,max=100"`
	Detail string `json:"detail" validate:"max=1000"`
}

// ShipmentInput carries dispatch details entered by staff.
type ShipmentInput struct {
	Carrier        string    `json:"carrier" validate:"required,max=50"`
	TrackingNumber string    `json:"tracking_number" validate:"required,max=100"`
	ShippedAt      time.Time `json:"shipped_at"`
}

// ListFilter narrows order listings.
type ListFilter struct {
	ClientID int64
	Status   Status
	From     time.Time
	To       time.Time
	Page     int
	PerPage  int
}

// ShipmentFilter narrows shipment listings.
type ShipmentFilter struct {
	Keyword string
	Page    int
	PerPage int
}
