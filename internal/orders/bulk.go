package orders

import (
	"context"
	"fmt"

	"github.com/age-b2b/backoffice/internal/shared"
)

// BulkAction names an operation that can be applied to many orders at once.
type BulkAction string

const (
	BulkConfirmPayment BulkAction = "confirm_payment"
	BulkMarkDelivered  BulkAction = "mark_delivered"
	BulkApproveCancel  BulkAction = "approve_cancel"
	BulkApproveReturn  BulkAction = "approve_return"
	BulkClientCancel   BulkAction = "client_cancel"
	BulkRequestCancel  BulkAction = "request_cancel"
	BulkRequestReturn  BulkAction = "request_return"
	BulkDeleteShipment BulkAction = "delete_shipment"
	// BulkCancel picks the client cancel path from each order's status:
	// PENDING orders are cancelled outright, PREPARING orders get a cancel request.
	BulkCancel BulkAction = "cancel"
)

// BulkRequest applies Action to OrderIDs in the given order.
type BulkRequest struct {
	Action   BulkAction `json:"action" validate:"required,oneof=confirm_payment mark_delivered approve_cancel approve_return client_cancel request_cancel request_return delete_shipment cancel"`
	OrderIDs []int64    `json:"order_ids" validate:"required,min=1,max=200,dive,gt=0"`
	Reason   string     `json:"reason" validate:"max=100"`
	Detail   string     `json:"detail" validate:"max=1000"`
}

// BulkResult lists the orders that were transitioned.
type BulkResult struct {
	Action    BulkAction `json:"action"`
	Completed []int64    `json:"completed"`
}

// BulkError reports the first failure of a bulk run. Orders listed in Completed stay committed.
type BulkError struct {
	Action    BulkAction
	Completed []int64
	FailedID  int64
	Remaining []int64
	Err       error
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("bulk %s stopped at order %d after %d completed: %v", e.Action, e.FailedID, len(e.Completed), e.Err)
}

func (e *BulkError) Unwrap() error { return e.Err }

// Bulk applies one action per order, each in its own transaction, and stops at the first failure.
func (s *Service) Bulk(ctx context.Context, actor shared.Principal, req BulkRequest) (BulkResult, error) {
	if len(req.OrderIDs) == 0 {
		return BulkResult{}, shared.Errorf(shared.ErrInvalidInput, "order ids required")
	}
	apply, err := s.bulkOperation(req)
	if err != nil {
		return BulkResult{}, err
	}
	result := BulkResult{Action: req.Action, Completed: make([]int64, 0, len(req.OrderIDs))}
	for i, id := range req.OrderIDs {
		if err := ctx.Err(); err != nil {
			return result, &BulkError{Action: req.Action, Completed: result.Completed, FailedID: id, Remaining: req.OrderIDs[i+1:], Err: err}
		}
		if _, err := apply(ctx, actor, id); err != nil {
			return result, &BulkError{Action: req.Action, Completed: result.Completed, FailedID: id, Remaining: req.OrderIDs[i+1:], Err: err}
		}
		result.Completed = append(result.Completed, id)
	}
	return result, nil
}

type bulkFunc func(ctx context.Context, actor shared.Principal, orderID int64) (Order, error)

func (s *Service) bulkOperation(req BulkRequest) (bulkFunc, error) {
	in := ReasonInput{Reason: req.Reason, Detail: req.Detail}
	withReason := func(fn func(context.Context, shared.Principal, int64, ReasonInput) (Order, error)) bulkFunc {
		return func(ctx context.Context, actor shared.Principal, orderID int64) (Order, error) {
			return fn(ctx, actor, orderID, in)
		}
	}
	switch req.Action {
	case BulkConfirmPayment:
		return s.ConfirmPayment, nil
	case BulkMarkDelivered:
		return s.MarkDelivered, nil
	case BulkApproveCancel:
		return s.ApproveCancel, nil
	case BulkApproveReturn:
		return s.ApproveReturn, nil
	case BulkClientCancel:
		return withReason(s.CancelByClient), nil
	case BulkRequestCancel:
		return withReason(s.RequestCancel), nil
	case BulkRequestReturn:
		return withReason(s.RequestReturn), nil
	case BulkDeleteShipment:
		return s.DeleteShipment, nil
	case BulkCancel:
		return withReason(s.cancelByStatus), nil
	default:
		return nil, shared.Errorf(shared.ErrInvalidInput, "unsupported bulk action %q", req.Action)
	}
}

func (s *Service) cancelByStatus(ctx context.Context, actor shared.Principal, orderID int64, in ReasonInput) (Order, error) {
	order, err := s.GetOrder(ctx, actor, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status == StatusPreparing {
		return s.RequestCancel(ctx, actor, orderID, in)
	}
	return s.CancelByClient(ctx, actor, orderID, in)
}
