package inventory

import (
	"context"
	"fmt"

	"github.com/age-b2b/backoffice/internal/shared"
)

// BulkDeleteRequest lists lots to purge in the given order.
type BulkDeleteRequest struct {
	LotIDs []int64 `json:"lot_ids" validate:"required,min=1,max=200,dive,gt=0"`
}

// BulkDeleteResult lists the lots that were purged.
type BulkDeleteResult struct {
	Deleted []int64 `json:"deleted"`
}

// BulkError reports the first failure of a bulk lot run. Lots listed in Completed stay deleted.
type BulkError struct {
	Completed []int64
	FailedID  int64
	Remaining []int64
	Err       error
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("bulk lot delete stopped at lot %d after %d completed: %v", e.FailedID, len(e.Completed), e.Err)
}

func (e *BulkError) Unwrap() error { return e.Err }

// DeleteLots purges each lot in its own transaction and stops at the first failure.
func (s *Service) DeleteLots(ctx context.Context, actor shared.Principal, lotIDs []int64) (BulkDeleteResult, error) {
	if err := requireStaff(actor); err != nil {
		return BulkDeleteResult{}, err
	}
	if len(lotIDs) == 0 {
		return BulkDeleteResult{}, shared.Errorf(shared.ErrInvalidInput, "lot ids required")
	}
	result := BulkDeleteResult{Deleted: make([]int64, 0, len(lotIDs))}
	for i, id := range lotIDs {
		err := ctx.Err()
		if err == nil {
			err = s.DeleteLot(ctx, id, actor)
		}
		if err != nil {
			return result, &BulkError{Completed: result.Deleted, FailedID: id, Remaining: lotIDs[i+1:], Err: err}
		}
		result.Deleted = append(result.Deleted, id)
	}
	return result, nil
}
