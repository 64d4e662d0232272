package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/age-b2b/backoffice/internal/shared"
)

const returnsLocation = "RETURNS"

// Allocator picks the lots a product quantity is taken from or credited back to.
type Allocator struct {
	ledger *Ledger
}

// NewAllocator constructs an Allocator on top of ledger.
func NewAllocator(ledger *Ledger) *Allocator {
	return &Allocator{ledger: ledger}
}

// Deduct consumes qty units of product, earliest expiry first, and records the trace under orderRef.
// Nothing is written when the product's lots cannot cover qty.
func (a *Allocator) Deduct(ctx context.Context, tx TxRepository, orderRef string, productID, qty int64) ([]Allocation, error) {
	if qty <= 0 {
		return nil, shared.Errorf(shared.ErrInvalidInput, "deduct quantity must be positive")
	}
	lots, err := tx.LockProductLots(ctx, productID)
	if err != nil {
		return nil, err
	}
	sortFEFO(lots)

	var available int64
	for _, lot := range lots {
		available += lot.Quantity
	}
	if available < qty {
		return nil, shared.Errorf(shared.ErrInsufficientStock, "product %d: requested %d, available %d", productID, qty, available)
	}

	note := "order " + orderRef
	remaining := qty
	allocations := make([]Allocation, 0, 2)
	for _, lot := range lots {
		if remaining == 0 {
			break
		}
		if lot.Quantity == 0 {
			continue
		}
		take := min(lot.Quantity, remaining)
		if _, _, err := a.ledger.adjustLocked(ctx, tx, lot, -take, ReasonOutbound, note); err != nil {
			return nil, err
		}
		allocations = append(allocations, Allocation{
			OrderRef:  orderRef,
			ProductID: productID,
			LotID:     lot.ID,
			Quantity:  take,
			CreatedAt: a.ledger.now().UTC(),
		})
		remaining -= take
	}
	if err := tx.RecordAllocations(ctx, allocations); err != nil {
		return nil, fmt.Errorf("record allocations: %w", err)
	}
	return allocations, nil
}

// Restore credits qty units of product back. Lots recorded for orderRef are credited first,
// newest deduction first; any remainder goes to the non-expired lot with the nearest expiry,
// or to a new lot when the product has none.
func (a *Allocator) Restore(ctx context.Context, tx TxRepository, orderRef string, productID, qty int64) ([]Allocation, error) {
	if qty <= 0 {
		return nil, shared.Errorf(shared.ErrInvalidInput, "restore quantity must be positive")
	}
	// Lock in id order before touching the trace so concurrent deductions cannot deadlock.
	lots, err := tx.LockProductLots(ctx, productID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]Lot, len(lots))
	for _, lot := range lots {
		byID[lot.ID] = lot
	}

	traces, err := tx.TakeAllocations(ctx, orderRef, productID)
	if err != nil {
		return nil, fmt.Errorf("load allocations: %w", err)
	}

	note := "order " + orderRef
	remaining := qty
	var credited []Allocation
	var leftover []Allocation
	credit := func(lot Lot, amount int64) error {
		updated, _, err := a.ledger.adjustLocked(ctx, tx, lot, amount, ReasonReturn, note)
		if err != nil {
			return err
		}
		byID[lot.ID] = updated
		credited = append(credited, Allocation{OrderRef: orderRef, ProductID: productID, LotID: lot.ID, Quantity: amount, CreatedAt: updated.UpdatedAt})
		return nil
	}

	for _, trace := range traces {
		lot, ok := byID[trace.LotID]
		if !ok {
			continue
		}
		if remaining == 0 {
			leftover = append(leftover, trace)
			continue
		}
		take := min(trace.Quantity, remaining)
		if err := credit(lot, take); err != nil {
			return nil, err
		}
		remaining -= take
		if take < trace.Quantity {
			trace.Quantity -= take
			leftover = append(leftover, trace)
		}
	}
	if len(leftover) > 0 {
		if err := tx.RecordAllocations(ctx, leftover); err != nil {
			return nil, fmt.Errorf("record allocations: %w", err)
		}
	}
	if remaining == 0 {
		return credited, nil
	}

	target, ok := nearestUpcoming(lots, a.ledger.Today())
	if ok {
		target = byID[target.ID]
	} else {
		today := a.ledger.Today()
		target, err = a.ledger.createEmptyLot(ctx, tx, productID, today, today, returnsLocation)
		if err != nil {
			return nil, err
		}
	}
	if err := credit(target, remaining); err != nil {
		return nil, err
	}
	return credited, nil
}

// sortFEFO orders lots by expiry ascending, ties broken by id.
func sortFEFO(lots []Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		if !lots[i].ExpiryDate.Equal(lots[j].ExpiryDate) {
			return lots[i].ExpiryDate.Before(lots[j].ExpiryDate)
		}
		return lots[i].ID < lots[j].ID
	})
}

func nearestUpcoming(lots []Lot, today time.Time) (Lot, bool) {
	var best Lot
	found := false
	for _, lot := range lots {
		if DaysUntil(today, lot.ExpiryDate) < 0 {
			continue
		}
		if !found || lot.ExpiryDate.Before(best.ExpiryDate) || (lot.ExpiryDate.Equal(best.ExpiryDate) && lot.ID < best.ID) {
			best = lot
			found = true
		}
	}
	return best, found
}

func sortAllocationsNewestFirst(allocations []Allocation) {
	sort.SliceStable(allocations, func(i, j int) bool {
		if !allocations[i].CreatedAt.Equal(allocations[j].CreatedAt) {
			return allocations[i].CreatedAt.After(allocations[j].CreatedAt)
		}
		return allocations[i].ID > allocations[j].ID
	})
}
