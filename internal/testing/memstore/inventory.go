package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/age-b2b/backoffice/internal/inventory"
	"github.com/age-b2b/backoffice/internal/shared"
)

// InventoryRepo implements inventory.RepositoryPort.
type InventoryRepo struct {
	s *Store
}

// Inventory returns the lot repository view of the store.
func (s *Store) Inventory() *InventoryRepo {
	return &InventoryRepo{s: s}
}

func (r *InventoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.s.withTx(ctx, func(d *data) error {
		return fn(ctx, &stockTx{d: d})
	})
}

func (r *InventoryRepo) GetLot(_ context.Context, id int64) (inventory.Lot, error) {
	var (
		lot inventory.Lot
		ok  bool
	)
	r.s.locked(func(d *data) { lot, ok = d.lots[id] })
	if !ok {
		return inventory.Lot{}, shared.Errorf(shared.ErrUnknownLot, "lot %d", id)
	}
	return lot, nil
}

func (r *InventoryRepo) ListLots(_ context.Context, filter inventory.LotFilter) ([]inventory.Lot, int, error) {
	var all []inventory.Lot
	keyword := strings.TrimSpace(filter.Keyword)
	r.s.locked(func(d *data) {
		for _, lot := range d.lots {
			if filter.ProductID != 0 && lot.ProductID != filter.ProductID {
				continue
			}
			if filter.Grade != "" && lot.Grade != filter.Grade {
				continue
			}
			if keyword != "" {
				p := d.products[lot.ProductID]
				if !containsFold(lot.LotNumber, keyword) && !containsFold(p.Code, keyword) && !containsFold(p.Name, keyword) {
					continue
				}
			}
			all = append(all, lot)
		}
	})
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.ProductID != b.ProductID {
			return a.ProductID < b.ProductID
		}
		if !a.ExpiryDate.Equal(b.ExpiryDate) {
			return a.ExpiryDate.Before(b.ExpiryDate)
		}
		return a.ID < b.ID
	})
	return page(all, filter.Page, filter.PerPage), len(all), nil
}

func (r *InventoryRepo) ListLogs(_ context.Context, lotID int64) ([]inventory.AdjustmentLog, error) {
	var out []inventory.AdjustmentLog
	r.s.locked(func(d *data) { out = lotLogs(d, lotID) })
	return out, nil
}

func (r *InventoryRepo) ListGradeCandidates(_ context.Context) ([]inventory.Lot, error) {
	var out []inventory.Lot
	r.s.locked(func(d *data) {
		for _, lot := range d.lots {
			out = append(out, lot)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *InventoryRepo) SetGrade(_ context.Context, lotID int64, expiry time.Time, grade inventory.Grade) (bool, error) {
	var updated bool
	r.s.locked(func(d *data) {
		lot, ok := d.lots[lotID]
		if !ok || !lot.ExpiryDate.Equal(expiry) {
			return
		}
		lot.Grade = grade
		d.lots[lotID] = lot
		updated = true
	})
	return updated, nil
}

// stockTx implements inventory.TxRepository over the locked data.
type stockTx struct {
	d *data
}

func (t *stockTx) LockLot(_ context.Context, id int64) (inventory.Lot, error) {
	lot, ok := t.d.lots[id]
	if !ok {
		return inventory.Lot{}, shared.Errorf(shared.ErrUnknownLot, "lot %d", id)
	}
	return lot, nil
}

func (t *stockTx) LockProductLots(_ context.Context, productID int64) ([]inventory.Lot, error) {
	return productLots(t.d, productID), nil
}

func (t *stockTx) InsertLot(_ context.Context, lot inventory.Lot) (inventory.Lot, error) {
	for _, existing := range t.d.lots {
		if existing.LotNumber == lot.LotNumber {
			return inventory.Lot{}, uniqueViolation("lots_lot_number_key")
		}
	}
	lot.ID = t.d.next()
	lot.Quantity = 0
	t.d.lots[lot.ID] = lot
	return lot, nil
}

func (t *stockTx) SetLotQuantity(_ context.Context, id, quantity int64, at time.Time) error {
	lot, ok := t.d.lots[id]
	if !ok {
		return shared.Errorf(shared.ErrUnknownLot, "lot %d", id)
	}
	if quantity < 0 {
		return &checkViolation{constraint: "lots_quantity_check"}
	}
	lot.Quantity = quantity
	lot.UpdatedAt = at
	t.d.lots[id] = lot
	return nil
}

func (t *stockTx) UpdateLotAttributes(_ context.Context, lot inventory.Lot) error {
	current, ok := t.d.lots[lot.ID]
	if !ok {
		return shared.Errorf(shared.ErrUnknownLot, "lot %d", lot.ID)
	}
	current.ExpiryDate = lot.ExpiryDate
	current.Grade = lot.Grade
	current.Location = lot.Location
	current.UpdatedAt = lot.UpdatedAt
	t.d.lots[lot.ID] = current
	return nil
}

func (t *stockTx) AppendLog(_ context.Context, entry inventory.AdjustmentLog) (inventory.AdjustmentLog, error) {
	entry.ID = t.d.next()
	t.d.logs = append(t.d.logs, entry)
	return entry, nil
}

func (t *stockTx) DeleteLogs(_ context.Context, lotID int64) error {
	kept := t.d.logs[:0:0]
	for _, entry := range t.d.logs {
		if entry.LotID != lotID {
			kept = append(kept, entry)
		}
	}
	t.d.logs = kept
	return nil
}

func (t *stockTx) DeleteLot(_ context.Context, lotID int64) error {
	delete(t.d.lots, lotID)
	kept := t.d.allocations[:0:0]
	for _, a := range t.d.allocations {
		if a.LotID != lotID {
			kept = append(kept, a)
		}
	}
	t.d.allocations = kept
	return nil
}

func (t *stockTx) RecordAllocations(_ context.Context, allocations []inventory.Allocation) error {
	for _, a := range allocations {
		a.ID = t.d.next()
		t.d.allocations = append(t.d.allocations, a)
	}
	return nil
}

func (t *stockTx) TakeAllocations(_ context.Context, orderRef string, productID int64) ([]inventory.Allocation, error) {
	var taken []inventory.Allocation
	kept := t.d.allocations[:0:0]
	for _, a := range t.d.allocations {
		if a.OrderRef == orderRef && a.ProductID == productID {
			taken = append(taken, a)
			continue
		}
		kept = append(kept, a)
	}
	t.d.allocations = kept
	sort.SliceStable(taken, func(i, j int) bool { return taken[i].ID > taken[j].ID })
	return taken, nil
}

func (t *stockTx) LedgerTotals(_ context.Context, lotID int64) (int64, int, error) {
	var sum int64
	entries := lotLogs(t.d, lotID)
	for _, entry := range entries {
		sum += entry.Change
	}
	return sum, len(entries), nil
}

type checkViolation struct {
	constraint string
}

func (e *checkViolation) Error() string {
	return "check constraint violated: " + e.constraint
}
