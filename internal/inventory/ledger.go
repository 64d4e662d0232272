package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/age-b2b/backoffice/internal/shared"
)

// Ledger applies quantity changes to lots inside a caller-owned transaction.
// Every quantity write goes through adjust so the log always sums to the lot quantity.
type Ledger struct {
	now      func() time.Time
	location *time.Location
}

// NewLedger constructs a Ledger. now defaults to time.Now and loc to UTC.
func NewLedger(now func() time.Time, loc *time.Location) *Ledger {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{now: now, location: loc}
}

// Today returns the current business date.
func (l *Ledger) Today() time.Time {
	return BusinessDate(l.now(), l.location)
}

// Register creates a lot and books its inbound quantity.
func (l *Ledger) Register(ctx context.Context, tx TxRepository, in InboundInput) (Lot, AdjustmentLog, error) {
	if in.Quantity <= 0 {
		return Lot{}, AdjustmentLog{}, shared.Errorf(shared.ErrInvalidInput, "inbound quantity must be positive")
	}
	if in.ExpiryDate.IsZero() {
		return Lot{}, AdjustmentLog{}, shared.Errorf(shared.ErrInvalidInput, "expiry date required")
	}
	lot, err := l.createEmptyLot(ctx, tx, in.ProductID, in.ExpiryDate, in.InboundDate, in.Location)
	if err != nil {
		return Lot{}, AdjustmentLog{}, err
	}
	return l.adjustLocked(ctx, tx, lot, in.Quantity, ReasonInbound, in.Note)
}

// Adjust locks the lot and applies change with the given reason.
func (l *Ledger) Adjust(ctx context.Context, tx TxRepository, lotID, change int64, reason Reason, note string) (Lot, AdjustmentLog, error) {
	if change == 0 {
		return Lot{}, AdjustmentLog{}, shared.Errorf(shared.ErrInvalidInput, "change quantity must not be zero")
	}
	if !reason.Valid() {
		return Lot{}, AdjustmentLog{}, shared.Errorf(shared.ErrInvalidInput, "unknown reason %q", reason)
	}
	lot, err := tx.LockLot(ctx, lotID)
	if err != nil {
		return Lot{}, AdjustmentLog{}, err
	}
	return l.adjustLocked(ctx, tx, lot, change, reason, note)
}

// adjustLocked expects lot to be locked by the current transaction.
func (l *Ledger) adjustLocked(ctx context.Context, tx TxRepository, lot Lot, change int64, reason Reason, note string) (Lot, AdjustmentLog, error) {
	next := lot.Quantity + change
	if next < 0 {
		return Lot{}, AdjustmentLog{}, shared.Errorf(shared.ErrInsufficientStock, "lot %s holds %d, cannot apply %d", lot.LotNumber, lot.Quantity, change)
	}
	at := l.now().UTC()
	if err := tx.SetLotQuantity(ctx, lot.ID, next, at); err != nil {
		return Lot{}, AdjustmentLog{}, fmt.Errorf("set lot quantity: %w", err)
	}
	entry, err := tx.AppendLog(ctx, AdjustmentLog{
		LotID:    lot.ID,
		Change:   change,
		Snapshot: next,
		Reason:   reason,
		Note:     note,
		At:       at,
	})
	if err != nil {
		return Lot{}, AdjustmentLog{}, fmt.Errorf("append adjustment log: %w", err)
	}
	lot.Quantity = next
	lot.UpdatedAt = at
	return lot, entry, nil
}

// Regrade sets a new expiry date on a locked lot and recomputes its grade.
func (l *Ledger) Regrade(ctx context.Context, tx TxRepository, lot Lot, expiry time.Time) (Lot, error) {
	lot.ExpiryDate = dateOnly(expiry)
	lot.Grade = GradeFor(lot.ExpiryDate, l.Today())
	lot.UpdatedAt = l.now().UTC()
	if err := tx.UpdateLotAttributes(ctx, lot); err != nil {
		return Lot{}, fmt.Errorf("update lot: %w", err)
	}
	return lot, nil
}

// Purge removes a lot after deleting its ledger entries.
func (l *Ledger) Purge(ctx context.Context, tx TxRepository, lotID int64) error {
	if _, err := tx.LockLot(ctx, lotID); err != nil {
		return err
	}
	if err := tx.DeleteLogs(ctx, lotID); err != nil {
		return fmt.Errorf("delete lot logs: %w", err)
	}
	if err := tx.DeleteLot(ctx, lotID); err != nil {
		return fmt.Errorf("delete lot: %w", err)
	}
	return nil
}

func (l *Ledger) createEmptyLot(ctx context.Context, tx TxRepository, productID int64, expiry, inbound time.Time, location string) (Lot, error) {
	today := l.Today()
	if inbound.IsZero() {
		inbound = today
	}
	now := l.now().UTC()
	lot := Lot{
		LotNumber:   newLotNumber(today),
		ProductID:   productID,
		ExpiryDate:  dateOnly(expiry),
		InboundDate: dateOnly(inbound),
		Grade:       GradeFor(expiry, today),
		Location:    strings.TrimSpace(location),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := tx.InsertLot(ctx, lot)
	if err != nil {
		return Lot{}, fmt.Errorf("insert lot: %w", err)
	}
	return created, nil
}

func newLotNumber(day time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("LOT-%s-%s", day.Format("20060102"), suffix)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
