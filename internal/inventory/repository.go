package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/age-b2b/backoffice/internal/platform/db"
	"github.com/age-b2b/backoffice/internal/shared"
)

// TxRepository exposes the lot operations that run inside a transaction.
type TxRepository interface {
	LockLot(ctx context.Context, id int64) (Lot, error)
	LockProductLots(ctx context.Context, productID int64) ([]Lot, error)
	InsertLot(ctx context.Context, lot Lot) (Lot, error)
	SetLotQuantity(ctx context.Context, id, quantity int64, at time.Time) error
	UpdateLotAttributes(ctx context.Context, lot Lot) error
	AppendLog(ctx context.Context, entry AdjustmentLog) (AdjustmentLog, error)
	DeleteLogs(ctx context.Context, lotID int64) error
	DeleteLot(ctx context.Context, lotID int64) error
	RecordAllocations(ctx context.Context, allocations []Allocation) error
	TakeAllocations(ctx context.Context, orderRef string, productID int64) ([]Allocation, error)
	LedgerTotals(ctx context.Context, lotID int64) (sum int64, entries int, err error)
}

// Repository persists lots in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const lotColumns = `id, lot_number, product_id, quantity, expiry_date, inbound_date, quality_grade, location, created_at, updated_at`

// GetLot loads a lot without locking.
func (r *Repository) GetLot(ctx context.Context, id int64) (Lot, error) {
	lot, err := scanLot(r.pool.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = $1`, id))
	if err != nil {
		return Lot{}, lotError(id, err)
	}
	return lot, nil
}

// ListLots returns a page of lots ordered by product and expiry.
func (r *Repository) ListLots(ctx context.Context, filter LotFilter) ([]Lot, int, error) {
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	keyword := "%" + strings.TrimSpace(filter.Keyword) + "%"
	const where = ` WHERE ($1 = 0 OR product_id = $1) AND ($2 = '' OR quality_grade = $2)
AND ($3 = '%%' OR lot_number ILIKE $3 OR EXISTS (
	SELECT 1 FROM products p WHERE p.id = lots.product_id AND (p.code ILIKE $3 OR p.name ILIKE $3)))`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM lots`+where, filter.ProductID, string(filter.Grade), keyword).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count lots: %w", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+lotColumns+` FROM lots`+where+`
ORDER BY product_id, expiry_date, id
LIMIT $4 OFFSET $5`, filter.ProductID, string(filter.Grade), keyword, perPage, shared.Offset(page, perPage))
	if err != nil {
		return nil, 0, fmt.Errorf("list lots: %w", err)
	}
	lots, err := collectLots(rows)
	if err != nil {
		return nil, 0, err
	}
	return lots, total, nil
}

// ListLogs returns the ledger of a lot in insertion order.
func (r *Repository) ListLogs(ctx context.Context, lotID int64) ([]AdjustmentLog, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, lot_id, change_quantity, snapshot_quantity, reason, note, created_at
FROM lot_adjustments WHERE lot_id = $1 ORDER BY id`, lotID)
	if err != nil {
		return nil, fmt.Errorf("list lot logs: %w", err)
	}
	defer rows.Close()
	logs := []AdjustmentLog{}
	for rows.Next() {
		var entry AdjustmentLog
		var reason string
		if err := rows.Scan(&entry.ID, &entry.LotID, &entry.Change, &entry.Snapshot, &reason, &entry.Note, &entry.At); err != nil {
			return nil, err
		}
		entry.Reason = Reason(reason)
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// ListGradeCandidates returns every lot's id, expiry and stored grade.
func (r *Repository) ListGradeCandidates(ctx context.Context) ([]Lot, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, expiry_date, quality_grade FROM lots ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list lot grades: %w", err)
	}
	defer rows.Close()
	var lots []Lot
	for rows.Next() {
		var lot Lot
		var grade string
		if err := rows.Scan(&lot.ID, &lot.ExpiryDate, &grade); err != nil {
			return nil, err
		}
		lot.Grade = Grade(grade)
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

// SetGrade stores grade unless the lot's expiry changed since it was read.
func (r *Repository) SetGrade(ctx context.Context, lotID int64, expiry time.Time, grade Grade) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE lots SET quality_grade = $3, updated_at = NOW() WHERE id = $1 AND expiry_date = $2`, lotID, expiry, string(grade))
	if err != nil {
		return false, fmt.Errorf("set lot grade: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds lot operations to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) LockLot(ctx context.Context, id int64) (Lot, error) {
	lot, err := scanLot(r.tx.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Lot{}, lotError(id, err)
	}
	return lot, nil
}

func (r *txRepository) LockProductLots(ctx context.Context, productID int64) ([]Lot, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+lotColumns+` FROM lots WHERE product_id = $1 ORDER BY id FOR UPDATE`, productID)
	if err != nil {
		return nil, fmt.Errorf("lock product lots: %w", err)
	}
	return collectLots(rows)
}

func (r *txRepository) InsertLot(ctx context.Context, lot Lot) (Lot, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO lots (lot_number, product_id, quantity, expiry_date, inbound_date, quality_grade, location, created_at, updated_at)
VALUES ($1, $2, 0, $3, $4, $5, $6, $7, $8)
RETURNING id`, lot.LotNumber, lot.ProductID, lot.ExpiryDate, lot.InboundDate, string(lot.Grade), lot.Location, lot.CreatedAt, lot.UpdatedAt).Scan(&lot.ID)
	if err != nil {
		return Lot{}, err
	}
	lot.Quantity = 0
	return lot, nil
}

func (r *txRepository) SetLotQuantity(ctx context.Context, id, quantity int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE lots SET quantity = $2, updated_at = $3 WHERE id = $1`, id, quantity, at)
	return err
}

func (r *txRepository) UpdateLotAttributes(ctx context.Context, lot Lot) error {
	_, err := r.tx.Exec(ctx, `UPDATE lots SET expiry_date = $2, quality_grade = $3, location = $4, updated_at = $5 WHERE id = $1`,
		lot.ID, lot.ExpiryDate, string(lot.Grade), lot.Location, lot.UpdatedAt)
	return err
}

func (r *txRepository) AppendLog(ctx context.Context, entry AdjustmentLog) (AdjustmentLog, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO lot_adjustments (lot_id, change_quantity, snapshot_quantity, reason, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, entry.LotID, entry.Change, entry.Snapshot, string(entry.Reason), entry.Note, entry.At).Scan(&entry.ID)
	return entry, err
}

func (r *txRepository) DeleteLogs(ctx context.Context, lotID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM lot_adjustments WHERE lot_id = $1`, lotID)
	return err
}

func (r *txRepository) DeleteLot(ctx context.Context, lotID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM lots WHERE id = $1`, lotID)
	return err
}

func (r *txRepository) RecordAllocations(ctx context.Context, allocations []Allocation) error {
	if len(allocations) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range allocations {
		batch.Queue(`INSERT INTO stock_allocations (order_ref, product_id, lot_id, quantity, created_at) VALUES ($1, $2, $3, $4, $5)`,
			a.OrderRef, a.ProductID, a.LotID, a.Quantity, a.CreatedAt)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) TakeAllocations(ctx context.Context, orderRef string, productID int64) ([]Allocation, error) {
	rows, err := r.tx.Query(ctx, `DELETE FROM stock_allocations WHERE order_ref = $1 AND product_id = $2
RETURNING id, order_ref, product_id, lot_id, quantity, created_at`, orderRef, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.OrderRef, &a.ProductID, &a.LotID, &a.Quantity, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// newest deduction first
	sortAllocationsNewestFirst(out)
	return out, nil
}

func (r *txRepository) LedgerTotals(ctx context.Context, lotID int64) (int64, int, error) {
	var sum int64
	var entries int
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(change_quantity), 0), COUNT(*) FROM lot_adjustments WHERE lot_id = $1`, lotID).Scan(&sum, &entries)
	return sum, entries, err
}

func scanLot(row pgx.Row) (Lot, error) {
	var lot Lot
	var grade string
	err := row.Scan(&lot.ID, &lot.LotNumber, &lot.ProductID, &lot.Quantity, &lot.ExpiryDate, &lot.InboundDate, &grade, &lot.Location, &lot.CreatedAt, &lot.UpdatedAt)
	lot.Grade = Grade(grade)
	return lot, err
}

func collectLots(rows pgx.Rows) ([]Lot, error) {
	defer rows.Close()
	lots := []Lot{}
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func lotError(id int64, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.Errorf(shared.ErrUnknownLot, "lot %d", id)
	}
	return fmt.Errorf("load lot %d: %w", id, err)
}
