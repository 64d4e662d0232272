package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/age-b2b/backoffice/internal/inventory"
	"github.com/age-b2b/backoffice/internal/platform/db"
	"github.com/age-b2b/backoffice/internal/shared"
)

// Repository persists orders in PostgreSQL.
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
		return errors.New("orders repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const orderColumns = `id, order_number, client_id, status, total_amount,
receiver_name, receiver_phone, zip_code, address, detail_address, delivery_memo,
cancel_reason, cancel_detail, cancelled_at, return_reason, return_detail, returned_at,
paid_at, delivered_at, created_at, updated_at`

// GetOrder loads an order with its items and shipment.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return Order{}, orderError(id, err)
	}
	if order.Items, err = loadItems(ctx, r.pool, id); err != nil {
		return Order{}, err
	}
	shipment, ok, err := loadShipment(ctx, r.pool, id)
	if err != nil {
		return Order{}, err
	}
	if ok {
		order.Shipment = &shipment
	}
	return order, nil
}

// ListOrders returns a page of orders, newest first. Items are not loaded.
func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	where, args := orderWhere(filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	args = append(args, perPage, shared.Offset(page, perPage))
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	list := []Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListShipments returns a page of shipments with order context.
func (r *Repository) ListShipments(ctx context.Context, filter ShipmentFilter) ([]ShipmentView, int, error) {
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	keyword := "%" + strings.TrimSpace(filter.Keyword) + "%"
	const where = ` WHERE ($1 = '%%' OR s.shipment_number ILIKE $1 OR s.tracking_number ILIKE $1 OR o.order_number ILIKE $1)`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM shipments s JOIN orders o ON o.id = s.order_id`+where, keyword).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count shipments: %w", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.order_id, s.shipment_number, s.carrier, s.tracking_number, s.shipped_at, s.created_at,
o.order_number, o.client_id,
(SELECT COUNT(*) FROM order_items i WHERE i.order_id = o.id),
(SELECT COALESCE(SUM(i.quantity), 0) FROM order_items i WHERE i.order_id = o.id)
FROM shipments s JOIN orders o ON o.id = s.order_id`+where+`
ORDER BY s.shipped_at DESC, s.id DESC LIMIT $2 OFFSET $3`, keyword, perPage, shared.Offset(page, perPage))
	if err != nil {
		return nil, 0, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()
	list := []ShipmentView{}
	for rows.Next() {
		var v ShipmentView
		if err := rows.Scan(&v.ID, &v.OrderID, &v.ShipmentNumber, &v.Carrier, &v.TrackingNumber, &v.ShippedAt, &v.CreatedAt,
			&v.OrderNumber, &v.ClientID, &v.ItemCount, &v.TotalQuantity); err != nil {
			return nil, 0, err
		}
		list = append(list, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func orderWhere(filter ListFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.ClientID > 0 {
		add("client_id = $%d", filter.ClientID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at < $%d", filter.To)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Stock() inventory.TxRepository {
	return inventory.NewTxRepository(r.tx)
}

func (r *txRepository) LockOrder(ctx context.Context, id int64) (Order, error) {
	order, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Order{}, orderError(id, err)
	}
	if order.Items, err = loadItems(ctx, r.tx, id); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (r *txRepository) InsertOrder(ctx context.Context, order Order) (Order, error) {
	d := order.Delivery
	err := r.tx.QueryRow(ctx, `INSERT INTO orders (order_number, client_id, status, total_amount,
receiver_name, receiver_phone, zip_code, address, detail_address, delivery_memo, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		order.OrderNumber, order.ClientID, string(order.Status), order.TotalAmount,
		d.ReceiverName, d.ReceiverPhone, d.ZipCode, d.Address, d.DetailAddress, d.Memo,
		order.CreatedAt, order.UpdatedAt).Scan(&order.ID)
	if err != nil {
		return Order{}, err
	}
	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO order_items (order_id, product_id, product_code, product_name, quantity, unit_price)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, order.ID, item.ProductID, item.ProductCode, item.ProductName, item.Quantity, item.UnitPrice).Scan(&item.ID); err != nil {
			return Order{}, fmt.Errorf("insert order item: %w", err)
		}
	}
	return order, nil
}

func (r *txRepository) SaveStatus(ctx context.Context, order Order) error {
	_, err := r.tx.Exec(ctx, `UPDATE orders SET status = $2,
cancel_reason = $3, cancel_detail = $4, cancelled_at = $5,
return_reason = $6, return_detail = $7, returned_at = $8,
paid_at = $9, delivered_at = $10, updated_at = $11
WHERE id = $1`, order.ID, string(order.Status),
		order.CancelReason, order.CancelDetail, order.CancelledAt,
		order.ReturnReason, order.ReturnDetail, order.ReturnedAt,
		order.PaidAt, order.DeliveredAt, order.UpdatedAt)
	return err
}

func (r *txRepository) GetShipment(ctx context.Context, orderID int64) (Shipment, bool, error) {
	return loadShipment(ctx, r.tx, orderID)
}

func (r *txRepository) InsertShipment(ctx context.Context, s Shipment) (Shipment, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO shipments (order_id, shipment_number, carrier, tracking_number, shipped_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, s.OrderID, s.ShipmentNumber, s.Carrier, s.TrackingNumber, s.ShippedAt, s.CreatedAt).Scan(&s.ID)
	return s, err
}

func (r *txRepository) DeleteShipment(ctx context.Context, orderID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM shipments WHERE order_id = $1`, orderID)
	return err
}

func (r *txRepository) RemoveCartProducts(ctx context.Context, clientID int64, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	_, err := r.tx.Exec(ctx, `DELETE FROM cart_items WHERE client_id = $1 AND product_id = ANY($2)`, clientID, productIDs)
	return err
}

func loadItems(ctx context.Context, q querier, orderID int64) ([]LineItem, error) {
	rows, err := q.Query(ctx, `SELECT id, order_id, product_id, product_code, product_name, quantity, unit_price
FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()
	items := []LineItem{}
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductCode, &item.ProductName, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func loadShipment(ctx context.Context, q querier, orderID int64) (Shipment, bool, error) {
	var s Shipment
	err := q.QueryRow(ctx, `SELECT id, order_id, shipment_number, carrier, tracking_number, shipped_at, created_at
FROM shipments WHERE order_id = $1`, orderID).Scan(&s.ID, &s.OrderID, &s.ShipmentNumber, &s.Carrier, &s.TrackingNumber, &s.ShippedAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Shipment{}, false, nil
	}
	if err != nil {
		return Shipment{}, false, fmt.Errorf("load shipment: %w", err)
	}
	return s, true, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	d := &o.Delivery
	err := row.Scan(&o.ID, &o.OrderNumber, &o.ClientID, &status, &o.TotalAmount,
		&d.ReceiverName, &d.ReceiverPhone, &d.ZipCode, &d.Address, &d.DetailAddress, &d.Memo,
		&o.CancelReason, &o.CancelDetail, &o.CancelledAt, &o.ReturnReason, &o.ReturnDetail, &o.ReturnedAt,
		&o.PaidAt, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt)
	o.Status = Status(status)
	return o, err
}

func orderError(id int64, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.Errorf(shared.ErrUnknownOrder, "order %d", id)
	}
	return fmt.Errorf("load order %d: %w", id, err)
}
