package reporting

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/age-b2b/backoffice/internal/platform/db"
)

// Repository reads reporting aggregates from PostgreSQL. Every read runs in one
// read-only snapshot so a dashboard never mixes pre- and post-transition rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Dashboard aggregates order counts for the scope and, for the all-clients scope, lot totals.
func (r *Repository) Dashboard(ctx context.Context, scope Scope) (Dashboard, error) {
	out := Dashboard{ClientID: scope.ClientID, OrderCounts: map[string]int64{}, AssetValue: decimal.Zero}
	err := db.ReadOnly(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT status, COUNT(*) FROM orders
WHERE ($1 = 0 OR client_id = $1)
GROUP BY status`, scope.ClientID)
		if err != nil {
			return fmt.Errorf("count orders: %w", err)
		}
		for rows.Next() {
			var (
				status string
				count  int64
			)
			if err := rows.Scan(&status, &count); err != nil {
				rows.Close()
				return fmt.Errorf("scan order count: %w", err)
			}
			out.OrderCounts[status] = count
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("count orders: %w", err)
		}
		if scope.ClientID != 0 {
			return nil
		}

		rows, err = tx.Query(ctx, `SELECT l.quality_grade, COUNT(*), COALESCE(SUM(l.quantity), 0),
       COALESCE(SUM(l.quantity * p.cost_price), 0)
FROM lots l
JOIN products p ON p.id = l.product_id
GROUP BY l.quality_grade
ORDER BY l.quality_grade`)
		if err != nil {
			return fmt.Errorf("lot totals: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				g     GradeTotal
				value decimal.Decimal
			)
			if err := rows.Scan(&g.Grade, &g.Lots, &g.Quantity, &value); err != nil {
				return fmt.Errorf("scan lot totals: %w", err)
			}
			out.Grades = append(out.Grades, g)
			out.TotalQuantity += g.Quantity
			out.AssetValue = out.AssetValue.Add(value)
		}
		return rows.Err()
	})
	if err != nil {
		return Dashboard{}, err
	}
	return out, nil
}

// DeliveredOrders lists DELIVERED orders created within [from, to).
func (r *Repository) DeliveredOrders(ctx context.Context, filter SettlementFilter) ([]SettlementOrder, error) {
	var out []SettlementOrder
	err := db.ReadOnly(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, order_number, client_id, created_at, total_amount
FROM orders
WHERE status = 'DELIVERED' AND created_at >= $1 AND created_at < $2
  AND ($3 = 0 OR client_id = $3)
ORDER BY client_id, created_at, id`, filter.From, filter.To, filter.ClientID)
		if err != nil {
			return fmt.Errorf("delivered orders: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var o SettlementOrder
			if err := rows.Scan(&o.OrderID, &o.OrderNumber, &o.ClientID, &o.CreatedAt, &o.TotalAmount); err != nil {
				return fmt.Errorf("scan delivered order: %w", err)
			}
			out = append(out, o)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
