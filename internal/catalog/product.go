// Package catalog resolves products owned by catalog management. It never writes catalog rows.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/age-b2b/backoffice/internal/shared"
)

// Status is the sale status of a product.
type Status string

const (
	StatusOnSale       Status = "ON_SALE"
	StatusTempOut      Status = "TEMP_OUT"
	StatusDiscontinued Status = "DISCONTINUED"
)

// Product is the catalog view consumed by orders and inventory.
type Product struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	SupplyPrice   decimal.Decimal `json:"supply_price"`
	ConsumerPrice decimal.Decimal `json:"consumer_price"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	Status        Status          `json:"status"`
}

// Orderable reports whether new orders may reference the product.
func (p Product) Orderable() bool {
	return p.Status == StatusOnSale
}

// Resolver resolves product references.
type Resolver interface {
	ResolveProduct(ctx context.Context, id int64) (Product, error)
	ResolveProducts(ctx context.Context, ids []int64) (map[int64]Product, error)
}

// Repository reads products from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, code, name, supply_price, consumer_price, cost_price, status`

// ResolveProduct loads a single product.
func (r *Repository) ResolveProduct(ctx context.Context, id int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.Errorf(shared.ErrUnknownProduct, "product %d", id)
		}
		return Product{}, fmt.Errorf("resolve product: %w", err)
	}
	return p, nil
}

// ResolveProducts loads all ids, failing if any is missing.
func (r *Repository) ResolveProducts(ctx context.Context, ids []int64) (map[int64]Product, error) {
	out := make(map[int64]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, shared.Errorf(shared.ErrUnknownProduct, "product %d", id)
		}
	}
	return out, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var status string
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.SupplyPrice, &p.ConsumerPrice, &p.CostPrice, &status); err != nil {
		return Product{}, err
	}
	p.Status = Status(status)
	return p, nil
}
