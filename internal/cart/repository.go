package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/age-b2b/backoffice/internal/shared"
)

// PgRepository stores cart items in PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const itemColumns = `id, client_id, product_id, quantity, created_at, updated_at`

func (r *PgRepository) ListItems(ctx context.Context, clientID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM cart_items WHERE client_id = $1 ORDER BY id`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *PgRepository) GetItem(ctx context.Context, id int64) (Item, error) {
	item, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM cart_items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, shared.Errorf(shared.ErrNotFound, "cart item %d", id)
		}
		return Item{}, fmt.Errorf("load cart item: %w", err)
	}
	return item, nil
}

func (r *PgRepository) IncrementItem(ctx context.Context, clientID, productID int64, at time.Time) (Item, error) {
	item, err := scanItem(r.pool.QueryRow(ctx, `INSERT INTO cart_items (client_id, product_id, quantity, created_at, updated_at)
VALUES ($1, $2, 1, $3, $3)
ON CONFLICT (client_id, product_id) DO UPDATE SET quantity = cart_items.quantity + 1, updated_at = EXCLUDED.updated_at
RETURNING `+itemColumns, clientID, productID, at))
	if err != nil {
		return Item{}, fmt.Errorf("add cart item: %w", err)
	}
	return item, nil
}

func (r *PgRepository) SetQuantity(ctx context.Context, id, quantity int64, at time.Time) (Item, error) {
	item, err := scanItem(r.pool.QueryRow(ctx, `UPDATE cart_items SET quantity = $2, updated_at = $3 WHERE id = $1 RETURNING `+itemColumns, id, quantity, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, shared.Errorf(shared.ErrNotFound, "cart item %d", id)
		}
		return Item{}, fmt.Errorf("update cart item: %w", err)
	}
	return item, nil
}

func (r *PgRepository) DeleteItem(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, id)
	return err
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.ClientID, &item.ProductID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}
