// Package clients resolves B2B client accounts managed by the onboarding workflow.
package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/age-b2b/backoffice/internal/shared"
)

// DeliveryDefaults is the client's preferred shipping destination.
type DeliveryDefaults struct {
	ReceiverName  string `json:"receiver_name"`
	ReceiverPhone string `json:"receiver_phone"`
	ZipCode       string `json:"zip_code"`
	Address       string `json:"address"`
	DetailAddress string `json:"detail_address"`
	Memo          string `json:"memo"`
}

// Client is the subset of the account the back office needs.
type Client struct {
	ID               int64            `json:"id"`
	BusinessName     string           `json:"business_name"`
	Email            string           `json:"email"`
	DeliveryDefaults DeliveryDefaults `json:"delivery_defaults"`
}

// Resolver resolves client references.
type Resolver interface {
	ResolveClient(ctx context.Context, id int64) (Client, error)
}

// Repository reads clients from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ResolveClient loads a client by id.
func (r *Repository) ResolveClient(ctx context.Context, id int64) (Client, error) {
	var c Client
	d := &c.DeliveryDefaults
	err := r.pool.QueryRow(ctx, `SELECT id, business_name, email, receiver_name, receiver_phone, zip_code, address, detail_address, delivery_memo
FROM clients WHERE id = $1`, id).Scan(&c.ID, &c.BusinessName, &c.Email, &d.ReceiverName, &d.ReceiverPhone, &d.ZipCode, &d.Address, &d.DetailAddress, &d.Memo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, shared.Errorf(shared.ErrUnknownClient, "client %d", id)
		}
		return Client{}, fmt.Errorf("resolve client: %w", err)
	}
	return c, nil
}
