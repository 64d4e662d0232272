// Package cart keeps each client's pending selection of products before an order is placed.
package cart

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/age-b2b/backoffice/internal/catalog"
	"github.com/age-b2b/backoffice/internal/shared"
)

// Item is a stored cart line.
type Item struct {
	ID        int64     `json:"id"`
	ClientID  int64     `json:"client_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int64     `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Line is a cart item priced from the catalog.
type Line struct {
	Item
	ProductCode string          `json:"product_code"`
	ProductName string          `json:"product_name"`
	Status      catalog.Status  `json:"status"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Cart is a client's full cart.
type Cart struct {
	ClientID int64           `json:"client_id"`
	Lines    []Line          `json:"lines"`
	Total    decimal.Decimal `json:"total"`
}

// Repository persists cart items.
type Repository interface {
	ListItems(ctx context.Context, clientID int64) ([]Item, error)
	GetItem(ctx context.Context, id int64) (Item, error)
	// IncrementItem adds one unit of product, creating the line when absent.
	IncrementItem(ctx context.Context, clientID, productID int64, at time.Time) (Item, error)
	SetQuantity(ctx context.Context, id, quantity int64, at time.Time) (Item, error)
	DeleteItem(ctx context.Context, id int64) error
}

// Service manages client carts.
type Service struct {
	repo     Repository
	products catalog.Resolver
	now      func() time.Time
	logger   *slog.Logger
}

// NewService constructs Service.
func NewService(repo Repository, products catalog.Resolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, products: products, now: time.Now, logger: logger}
}

// List returns the client's cart priced at current supply prices.
func (s *Service) List(ctx context.Context, client shared.Principal) (Cart, error) {
	if !client.IsClient() {
		return Cart{}, shared.Errorf(shared.ErrForbidden, "clients only")
	}
	items, err := s.repo.ListItems(ctx, client.ID)
	if err != nil {
		return Cart{}, err
	}
	out := Cart{ClientID: client.ID, Lines: []Line{}, Total: decimal.Zero}
	if len(items) == 0 {
		return out, nil
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.ResolveProducts(ctx, ids)
	if err != nil {
		return Cart{}, err
	}
	for _, item := range items {
		p := products[item.ProductID]
		line := Line{
			Item:        item,
			ProductCode: p.Code,
			ProductName: p.Name,
			Status:      p.Status,
			UnitPrice:   p.SupplyPrice,
			LineTotal:   p.SupplyPrice.Mul(decimal.NewFromInt(item.Quantity)),
		}
		out.Lines = append(out.Lines, line)
		out.Total = out.Total.Add(line.LineTotal)
	}
	return out, nil
}

// AddProducts adds one unit of every product to the cart.
func (s *Service) AddProducts(ctx context.Context, client shared.Principal, productIDs []int64) ([]Item, error) {
	if !client.IsClient() {
		return nil, shared.Errorf(shared.ErrForbidden, "clients only")
	}
	if len(productIDs) == 0 {
		return nil, shared.Errorf(shared.ErrInvalidInput, "product ids required")
	}
	if _, err := s.products.ResolveProducts(ctx, productIDs); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	items := make([]Item, 0, len(productIDs))
	for _, id := range productIDs {
		item, err := s.repo.IncrementItem(ctx, client.ID, id, now)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// UpdateQuantity sets the quantity of one of the client's lines.
func (s *Service) UpdateQuantity(ctx context.Context, client shared.Principal, itemID, quantity int64) (Item, error) {
	if quantity <= 0 {
		return Item{}, shared.Errorf(shared.ErrInvalidInput, "quantity must be positive")
	}
	if _, err := s.owned(ctx, client, itemID); err != nil {
		return Item{}, err
	}
	return s.repo.SetQuantity(ctx, itemID, quantity, s.now().UTC())
}

// Remove deletes one of the client's lines.
func (s *Service) Remove(ctx context.Context, client shared.Principal, itemID int64) error {
	if _, err := s.owned(ctx, client, itemID); err != nil {
		return err
	}
	return s.repo.DeleteItem(ctx, itemID)
}

func (s *Service) owned(ctx context.Context, client shared.Principal, itemID int64) (Item, error) {
	if !client.IsClient() {
		return Item{}, shared.Errorf(shared.ErrForbidden, "clients only")
	}
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	if item.ClientID != client.ID {
		return Item{}, shared.Errorf(shared.ErrForbidden, "cart item %d", itemID)
	}
	return item, nil
}
