package reporting

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/age-b2b/backoffice/internal/inventory"
	"github.com/age-b2b/backoffice/internal/orders"
	"github.com/age-b2b/backoffice/internal/shared"
)

// RepositoryPort exposes the read-only aggregates the service relies on.
type RepositoryPort interface {
	Dashboard(ctx context.Context, scope Scope) (Dashboard, error)
	DeliveredOrders(ctx context.Context, filter SettlementFilter) ([]SettlementOrder, error)
}

// Service coordinates reporting queries with the cache layer.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	now    func() time.Time
	logger *slog.Logger
}

// NewService wires a repository with a cache helper. A nil cache disables caching.
func NewService(repo RepositoryPort, cache *Cache, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, now: now, logger: logger}
}

// Dashboard returns the cached snapshot for the actor. Clients only see their own orders.
func (s *Service) Dashboard(ctx context.Context, actor shared.Principal, scope Scope) (Dashboard, error) {
	switch {
	case actor.IsClient():
		scope = Scope{ClientID: actor.ID}
	case actor.IsStaff():
	default:
		return Dashboard{}, shared.Errorf(shared.ErrForbidden, "dashboard requires a session")
	}
	if scope.ClientID < 0 {
		return Dashboard{}, shared.Errorf(shared.ErrInvalidInput, "client_id must not be negative")
	}
	key, err := s.cache.BuildKey(ctx, "reporting", "dashboard", strconv.FormatInt(scope.ClientID, 10))
	if err != nil {
		return Dashboard{}, err
	}
	var out Dashboard
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		d, err := s.repo.Dashboard(ctx, scope)
		if err != nil {
			return nil, err
		}
		d.GeneratedAt = s.now().UTC()
		return d, nil
	})
	if err != nil {
		return Dashboard{}, err
	}
	return out, nil
}

// SettlementFeed lists delivered orders created in [from, to] (inclusive dates) with per-client sums.
func (s *Service) SettlementFeed(ctx context.Context, actor shared.Principal, filter SettlementFilter) (SettlementFeed, error) {
	if !actor.IsStaff() {
		return SettlementFeed{}, shared.Errorf(shared.ErrForbidden, "staff only")
	}
	if filter.From.IsZero() || filter.To.IsZero() {
		return SettlementFeed{}, shared.Errorf(shared.ErrInvalidInput, "from and to are required")
	}
	if filter.To.Before(filter.From) {
		return SettlementFeed{}, shared.Errorf(shared.ErrInvalidInput, "to must not be before from")
	}
	query := filter
	query.To = filter.To.AddDate(0, 0, 1)
	rows, err := s.repo.DeliveredOrders(ctx, query)
	if err != nil {
		return SettlementFeed{}, err
	}

	feed := SettlementFeed{From: filter.From, To: filter.To, Orders: rows, Total: decimal.Zero}
	if feed.Orders == nil {
		feed.Orders = []SettlementOrder{}
	}
	byClient := map[int64]*ClientSettlement{}
	for _, o := range rows {
		c, ok := byClient[o.ClientID]
		if !ok {
			c = &ClientSettlement{ClientID: o.ClientID, Total: decimal.Zero}
			byClient[o.ClientID] = c
		}
		c.Orders++
		c.Total = c.Total.Add(o.TotalAmount)
		feed.Total = feed.Total.Add(o.TotalAmount)
	}
	feed.Clients = make([]ClientSettlement, 0, len(byClient))
	for _, c := range byClient {
		feed.Clients = append(feed.Clients, *c)
	}
	sort.Slice(feed.Clients, func(i, j int) bool { return feed.Clients[i].ClientID < feed.Clients[j].ClientID })
	return feed, nil
}

// Invalidate drops every cached dashboard.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("invalidate dashboard cache", slog.Any("error", err))
	}
}

// OrderStatusChanged invalidates cached dashboards after an order transition.
func (s *Service) OrderStatusChanged(ctx context.Context, _ orders.StatusChangedEvent) {
	s.Invalidate(ctx)
}

// InboundRegistered invalidates cached dashboards after a lot is received.
func (s *Service) InboundRegistered(ctx context.Context, _ inventory.InboundRegisteredEvent) {
	s.Invalidate(ctx)
}
