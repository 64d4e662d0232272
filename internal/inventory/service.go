package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/age-b2b/backoffice/internal/catalog"
	"github.com/age-b2b/backoffice/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLot(ctx context.Context, id int64) (Lot, error)
	ListLots(ctx context.Context, filter LotFilter) ([]Lot, int, error)
	ListLogs(ctx context.Context, lotID int64) ([]AdjustmentLog, error)
	ListGradeCandidates(ctx context.Context) ([]Lot, error)
	SetGrade(ctx context.Context, lotID int64, expiry time.Time, grade Grade) (bool, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsRecorder counts ledger entries booked through the service.
type MetricsRecorder interface {
	ObserveAdjustment(reason string)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	Now      func() time.Time
	Location *time.Location
	Logger   *slog.Logger
	Metrics  MetricsRecorder
}

// Service coordinates lot ledger operations.
type Service struct {
	repo      RepositoryPort
	products  catalog.Resolver
	audit     AuditPort
	notifier  Notifier
	ledger    *Ledger
	allocator *Allocator
	metrics   MetricsRecorder
	logger    *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, products catalog.Resolver, audit AuditPort, notifier Notifier, cfg ServiceConfig) *Service {
	ledger := NewLedger(cfg.Now, cfg.Location)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		products:  products,
		audit:     audit,
		notifier:  notifier,
		ledger:    ledger,
		allocator: NewAllocator(ledger),
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// Allocator exposes the stock allocator sharing this service's clock.
func (s *Service) Allocator() *Allocator {
	return s.allocator
}

// RegisterInbound creates a lot for a received batch.
func (s *Service) RegisterInbound(ctx context.Context, in InboundInput) (Lot, error) {
	if err := requireStaff(in.Actor); err != nil {
		return Lot{}, err
	}
	if in.ProductID <= 0 {
		return Lot{}, shared.Errorf(shared.ErrInvalidInput, "product required")
	}
	if _, err := s.products.ResolveProduct(ctx, in.ProductID); err != nil {
		return Lot{}, err
	}
	var lot Lot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		lot, _, err = s.ledger.Register(ctx, tx, in)
		return err
	})
	if err != nil {
		return Lot{}, err
	}
	s.observe(ReasonInbound)
	s.record(ctx, in.Actor, "lot.inbound", lot.ID, map[string]any{"product_id": lot.ProductID, "quantity": lot.Quantity})
	if s.notifier != nil {
		s.notifier.InboundRegistered(ctx, InboundRegisteredEvent{
			LotID:      lot.ID,
			LotNumber:  lot.LotNumber,
			ProductID:  lot.ProductID,
			Quantity:   lot.Quantity,
			ExpiryDate: lot.ExpiryDate,
			Grade:      lot.Grade,
			At:         lot.CreatedAt,
		})
	}
	return lot, nil
}

// Adjust applies a manual quantity change. Inbound quantities are booked via RegisterInbound only.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (Lot, AdjustmentLog, error) {
	if err := requireStaff(in.Actor); err != nil {
		return Lot{}, AdjustmentLog{}, err
	}
	if in.Reason == ReasonInbound {
		return Lot{}, AdjustmentLog{}, shared.Errorf(shared.ErrInvalidInput, "INBOUND is reserved for lot registration")
	}
	var (
		lot   Lot
		entry AdjustmentLog
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		lot, entry, err = s.ledger.Adjust(ctx, tx, in.LotID, in.Change, in.Reason, in.Note)
		return err
	})
	if err != nil {
		return Lot{}, AdjustmentLog{}, err
	}
	s.observe(in.Reason)
	s.record(ctx, in.Actor, "lot.adjust", lot.ID, map[string]any{"change": in.Change, "reason": string(in.Reason)})
	return lot, entry, nil
}

// UpdateLot edits a received lot. Only an expiry change regrades the lot; a quantity change is
// booked as a manual adjustment for the difference.
func (s *Service) UpdateLot(ctx context.Context, in UpdateLotInput) (Lot, error) {
	if err := requireStaff(in.Actor); err != nil {
		return Lot{}, err
	}
	if in.Quantity != nil && *in.Quantity < 0 {
		return Lot{}, shared.Errorf(shared.ErrInvalidInput, "quantity must not be negative")
	}
	var lot Lot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockLot(ctx, in.LotID)
		if err != nil {
			return err
		}
		if in.Location != nil {
			current.Location = strings.TrimSpace(*in.Location)
		}
		switch {
		case in.ExpiryDate != nil:
			if current, err = s.ledger.Regrade(ctx, tx, current, *in.ExpiryDate); err != nil {
				return err
			}
		case in.Location != nil:
			// The stored grade is left to the daily regrade job.
			current.UpdatedAt = s.ledger.now().UTC()
			if err := tx.UpdateLotAttributes(ctx, current); err != nil {
				return fmt.Errorf("update lot: %w", err)
			}
		}
		if in.Quantity != nil && *in.Quantity != current.Quantity {
			note := in.Note
			if note == "" {
				note = "receiving correction"
			}
			if current, _, err = s.ledger.adjustLocked(ctx, tx, current, *in.Quantity-current.Quantity, ReasonManualAdjustment, note); err != nil {
				return err
			}
		}
		lot = current
		return nil
	})
	if err != nil {
		return Lot{}, err
	}
	s.record(ctx, in.Actor, "lot.update", lot.ID, map[string]any{"expiry_date": lot.ExpiryDate.Format(time.DateOnly), "quantity": lot.Quantity})
	return lot, nil
}

// DeleteLot removes a lot together with its ledger.
func (s *Service) DeleteLot(ctx context.Context, lotID int64, actor shared.Principal) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.ledger.Purge(ctx, tx, lotID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor, "lot.delete", lotID, nil)
	return nil
}

// GetLot returns a single lot view.
func (s *Service) GetLot(ctx context.Context, lotID int64) (LotView, error) {
	lot, err := s.repo.GetLot(ctx, lotID)
	if err != nil {
		return LotView{}, err
	}
	views, err := s.views(ctx, []Lot{lot})
	if err != nil {
		return LotView{}, err
	}
	return views[0], nil
}

// ListLots returns a page of lot views.
func (s *Service) ListLots(ctx context.Context, filter LotFilter) ([]LotView, shared.Pagination, error) {
	if filter.Grade != "" && !filter.Grade.Valid() {
		return nil, shared.Pagination{}, shared.Errorf(shared.ErrInvalidInput, "unknown grade %q", filter.Grade)
	}
	lots, total, err := s.repo.ListLots(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	views, err := s.views(ctx, lots)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return views, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// ListLogs returns the adjustment history of a lot.
func (s *Service) ListLogs(ctx context.Context, lotID int64) ([]AdjustmentLog, error) {
	if _, err := s.repo.GetLot(ctx, lotID); err != nil {
		return nil, err
	}
	return s.repo.ListLogs(ctx, lotID)
}

// Reconcile checks that the lot quantity equals the sum of its ledger.
func (s *Service) Reconcile(ctx context.Context, lotID int64) (Reconciliation, error) {
	var rec Reconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lot, err := tx.LockLot(ctx, lotID)
		if err != nil {
			return err
		}
		sum, entries, err := tx.LedgerTotals(ctx, lotID)
		if err != nil {
			return fmt.Errorf("ledger totals: %w", err)
		}
		rec = Reconciliation{LotID: lotID, Quantity: lot.Quantity, LedgerSum: sum, Entries: entries, Balanced: sum == lot.Quantity}
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	if !rec.Balanced {
		s.logger.Error("lot ledger out of balance",
			slog.Int64("lot_id", lotID), slog.Int64("quantity", rec.Quantity), slog.Int64("ledger_sum", rec.LedgerSum))
	}
	return rec, nil
}

// RegradeAll recomputes every lot's grade for the current business date.
func (s *Service) RegradeAll(ctx context.Context) (RegradeResult, error) {
	lots, err := s.repo.ListGradeCandidates(ctx)
	if err != nil {
		return RegradeResult{}, err
	}
	today := s.ledger.Today()
	result := RegradeResult{Scanned: len(lots)}
	for _, lot := range lots {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		grade := GradeFor(lot.ExpiryDate, today)
		if grade == lot.Grade {
			continue
		}
		updated, err := s.repo.SetGrade(ctx, lot.ID, lot.ExpiryDate, grade)
		if err != nil {
			return result, err
		}
		if updated {
			result.Changed++
		}
	}
	s.logger.Info("lot grades refreshed", slog.Int("scanned", result.Scanned), slog.Int("changed", result.Changed))
	return result, nil
}

func (s *Service) views(ctx context.Context, lots []Lot) ([]LotView, error) {
	views := make([]LotView, 0, len(lots))
	if len(lots) == 0 {
		return views, nil
	}
	ids := make([]int64, 0, len(lots))
	seen := make(map[int64]bool, len(lots))
	for _, lot := range lots {
		if !seen[lot.ProductID] {
			seen[lot.ProductID] = true
			ids = append(ids, lot.ProductID)
		}
	}
	products, err := s.products.ResolveProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	today := s.ledger.Today()
	for _, lot := range lots {
		p := products[lot.ProductID]
		views = append(views, LotView{
			Lot:           lot,
			ProductCode:   p.Code,
			ProductName:   p.Name,
			CostPrice:     p.CostPrice,
			AssetValue:    p.CostPrice.Mul(decimal.NewFromInt(lot.Quantity)),
			RemainingDays: DaysUntil(today, lot.ExpiryDate),
		})
	}
	return views, nil
}

func (s *Service) record(ctx context.Context, actor shared.Principal, action string, lotID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "lot",
		EntityID: strconv.FormatInt(lotID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit lot action", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) observe(reason Reason) {
	if s.metrics != nil {
		s.metrics.ObserveAdjustment(string(reason))
	}
}

func requireStaff(p shared.Principal) error {
	if !p.IsStaff() {
		return shared.Errorf(shared.ErrForbidden, "staff only")
	}
	return nil
}
