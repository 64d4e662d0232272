package orders

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/age-b2b/backoffice/internal/catalog"
	"github.com/age-b2b/backoffice/internal/clients"
	"github.com/age-b2b/backoffice/internal/inventory"
	"github.com/age-b2b/backoffice/internal/shared"
)

const maxNumberAttempts = 5

// TxRepository exposes order operations bound to one transaction.
type TxRepository interface {
	LockOrder(ctx context.Context, id int64) (Order, error)
	InsertOrder(ctx context.Context, order Order) (Order, error)
	SaveStatus(ctx context.Context, order Order) error
	GetShipment(ctx context.Context, orderID int64) (Shipment, bool, error)
	InsertShipment(ctx context.Context, shipment Shipment) (Shipment, error)
	DeleteShipment(ctx context.Context, orderID int64) error
	RemoveCartProducts(ctx context.Context, clientID int64, productIDs []int64) error
	// Stock binds the lot ledger to the same transaction.
	Stock() inventory.TxRepository
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error)
	ListShipments(ctx context.Context, filter ShipmentFilter) ([]ShipmentView, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsRecorder counts committed transitions and the lot ledger entries they booked.
type MetricsRecorder interface {
	ObserveTransition(event, to string)
	ObserveAdjustment(reason string)
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Audit    AuditPort
	Notifier Notifier
	Metrics  MetricsRecorder
	Now      func() time.Time
	Logger   *slog.Logger
}

// Service runs every order state transition.
type Service struct {
	repo      RepositoryPort
	products  catalog.Resolver
	clients   clients.Resolver
	allocator *inventory.Allocator
	audit     AuditPort
	notifier  Notifier
	metrics   MetricsRecorder
	now       func() time.Time
	logger    *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, products catalog.Resolver, clientResolver clients.Resolver, allocator *inventory.Allocator, cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		products:  products,
		clients:   clientResolver,
		allocator: allocator,
		audit:     cfg.Audit,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
		now:       now,
		logger:    logger,
	}
}

// PlaceOrder creates a PENDING order with prices frozen from the catalog.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (Order, error) {
	if !in.Client.IsClient() {
		return Order{}, shared.Errorf(shared.ErrForbidden, "only clients place orders")
	}
	items, err := mergeItems(in.Items)
	if err != nil {
		return Order{}, err
	}
	client, err := s.clients.ResolveClient(ctx, in.Client.ID)
	if err != nil {
		return Order{}, err
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.ResolveProducts(ctx, ids)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ClientID: client.ID,
		Status:   StatusPending,
		Delivery: deliverySnapshot(in.Delivery, client.DeliveryDefaults),
	}
	if order.Delivery.ReceiverName == "" || order.Delivery.Address == "" {
		return Order{}, shared.Errorf(shared.ErrInvalidInput, "delivery receiver and address required")
	}
	for _, item := range items {
		p := products[item.ProductID]
		if !p.Orderable() {
			return Order{}, shared.Errorf(shared.ErrProductUnavailable, "%s is %s", p.Code, p.Status)
		}
		order.Items = append(order.Items, LineItem{
			ProductID:   p.ID,
			ProductCode: p.Code,
			ProductName: p.Name,
			Quantity:    item.Quantity,
			UnitPrice:   p.SupplyPrice,
		})
	}
	order.TotalAmount = order.ItemsTotal()

	var created Order
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		now := s.now().UTC()
		order.OrderNumber = newOrderNumber(now)
		order.CreatedAt = now
		order.UpdatedAt = now
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			created, err = tx.InsertOrder(ctx, order)
			return err
		})
		if err == nil || !shared.IsUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return Order{}, fmt.Errorf("place order: %w", err)
	}
	s.committed(ctx, in.Client, created, "", "place_order")
	return created, nil
}

// ConfirmPayment moves a paid order to PREPARING and clears the ordered products from the cart.
func (s *Service) ConfirmPayment(ctx context.Context, actor shared.Principal, orderID int64) (Order, error) {
	return s.transition(ctx, actor, orderID, EventConfirmPayment, func(ctx context.Context, tx TxRepository, o *Order, now time.Time) error {
		o.PaidAt = &now
		if err := tx.RemoveCartProducts(ctx, o.ClientID, o.ProductIDs()); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		return nil
	})
}

// CancelByClient cancels an unpaid order.
func (s *Service) CancelByClient(ctx context.Context, actor shared.Principal, orderID int64, in ReasonInput) (Order, error) {
	return s.transition(ctx, actor, orderID, EventClientCancel, func(_ context.Context, _ TxRepository, o *Order, now time.Time) error {
		o.CancelReason = strings.TrimSpace(in.Reason)
		o.CancelDetail = strings.TrimSpace(in.Detail)
		o.CancelledAt = &now
		return nil
	})
}

// RequestCancel asks staff to cancel a paid order.
func (s *Service) RequestCancel(ctx context.Context, actor shared.Principal, orderID int64, in ReasonInput) (Order, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return Order{}, shared.Errorf(shared.ErrInvalidInput, "cancel reason required")
	}
	return s.transition(ctx, actor, orderID, EventRequestCancel, func(_ context.Context, _ TxRepository, o *Order, _ time.Time) error {
		o.CancelReason = strings.TrimSpace(in.Reason)
		o.CancelDetail = strings.TrimSpace(in.Detail)
		return nil
	})
}

// ApproveCancel accepts a cancel request.
func (s *Service) ApproveCancel(ctx context.Context, actor shared.Principal, orderID int64) (Order, error) {
	return s.transition(ctx, actor, orderID, EventApproveCancel, func(_ context.Context, _ TxRepository, o *Order, now time.Time) error {
		o.CancelledAt = &now
		return nil
	})
}

// RejectCancel refuses a cancel request.
func (s *Service) RejectCancel(ctx context.Context, actor shared.Principal, orderID int64, reason string) (Order, error) {
	return s.transition(ctx, actor, orderID, EventRejectCancel, func(_ context.Context, _ TxRepository, o *Order, _ time.Time) error {
		o.CancelDetail = appendRejection(o.CancelDetail, reason)
		return nil
	})
}

// CreateShipment deducts stock for every line and records the shipment.
func (s *Service) CreateShipment(ctx context.Context, actor shared.Principal, orderID int64, in ShipmentInput) (Order, error) {
	if strings.TrimSpace(in.Carrier) == "" || strings.TrimSpace(in.TrackingNumber) == "" {
		return Order{}, shared.Errorf(shared.ErrInvalidInput, "carrier and tracking number required")
	}
	return s.transition(ctx, actor, orderID, EventCreateShipment, func(ctx context.Context, tx TxRepository, o *Order, now time.Time) error {
		if _, exists, err := tx.GetShipment(ctx, o.ID); err != nil {
			return fmt.Errorf("load shipment: %w", err)
		} else if exists {
			return shared.Errorf(shared.ErrDuplicateShipment, "order %s", o.OrderNumber)
		}
		shippedAt := in.ShippedAt
		if shippedAt.IsZero() {
			shippedAt = now
		}
		shipment, err := tx.InsertShipment(ctx, Shipment{
			OrderID:        o.ID,
			ShipmentNumber: newShipmentNumber(now),
			Carrier:        strings.TrimSpace(in.Carrier),
			TrackingNumber: strings.TrimSpace(in.TrackingNumber),
			ShippedAt:      shippedAt.UTC(),
			CreatedAt:      now,
		})
		if err != nil {
			if shared.IsUniqueViolation(err) {
				return shared.Errorf(shared.ErrDuplicateShipment, "order %s", o.OrderNumber)
			}
			return fmt.Errorf("insert shipment: %w", err)
		}
		o.Shipment = &shipment
		return nil
	})
}

// DeleteShipment reverses a shipment: stock is restored and the order returns to PREPARING.
func (s *Service) DeleteShipment(ctx context.Context, actor shared.Principal, orderID int64) (Order, error) {
	return s.transition(ctx, actor, orderID, EventDeleteShipment, func(ctx context.Context, tx TxRepository, o *Order, _ time.Time) error {
		if _, exists, err := tx.GetShipment(ctx, o.ID); err != nil {
			return fmt.Errorf("load shipment: %w", err)
		} else if !exists {
			return shared.Errorf(shared.ErrNotFound, "shipment for order %s", o.OrderNumber)
		}
		if err := tx.DeleteShipment(ctx, o.ID); err != nil {
			return fmt.Errorf("delete shipment: %w", err)
		}
		o.Shipment = nil
		return nil
	})
}

// MarkDelivered records delivery of a shipped order.
func (s *Service) MarkDelivered(ctx context.Context, actor shared.Principal, orderID int64) (Order, error) {
	return s.transition(ctx, actor, orderID, EventMarkDelivered, func(_ context.Context, _ TxRepository, o *Order, now time.Time) error {
		o.DeliveredAt = &now
		return nil
	})
}

// RequestReturn asks staff to take back a shipped or delivered order.
func (s *Service) RequestReturn(ctx context.Context, actor shared.Principal, orderID int64, in ReasonInput) (Order, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return Order{}, shared.Errorf(shared.ErrInvalidInput, "return reason required")
	}
	return s.transition(ctx, actor, orderID, EventRequestReturn, func(_ context.Context, _ TxRepository, o *Order, _ time.Time) error {
		o.ReturnReason = strings.TrimSpace(in.Reason)
		o.ReturnDetail = strings.TrimSpace(in.Detail)
		return nil
	})
}

// ApproveReturn restores stock and closes the order as RETURNED.
func (s *Service) ApproveReturn(ctx context.Context, actor shared.Principal, orderID int64) (Order, error) {
	return s.transition(ctx, actor, orderID, EventApproveReturn, func(_ context.Context, _ TxRepository, o *Order, now time.Time) error {
		o.ReturnedAt = &now
		return nil
	})
}

// RejectReturn refuses a return request.
func (s *Service) RejectReturn(ctx context.Context, actor shared.Principal, orderID int64, reason string) (Order, error) {
	return s.transition(ctx, actor, orderID, EventRejectReturn, func(_ context.Context, _ TxRepository, o *Order, _ time.Time) error {
		o.ReturnDetail = appendRejection(o.ReturnDetail, reason)
		return nil
	})
}

// GetOrder loads an order; clients may only read their own.
func (s *Service) GetOrder(ctx context.Context, actor shared.Principal, orderID int64) (Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if actor.IsStaff() {
		return order, nil
	}
	if !actor.IsClient() || order.ClientID != actor.ID {
		return Order{}, shared.Errorf(shared.ErrForbidden, "order %d", orderID)
	}
	return order, nil
}

// ListOrders lists orders; clients are restricted to their own.
func (s *Service) ListOrders(ctx context.Context, actor shared.Principal, filter ListFilter) ([]Order, shared.Pagination, error) {
	switch {
	case actor.IsClient():
		filter.ClientID = actor.ID
	case actor.IsStaff():
	default:
		return nil, shared.Pagination{}, shared.Errorf(shared.ErrForbidden, "unknown principal")
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, shared.Pagination{}, shared.Errorf(shared.ErrInvalidInput, "unknown status %q", filter.Status)
	}
	list, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// ListShipments lists shipments for staff.
func (s *Service) ListShipments(ctx context.Context, actor shared.Principal, filter ShipmentFilter) ([]ShipmentView, shared.Pagination, error) {
	if !actor.IsStaff() {
		return nil, shared.Pagination{}, shared.Errorf(shared.ErrForbidden, "staff only")
	}
	list, total, err := s.repo.ListShipments(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

type mutateFunc func(ctx context.Context, tx TxRepository, o *Order, now time.Time) error

// transition runs one table row atomically: lock, validate, stock effect, mutate, save.
func (s *Service) transition(ctx context.Context, actor shared.Principal, orderID int64, ev Event, mutate mutateFunc) (Order, error) {
	row, ok := LookupTransition(ev)
	if !ok {
		return Order{}, shared.Errorf(shared.ErrInvalidInput, "unknown event %q", ev)
	}
	if err := authorize(actor, row.Actor); err != nil {
		return Order{}, err
	}

	var (
		out    Order
		from   Status
		booked stockEntries
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		booked = stockEntries{}
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if row.Actor == ActorClient && order.ClientID != actor.ID {
			return shared.Errorf(shared.ErrForbidden, "order %s belongs to another client", order.OrderNumber)
		}
		if _, err := Next(order.Status, ev); err != nil {
			return err
		}
		from = order.Status
		now := s.now().UTC()

		switch row.Effect {
		case EffectDeductStock:
			if booked, err = s.deductStock(ctx, tx, order); err != nil {
				return err
			}
		case EffectRestoreStock:
			if booked, err = s.restoreStock(ctx, tx, order); err != nil {
				return err
			}
		}
		if mutate != nil {
			if err := mutate(ctx, tx, &order, now); err != nil {
				return err
			}
		}
		order.Status = row.To
		order.UpdatedAt = now
		if err := tx.SaveStatus(ctx, order); err != nil {
			return fmt.Errorf("save order status: %w", err)
		}
		out = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.committed(ctx, actor, out, from, string(ev))
	s.observeStock(booked)
	return out, nil
}

// stockEntries counts the lot ledger entries a transition booked, per reason.
type stockEntries struct {
	reason inventory.Reason
	count  int
}

func (s *Service) deductStock(ctx context.Context, tx TxRepository, order Order) (stockEntries, error) {
	stock := tx.Stock()
	booked := stockEntries{reason: inventory.ReasonOutbound}
	for _, item := range sortedItems(order.Items) {
		allocations, err := s.allocator.Deduct(ctx, stock, order.OrderNumber, item.ProductID, item.Quantity)
		if err != nil {
			return stockEntries{}, err
		}
		booked.count += len(allocations)
	}
	return booked, nil
}

func (s *Service) restoreStock(ctx context.Context, tx TxRepository, order Order) (stockEntries, error) {
	stock := tx.Stock()
	booked := stockEntries{reason: inventory.ReasonReturn}
	for _, item := range sortedItems(order.Items) {
		credited, err := s.allocator.Restore(ctx, stock, order.OrderNumber, item.ProductID, item.Quantity)
		if err != nil {
			return stockEntries{}, err
		}
		booked.count += len(credited)
	}
	return booked, nil
}

func (s *Service) observeStock(booked stockEntries) {
	if s.metrics == nil {
		return
	}
	for range booked.count {
		s.metrics.ObserveAdjustment(string(booked.reason))
	}
}

func (s *Service) committed(ctx context.Context, actor shared.Principal, order Order, from Status, event string) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(event, string(order.Status))
	}
	s.logger.Info("order transition",
		slog.Int64("order_id", order.ID),
		slog.String("order_number", order.OrderNumber),
		slog.String("event", event),
		slog.String("from", string(from)),
		slog.String("to", string(order.Status)))
	if s.audit != nil && actor.IsStaff() {
		err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   "order." + event,
			Entity:   "order",
			EntityID: strconv.FormatInt(order.ID, 10),
			Meta:     map[string]any{"from": string(from), "to": string(order.Status)},
		})
		if err != nil {
			s.logger.Warn("audit order transition", slog.Any("error", err))
		}
	}
	if s.notifier != nil {
		s.notifier.OrderStatusChanged(ctx, StatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			ClientID:    order.ClientID,
			Event:       event,
			From:        from,
			To:          order.Status,
			TotalAmount: order.TotalAmount,
			At:          order.UpdatedAt,
		})
	}
}

func authorize(actor shared.Principal, required Actor) error {
	switch required {
	case ActorClient:
		if actor.IsClient() {
			return nil
		}
	case ActorStaff:
		if actor.IsStaff() {
			return nil
		}
	}
	return shared.Errorf(shared.ErrForbidden, "%s action", required)
}

func mergeItems(items []ItemInput) ([]ItemInput, error) {
	if len(items) == 0 {
		return nil, shared.Errorf(shared.ErrInvalidInput, "order needs at least one item")
	}
	merged := make([]ItemInput, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, item := range items {
		if item.ProductID <= 0 || item.Quantity <= 0 {
			return nil, shared.Errorf(shared.ErrInvalidInput, "product and positive quantity required")
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

func deliverySnapshot(requested *DeliveryInfo, defaults clients.DeliveryDefaults) DeliveryInfo {
	if requested != nil {
		return DeliveryInfo{
			ReceiverName:  strings.TrimSpace(requested.ReceiverName),
			ReceiverPhone: strings.TrimSpace(requested.ReceiverPhone),
			ZipCode:       strings.TrimSpace(requested.ZipCode),
			Address:       strings.TrimSpace(requested.Address),
			DetailAddress: strings.TrimSpace(requested.DetailAddress),
			Memo:          strings.TrimSpace(requested.Memo),
		}
	}
	return DeliveryInfo{
		ReceiverName:  defaults.ReceiverName,
		ReceiverPhone: defaults.ReceiverPhone,
		ZipCode:       defaults.ZipCode,
		Address:       defaults.Address,
		DetailAddress: defaults.DetailAddress,
		Memo:          defaults.Memo,
	}
}

func appendRejection(detail, reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "no reason given"
	}
	line := "[rejected] " + reason
	if strings.TrimSpace(detail) == "" {
		return line
	}
	return detail + "\n" + line
}

// sortedItems orders lines by product so concurrent shipments lock lots in the same order.
func sortedItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
