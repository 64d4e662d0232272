package memstore

import (
	"context"
	"sort"
	"strings"

	"github.com/age-b2b/backoffice/internal/inventory"
	"github.com/age-b2b/backoffice/internal/orders"
	"github.com/age-b2b/backoffice/internal/shared"
)

// OrdersRepo implements orders.RepositoryPort.
type OrdersRepo struct {
	s *Store
}

// Orders returns the order repository view of the store.
func (s *Store) Orders() *OrdersRepo {
	return &OrdersRepo{s: s}
}

func (r *OrdersRepo) WithTx(ctx context.Context, fn func(context.Context, orders.TxRepository) error) error {
	return r.s.withTx(ctx, func(d *data) error {
		return fn(ctx, &orderTx{s: r.s, d: d})
	})
}

func (r *OrdersRepo) GetOrder(_ context.Context, id int64) (orders.Order, error) {
	var (
		order orders.Order
		ok    bool
	)
	r.s.locked(func(d *data) {
		order, ok = d.orders[id]
		if !ok {
			return
		}
		order = cloneOrder(order)
		if shipment, found := d.shipments[id]; found {
			order.Shipment = &shipment
		}
	})
	if !ok {
		return orders.Order{}, shared.Errorf(shared.ErrUnknownOrder, "order %d", id)
	}
	return order, nil
}

func (r *OrdersRepo) ListOrders(_ context.Context, filter orders.ListFilter) ([]orders.Order, int, error) {
	var all []orders.Order
	r.s.locked(func(d *data) {
		for _, o := range d.orders {
			if filter.ClientID != 0 && o.ClientID != filter.ClientID {
				continue
			}
			if filter.Status != "" && o.Status != filter.Status {
				continue
			}
			if !filter.From.IsZero() && o.CreatedAt.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && !o.CreatedAt.Before(filter.To) {
				continue
			}
			o = cloneOrder(o)
			o.Items = nil
			all = append(all, o)
		}
	})
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	return page(all, filter.Page, filter.PerPage), len(all), nil
}

func (r *OrdersRepo) ListShipments(_ context.Context, filter orders.ShipmentFilter) ([]orders.ShipmentView, int, error) {
	keyword := strings.TrimSpace(filter.Keyword)
	var all []orders.ShipmentView
	r.s.locked(func(d *data) {
		for _, s := range d.shipments {
			o := d.orders[s.OrderID]
			if keyword != "" && !containsFold(s.ShipmentNumber, keyword) && !containsFold(s.TrackingNumber, keyword) && !containsFold(o.OrderNumber, keyword) {
				continue
			}
			view := orders.ShipmentView{Shipment: s, OrderNumber: o.OrderNumber, ClientID: o.ClientID, ItemCount: len(o.Items)}
			for _, item := range o.Items {
				view.TotalQuantity += item.Quantity
			}
			all = append(all, view)
		}
	})
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return page(all, filter.Page, filter.PerPage), len(all), nil
}

// orderTx implements orders.TxRepository over the locked data.
type orderTx struct {
	s *Store
	d *data
}

func (t *orderTx) Stock() inventory.TxRepository {
	return &stockTx{d: t.d}
}

func (t *orderTx) LockOrder(_ context.Context, id int64) (orders.Order, error) {
	order, ok := t.d.orders[id]
	if !ok {
		return orders.Order{}, shared.Errorf(shared.ErrUnknownOrder, "order %d", id)
	}
	return cloneOrder(order), nil
}

func (t *orderTx) InsertOrder(_ context.Context, order orders.Order) (orders.Order, error) {
	for _, existing := range t.d.orders {
		if existing.OrderNumber == order.OrderNumber {
			return orders.Order{}, uniqueViolation("orders_order_number_key")
		}
	}
	order.ID = t.d.next()
	order.Items = append([]orders.LineItem(nil), order.Items...)
	for i := range order.Items {
		order.Items[i].ID = t.d.next()
		order.Items[i].OrderID = order.ID
	}
	t.d.orders[order.ID] = cloneOrder(order)
	return order, nil
}

func (t *orderTx) SaveStatus(_ context.Context, order orders.Order) error {
	current, ok := t.d.orders[order.ID]
	if !ok {
		return shared.Errorf(shared.ErrUnknownOrder, "order %d", order.ID)
	}
	items := current.Items
	current = cloneOrder(order)
	current.Items = items
	t.d.orders[order.ID] = current
	return nil
}

func (t *orderTx) GetShipment(_ context.Context, orderID int64) (orders.Shipment, bool, error) {
	s, ok := t.d.shipments[orderID]
	return s, ok, nil
}

func (t *orderTx) InsertShipment(_ context.Context, s orders.Shipment) (orders.Shipment, error) {
	if err := t.s.FailShipmentInsert; err != nil {
		t.s.FailShipmentInsert = nil
		return orders.Shipment{}, err
	}
	if _, exists := t.d.shipments[s.OrderID]; exists {
		return orders.Shipment{}, uniqueViolation("shipments_order_id_key")
	}
	s.ID = t.d.next()
	t.d.shipments[s.OrderID] = s
	return s, nil
}

func (t *orderTx) DeleteShipment(_ context.Context, orderID int64) error {
	delete(t.d.shipments, orderID)
	return nil
}

func (t *orderTx) RemoveCartProducts(_ context.Context, clientID int64, productIDs []int64) error {
	remove := make(map[int64]bool, len(productIDs))
	for _, id := range productIDs {
		remove[id] = true
	}
	for id, item := range t.d.cart {
		if item.ClientID == clientID && remove[item.ProductID] {
			delete(t.d.cart, id)
		}
	}
	return nil
}
