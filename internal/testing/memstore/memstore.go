// Package memstore is an in-memory implementation of the repository ports used by service tests.
// Transactions are serialized by a single mutex and rolled back from a snapshot on error.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/age-b2b/backoffice/internal/cart"
	"github.com/age-b2b/backoffice/internal/catalog"
	"github.com/age-b2b/backoffice/internal/clients"
	"github.com/age-b2b/backoffice/internal/inventory"
	"github.com/age-b2b/backoffice/internal/orders"
	"github.com/age-b2b/backoffice/internal/shared"
)

type data struct {
	products    map[int64]catalog.Product
	clients     map[int64]clients.Client
	lots        map[int64]inventory.Lot
	logs        []inventory.AdjustmentLog
	allocations []inventory.Allocation
	orders      map[int64]orders.Order
	shipments   map[int64]orders.Shipment
	cart        map[int64]cart.Item
	seq         int64
}

func (d *data) next() int64 {
	d.seq++
	return d.seq
}

func (d *data) clone() *data {
	c := &data{
		products:    make(map[int64]catalog.Product, len(d.products)),
		clients:     make(map[int64]clients.Client, len(d.clients)),
		lots:        make(map[int64]inventory.Lot, len(d.lots)),
		logs:        append([]inventory.AdjustmentLog(nil), d.logs...),
		allocations: append([]inventory.Allocation(nil), d.allocations...),
		orders:      make(map[int64]orders.Order, len(d.orders)),
		shipments:   make(map[int64]orders.Shipment, len(d.shipments)),
		cart:        make(map[int64]cart.Item, len(d.cart)),
		seq:         d.seq,
	}
	for k, v := range d.products {
		c.products[k] = v
	}
	for k, v := range d.clients {
		c.clients[k] = v
	}
	for k, v := range d.lots {
		c.lots[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = cloneOrder(v)
	}
	for k, v := range d.shipments {
		c.shipments[k] = v
	}
	for k, v := range d.cart {
		c.cart[k] = v
	}
	return c
}

func cloneOrder(o orders.Order) orders.Order {
	o.Items = append([]orders.LineItem(nil), o.Items...)
	o.Shipment = nil
	return o
}

// Store holds every table the services touch.
type Store struct {
	mu sync.Mutex
	d  *data

	// FailShipmentInsert, when set, is returned by the next InsertShipment call.
	FailShipmentInsert error
}

// New returns an empty store.
func New() *Store {
	return &Store{d: &data{
		products:  map[int64]catalog.Product{},
		clients:   map[int64]clients.Client{},
		lots:      map[int64]inventory.Lot{},
		orders:    map[int64]orders.Order{},
		shipments: map[int64]orders.Shipment{},
		cart:      map[int64]cart.Item{},
	}}
}

func (s *Store) withTx(ctx context.Context, fn func(*data) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.d.clone()
	if err := fn(s.d); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

func (s *Store) locked(fn func(*data)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.d)
}

// ============================================================================
// SEEDING
// ============================================================================

// AddProduct stores p, assigning an id when zero.
func (s *Store) AddProduct(p catalog.Product) catalog.Product {
	s.locked(func(d *data) {
		if p.ID == 0 {
			p.ID = d.next()
		}
		if p.Status == "" {
			p.Status = catalog.StatusOnSale
		}
		d.products[p.ID] = p
	})
	return p
}

// SetProductStatus changes a product's sale status.
func (s *Store) SetProductStatus(id int64, status catalog.Status) {
	s.locked(func(d *data) {
		p := d.products[id]
		p.Status = status
		d.products[id] = p
	})
}

// AddClient stores c, assigning an id when zero.
func (s *Store) AddClient(c clients.Client) clients.Client {
	s.locked(func(d *data) {
		if c.ID == 0 {
			c.ID = d.next()
		}
		d.clients[c.ID] = c
	})
	return c
}

// SetLotQuantity overwrites a lot quantity without writing the ledger, simulating drift.
func (s *Store) SetLotQuantity(id, quantity int64) {
	s.locked(func(d *data) {
		lot := d.lots[id]
		lot.Quantity = quantity
		d.lots[id] = lot
	})
}

// ============================================================================
// INSPECTION
// ============================================================================

// Lots returns every lot of product ordered by id.
func (s *Store) Lots(productID int64) []inventory.Lot {
	var out []inventory.Lot
	s.locked(func(d *data) { out = productLots(d, productID) })
	return out
}

// Logs returns the ledger of a lot.
func (s *Store) Logs(lotID int64) []inventory.AdjustmentLog {
	var out []inventory.AdjustmentLog
	s.locked(func(d *data) { out = lotLogs(d, lotID) })
	return out
}

// Allocations returns the allocation trace of an order reference.
func (s *Store) Allocations(orderRef string) []inventory.Allocation {
	var out []inventory.Allocation
	s.locked(func(d *data) {
		for _, a := range d.allocations {
			if a.OrderRef == orderRef {
				out = append(out, a)
			}
		}
	})
	return out
}

// CartItems returns a client's cart lines.
func (s *Store) CartItems(clientID int64) []cart.Item {
	items, _ := s.Cart().ListItems(context.Background(), clientID)
	return items
}

// ShipmentCount reports how many shipments exist.
func (s *Store) ShipmentCount() int {
	var n int
	s.locked(func(d *data) { n = len(d.shipments) })
	return n
}

// ============================================================================
// CATALOG / CLIENT RESOLVERS
// ============================================================================

func (s *Store) ResolveProduct(_ context.Context, id int64) (catalog.Product, error) {
	var (
		p  catalog.Product
		ok bool
	)
	s.locked(func(d *data) { p, ok = d.products[id] })
	if !ok {
		return catalog.Product{}, shared.Errorf(shared.ErrUnknownProduct, "product %d", id)
	}
	return p, nil
}

func (s *Store) ResolveProducts(ctx context.Context, ids []int64) (map[int64]catalog.Product, error) {
	out := make(map[int64]catalog.Product, len(ids))
	for _, id := range ids {
		p, err := s.ResolveProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = p
	}
	return out, nil
}

func (s *Store) ResolveClient(_ context.Context, id int64) (clients.Client, error) {
	var (
		c  clients.Client
		ok bool
	)
	s.locked(func(d *data) { c, ok = d.clients[id] })
	if !ok {
		return clients.Client{}, shared.Errorf(shared.ErrUnknownClient, "client %d", id)
	}
	return c, nil
}

func productLots(d *data, productID int64) []inventory.Lot {
	var out []inventory.Lot
	for _, lot := range d.lots {
		if lot.ProductID == productID {
			out = append(out, lot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func lotLogs(d *data, lotID int64) []inventory.AdjustmentLog {
	out := []inventory.AdjustmentLog{}
	for _, entry := range d.logs {
		if entry.LotID == lotID {
			out = append(out, entry)
		}
	}
	return out
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint, Message: "duplicate key value violates unique constraint"}
}

func page[T any](items []T, p, perPage int) []T {
	off := shared.Offset(p, perPage)
	_, perPage = shared.NormalizePage(p, perPage)
	if off >= len(items) {
		return []T{}
	}
	end := min(off+perPage, len(items))
	return items[off:end]
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
