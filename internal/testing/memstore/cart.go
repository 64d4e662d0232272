package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/age-b2b/backoffice/internal/cart"
	"github.com/age-b2b/backoffice/internal/shared"
)

// CartRepo implements cart.Repository.
type CartRepo struct {
	s *Store
}

// Cart returns the cart repository view of the store.
func (s *Store) Cart() *CartRepo {
	return &CartRepo{s: s}
}

func (r *CartRepo) ListItems(_ context.Context, clientID int64) ([]cart.Item, error) {
	items := []cart.Item{}
	r.s.locked(func(d *data) {
		for _, item := range d.cart {
			if item.ClientID == clientID {
				items = append(items, item)
			}
		}
	})
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r *CartRepo) GetItem(_ context.Context, id int64) (cart.Item, error) {
	var (
		item cart.Item
		ok   bool
	)
	r.s.locked(func(d *data) { item, ok = d.cart[id] })
	if !ok {
		return cart.Item{}, shared.Errorf(shared.ErrNotFound, "cart item %d", id)
	}
	return item, nil
}

func (r *CartRepo) IncrementItem(_ context.Context, clientID, productID int64, at time.Time) (cart.Item, error) {
	var out cart.Item
	r.s.locked(func(d *data) {
		for id, item := range d.cart {
			if item.ClientID == clientID && item.ProductID == productID {
				item.Quantity++
				item.UpdatedAt = at
				d.cart[id] = item
				out = item
				return
			}
		}
		out = cart.Item{ID: d.next(), ClientID: clientID, ProductID: productID, Quantity: 1, CreatedAt: at, UpdatedAt: at}
		d.cart[out.ID] = out
	})
	return out, nil
}

func (r *CartRepo) SetQuantity(_ context.Context, id, quantity int64, at time.Time) (cart.Item, error) {
	var (
		item cart.Item
		ok   bool
	)
	r.s.locked(func(d *data) {
		item, ok = d.cart[id]
		if !ok {
			return
		}
		item.Quantity = quantity
		item.UpdatedAt = at
		d.cart[id] = item
	})
	if !ok {
		return cart.Item{}, shared.Errorf(shared.ErrNotFound, "cart item %d", id)
	}
	return item, nil
}

func (r *CartRepo) DeleteItem(_ context.Context, id int64) error {
	r.s.locked(func(d *data) { delete(d.cart, id) })
	return nil
}
