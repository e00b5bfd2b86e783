package memory

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/shopcart/internal/domain/cart"
	"github.com/xenking/shopcart/internal/domain/order"
	"github.com/xenking/shopcart/internal/domain/txn"
)

// CartRepository is the in-memory cart store.
type CartRepository struct {
	s  *Store
	tx *txLog
}

var _ cart.Repository = (*CartRepository)(nil)

func (r *CartRepository) FindActive(_ context.Context, shopID, sessionID string) (*cart.Cart, error) {
	defer r.s.lock(r.tx)()
	for _, c := range r.s.carts {
		if c.ShopID == shopID && c.SessionID == sessionID && c.Status == cart.StatusActive {
			return c.Clone(), nil
		}
	}
	return nil, nil
}

func (r *CartRepository) Save(_ context.Context, c *cart.Cart) error {
	defer r.s.lock(r.tx)()

	prev, exists := r.s.carts[c.ID]
	switch {
	case c.Version == 0:
		if exists {
			return txn.ErrConflict
		}
		for _, other := range r.s.carts {
			if other.ShopID == c.ShopID && other.SessionID == c.SessionID && other.Status == cart.StatusActive {
				return txn.ErrConflict
			}
		}
	case !exists || prev.Version != c.Version:
		return txn.ErrConflict
	}

	c.Version++
	r.s.carts[c.ID] = c.Clone()

	id, version := c.ID, c.Version
	r.tx.record(func() {
		if prev == nil {
			delete(r.s.carts, id)
		} else {
			r.s.carts[id] = prev
		}
		c.Version = version - 1
	})
	return nil
}

// OrderRepository is the in-memory order store.
type OrderRepository struct {
	s  *Store
	tx *txLog
}

var _ order.Repository = (*OrderRepository)(nil)

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Items = make([]order.LineItem, len(o.Items))
	for i, it := range o.Items {
		it.SelectedVariants = slices.Clone(it.SelectedVariants)
		cp.Items[i] = it
	}
	return &cp
}

func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	defer r.s.lock(r.tx)()
	if _, ok := r.s.orders[o.ID]; ok {
		return errors.Errorf("order %s already exists", o.ID)
	}
	r.s.orders[o.ID] = cloneOrder(o)
	id := o.ID
	r.tx.record(func() { r.delete(id) })
	return nil
}

func (r *OrderRepository) Delete(_ context.Context, id string) error {
	defer r.s.lock(r.tx)()
	r.delete(id)
	return nil
}

func (r *OrderRepository) delete(id string) {
	delete(r.s.orders, id)
}

func (r *OrderRepository) GetByID(_ context.Context, shopID, id string) (*order.Order, error) {
	defer r.s.lock(r.tx)()
	o, ok := r.s.orders[id]
	if !ok || o.ShopID != shopID {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *OrderRepository) List(_ context.Context, f order.Filter) ([]order.Order, int, error) {
	defer r.s.lock(r.tx)()

	var matched []*order.Order
	for _, o := range r.s.orders {
		if o.ShopID != f.ShopID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && o.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && o.CreatedAt.After(f.To) {
			continue
		}
		matched = append(matched, o)
	}
	slices.SortFunc(matched, func(a, b *order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})

	total := len(matched)
	start := min(max(f.Offset(), 0), total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}

	out := make([]order.Order, 0, end-start)
	for _, o := range matched[start:end] {
		out = append(out, *cloneOrder(o))
	}
	return out, total, nil
}

func (r *OrderRepository) UpdateStatus(_ context.Context, shopID, id string, from, next order.Status, now time.Time) (bool, error) {
	defer r.s.lock(r.tx)()
	o, ok := r.s.orders[id]
	if !ok || o.ShopID != shopID || o.Status != from {
		return false, nil
	}
	prevUpdated := o.UpdatedAt
	o.Status = next
	o.UpdatedAt = now
	r.tx.record(func() {
		o.Status = from
		o.UpdatedAt = prevUpdated
	})
	return true, nil
}
