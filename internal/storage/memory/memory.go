// Package memory implements every store in process memory.
//
// A transaction holds the store lock for its whole run and records an undo
// action for each write; when the transaction function fails the undo log is
// replayed in reverse, so partial checkouts never stay visible.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xenking/shopcart/internal/domain/auth"
	"github.com/xenking/shopcart/internal/domain/cart"
	"github.com/xenking/shopcart/internal/domain/checkout"
	"github.com/xenking/shopcart/internal/domain/coupon"
	"github.com/xenking/shopcart/internal/domain/order"
	"github.com/xenking/shopcart/internal/domain/payment"
	"github.com/xenking/shopcart/internal/domain/product"
)

// Store holds all entities behind one mutex.
type Store struct {
	mu       sync.Mutex
	products map[string]*product.Product
	carts    map[string]*cart.Cart
	coupons  map[string]*coupon.Coupon
	orders   map[string]*order.Order
	payments map[string]*payment.PaymentType
	admins   map[string]*auth.Admin
	sessions map[string]*auth.Session
	now      func() time.Time
}

var _ checkout.Transactor = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		products: map[string]*product.Product{},
		carts:    map[string]*cart.Cart{},
		coupons:  map[string]*coupon.Coupon{},
		orders:   map[string]*order.Order{},
		payments: map[string]*payment.PaymentType{},
		admins:   map[string]*auth.Admin{},
		sessions: map[string]*auth.Session{},
		now:      time.Now,
	}
}

// txLog collects undo actions of one transaction.
type txLog struct {
	undo []func()
}

func (l *txLog) record(fn func()) {
	if l != nil {
		l.undo = append(l.undo, fn)
	}
}

func (l *txLog) rollback() {
	for i := len(l.undo) - 1; i >= 0; i-- {
		l.undo[i]()
	}
	l.undo = nil
}

// lock acquires the store mutex unless the caller runs inside InTx, which
// already holds it.
func (s *Store) lock(tx *txLog) func() {
	if tx != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// InTx runs fn with exclusive access to the store and undoes its writes when
// fn fails.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, st checkout.Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txLog{}
	st := checkout.Stores{
		Products: &ProductRepository{s: s, tx: tx},
		Carts:    &CartRepository{s: s, tx: tx},
		Coupons:  &CouponRepository{s: s, tx: tx},
		Orders:   &OrderRepository{s: s, tx: tx},
	}
	if err := fn(ctx, st); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// Products returns the product store.
func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }

// Carts returns the cart store.
func (s *Store) Carts() *CartRepository { return &CartRepository{s: s} }

// Coupons returns the coupon store.
func (s *Store) Coupons() *CouponRepository { return &CouponRepository{s: s} }

// Orders returns the order store.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

// Payments returns the payment type store.
func (s *Store) Payments() *PaymentRepository { return &PaymentRepository{s: s} }

// Admins returns the admin store.
func (s *Store) Admins() *AdminRepository { return &AdminRepository{s: s} }

// Sessions returns the session store.
func (s *Store) Sessions() *SessionStore { return &SessionStore{s: s} }
