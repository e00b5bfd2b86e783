package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/shopcart/internal/domain/auth"
	"github.com/xenking/shopcart/internal/domain/coupon"
	"github.com/xenking/shopcart/internal/domain/payment"
	"github.com/xenking/shopcart/internal/domain/product"
)

// ProductRepository is the in-memory product store.
type ProductRepository struct {
	s  *Store
	tx *txLog
}

var _ product.Repository = (*ProductRepository)(nil)

func cloneProduct(p *product.Product) *product.Product {
	cp := *p
	cp.Variants = make([]product.Variant, len(p.Variants))
	for i, v := range p.Variants {
		v.Options = slices.Clone(v.Options)
		cp.Variants[i] = v
	}
	return &cp
}

// Put stores a copy of p, replacing any product with the same id.
func (r *ProductRepository) Put(p *product.Product) {
	defer r.s.lock(r.tx)()
	r.s.products[p.ID] = cloneProduct(p)
}

func (r *ProductRepository) GetByID(_ context.Context, shopID, id string) (*product.Product, error) {
	defer r.s.lock(r.tx)()
	p, ok := r.s.products[id]
	if !ok || p.ShopID != shopID || p.Status != product.StatusActive {
		return nil, product.ErrNotFound
	}
	return cloneProduct(p), nil
}

// Stock returns the current quantity of the product, or of one option when
// variant is set. It reports -1 for unknown targets.
func (r *ProductRepository) Stock(productID, variant, option string) int {
	defer r.s.lock(r.tx)()
	q := r.stock(productID, variant, option)
	if q == nil {
		return -1
	}
	return *q
}

func (r *ProductRepository) stock(productID, variant, option string) *int {
	p, ok := r.s.products[productID]
	if !ok {
		return nil
	}
	if variant == "" {
		return &p.Quantity
	}
	v, ok := p.Variant(variant)
	if !ok {
		return nil
	}
	o, ok := v.Option(option)
	if !ok {
		return nil
	}
	return &o.Quantity
}

func (r *ProductRepository) DecrementStock(_ context.Context, productID, variant, option string, qty int) (bool, error) {
	defer r.s.lock(r.tx)()
	q := r.stock(productID, variant, option)
	if q == nil || *q < qty {
		return false, nil
	}
	*q -= qty
	r.tx.record(func() { *q += qty })
	return true, nil
}

// CouponRepository is the in-memory coupon store.
type CouponRepository struct {
	s  *Store
	tx *txLog
}

var _ coupon.Repository = (*CouponRepository)(nil)

func cloneCoupon(c *coupon.Coupon) *coupon.Coupon {
	cp := *c
	if c.MaxDiscountAmount != nil {
		v := *c.MaxDiscountAmount
		cp.MaxDiscountAmount = &v
	}
	if c.UsageLimit != nil {
		v := *c.UsageLimit
		cp.UsageLimit = &v
	}
	return &cp
}

// Put stores a copy of c with its code normalized.
func (r *CouponRepository) Put(c *coupon.Coupon) {
	defer r.s.lock(r.tx)()
	cp := cloneCoupon(c)
	cp.Code = coupon.NormalizeCode(cp.Code)
	r.s.coupons[cp.ID] = cp
}

func (r *CouponRepository) FindValid(_ context.Context, shopID, code string, now time.Time) (*coupon.Coupon, error) {
	defer r.s.lock(r.tx)()
	code = coupon.NormalizeCode(code)
	for _, c := range r.s.coupons {
		if c.ShopID == shopID && c.Code == code && c.ValidAt(now) {
			return cloneCoupon(c), nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (r *CouponRepository) GetByID(_ context.Context, shopID, id string) (*coupon.Coupon, error) {
	defer r.s.lock(r.tx)()
	c, ok := r.s.coupons[id]
	if !ok || c.ShopID != shopID {
		return nil, coupon.ErrNotFound
	}
	return cloneCoupon(c), nil
}

func (r *CouponRepository) IncrementUsage(_ context.Context, id string) (bool, error) {
	defer r.s.lock(r.tx)()
	c, ok := r.s.coupons[id]
	if !ok || c.Exhausted() {
		return false, nil
	}
	c.UsedCount++
	r.tx.record(func() { c.UsedCount-- })
	return true, nil
}

// PaymentRepository is the in-memory payment type store.
type PaymentRepository struct {
	s *Store
}

var _ payment.Repository = (*PaymentRepository)(nil)

// Put stores a copy of pt.
func (r *PaymentRepository) Put(pt *payment.PaymentType) {
	defer r.s.lock(nil)()
	cp := *pt
	r.s.payments[pt.ID] = &cp
}

func (r *PaymentRepository) GetActive(_ context.Context, shopID, id string) (*payment.PaymentType, error) {
	defer r.s.lock(nil)()
	pt, ok := r.s.payments[id]
	if !ok || pt.ShopID != shopID || !pt.IsActive {
		return nil, payment.ErrNotFound
	}
	cp := *pt
	return &cp, nil
}

// AdminRepository is the in-memory admin store.
type AdminRepository struct {
	s *Store
}

var _ auth.AdminRepository = (*AdminRepository)(nil)

// Put stores a copy of a with its email lower-cased.
func (r *AdminRepository) Put(a *auth.Admin) {
	defer r.s.lock(nil)()
	cp := *a
	cp.Email = strings.ToLower(cp.Email)
	r.s.admins[a.ID] = &cp
}

func (r *AdminRepository) GetByEmail(_ context.Context, shopID, email string) (*auth.Admin, error) {
	defer r.s.lock(nil)()
	for _, a := range r.s.admins {
		if a.ShopID == shopID && a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, auth.ErrAdminNotFound
}

func (r *AdminRepository) GetByID(_ context.Context, id string) (*auth.Admin, error) {
	defer r.s.lock(nil)()
	a, ok := r.s.admins[id]
	if !ok {
		return nil, auth.ErrAdminNotFound
	}
	cp := *a
	return &cp, nil
}

// SessionStore is the in-memory session store.
type SessionStore struct {
	s *Store
}

var _ auth.SessionStore = (*SessionStore)(nil)

func (r *SessionStore) Create(_ context.Context, sess *auth.Session) error {
	defer r.s.lock(nil)()
	if _, ok := r.s.sessions[sess.ID]; ok {
		return errors.Errorf("session %s already exists", sess.ID)
	}
	cp := *sess
	r.s.sessions[sess.ID] = &cp
	return nil
}

func (r *SessionStore) Get(_ context.Context, id string) (*auth.Session, error) {
	defer r.s.lock(nil)()
	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, auth.ErrSessionExpired
	}
	if !r.s.now().Before(sess.ExpiresAt) {
		delete(r.s.sessions, id)
		return nil, auth.ErrSessionExpired
	}
	cp := *sess
	return &cp, nil
}
