package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/shopcart/internal/domain/coupon"
	"github.com/xenking/shopcart/internal/domain/product"
	"github.com/xenking/shopcart/internal/domain/txn"
)

// Identity names the cart owner. The session is resolved before the service
// is called.
type Identity struct {
	ShopID    string
	SessionID string
	UserID    string
}

// CouponEvaluator validates a coupon code against a subtotal.
type CouponEvaluator interface {
	Apply(ctx context.Context, shopID, code string, subtotal decimal.Decimal, itemCount int) (*coupon.Coupon, decimal.Decimal, error)
	Revalidate(ctx context.Context, shopID, couponID string, subtotal decimal.Decimal) (*coupon.Coupon, decimal.Decimal, error)
}

// Service runs cart operations as load, mutate, save cycles. A save that
// loses a version race restarts the cycle.
type Service struct {
	products product.Repository
	carts    Repository
	coupons  CouponEvaluator
	retry    txn.RetryPolicy
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(products product.Repository, carts Repository, coupons CouponEvaluator) *Service {
	return &Service{
		products: products,
		carts:    carts,
		coupons:  coupons,
		retry:    txn.DefaultPolicy,
		now:      time.Now,
	}
}

// Get returns the active cart, or an unsaved empty one when the session has
// none yet.
func (s *Service) Get(ctx context.Context, id Identity) (*Cart, error) {
	c, err := s.carts.FindActive(ctx, id.ShopID, id.SessionID)
	if err != nil {
		return nil, errors.Wrap(err, "find cart")
	}
	if c == nil {
		return New("", id.ShopID, id.SessionID, id.UserID, s.now()), nil
	}
	return c, nil
}

// AddItem adds qty units of the product under selected, creating the cart on
// first use.
func (s *Service) AddItem(ctx context.Context, id Identity, productID string, qty int, selected []product.SelectedVariant) (*Cart, error) {
	return s.mutate(ctx, id, true, func(ctx context.Context, c *Cart) error {
		p, err := s.product(ctx, id.ShopID, productID)
		if err != nil {
			return err
		}
		if err := c.AddItem(p, qty, selected); err != nil {
			return err
		}
		return s.refreshDiscount(ctx, c)
	})
}

// UpdateItem sets the quantity of a product line; see Cart.UpdateItem.
func (s *Service) UpdateItem(ctx context.Context, id Identity, productID string, qty int, selected []product.SelectedVariant) (*Cart, error) {
	return s.mutate(ctx, id, false, func(ctx context.Context, c *Cart) error {
		p, err := s.product(ctx, id.ShopID, productID)
		if err != nil {
			return err
		}
		if err := c.UpdateItem(p, qty, selected); err != nil {
			return err
		}
		return s.refreshDiscount(ctx, c)
	})
}

// RemoveItem drops the first line of the product.
func (s *Service) RemoveItem(ctx context.Context, id Identity, productID string) (*Cart, error) {
	return s.mutate(ctx, id, false, func(ctx context.Context, c *Cart) error {
		if err := c.RemoveItem(productID); err != nil {
			return err
		}
		return s.refreshDiscount(ctx, c)
	})
}

// Clear empties the cart and detaches its coupon.
func (s *Service) Clear(ctx context.Context, id Identity) (*Cart, error) {
	return s.mutate(ctx, id, false, func(_ context.Context, c *Cart) error {
		return c.Clear()
	})
}

// ApplyCoupon validates code against the cart subtotal and attaches it.
// A rejected coupon leaves the cart unchanged.
func (s *Service) ApplyCoupon(ctx context.Context, id Identity, code string) (*Cart, error) {
	c, err := s.mutate(ctx, id, false, func(ctx context.Context, c *Cart) error {
		cp, discount, err := s.coupons.Apply(ctx, id.ShopID, code, c.Subtotal(), len(c.Items))
		if err != nil {
			return err
		}
		return c.AttachCoupon(cp.ID, discount)
	})
	if errors.Is(err, ErrNotFound) {
		// No cart yet means nothing to discount.
		return nil, coupon.ErrCartEmpty
	}
	return c, err
}

// RemoveCoupon detaches any coupon. It succeeds on a cart without a coupon
// and on a session without a cart.
func (s *Service) RemoveCoupon(ctx context.Context, id Identity) (*Cart, error) {
	c, err := s.mutate(ctx, id, false, func(_ context.Context, c *Cart) error {
		c.DetachCoupon()
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return New("", id.ShopID, id.SessionID, id.UserID, s.now()), nil
	}
	return c, err
}

func (s *Service) product(ctx context.Context, shopID, productID string) (*product.Product, error) {
	p, err := s.products.GetByID(ctx, shopID, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrap(err, "get product")
	}
	return p, nil
}

// refreshDiscount re-derives the discount of an attached coupon from the
// current subtotal. A coupon the cart no longer qualifies for is detached, as
// is any coupon of an emptied cart.
func (s *Service) refreshDiscount(ctx context.Context, c *Cart) error {
	if c.CouponID == "" {
		return nil
	}
	if c.IsEmpty() {
		c.DetachCoupon()
		return nil
	}

	_, discount, err := s.coupons.Revalidate(ctx, c.ShopID, c.CouponID, c.Subtotal())
	switch {
	case err == nil:
		c.DiscountAmount = discount
	case errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrUsageLimitReached),
		errors.Is(err, coupon.ErrMinOrderNotMet):
		zctx.From(ctx).Debug("Detaching coupon",
			zap.String("cart_id", c.ID),
			zap.String("coupon_id", c.CouponID),
			zap.Error(err),
		)
		c.DetachCoupon()
	default:
		return errors.Wrap(err, "revalidate coupon")
	}
	return nil
}

func (s *Service) mutate(ctx context.Context, id Identity, create bool, fn func(ctx context.Context, c *Cart) error) (*Cart, error) {
	return txn.Retry(ctx, s.retry, func(ctx context.Context) (*Cart, error) {
		c, err := s.carts.FindActive(ctx, id.ShopID, id.SessionID)
		if err != nil {
			return nil, errors.Wrap(err, "find cart")
		}
		if c == nil {
			if !create {
				return nil, ErrNotFound
			}
			c = New(uuid.NewString(), id.ShopID, id.SessionID, id.UserID, s.now())
		}
		if c.UserID == "" && id.UserID != "" {
			c.UserID = id.UserID
		}

		if err := fn(ctx, c); err != nil {
			return nil, err
		}

		c.UpdatedAt = s.now()
		if err := s.carts.Save(ctx, c); err != nil {
			if errors.Is(err, txn.ErrConflict) {
				zctx.From(ctx).Debug("Cart version conflict, retrying",
					zap.String("cart_id", c.ID),
					zap.Int64("version", c.Version),
				)
				return nil, txn.ErrConflict
			}
			return nil, errors.Wrap(err, "save cart")
		}
		return c, nil
	})
}
