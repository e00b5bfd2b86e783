package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluator validates coupons against a cart subtotal and computes the
// discount they grant. It never changes usage counters.
type Evaluator struct {
	repo Repository
	now  func() time.Time
}

// NewEvaluator creates an Evaluator backed by repo.
func NewEvaluator(repo Repository) *Evaluator {
	return &Evaluator{repo: repo, now: time.Now}
}

// With returns a copy of the Evaluator reading from repo, typically a
// transaction-scoped repository.
func (e *Evaluator) With(repo Repository) *Evaluator {
	cp := *e
	cp.repo = repo
	return &cp
}

// Apply looks up code for the shop and returns the coupon with the discount
// it grants on subtotal.
func (e *Evaluator) Apply(ctx context.Context, shopID, code string, subtotal decimal.Decimal, itemCount int) (*Coupon, decimal.Decimal, error) {
	if itemCount == 0 {
		return nil, decimal.Zero, ErrCartEmpty
	}

	c, err := e.repo.FindValid(ctx, shopID, NormalizeCode(code), e.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, decimal.Zero, ErrNotFound
		}
		return nil, decimal.Zero, errors.Wrap(err, "find coupon")
	}
	if c.Exhausted() {
		return nil, decimal.Zero, ErrUsageLimitReached
	}
	if subtotal.LessThan(c.MinOrderAmount) {
		return nil, decimal.Zero, &MinOrderError{Min: c.MinOrderAmount}
	}

	return c, Discount(c, subtotal), nil
}

// Revalidate re-checks a coupon already attached to a cart against the live
// subtotal and returns the discount it grants now.
func (e *Evaluator) Revalidate(ctx context.Context, shopID, couponID string, subtotal decimal.Decimal) (*Coupon, decimal.Decimal, error) {
	c, err := e.repo.GetByID(ctx, shopID, couponID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, decimal.Zero, ErrExpired
		}
		return nil, decimal.Zero, errors.Wrap(err, "get coupon")
	}
	if !c.ValidAt(e.now()) {
		return nil, decimal.Zero, ErrExpired
	}
	if c.Exhausted() {
		return nil, decimal.Zero, ErrUsageLimitReached
	}
	if subtotal.LessThan(c.MinOrderAmount) {
		return nil, decimal.Zero, &MinOrderError{Min: c.MinOrderAmount}
	}

	return c, Discount(c, subtotal), nil
}

// Discount computes the discount c grants on subtotal. Percentage discounts
// are rounded to cents. A set MaxDiscountAmount caps the result.
func Discount(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		d = subtotal.Mul(c.DiscountValue).Div(hundred).Round(2)
	default:
		d = c.DiscountValue
	}
	if c.MaxDiscountAmount != nil && d.GreaterThan(*c.MaxDiscountAmount) {
		d = *c.MaxDiscountAmount
	}
	return d
}
