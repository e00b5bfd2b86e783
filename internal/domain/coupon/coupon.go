package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes DiscountValue percent off the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes DiscountValue off the subtotal.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrNotFound is returned when no active coupon with the code is valid
	// for the shop right now.
	ErrNotFound = errors.New("invalid or expired coupon")
	// ErrExpired is returned when a coupon attached to a cart is no longer
	// active or has left its validity window.
	ErrExpired = errors.New("coupon expired")
	// ErrUsageLimitReached is returned when a coupon has no uses left.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrMinOrderNotMet is matched by every *MinOrderError.
	ErrMinOrderNotMet = errors.New("minimum order amount not met")
	// ErrCartEmpty is returned when applying a coupon to a cart without items.
	ErrCartEmpty = errors.New("cart is empty")
)

// MinOrderError carries the minimum subtotal a coupon requires.
type MinOrderError struct {
	Min decimal.Decimal
}

func (e *MinOrderError) Error() string {
	return fmt.Sprintf("minimum order amount of %s required for this coupon", e.Min.StringFixed(2))
}

// Is makes every MinOrderError match ErrMinOrderNotMet.
func (e *MinOrderError) Is(target error) bool {
	return target == ErrMinOrderNotMet
}

// Coupon is a shop promotion.
//
// A nil MaxDiscountAmount means the discount is uncapped and a nil UsageLimit
// means unlimited uses.
type Coupon struct {
	ID                string
	ShopID            string
	Code              string
	Description       string
	DiscountType      DiscountType
	DiscountValue     decimal.Decimal
	MinOrderAmount    decimal.Decimal
	MaxDiscountAmount *decimal.Decimal
	StartDate         time.Time
	EndDate           time.Time
	IsActive          bool
	UsageLimit        *int
	UsedCount         int
}

// ValidAt reports whether the coupon is active and inside its window.
func (c *Coupon) ValidAt(now time.Time) bool {
	return c.IsActive && !now.Before(c.StartDate) && !now.After(c.EndDate)
}

// Exhausted reports whether a usage limit is set and already reached.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit
}

// NormalizeCode returns the canonical stored form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides coupon lookups and the conditional usage write.
type Repository interface {
	// FindValid returns the active coupon of the shop with the code whose
	// window contains now, or ErrNotFound.
	FindValid(ctx context.Context, shopID, code string, now time.Time) (*Coupon, error)
	// GetByID returns a coupon regardless of its state, or ErrNotFound.
	GetByID(ctx context.Context, shopID, id string) (*Coupon, error)
	// IncrementUsage adds one use only while the usage limit allows it and
	// reports whether the write happened.
	IncrementUsage(ctx context.Context, id string) (bool, error)
}
