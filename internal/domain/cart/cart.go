package cart

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopcart/internal/domain/pricing"
	"github.com/xenking/shopcart/internal/domain/product"
)

var (
	// ErrNotFound is returned when the session has no active cart.
	ErrNotFound = errors.New("cart not found")
	// ErrNotActive is returned when mutating a cart that was already converted
	// or abandoned.
	ErrNotActive = errors.New("cart is not active")
	// ErrItemNotFound is returned when no line item matches the request.
	ErrItemNotFound = errors.New("item not found in cart")
)

// Status is the cart lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusConverted Status = "converted"
	StatusAbandoned Status = "abandoned"
)

// Item is one cart line: a product with a concrete variant selection.
// UnitPrice already includes every option adjustment.
type Item struct {
	ProductID        string                    `json:"product_id"`
	Quantity         int                       `json:"quantity"`
	UnitPrice        decimal.Decimal           `json:"unit_price"`
	SelectedVariants []product.SelectedVariant `json:"selected_variants"`
}

// LineTotal returns UnitPrice × Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the shopping cart of one session in one shop.
//
// Version is a compare-and-swap token owned by the repository: zero means the
// cart was never stored.
type Cart struct {
	ID             string
	ShopID         string
	SessionID      string
	UserID         string
	Items          []Item
	CouponID       string
	DiscountAmount decimal.Decimal
	Status         Status
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Totals is the price breakdown of a cart. Tax and shipping stay zero until
// checkout rates them against an address.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// Repository stores carts.
type Repository interface {
	// FindActive returns the active cart of the session, or (nil, nil).
	FindActive(ctx context.Context, shopID, sessionID string) (*Cart, error)
	// Save inserts a cart with Version 0 or updates one whose stored version
	// still equals Version. Version is advanced on success. A lost race
	// surfaces as txn.ErrConflict.
	Save(ctx context.Context, c *Cart) error
}

// New returns an empty active cart.
func New(id, shopID, sessionID, userID string, now time.Time) *Cart {
	return &Cart{
		ID:        id,
		ShopID:    shopID,
		SessionID: sessionID,
		UserID:    userID,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsEmpty reports whether the cart has no line items.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Subtotal returns Σ unit price × quantity.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.Items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// Totals computes the cart price breakdown. The total is not floored at zero:
// a discount larger than the subtotal yields a negative total.
func (c *Cart) Totals() Totals {
	subtotal := c.Subtotal()
	return Totals{
		Subtotal: subtotal,
		Discount: c.DiscountAmount,
		Tax:      decimal.Zero,
		Shipping: decimal.Zero,
		Total:    subtotal.Sub(c.DiscountAmount),
	}
}

// AddItem prices p under selected and merges the result into the cart. A line
// with the same product and the same selection set accumulates quantity and
// keeps its original unit price; the stock check covers the accumulated
// quantity.
func (c *Cart) AddItem(p *product.Product, qty int, selected []product.SelectedVariant) error {
	if c.Status != StatusActive {
		return ErrNotActive
	}
	if qty < 1 {
		return pricing.ErrInvalidQuantity
	}

	idx := c.find(p.ID, selected, true)
	total := qty
	if idx >= 0 {
		total += c.Items[idx].Quantity
	}

	price, err := pricing.UnitPrice(p, selected, total)
	if err != nil {
		return err
	}

	if idx >= 0 {
		c.Items[idx].Quantity = total
		return nil
	}
	c.Items = append(c.Items, Item{
		ProductID:        p.ID,
		Quantity:         qty,
		UnitPrice:        price,
		SelectedVariants: slices.Clone(selected),
	})
	return nil
}

// UpdateItem sets the quantity of a line of p. Quantity zero removes the line.
//
// When selected is non-empty the line with exactly that selection is updated
// and re-priced, which also re-checks stock. Otherwise the first line of p
// only has its quantity changed.
func (c *Cart) UpdateItem(p *product.Product, qty int, selected []product.SelectedVariant) error {
	if c.Status != StatusActive {
		return ErrNotActive
	}
	if qty < 0 {
		return pricing.ErrInvalidQuantity
	}

	withSelection := len(selected) > 0
	idx := c.find(p.ID, selected, withSelection)
	if idx < 0 {
		return ErrItemNotFound
	}

	if qty == 0 {
		c.Items = slices.Delete(c.Items, idx, idx+1)
		return nil
	}

	if withSelection {
		price, err := pricing.UnitPrice(p, selected, qty)
		if err != nil {
			return err
		}
		c.Items[idx].UnitPrice = price
		c.Items[idx].SelectedVariants = slices.Clone(selected)
	}
	c.Items[idx].Quantity = qty
	return nil
}

// RemoveItem drops the first line of the product.
func (c *Cart) RemoveItem(productID string) error {
	if c.Status != StatusActive {
		return ErrNotActive
	}
	idx := c.find(productID, nil, false)
	if idx < 0 {
		return ErrItemNotFound
	}
	c.Items = slices.Delete(c.Items, idx, idx+1)
	return nil
}

// Clear empties the cart and detaches its coupon.
func (c *Cart) Clear() error {
	if c.Status != StatusActive {
		return ErrNotActive
	}
	c.Items = nil
	c.DetachCoupon()
	return nil
}

// AttachCoupon records a coupon and the discount it grants.
func (c *Cart) AttachCoupon(couponID string, discount decimal.Decimal) error {
	if c.Status != StatusActive {
		return ErrNotActive
	}
	c.CouponID = couponID
	c.DiscountAmount = discount
	return nil
}

// DetachCoupon removes any coupon. It is a no-op on a cart without one.
func (c *Cart) DetachCoupon() {
	c.CouponID = ""
	c.DiscountAmount = decimal.Zero
}

// Convert moves an active cart to its terminal converted state.
func (c *Cart) Convert() error {
	if c.Status != StatusActive {
		return ErrNotActive
	}
	c.Status = StatusConverted
	c.Items = nil
	c.DetachCoupon()
	return nil
}

// Clone returns a deep copy of the cart.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = make([]Item, len(c.Items))
	for i, it := range c.Items {
		it.SelectedVariants = slices.Clone(it.SelectedVariants)
		cp.Items[i] = it
	}
	return &cp
}

func (c *Cart) find(productID string, selected []product.SelectedVariant, matchSelection bool) int {
	key := selectionKey(selected)
	for i, it := range c.Items {
		if it.ProductID != productID {
			continue
		}
		if !matchSelection || selectionKey(it.SelectedVariants) == key {
			return i
		}
	}
	return -1
}

// selectionKey normalizes a selection set so that order does not matter.
func selectionKey(selected []product.SelectedVariant) string {
	if len(selected) == 0 {
		return ""
	}
	parts := make([]string, len(selected))
	for i, sv := range selected {
		parts[i] = sv.Name + "\x00" + sv.Value
	}
	slices.Sort(parts)
	return strings.Join(parts, "\x01")
}
