package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a product does not exist in the shop or is
	// not available for sale.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is matched by every *InsufficientStockError.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Status enumerates product availability.
type Status string

const (
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusOutOfStock Status = "out_of_stock"
)

// Product is a catalog item. A product either has no variants, in which case
// Quantity is its stock, or one or more variant groups whose options are
// stocked independently.
type Product struct {
	ID       string
	ShopID   string
	Name     string
	Price    decimal.Decimal
	Quantity int
	Status   Status
	Variants []Variant
}

// Variant is a named customization axis such as "Color".
type Variant struct {
	Name    string
	Options []Option
}

// Option is one concrete choice within a Variant. It carries its own stock
// and a price delta relative to the product base price.
type Option struct {
	Name            string
	PriceAdjustment decimal.Decimal
	Quantity        int
	SKU             string
}

// SelectedVariant is a customer's choice of one option in a variant group.
type SelectedVariant struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HasVariants reports whether stock is tracked per option.
func (p *Product) HasVariants() bool {
	return len(p.Variants) > 0
}

// Variant returns the variant group with the given name.
func (p *Product) Variant(name string) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].Name == name {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// Option returns the option with the given name.
func (v *Variant) Option(name string) (*Option, bool) {
	for i := range v.Options {
		if v.Options[i].Name == name {
			return &v.Options[i], true
		}
	}
	return nil, false
}

// InsufficientStockError names the product, and the variant option when the
// product has variants, whose stock cannot cover the requested quantity.
type InsufficientStockError struct {
	ProductID string
	Variant   string
	Option    string
	Requested int
}

func (e *InsufficientStockError) Error() string {
	if e.Variant == "" {
		return fmt.Sprintf("insufficient stock for product %s", e.ProductID)
	}
	return fmt.Sprintf("insufficient stock for variant %s: %s", e.Variant, e.Option)
}

// Is makes every InsufficientStockError match ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Repository provides catalog reads and the conditional stock write used at
// checkout.
type Repository interface {
	// GetByID returns an active product of the shop, or ErrNotFound.
	GetByID(ctx context.Context, shopID, id string) (*Product, error)
	// DecrementStock subtracts qty from the option identified by variant and
	// option, or from the product itself when variant is empty, only if the
	// current quantity is at least qty. It reports whether the write happened.
	DecrementStock(ctx context.Context, productID, variant, option string, qty int) (bool, error)
}
