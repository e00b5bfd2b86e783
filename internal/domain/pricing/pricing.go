// Package pricing computes the unit price of a product under a variant
// selection and checks that the selection is in stock.
//
// The stock check here is advisory: nothing is reserved. Checkout performs the
// authoritative conditional decrement.
package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopcart/internal/domain/product"
)

var (
	// ErrInvalidSelection is matched by every *SelectionError.
	ErrInvalidSelection = errors.New("invalid variant selection")
	// ErrInvalidQuantity is returned for quantities below one.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// SelectionError describes why a selected variant set does not fit the
// product's variant groups.
type SelectionError struct {
	Reason string
}

func (e *SelectionError) Error() string {
	return e.Reason
}

// Is makes every SelectionError match ErrInvalidSelection.
func (e *SelectionError) Is(target error) bool {
	return target == ErrInvalidSelection
}

func selectionErrorf(format string, args ...any) error {
	return &SelectionError{Reason: fmt.Sprintf(format, args...)}
}

// UnitPrice returns the base price of p plus the price adjustment of every
// selected option.
//
// When p has variants, selected must name each variant group exactly once and
// nothing else, and every resolved option must hold at least qty units. When
// p has no variants, selected must be empty and p.Quantity must cover qty.
func UnitPrice(p *product.Product, selected []product.SelectedVariant, qty int) (decimal.Decimal, error) {
	if qty < 1 {
		return decimal.Zero, ErrInvalidQuantity
	}

	if !p.HasVariants() {
		if len(selected) > 0 {
			return decimal.Zero, selectionErrorf("product %s has no variants", p.ID)
		}
		if p.Quantity < qty {
			return decimal.Zero, &product.InsufficientStockError{ProductID: p.ID, Requested: qty}
		}
		return p.Price, nil
	}

	if len(selected) == 0 {
		return decimal.Zero, selectionErrorf("product variants must be selected")
	}

	seen := make(map[string]struct{}, len(selected))
	price := p.Price
	for _, sv := range selected {
		if _, dup := seen[sv.Name]; dup {
			return decimal.Zero, selectionErrorf("variant %s selected more than once", sv.Name)
		}
		seen[sv.Name] = struct{}{}

		variant, ok := p.Variant(sv.Name)
		if !ok {
			return decimal.Zero, selectionErrorf("variant %s not found", sv.Name)
		}
		option, ok := variant.Option(sv.Value)
		if !ok {
			return decimal.Zero, selectionErrorf("option %s not found for variant %s", sv.Value, sv.Name)
		}
		if option.Quantity < qty {
			return decimal.Zero, &product.InsufficientStockError{
				ProductID: p.ID,
				Variant:   variant.Name,
				Option:    option.Name,
				Requested: qty,
			}
		}
		price = price.Add(option.PriceAdjustment)
	}

	// Every name was unique and known, so equal counts means full coverage.
	if len(seen) != len(p.Variants) {
		return decimal.Zero, selectionErrorf("all product variants must be selected")
	}

	return price, nil
}
