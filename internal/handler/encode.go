package handler

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopcart/internal/domain/cart"
	"github.com/xenking/shopcart/internal/domain/order"
	"github.com/xenking/shopcart/internal/domain/product"
)

// money writes d as a JSON number with two decimals.
func money(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func moneyField(e *jx.Encoder, name string, d decimal.Decimal) {
	e.Field(name, func(e *jx.Encoder) { money(e, d) })
}

func strField(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

func encodeSelection(e *jx.Encoder, selected []product.SelectedVariant) {
	e.Arr(func(e *jx.Encoder) {
		for _, sv := range selected {
			e.Obj(func(e *jx.Encoder) {
				strField(e, "name", sv.Name)
				strField(e, "value", sv.Value)
			})
		}
	})
}

func encodeCart(e *jx.Encoder, c *cart.Cart) {
	t := c.Totals()
	e.Obj(func(e *jx.Encoder) {
		if c.ID != "" {
			strField(e, "id", c.ID)
		}
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range c.Items {
					e.Obj(func(e *jx.Encoder) {
						strField(e, "product_id", it.ProductID)
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						moneyField(e, "unit_price", it.UnitPrice)
						moneyField(e, "line_total", it.LineTotal())
						e.Field("selected_variants", func(e *jx.Encoder) { encodeSelection(e, it.SelectedVariants) })
					})
				}
			})
		})
		moneyField(e, "subtotal", t.Subtotal)
		moneyField(e, "discount_amount", t.Discount)
		moneyField(e, "tax", t.Tax)
		moneyField(e, "shipping", t.Shipping)
		moneyField(e, "total", t.Total)
		if c.CouponID != "" {
			strField(e, "coupon_id", c.CouponID)
		}
	})
}

func encodeAddress(e *jx.Encoder, a order.Address) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "first_name", a.FirstName)
		strField(e, "last_name", a.LastName)
		strField(e, "email", a.Email)
		strField(e, "phone", a.Phone)
		strField(e, "address", a.Address)
		if a.Apartment != "" {
			strField(e, "apartment", a.Apartment)
		}
		strField(e, "city", a.City)
		strField(e, "state", a.State)
		strField(e, "country", a.Country)
		strField(e, "postal_code", a.PostalCode)
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", o.ID)
		strField(e, "shop_id", o.ShopID)
		strField(e, "status", string(o.Status))
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						strField(e, "product_id", it.ProductID)
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						moneyField(e, "unit_price", it.UnitPrice)
						e.Field("selected_variants", func(e *jx.Encoder) { encodeSelection(e, it.SelectedVariants) })
					})
				}
			})
		})
		e.Field("billing_address", func(e *jx.Encoder) { encodeAddress(e, o.Billing) })
		e.Field("shipping_address", func(e *jx.Encoder) { encodeAddress(e, o.Shipping) })
		e.Field("payment_type", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				strField(e, "id", o.PaymentID)
				strField(e, "name", o.PaymentName)
			})
		})
		moneyField(e, "subtotal", o.Subtotal)
		moneyField(e, "discount_amount", o.Discount)
		moneyField(e, "tax", o.Tax)
		moneyField(e, "shipping", o.ShippingCost)
		moneyField(e, "total", o.Total)
		if o.CouponID != "" {
			strField(e, "coupon_id", o.CouponID)
		}
		strField(e, "created_at", o.CreatedAt.UTC().Format(time.RFC3339))
		strField(e, "updated_at", o.UpdatedAt.UTC().Format(time.RFC3339))
	})
}
