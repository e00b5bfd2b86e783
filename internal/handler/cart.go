package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/shopcart/internal/domain/cart"
)

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, message string, c *cart.Cart, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, message, func(e *jx.Encoder) { encodeCart(e, c) })
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.Get(r.Context(), identityFrom(r.Context()))
	h.writeCart(w, r, "", c, err)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	req, err := decodeItemRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !req.HasQuantity {
		req.Quantity = 1
	}
	c, err := h.Carts.AddItem(r.Context(), identityFrom(r.Context()), r.PathValue("product_id"), req.Quantity, req.Selected)
	h.writeCart(w, r, "Item added to cart successfully", c, err)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	req, err := decodeItemRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !req.HasQuantity {
		writeError(w, r, badRequest("quantity is required"))
		return
	}
	c, err := h.Carts.UpdateItem(r.Context(), identityFrom(r.Context()), r.PathValue("product_id"), req.Quantity, req.Selected)
	h.writeCart(w, r, "Cart updated successfully", c, err)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.RemoveItem(r.Context(), identityFrom(r.Context()), r.PathValue("product_id"))
	h.writeCart(w, r, "Item removed from cart", c, err)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.Clear(r.Context(), identityFrom(r.Context()))
	h.writeCart(w, r, "Cart cleared", c, err)
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	body, err := decodeStrings(r, "code")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if body["code"] == "" {
		writeError(w, r, badRequest("coupon code is required"))
		return
	}

	c, err := h.Carts.ApplyCoupon(r.Context(), identityFrom(r.Context()), body["code"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	t := c.Totals()
	writeData(w, http.StatusOK, "Coupon applied successfully", func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			moneyField(e, "discount_amount", t.Discount)
			moneyField(e, "total", t.Total)
			strField(e, "coupon_id", c.CouponID)
		})
	})
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.RemoveCoupon(r.Context(), identityFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	t := c.Totals()
	writeData(w, http.StatusOK, "Coupon removed successfully", func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			moneyField(e, "discount_amount", t.Discount)
			moneyField(e, "total", t.Total)
		})
	})
}
