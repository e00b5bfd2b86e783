package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/shopcart/internal/domain/checkout"
)

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	body, err := decodeCheckoutRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.Checkout.Checkout(r.Context(), checkout.Request{
		Identity:      identityFrom(r.Context()),
		Billing:       body.Billing,
		Shipping:      body.Shipping,
		PaymentTypeID: body.PaymentTypeID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Order placed successfully", func(e *jx.Encoder) { encodeOrder(e, o) })
}
