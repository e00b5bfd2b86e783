package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shopcart/internal/domain/auth"
	"github.com/xenking/shopcart/internal/domain/cart"
	"github.com/xenking/shopcart/internal/domain/checkout"
	"github.com/xenking/shopcart/internal/domain/coupon"
	"github.com/xenking/shopcart/internal/domain/order"
	"github.com/xenking/shopcart/internal/domain/pricing"
	"github.com/xenking/shopcart/internal/domain/product"
	"github.com/xenking/shopcart/internal/domain/txn"
	"github.com/xenking/shopcart/pkg/httpmiddleware"
)

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

func badRequest(msg string) error {
	return errors.Wrap(errBadRequest, msg)
}

// apiError describes how a domain error is reported.
type apiError struct {
	target error
	status int
	code   string
}

// apiErrors is checked in order; the first match wins.
var apiErrors = []apiError{
	{errBadRequest, http.StatusBadRequest, "bad_request"},
	{pricing.ErrInvalidSelection, http.StatusBadRequest, "invalid_selection"},
	{pricing.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{product.ErrInsufficientStock, http.StatusBadRequest, "insufficient_stock"},
	{coupon.ErrMinOrderNotMet, http.StatusBadRequest, "min_order_not_met"},
	{coupon.ErrExpired, http.StatusBadRequest, "coupon_expired"},
	{coupon.ErrUsageLimitReached, http.StatusBadRequest, "coupon_usage_limit"},
	{coupon.ErrCartEmpty, http.StatusBadRequest, "cart_empty"},
	{checkout.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
	{checkout.ErrInvalidPaymentType, http.StatusBadRequest, "invalid_payment_type"},
	{order.ErrInvalidStatus, http.StatusBadRequest, "invalid_status"},
	{order.ErrInvalidPage, http.StatusBadRequest, "invalid_page"},
	{checkout.ErrAddressValidation, http.StatusUnprocessableEntity, "address_validation"},
	{product.ErrNotFound, http.StatusNotFound, "product_not_found"},
	{coupon.ErrNotFound, http.StatusNotFound, "coupon_not_found"},
	{cart.ErrNotFound, http.StatusNotFound, "cart_not_found"},
	{cart.ErrItemNotFound, http.StatusNotFound, "item_not_found"},
	{order.ErrNotFound, http.StatusNotFound, "order_not_found"},
	{order.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{cart.ErrNotActive, http.StatusConflict, "cart_not_active"},
	{checkout.ErrTransactionConflict, http.StatusConflict, "transaction_conflict"},
	{txn.ErrConflict, http.StatusConflict, "transaction_conflict"},
	{auth.ErrSessionExpired, http.StatusUnauthorized, "session_expired"},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
}

// classify returns the status and code of err. Unknown errors are 500.
func classify(err error) (int, string) {
	for _, e := range apiErrors {
		if errors.Is(err, e.target) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// writeError reports err in the failure envelope. Unexpected errors are
// logged and their text is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal server error"
	}
	httpmiddleware.WriteError(w, status, code, msg)
}

// writeData writes the success envelope with data rendered by fn. A non-empty
// message is included alongside data.
func writeData(w http.ResponseWriter, status int, message string, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(true) })
		if message != "" {
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		}
		e.Field("data", fn)
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
