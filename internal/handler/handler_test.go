package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shopcart/internal/domain/auth"
	"github.com/xenking/shopcart/internal/domain/cart"
	"github.com/xenking/shopcart/internal/domain/checkout"
	"github.com/xenking/shopcart/internal/domain/coupon"
	"github.com/xenking/shopcart/internal/domain/order"
	"github.com/xenking/shopcart/internal/domain/payment"
	"github.com/xenking/shopcart/internal/domain/product"
	"github.com/xenking/shopcart/internal/storage/memory"
)

// --- Helpers ---

const checkoutBody = `{
	"billing_address": {
		"first_name": "Jane", "last_name": "Doe", "email": "jane@example.com",
		"phone": "+1 555-123-4567", "address": "1 Infinite Loop", "city": "Cupertino",
		"state": "CA", "country": "United States", "postal_code": "95014"
	},
	"shipping_address": {
		"first_name": "Jane", "last_name": "Doe", "email": "jane@example.com",
		"phone": "+1 555-123-4567", "address": "1 Infinite Loop", "city": "Cupertino",
		"state": "CA", "country": "United States", "postal_code": "95014"
	},
	"payment_type_id": "card"
}`

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t   *testing.T
	mux *http.ServeMux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.New()
	dec := decimal.RequireFromString
	store.Products().Put(&product.Product{
		ID: "iphone", ShopID: "shop", Name: "iPhone 15 Pro", Price: dec("999.99"),
		Status: product.StatusActive,
		Variants: []product.Variant{
			{Name: "Storage", Options: []product.Option{
				{Name: "256GB", PriceAdjustment: dec("100"), Quantity: 5},
				{Name: "512GB", PriceAdjustment: dec("300"), Quantity: 5},
			}},
		},
	})
	maxDiscount := dec("100")
	store.Coupons().Put(&coupon.Coupon{
		ID: "welcome", ShopID: "shop", Code: "WELCOME10",
		DiscountType: coupon.DiscountPercentage, DiscountValue: dec("10"),
		MinOrderAmount: dec("100"), MaxDiscountAmount: &maxDiscount,
		StartDate: time.Now().Add(-time.Hour), EndDate: time.Now().Add(time.Hour), IsActive: true,
	})
	store.Payments().Put(&payment.PaymentType{ID: "card", ShopID: "shop", Name: "Credit Card", IsActive: true})

	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	store.Admins().Put(&auth.Admin{ID: "admin", ShopID: "shop", Email: "admin@shop.test", PasswordHash: hash, Role: "owner", IsActive: true})

	evaluator := coupon.NewEvaluator(store.Coupons())
	checkoutSvc, err := checkout.NewService(store, store.Payments(), evaluator, checkout.DefaultRates(), checkout.Options{})
	require.NoError(t, err)

	h := New(Config{}, Services{
		Auth: auth.NewService(store.Sessions(), store.Admins(), auth.Config{
			JWTSecret:  []byte("test-secret"),
			TokenTTL:   time.Hour,
			SessionTTL: time.Hour,
		}),
		Carts:    cart.NewService(store.Products(), store.Carts(), evaluator),
		Checkout: checkoutSvc,
		Orders:   order.NewService(store.Orders()),
	})
	mux := http.NewServeMux()
	h.Register(mux)
	return &testServer{t: t, mux: mux}
}

func (s *testServer) do(method, path, body string, header http.Header) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	var env envelope
	require.NoError(s.t, json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&env), w.Body.String())
	return w, env
}

func (s *testServer) startSession() http.Header {
	s.t.Helper()
	w, env := s.do(http.MethodPost, "/api/sessions/shop", "", nil)
	require.Equal(s.t, http.StatusCreated, w.Code)
	require.True(s.t, env.Success)

	var data struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(s.t, data.SessionID)

	cookies := w.Result().Cookies()
	require.Len(s.t, cookies, 1)
	assert.Equal(s.t, SessionCookie, cookies[0].Name)
	assert.True(s.t, cookies[0].HttpOnly)

	hdr := http.Header{}
	hdr.Set(SessionHeader, data.SessionID)
	return hdr
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

type cartData struct {
	Items []struct {
		ProductID string  `json:"product_id"`
		Quantity  int     `json:"quantity"`
		UnitPrice float64 `json:"unit_price"`
	} `json:"items"`
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount_amount"`
	Total    float64 `json:"total"`
	CouponID string  `json:"coupon_id"`
}

// --- Tests ---

func TestCartRequiresSession(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodGet, "/api/cart/shop", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "session_expired", env.Error)

	// A session of one shop does not open another shop's cart.
	hdr := s.startSession()
	w, _ = s.do(http.MethodGet, "/api/cart/other", "", hdr)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionTransports(t *testing.T) {
	s := newTestServer(t)
	id := s.startSession().Get(SessionHeader)
	require.NotEmpty(t, id)

	for _, tt := range []struct {
		name string
		set  func(r *http.Request)
	}{
		{name: "Header", set: func(r *http.Request) { r.Header.Set(SessionHeader, id) }},
		{name: "LowerCaseHeader", set: func(r *http.Request) { r.Header.Set(strings.ToLower(SessionHeader), id) }},
		{name: "Cookie", set: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: id}) }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/cart/shop", nil)
			tt.set(req)
			w := httptest.NewRecorder()
			s.mux.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
		})
	}
}

func TestEmptyCart(t *testing.T) {
	s := newTestServer(t)
	hdr := s.startSession()

	w, env := s.do(http.MethodGet, "/api/cart/shop", "", hdr)
	require.Equal(t, http.StatusOK, w.Code)
	c := decodeData[cartData](t, env)
	assert.Empty(t, c.Items)
	assert.Zero(t, c.Total)
}

func TestStorefrontFlow(t *testing.T) {
	s := newTestServer(t)
	hdr := s.startSession()

	w, env := s.do(http.MethodPost, "/api/cart/shop/iphone",
		`{"quantity": 2, "selected_variants": [{"name": "Storage", "value": "256GB"}]}`, hdr)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	assert.Equal(t, "Item added to cart successfully", env.Message)
	c := decodeData[cartData](t, env)
	require.Len(t, c.Items, 1)
	assert.InDelta(t, 1099.99, c.Items[0].UnitPrice, 1e-9)
	assert.InDelta(t, 2199.98, c.Subtotal, 1e-9)

	w, env = s.do(http.MethodPost, "/api/cart/shop/apply-coupon", `{"code": "welcome10"}`, hdr)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	applied := decodeData[cartData](t, env)
	assert.InDelta(t, 100, applied.Discount, 1e-9)
	assert.InDelta(t, 2099.98, applied.Total, 1e-9)
	assert.Equal(t, "welcome", applied.CouponID)

	w, env = s.do(http.MethodPost, "/api/checkout/shop", checkoutBody, hdr)
	require.Equal(t, http.StatusCreated, w.Code, env.Message)
	var placed struct {
		ID       string  `json:"id"`
		Status   string  `json:"status"`
		Subtotal float64 `json:"subtotal"`
		Discount float64 `json:"discount_amount"`
		Tax      float64 `json:"tax"`
		Shipping float64 `json:"shipping"`
		Total    float64 `json:"total"`
		Payment  struct {
			Name string `json:"name"`
		} `json:"payment_type"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &placed))
	assert.Equal(t, "pending", placed.Status)
	assert.InDelta(t, 2199.98, placed.Subtotal, 1e-9)
	assert.InDelta(t, 100, placed.Discount, 1e-9)
	assert.InDelta(t, 176.00, placed.Tax, 1e-9)
	assert.InDelta(t, 9.99, placed.Shipping, 1e-9)
	assert.InDelta(t, 2285.97, placed.Total, 1e-9)
	assert.Equal(t, "Credit Card", placed.Payment.Name)

	// The converted cart is gone; a second checkout finds nothing to buy.
	w, env = s.do(http.MethodPost, "/api/checkout/shop", checkoutBody, hdr)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "empty_cart", env.Error)

	// Staff see the order and move it along.
	w, env = s.do(http.MethodPost, "/api/admin/shop/login", `{"email": "Admin@Shop.test", "password": "s3cret"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	login := decodeData[struct {
		Token string `json:"token"`
	}](t, env)
	bearer := http.Header{"Authorization": {"Bearer " + login.Token}}

	w, env = s.do(http.MethodGet, "/api/admin/shop/orders?status=pending&limit=5", "", bearer)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	list := decodeData[struct {
		Orders []struct {
			ID string `json:"id"`
		} `json:"orders"`
		Pagination struct {
			Total int `json:"total"`
			Limit int `json:"limit"`
			Pages int `json:"pages"`
		} `json:"pagination"`
	}](t, env)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, placed.ID, list.Orders[0].ID)
	assert.Equal(t, 1, list.Pagination.Total)
	assert.Equal(t, 5, list.Pagination.Limit)
	assert.Equal(t, 1, list.Pagination.Pages)

	w, env = s.do(http.MethodPatch, "/api/admin/shop/orders/"+placed.ID, `{"status": "processing"}`, bearer)
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	w, env = s.do(http.MethodPatch, "/api/admin/shop/orders/"+placed.ID, `{"status": "delivered"}`, bearer)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", env.Error)

	w, _ = s.do(http.MethodGet, "/api/admin/other/orders", "", bearer)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCartErrors(t *testing.T) {
	s := newTestServer(t)
	hdr := s.startSession()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"MissingSelection", http.MethodPost, "/api/cart/shop/iphone", `{"quantity": 1}`, http.StatusBadRequest, "invalid_selection"},
		{"UnknownOption", http.MethodPost, "/api/cart/shop/iphone", `{"selected_variants": [{"name": "Storage", "value": "1TB"}]}`, http.StatusBadRequest, "invalid_selection"},
		{"TooMany", http.MethodPost, "/api/cart/shop/iphone", `{"quantity": 6, "selected_variants": [{"name": "Storage", "value": "256GB"}]}`, http.StatusBadRequest, "insufficient_stock"},
		{"ZeroQuantity", http.MethodPost, "/api/cart/shop/iphone", `{"quantity": 0, "selected_variants": [{"name": "Storage", "value": "256GB"}]}`, http.StatusBadRequest, "invalid_quantity"},
		{"UnknownProduct", http.MethodPost, "/api/cart/shop/nope", `{}`, http.StatusNotFound, "product_not_found"},
		{"MalformedBody", http.MethodPost, "/api/cart/shop/iphone", `{"quantity": "two"}`, http.StatusBadRequest, "bad_request"},
		{"UpdateWithoutQuantity", http.MethodPut, "/api/cart/shop/iphone", `{}`, http.StatusBadRequest, "bad_request"},
		{"CouponOnEmptyCart", http.MethodPost, "/api/cart/shop/apply-coupon", `{"code": "WELCOME10"}`, http.StatusBadRequest, "cart_empty"},
		{"CouponWithoutCode", http.MethodPost, "/api/cart/shop/apply-coupon", `{}`, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := s.do(tt.method, tt.path, tt.body, hdr)
			assert.Equal(t, tt.status, w.Code, env.Message)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Error)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestRemoveCouponWithoutCart(t *testing.T) {
	s := newTestServer(t)
	hdr := s.startSession()

	w, env := s.do(http.MethodDelete, "/api/cart/shop/remove-coupon", "", hdr)
	require.Equal(t, http.StatusOK, w.Code)
	c := decodeData[cartData](t, env)
	assert.Zero(t, c.Discount)
	assert.Zero(t, c.Total)
}

func TestCheckoutAddressValidation(t *testing.T) {
	s := newTestServer(t)
	hdr := s.startSession()

	w, _ := s.do(http.MethodPost, "/api/cart/shop/iphone",
		`{"selected_variants": [{"name": "Storage", "value": "512GB"}]}`, hdr)
	require.Equal(t, http.StatusOK, w.Code)

	body := strings.Replace(checkoutBody, `"email": "jane@example.com"`, `"email": "not-an-email"`, 1)
	w, env := s.do(http.MethodPost, "/api/checkout/shop", body, hdr)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "address_validation", env.Error)
	assert.Contains(t, env.Message, "billing address validation failed")

	w, env = s.do(http.MethodPost, "/api/checkout/shop", `{"payment_type_id": "card"}`, hdr)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "address_validation", env.Error)
}

func TestAdminLoginRejected(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodPost, "/api/admin/shop/login", `{"email": "admin@shop.test", "password": "wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_credentials", env.Error)

	w, env = s.do(http.MethodGet, "/api/admin/shop/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_token", env.Error)
}

func TestListOrdersPageOutOfRange(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodPost, "/api/admin/shop/login", `{"email": "admin@shop.test", "password": "s3cret"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	login := decodeData[struct {
		Token string `json:"token"`
	}](t, env)
	bearer := http.Header{}
	bearer.Set("Authorization", "Bearer "+login.Token)

	w, env = s.do(http.MethodGet, "/api/admin/shop/orders?page=9223372036854775807", "", bearer)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_page", env.Error)

	w, env = s.do(http.MethodGet, "/api/admin/shop/orders?page=2", "", bearer)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	list := decodeData[struct {
		Pagination struct {
			Page int `json:"page"`
		} `json:"pagination"`
	}](t, env)
	assert.Equal(t, 2, list.Pagination.Page)
}
