package checkout_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shopcart/internal/domain/cart"
	"github.com/xenking/shopcart/internal/domain/checkout"
	"github.com/xenking/shopcart/internal/domain/coupon"
	"github.com/xenking/shopcart/internal/domain/order"
	"github.com/xenking/shopcart/internal/domain/payment"
	"github.com/xenking/shopcart/internal/domain/product"
	"github.com/xenking/shopcart/internal/domain/txn"
	"github.com/xenking/shopcart/internal/storage/memory"
)

// --- Helpers ---

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store    *memory.Store
	carts    *cart.Service
	checkout *checkout.Service
	events   *recordingPublisher
}

type recordingPublisher struct {
	mu     sync.Mutex
	orders []string
	err    error
}

func (p *recordingPublisher) OrderCreated(_ context.Context, o *order.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, o.ID)
	return p.err
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.New()
	store.Products().Put(&product.Product{
		ID:     "iphone",
		ShopID: "shop",
		Name:   "iPhone 15 Pro",
		Price:  dec("999.99"),
		Status: product.StatusActive,
		Variants: []product.Variant{
			{Name: "Storage", Options: []product.Option{
				{Name: "256GB", PriceAdjustment: dec("100"), Quantity: 3},
				{Name: "512GB", PriceAdjustment: dec("300"), Quantity: 5},
			}},
		},
	})
	store.Products().Put(&product.Product{
		ID:       "mouse",
		ShopID:   "shop",
		Name:     "Magic Mouse",
		Price:    dec("79.00"),
		Quantity: 10,
		Status:   product.StatusActive,
	})
	maxDiscount := dec("100")
	store.Coupons().Put(&coupon.Coupon{
		ID:                "welcome",
		ShopID:            "shop",
		Code:              "WELCOME10",
		DiscountType:      coupon.DiscountPercentage,
		DiscountValue:     dec("10"),
		MinOrderAmount:    dec("100"),
		MaxDiscountAmount: &maxDiscount,
		StartDate:         time.Now().Add(-time.Hour),
		EndDate:           time.Now().Add(time.Hour),
		IsActive:          true,
	})
	store.Payments().Put(&payment.PaymentType{ID: "card", ShopID: "shop", Name: "Credit Card", IsActive: true})
	store.Payments().Put(&payment.PaymentType{ID: "cod", ShopID: "shop", Name: "Cash", IsActive: false})

	evaluator := coupon.NewEvaluator(store.Coupons())
	events := &recordingPublisher{}
	svc, err := checkout.NewService(store, store.Payments(), evaluator, checkout.DefaultRates(), checkout.Options{
		Publisher: events,
	})
	require.NoError(t, err)

	return &fixture{
		store:    store,
		carts:    cart.NewService(store.Products(), store.Carts(), evaluator),
		checkout: svc,
		events:   events,
	}
}

func session(id string) cart.Identity {
	return cart.Identity{ShopID: "shop", SessionID: id}
}

func usAddress() *order.Address {
	return &order.Address{
		FirstName:  "Jane",
		LastName:   "Doe",
		Email:      "jane@example.com",
		Phone:      "+1 555-123-4567",
		Address:    "1 Infinite Loop",
		City:       "Cupertino",
		State:      "CA",
		Country:    "United States",
		PostalCode: "95014",
	}
}

func request(id cart.Identity) checkout.Request {
	return checkout.Request{
		Identity:      id,
		Billing:       usAddress(),
		Shipping:      usAddress(),
		PaymentTypeID: "card",
	}
}

func storage(size string) []product.SelectedVariant {
	return []product.SelectedVariant{{Name: "Storage", Value: size}}
}

// --- Tests ---

func TestCheckout_WorkedExample(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := session("s1")

	_, err := f.carts.AddItem(ctx, id, "iphone", 2, storage("256GB"))
	require.NoError(t, err)
	c, err := f.carts.ApplyCoupon(ctx, id, "WELCOME10")
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(c.DiscountAmount))

	o, err := f.checkout.Checkout(ctx, request(id))
	require.NoError(t, err)

	assert.True(t, dec("2199.98").Equal(o.Subtotal), "subtotal %s", o.Subtotal)
	assert.True(t, dec("100").Equal(o.Discount), "discount %s", o.Discount)
	assert.True(t, dec("9.99").Equal(o.ShippingCost), "shipping %s", o.ShippingCost)
	assert.True(t, dec("176").Equal(o.Tax), "tax %s", o.Tax)
	assert.True(t, dec("2285.97").Equal(o.Total), "total %s", o.Total)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, "welcome", o.CouponID)
	assert.Equal(t, "Credit Card", o.PaymentName)
	require.Len(t, o.Items, 1)
	assert.True(t, dec("1099.99").Equal(o.Items[0].UnitPrice))

	assert.Equal(t, 1, f.store.Products().Stock("iphone", "Storage", "256GB"))
	cp, err := f.store.Coupons().GetByID(ctx, "shop", "welcome")
	require.NoError(t, err)
	assert.Equal(t, 1, cp.UsedCount)

	active, err := f.store.Carts().FindActive(ctx, "shop", "s1")
	require.NoError(t, err)
	assert.Nil(t, active, "cart must be converted")

	stored, err := f.store.Orders().GetByID(ctx, "shop", o.ID)
	require.NoError(t, err)
	assert.True(t, o.Total.Equal(stored.Total))
	assert.Equal(t, []string{o.ID}, f.events.orders)
}

func TestCheckout_TaxUsesBillingCountry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := session("s1")

	_, err := f.carts.AddItem(ctx, id, "mouse", 1, nil)
	require.NoError(t, err)

	req := request(id)
	req.Billing.Country = "Canada"
	req.Shipping.Country = "Germany"

	o, err := f.checkout.Checkout(ctx, req)
	require.NoError(t, err)
	assert.True(t, dec("29.99").Equal(o.ShippingCost))
	assert.True(t, dec("10.27").Equal(o.Tax), "tax %s", o.Tax)
	assert.True(t, dec("119.26").Equal(o.Total), "total %s", o.Total)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.checkout.Checkout(ctx, request(session("nobody")))
	require.ErrorIs(t, err, checkout.ErrEmptyCart)

	id := session("s1")
	_, err = f.carts.AddItem(ctx, id, "mouse", 1, nil)
	require.NoError(t, err)
	_, err = f.carts.Clear(ctx, id)
	require.NoError(t, err)

	_, err = f.checkout.Checkout(ctx, request(id))
	require.ErrorIs(t, err, checkout.ErrEmptyCart)

	orders, total, err := f.store.Orders().List(ctx, order.Filter{ShopID: "shop"})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, orders)
	assert.Empty(t, f.events.orders)
}

func TestCheckout_InvalidPaymentType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := session("s1")
	_, err := f.carts.AddItem(ctx, id, "mouse", 1, nil)
	require.NoError(t, err)

	for _, pt := range []string{"", "missing", "cod"} {
		req := request(id)
		req.PaymentTypeID = pt
		_, err := f.checkout.Checkout(ctx, req)
		require.ErrorIs(t, err, checkout.ErrInvalidPaymentType, pt)
	}
}

func TestCheckout_AddressCheckedBeforeAnythingElse(t *testing.T) {
	f := newFixture(t)

	req := request(session("nobody"))
	req.PaymentTypeID = "missing"
	req.Shipping.Email = "not-an-email"

	_, err := f.checkout.Checkout(context.Background(), req)
	require.ErrorIs(t, err, checkout.ErrAddressValidation)
}

func TestCheckout_StockShortfallRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := session("s1")

	_, err := f.carts.AddItem(ctx, id, "mouse", 2, nil)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, id, "iphone", 2, storage("256GB"))
	require.NoError(t, err)
	_, err = f.carts.ApplyCoupon(ctx, id, "WELCOME10")
	require.NoError(t, err)

	// Someone else bought the option after it was added to the cart.
	ok, err := f.store.Products().DecrementStock(ctx, "iphone", "Storage", "256GB", 2)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.checkout.Checkout(ctx, request(id))
	var stockErr *product.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "256GB", stockErr.Option)

	assert.Equal(t, 10, f.store.Products().Stock("mouse", "", ""), "mouse decrement must be undone")
	assert.Equal(t, 1, f.store.Products().Stock("iphone", "Storage", "256GB"))

	cp, err := f.store.Coupons().GetByID(ctx, "shop", "welcome")
	require.NoError(t, err)
	assert.Zero(t, cp.UsedCount)

	c, err := f.store.Carts().FindActive(ctx, "shop", "s1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Len(t, c.Items, 2)
	assert.Equal(t, "welcome", c.CouponID)

	_, total, err := f.store.Orders().List(ctx, order.Filter{ShopID: "shop"})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCheckout_CouponUsageLimitAtCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	limit := 1
	f.store.Coupons().Put(&coupon.Coupon{
		ID:             "once",
		ShopID:         "shop",
		Code:           "ONCE",
		DiscountType:   coupon.DiscountFixed,
		DiscountValue:  dec("5"),
		MinOrderAmount: decimal.Zero,
		StartDate:      time.Now().Add(-time.Hour),
		EndDate:        time.Now().Add(time.Hour),
		IsActive:       true,
		UsageLimit:     &limit,
	})

	a, b := session("a"), session("b")
	for _, id := range []cart.Identity{a, b} {
		_, err := f.carts.AddItem(ctx, id, "mouse", 1, nil)
		require.NoError(t, err)
		_, err = f.carts.ApplyCoupon(ctx, id, "once")
		require.NoError(t, err)
	}

	_, err := f.checkout.Checkout(ctx, request(a))
	require.NoError(t, err)

	_, err = f.checkout.Checkout(ctx, request(b))
	require.ErrorIs(t, err, coupon.ErrUsageLimitReached)
	assert.Equal(t, 9, f.store.Products().Stock("mouse", "", ""))
}

func TestCheckout_ExpiredCouponRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := session("s1")

	_, err := f.carts.AddItem(ctx, id, "iphone", 1, storage("512GB"))
	require.NoError(t, err)
	_, err = f.carts.ApplyCoupon(ctx, id, "WELCOME10")
	require.NoError(t, err)

	cp, err := f.store.Coupons().GetByID(ctx, "shop", "welcome")
	require.NoError(t, err)
	cp.IsActive = false
	f.store.Coupons().Put(cp)

	_, err = f.checkout.Checkout(ctx, request(id))
	require.ErrorIs(t, err, coupon.ErrExpired)
}

func TestCheckout_ConcurrentOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Stock of 256GB is 3; each cart wants 2.
	a, b := session("a"), session("b")
	for _, id := range []cart.Identity{a, b} {
		_, err := f.carts.AddItem(ctx, id, "iphone", 2, storage("256GB"))
		require.NoError(t, err)
	}

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, id := range []cart.Identity{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.checkout.Checkout(ctx, request(id))
		}()
	}
	wg.Wait()

	var succeeded, outOfStock int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, product.ErrInsufficientStock):
			outOfStock++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, outOfStock)
	assert.Equal(t, 1, f.store.Products().Stock("iphone", "Storage", "256GB"))

	_, total, err := f.store.Orders().List(ctx, order.Filter{ShopID: "shop"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

type conflictingTransactor struct {
	calls int
}

func (c *conflictingTransactor) InTx(context.Context, func(context.Context, checkout.Stores) error) error {
	c.calls++
	return txn.ErrConflict
}

func TestCheckout_ConflictSurfacesAfterRetries(t *testing.T) {
	store := memory.New()
	store.Payments().Put(&payment.PaymentType{ID: "card", ShopID: "shop", IsActive: true})

	tx := &conflictingTransactor{}
	svc, err := checkout.NewService(tx, store.Payments(), coupon.NewEvaluator(store.Coupons()), checkout.DefaultRates(), checkout.Options{})
	require.NoError(t, err)

	_, err = svc.Checkout(context.Background(), request(session("s1")))
	require.ErrorIs(t, err, checkout.ErrTransactionConflict)
	assert.Equal(t, 3, tx.calls)
}

func TestCheckout_PublishFailureDoesNotFailCheckout(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")
	ctx := context.Background()
	id := session("s1")

	_, err := f.carts.AddItem(ctx, id, "mouse", 1, nil)
	require.NoError(t, err)

	o, err := f.checkout.Checkout(ctx, request(id))
	require.NoError(t, err)
	assert.Equal(t, []string{o.ID}, f.events.orders)
}
