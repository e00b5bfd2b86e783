// Package checkout converts an active cart into an order.
//
// Order creation, stock decrements, coupon usage and the cart transition
// commit together through a Transactor, so a failed checkout leaves no
// visible trace.
package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/shopcart/internal/domain/cart"
	"github.com/xenking/shopcart/internal/domain/coupon"
	"github.com/xenking/shopcart/internal/domain/order"
	"github.com/xenking/shopcart/internal/domain/payment"
	"github.com/xenking/shopcart/internal/domain/product"
	"github.com/xenking/shopcart/internal/domain/txn"
)

const instrumentationName = "github.com/xenking/shopcart/internal/domain/checkout"

var (
	// ErrAddressValidation is matched by every *AddressError.
	ErrAddressValidation = errors.New("address validation failed")
	// ErrInvalidPaymentType is returned for unknown, foreign, or disabled
	// payment types.
	ErrInvalidPaymentType = errors.New("invalid payment type")
	// ErrEmptyCart is returned when the session has no active cart with items.
	ErrEmptyCart = errors.New("cart not found or empty")
	// ErrTransactionConflict is returned when the commit kept losing write
	// races after bounded retries.
	ErrTransactionConflict = errors.New("checkout conflicted with concurrent updates, please retry")
)

// Stores groups the repositories a checkout writes through. Inside InTx they
// are bound to one transaction.
type Stores struct {
	Products product.Repository
	Carts    cart.Repository
	Coupons  coupon.Repository
	Orders   order.Repository
}

// Transactor runs fn atomically: either every write made through the given
// Stores becomes visible, or none does. A commit that lost a race returns
// txn.ErrConflict.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, st Stores) error) error
}

// Publisher announces committed orders.
type Publisher interface {
	OrderCreated(ctx context.Context, o *order.Order) error
}

// Request is a checkout attempt of one session.
type Request struct {
	Identity      cart.Identity
	Billing       *order.Address
	Shipping      *order.Address
	PaymentTypeID string
}

// Options holds optional Service collaborators.
type Options struct {
	Publisher      Publisher
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func (o *Options) setDefaults() {
	if o.Publisher == nil {
		o.Publisher = nopPublisher{}
	}
	if o.TracerProvider == nil {
		o.TracerProvider = otel.GetTracerProvider()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = otel.GetMeterProvider()
	}
}

type nopPublisher struct{}

func (nopPublisher) OrderCreated(context.Context, *order.Order) error { return nil }

// Service is the checkout orchestrator.
type Service struct {
	tx        Transactor
	payments  payment.Repository
	coupons   *coupon.Evaluator
	rater     Rater
	publisher Publisher
	retry     txn.RetryPolicy
	now       func() time.Time

	tracer    trace.Tracer
	checkouts metric.Int64Counter
}

// NewService creates a checkout Service.
func NewService(
	tx Transactor,
	payments payment.Repository,
	coupons *coupon.Evaluator,
	rater Rater,
	opts Options,
) (*Service, error) {
	opts.setDefaults()

	meter := opts.MeterProvider.Meter(instrumentationName)
	checkouts, err := meter.Int64Counter("shopcart.checkout.count",
		metric.WithDescription("Checkout attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create checkout counter")
	}

	return &Service{
		tx:        tx,
		payments:  payments,
		coupons:   coupons,
		rater:     rater,
		publisher: opts.Publisher,
		retry:     txn.DefaultPolicy,
		now:       time.Now,
		tracer:    opts.TracerProvider.Tracer(instrumentationName),
		checkouts: checkouts,
	}, nil
}

// Checkout validates the request, re-prices the live cart and commits the
// order. Validation errors are returned before anything is written.
func (s *Service) Checkout(ctx context.Context, req Request) (_ *order.Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Checkout",
		trace.WithAttributes(attribute.String("shop.id", req.Identity.ShopID)),
	)
	defer func() {
		s.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome(rerr))))
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if err := ValidateAddresses(req.Billing, req.Shipping); err != nil {
		return nil, err
	}

	pt, err := s.payments.GetActive(ctx, req.Identity.ShopID, req.PaymentTypeID)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			return nil, ErrInvalidPaymentType
		}
		return nil, errors.Wrap(err, "get payment type")
	}

	o, err := txn.Retry(ctx, s.retry, func(ctx context.Context) (*order.Order, error) {
		var placed *order.Order
		err := s.tx.InTx(ctx, func(ctx context.Context, st Stores) error {
			o, err := s.place(ctx, st, req, pt)
			if err != nil {
				return err
			}
			placed = o
			return nil
		})
		if err != nil {
			return nil, err
		}
		return placed, nil
	})
	if err != nil {
		if errors.Is(err, txn.ErrConflict) {
			return nil, ErrTransactionConflict
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", o.ID))
	if err := s.publisher.OrderCreated(ctx, o); err != nil {
		zctx.From(ctx).Warn("Publish order created",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
	return o, nil
}

// place runs inside the transaction: it re-reads the cart, re-derives every
// amount and applies the writes.
func (s *Service) place(ctx context.Context, st Stores, req Request, pt *payment.PaymentType) (*order.Order, error) {
	id := req.Identity

	c, err := st.Carts.FindActive(ctx, id.ShopID, id.SessionID)
	if err != nil {
		return nil, errors.Wrap(err, "find cart")
	}
	if c == nil || c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	subtotal := c.Subtotal().Round(2)
	discount := decimal.Zero
	if c.CouponID != "" {
		_, d, err := s.coupons.With(st.Coupons).Revalidate(ctx, id.ShopID, c.CouponID, subtotal)
		if err != nil {
			return nil, err
		}
		discount = d.Round(2)
	}

	shipping := s.rater.Shipping(req.Shipping.Country).Round(2)
	tax := subtotal.Mul(s.rater.TaxRate(req.Billing.Country)).Round(2)
	total := subtotal.Sub(discount).Add(tax).Add(shipping)

	now := s.now()
	userID := c.UserID
	if userID == "" {
		userID = id.UserID
	}
	o := &order.Order{
		ID:           uuid.NewString(),
		ShopID:       id.ShopID,
		SessionID:    id.SessionID,
		UserID:       userID,
		Items:        make([]order.LineItem, len(c.Items)),
		Billing:      *req.Billing,
		Shipping:     *req.Shipping,
		PaymentID:    pt.ID,
		PaymentName:  pt.Name,
		Subtotal:     subtotal,
		Discount:     discount,
		Tax:          tax,
		ShippingCost: shipping,
		Total:        total,
		CouponID:     c.CouponID,
		Status:       order.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i, it := range c.Items {
		o.Items[i] = order.LineItem{
			ProductID:        it.ProductID,
			Quantity:         it.Quantity,
			UnitPrice:        it.UnitPrice,
			SelectedVariants: it.SelectedVariants,
		}
	}
	if err := st.Orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	for _, it := range c.Items {
		if err := decrementStock(ctx, st.Products, it); err != nil {
			return nil, err
		}
	}

	if c.CouponID != "" {
		ok, err := st.Coupons.IncrementUsage(ctx, c.CouponID)
		if err != nil {
			return nil, errors.Wrap(err, "increment coupon usage")
		}
		if !ok {
			return nil, coupon.ErrUsageLimitReached
		}
	}

	if err := c.Convert(); err != nil {
		return nil, err
	}
	c.UpdatedAt = now
	if err := st.Carts.Save(ctx, c); err != nil {
		if errors.Is(err, txn.ErrConflict) {
			return nil, txn.ErrConflict
		}
		return nil, errors.Wrap(err, "convert cart")
	}
	return o, nil
}

// decrementStock takes the line quantity from every selected option, or
// from the product itself when the line has no selection.
func decrementStock(ctx context.Context, products product.Repository, it cart.Item) error {
	if len(it.SelectedVariants) == 0 {
		ok, err := products.DecrementStock(ctx, it.ProductID, "", "", it.Quantity)
		if err != nil {
			return errors.Wrapf(err, "decrement stock of %s", it.ProductID)
		}
		if !ok {
			return &product.InsufficientStockError{ProductID: it.ProductID, Requested: it.Quantity}
		}
		return nil
	}
	for _, sv := range it.SelectedVariants {
		ok, err := products.DecrementStock(ctx, it.ProductID, sv.Name, sv.Value, it.Quantity)
		if err != nil {
			return errors.Wrapf(err, "decrement stock of %s %s=%s", it.ProductID, sv.Name, sv.Value)
		}
		if !ok {
			return &product.InsufficientStockError{
				ProductID: it.ProductID,
				Variant:   sv.Name,
				Option:    sv.Value,
				Requested: it.Quantity,
			}
		}
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, ErrAddressValidation), errors.Is(err, ErrInvalidPaymentType):
		return "invalid_request"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, product.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrTransactionConflict):
		return "conflict"
	default:
		return "failed"
	}
}
