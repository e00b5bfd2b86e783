package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/shopcart/internal/domain/product"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether staff may move an order from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order is the immutable snapshot of a checked out cart. Only Status and
// UpdatedAt change after creation.
type Order struct {
	ID          string
	ShopID      string
	SessionID   string
	UserID      string
	Items       []LineItem
	Billing     Address
	Shipping    Address
	PaymentID   string
	PaymentName string
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	Tax         decimal.Decimal
	// ShippingCost is the shipping charge; Shipping is the address.
	ShippingCost decimal.Decimal
	Total        decimal.Decimal
	CouponID     string
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LineItem is a denormalized cart line.
type LineItem struct {
	ProductID        string                    `json:"product_id"`
	Quantity         int                       `json:"quantity"`
	UnitPrice        decimal.Decimal           `json:"unit_price"`
	SelectedVariants []product.SelectedVariant `json:"selected_variants"`
}

// Address is a billing or shipping address.
type Address struct {
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	Email      string `json:"email" validate:"required,email_loose"`
	Phone      string `json:"phone" validate:"required,phone_loose"`
	Address    string `json:"address" validate:"required"`
	Apartment  string `json:"apartment,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	Country    string `json:"country" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
}

// Filter selects a page of a shop's orders. Zero From/To and empty Status do
// not filter.
type Filter struct {
	ShopID string
	Status Status
	From   time.Time
	To     time.Time
	Page   int
	Limit  int
}

// Offset returns the number of rows skipped by the page. Service.List rejects
// pages for which it would overflow.
func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// Delete removes an order. It is the compensating action of Create.
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, shopID, id string) (*Order, error)
	// List returns a page of orders newest first and the total match count.
	List(ctx context.Context, f Filter) ([]Order, int, error)
	// UpdateStatus moves the order to next only while its status is still
	// from, and reports whether the write happened.
	UpdateStatus(ctx context.Context, shopID, id string, from, next Status, now time.Time) (bool, error)
}
