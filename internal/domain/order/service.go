package order

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-faster/errors"
)

// Pagination defaults.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

var (
	ErrNotFound      = errors.New("order not found")
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrInvalidPage is returned for a page whose offset does not fit an int.
	ErrInvalidPage = errors.New("page is out of range")
	// ErrInvalidTransition is matched by every *TransitionError.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// TransitionError names a disallowed status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Page is one page of orders.
type Page struct {
	Orders []Order
	Total  int
	Page   int
	Limit  int
}

// Pages returns the number of pages needed for Total orders.
func (p Page) Pages() int {
	if p.Limit == 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// Service serves shop staff order operations.
type Service struct {
	orders Repository
	now    func() time.Time
}

// NewService creates an order Service.
func NewService(orders Repository) *Service {
	return &Service{orders: orders, now: time.Now}
}

// List returns a page of the shop's orders, newest first.
func (s *Service) List(ctx context.Context, f Filter) (*Page, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Page-1 > math.MaxInt/f.Limit {
		return nil, ErrInvalidPage
	}

	orders, total, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return &Page{Orders: orders, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// UpdateStatus moves an order to next if the transition table allows it. A
// concurrent change of the same order surfaces as a TransitionError from the
// status observed on reload.
func (s *Service) UpdateStatus(ctx context.Context, shopID, id string, next Status) (*Order, error) {
	if !next.Valid() {
		return nil, ErrInvalidStatus
	}

	o, err := s.orders.GetByID(ctx, shopID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if !o.Status.CanTransition(next) {
		return nil, &TransitionError{From: o.Status, To: next}
	}

	now := s.now()
	ok, err := s.orders.UpdateStatus(ctx, shopID, id, o.Status, next, now)
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	if !ok {
		cur, err := s.orders.GetByID(ctx, shopID, id)
		if err != nil {
			return nil, errors.Wrap(err, "reload order")
		}
		return nil, &TransitionError{From: cur.Status, To: next}
	}

	o.Status = next
	o.UpdatedAt = now
	return o, nil
}
