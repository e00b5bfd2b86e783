package payment

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a payment type is missing, belongs to another
// shop, or is disabled.
var ErrNotFound = errors.New("payment type not found")

// PaymentType is a checkout payment option offered by a shop. Processing the
// payment itself happens outside this service.
type PaymentType struct {
	ID          string
	ShopID      string
	Name        string
	Description string
	IsActive    bool
}

// Repository looks up payment types.
type Repository interface {
	// GetActive returns an active payment type of the shop, or ErrNotFound.
	GetActive(ctx context.Context, shopID, id string) (*PaymentType, error)
}
