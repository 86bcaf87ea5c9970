package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID             string
	Name           string
	Price          decimal.Decimal
	AvailableStock int
	Category       string
	Brand          string
}

// Repository defines read operations for the product catalog.
// Stock mutation happens only inside the checkout transaction and is
// therefore owned by the order repository, not here.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
