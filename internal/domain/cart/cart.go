package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/craftedbits/storefront/internal/domain/product"
)

var (
	// ErrInvalidQuantity is returned when an upsert requests more units than
	// the product currently has in stock.
	ErrInvalidQuantity = errors.New("quantity exceeds available stock")
)

// Line is a stored cart row: one (user, product) pair with a quantity.
// Prices are never stored on the line; they are read live from the catalog
// until the cart is converted to an order.
type Line struct {
	ID        int64
	UserID    string
	ProductID string
	Quantity  int
}

// LoadedLine joins a stored line with its live product and line subtotal.
type LoadedLine struct {
	Line
	Product  product.Product
	Subtotal decimal.Decimal
}

// View is the aggregated cart: live-priced lines plus their subtotal.
type View struct {
	Lines    []LoadedLine
	Subtotal decimal.Decimal
}

// Repository defines persistence operations for cart lines.
type Repository interface {
	LinesForUser(ctx context.Context, userID string) ([]Line, error)
	Upsert(ctx context.Context, userID, productID string, quantity int) error
	Delete(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

// Service aggregates stored cart lines with live catalog data.
type Service struct {
	lines    Repository
	products product.Repository
}

// NewService creates a cart Service.
func NewService(lines Repository, products product.Repository) *Service {
	return &Service{lines: lines, products: products}
}

// Load returns the user's cart joined against live product rows. Lines whose
// product has been removed from the catalog are silently dropped: the cart is
// best-effort current state, not a frozen snapshot.
func (s *Service) Load(ctx context.Context, userID string) (*View, error) {
	stored, err := s.lines.LinesForUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart lines")
	}
	if len(stored) == 0 {
		return &View{Subtotal: decimal.Zero}, nil
	}

	ids := make([]string, len(stored))
	for i, l := range stored {
		ids[i] = l.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load cart products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	view := &View{Subtotal: decimal.Zero}
	for _, l := range stored {
		p, ok := byID[l.ProductID]
		if !ok {
			continue
		}
		sub := p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		view.Lines = append(view.Lines, LoadedLine{Line: l, Product: p, Subtotal: sub})
		view.Subtotal = view.Subtotal.Add(sub)
	}
	view.Subtotal = view.Subtotal.Round(2)

	return view, nil
}

// UpsertLine sets the quantity for a (user, product) pair. A quantity of
// zero or less deletes the line. The stock comparison here is a soft
// pre-checkout check only; the authoritative check happens again inside the
// checkout transaction.
func (s *Service) UpsertLine(ctx context.Context, userID, productID string, quantity int) error {
	if quantity <= 0 {
		if err := s.lines.Delete(ctx, userID, productID); err != nil {
			return errors.Wrap(err, "delete cart line")
		}
		return nil
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if quantity > p.AvailableStock {
		return errors.Wrapf(ErrInvalidQuantity, "product %s has %d in stock", productID, p.AvailableStock)
	}

	if err := s.lines.Upsert(ctx, userID, productID, quantity); err != nil {
		return errors.Wrap(err, "upsert cart line")
	}
	return nil
}

// Clear deletes every line in the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.lines.Clear(ctx, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}
