package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	domain "github.com/feiraviva/api/internal/domain"
	"github.com/feiraviva/api/internal/repositories"
)

const (
	defaultCartLineTTL  = 24 * time.Hour
	maxCartLineQuantity = 99
)

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input.
	ErrCartInvalidInput = errors.New("cart service: invalid input")
	// ErrCartUnavailable indicates the cart service cannot fulfil the request due to backend issues.
	ErrCartUnavailable = errors.New("cart service: unavailable")
	// ErrCartProductNotFound indicates the referenced catalog product does not exist.
	ErrCartProductNotFound = errors.New("cart service: product not found")
	// ErrCartOrderNotFound indicates the order referenced by a reorder does not exist.
	ErrCartOrderNotFound = errors.New("cart service: order not found")
)

// CartServiceDeps wires the repositories backing cart operations.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Products repositories.ProductRepository
	Orders   repositories.OrderRepository
	Clock    func() time.Time
	LineTTL  time.Duration
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	orders   repositories.OrderRepository
	now      func() time.Time
	lineTTL  time.Duration
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("cart service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	ttl := deps.LineTTL
	if ttl <= 0 {
		ttl = defaultCartLineTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		orders:   deps.Orders,
		now:      func() time.Time { return clock().UTC() },
		lineTTL:  ttl,
		logger:   logger,
	}, nil
}

// Snapshot joins the owner's live cart lines with catalog data. Expired lines
// are filtered out here rather than deleted; the sweeper owns deletion.
func (s *cartService) Snapshot(ctx context.Context, owner OwnerKey) (CartSnapshot, error) {
	if s == nil || s.carts == nil {
		return CartSnapshot{}, ErrCartUnavailable
	}
	if !owner.Valid() {
		return CartSnapshot{}, ErrCartInvalidInput
	}

	lines, err := s.carts.ListByOwner(ctx, owner)
	if err != nil {
		return CartSnapshot{}, s.translateRepoError(err)
	}

	now := s.now()
	live := lines[:0]
	for _, line := range lines {
		if line.ExpiresAt.After(now) {
			live = append(live, line)
		}
	}

	return s.buildSnapshot(ctx, owner, live)
}

// UpsertLine adds a product to the cart or replaces its quantity. The price
// snapshot is refreshed from the catalog on every upsert.
func (s *cartService) UpsertLine(ctx context.Context, cmd UpsertCartLineCommand) (CartSnapshot, error) {
	if s == nil || s.carts == nil {
		return CartSnapshot{}, ErrCartUnavailable
	}
	if !cmd.Owner.Valid() {
		return CartSnapshot{}, ErrCartInvalidInput
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" || cmd.Quantity < 1 || cmd.Quantity > maxCartLineQuantity {
		return CartSnapshot{}, ErrCartInvalidInput
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return CartSnapshot{}, ErrCartProductNotFound
		}
		return CartSnapshot{}, s.translateRepoError(err)
	}

	now := s.now()
	line := domain.CartLine{
		Owner:         cmd.Owner,
		ProductID:     productID,
		Quantity:      cmd.Quantity,
		PriceSnapshot: product.Price,
		ExpiresAt:     now.Add(s.lineTTL),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if existing, err := s.carts.Get(ctx, cmd.Owner, productID); err == nil && !existing.CreatedAt.IsZero() {
		line.CreatedAt = existing.CreatedAt
	} else if err != nil && !isRepoNotFound(err) {
		return CartSnapshot{}, s.translateRepoError(err)
	}

	if err := s.carts.Upsert(ctx, line); err != nil {
		return CartSnapshot{}, s.translateRepoError(err)
	}

	s.logger(ctx, "cart.line_upserted", map[string]any{
		"owner":     cmd.Owner.String(),
		"productId": productID,
		"quantity":  cmd.Quantity,
	})
	return s.Snapshot(ctx, cmd.Owner)
}

// RemoveLine drops one product from the cart. Removing an absent line is a
// no-op.
func (s *cartService) RemoveLine(ctx context.Context, cmd RemoveCartLineCommand) (CartSnapshot, error) {
	if s == nil || s.carts == nil {
		return CartSnapshot{}, ErrCartUnavailable
	}
	if !cmd.Owner.Valid() {
		return CartSnapshot{}, ErrCartInvalidInput
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return CartSnapshot{}, ErrCartInvalidInput
	}

	if err := s.carts.Remove(ctx, cmd.Owner, productID); err != nil && !isRepoNotFound(err) {
		return CartSnapshot{}, s.translateRepoError(err)
	}
	return s.Snapshot(ctx, cmd.Owner)
}

// Clear removes every line owned by the key.
func (s *cartService) Clear(ctx context.Context, owner OwnerKey) error {
	if s == nil || s.carts == nil {
		return ErrCartUnavailable
	}
	if !owner.Valid() {
		return ErrCartInvalidInput
	}
	if err := s.carts.Clear(ctx, owner); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

// Reorder merges a past order's lines into the current cart. Quantities add
// onto existing lines and the price snapshot is refreshed to the order's
// frozen unit price, so the buyer sees the price they actually paid.
func (s *cartService) Reorder(ctx context.Context, cmd ReorderCommand) (CartSnapshot, error) {
	if s == nil || s.carts == nil || s.orders == nil {
		return CartSnapshot{}, ErrCartUnavailable
	}
	if !cmd.Owner.Valid() {
		return CartSnapshot{}, ErrCartInvalidInput
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return CartSnapshot{}, ErrCartInvalidInput
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return CartSnapshot{}, ErrCartOrderNotFound
		}
		return CartSnapshot{}, s.translateRepoError(err)
	}
	if order.Owner != cmd.Owner {
		return CartSnapshot{}, ErrForbidden
	}

	now := s.now()
	for _, orderLine := range order.Lines {
		line := domain.CartLine{
			Owner:         cmd.Owner,
			ProductID:     orderLine.ProductID,
			Quantity:      orderLine.Quantity,
			PriceSnapshot: orderLine.UnitPrice,
			ExpiresAt:     now.Add(s.lineTTL),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		existing, err := s.carts.Get(ctx, cmd.Owner, orderLine.ProductID)
		switch {
		case err == nil:
			if existing.ExpiresAt.After(now) {
				line.Quantity += existing.Quantity
			}
			if !existing.CreatedAt.IsZero() {
				line.CreatedAt = existing.CreatedAt
			}
		case isRepoNotFound(err):
		default:
			return CartSnapshot{}, s.translateRepoError(err)
		}

		if err := s.carts.Upsert(ctx, line); err != nil {
			return CartSnapshot{}, s.translateRepoError(err)
		}
	}

	s.logger(ctx, "cart.reordered", map[string]any{
		"owner":   cmd.Owner.String(),
		"orderId": orderID,
		"lines":   len(order.Lines),
	})
	return s.Snapshot(ctx, cmd.Owner)
}

func (s *cartService) buildSnapshot(ctx context.Context, owner OwnerKey, lines []domain.CartLine) (CartSnapshot, error) {
	snapshot := CartSnapshot{Owner: owner, Lines: []CartSnapshotLine{}}
	if len(lines) == 0 {
		return snapshot, nil
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.products.FindMany(ctx, ids)
	if err != nil {
		return CartSnapshot{}, s.translateRepoError(err)
	}

	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			snapshot.UnavailableProducts = append(snapshot.UnavailableProducts, line.ProductID)
			continue
		}
		snapshot.Lines = append(snapshot.Lines, CartSnapshotLine{Line: line, Product: product})
		snapshot.Subtotal += line.Subtotal()
	}
	sort.Slice(snapshot.Lines, func(i, j int) bool {
		return snapshot.Lines[i].Line.CreatedAt.Before(snapshot.Lines[j].Line.CreatedAt)
	})
	sort.Strings(snapshot.UnavailableProducts)
	return snapshot, nil
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrCartProductNotFound
	}
	return ErrCartUnavailable
}
