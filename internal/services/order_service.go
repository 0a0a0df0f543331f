package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/feiraviva/api/internal/domain"
	"github.com/feiraviva/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput indicates the caller supplied invalid input.
	ErrOrderInvalidInput = errors.New("order service: invalid input")
	// ErrOrderUnavailable indicates order dependencies are currently unavailable.
	ErrOrderUnavailable = errors.New("order service: unavailable")
	// ErrOrderNotFound indicates the requested order does not exist.
	ErrOrderNotFound = errors.New("order service: not found")
	// ErrOrderCartEmpty indicates checkout was attempted on an empty cart.
	ErrOrderCartEmpty = errors.New("order service: cart is empty")
	// ErrOrderInvalidAddress indicates the delivery address does not exist or belongs to someone else.
	ErrOrderInvalidAddress = errors.New("order service: invalid address")
)

// InsufficientStockError reports which product blocked order creation.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("order service: insufficient stock for %s (requested %d, available %d)", e.ProductID, e.Requested, e.Available)
}

// cartSnapshotter is the slice of CartService the order factory consumes.
type cartSnapshotter interface {
	Snapshot(ctx context.Context, owner OwnerKey) (CartSnapshot, error)
}

// OrderServiceDeps wires the dependencies required by the order service.
type OrderServiceDeps struct {
	Snapshots   cartSnapshotter
	Orders      repositories.OrderRepository
	Addresses   repositories.AddressRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	snapshots cartSnapshotter
	orders    repositories.OrderRepository
	addresses repositories.AddressRepository
	now       func() time.Time
	newID     func() string
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Snapshots == nil {
		return nil, errors.New("order service: cart snapshotter is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("order service: address repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		snapshots: deps.Snapshots,
		orders:    deps.Orders,
		addresses: deps.Addresses,
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

// CreateOrder freezes the cart snapshot into a pending order. Line prices are
// copied from the snapshot and never change afterwards.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	if !cmd.Owner.Valid() {
		return Order{}, ErrOrderInvalidInput
	}
	tier := cmd.ShippingTier
	if tier == "" {
		tier = domain.ShippingStandard
	}
	if !tier.Valid() {
		return Order{}, ErrOrderInvalidInput
	}

	addressID := strings.TrimSpace(cmd.DeliveryAddressID)
	if addressID != "" {
		if _, err := s.addresses.Get(ctx, cmd.Owner, addressID); err != nil {
			if isRepoNotFound(err) {
				return Order{}, ErrOrderInvalidAddress
			}
			return Order{}, ErrOrderUnavailable
		}
	}

	snapshot, err := s.snapshots.Snapshot(ctx, cmd.Owner)
	if err != nil {
		return Order{}, s.translateSnapshotError(err)
	}
	if len(snapshot.Lines) == 0 {
		return Order{}, ErrOrderCartEmpty
	}

	// Courtesy check only. Stock is decremented at settlement, not here, and
	// may still go negative when concurrent orders settle.
	for _, line := range snapshot.Lines {
		if line.Product.StockAvailable < line.Line.Quantity {
			return Order{}, &InsufficientStockError{
				ProductID: line.Line.ProductID,
				Requested: line.Line.Quantity,
				Available: line.Product.StockAvailable,
			}
		}
	}

	now := s.now()
	lines := make([]domain.OrderLine, 0, len(snapshot.Lines))
	var total int64
	for _, line := range snapshot.Lines {
		orderLine := domain.OrderLine{
			ProductID: line.Line.ProductID,
			Name:      line.Product.Name,
			Quantity:  line.Line.Quantity,
			UnitPrice: line.Line.PriceSnapshot,
		}
		lines = append(lines, orderLine)
		total += orderLine.Subtotal()
	}

	order := domain.Order{
		ID:                    s.newID(),
		Owner:                 cmd.Owner,
		Status:                domain.OrderStatusPending,
		Lines:                 lines,
		Total:                 total,
		DeliveryAddressID:     addressID,
		ShippingTier:          tier,
		EstimatedDeliveryDate: tier.DeliveryEstimate(now),
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, ErrOrderUnavailable
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderId": order.ID,
		"owner":   order.Owner.String(),
		"total":   order.Total,
		"lines":   len(order.Lines),
	})
	return order, nil
}

// GetOrder fetches one order and enforces ownership.
func (s *orderService) GetOrder(ctx context.Context, owner OwnerKey, orderID string) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	if !owner.Valid() || strings.TrimSpace(orderID) == "" {
		return Order{}, ErrOrderInvalidInput
	}

	order, err := s.orders.FindByID(ctx, strings.TrimSpace(orderID))
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, ErrOrderUnavailable
	}
	if order.Owner != owner {
		return Order{}, ErrForbidden
	}
	return order, nil
}

// ListOrders returns the caller's order history, newest first.
func (s *orderService) ListOrders(ctx context.Context, query OrderListQuery) (domain.CursorPage[Order], error) {
	if s == nil || s.orders == nil {
		return domain.CursorPage[Order]{}, ErrOrderUnavailable
	}
	if !query.Owner.Valid() {
		return domain.CursorPage[Order]{}, ErrOrderInvalidInput
	}
	for _, status := range query.Status {
		switch status {
		case domain.OrderStatusPending, domain.OrderStatusPaid, domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusCanceled:
		default:
			return domain.CursorPage[Order]{}, ErrOrderInvalidInput
		}
	}

	filter := repositories.OrderListFilter{
		Owner:      query.Owner,
		Status:     query.Status,
		Pagination: query.Pagination,
	}
	filter.DateRange.From = query.From
	filter.DateRange.To = query.To

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, ErrOrderUnavailable
	}
	return page, nil
}

func (s *orderService) translateSnapshotError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCartInvalidInput):
		return ErrOrderInvalidInput
	default:
		return ErrOrderUnavailable
	}
}
