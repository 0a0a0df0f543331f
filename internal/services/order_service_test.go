package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/feiraviva/api/internal/domain"
	"github.com/feiraviva/api/internal/repositories"
)

func newTestOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService returned error: %v", err)
	}
	return svc
}

func checkoutSnapshot(owner domain.OwnerKey, now time.Time) CartSnapshot {
	return CartSnapshot{
		Owner: owner,
		Lines: []CartSnapshotLine{
			{
				Line:    domain.CartLine{Owner: owner, ProductID: "prod-1", Quantity: 2, PriceSnapshot: 2500, ExpiresAt: now.Add(time.Hour)},
				Product: domain.Product{ID: "prod-1", Name: "Café torrado", Price: 2600, StockAvailable: 10},
			},
			{
				Line:    domain.CartLine{Owner: owner, ProductID: "prod-2", Quantity: 1, PriceSnapshot: 800, ExpiresAt: now.Add(time.Hour)},
				Product: domain.Product{ID: "prod-2", Name: "Rapadura", Price: 800, StockAvailable: 3},
			},
		},
		Subtotal: 5800,
	}
}

func TestOrderServiceCreateOrderFreezesSnapshot(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 1, 15, 0, 0, 0, time.UTC)
	owner := domain.NewUserOwner("user-1")

	var inserted domain.Order
	orders := &stubOrderRepository{
		insertFunc: func(_ context.Context, order domain.Order) error {
			inserted = order
			return nil
		},
	}
	addresses := &stubAddressRepository{
		getFunc: func(_ context.Context, o domain.OwnerKey, addressID string) (domain.Address, error) {
			if o != owner || addressID != "addr-1" {
				t.Fatalf("unexpected address lookup %v %s", o, addressID)
			}
			return domain.Address{ID: "addr-1", Owner: owner}, nil
		},
	}
	snapshots := &stubSnapshotter{
		snapshotFunc: func(context.Context, domain.OwnerKey) (CartSnapshot, error) {
			return checkoutSnapshot(owner, now), nil
		},
	}

	svc := newTestOrderService(t, OrderServiceDeps{
		Snapshots:   snapshots,
		Orders:      orders,
		Addresses:   addresses,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "01HZXORDER00000000000000FX" },
	})

	order, err := svc.CreateOrder(ctx, CreateOrderCommand{
		Owner:             owner,
		DeliveryAddressID: "addr-1",
		ShippingTier:      domain.ShippingExpress,
	})
	if err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}

	if inserted.ID != "01HZXORDER00000000000000FX" {
		t.Fatalf("expected generated id persisted, got %q", inserted.ID)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected PENDENTE, got %s", order.Status)
	}
	if order.Total != 5800 {
		t.Fatalf("expected total 5800, got %d", order.Total)
	}
	if len(order.Lines) != 2 {
		t.Fatalf("expected 2 frozen lines, got %d", len(order.Lines))
	}
	// Unit price comes from the cart snapshot, not the live catalog price.
	if order.Lines[0].UnitPrice != 2500 {
		t.Fatalf("expected frozen unit price 2500, got %d", order.Lines[0].UnitPrice)
	}
	if order.Lines[0].Name != "Café torrado" {
		t.Fatalf("expected product name copied, got %q", order.Lines[0].Name)
	}
	if !order.EstimatedDeliveryDate.Equal(now.Add(5 * 24 * time.Hour)) {
		t.Fatalf("expected express estimate now+5d, got %v", order.EstimatedDeliveryDate)
	}
}

func TestOrderServiceCreateOrderStandardEstimate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 1, 15, 0, 0, 0, time.UTC)
	owner := domain.NewUserOwner("user-1")

	orders := &stubOrderRepository{
		insertFunc: func(context.Context, domain.Order) error { return nil },
	}
	snapshots := &stubSnapshotter{
		snapshotFunc: func(context.Context, domain.OwnerKey) (CartSnapshot, error) {
			return checkoutSnapshot(owner, now), nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{
		Snapshots: snapshots,
		Orders:    orders,
		Addresses: &stubAddressRepository{},
		Clock:     func() time.Time { return now },
	})

	order, err := svc.CreateOrder(ctx, CreateOrderCommand{Owner: owner})
	if err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}
	if order.ShippingTier != domain.ShippingStandard {
		t.Fatalf("expected standard tier default, got %s", order.ShippingTier)
	}
	if !order.EstimatedDeliveryDate.Equal(now.Add(12 * 24 * time.Hour)) {
		t.Fatalf("expected standard estimate now+12d, got %v", order.EstimatedDeliveryDate)
	}
}

func TestOrderServiceCreateOrderEmptyCart(t *testing.T) {
	ctx := context.Background()
	owner := domain.NewUserOwner("user-1")

	svc := newTestOrderService(t, OrderServiceDeps{
		Snapshots: &stubSnapshotter{
			snapshotFunc: func(context.Context, domain.OwnerKey) (CartSnapshot, error) {
				return CartSnapshot{Owner: owner}, nil
			},
		},
		Orders:    &stubOrderRepository{},
		Addresses: &stubAddressRepository{},
	})

	if _, err := svc.CreateOrder(ctx, CreateOrderCommand{Owner: owner}); !errors.Is(err, ErrOrderCartEmpty) {
		t.Fatalf("expected ErrOrderCartEmpty, got %v", err)
	}
}

func TestOrderServiceCreateOrderInsufficientStock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 1, 15, 0, 0, 0, time.UTC)
	owner := domain.NewUserOwner("user-1")

	snapshot := checkoutSnapshot(owner, now)
	snapshot.Lines[1].Product.StockAvailable = 0

	svc := newTestOrderService(t, OrderServiceDeps{
		Snapshots: &stubSnapshotter{
			snapshotFunc: func(context.Context, domain.OwnerKey) (CartSnapshot, error) {
				return snapshot, nil
			},
		},
		Orders:    &stubOrderRepository{},
		Addresses: &stubAddressRepository{},
		Clock:     func() time.Time { return now },
	})

	_, err := svc.CreateOrder(ctx, CreateOrderCommand{Owner: owner})
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.ProductID != "prod-2" || stockErr.Requested != 1 || stockErr.Available != 0 {
		t.Fatalf("unexpected stock error detail %+v", stockErr)
	}
}

func TestOrderServiceCreateOrderInvalidAddress(t *testing.T) {
	ctx := context.Background()
	owner := domain.NewUserOwner("user-1")

	svc := newTestOrderService(t, OrderServiceDeps{
		Snapshots: &stubSnapshotter{},
		Orders:    &stubOrderRepository{},
		Addresses: &stubAddressRepository{
			getFunc: func(context.Context, domain.OwnerKey, string) (domain.Address, error) {
				return domain.Address{}, errStubNotFound
			},
		},
	})

	if _, err := svc.CreateOrder(ctx, CreateOrderCommand{Owner: owner, DeliveryAddressID: "addr-x"}); !errors.Is(err, ErrOrderInvalidAddress) {
		t.Fatalf("expected ErrOrderInvalidAddress, got %v", err)
	}
}

func TestOrderServiceGetOrderOwnership(t *testing.T) {
	ctx := context.Background()
	owner := domain.NewUserOwner("user-1")

	orders := &stubOrderRepository{
		findFunc: func(context.Context, string) (domain.Order, error) {
			return domain.Order{ID: "order-1", Owner: domain.NewSessionOwner("other-session")}, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{
		Snapshots: &stubSnapshotter{},
		Orders:    orders,
		Addresses: &stubAddressRepository{},
	})

	if _, err := svc.GetOrder(ctx, owner, "order-1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestOrderServiceGetOrderNotFound(t *testing.T) {
	ctx := context.Background()
	owner := domain.NewUserOwner("user-1")

	orders := &stubOrderRepository{
		findFunc: func(context.Context, string) (domain.Order, error) {
			return domain.Order{}, errStubNotFound
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{
		Snapshots: &stubSnapshotter{},
		Orders:    orders,
		Addresses: &stubAddressRepository{},
	})

	if _, err := svc.GetOrder(ctx, owner, "missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderServiceListOrdersMapsFilter(t *testing.T) {
	ctx := context.Background()
	owner := domain.NewUserOwner("user-1")
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var captured repositories.OrderListFilter
	orders := &stubOrderRepository{
		listFunc: func(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			captured = filter
			return domain.CursorPage[domain.Order]{Items: []domain.Order{{ID: "order-1", Owner: owner}}}, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{
		Snapshots: &stubSnapshotter{},
		Orders:    orders,
		Addresses: &stubAddressRepository{},
	})

	page, err := svc.ListOrders(ctx, OrderListQuery{
		Owner:      owner,
		Status:     []domain.OrderStatus{domain.OrderStatusPaid},
		From:       &from,
		Pagination: domain.Pagination{PageSize: 10, PageToken: "tok"},
	})
	if err != nil {
		t.Fatalf("ListOrders returned error: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 order, got %d", len(page.Items))
	}
	if captured.Owner != owner {
		t.Fatalf("expected owner filter forwarded, got %v", captured.Owner)
	}
	if len(captured.Status) != 1 || captured.Status[0] != domain.OrderStatusPaid {
		t.Fatalf("expected status filter forwarded, got %v", captured.Status)
	}
	if captured.DateRange.From == nil || !captured.DateRange.From.Equal(from) {
		t.Fatalf("expected from filter forwarded, got %v", captured.DateRange.From)
	}
	if captured.Pagination.PageSize != 10 || captured.Pagination.PageToken != "tok" {
		t.Fatalf("unexpected pagination %+v", captured.Pagination)
	}
}

func TestOrderServiceListOrdersRejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	svc := newTestOrderService(t, OrderServiceDeps{
		Snapshots: &stubSnapshotter{},
		Orders:    &stubOrderRepository{},
		Addresses: &stubAddressRepository{},
	})

	_, err := svc.ListOrders(ctx, OrderListQuery{
		Owner:  domain.NewUserOwner("user-1"),
		Status: []domain.OrderStatus{"SHIPPED"},
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}
