package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/feiraviva/api/internal/domain"
	"github.com/feiraviva/api/internal/platform/auth"
	"github.com/feiraviva/api/internal/services"
)

func orderFixture(owner domain.OwnerKey, now time.Time) domain.Order {
	return domain.Order{
		ID:     "order-1",
		Owner:  owner,
		Status: domain.OrderStatusPending,
		Lines: []domain.OrderLine{
			{ProductID: "prod-1", Name: "Mel silvestre", Quantity: 2, UnitPrice: 1500},
		},
		Total:                 3000,
		ShippingTier:          domain.ShippingStandard,
		EstimatedDeliveryDate: now.Add(12 * 24 * time.Hour),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func TestOrderHandlersCreateOrder(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	owner := domain.NewUserOwner("user-1")

	var orderCmd services.CreateOrderCommand
	orders := &stubOrderService{
		createFunc: func(_ context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
			orderCmd = cmd
			return orderFixture(owner, now), nil
		},
	}
	var intentCmd services.CreatePaymentIntentCommand
	checkout := &stubCheckoutService{
		createFunc: func(_ context.Context, cmd services.CreatePaymentIntentCommand) (services.PaymentIntent, error) {
			intentCmd = cmd
			return services.PaymentIntent{
				OrderID:     "order-1",
				PaymentID:   "pay-1",
				Total:       3000,
				CheckoutURL: "https://pay.example/cs_1",
				ExpiresAt:   now.Add(30 * time.Minute),
			}, nil
		},
	}

	router := chi.NewRouter()
	NewOrderHandlers(orders, checkout, &stubCartService{}).Routes(router)

	payload := `{"deliveryAddressId":"addr-1","shippingTier":"standard","paymentMethod":"pix"}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(payload))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if orderCmd.DeliveryAddressID != "addr-1" || orderCmd.ShippingTier != domain.ShippingStandard {
		t.Fatalf("unexpected order command %+v", orderCmd)
	}
	if intentCmd.OrderID != "order-1" || intentCmd.Method != domain.PaymentMethodPix {
		t.Fatalf("unexpected intent command %+v", intentCmd)
	}

	var resp createOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.OrderID != "order-1" || resp.PaymentID != "pay-1" || resp.Total != 3000 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.CheckoutURL != "https://pay.example/cs_1" {
		t.Fatalf("unexpected checkout url %q", resp.CheckoutURL)
	}
	if resp.Order.Status != "PENDENTE" {
		t.Fatalf("unexpected order status %q", resp.Order.Status)
	}
}

func TestOrderHandlersCreateOrderEmptyCart(t *testing.T) {
	orders := &stubOrderService{
		createFunc: func(context.Context, services.CreateOrderCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderCartEmpty
		},
	}

	router := chi.NewRouter()
	NewOrderHandlers(orders, &stubCheckoutService{}, &stubCartService{}).Routes(router)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{}`))
	req = req.WithContext(auth.WithSession(req.Context(), "sess-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["error"] != "empty_cart" {
		t.Fatalf("expected empty_cart error, got %v", body["error"])
	}
}

func TestOrderHandlersCreateOrderInsufficientStock(t *testing.T) {
	orders := &stubOrderService{
		createFunc: func(context.Context, services.CreateOrderCommand) (domain.Order, error) {
			return domain.Order{}, &services.InsufficientStockError{ProductID: "prod-2", Requested: 3, Available: 1}
		},
	}

	router := chi.NewRouter()
	NewOrderHandlers(orders, &stubCheckoutService{}, &stubCartService{}).Routes(router)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{}`))
	req = req.WithContext(auth.WithSession(req.Context(), "sess-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["error"] != "insufficient_stock" {
		t.Fatalf("expected insufficient_stock error, got %v", body["error"])
	}
	if body["productId"] != "prod-2" {
		t.Fatalf("expected productId detail, got %v", body["productId"])
	}
}

func TestOrderHandlersCreateOrderPaymentFailure(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	owner := domain.NewUserOwner("user-1")

	orders := &stubOrderService{
		createFunc: func(context.Context, services.CreateOrderCommand) (domain.Order, error) {
			return orderFixture(owner, now), nil
		},
	}
	checkout := &stubCheckoutService{
		createFunc: func(context.Context, services.CreatePaymentIntentCommand) (services.PaymentIntent, error) {
			return services.PaymentIntent{}, services.ErrCheckoutPaymentFailed
		},
	}

	router := chi.NewRouter()
	NewOrderHandlers(orders, checkout, &stubCartService{}).Routes(router)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["error"] != "payment_failed" {
		t.Fatalf("expected payment_failed error, got %v", body["error"])
	}
	// The order id is surfaced so the client can retry payment.
	if body["orderId"] != "order-1" {
		t.Fatalf("expected orderId detail, got %v", body["orderId"])
	}
}

func TestOrderHandlersGetOrder(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	owner := domain.NewUserOwner("user-1")

	orders := &stubOrderService{
		getFunc: func(_ context.Context, got domain.OwnerKey, orderID string) (domain.Order, error) {
			if got != owner || orderID != "order-1" {
				t.Fatalf("unexpected lookup %v %s", got, orderID)
			}
			return orderFixture(owner, now), nil
		},
	}

	router := chi.NewRouter()
	NewOrderHandlers(orders, &stubCheckoutService{}, &stubCartService{}).Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/order-1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestOrderHandlersGetOrderForbidden(t *testing.T) {
	orders := &stubOrderService{
		getFunc: func(context.Context, domain.OwnerKey, string) (domain.Order, error) {
			return domain.Order{}, services.ErrForbidden
		},
	}

	router := chi.NewRouter()
	NewOrderHandlers(orders, &stubCheckoutService{}, &stubCartService{}).Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/order-1", nil)
	req = req.WithContext(auth.WithSession(req.Context(), "sess-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestOrderHandlersListOrdersForwardsFilters(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	owner := domain.NewUserOwner("user-1")

	var captured services.OrderListQuery
	orders := &stubOrderService{
		listFunc: func(_ context.Context, query services.OrderListQuery) (domain.CursorPage[domain.Order], error) {
			captured = query
			return domain.CursorPage[domain.Order]{
				Items:         []domain.Order{orderFixture(owner, now)},
				NextPageToken: "next-token",
			}, nil
		},
	}

	router := chi.NewRouter()
	NewOrderHandlers(orders, &stubCheckoutService{}, &stubCartService{}).Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/?status=pago,pendente&pageSize=10&from=2025-01-01T00:00:00Z", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Owner != owner {
		t.Fatalf("unexpected owner %v", captured.Owner)
	}
	if len(captured.Status) != 2 || captured.Status[0] != domain.OrderStatusPaid || captured.Status[1] != domain.OrderStatusPending {
		t.Fatalf("unexpected status filter %v", captured.Status)
	}
	if captured.Pagination.PageSize != 10 {
		t.Fatalf("unexpected page size %d", captured.Pagination.PageSize)
	}
	if captured.From == nil || !captured.From.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected from filter %v", captured.From)
	}

	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Orders) != 1 || resp.NextPageToken != "next-token" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestOrderHandlersReorder(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	owner := domain.NewUserOwner("user-1")

	var captured services.ReorderCommand
	carts := &stubCartService{
		reorderFunc: func(_ context.Context, cmd services.ReorderCommand) (services.CartSnapshot, error) {
			captured = cmd
			return snapshotFixture(owner, now), nil
		},
	}

	router := chi.NewRouter()
	NewOrderHandlers(&stubOrderService{}, &stubCheckoutService{}, carts).Routes(router)

	req := httptest.NewRequest(http.MethodPost, "/order-1/reorder", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "order-1" || captured.Owner != owner {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestOrderHandlersReorderForeignOrder(t *testing.T) {
	carts := &stubCartService{
		reorderFunc: func(context.Context, services.ReorderCommand) (services.CartSnapshot, error) {
			return services.CartSnapshot{}, services.ErrForbidden
		},
	}

	router := chi.NewRouter()
	NewOrderHandlers(&stubOrderService{}, &stubCheckoutService{}, carts).Routes(router)

	req := httptest.NewRequest(http.MethodPost, "/order-1/reorder", nil)
	req = req.WithContext(auth.WithSession(req.Context(), "sess-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}
