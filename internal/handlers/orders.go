package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/feiraviva/api/internal/domain"
	"github.com/feiraviva/api/internal/platform/httpx"
	"github.com/feiraviva/api/internal/platform/pagination"
	"github.com/feiraviva/api/internal/services"
)

const maxOrderBodySize = 16 * 1024

// OrderHandlers exposes order creation, history, and reorder endpoints.
type OrderHandlers struct {
	orders   services.OrderService
	checkout services.CheckoutService
	carts    services.CartService
}

// NewOrderHandlers constructs the order handlers.
func NewOrderHandlers(orders services.OrderService, checkout services.CheckoutService, carts services.CartService) *OrderHandlers {
	return &OrderHandlers{
		orders:   orders,
		checkout: checkout,
		carts:    carts,
	}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/reorder", h.reorder)
}

type createOrderRequest struct {
	DeliveryAddressID string `json:"deliveryAddressId"`
	ShippingTier      string `json:"shippingTier"`
	PaymentMethod     string `json:"paymentMethod"`
	PayerID           string `json:"payerId"`
}

type createOrderResponse struct {
	OrderID     string       `json:"orderId"`
	PaymentID   string       `json:"paymentId"`
	Total       int64        `json:"total"`
	CheckoutURL string       `json:"checkoutUrl"`
	ExpiresAt   string       `json:"expiresAt,omitempty"`
	Order       orderPayload `json:"order"`
}

type orderLinePayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	LineTotal int64  `json:"lineTotal"`
}

type orderPayload struct {
	ID                    string             `json:"id"`
	Owner                 string             `json:"owner"`
	Status                string             `json:"status"`
	Lines                 []orderLinePayload `json:"lines"`
	Total                 int64              `json:"total"`
	DeliveryAddressID     string             `json:"deliveryAddressId,omitempty"`
	ShippingTier          string             `json:"shippingTier"`
	EstimatedDeliveryDate string             `json:"estimatedDeliveryDate,omitempty"`
	CreatedAt             string             `json:"createdAt,omitempty"`
	UpdatedAt             string             `json:"updatedAt,omitempty"`
}

type orderListResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := resolveOwner(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}
	if h.orders == nil || h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req createOrderRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		Owner:             owner,
		DeliveryAddressID: strings.TrimSpace(req.DeliveryAddressID),
		ShippingTier:      domain.ShippingTier(strings.TrimSpace(req.ShippingTier)),
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	intent, err := h.checkout.CreatePaymentIntent(ctx, services.CreatePaymentIntentCommand{
		Owner:   owner,
		OrderID: order.ID,
		Method:  domain.PaymentMethod(strings.TrimSpace(req.PaymentMethod)),
		PayerID: strings.TrimSpace(req.PayerID),
	})
	if err != nil {
		// The order row survives: a failed session leaves it PENDENTE so the
		// buyer can retry payment without rebuilding the cart.
		h.writeCheckoutError(ctx, w, order.ID, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, createOrderResponse{
		OrderID:     order.ID,
		PaymentID:   intent.PaymentID,
		Total:       intent.Total,
		CheckoutURL: intent.CheckoutURL,
		ExpiresAt:   formatTime(intent.ExpiresAt),
		Order:       buildOrderPayload(order),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := resolveOwner(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	order, err := h.orders.GetOrder(ctx, owner, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := resolveOwner(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: 20,
		MaxPageSize:     100,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.OrderListQuery{
		Owner: owner,
		Pagination: domain.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}
	for _, raw := range r.URL.Query()["status"] {
		for _, status := range strings.Split(raw, ",") {
			if status = strings.TrimSpace(status); status != "" {
				query.Status = append(query.Status, domain.OrderStatus(strings.ToUpper(status)))
			}
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		from, err := parseRFC3339(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "from must be an RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		query.From = &from
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		to, err := parseRFC3339(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "to must be an RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		query.To = &to
	}

	page, err := h.orders.ListOrders(ctx, query)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	resp := orderListResponse{
		Orders:        make([]orderPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		resp.Orders = append(resp.Orders, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *OrderHandlers) reorder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := resolveOwner(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	snapshot, err := h.carts.Reorder(ctx, services.ReorderCommand{
		Owner:   owner,
		OrderID: chi.URLParam(r, "orderID"),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCartInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		case errors.Is(err, services.ErrCartOrderNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("not_found", "order not found", http.StatusNotFound))
		case errors.Is(err, services.ErrForbidden):
			httpx.WriteError(ctx, w, httpx.NewError("forbidden", "order belongs to another buyer", http.StatusForbidden))
		case errors.Is(err, services.ErrCartUnavailable):
			httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("internal", "failed to rebuild cart from order", http.StatusInternalServerError))
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(snapshot)})
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	var stockErr *services.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", stockErr.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{
				"productId": stockErr.ProductID,
				"requested": stockErr.Requested,
				"available": stockErr.Available,
			}))
	case errors.Is(err, services.ErrOrderCartEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "cart is empty", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidAddress):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_address", "delivery address not found", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "order belongs to another buyer", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal", "failed to process order request", http.StatusInternalServerError))
	}
}

func (h *OrderHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, orderID string, err error) {
	details := map[string]any{"orderId": orderID}
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest).WithDetails(details))
	case errors.Is(err, services.ErrCheckoutOrderNotPending):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "order is not pending", http.StatusConflict).WithDetails(details))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment session could not be created", http.StatusBadGateway).WithDetails(details))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable).WithDetails(details))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal", "failed to open checkout session", http.StatusInternalServerError).WithDetails(details))
	}
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:                    order.ID,
		Owner:                 order.Owner.String(),
		Status:                string(order.Status),
		Lines:                 make([]orderLinePayload, 0, len(order.Lines)),
		Total:                 order.Total,
		DeliveryAddressID:     order.DeliveryAddressID,
		ShippingTier:          string(order.ShippingTier),
		CreatedAt:             formatTime(order.CreatedAt),
		UpdatedAt:             formatTime(order.UpdatedAt),
	}
	if !order.EstimatedDeliveryDate.IsZero() {
		payload.EstimatedDeliveryDate = order.EstimatedDeliveryDate.UTC().Format(time.RFC3339)
	}
	for _, line := range order.Lines {
		payload.Lines = append(payload.Lines, orderLinePayload{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.Subtotal(),
		})
	}
	return payload
}
