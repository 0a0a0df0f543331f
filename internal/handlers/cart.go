package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/feiraviva/api/internal/platform/httpx"
	"github.com/feiraviva/api/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes the cart endpoints for authenticated users and guests.
type CartHandlers struct {
	carts services.CartService
}

// NewCartHandlers constructs the cart handlers.
func NewCartHandlers(carts services.CartService) *CartHandlers {
	return &CartHandlers{carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Put("/items/{productID}", h.upsertItem)
	r.Delete("/items/{productID}", h.removeItem)
}

type cartLinePayload struct {
	ProductID     string `json:"productId"`
	Name          string `json:"name,omitempty"`
	Quantity      int    `json:"quantity"`
	UnitPrice     int64  `json:"unitPrice"`
	LineTotal     int64  `json:"lineTotal"`
	CurrentPrice  int64  `json:"currentPrice,omitempty"`
	StockLeft     int    `json:"stockAvailable,omitempty"`
	ExpiresAt     string `json:"expiresAt,omitempty"`
}

type cartPayload struct {
	Owner               string            `json:"owner"`
	Items               []cartLinePayload `json:"items"`
	Subtotal            int64             `json:"subtotal"`
	UnavailableProducts []string          `json:"unavailableProducts,omitempty"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type upsertCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
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

	snapshot, err := h.carts.Snapshot(ctx, owner)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(snapshot)})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
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

	if err := h.carts.Clear(ctx, owner); err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) upsertItem(w http.ResponseWriter, r *http.Request) {
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

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productID is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req upsertCartItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	snapshot, err := h.carts.UpsertLine(ctx, services.UpsertCartLineCommand{
		Owner:     owner,
		ProductID: productID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(snapshot)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
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

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productID is required", http.StatusBadRequest))
		return
	}

	snapshot, err := h.carts.RemoveLine(ctx, services.RemoveCartLineCommand{
		Owner:     owner,
		ProductID: productID,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(snapshot)})
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "order belongs to another buyer", http.StatusForbidden))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal", "failed to process cart request", http.StatusInternalServerError))
	}
}

func buildCartPayload(snapshot services.CartSnapshot) cartPayload {
	payload := cartPayload{
		Owner:               snapshot.Owner.String(),
		Items:               make([]cartLinePayload, 0, len(snapshot.Lines)),
		Subtotal:            snapshot.Subtotal,
		UnavailableProducts: snapshot.UnavailableProducts,
	}
	for _, line := range snapshot.Lines {
		payload.Items = append(payload.Items, cartLinePayload{
			ProductID:     line.Line.ProductID,
			Name:          line.Product.Name,
			Quantity:      line.Line.Quantity,
			UnitPrice:     line.Line.PriceSnapshot,
			LineTotal:     line.Line.Subtotal(),
			CurrentPrice:  line.Product.Price,
			StockLeft:     line.Product.StockAvailable,
			ExpiresAt:     formatTime(line.Line.ExpiresAt),
		})
	}
	return payload
}
