package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/feiraviva/api/internal/domain"
	"github.com/feiraviva/api/internal/platform/httpx"
	"github.com/feiraviva/api/internal/services"
)

const maxAddressBodySize = 16 * 1024

// AddressHandlers exposes the caller's delivery address book.
type AddressHandlers struct {
	addresses services.AddressService
}

// NewAddressHandlers constructs the address handlers.
func NewAddressHandlers(addresses services.AddressService) *AddressHandlers {
	return &AddressHandlers{addresses: addresses}
}

// Routes wires the /addresses endpoints onto the provided router.
func (h *AddressHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listAddresses)
	r.Post("/", h.saveAddress)
	r.Get("/{addressID}", h.getAddress)
	r.Put("/{addressID}", h.saveAddress)
	r.Delete("/{addressID}", h.deleteAddress)
}

type addressRequest struct {
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type addressPayload struct {
	ID         string `json:"id"`
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

func (h *AddressHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := resolveOwner(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}
	if h.addresses == nil {
		httpx.WriteError(ctx, w, httpx.NewError("addresses_unavailable", "address service is unavailable", http.StatusServiceUnavailable))
		return
	}

	addresses, err := h.addresses.ListAddresses(ctx, owner)
	if err != nil {
		h.writeAddressError(ctx, w, err)
		return
	}

	payload := make([]addressPayload, 0, len(addresses))
	for _, addr := range addresses {
		payload = append(payload, buildAddressPayload(addr))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"addresses": payload})
}

func (h *AddressHandlers) getAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := resolveOwner(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}
	if h.addresses == nil {
		httpx.WriteError(ctx, w, httpx.NewError("addresses_unavailable", "address service is unavailable", http.StatusServiceUnavailable))
		return
	}

	address, err := h.addresses.GetAddress(ctx, owner, chi.URLParam(r, "addressID"))
	if err != nil {
		h.writeAddressError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"address": buildAddressPayload(address)})
}

func (h *AddressHandlers) saveAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := resolveOwner(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}
	if h.addresses == nil {
		httpx.WriteError(ctx, w, httpx.NewError("addresses_unavailable", "address service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxAddressBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req addressRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	saved, err := h.addresses.SaveAddress(ctx, services.SaveAddressCommand{
		Owner:      owner,
		AddressID:  chi.URLParam(r, "addressID"),
		Recipient:  req.Recipient,
		Line1:      req.Line1,
		Line2:      req.Line2,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
	})
	if err != nil {
		h.writeAddressError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, map[string]any{"address": buildAddressPayload(saved)})
}

func (h *AddressHandlers) deleteAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := resolveOwner(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}
	if h.addresses == nil {
		httpx.WriteError(ctx, w, httpx.NewError("addresses_unavailable", "address service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.addresses.DeleteAddress(ctx, owner, chi.URLParam(r, "addressID")); err != nil {
		h.writeAddressError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AddressHandlers) writeAddressError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrAddressInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "address not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAddressUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("addresses_unavailable", "address service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal", "failed to process address request", http.StatusInternalServerError))
	}
}

func buildAddressPayload(addr domain.Address) addressPayload {
	return addressPayload{
		ID:         addr.ID,
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		CreatedAt:  formatTime(addr.CreatedAt),
	}
}
