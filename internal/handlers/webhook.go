package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/feiraviva/api/internal/payments"
	"github.com/feiraviva/api/internal/platform/httpx"
	"github.com/feiraviva/api/internal/services"
)

const maxWebhookBodySize = 256 * 1024

// WebhookHandlers receives signed payment processor notifications.
type WebhookHandlers struct {
	verifier payments.WebhookVerifier
	webhooks services.WebhookService
}

// NewWebhookHandlers constructs the processor webhook handlers.
func NewWebhookHandlers(verifier payments.WebhookVerifier, webhooks services.WebhookService) *WebhookHandlers {
	return &WebhookHandlers{
		verifier: verifier,
		webhooks: webhooks,
	}
}

// Routes wires the /webhooks endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
}

type webhookResponse struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
	OrderID   string `json:"orderId,omitempty"`
}

// handleStripe verifies the signature and hands the event to the reconciler.
// A failed settlement answers non-2xx so the processor redelivers; the event
// ledger makes the redelivery harmless.
func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.verifier == nil || h.webhooks == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook processing is unavailable", http.StatusServiceUnavailable))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize+1))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
		return
	}
	if len(payload) == 0 || len(payload) > maxWebhookBodySize {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid request body", http.StatusBadRequest))
		return
	}

	event, err := h.verifier.VerifyAndParse(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "webhook payload could not be parsed", http.StatusBadRequest))
		return
	}

	result, err := h.webhooks.HandleEvent(ctx, event)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrWebhookInvalidEvent):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "event cannot be reconciled", http.StatusBadRequest))
		case errors.Is(err, services.ErrWebhookOrderNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("not_found", "order referenced by event not found", http.StatusNotFound))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "event could not be applied", http.StatusServiceUnavailable))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, webhookResponse{
		Received:  true,
		Duplicate: result.Duplicate,
		Ignored:   result.Ignored,
		OrderID:   result.OrderID,
	})
}
