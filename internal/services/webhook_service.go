package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/feiraviva/api/internal/payments"
	"github.com/feiraviva/api/internal/repositories"
)

const (
	orderEventPaid            = "order.paid"
	orderEventPaymentCanceled = "payment.canceled"
)

var (
	// ErrWebhookInvalidEvent indicates the event lacks the fields needed to reconcile it.
	ErrWebhookInvalidEvent = errors.New("webhook: invalid event")
	// ErrWebhookUnavailable indicates the reconciler backend is unavailable.
	ErrWebhookUnavailable = errors.New("webhook: unavailable")
	// ErrWebhookOrderNotFound indicates the event references an order this system never created.
	ErrWebhookOrderNotFound = errors.New("webhook: order not found")
)

// paymentRefunder abstracts the payments.Manager calls used to unwind a
// charge captured by a superseded checkout session.
type paymentRefunder interface {
	LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
	Refund(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error)
}

// WebhookServiceDeps wires the reconciler dependencies.
type WebhookServiceDeps struct {
	Reconciliation repositories.ReconciliationRepository
	Payments       repositories.PaymentRepository
	Refunder       paymentRefunder
	Publisher      OrderEventPublisher
	Clock          func() time.Time
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type webhookService struct {
	reconciliation repositories.ReconciliationRepository
	payments       repositories.PaymentRepository
	refunder       paymentRefunder
	publisher      OrderEventPublisher
	now            func() time.Time
	logger         func(ctx context.Context, event string, fields map[string]any)
}

// NewWebhookService constructs the processor event reconciler.
func NewWebhookService(deps WebhookServiceDeps) (WebhookService, error) {
	if deps.Reconciliation == nil {
		return nil, errors.New("webhook service: reconciliation repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("webhook service: payment repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &webhookService{
		reconciliation: deps.Reconciliation,
		payments:       deps.Payments,
		refunder:       deps.Refunder,
		publisher:      deps.Publisher,
		now:            func() time.Time { return clock().UTC() },
		logger:         logger,
	}, nil
}

// HandleEvent applies one verified processor event. Settlement and
// cancellation run atomically with the event ledger, so a redelivered event
// reports Duplicate instead of mutating anything twice.
func (s *webhookService) HandleEvent(ctx context.Context, event payments.ProcessorEvent) (WebhookEventResult, error) {
	if s == nil || s.reconciliation == nil {
		return WebhookEventResult{}, ErrWebhookUnavailable
	}
	if strings.TrimSpace(event.ID) == "" {
		return WebhookEventResult{}, ErrWebhookInvalidEvent
	}

	switch event.Outcome {
	case payments.OutcomePaid:
		return s.settle(ctx, event)
	case payments.OutcomeCanceled:
		return s.cancel(ctx, event)
	default:
		s.logger(ctx, "webhook.event_ignored", map[string]any{
			"eventId":   event.ID,
			"eventType": event.Type,
		})
		return WebhookEventResult{Ignored: true}, nil
	}
}

func (s *webhookService) settle(ctx context.Context, event payments.ProcessorEvent) (WebhookEventResult, error) {
	orderID, err := s.resolveOrderID(ctx, event)
	if err != nil {
		return WebhookEventResult{}, err
	}

	result, err := s.reconciliation.Settle(ctx, repositories.SettlementRequest{
		EventID:   event.ID,
		EventType: event.Type,
		OrderID:   orderID,
		SessionID: event.SessionID,
		IntentID:  event.IntentID,
		Now:       s.now(),
	})
	if err != nil {
		return WebhookEventResult{}, s.translateReconciliationError(ctx, event, err)
	}
	if result.AlreadyApplied {
		s.logger(ctx, "webhook.event_duplicate", map[string]any{
			"eventId": event.ID,
			"orderId": orderID,
		})
		if result.DuplicateCharge {
			s.refundDuplicateCharge(ctx, event, orderID)
		}
		return WebhookEventResult{Duplicate: true, OrderID: orderID}, nil
	}

	s.logger(ctx, "webhook.order_settled", map[string]any{
		"eventId":      event.ID,
		"orderId":      result.Order.ID,
		"clearedLines": result.ClearedLines,
	})
	s.publish(ctx, OrderEventMessage{
		EventType:  orderEventPaid,
		OrderID:    result.Order.ID,
		OwnerKey:   result.Order.Owner.String(),
		Status:     string(result.Order.Status),
		Total:      result.Order.Total,
		OccurredAt: s.now(),
	})
	return WebhookEventResult{Applied: true, OrderID: result.Order.ID}, nil
}

func (s *webhookService) cancel(ctx context.Context, event payments.ProcessorEvent) (WebhookEventResult, error) {
	orderID, err := s.resolveOrderID(ctx, event)
	if err != nil {
		return WebhookEventResult{}, err
	}

	result, err := s.reconciliation.CancelPayments(ctx, repositories.CancellationRequest{
		EventID:   event.ID,
		EventType: event.Type,
		OrderID:   orderID,
		SessionID: event.SessionID,
		Now:       s.now(),
	})
	if err != nil {
		return WebhookEventResult{}, s.translateReconciliationError(ctx, event, err)
	}
	if result.AlreadyApplied {
		return WebhookEventResult{Duplicate: true, OrderID: orderID}, nil
	}

	s.logger(ctx, "webhook.payments_canceled", map[string]any{
		"eventId":  event.ID,
		"orderId":  orderID,
		"payments": len(result.Payments),
	})
	for _, payment := range result.Payments {
		s.publish(ctx, OrderEventMessage{
			EventType:  orderEventPaymentCanceled,
			OrderID:    orderID,
			Status:     string(payment.Status),
			Total:      payment.Amount,
			OccurredAt: s.now(),
		})
	}
	return WebhookEventResult{Applied: true, OrderID: orderID}, nil
}

// refundDuplicateCharge unwinds money captured by a session that lost the
// settlement race. Best effort: the ledger entry is committed either way, a
// failed refund is logged for manual follow-up.
func (s *webhookService) refundDuplicateCharge(ctx context.Context, event payments.ProcessorEvent, orderID string) {
	if s.refunder == nil {
		return
	}
	intentID := strings.TrimSpace(event.IntentID)
	if intentID == "" {
		return
	}
	details, err := s.refunder.LookupPayment(ctx, payments.PaymentContext{Currency: event.Currency}, payments.LookupRequest{IntentID: intentID})
	if err != nil {
		s.logger(ctx, "webhook.duplicate_lookup_failed", map[string]any{
			"eventId":  event.ID,
			"orderId":  orderID,
			"intentId": intentID,
			"error":    err.Error(),
		})
		return
	}
	if !details.Captured || details.Status == payments.StatusRefunded {
		return
	}
	if _, err := s.refunder.Refund(ctx, payments.PaymentContext{PreferredProvider: details.Provider, Currency: event.Currency}, payments.RefundRequest{
		IntentID:       intentID,
		Reason:         "duplicate",
		IdempotencyKey: event.ID,
	}); err != nil {
		s.logger(ctx, "webhook.duplicate_refund_failed", map[string]any{
			"eventId":  event.ID,
			"orderId":  orderID,
			"intentId": intentID,
			"error":    err.Error(),
		})
		return
	}
	s.logger(ctx, "webhook.duplicate_refunded", map[string]any{
		"eventId":  event.ID,
		"orderId":  orderID,
		"intentId": intentID,
	})
}

// resolveOrderID prefers the metadata stamped at session creation, falling
// back to the payment row recorded for the checkout session.
func (s *webhookService) resolveOrderID(ctx context.Context, event payments.ProcessorEvent) (string, error) {
	if orderID := strings.TrimSpace(event.OrderID); orderID != "" {
		return orderID, nil
	}
	sessionID := strings.TrimSpace(event.SessionID)
	if sessionID == "" {
		return "", ErrWebhookInvalidEvent
	}
	payment, err := s.payments.FindBySession(ctx, sessionID)
	if err != nil {
		if isRepoNotFound(err) {
			return "", ErrWebhookInvalidEvent
		}
		return "", ErrWebhookUnavailable
	}
	return payment.OrderID, nil
}

func (s *webhookService) translateReconciliationError(ctx context.Context, event payments.ProcessorEvent, err error) error {
	var recErr *repositories.ReconciliationError
	if errors.As(err, &recErr) {
		s.logger(ctx, "webhook.reconciliation_failed", map[string]any{
			"eventId": event.ID,
			"code":    string(recErr.Code),
			"error":   recErr.Error(),
		})
		switch recErr.Code {
		case repositories.ReconciliationErrorOrderNotFound:
			return ErrWebhookOrderNotFound
		case repositories.ReconciliationErrorPaymentNotFound, repositories.ReconciliationErrorInvalidState:
			return ErrWebhookInvalidEvent
		}
	}
	return ErrWebhookUnavailable
}

// publish is fire and forget: a broker outage must not fail the webhook, the
// ledger entry is already committed.
func (s *webhookService) publish(ctx context.Context, message OrderEventMessage) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, "webhook.publish_failed", map[string]any{
			"eventType": message.EventType,
			"orderId":   message.OrderID,
			"error":     err.Error(),
		})
	}
}
