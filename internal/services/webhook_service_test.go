package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/feiraviva/api/internal/domain"
	"github.com/feiraviva/api/internal/payments"
	"github.com/feiraviva/api/internal/repositories"
)

func newTestWebhookService(t *testing.T, deps WebhookServiceDeps) WebhookService {
	t.Helper()
	svc, err := NewWebhookService(deps)
	if err != nil {
		t.Fatalf("NewWebhookService returned error: %v", err)
	}
	return svc
}

func TestWebhookServiceSettlesPaidEvent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
	owner := domain.NewUserOwner("user-1")

	var captured repositories.SettlementRequest
	reconciliation := &stubReconciliationRepository{
		settleFunc: func(_ context.Context, req repositories.SettlementRequest) (repositories.SettlementResult, error) {
			captured = req
			return repositories.SettlementResult{
				Order: domain.Order{ID: "order-1", Owner: owner, Status: domain.OrderStatusPaid, Total: 5000},
			}, nil
		},
	}
	publisher := &stubPublisher{}

	svc := newTestWebhookService(t, WebhookServiceDeps{
		Reconciliation: reconciliation,
		Payments:       &stubPaymentRepository{},
		Publisher:      publisher,
		Clock:          func() time.Time { return now },
	})

	result, err := svc.HandleEvent(ctx, payments.ProcessorEvent{
		ID:        "evt_1",
		Type:      "checkout.session.completed",
		Outcome:   payments.OutcomePaid,
		SessionID: "cs_1",
		IntentID:  "pi_1",
		OrderID:   "order-1",
	})
	if err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if !result.Applied || result.OrderID != "order-1" {
		t.Fatalf("unexpected result %+v", result)
	}
	if captured.EventID != "evt_1" || captured.OrderID != "order-1" || captured.SessionID != "cs_1" {
		t.Fatalf("unexpected settlement request %+v", captured)
	}
	if len(publisher.messages) != 1 {
		t.Fatalf("expected one published message, got %d", len(publisher.messages))
	}
	msg := publisher.messages[0]
	if msg.EventType != "order.paid" || msg.OrderID != "order-1" || msg.Total != 5000 {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.OwnerKey != owner.String() || msg.Status != "PAGO" {
		t.Fatalf("unexpected message identity %+v", msg)
	}
}

func TestWebhookServiceDuplicateEvent(t *testing.T) {
	ctx := context.Background()

	reconciliation := &stubReconciliationRepository{
		settleFunc: func(context.Context, repositories.SettlementRequest) (repositories.SettlementResult, error) {
			return repositories.SettlementResult{AlreadyApplied: true}, nil
		},
	}
	publisher := &stubPublisher{}

	svc := newTestWebhookService(t, WebhookServiceDeps{
		Reconciliation: reconciliation,
		Payments:       &stubPaymentRepository{},
		Publisher:      publisher,
	})

	result, err := svc.HandleEvent(ctx, payments.ProcessorEvent{
		ID:      "evt_1",
		Outcome: payments.OutcomePaid,
		OrderID: "order-1",
	})
	if err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if !result.Duplicate || result.Applied {
		t.Fatalf("expected duplicate result, got %+v", result)
	}
	if len(publisher.messages) != 0 {
		t.Fatalf("duplicate must not republish, got %d messages", len(publisher.messages))
	}
}

func TestWebhookServiceRefundsDuplicateCharge(t *testing.T) {
	ctx := context.Background()

	reconciliation := &stubReconciliationRepository{
		settleFunc: func(context.Context, repositories.SettlementRequest) (repositories.SettlementResult, error) {
			return repositories.SettlementResult{AlreadyApplied: true, DuplicateCharge: true}, nil
		},
	}
	var refunded []payments.RefundRequest
	refunder := &stubRefunder{
		lookupFunc: func(_ context.Context, _ payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error) {
			if req.IntentID != "pi_dup" {
				t.Fatalf("unexpected lookup %+v", req)
			}
			return payments.PaymentDetails{Provider: "stripe", IntentID: "pi_dup", Status: payments.StatusSucceeded, Captured: true}, nil
		},
		refundFunc: func(_ context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error) {
			if paymentCtx.PreferredProvider != "stripe" {
				t.Fatalf("unexpected provider %q", paymentCtx.PreferredProvider)
			}
			refunded = append(refunded, req)
			return payments.PaymentDetails{IntentID: req.IntentID, Status: payments.StatusRefunded}, nil
		},
	}

	svc := newTestWebhookService(t, WebhookServiceDeps{
		Reconciliation: reconciliation,
		Payments:       &stubPaymentRepository{},
		Refunder:       refunder,
	})

	result, err := svc.HandleEvent(ctx, payments.ProcessorEvent{
		ID:        "evt_dup",
		Outcome:   payments.OutcomePaid,
		OrderID:   "order-1",
		SessionID: "cs_second",
		IntentID:  "pi_dup",
	})
	if err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if !result.Duplicate {
		t.Fatalf("expected duplicate result, got %+v", result)
	}
	if len(refunded) != 1 {
		t.Fatalf("expected one refund, got %d", len(refunded))
	}
	if refunded[0].IntentID != "pi_dup" || refunded[0].IdempotencyKey != "evt_dup" {
		t.Fatalf("unexpected refund request %+v", refunded[0])
	}
}

func TestWebhookServiceRedeliveryDoesNotRefund(t *testing.T) {
	ctx := context.Background()

	reconciliation := &stubReconciliationRepository{
		settleFunc: func(context.Context, repositories.SettlementRequest) (repositories.SettlementResult, error) {
			return repositories.SettlementResult{AlreadyApplied: true}, nil
		},
	}
	refunder := &stubRefunder{
		lookupFunc: func(context.Context, payments.PaymentContext, payments.LookupRequest) (payments.PaymentDetails, error) {
			t.Fatal("redelivered event must not trigger a PSP lookup")
			return payments.PaymentDetails{}, nil
		},
	}

	svc := newTestWebhookService(t, WebhookServiceDeps{
		Reconciliation: reconciliation,
		Payments:       &stubPaymentRepository{},
		Refunder:       refunder,
	})

	result, err := svc.HandleEvent(ctx, payments.ProcessorEvent{
		ID:       "evt_redelivered",
		Outcome:  payments.OutcomePaid,
		OrderID:  "order-1",
		IntentID: "pi_settled",
	})
	if err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if !result.Duplicate {
		t.Fatalf("expected duplicate result, got %+v", result)
	}
}

func TestWebhookServiceCanceledEvent(t *testing.T) {
	ctx := context.Background()

	reconciliation := &stubReconciliationRepository{
		cancelFunc: func(_ context.Context, req repositories.CancellationRequest) (repositories.CancellationResult, error) {
			if req.OrderID != "order-1" {
				t.Fatalf("unexpected cancel request %+v", req)
			}
			return repositories.CancellationResult{
				Payments: []domain.Payment{
					{ID: "pay-1", OrderID: "order-1", Amount: 5000, Status: domain.PaymentStatusCanceled},
				},
			}, nil
		},
	}
	publisher := &stubPublisher{}

	svc := newTestWebhookService(t, WebhookServiceDeps{
		Reconciliation: reconciliation,
		Payments:       &stubPaymentRepository{},
		Publisher:      publisher,
	})

	result, err := svc.HandleEvent(ctx, payments.ProcessorEvent{
		ID:      "evt_2",
		Type:    "checkout.session.expired",
		Outcome: payments.OutcomeCanceled,
		OrderID: "order-1",
	})
	if err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if !result.Applied || result.OrderID != "order-1" {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(publisher.messages) != 1 || publisher.messages[0].EventType != "payment.canceled" {
		t.Fatalf("unexpected messages %+v", publisher.messages)
	}
}

func TestWebhookServiceIgnoresNeutralEvents(t *testing.T) {
	ctx := context.Background()

	svc := newTestWebhookService(t, WebhookServiceDeps{
		Reconciliation: &stubReconciliationRepository{},
		Payments:       &stubPaymentRepository{},
	})

	result, err := svc.HandleEvent(ctx, payments.ProcessorEvent{
		ID:      "evt_3",
		Type:    "charge.updated",
		Outcome: payments.OutcomeIgnored,
	})
	if err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if !result.Ignored {
		t.Fatalf("expected ignored result, got %+v", result)
	}
}

func TestWebhookServiceResolvesOrderFromSession(t *testing.T) {
	ctx := context.Background()

	paymentsRepo := &stubPaymentRepository{
		findSessionFunc: func(_ context.Context, sessionID string) (domain.Payment, error) {
			if sessionID != "cs_9" {
				t.Fatalf("unexpected session lookup %q", sessionID)
			}
			return domain.Payment{ID: "pay-9", OrderID: "order-9", SessionID: "cs_9"}, nil
		},
	}
	reconciliation := &stubReconciliationRepository{
		settleFunc: func(_ context.Context, req repositories.SettlementRequest) (repositories.SettlementResult, error) {
			if req.OrderID != "order-9" {
				t.Fatalf("expected order id resolved from session, got %q", req.OrderID)
			}
			return repositories.SettlementResult{
				Order: domain.Order{ID: "order-9", Owner: domain.NewSessionOwner("sess-9"), Status: domain.OrderStatusPaid},
			}, nil
		},
	}

	svc := newTestWebhookService(t, WebhookServiceDeps{
		Reconciliation: reconciliation,
		Payments:       paymentsRepo,
	})

	result, err := svc.HandleEvent(ctx, payments.ProcessorEvent{
		ID:        "evt_9",
		Outcome:   payments.OutcomePaid,
		SessionID: "cs_9",
	})
	if err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if result.OrderID != "order-9" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestWebhookServiceUnresolvableEvent(t *testing.T) {
	ctx := context.Background()

	svc := newTestWebhookService(t, WebhookServiceDeps{
		Reconciliation: &stubReconciliationRepository{},
		Payments:       &stubPaymentRepository{},
	})

	// No order metadata and no payment for the session.
	if _, err := svc.HandleEvent(ctx, payments.ProcessorEvent{
		ID:        "evt_10",
		Outcome:   payments.OutcomePaid,
		SessionID: "cs_unknown",
	}); !errors.Is(err, ErrWebhookInvalidEvent) {
		t.Fatalf("expected ErrWebhookInvalidEvent, got %v", err)
	}
}

func TestWebhookServiceReconciliationErrorMapping(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		code repositories.ReconciliationErrorCode
		want error
	}{
		{repositories.ReconciliationErrorOrderNotFound, ErrWebhookOrderNotFound},
		{repositories.ReconciliationErrorPaymentNotFound, ErrWebhookInvalidEvent},
		{repositories.ReconciliationErrorInvalidState, ErrWebhookInvalidEvent},
		{repositories.ReconciliationErrorUnknown, ErrWebhookUnavailable},
	}

	for _, tc := range cases {
		reconciliation := &stubReconciliationRepository{
			settleFunc: func(context.Context, repositories.SettlementRequest) (repositories.SettlementResult, error) {
				return repositories.SettlementResult{}, repositories.NewReconciliationError(tc.code, "", nil)
			},
		}
		svc := newTestWebhookService(t, WebhookServiceDeps{
			Reconciliation: reconciliation,
			Payments:       &stubPaymentRepository{},
		})

		_, err := svc.HandleEvent(ctx, payments.ProcessorEvent{
			ID:      "evt_11",
			Outcome: payments.OutcomePaid,
			OrderID: "order-1",
		})
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.code, tc.want, err)
		}
	}
}

func TestWebhookServicePublishFailureDoesNotFailEvent(t *testing.T) {
	ctx := context.Background()

	reconciliation := &stubReconciliationRepository{
		settleFunc: func(context.Context, repositories.SettlementRequest) (repositories.SettlementResult, error) {
			return repositories.SettlementResult{
				Order: domain.Order{ID: "order-1", Owner: domain.NewUserOwner("user-1"), Status: domain.OrderStatusPaid},
			}, nil
		},
	}
	publisher := &stubPublisher{
		publishFunc: func(context.Context, OrderEventMessage) (string, error) {
			return "", errors.New("broker down")
		},
	}

	svc := newTestWebhookService(t, WebhookServiceDeps{
		Reconciliation: reconciliation,
		Payments:       &stubPaymentRepository{},
		Publisher:      publisher,
	})

	result, err := svc.HandleEvent(ctx, payments.ProcessorEvent{
		ID:      "evt_12",
		Outcome: payments.OutcomePaid,
		OrderID: "order-1",
	})
	if err != nil {
		t.Fatalf("expected success despite broker failure, got %v", err)
	}
	if !result.Applied {
		t.Fatalf("unexpected result %+v", result)
	}
}
