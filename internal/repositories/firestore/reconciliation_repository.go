package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/feiraviva/api/internal/domain"
	pfirestore "github.com/feiraviva/api/internal/platform/firestore"
	"github.com/feiraviva/api/internal/repositories"
)

const webhookEventCollection = "webhookEvents"

type webhookEventDocument struct {
	EventType   string    `firestore:"eventType"`
	OrderID     string    `firestore:"orderId,omitempty"`
	ProcessedAt time.Time `firestore:"processedAt"`
}

// ReconciliationRepository applies processor events inside a single Firestore
// transaction together with the processed-event ledger. The ledger document id
// is the processor event id; creating it twice fails with AlreadyExists, which
// is what makes redelivered events no-ops.
type ReconciliationRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.ReconciliationRepository = (*ReconciliationRepository)(nil)

// NewReconciliationRepository constructs a Firestore-backed reconciliation repository.
func NewReconciliationRepository(provider *pfirestore.Provider) (*ReconciliationRepository, error) {
	if provider == nil {
		return nil, errors.New("reconciliation repository requires firestore provider")
	}
	return &ReconciliationRepository{provider: provider}, nil
}

// Settle marks the order paid, settles its payments, decrements product stock
// and clears the owner's cart, all atomically with the event ledger entry.
func (r *ReconciliationRepository) Settle(ctx context.Context, req repositories.SettlementRequest) (repositories.SettlementResult, error) {
	if r == nil || r.provider == nil {
		return repositories.SettlementResult{}, errors.New("reconciliation repository not initialised")
	}
	eventID := strings.TrimSpace(req.EventID)
	if eventID == "" {
		return repositories.SettlementResult{}, errors.New("reconciliation settle: event id is required")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return repositories.SettlementResult{}, errors.New("reconciliation settle: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.SettlementResult{}, err
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var result repositories.SettlementResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.SettlementResult{}

		ledgerRef := client.Collection(webhookEventCollection).Doc(eventID)
		if _, err := tx.Get(ledgerRef); err == nil {
			result.AlreadyApplied = true
			return nil
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		orderRef := client.Collection(orderCollection).Doc(orderID)
		orderSnap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewReconciliationError(repositories.ReconciliationErrorOrderNotFound, fmt.Sprintf("order %s not found", orderID), err)
			}
			return err
		}
		var orderDoc orderDocument
		if err := orderSnap.DataTo(&orderDoc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if orderDoc.Status == string(domain.OrderStatusCanceled) {
			return repositories.NewReconciliationError(repositories.ReconciliationErrorInvalidState, fmt.Sprintf("order %s is canceled", orderID), nil)
		}
		if orderDoc.Status == string(domain.OrderStatusPaid) {
			// A second session settling an already paid order must not touch
			// payments or stock again. Record the event id so redeliveries of
			// this event short-circuit on the ledger check.
			ledgerDoc := webhookEventDocument{
				EventType:   strings.TrimSpace(req.EventType),
				OrderID:     orderID,
				ProcessedAt: now,
			}
			if err := tx.Create(ledgerRef, ledgerDoc); err != nil {
				return err
			}
			result.AlreadyApplied = true
			result.DuplicateCharge = true
			return nil
		}

		paymentQuery := client.Collection(paymentCollection).Where("orderId", "==", orderID)
		paymentSnaps, err := tx.Documents(paymentQuery).GetAll()
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		sessionID := strings.TrimSpace(req.SessionID)
		var settledRef *firestore.DocumentRef
		var settledDoc paymentDocument
		otherRefs := make([]*firestore.DocumentRef, 0, len(paymentSnaps))
		otherDocs := make([]paymentDocument, 0, len(paymentSnaps))
		for _, snap := range paymentSnaps {
			var doc paymentDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode payment %s: %w", snap.Ref.ID, err)
			}
			switch {
			case sessionID != "" && doc.SessionID == sessionID:
				settledRef = snap.Ref
				settledDoc = doc
			case sessionID == "" && settledRef == nil && doc.Status == string(domain.PaymentStatusPending):
				settledRef = snap.Ref
				settledDoc = doc
			default:
				otherRefs = append(otherRefs, snap.Ref)
				otherDocs = append(otherDocs, doc)
			}
		}
		if settledRef == nil {
			return repositories.NewReconciliationError(repositories.ReconciliationErrorPaymentNotFound, fmt.Sprintf("no payment matches session %q on order %s", sessionID, orderID), nil)
		}

		// Stock and cart reads happen before the first queued write so that
		// everything the transaction touches is part of its read set.
		type stockWrite struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		stockWrites := make([]stockWrite, 0, len(orderDoc.Lines))
		stockAdjusted := make(map[string]int64, len(orderDoc.Lines))
		for _, line := range orderDoc.Lines {
			productRef := client.Collection(productCollection).Doc(line.ProductID)
			snap, err := tx.Get(productRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					// Product removed from the catalog after checkout;
					// nothing to decrement.
					continue
				}
				return err
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product %s: %w", line.ProductID, err)
			}
			// Stock may go negative; oversell is surfaced downstream, not
			// blocked at settlement.
			doc.StockAvailable -= line.Quantity
			doc.UpdatedAt = now
			stockWrites = append(stockWrites, stockWrite{ref: productRef, doc: doc})
			stockAdjusted[line.ProductID] = int64(-line.Quantity)
		}

		cartQuery := client.Collection(cartLineCollection).Where("ownerKey", "==", orderDoc.OwnerKey)
		cartSnaps, err := tx.Documents(cartQuery).GetAll()
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		settledDoc.Status = string(domain.PaymentStatusPaid)
		if intentID := strings.TrimSpace(req.IntentID); intentID != "" {
			settledDoc.IntentID = intentID
		}
		settledDoc.UpdatedAt = now
		if err := tx.Set(settledRef, settledDoc); err != nil {
			return err
		}
		payments := []domain.Payment{decodePaymentDocument(settledRef.ID, settledDoc)}

		for i, ref := range otherRefs {
			doc := otherDocs[i]
			if doc.Status != string(domain.PaymentStatusPending) {
				payments = append(payments, decodePaymentDocument(ref.ID, doc))
				continue
			}
			doc.Status = string(domain.PaymentStatusCanceled)
			doc.UpdatedAt = now
			if err := tx.Set(ref, doc); err != nil {
				return err
			}
			payments = append(payments, decodePaymentDocument(ref.ID, doc))
		}

		orderDoc.Status = string(domain.OrderStatusPaid)
		orderDoc.UpdatedAt = now
		if err := tx.Set(orderRef, orderDoc); err != nil {
			return err
		}

		for _, write := range stockWrites {
			if err := tx.Set(write.ref, write.doc); err != nil {
				return err
			}
		}

		for _, snap := range cartSnaps {
			if err := tx.Delete(snap.Ref); err != nil {
				return err
			}
		}

		ledgerDoc := webhookEventDocument{
			EventType:   strings.TrimSpace(req.EventType),
			OrderID:     orderID,
			ProcessedAt: now,
		}
		if err := tx.Create(ledgerRef, ledgerDoc); err != nil {
			return err
		}

		order, err := decodeOrderDocument(orderID, orderDoc)
		if err != nil {
			return err
		}
		result = repositories.SettlementResult{
			Order:         order,
			Payments:      payments,
			ClearedLines:  len(cartSnaps),
			StockAdjusted: stockAdjusted,
		}
		return nil
	})
	if err != nil {
		// A concurrent delivery created the ledger entry first; the event has
		// been applied.
		if status.Code(err) == codes.AlreadyExists {
			return repositories.SettlementResult{AlreadyApplied: true}, nil
		}
		var recErr *repositories.ReconciliationError
		if errors.As(err, &recErr) {
			return repositories.SettlementResult{}, recErr
		}
		return repositories.SettlementResult{}, pfirestore.WrapError("reconciliation.settle", err)
	}
	return result, nil
}

// CancelPayments transitions the order's pending payments to canceled when the
// processor reports a failed or expired session. The order itself stays
// pending so the buyer can retry checkout.
func (r *ReconciliationRepository) CancelPayments(ctx context.Context, req repositories.CancellationRequest) (repositories.CancellationResult, error) {
	if r == nil || r.provider == nil {
		return repositories.CancellationResult{}, errors.New("reconciliation repository not initialised")
	}
	eventID := strings.TrimSpace(req.EventID)
	if eventID == "" {
		return repositories.CancellationResult{}, errors.New("reconciliation cancel: event id is required")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return repositories.CancellationResult{}, errors.New("reconciliation cancel: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.CancellationResult{}, err
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var result repositories.CancellationResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.CancellationResult{}

		ledgerRef := client.Collection(webhookEventCollection).Doc(eventID)
		if _, err := tx.Get(ledgerRef); err == nil {
			result.AlreadyApplied = true
			return nil
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		paymentQuery := client.Collection(paymentCollection).Where("orderId", "==", orderID)
		paymentSnaps, err := tx.Documents(paymentQuery).GetAll()
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		sessionID := strings.TrimSpace(req.SessionID)
		payments := make([]domain.Payment, 0, len(paymentSnaps))
		for _, snap := range paymentSnaps {
			var doc paymentDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode payment %s: %w", snap.Ref.ID, err)
			}
			if sessionID != "" && doc.SessionID != sessionID {
				continue
			}
			if doc.Status != string(domain.PaymentStatusPending) {
				continue
			}
			doc.Status = string(domain.PaymentStatusCanceled)
			doc.UpdatedAt = now
			if err := tx.Set(snap.Ref, doc); err != nil {
				return err
			}
			payments = append(payments, decodePaymentDocument(snap.Ref.ID, doc))
		}

		ledgerDoc := webhookEventDocument{
			EventType:   strings.TrimSpace(req.EventType),
			OrderID:     orderID,
			ProcessedAt: now,
		}
		if err := tx.Create(ledgerRef, ledgerDoc); err != nil {
			return err
		}

		result = repositories.CancellationResult{Payments: payments}
		return nil
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return repositories.CancellationResult{AlreadyApplied: true}, nil
		}
		return repositories.CancellationResult{}, pfirestore.WrapError("reconciliation.cancel", err)
	}
	return result, nil
}
