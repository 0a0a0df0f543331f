package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/feiraviva/api/internal/domain"
	pfirestore "github.com/feiraviva/api/internal/platform/firestore"
	"github.com/feiraviva/api/internal/repositories"
)

const (
	paymentCollection = "payments"
)

type paymentDocument struct {
	OrderID   string    `firestore:"orderId"`
	Amount    int64     `firestore:"amount"`
	Method    string    `firestore:"method"`
	Status    string    `firestore:"status"`
	PayerID   string    `firestore:"payerId,omitempty"`
	SessionID string    `firestore:"sessionId,omitempty"`
	IntentID  string    `firestore:"intentId,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// PaymentRepository persists payment attempt documents.
type PaymentRepository struct {
	base     *pfirestore.BaseRepository[paymentDocument]
	provider *pfirestore.Provider
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[paymentDocument](provider, paymentCollection, nil, nil)
	return &PaymentRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert persists a new payment document.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.base == nil {
		return errors.New("payment repository not initialised")
	}
	paymentID := strings.TrimSpace(payment.ID)
	if paymentID == "" {
		return errors.New("payment repository: payment id is required")
	}
	if strings.TrimSpace(payment.OrderID) == "" {
		return errors.New("payment repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, paymentID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodePaymentDocument(payment)); err != nil {
		return pfirestore.WrapError("firestore: create payments", err)
	}
	return nil
}

// Update overwrites an existing payment document.
func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.base == nil {
		return errors.New("payment repository not initialised")
	}
	paymentID := strings.TrimSpace(payment.ID)
	if paymentID == "" {
		return errors.New("payment repository: payment id is required")
	}
	if _, err := r.base.Set(ctx, paymentID, encodePaymentDocument(payment)); err != nil {
		return err
	}
	return nil
}

// FindByID fetches a single payment.
func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(paymentID))
	if err != nil {
		return domain.Payment{}, err
	}
	return decodePaymentDocument(doc.ID, doc.Data), nil
}

// FindBySession resolves the payment created for a checkout session.
func (r *PaymentRepository) FindBySession(ctx context.Context, sessionID string) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Payment{}, errors.New("payment repository: session id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("sessionId", "==", sessionID).Limit(1)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	if len(docs) == 0 {
		return domain.Payment{}, pfirestore.WrapError("firestore: find payment by session", status.Error(codes.NotFound, "payment not found"))
	}
	return decodePaymentDocument(docs[0].ID, docs[0].Data), nil
}

// ListByOrder returns all payment attempts for one order, oldest first.
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("payment repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("payment repository: order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID)
	})
	if err != nil {
		return nil, err
	}

	payments := make([]domain.Payment, 0, len(docs))
	for _, doc := range docs {
		payments = append(payments, decodePaymentDocument(doc.ID, doc.Data))
	}
	sort.Slice(payments, func(i, j int) bool {
		if payments[i].CreatedAt.Equal(payments[j].CreatedAt) {
			return payments[i].ID < payments[j].ID
		}
		return payments[i].CreatedAt.Before(payments[j].CreatedAt)
	})
	return payments, nil
}

func encodePaymentDocument(payment domain.Payment) paymentDocument {
	return paymentDocument{
		OrderID:   strings.TrimSpace(payment.OrderID),
		Amount:    payment.Amount,
		Method:    string(payment.Method),
		Status:    string(payment.Status),
		PayerID:   strings.TrimSpace(payment.PayerID),
		SessionID: strings.TrimSpace(payment.SessionID),
		IntentID:  strings.TrimSpace(payment.IntentID),
		CreatedAt: payment.CreatedAt.UTC(),
		UpdatedAt: payment.UpdatedAt.UTC(),
	}
}

func decodePaymentDocument(id string, doc paymentDocument) domain.Payment {
	return domain.Payment{
		ID:        id,
		OrderID:   doc.OrderID,
		Amount:    doc.Amount,
		Method:    domain.PaymentMethod(doc.Method),
		Status:    domain.PaymentStatus(doc.Status),
		PayerID:   doc.PayerID,
		SessionID: doc.SessionID,
		IntentID:  doc.IntentID,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}
