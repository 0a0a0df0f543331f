package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/feiraviva/api/internal/domain"
	"github.com/feiraviva/api/internal/payments"
	"github.com/feiraviva/api/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return "stub repository error" }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

var errStubNotFound = stubRepoError{notFound: true}

type stubCartRepository struct {
	upsertFunc func(ctx context.Context, line domain.CartLine) error
	getFunc    func(ctx context.Context, owner domain.OwnerKey, productID string) (domain.CartLine, error)
	listFunc   func(ctx context.Context, owner domain.OwnerKey) ([]domain.CartLine, error)
	removeFunc func(ctx context.Context, owner domain.OwnerKey, productID string) error
	clearFunc  func(ctx context.Context, owner domain.OwnerKey) error
	sweepFunc  func(ctx context.Context, before time.Time, batchSize int) (int, error)
}

func (s *stubCartRepository) Upsert(ctx context.Context, line domain.CartLine) error {
	if s.upsertFunc == nil {
		return errors.New("unexpected Upsert call")
	}
	return s.upsertFunc(ctx, line)
}

func (s *stubCartRepository) Get(ctx context.Context, owner domain.OwnerKey, productID string) (domain.CartLine, error) {
	if s.getFunc == nil {
		return domain.CartLine{}, errStubNotFound
	}
	return s.getFunc(ctx, owner, productID)
}

func (s *stubCartRepository) ListByOwner(ctx context.Context, owner domain.OwnerKey) ([]domain.CartLine, error) {
	if s.listFunc == nil {
		return nil, errors.New("unexpected ListByOwner call")
	}
	return s.listFunc(ctx, owner)
}

func (s *stubCartRepository) Remove(ctx context.Context, owner domain.OwnerKey, productID string) error {
	if s.removeFunc == nil {
		return errors.New("unexpected Remove call")
	}
	return s.removeFunc(ctx, owner, productID)
}

func (s *stubCartRepository) Clear(ctx context.Context, owner domain.OwnerKey) error {
	if s.clearFunc == nil {
		return errors.New("unexpected Clear call")
	}
	return s.clearFunc(ctx, owner)
}

func (s *stubCartRepository) SweepExpired(ctx context.Context, before time.Time, batchSize int) (int, error) {
	if s.sweepFunc == nil {
		return 0, errors.New("unexpected SweepExpired call")
	}
	return s.sweepFunc(ctx, before, batchSize)
}

type stubProductRepository struct {
	findFunc     func(ctx context.Context, productID string) (domain.Product, error)
	findManyFunc func(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
}

func (s *stubProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFunc == nil {
		return domain.Product{}, errStubNotFound
	}
	return s.findFunc(ctx, productID)
}

func (s *stubProductRepository) FindMany(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if s.findManyFunc == nil {
		return map[string]domain.Product{}, nil
	}
	return s.findManyFunc(ctx, productIDs)
}

type stubOrderRepository struct {
	insertFunc       func(ctx context.Context, order domain.Order) error
	findFunc         func(ctx context.Context, orderID string) (domain.Order, error)
	listFunc         func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	updateStatusFunc func(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) (domain.Order, error)
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFunc == nil {
		return errors.New("unexpected Insert call")
	}
	return s.insertFunc(ctx, order)
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFunc == nil {
		return domain.Order{}, errStubNotFound
	}
	return s.findFunc(ctx, orderID)
}

func (s *stubOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFunc == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("unexpected List call")
	}
	return s.listFunc(ctx, filter)
}

func (s *stubOrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) (domain.Order, error) {
	if s.updateStatusFunc == nil {
		return domain.Order{}, errors.New("unexpected UpdateStatus call")
	}
	return s.updateStatusFunc(ctx, orderID, status, updatedAt)
}

type stubPaymentRepository struct {
	insertFunc      func(ctx context.Context, payment domain.Payment) error
	updateFunc      func(ctx context.Context, payment domain.Payment) error
	findFunc        func(ctx context.Context, paymentID string) (domain.Payment, error)
	findSessionFunc func(ctx context.Context, sessionID string) (domain.Payment, error)
	listOrderFunc   func(ctx context.Context, orderID string) ([]domain.Payment, error)
}

func (s *stubPaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	if s.insertFunc == nil {
		return errors.New("unexpected Insert call")
	}
	return s.insertFunc(ctx, payment)
}

func (s *stubPaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	if s.updateFunc == nil {
		return errors.New("unexpected Update call")
	}
	return s.updateFunc(ctx, payment)
}

func (s *stubPaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if s.findFunc == nil {
		return domain.Payment{}, errStubNotFound
	}
	return s.findFunc(ctx, paymentID)
}

func (s *stubPaymentRepository) FindBySession(ctx context.Context, sessionID string) (domain.Payment, error) {
	if s.findSessionFunc == nil {
		return domain.Payment{}, errStubNotFound
	}
	return s.findSessionFunc(ctx, sessionID)
}

func (s *stubPaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	if s.listOrderFunc == nil {
		return nil, errors.New("unexpected ListByOrder call")
	}
	return s.listOrderFunc(ctx, orderID)
}

type stubAddressRepository struct {
	listFunc   func(ctx context.Context, owner domain.OwnerKey) ([]domain.Address, error)
	getFunc    func(ctx context.Context, owner domain.OwnerKey, addressID string) (domain.Address, error)
	upsertFunc func(ctx context.Context, addr domain.Address) (domain.Address, error)
	deleteFunc func(ctx context.Context, owner domain.OwnerKey, addressID string) error
}

func (s *stubAddressRepository) List(ctx context.Context, owner domain.OwnerKey) ([]domain.Address, error) {
	if s.listFunc == nil {
		return nil, errors.New("unexpected List call")
	}
	return s.listFunc(ctx, owner)
}

func (s *stubAddressRepository) Get(ctx context.Context, owner domain.OwnerKey, addressID string) (domain.Address, error) {
	if s.getFunc == nil {
		return domain.Address{}, errStubNotFound
	}
	return s.getFunc(ctx, owner, addressID)
}

func (s *stubAddressRepository) Upsert(ctx context.Context, addr domain.Address) (domain.Address, error) {
	if s.upsertFunc == nil {
		return domain.Address{}, errors.New("unexpected Upsert call")
	}
	return s.upsertFunc(ctx, addr)
}

func (s *stubAddressRepository) Delete(ctx context.Context, owner domain.OwnerKey, addressID string) error {
	if s.deleteFunc == nil {
		return errors.New("unexpected Delete call")
	}
	return s.deleteFunc(ctx, owner, addressID)
}

type stubReconciliationRepository struct {
	settleFunc func(ctx context.Context, req repositories.SettlementRequest) (repositories.SettlementResult, error)
	cancelFunc func(ctx context.Context, req repositories.CancellationRequest) (repositories.CancellationResult, error)
}

func (s *stubReconciliationRepository) Settle(ctx context.Context, req repositories.SettlementRequest) (repositories.SettlementResult, error) {
	if s.settleFunc == nil {
		return repositories.SettlementResult{}, errors.New("unexpected Settle call")
	}
	return s.settleFunc(ctx, req)
}

func (s *stubReconciliationRepository) CancelPayments(ctx context.Context, req repositories.CancellationRequest) (repositories.CancellationResult, error) {
	if s.cancelFunc == nil {
		return repositories.CancellationResult{}, errors.New("unexpected CancelPayments call")
	}
	return s.cancelFunc(ctx, req)
}

type stubSnapshotter struct {
	snapshotFunc func(ctx context.Context, owner domain.OwnerKey) (CartSnapshot, error)
}

func (s *stubSnapshotter) Snapshot(ctx context.Context, owner domain.OwnerKey) (CartSnapshot, error) {
	if s.snapshotFunc == nil {
		return CartSnapshot{}, errors.New("unexpected Snapshot call")
	}
	return s.snapshotFunc(ctx, owner)
}

type stubSessionManager struct {
	createFunc func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	expireFunc func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.ExpireRequest) error
}

func (s *stubSessionManager) CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	if s.createFunc == nil {
		return payments.CheckoutSession{}, errors.New("unexpected CreateCheckoutSession call")
	}
	return s.createFunc(ctx, paymentCtx, req)
}

func (s *stubSessionManager) ExpireSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.ExpireRequest) error {
	if s.expireFunc == nil {
		return nil
	}
	return s.expireFunc(ctx, paymentCtx, req)
}

type stubRefunder struct {
	lookupFunc func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
	refundFunc func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error)
}

func (s *stubRefunder) LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error) {
	if s.lookupFunc == nil {
		return payments.PaymentDetails{}, errors.New("unexpected LookupPayment call")
	}
	return s.lookupFunc(ctx, paymentCtx, req)
}

func (s *stubRefunder) Refund(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error) {
	if s.refundFunc == nil {
		return payments.PaymentDetails{}, errors.New("unexpected Refund call")
	}
	return s.refundFunc(ctx, paymentCtx, req)
}

type stubPublisher struct {
	publishFunc func(ctx context.Context, message OrderEventMessage) (string, error)
	messages    []OrderEventMessage
}

func (s *stubPublisher) PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error) {
	s.messages = append(s.messages, message)
	if s.publishFunc == nil {
		return "msg-1", nil
	}
	return s.publishFunc(ctx, message)
}
