package handlers

import (
	"context"
	"errors"
	"time"

	domain "github.com/feiraviva/api/internal/domain"
	"github.com/feiraviva/api/internal/payments"
	"github.com/feiraviva/api/internal/services"
)

type stubCartService struct {
	snapshotFunc func(ctx context.Context, owner domain.OwnerKey) (services.CartSnapshot, error)
	upsertFunc   func(ctx context.Context, cmd services.UpsertCartLineCommand) (services.CartSnapshot, error)
	removeFunc   func(ctx context.Context, cmd services.RemoveCartLineCommand) (services.CartSnapshot, error)
	clearFunc    func(ctx context.Context, owner domain.OwnerKey) error
	reorderFunc  func(ctx context.Context, cmd services.ReorderCommand) (services.CartSnapshot, error)
}

func (s *stubCartService) Snapshot(ctx context.Context, owner domain.OwnerKey) (services.CartSnapshot, error) {
	if s.snapshotFunc == nil {
		return services.CartSnapshot{}, errors.New("unexpected Snapshot call")
	}
	return s.snapshotFunc(ctx, owner)
}

func (s *stubCartService) UpsertLine(ctx context.Context, cmd services.UpsertCartLineCommand) (services.CartSnapshot, error) {
	if s.upsertFunc == nil {
		return services.CartSnapshot{}, errors.New("unexpected UpsertLine call")
	}
	return s.upsertFunc(ctx, cmd)
}

func (s *stubCartService) RemoveLine(ctx context.Context, cmd services.RemoveCartLineCommand) (services.CartSnapshot, error) {
	if s.removeFunc == nil {
		return services.CartSnapshot{}, errors.New("unexpected RemoveLine call")
	}
	return s.removeFunc(ctx, cmd)
}

func (s *stubCartService) Clear(ctx context.Context, owner domain.OwnerKey) error {
	if s.clearFunc == nil {
		return errors.New("unexpected Clear call")
	}
	return s.clearFunc(ctx, owner)
}

func (s *stubCartService) Reorder(ctx context.Context, cmd services.ReorderCommand) (services.CartSnapshot, error) {
	if s.reorderFunc == nil {
		return services.CartSnapshot{}, errors.New("unexpected Reorder call")
	}
	return s.reorderFunc(ctx, cmd)
}

type stubOrderService struct {
	createFunc func(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error)
	getFunc    func(ctx context.Context, owner domain.OwnerKey, orderID string) (domain.Order, error)
	listFunc   func(ctx context.Context, query services.OrderListQuery) (domain.CursorPage[domain.Order], error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	if s.createFunc == nil {
		return domain.Order{}, errors.New("unexpected CreateOrder call")
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, owner domain.OwnerKey, orderID string) (domain.Order, error) {
	if s.getFunc == nil {
		return domain.Order{}, errors.New("unexpected GetOrder call")
	}
	return s.getFunc(ctx, owner, orderID)
}

func (s *stubOrderService) ListOrders(ctx context.Context, query services.OrderListQuery) (domain.CursorPage[domain.Order], error) {
	if s.listFunc == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("unexpected ListOrders call")
	}
	return s.listFunc(ctx, query)
}

type stubCheckoutService struct {
	createFunc func(ctx context.Context, cmd services.CreatePaymentIntentCommand) (services.PaymentIntent, error)
}

func (s *stubCheckoutService) CreatePaymentIntent(ctx context.Context, cmd services.CreatePaymentIntentCommand) (services.PaymentIntent, error) {
	if s.createFunc == nil {
		return services.PaymentIntent{}, errors.New("unexpected CreatePaymentIntent call")
	}
	return s.createFunc(ctx, cmd)
}

type stubWebhookService struct {
	handleFunc func(ctx context.Context, event payments.ProcessorEvent) (services.WebhookEventResult, error)
}

func (s *stubWebhookService) HandleEvent(ctx context.Context, event payments.ProcessorEvent) (services.WebhookEventResult, error) {
	if s.handleFunc == nil {
		return services.WebhookEventResult{}, errors.New("unexpected HandleEvent call")
	}
	return s.handleFunc(ctx, event)
}

type stubWebhookVerifier struct {
	verifyFunc func(payload []byte, signature string) (payments.ProcessorEvent, error)
}

func (s *stubWebhookVerifier) VerifyAndParse(payload []byte, signature string) (payments.ProcessorEvent, error) {
	if s.verifyFunc == nil {
		return payments.ProcessorEvent{}, errors.New("unexpected VerifyAndParse call")
	}
	return s.verifyFunc(payload, signature)
}

type stubAddressService struct {
	listFunc   func(ctx context.Context, owner domain.OwnerKey) ([]domain.Address, error)
	getFunc    func(ctx context.Context, owner domain.OwnerKey, addressID string) (domain.Address, error)
	saveFunc   func(ctx context.Context, cmd services.SaveAddressCommand) (domain.Address, error)
	deleteFunc func(ctx context.Context, owner domain.OwnerKey, addressID string) error
}

func (s *stubAddressService) ListAddresses(ctx context.Context, owner domain.OwnerKey) ([]domain.Address, error) {
	if s.listFunc == nil {
		return nil, errors.New("unexpected ListAddresses call")
	}
	return s.listFunc(ctx, owner)
}

func (s *stubAddressService) GetAddress(ctx context.Context, owner domain.OwnerKey, addressID string) (domain.Address, error) {
	if s.getFunc == nil {
		return domain.Address{}, errors.New("unexpected GetAddress call")
	}
	return s.getFunc(ctx, owner, addressID)
}

func (s *stubAddressService) SaveAddress(ctx context.Context, cmd services.SaveAddressCommand) (domain.Address, error) {
	if s.saveFunc == nil {
		return domain.Address{}, errors.New("unexpected SaveAddress call")
	}
	return s.saveFunc(ctx, cmd)
}

func (s *stubAddressService) DeleteAddress(ctx context.Context, owner domain.OwnerKey, addressID string) error {
	if s.deleteFunc == nil {
		return errors.New("unexpected DeleteAddress call")
	}
	return s.deleteFunc(ctx, owner, addressID)
}

type stubSystemService struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubSystemService) Health(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

func snapshotFixture(owner domain.OwnerKey, now time.Time) services.CartSnapshot {
	return services.CartSnapshot{
		Owner: owner,
		Lines: []domain.CartSnapshotLine{
			{
				Line:    domain.CartLine{Owner: owner, ProductID: "prod-1", Quantity: 2, PriceSnapshot: 1500, ExpiresAt: now.Add(time.Hour)},
				Product: domain.Product{ID: "prod-1", Name: "Mel silvestre", Price: 1500, StockAvailable: 8},
			},
		},
		Subtotal: 3000,
	}
}
