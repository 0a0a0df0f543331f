package payments

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	lastOp  string
	session CheckoutSession
	payment PaymentDetails
	err     error
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	f.lastOp = "create"
	return f.session, f.err
}

func (f *fakeProvider) ExpireSession(ctx context.Context, req ExpireRequest) error {
	f.lastOp = "expire"
	return f.err
}

func (f *fakeProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	f.lastOp = "refund"
	return f.payment, f.err
}

func (f *fakeProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	f.lastOp = "lookup"
	return f.payment, f.err
}

func TestManagerCreateCheckoutSessionUsesPreferredProvider(t *testing.T) {
	ctx := context.Background()
	stripe := &fakeProvider{session: CheckoutSession{ID: "sess_stripe"}}
	mercadopago := &fakeProvider{session: CheckoutSession{ID: "sess_mp"}}

	mgr, err := NewManager(map[string]Provider{
		"stripe":      stripe,
		"mercadopago": mercadopago,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	session, err := mgr.CreateCheckoutSession(ctx, PaymentContext{PreferredProvider: "mercadopago"}, CheckoutSessionRequest{Currency: "BRL"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if session.Provider != "mercadopago" {
		t.Fatalf("expected provider 'mercadopago', got %q", session.Provider)
	}
	if mercadopago.lastOp != "create" {
		t.Fatalf("expected mercadopago provider to handle call")
	}
	if stripe.lastOp != "" {
		t.Fatalf("expected stripe provider to remain unused")
	}
}

func TestManagerRoutesByCurrency(t *testing.T) {
	ctx := context.Background()
	stripe := &fakeProvider{session: CheckoutSession{ID: "sess_stripe"}}
	mercadopago := &fakeProvider{session: CheckoutSession{ID: "sess_mp"}}

	mgr, err := NewManager(
		map[string]Provider{
			"stripe":      stripe,
			"mercadopago": mercadopago,
		},
		WithCurrencyRoutes(map[string]string{"ARS": "mercadopago"}),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	session, err := mgr.CreateCheckoutSession(ctx, PaymentContext{Currency: "ARS"}, CheckoutSessionRequest{Currency: "ARS"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Provider != "mercadopago" {
		t.Fatalf("expected provider 'mercadopago', got %q", session.Provider)
	}
	if mercadopago.lastOp != "create" {
		t.Fatalf("expected mercadopago provider to handle call")
	}
}

func TestManagerFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	stripe := &fakeProvider{payment: PaymentDetails{Provider: "stripe"}}

	mgr, err := NewManager(map[string]Provider{"stripe": stripe})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	details, err := mgr.Refund(ctx, PaymentContext{}, RefundRequest{IntentID: "pi_123"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if stripe.lastOp != "refund" {
		t.Fatalf("expected refund to invoke default provider")
	}
	if details.Provider != "stripe" {
		t.Fatalf("unexpected provider in details: %q", details.Provider)
	}
}

func TestManagerExpireSession(t *testing.T) {
	ctx := context.Background()
	stripe := &fakeProvider{}

	mgr, err := NewManager(map[string]Provider{"stripe": stripe})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if err := mgr.ExpireSession(ctx, PaymentContext{}, ExpireRequest{SessionID: "cs_123"}); err != nil {
		t.Fatalf("expire session: %v", err)
	}
	if stripe.lastOp != "expire" {
		t.Fatalf("expected expire to invoke default provider")
	}
}

func TestManagerUnsupportedProvider(t *testing.T) {
	ctx := context.Background()
	mgr, err := NewManager(map[string]Provider{"stripe": &fakeProvider{}, "mercadopago": &fakeProvider{}}, WithDefaultProvider(""))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	_, err = mgr.CreateCheckoutSession(ctx, PaymentContext{PreferredProvider: "unknown"}, CheckoutSessionRequest{Currency: "BRL"})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestNewManagerValidatesProviders(t *testing.T) {
	if _, err := NewManager(map[string]Provider{"bad": nil}); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error when providers empty")
	}
}
