package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/feiraviva/api/internal/domain"
	"github.com/feiraviva/api/internal/payments"
	"github.com/feiraviva/api/internal/repositories"
)

const (
	defaultCheckoutTimeout  = 10 * time.Second
	defaultCheckoutCurrency = "BRL"

	paymentMetadataOrderID  = "orderId"
	paymentMetadataOwnerKey = "ownerKey"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutOrderNotFound indicates the order to pay does not exist.
	ErrCheckoutOrderNotFound = errors.New("checkout: order not found")
	// ErrCheckoutOrderNotPending indicates the order already left the PENDENTE state.
	ErrCheckoutOrderNotPending = errors.New("checkout: order is not pending")
	// ErrCheckoutPaymentFailed indicates the PSP session could not be created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
)

// checkoutSessionManager abstracts payments.Manager for easier testing.
type checkoutSessionManager interface {
	CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	ExpireSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.ExpireRequest) error
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Orders      repositories.OrderRepository
	Payments    repositories.PaymentRepository
	Sessions    checkoutSessionManager
	SuccessURL  string
	CancelURL   string
	Currency    string
	Timeout     time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	orders     repositories.OrderRepository
	payments   repositories.PaymentRepository
	sessions   checkoutSessionManager
	successURL string
	cancelURL  string
	currency   string
	timeout    time.Duration
	now        func() time.Time
	newID      func() string
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment repository is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("checkout service: session manager is required")
	}
	successURL := strings.TrimSpace(deps.SuccessURL)
	cancelURL := strings.TrimSpace(deps.CancelURL)
	if successURL == "" || cancelURL == "" {
		return nil, errors.New("checkout service: success and cancel URLs are required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCheckoutCurrency
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultCheckoutTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		orders:     deps.Orders,
		payments:   deps.Payments,
		sessions:   deps.Sessions,
		successURL: successURL,
		cancelURL:  cancelURL,
		currency:   currency,
		timeout:    timeout,
		now:        func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

// CreatePaymentIntent records the pending payment, then opens a PSP checkout
// session for it. The payment row is persisted before the PSP call so a crash
// in between leaves a PENDENTE payment the webhook reconciler can cancel.
func (s *checkoutService) CreatePaymentIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntent, error) {
	if s == nil || s.orders == nil || s.payments == nil || s.sessions == nil {
		return PaymentIntent{}, ErrCheckoutUnavailable
	}
	if !cmd.Owner.Valid() {
		return PaymentIntent{}, ErrCheckoutInvalidInput
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentIntent{}, ErrCheckoutInvalidInput
	}
	method := cmd.Method
	if method == "" {
		method = domain.PaymentMethodCard
	}
	if !method.Valid() {
		return PaymentIntent{}, ErrCheckoutInvalidInput
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return PaymentIntent{}, ErrCheckoutOrderNotFound
		}
		return PaymentIntent{}, ErrCheckoutUnavailable
	}
	if order.Owner != cmd.Owner {
		return PaymentIntent{}, ErrForbidden
	}
	if order.Status != domain.OrderStatusPending {
		return PaymentIntent{}, ErrCheckoutOrderNotPending
	}

	s.expireStaleSessions(ctx, order.ID)

	now := s.now()
	payment := domain.Payment{
		ID:        s.newID(),
		OrderID:   order.ID,
		Amount:    order.Total,
		Method:    method,
		Status:    domain.PaymentStatusPending,
		PayerID:   strings.TrimSpace(cmd.PayerID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.payments.Insert(ctx, payment); err != nil {
		return PaymentIntent{}, ErrCheckoutUnavailable
	}

	session, err := s.createSession(ctx, order, payment)
	if err != nil {
		// The payment row stays PENDENTE; the webhook reconciler or a
		// later retry decides its fate, never the failed PSP call.
		return PaymentIntent{}, err
	}

	payment.SessionID = session.ID
	payment.IntentID = session.IntentID
	payment.UpdatedAt = s.now()
	if err := s.payments.Update(ctx, payment); err != nil {
		s.logger(ctx, "checkout.payment_update_failed", map[string]any{
			"paymentId": payment.ID,
			"sessionId": session.ID,
			"error":     err.Error(),
		})
		return PaymentIntent{}, ErrCheckoutUnavailable
	}

	s.logger(ctx, "checkout.intent_created", map[string]any{
		"orderId":   order.ID,
		"paymentId": payment.ID,
		"sessionId": session.ID,
		"method":    string(method),
		"total":     order.Total,
	})
	return PaymentIntent{
		OrderID:     order.ID,
		PaymentID:   payment.ID,
		Total:       order.Total,
		CheckoutURL: session.RedirectURL,
		ExpiresAt:   session.ExpiresAt.UTC(),
	}, nil
}

func (s *checkoutService) createSession(ctx context.Context, order domain.Order, payment domain.Payment) (payments.CheckoutSession, error) {
	// The PSP call is bounded so a slow processor cannot pin the request.
	sessionCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	items := make([]payments.CheckoutLineItem, 0, len(order.Lines))
	for _, line := range order.Lines {
		items = append(items, payments.CheckoutLineItem{
			Name:     line.Name,
			SKU:      line.ProductID,
			Quantity: int64(line.Quantity),
			Amount:   line.UnitPrice,
			Currency: s.currency,
		})
	}

	req := payments.CheckoutSessionRequest{
		Amount:     order.Total,
		Currency:   s.currency,
		CustomerID: strings.TrimSpace(payment.PayerID),
		SuccessURL: s.successURL,
		CancelURL:  s.cancelURL,
		MethodTypes: []string{
			string(payment.Method),
		},
		Metadata: map[string]string{
			paymentMetadataOrderID:  order.ID,
			paymentMetadataOwnerKey: order.Owner.String(),
		},
		IdempotencyKey: payment.ID,
		Items:          items,
	}

	session, err := s.sessions.CreateCheckoutSession(sessionCtx, payments.PaymentContext{Currency: s.currency}, req)
	if err != nil {
		if errors.Is(err, payments.ErrUnsupportedProvider) {
			return payments.CheckoutSession{}, ErrCheckoutInvalidInput
		}
		s.logger(ctx, "checkout.session_failed", map[string]any{
			"orderId":   order.ID,
			"paymentId": payment.ID,
			"error":     err.Error(),
		})
		return payments.CheckoutSession{}, ErrCheckoutPaymentFailed
	}
	return session, nil
}

// expireStaleSessions invalidates PSP sessions left behind by earlier intents
// for the same order, so only the newest session can complete the payment.
// Best effort: an unreachable PSP must not block the retry.
func (s *checkoutService) expireStaleSessions(ctx context.Context, orderID string) {
	existing, err := s.payments.ListByOrder(ctx, orderID)
	if err != nil {
		s.logger(ctx, "checkout.stale_session_list_failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
		return
	}
	for _, payment := range existing {
		if payment.Status != domain.PaymentStatusPending || payment.SessionID == "" {
			continue
		}
		err := s.sessions.ExpireSession(ctx, payments.PaymentContext{Currency: s.currency}, payments.ExpireRequest{
			SessionID:      payment.SessionID,
			IdempotencyKey: payment.ID,
		})
		if err != nil {
			s.logger(ctx, "checkout.session_expire_failed", map[string]any{
				"orderId":   orderID,
				"paymentId": payment.ID,
				"sessionId": payment.SessionID,
				"error":     err.Error(),
			})
			continue
		}
		s.logger(ctx, "checkout.stale_session_expired", map[string]any{
			"orderId":   orderID,
			"paymentId": payment.ID,
			"sessionId": payment.SessionID,
		})
	}
}
