package services

import (
	"context"
	"time"

	domain "github.com/feiraviva/api/internal/domain"
	"github.com/feiraviva/api/internal/payments"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	OwnerKey           = domain.OwnerKey
	CartLine           = domain.CartLine
	CartSnapshotLine   = domain.CartSnapshotLine
	Product            = domain.Product
	ShippingTier       = domain.ShippingTier
	Order              = domain.Order
	OrderLine          = domain.OrderLine
	OrderStatus        = domain.OrderStatus
	Payment            = domain.Payment
	PaymentMethod      = domain.PaymentMethod
	PaymentStatus      = domain.PaymentStatus
	Address            = domain.Address
	SystemHealthReport = domain.SystemHealthReport
)

// CartService manages the owner's cart lines and assembles checkout snapshots.
type CartService interface {
	Snapshot(ctx context.Context, owner OwnerKey) (CartSnapshot, error)
	UpsertLine(ctx context.Context, cmd UpsertCartLineCommand) (CartSnapshot, error)
	RemoveLine(ctx context.Context, cmd RemoveCartLineCommand) (CartSnapshot, error)
	Clear(ctx context.Context, owner OwnerKey) error
	Reorder(ctx context.Context, cmd ReorderCommand) (CartSnapshot, error)
}

// CartSweeper removes expired cart lines in batches. The ticker loop in
// cmd/api owns the schedule; the service owns one pass.
type CartSweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// OrderService turns cart snapshots into priced, frozen orders and serves
// order history reads.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, owner OwnerKey, orderID string) (Order, error)
	ListOrders(ctx context.Context, query OrderListQuery) (domain.CursorPage[Order], error)
}

// CheckoutService records the pending payment and opens the processor
// checkout session for an order.
type CheckoutService interface {
	CreatePaymentIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntent, error)
}

// WebhookService reconciles processor events against orders and payments.
type WebhookService interface {
	HandleEvent(ctx context.Context, event payments.ProcessorEvent) (WebhookEventResult, error)
}

// SystemService surfaces operational health summaries.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
}

// CartSnapshot is the cart joined with live product data, expired lines
// filtered out.
type CartSnapshot struct {
	Owner    OwnerKey
	Lines    []CartSnapshotLine
	Subtotal int64
	// UnavailableProducts lists product ids whose catalog entries vanished
	// since the lines were added.
	UnavailableProducts []string
}

// UpsertCartLineCommand adds a product to the cart or replaces its quantity.
type UpsertCartLineCommand struct {
	Owner     OwnerKey
	ProductID string
	Quantity  int
}

// RemoveCartLineCommand drops one product from the cart.
type RemoveCartLineCommand struct {
	Owner     OwnerKey
	ProductID string
}

// ReorderCommand replays a past order's lines into the current cart.
type ReorderCommand struct {
	Owner   OwnerKey
	OrderID string
}

// CreateOrderCommand captures the checkout form.
type CreateOrderCommand struct {
	Owner             OwnerKey
	DeliveryAddressID string
	ShippingTier      ShippingTier
}

// OrderListQuery filters the caller's order history.
type OrderListQuery struct {
	Owner      OwnerKey
	Status     []OrderStatus
	From       *time.Time
	To         *time.Time
	Pagination Pagination
}

// CreatePaymentIntentCommand opens a checkout session for a pending order.
type CreatePaymentIntentCommand struct {
	Owner   OwnerKey
	OrderID string
	Method  PaymentMethod
	PayerID string
}

// PaymentIntent is the client-facing result of CreatePaymentIntent.
type PaymentIntent struct {
	OrderID     string
	PaymentID   string
	Total       int64
	CheckoutURL string
	ExpiresAt   time.Time
}

// WebhookEventResult reports what the reconciler did with the event.
type WebhookEventResult struct {
	Applied   bool
	Duplicate bool
	Ignored   bool
	OrderID   string
}

// OrderEventMessage is the Pub/Sub payload published after settlement and
// cancellation.
type OrderEventMessage struct {
	EventType  string    `json:"eventType"`
	OrderID    string    `json:"orderId"`
	OwnerKey   string    `json:"ownerKey"`
	Status     string    `json:"status"`
	Total      int64     `json:"total"`
	OccurredAt time.Time `json:"occurredAt"`
}

// OrderEventPublisher emits fire-and-forget order lifecycle notifications.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}
