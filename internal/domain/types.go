package domain

import (
	"strings"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// RangeQuery bounds a field between optional inclusive endpoints.
type RangeQuery[T any] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OwnerKey identifies the party a cart or order belongs to: an authenticated
// buyer id or an anonymous session id, never both.
type OwnerKey struct {
	UserID    string
	SessionID string
}

// NewUserOwner builds an owner key for an authenticated buyer.
func NewUserOwner(userID string) OwnerKey {
	return OwnerKey{UserID: strings.TrimSpace(userID)}
}

// NewSessionOwner builds an owner key for an anonymous session.
func NewSessionOwner(sessionID string) OwnerKey {
	return OwnerKey{SessionID: strings.TrimSpace(sessionID)}
}

// ParseOwnerKey decodes the string form produced by String.
func ParseOwnerKey(raw string) OwnerKey {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "user:"):
		return NewUserOwner(strings.TrimPrefix(raw, "user:"))
	case strings.HasPrefix(raw, "sess:"):
		return NewSessionOwner(strings.TrimPrefix(raw, "sess:"))
	default:
		return OwnerKey{}
	}
}

// IsZero reports whether neither identity is set.
func (k OwnerKey) IsZero() bool {
	return strings.TrimSpace(k.UserID) == "" && strings.TrimSpace(k.SessionID) == ""
}

// Valid reports whether exactly one of the two identities is set.
func (k OwnerKey) Valid() bool {
	hasUser := strings.TrimSpace(k.UserID) != ""
	hasSession := strings.TrimSpace(k.SessionID) != ""
	return hasUser != hasSession
}

// String renders the canonical "user:<id>" / "sess:<id>" form used as a
// document field and in processor metadata.
func (k OwnerKey) String() string {
	if uid := strings.TrimSpace(k.UserID); uid != "" {
		return "user:" + uid
	}
	if sid := strings.TrimSpace(k.SessionID); sid != "" {
		return "sess:" + sid
	}
	return ""
}

// CartLine stores one product entry in an owner's cart. At most one line
// exists per (owner, product). The price snapshot is captured at add time and
// only refreshed when the line itself is updated.
type CartLine struct {
	Owner         OwnerKey
	ProductID     string
	Quantity      int
	PriceSnapshot int64
	ExpiresAt     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CartSnapshotLine joins a cart line with live product data for checkout and
// browse views.
type CartSnapshotLine struct {
	Line    CartLine
	Product Product
}

// Subtotal returns quantity times price snapshot for the line, in centavos.
func (l CartLine) Subtotal() int64 {
	return int64(l.Quantity) * l.PriceSnapshot
}

// Product is the slice of the catalog record this engine reads and whose
// stock it decrements. The rest of the product document is owned elsewhere.
type Product struct {
	ID             string
	VendorID       string
	Name           string
	Price          int64
	StockAvailable int
	UpdatedAt      time.Time
}

// ShippingTier selects the delivery estimate applied at order creation.
type ShippingTier string

const (
	// ShippingStandard delivers in an estimated twelve days.
	ShippingStandard ShippingTier = "standard"
	// ShippingExpress delivers in an estimated five days.
	ShippingExpress ShippingTier = "express"
)

// DeliveryEstimate returns the estimated delivery date for the tier.
func (t ShippingTier) DeliveryEstimate(from time.Time) time.Time {
	if t == ShippingExpress {
		return from.Add(5 * 24 * time.Hour)
	}
	return from.Add(12 * 24 * time.Hour)
}

// Valid reports whether the tier is one of the supported values.
func (t ShippingTier) Valid() bool {
	return t == ShippingStandard || t == ShippingExpress
}

// OrderStatus enumerates the lifecycle states stored on an order. Wire values
// are kept in Portuguese to match the historical storefront contract.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits payment confirmation.
	OrderStatusPending OrderStatus = "PENDENTE"
	// OrderStatusPaid indicates payment was confirmed by the processor.
	OrderStatusPaid OrderStatus = "PAGO"
	// OrderStatusShipped indicates the order left the vendor.
	OrderStatusShipped OrderStatus = "ENVIADO"
	// OrderStatusDelivered indicates the order reached the buyer.
	OrderStatusDelivered OrderStatus = "ENTREGUE"
	// OrderStatusCanceled indicates the order was canceled.
	OrderStatusCanceled OrderStatus = "CANCELADO"
)

// Order is the durable, priced contract produced from a cart snapshot. Lines
// are frozen at creation; later catalog price changes never flow back in.
type Order struct {
	ID                    string
	Owner                 OwnerKey
	Status                OrderStatus
	Lines                 []OrderLine
	Total                 int64
	DeliveryAddressID     string
	ShippingTier          ShippingTier
	EstimatedDeliveryDate time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// OrderLine mirrors one cart line at the moment of checkout.
type OrderLine struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
}

// Subtotal returns the frozen line total in centavos.
func (l OrderLine) Subtotal() int64 {
	return int64(l.Quantity) * l.UnitPrice
}

// PaymentMethod enumerates the payment instruments the processor accepts.
type PaymentMethod string

const (
	// PaymentMethodCard pays by credit or debit card.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodPix pays by instant bank transfer.
	PaymentMethodPix PaymentMethod = "pix"
	// PaymentMethodBoleto pays by bank slip.
	PaymentMethodBoleto PaymentMethod = "boleto"
)

// Valid reports whether the method is one of the supported instruments.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodPix, PaymentMethodBoleto:
		return true
	default:
		return false
	}
}

// PaymentStatus enumerates payment states. At most one payment per order may
// ever reach PAGO; all others for that order end CANCELADO.
type PaymentStatus string

const (
	// PaymentStatusPending indicates the checkout session is outstanding.
	PaymentStatusPending PaymentStatus = "PENDENTE"
	// PaymentStatusPaid indicates the processor confirmed capture.
	PaymentStatusPaid PaymentStatus = "PAGO"
	// PaymentStatusCanceled indicates the session failed or expired.
	PaymentStatusCanceled PaymentStatus = "CANCELADO"
)

// Payment records one checkout attempt against an order. Modeled 1:N with the
// order to tolerate retried intents after a failed or expired session.
type Payment struct {
	ID         string
	OrderID    string
	Amount     int64
	Method     PaymentMethod
	Status     PaymentStatus
	PayerID    string
	SessionID  string
	IntentID   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Address represents a delivery address owned by a buyer or session.
type Address struct {
	ID         string
	Owner      OwnerKey
	Recipient  string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	CreatedAt  time.Time
}

// WebhookEvent is one entry of the idempotency ledger: a processor event id
// that has been applied (or deliberately ignored) exactly once.
type WebhookEvent struct {
	ID          string
	EventType   string
	OrderID     string
	ProcessedAt time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates a dependency is degraded but the service keeps running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
