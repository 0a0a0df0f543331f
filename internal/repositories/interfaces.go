package repositories

import (
	"context"
	"time"

	domain "github.com/feiraviva/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Products() ProductRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Addresses() AddressRepository
	Reconciliation() ReconciliationRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository persists per-owner cart lines with their price snapshots.
type CartRepository interface {
	Upsert(ctx context.Context, line domain.CartLine) error
	Get(ctx context.Context, owner domain.OwnerKey, productID string) (domain.CartLine, error)
	ListByOwner(ctx context.Context, owner domain.OwnerKey) ([]domain.CartLine, error)
	Remove(ctx context.Context, owner domain.OwnerKey, productID string) error
	Clear(ctx context.Context, owner domain.OwnerKey) error
	SweepExpired(ctx context.Context, before time.Time, batchSize int) (int, error)
}

// ProductRepository reads catalogue products for snapshot enrichment and pricing.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindMany(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
}

// OrderRepository persists order headers with their frozen lines.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) (domain.Order, error)
}

// PaymentRepository stores payment attempts associated with orders.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	FindBySession(ctx context.Context, sessionID string) (domain.Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error)
}

// AddressRepository stores delivery addresses per owner.
type AddressRepository interface {
	List(ctx context.Context, owner domain.OwnerKey) ([]domain.Address, error)
	Get(ctx context.Context, owner domain.OwnerKey, addressID string) (domain.Address, error)
	Upsert(ctx context.Context, addr domain.Address) (domain.Address, error)
	Delete(ctx context.Context, owner domain.OwnerKey, addressID string) error
}

// SettlementRequest carries everything the reconciler needs to settle an order
// after the processor confirms payment.
type SettlementRequest struct {
	EventID   string
	EventType string
	OrderID   string
	SessionID string
	IntentID  string
	Now       time.Time
}

// SettlementResult reports the documents mutated during settlement.
type SettlementResult struct {
	Order          domain.Order
	Payments       []domain.Payment
	ClearedLines   int
	StockAdjusted  map[string]int64
	AlreadyApplied bool
	// DuplicateCharge is set when a fresh event id hit an order that was
	// already PAGO, meaning a second checkout session captured money.
	DuplicateCharge bool
}

// CancellationRequest marks the pending payments of an order as canceled when
// the processor reports failure or expiry.
type CancellationRequest struct {
	EventID   string
	EventType string
	OrderID   string
	SessionID string
	Now       time.Time
}

// CancellationResult reports the payments transitioned by a cancellation event.
type CancellationResult struct {
	Payments       []domain.Payment
	AlreadyApplied bool
}

// ReconciliationRepository applies processor events atomically together with
// the processed-event ledger that makes reprocessing a no-op.
type ReconciliationRepository interface {
	Settle(ctx context.Context, req SettlementRequest) (SettlementResult, error)
	CancelPayments(ctx context.Context, req CancellationRequest) (CancellationResult, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	Owner      domain.OwnerKey
	Status     []domain.OrderStatus
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}
