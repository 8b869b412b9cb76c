package repositories

import (
	"context"
	"time"

	"github.com/shopnatural/core/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Discounts() DiscountRepository
	Promotions() PromotionRepository
	Counters() CounterRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderOwner identifies who may see an order: a signed-in customer or an
// anonymous guest session.
type OrderOwner struct {
	CustomerID   string
	GuestSession string
}

// OrderListFilter narrows order listings. StartAfter is a creation-time
// cursor taken from the last order of the previous page.
type OrderListFilter struct {
	Statuses   []domain.OrderStatus
	Limit      int
	StartAfter *time.Time
}

// PromotionReservation describes the promotion usage recorded atomically with
// order creation. The limits are re-checked inside the transaction so two
// concurrent checkouts cannot both claim the last redemption.
type PromotionReservation struct {
	UsageID      string
	CodeID       string
	CustomerID   string
	Discount     int64
	UsageLimit   int64
	PerUserLimit int64
}

// OrderMutation is what a Mutate callback asks the repository to persist:
// the updated order, and whether the order's pending promotion-usage
// reservation should be released alongside it.
type OrderMutation struct {
	Order        domain.Order
	ReleaseUsage bool
}

// OrderMutator computes an order mutation from the transaction-fresh
// snapshot of the order.
type OrderMutator func(order domain.Order) (OrderMutation, error)

// PaymentOutcomeRequest carries the state a reconciled gateway event applies
// to an order. Numbers are assigned only when the order does not carry them
// yet, which keeps replayed events from burning new sequence values.
type PaymentOutcomeRequest struct {
	OrderID       string
	Outcome       domain.PaymentOutcome
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	OrderNumber   string
	InvoiceNumber string
	Payment       domain.PaymentRecord
	PaidAt        *time.Time
}

// PaymentOutcomeResult reports whether the transaction changed the order.
// Applied is false when a duplicate delivery arrived after the first one
// already settled the order.
type PaymentOutcomeResult struct {
	Order   domain.Order
	Applied bool
}

// OrderRepository persists order aggregates together with their promotion
// usage bookkeeping.
type OrderRepository interface {
	// Create stores a new order. When reservation is non-nil the promotion
	// code's redemption counter is incremented and a pending usage record
	// written in the same transaction; the whole operation fails when the
	// code's limits are exhausted.
	Create(ctx context.Context, order domain.Order, reservation *PromotionReservation) (domain.Order, error)

	Get(ctx context.Context, orderID string) (domain.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (domain.Order, error)
	FindByTransactionID(ctx context.Context, gateway, transactionID string) (domain.Order, error)

	Update(ctx context.Context, order domain.Order) (domain.Order, error)

	// Mutate loads the order inside a transaction, applies fn to the fresh
	// snapshot and persists the result, so a concurrent webhook outcome is
	// never overwritten by a stale read. When fn sets ReleaseUsage and the
	// order carries a pending usage reservation, the reservation is voided
	// and the redemption returned to the pool in the same transaction. An
	// error from fn aborts the transaction unchanged.
	Mutate(ctx context.Context, orderID string, fn OrderMutator) (domain.Order, error)

	// ApplyPaymentOutcome transactionally applies a gateway outcome. A
	// successful outcome confirms any pending promotion usage; a failed one
	// releases it and returns the redemption to the pool.
	ApplyPaymentOutcome(ctx context.Context, req PaymentOutcomeRequest) (PaymentOutcomeResult, error)

	ListByOwner(ctx context.Context, owner OrderOwner, filter OrderListFilter) ([]domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)

	// ListExpiredDrafts returns unpaid draft orders created before the cutoff.
	ListExpiredDrafts(ctx context.Context, before time.Time, limit int) ([]domain.Order, error)

	// ExpireDraft cancels an abandoned draft and releases its promotion
	// reservation in one transaction. Returns false when the order moved on
	// (for example a late payment arrived) and nothing was changed.
	ExpireDraft(ctx context.Context, orderID string, at time.Time) (bool, error)

	SoftDelete(ctx context.Context, orderID string, deletedAt time.Time) error
}

// DiscountRepository persists catalog-wide discount campaigns.
type DiscountRepository interface {
	Insert(ctx context.Context, discount domain.CatalogDiscount) (domain.CatalogDiscount, error)
	Update(ctx context.Context, discount domain.CatalogDiscount) (domain.CatalogDiscount, error)
	Get(ctx context.Context, discountID string) (domain.CatalogDiscount, error)
	Delete(ctx context.Context, discountID string) error
	// ListActive returns discounts flagged active; window checks against the
	// current time are left to the resolver so the result can be cached.
	ListActive(ctx context.Context) ([]domain.CatalogDiscount, error)
	List(ctx context.Context) ([]domain.CatalogDiscount, error)
}

// PromotionRepository persists promotion codes and their usage ledger.
type PromotionRepository interface {
	Insert(ctx context.Context, code domain.PromotionCode) (domain.PromotionCode, error)
	Update(ctx context.Context, code domain.PromotionCode) (domain.PromotionCode, error)
	Get(ctx context.Context, codeID string) (domain.PromotionCode, error)
	FindByCode(ctx context.Context, code string) (domain.PromotionCode, error)
	List(ctx context.Context) ([]domain.PromotionCode, error)

	GetUsage(ctx context.Context, usageID string) (domain.PromotionUsage, error)
	// CountUsageForCustomer counts pending and confirmed redemptions a
	// customer holds against a code.
	CountUsageForCustomer(ctx context.Context, codeID, customerID string) (int64, error)
}

// CounterRepository issues monotonically increasing sequence values.
type CounterRepository interface {
	// Next atomically increments the named counter and returns the new value.
	// Counters are created on first use.
	Next(ctx context.Context, counterID string) (int64, error)
}

// HealthRepository aggregates dependency probes for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
