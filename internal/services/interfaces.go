package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopnatural/core/internal/domain"
)

// DiscountService owns catalog discount campaigns and resolves the effective
// discount for an item at a point in time.
type DiscountService interface {
	CreateDiscount(ctx context.Context, cmd UpsertDiscountCommand) (domain.CatalogDiscount, error)
	UpdateDiscount(ctx context.Context, cmd UpsertDiscountCommand) (domain.CatalogDiscount, error)
	DeleteDiscount(ctx context.Context, discountID string) error
	GetDiscount(ctx context.Context, discountID string) (domain.CatalogDiscount, error)
	ListDiscounts(ctx context.Context) ([]domain.CatalogDiscount, error)

	// ResolveBest returns the single highest-priority active discount matching
	// the item, or ok=false when nothing applies. Discounts never stack.
	ResolveBest(ctx context.Context, ref domain.CatalogRef, at time.Time) (domain.CatalogDiscount, bool, error)
}

// UpsertDiscountCommand carries admin input for discount campaigns.
type UpsertDiscountCommand struct {
	ID       string
	Name     string
	Type     domain.DiscountType
	Value    decimal.Decimal
	Scope    domain.DiscountScope
	ScopeIDs []string
	Priority int
	IsActive bool
	StartsAt *time.Time
	EndsAt   *time.Time
}

// PromotionService validates customer-entered codes and owns their admin CRUD.
type PromotionService interface {
	// Validate runs the ordered eligibility checks for a code against a
	// subtotal and identity and returns the discount grant. Each failure mode
	// is a distinct sentinel error so callers can surface the exact reason.
	Validate(ctx context.Context, cmd ValidatePromotionCommand) (PromotionGrant, error)

	CreateCode(ctx context.Context, cmd UpsertPromotionCommand) (domain.PromotionCode, error)
	UpdateCode(ctx context.Context, cmd UpsertPromotionCommand) (domain.PromotionCode, error)
	GetCode(ctx context.Context, codeID string) (domain.PromotionCode, error)
	ListCodes(ctx context.Context) ([]domain.PromotionCode, error)
}

// ValidatePromotionCommand identifies the code, the order subtotal after
// catalog discounts (minor units), and the customer claiming it.
type ValidatePromotionCommand struct {
	Code       string
	Subtotal   int64
	CustomerID string
}

// PromotionGrant is a successful validation: the resolved discount amount and
// the limits the usage ledger must re-check when reserving.
type PromotionGrant struct {
	CodeID       string
	Code         string
	Discount     int64
	UsageLimit   int64
	PerUserLimit int64
}

// UpsertPromotionCommand carries admin input for promotion codes.
type UpsertPromotionCommand struct {
	ID                string
	Code              string
	Type              domain.DiscountType
	Value             decimal.Decimal
	MinOrderAmount    int64
	MaxDiscountAmount int64
	UsageLimit        int64
	PerUserLimit      int64
	IsActive          bool
	StartsAt          *time.Time
	EndsAt            *time.Time
}

// PricingEngine computes the auditable money breakdown for a checkout.
type PricingEngine interface {
	Price(ctx context.Context, cmd PriceOrderCommand) (PricingBreakdown, error)
}

// PriceOrderCommand is the pricing input: line items with list prices, an
// optional promotion code, and the shipping cost already resolved by the
// caller's shipping-method lookup.
type PriceOrderCommand struct {
	Currency      string
	Items         []PricingItem
	PromotionCode string
	CustomerID    string
	ShippingCost  int64
}

// PricingItem is one line to price. UnitPrice is the undiscounted list price
// in minor units; Catalog carries the taxonomy ids used for discount matching.
type PricingItem struct {
	ProductID string
	SKU       string
	Name      string
	Variant   string
	Quantity  int
	UnitPrice int64
	Catalog   domain.CatalogRef
}

// PricedLine is a pricing output line with the catalog discount resolved and
// captured.
type PricedLine struct {
	Item          PricingItem
	UnitPrice     int64
	OriginalPrice int64
	DiscountID    string
	Subtotal      int64
	VATAmount     int64
	Total         int64
}

// PricingBreakdown is the full pricing result. Promotion is nil when no code
// was supplied.
type PricingBreakdown struct {
	Totals    domain.OrderTotals
	Lines     []PricedLine
	Promotion *PromotionGrant
}

// CounterService issues formatted, gap-free-per-sequence document numbers.
type CounterService interface {
	NextOrderNumber(ctx context.Context) (string, error)
	NextInvoiceNumber(ctx context.Context) (string, error)
}

// OrderService owns reads and operator-driven mutations of orders.
type OrderService interface {
	GetOrder(ctx context.Context, query GetOrderQuery) (domain.Order, error)
	ListOrders(ctx context.Context, query ListOrdersQuery) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error)
	SetTracking(ctx context.Context, orderID, trackingCode string) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID, reason string) (domain.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
}

// OrderActor describes who is asking. Operator bypasses ownership checks.
type OrderActor struct {
	CustomerID   string
	GuestSession string
	Operator     bool
}

// GetOrderQuery fetches one order on behalf of an actor.
type GetOrderQuery struct {
	OrderID string
	Actor   OrderActor
}

// ListOrdersQuery lists orders visible to an actor.
type ListOrdersQuery struct {
	Actor      OrderActor
	Statuses   []domain.OrderStatus
	Limit      int
	StartAfter *time.Time
}

// UpdateOrderStatusCommand is an operator-issued status change. Tracking is
// required when moving to shipped. Override skips the payment-status guard.
type UpdateOrderStatusCommand struct {
	OrderID      string
	Status       domain.OrderStatus
	TrackingCode string
	Override     bool
}

// CheckoutService turns a validated cart submission into a persisted order
// plus a gateway redirect.
type CheckoutService interface {
	Submit(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
}

// CheckoutItem is one submitted cart line. ClientTotal is the price the
// storefront displayed, cross-checked against the server-side computation.
type CheckoutItem struct {
	ProductID   string
	SKU         string
	Name        string
	Variant     string
	Quantity    int
	UnitPrice   int64
	ClientTotal int64
	Catalog     domain.CatalogRef
}

// CheckoutCommand is the checkout submission payload.
type CheckoutCommand struct {
	CustomerID      string
	GuestSessionID  string
	Email           string
	Phone           string
	Items           []CheckoutItem
	ShippingAddress domain.Address
	BillingAddress  domain.Address
	ShippingMethod  string
	ShippingCost    int64
	PaymentMethod   string
	PromotionCode   string
	Notes           string
}

// CheckoutResult carries the persisted order and where to send the shopper.
type CheckoutResult struct {
	Order       domain.Order
	RedirectURL string
}

// PaymentSession is the gateway-side session created for an order.
type PaymentSession struct {
	TransactionID string
	RedirectURL   string
}

// PaymentGateway creates hosted payment sessions. Implementations live in the
// payments package, one per provider.
type PaymentGateway interface {
	Name() string
	CreateSession(ctx context.Context, order domain.Order) (PaymentSession, error)
}

// ReconciliationService applies canonical payment events to orders.
type ReconciliationService interface {
	// Process settles one event. Applied is false when the event was a
	// duplicate or inapplicable from the order's current status; both cases
	// acknowledge without side effects.
	Process(ctx context.Context, event domain.PaymentEvent) (ReconcileResult, error)
}

// ReconcileResult reports the order state after processing.
type ReconcileResult struct {
	Order   domain.Order
	Applied bool
}

// SweepService reclaims abandoned drafts and their promotion reservations.
type SweepService interface {
	SweepExpiredDrafts(ctx context.Context) (int, error)
}

// OrderNotification is the message published when an order event needs
// customer or operator communication. Rendering and delivery happen in a
// downstream worker.
type OrderNotification struct {
	Kind        string    `json:"kind"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Email       string    `json:"email"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NotificationPublisher dispatches order notifications out of band so a slow
// notifier never blocks a webhook response.
type NotificationPublisher interface {
	PublishOrderNotification(ctx context.Context, notification OrderNotification) error
}

const (
	// NotificationOrderConfirmed announces a successful payment.
	NotificationOrderConfirmed = "order_confirmed"
	// NotificationPaymentFailed announces a failed payment attempt.
	NotificationPaymentFailed = "payment_failed"
	// NotificationOrderRefunded announces a refund.
	NotificationOrderRefunded = "order_refunded"
)
