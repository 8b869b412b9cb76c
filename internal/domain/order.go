package domain

import "time"

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusDraft indicates checkout started but the payment session is not yet in place.
	OrderStatusDraft OrderStatus = "draft"
	// OrderStatusPending indicates the order awaits the payment outcome from the gateway.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates payment succeeded and the order is ready for fulfilment.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates fulfilment is in progress.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the parcel has been handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusCompleted indicates the order has been delivered and closed.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the order has been cancelled.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus enumerates the normalised payment state of an order.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Order is the aggregate root for a placed checkout. Money fields are minor
// currency units. Addresses and items are snapshots taken at order time and
// are never recalculated afterwards.
type Order struct {
	ID               string
	OrderNumber      string
	InvoiceNumber    string
	PaymentReference string
	CustomerID       string
	GuestSessionID   string
	Email            string
	Phone            string
	Currency         string
	Status           OrderStatus
	PaymentStatus    PaymentStatus
	Totals           OrderTotals
	Items            []OrderItem
	ShippingAddress  Address
	BillingAddress   Address
	ShippingMethod   string
	Promotion        *AppliedPromotion
	Payment          PaymentRecord
	TrackingCode     string
	Notes            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	PlacedAt         *time.Time
	ConfirmedAt      *time.Time
	ShippedAt        *time.Time
	DeliveredAt      *time.Time
	CancelledAt      *time.Time
	CancelReason     string
	DeletedAt        *time.Time
}

// OrderTotals holds the audited money breakdown of an order in minor units.
//
// Invariants: Subtotal = OriginalSubtotal - ProductDiscount,
// Subtotal = SubtotalExclVAT + VATAmount, and
// Total = Subtotal - Discount + ShippingCost.
type OrderTotals struct {
	OriginalSubtotal int64
	ProductDiscount  int64
	Subtotal         int64
	SubtotalExclVAT  int64
	VATAmount        int64
	Discount         int64
	ShippingCost     int64
	Total            int64
}

// OrderItem is an immutable snapshot of a purchased line. Unit price is the
// catalog-discounted price captured at order time.
type OrderItem struct {
	ProductID     string
	SKU           string
	Name          string
	Variant       string
	Quantity      int
	UnitPrice     int64
	OriginalPrice int64
	DiscountID    string
	Subtotal      int64
	VATAmount     int64
	Total         int64
}

// AppliedPromotion records the promotional code resolved at checkout together
// with the reservation that backs it in the usage ledger.
type AppliedPromotion struct {
	CodeID   string
	Code     string
	UsageID  string
	Discount int64
}

// PaymentRecord stores the gateway correlation identifiers for an order.
type PaymentRecord struct {
	Gateway       string
	TransactionID string
	RedirectURL   string
	FailureReason string
}

// Address is a denormalised postal address snapshot.
type Address struct {
	Recipient  string
	Company    string
	Line1      string
	Line2      string
	City       string
	PostalCode string
	Country    string
	Phone      string
}

// IsTerminal reports whether no further transition may leave the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Deleted reports whether the order has been soft-deleted.
func (o Order) Deleted() bool {
	return o.DeletedAt != nil
}
