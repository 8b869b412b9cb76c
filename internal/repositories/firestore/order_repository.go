package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/shopnatural/core/internal/domain"
	pfirestore "github.com/shopnatural/core/internal/platform/firestore"
	"github.com/shopnatural/core/internal/repositories"
)

const ordersCollection = "orders"

type orderDocument struct {
	OrderNumber      string                    `firestore:"orderNumber"`
	InvoiceNumber    string                    `firestore:"invoiceNumber"`
	PaymentReference string                    `firestore:"paymentReference"`
	CustomerID       string                    `firestore:"customerId"`
	GuestSessionID   string                    `firestore:"guestSessionId"`
	Email            string                    `firestore:"email"`
	Phone            string                    `firestore:"phone"`
	Currency         string                    `firestore:"currency"`
	Status           string                    `firestore:"status"`
	PaymentStatus    string                    `firestore:"paymentStatus"`
	Totals           orderTotalsDocument       `firestore:"totals"`
	Items            []orderItemDocument       `firestore:"items"`
	ShippingAddress  addressDocument           `firestore:"shippingAddress"`
	BillingAddress   addressDocument           `firestore:"billingAddress"`
	ShippingMethod   string                    `firestore:"shippingMethod"`
	Promotion        *appliedPromotionDocument `firestore:"promotion,omitempty"`
	Payment          paymentRecordDocument     `firestore:"payment"`
	TrackingCode     string                    `firestore:"trackingCode"`
	Notes            string                    `firestore:"notes"`
	CreatedAt        time.Time                 `firestore:"createdAt"`
	UpdatedAt        time.Time                 `firestore:"updatedAt"`
	PlacedAt         *time.Time                `firestore:"placedAt,omitempty"`
	ConfirmedAt      *time.Time                `firestore:"confirmedAt,omitempty"`
	ShippedAt        *time.Time                `firestore:"shippedAt,omitempty"`
	DeliveredAt      *time.Time                `firestore:"deliveredAt,omitempty"`
	CancelledAt      *time.Time                `firestore:"cancelledAt,omitempty"`
	CancelReason     string                    `firestore:"cancelReason"`
	DeletedAt        *time.Time                `firestore:"deletedAt,omitempty"`
}

type orderTotalsDocument struct {
	OriginalSubtotal int64 `firestore:"originalSubtotal"`
	ProductDiscount  int64 `firestore:"productDiscount"`
	Subtotal         int64 `firestore:"subtotal"`
	SubtotalExclVAT  int64 `firestore:"subtotalExclVat"`
	VATAmount        int64 `firestore:"vatAmount"`
	Discount         int64 `firestore:"discount"`
	ShippingCost     int64 `firestore:"shippingCost"`
	Total            int64 `firestore:"total"`
}

type orderItemDocument struct {
	ProductID     string `firestore:"productId"`
	SKU           string `firestore:"sku"`
	Name          string `firestore:"name"`
	Variant       string `firestore:"variant"`
	Quantity      int    `firestore:"quantity"`
	UnitPrice     int64  `firestore:"unitPrice"`
	OriginalPrice int64  `firestore:"originalPrice"`
	DiscountID    string `firestore:"discountId"`
	Subtotal      int64  `firestore:"subtotal"`
	VATAmount     int64  `firestore:"vatAmount"`
	Total         int64  `firestore:"total"`
}

type addressDocument struct {
	Recipient  string `firestore:"recipient"`
	Company    string `firestore:"company"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2"`
	City       string `firestore:"city"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
	Phone      string `firestore:"phone"`
}

type appliedPromotionDocument struct {
	CodeID   string `firestore:"codeId"`
	Code     string `firestore:"code"`
	UsageID  string `firestore:"usageId"`
	Discount int64  `firestore:"discount"`
}

type paymentRecordDocument struct {
	Gateway       string `firestore:"gateway"`
	TransactionID string `firestore:"transactionId"`
	RedirectURL   string `firestore:"redirectUrl"`
	FailureReason string `firestore:"failureReason"`
}

// OrderRepository persists order aggregates in Firestore. Promotion usage
// bookkeeping that must move in lockstep with order state is handled here
// inside transactions spanning the orders, promotionCodes and promotionUsage
// collections.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	codes    *pfirestore.BaseRepository[promotionCodeDocument]
	usage    *pfirestore.BaseRepository[promotionUsageDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
		codes:    pfirestore.NewBaseRepository[promotionCodeDocument](provider, promotionCodesCollection),
		usage:    pfirestore.NewBaseRepository[promotionUsageDocument](provider, promotionUsageCollection),
	}, nil
}

// Create stores a new order, reserving the promotion usage in the same
// transaction when a reservation is supplied. The code's limits are
// re-checked against current counters so the reservation either lands
// atomically or the whole checkout fails.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order, reservation *repositories.PromotionReservation) (domain.Order, error) {
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	if reservation == nil {
		if err := r.orders.Create(ctx, order.ID, encodeOrder(order)); err != nil {
			return domain.Order{}, err
		}
		return order, nil
	}

	if strings.TrimSpace(reservation.UsageID) == "" || strings.TrimSpace(reservation.CodeID) == "" {
		return domain.Order{}, errors.New("order repository: reservation requires usage and code ids")
	}

	orderRef, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	codeRef, err := r.codes.DocumentRef(ctx, reservation.CodeID)
	if err != nil {
		return domain.Order{}, err
	}
	usageRef, err := r.usage.DocumentRef(ctx, reservation.UsageID)
	if err != nil {
		return domain.Order{}, err
	}
	usageColl, err := r.usage.CollectionRef(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snapshot, err := tx.Get(codeRef)
		if err != nil {
			return err
		}
		code, err := pfirestore.DecodeSnapshot[promotionCodeDocument](snapshot, promotionCodesCollection)
		if err != nil {
			return err
		}
		if reservation.UsageLimit > 0 && code.Data.TimesUsed >= reservation.UsageLimit {
			return repositories.ErrPromotionExhausted
		}
		if reservation.PerUserLimit > 0 && reservation.CustomerID != "" {
			held, err := countUsageInTx(tx, usageColl, reservation.CodeID, reservation.CustomerID, reservation.PerUserLimit)
			if err != nil {
				return err
			}
			if held >= reservation.PerUserLimit {
				return repositories.ErrPromotionPerUserExceeded
			}
		}

		if err := tx.Update(codeRef, []firestore.Update{
			{Path: "timesUsed", Value: firestore.Increment(1)},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}
		if err := tx.Create(usageRef, promotionUsageDocument{
			CodeID:     reservation.CodeID,
			CustomerID: reservation.CustomerID,
			OrderID:    order.ID,
			Discount:   reservation.Discount,
			Status:     string(domain.UsageStatusPending),
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			return err
		}
		return tx.Create(orderRef, encodeOrder(order))
	})
	if err != nil {
		if errors.Is(err, repositories.ErrPromotionExhausted) || errors.Is(err, repositories.ErrPromotionPerUserExceeded) {
			return domain.Order{}, err
		}
		return domain.Order{}, pfirestore.WrapError("orders.create", err)
	}
	return order, nil
}

// Get fetches an order by document id.
func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// FindByOrderNumber fetches an order by its public order number.
func (r *OrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	return r.findOne(ctx, "orders.findByOrderNumber", func(q firestore.Query) firestore.Query {
		return q.Where("orderNumber", "==", strings.TrimSpace(orderNumber)).Limit(1)
	})
}

// FindByPaymentReference fetches an order by the reference handed to the
// payment gateway at session creation.
func (r *OrderRepository) FindByPaymentReference(ctx context.Context, reference string) (domain.Order, error) {
	return r.findOne(ctx, "orders.findByPaymentReference", func(q firestore.Query) firestore.Query {
		return q.Where("paymentReference", "==", strings.TrimSpace(reference)).Limit(1)
	})
}

// FindByTransactionID fetches an order by the gateway transaction recorded on
// a previously applied outcome. Used to correlate refund events that carry no
// order reference.
func (r *OrderRepository) FindByTransactionID(ctx context.Context, gateway, transactionID string) (domain.Order, error) {
	return r.findOne(ctx, "orders.findByTransactionId", func(q firestore.Query) firestore.Query {
		return q.Where("payment.gateway", "==", gateway).
			Where("payment.transactionId", "==", transactionID).
			Limit(1)
	})
}

// Update replaces the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	order.UpdatedAt = time.Now().UTC()
	if err := r.orders.Set(ctx, order.ID, encodeOrder(order)); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// Mutate applies fn to the order under its transaction lock. The snapshot
// handed to fn is transaction-fresh, so an outcome committed by a racing
// webhook is visible to the mutation instead of being overwritten. A
// requested usage release only acts on a reservation that is still pending;
// confirmed or already-released usage is left alone.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn repositories.OrderMutator) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	if fn == nil {
		return domain.Order{}, errors.New("order repository: mutator is required")
	}

	orderRef, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	var updated domain.Order
	var fnErr error
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		fnErr = nil
		snapshot, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		doc, err := pfirestore.DecodeSnapshot[orderDocument](snapshot, ordersCollection)
		if err != nil {
			return err
		}
		order := decodeOrder(doc.ID, doc.Data)

		// All reads must precede writes inside a Firestore transaction, so
		// the usage snapshot is taken before fn decides anything.
		var usageRef *firestore.DocumentRef
		var usageStatus domain.UsageStatus
		if order.Promotion != nil && order.Promotion.UsageID != "" {
			usageRef, err = r.usage.DocumentRef(ctx, order.Promotion.UsageID)
			if err != nil {
				return err
			}
			usageSnap, err := tx.Get(usageRef)
			if err == nil {
				usageDoc, err := pfirestore.DecodeSnapshot[promotionUsageDocument](usageSnap, promotionUsageCollection)
				if err != nil {
					return err
				}
				usageStatus = domain.UsageStatus(usageDoc.Data.Status)
			} else {
				usageRef = nil
			}
		}

		mutation, err := fn(order)
		if err != nil {
			fnErr = err
			return err
		}

		now := time.Now().UTC()
		out := mutation.Order
		out.ID = order.ID
		out.UpdatedAt = now

		if mutation.ReleaseUsage && usageRef != nil && usageStatus == domain.UsageStatusPending {
			if err := r.releaseUsageInTx(ctx, tx, usageRef, order.Promotion.CodeID, now); err != nil {
				return err
			}
		}
		if err := tx.Set(orderRef, encodeOrder(out)); err != nil {
			return err
		}
		updated = out
		return nil
	})
	if err != nil {
		if fnErr != nil && errors.Is(err, fnErr) {
			return domain.Order{}, fnErr
		}
		return domain.Order{}, pfirestore.WrapError("orders.mutate", err)
	}
	return updated, nil
}

// ApplyPaymentOutcome transactionally settles a gateway outcome against the
// order and its promotion usage. Duplicate deliveries are detected inside the
// transaction and reported through Applied=false without touching state.
func (r *OrderRepository) ApplyPaymentOutcome(ctx context.Context, req repositories.PaymentOutcomeRequest) (repositories.PaymentOutcomeResult, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return repositories.PaymentOutcomeResult{}, errors.New("order repository: order id is required")
	}

	orderRef, err := r.orders.DocumentRef(ctx, req.OrderID)
	if err != nil {
		return repositories.PaymentOutcomeResult{}, err
	}

	var result repositories.PaymentOutcomeResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snapshot, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		doc, err := pfirestore.DecodeSnapshot[orderDocument](snapshot, ordersCollection)
		if err != nil {
			return err
		}
		order := decodeOrder(doc.ID, doc.Data)

		if !outcomeApplies(order, req.Outcome) {
			result = repositories.PaymentOutcomeResult{Order: order, Applied: false}
			return nil
		}

		now := time.Now().UTC()

		// All reads must precede writes inside a Firestore transaction, so
		// the usage snapshot is taken before any mutation below.
		var usageRef *firestore.DocumentRef
		var usageStatus domain.UsageStatus
		if order.Promotion != nil && order.Promotion.UsageID != "" {
			usageRef, err = r.usage.DocumentRef(ctx, order.Promotion.UsageID)
			if err != nil {
				return err
			}
			usageSnap, err := tx.Get(usageRef)
			if err == nil {
				usageDoc, err := pfirestore.DecodeSnapshot[promotionUsageDocument](usageSnap, promotionUsageCollection)
				if err != nil {
					return err
				}
				usageStatus = domain.UsageStatus(usageDoc.Data.Status)
			} else {
				usageRef = nil
			}
		}

		order.PaymentStatus = req.PaymentStatus
		if req.Status != "" {
			order.Status = req.Status
		}
		if order.OrderNumber == "" && req.OrderNumber != "" {
			order.OrderNumber = req.OrderNumber
		}
		if order.InvoiceNumber == "" && req.InvoiceNumber != "" {
			order.InvoiceNumber = req.InvoiceNumber
		}
		if req.Payment.Gateway != "" {
			order.Payment.Gateway = req.Payment.Gateway
		}
		if req.Payment.TransactionID != "" {
			order.Payment.TransactionID = req.Payment.TransactionID
		}
		order.Payment.FailureReason = req.Payment.FailureReason
		order.UpdatedAt = now

		switch req.Outcome {
		case domain.PaymentOutcomeSucceeded:
			if req.PaidAt != nil {
				order.ConfirmedAt = req.PaidAt
			} else {
				order.ConfirmedAt = &now
			}
			if usageRef != nil && usageStatus == domain.UsageStatusPending {
				if err := tx.Update(usageRef, []firestore.Update{
					{Path: "status", Value: string(domain.UsageStatusConfirmed)},
					{Path: "orderId", Value: order.ID},
					{Path: "updatedAt", Value: now},
				}); err != nil {
					return err
				}
			}
		case domain.PaymentOutcomeFailed:
			if usageRef != nil && usageStatus == domain.UsageStatusPending {
				if err := r.releaseUsageInTx(ctx, tx, usageRef, order.Promotion.CodeID, now); err != nil {
					return err
				}
			}
		case domain.PaymentOutcomeRefunded:
			// The confirmed usage stays on the ledger; refunds do not return
			// redemptions to the pool.
		}

		if err := tx.Set(orderRef, encodeOrder(order)); err != nil {
			return err
		}
		result = repositories.PaymentOutcomeResult{Order: order, Applied: true}
		return nil
	})
	if err != nil {
		return repositories.PaymentOutcomeResult{}, pfirestore.WrapError("orders.applyPaymentOutcome", err)
	}
	return result, nil
}

// ListByOwner returns orders visible to a customer or guest session, newest
// first. Soft-deleted orders are excluded.
func (r *OrderRepository) ListByOwner(ctx context.Context, owner repositories.OrderOwner, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if owner.CustomerID == "" && owner.GuestSession == "" {
		return nil, errors.New("order repository: owner is required")
	}
	return r.list(ctx, func(q firestore.Query) firestore.Query {
		if owner.CustomerID != "" {
			q = q.Where("customerId", "==", owner.CustomerID)
		} else {
			q = q.Where("guestSessionId", "==", owner.GuestSession)
		}
		return applyOrderFilter(q, filter)
	})
}

// List returns orders for the back office, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	return r.list(ctx, func(q firestore.Query) firestore.Query {
		return applyOrderFilter(q, filter)
	})
}

// ListExpiredDrafts returns unpaid draft orders created before the cutoff.
func (r *OrderRepository) ListExpiredDrafts(ctx context.Context, before time.Time, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(domain.OrderStatusDraft)).
			Where("createdAt", "<", before.UTC()).
			OrderBy("createdAt", firestore.Asc).
			Limit(limit)
	})
}

// ExpireDraft cancels an abandoned draft and releases its promotion
// reservation. Returns false when the order is no longer an unpaid draft.
func (r *OrderRepository) ExpireDraft(ctx context.Context, orderID string, at time.Time) (bool, error) {
	orderRef, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return false, err
	}

	expired := false
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		expired = false
		snapshot, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		doc, err := pfirestore.DecodeSnapshot[orderDocument](snapshot, ordersCollection)
		if err != nil {
			return err
		}
		order := decodeOrder(doc.ID, doc.Data)

		if order.Status != domain.OrderStatusDraft || order.PaymentStatus == domain.PaymentStatusPaid {
			return nil
		}

		var usageRef *firestore.DocumentRef
		var usageStatus domain.UsageStatus
		if order.Promotion != nil && order.Promotion.UsageID != "" {
			usageRef, err = r.usage.DocumentRef(ctx, order.Promotion.UsageID)
			if err != nil {
				return err
			}
			usageSnap, err := tx.Get(usageRef)
			if err == nil {
				usageDoc, err := pfirestore.DecodeSnapshot[promotionUsageDocument](usageSnap, promotionUsageCollection)
				if err != nil {
					return err
				}
				usageStatus = domain.UsageStatus(usageDoc.Data.Status)
			} else {
				usageRef = nil
			}
		}

		now := at.UTC()
		order.Status = domain.OrderStatusCancelled
		order.CancelledAt = &now
		order.CancelReason = "expired"
		order.UpdatedAt = now

		if usageRef != nil && usageStatus == domain.UsageStatusPending {
			if err := r.releaseUsageInTx(ctx, tx, usageRef, order.Promotion.CodeID, now); err != nil {
				return err
			}
		}
		if err := tx.Set(orderRef, encodeOrder(order)); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return false, pfirestore.WrapError("orders.expireDraft", err)
	}
	return expired, nil
}

// SoftDelete marks an order deleted without removing the document.
func (r *OrderRepository) SoftDelete(ctx context.Context, orderID string, deletedAt time.Time) error {
	return r.orders.Update(ctx, orderID, []firestore.Update{
		{Path: "deletedAt", Value: deletedAt.UTC()},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
}

func (r *OrderRepository) releaseUsageInTx(ctx context.Context, tx *firestore.Transaction, usageRef *firestore.DocumentRef, codeID string, now time.Time) error {
	if err := tx.Delete(usageRef); err != nil {
		return err
	}
	if codeID == "" {
		return nil
	}
	codeRef, err := r.codes.DocumentRef(ctx, codeID)
	if err != nil {
		return err
	}
	return tx.Update(codeRef, []firestore.Update{
		{Path: "timesUsed", Value: firestore.Increment(-1)},
		{Path: "updatedAt", Value: now},
	})
}

func (r *OrderRepository) findOne(ctx context.Context, op string, build pfirestore.QueryBuilder) (domain.Order, error) {
	docs, err := r.orders.Query(ctx, build)
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NotFoundError(op)
	}
	return decodeOrder(docs[0].ID, docs[0].Data), nil
}

func (r *OrderRepository) list(ctx context.Context, build pfirestore.QueryBuilder) ([]domain.Order, error) {
	docs, err := r.orders.Query(ctx, build)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order := decodeOrder(doc.ID, doc.Data)
		if order.Deleted() {
			continue
		}
		out = append(out, order)
	}
	return out, nil
}

func applyOrderFilter(q firestore.Query, filter repositories.OrderListFilter) firestore.Query {
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		q = q.Where("status", "in", statuses)
	}
	q = q.OrderBy("createdAt", firestore.Desc)
	if filter.StartAfter != nil {
		q = q.StartAfter(filter.StartAfter.UTC())
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return q.Limit(limit)
}

func countUsageInTx(tx *firestore.Transaction, coll *firestore.CollectionRef, codeID, customerID string, max int64) (int64, error) {
	query := coll.Where("codeId", "==", codeID).
		Where("customerId", "==", customerID).
		Limit(int(max))
	iter := tx.Documents(query)
	defer iter.Stop()

	var count int64
	for {
		_, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("firestore promotionUsage count: %w", err)
		}
		count++
	}
	return count, nil
}

// outcomeApplies decides whether a gateway outcome still has an effect given
// the order's current payment state. Replayed or late deliveries fall out
// here.
func outcomeApplies(order domain.Order, outcome domain.PaymentOutcome) bool {
	awaitingPayment := order.Status == domain.OrderStatusDraft || order.Status == domain.OrderStatusPending
	switch outcome {
	case domain.PaymentOutcomeSucceeded:
		return awaitingPayment && order.PaymentStatus != domain.PaymentStatusPaid
	case domain.PaymentOutcomeFailed:
		// A failure arriving after the payment settled is stale.
		return awaitingPayment && order.PaymentStatus == domain.PaymentStatusPending
	case domain.PaymentOutcomeRefunded:
		return order.PaymentStatus == domain.PaymentStatusPaid
	default:
		return false
	}
}

func encodeOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument(item))
	}
	doc := orderDocument{
		OrderNumber:      order.OrderNumber,
		InvoiceNumber:    order.InvoiceNumber,
		PaymentReference: order.PaymentReference,
		CustomerID:       order.CustomerID,
		GuestSessionID:   order.GuestSessionID,
		Email:            order.Email,
		Phone:            order.Phone,
		Currency:         order.Currency,
		Status:           string(order.Status),
		PaymentStatus:    string(order.PaymentStatus),
		Totals:           orderTotalsDocument(order.Totals),
		Items:            items,
		ShippingAddress:  addressDocument(order.ShippingAddress),
		BillingAddress:   addressDocument(order.BillingAddress),
		ShippingMethod:   order.ShippingMethod,
		Payment:          paymentRecordDocument(order.Payment),
		TrackingCode:     order.TrackingCode,
		Notes:            order.Notes,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
		PlacedAt:         order.PlacedAt,
		ConfirmedAt:      order.ConfirmedAt,
		ShippedAt:        order.ShippedAt,
		DeliveredAt:      order.DeliveredAt,
		CancelledAt:      order.CancelledAt,
		CancelReason:     order.CancelReason,
		DeletedAt:        order.DeletedAt,
	}
	if order.Promotion != nil {
		promo := appliedPromotionDocument(*order.Promotion)
		doc.Promotion = &promo
	}
	return doc
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem(item))
	}
	order := domain.Order{
		ID:               id,
		OrderNumber:      doc.OrderNumber,
		InvoiceNumber:    doc.InvoiceNumber,
		PaymentReference: doc.PaymentReference,
		CustomerID:       doc.CustomerID,
		GuestSessionID:   doc.GuestSessionID,
		Email:            doc.Email,
		Phone:            doc.Phone,
		Currency:         doc.Currency,
		Status:           domain.OrderStatus(doc.Status),
		PaymentStatus:    domain.PaymentStatus(doc.PaymentStatus),
		Totals:           domain.OrderTotals(doc.Totals),
		Items:            items,
		ShippingAddress:  domain.Address(doc.ShippingAddress),
		BillingAddress:   domain.Address(doc.BillingAddress),
		ShippingMethod:   doc.ShippingMethod,
		Payment:          domain.PaymentRecord(doc.Payment),
		TrackingCode:     doc.TrackingCode,
		Notes:            doc.Notes,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
		PlacedAt:         doc.PlacedAt,
		ConfirmedAt:      doc.ConfirmedAt,
		ShippedAt:        doc.ShippedAt,
		DeliveredAt:      doc.DeliveredAt,
		CancelledAt:      doc.CancelledAt,
		CancelReason:     doc.CancelReason,
		DeletedAt:        doc.DeletedAt,
	}
	if doc.Promotion != nil {
		promo := domain.AppliedPromotion(*doc.Promotion)
		order.Promotion = &promo
	}
	return order
}
