package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopnatural/core/internal/domain"
	"github.com/shopnatural/core/internal/repositories"
)

// ErrReconcileOrderNotFound indicates no order matches any identifier on the
// event. Webhook handlers translate this to a 404 so the gateway retries.
var ErrReconcileOrderNotFound = errors.New("reconcile: order not found")

// ReconciliationServiceDeps bundles collaborators for the reconciliation
// engine.
type ReconciliationServiceDeps struct {
	Orders    repositories.OrderRepository
	Counters  CounterService
	Publisher NotificationPublisher
	Clock     func() time.Time
	Logger    func(context.Context, string, map[string]any)
}

type reconciliationService struct {
	orders    repositories.OrderRepository
	counters  CounterService
	publisher NotificationPublisher
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewReconciliationService wires the engine that settles gateway events
// against orders.
func NewReconciliationService(deps ReconciliationServiceDeps) (ReconciliationService, error) {
	if deps.Orders == nil {
		return nil, errors.New("reconciliation service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("reconciliation service: counter service is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &reconciliationService{
		orders:    deps.Orders,
		counters:  deps.Counters,
		publisher: deps.Publisher,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

// Process settles one canonical payment event. It is idempotent: redelivered
// events find the order already settled and return Applied=false without side
// effects. Pending outcomes acknowledge without touching the order.
func (s *reconciliationService) Process(ctx context.Context, event domain.PaymentEvent) (ReconcileResult, error) {
	order, err := s.locate(ctx, event)
	if err != nil {
		return ReconcileResult{}, err
	}

	if event.Outcome == domain.PaymentOutcomePending {
		s.logger(ctx, "reconcile.pending_ack", map[string]any{"order_id": order.ID, "gateway": event.Gateway})
		return ReconcileResult{Order: order, Applied: false}, nil
	}

	req, err := s.buildOutcome(ctx, order, event)
	if err != nil {
		return ReconcileResult{}, err
	}

	result, err := s.orders.ApplyPaymentOutcome(ctx, req)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("reconcile: apply outcome: %w", err)
	}
	s.logger(ctx, "reconcile.processed", map[string]any{
		"order_id": result.Order.ID,
		"gateway":  event.Gateway,
		"outcome":  string(event.Outcome),
		"applied":  result.Applied,
	})
	if result.Applied {
		s.notify(ctx, result.Order, event.Outcome)
	}
	return ReconcileResult{Order: result.Order, Applied: result.Applied}, nil
}

// locate correlates the event with an order, most specific identifier first.
func (s *reconciliationService) locate(ctx context.Context, event domain.PaymentEvent) (domain.Order, error) {
	lookups := []func() (domain.Order, error){}
	if event.TransactionID != "" {
		lookups = append(lookups, func() (domain.Order, error) {
			return s.orders.FindByTransactionID(ctx, event.Gateway, event.TransactionID)
		})
	}
	if event.PaymentReference != "" {
		lookups = append(lookups, func() (domain.Order, error) {
			return s.orders.FindByPaymentReference(ctx, event.PaymentReference)
		})
	}
	if event.OrderNumber != "" {
		lookups = append(lookups, func() (domain.Order, error) {
			return s.orders.FindByOrderNumber(ctx, event.OrderNumber)
		})
	}
	for _, lookup := range lookups {
		order, err := lookup()
		if err == nil {
			return order, nil
		}
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			continue
		}
		return domain.Order{}, fmt.Errorf("reconcile: locate order: %w", err)
	}
	return domain.Order{}, ErrReconcileOrderNotFound
}

// buildOutcome maps the event to the order and payment statuses it implies.
// Documents are numbered before the transaction; the assignment inside it is
// conditional on the order not carrying numbers yet, so a redelivered success
// never burns fresh sequence values twice for the same order.
func (s *reconciliationService) buildOutcome(ctx context.Context, order domain.Order, event domain.PaymentEvent) (repositories.PaymentOutcomeRequest, error) {
	req := repositories.PaymentOutcomeRequest{
		OrderID: order.ID,
		Outcome: event.Outcome,
		Payment: domain.PaymentRecord{
			Gateway:       event.Gateway,
			TransactionID: event.TransactionID,
			RedirectURL:   order.Payment.RedirectURL,
			FailureReason: event.FailureReason,
		},
	}
	switch event.Outcome {
	case domain.PaymentOutcomeSucceeded:
		req.Status = domain.OrderStatusConfirmed
		req.PaymentStatus = domain.PaymentStatusPaid
		paidAt := event.OccurredAt.UTC()
		if paidAt.IsZero() {
			paidAt = s.clock()
		}
		req.PaidAt = &paidAt
		if order.OrderNumber == "" {
			number, err := s.counters.NextOrderNumber(ctx)
			if err != nil {
				return repositories.PaymentOutcomeRequest{}, fmt.Errorf("reconcile: order number: %w", err)
			}
			req.OrderNumber = number
		}
		if order.InvoiceNumber == "" {
			invoice, err := s.counters.NextInvoiceNumber(ctx)
			if err != nil {
				return repositories.PaymentOutcomeRequest{}, fmt.Errorf("reconcile: invoice number: %w", err)
			}
			req.InvoiceNumber = invoice
		}
	case domain.PaymentOutcomeFailed:
		req.Status = domain.OrderStatusCancelled
		req.PaymentStatus = domain.PaymentStatusFailed
	case domain.PaymentOutcomeRefunded:
		req.Status = domain.OrderStatusCancelled
		req.PaymentStatus = domain.PaymentStatusRefunded
	default:
		return repositories.PaymentOutcomeRequest{}, fmt.Errorf("reconcile: unknown outcome %q", event.Outcome)
	}
	return req, nil
}

// notify publishes out of band; a publisher failure is logged and swallowed
// so the gateway still receives its acknowledgement.
func (s *reconciliationService) notify(ctx context.Context, order domain.Order, outcome domain.PaymentOutcome) {
	if s.publisher == nil {
		return
	}
	var kind string
	switch outcome {
	case domain.PaymentOutcomeSucceeded:
		kind = NotificationOrderConfirmed
	case domain.PaymentOutcomeFailed:
		kind = NotificationPaymentFailed
	case domain.PaymentOutcomeRefunded:
		kind = NotificationOrderRefunded
	default:
		return
	}
	notification := OrderNotification{
		Kind:        kind,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Email:       order.Email,
		OccurredAt:  s.clock(),
	}
	if err := s.publisher.PublishOrderNotification(ctx, notification); err != nil {
		s.logger(ctx, "reconcile.notify_failed", map[string]any{
			"order_id": order.ID,
			"kind":     kind,
			"error":    err.Error(),
		})
	}
}
