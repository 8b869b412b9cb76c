package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopnatural/core/internal/domain"
	"github.com/shopnatural/core/internal/repositories"
)

var (
	// ErrOrderNotFound indicates the order does not exist or the actor may
	// not see it.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidInput signals bad command data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrInvalidTransition indicates a status change not allowed from the
	// order's current status.
	ErrInvalidTransition = errors.New("order: invalid status transition")
	// ErrPaymentStatusGuard indicates the change would put fulfilment ahead
	// of payment, e.g. shipping an unpaid order.
	ErrPaymentStatusGuard = errors.New("order: payment status does not allow transition")
	// ErrTrackingRequired indicates a move to shipped without a tracking code.
	ErrTrackingRequired = errors.New("order: tracking code required")
)

// orderTransitions is the canonical state machine. Terminal states have no
// outgoing edges.
var orderTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusDraft:      {domain.OrderStatusPending, domain.OrderStatusCancelled},
	domain.OrderStatusPending:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:  {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusCompleted, domain.OrderStatusCancelled},
	domain.OrderStatusCompleted:  {},
	domain.OrderStatusCancelled:  {},
}

// CanTransition reports whether the state machine permits moving an order
// from one status to another.
func CanTransition(from, to domain.OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// OrderServiceDeps bundles collaborators for the order service.
type OrderServiceDeps struct {
	Orders repositories.OrderRepository
	Clock  func() time.Time
	Logger func(context.Context, string, map[string]any)
}

type orderService struct {
	repo   repositories.OrderRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewOrderService wires an OrderService backed by the order repository.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{
		repo:   deps.Orders,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, query GetOrderQuery) (domain.Order, error) {
	if strings.TrimSpace(query.OrderID) == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.repo.Get(ctx, query.OrderID)
	if err != nil {
		return domain.Order{}, mapOrderRepoError(err)
	}
	if order.Deleted() && !query.Actor.Operator {
		return domain.Order{}, ErrOrderNotFound
	}
	if !actorOwnsOrder(query.Actor, order) {
		// Ownership failures read as not-found so order ids cannot be probed.
		return domain.Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, query ListOrdersQuery) ([]domain.Order, error) {
	filter := repositories.OrderListFilter{
		Statuses:   query.Statuses,
		Limit:      query.Limit,
		StartAfter: query.StartAfter,
	}
	if query.Actor.Operator {
		return s.repo.List(ctx, filter)
	}
	owner := repositories.OrderOwner{
		CustomerID:   query.Actor.CustomerID,
		GuestSession: query.Actor.GuestSession,
	}
	if owner.CustomerID == "" && owner.GuestSession == "" {
		return nil, fmt.Errorf("%w: owner identity is required", ErrOrderInvalidInput)
	}
	return s.repo.ListByOwner(ctx, owner, filter)
}

// UpdateStatus performs an operator-driven transition. It enforces the state
// machine, requires tracking before shipping, and refuses to move fulfilment
// ahead of payment unless explicitly overridden. The transition is validated
// and applied under the order's transaction lock so a racing webhook outcome
// is seen, not overwritten.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error) {
	var previous domain.OrderStatus
	updated, err := s.repo.Mutate(ctx, cmd.OrderID, func(order domain.Order) (repositories.OrderMutation, error) {
		if !CanTransition(order.Status, cmd.Status) {
			return repositories.OrderMutation{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, cmd.Status)
		}
		if requiresPaid(cmd.Status) && order.PaymentStatus != domain.PaymentStatusPaid && !cmd.Override {
			return repositories.OrderMutation{}, fmt.Errorf("%w: payment is %s", ErrPaymentStatusGuard, order.PaymentStatus)
		}

		now := s.clock()
		release := false
		switch cmd.Status {
		case domain.OrderStatusShipped:
			tracking := strings.TrimSpace(cmd.TrackingCode)
			if tracking == "" {
				tracking = order.TrackingCode
			}
			if tracking == "" {
				return repositories.OrderMutation{}, ErrTrackingRequired
			}
			order.TrackingCode = tracking
			order.ShippedAt = &now
		case domain.OrderStatusCompleted:
			order.DeliveredAt = &now
		case domain.OrderStatusCancelled:
			order.CancelledAt = &now
			if order.PaymentStatus == domain.PaymentStatusPaid {
				order.PaymentStatus = domain.PaymentStatusRefunded
			}
			// An unpaid cancellation returns the promo reservation to the
			// pool; the repository skips usage that is no longer pending.
			release = true
		}
		previous = order.Status
		order.Status = cmd.Status
		return repositories.OrderMutation{Order: order, ReleaseUsage: release}, nil
	})
	if err != nil {
		return domain.Order{}, mapOrderRepoError(err)
	}
	s.logger(ctx, "order.status_changed", map[string]any{
		"order_id": updated.ID,
		"from":     string(previous),
		"to":       string(updated.Status),
	})
	return updated, nil
}

func (s *orderService) SetTracking(ctx context.Context, orderID, trackingCode string) (domain.Order, error) {
	tracking := strings.TrimSpace(trackingCode)
	if tracking == "" {
		return domain.Order{}, fmt.Errorf("%w: tracking code is required", ErrOrderInvalidInput)
	}
	updated, err := s.repo.Mutate(ctx, orderID, func(order domain.Order) (repositories.OrderMutation, error) {
		if order.Status.IsTerminal() {
			return repositories.OrderMutation{}, fmt.Errorf("%w: order is %s", ErrInvalidTransition, order.Status)
		}
		order.TrackingCode = tracking
		return repositories.OrderMutation{Order: order}, nil
	})
	if err != nil {
		return domain.Order{}, mapOrderRepoError(err)
	}
	return updated, nil
}

func (s *orderService) CancelOrder(ctx context.Context, orderID, reason string) (domain.Order, error) {
	updated, err := s.repo.Mutate(ctx, orderID, func(order domain.Order) (repositories.OrderMutation, error) {
		if !CanTransition(order.Status, domain.OrderStatusCancelled) {
			return repositories.OrderMutation{}, fmt.Errorf("%w: %s -> cancelled", ErrInvalidTransition, order.Status)
		}
		now := s.clock()
		order.Status = domain.OrderStatusCancelled
		order.CancelledAt = &now
		order.CancelReason = strings.TrimSpace(reason)
		if order.PaymentStatus == domain.PaymentStatusPaid {
			order.PaymentStatus = domain.PaymentStatusRefunded
		}
		return repositories.OrderMutation{Order: order, ReleaseUsage: true}, nil
	})
	if err != nil {
		return domain.Order{}, mapOrderRepoError(err)
	}
	s.logger(ctx, "order.cancelled", map[string]any{"order_id": updated.ID, "reason": updated.CancelReason})
	return updated, nil
}

// DeleteOrder soft-deletes for audit; the document is never removed.
func (s *orderService) DeleteOrder(ctx context.Context, orderID string) error {
	if strings.TrimSpace(orderID) == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if err := s.repo.SoftDelete(ctx, orderID, s.clock()); err != nil {
		return mapOrderRepoError(err)
	}
	return nil
}

// requiresPaid lists the fulfilment statuses that presuppose settled payment.
func requiresPaid(status domain.OrderStatus) bool {
	switch status {
	case domain.OrderStatusConfirmed, domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusCompleted:
		return true
	default:
		return false
	}
}

func actorOwnsOrder(actor OrderActor, order domain.Order) bool {
	if actor.Operator {
		return true
	}
	if actor.CustomerID != "" && actor.CustomerID == order.CustomerID {
		return true
	}
	if actor.GuestSession != "" && actor.GuestSession == order.GuestSessionID {
		return true
	}
	return false
}

func mapOrderRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrOrderNotFound
	}
	return err
}
