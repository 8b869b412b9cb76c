package handlers

import (
	"context"
	"net/url"
	"time"

	"github.com/shopnatural/core/internal/domain"
	"github.com/shopnatural/core/internal/services"
)

type stubCheckoutService struct {
	result  services.CheckoutResult
	err     error
	lastCmd services.CheckoutCommand
	calls   int
}

func (s *stubCheckoutService) Submit(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
	s.calls++
	s.lastCmd = cmd
	if s.err != nil {
		return services.CheckoutResult{}, s.err
	}
	return s.result, nil
}

type stubOrderService struct {
	order     domain.Order
	orders    []domain.Order
	err       error
	lastGet   services.GetOrderQuery
	lastList  services.ListOrdersQuery
	lastCmd   services.UpdateOrderStatusCommand
	cancelled string
	deleted   string
}

func (s *stubOrderService) GetOrder(ctx context.Context, query services.GetOrderQuery) (domain.Order, error) {
	s.lastGet = query
	if s.err != nil {
		return domain.Order{}, s.err
	}
	return s.order, nil
}

func (s *stubOrderService) ListOrders(ctx context.Context, query services.ListOrdersQuery) ([]domain.Order, error) {
	s.lastList = query
	if s.err != nil {
		return nil, s.err
	}
	return s.orders, nil
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error) {
	s.lastCmd = cmd
	if s.err != nil {
		return domain.Order{}, s.err
	}
	return s.order, nil
}

func (s *stubOrderService) SetTracking(ctx context.Context, orderID, trackingCode string) (domain.Order, error) {
	if s.err != nil {
		return domain.Order{}, s.err
	}
	s.order.TrackingCode = trackingCode
	return s.order, nil
}

func (s *stubOrderService) CancelOrder(ctx context.Context, orderID, reason string) (domain.Order, error) {
	s.cancelled = orderID
	if s.err != nil {
		return domain.Order{}, s.err
	}
	return s.order, nil
}

func (s *stubOrderService) DeleteOrder(ctx context.Context, orderID string) error {
	s.deleted = orderID
	return s.err
}

type stubDiscountService struct {
	discount domain.CatalogDiscount
	list     []domain.CatalogDiscount
	err      error
	lastCmd  services.UpsertDiscountCommand
	deleted  string
}

func (s *stubDiscountService) CreateDiscount(ctx context.Context, cmd services.UpsertDiscountCommand) (domain.CatalogDiscount, error) {
	s.lastCmd = cmd
	if s.err != nil {
		return domain.CatalogDiscount{}, s.err
	}
	return s.discount, nil
}

func (s *stubDiscountService) UpdateDiscount(ctx context.Context, cmd services.UpsertDiscountCommand) (domain.CatalogDiscount, error) {
	s.lastCmd = cmd
	if s.err != nil {
		return domain.CatalogDiscount{}, s.err
	}
	return s.discount, nil
}

func (s *stubDiscountService) DeleteDiscount(ctx context.Context, discountID string) error {
	s.deleted = discountID
	return s.err
}

func (s *stubDiscountService) GetDiscount(ctx context.Context, discountID string) (domain.CatalogDiscount, error) {
	if s.err != nil {
		return domain.CatalogDiscount{}, s.err
	}
	return s.discount, nil
}

func (s *stubDiscountService) ListDiscounts(ctx context.Context) ([]domain.CatalogDiscount, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.list, nil
}

func (s *stubDiscountService) ResolveBest(ctx context.Context, ref domain.CatalogRef, at time.Time) (domain.CatalogDiscount, bool, error) {
	return domain.CatalogDiscount{}, false, nil
}

type stubPromotionService struct {
	code    domain.PromotionCode
	list    []domain.PromotionCode
	err     error
	lastCmd services.UpsertPromotionCommand
}

func (s *stubPromotionService) Validate(ctx context.Context, cmd services.ValidatePromotionCommand) (services.PromotionGrant, error) {
	return services.PromotionGrant{}, s.err
}

func (s *stubPromotionService) CreateCode(ctx context.Context, cmd services.UpsertPromotionCommand) (domain.PromotionCode, error) {
	s.lastCmd = cmd
	if s.err != nil {
		return domain.PromotionCode{}, s.err
	}
	return s.code, nil
}

func (s *stubPromotionService) UpdateCode(ctx context.Context, cmd services.UpsertPromotionCommand) (domain.PromotionCode, error) {
	s.lastCmd = cmd
	if s.err != nil {
		return domain.PromotionCode{}, s.err
	}
	return s.code, nil
}

func (s *stubPromotionService) GetCode(ctx context.Context, codeID string) (domain.PromotionCode, error) {
	if s.err != nil {
		return domain.PromotionCode{}, s.err
	}
	return s.code, nil
}

func (s *stubPromotionService) ListCodes(ctx context.Context) ([]domain.PromotionCode, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.list, nil
}

type stubSweepService struct {
	cancelled int
	err       error
	calls     int
}

func (s *stubSweepService) SweepExpiredDrafts(ctx context.Context) (int, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.cancelled, nil
}

type stubReconciler struct {
	result    services.ReconcileResult
	err       error
	lastEvent domain.PaymentEvent
	calls     int
}

func (s *stubReconciler) Process(ctx context.Context, event domain.PaymentEvent) (services.ReconcileResult, error) {
	s.calls++
	s.lastEvent = event
	if s.err != nil {
		return services.ReconcileResult{}, s.err
	}
	return s.result, nil
}

type stubStripeParser struct {
	event   domain.PaymentEvent
	err     error
	lastSig string
}

func (s *stubStripeParser) ParseEvent(payload []byte, signatureHeader string) (domain.PaymentEvent, error) {
	s.lastSig = signatureHeader
	if s.err != nil {
		return domain.PaymentEvent{}, s.err
	}
	return s.event, nil
}

type stubWebToPayParser struct {
	event     domain.PaymentEvent
	ref       string
	eventErr  error
	returnErr error
	lastQuery url.Values
}

func (s *stubWebToPayParser) ParseCallback(query url.Values) (domain.PaymentEvent, error) {
	s.lastQuery = query
	if s.eventErr != nil {
		return domain.PaymentEvent{}, s.eventErr
	}
	return s.event, nil
}

func (s *stubWebToPayParser) VerifyReturn(query url.Values) (string, error) {
	if s.returnErr != nil {
		return "", s.returnErr
	}
	return s.ref, nil
}
