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
	// ErrCheckoutInvalidInput signals a malformed checkout payload.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutPriceMismatch indicates the storefront-displayed line total
	// disagrees with the server-side computation; the cart is stale.
	ErrCheckoutPriceMismatch = errors.New("checkout: displayed price is out of date")
	// ErrCheckoutUnknownGateway indicates an unsupported payment method.
	ErrCheckoutUnknownGateway = errors.New("checkout: unknown payment method")
	// ErrCheckoutGatewayFailed indicates the payment session could not be
	// created; the draft order remains for the sweep to reclaim.
	ErrCheckoutGatewayFailed = errors.New("checkout: payment session creation failed")
)

// CheckoutServiceDeps bundles collaborators for the checkout orchestrator.
type CheckoutServiceDeps struct {
	Orders   repositories.OrderRepository
	Pricing  PricingEngine
	Gateways map[string]PaymentGateway
	IDs      func() string
	Currency string
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

type checkoutService struct {
	orders   repositories.OrderRepository
	pricing  PricingEngine
	gateways map[string]PaymentGateway
	ids      func() string
	currency string
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewCheckoutService wires the checkout orchestrator.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("checkout service: pricing engine is required")
	}
	if len(deps.Gateways) == 0 {
		return nil, errors.New("checkout service: at least one payment gateway is required")
	}
	if deps.IDs == nil {
		return nil, errors.New("checkout service: id generator is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "EUR"
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	gateways := make(map[string]PaymentGateway, len(deps.Gateways))
	for method, gateway := range deps.Gateways {
		if gateway == nil {
			return nil, fmt.Errorf("checkout service: gateway for %q is nil", method)
		}
		gateways[strings.ToLower(method)] = gateway
	}
	return &checkoutService{
		orders:   deps.Orders,
		pricing:  deps.Pricing,
		gateways: gateways,
		ids:      deps.IDs,
		currency: currency,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// Submit runs the checkout pipeline: validate, price server-side, persist the
// draft together with any promotion reservation, create the payment session,
// and move the order to pending. List prices from the payload are never
// trusted for totals; they are cross-checked and recomputed.
func (s *checkoutService) Submit(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	if err := validateCheckout(cmd); err != nil {
		return CheckoutResult{}, err
	}
	gateway, ok := s.gateways[strings.ToLower(cmd.PaymentMethod)]
	if !ok {
		return CheckoutResult{}, fmt.Errorf("%w: %s", ErrCheckoutUnknownGateway, cmd.PaymentMethod)
	}

	breakdown, err := s.pricing.Price(ctx, PriceOrderCommand{
		Currency:      s.currency,
		Items:         pricingItems(cmd.Items),
		PromotionCode: cmd.PromotionCode,
		CustomerID:    cmd.CustomerID,
		ShippingCost:  cmd.ShippingCost,
	})
	if err != nil {
		return CheckoutResult{}, err
	}
	if err := crossCheckTotals(cmd.Items, breakdown.Lines); err != nil {
		return CheckoutResult{}, err
	}

	now := s.clock()
	order := domain.Order{
		ID:               s.ids(),
		PaymentReference: s.ids(),
		CustomerID:       cmd.CustomerID,
		GuestSessionID:   cmd.GuestSessionID,
		Email:            strings.ToLower(strings.TrimSpace(cmd.Email)),
		Phone:            strings.TrimSpace(cmd.Phone),
		Currency:         s.currency,
		Status:           domain.OrderStatusDraft,
		PaymentStatus:    domain.PaymentStatusPending,
		Totals:           breakdown.Totals,
		Items:            orderItems(breakdown.Lines),
		ShippingAddress:  cmd.ShippingAddress,
		BillingAddress:   billingOrShipping(cmd),
		ShippingMethod:   cmd.ShippingMethod,
		Payment:          domain.PaymentRecord{Gateway: gateway.Name()},
		Notes:            strings.TrimSpace(cmd.Notes),
		CreatedAt:        now,
		UpdatedAt:        now,
		PlacedAt:         &now,
	}

	var reservation *repositories.PromotionReservation
	if grant := breakdown.Promotion; grant != nil {
		usageID := s.ids()
		order.Promotion = &domain.AppliedPromotion{
			CodeID:   grant.CodeID,
			Code:     grant.Code,
			UsageID:  usageID,
			Discount: grant.Discount,
		}
		reservation = &repositories.PromotionReservation{
			UsageID:      usageID,
			CodeID:       grant.CodeID,
			CustomerID:   cmd.CustomerID,
			Discount:     grant.Discount,
			UsageLimit:   grant.UsageLimit,
			PerUserLimit: grant.PerUserLimit,
		}
	}

	created, err := s.orders.Create(ctx, order, reservation)
	if err != nil {
		if errors.Is(err, repositories.ErrPromotionExhausted) {
			return CheckoutResult{}, ErrPromotionExhausted
		}
		if errors.Is(err, repositories.ErrPromotionPerUserExceeded) {
			return CheckoutResult{}, ErrPromotionAlreadyUsed
		}
		return CheckoutResult{}, fmt.Errorf("checkout: persist order: %w", err)
	}

	session, err := gateway.CreateSession(ctx, created)
	if err != nil {
		// The draft stays behind; the sweep releases its reservation later.
		s.logger(ctx, "checkout.session_failed", map[string]any{
			"order_id": created.ID,
			"gateway":  gateway.Name(),
			"error":    err.Error(),
		})
		return CheckoutResult{}, fmt.Errorf("%w: %s", ErrCheckoutGatewayFailed, gateway.Name())
	}

	created.Status = domain.OrderStatusPending
	created.Payment.TransactionID = session.TransactionID
	created.Payment.RedirectURL = session.RedirectURL
	updated, err := s.orders.Update(ctx, created)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("checkout: persist payment session: %w", err)
	}

	s.logger(ctx, "checkout.submitted", map[string]any{
		"order_id": updated.ID,
		"gateway":  gateway.Name(),
		"total":    updated.Totals.Total,
	})
	return CheckoutResult{Order: updated, RedirectURL: session.RedirectURL}, nil
}

func validateCheckout(cmd CheckoutCommand) error {
	if cmd.CustomerID == "" && cmd.GuestSessionID == "" {
		return fmt.Errorf("%w: customer or guest session is required", ErrCheckoutInvalidInput)
	}
	if !strings.Contains(cmd.Email, "@") {
		return fmt.Errorf("%w: a valid email is required", ErrCheckoutInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return fmt.Errorf("%w: cart is empty", ErrCheckoutInvalidInput)
	}
	for i, item := range cmd.Items {
		if item.ProductID == "" {
			return fmt.Errorf("%w: item %d has no product id", ErrCheckoutInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d has a non-positive quantity", ErrCheckoutInvalidInput, i)
		}
		if item.UnitPrice <= 0 {
			return fmt.Errorf("%w: item %d has a non-positive unit price", ErrCheckoutInvalidInput, i)
		}
	}
	if err := validateAddress(cmd.ShippingAddress); err != nil {
		return fmt.Errorf("%w: shipping address: %v", ErrCheckoutInvalidInput, err)
	}
	if cmd.ShippingMethod == "" {
		return fmt.Errorf("%w: shipping method is required", ErrCheckoutInvalidInput)
	}
	if cmd.ShippingCost < 0 {
		return fmt.Errorf("%w: shipping cost is negative", ErrCheckoutInvalidInput)
	}
	if cmd.PaymentMethod == "" {
		return fmt.Errorf("%w: payment method is required", ErrCheckoutInvalidInput)
	}
	return nil
}

func validateAddress(addr domain.Address) error {
	switch {
	case addr.Recipient == "":
		return errors.New("recipient is required")
	case addr.Line1 == "":
		return errors.New("street line is required")
	case addr.City == "":
		return errors.New("city is required")
	case addr.PostalCode == "":
		return errors.New("postal code is required")
	case addr.Country == "":
		return errors.New("country is required")
	}
	return nil
}

func billingOrShipping(cmd CheckoutCommand) domain.Address {
	if cmd.BillingAddress == (domain.Address{}) {
		return cmd.ShippingAddress
	}
	return cmd.BillingAddress
}

func pricingItems(items []CheckoutItem) []PricingItem {
	out := make([]PricingItem, len(items))
	for i, item := range items {
		out[i] = PricingItem{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Name:      item.Name,
			Variant:   item.Variant,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Catalog:   item.Catalog,
		}
	}
	return out
}

// crossCheckTotals compares the storefront-displayed line totals against the
// freshly priced ones. A mismatch means a discount changed since the cart was
// rendered and the shopper must re-confirm.
func crossCheckTotals(items []CheckoutItem, lines []PricedLine) error {
	for i, item := range items {
		if item.ClientTotal == 0 {
			continue
		}
		if item.ClientTotal != lines[i].Total {
			return fmt.Errorf("%w: line %d expected %d, priced %d",
				ErrCheckoutPriceMismatch, i, item.ClientTotal, lines[i].Total)
		}
	}
	return nil
}

func orderItems(lines []PricedLine) []domain.OrderItem {
	out := make([]domain.OrderItem, len(lines))
	for i, line := range lines {
		out[i] = domain.OrderItem{
			ProductID:     line.Item.ProductID,
			SKU:           line.Item.SKU,
			Name:          line.Item.Name,
			Variant:       line.Item.Variant,
			Quantity:      line.Item.Quantity,
			UnitPrice:     line.UnitPrice,
			OriginalPrice: line.OriginalPrice,
			DiscountID:    line.DiscountID,
			Subtotal:      line.Subtotal,
			VATAmount:     line.VATAmount,
			Total:         line.Total,
		}
	}
	return out
}
