package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopnatural/core/internal/domain"
)

var (
	// ErrPricingInvalidInput signals bad pricing data such as missing items
	// or negative prices.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
)

// PricingEngineDeps bundles collaborators for the pricing pipeline.
type PricingEngineDeps struct {
	Discounts DiscountService
	Promotion PromotionService
	// VATRate is percent points, e.g. 21 for 21%.
	VATRate decimal.Decimal
	Clock   func() time.Time
	Logger  func(context.Context, string, map[string]any)
}

type pricingEngine struct {
	discounts DiscountService
	promotion PromotionService
	vatRate   decimal.Decimal
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewPricingEngine wires the pricing pipeline.
func NewPricingEngine(deps PricingEngineDeps) (PricingEngine, error) {
	if deps.Discounts == nil {
		return nil, errors.New("pricing engine: discount service is required")
	}
	if deps.Promotion == nil {
		return nil, errors.New("pricing engine: promotion service is required")
	}
	if deps.VATRate.IsNegative() {
		return nil, errors.New("pricing engine: vat rate must not be negative")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &pricingEngine{
		discounts: deps.Discounts,
		promotion: deps.Promotion,
		vatRate:   deps.VATRate,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

// Price runs the pipeline in its fixed order: catalog discounts per line,
// VAT split out of the discounted subtotal, promotion code against that
// subtotal, then shipping. Downstream totals depend on this ordering.
func (e *pricingEngine) Price(ctx context.Context, cmd PriceOrderCommand) (PricingBreakdown, error) {
	if len(cmd.Items) == 0 {
		return PricingBreakdown{}, fmt.Errorf("%w: no items", ErrPricingInvalidInput)
	}
	if cmd.ShippingCost < 0 {
		return PricingBreakdown{}, fmt.Errorf("%w: negative shipping cost", ErrPricingInvalidInput)
	}

	now := e.clock()
	totals := domain.OrderTotals{ShippingCost: cmd.ShippingCost}
	lines := make([]PricedLine, 0, len(cmd.Items))

	for i, item := range cmd.Items {
		if item.Quantity <= 0 {
			return PricingBreakdown{}, fmt.Errorf("%w: item %d has non-positive quantity", ErrPricingInvalidInput, i)
		}
		if item.UnitPrice < 0 {
			return PricingBreakdown{}, fmt.Errorf("%w: item %d has negative price", ErrPricingInvalidInput, i)
		}

		line, err := e.priceLine(ctx, item, now)
		if err != nil {
			return PricingBreakdown{}, err
		}
		lines = append(lines, line)

		totals.OriginalSubtotal += line.OriginalPrice * int64(item.Quantity)
		totals.Subtotal += line.Subtotal
	}
	totals.ProductDiscount = totals.OriginalSubtotal - totals.Subtotal

	// VAT is extracted from the discounted subtotal: prices are VAT-inclusive.
	totals.SubtotalExclVAT = exclVAT(totals.Subtotal, e.vatRate)
	totals.VATAmount = totals.Subtotal - totals.SubtotalExclVAT

	var grant *PromotionGrant
	if cmd.PromotionCode != "" {
		result, err := e.promotion.Validate(ctx, ValidatePromotionCommand{
			Code:       cmd.PromotionCode,
			Subtotal:   totals.Subtotal,
			CustomerID: cmd.CustomerID,
		})
		if err != nil {
			return PricingBreakdown{}, err
		}
		grant = &result
		totals.Discount = result.Discount
	}

	totals.Total = totals.Subtotal - totals.Discount + totals.ShippingCost

	e.logger(ctx, "pricing.computed", map[string]any{
		"lines":    len(lines),
		"subtotal": totals.Subtotal,
		"discount": totals.Discount,
		"total":    totals.Total,
	})

	return PricingBreakdown{Totals: totals, Lines: lines, Promotion: grant}, nil
}

func (e *pricingEngine) priceLine(ctx context.Context, item PricingItem, now time.Time) (PricedLine, error) {
	unitPrice := item.UnitPrice
	discountID := ""

	discount, ok, err := e.discounts.ResolveBest(ctx, item.Catalog, now)
	if err != nil {
		return PricedLine{}, err
	}
	if ok {
		unitPrice = discountedUnitPrice(item.UnitPrice, discount)
		discountID = discount.ID
	}

	quantity := int64(item.Quantity)
	subtotal := unitPrice * quantity
	exclVAT := exclVAT(subtotal, e.vatRate)

	return PricedLine{
		Item:          item,
		UnitPrice:     unitPrice,
		OriginalPrice: item.UnitPrice,
		DiscountID:    discountID,
		Subtotal:      subtotal,
		VATAmount:     subtotal - exclVAT,
		Total:         subtotal,
	}, nil
}

// discountedUnitPrice applies a catalog discount to a unit price in minor
// units, rounding half-up and flooring at zero.
func discountedUnitPrice(unitPrice int64, discount domain.CatalogDiscount) int64 {
	price := decimal.NewFromInt(unitPrice)
	var discounted decimal.Decimal
	switch discount.Type {
	case domain.DiscountTypePercentage:
		discounted = price.Sub(price.Mul(discount.Value).Div(oneHundred)).Round(0)
	case domain.DiscountTypeFixed:
		// Fixed values are expressed in major units per item.
		discounted = price.Sub(discount.Value.Mul(decimal.NewFromInt(100)))
	default:
		return unitPrice
	}
	result := discounted.IntPart()
	if result < 0 {
		return 0
	}
	return result
}

// exclVAT derives the tax-exclusive amount from a VAT-inclusive amount using
// half-up rounding, so amount == exclVAT + vatAmount always holds exactly.
func exclVAT(amount int64, rate decimal.Decimal) int64 {
	if amount == 0 || rate.IsZero() {
		return amount
	}
	divisor := decimal.NewFromInt(1).Add(rate.Div(oneHundred))
	return decimal.NewFromInt(amount).Div(divisor).Round(0).IntPart()
}
