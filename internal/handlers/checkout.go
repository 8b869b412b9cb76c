package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopnatural/core/internal/domain"
	"github.com/shopnatural/core/internal/platform/auth"
	"github.com/shopnatural/core/internal/platform/httpx"
	"github.com/shopnatural/core/internal/services"
)

const maxCheckoutRequestBody = 64 * 1024

// CheckoutHandlers exposes the checkout submission endpoint.
type CheckoutHandlers struct {
	checkout services.CheckoutService
	limiter  rateLimiter
}

// NewCheckoutHandlers constructs checkout handlers. The limiter is optional.
func NewCheckoutHandlers(checkout services.CheckoutService, limiter rateLimiter) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout, limiter: limiter}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.submit)
}

type addressPayload struct {
	Recipient  string `json:"recipient"`
	Company    string `json:"company,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func (p addressPayload) toDomain() domain.Address {
	return domain.Address{
		Recipient:  strings.TrimSpace(p.Recipient),
		Company:    strings.TrimSpace(p.Company),
		Line1:      strings.TrimSpace(p.Line1),
		Line2:      strings.TrimSpace(p.Line2),
		City:       strings.TrimSpace(p.City),
		PostalCode: strings.TrimSpace(p.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(p.Country)),
		Phone:      strings.TrimSpace(p.Phone),
	}
}

func addressPayloadFrom(a domain.Address) addressPayload {
	return addressPayload{
		Recipient:  a.Recipient,
		Company:    a.Company,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

type checkoutItemPayload struct {
	ProductID   string   `json:"product_id"`
	SKU         string   `json:"sku"`
	Name        string   `json:"name"`
	Variant     string   `json:"variant,omitempty"`
	Quantity    int      `json:"quantity"`
	UnitPrice   int64    `json:"unit_price"`
	ClientTotal int64    `json:"client_total,omitempty"`
	BrandIDs    []string `json:"brand_ids,omitempty"`
	CategoryIDs []string `json:"category_ids,omitempty"`
}

type checkoutRequest struct {
	Email           string                `json:"email"`
	Phone           string                `json:"phone,omitempty"`
	Items           []checkoutItemPayload `json:"items"`
	ShippingAddress addressPayload        `json:"shipping_address"`
	BillingAddress  *addressPayload       `json:"billing_address,omitempty"`
	ShippingMethod  string                `json:"shipping_method"`
	ShippingCost    int64                 `json:"shipping_cost"`
	PaymentMethod   string                `json:"payment_method"`
	PromotionCode   string                `json:"promotion_code,omitempty"`
	Notes           string                `json:"notes,omitempty"`
}

type checkoutResponse struct {
	OrderID          string      `json:"order_id"`
	PaymentReference string      `json:"payment_reference"`
	Status           string      `json:"status"`
	RedirectURL      string      `json:"redirect_url"`
	Totals           totalsView  `json:"totals"`
	Promotion        *promoView  `json:"promotion,omitempty"`
	Items            []lineView  `json:"items"`
}

type totalsView struct {
	OriginalSubtotal int64 `json:"original_subtotal"`
	ProductDiscount  int64 `json:"product_discount"`
	Subtotal         int64 `json:"subtotal"`
	SubtotalExclVAT  int64 `json:"subtotal_excl_vat"`
	VATAmount        int64 `json:"vat_amount"`
	Discount         int64 `json:"discount"`
	ShippingCost     int64 `json:"shipping_cost"`
	Total            int64 `json:"total"`
}

type promoView struct {
	Code     string `json:"code"`
	Discount int64  `json:"discount"`
}

type lineView struct {
	ProductID     string `json:"product_id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	Variant       string `json:"variant,omitempty"`
	Quantity      int    `json:"quantity"`
	UnitPrice     int64  `json:"unit_price"`
	OriginalPrice int64  `json:"original_price"`
	DiscountID    string `json:"discount_id,omitempty"`
	Total         int64  `json:"total"`
}

func totalsViewFrom(t domain.OrderTotals) totalsView {
	return totalsView{
		OriginalSubtotal: t.OriginalSubtotal,
		ProductDiscount:  t.ProductDiscount,
		Subtotal:         t.Subtotal,
		SubtotalExclVAT:  t.SubtotalExclVAT,
		VATAmount:        t.VATAmount,
		Discount:         t.Discount,
		ShippingCost:     t.ShippingCost,
		Total:            t.Total,
	}
}

func lineViewsFrom(items []domain.OrderItem) []lineView {
	views := make([]lineView, 0, len(items))
	for _, item := range items {
		views = append(views, lineView{
			ProductID:     item.ProductID,
			SKU:           item.SKU,
			Name:          item.Name,
			Variant:       item.Variant,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			OriginalPrice: item.OriginalPrice,
			DiscountID:    item.DiscountID,
			Total:         item.Total,
		})
	}
	return views
}

func (h *CheckoutHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok || principal.Anonymous() {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "a customer or guest session is required", http.StatusUnauthorized))
		return
	}

	if h.limiter != nil {
		key := principal.CustomerID
		if key == "" {
			key = principal.GuestSessionID
		}
		if !h.limiter.Allow(key) {
			httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many checkout attempts; slow down", http.StatusTooManyRequests))
			return
		}
	}

	var req checkoutRequest
	if err := decodeJSONBody(r, maxCheckoutRequestBody, &req); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	cmd := services.CheckoutCommand{
		CustomerID:      principal.CustomerID,
		GuestSessionID:  principal.GuestSessionID,
		Email:           strings.TrimSpace(req.Email),
		Phone:           strings.TrimSpace(req.Phone),
		ShippingAddress: req.ShippingAddress.toDomain(),
		ShippingMethod:  strings.TrimSpace(req.ShippingMethod),
		ShippingCost:    req.ShippingCost,
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		PromotionCode:   strings.TrimSpace(req.PromotionCode),
		Notes:           strings.TrimSpace(req.Notes),
	}
	if cmd.Email == "" && principal.Email != "" {
		cmd.Email = principal.Email
	}
	if req.BillingAddress != nil {
		cmd.BillingAddress = req.BillingAddress.toDomain()
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.CheckoutItem{
			ProductID:   strings.TrimSpace(item.ProductID),
			SKU:         strings.TrimSpace(item.SKU),
			Name:        strings.TrimSpace(item.Name),
			Variant:     strings.TrimSpace(item.Variant),
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			ClientTotal: item.ClientTotal,
			Catalog: domain.CatalogRef{
				ProductID:   strings.TrimSpace(item.ProductID),
				BrandIDs:    item.BrandIDs,
				CategoryIDs: item.CategoryIDs,
			},
		})
	}

	result, err := h.checkout.Submit(ctx, cmd)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	resp := checkoutResponse{
		OrderID:          result.Order.ID,
		PaymentReference: result.Order.PaymentReference,
		Status:           string(result.Order.Status),
		RedirectURL:      result.RedirectURL,
		Totals:           totalsViewFrom(result.Order.Totals),
		Items:            lineViewsFrom(result.Order.Items),
	}
	if result.Order.Promotion != nil {
		resp.Promotion = &promoView{
			Code:     result.Order.Promotion.Code,
			Discount: result.Order.Promotion.Discount,
		}
	}
	writeJSONResponse(w, http.StatusCreated, resp)
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput), errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutUnknownGateway):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_payment_method", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutPriceMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("price_changed", "displayed prices are out of date; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrPromotionExhausted):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_exhausted", "promotion code usage limit reached", http.StatusConflict))
	case errors.Is(err, services.ErrPromotionAlreadyUsed):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_already_used", "promotion code already used", http.StatusConflict))
	case isPromotionRejection(err):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_rejected", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutGatewayFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "payment session could not be created", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout", http.StatusInternalServerError))
	}
}

func isPromotionRejection(err error) bool {
	for _, sentinel := range []error{
		services.ErrPromotionInvalidCode,
		services.ErrPromotionNotFound,
		services.ErrPromotionInactive,
		services.ErrPromotionNotStarted,
		services.ErrPromotionExpired,
		services.ErrPromotionBelowMinimum,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
