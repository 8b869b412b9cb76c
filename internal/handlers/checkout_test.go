package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopnatural/core/internal/domain"
	"github.com/shopnatural/core/internal/platform/auth"
	"github.com/shopnatural/core/internal/services"
)

func checkoutRequestBody() string {
	return `{
		"email": "jonas@example.com",
		"items": [
			{"product_id": "p-1", "sku": "TEA-1", "name": "Green tea", "quantity": 1, "unit_price": 10000, "brand_ids": ["b-1"]}
		],
		"shipping_address": {"recipient": "Jonas Petraitis", "line1": "Gedimino pr. 1", "city": "Vilnius", "postal_code": "01103", "country": "lt"},
		"shipping_method": "courier",
		"shipping_cost": 599,
		"payment_method": "stripe"
	}`
}

func customerContext(ctx context.Context) context.Context {
	return auth.WithPrincipal(ctx, auth.Principal{CustomerID: "cust-1", Email: "jonas@example.com"})
}

func placedOrder() domain.Order {
	placed := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:               "ord_1",
		PaymentReference: "pay_1",
		CustomerID:       "cust-1",
		Email:            "jonas@example.com",
		Currency:         "EUR",
		Status:           domain.OrderStatusPending,
		PaymentStatus:    domain.PaymentStatusPending,
		Totals:           domain.OrderTotals{OriginalSubtotal: 10000, Subtotal: 10000, SubtotalExclVAT: 8264, VATAmount: 1736, ShippingCost: 599, Total: 10599},
		Items: []domain.OrderItem{
			{ProductID: "p-1", SKU: "TEA-1", Name: "Green tea", Quantity: 1, UnitPrice: 10000, OriginalPrice: 10000, Total: 10000},
		},
		PlacedAt: &placed,
	}
}

func TestCheckoutSubmit(t *testing.T) {
	svc := &stubCheckoutService{result: services.CheckoutResult{
		Order:       placedOrder(),
		RedirectURL: "https://checkout.stripe.com/c/pay/cs_1",
	}}
	h := NewCheckoutHandlers(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(checkoutRequestBody()))
	req = req.WithContext(customerContext(req.Context()))
	rec := httptest.NewRecorder()
	h.submit(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp checkoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.OrderID != "ord_1" || resp.PaymentReference != "pay_1" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.RedirectURL != "https://checkout.stripe.com/c/pay/cs_1" {
		t.Fatalf("redirect = %s", resp.RedirectURL)
	}
	if resp.Totals.Total != 10599 {
		t.Fatalf("total = %d", resp.Totals.Total)
	}

	if svc.lastCmd.CustomerID != "cust-1" {
		t.Fatalf("customer id = %q", svc.lastCmd.CustomerID)
	}
	if svc.lastCmd.ShippingAddress.Country != "LT" {
		t.Fatalf("country = %q, want upper-cased", svc.lastCmd.ShippingAddress.Country)
	}
	if len(svc.lastCmd.Items) != 1 || svc.lastCmd.Items[0].Catalog.ProductID != "p-1" {
		t.Fatalf("items = %+v", svc.lastCmd.Items)
	}
}

func TestCheckoutRequiresSession(t *testing.T) {
	h := NewCheckoutHandlers(&stubCheckoutService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(checkoutRequestBody()))
	rec := httptest.NewRecorder()
	h.submit(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCheckoutGuestSession(t *testing.T) {
	svc := &stubCheckoutService{result: services.CheckoutResult{Order: placedOrder()}}
	h := NewCheckoutHandlers(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(checkoutRequestBody()))
	req = req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{GuestSessionID: "guest-9"}))
	rec := httptest.NewRecorder()
	h.submit(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if svc.lastCmd.GuestSessionID != "guest-9" || svc.lastCmd.CustomerID != "" {
		t.Fatalf("cmd identity = %+v", svc.lastCmd)
	}
}

func TestCheckoutErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid input", services.ErrCheckoutInvalidInput, http.StatusBadRequest, "invalid_request"},
		{"unknown gateway", services.ErrCheckoutUnknownGateway, http.StatusBadRequest, "unknown_payment_method"},
		{"price mismatch", services.ErrCheckoutPriceMismatch, http.StatusConflict, "price_changed"},
		{"promotion exhausted", services.ErrPromotionExhausted, http.StatusConflict, "promotion_exhausted"},
		{"promotion already used", services.ErrPromotionAlreadyUsed, http.StatusConflict, "promotion_already_used"},
		{"promotion expired", services.ErrPromotionExpired, http.StatusUnprocessableEntity, "promotion_rejected"},
		{"gateway down", services.ErrCheckoutGatewayFailed, http.StatusBadGateway, "payment_unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewCheckoutHandlers(&stubCheckoutService{err: tc.err}, nil)
			req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(checkoutRequestBody()))
			req = req.WithContext(customerContext(req.Context()))
			rec := httptest.NewRecorder()
			h.submit(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if body["error"] != tc.wantCode {
				t.Fatalf("error code = %v, want %s", body["error"], tc.wantCode)
			}
		})
	}
}

func TestCheckoutRejectsMalformedBody(t *testing.T) {
	svc := &stubCheckoutService{}
	h := NewCheckoutHandlers(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader("{not json"))
	req = req.WithContext(customerContext(req.Context()))
	rec := httptest.NewRecorder()
	h.submit(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatal("service must not be called for malformed bodies")
	}
}

func TestCheckoutRateLimited(t *testing.T) {
	svc := &stubCheckoutService{result: services.CheckoutResult{Order: placedOrder()}}
	limiter := newSimpleRateLimiter(1, time.Minute, time.Now)
	h := NewCheckoutHandlers(svc, limiter)

	for i, want := range []int{http.StatusCreated, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(checkoutRequestBody()))
		req = req.WithContext(customerContext(req.Context()))
		rec := httptest.NewRecorder()
		h.submit(rec, req)
		if rec.Code != want {
			t.Fatalf("attempt %d status = %d, want %d", i+1, rec.Code, want)
		}
	}
	if svc.calls != 1 {
		t.Fatalf("service calls = %d, want 1", svc.calls)
	}
}
