package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/shopnatural/core/internal/domain"
	"github.com/shopnatural/core/internal/services"
)

type adminFixture struct {
	discounts  *stubDiscountService
	promotions *stubPromotionService
	orders     *stubOrderService
	sweep      *stubSweepService
	router     chi.Router
}

func newAdminFixture() *adminFixture {
	fx := &adminFixture{
		discounts:  &stubDiscountService{},
		promotions: &stubPromotionService{},
		orders:     &stubOrderService{},
		sweep:      &stubSweepService{},
	}
	h := NewAdminHandlers(fx.discounts, fx.promotions, fx.orders, WithSweepService(fx.sweep))
	r := chi.NewRouter()
	r.Route("/admin", h.Routes)
	fx.router = r
	return fx
}

func TestCreateDiscount(t *testing.T) {
	fx := newAdminFixture()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	fx.discounts.discount = domain.CatalogDiscount{
		ID:        "dsc_1",
		Name:      "Spring sale",
		Type:      domain.DiscountTypePercentage,
		Value:     decimal.NewFromInt(10),
		Scope:     domain.DiscountScopeAll,
		Priority:  1,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	body := `{"name":"Spring sale","type":"percentage","value":10,"scope":"all","priority":1,"is_active":true,"starts_at":"2026-03-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/discounts", strings.NewReader(body))
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if fx.discounts.lastCmd.Name != "Spring sale" || !fx.discounts.lastCmd.Value.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("cmd = %+v", fx.discounts.lastCmd)
	}
	if fx.discounts.lastCmd.StartsAt == nil || !fx.discounts.lastCmd.StartsAt.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("starts_at = %v", fx.discounts.lastCmd.StartsAt)
	}

	var view discountView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if view.ID != "dsc_1" || view.Value != "10" {
		t.Fatalf("view = %+v", view)
	}
}

func TestDiscountErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", services.ErrDiscountNotFound, http.StatusNotFound},
		{"value too high", services.ErrDiscountValueTooHigh, http.StatusUnprocessableEntity},
		{"invalid", services.ErrDiscountInvalidInput, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newAdminFixture()
			fx.discounts.err = tc.err
			body := `{"name":"x","type":"percentage","value":10,"scope":"all"}`
			req := httptest.NewRequest(http.MethodPost, "/admin/discounts", strings.NewReader(body))
			rec := httptest.NewRecorder()
			fx.router.ServeHTTP(rec, req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestDeleteDiscount(t *testing.T) {
	fx := newAdminFixture()
	req := httptest.NewRequest(http.MethodDelete, "/admin/discounts/dsc_1", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if fx.discounts.deleted != "dsc_1" {
		t.Fatalf("deleted = %q", fx.discounts.deleted)
	}
}

func TestCreatePromotionCode(t *testing.T) {
	fx := newAdminFixture()
	fx.promotions.code = domain.PromotionCode{
		ID:         "prm_1",
		Code:       "SUMMER12",
		Type:       domain.DiscountTypePercentage,
		Value:      decimal.NewFromInt(12),
		UsageLimit: 100,
	}

	body := `{"code":"summer12","type":"percentage","value":12,"usage_limit":100,"per_user_limit":1,"is_active":true}`
	req := httptest.NewRequest(http.MethodPost, "/admin/promotions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if fx.promotions.lastCmd.Code != "summer12" || fx.promotions.lastCmd.UsageLimit != 100 {
		t.Fatalf("cmd = %+v", fx.promotions.lastCmd)
	}
	var view promotionView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if view.Code != "SUMMER12" {
		t.Fatalf("view = %+v", view)
	}
}

func TestUpdateOrderStatusAsOperator(t *testing.T) {
	fx := newAdminFixture()
	order := confirmedTestOrder()
	order.Status = domain.OrderStatusShipped
	order.TrackingCode = "LP123456789LT"
	fx.orders.order = order

	body := `{"status":"shipped","tracking_code":"LP123456789LT"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_1/status", strings.NewReader(body))
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if fx.orders.lastCmd.OrderID != "ord_1" || fx.orders.lastCmd.Status != domain.OrderStatusShipped {
		t.Fatalf("cmd = %+v", fx.orders.lastCmd)
	}
	if fx.orders.lastCmd.TrackingCode != "LP123456789LT" {
		t.Fatalf("tracking = %q", fx.orders.lastCmd.TrackingCode)
	}
}

func TestUpdateOrderStatusGuardConflict(t *testing.T) {
	fx := newAdminFixture()
	fx.orders.err = services.ErrPaymentStatusGuard

	body := `{"status":"confirmed"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_1/status", strings.NewReader(body))
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCancelOrderWithoutBody(t *testing.T) {
	fx := newAdminFixture()
	fx.orders.order = confirmedTestOrder()

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_1/cancel", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if fx.orders.cancelled != "ord_1" {
		t.Fatalf("cancelled = %q", fx.orders.cancelled)
	}
}

func TestAdminListOrdersUsesOperatorActor(t *testing.T) {
	fx := newAdminFixture()
	fx.orders.orders = []domain.Order{confirmedTestOrder()}

	req := httptest.NewRequest(http.MethodGet, "/admin/orders?status=confirmed", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !fx.orders.lastList.Actor.Operator {
		t.Fatal("admin list must use the operator actor")
	}
}

func TestAdminDeleteOrder(t *testing.T) {
	fx := newAdminFixture()
	req := httptest.NewRequest(http.MethodDelete, "/admin/orders/ord_1", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if fx.orders.deleted != "ord_1" {
		t.Fatalf("deleted = %q", fx.orders.deleted)
	}
}

func TestAdminRunSweep(t *testing.T) {
	fx := newAdminFixture()
	fx.sweep.cancelled = 3

	req := httptest.NewRequest(http.MethodPost, "/admin/sweep", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if fx.sweep.calls != 1 {
		t.Fatalf("sweep calls = %d, want 1", fx.sweep.calls)
	}
	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["cancelled"] != 3 {
		t.Fatalf("cancelled = %d, want 3", body["cancelled"])
	}
}

func TestAdminRunSweepFailure(t *testing.T) {
	fx := newAdminFixture()
	fx.sweep.err = errors.New("firestore unavailable")

	req := httptest.NewRequest(http.MethodPost, "/admin/sweep", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}
