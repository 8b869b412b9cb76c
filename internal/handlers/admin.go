package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/shopnatural/core/internal/domain"
	"github.com/shopnatural/core/internal/platform/httpx"
	"github.com/shopnatural/core/internal/services"
)

const maxAdminRequestBody = 32 * 1024

// AdminHandlers exposes the back-office surface: campaign and code CRUD plus
// operator order mutations. The router mounts these behind the HMAC guard.
type AdminHandlers struct {
	discounts  services.DiscountService
	promotions services.PromotionService
	orders     services.OrderService
	sweep      services.SweepService
}

// NewAdminHandlers constructs the back-office handlers.
func NewAdminHandlers(discounts services.DiscountService, promotions services.PromotionService, orders services.OrderService, opts ...AdminOption) *AdminHandlers {
	h := &AdminHandlers{discounts: discounts, promotions: promotions, orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// AdminOption customises the admin handlers.
type AdminOption func(*AdminHandlers)

// WithSweepService enables the on-demand draft sweep endpoint.
func WithSweepService(sweep services.SweepService) AdminOption {
	return func(h *AdminHandlers) { h.sweep = sweep }
}

// Routes registers admin endpoints under the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/discounts", func(g chi.Router) {
		g.Get("/", h.listDiscounts)
		g.Post("/", h.createDiscount)
		g.Get("/{discountID}", h.getDiscount)
		g.Put("/{discountID}", h.updateDiscount)
		g.Delete("/{discountID}", h.deleteDiscount)
	})
	r.Route("/promotions", func(g chi.Router) {
		g.Get("/", h.listPromotions)
		g.Post("/", h.createPromotion)
		g.Get("/{codeID}", h.getPromotion)
		g.Put("/{codeID}", h.updatePromotion)
	})
	r.Route("/orders", func(g chi.Router) {
		g.Get("/", h.listOrders)
		g.Get("/{orderID}", h.getOrder)
		g.Post("/{orderID}/status", h.updateOrderStatus)
		g.Put("/{orderID}/tracking", h.setTracking)
		g.Post("/{orderID}/cancel", h.cancelOrder)
		g.Delete("/{orderID}", h.deleteOrder)
	})
	if h.sweep != nil {
		r.Post("/sweep", h.runSweep)
	}
}

// runSweep cancels one batch of expired drafts on demand, mirroring what the
// background loop does on its interval.
func (h *AdminHandlers) runSweep(w http.ResponseWriter, r *http.Request) {
	cancelled, err := h.sweep.SweepExpiredDrafts(r.Context())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("sweep_failed", "draft sweep failed", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cancelled": cancelled})
}

type discountPayload struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Value    decimal.Decimal `json:"value"`
	Scope    string          `json:"scope"`
	ScopeIDs []string        `json:"scope_ids,omitempty"`
	Priority int             `json:"priority"`
	IsActive bool            `json:"is_active"`
	StartsAt string          `json:"starts_at,omitempty"`
	EndsAt   string          `json:"ends_at,omitempty"`
}

type discountView struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Value     string   `json:"value"`
	Scope     string   `json:"scope"`
	ScopeIDs  []string `json:"scope_ids,omitempty"`
	Priority  int      `json:"priority"`
	IsActive  bool     `json:"is_active"`
	StartsAt  string   `json:"starts_at,omitempty"`
	EndsAt    string   `json:"ends_at,omitempty"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

func discountViewFrom(d domain.CatalogDiscount) discountView {
	created := d.CreatedAt
	updated := d.UpdatedAt
	return discountView{
		ID:        d.ID,
		Name:      d.Name,
		Type:      string(d.Type),
		Value:     d.Value.String(),
		Scope:     string(d.Scope),
		ScopeIDs:  d.ScopeIDs,
		Priority:  d.Priority,
		IsActive:  d.IsActive,
		StartsAt:  formatTime(d.StartsAt),
		EndsAt:    formatTime(d.EndsAt),
		CreatedAt: formatTime(&created),
		UpdatedAt: formatTime(&updated),
	}
}

func (p discountPayload) toCommand(id string) (services.UpsertDiscountCommand, error) {
	startsAt, err := parseTimePointer(p.StartsAt)
	if err != nil {
		return services.UpsertDiscountCommand{}, errors.New("starts_at must be RFC 3339")
	}
	endsAt, err := parseTimePointer(p.EndsAt)
	if err != nil {
		return services.UpsertDiscountCommand{}, errors.New("ends_at must be RFC 3339")
	}
	return services.UpsertDiscountCommand{
		ID:       id,
		Name:     strings.TrimSpace(p.Name),
		Type:     domain.DiscountType(strings.TrimSpace(p.Type)),
		Value:    p.Value,
		Scope:    domain.DiscountScope(strings.TrimSpace(p.Scope)),
		ScopeIDs: p.ScopeIDs,
		Priority: p.Priority,
		IsActive: p.IsActive,
		StartsAt: startsAt,
		EndsAt:   endsAt,
	}, nil
}

func (h *AdminHandlers) listDiscounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	discounts, err := h.discounts.ListDiscounts(ctx)
	if err != nil {
		writeDiscountError(ctx, w, err)
		return
	}
	views := make([]discountView, 0, len(discounts))
	for _, d := range discounts {
		views = append(views, discountViewFrom(d))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"discounts": views})
}

func (h *AdminHandlers) createDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var payload discountPayload
	if err := decodeJSONBody(r, maxAdminRequestBody, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	cmd, err := payload.toCommand("")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	discount, err := h.discounts.CreateDiscount(ctx, cmd)
	if err != nil {
		writeDiscountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, discountViewFrom(discount))
}

func (h *AdminHandlers) getDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	discount, err := h.discounts.GetDiscount(ctx, chi.URLParam(r, "discountID"))
	if err != nil {
		writeDiscountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, discountViewFrom(discount))
}

func (h *AdminHandlers) updateDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var payload discountPayload
	if err := decodeJSONBody(r, maxAdminRequestBody, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	cmd, err := payload.toCommand(chi.URLParam(r, "discountID"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	discount, err := h.discounts.UpdateDiscount(ctx, cmd)
	if err != nil {
		writeDiscountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, discountViewFrom(discount))
}

func (h *AdminHandlers) deleteDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.discounts.DeleteDiscount(ctx, chi.URLParam(r, "discountID")); err != nil {
		writeDiscountError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type promotionPayload struct {
	Code              string          `json:"code"`
	Type              string          `json:"type"`
	Value             decimal.Decimal `json:"value"`
	MinOrderAmount    int64           `json:"min_order_amount"`
	MaxDiscountAmount int64           `json:"max_discount_amount"`
	UsageLimit        int64           `json:"usage_limit"`
	PerUserLimit      int64           `json:"per_user_limit"`
	IsActive          bool            `json:"is_active"`
	StartsAt          string          `json:"starts_at,omitempty"`
	EndsAt            string          `json:"ends_at,omitempty"`
}

type promotionView struct {
	ID                string `json:"id"`
	Code              string `json:"code"`
	Type              string `json:"type"`
	Value             string `json:"value"`
	MinOrderAmount    int64  `json:"min_order_amount"`
	MaxDiscountAmount int64  `json:"max_discount_amount"`
	UsageLimit        int64  `json:"usage_limit"`
	PerUserLimit      int64  `json:"per_user_limit"`
	TimesUsed         int64  `json:"times_used"`
	IsActive          bool   `json:"is_active"`
	StartsAt          string `json:"starts_at,omitempty"`
	EndsAt            string `json:"ends_at,omitempty"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

func promotionViewFrom(c domain.PromotionCode) promotionView {
	created := c.CreatedAt
	updated := c.UpdatedAt
	return promotionView{
		ID:                c.ID,
		Code:              c.Code,
		Type:              string(c.Type),
		Value:             c.Value.String(),
		MinOrderAmount:    c.MinOrderAmount,
		MaxDiscountAmount: c.MaxDiscountAmount,
		UsageLimit:        c.UsageLimit,
		PerUserLimit:      c.PerUserLimit,
		TimesUsed:         c.TimesUsed,
		IsActive:          c.IsActive,
		StartsAt:          formatTime(c.StartsAt),
		EndsAt:            formatTime(c.EndsAt),
		CreatedAt:         formatTime(&created),
		UpdatedAt:         formatTime(&updated),
	}
}

func (p promotionPayload) toCommand(id string) (services.UpsertPromotionCommand, error) {
	startsAt, err := parseTimePointer(p.StartsAt)
	if err != nil {
		return services.UpsertPromotionCommand{}, errors.New("starts_at must be RFC 3339")
	}
	endsAt, err := parseTimePointer(p.EndsAt)
	if err != nil {
		return services.UpsertPromotionCommand{}, errors.New("ends_at must be RFC 3339")
	}
	return services.UpsertPromotionCommand{
		ID:                id,
		Code:              strings.TrimSpace(p.Code),
		Type:              domain.DiscountType(strings.TrimSpace(p.Type)),
		Value:             p.Value,
		MinOrderAmount:    p.MinOrderAmount,
		MaxDiscountAmount: p.MaxDiscountAmount,
		UsageLimit:        p.UsageLimit,
		PerUserLimit:      p.PerUserLimit,
		IsActive:          p.IsActive,
		StartsAt:          startsAt,
		EndsAt:            endsAt,
	}, nil
}

func (h *AdminHandlers) listPromotions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	codes, err := h.promotions.ListCodes(ctx)
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	views := make([]promotionView, 0, len(codes))
	for _, code := range codes {
		views = append(views, promotionViewFrom(code))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"promotions": views})
}

func (h *AdminHandlers) createPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var payload promotionPayload
	if err := decodeJSONBody(r, maxAdminRequestBody, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	cmd, err := payload.toCommand("")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	code, err := h.promotions.CreateCode(ctx, cmd)
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, promotionViewFrom(code))
}

func (h *AdminHandlers) getPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code, err := h.promotions.GetCode(ctx, chi.URLParam(r, "codeID"))
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, promotionViewFrom(code))
}

func (h *AdminHandlers) updatePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var payload promotionPayload
	if err := decodeJSONBody(r, maxAdminRequestBody, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	cmd, err := payload.toCommand(chi.URLParam(r, "codeID"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	code, err := h.promotions.UpdateCode(ctx, cmd)
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, promotionViewFrom(code))
}

var operatorActor = services.OrderActor{Operator: true}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := services.ListOrdersQuery{Actor: operatorActor}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, status := range strings.Split(raw, ",") {
			query.Statuses = append(query.Statuses, domain.OrderStatus(strings.TrimSpace(status)))
		}
	}
	orders, err := h.orders.ListOrders(ctx, query)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, orderViewFrom(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"orders": views})
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.orders.GetOrder(ctx, services.GetOrderQuery{
		OrderID: chi.URLParam(r, "orderID"),
		Actor:   operatorActor,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderViewFrom(order))
}

type updateStatusRequest struct {
	Status       string `json:"status"`
	TrackingCode string `json:"tracking_code,omitempty"`
	Override     bool   `json:"override,omitempty"`
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateStatusRequest
	if err := decodeJSONBody(r, maxAdminRequestBody, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID:      chi.URLParam(r, "orderID"),
		Status:       domain.OrderStatus(strings.TrimSpace(req.Status)),
		TrackingCode: strings.TrimSpace(req.TrackingCode),
		Override:     req.Override,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderViewFrom(order))
}

type trackingRequest struct {
	TrackingCode string `json:"tracking_code"`
}

func (h *AdminHandlers) setTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req trackingRequest
	if err := decodeJSONBody(r, maxAdminRequestBody, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	order, err := h.orders.SetTracking(ctx, chi.URLParam(r, "orderID"), strings.TrimSpace(req.TrackingCode))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderViewFrom(order))
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *AdminHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req cancelRequest
	if err := decodeJSONBody(r, maxAdminRequestBody, &req); err != nil && !errors.Is(err, errEmptyBody) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	order, err := h.orders.CancelOrder(ctx, chi.URLParam(r, "orderID"), strings.TrimSpace(req.Reason))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderViewFrom(order))
}

func (h *AdminHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.orders.DeleteOrder(ctx, chi.URLParam(r, "orderID")); err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeDiscountError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrDiscountNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("discount_not_found", "discount not found", http.StatusNotFound))
	case errors.Is(err, services.ErrDiscountValueTooHigh):
		httpx.WriteError(ctx, w, httpx.NewError("discount_value_too_high", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrDiscountInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("discount_error", "failed to process discount request", http.StatusInternalServerError))
	}
}

func writePromotionError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPromotionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_not_found", "promotion code not found", http.StatusNotFound))
	case errors.Is(err, services.ErrDiscountValueTooHigh):
		httpx.WriteError(ctx, w, httpx.NewError("discount_value_too_high", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPromotionInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("promotion_error", "failed to process promotion request", http.StatusInternalServerError))
	}
}
