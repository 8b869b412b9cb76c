package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopnatural/core/internal/documents"
	"github.com/shopnatural/core/internal/domain"
	"github.com/shopnatural/core/internal/platform/auth"
	"github.com/shopnatural/core/internal/platform/httpx"
	"github.com/shopnatural/core/internal/services"
)

const maxOrderListLimit = 100

// OrderHandlers exposes order reads for customers and guests. Operator
// mutations live in AdminHandlers.
type OrderHandlers struct {
	orders    services.OrderService
	documents *documents.Builder
}

// NewOrderHandlers constructs the customer-facing order handlers.
func NewOrderHandlers(orders services.OrderService, builder *documents.Builder) *OrderHandlers {
	if builder == nil {
		builder = documents.NewBuilder()
	}
	return &OrderHandlers{orders: orders, documents: builder}
}

// Routes registers order endpoints under the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.list)
	r.Get("/{orderID}", h.get)
	r.Get("/{orderID}/confirmation", h.confirmation)
}

type orderView struct {
	ID               string         `json:"id"`
	OrderNumber      string         `json:"order_number,omitempty"`
	InvoiceNumber    string         `json:"invoice_number,omitempty"`
	PaymentReference string         `json:"payment_reference"`
	Email            string         `json:"email"`
	Currency         string         `json:"currency"`
	Status           string         `json:"status"`
	PaymentStatus    string         `json:"payment_status"`
	Totals           totalsView     `json:"totals"`
	Items            []lineView     `json:"items"`
	ShippingAddress  addressPayload `json:"shipping_address"`
	BillingAddress   addressPayload `json:"billing_address"`
	ShippingMethod   string         `json:"shipping_method,omitempty"`
	Promotion        *promoView     `json:"promotion,omitempty"`
	TrackingCode     string         `json:"tracking_code,omitempty"`
	CancelReason     string         `json:"cancel_reason,omitempty"`
	PlacedAt         string         `json:"placed_at,omitempty"`
	ConfirmedAt      string         `json:"confirmed_at,omitempty"`
	ShippedAt        string         `json:"shipped_at,omitempty"`
	DeliveredAt      string         `json:"delivered_at,omitempty"`
	CancelledAt      string         `json:"cancelled_at,omitempty"`
}

func orderViewFrom(order domain.Order) orderView {
	view := orderView{
		ID:               order.ID,
		OrderNumber:      order.OrderNumber,
		InvoiceNumber:    order.InvoiceNumber,
		PaymentReference: order.PaymentReference,
		Email:            order.Email,
		Currency:         order.Currency,
		Status:           string(order.Status),
		PaymentStatus:    string(order.PaymentStatus),
		Totals:           totalsViewFrom(order.Totals),
		Items:            lineViewsFrom(order.Items),
		ShippingAddress:  addressPayloadFrom(order.ShippingAddress),
		BillingAddress:   addressPayloadFrom(order.BillingAddress),
		ShippingMethod:   order.ShippingMethod,
		TrackingCode:     order.TrackingCode,
		CancelReason:     order.CancelReason,
		PlacedAt:         formatTime(order.PlacedAt),
		ConfirmedAt:      formatTime(order.ConfirmedAt),
		ShippedAt:        formatTime(order.ShippedAt),
		DeliveredAt:      formatTime(order.DeliveredAt),
		CancelledAt:      formatTime(order.CancelledAt),
	}
	if order.Promotion != nil {
		view.Promotion = &promoView{Code: order.Promotion.Code, Discount: order.Promotion.Discount}
	}
	return view
}

func actorFromContext(ctx context.Context) (services.OrderActor, bool) {
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok || principal.Anonymous() {
		return services.OrderActor{}, false
	}
	return services.OrderActor{
		CustomerID:   principal.CustomerID,
		GuestSession: principal.GuestSessionID,
	}, true
}

func (h *OrderHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "a customer or guest session is required", http.StatusUnauthorized))
		return
	}

	query := services.ListOrdersQuery{Actor: actor}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxOrderListLimit {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be between 1 and 100", http.StatusBadRequest))
			return
		}
		query.Limit = limit
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, status := range strings.Split(raw, ",") {
			query.Statuses = append(query.Statuses, domain.OrderStatus(strings.TrimSpace(status)))
		}
	}
	startAfter, err := parseTimePointer(r.URL.Query().Get("start_after"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "start_after must be RFC 3339", http.StatusBadRequest))
		return
	}
	query.StartAfter = startAfter

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

func (h *OrderHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "a customer or guest session is required", http.StatusUnauthorized))
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderQuery{
		OrderID: chi.URLParam(r, "orderID"),
		Actor:   actor,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderViewFrom(order))
}

func (h *OrderHandlers) confirmation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "a customer or guest session is required", http.StatusUnauthorized))
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderQuery{
		OrderID: chi.URLParam(r, "orderID"),
		Actor:   actor,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "json":
		payload, err := h.documents.RenderJSON(order)
		if err != nil {
			writeDocumentError(ctx, w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	case "text":
		text, err := h.documents.RenderText(order)
		if err != nil {
			writeDocumentError(ctx, w, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(text))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "format must be json or text", http.StatusBadRequest))
	}
}

func writeDocumentError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, documents.ErrOrderNotConfirmable) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_confirmed", "confirmation is available once payment succeeds", http.StatusConflict))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("document_error", "failed to render confirmation", http.StatusInternalServerError))
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentStatusGuard):
		httpx.WriteError(ctx, w, httpx.NewError("payment_status_guard", "order payment status does not allow this transition", http.StatusConflict))
	case errors.Is(err, services.ErrTrackingRequired):
		httpx.WriteError(ctx, w, httpx.NewError("tracking_required", "a tracking code is required to mark an order shipped", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
