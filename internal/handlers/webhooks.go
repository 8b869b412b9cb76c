package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopnatural/core/internal/domain"
	"github.com/shopnatural/core/internal/payments"
	"github.com/shopnatural/core/internal/platform/httpx"
	"github.com/shopnatural/core/internal/platform/requestctx"
	"github.com/shopnatural/core/internal/services"

	"go.uber.org/zap"
)

// Webhook bodies are small; Stripe events stay well under this.
const maxWebhookBody = 256 * 1024

// StripeEventParser verifies and normalises a Stripe webhook delivery.
type StripeEventParser interface {
	ParseEvent(payload []byte, signatureHeader string) (domain.PaymentEvent, error)
}

// WebToPayCallbackParser verifies and normalises webtopay requests.
type WebToPayCallbackParser interface {
	ParseCallback(query url.Values) (domain.PaymentEvent, error)
	VerifyReturn(query url.Values) (string, error)
}

// WebhookHandlers terminates payment gateway notifications. Responses follow
// the gateway retry contract: 2xx acknowledges, 400 rejects permanently, 5xx
// asks the gateway to redeliver.
type WebhookHandlers struct {
	stripe        StripeEventParser
	webtopay      WebToPayCallbackParser
	reconciler    services.ReconciliationService
	publicBaseURL string
}

// NewWebhookHandlers constructs the webhook handlers.
func NewWebhookHandlers(stripe StripeEventParser, webtopay WebToPayCallbackParser, reconciler services.ReconciliationService, publicBaseURL string) *WebhookHandlers {
	return &WebhookHandlers{
		stripe:        stripe,
		webtopay:      webtopay,
		reconciler:    reconciler,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Routes registers webhook endpoints under the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.stripeWebhook)
	r.Post("/webtopay/callback", h.webtopayCallback)
	r.Get("/webtopay/callback", h.webtopayCallback)
	r.Get("/webtopay/accept", h.webtopayAccept)
	r.Get("/webtopay/cancel", h.webtopayCancel)
}

func (h *WebhookHandlers) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stripe == nil || h.reconciler == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook processing unavailable", http.StatusServiceUnavailable))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read body", http.StatusBadRequest))
		return
	}

	event, err := h.stripe.ParseEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		writeWebhookParseError(ctx, w, err)
		return
	}

	result, err := h.reconciler.Process(ctx, event)
	if err != nil {
		writeReconcileError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"received": true,
		"applied":  result.Applied,
	})
}

// webtopayCallback is the server-to-server notification. The body must be
// exactly "OK" for the gateway to stop retrying.
func (h *WebhookHandlers) webtopayCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.webtopay == nil || h.reconciler == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook processing unavailable", http.StatusServiceUnavailable))
		return
	}

	query, err := webtopayParams(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to parse request", http.StatusBadRequest))
		return
	}

	event, err := h.webtopay.ParseCallback(query)
	if err != nil {
		writeWebhookParseError(ctx, w, err)
		return
	}

	if _, err := h.reconciler.Process(ctx, event); err != nil {
		writeReconcileError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// webtopayAccept handles the shopper's return after payment. It never
// mutates order state; the asynchronous callback is authoritative.
func (h *WebhookHandlers) webtopayAccept(w http.ResponseWriter, r *http.Request) {
	h.webtopayReturn(w, r, "/checkout/complete")
}

// webtopayCancel handles the shopper abandoning the gateway page.
func (h *WebhookHandlers) webtopayCancel(w http.ResponseWriter, r *http.Request) {
	h.webtopayReturn(w, r, "/checkout/cancelled")
}

func (h *WebhookHandlers) webtopayReturn(w http.ResponseWriter, r *http.Request, path string) {
	ctx := r.Context()
	if h.webtopay == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook processing unavailable", http.StatusServiceUnavailable))
		return
	}

	ref, err := h.webtopay.VerifyReturn(r.URL.Query())
	if err != nil {
		requestctx.Logger(ctx).Warn("webtopay return rejected", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "return parameters did not verify", http.StatusBadRequest))
		return
	}

	target := h.publicBaseURL + path
	if ref != "" {
		target += "?ref=" + url.QueryEscape(ref)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func webtopayParams(r *http.Request) (url.Values, error) {
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return r.Form, nil
	}
	return r.URL.Query(), nil
}

func writeWebhookParseError(ctx context.Context, w http.ResponseWriter, err error) {
	requestctx.Logger(ctx).Warn("webhook rejected", zap.Error(err))
	switch {
	case errors.Is(err, payments.ErrBadSignature):
		httpx.WriteError(ctx, w, httpx.NewError("bad_signature", "signature verification failed", http.StatusBadRequest))
	case errors.Is(err, payments.ErrBadPayload):
		httpx.WriteError(ctx, w, httpx.NewError("bad_payload", "payload could not be interpreted", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("bad_payload", "payload could not be interpreted", http.StatusBadRequest))
	}
}

func writeReconcileError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrReconcileOrderNotFound) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "no order matches the event", http.StatusNotFound))
		return
	}
	// Transient: a 5xx makes the gateway redeliver.
	requestctx.Logger(ctx).Error("webhook processing failed", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "temporary failure; retry delivery", http.StatusInternalServerError))
}
