package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/shopnatural/core/internal/domain"
	"github.com/shopnatural/core/internal/services"
)

const metadataPaymentReference = "payment_reference"

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeGatewayConfig configures the Stripe adapter.
type StripeGatewayConfig struct {
	APIKey        string
	WebhookSecret string
	// PublicBaseURL is where the shopper returns after the hosted page.
	PublicBaseURL string
	Logger        Logger
	Clock         func() time.Time
	// Sessions overrides the API client in tests.
	Sessions stripeSessionAPI
}

// StripeGateway creates Stripe Checkout sessions and translates Stripe
// webhook events into canonical payment events.
type StripeGateway struct {
	sessions      stripeSessionAPI
	webhookSecret string
	baseURL       string
	clock         func() time.Time
	logger        Logger
}

// NewStripeGateway constructs the Stripe adapter.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Sessions == nil {
		return nil, errors.New("stripe: api key is required")
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("stripe: public base url is required")
	}

	sessions := cfg.Sessions
	if sessions == nil {
		sc := client.New(apiKey, nil)
		sessions = sc.CheckoutSessions
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger
	}

	return &StripeGateway{
		sessions:      sessions,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       baseURL,
		clock:         func() time.Time { return clock().UTC() },
		logger:        logger,
	}, nil
}

// Name implements services.PaymentGateway.
func (g *StripeGateway) Name() string { return "stripe" }

// CreateSession creates a hosted Checkout session for the order. The payment
// reference travels in the client reference id and in the payment intent
// metadata so every later webhook shape can be correlated back.
func (g *StripeGateway) CreateSession(ctx context.Context, order domain.Order) (services.PaymentSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.baseURL + "/checkout/complete?ref=" + order.PaymentReference),
		CancelURL:         stripe.String(g.baseURL + "/checkout/cancelled?ref=" + order.PaymentReference),
		ClientReferenceID: stripe.String(order.PaymentReference),
	}
	params.Context = ctx
	params.SetIdempotencyKey(order.PaymentReference)
	if order.Email != "" {
		params.CustomerEmail = stripe.String(order.Email)
	}
	metadata := map[string]string{metadataPaymentReference: order.PaymentReference}
	params.Metadata = metadata
	params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
		Metadata: metadata,
	}

	// An order-level promotion cannot be expressed as itemized lines without
	// a Stripe coupon, so discounted orders charge a single line carrying the
	// already-computed grand total.
	currency := strings.ToLower(order.Currency)
	if order.Totals.Discount > 0 {
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(order.Totals.Total),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Order " + order.PaymentReference),
				},
			},
		}}
	} else {
		lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(order.Items)+1)
		for _, item := range order.Items {
			line := &stripe.CheckoutSessionLineItemParams{
				Quantity: stripe.Int64(int64(item.Quantity)),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(item.UnitPrice),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(item.Name),
					},
				},
			}
			if item.SKU != "" {
				line.PriceData.ProductData.Metadata = map[string]string{"sku": item.SKU}
			}
			lineItems = append(lineItems, line)
		}
		if order.Totals.ShippingCost > 0 {
			lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(order.Totals.ShippingCost),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Shipping"),
					},
				},
			})
		}
		params.LineItems = lineItems
	}

	session, err := g.sessions.New(params)
	if err != nil {
		return services.PaymentSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	g.logger(ctx, "payments.stripe.session_created", map[string]any{
		"sessionId": session.ID,
		"reference": order.PaymentReference,
	})
	return services.PaymentSession{
		TransactionID: session.ID,
		RedirectURL:   session.URL,
	}, nil
}

// ParseEvent verifies the webhook signature over the raw body and maps the
// Stripe event to a canonical payment event. Event types outside the handled
// set come back as pending acknowledgements.
func (g *StripeGateway) ParseEvent(payload []byte, signatureHeader string) (domain.PaymentEvent, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, g.webhookSecret)
	if err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	out := domain.PaymentEvent{
		Gateway:    g.Name(),
		OccurredAt: time.Unix(event.Created, 0).UTC(),
		RawPayload: payload,
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return domain.PaymentEvent{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		out.TransactionID = session.ID
		out.PaymentReference = session.ClientReferenceID
		out.Amount = session.AmountTotal
		out.Currency = strings.ToUpper(string(session.Currency))
		if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			out.Outcome = domain.PaymentOutcomeSucceeded
		} else {
			// Async methods complete the session before the charge settles.
			out.Outcome = domain.PaymentOutcomePending
		}
	case "checkout.session.expired":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return domain.PaymentEvent{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		out.TransactionID = session.ID
		out.PaymentReference = session.ClientReferenceID
		out.Outcome = domain.PaymentOutcomeFailed
		out.FailureReason = "session_expired"
	case "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return domain.PaymentEvent{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		out.TransactionID = intent.ID
		out.PaymentReference = intent.Metadata[metadataPaymentReference]
		out.Amount = intent.Amount
		out.Currency = strings.ToUpper(string(intent.Currency))
		out.Outcome = domain.PaymentOutcomeFailed
		if intent.LastPaymentError != nil {
			out.FailureReason = string(intent.LastPaymentError.Code)
		}
	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return domain.PaymentEvent{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if charge.PaymentIntent != nil {
			out.TransactionID = charge.PaymentIntent.ID
		}
		out.PaymentReference = charge.Metadata[metadataPaymentReference]
		out.Amount = charge.AmountRefunded
		out.Currency = strings.ToUpper(string(charge.Currency))
		out.Outcome = domain.PaymentOutcomeRefunded
	default:
		out.Outcome = domain.PaymentOutcomePending
	}

	if out.Outcome != domain.PaymentOutcomePending && out.PaymentReference == "" && out.TransactionID == "" {
		return domain.PaymentEvent{}, fmt.Errorf("%w: no order reference on %s", ErrBadPayload, event.Type)
	}
	return out, nil
}
