package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopnatural/core/internal/payments"
	"github.com/shopnatural/core/internal/platform/auth"
	"github.com/shopnatural/core/internal/platform/config"
	"github.com/shopnatural/core/internal/platform/ids"
	"github.com/shopnatural/core/internal/platform/observability"
	"github.com/shopnatural/core/internal/repositories"
	"github.com/shopnatural/core/internal/services"
)

// The public order number prefix stamped by the counter service.
const orderNumberPrefix = "SN"

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Discounts      services.DiscountService
	Promotions     services.PromotionService
	Pricing        services.PricingEngine
	Counters       services.CounterService
	Orders         services.OrderService
	Checkout       services.CheckoutService
	Reconciliation services.ReconciliationService
	Sweep          services.SweepService
}

// Gateways exposes the payment adapters both as the generic session-creation
// interface and as their concrete webhook-parsing types.
type Gateways struct {
	ByName   map[string]services.PaymentGateway
	Stripe   *payments.StripeGateway
	WebToPay *payments.WebToPayGateway
}

// Container wires repositories, services, gateways and auth for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Gateways     Gateways
	Sessions     *auth.SessionManager
	HMAC         *auth.HMACValidator
	IDs          *ids.Generator
}

// NewContainer assembles the runtime dependencies. The notification publisher
// is injected because its Pub/Sub topic is owned by the caller; pass nil to
// run without notifications.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, publisher services.NotificationPublisher) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	c := &Container{
		Config:       cfg,
		Repositories: reg,
		IDs:          ids.NewGenerator(time.Now),
	}

	logger := observability.EventLogger()

	discountSvc, err := services.NewDiscountService(services.DiscountServiceDeps{
		Discounts:     reg.Discounts(),
		IDs:           c.IDs.Func(ids.PrefixDiscount),
		MaxPercentage: cfg.Pricing.MaxDiscountRate,
		CacheTTL:      cfg.Pricing.DiscountCacheTTL,
		Clock:         time.Now,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build discount service: %w", err)
	}
	c.Services.Discounts = discountSvc

	promotionSvc, err := services.NewPromotionService(services.PromotionServiceDeps{
		Promotions:    reg.Promotions(),
		IDs:           c.IDs.Func(ids.PrefixPromotion),
		MaxPercentage: cfg.Pricing.MaxDiscountRate,
		Clock:         time.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("build promotion service: %w", err)
	}
	c.Services.Promotions = promotionSvc

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		Discounts: discountSvc,
		Promotion: promotionSvc,
		VATRate:   cfg.Pricing.VATRate,
		Clock:     time.Now,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build pricing engine: %w", err)
	}
	c.Services.Pricing = pricing

	counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
		Counters: reg.Counters(),
		Prefix:   orderNumberPrefix,
		Clock:    time.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("build counter service: %w", err)
	}
	c.Services.Counters = counterSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders: reg.Orders(),
		Clock:  time.Now,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}
	c.Services.Orders = orderSvc

	if err := c.buildGateways(); err != nil {
		return nil, err
	}

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:   reg.Orders(),
		Pricing:  pricing,
		Gateways: c.Gateways.ByName,
		IDs:      c.IDs.Func(ids.PrefixPayment),
		Currency: cfg.Pricing.Currency,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build checkout service: %w", err)
	}
	c.Services.Checkout = checkoutSvc

	reconcileSvc, err := services.NewReconciliationService(services.ReconciliationServiceDeps{
		Orders:    reg.Orders(),
		Counters:  counterSvc,
		Publisher: publisher,
		Clock:     time.Now,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build reconciliation service: %w", err)
	}
	c.Services.Reconciliation = reconcileSvc

	sweepSvc, err := services.NewSweepService(services.SweepServiceDeps{
		Orders:    reg.Orders(),
		DraftTTL:  cfg.Checkout.DraftTTL,
		BatchSize: cfg.Checkout.SweepBatch,
		Clock:     time.Now,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build sweep service: %w", err)
	}
	c.Services.Sweep = sweepSvc

	sessions, err := auth.NewSessionManager(cfg.Session.Secret, cfg.Session.TTL, time.Now)
	if err != nil {
		return nil, fmt.Errorf("build session manager: %w", err)
	}
	c.Sessions = sessions

	if len(cfg.Security.HMACSecrets) > 0 {
		validator, err := auth.NewHMACValidator(cfg.Security.HMACSecrets,
			auth.WithHMACHeaders(cfg.Security.SignatureHeader, cfg.Security.TimestampHeader),
			auth.WithHMACClockSkew(cfg.Security.ClockSkew),
		)
		if err != nil {
			return nil, fmt.Errorf("build hmac validator: %w", err)
		}
		c.HMAC = validator
	}

	return c, nil
}

func (c *Container) buildGateways() error {
	c.Gateways.ByName = make(map[string]services.PaymentGateway)

	if c.Config.PSP.StripeAPIKey != "" {
		stripe, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
			APIKey:        c.Config.PSP.StripeAPIKey,
			WebhookSecret: c.Config.PSP.StripeWebhookSecret,
			PublicBaseURL: c.Config.Checkout.PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("build stripe gateway: %w", err)
		}
		c.Gateways.Stripe = stripe
		c.Gateways.ByName[stripe.Name()] = stripe
	}

	if c.Config.PSP.WebToPayProjectID != "" {
		webtopay, err := payments.NewWebToPayGateway(payments.WebToPayGatewayConfig{
			ProjectID:     c.Config.PSP.WebToPayProjectID,
			SignPassword:  c.Config.PSP.WebToPaySignWord,
			PublicBaseURL: c.Config.Checkout.PublicBaseURL,
			TestMode:      c.Config.PSP.WebToPayTestMode,
		})
		if err != nil {
			return fmt.Errorf("build webtopay gateway: %w", err)
		}
		c.Gateways.WebToPay = webtopay
		c.Gateways.ByName[webtopay.Name()] = webtopay
	}

	if len(c.Gateways.ByName) == 0 {
		return errors.New("at least one payment gateway must be configured")
	}
	return nil
}

// Close releases repository clients and other held resources.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}
