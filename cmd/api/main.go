package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/shopnatural/core/internal/di"
	"github.com/shopnatural/core/internal/documents"
	"github.com/shopnatural/core/internal/handlers"
	"github.com/shopnatural/core/internal/platform/config"
	pfirestore "github.com/shopnatural/core/internal/platform/firestore"
	"github.com/shopnatural/core/internal/platform/jobs"
	"github.com/shopnatural/core/internal/platform/observability"
	"github.com/shopnatural/core/internal/platform/requestctx"
	"github.com/shopnatural/core/internal/platform/secrets"
	fsrepo "github.com/shopnatural/core/internal/repositories/firestore"
	"github.com/shopnatural/core/internal/services"
)

const (
	checkoutRateLimit  = 10
	checkoutRateWindow = time.Minute
	sweepRunTimeout    = time.Minute
	shutdownGrace      = 10 * time.Second
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = requestctx.WithLogger(ctx, logger)

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithDefaultProject(os.Getenv("GOOGLE_CLOUD_PROJECT")),
	)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(pfirestore.Config{
		ProjectID:    cfg.Firestore.ProjectID,
		EmulatorHost: cfg.Firestore.EmulatorHost,
	})
	registry, err := fsrepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise firestore repositories", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	var publisher services.NotificationPublisher
	if topicID := strings.TrimSpace(cfg.Notifications.TopicID); topicID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		topic := pubsubClient.Topic(topicID)
		defer func() {
			topic.Stop()
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()

		p, err := jobs.NewPubSubNotificationPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise notification publisher", zap.Error(err))
		}
		publisher = p
	} else {
		logger.Info("order notifications disabled; no topic configured")
	}

	container, err := di.NewContainer(ctx, cfg, registry, publisher)
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}

	checkoutHandlers := handlers.NewCheckoutHandlers(
		container.Services.Checkout,
		handlers.NewCheckoutRateLimiter(checkoutRateLimit, checkoutRateWindow),
	)
	orderHandlers := handlers.NewOrderHandlers(container.Services.Orders, documents.NewBuilder())
	adminHandlers := handlers.NewAdminHandlers(
		container.Services.Discounts,
		container.Services.Promotions,
		container.Services.Orders,
		handlers.WithSweepService(container.Services.Sweep),
	)

	// Pass concrete gateways through local interface variables so an absent
	// gateway stays a nil interface inside the handlers.
	var stripeParser handlers.StripeEventParser
	if container.Gateways.Stripe != nil {
		stripeParser = container.Gateways.Stripe
	}
	var webtopayParser handlers.WebToPayCallbackParser
	if container.Gateways.WebToPay != nil {
		webtopayParser = container.Gateways.WebToPay
	}
	webhookHandlers := handlers.NewWebhookHandlers(
		stripeParser,
		webtopayParser,
		container.Services.Reconciliation,
		cfg.Checkout.PublicBaseURL,
	)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthVersion(buildVersion()),
		handlers.WithHealthReporter(registry.Health()),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Firestore.ProjectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithSessionMiddleware(container.Sessions.SessionMiddleware),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
	}
	if container.HMAC != nil {
		opts = append(opts, handlers.WithAdminMiddlewares(container.HMAC.RequireSignature))
	} else {
		logger.Warn("admin routes are unsigned; no hmac secrets configured")
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	var sweepWG sync.WaitGroup
	var sweepTicker *time.Ticker
	if cfg.Checkout.SweepInterval > 0 {
		sweepTicker = time.NewTicker(cfg.Checkout.SweepInterval)
		sweepWG.Add(1)
		go func() {
			defer sweepWG.Done()
			sweepLogger := logger.Named("sweep")
			for {
				select {
				case <-sweepTicker.C:
					runCtx, cancel := context.WithTimeout(sweepCtx, sweepRunTimeout)
					runCtx = requestctx.WithLogger(runCtx, sweepLogger)
					cancelled, err := container.Services.Sweep.SweepExpiredDrafts(runCtx)
					cancel()
					if err != nil {
						sweepLogger.Error("draft sweep error", zap.Error(err))
						continue
					}
					if cancelled > 0 {
						sweepLogger.Info("draft sweep cancelled stale orders", zap.Int("count", cancelled))
					}
				case <-sweepCtx.Done():
					return
				}
			}
		}()
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("shopnatural api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if sweepTicker != nil {
		sweepTicker.Stop()
	}
	sweepCancel()
	sweepWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildVersion() string {
	if v := strings.TrimSpace(os.Getenv("API_BUILD_VERSION")); v != "" {
		return v
	}
	return "dev"
}
