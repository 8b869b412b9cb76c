package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile          = ".env"
	defaultPort             = "8080"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultVATRate          = "21"
	defaultCurrency         = "EUR"
	defaultMaxDiscountRate  = "100"
	defaultDraftTTL         = 48 * time.Hour
	defaultSweepInterval    = time.Hour
	defaultSweepBatchSize   = 100
	defaultSessionTTL       = 30 * 24 * time.Hour
	defaultDiscountCacheTTL = time.Minute
	defaultHMACHeader       = "X-Signature"
	defaultHMACTimestamp    = "X-Signature-Timestamp"
	defaultHMACClockSkew    = 5 * time.Minute
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firestore     FirestoreConfig
	Pricing       PricingConfig
	Checkout      CheckoutConfig
	PSP           PSPConfig
	Session       SessionConfig
	Security      SecurityConfig
	Notifications NotificationConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PricingConfig controls the totals pipeline.
type PricingConfig struct {
	VATRate          decimal.Decimal
	Currency         string
	MaxDiscountRate  decimal.Decimal
	DiscountCacheTTL time.Duration
}

// CheckoutConfig controls draft lifecycle and redirect targets.
type CheckoutConfig struct {
	PublicBaseURL string
	DraftTTL      time.Duration
	SweepInterval time.Duration
	SweepBatch    int
}

// PSPConfig collects credentials for payment providers.
type PSPConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
	WebToPayProjectID   string
	WebToPaySignWord    string
	WebToPayTestMode    bool
}

// SessionConfig configures customer and guest session tokens.
type SessionConfig struct {
	Secret string
	TTL    time.Duration
}

// SecurityConfig groups the back-office authentication settings.
type SecurityConfig struct {
	HMACSecrets     map[string]string
	SignatureHeader string
	TimestampHeader string
	ClockSkew       time.Duration
}

// NotificationConfig names the Pub/Sub topic for order events.
type NotificationConfig struct {
	TopicID string
}

// SecretResolver fetches secret material for values that reference it.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret implements SecretResolver.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

var errSecretResolverNotConfigured = errors.New("config: secret resolver not configured")

// SecretError reports a failure resolving a referenced secret.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("config: resolving secret %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// ValidationError lists configuration fields that are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return "config: missing or invalid fields: " + strings.Join(e.fields, ", ")
}

// Fields returns the offending field names.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

// WithEnvFile overrides the dotenv file path.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap supplies values that take precedence over the environment.
// Used by tests to avoid touching the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv disables process-environment lookups.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver installs the resolver used for secret:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// Load reads configuration from the environment, an optional .env file
// and the configured secret resolver.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnv != nil {
			if value, ok := dotEnv[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "SHOP_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "SHOP_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "SHOP_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "SHOP_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "SHOP_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "SHOP_FIRESTORE_EMULATOR_HOST", ""),
		},
		Pricing: PricingConfig{
			Currency:         stringWithDefault(lookup, "SHOP_PRICING_CURRENCY", defaultCurrency),
			DiscountCacheTTL: durationWithDefault(lookup, "SHOP_PRICING_DISCOUNT_CACHE_TTL", defaultDiscountCacheTTL),
		},
		Checkout: CheckoutConfig{
			PublicBaseURL: stringWithDefault(lookup, "SHOP_CHECKOUT_PUBLIC_BASE_URL", ""),
			DraftTTL:      durationWithDefault(lookup, "SHOP_CHECKOUT_DRAFT_TTL", defaultDraftTTL),
			SweepInterval: durationWithDefault(lookup, "SHOP_CHECKOUT_SWEEP_INTERVAL", defaultSweepInterval),
			SweepBatch:    intWithDefault(lookup, "SHOP_CHECKOUT_SWEEP_BATCH", defaultSweepBatchSize),
		},
		PSP: PSPConfig{
			StripeAPIKey:        stringWithDefault(lookup, "SHOP_PSP_STRIPE_API_KEY", ""),
			StripeWebhookSecret: stringWithDefault(lookup, "SHOP_PSP_STRIPE_WEBHOOK_SECRET", ""),
			WebToPayProjectID:   stringWithDefault(lookup, "SHOP_PSP_WEBTOPAY_PROJECT_ID", ""),
			WebToPaySignWord:    stringWithDefault(lookup, "SHOP_PSP_WEBTOPAY_SIGN_PASSWORD", ""),
			WebToPayTestMode:    boolWithDefault(lookup, "SHOP_PSP_WEBTOPAY_TEST_MODE", false),
		},
		Session: SessionConfig{
			Secret: stringWithDefault(lookup, "SHOP_SESSION_SECRET", ""),
			TTL:    durationWithDefault(lookup, "SHOP_SESSION_TTL", defaultSessionTTL),
		},
		Security: SecurityConfig{
			HMACSecrets:     mapWithDefault(lookup, "SHOP_SECURITY_HMAC_SECRETS"),
			SignatureHeader: stringWithDefault(lookup, "SHOP_SECURITY_HMAC_HEADER_SIGNATURE", defaultHMACHeader),
			TimestampHeader: stringWithDefault(lookup, "SHOP_SECURITY_HMAC_HEADER_TIMESTAMP", defaultHMACTimestamp),
			ClockSkew:       durationWithDefault(lookup, "SHOP_SECURITY_HMAC_CLOCK_SKEW", defaultHMACClockSkew),
		},
		Notifications: NotificationConfig{
			TopicID: stringWithDefault(lookup, "SHOP_NOTIFICATIONS_TOPIC", ""),
		},
	}

	cfg.Pricing.VATRate, err = decimalWithDefault(lookup, "SHOP_PRICING_VAT_RATE", defaultVATRate)
	if err != nil {
		return Config{}, err
	}
	cfg.Pricing.MaxDiscountRate, err = decimalWithDefault(lookup, "SHOP_PRICING_MAX_DISCOUNT_RATE", defaultMaxDiscountRate)
	if err != nil {
		return Config{}, err
	}

	// Resolve values that reference Secret Manager.
	secretFields := []struct {
		name  string
		field *string
	}{
		{"PSP.StripeAPIKey", &cfg.PSP.StripeAPIKey},
		{"PSP.StripeWebhookSecret", &cfg.PSP.StripeWebhookSecret},
		{"PSP.WebToPaySignWord", &cfg.PSP.WebToPaySignWord},
		{"Session.Secret", &cfg.Session.Secret},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
	}
	for key, value := range cfg.Security.HMACSecrets {
		resolved, err := resolveSecret(ctx, value, options.secret)
		if err != nil {
			return Config{}, err
		}
		cfg.Security.HMACSecrets[key] = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || !isSecretReference(trimmed) {
		return value, nil
	}
	ref := normalizeSecretReference(trimmed)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func isSecretReference(value string) bool {
	return strings.HasPrefix(value, "secret://") || strings.HasPrefix(value, "sm://")
}

func normalizeSecretReference(value string) string {
	if strings.HasPrefix(value, "sm://") {
		return "secret://" + strings.TrimPrefix(value, "sm://")
	}
	return value
}

func validateConfig(cfg Config) error {
	var bad []string

	if cfg.Server.Port == "" {
		bad = append(bad, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		bad = append(bad, "Firestore.ProjectID")
	}
	if cfg.Pricing.VATRate.IsNegative() {
		bad = append(bad, "Pricing.VATRate")
	}
	if cfg.Pricing.Currency == "" {
		bad = append(bad, "Pricing.Currency")
	}
	if cfg.Checkout.DraftTTL <= 0 {
		bad = append(bad, "Checkout.DraftTTL")
	}
	if cfg.Checkout.SweepInterval <= 0 {
		bad = append(bad, "Checkout.SweepInterval")
	}
	if cfg.Checkout.SweepBatch <= 0 {
		bad = append(bad, "Checkout.SweepBatch")
	}
	if cfg.Session.TTL <= 0 {
		bad = append(bad, "Session.TTL")
	}

	if len(bad) > 0 {
		return &ValidationError{fields: bad}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func decimalWithDefault(lookup func(string) (string, bool), key, fallback string) (decimal.Decimal, error) {
	raw := fallback
	if value, ok := lookup(key); ok && value != "" {
		raw = value
	}
	parsed, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("config: %s: %w", key, err)
	}
	return parsed, nil
}

func mapWithDefault(lookup func(string) (string, bool), key string) map[string]string {
	values := make(map[string]string)
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return values
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, secret, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		secret = strings.TrimSpace(secret)
		if name == "" || secret == "" {
			continue
		}
		values[name] = secret
	}
	return values
}
