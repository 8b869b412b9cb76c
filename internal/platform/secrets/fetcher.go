package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultFallbackPath = ".secrets.local"

var clientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references against Google Secret Manager,
// caching resolved values and falling back to a local file when the
// service is unreachable.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool

	logger        *zap.Logger
	defaultProjID string

	fallbackPath string
	fallbackOnce sync.Once
	fallbackVals map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]string
}

type fetcherConfig struct {
	logger       *zap.Logger
	defaultProj  string
	fallbackPath string
	client       secretManagerClient
	clientOpts   []option.ClientOption
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) { cfg.logger = logger }
}

// WithDefaultProject configures the project used for short secret names.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) { cfg.defaultProj = strings.TrimSpace(projectID) }
}

// WithFallbackFile overrides the path to the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) { cfg.fallbackPath = strings.TrimSpace(path) }
}

// WithClient injects a preconfigured Secret Manager client (primarily for tests).
func WithClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

// WithClientOptions forwards Cloud client options when constructing the client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// NewFetcher builds a Fetcher. When the Secret Manager client cannot be
// constructed the fetcher still works in fallback-only mode so local
// development does not require cloud credentials.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:       zap.NewNop(),
		fallbackPath: defaultFallbackPath,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	f := &Fetcher{
		logger:        cfg.logger,
		defaultProjID: cfg.defaultProj,
		fallbackPath:  cfg.fallbackPath,
		cache:         make(map[string]string),
	}

	if cfg.client != nil {
		f.client = cfg.client
	} else {
		client, err := clientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secrets: secret manager client unavailable, operating in fallback mode", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

// Close releases the underlying client when the fetcher owns it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret retrieves the value behind a secret:// reference. It
// satisfies the config package's SecretResolver interface.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	resource, err := f.resourceName(ref)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	cached, ok := f.cache[resource]
	f.mu.RUnlock()
	if ok {
		return cached, nil
	}

	if f.client != nil {
		resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
		if err == nil {
			if resp == nil || resp.Payload == nil {
				return "", fmt.Errorf("secrets: empty payload for %s", resource)
			}
			value := string(resp.Payload.GetData())
			f.mu.Lock()
			f.cache[resource] = value
			f.mu.Unlock()
			return value, nil
		}
		if !isFallbackError(err) {
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", resource, err)
		}
		f.logger.Debug("secrets: falling back to local secrets", zap.String("resource", resource), zap.Error(err))
	}

	value, ok := f.lookupFallback(ref, resource)
	if !ok {
		return "", fmt.Errorf("secrets: no fallback value for %s", resource)
	}
	f.mu.Lock()
	f.cache[resource] = value
	f.mu.Unlock()
	return value, nil
}

// Invalidate drops a cached value so the next resolve re-fetches it.
func (f *Fetcher) Invalidate(ref string) {
	resource, err := f.resourceName(ref)
	if err != nil {
		return
	}
	f.mu.Lock()
	delete(f.cache, resource)
	f.mu.Unlock()
}

// resourceName expands a secret:// reference into a full Secret Manager
// resource path. References may carry the full projects/.../versions/...
// path or just a secret name resolved against the default project.
func (f *Fetcher) resourceName(ref string) (string, error) {
	trimmed := strings.TrimSpace(ref)
	trimmed = strings.TrimPrefix(trimmed, "secret://")
	trimmed = strings.TrimPrefix(trimmed, "sm://")
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return "", errors.New("secrets: empty reference")
	}
	if strings.HasPrefix(trimmed, "projects/") {
		if !strings.Contains(trimmed, "/versions/") {
			trimmed += "/versions/latest"
		}
		return trimmed, nil
	}
	if f.defaultProjID == "" {
		return "", fmt.Errorf("secrets: no default project for short reference %q", ref)
	}
	name, version, ok := strings.Cut(trimmed, "@")
	if !ok {
		version = "latest"
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", f.defaultProjID, name, version), nil
}

func (f *Fetcher) lookupFallback(ref, resource string) (string, bool) {
	f.loadFallback()
	if f.fallbackErr != nil {
		f.logger.Debug("secrets: fallback load error", zap.Error(f.fallbackErr))
		return "", false
	}
	if value, ok := f.fallbackVals[resource]; ok {
		return value, true
	}
	if value, ok := f.fallbackVals[strings.TrimSpace(ref)]; ok {
		return value, true
	}
	return "", false
}

func (f *Fetcher) loadFallback() {
	f.fallbackOnce.Do(func() {
		f.fallbackVals = map[string]string{}
		if f.fallbackPath == "" {
			return
		}
		file, err := os.Open(f.fallbackPath)
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		if err != nil {
			f.fallbackErr = fmt.Errorf("secrets: unable to open fallback file %s: %w", f.fallbackPath, err)
			return
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			if resource, err := f.resourceName(key); err == nil {
				f.fallbackVals[resource] = strings.TrimSpace(value)
			}
			f.fallbackVals[key] = strings.TrimSpace(value)
		}
		if err := scanner.Err(); err != nil {
			f.fallbackErr = fmt.Errorf("secrets: failed reading %s: %w", f.fallbackPath, err)
		}
	})
}

func isFallbackError(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
