package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shopnatural/core/internal/platform/requestctx"
)

const (
	defaultSignatureHeader = "X-Signature"
	defaultTimestampHeader = "X-Signature-Timestamp"
	defaultNonceHeader     = "X-Signature-Nonce"
	defaultKeyHeader       = "X-Signature-Key"

	defaultClockSkew = 5 * time.Minute
	defaultNonceTTL  = 5 * time.Minute
)

// NonceStore tracks seen nonces for replay prevention.
type NonceStore interface {
	// UseNonce records the nonce if unseen within the scope. The boolean is
	// false when the nonce was already used.
	UseNonce(scope, nonce string, expiry time.Time) (bool, error)
}

// InMemoryNonceStore is a process-local nonce registry. A single-instance
// deployment needs nothing more; multi-instance setups would back this with
// a shared store.
type InMemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]time.Time
}

// NewInMemoryNonceStore constructs the store.
func NewInMemoryNonceStore() *InMemoryNonceStore {
	return &InMemoryNonceStore{nonces: make(map[string]time.Time)}
}

// UseNonce records the nonce until expiry, rejecting replays until then.
func (s *InMemoryNonceStore) UseNonce(scope, nonce string, expiry time.Time) (bool, error) {
	if scope == "" || nonce == "" {
		return false, errors.New("auth: scope and nonce are required")
	}
	key := scope + "::" + nonce

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, exp := range s.nonces {
		if exp.Before(now) {
			delete(s.nonces, k)
		}
	}
	if existing, ok := s.nonces[key]; ok && existing.After(now) {
		return false, nil
	}
	s.nonces[key] = expiry
	return true, nil
}

// HMACValidator verifies signed requests from trusted operators and internal
// services. The signature covers method, path, timestamp, nonce and the
// SHA-256 of the body.
type HMACValidator struct {
	keys   map[string][]byte
	nonces NonceStore
	clock  func() time.Time

	signatureHeader string
	timestampHeader string
	nonceHeader     string
	keyHeader       string

	clockSkew time.Duration
	nonceTTL  time.Duration
}

// HMACOption customises the validator.
type HMACOption func(*HMACValidator)

// WithHMACHeaders overrides the signature and timestamp header names.
func WithHMACHeaders(signature, timestamp string) HMACOption {
	return func(v *HMACValidator) {
		if signature != "" {
			v.signatureHeader = signature
		}
		if timestamp != "" {
			v.timestampHeader = timestamp
		}
	}
}

// WithHMACClockSkew adjusts the accepted timestamp skew.
func WithHMACClockSkew(d time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if d > 0 {
			v.clockSkew = d
		}
	}
}

// WithHMACClock injects a clock for tests.
func WithHMACClock(clock func() time.Time) HMACOption {
	return func(v *HMACValidator) {
		if clock != nil {
			v.clock = clock
		}
	}
}

// WithHMACNonceStore overrides the default in-memory nonce store.
func WithHMACNonceStore(store NonceStore) HMACOption {
	return func(v *HMACValidator) {
		if store != nil {
			v.nonces = store
		}
	}
}

// NewHMACValidator builds a validator over the named shared keys. Key names
// are matched case-insensitively against the key header.
func NewHMACValidator(keys map[string]string, opts ...HMACOption) (*HMACValidator, error) {
	if len(keys) == 0 {
		return nil, errors.New("auth: at least one hmac key is required")
	}
	normalized := make(map[string][]byte, len(keys))
	for name, secret := range keys {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || secret == "" {
			return nil, errors.New("auth: hmac key name and secret must not be empty")
		}
		normalized[name] = []byte(secret)
	}
	v := &HMACValidator{
		keys:            normalized,
		nonces:          NewInMemoryNonceStore(),
		clock:           time.Now,
		signatureHeader: defaultSignatureHeader,
		timestampHeader: defaultTimestampHeader,
		nonceHeader:     defaultNonceHeader,
		keyHeader:       defaultKeyHeader,
		clockSkew:       defaultClockSkew,
		nonceTTL:        defaultNonceTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// RequireSignature rejects requests whose signature does not verify against
// any configured key.
func (v *HMACValidator) RequireSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reason, status := v.verify(r)
		if reason != "" {
			requestctx.Logger(r.Context()).Warn("hmac verification failed",
				zap.String("reason", reason),
				zap.String("path", r.URL.Path),
			)
			http.Error(w, reason, status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (v *HMACValidator) verify(r *http.Request) (reason string, status int) {
	keyName := strings.ToLower(strings.TrimSpace(r.Header.Get(v.keyHeader)))
	if keyName == "" {
		return "signature key missing", http.StatusUnauthorized
	}
	secret, ok := v.keys[keyName]
	if !ok {
		return "unknown signature key", http.StatusUnauthorized
	}

	signatureValue := strings.TrimSpace(r.Header.Get(v.signatureHeader))
	if signatureValue == "" {
		return "signature missing", http.StatusUnauthorized
	}
	signature, err := decodeSignature(signatureValue)
	if err != nil {
		return "signature encoding invalid", http.StatusUnauthorized
	}

	timestampValue := strings.TrimSpace(r.Header.Get(v.timestampHeader))
	timestamp, err := parseSignatureTimestamp(timestampValue)
	if err != nil {
		return "signature timestamp invalid", http.StatusUnauthorized
	}
	if skew := v.clock().Sub(timestamp); skew > v.clockSkew || skew < -v.clockSkew {
		return "signature timestamp outside allowed window", http.StatusUnauthorized
	}

	nonce := strings.TrimSpace(r.Header.Get(v.nonceHeader))
	if nonce == "" {
		return "signature nonce missing", http.StatusUnauthorized
	}

	body, err := readAndRestoreBody(r)
	if err != nil {
		return "unable to read body", http.StatusBadRequest
	}

	expected := computeHMAC(secret, canonicalRequest(r, body, timestampValue, nonce))
	if !hmac.Equal(signature, expected) {
		return "signature verification failed", http.StatusUnauthorized
	}

	stored, err := v.nonces.UseNonce(keyName, nonce, timestamp.Add(v.nonceTTL))
	if err != nil {
		return "nonce storage error", http.StatusServiceUnavailable
	}
	if !stored {
		return "duplicate signature nonce", http.StatusUnauthorized
	}
	return "", 0
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	buf, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))
	return buf, nil
}

func decodeSignature(value string) ([]byte, error) {
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	if decoded, err := hex.DecodeString(value); err == nil {
		return decoded, nil
	}
	return nil, errors.New("auth: signature must be base64 or hex encoded")
}

func parseSignatureTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("auth: timestamp empty")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}
	return time.Time{}, errors.New("auth: unable to parse timestamp")
}

// canonicalRequest builds the signed string: method, escaped path, timestamp,
// nonce and body hash joined by newlines.
func canonicalRequest(r *http.Request, body []byte, timestamp, nonce string) []byte {
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	hash := sha256.Sum256(body)
	return []byte(strings.Join([]string{
		strings.ToUpper(r.Method),
		path,
		timestamp,
		nonce,
		hex.EncodeToString(hash[:]),
	}, "\n"))
}

func computeHMAC(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(message)
	return mac.Sum(nil)
}
