package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const sessionIssuer = "shopnatural"

// Principal kinds carried in session tokens.
const (
	KindCustomer = "customer"
	KindGuest    = "guest"
)

var (
	// ErrTokenInvalid indicates a token that failed parsing or signature
	// verification.
	ErrTokenInvalid = errors.New("auth: invalid session token")
	// ErrTokenExpired indicates a well-formed token past its expiry.
	ErrTokenExpired = errors.New("auth: session token expired")
)

// Principal is the authenticated shopper: either a signed-in customer or an
// anonymous guest session. Exactly one identifier is set.
type Principal struct {
	CustomerID     string
	GuestSessionID string
	Email          string
}

// Anonymous reports whether no identity is present at all.
func (p Principal) Anonymous() bool {
	return p.CustomerID == "" && p.GuestSessionID == ""
}

type sessionClaims struct {
	Kind  string `json:"kind"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// SessionManager issues and verifies HS256 session tokens for shoppers.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewSessionManager constructs a SessionManager with the shared secret.
func NewSessionManager(secret string, ttl time.Duration, clock func() time.Time) (*SessionManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: session secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: session ttl must be positive")
	}
	if clock == nil {
		clock = time.Now
	}
	return &SessionManager{
		secret: []byte(secret),
		ttl:    ttl,
		clock:  func() time.Time { return clock().UTC() },
	}, nil
}

// IssueCustomerToken signs a token for an authenticated customer.
func (m *SessionManager) IssueCustomerToken(customerID, email string) (string, error) {
	if strings.TrimSpace(customerID) == "" {
		return "", errors.New("auth: customer id is required")
	}
	return m.issue(KindCustomer, customerID, email)
}

// IssueGuestToken signs a token for an anonymous guest session.
func (m *SessionManager) IssueGuestToken(guestSessionID string) (string, error) {
	if strings.TrimSpace(guestSessionID) == "" {
		return "", errors.New("auth: guest session id is required")
	}
	return m.issue(KindGuest, guestSessionID, "")
}

func (m *SessionManager) issue(kind, subject, email string) (string, error) {
	now := m.clock()
	claims := sessionClaims{
		Kind:  kind,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token and returns the principal it
// carries.
func (m *SessionManager) Verify(tokenString string) (Principal, error) {
	claims := &sessionClaims{}
	// Time claims are checked against m.clock below; the parser only covers
	// signature and algorithm.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	now := m.clock()
	if claims.ExpiresAt == nil || !now.Before(claims.ExpiresAt.Time) {
		return Principal{}, ErrTokenExpired
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return Principal{}, fmt.Errorf("%w: token not yet valid", ErrTokenInvalid)
	}
	if claims.Issuer != sessionIssuer || claims.Subject == "" {
		return Principal{}, ErrTokenInvalid
	}

	switch claims.Kind {
	case KindCustomer:
		return Principal{CustomerID: claims.Subject, Email: claims.Email}, nil
	case KindGuest:
		return Principal{GuestSessionID: claims.Subject}, nil
	default:
		return Principal{}, fmt.Errorf("%w: unknown kind %q", ErrTokenInvalid, claims.Kind)
	}
}

type principalContextKey struct{}

// WithPrincipal stores the principal on the context for downstream handlers.
func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext retrieves the principal stored by the session
// middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(Principal)
	return principal, ok
}

// SessionMiddleware attaches the verified principal to the request context.
// Requests without a token pass through anonymously; expired or malformed
// tokens are rejected so a stale session surfaces instead of silently
// degrading to guest.
func (m *SessionManager) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := m.Verify(token)
		if err != nil {
			http.Error(w, "invalid session", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
