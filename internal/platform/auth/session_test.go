package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestSessionManager(t *testing.T, now time.Time) *SessionManager {
	t.Helper()
	m, err := NewSessionManager("topsecret", time.Hour, func() time.Time { return now })
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	return m
}

func TestCustomerTokenRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	m := newTestSessionManager(t, now)

	token, err := m.IssueCustomerToken("cust-1", "jonas@example.com")
	if err != nil {
		t.Fatalf("IssueCustomerToken: %v", err)
	}
	principal, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if principal.CustomerID != "cust-1" || principal.Email != "jonas@example.com" {
		t.Fatalf("principal = %+v", principal)
	}
	if principal.GuestSessionID != "" {
		t.Fatal("customer principal must not carry a guest session")
	}
}

func TestGuestTokenRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	m := newTestSessionManager(t, now)

	token, err := m.IssueGuestToken("guest-9")
	if err != nil {
		t.Fatalf("IssueGuestToken: %v", err)
	}
	principal, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if principal.GuestSessionID != "guest-9" || principal.CustomerID != "" {
		t.Fatalf("principal = %+v", principal)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	issued := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	issuer := newTestSessionManager(t, issued)
	token, err := issuer.IssueGuestToken("guest-9")
	if err != nil {
		t.Fatalf("IssueGuestToken: %v", err)
	}

	later := newTestSessionManager(t, issued.Add(2*time.Hour))
	if _, err := later.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Verify err = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyTokenNotYetValid(t *testing.T) {
	issued := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	issuer := newTestSessionManager(t, issued)
	token, err := issuer.IssueGuestToken("guest-9")
	if err != nil {
		t.Fatalf("IssueGuestToken: %v", err)
	}

	// Verifier clock runs behind the issuing clock, so nbf is in the future.
	earlier := newTestSessionManager(t, issued.Add(-time.Minute))
	if _, err := earlier.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("Verify err = %v, want ErrTokenInvalid", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	issuer := newTestSessionManager(t, now)
	token, err := issuer.IssueGuestToken("guest-9")
	if err != nil {
		t.Fatalf("IssueGuestToken: %v", err)
	}

	other, err := NewSessionManager("different", time.Hour, func() time.Time { return now })
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	if _, err := other.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("Verify err = %v, want ErrTokenInvalid", err)
	}
}

func TestSessionMiddleware(t *testing.T) {
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	m := newTestSessionManager(t, now)
	token, err := m.IssueCustomerToken("cust-1", "")
	if err != nil {
		t.Fatalf("IssueCustomerToken: %v", err)
	}

	var seen Principal
	var present bool
	handler := m.SessionMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, present = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("with token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rec.Code)
		}
		if !present || seen.CustomerID != "cust-1" {
			t.Fatalf("principal = %+v present=%v", seen, present)
		}
	})

	t.Run("anonymous passes through", func(t *testing.T) {
		present = false
		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rec.Code)
		}
		if present {
			t.Fatal("no principal expected without a token")
		}
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})
}
