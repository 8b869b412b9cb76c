package payments

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopnatural/core/internal/domain"
)

func newTestWebToPayGateway(t *testing.T) *WebToPayGateway {
	t.Helper()
	gw, err := NewWebToPayGateway(WebToPayGatewayConfig{
		ProjectID:     "12345",
		SignPassword:  "projectpassword",
		PublicBaseURL: "https://shop.example.com",
		TestMode:      true,
		Clock:         func() time.Time { return time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewWebToPayGateway: %v", err)
	}
	return gw
}

// callbackQuery builds a signed callback the way the provider would.
func callbackQuery(gw *WebToPayGateway, fields url.Values) url.Values {
	data := encodeWebToPayData(fields)
	out := url.Values{}
	out.Set("data", data)
	out.Set("ss1", gw.sign(data))
	return out
}

func TestCreateSessionBuildsSignedRedirect(t *testing.T) {
	gw := newTestWebToPayGateway(t)

	order := domain.Order{
		PaymentReference: "ref-1",
		Email:            "jonas@example.com",
		Currency:         "EUR",
		Totals:           domain.OrderTotals{Total: 8519},
	}
	session, err := gw.CreateSession(context.Background(), order)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if !strings.HasPrefix(session.RedirectURL, defaultWebToPayURL+"?data=") {
		t.Fatalf("RedirectURL = %s", session.RedirectURL)
	}

	parsed, err := url.Parse(session.RedirectURL)
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	data := parsed.Query().Get("data")
	if got := parsed.Query().Get("sign"); got != gw.sign(data) {
		t.Fatalf("sign = %s, want md5(data+password)", got)
	}

	fields, err := decodeWebToPayData(data)
	if err != nil {
		t.Fatalf("decode data: %v", err)
	}
	checks := map[string]string{
		"projectid":   "12345",
		"orderid":     "ref-1",
		"amount":      "8519",
		"currency":    "EUR",
		"test":        "1",
		"version":     "1.6",
		"callbackurl": "https://shop.example.com/webhooks/webtopay/callback",
	}
	for key, want := range checks {
		if got := fields.Get(key); got != want {
			t.Errorf("%s = %s, want %s", key, got, want)
		}
	}
	if !strings.Contains(fields.Get("accepturl"), "ref=ref-1") {
		t.Errorf("accepturl = %s", fields.Get("accepturl"))
	}
}

func TestParseCallbackSucceeded(t *testing.T) {
	gw := newTestWebToPayGateway(t)

	query := callbackQuery(gw, url.Values{
		"projectid":   {"12345"},
		"orderid":     {"ref-1"},
		"status":      {"1"},
		"requestid":   {"req-77"},
		"payamount":   {"8519"},
		"paycurrency": {"eur"},
	})
	event, err := gw.ParseCallback(query)
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	if event.Outcome != domain.PaymentOutcomeSucceeded {
		t.Errorf("Outcome = %s, want succeeded", event.Outcome)
	}
	if event.Gateway != "webtopay" || event.PaymentReference != "ref-1" || event.TransactionID != "req-77" {
		t.Errorf("event = %+v", event)
	}
	if event.Amount != 8519 || event.Currency != "EUR" {
		t.Errorf("amount/currency = %d/%s", event.Amount, event.Currency)
	}
}

func TestParseCallbackStatuses(t *testing.T) {
	gw := newTestWebToPayGateway(t)

	cases := []struct {
		status  string
		want    domain.PaymentOutcome
		wantErr bool
	}{
		{"1", domain.PaymentOutcomeSucceeded, false},
		{"2", domain.PaymentOutcomePending, false},
		{"3", domain.PaymentOutcomePending, false},
		{"0", domain.PaymentOutcomeFailed, false},
		{"9", "", true},
	}
	for _, tc := range cases {
		t.Run("status "+tc.status, func(t *testing.T) {
			query := callbackQuery(gw, url.Values{
				"projectid": {"12345"},
				"orderid":   {"ref-1"},
				"status":    {tc.status},
			})
			event, err := gw.ParseCallback(query)
			if tc.wantErr {
				if !errors.Is(err, ErrBadPayload) {
					t.Fatalf("err = %v, want ErrBadPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCallback: %v", err)
			}
			if event.Outcome != tc.want {
				t.Fatalf("Outcome = %s, want %s", event.Outcome, tc.want)
			}
		})
	}
}

func TestParseCallbackRejectsTamperedData(t *testing.T) {
	gw := newTestWebToPayGateway(t)

	query := callbackQuery(gw, url.Values{
		"projectid": {"12345"},
		"orderid":   {"ref-1"},
		"status":    {"1"},
		"payamount": {"8519"},
	})
	// Re-encode with a different amount but keep the old signature.
	tampered := encodeWebToPayData(url.Values{
		"projectid": {"12345"},
		"orderid":   {"ref-1"},
		"status":    {"1"},
		"payamount": {"1"},
	})
	query.Set("data", tampered)

	_, err := gw.ParseCallback(query)
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("ParseCallback err = %v, want ErrBadSignature", err)
	}
}

func TestParseCallbackRejectsForeignProject(t *testing.T) {
	gw := newTestWebToPayGateway(t)

	query := callbackQuery(gw, url.Values{
		"projectid": {"99999"},
		"orderid":   {"ref-1"},
		"status":    {"1"},
	})
	_, err := gw.ParseCallback(query)
	if !errors.Is(err, ErrBadPayload) {
		t.Fatalf("ParseCallback err = %v, want ErrBadPayload", err)
	}
}

func TestParseCallbackMissingFields(t *testing.T) {
	gw := newTestWebToPayGateway(t)

	_, err := gw.ParseCallback(url.Values{})
	if !errors.Is(err, ErrBadPayload) {
		t.Fatalf("ParseCallback err = %v, want ErrBadPayload", err)
	}
}
