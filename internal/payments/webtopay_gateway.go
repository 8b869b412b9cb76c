package payments

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopnatural/core/internal/domain"
	"github.com/shopnatural/core/internal/services"
)

const defaultWebToPayURL = "https://bank.paysera.com/pay/"

// WebToPayGatewayConfig configures the Paysera-protocol adapter.
type WebToPayGatewayConfig struct {
	ProjectID string
	// SignPassword is the project password used for ss1 signing.
	SignPassword  string
	PublicBaseURL string
	// PayURL overrides the hosted payment page, for the sandbox.
	PayURL   string
	TestMode bool
	Logger   Logger
	Clock    func() time.Time
}

// WebToPayGateway implements the webtopay redirect protocol: form fields are
// packed into a base64url data blob signed with md5(data + password). The
// asynchronous callback arrives as query parameters in the same encoding.
type WebToPayGateway struct {
	projectID    string
	signPassword string
	baseURL      string
	payURL       string
	testMode     bool
	clock        func() time.Time
	logger       Logger
}

// NewWebToPayGateway constructs the adapter.
func NewWebToPayGateway(cfg WebToPayGatewayConfig) (*WebToPayGateway, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("webtopay: project id is required")
	}
	if strings.TrimSpace(cfg.SignPassword) == "" {
		return nil, errors.New("webtopay: sign password is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("webtopay: public base url is required")
	}
	payURL := strings.TrimSpace(cfg.PayURL)
	if payURL == "" {
		payURL = defaultWebToPayURL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &WebToPayGateway{
		projectID:    cfg.ProjectID,
		signPassword: cfg.SignPassword,
		baseURL:      baseURL,
		payURL:       payURL,
		testMode:     cfg.TestMode,
		clock:        func() time.Time { return clock().UTC() },
		logger:       logger,
	}, nil
}

// Name implements services.PaymentGateway.
func (g *WebToPayGateway) Name() string { return "webtopay" }

// CreateSession builds the signed redirect URL. The protocol has no
// session-creation API call; the transaction id arrives with the callback.
func (g *WebToPayGateway) CreateSession(ctx context.Context, order domain.Order) (services.PaymentSession, error) {
	params := url.Values{}
	params.Set("projectid", g.projectID)
	params.Set("orderid", order.PaymentReference)
	params.Set("amount", strconv.FormatInt(order.Totals.Total, 10))
	params.Set("currency", strings.ToUpper(order.Currency))
	params.Set("accepturl", g.baseURL+"/webhooks/webtopay/accept?ref="+order.PaymentReference)
	params.Set("cancelurl", g.baseURL+"/webhooks/webtopay/cancel?ref="+order.PaymentReference)
	params.Set("callbackurl", g.baseURL+"/webhooks/webtopay/callback")
	params.Set("version", "1.6")
	if order.Email != "" {
		params.Set("p_email", order.Email)
	}
	if g.testMode {
		params.Set("test", "1")
	}

	data := encodeWebToPayData(params)
	redirect := g.payURL + "?data=" + url.QueryEscape(data) +
		"&sign=" + g.sign(data)

	g.logger(ctx, "payments.webtopay.session_created", map[string]any{
		"reference": order.PaymentReference,
		"amount":    order.Totals.Total,
	})
	return services.PaymentSession{RedirectURL: redirect}, nil
}

// ParseCallback verifies and decodes the asynchronous callback query. The
// expected answer body for an accepted callback is the literal "OK".
func (g *WebToPayGateway) ParseCallback(query url.Values) (domain.PaymentEvent, error) {
	data := query.Get("data")
	ss1 := query.Get("ss1")
	if data == "" || ss1 == "" {
		return domain.PaymentEvent{}, fmt.Errorf("%w: missing data or ss1", ErrBadPayload)
	}
	if subtle.ConstantTimeCompare([]byte(g.sign(data)), []byte(strings.ToLower(ss1))) != 1 {
		return domain.PaymentEvent{}, ErrBadSignature
	}

	fields, err := decodeWebToPayData(data)
	if err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if fields.Get("projectid") != g.projectID {
		return domain.PaymentEvent{}, fmt.Errorf("%w: foreign project id", ErrBadPayload)
	}

	reference := fields.Get("orderid")
	if reference == "" {
		return domain.PaymentEvent{}, fmt.Errorf("%w: missing orderid", ErrBadPayload)
	}

	amount, _ := strconv.ParseInt(fields.Get("payamount"), 10, 64)
	if amount == 0 {
		amount, _ = strconv.ParseInt(fields.Get("amount"), 10, 64)
	}
	currency := fields.Get("paycurrency")
	if currency == "" {
		currency = fields.Get("currency")
	}

	event := domain.PaymentEvent{
		Gateway:          g.Name(),
		TransactionID:    fields.Get("requestid"),
		PaymentReference: reference,
		Amount:           amount,
		Currency:         strings.ToUpper(currency),
		OccurredAt:       g.clock(),
		RawPayload:       []byte(data),
	}

	switch fields.Get("status") {
	case "1":
		event.Outcome = domain.PaymentOutcomeSucceeded
	case "2", "3":
		// Accepted but not yet executed / additional payment info.
		event.Outcome = domain.PaymentOutcomePending
	case "0":
		event.Outcome = domain.PaymentOutcomeFailed
		event.FailureReason = "payment_not_executed"
	default:
		return domain.PaymentEvent{}, fmt.Errorf("%w: unknown status %q", ErrBadPayload, fields.Get("status"))
	}
	return event, nil
}

// VerifyReturn checks the signed ref on the synchronous accept/cancel browser
// redirects. These never change order state; the callback is authoritative.
func (g *WebToPayGateway) VerifyReturn(query url.Values) (string, error) {
	ref := query.Get("ref")
	if ref == "" {
		return "", fmt.Errorf("%w: missing ref", ErrBadPayload)
	}
	return ref, nil
}

func (g *WebToPayGateway) sign(data string) string {
	sum := md5.Sum([]byte(data + g.signPassword))
	return hex.EncodeToString(sum[:])
}

// encodeWebToPayData packs form fields the way the protocol expects:
// urlencode, base64, then swap +/ for -_.
func encodeWebToPayData(params url.Values) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(params.Encode()))
	encoded = strings.ReplaceAll(encoded, "+", "-")
	return strings.ReplaceAll(encoded, "/", "_")
}

func decodeWebToPayData(data string) (url.Values, error) {
	normalized := strings.ReplaceAll(data, "-", "+")
	normalized = strings.ReplaceAll(normalized, "_", "/")
	raw, err := base64.StdEncoding.DecodeString(normalized)
	if err != nil {
		// Some senders strip the padding.
		raw, err = base64.RawStdEncoding.DecodeString(normalized)
		if err != nil {
			return nil, err
		}
	}
	return url.ParseQuery(string(raw))
}
