package domain

import "time"

// PaymentOutcome enumerates the normalised payment results shared across
// gateways.
type PaymentOutcome string

const (
	PaymentOutcomeSucceeded PaymentOutcome = "succeeded"
	PaymentOutcomePending   PaymentOutcome = "pending"
	PaymentOutcomeFailed    PaymentOutcome = "failed"
	PaymentOutcomeRefunded  PaymentOutcome = "refunded"
)

// PaymentEvent is the canonical, gateway-agnostic representation of a payment
// notification. Adapters translate provider payloads into this envelope and
// nothing downstream ever sees the raw wire format.
type PaymentEvent struct {
	Gateway          string
	TransactionID    string
	PaymentReference string
	OrderNumber      string
	Outcome          PaymentOutcome
	Amount           int64
	Currency         string
	FailureReason    string
	OccurredAt       time.Time
	RawPayload       []byte
}

// OrderReference returns the most specific identifier present on the event,
// used to correlate the event with an order.
func (e PaymentEvent) OrderReference() string {
	if e.PaymentReference != "" {
		return e.PaymentReference
	}
	return e.OrderNumber
}
