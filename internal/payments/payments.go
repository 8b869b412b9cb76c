// Package payments holds the gateway adapters. Each adapter creates hosted
// payment sessions and translates the provider's webhook or callback payload
// into the canonical domain.PaymentEvent; raw provider formats never cross
// this package boundary.
package payments

import (
	"context"
	"errors"
)

// Logger defines the logging contract for gateway operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

var (
	// ErrBadSignature indicates the payload signature did not verify.
	// Handlers answer 400 so the gateway does not retry.
	ErrBadSignature = errors.New("payments: invalid signature")
	// ErrBadPayload indicates a payload that verified but could not be
	// decoded into a canonical event.
	ErrBadPayload = errors.New("payments: malformed payload")
)

func nopLogger(context.Context, string, map[string]any) {}
