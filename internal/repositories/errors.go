package repositories

import "errors"

var (
	// ErrPromotionExhausted indicates the code's global redemption limit was
	// reached while reserving a usage.
	ErrPromotionExhausted = errors.New("promotion repository: redemption limit reached")
	// ErrPromotionPerUserExceeded indicates the customer already holds the
	// maximum number of redemptions for the code.
	ErrPromotionPerUserExceeded = errors.New("promotion repository: per-customer limit reached")
	// ErrOrderNumberTaken indicates a uniqueness clash while assigning an
	// order number inside a transaction.
	ErrOrderNumberTaken = errors.New("order repository: order number already assigned")
)
