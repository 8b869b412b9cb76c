package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopnatural/core/internal/domain"
	"github.com/shopnatural/core/internal/repositories"
)

// Each validation failure is its own sentinel so the shopper always sees the
// exact reason, never a generic rejection.
var (
	// ErrPromotionInvalidCode signals a missing or malformed code string.
	ErrPromotionInvalidCode = errors.New("promotion: invalid code")
	// ErrPromotionNotFound indicates no code matches.
	ErrPromotionNotFound = errors.New("promotion: code not found")
	// ErrPromotionInactive indicates the code exists but is switched off.
	ErrPromotionInactive = errors.New("promotion: code inactive")
	// ErrPromotionNotStarted indicates the validity window has not opened.
	ErrPromotionNotStarted = errors.New("promotion: code not yet active")
	// ErrPromotionExpired indicates the validity window has closed.
	ErrPromotionExpired = errors.New("promotion: code expired")
	// ErrPromotionBelowMinimum indicates the subtotal is under the code's
	// minimum order amount.
	ErrPromotionBelowMinimum = errors.New("promotion: order below minimum")
	// ErrPromotionExhausted indicates the global usage limit is spent.
	ErrPromotionExhausted = errors.New("promotion: usage limit reached")
	// ErrPromotionAlreadyUsed indicates the customer hit the per-user limit.
	ErrPromotionAlreadyUsed = errors.New("promotion: already used")
	// ErrPromotionInvalidInput signals bad admin input.
	ErrPromotionInvalidInput = errors.New("promotion: invalid input")
)

// PromotionServiceDeps bundles dependencies required to construct a PromotionService.
type PromotionServiceDeps struct {
	Promotions    repositories.PromotionRepository
	IDs           func() string
	MaxPercentage decimal.Decimal
	Clock         func() time.Time
}

type promotionService struct {
	repo    repositories.PromotionRepository
	ids     func() string
	maxRate decimal.Decimal
	clock   func() time.Time
}

// NewPromotionService wires a PromotionService backed by the provided repository.
func NewPromotionService(deps PromotionServiceDeps) (PromotionService, error) {
	if deps.Promotions == nil {
		return nil, errors.New("promotion service: repository is required")
	}
	if deps.IDs == nil {
		return nil, errors.New("promotion service: id generator is required")
	}
	maxRate := deps.MaxPercentage
	if maxRate.IsZero() {
		maxRate = oneHundred
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &promotionService{
		repo:    deps.Promotions,
		ids:     deps.IDs,
		maxRate: maxRate,
		clock:   func() time.Time { return clock().UTC() },
	}, nil
}

// Validate runs the eligibility checks in a fixed order, short-circuiting on
// the first failure: existence, active flag, window, minimum, global limit,
// per-user limit. The returned grant carries the limits the usage ledger
// re-checks atomically at reservation time.
func (s *promotionService) Validate(ctx context.Context, cmd ValidatePromotionCommand) (PromotionGrant, error) {
	normalized := strings.ToUpper(strings.TrimSpace(cmd.Code))
	if normalized == "" {
		return PromotionGrant{}, ErrPromotionInvalidCode
	}

	code, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return PromotionGrant{}, ErrPromotionNotFound
		}
		return PromotionGrant{}, err
	}

	now := s.clock()
	if !code.IsActive {
		return PromotionGrant{}, ErrPromotionInactive
	}
	if code.StartsAt != nil && now.Before(*code.StartsAt) {
		return PromotionGrant{}, ErrPromotionNotStarted
	}
	if code.EndsAt != nil && now.After(*code.EndsAt) {
		return PromotionGrant{}, ErrPromotionExpired
	}
	if code.MinOrderAmount > 0 && cmd.Subtotal < code.MinOrderAmount {
		return PromotionGrant{}, ErrPromotionBelowMinimum
	}
	if code.UsageLimit > 0 && code.TimesUsed >= code.UsageLimit {
		return PromotionGrant{}, ErrPromotionExhausted
	}
	if code.PerUserLimit > 0 && cmd.CustomerID != "" {
		used, err := s.repo.CountUsageForCustomer(ctx, code.ID, cmd.CustomerID)
		if err != nil {
			return PromotionGrant{}, err
		}
		if used >= code.PerUserLimit {
			return PromotionGrant{}, ErrPromotionAlreadyUsed
		}
	}

	discount := promotionDiscount(code, cmd.Subtotal)
	return PromotionGrant{
		CodeID:       code.ID,
		Code:         code.Code,
		Discount:     discount,
		UsageLimit:   code.UsageLimit,
		PerUserLimit: code.PerUserLimit,
	}, nil
}

func (s *promotionService) CreateCode(ctx context.Context, cmd UpsertPromotionCommand) (domain.PromotionCode, error) {
	code, err := s.codeFromCommand(cmd)
	if err != nil {
		return domain.PromotionCode{}, err
	}
	code.ID = cmd.ID
	if code.ID == "" {
		code.ID = s.ids()
	}
	return s.repo.Insert(ctx, code)
}

func (s *promotionService) UpdateCode(ctx context.Context, cmd UpsertPromotionCommand) (domain.PromotionCode, error) {
	if strings.TrimSpace(cmd.ID) == "" {
		return domain.PromotionCode{}, fmt.Errorf("%w: id is required", ErrPromotionInvalidInput)
	}
	existing, err := s.repo.Get(ctx, cmd.ID)
	if err != nil {
		return domain.PromotionCode{}, mapPromotionRepoError(err)
	}
	code, err := s.codeFromCommand(cmd)
	if err != nil {
		return domain.PromotionCode{}, err
	}
	code.ID = existing.ID
	code.TimesUsed = existing.TimesUsed
	code.CreatedAt = existing.CreatedAt
	return s.repo.Update(ctx, code)
}

func (s *promotionService) GetCode(ctx context.Context, codeID string) (domain.PromotionCode, error) {
	code, err := s.repo.Get(ctx, codeID)
	if err != nil {
		return domain.PromotionCode{}, mapPromotionRepoError(err)
	}
	return code, nil
}

func (s *promotionService) ListCodes(ctx context.Context) ([]domain.PromotionCode, error) {
	return s.repo.List(ctx)
}

// promotionDiscount computes the granted amount in minor units: percentage of
// the subtotal (half-up) or the fixed value, capped by MaxDiscountAmount and
// never exceeding the subtotal itself.
func promotionDiscount(code domain.PromotionCode, subtotal int64) int64 {
	var amount int64
	switch code.Type {
	case domain.DiscountTypePercentage:
		amount = decimal.NewFromInt(subtotal).
			Mul(code.Value).
			Div(oneHundred).
			Round(0).
			IntPart()
	case domain.DiscountTypeFixed:
		// Fixed values are expressed in major units.
		amount = code.Value.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	}
	if code.MaxDiscountAmount > 0 && amount > code.MaxDiscountAmount {
		amount = code.MaxDiscountAmount
	}
	if amount > subtotal {
		amount = subtotal
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}

func (s *promotionService) codeFromCommand(cmd UpsertPromotionCommand) (domain.PromotionCode, error) {
	code := strings.ToUpper(strings.TrimSpace(cmd.Code))
	if code == "" {
		return domain.PromotionCode{}, fmt.Errorf("%w: code is required", ErrPromotionInvalidInput)
	}
	switch cmd.Type {
	case domain.DiscountTypePercentage, domain.DiscountTypeFixed:
	default:
		return domain.PromotionCode{}, fmt.Errorf("%w: unknown type %q", ErrPromotionInvalidInput, cmd.Type)
	}
	if cmd.Value.IsNegative() || cmd.Value.IsZero() {
		return domain.PromotionCode{}, fmt.Errorf("%w: value must be positive", ErrPromotionInvalidInput)
	}
	if cmd.Type == domain.DiscountTypePercentage && cmd.Value.GreaterThan(s.maxRate) {
		return domain.PromotionCode{}, fmt.Errorf("%w: %s%% > %s%%", ErrDiscountValueTooHigh, cmd.Value, s.maxRate)
	}
	if cmd.MinOrderAmount < 0 || cmd.MaxDiscountAmount < 0 || cmd.UsageLimit < 0 || cmd.PerUserLimit < 0 {
		return domain.PromotionCode{}, fmt.Errorf("%w: limits must not be negative", ErrPromotionInvalidInput)
	}
	if cmd.StartsAt != nil && cmd.EndsAt != nil && cmd.EndsAt.Before(*cmd.StartsAt) {
		return domain.PromotionCode{}, fmt.Errorf("%w: window ends before it starts", ErrPromotionInvalidInput)
	}
	return domain.PromotionCode{
		Code:              code,
		Type:              cmd.Type,
		Value:             cmd.Value,
		MinOrderAmount:    cmd.MinOrderAmount,
		MaxDiscountAmount: cmd.MaxDiscountAmount,
		UsageLimit:        cmd.UsageLimit,
		PerUserLimit:      cmd.PerUserLimit,
		IsActive:          cmd.IsActive,
		StartsAt:          cmd.StartsAt,
		EndsAt:            cmd.EndsAt,
	}, nil
}

func mapPromotionRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrPromotionNotFound
	}
	return err
}
