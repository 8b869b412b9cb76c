package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/shopnatural/core/internal/domain"
	"github.com/shopnatural/core/internal/repositories"
)

var (
	// ErrDiscountInvalidInput signals bad admin input such as a missing name
	// or an unknown scope.
	ErrDiscountInvalidInput = errors.New("discount: invalid input")
	// ErrDiscountValueTooHigh signals a percentage above 100%, rejected at
	// creation time so no order ever applies more than a full markdown.
	ErrDiscountValueTooHigh = errors.New("discount: percentage exceeds maximum")
	// ErrDiscountNotFound indicates the campaign does not exist.
	ErrDiscountNotFound = errors.New("discount: not found")
)

var oneHundred = decimal.NewFromInt(100)

// DiscountServiceDeps bundles dependencies required to construct a DiscountService.
type DiscountServiceDeps struct {
	Discounts repositories.DiscountRepository
	IDs       func() string
	// MaxPercentage caps percentage campaigns; defaults to 100.
	MaxPercentage decimal.Decimal
	// CacheTTL bounds staleness of the active-discount snapshot used by the
	// resolver. Mutations invalidate the cache immediately.
	CacheTTL time.Duration
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

type discountService struct {
	repo    repositories.DiscountRepository
	ids     func() string
	maxRate decimal.Decimal
	clock   func() time.Time
	logger  func(context.Context, string, map[string]any)

	cacheTTL time.Duration
	cacheMu  sync.Mutex
	cached   []domain.CatalogDiscount
	cachedAt time.Time
	refresh  singleflight.Group
}

// NewDiscountService wires a DiscountService backed by the provided repository.
func NewDiscountService(deps DiscountServiceDeps) (DiscountService, error) {
	if deps.Discounts == nil {
		return nil, errors.New("discount service: repository is required")
	}
	if deps.IDs == nil {
		return nil, errors.New("discount service: id generator is required")
	}
	maxRate := deps.MaxPercentage
	if maxRate.IsZero() {
		maxRate = oneHundred
	}
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &discountService{
		repo:     deps.Discounts,
		ids:      deps.IDs,
		maxRate:  maxRate,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
		cacheTTL: ttl,
	}, nil
}

func (s *discountService) CreateDiscount(ctx context.Context, cmd UpsertDiscountCommand) (domain.CatalogDiscount, error) {
	discount, err := s.discountFromCommand(cmd)
	if err != nil {
		return domain.CatalogDiscount{}, err
	}
	discount.ID = cmd.ID
	if discount.ID == "" {
		discount.ID = s.ids()
	}
	created, err := s.repo.Insert(ctx, discount)
	if err != nil {
		return domain.CatalogDiscount{}, err
	}
	s.invalidate()
	s.logger(ctx, "discount.created", map[string]any{"discount_id": created.ID, "scope": string(created.Scope)})
	return created, nil
}

func (s *discountService) UpdateDiscount(ctx context.Context, cmd UpsertDiscountCommand) (domain.CatalogDiscount, error) {
	if strings.TrimSpace(cmd.ID) == "" {
		return domain.CatalogDiscount{}, fmt.Errorf("%w: id is required", ErrDiscountInvalidInput)
	}
	existing, err := s.repo.Get(ctx, cmd.ID)
	if err != nil {
		return domain.CatalogDiscount{}, mapDiscountRepoError(err)
	}
	discount, err := s.discountFromCommand(cmd)
	if err != nil {
		return domain.CatalogDiscount{}, err
	}
	discount.ID = existing.ID
	discount.CreatedAt = existing.CreatedAt
	updated, err := s.repo.Update(ctx, discount)
	if err != nil {
		return domain.CatalogDiscount{}, err
	}
	s.invalidate()
	s.logger(ctx, "discount.updated", map[string]any{"discount_id": updated.ID})
	return updated, nil
}

func (s *discountService) DeleteDiscount(ctx context.Context, discountID string) error {
	if strings.TrimSpace(discountID) == "" {
		return fmt.Errorf("%w: id is required", ErrDiscountInvalidInput)
	}
	if err := s.repo.Delete(ctx, discountID); err != nil {
		return mapDiscountRepoError(err)
	}
	s.invalidate()
	s.logger(ctx, "discount.deleted", map[string]any{"discount_id": discountID})
	return nil
}

func (s *discountService) GetDiscount(ctx context.Context, discountID string) (domain.CatalogDiscount, error) {
	discount, err := s.repo.Get(ctx, discountID)
	if err != nil {
		return domain.CatalogDiscount{}, mapDiscountRepoError(err)
	}
	return discount, nil
}

func (s *discountService) ListDiscounts(ctx context.Context) ([]domain.CatalogDiscount, error) {
	return s.repo.List(ctx)
}

// ResolveBest filters active discounts whose window contains the timestamp
// and whose scope matches, then picks the highest priority. Ties fall to the
// most recently created campaign.
func (s *discountService) ResolveBest(ctx context.Context, ref domain.CatalogRef, at time.Time) (domain.CatalogDiscount, bool, error) {
	discounts, err := s.activeDiscounts(ctx)
	if err != nil {
		return domain.CatalogDiscount{}, false, err
	}

	var matches []domain.CatalogDiscount
	for _, discount := range discounts {
		if !discount.ActiveAt(at) {
			continue
		}
		if !discount.Matches(ref) {
			continue
		}
		matches = append(matches, discount)
	}
	if len(matches) == 0 {
		return domain.CatalogDiscount{}, false, nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority > matches[j].Priority
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches[0], true, nil
}

func (s *discountService) activeDiscounts(ctx context.Context) ([]domain.CatalogDiscount, error) {
	now := s.clock()

	s.cacheMu.Lock()
	if s.cached != nil && now.Sub(s.cachedAt) < s.cacheTTL {
		cached := s.cached
		s.cacheMu.Unlock()
		return cached, nil
	}
	s.cacheMu.Unlock()

	// Concurrent cache misses collapse into one repository read.
	result, err, _ := s.refresh.Do("active", func() (any, error) {
		discounts, err := s.repo.ListActive(ctx)
		if err != nil {
			return nil, err
		}
		s.cacheMu.Lock()
		s.cached = discounts
		s.cachedAt = now
		s.cacheMu.Unlock()
		return discounts, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.CatalogDiscount), nil
}

func (s *discountService) invalidate() {
	s.cacheMu.Lock()
	s.cached = nil
	s.cacheMu.Unlock()
}

func (s *discountService) discountFromCommand(cmd UpsertDiscountCommand) (domain.CatalogDiscount, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return domain.CatalogDiscount{}, fmt.Errorf("%w: name is required", ErrDiscountInvalidInput)
	}
	switch cmd.Type {
	case domain.DiscountTypePercentage, domain.DiscountTypeFixed:
	default:
		return domain.CatalogDiscount{}, fmt.Errorf("%w: unknown type %q", ErrDiscountInvalidInput, cmd.Type)
	}
	if cmd.Value.IsNegative() || cmd.Value.IsZero() {
		return domain.CatalogDiscount{}, fmt.Errorf("%w: value must be positive", ErrDiscountInvalidInput)
	}
	if cmd.Type == domain.DiscountTypePercentage && cmd.Value.GreaterThan(s.maxRate) {
		return domain.CatalogDiscount{}, fmt.Errorf("%w: %s%% > %s%%", ErrDiscountValueTooHigh, cmd.Value, s.maxRate)
	}
	switch cmd.Scope {
	case domain.DiscountScopeAll:
	case domain.DiscountScopeCategories, domain.DiscountScopeBrands, domain.DiscountScopeProducts:
		if len(cmd.ScopeIDs) == 0 {
			return domain.CatalogDiscount{}, fmt.Errorf("%w: scope %s requires ids", ErrDiscountInvalidInput, cmd.Scope)
		}
	default:
		return domain.CatalogDiscount{}, fmt.Errorf("%w: unknown scope %q", ErrDiscountInvalidInput, cmd.Scope)
	}
	if cmd.StartsAt != nil && cmd.EndsAt != nil && cmd.EndsAt.Before(*cmd.StartsAt) {
		return domain.CatalogDiscount{}, fmt.Errorf("%w: window ends before it starts", ErrDiscountInvalidInput)
	}
	return domain.CatalogDiscount{
		Name:     name,
		Type:     cmd.Type,
		Value:    cmd.Value,
		Scope:    cmd.Scope,
		ScopeIDs: cmd.ScopeIDs,
		Priority: cmd.Priority,
		IsActive: cmd.IsActive,
		StartsAt: cmd.StartsAt,
		EndsAt:   cmd.EndsAt,
	}, nil
}

func mapDiscountRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrDiscountNotFound
	}
	return err
}
