package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopnatural/core/internal/repositories"
)

// SweepServiceDeps bundles collaborators for the draft sweep.
type SweepServiceDeps struct {
	Orders    repositories.OrderRepository
	DraftTTL  time.Duration
	BatchSize int
	Clock     func() time.Time
	Logger    func(context.Context, string, map[string]any)
}

type sweepService struct {
	orders    repositories.OrderRepository
	draftTTL  time.Duration
	batchSize int
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewSweepService wires the periodic job that cancels abandoned drafts and
// returns their promotion reservations to the pool.
func NewSweepService(deps SweepServiceDeps) (SweepService, error) {
	if deps.Orders == nil {
		return nil, errors.New("sweep service: order repository is required")
	}
	if deps.DraftTTL <= 0 {
		return nil, errors.New("sweep service: draft TTL must be positive")
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = 100
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &sweepService{
		orders:    deps.Orders,
		draftTTL:  deps.DraftTTL,
		batchSize: batch,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

// SweepExpiredDrafts cancels one batch of drafts older than the TTL and
// reports how many were expired. Each draft is expired in its own transaction
// which re-checks the status, so a payment landing mid-sweep wins the race.
func (s *sweepService) SweepExpiredDrafts(ctx context.Context) (int, error) {
	now := s.clock()
	cutoff := now.Add(-s.draftTTL)
	drafts, err := s.orders.ListExpiredDrafts(ctx, cutoff, s.batchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, draft := range drafts {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		done, err := s.orders.ExpireDraft(ctx, draft.ID, now)
		if err != nil {
			s.logger(ctx, "sweep.expire_failed", map[string]any{"order_id": draft.ID, "error": err.Error()})
			continue
		}
		if done {
			expired++
		}
	}
	if expired > 0 {
		s.logger(ctx, "sweep.completed", map[string]any{"expired": expired, "cutoff": cutoff.Format(time.RFC3339)})
	}
	return expired, nil
}
