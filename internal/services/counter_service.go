package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopnatural/core/internal/repositories"
)

// CounterServiceDeps bundles collaborators for the numbering service.
type CounterServiceDeps struct {
	Counters repositories.CounterRepository
	// Prefix is the brand prefix on public order numbers, e.g. "SN".
	Prefix string
	Clock  func() time.Time
}

type counterService struct {
	repo   repositories.CounterRepository
	prefix string
	clock  func() time.Time
}

// NewCounterService constructs a CounterService issuing order and invoice
// numbers from per-period sequences.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Counters == nil {
		return nil, errors.New("counter service: repository is required")
	}
	prefix := deps.Prefix
	if prefix == "" {
		prefix = "SN"
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &counterService{
		repo:   deps.Counters,
		prefix: prefix,
		clock:  func() time.Time { return clock().UTC() },
	}, nil
}

// NextOrderNumber issues a year-scoped public order number such as
// SN-2026-000042. Sequences restart every year via distinct counter ids.
func (s *counterService) NextOrderNumber(ctx context.Context) (string, error) {
	now := s.clock()
	seq, err := s.repo.Next(ctx, fmt.Sprintf("orders:%04d", now.Year()))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d-%06d", s.prefix, now.Year(), seq), nil
}

// NextInvoiceNumber issues a month-scoped invoice number such as
// INV-202608-000007.
func (s *counterService) NextInvoiceNumber(ctx context.Context) (string, error) {
	now := s.clock()
	period := fmt.Sprintf("%04d%02d", now.Year(), int(now.Month()))
	seq, err := s.repo.Next(ctx, "invoices:"+period)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%s-%06d", period, seq), nil
}
