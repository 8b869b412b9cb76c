package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopnatural/core/internal/domain"
)

func newTestDiscountService(t *testing.T, repo *stubDiscountRepo, now time.Time) DiscountService {
	t.Helper()
	svc, err := NewDiscountService(DiscountServiceDeps{
		Discounts: repo,
		IDs:       seqIDs(),
		Clock:     fixedClock(now),
	})
	if err != nil {
		t.Fatalf("NewDiscountService: %v", err)
	}
	return svc
}

func TestCreateDiscountValidation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestDiscountService(t, newStubDiscountRepo(), now)

	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	cases := []struct {
		name    string
		cmd     UpsertDiscountCommand
		wantErr error
	}{
		{
			name: "missing name",
			cmd: UpsertDiscountCommand{
				Type:  domain.DiscountTypePercentage,
				Value: decimal.NewFromInt(10),
				Scope: domain.DiscountScopeAll,
			},
			wantErr: ErrDiscountInvalidInput,
		},
		{
			name: "zero value",
			cmd: UpsertDiscountCommand{
				Name:  "Spring",
				Type:  domain.DiscountTypePercentage,
				Value: decimal.Zero,
				Scope: domain.DiscountScopeAll,
			},
			wantErr: ErrDiscountInvalidInput,
		},
		{
			name: "percentage above maximum",
			cmd: UpsertDiscountCommand{
				Name:  "Toogood",
				Type:  domain.DiscountTypePercentage,
				Value: decimal.NewFromInt(120),
				Scope: domain.DiscountScopeAll,
			},
			wantErr: ErrDiscountValueTooHigh,
		},
		{
			name: "scoped without ids",
			cmd: UpsertDiscountCommand{
				Name:  "Brands",
				Type:  domain.DiscountTypePercentage,
				Value: decimal.NewFromInt(10),
				Scope: domain.DiscountScopeBrands,
			},
			wantErr: ErrDiscountInvalidInput,
		},
		{
			name: "window ends before it starts",
			cmd: UpsertDiscountCommand{
				Name:     "Backwards",
				Type:     domain.DiscountTypePercentage,
				Value:    decimal.NewFromInt(10),
				Scope:    domain.DiscountScopeAll,
				StartsAt: &later,
				EndsAt:   &earlier,
			},
			wantErr: ErrDiscountInvalidInput,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateDiscount(context.Background(), tc.cmd)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("CreateDiscount err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestCreateDiscountAssignsID(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubDiscountRepo()
	svc := newTestDiscountService(t, repo, now)

	created, err := svc.CreateDiscount(context.Background(), UpsertDiscountCommand{
		Name:     "Spring sale",
		Type:     domain.DiscountTypePercentage,
		Value:    decimal.NewFromInt(10),
		Scope:    domain.DiscountScopeAll,
		IsActive: true,
	})
	if err != nil {
		t.Fatalf("CreateDiscount: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected an assigned id")
	}
	if _, ok := repo.discounts[created.ID]; !ok {
		t.Fatal("discount not persisted")
	}
}

func TestResolveBestPicksHighestPriority(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubDiscountRepo()
	repo.active = []domain.CatalogDiscount{
		{
			ID: "low", Type: domain.DiscountTypePercentage, Value: decimal.NewFromInt(5),
			Scope: domain.DiscountScopeAll, Priority: 1, IsActive: true,
		},
		{
			ID: "high", Type: domain.DiscountTypePercentage, Value: decimal.NewFromInt(20),
			Scope: domain.DiscountScopeBrands, ScopeIDs: []string{"brand-1"}, Priority: 5, IsActive: true,
		},
		{
			ID: "off", Type: domain.DiscountTypePercentage, Value: decimal.NewFromInt(50),
			Scope: domain.DiscountScopeAll, Priority: 10, IsActive: false,
		},
	}
	svc := newTestDiscountService(t, repo, now)

	ref := domain.CatalogRef{ProductID: "p1", BrandIDs: []string{"brand-1"}}
	best, ok, err := svc.ResolveBest(context.Background(), ref, now)
	if err != nil {
		t.Fatalf("ResolveBest: %v", err)
	}
	if !ok {
		t.Fatal("expected a match")
	}
	if best.ID != "high" {
		t.Fatalf("best.ID = %s, want the priority-5 brand discount", best.ID)
	}
}

func TestResolveBestHonoursWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	ended := now.Add(-time.Hour)
	repo := newStubDiscountRepo()
	repo.active = []domain.CatalogDiscount{
		{
			ID: "expired", Type: domain.DiscountTypePercentage, Value: decimal.NewFromInt(30),
			Scope: domain.DiscountScopeAll, IsActive: true, StartsAt: &past, EndsAt: &ended,
		},
	}
	svc := newTestDiscountService(t, repo, now)

	_, ok, err := svc.ResolveBest(context.Background(), domain.CatalogRef{ProductID: "p1"}, now)
	if err != nil {
		t.Fatalf("ResolveBest: %v", err)
	}
	if ok {
		t.Fatal("expired discount must not match")
	}
}

func TestResolveBestCachesActiveList(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubDiscountRepo()
	svc := newTestDiscountService(t, repo, now)

	ref := domain.CatalogRef{ProductID: "p1"}
	for i := 0; i < 3; i++ {
		if _, _, err := svc.ResolveBest(context.Background(), ref, now); err != nil {
			t.Fatalf("ResolveBest: %v", err)
		}
	}
	if repo.listActive != 1 {
		t.Fatalf("ListActive calls = %d, want 1 (cached)", repo.listActive)
	}

	if _, err := svc.CreateDiscount(context.Background(), UpsertDiscountCommand{
		Name: "New", Type: domain.DiscountTypeFixed, Value: decimal.NewFromInt(5),
		Scope: domain.DiscountScopeAll, IsActive: true,
	}); err != nil {
		t.Fatalf("CreateDiscount: %v", err)
	}
	if _, _, err := svc.ResolveBest(context.Background(), ref, now); err != nil {
		t.Fatalf("ResolveBest: %v", err)
	}
	if repo.listActive != 2 {
		t.Fatalf("ListActive calls = %d, want 2 (cache invalidated by create)", repo.listActive)
	}
}

func TestGetDiscountNotFound(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestDiscountService(t, newStubDiscountRepo(), now)

	_, err := svc.GetDiscount(context.Background(), "missing")
	if !errors.Is(err, ErrDiscountNotFound) {
		t.Fatalf("GetDiscount err = %v, want ErrDiscountNotFound", err)
	}
}
