package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopnatural/core/internal/domain"
)

func newTestPromotionService(t *testing.T, repo *stubPromotionRepo, now time.Time) PromotionService {
	t.Helper()
	svc, err := NewPromotionService(PromotionServiceDeps{
		Promotions: repo,
		IDs:        seqIDs(),
		Clock:      fixedClock(now),
	})
	if err != nil {
		t.Fatalf("NewPromotionService: %v", err)
	}
	return svc
}

func TestValidatePromotionFailureModes(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)
	longPast := now.Add(-48 * time.Hour)

	repo := newStubPromotionRepo()
	repo.add(domain.PromotionCode{
		ID: "c-inactive", Code: "OFFLINE", Type: domain.DiscountTypePercentage,
		Value: decimal.NewFromInt(10), IsActive: false,
	})
	repo.add(domain.PromotionCode{
		ID: "c-early", Code: "SOON", Type: domain.DiscountTypePercentage,
		Value: decimal.NewFromInt(10), IsActive: true, StartsAt: &future,
	})
	repo.add(domain.PromotionCode{
		ID: "c-late", Code: "GONE", Type: domain.DiscountTypePercentage,
		Value: decimal.NewFromInt(10), IsActive: true, StartsAt: &longPast, EndsAt: &past,
	})
	repo.add(domain.PromotionCode{
		ID: "c-min", Code: "BIGCART", Type: domain.DiscountTypePercentage,
		Value: decimal.NewFromInt(10), IsActive: true, MinOrderAmount: 5000,
	})
	repo.add(domain.PromotionCode{
		ID: "c-spent", Code: "POPULAR", Type: domain.DiscountTypePercentage,
		Value: decimal.NewFromInt(10), IsActive: true, UsageLimit: 100, TimesUsed: 100,
	})
	repo.add(domain.PromotionCode{
		ID: "c-once", Code: "ONEPER", Type: domain.DiscountTypePercentage,
		Value: decimal.NewFromInt(10), IsActive: true, PerUserLimit: 1,
	})
	repo.usageCount["c-once/cust-1"] = 1

	svc := newTestPromotionService(t, repo, now)

	cases := []struct {
		name    string
		cmd     ValidatePromotionCommand
		wantErr error
	}{
		{"empty code", ValidatePromotionCommand{Code: "  ", Subtotal: 1000}, ErrPromotionInvalidCode},
		{"unknown code", ValidatePromotionCommand{Code: "NOPE", Subtotal: 1000}, ErrPromotionNotFound},
		{"inactive", ValidatePromotionCommand{Code: "OFFLINE", Subtotal: 1000}, ErrPromotionInactive},
		{"not started", ValidatePromotionCommand{Code: "SOON", Subtotal: 1000}, ErrPromotionNotStarted},
		{"expired", ValidatePromotionCommand{Code: "GONE", Subtotal: 1000}, ErrPromotionExpired},
		{"below minimum", ValidatePromotionCommand{Code: "BIGCART", Subtotal: 4999}, ErrPromotionBelowMinimum},
		{"globally exhausted", ValidatePromotionCommand{Code: "POPULAR", Subtotal: 1000}, ErrPromotionExhausted},
		{"per-user exhausted", ValidatePromotionCommand{Code: "ONEPER", Subtotal: 1000, CustomerID: "cust-1"}, ErrPromotionAlreadyUsed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Validate(context.Background(), tc.cmd)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Validate err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidatePromotionNormalisesCode(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	repo := newStubPromotionRepo()
	repo.add(domain.PromotionCode{
		ID: "c-1", Code: "SUMMER12", Type: domain.DiscountTypePercentage,
		Value: decimal.NewFromInt(12), IsActive: true,
	})
	svc := newTestPromotionService(t, repo, now)

	grant, err := svc.Validate(context.Background(), ValidatePromotionCommand{
		Code:     "  summer12 ",
		Subtotal: 9000,
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if grant.Code != "SUMMER12" {
		t.Fatalf("grant.Code = %s, want SUMMER12", grant.Code)
	}
	if grant.Discount != 1080 {
		t.Fatalf("grant.Discount = %d, want 1080 (12%% of 9000)", grant.Discount)
	}
}

func TestPromotionDiscountAmounts(t *testing.T) {
	cases := []struct {
		name     string
		code     domain.PromotionCode
		subtotal int64
		want     int64
	}{
		{
			name: "percentage rounds half up",
			code: domain.PromotionCode{
				Type: domain.DiscountTypePercentage, Value: decimal.NewFromInt(15),
			},
			subtotal: 999, // 149.85 -> 150
			want:     150,
		},
		{
			name: "fixed major units to minor",
			code: domain.PromotionCode{
				Type: domain.DiscountTypeFixed, Value: decimal.NewFromInt(5),
			},
			subtotal: 10000,
			want:     500,
		},
		{
			name: "capped by max discount amount",
			code: domain.PromotionCode{
				Type: domain.DiscountTypePercentage, Value: decimal.NewFromInt(50),
				MaxDiscountAmount: 2000,
			},
			subtotal: 10000,
			want:     2000,
		},
		{
			name: "never exceeds subtotal",
			code: domain.PromotionCode{
				Type: domain.DiscountTypeFixed, Value: decimal.NewFromInt(50),
			},
			subtotal: 1000,
			want:     1000,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := promotionDiscount(tc.code, tc.subtotal)
			if got != tc.want {
				t.Fatalf("promotionDiscount = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestUpdateCodePreservesUsage(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	created := now.Add(-30 * 24 * time.Hour)
	repo := newStubPromotionRepo()
	repo.add(domain.PromotionCode{
		ID: "c-1", Code: "KEEP", Type: domain.DiscountTypePercentage,
		Value: decimal.NewFromInt(10), IsActive: true, TimesUsed: 42, CreatedAt: created,
	})
	svc := newTestPromotionService(t, repo, now)

	updated, err := svc.UpdateCode(context.Background(), UpsertPromotionCommand{
		ID: "c-1", Code: "KEEP", Type: domain.DiscountTypePercentage,
		Value: decimal.NewFromInt(20), IsActive: true,
	})
	if err != nil {
		t.Fatalf("UpdateCode: %v", err)
	}
	if updated.TimesUsed != 42 {
		t.Fatalf("TimesUsed = %d, want 42 preserved", updated.TimesUsed)
	}
	if !updated.CreatedAt.Equal(created) {
		t.Fatalf("CreatedAt = %v, want preserved %v", updated.CreatedAt, created)
	}
	if !updated.Value.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("Value = %s, want 20", updated.Value)
	}
}

func TestCreateCodeRejectsExcessivePercentage(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	svc := newTestPromotionService(t, newStubPromotionRepo(), now)

	_, err := svc.CreateCode(context.Background(), UpsertPromotionCommand{
		Code: "TOOMUCH", Type: domain.DiscountTypePercentage,
		Value: decimal.NewFromInt(120), IsActive: true,
	})
	if !errors.Is(err, ErrDiscountValueTooHigh) {
		t.Fatalf("CreateCode err = %v, want ErrDiscountValueTooHigh", err)
	}
}
