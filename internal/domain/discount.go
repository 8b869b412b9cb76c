package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType distinguishes percentage markdowns from fixed amounts.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// DiscountScope describes which part of the catalog a discount targets.
type DiscountScope string

const (
	DiscountScopeAll        DiscountScope = "all"
	DiscountScopeCategories DiscountScope = "categories"
	DiscountScopeBrands     DiscountScope = "brands"
	DiscountScopeProducts   DiscountScope = "products"
)

// CatalogDiscount is a time-bounded, scoped, priority-ordered markdown applied
// automatically to matching items. Value is percent points for percentage
// discounts and a major-unit amount for fixed discounts.
type CatalogDiscount struct {
	ID        string
	Name      string
	Type      DiscountType
	Value     decimal.Decimal
	Scope     DiscountScope
	ScopeIDs  []string
	Priority  int
	IsActive  bool
	StartsAt  *time.Time
	EndsAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActiveAt reports whether the discount is enabled and its validity window
// contains the given instant.
func (d CatalogDiscount) ActiveAt(at time.Time) bool {
	if !d.IsActive {
		return false
	}
	if d.StartsAt != nil && at.Before(*d.StartsAt) {
		return false
	}
	if d.EndsAt != nil && at.After(*d.EndsAt) {
		return false
	}
	return true
}

// Matches reports whether the discount scope covers an item identified by its
// product id plus resolved brand/category ancestor id sets.
func (d CatalogDiscount) Matches(item CatalogRef) bool {
	switch d.Scope {
	case DiscountScopeAll:
		return true
	case DiscountScopeProducts:
		return containsAny(d.ScopeIDs, []string{item.ProductID})
	case DiscountScopeBrands:
		return containsAny(d.ScopeIDs, item.BrandIDs)
	case DiscountScopeCategories:
		return containsAny(d.ScopeIDs, item.CategoryIDs)
	default:
		return false
	}
}

// CatalogRef identifies a product within the catalog taxonomy. Brand and
// category id sets include ancestors since hierarchies are multi-level.
type CatalogRef struct {
	ProductID   string
	BrandIDs    []string
	CategoryIDs []string
}

// PromotionCode is a customer-entered code granting a capped, usage-limited
// discount. Code is stored upper-cased. MinOrderAmount and MaxDiscountAmount
// are minor units; Value follows the CatalogDiscount convention.
type PromotionCode struct {
	ID                string
	Code              string
	Type              DiscountType
	Value             decimal.Decimal
	MinOrderAmount    int64
	MaxDiscountAmount int64
	UsageLimit        int64
	PerUserLimit      int64
	TimesUsed         int64
	IsActive          bool
	StartsAt          *time.Time
	EndsAt            *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// UsageStatus tracks the lifecycle of a promotion usage reservation.
type UsageStatus string

const (
	// UsageStatusPending marks a reservation taken at checkout and not yet
	// settled by a payment outcome.
	UsageStatusPending UsageStatus = "pending"
	// UsageStatusConfirmed marks a reservation settled by a successful payment.
	UsageStatusConfirmed UsageStatus = "confirmed"
)

// PromotionUsage is one row in the usage ledger: a provisional or confirmed
// claim against a promotion code's usage limit.
type PromotionUsage struct {
	ID         string
	CodeID     string
	CustomerID string
	OrderID    string
	Discount   int64
	Status     UsageStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func containsAny(haystack, needles []string) bool {
	for _, n := range needles {
		if n == "" {
			continue
		}
		for _, h := range haystack {
			if h == n {
				return true
			}
		}
	}
	return false
}
