package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	"github.com/shopnatural/core/internal/domain"
	pfirestore "github.com/shopnatural/core/internal/platform/firestore"
)

const catalogDiscountsCollection = "catalogDiscounts"

type catalogDiscountDocument struct {
	Name      string     `firestore:"name"`
	Type      string     `firestore:"type"`
	Value     string     `firestore:"value"`
	Scope     string     `firestore:"scope"`
	ScopeIDs  []string   `firestore:"scopeIds"`
	Priority  int        `firestore:"priority"`
	IsActive  bool       `firestore:"isActive"`
	StartsAt  *time.Time `firestore:"startsAt,omitempty"`
	EndsAt    *time.Time `firestore:"endsAt,omitempty"`
	CreatedAt time.Time  `firestore:"createdAt"`
	UpdatedAt time.Time  `firestore:"updatedAt"`
}

// DiscountRepository persists catalog discount campaigns in Firestore.
type DiscountRepository struct {
	discounts *pfirestore.BaseRepository[catalogDiscountDocument]
}

// NewDiscountRepository constructs a Firestore-backed discount repository.
func NewDiscountRepository(provider *pfirestore.Provider) (*DiscountRepository, error) {
	if provider == nil {
		return nil, errors.New("discount repository requires firestore provider")
	}
	return &DiscountRepository{
		discounts: pfirestore.NewBaseRepository[catalogDiscountDocument](provider, catalogDiscountsCollection),
	}, nil
}

// Insert stores a new discount campaign.
func (r *DiscountRepository) Insert(ctx context.Context, discount domain.CatalogDiscount) (domain.CatalogDiscount, error) {
	if strings.TrimSpace(discount.ID) == "" {
		return domain.CatalogDiscount{}, errors.New("discount repository: discount id is required")
	}
	now := time.Now().UTC()
	discount.CreatedAt = now
	discount.UpdatedAt = now
	if err := r.discounts.Create(ctx, discount.ID, encodeCatalogDiscount(discount)); err != nil {
		return domain.CatalogDiscount{}, err
	}
	return discount, nil
}

// Update replaces a discount document.
func (r *DiscountRepository) Update(ctx context.Context, discount domain.CatalogDiscount) (domain.CatalogDiscount, error) {
	if strings.TrimSpace(discount.ID) == "" {
		return domain.CatalogDiscount{}, errors.New("discount repository: discount id is required")
	}
	discount.UpdatedAt = time.Now().UTC()
	if err := r.discounts.Set(ctx, discount.ID, encodeCatalogDiscount(discount)); err != nil {
		return domain.CatalogDiscount{}, err
	}
	return discount, nil
}

// Get fetches a discount by document id.
func (r *DiscountRepository) Get(ctx context.Context, discountID string) (domain.CatalogDiscount, error) {
	doc, err := r.discounts.Get(ctx, discountID)
	if err != nil {
		return domain.CatalogDiscount{}, err
	}
	return decodeCatalogDiscount(doc.ID, doc.Data)
}

// Delete removes a discount campaign.
func (r *DiscountRepository) Delete(ctx context.Context, discountID string) error {
	ref, err := r.discounts.DocumentRef(ctx, discountID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("catalogDiscounts.delete", err)
	}
	return nil
}

// ListActive returns discounts flagged active. Validity-window checks stay
// with the resolver so this result can be cached briefly.
func (r *DiscountRepository) ListActive(ctx context.Context) ([]domain.CatalogDiscount, error) {
	return r.queryDiscounts(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("isActive", "==", true)
	})
}

// List returns all discount campaigns for the back office.
func (r *DiscountRepository) List(ctx context.Context) ([]domain.CatalogDiscount, error) {
	return r.queryDiscounts(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc)
	})
}

func (r *DiscountRepository) queryDiscounts(ctx context.Context, build pfirestore.QueryBuilder) ([]domain.CatalogDiscount, error) {
	docs, err := r.discounts.Query(ctx, build)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CatalogDiscount, 0, len(docs))
	for _, doc := range docs {
		discount, err := decodeCatalogDiscount(doc.ID, doc.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, discount)
	}
	return out, nil
}

func encodeCatalogDiscount(discount domain.CatalogDiscount) catalogDiscountDocument {
	return catalogDiscountDocument{
		Name:      discount.Name,
		Type:      string(discount.Type),
		Value:     discount.Value.String(),
		Scope:     string(discount.Scope),
		ScopeIDs:  discount.ScopeIDs,
		Priority:  discount.Priority,
		IsActive:  discount.IsActive,
		StartsAt:  discount.StartsAt,
		EndsAt:    discount.EndsAt,
		CreatedAt: discount.CreatedAt,
		UpdatedAt: discount.UpdatedAt,
	}
}

func decodeCatalogDiscount(id string, doc catalogDiscountDocument) (domain.CatalogDiscount, error) {
	value, err := decimal.NewFromString(doc.Value)
	if err != nil {
		return domain.CatalogDiscount{}, errors.New("discount repository: invalid value on " + id)
	}
	return domain.CatalogDiscount{
		ID:        id,
		Name:      doc.Name,
		Type:      domain.DiscountType(doc.Type),
		Value:     value,
		Scope:     domain.DiscountScope(doc.Scope),
		ScopeIDs:  doc.ScopeIDs,
		Priority:  doc.Priority,
		IsActive:  doc.IsActive,
		StartsAt:  doc.StartsAt,
		EndsAt:    doc.EndsAt,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}
