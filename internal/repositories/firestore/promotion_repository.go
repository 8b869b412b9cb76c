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

const (
	promotionCodesCollection = "promotionCodes"
	promotionUsageCollection = "promotionUsage"
)

type promotionCodeDocument struct {
	Code              string     `firestore:"code"`
	Type              string     `firestore:"type"`
	Value             string     `firestore:"value"`
	MinOrderAmount    int64      `firestore:"minOrderAmount"`
	MaxDiscountAmount int64      `firestore:"maxDiscountAmount"`
	UsageLimit        int64      `firestore:"usageLimit"`
	PerUserLimit      int64      `firestore:"perUserLimit"`
	TimesUsed         int64      `firestore:"timesUsed"`
	IsActive          bool       `firestore:"isActive"`
	StartsAt          *time.Time `firestore:"startsAt,omitempty"`
	EndsAt            *time.Time `firestore:"endsAt,omitempty"`
	CreatedAt         time.Time  `firestore:"createdAt"`
	UpdatedAt         time.Time  `firestore:"updatedAt"`
}

type promotionUsageDocument struct {
	CodeID     string    `firestore:"codeId"`
	CustomerID string    `firestore:"customerId"`
	OrderID    string    `firestore:"orderId"`
	Discount   int64     `firestore:"discount"`
	Status     string    `firestore:"status"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

// PromotionRepository persists promotion codes and their usage ledger in
// Firestore. Usage mutations that must be atomic with order state live on the
// order repository; this type serves reads and back-office CRUD.
type PromotionRepository struct {
	provider *pfirestore.Provider
	codes    *pfirestore.BaseRepository[promotionCodeDocument]
	usage    *pfirestore.BaseRepository[promotionUsageDocument]
}

// NewPromotionRepository constructs a Firestore-backed promotion repository.
func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	return &PromotionRepository{
		provider: provider,
		codes:    pfirestore.NewBaseRepository[promotionCodeDocument](provider, promotionCodesCollection),
		usage:    pfirestore.NewBaseRepository[promotionUsageDocument](provider, promotionUsageCollection),
	}, nil
}

// Insert stores a new promotion code.
func (r *PromotionRepository) Insert(ctx context.Context, code domain.PromotionCode) (domain.PromotionCode, error) {
	if strings.TrimSpace(code.ID) == "" {
		return domain.PromotionCode{}, errors.New("promotion repository: code id is required")
	}
	now := time.Now().UTC()
	code.Code = strings.ToUpper(strings.TrimSpace(code.Code))
	code.CreatedAt = now
	code.UpdatedAt = now
	if err := r.codes.Create(ctx, code.ID, encodePromotionCode(code)); err != nil {
		return domain.PromotionCode{}, err
	}
	return code, nil
}

// Update replaces a promotion code document.
func (r *PromotionRepository) Update(ctx context.Context, code domain.PromotionCode) (domain.PromotionCode, error) {
	if strings.TrimSpace(code.ID) == "" {
		return domain.PromotionCode{}, errors.New("promotion repository: code id is required")
	}
	code.Code = strings.ToUpper(strings.TrimSpace(code.Code))
	code.UpdatedAt = time.Now().UTC()
	if err := r.codes.Set(ctx, code.ID, encodePromotionCode(code)); err != nil {
		return domain.PromotionCode{}, err
	}
	return code, nil
}

// Get fetches a promotion code by document id.
func (r *PromotionRepository) Get(ctx context.Context, codeID string) (domain.PromotionCode, error) {
	doc, err := r.codes.Get(ctx, codeID)
	if err != nil {
		return domain.PromotionCode{}, err
	}
	return decodePromotionCode(doc.ID, doc.Data)
}

// FindByCode fetches a promotion code by its customer-facing code string.
// Lookups are case-insensitive since codes are stored upper-cased.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.PromotionCode, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	docs, err := r.codes.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", normalized).Limit(1)
	})
	if err != nil {
		return domain.PromotionCode{}, err
	}
	if len(docs) == 0 {
		return domain.PromotionCode{}, pfirestore.NotFoundError("promotionCodes.findByCode")
	}
	return decodePromotionCode(docs[0].ID, docs[0].Data)
}

// List returns all promotion codes for the back office.
func (r *PromotionRepository) List(ctx context.Context) ([]domain.PromotionCode, error) {
	docs, err := r.codes.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.PromotionCode, 0, len(docs))
	for _, doc := range docs {
		code, err := decodePromotionCode(doc.ID, doc.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, nil
}

// GetUsage fetches a single usage ledger entry.
func (r *PromotionRepository) GetUsage(ctx context.Context, usageID string) (domain.PromotionUsage, error) {
	doc, err := r.usage.Get(ctx, usageID)
	if err != nil {
		return domain.PromotionUsage{}, err
	}
	return decodePromotionUsage(doc.ID, doc.Data), nil
}

// CountUsageForCustomer counts the redemptions a customer holds against a
// code. Pending reservations count so a customer cannot exceed their limit
// with parallel checkouts.
func (r *PromotionRepository) CountUsageForCustomer(ctx context.Context, codeID, customerID string) (int64, error) {
	if customerID == "" {
		return 0, nil
	}
	docs, err := r.usage.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("codeId", "==", codeID).Where("customerId", "==", customerID)
	})
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func encodePromotionCode(code domain.PromotionCode) promotionCodeDocument {
	return promotionCodeDocument{
		Code:              code.Code,
		Type:              string(code.Type),
		Value:             code.Value.String(),
		MinOrderAmount:    code.MinOrderAmount,
		MaxDiscountAmount: code.MaxDiscountAmount,
		UsageLimit:        code.UsageLimit,
		PerUserLimit:      code.PerUserLimit,
		TimesUsed:         code.TimesUsed,
		IsActive:          code.IsActive,
		StartsAt:          code.StartsAt,
		EndsAt:            code.EndsAt,
		CreatedAt:         code.CreatedAt,
		UpdatedAt:         code.UpdatedAt,
	}
}

func decodePromotionCode(id string, doc promotionCodeDocument) (domain.PromotionCode, error) {
	value, err := decimal.NewFromString(doc.Value)
	if err != nil {
		return domain.PromotionCode{}, errors.New("promotion repository: invalid value on " + id)
	}
	return domain.PromotionCode{
		ID:                id,
		Code:              doc.Code,
		Type:              domain.DiscountType(doc.Type),
		Value:             value,
		MinOrderAmount:    doc.MinOrderAmount,
		MaxDiscountAmount: doc.MaxDiscountAmount,
		UsageLimit:        doc.UsageLimit,
		PerUserLimit:      doc.PerUserLimit,
		TimesUsed:         doc.TimesUsed,
		IsActive:          doc.IsActive,
		StartsAt:          doc.StartsAt,
		EndsAt:            doc.EndsAt,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}, nil
}

func decodePromotionUsage(id string, doc promotionUsageDocument) domain.PromotionUsage {
	return domain.PromotionUsage{
		ID:         id,
		CodeID:     doc.CodeID,
		CustomerID: doc.CustomerID,
		OrderID:    doc.OrderID,
		Discount:   doc.Discount,
		Status:     domain.UsageStatus(doc.Status),
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}
