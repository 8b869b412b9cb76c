package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopnatural/core/internal/domain"
	"github.com/shopnatural/core/internal/repositories"
)

// stubNotFound satisfies repositories.RepositoryError for not-found paths.
type stubNotFound struct{}

func (stubNotFound) Error() string       { return "not found" }
func (stubNotFound) IsNotFound() bool    { return true }
func (stubNotFound) IsConflict() bool    { return false }
func (stubNotFound) IsUnavailable() bool { return false }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// seqIDs returns deterministic ids id-1, id-2, ...
func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

type stubDiscountRepo struct {
	discounts  map[string]domain.CatalogDiscount
	active     []domain.CatalogDiscount
	listActive int
}

func newStubDiscountRepo() *stubDiscountRepo {
	return &stubDiscountRepo{discounts: map[string]domain.CatalogDiscount{}}
}

func (r *stubDiscountRepo) Insert(_ context.Context, d domain.CatalogDiscount) (domain.CatalogDiscount, error) {
	r.discounts[d.ID] = d
	return d, nil
}

func (r *stubDiscountRepo) Update(_ context.Context, d domain.CatalogDiscount) (domain.CatalogDiscount, error) {
	r.discounts[d.ID] = d
	return d, nil
}

func (r *stubDiscountRepo) Get(_ context.Context, id string) (domain.CatalogDiscount, error) {
	d, ok := r.discounts[id]
	if !ok {
		return domain.CatalogDiscount{}, stubNotFound{}
	}
	return d, nil
}

func (r *stubDiscountRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.discounts[id]; !ok {
		return stubNotFound{}
	}
	delete(r.discounts, id)
	return nil
}

func (r *stubDiscountRepo) ListActive(context.Context) ([]domain.CatalogDiscount, error) {
	r.listActive++
	return r.active, nil
}

func (r *stubDiscountRepo) List(context.Context) ([]domain.CatalogDiscount, error) {
	out := make([]domain.CatalogDiscount, 0, len(r.discounts))
	for _, d := range r.discounts {
		out = append(out, d)
	}
	return out, nil
}

type stubPromotionRepo struct {
	codes      map[string]domain.PromotionCode
	usageCount map[string]int64
}

func newStubPromotionRepo() *stubPromotionRepo {
	return &stubPromotionRepo{
		codes:      map[string]domain.PromotionCode{},
		usageCount: map[string]int64{},
	}
}

func (r *stubPromotionRepo) add(code domain.PromotionCode) {
	r.codes[code.ID] = code
}

func (r *stubPromotionRepo) Insert(_ context.Context, c domain.PromotionCode) (domain.PromotionCode, error) {
	r.codes[c.ID] = c
	return c, nil
}

func (r *stubPromotionRepo) Update(_ context.Context, c domain.PromotionCode) (domain.PromotionCode, error) {
	r.codes[c.ID] = c
	return c, nil
}

func (r *stubPromotionRepo) Get(_ context.Context, id string) (domain.PromotionCode, error) {
	c, ok := r.codes[id]
	if !ok {
		return domain.PromotionCode{}, stubNotFound{}
	}
	return c, nil
}

func (r *stubPromotionRepo) FindByCode(_ context.Context, code string) (domain.PromotionCode, error) {
	for _, c := range r.codes {
		if c.Code == code {
			return c, nil
		}
	}
	return domain.PromotionCode{}, stubNotFound{}
}

func (r *stubPromotionRepo) List(context.Context) ([]domain.PromotionCode, error) {
	out := make([]domain.PromotionCode, 0, len(r.codes))
	for _, c := range r.codes {
		out = append(out, c)
	}
	return out, nil
}

func (r *stubPromotionRepo) GetUsage(_ context.Context, usageID string) (domain.PromotionUsage, error) {
	return domain.PromotionUsage{}, stubNotFound{}
}

func (r *stubPromotionRepo) CountUsageForCustomer(_ context.Context, codeID, customerID string) (int64, error) {
	return r.usageCount[codeID+"/"+customerID], nil
}

type stubOrderRepo struct {
	orders map[string]domain.Order

	createErr       error
	lastReservation *repositories.PromotionReservation
	updateErr       error
	updates         int

	mutateErr     error
	mutations     int
	releasedUsage []string
	pendingUsage  map[string]bool

	outcomeResult repositories.PaymentOutcomeResult
	outcomeErr    error
	lastOutcome   repositories.PaymentOutcomeRequest

	expiredDrafts []domain.Order
	expireResults map[string]bool
	expireErr     map[string]error
	expiredIDs    []string
}

func newStubOrderRepo() *stubOrderRepo {
	return &stubOrderRepo{
		orders:        map[string]domain.Order{},
		expireResults: map[string]bool{},
		expireErr:     map[string]error{},
		pendingUsage:  map[string]bool{},
	}
}

func (r *stubOrderRepo) Create(_ context.Context, order domain.Order, reservation *repositories.PromotionReservation) (domain.Order, error) {
	if r.createErr != nil {
		return domain.Order{}, r.createErr
	}
	r.lastReservation = reservation
	r.orders[order.ID] = order
	return order, nil
}

func (r *stubOrderRepo) Get(_ context.Context, id string) (domain.Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, stubNotFound{}
	}
	return order, nil
}

func (r *stubOrderRepo) FindByOrderNumber(_ context.Context, number string) (domain.Order, error) {
	for _, o := range r.orders {
		if o.OrderNumber == number {
			return o, nil
		}
	}
	return domain.Order{}, stubNotFound{}
}

func (r *stubOrderRepo) FindByPaymentReference(_ context.Context, ref string) (domain.Order, error) {
	for _, o := range r.orders {
		if o.PaymentReference == ref {
			return o, nil
		}
	}
	return domain.Order{}, stubNotFound{}
}

func (r *stubOrderRepo) FindByTransactionID(_ context.Context, gateway, txID string) (domain.Order, error) {
	for _, o := range r.orders {
		if o.Payment.Gateway == gateway && o.Payment.TransactionID == txID {
			return o, nil
		}
	}
	return domain.Order{}, stubNotFound{}
}

func (r *stubOrderRepo) Update(_ context.Context, order domain.Order) (domain.Order, error) {
	if r.updateErr != nil {
		return domain.Order{}, r.updateErr
	}
	r.updates++
	r.orders[order.ID] = order
	return order, nil
}

func (r *stubOrderRepo) Mutate(_ context.Context, orderID string, fn repositories.OrderMutator) (domain.Order, error) {
	if r.mutateErr != nil {
		return domain.Order{}, r.mutateErr
	}
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, stubNotFound{}
	}
	mutation, err := fn(order)
	if err != nil {
		return domain.Order{}, err
	}
	r.mutations++
	if mutation.ReleaseUsage && order.Promotion != nil && order.Promotion.UsageID != "" {
		pending, tracked := r.pendingUsage[order.Promotion.UsageID]
		if !tracked || pending {
			r.releasedUsage = append(r.releasedUsage, order.Promotion.UsageID)
			r.pendingUsage[order.Promotion.UsageID] = false
		}
	}
	r.orders[orderID] = mutation.Order
	return mutation.Order, nil
}

func (r *stubOrderRepo) ApplyPaymentOutcome(_ context.Context, req repositories.PaymentOutcomeRequest) (repositories.PaymentOutcomeResult, error) {
	r.lastOutcome = req
	if r.outcomeErr != nil {
		return repositories.PaymentOutcomeResult{}, r.outcomeErr
	}
	return r.outcomeResult, nil
}

func (r *stubOrderRepo) ListByOwner(_ context.Context, owner repositories.OrderOwner, _ repositories.OrderListFilter) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range r.orders {
		if (owner.CustomerID != "" && o.CustomerID == owner.CustomerID) ||
			(owner.GuestSession != "" && o.GuestSessionID == owner.GuestSession) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *stubOrderRepo) List(_ context.Context, _ repositories.OrderListFilter) ([]domain.Order, error) {
	out := make([]domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, o)
	}
	return out, nil
}

func (r *stubOrderRepo) ListExpiredDrafts(_ context.Context, _ time.Time, _ int) ([]domain.Order, error) {
	return r.expiredDrafts, nil
}

func (r *stubOrderRepo) ExpireDraft(_ context.Context, orderID string, _ time.Time) (bool, error) {
	if err := r.expireErr[orderID]; err != nil {
		return false, err
	}
	r.expiredIDs = append(r.expiredIDs, orderID)
	done, ok := r.expireResults[orderID]
	if !ok {
		done = true
	}
	return done, nil
}

func (r *stubOrderRepo) SoftDelete(_ context.Context, orderID string, deletedAt time.Time) error {
	order, ok := r.orders[orderID]
	if !ok {
		return stubNotFound{}
	}
	order.DeletedAt = &deletedAt
	r.orders[orderID] = order
	return nil
}

type stubCounterRepo struct {
	values map[string]int64
	err    error
}

func newStubCounterRepo() *stubCounterRepo {
	return &stubCounterRepo{values: map[string]int64{}}
}

func (r *stubCounterRepo) Next(_ context.Context, counterID string) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.values[counterID]++
	return r.values[counterID], nil
}

type stubPublisher struct {
	published []OrderNotification
	err       error
}

func (p *stubPublisher) PublishOrderNotification(_ context.Context, n OrderNotification) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, n)
	return nil
}

type stubGateway struct {
	name       string
	session    PaymentSession
	err        error
	lastOrder  domain.Order
	sessionNum int
}

func (g *stubGateway) Name() string { return g.name }

func (g *stubGateway) CreateSession(_ context.Context, order domain.Order) (PaymentSession, error) {
	g.sessionNum++
	g.lastOrder = order
	if g.err != nil {
		return PaymentSession{}, g.err
	}
	return g.session, nil
}
