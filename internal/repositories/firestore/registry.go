package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/iterator"

	pfirestore "github.com/shopnatural/core/internal/platform/firestore"
	"github.com/shopnatural/core/internal/repositories"
)

// Registry wires all Firestore-backed repositories behind the
// repositories.Registry interface.
type Registry struct {
	provider *pfirestore.Provider

	orders     *OrderRepository
	discounts  *DiscountRepository
	promotions *PromotionRepository
	counters   *CounterRepository
	health     repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the repository registry on top of a shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	discounts, err := NewDiscountRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	promotions, err := NewPromotionRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				client, err := provider.Client(ctx)
				if err != nil {
					return err
				}
				// A single listing step keeps the probe cheap while still
				// exercising connectivity and auth.
				_, err = client.Collections(ctx).Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	return &Registry{
		provider:   provider,
		orders:     orders,
		discounts:  discounts,
		promotions: promotions,
		counters:   counters,
		health:     health,
	}, nil
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close()
}

func (r *Registry) Orders() repositories.OrderRepository         { return r.orders }
func (r *Registry) Discounts() repositories.DiscountRepository   { return r.discounts }
func (r *Registry) Promotions() repositories.PromotionRepository { return r.promotions }
func (r *Registry) Counters() repositories.CounterRepository     { return r.counters }
func (r *Registry) Health() repositories.HealthRepository        { return r.health }
