package cache

import (
	"context"
	"time"

	"dokkan/backend/internal/domain"
)

// ViewCache holds assembled read models for a short TTL so hot sale and
// plan lookups skip the joins.
type ViewCache interface {
	GetSale(ctx context.Context, key string) (*domain.SaleView, bool, error)
	SetSale(ctx context.Context, key string, value *domain.SaleView, ttl time.Duration) error
	GetPlan(ctx context.Context, key string) (*domain.PlanView, bool, error)
	SetPlan(ctx context.Context, key string, value *domain.PlanView, ttl time.Duration) error
}

type NoopViewCache struct{}

func (NoopViewCache) GetSale(_ context.Context, _ string) (*domain.SaleView, bool, error) {
	return nil, false, nil
}

func (NoopViewCache) SetSale(_ context.Context, _ string, _ *domain.SaleView, _ time.Duration) error {
	return nil
}

func (NoopViewCache) GetPlan(_ context.Context, _ string) (*domain.PlanView, bool, error) {
	return nil, false, nil
}

func (NoopViewCache) SetPlan(_ context.Context, _ string, _ *domain.PlanView, _ time.Duration) error {
	return nil
}
