package cache

import (
	"context"
	"time"

	"saldopos/backend/internal/domain"
)

// StatsCache holds the computed dashboard stats read model. Mutations must
// call Invalidate so reads never observe stale totals.
type StatsCache interface {
	Get(ctx context.Context, key string) (*domain.Stats, bool, error)
	Set(ctx context.Context, key string, value *domain.Stats, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopStatsCache struct{}

func (NoopStatsCache) Get(_ context.Context, _ string) (*domain.Stats, bool, error) {
	return nil, false, nil
}

func (NoopStatsCache) Set(_ context.Context, _ string, _ *domain.Stats, _ time.Duration) error {
	return nil
}

func (NoopStatsCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
