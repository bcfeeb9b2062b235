package cache

import (
	"context"
	"time"

	"pharmapos/backend/internal/domain"
)

// ExpiryCountsCache holds the per-day expiry bucket counts shown on the
// dashboard. A miss is not an error.
type ExpiryCountsCache interface {
	Get(ctx context.Context, key string) (*domain.ExpiryAlertCounts, bool, error)
	Set(ctx context.Context, key string, value *domain.ExpiryAlertCounts, ttl time.Duration) error
}

type NoopExpiryCountsCache struct{}

func (NoopExpiryCountsCache) Get(_ context.Context, _ string) (*domain.ExpiryAlertCounts, bool, error) {
	return nil, false, nil
}

func (NoopExpiryCountsCache) Set(_ context.Context, _ string, _ *domain.ExpiryAlertCounts, _ time.Duration) error {
	return nil
}

// ExpiryCountsKey is the cache key for counts computed on day.
func ExpiryCountsKey(day time.Time) string {
	return "expiry_alert_counts:" + day.UTC().Format(domain.DateLayout)
}
