package cache

import (
	"context"
	"testing"
	"time"

	"pharmapos/backend/internal/domain"
)

func TestExpiryCountsKeyUsesUTCDay(t *testing.T) {
	loc := time.FixedZone("PKT", 5*60*60)
	day := time.Date(2026, 7, 2, 3, 0, 0, 0, loc)

	if got := ExpiryCountsKey(day); got != "expiry_alert_counts:2026-07-01" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestNoopCacheAlwaysMisses(t *testing.T) {
	var c ExpiryCountsCache = NoopExpiryCountsCache{}
	ctx := context.Background()

	if err := c.Set(ctx, "k", &domain.ExpiryAlertCounts{Expired: 1}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, err := c.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
}
