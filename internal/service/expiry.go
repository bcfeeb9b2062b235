package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"pharmapos/backend/internal/cache"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/logging"
)

const (
	criticalDays = 45
	mediumDays   = 90
	lowDays      = 180
)

type expiryBuckets struct {
	expired, critical, medium, low []domain.ExpiringBatch
}

func (s *Service) bucketExpiring(ctx context.Context, today time.Time) (expiryBuckets, error) {
	batches, err := s.repo.ListStockedBatches(ctx, today.AddDate(0, 0, lowDays))
	if err != nil {
		return expiryBuckets{}, err
	}

	b := expiryBuckets{
		expired:  []domain.ExpiringBatch{},
		critical: []domain.ExpiringBatch{},
		medium:   []domain.ExpiringBatch{},
		low:      []domain.ExpiringBatch{},
	}
	critical := today.AddDate(0, 0, criticalDays)
	medium := today.AddDate(0, 0, mediumDays)
	for _, batch := range batches {
		switch {
		case batch.Quantity <= 0:
		case batch.ExpiryDate.Before(today):
			b.expired = append(b.expired, batch)
		case !batch.ExpiryDate.After(critical):
			b.critical = append(b.critical, batch)
		case !batch.ExpiryDate.After(medium):
			b.medium = append(b.medium, batch)
		default:
			b.low = append(b.low, batch)
		}
	}
	return b, nil
}

func (b expiryBuckets) counts() domain.ExpiryAlertCounts {
	return domain.ExpiryAlertCounts{
		Expired:  len(b.expired),
		Critical: len(b.critical),
		Medium:   len(b.medium),
		Low:      len(b.low),
	}
}

func (s *Service) ExpiryAlerts(ctx context.Context, date string) (domain.ExpiryAlerts, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.ExpiryAlerts{}, err
	}
	today, err := s.day(date)
	if err != nil {
		return domain.ExpiryAlerts{}, err
	}
	b, err := s.bucketExpiring(ctx, today)
	if err != nil {
		return domain.ExpiryAlerts{}, err
	}
	return domain.ExpiryAlerts{
		Date:     today.Format(domain.DateLayout),
		Counts:   b.counts(),
		Expired:  b.expired,
		Critical: b.critical,
		Medium:   b.medium,
		Low:      b.low,
	}, nil
}

// ExpiryAlertCounts is read on every dashboard load, so it goes through the
// cache. Cache faults fall back to computing.
func (s *Service) ExpiryAlertCounts(ctx context.Context, today time.Time) (domain.ExpiryAlertCounts, error) {
	today = startOfDay(today)
	key := cache.ExpiryCountsKey(today)

	if cached, ok, err := s.counts.Get(ctx, key); err != nil {
		logging.Warn("service", "ExpiryAlertCounts", "expiry cache read failed", logrus.Fields{"key": key, "error": err.Error()})
	} else if ok {
		return *cached, nil
	}

	b, err := s.bucketExpiring(ctx, today)
	if err != nil {
		return domain.ExpiryAlertCounts{}, err
	}
	counts := b.counts()
	if err := s.counts.Set(ctx, key, &counts, s.opts.ExpiryCacheTTL); err != nil {
		logging.Warn("service", "ExpiryAlertCounts", "expiry cache write failed", logrus.Fields{"key": key, "error": err.Error()})
	}
	return counts, nil
}
