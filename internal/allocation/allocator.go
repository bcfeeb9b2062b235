// Package allocation decides which batches a sold quantity is taken from.
//
// Batches are consumed earliest expiry first. When recorded stock runs out
// the remainder is still sold and charged to the batch with the latest
// expiry, which may leave that batch negative. A product with no batches
// at all yields a single unlinked allocation.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/logging"
)

var ErrInvalidQuantity = errors.New("requested quantity must be positive")

type Allocation struct {
	BatchID  string
	Quantity int
	// Oversell marks the remainder charged beyond recorded stock.
	Oversell bool
}

// BatchSource is the slice of a store transaction the allocator needs.
// LockBatches must hold the returned rows for the rest of the transaction.
type BatchSource interface {
	LockBatches(ctx context.Context, productID string) ([]domain.Batch, error)
	AdjustBatchQuantity(ctx context.Context, batchID string, delta int) error
}

// Plan computes the allocation for requested units against batches without
// touching any store. The input slice is not modified.
func Plan(batches []domain.Batch, requested int) ([]Allocation, error) {
	if requested <= 0 {
		return nil, ErrInvalidQuantity
	}
	if len(batches) == 0 {
		return []Allocation{{Quantity: requested}}, nil
	}

	ordered := slices.Clone(batches)
	slices.SortStableFunc(ordered, CompareBatches)

	allocations := make([]Allocation, 0, 2)
	remaining := requested
	for i := range ordered {
		if remaining == 0 {
			break
		}
		batch := &ordered[i]
		if batch.Quantity <= 0 {
			continue
		}
		taken := min(batch.Quantity, remaining)
		batch.Quantity -= taken
		remaining -= taken
		allocations = append(allocations, Allocation{BatchID: batch.ID, Quantity: taken})
	}

	if remaining > 0 {
		latest := ordered[len(ordered)-1]
		allocations = append(allocations, Allocation{
			BatchID:  latest.ID,
			Quantity: remaining,
			Oversell: true,
		})
	}

	return allocations, nil
}

// Allocate locks the product's batches through src, plans the allocation and
// writes every decrement back. Callers own the surrounding transaction.
func Allocate(ctx context.Context, src BatchSource, productID string, requested int) ([]Allocation, error) {
	batches, err := src.LockBatches(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("lock batches for %s: %w", productID, err)
	}

	allocations, err := Plan(batches, requested)
	if err != nil {
		return nil, err
	}

	for _, a := range allocations {
		if a.BatchID == "" {
			continue
		}
		if err := src.AdjustBatchQuantity(ctx, a.BatchID, -a.Quantity); err != nil {
			return nil, fmt.Errorf("decrement batch %s: %w", a.BatchID, err)
		}
		if a.Oversell {
			logging.Logger().WithFields(logrus.Fields{
				"module":     "allocation",
				"product_id": productID,
				"batch_id":   a.BatchID,
				"quantity":   a.Quantity,
			}).Info("sold beyond recorded stock")
		}
	}

	return allocations, nil
}

// CompareBatches orders by expiry date, then insertion order.
func CompareBatches(a domain.Batch, b domain.Batch) int {
	if c := a.ExpiryDate.Compare(b.ExpiryDate); c != 0 {
		return c
	}
	switch {
	case a.Seq < b.Seq:
		return -1
	case a.Seq > b.Seq:
		return 1
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}

// Total sums allocated units.
func Total(allocations []Allocation) int {
	total := 0
	for _, a := range allocations {
		total += a.Quantity
	}
	return total
}
