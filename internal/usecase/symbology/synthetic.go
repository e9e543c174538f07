package symbology

import (
	"context"
	"errors"
	"fmt"

	"SecMaster/internal/domain/repository"
)

// ErrSyntheticRangeExhausted is returned when no synthetic id is left.
var ErrSyntheticRangeExhausted = errors.New("synthetic id range exhausted")

// idAllocator hands out synthetic ids in [min, max) above every id already
// stored in that range. One allocator is shared by all sources of a run.
type idAllocator struct {
	next int64
	max  int64
}

func newIDAllocator(ctx context.Context, store repository.SymbologyStore, min, max int64) (*idAllocator, error) {
	top, err := store.MaxInstrumentID(ctx, min, max)
	if err != nil {
		return nil, fmt.Errorf("load synthetic high-water mark: %w", err)
	}
	next := min
	if top >= min {
		next = top + 1
	}
	return &idAllocator{next: next, max: max}, nil
}

func (a *idAllocator) allocate() (int64, error) {
	if a.next >= a.max {
		return 0, fmt.Errorf("%w: next=%d max=%d", ErrSyntheticRangeExhausted, a.next, a.max)
	}
	id := a.next
	a.next++
	return id, nil
}
