package sample

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
)

// Weighted is one entry of a weighted pool. Weight counts tickets.
type Weighted[T any] struct {
	Item   T
	Weight uint64
}

// cumulative returns running totals of weights, rejecting zero weights and
// totals that overflow.
func cumulative(weights []uint64) ([]uint64, error) {
	if len(weights) == 0 {
		return nil, ErrNoWeights
	}
	cum := make([]uint64, len(weights))
	var total uint64
	for i, w := range weights {
		if w == 0 {
			return nil, fmt.Errorf("%w: entry %d has zero weight", ErrInvalidWeight, i)
		}
		if total > math.MaxUint64-w {
			return nil, fmt.Errorf("%w: total weight overflows", ErrInvalidWeight)
		}
		total += w
		cum[i] = total
	}
	return cum, nil
}

// WeightedIndex picks index i with probability weights[i]/sum(weights).
func WeightedIndex(r io.Reader, weights []uint64) (int, error) {
	cum, err := cumulative(weights)
	if err != nil {
		return 0, err
	}
	return pick(r, cum)
}

func pick(r io.Reader, cum []uint64) (int, error) {
	x, err := uint64N(r, cum[len(cum)-1])
	if err != nil {
		return 0, err
	}
	// first entry whose cumulative weight exceeds x
	return sort.Search(len(cum), func(i int) bool { return cum[i] > x }), nil
}

// DrawUnique picks count distinct entries, each draw weighted among the
// entries not yet picked. It returns fewer than count items only when the
// pool runs out.
func DrawUnique[T any](r io.Reader, pool []Weighted[T], count int) ([]T, error) {
	if count <= 0 {
		return nil, errors.New("must draw at least 1 entry")
	}
	weights := make([]uint64, len(pool))
	for i, e := range pool {
		weights[i] = e.Weight
	}
	cum, err := cumulative(weights)
	if err != nil {
		return nil, err
	}

	items := make([]T, len(pool))
	for i, e := range pool {
		items[i] = e.Item
	}
	picked := make([]T, 0, min(count, len(pool)))
	for len(picked) < count && len(items) > 0 {
		idx, err := pick(r, cum)
		if err != nil {
			return nil, err
		}
		picked = append(picked, items[idx])

		removed := weights[idx]
		items = append(items[:idx], items[idx+1:]...)
		weights = append(weights[:idx], weights[idx+1:]...)
		cum = append(cum[:idx], cum[idx+1:]...)
		for j := idx; j < len(cum); j++ {
			cum[j] -= removed
		}
	}
	return picked, nil
}
