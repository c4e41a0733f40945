package stats

import (
	"math/rand"
	"sort"
)

// QuantileReservoir estimates quantiles in bounded memory using Vitter's
// algorithm R. Exact order statistics need O(n) memory; the reservoir trades
// exactness for a fixed-size sample that is uniform over everything seen.
type QuantileReservoir struct {
	capacity int
	seen     int64
	values   []float64
	rng      *rand.Rand
}

// NewQuantileReservoir creates a reservoir holding at most capacity values.
// seed 0 selects a fixed default so runs are reproducible unless configured
// otherwise.
func NewQuantileReservoir(capacity int, seed int64) *QuantileReservoir {
	if capacity < 1 {
		capacity = 1
	}
	if seed == 0 {
		seed = 1
	}
	return &QuantileReservoir{
		capacity: capacity,
		values:   make([]float64, 0, capacity),
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Add offers a value to the reservoir.
func (r *QuantileReservoir) Add(x float64) {
	r.seen++
	if len(r.values) < r.capacity {
		r.values = append(r.values, x)
		return
	}
	// Replace a random slot with probability capacity/seen.
	if j := r.rng.Int63n(r.seen); j < int64(r.capacity) {
		r.values[j] = x
	}
}

// Seen returns how many values have been offered.
func (r *QuantileReservoir) Seen() int64 { return r.seen }

// Quantiles estimates the requested quantiles by linear interpolation over
// the sorted reservoir sample. Returns nil when the reservoir is empty.
func (r *QuantileReservoir) Quantiles(qs []float64) []float64 {
	if len(r.values) == 0 || len(qs) == 0 {
		return nil
	}

	sorted := make([]float64, len(r.values))
	copy(sorted, r.values)
	sort.Float64s(sorted)

	out := make([]float64, len(qs))
	n := len(sorted)
	for i, q := range qs {
		switch {
		case q <= 0:
			out[i] = sorted[0]
		case q >= 1:
			out[i] = sorted[n-1]
		default:
			pos := q * float64(n-1)
			lo := int(pos)
			frac := pos - float64(lo)
			if lo+1 < n {
				out[i] = sorted[lo]*(1-frac) + sorted[lo+1]*frac
			} else {
				out[i] = sorted[lo]
			}
		}
	}
	return out
}

// CategoricalCounter tracks distinct-value frequencies for a categorical
// column, capped so memory stays bounded on high-cardinality data.
type CategoricalCounter struct {
	name      string
	maxValues int
	counts    map[string]int64
	truncated bool
	total     int64
}

// NewCategoricalCounter creates a counter tracking at most maxValues distinct
// values for the named column.
func NewCategoricalCounter(name string, maxValues int) *CategoricalCounter {
	return &CategoricalCounter{
		name:      name,
		maxValues: maxValues,
		counts:    make(map[string]int64),
	}
}

// Add counts one occurrence. Values beyond the distinct cap are dropped and
// the counter is marked truncated.
func (c *CategoricalCounter) Add(value string) {
	c.total++
	if n, ok := c.counts[value]; ok {
		c.counts[value] = n + 1
		return
	}
	if len(c.counts) >= c.maxValues {
		c.truncated = true
		return
	}
	c.counts[value] = 1
}

// Name returns the column name.
func (c *CategoricalCounter) Name() string { return c.name }

// Total returns the number of values counted, including dropped ones.
func (c *CategoricalCounter) Total() int64 { return c.total }

// Profile freezes the counter into a categorical column profile.
func (c *CategoricalCounter) Profile(inferredType string) ColumnProfile {
	counts := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		counts[k] = v
	}
	return ColumnProfile{
		Name:           c.name,
		InferredType:   inferredType,
		Count:          c.total,
		DistinctValues: counts,
		Truncated:      c.truncated,
	}
}
