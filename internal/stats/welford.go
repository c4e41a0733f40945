package stats

import (
	"math"
)

// ColumnAccumulator maintains running count/mean/variance/min/max for one
// numeric column using Welford's online algorithm, plus a bounded reservoir
// for approximate quantiles. State is O(1) in the number of rows.
type ColumnAccumulator struct {
	name string

	count int64
	mean  float64
	m2    float64
	min   float64
	max   float64

	reservoir *QuantileReservoir
}

// NewColumnAccumulator creates an empty accumulator for the named column.
// reservoirSize bounds quantile-estimation memory; seed makes reservoir
// sampling reproducible.
func NewColumnAccumulator(name string, reservoirSize int, seed int64) *ColumnAccumulator {
	return &ColumnAccumulator{
		name:      name,
		min:       math.Inf(1),
		max:       math.Inf(-1),
		reservoir: NewQuantileReservoir(reservoirSize, seed),
	}
}

// Add incorporates one value into the running statistics.
func (a *ColumnAccumulator) Add(x float64) {
	a.count++
	delta := x - a.mean
	a.mean += delta / float64(a.count)
	a.m2 += delta * (x - a.mean)

	if x < a.min {
		a.min = x
	}
	if x > a.max {
		a.max = x
	}
	a.reservoir.Add(x)
}

// Name returns the column name.
func (a *ColumnAccumulator) Name() string { return a.name }

// Count returns the number of values seen.
func (a *ColumnAccumulator) Count() int64 { return a.count }

// Mean returns the running mean, or 0 before any value is seen.
func (a *ColumnAccumulator) Mean() float64 { return a.mean }

// Variance returns the sample variance M2/(n-1), or 0 for fewer than 2 values.
func (a *ColumnAccumulator) Variance() float64 {
	if a.count < 2 {
		return 0
	}
	return a.m2 / float64(a.count-1)
}

// StdDev returns the sample standard deviation.
func (a *ColumnAccumulator) StdDev() float64 {
	return math.Sqrt(a.Variance())
}

// Min returns the smallest value seen, or +Inf before any value.
func (a *ColumnAccumulator) Min() float64 { return a.min }

// Max returns the largest value seen, or -Inf before any value.
func (a *ColumnAccumulator) Max() float64 { return a.max }

// Quantiles estimates the requested quantiles (each in [0,1]) from the
// reservoir. Estimates are approximate once the reservoir has cycled.
func (a *ColumnAccumulator) Quantiles(qs []float64) []float64 {
	return a.reservoir.Quantiles(qs)
}

// Profile freezes the accumulator into an immutable column profile.
func (a *ColumnAccumulator) Profile(inferredType string, quantiles []float64) ColumnProfile {
	p := ColumnProfile{
		Name:         a.name,
		InferredType: inferredType,
		Count:        a.count,
		Mean:         a.mean,
		Variance:     a.Variance(),
		StdDev:       a.StdDev(),
	}
	if a.count > 0 {
		p.Min = a.min
		p.Max = a.max
		p.QuantileEstimates = a.Quantiles(quantiles)
	}
	return p
}

// ColumnProfile is the frozen per-column result of the univariate pass.
type ColumnProfile struct {
	Name              string    `json:"name"`
	InferredType      string    `json:"inferred_type"`
	Count             int64     `json:"count"`
	Mean              float64   `json:"mean"`
	Variance          float64   `json:"variance"`
	StdDev            float64   `json:"std_dev"`
	Min               float64   `json:"min"`
	Max               float64   `json:"max"`
	QuantileEstimates []float64 `json:"quantile_estimates,omitempty"`

	// DistinctValues is populated for categorical columns only; Truncated
	// reports that the distinct cap was hit and counts are a lower bound.
	DistinctValues map[string]int64 `json:"distinct_values,omitempty"`
	Truncated      bool             `json:"truncated,omitempty"`
}
