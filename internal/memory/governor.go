package memory

import (
	"runtime"
)

const bytesPerMB = 1024 * 1024

// Sample is a point-in-time view of process heap usage.
type Sample struct {
	HeapUsedMB  float64 `json:"heap_used_mb"`
	HeapTotalMB float64 `json:"heap_total_mb"`
}

// Governor drives adaptive chunk sizing from heap samples. It is a heuristic
// control loop, not an exact scheduler: it only adjusts once per chunk
// boundary, and oscillation is damped by clamping to the configured bounds.
type Governor struct {
	thresholdMB       float64
	targetUtilization float64
	expansionFactor   float64
	reductionFactor   float64
	minChunkSize      int
	maxChunkSize      int

	peakHeapMB float64

	// readMemStats is swappable for tests.
	readMemStats func(*runtime.MemStats)
}

// NewGovernor creates a governor steering heap usage toward
// thresholdMB*targetUtilization, adjusting chunk sizes by the given factors
// within [minChunk, maxChunk].
func NewGovernor(thresholdMB, targetUtilization, expansionFactor, reductionFactor float64, minChunk, maxChunk int) *Governor {
	return &Governor{
		thresholdMB:       thresholdMB,
		targetUtilization: targetUtilization,
		expansionFactor:   expansionFactor,
		reductionFactor:   reductionFactor,
		minChunkSize:      minChunk,
		maxChunkSize:      maxChunk,
		readMemStats:      runtime.ReadMemStats,
	}
}

// SampleNow reads current heap usage. Never fails.
func (g *Governor) SampleNow() Sample {
	var ms runtime.MemStats
	g.readMemStats(&ms)

	s := Sample{
		HeapUsedMB:  float64(ms.HeapAlloc) / bytesPerMB,
		HeapTotalMB: float64(ms.HeapSys) / bytesPerMB,
	}
	if s.HeapUsedMB > g.peakHeapMB {
		g.peakHeapMB = s.HeapUsedMB
	}
	return s
}

// NextChunkSize returns the chunk size to use for the next chunk given the
// current size and a heap sample. Above-target utilization shrinks the chunk,
// comfortably-below-target utilization grows it, and the result is always
// clamped to [minChunkSize, maxChunkSize]. No side effects beyond the return.
func (g *Governor) NextChunkSize(current int, s Sample) int {
	utilization := s.HeapUsedMB / g.thresholdMB

	next := current
	switch {
	case utilization > g.targetUtilization:
		next = int(float64(current) * g.reductionFactor)
	case utilization < g.targetUtilization*comfortMargin:
		next = int(float64(current) * g.expansionFactor)
	}

	if next < g.minChunkSize {
		next = g.minChunkSize
	}
	if next > g.maxChunkSize {
		next = g.maxChunkSize
	}
	return next
}

// comfortMargin keeps a dead band between the shrink and grow conditions so
// the size does not flap around the target.
const comfortMargin = 0.8

// OverCeiling reports whether the sample exceeds the hard memory threshold.
func (g *Governor) OverCeiling(s Sample) bool {
	return s.HeapUsedMB > g.thresholdMB
}

// ThresholdMB returns the configured hard heap ceiling.
func (g *Governor) ThresholdMB() float64 {
	return g.thresholdMB
}

// MinChunkSize returns the lower chunk-size clamp.
func (g *Governor) MinChunkSize() int {
	return g.minChunkSize
}

// PeakHeapMB returns the highest heap usage observed across samples.
func (g *Governor) PeakHeapMB() float64 {
	return g.peakHeapMB
}
