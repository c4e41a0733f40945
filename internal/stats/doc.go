// Package stats implements the bounded-memory streaming accumulators behind
// dataset profiling: per-column Welford mean/variance with reservoir-based
// approximate quantiles, bounded categorical frequency counting, and pairwise
// covariance/correlation over numeric columns.
//
// All accumulators are one-pass and hold O(1) state per column (O(columns²)
// for the covariance engine) independent of row count. Feeding the same data
// in one chunk or many chunks of any size yields identical results within
// floating tolerance.
package stats
