package multivariate

import (
	"fmt"
	"math"
	"sort"
)

// StageStatus is the terminal-state machine shared by the post-stream stages.
type StageStatus string

const (
	StagePending       StageStatus = "pending"
	StageComputed      StageStatus = "computed"
	StageNotApplicable StageStatus = "not_applicable"
)

// PCAResult holds the eigen-decomposition of the covariance matrix. When
// IsApplicable is false, Reason explains why and the numeric fields are empty.
type PCAResult struct {
	Status       StageStatus `json:"status"`
	IsApplicable bool        `json:"is_applicable"`
	Reason       string      `json:"reason,omitempty"`

	Eigenvalues                 []float64   `json:"eigenvalues,omitempty"`
	Eigenvectors                [][]float64 `json:"eigenvectors,omitempty"`
	VarianceExplained           []float64   `json:"variance_explained,omitempty"`
	CumulativeVarianceExplained []float64   `json:"cumulative_variance_explained,omitempty"`
	ComponentsFor80Percent      int         `json:"components_for_80_percent,omitempty"`
	ComponentsFor85Percent      int         `json:"components_for_85_percent,omitempty"`
	ComponentsFor90Percent      int         `json:"components_for_90_percent,omitempty"`
}

const (
	jacobiMaxSweeps = 100
	jacobiTolerance = 1e-12
)

// pcaNotApplicable builds a terminal not-applicable result.
func pcaNotApplicable(reason string) PCAResult {
	return PCAResult{Status: StageNotApplicable, IsApplicable: false, Reason: reason}
}

// ComputePCA eigen-decomposes the covariance matrix of the usable (numeric,
// non-zero-variance) columns. rowCount and minSamplesPerDim gate applicability
// against degenerate, overfit components.
func ComputePCA(cov [][]float64, rowCount int64, minSamplesPerDim int) PCAResult {
	dims := len(cov)
	if dims < 2 {
		return pcaNotApplicable(fmt.Sprintf(
			"insufficient dimensionality: need at least 2 numeric columns with variance, have %d", dims))
	}
	if rowCount < int64(minSamplesPerDim*dims) {
		return pcaNotApplicable(fmt.Sprintf(
			"insufficient rows: %d rows for %d dimensions, need at least %d", rowCount, dims, minSamplesPerDim*dims))
	}

	eigenvalues, eigenvectors := jacobiEigen(cov)

	// Order descending by eigenvalue; clamp tiny negatives from rounding.
	order := make([]int, dims)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return eigenvalues[order[a]] > eigenvalues[order[b]]
	})

	sortedVals := make([]float64, dims)
	sortedVecs := make([][]float64, dims)
	total := 0.0
	for rank, idx := range order {
		v := eigenvalues[idx]
		if v < 0 {
			v = 0
		}
		sortedVals[rank] = v
		total += v

		vec := make([]float64, dims)
		for r := 0; r < dims; r++ {
			vec[r] = eigenvectors[r][idx]
		}
		sortedVecs[rank] = vec
	}

	result := PCAResult{
		Status:       StageComputed,
		IsApplicable: true,
		Eigenvalues:  sortedVals,
		Eigenvectors: sortedVecs,
	}

	if total <= 0 {
		return pcaNotApplicable("total variance is zero")
	}

	result.VarianceExplained = make([]float64, dims)
	result.CumulativeVarianceExplained = make([]float64, dims)
	cum := 0.0
	for i, v := range sortedVals {
		result.VarianceExplained[i] = v / total
		cum += v / total
		result.CumulativeVarianceExplained[i] = cum
	}

	result.ComponentsFor80Percent = componentsForThreshold(result.CumulativeVarianceExplained, 0.80)
	result.ComponentsFor85Percent = componentsForThreshold(result.CumulativeVarianceExplained, 0.85)
	result.ComponentsFor90Percent = componentsForThreshold(result.CumulativeVarianceExplained, 0.90)
	return result
}

// componentsForThreshold returns 1 + the first index whose cumulative variance
// crosses the cutoff.
func componentsForThreshold(cumulative []float64, threshold float64) int {
	for i, c := range cumulative {
		if c >= threshold-1e-12 {
			return i + 1
		}
	}
	return len(cumulative)
}

// jacobiEigen diagonalizes a symmetric matrix with cyclic Jacobi rotations.
// Returns the eigenvalues (diagonal of the converged matrix) and the matrix of
// column eigenvectors. Input is not mutated.
func jacobiEigen(m [][]float64) ([]float64, [][]float64) {
	n := len(m)

	a := make([][]float64, n)
	v := make([][]float64, n)
	for i := 0; i < n; i++ {
		a[i] = append([]float64(nil), m[i]...)
		v[i] = make([]float64, n)
		v[i][i] = 1
	}

	for sweep := 0; sweep < jacobiMaxSweeps; sweep++ {
		off := 0.0
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				off += a[i][j] * a[i][j]
			}
		}
		if off < jacobiTolerance {
			break
		}

		for p := 0; p < n-1; p++ {
			for q := p + 1; q < n; q++ {
				if math.Abs(a[p][q]) < jacobiTolerance {
					continue
				}

				// rotation angle zeroing a[p][q]
				theta := (a[q][q] - a[p][p]) / (2 * a[p][q])
				t := math.Copysign(1, theta) / (math.Abs(theta) + math.Sqrt(theta*theta+1))
				c := 1 / math.Sqrt(t*t+1)
				s := t * c

				for k := 0; k < n; k++ {
					akp := a[k][p]
					akq := a[k][q]
					a[k][p] = c*akp - s*akq
					a[k][q] = s*akp + c*akq
				}
				for k := 0; k < n; k++ {
					apk := a[p][k]
					aqk := a[q][k]
					a[p][k] = c*apk - s*aqk
					a[q][k] = s*apk + c*aqk
				}
				for k := 0; k < n; k++ {
					vkp := v[k][p]
					vkq := v[k][q]
					v[k][p] = c*vkp - s*vkq
					v[k][q] = s*vkp + c*vkq
				}
			}
		}
	}

	eigenvalues := make([]float64, n)
	for i := 0; i < n; i++ {
		eigenvalues[i] = a[i][i]
	}
	return eigenvalues, v
}
