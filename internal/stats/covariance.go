package stats

import (
	"math"
)

// zeroVarianceEps is the variance below which a column is treated as constant
// for correlation purposes.
const zeroVarianceEps = 1e-12

// CovarianceAccumulator maintains pairwise co-moments across numeric columns
// using the pairwise extension of Welford's algorithm. Cost is O(columns²)
// per row; memory is O(columns²) independent of row count.
type CovarianceAccumulator struct {
	names []string
	n     int

	count    int64
	means    []float64
	comoment []float64 // upper triangle incl. diagonal, row-major
}

// NewCovarianceAccumulator creates an accumulator over the named columns.
func NewCovarianceAccumulator(names []string) *CovarianceAccumulator {
	n := len(names)
	return &CovarianceAccumulator{
		names:    append([]string(nil), names...),
		n:        n,
		means:    make([]float64, n),
		comoment: make([]float64, n*(n+1)/2),
	}
}

// triIndex maps (i,j) with i<=j into the packed upper triangle.
func (c *CovarianceAccumulator) triIndex(i, j int) int {
	return i*c.n - i*(i-1)/2 + (j - i)
}

// Add incorporates one complete row of numeric values. The row must have one
// value per column; rows with missing numeric fields are the caller's problem
// (skipped upstream).
func (c *CovarianceAccumulator) Add(row []float64) {
	c.count++
	inv := 1.0 / float64(c.count)

	// deltas against the pre-update means
	old := make([]float64, c.n)
	for i := 0; i < c.n; i++ {
		old[i] = row[i] - c.means[i]
		c.means[i] += old[i] * inv
	}
	// co-moment update uses old delta for i and new delta for j
	for i := 0; i < c.n; i++ {
		for j := i; j < c.n; j++ {
			c.comoment[c.triIndex(i, j)] += old[i] * (row[j] - c.means[j])
		}
	}
}

// Count returns the number of rows accumulated.
func (c *CovarianceAccumulator) Count() int64 { return c.count }

// Means returns a copy of the running mean vector.
func (c *CovarianceAccumulator) Means() []float64 {
	return append([]float64(nil), c.means...)
}

// Names returns the column names in matrix order.
func (c *CovarianceAccumulator) Names() []string {
	return append([]string(nil), c.names...)
}

// Covariance finalizes the accumulated co-moments into a symmetric sample
// covariance matrix. Returns nil for fewer than 2 rows.
func (c *CovarianceAccumulator) Covariance() [][]float64 {
	if c.count < 2 {
		return nil
	}
	denom := float64(c.count - 1)

	cov := make([][]float64, c.n)
	for i := range cov {
		cov[i] = make([]float64, c.n)
	}
	for i := 0; i < c.n; i++ {
		for j := i; j < c.n; j++ {
			v := c.comoment[c.triIndex(i, j)] / denom
			cov[i][j] = v
			cov[j][i] = v
		}
	}
	return cov
}

// Correlation derives the correlation matrix from a covariance matrix.
// Zero-variance columns get NaN off-diagonal entries and 1 on the diagonal;
// callers exclude such columns from downstream stages.
func Correlation(cov [][]float64) [][]float64 {
	n := len(cov)
	corr := make([][]float64, n)
	std := make([]float64, n)
	for i := 0; i < n; i++ {
		std[i] = math.Sqrt(cov[i][i])
	}
	for i := 0; i < n; i++ {
		corr[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i == j {
				corr[i][j] = 1
				continue
			}
			if std[i] < zeroVarianceEps || std[j] < zeroVarianceEps {
				corr[i][j] = math.NaN()
				continue
			}
			corr[i][j] = cov[i][j] / (std[i] * std[j])
		}
	}
	return corr
}

// ZeroVarianceColumns returns the indices of columns whose variance on the
// covariance diagonal is effectively zero. These are excluded from
// correlation, PCA and clustering with a warning rather than a crash.
func ZeroVarianceColumns(cov [][]float64) []int {
	var idx []int
	for i := range cov {
		if cov[i][i] < zeroVarianceEps {
			idx = append(idx, i)
		}
	}
	return idx
}

// Submatrix returns the covariance restricted to the kept column indices.
func Submatrix(m [][]float64, keep []int) [][]float64 {
	out := make([][]float64, len(keep))
	for a, i := range keep {
		out[a] = make([]float64, len(keep))
		for b, j := range keep {
			out[a][b] = m[i][j]
		}
	}
	return out
}
