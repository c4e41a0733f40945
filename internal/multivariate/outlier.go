package multivariate

import (
	"fmt"
	"math"
)

// Severity labels an outlier by which chi-square confidence cutoff its
// squared distance exceeds.
type Severity string

const (
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityExtreme  Severity = "extreme"
)

// OutlierRecord is one flagged row from the multivariate sample.
type OutlierRecord struct {
	RowIndex            int      `json:"row_index"`
	MahalanobisDistance float64  `json:"mahalanobis_distance"`
	Severity            Severity `json:"severity"`
}

// OutlierResult is the outlier stage output. Regularized reports that the
// covariance matrix needed diagonal regularization before inversion.
type OutlierResult struct {
	Status       StageStatus `json:"status"`
	IsApplicable bool        `json:"is_applicable"`
	Reason       string      `json:"reason,omitempty"`

	Records     []OutlierRecord `json:"records,omitempty"`
	Regularized bool            `json:"regularized,omitempty"`
}

// ConfidenceCutoffs are the chi-square confidence levels defining the
// severity buckets. Heuristic constants carried from the source system;
// overridable through configuration rather than inferred.
type ConfidenceCutoffs struct {
	Moderate float64
	Severe   float64
	Extreme  float64
}

const (
	// regularizationEps is the diagonal loading added to a singular or
	// ill-conditioned covariance matrix before inversion.
	regularizationEps = 1e-6

	// nearSingularDet is the determinant magnitude below which the matrix is
	// treated as singular.
	nearSingularDet = 1e-12
)

func outliersNotApplicable(reason string) OutlierResult {
	return OutlierResult{Status: StageNotApplicable, IsApplicable: false, Reason: reason}
}

// DetectOutliers scores every sampled row by Mahalanobis distance against the
// accumulated mean vector and covariance matrix, bucketing severities against
// chi-square critical values at the configured confidence levels. When the
// covariance is singular it retries after diagonal regularization rather than
// failing; the result is marked Regularized so the caller can emit a
// numerical-instability warning.
func DetectOutliers(points [][]float64, mean []float64, cov [][]float64, cutoffs ConfidenceCutoffs) OutlierResult {
	dims := len(mean)
	if dims == 0 || len(cov) != dims {
		return outliersNotApplicable("insufficient dimensionality: no numeric columns with variance")
	}
	if len(points) == 0 {
		return outliersNotApplicable("insufficient rows: no sampled points")
	}
	if len(points) <= dims {
		return outliersNotApplicable(fmt.Sprintf(
			"insufficient rows: %d points cannot support a %d-dimensional covariance", len(points), dims))
	}

	inv, regularized, ok := invertCovariance(cov)
	if !ok {
		return outliersNotApplicable("covariance matrix is not invertible even after regularization")
	}

	modCut := ChiSquareCritical(dims, cutoffs.Moderate)
	sevCut := ChiSquareCritical(dims, cutoffs.Severe)
	extCut := ChiSquareCritical(dims, cutoffs.Extreme)

	var records []OutlierRecord
	diff := make([]float64, dims)
	for i, p := range points {
		for d := range diff {
			diff[d] = p[d] - mean[d]
		}
		d2 := quadraticForm(diff, inv)
		if d2 < 0 {
			// Rounding can push a near-zero form slightly negative.
			d2 = 0
		}
		if d2 <= modCut {
			continue
		}

		sev := SeverityModerate
		switch {
		case d2 > extCut:
			sev = SeverityExtreme
		case d2 > sevCut:
			sev = SeveritySevere
		}
		records = append(records, OutlierRecord{
			RowIndex:            i,
			MahalanobisDistance: math.Sqrt(d2),
			Severity:            sev,
		})
	}

	return OutlierResult{
		Status:       StageComputed,
		IsApplicable: true,
		Records:      records,
		Regularized:  regularized,
	}
}

// invertCovariance inverts cov by Gauss-Jordan elimination, applying diagonal
// regularization when the matrix is singular or near-singular. The second
// return reports whether regularization was applied.
func invertCovariance(cov [][]float64) ([][]float64, bool, bool) {
	if det := determinant(cov); math.Abs(det) > nearSingularDet {
		if inv, ok := invert(cov); ok {
			return inv, false, true
		}
	}

	n := len(cov)
	reg := make([][]float64, n)
	for i := range reg {
		reg[i] = append([]float64(nil), cov[i]...)
		reg[i][i] += regularizationEps
	}
	inv, ok := invert(reg)
	return inv, true, ok
}

// invert performs Gauss-Jordan elimination with partial pivoting.
func invert(m [][]float64) ([][]float64, bool) {
	n := len(m)

	aug := make([][]float64, n)
	for i := range aug {
		aug[i] = make([]float64, 2*n)
		copy(aug[i], m[i])
		aug[i][n+i] = 1
	}

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(aug[pivot][col]) < 1e-15 {
			return nil, false
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		pv := aug[col][col]
		for c := 0; c < 2*n; c++ {
			aug[col][c] /= pv
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			if factor == 0 {
				continue
			}
			for c := 0; c < 2*n; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}

	inv := make([][]float64, n)
	for i := range inv {
		inv[i] = aug[i][n:]
	}
	return inv, true
}

// determinant computes det(m) by LU-style elimination on a copy.
func determinant(m [][]float64) float64 {
	n := len(m)
	a := make([][]float64, n)
	for i := range a {
		a[i] = append([]float64(nil), m[i]...)
	}

	det := 1.0
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-300 {
			return 0
		}
		if pivot != col {
			a[col], a[pivot] = a[pivot], a[col]
			det = -det
		}
		det *= a[col][col]
		for r := col + 1; r < n; r++ {
			factor := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= factor * a[col][c]
			}
		}
	}
	return det
}

// quadraticForm computes diffᵀ·inv·diff.
func quadraticForm(diff []float64, inv [][]float64) float64 {
	sum := 0.0
	for i := range diff {
		row := 0.0
		for j := range diff {
			row += inv[i][j] * diff[j]
		}
		sum += diff[i] * row
	}
	return sum
}
