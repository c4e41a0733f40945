package multivariate

import "math"

// Chi-square critical values for the confidence levels used by the severity
// buckets, indexed by degrees of freedom 1..30. Standard distribution tables;
// dimensions outside the table fall back to the Wilson-Hilferty
// approximation.
var chiSquareTable = map[float64][30]float64{
	0.95: {
		3.841, 5.991, 7.815, 9.488, 11.070, 12.592, 14.067, 15.507, 16.919, 18.307,
		19.675, 21.026, 22.362, 23.685, 24.996, 26.296, 27.587, 28.869, 30.144, 31.410,
		32.671, 33.924, 35.172, 36.415, 37.652, 38.885, 40.113, 41.337, 42.557, 43.773,
	},
	0.99: {
		6.635, 9.210, 11.345, 13.277, 15.086, 16.812, 18.475, 20.090, 21.666, 23.209,
		24.725, 26.217, 27.688, 29.141, 30.578, 32.000, 33.409, 34.805, 36.191, 37.566,
		38.932, 40.289, 41.638, 42.980, 44.314, 45.642, 46.963, 48.278, 49.588, 50.892,
	},
	0.999: {
		10.828, 13.816, 16.266, 18.467, 20.515, 22.458, 24.322, 26.124, 27.877, 29.588,
		31.264, 32.909, 34.528, 36.123, 37.697, 39.252, 40.790, 42.312, 43.820, 45.315,
		46.797, 48.268, 49.728, 51.179, 52.620, 54.052, 55.476, 56.892, 58.301, 59.703,
	},
}

// ChiSquareCritical returns the chi-square critical value for df degrees of
// freedom at the given confidence level. Exact table lookup for the standard
// levels up to df 30, Wilson-Hilferty approximation otherwise.
func ChiSquareCritical(df int, confidence float64) float64 {
	if df < 1 {
		df = 1
	}
	if table, ok := chiSquareTable[confidence]; ok && df <= len(table) {
		return table[df-1]
	}
	return wilsonHilferty(df, confidence)
}

// wilsonHilferty approximates the chi-square quantile via the cube of a
// shifted normal quantile.
func wilsonHilferty(df int, confidence float64) float64 {
	z := normalQuantile(confidence)
	k := float64(df)
	term := 1 - 2/(9*k) + z*math.Sqrt(2/(9*k))
	return k * term * term * term
}

// normalQuantile inverts the standard normal CDF using the Acklam rational
// approximation, accurate to ~1e-9 over (0,1).
func normalQuantile(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}

	a := []float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	b := []float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01}
	c := []float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	d := []float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00,
		3.754408661907416e+00}

	const pLow = 0.02425
	switch {
	case p < pLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p > 1-pLow:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	default:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	}
}
