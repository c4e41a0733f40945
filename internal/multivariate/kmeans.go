package multivariate

import (
	"context"
	"fmt"
	"math"
	"math/rand"
)

// ClusteringConfig controls the candidate-k search.
type ClusteringConfig struct {
	MaxClusters           int
	Restarts              int
	MaxIterations         int
	SilhouetteSampleLimit int
	MinSamples            int
	Seed                  int64

	// StabilityAnalysis attaches per-k restart-stability reports: how much
	// the achieved inertia varied across the k-means++ restarts.
	StabilityAnalysis bool
}

// ClusterRun is one k-means outcome with its validity metrics.
type ClusterRun struct {
	K          int         `json:"k"`
	Centroids  [][]float64 `json:"centroids"`
	Labels     []int       `json:"labels"`
	Validation Validation  `json:"validation"`

	// Stability is populated only when stability analysis is enabled.
	Stability *StabilityReport `json:"stability,omitempty"`
}

// StabilityReport summarizes inertia dispersion across the restarts of one
// candidate k. A small spread means the partition is robust to seeding.
type StabilityReport struct {
	Restarts      int     `json:"restarts"`
	BestInertia   float64 `json:"best_inertia"`
	MeanInertia   float64 `json:"mean_inertia"`
	InertiaStdDev float64 `json:"inertia_std_dev"`
}

// Validation bundles the cluster validity metrics for one k.
type Validation struct {
	Inertia          float64 `json:"inertia"`
	SilhouetteScore  float64 `json:"silhouette_score"`
	CalinskiHarabasz float64 `json:"calinski_harabasz"`
	DaviesBouldin    float64 `json:"davies_bouldin"`
}

// OptimalClusters reports the two independent k signals and the final pick.
type OptimalClusters struct {
	Elbow       int `json:"elbow"`
	Silhouette  int `json:"silhouette"`
	Recommended int `json:"recommended"`
}

// ClusteringResult is the full clustering stage output.
type ClusteringResult struct {
	Status       StageStatus `json:"status"`
	IsApplicable bool        `json:"is_applicable"`
	Reason       string      `json:"reason,omitempty"`

	OptimalClusters OptimalClusters `json:"optimal_clusters"`
	FinalClustering *ClusterRun     `json:"final_clustering,omitempty"`
	ClusterSizes    []int           `json:"cluster_sizes,omitempty"`
	CandidateRuns   []ClusterRun    `json:"candidate_runs,omitempty"`
}

func clusteringNotApplicable(reason string) ClusteringResult {
	return ClusteringResult{Status: StageNotApplicable, IsApplicable: false, Reason: reason}
}

// identicalPointsEps bounds the total variance below which the data is
// treated as a constant set.
const identicalPointsEps = 1e-12

// Cluster searches k in [2, min(cfg.MaxClusters, rows/2)] with k-means++
// seeding and cfg.Restarts restarts per k, keeping the lowest-inertia run.
// The ctx is checked between candidate k values so very large samples do not
// starve the caller.
func Cluster(ctx context.Context, points [][]float64, cfg ClusteringConfig) ClusteringResult {
	n := len(points)
	if n == 0 {
		return clusteringNotApplicable("insufficient rows: no sampled points")
	}
	dims := len(points[0])
	if dims < 2 {
		return clusteringNotApplicable(fmt.Sprintf(
			"insufficient dimensionality: clustering needs at least 2 numeric columns, have %d", dims))
	}
	// Constant set: every point identical. Declare one cluster directly,
	// before any sample-size gating, instead of running k-means on zero
	// variance.
	if totalVariance(points) < identicalPointsEps {
		labels := make([]int, n)
		centroid := append([]float64(nil), points[0]...)
		run := &ClusterRun{
			K:         1,
			Centroids: [][]float64{centroid},
			Labels:    labels,
		}
		return ClusteringResult{
			Status:          StageComputed,
			IsApplicable:    true,
			Reason:          "all points identical (zero variance); clustering degenerates to a single cluster",
			OptimalClusters: OptimalClusters{Elbow: 1, Silhouette: 1, Recommended: 1},
			FinalClustering: run,
			ClusterSizes:    []int{n},
		}
	}

	if n < cfg.MinSamples || n < 4 {
		return clusteringNotApplicable(fmt.Sprintf("insufficient rows: %d sampled points", n))
	}

	maxK := cfg.MaxClusters
	if half := n / 2; half < maxK {
		maxK = half
	}
	if maxK < 2 {
		return clusteringNotApplicable(fmt.Sprintf("insufficient rows: %d points support no k >= 2", n))
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	rng := rand.New(rand.NewSource(seed))

	runs := make([]ClusterRun, 0, maxK-1)
	for k := 2; k <= maxK; k++ {
		select {
		case <-ctx.Done():
			// Best-effort: stop extending the candidate list; the caller
			// records the cancellation warning.
			return pickOptimal(runs)
		default:
		}

		best := kmeansBestOf(points, k, cfg, rng)
		best.Validation.SilhouetteScore = silhouette(points, best.Labels, k, cfg.SilhouetteSampleLimit, rng)
		best.Validation.CalinskiHarabasz = calinskiHarabasz(points, best.Labels, best.Centroids)
		best.Validation.DaviesBouldin = daviesBouldin(points, best.Labels, best.Centroids)
		runs = append(runs, best)
	}

	return pickOptimal(runs)
}

// pickOptimal combines the elbow and silhouette signals into a recommendation
// and assembles the final result around the recommended run.
func pickOptimal(runs []ClusterRun) ClusteringResult {
	if len(runs) == 0 {
		return clusteringNotApplicable("no candidate clusterings completed")
	}

	elbowK := elbowPick(runs)
	silK := runs[0].K
	bestSil := math.Inf(-1)
	for _, r := range runs {
		if r.Validation.SilhouetteScore > bestSil {
			bestSil = r.Validation.SilhouetteScore
			silK = r.K
		}
	}

	// Prefer the silhouette pick; fall back to the elbow when silhouette is
	// uninformative (all scores at or below zero).
	recommended := silK
	if bestSil <= 0 {
		recommended = elbowK
	}

	var final *ClusterRun
	for i := range runs {
		if runs[i].K == recommended {
			final = &runs[i]
			break
		}
	}
	if final == nil {
		final = &runs[0]
		recommended = final.K
	}

	sizes := make([]int, final.K)
	for _, l := range final.Labels {
		sizes[l]++
	}

	return ClusteringResult{
		Status:          StageComputed,
		IsApplicable:    true,
		OptimalClusters: OptimalClusters{Elbow: elbowK, Silhouette: silK, Recommended: recommended},
		FinalClustering: final,
		ClusterSizes:    sizes,
		CandidateRuns:   runs,
	}
}

// elbowPick finds the k with the largest second-derivative drop in the
// inertia-vs-k curve. With fewer than 3 candidates it returns the first k.
func elbowPick(runs []ClusterRun) int {
	if len(runs) < 3 {
		return runs[0].K
	}
	bestK := runs[1].K
	bestCurve := math.Inf(-1)
	for i := 1; i < len(runs)-1; i++ {
		curve := runs[i-1].Validation.Inertia - 2*runs[i].Validation.Inertia + runs[i+1].Validation.Inertia
		if curve > bestCurve {
			bestCurve = curve
			bestK = runs[i].K
		}
	}
	return bestK
}

// kmeansBestOf runs cfg.Restarts k-means++ attempts and keeps the lowest
// inertia, optionally reporting inertia dispersion across the restarts.
func kmeansBestOf(points [][]float64, k int, cfg ClusteringConfig, rng *rand.Rand) ClusterRun {
	best := ClusterRun{K: k, Validation: Validation{Inertia: math.Inf(1)}}
	restarts := cfg.Restarts
	if restarts < 1 {
		restarts = 1
	}
	inertias := make([]float64, 0, restarts)
	for r := 0; r < restarts; r++ {
		centroids, labels, inertia := kmeansOnce(points, k, cfg.MaxIterations, rng)
		inertias = append(inertias, inertia)
		if inertia < best.Validation.Inertia {
			best.Centroids = centroids
			best.Labels = labels
			best.Validation.Inertia = inertia
		}
	}
	if cfg.StabilityAnalysis {
		best.Stability = stabilityReport(inertias, best.Validation.Inertia)
	}
	return best
}

func stabilityReport(inertias []float64, bestInertia float64) *StabilityReport {
	mean := 0.0
	for _, v := range inertias {
		mean += v
	}
	mean /= float64(len(inertias))

	variance := 0.0
	for _, v := range inertias {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(inertias))

	return &StabilityReport{
		Restarts:      len(inertias),
		BestInertia:   bestInertia,
		MeanInertia:   mean,
		InertiaStdDev: math.Sqrt(variance),
	}
}

// kmeansOnce is one Lloyd run from a k-means++ seeding.
func kmeansOnce(points [][]float64, k, maxIter int, rng *rand.Rand) ([][]float64, []int, float64) {
	n := len(points)
	dims := len(points[0])
	centroids := seedPlusPlus(points, k, rng)
	labels := make([]int, n)

	if maxIter < 1 {
		maxIter = 1
	}
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, p := range points {
			best := 0
			bestDist := math.Inf(1)
			for c, cent := range centroids {
				if d := sqDist(p, cent); d < bestDist {
					bestDist = d
					best = c
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, p := range points {
			c := labels[i]
			counts[c]++
			for d, v := range p {
				sums[c][d] += v
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				// Re-seed an empty cluster at a random point.
				centroids[c] = append([]float64(nil), points[rng.Intn(n)]...)
				changed = true
				continue
			}
			for d := 0; d < dims; d++ {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}

		if !changed {
			break
		}
	}

	inertia := 0.0
	for i, p := range points {
		inertia += sqDist(p, centroids[labels[i]])
	}
	return centroids, labels, inertia
}

// seedPlusPlus picks initial centroids with the k-means++ distribution:
// the first uniformly, the rest proportional to squared distance from the
// nearest chosen centroid.
func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, append([]float64(nil), points[rng.Intn(n)]...))

	dist := make([]float64, n)
	for len(centroids) < k {
		total := 0.0
		for i, p := range points {
			d := math.Inf(1)
			for _, c := range centroids {
				if v := sqDist(p, c); v < d {
					d = v
				}
			}
			dist[i] = d
			total += d
		}

		if total == 0 {
			centroids = append(centroids, append([]float64(nil), points[rng.Intn(n)]...))
			continue
		}
		target := rng.Float64() * total
		cum := 0.0
		chosen := n - 1
		for i, d := range dist {
			cum += d
			if cum >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, append([]float64(nil), points[chosen]...))
	}
	return centroids
}

func sqDist(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func totalVariance(points [][]float64) float64 {
	n := len(points)
	dims := len(points[0])
	mean := make([]float64, dims)
	for _, p := range points {
		for d, v := range p {
			mean[d] += v
		}
	}
	for d := range mean {
		mean[d] /= float64(n)
	}
	total := 0.0
	for _, p := range points {
		total += sqDist(p, mean)
	}
	return total
}
