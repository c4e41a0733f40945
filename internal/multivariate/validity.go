package multivariate

import (
	"math"
	"math/rand"
)

// silhouette computes the mean silhouette coefficient over the labelled
// points. Silhouette is O(n²) in pairwise distances, so when n exceeds
// sampleLimit a uniform subsample of that size is scored instead; neighbour
// distances are still measured against the full point set of each cluster
// within the subsample.
func silhouette(points [][]float64, labels []int, k, sampleLimit int, rng *rand.Rand) float64 {
	n := len(points)
	if k < 2 || n < 3 {
		return 0
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if sampleLimit > 0 && n > sampleLimit {
		rng.Shuffle(n, func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		idx = idx[:sampleLimit]
	}

	// Group the (sub)sample by cluster.
	byCluster := make([][]int, k)
	for _, i := range idx {
		l := labels[i]
		byCluster[l] = append(byCluster[l], i)
	}

	total := 0.0
	counted := 0
	for _, i := range idx {
		own := labels[i]
		if len(byCluster[own]) < 2 {
			// Silhouette undefined for singleton clusters; conventionally 0.
			continue
		}

		// a: mean distance to own cluster (excluding self)
		a := 0.0
		for _, j := range byCluster[own] {
			if j == i {
				continue
			}
			a += math.Sqrt(sqDist(points[i], points[j]))
		}
		a /= float64(len(byCluster[own]) - 1)

		// b: smallest mean distance to any other cluster
		b := math.Inf(1)
		for c := 0; c < k; c++ {
			if c == own || len(byCluster[c]) == 0 {
				continue
			}
			d := 0.0
			for _, j := range byCluster[c] {
				d += math.Sqrt(sqDist(points[i], points[j]))
			}
			d /= float64(len(byCluster[c]))
			if d < b {
				b = d
			}
		}
		if math.IsInf(b, 1) {
			continue
		}

		denom := math.Max(a, b)
		if denom > 0 {
			total += (b - a) / denom
		}
		counted++
	}

	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}

// calinskiHarabasz is the between/within dispersion ratio; higher is better.
func calinskiHarabasz(points [][]float64, labels []int, centroids [][]float64) float64 {
	n := len(points)
	k := len(centroids)
	if k < 2 || n <= k {
		return 0
	}
	dims := len(points[0])

	overall := make([]float64, dims)
	for _, p := range points {
		for d, v := range p {
			overall[d] += v
		}
	}
	for d := range overall {
		overall[d] /= float64(n)
	}

	counts := make([]int, k)
	within := 0.0
	for i, p := range points {
		counts[labels[i]]++
		within += sqDist(p, centroids[labels[i]])
	}

	between := 0.0
	for c, cent := range centroids {
		between += float64(counts[c]) * sqDist(cent, overall)
	}

	if within == 0 {
		return 0
	}
	return (between / float64(k-1)) / (within / float64(n-k))
}

// daviesBouldin is the mean worst-case ratio of intra-cluster scatter to
// centroid separation; lower is better.
func daviesBouldin(points [][]float64, labels []int, centroids [][]float64) float64 {
	k := len(centroids)
	if k < 2 {
		return 0
	}

	counts := make([]int, k)
	scatter := make([]float64, k)
	for i, p := range points {
		c := labels[i]
		counts[c]++
		scatter[c] += math.Sqrt(sqDist(p, centroids[c]))
	}
	for c := range scatter {
		if counts[c] > 0 {
			scatter[c] /= float64(counts[c])
		}
	}

	sum := 0.0
	for i := 0; i < k; i++ {
		worst := 0.0
		for j := 0; j < k; j++ {
			if i == j {
				continue
			}
			sep := math.Sqrt(sqDist(centroids[i], centroids[j]))
			if sep == 0 {
				continue
			}
			if r := (scatter[i] + scatter[j]) / sep; r > worst {
				worst = r
			}
		}
		sum += worst
	}
	return sum / float64(k)
}
