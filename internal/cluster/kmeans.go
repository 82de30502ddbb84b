// Package cluster partitions document embeddings and projects them to 2D for plotting.
package cluster

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// KMeans is Lloyd's algorithm with k-means++ seeding driven by a fixed seed,
// so the same input always yields the same partition.
type KMeans struct {
	K             int
	Seed          int64
	MaxIterations int
	Tolerance     float64
}

// Fit returns one cluster id in [0, K) per row of data. Rows must share a dimension.
// Clusters may end up empty; ids are never renumbered.
func (km KMeans) Fit(data [][]float64) []int {
	n := len(data)
	labels := make([]int, n)
	if n == 0 || km.K <= 1 {
		return labels
	}
	k := km.K
	if k > n {
		k = n
	}
	maxIter := km.MaxIterations
	if maxIter <= 0 {
		maxIter = 300
	}
	rng := rand.New(rand.NewSource(km.Seed))
	centroids := seedPlusPlus(data, k, rng)
	dim := len(data[0])

	for i := range labels {
		labels[i] = -1
	}
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, row := range data {
			best := nearest(row, centroids)
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		shift := 0.0
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, row := range data {
			floats.Add(sums[labels[i]], row)
			counts[labels[i]]++
		}
		for c := range centroids {
			if counts[c] == 0 {
				// empty cluster keeps its previous centroid
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			if d := floats.Distance(centroids[c], sums[c], 2); d > shift {
				shift = d
			}
			centroids[c] = sums[c]
		}
		if shift <= km.Tolerance {
			for i, row := range data {
				labels[i] = nearest(row, centroids)
			}
			break
		}
	}
	return labels
}

// seedPlusPlus picks k initial centroids: the first uniformly, the rest with
// probability proportional to squared distance from the nearest chosen centroid.
func seedPlusPlus(data [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := rng.Intn(len(data))
	centroids = append(centroids, append([]float64(nil), data[first]...))
	dist := make([]float64, len(data))
	for len(centroids) < k {
		total := 0.0
		for i, row := range data {
			d := floats.Distance(row, centroids[nearest(row, centroids)], 2)
			dist[i] = d * d
			total += dist[i]
		}
		var pick int
		if total == 0 {
			pick = rng.Intn(len(data))
		} else {
			target := rng.Float64() * total
			pick = len(data) - 1
			for i, d := range dist {
				target -= d
				if target <= 0 {
					pick = i
					break
				}
			}
		}
		centroids = append(centroids, append([]float64(nil), data[pick]...))
	}
	return centroids
}

// nearest returns the index of the closest centroid; ties go to the lowest index.
func nearest(row []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := floats.Distance(row, centroid, 2); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
