package cluster

import (
	"errors"
	"fmt"
)

const (
	// DefaultMaxClusters is used when no positive maximum is configured.
	DefaultMaxClusters = 5
	// DefaultSeed is the fixed k-means seed so a batch always clusters the same way.
	DefaultSeed int64 = 42
	// DefaultMaxIterations bounds Lloyd iterations.
	DefaultMaxIterations = 300
)

var (
	// ErrEmbeddingIncomplete means at least one document has no embedding; the whole
	// batch is left unclustered.
	ErrEmbeddingIncomplete = errors.New("embedding incomplete: clustering skipped")
	// ErrNoDocuments means clustering was requested for an empty batch.
	ErrNoDocuments = errors.New("no documents to cluster")
)

// Options configure Assign.
type Options struct {
	MaxClusters   int
	Seed          int64
	MaxIterations int
}

// EffectiveK returns min(maxClusters, n), with maxClusters defaulting to DefaultMaxClusters.
func EffectiveK(maxClusters, n int) int {
	if maxClusters <= 0 {
		maxClusters = DefaultMaxClusters
	}
	if n < maxClusters {
		return n
	}
	return maxClusters
}

// Assign gives every embedding a cluster id in [0, k), k = EffectiveK(opts.MaxClusters, len(embeddings)).
// A single embedding is always cluster 0. If any embedding is missing, nothing is assigned
// and ErrEmbeddingIncomplete is returned.
func Assign(embeddings [][]float32, opts Options) (ids []int, k int, err error) {
	n := len(embeddings)
	if n == 0 {
		return nil, 0, ErrNoDocuments
	}
	dim := -1
	for i, e := range embeddings {
		if len(e) == 0 {
			return nil, 0, fmt.Errorf("%w: document %d has no embedding", ErrEmbeddingIncomplete, i)
		}
		if dim == -1 {
			dim = len(e)
		} else if len(e) != dim {
			return nil, 0, fmt.Errorf("embedding dimension mismatch: document %d has %d, expected %d", i, len(e), dim)
		}
	}
	k = EffectiveK(opts.MaxClusters, n)
	if n == 1 {
		return []int{0}, k, nil
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	km := KMeans{K: k, Seed: opts.Seed, MaxIterations: maxIter, Tolerance: 1e-9}
	return km.Fit(toFloat64(embeddings)), k, nil
}

func toFloat64(embeddings [][]float32) [][]float64 {
	out := make([][]float64, len(embeddings))
	for i, e := range embeddings {
		row := make([]float64, len(e))
		for j, v := range e {
			row[j] = float64(v)
		}
		out[i] = row
	}
	return out
}
