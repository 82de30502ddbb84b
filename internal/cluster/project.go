package cluster

import (
	"errors"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrTooFewPoints is returned when projection is requested for fewer than two documents.
var ErrTooFewPoints = errors.New("projection needs at least two documents")

// Project2D fits a principal component projection on the batch and returns the first two
// component scores per embedding. Axes beyond the available components are zero.
func Project2D(embeddings [][]float32) ([][2]float64, error) {
	n := len(embeddings)
	if n < 2 {
		return nil, ErrTooFewPoints
	}
	data := toFloat64(embeddings)
	d := len(data[0])
	a := mat.NewDense(n, d, nil)
	for i, row := range data {
		if len(row) != d {
			return nil, errors.New("embedding dimension mismatch")
		}
		a.SetRow(i, row)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(a, nil); !ok {
		return nil, errors.New("principal component analysis failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	_, cols := vecs.Dims()
	r := 2
	if cols < r {
		r = cols
	}

	centered := mat.NewDense(n, d, nil)
	for j := 0; j < d; j++ {
		col := mat.Col(nil, j, a)
		mean := stat.Mean(col, nil)
		for i := range col {
			centered.Set(i, j, col[i]-mean)
		}
	}
	var proj mat.Dense
	proj.Mul(centered, vecs.Slice(0, d, 0, r))

	out := make([][2]float64, n)
	for i := 0; i < n; i++ {
		for c := 0; c < r; c++ {
			out[i][c] = proj.At(i, c)
		}
	}
	return out, nil
}
