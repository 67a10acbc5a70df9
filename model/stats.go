package model

import (
	"sort"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/tsawler/go-lpne/tensor"
)

// ReconstructionSummary describes how well a model reproduces its input.
type ReconstructionSummary struct {
	R2       []float64 `json:"r2"` // per sample coefficient of determination
	MeanR2   float64   `json:"mean_r2"`
	MedianR2 float64   `json:"median_r2"`
	MinR2    float64   `json:"min_r2"`
	MaxR2    float64   `json:"max_r2"`
	MSE      float64   `json:"mse"`
}

// ReconstructionStats compares features with their reconstruction sample by
// sample. Both tensors must have the same shape with samples on the first
// axis.
func ReconstructionStats(features, reconstruction *tensor.Tensor) (*ReconstructionSummary, error) {
	if features.NumElems != reconstruction.NumElems || features.Shape[0] != reconstruction.Shape[0] {
		return nil, errors.NotValidf("reconstruction of shape %v for features of shape %v", reconstruction.Shape, features.Shape)
	}
	n := features.Shape[0]
	stride := features.NumElems / n

	summary := &ReconstructionSummary{R2: make([]float64, n)}
	residual := make([]float64, stride)
	sse := 0.0
	for i := 0; i < n; i++ {
		x := features.Data[i*stride : (i+1)*stride]
		floats.SubTo(residual, x, reconstruction.Data[i*stride:(i+1)*stride])
		res := floats.Dot(residual, residual)
		sse += res

		mean := stat.Mean(x, nil)
		tot := 0.0
		for _, v := range x {
			tot += (v - mean) * (v - mean)
		}
		if tot > 0 {
			summary.R2[i] = 1 - res/tot
		} else if res == 0 {
			summary.R2[i] = 1
		}
	}
	summary.MSE = sse / float64(features.NumElems)

	sorted := append([]float64(nil), summary.R2...)
	sort.Float64s(sorted)
	summary.MeanR2 = stat.Mean(sorted, nil)
	summary.MedianR2 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	summary.MinR2 = sorted[0]
	summary.MaxR2 = sorted[n-1]
	return summary, nil
}
