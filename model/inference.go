package model

import (
	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-lpne/tensor"
	"github.com/tsawler/go-lpne/training"
)

// ChunkFunc evaluates one chunk of flattened rows [m, x] together with the
// matching slice of groups (nil when the caller passed none).
type ChunkFunc func(rows *tensor.Tensor, groups []int) (*mat.Dense, error)

// Chunked evaluates fn over rows of flat in chunks of at most chunkSize and
// stacks the results. The output does not depend on chunkSize.
func Chunked(flat *tensor.Tensor, groups []int, chunkSize int, fn ChunkFunc) (*mat.Dense, error) {
	if len(flat.Shape) != 2 {
		return nil, errors.NotValidf("chunked input of shape %v", flat.Shape)
	}
	n := flat.Shape[0]
	if groups != nil && len(groups) != n {
		return nil, errors.NotValidf("%d groups for %d samples", len(groups), n)
	}
	if chunkSize < 1 {
		chunkSize = n
	}

	var out *mat.Dense
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		rows, err := tensor.SliceRows(flat, start, end)
		if err != nil {
			return nil, errors.Trace(err)
		}
		var chunkGroups []int
		if groups != nil {
			chunkGroups = groups[start:end]
		}
		part, err := fn(rows, chunkGroups)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if out == nil {
			_, c := part.Dims()
			out = mat.NewDense(n, c, nil)
		}
		out.Slice(start, end, 0, out.RawMatrix().Cols).(*mat.Dense).Copy(part)
	}
	return out, nil
}

// SoftmaxRows converts a logit matrix into row-wise probabilities.
func SoftmaxRows(logits *tensor.Tensor) *mat.Dense {
	probs := tensor.Softmax(logits)
	return mat.NewDense(probs.Shape[0], probs.Shape[1], probs.Data)
}

// PredictFromProba maps each row's most probable column onto classes.
func PredictFromProba(probs *mat.Dense, classes []int) ([]int, error) {
	r, c := probs.Dims()
	if c != len(classes) {
		return nil, errors.NotValidf("%d probability columns for %d classes", c, len(classes))
	}
	predictions := make([]int, r)
	for i := 0; i < r; i++ {
		best := 0
		for j := 1; j < c; j++ {
			if probs.At(i, j) > probs.At(i, best) {
				best = j
			}
		}
		predictions[i] = classes[best]
	}
	return predictions, nil
}

// WeightedScore returns the accuracy of predictions with every (label,
// group) pair weighted equally. Unlabelled samples are ignored: the correct
// weight is divided by the total weight of labelled samples, not averaged
// over all n samples, so a dataset with sentinels still scores 1 when every
// labelled prediction is right.
func WeightedScore(labels, groups, predictions []int) (float64, error) {
	weights, err := training.SampleWeights(labels, groups)
	if err != nil {
		return 0, errors.Trace(err)
	}
	score, err := training.WeightedAccuracy(labels, predictions, weights)
	return score, errors.Trace(err)
}

// Score predicts ds with est and returns the weighted accuracy.
func Score(est Estimator, ds *Dataset) (float64, error) {
	if err := ds.Validate(); err != nil {
		return 0, err
	}
	predictions, err := est.Predict(ds.Features, ds.Groups)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return WeightedScore(ds.Labels, ds.Groups, predictions)
}
