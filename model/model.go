// Package model holds the contract shared by the factor models: the dataset
// record they are fitted on, their common errors, chunked inference helpers,
// scoring and a registry for restoring saved models by name.
package model

import (
	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-lpne/checkpoints"
	"github.com/tsawler/go-lpne/tensor"
	"github.com/tsawler/go-lpne/training"
)

const (
	// InvalidLabel marks unlabelled samples. They are reconstructed but
	// ignored by the classifier.
	InvalidLabel = training.InvalidLabel
	// InvalidGroup is reserved. Groups unseen during fit are encoded with it.
	InvalidGroup = -1
)

const (
	ErrNotFitted  = errors.ConstError("model is not fitted")
	ErrOutOfRange = errors.ConstError("index out of range")
)

// Estimator is a supervised factor model.
type Estimator interface {
	// Name identifies the model variant in saved state.
	Name() string

	Fit(ds *Dataset) error
	// PredictProba returns [n, n_classes] class probabilities. groups may be
	// nil for models that ignore them.
	PredictProba(features *tensor.Tensor, groups []int) (*mat.Dense, error)
	Predict(features *tensor.Tensor, groups []int) ([]int, error)
	Score(ds *Dataset) (float64, error)
	// GetFactor returns factor k as [n_roi_pairs, n_freqs].
	GetFactor(k int) (*mat.Dense, error)
	// Reconstruct returns the model's deterministic reconstruction of
	// features, with the same shape.
	Reconstruct(features *tensor.Tensor, groups []int) (*tensor.Tensor, error)

	Classes() []int
	Params() map[string]any
	SetParams(params map[string]any) error
	State() (*checkpoints.Checkpoint, error)
	SetState(cp *checkpoints.Checkpoint) error
}

// Dataset is an in-memory training set.
type Dataset struct {
	Features *tensor.Tensor // [n, n_freqs, n_rois, n_rois]
	Labels   []int
	Groups   []int
}

// ValidateFeatures checks that features is a non-empty [n, f, r, r] tensor.
func ValidateFeatures(features *tensor.Tensor) error {
	if features == nil {
		return errors.NotValidf("nil features")
	}
	if len(features.Shape) != 4 {
		return errors.NotValidf("features of shape %v, expected [n, n_freqs, n_rois, n_rois]", features.Shape)
	}
	if features.Shape[2] != features.Shape[3] {
		return errors.NotValidf("features of shape %v are not square in the region axes", features.Shape)
	}
	return nil
}

// Validate checks shapes and lengths.
func (d *Dataset) Validate() error {
	if err := ValidateFeatures(d.Features); err != nil {
		return err
	}
	n := d.Features.Shape[0]
	if len(d.Labels) != n {
		return errors.NotValidf("%d labels for %d samples", len(d.Labels), n)
	}
	if len(d.Groups) != n {
		return errors.NotValidf("%d groups for %d samples", len(d.Groups), n)
	}
	return nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return d.Features.Shape[0]
}

// Dims returns the number of frequencies and regions.
func (d *Dataset) Dims() (nFreqs, nRois int) {
	return d.Features.Shape[1], d.Features.Shape[2]
}

// Subset copies the samples at idx into a new dataset.
func (d *Dataset) Subset(idx []int) (*Dataset, error) {
	if len(idx) == 0 {
		return nil, errors.NotValidf("empty subset")
	}
	n := d.Len()
	stride := d.Features.NumElems / n
	shape := append([]int{len(idx)}, d.Features.Shape[1:]...)
	features, err := tensor.Zeros(shape)
	if err != nil {
		return nil, errors.Trace(err)
	}
	sub := &Dataset{
		Features: features,
		Labels:   make([]int, len(idx)),
		Groups:   make([]int, len(idx)),
	}
	for i, j := range idx {
		if j < 0 || j >= n {
			return nil, errors.Annotatef(ErrOutOfRange, "sample %d of %d", j, n)
		}
		copy(features.Data[i*stride:(i+1)*stride], d.Features.Data[j*stride:(j+1)*stride])
		sub.Labels[i] = d.Labels[j]
		sub.Groups[i] = d.Groups[j]
	}
	return sub, nil
}

// Flatten views features [n, f, r, r] as [n, f*r*r] without copying.
func Flatten(features *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := features.Reshape([]int{features.Shape[0], -1})
	return out, errors.Trace(err)
}
