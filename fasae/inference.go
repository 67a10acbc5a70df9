package fasae

import (
	"math/rand"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-lpne/model"
	"github.com/tsawler/go-lpne/tensor"
	"github.com/tsawler/go-lpne/triangular"
)

// flatten validates features against the fitted dimensions and views them as
// [n, x].
func (m *Model) flatten(features *tensor.Tensor) (*tensor.Tensor, error) {
	if err := m.checkFitted(); err != nil {
		return nil, err
	}
	if err := model.ValidateFeatures(features); err != nil {
		return nil, err
	}
	if features.Shape[1] != m.params.nFreqs || features.Shape[2] != m.params.nRois {
		return nil, errors.NotValidf("features of shape %v for a model fitted on %d frequencies and %d regions",
			features.Shape, m.params.nFreqs, m.params.nRois)
	}
	return model.Flatten(features)
}

// GetLatents encodes features [n, f, r, r] into latents [n, z]. When
// stochastic, variational encoders sample from the posterior.
func (m *Model) GetLatents(features *tensor.Tensor, stochastic bool) (*mat.Dense, error) {
	flat, err := m.flatten(features)
	if err != nil {
		return nil, err
	}
	var rng *rand.Rand
	if stochastic {
		rng = m.ctx.Rng()
	}
	return model.Chunked(flat, nil, m.ctx.ChunkSize(), func(rows *tensor.Tensor, _ []int) (*mat.Dense, error) {
		z, _ := m.params.latents(m.config, rows, rng)
		return mat.NewDense(z.Shape[0], z.Shape[1], z.Data), nil
	})
}

// PredictProba returns class probabilities [n, n_classes] for features
// [n, f, r, r]. Groups are ignored. Inference is deterministic.
func (m *Model) PredictProba(features *tensor.Tensor, groups []int) (*mat.Dense, error) {
	flat, err := m.flatten(features)
	if err != nil {
		return nil, err
	}
	return model.Chunked(flat, nil, m.ctx.ChunkSize(), func(rows *tensor.Tensor, _ []int) (*mat.Dense, error) {
		z, _ := m.params.latents(m.config, rows, nil)
		return model.SoftmaxRows(m.params.logits(z)), nil
	})
}

// Predict returns the most probable class label for each sample.
func (m *Model) Predict(features *tensor.Tensor, groups []int) ([]int, error) {
	probs, err := m.PredictProba(features, groups)
	if err != nil {
		return nil, err
	}
	return model.PredictFromProba(probs, m.classes)
}

// Score returns the accuracy on ds with every (label, group) pair weighted
// equally. Unlabelled samples are left out of both the numerator and the
// normalizer, so the result is a fraction of the labelled weight rather than
// a mean over all samples. Without unlabelled samples the two agree.
func (m *Model) Score(ds *model.Dataset) (float64, error) {
	if err := m.checkFitted(); err != nil {
		return 0, err
	}
	return model.Score(m, ds)
}

// GetFactor returns factor k as [r(r+1)/2, f]: one frequency curve per region
// pair, normalized like the reconstruction uses it.
func (m *Model) GetFactor(k int) (*mat.Dense, error) {
	if err := m.checkFitted(); err != nil {
		return nil, err
	}
	p := m.params
	if k < 0 || k >= p.zDim {
		return nil, errors.Annotatef(model.ErrOutOfRange, "factor %d of %d", k, p.zDim)
	}

	a := p.factors(m.config).Detach()
	column, err := tensor.NewTensor([]int{p.nFreqs, p.nRois, p.nRois}, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	for i := range column.Data {
		column.Data[i] = a.Data[i*p.zDim+k]
	}
	condensed, err := triangular.Compress(column, 1, 2) // [f, r(r+1)/2]
	if err != nil {
		return nil, errors.Trace(err)
	}
	f := mat.NewDense(condensed.Shape[0], condensed.Shape[1], condensed.Data)
	return mat.DenseCopyOf(f.T()), nil
}

// Reconstruct returns the deterministic reconstruction of features.
func (m *Model) Reconstruct(features *tensor.Tensor, groups []int) (*tensor.Tensor, error) {
	flat, err := m.flatten(features)
	if err != nil {
		return nil, err
	}
	a := m.params.factors(m.config)
	rec, err := model.Chunked(flat, nil, m.ctx.ChunkSize(), func(rows *tensor.Tensor, _ []int) (*mat.Dense, error) {
		z, _ := m.params.latents(m.config, rows, nil)
		xhat := reconstruct(a, z)
		return mat.NewDense(xhat.Shape[0], xhat.Shape[1], xhat.Data), nil
	})
	if err != nil {
		return nil, err
	}
	out := tensor.FromDense(rec)
	return out.Reshape(features.Shape)
}
