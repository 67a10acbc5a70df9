package cpsae

import (
	"math/rand"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-lpne/model"
	"github.com/tsawler/go-lpne/tensor"
	"github.com/tsawler/go-lpne/training"
	"github.com/tsawler/go-lpne/triangular"
)

// prepare validates features against the fitted dimensions and maps groups
// to embedding rows. Unseen groups, or every sample when groups is nil, use
// the unseen row.
func (m *Model) prepare(features *tensor.Tensor, groups []int) (*tensor.Tensor, []int, error) {
	if err := m.checkFitted(); err != nil {
		return nil, nil, err
	}
	if err := model.ValidateFeatures(features); err != nil {
		return nil, nil, err
	}
	p := m.params
	if features.Shape[1] != p.nFreqs || features.Shape[2] != p.nRois {
		return nil, nil, errors.NotValidf("features of shape %v for a model fitted on %d frequencies and %d regions",
			features.Shape, p.nFreqs, p.nRois)
	}
	n := features.Shape[0]
	var index []int
	switch {
	case groups == nil:
		index = make([]int, n)
		for i := range index {
			index[i] = p.nGroups
		}
	case len(groups) != n:
		return nil, nil, errors.NotValidf("%d groups for %d samples", len(groups), n)
	default:
		index = training.EncodeGroups(groups, m.groups)
		for i, g := range index {
			if g == model.InvalidGroup {
				index[i] = p.nGroups
			}
		}
	}
	flat, err := model.Flatten(features)
	return flat, index, errors.Trace(err)
}

// latents encodes rows with their embedding rows. With a non-nil rng both the
// group embeddings and the latents are sampled.
func (p *params) latents(rows *tensor.Tensor, embeddings *tensor.Tensor, index []int, rng *rand.Rand) *tensor.Tensor {
	mu, std := p.posterior(rows, tensor.GatherRowsAutograd(embeddings, index))
	if rng == nil {
		return mu
	}
	noise, _ := tensor.RandomNormal(mu.Shape, 0, 1, rng)
	return tensor.AddAutograd(mu, tensor.MulAutograd(std, noise))
}

// GetLatents encodes features [n, f, r, r] into latents [n, z].
func (m *Model) GetLatents(features *tensor.Tensor, groups []int, stochastic bool) (*mat.Dense, error) {
	flat, index, err := m.prepare(features, groups)
	if err != nil {
		return nil, err
	}
	var rng *rand.Rand
	if stochastic {
		rng = m.ctx.Rng()
	}
	p := m.params
	embeddings := p.withUnseen(p.groupLatents(rng))
	return model.Chunked(flat, index, m.ctx.ChunkSize(), func(rows *tensor.Tensor, idx []int) (*mat.Dense, error) {
		z := p.latents(rows, embeddings, idx, rng)
		return mat.NewDense(z.Shape[0], z.Shape[1], z.Data), nil
	})
}

// PredictProba returns class probabilities [n, n_classes]. Inference is
// deterministic: known groups use their posterior mean embedding and unseen
// groups the prior mean.
func (m *Model) PredictProba(features *tensor.Tensor, groups []int) (*mat.Dense, error) {
	flat, index, err := m.prepare(features, groups)
	if err != nil {
		return nil, err
	}
	p := m.params
	embeddings := p.withUnseen(p.groupLatents(nil))
	return model.Chunked(flat, index, m.ctx.ChunkSize(), func(rows *tensor.Tensor, idx []int) (*mat.Dense, error) {
		return model.SoftmaxRows(p.logits(p.latents(rows, embeddings, idx, nil))), nil
	})
}

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

// GetFactor returns factor k of the prior-mean projection as
// [r(r+1)/2, f].
func (m *Model) GetFactor(k int) (*mat.Dense, error) {
	if err := m.checkFitted(); err != nil {
		return nil, err
	}
	p := m.params
	if k < 0 || k >= p.zDim {
		return nil, errors.Annotatef(model.ErrOutOfRange, "factor %d of %d", k, p.zDim)
	}

	zero, _ := tensor.Zeros([]int{1, p.embedDim})
	freq, roi1, roi2 := p.factors(zero)
	onehot, _ := tensor.Zeros([]int{1, p.zDim})
	onehot.Data[k] = 1
	v, err := tensor.CPVolume(onehot, freq, roi1, roi2, []int{0})
	if err != nil {
		return nil, errors.Trace(err)
	}
	cube, err := v.Reshape([]int{p.nFreqs, p.nRois, p.nRois})
	if err != nil {
		return nil, errors.Trace(err)
	}
	condensed, err := triangular.Compress(cube, 1, 2) // [f, r(r+1)/2]
	if err != nil {
		return nil, errors.Trace(err)
	}
	f := mat.NewDense(condensed.Shape[0], condensed.Shape[1], condensed.Data)
	return mat.DenseCopyOf(f.T()), nil
}

// Reconstruct returns the deterministic reconstruction of features from the
// posterior mean latents and each sample's group factors.
func (m *Model) Reconstruct(features *tensor.Tensor, groups []int) (*tensor.Tensor, error) {
	flat, index, err := m.prepare(features, groups)
	if err != nil {
		return nil, err
	}
	p := m.params
	embeddings := p.withUnseen(p.groupLatents(nil))
	freq, roi1, roi2 := p.factors(embeddings)
	rec, err := model.Chunked(flat, index, m.ctx.ChunkSize(), func(rows *tensor.Tensor, idx []int) (*mat.Dense, error) {
		xhat := volume(p.latents(rows, embeddings, idx, nil), freq, roi1, roi2, idx)
		return mat.NewDense(xhat.Shape[0], xhat.Shape[1], xhat.Data), nil
	})
	if err != nil {
		return nil, err
	}
	return tensor.FromDense(rec).Reshape(features.Shape)
}
