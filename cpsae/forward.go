package cpsae

import (
	"math/rand"

	"github.com/tsawler/go-lpne/tensor"
	"github.com/tsawler/go-lpne/training"
)

type objective struct {
	config Config
	p      *params
	rng    *rand.Rand
}

func (o *objective) Parameters() []*tensor.Tensor {
	_, tensors := o.p.named()
	return tensors
}

// Loss averages the weighted label log-likelihood, reconstruction error and
// posterior KL over the batch, then adds the group embedding KL and the
// factor-sharing penalty, each scaled by its config weight.
func (o *objective) Loss(batch *training.Batch) (*tensor.Tensor, error) {
	p, c := o.p, o.config
	x := batch.Features

	latents := p.groupLatents(o.rng)
	mu, std := p.posterior(x, tensor.GatherRowsAutograd(latents, batch.Groups))
	noise, err := tensor.RandomNormal(mu.Shape, 0, 1, o.rng)
	if err != nil {
		return nil, err
	}
	z := tensor.AddAutograd(mu, tensor.MulAutograd(std, noise))

	freq, roi1, roi2 := p.factors(latents)
	rec := tensor.SubAutograd(x, volume(z, freq, roi1, roi2, batch.Groups))
	rec = tensor.MeanDimAutograd(tensor.SquareAutograd(rec), 1, false)

	logp := tensor.LogSoftmaxPickAutograd(p.logits(z), batch.Labels)
	logp = tensor.MulAutograd(logp, batch.Weights)

	loss := tensor.ScaleAutograd(tensor.MeanAutograd(logp), -1)
	loss = tensor.AddAutograd(loss, tensor.ScaleAutograd(tensor.MeanAutograd(rec), c.RegStrength))
	loss = tensor.AddAutograd(loss, tensor.ScaleAutograd(tensor.MeanAutograd(normalKL(mu, std)), c.DataKLFactor))
	loss = tensor.AddAutograd(loss, tensor.ScaleAutograd(p.groupKL(), c.GroupKLFactor))

	sharing := tensor.AddAutograd(spread(freq), tensor.AddAutograd(spread(roi1), spread(roi2)))
	loss = tensor.AddAutograd(loss, tensor.ScaleAutograd(sharing, c.FactorReg))

	if p.prior != nil && c.GP.Reg > 0 {
		loss = tensor.AddAutograd(loss, p.prior.Loss(p.meanFreqCurves(freq)))
	}
	return loss, nil
}

// groupLatents returns group embeddings [g, e]: a reparameterized sample with
// a non-nil rng, the posterior mean otherwise.
func (p *params) groupLatents(rng *rand.Rand) *tensor.Tensor {
	if rng == nil {
		return p.groupMean
	}
	std := tensor.AddScalarAutograd(tensor.ExpAutograd(p.groupLogStd), epsilon)
	noise, _ := tensor.RandomNormal(p.groupMean.Shape, 0, 1, rng)
	return tensor.AddAutograd(p.groupMean, tensor.MulAutograd(std, noise))
}

// withUnseen appends the prior-mean embedding as row g, the slot used by
// groups that were not seen during fit.
func (p *params) withUnseen(latents *tensor.Tensor) *tensor.Tensor {
	zero, _ := tensor.Zeros([]int{1, p.embedDim})
	return tensor.ConcatAutograd(latents, zero, 0)
}

// posterior maps features [b, x] and group embeddings [b, e] to the mean and
// standard deviation of q(z | x, g).
func (p *params) posterior(x, embed *tensor.Tensor) (mu, std *tensor.Tensor) {
	aug := tensor.ConcatAutograd(x, embed, 1)
	mu = p.rec1.Forward(aug)
	std = tensor.AddScalarAutograd(tensor.ExpAutograd(p.rec2.Forward(aug)), epsilon)
	return mu, std
}

// factors maps embeddings [G, e] to nonnegative frequency [G, z*f] and region
// [G, z*r] factors.
func (p *params) factors(latents *tensor.Tensor) (freq, roi1, roi2 *tensor.Tensor) {
	freq = tensor.SoftplusAutograd(p.freqNet.Forward(latents))
	roi1 = tensor.SoftplusAutograd(p.roi1Net.Forward(latents))
	roi2 = tensor.SoftplusAutograd(p.roi2Net.Forward(latents))
	return freq, roi1, roi2
}

// volume reconstructs flattened features [b, f*r*r] from latents z [b, z].
func volume(z, freq, roi1, roi2 *tensor.Tensor, groups []int) *tensor.Tensor {
	return tensor.CPVolumeAutograd(tensor.SoftplusAutograd(z), freq, roi1, roi2, groups)
}

func (p *params) logits(z *tensor.Tensor) *tensor.Tensor {
	scores := tensor.SliceColsAutograd(z, 0, p.nClasses)
	scores = tensor.MulAutograd(scores, tensor.SoftplusAutograd(p.logitWeights))
	return tensor.AddAutograd(scores, p.logitBiases)
}

// normalKL is KL(N(mu, std) || N(0, 1)) summed over columns, one value per
// row.
func normalKL(mu, std *tensor.Tensor) *tensor.Tensor {
	kl := tensor.SubAutograd(
		tensor.ScaleAutograd(tensor.AddAutograd(tensor.SquareAutograd(std), tensor.SquareAutograd(mu)), 0.5),
		tensor.LogAutograd(std),
	)
	return tensor.AddScalarAutograd(tensor.SumDimAutograd(kl, 1, false), -0.5*float64(mu.Shape[1]))
}

// groupKL is the KL divergence of every group embedding posterior from the
// standard normal prior, summed over groups.
func (p *params) groupKL() *tensor.Tensor {
	std := tensor.AddScalarAutograd(tensor.ExpAutograd(p.groupLogStd), epsilon)
	return tensor.SumAutograd(normalKL(p.groupMean, std))
}

// spread is the squared distance of every group's factors from the
// cross-group mean.
func spread(factors *tensor.Tensor) *tensor.Tensor {
	mean := tensor.ScaleAutograd(tensor.SumDimAutograd(factors, 0, true), 1/float64(factors.Shape[0]))
	return tensor.SumAutograd(tensor.SquareAutograd(tensor.SubAutograd(factors, mean)))
}

// meanFreqCurves averages frequency factors over groups and returns one unit
// norm curve per component, [z, f].
func (p *params) meanFreqCurves(freq *tensor.Tensor) *tensor.Tensor {
	mean := tensor.ScaleAutograd(tensor.SumDimAutograd(freq, 0, true), 1/float64(freq.Shape[0]))
	curves := tensor.TransposeAutograd(tensor.ReshapeAutograd(mean, p.zDim, p.nFreqs)) // [f, z]
	return tensor.TransposeAutograd(tensor.NormalizeColsAutograd(curves))
}
