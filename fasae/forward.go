package fasae

import (
	"math/rand"

	"github.com/tsawler/go-lpne/tensor"
	"github.com/tsawler/go-lpne/training"
)

// objective adapts a parameter set to the trainer.
type objective struct {
	config Config
	p      *params
	rng    *rand.Rand
}

func (o *objective) Parameters() []*tensor.Tensor {
	return o.p.trainable(o.config)
}

// Loss is the batch sum of the weighted negative log-likelihood of the labels,
// the scaled reconstruction error and, for variational encoders, the scaled
// KL divergence, plus the GP penalty on the frequency factors.
func (o *objective) Loss(batch *training.Batch) (*tensor.Tensor, error) {
	x := batch.Features
	z, kl := o.p.latents(o.config, x, o.rng)

	logp := tensor.LogSoftmaxPickAutograd(o.p.logits(z), batch.Labels)
	logp = tensor.MulAutograd(logp, batch.Weights)

	a := o.p.factors(o.config)
	rec := tensor.MeanDimAutograd(tensor.SquareAutograd(tensor.SubAutograd(x, reconstruct(a, z))), 1, false)

	perSample := tensor.SubAutograd(tensor.ScaleAutograd(rec, o.config.RegStrength), logp)
	if o.config.Variational {
		perSample = tensor.AddAutograd(perSample, tensor.ScaleAutograd(kl, o.config.KLFactor))
	}
	loss := tensor.SumAutograd(perSample)

	if o.config.GP.Reg > 0 {
		loss = tensor.AddAutograd(loss, o.p.prior.Loss(o.p.freqFactors(a)))
	}
	return loss, nil
}

// factors returns the column-normalized factor matrix A [x, z].
func (p *params) factors(config Config) *tensor.Tensor {
	a := p.model
	if config.Nonnegative {
		a = tensor.SoftplusAutograd(a)
	}
	return tensor.NormalizeColsAutograd(a)
}

// freqFactors views A as frequency curves, one row per (region pair, factor),
// each scaled to unit norm. The result is [r*r*z, f].
func (p *params) freqFactors(a *tensor.Tensor) *tensor.Tensor {
	curves := tensor.ReshapeAutograd(a, p.nFreqs, p.nRois*p.nRois*p.zDim)
	return tensor.TransposeAutograd(tensor.NormalizeColsAutograd(curves))
}

// reconstruct maps latents [b, z] to features [b, x] through A.
func reconstruct(a, z *tensor.Tensor) *tensor.Tensor {
	return tensor.MatMulAutograd(tensor.SoftplusAutograd(z), tensor.TransposeAutograd(a))
}

// logits reads the class scores off the first n_classes latents.
func (p *params) logits(z *tensor.Tensor) *tensor.Tensor {
	scores := tensor.SliceColsAutograd(z, 0, p.nClasses)
	scores = tensor.MulAutograd(scores, tensor.SoftplusAutograd(p.logitWeights))
	return tensor.AddAutograd(scores, p.logitBiases)
}

// latents encodes x [b, x]. With a non-nil rng variational encoders sample
// from the posterior, otherwise they return its mean. kl is [b] for
// variational encoders and nil otherwise.
func (p *params) latents(config Config, x *tensor.Tensor, rng *rand.Rand) (z, kl *tensor.Tensor) {
	if config.Variational {
		mu := p.rec1.Forward(x)
		std := tensor.AddScalarAutograd(tensor.ExpAutograd(p.rec2.Forward(x)), epsilon)

		// KL(N(mu, std) || N(0, 1)) summed over latents.
		kl = tensor.SubAutograd(
			tensor.ScaleAutograd(tensor.AddAutograd(tensor.SquareAutograd(std), tensor.SquareAutograd(mu)), 0.5),
			tensor.LogAutograd(std),
		)
		kl = tensor.AddScalarAutograd(tensor.SumDimAutograd(kl, 1, false), -0.5*float64(p.zDim))

		sample := mu
		if rng != nil {
			noise, _ := tensor.RandomNormal(mu.Shape, 0, 1, rng)
			sample = tensor.AddAutograd(mu, tensor.MulAutograd(std, noise))
		}
		return p.linear.Forward(sample), kl
	}

	switch config.EncoderType {
	case EncoderLinear:
		return p.recognition.Forward(x), nil
	default:
		method := tensor.SolveQR
		if config.EncoderType == EncoderPinv {
			method = tensor.SolvePinv
		}
		a := tensor.NormalizeColsAutograd(tensor.SoftplusAutograd(p.model))
		design := tensor.ConcatAutograd(a, tensor.DiagAutograd(tensor.SoftplusAutograd(p.factorReg)), 0) // [x+z, z]

		pad, _ := tensor.Zeros([]int{x.Shape[0], p.zDim})
		target := tensor.AddAutograd(pad, tensor.ReshapeAutograd(p.factorRegTarget, 1, p.zDim))
		target = tensor.ConcatAutograd(x, target, 1) // [b, x+z]

		return tensor.ReLUAutograd(tensor.LstsqAutograd(design, target, method)), nil
	}
}
