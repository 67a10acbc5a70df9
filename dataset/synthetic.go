package dataset

import (
	"math"
	"math/rand"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-lpne/model"
	"github.com/tsawler/go-lpne/tensor"
)

// SyntheticConfig controls the generated spectral dataset.
type SyntheticConfig struct {
	NSamples       int     `json:"n_samples"`
	NFreqs         int     `json:"n_freqs"`
	NRois          int     `json:"n_rois"`
	NClasses       int     `json:"n_classes"`
	NGroups        int     `json:"n_groups"`
	Noise          float64 `json:"noise"`
	UnlabelledFrac float64 `json:"unlabelled_frac"`
}

// DefaultSyntheticConfig returns a small, well separated problem.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		NSamples:       200,
		NFreqs:         8,
		NRois:          4,
		NClasses:       2,
		NGroups:        4,
		Noise:          0.05,
		UnlabelledFrac: 0.1,
	}
}

func (c SyntheticConfig) Validate() error {
	switch {
	case c.NClasses < 2:
		return errors.NotValidf("n_classes %d", c.NClasses)
	case c.NSamples < c.NClasses:
		return errors.NotValidf("n_samples %d for %d classes", c.NSamples, c.NClasses)
	case c.NFreqs < 1 || c.NRois < 1:
		return errors.NotValidf("n_freqs %d n_rois %d", c.NFreqs, c.NRois)
	case c.NGroups < 1:
		return errors.NotValidf("n_groups %d", c.NGroups)
	case c.Noise < 0:
		return errors.NotValidf("noise %v", c.Noise)
	case c.UnlabelledFrac < 0 || c.UnlabelledFrac > 0.5:
		return errors.NotValidf("unlabelled_frac %v", c.UnlabelledFrac)
	}
	return nil
}

// pattern is one network: a frequency curve times a rank-one region
// covariance.
type pattern struct {
	curve []float64
	rois  *mat.SymDense
}

func newPattern(nFreqs, nRois int, center, width float64, rng *rand.Rand) pattern {
	curve := make([]float64, nFreqs)
	for f := range curve {
		d := (float64(f) - center) / width
		curve[f] = math.Exp(-0.5 * d * d)
	}
	floats.Scale(1/floats.Max(curve), curve)

	loadings := make([]float64, nRois)
	for i := range loadings {
		loadings[i] = 0.2 + 0.8*rng.Float64()
	}
	rois := mat.NewSymDense(nRois, nil)
	rois.SymOuterK(1, mat.NewVecDense(nRois, loadings))
	return pattern{curve: curve, rois: rois}
}

// addTo accumulates scale * pattern into x [f, r, r].
func (p pattern) addTo(x []float64, scale float64) {
	r := p.rois.SymmetricDim()
	for f, g := range p.curve {
		for i := 0; i < r; i++ {
			for j := 0; j < r; j++ {
				x[(f*r+i)*r+j] += scale * g * p.rois.At(i, j)
			}
		}
	}
}

// Synthetic draws a labelled dataset in which every class adds its own
// network on top of a shared background. Samples are assigned to classes
// round-robin and to groups in class-balanced blocks; each group scales its
// samples by a fixed gain. A fraction of samples is marked unlabelled.
func Synthetic(cfg SyntheticConfig, rng *rand.Rand) (*model.Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	f, r := cfg.NFreqs, cfg.NRois
	width := math.Max(1, float64(f)/float64(2*cfg.NClasses))
	background := newPattern(f, r, float64(f-1)/2, float64(f), rng)
	classes := make([]pattern, cfg.NClasses)
	for c := range classes {
		center := (float64(c) + 0.5) * float64(f) / float64(cfg.NClasses)
		classes[c] = newPattern(f, r, center, width, rng)
	}
	gains := make([]float64, cfg.NGroups)
	for g := range gains {
		gains[g] = 0.8 + 0.4*rng.Float64()
	}

	stride := f * r * r
	features, err := tensor.Zeros([]int{cfg.NSamples, f, r, r})
	if err != nil {
		return nil, errors.Trace(err)
	}
	ds := &model.Dataset{
		Features: features,
		Labels:   make([]int, cfg.NSamples),
		Groups:   make([]int, cfg.NSamples),
	}
	for n := 0; n < cfg.NSamples; n++ {
		label := n % cfg.NClasses
		group := (n / cfg.NClasses) % cfg.NGroups
		ds.Labels[n], ds.Groups[n] = label, group

		x := features.Data[n*stride : (n+1)*stride]
		background.addTo(x, 0.3*gains[group])
		classes[label].addTo(x, gains[group]*(0.9+0.2*rng.Float64()))
		for fi := 0; fi < f; fi++ {
			for i := 0; i < r; i++ {
				for j := 0; j <= i; j++ {
					v := x[(fi*r+i)*r+j] + cfg.Noise*rng.NormFloat64()
					v = math.Max(v, 0)
					x[(fi*r+i)*r+j], x[(fi*r+j)*r+i] = v, v
				}
			}
		}
	}

	nUnlabelled := int(cfg.UnlabelledFrac * float64(cfg.NSamples))
	for _, n := range rng.Perm(cfg.NSamples)[:nUnlabelled] {
		ds.Labels[n] = model.InvalidLabel
	}
	return ds, nil
}
