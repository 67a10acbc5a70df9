package training

import (
	"math/rand"
	"sort"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/tsawler/go-lpne/tensor"
)

// Batch is a set of rows drawn from a training set.
type Batch struct {
	Features *tensor.Tensor // [b, x]
	Labels   []int          // class indices, -1 for unlabelled rows
	Groups   []int          // group indices
	Weights  *tensor.Tensor // [b] loss weights
	Indices  []int          // rows of the source set
}

// Size returns the number of rows in the batch.
func (b *Batch) Size() int {
	return len(b.Indices)
}

// WeightedLoader draws fixed-size batches with replacement, each row chosen
// with probability proportional to its sampler weight.
type WeightedLoader struct {
	features  *tensor.Tensor
	labels    []int
	groups    []int
	weights   []float64
	cdf       []float64
	batchSize int
	rng       *rand.Rand
}

// NewWeightedLoader creates a loader over features [n, x]. samplerWeights set
// the draw probabilities and lossWeights are attached to every batch.
func NewWeightedLoader(features *tensor.Tensor, labels, groups []int, samplerWeights, lossWeights []float64, batchSize int, rng *rand.Rand) (*WeightedLoader, error) {
	if len(features.Shape) != 2 {
		return nil, errors.NotValidf("loader features of shape %v", features.Shape)
	}
	n := features.Shape[0]
	for name, l := range map[string]int{
		"labels":          len(labels),
		"groups":          len(groups),
		"sampler weights": len(samplerWeights),
		"loss weights":    len(lossWeights),
	} {
		if l != n {
			return nil, errors.NotValidf("%d %s for %d rows", l, name, n)
		}
	}
	if batchSize < 1 {
		return nil, errors.NotValidf("batch size %d", batchSize)
	}
	if rng == nil {
		return nil, errors.NotValidf("nil random source")
	}
	for _, w := range samplerWeights {
		if w < 0 {
			return nil, errors.NotValidf("negative sampler weight %v", w)
		}
	}
	total := floats.Sum(samplerWeights)
	if total <= 0 {
		return nil, errors.NotValidf("sampler weights sum to %v", total)
	}

	cdf := make([]float64, n)
	floats.CumSum(cdf, samplerWeights)
	floats.Scale(1/total, cdf)

	return &WeightedLoader{
		features:  features,
		labels:    labels,
		groups:    groups,
		weights:   lossWeights,
		cdf:       cdf,
		batchSize: batchSize,
		rng:       rng,
	}, nil
}

// BatchSize returns the number of rows in each batch.
func (wl *WeightedLoader) BatchSize() int {
	return wl.batchSize
}

// Next draws a batch.
func (wl *WeightedLoader) Next() *Batch {
	indices := make([]int, wl.batchSize)
	last := len(wl.cdf) - 1
	for i := range indices {
		j := sort.SearchFloat64s(wl.cdf, wl.rng.Float64())
		if j > last {
			j = last
		}
		indices[i] = j
	}
	return wl.Gather(indices)
}

// Gather builds a batch from explicit row indices.
func (wl *WeightedLoader) Gather(indices []int) *Batch {
	width := wl.features.Shape[1]
	features := make([]float64, len(indices)*width)
	weights := make([]float64, len(indices))
	batch := &Batch{
		Labels:  make([]int, len(indices)),
		Groups:  make([]int, len(indices)),
		Indices: indices,
	}
	for i, idx := range indices {
		copy(features[i*width:(i+1)*width], wl.features.Data[idx*width:(idx+1)*width])
		batch.Labels[i] = wl.labels[idx]
		batch.Groups[i] = wl.groups[idx]
		weights[i] = wl.weights[idx]
	}
	batch.Features, _ = tensor.NewTensor([]int{len(indices), width}, features)
	batch.Weights, _ = tensor.NewTensor([]int{len(indices)}, weights)
	return batch
}
