package training

import (
	"math"

	"github.com/juju/errors"
)

type weightKey struct {
	label, group int
}

// SampleWeights returns weights inversely proportional to the frequency of
// each (label, group) pair, normalized so that they average to one.
func SampleWeights(labels, groups []int) ([]float64, error) {
	if len(labels) != len(groups) {
		return nil, errors.NotValidf("%d labels for %d groups", len(labels), len(groups))
	}
	n := len(labels)
	if n == 0 {
		return nil, errors.NotValidf("empty label vector")
	}

	counts := make(map[weightKey]int)
	for i := range labels {
		counts[weightKey{labels[i], groups[i]}]++
	}

	weights := make([]float64, n)
	scale := float64(n) / float64(len(counts))
	for i := range labels {
		weights[i] = scale / float64(counts[weightKey{labels[i], groups[i]}])
	}
	return weights, nil
}

// SplitWeights divides importance weights between the sampler and the loss.
// Sampling uses w^(1-beta) and the loss uses w^beta, so beta=0 corrects the
// imbalance entirely by resampling and beta=1 entirely by reweighting.
func SplitWeights(weights []float64, beta float64) (sampler, loss []float64) {
	sampler = make([]float64, len(weights))
	loss = make([]float64, len(weights))
	for i, w := range weights {
		sampler[i] = math.Pow(w, 1-beta)
		loss[i] = math.Pow(w, beta)
	}
	return sampler, loss
}

// FitWeights is SampleWeights with unlabelled samples counted under the label
// fill, so they share the key of a labelled class instead of forming their
// own. labels is not modified.
func FitWeights(labels, groups []int, fill int) ([]float64, error) {
	remapped := make([]int, len(labels))
	for i, l := range labels {
		if l == InvalidLabel {
			l = fill
		}
		remapped[i] = l
	}
	return SampleWeights(remapped, groups)
}
