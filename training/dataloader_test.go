package training

import (
	"math"
	"math/rand"
	"testing"

	"github.com/juju/errors"

	"github.com/tsawler/go-lpne/tensor"
)

func testLoader(t *testing.T, samplerWeights []float64, batchSize int) *WeightedLoader {
	t.Helper()
	n := len(samplerWeights)
	features, _ := tensor.Zeros([]int{n, 2})
	labels := make([]int, n)
	groups := make([]int, n)
	loss := make([]float64, n)
	for i := 0; i < n; i++ {
		features.Data[2*i] = float64(i)
		features.Data[2*i+1] = -float64(i)
		labels[i] = i % 2
		groups[i] = i % 3
		loss[i] = float64(i) + 0.5
	}
	loader, err := NewWeightedLoader(features, labels, groups, samplerWeights, loss, batchSize, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("NewWeightedLoader failed: %v", err)
	}
	return loader
}

func TestWeightedLoaderBatch(t *testing.T) {
	loader := testLoader(t, []float64{1, 1, 1, 1}, 5)
	batch := loader.Next()
	if batch.Size() != 5 || batch.Features.Shape[0] != 5 || batch.Weights.NumElems != 5 {
		t.Fatalf("unexpected batch shapes: %v %v", batch.Features.Shape, batch.Weights.Shape)
	}
	for i, idx := range batch.Indices {
		if batch.Features.Data[2*i] != float64(idx) || batch.Features.Data[2*i+1] != -float64(idx) {
			t.Errorf("row %d does not hold sample %d", i, idx)
		}
		if batch.Labels[i] != idx%2 || batch.Groups[i] != idx%3 {
			t.Errorf("row %d labels/groups mismatch", i)
		}
		if batch.Weights.Data[i] != float64(idx)+0.5 {
			t.Errorf("row %d weight %v", i, batch.Weights.Data[i])
		}
	}
}

func TestWeightedLoaderFrequencies(t *testing.T) {
	loader := testLoader(t, []float64{0, 1, 3}, 100)
	counts := make([]int, 3)
	for i := 0; i < 100; i++ {
		for _, idx := range loader.Next().Indices {
			counts[idx]++
		}
	}
	if counts[0] != 0 {
		t.Errorf("zero-weight row drawn %d times", counts[0])
	}
	ratio := float64(counts[2]) / float64(counts[1])
	if math.Abs(ratio-3) > 0.3 {
		t.Errorf("draw ratio %v, expected about 3 (counts %v)", ratio, counts)
	}
}

func TestWeightedLoaderErrors(t *testing.T) {
	features, _ := tensor.Zeros([]int{2, 3})
	rng := rand.New(rand.NewSource(1))
	ok := []float64{1, 1}
	tests := []struct {
		name     string
		features *tensor.Tensor
		labels   []int
		sampler  []float64
		batch    int
		rng      *rand.Rand
	}{
		{"rank", tensor.FromScalar(1), []int{0}, []float64{1}, 1, rng},
		{"labels", features, []int{0}, ok, 1, rng},
		{"batch", features, []int{0, 1}, ok, 0, rng},
		{"zero weights", features, []int{0, 1}, []float64{0, 0}, 1, rng},
		{"negative weight", features, []int{0, 1}, []float64{2, -1}, 1, rng},
		{"rng", features, []int{0, 1}, ok, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := len(tt.sampler)
			_, err := NewWeightedLoader(tt.features, tt.labels, make([]int, n), tt.sampler, make([]float64, n), tt.batch, tt.rng)
			if !errors.Is(err, errors.NotValid) {
				t.Errorf("error = %v, expected NotValid", err)
			}
		})
	}
}
