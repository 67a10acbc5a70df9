package training

import (
	"math"
	"math/rand"
	"testing"

	"github.com/tsawler/go-lpne/tensor"
)

func TestLinear(t *testing.T) {
	layer, err := NewLinear(4, 3, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewLinear failed: %v", err)
	}
	if layer.InputSize() != 4 || layer.OutputSize() != 3 {
		t.Fatalf("sizes %d -> %d", layer.InputSize(), layer.OutputSize())
	}
	bound := 0.5
	for _, p := range layer.Parameters() {
		if !p.RequiresGrad() {
			t.Errorf("parameter %v does not require gradients", p.Shape)
		}
		for _, v := range p.Data {
			if math.Abs(v) > bound {
				t.Errorf("initial value %v outside [-%v, %v]", v, bound, bound)
			}
		}
	}

	input, _ := tensor.NewTensor([]int{2, 4}, []float64{1, 0, 0, 0, 0, 1, 1, 0})
	out := layer.Forward(input)
	if out.Shape[0] != 2 || out.Shape[1] != 3 {
		t.Fatalf("output shape %v", out.Shape)
	}
	for j := 0; j < 3; j++ {
		want := layer.Weight.Data[j] + layer.Bias.Data[j]
		if math.Abs(out.Data[j]-want) > 1e-12 {
			t.Errorf("out[0,%d] = %v, expected %v", j, out.Data[j], want)
		}
		want = layer.Weight.Data[3+j] + layer.Weight.Data[6+j] + layer.Bias.Data[j]
		if math.Abs(out.Data[3+j]-want) > 1e-12 {
			t.Errorf("out[1,%d] = %v, expected %v", j, out.Data[3+j], want)
		}
	}

	if _, err := NewLinear(0, 3, rand.New(rand.NewSource(1))); err == nil {
		t.Error("expected error for empty input")
	}
}
