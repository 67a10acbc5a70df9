package tensor

import (
	"math"
	"math/rand"
	"testing"
)

// weightedSum contracts out with fixed pseudo-random weights so every output
// element receives a distinct upstream gradient.
func weightedSum(out *Tensor) *Tensor {
	rng := rand.New(rand.NewSource(int64(out.NumElems)))
	w, _ := RandomNormal(out.Shape, 0, 1, rng)
	return SumAutograd(MulAutograd(out, w))
}

func randParam(t *testing.T, rng *rand.Rand, shape ...int) *Tensor {
	t.Helper()
	p, err := RandomNormal(shape, 0, 1, rng)
	if err != nil {
		t.Fatalf("RandomNormal failed: %v", err)
	}
	p.SetRequiresGrad(true)
	return p
}

// checkGradients compares analytic gradients with central differences.
func checkGradients(t *testing.T, params []*Tensor, loss func() *Tensor) {
	t.Helper()
	ZeroGrad(params)
	out := loss()
	if err := out.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	const h = 1e-6
	for pi, p := range params {
		if p.Grad() == nil {
			t.Fatalf("param %d has no gradient", pi)
		}
		for i := range p.Data {
			orig := p.Data[i]
			p.Data[i] = orig + h
			plus := loss().Data[0]
			p.Data[i] = orig - h
			minus := loss().Data[0]
			p.Data[i] = orig

			numeric := (plus - minus) / (2 * h)
			analytic := p.Grad().Data[i]
			if math.Abs(numeric-analytic) > 1e-4*math.Max(1, math.Abs(numeric)) {
				t.Errorf("param %d element %d: analytic %v, numeric %v", pi, i, analytic, numeric)
			}
		}
	}
}

func TestAutogradForward(t *testing.T) {
	a, _ := NewTensor([]int{2, 2}, []float64{1, 2, 3, 4})
	b, _ := NewTensor([]int{2, 2}, []float64{5, 6, 7, 8})
	a.SetRequiresGrad(true)

	result := AddAutograd(a, b)
	if !result.RequiresGrad() || result.IsLeaf() {
		t.Error("Result should require gradients and have a creator")
	}
	if result.Data[3] != 12 {
		t.Errorf("Expected 12, got %v", result.Data[3])
	}

	constant := AddAutograd(b, b)
	if constant.RequiresGrad() || !constant.IsLeaf() {
		t.Error("Operations on constants should not join the graph")
	}
}

func TestBackwardErrors(t *testing.T) {
	a, _ := Param([]int{2}, []float64{1, 2})
	if err := SquareAutograd(a).Backward(); err == nil {
		t.Error("expected error for non-scalar backward")
	}
	c := FromScalar(1)
	if err := c.Backward(); err == nil {
		t.Error("expected error for tensor without gradients")
	}
}

func TestBackwardAccumulatesSharedInputs(t *testing.T) {
	// y = x*x + x at x=3: dy/dx = 2x + 1 = 7
	x, _ := Param([]int{1}, []float64{3})
	y := AddAutograd(MulAutograd(x, x), x)
	if err := y.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	if got := x.Grad().Data[0]; got != 7 {
		t.Errorf("gradient = %v, expected 7", got)
	}

	// A second pass accumulates until ZeroGrad.
	y = AddAutograd(MulAutograd(x, x), x)
	_ = y.Backward()
	if got := x.Grad().Data[0]; got != 14 {
		t.Errorf("accumulated gradient = %v, expected 14", got)
	}
	ZeroGrad([]*Tensor{x})
	if x.Grad() != nil {
		t.Error("ZeroGrad should clear the gradient")
	}
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	t.Run("broadcast add sub mul", func(t *testing.T) {
		a := randParam(t, rng, 3, 4)
		row := randParam(t, rng, 1, 4)
		col := randParam(t, rng, 3, 1)
		checkGradients(t, []*Tensor{a, row, col}, func() *Tensor {
			return weightedSum(SubAutograd(MulAutograd(AddAutograd(a, row), col), row))
		})
	})

	t.Run("matmul transpose reshape", func(t *testing.T) {
		a := randParam(t, rng, 3, 4)
		b := randParam(t, rng, 2, 4)
		checkGradients(t, []*Tensor{a, b}, func() *Tensor {
			c := MatMulAutograd(a, TransposeAutograd(b))
			return weightedSum(ReshapeAutograd(c, 2, 3))
		})
	})

	t.Run("activations", func(t *testing.T) {
		a := randParam(t, rng, 2, 5)
		checkGradients(t, []*Tensor{a}, func() *Tensor {
			s := AddAutograd(SoftplusAutograd(a), SigmoidAutograd(a))
			e := ExpAutograd(ScaleAutograd(a, 0.5))
			l := LogAutograd(AddScalarAutograd(SquareAutograd(a), 1))
			return weightedSum(AddAutograd(AddAutograd(s, e), l))
		})
	})

	t.Run("relu", func(t *testing.T) {
		a, _ := Param([]int{4}, []float64{-1.5, -0.2, 0.3, 2})
		checkGradients(t, []*Tensor{a}, func() *Tensor {
			return weightedSum(ReLUAutograd(a))
		})
	})

	t.Run("reductions", func(t *testing.T) {
		a := randParam(t, rng, 3, 4)
		checkGradients(t, []*Tensor{a}, func() *Tensor {
			s0 := SumDimAutograd(a, 0, true)
			m1 := MeanDimAutograd(a, 1, false)
			return AddAutograd(AddAutograd(weightedSum(s0), weightedSum(m1)), MeanAutograd(SquareAutograd(a)))
		})
	})

	t.Run("slice concat gather diag", func(t *testing.T) {
		a := randParam(t, rng, 3, 4)
		v := randParam(t, rng, 4)
		checkGradients(t, []*Tensor{a, v}, func() *Tensor {
			s := SliceColsAutograd(a, 1, 3)
			c := ConcatAutograd(s, s, 1)
			g := GatherRowsAutograd(a, []int{2, -1, 0, 2})
			d := ConcatAutograd(g, DiagAutograd(v), 0)
			return AddAutograd(weightedSum(c), weightedSum(d))
		})
	})

	t.Run("normalize columns", func(t *testing.T) {
		a := randParam(t, rng, 4, 3)
		checkGradients(t, []*Tensor{a}, func() *Tensor {
			return weightedSum(NormalizeColsAutograd(a))
		})
	})

	t.Run("log softmax pick", func(t *testing.T) {
		logits := randParam(t, rng, 4, 3)
		labels := []int{0, 2, -1, 1}
		checkGradients(t, []*Tensor{logits}, func() *Tensor {
			return weightedSum(LogSoftmaxPickAutograd(logits, labels))
		})
	})
}

func TestLogSoftmaxPickSentinel(t *testing.T) {
	logits, _ := Param([]int{2, 2}, []float64{1, 2, 3, 4})
	out := LogSoftmaxPickAutograd(logits, []int{-1, 1})
	if out.Data[0] != 0 {
		t.Errorf("sentinel row should produce 0, got %v", out.Data[0])
	}
	want := 4 - math.Log(math.Exp(3)+math.Exp(4))
	if math.Abs(out.Data[1]-want) > 1e-12 {
		t.Errorf("log prob = %v, expected %v", out.Data[1], want)
	}
	_ = SumAutograd(out).Backward()
	if logits.Grad().Data[0] != 0 || logits.Grad().Data[1] != 0 {
		t.Errorf("sentinel row should receive no gradient, got %v", logits.Grad().Data[:2])
	}
}
