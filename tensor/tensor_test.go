package tensor

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestNewTensor(t *testing.T) {
	t.Run("Valid tensor", func(t *testing.T) {
		shape := []int{2, 3}
		data := []float64{1, 2, 3, 4, 5, 6}

		tensor, err := NewTensor(shape, data)
		if err != nil {
			t.Fatalf("NewTensor failed: %v", err)
		}
		if !reflect.DeepEqual(tensor.Shape, shape) {
			t.Errorf("Shape = %v, expected %v", tensor.Shape, shape)
		}
		if tensor.Device != CPU {
			t.Errorf("Device = %v, expected %v", tensor.Device, CPU)
		}
		if tensor.NumElems != 6 {
			t.Errorf("NumElems = %d, expected 6", tensor.NumElems)
		}
		if !reflect.DeepEqual(tensor.Strides, []int{3, 1}) {
			t.Errorf("Strides = %v, expected [3 1]", tensor.Strides)
		}
		if !tensor.IsLeaf() || tensor.RequiresGrad() {
			t.Errorf("new tensor should be a leaf without gradients")
		}
	})

	t.Run("Errors", func(t *testing.T) {
		cases := []struct {
			name  string
			shape []int
			data  []float64
		}{
			{"empty shape", []int{}, nil},
			{"zero dim", []int{2, 0}, nil},
			{"negative dim", []int{-1, 2}, nil},
			{"length mismatch", []int{2, 2}, []float64{1, 2, 3}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				if _, err := NewTensor(tc.shape, tc.data); err == nil {
					t.Errorf("expected error for %s", tc.name)
				}
			})
		}
	})
}

func TestCreationHelpers(t *testing.T) {
	ones, _ := Ones([]int{2, 2})
	for _, v := range ones.Data {
		if v != 1 {
			t.Fatalf("Ones produced %v", ones.Data)
		}
	}

	full, _ := Full([]int{3}, -5)
	if !reflect.DeepEqual(full.Data, []float64{-5, -5, -5}) {
		t.Errorf("Full = %v", full.Data)
	}

	rng := rand.New(rand.NewSource(1))
	u, err := Uniform([]int{100}, -0.5, 0.5, rng)
	if err != nil {
		t.Fatalf("Uniform failed: %v", err)
	}
	for _, v := range u.Data {
		if v < -0.5 || v >= 0.5 {
			t.Fatalf("Uniform value %v outside [-0.5, 0.5)", v)
		}
	}
	if _, err := RandomNormal([]int{2}, 0, 1, nil); err == nil {
		t.Errorf("expected error for nil random source")
	}

	p, _ := Param([]int{2}, []float64{1, 2})
	if !p.RequiresGrad() {
		t.Errorf("Param should require gradients")
	}
}

func TestReshape(t *testing.T) {
	a, _ := NewTensor([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})

	b, err := a.Reshape([]int{3, -1})
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	if !reflect.DeepEqual(b.Shape, []int{3, 2}) {
		t.Errorf("Shape = %v, expected [3 2]", b.Shape)
	}
	b.Data[0] = 10
	if a.Data[0] != 10 {
		t.Errorf("Reshape should share data")
	}

	if _, err := a.Reshape([]int{4, 2}); err == nil {
		t.Errorf("expected error for size mismatch")
	}
	if _, err := a.Reshape([]int{-1, -1}); err == nil {
		t.Errorf("expected error for two inferred dimensions")
	}
}

func TestAtAndItem(t *testing.T) {
	a, _ := NewTensor([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	v, err := a.At(1, 2)
	if err != nil || v != 6 {
		t.Errorf("At(1,2) = %v, %v", v, err)
	}
	if err := a.SetAt(7, 0, 1); err != nil || a.Data[1] != 7 {
		t.Errorf("SetAt failed: %v", err)
	}
	if _, err := a.At(2, 0); err == nil {
		t.Errorf("expected out of bounds error")
	}
	if _, err := a.Item(); err == nil {
		t.Errorf("expected error calling Item on multi-element tensor")
	}
	if v, _ := FromScalar(3.5).Item(); v != 3.5 {
		t.Errorf("Item = %v", v)
	}
}

func TestMatrixOps(t *testing.T) {
	a, _ := NewTensor([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	b, _ := NewTensor([]int{3, 2}, []float64{7, 8, 9, 10, 11, 12})

	c, err := MatMul(a, b)
	if err != nil {
		t.Fatalf("MatMul failed: %v", err)
	}
	if !reflect.DeepEqual(c.Data, []float64{58, 64, 139, 154}) {
		t.Errorf("MatMul = %v", c.Data)
	}
	if _, err := MatMul(a, a); err == nil {
		t.Errorf("expected dimension mismatch error")
	}

	at, _ := Transpose(a)
	if !reflect.DeepEqual(at.Data, []float64{1, 4, 2, 5, 3, 6}) {
		t.Errorf("Transpose = %v", at.Data)
	}

	s0, _ := Sum(a, 0, false)
	if !reflect.DeepEqual(s0.Data, []float64{5, 7, 9}) || !reflect.DeepEqual(s0.Shape, []int{3}) {
		t.Errorf("Sum dim 0 = %v %v", s0.Shape, s0.Data)
	}
	s1, _ := Sum(a, 1, true)
	if !reflect.DeepEqual(s1.Data, []float64{6, 15}) || !reflect.DeepEqual(s1.Shape, []int{2, 1}) {
		t.Errorf("Sum dim 1 = %v %v", s1.Shape, s1.Data)
	}

	cc, _ := Concat(a, a, 1)
	if !reflect.DeepEqual(cc.Shape, []int{2, 6}) || cc.Data[3] != 1 {
		t.Errorf("Concat cols = %v %v", cc.Shape, cc.Data)
	}
	cr, _ := Concat(a, a, 0)
	if !reflect.DeepEqual(cr.Shape, []int{4, 3}) || cr.Data[6] != 1 {
		t.Errorf("Concat rows = %v %v", cr.Shape, cr.Data)
	}

	g, err := GatherRows(a, []int{1, -1, 0})
	if err != nil {
		t.Fatalf("GatherRows failed: %v", err)
	}
	if !reflect.DeepEqual(g.Data, []float64{4, 5, 6, 0, 0, 0, 1, 2, 3}) {
		t.Errorf("GatherRows = %v", g.Data)
	}
	if _, err := GatherRows(a, []int{2}); err == nil {
		t.Errorf("expected out of range error")
	}

	sc, _ := SliceCols(a, 1, 3)
	if !reflect.DeepEqual(sc.Data, []float64{2, 3, 5, 6}) {
		t.Errorf("SliceCols = %v", sc.Data)
	}
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	logits, _ := NewTensor([]int{2, 3}, []float64{1000, 0, -1000, 0.1, 0.2, 0.3})
	p := Softmax(logits)
	for i := 0; i < 2; i++ {
		s := p.Data[i*3] + p.Data[i*3+1] + p.Data[i*3+2]
		if s < 1-1e-12 || s > 1+1e-12 {
			t.Errorf("row %d sums to %v", i, s)
		}
	}
}
