package tensor

import (
	"reflect"
	"testing"
)

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name     string
		shape1   []int
		shape2   []int
		expected []int
		wantErr  bool
	}{
		{"Same shapes", []int{3, 4}, []int{3, 4}, []int{3, 4}, false},
		{"Scalar and tensor", []int{1}, []int{3, 4}, []int{3, 4}, false},
		{"Compatible broadcasting", []int{3, 1}, []int{1, 4}, []int{3, 4}, false},
		{"Different dimensions", []int{5}, []int{3, 5}, []int{3, 5}, false},
		{"Complex broadcasting", []int{2, 3, 1}, []int{1, 4}, []int{2, 3, 4}, false},
		{"Incompatible shapes", []int{3, 4}, []int{2, 3}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := BroadcastShapes(tt.shape1, tt.shape2)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", result)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("BroadcastShapes(%v, %v) = %v, expected %v", tt.shape1, tt.shape2, result, tt.expected)
			}
			if !AreBroadcastable(tt.shape1, tt.shape2) {
				t.Errorf("AreBroadcastable should be true")
			}
		})
	}
}

func TestBroadcastingArithmetic(t *testing.T) {
	a, _ := NewTensor([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	row, _ := NewTensor([]int{1, 3}, []float64{10, 20, 30})
	col, _ := NewTensor([]int{2, 1}, []float64{100, 200})

	sum, err := Add(a, row)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if !reflect.DeepEqual(sum.Data, []float64{11, 22, 33, 14, 25, 36}) {
		t.Errorf("Add row = %v", sum.Data)
	}

	prod, err := Mul(a, col)
	if err != nil {
		t.Fatalf("Mul failed: %v", err)
	}
	if !reflect.DeepEqual(prod.Data, []float64{100, 200, 300, 800, 1000, 1200}) {
		t.Errorf("Mul col = %v", prod.Data)
	}

	outer, _ := Sub(col, row)
	if !reflect.DeepEqual(outer.Shape, []int{2, 3}) || outer.Data[5] != 170 {
		t.Errorf("Sub outer = %v %v", outer.Shape, outer.Data)
	}

	bad, _ := NewTensor([]int{4}, nil)
	if _, err := Add(a, bad); err == nil {
		t.Errorf("expected broadcasting error")
	}
}

func TestReduceGradientToShape(t *testing.T) {
	g, _ := NewTensor([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})

	r := reduceGradientToShape(g, []int{1, 3})
	if !reflect.DeepEqual(r.Data, []float64{5, 7, 9}) {
		t.Errorf("reduce to [1 3] = %v", r.Data)
	}
	c := reduceGradientToShape(g, []int{2, 1})
	if !reflect.DeepEqual(c.Data, []float64{6, 15}) {
		t.Errorf("reduce to [2 1] = %v", c.Data)
	}
	s := reduceGradientToShape(g, []int{1})
	if !reflect.DeepEqual(s.Data, []float64{21}) {
		t.Errorf("reduce to [1] = %v", s.Data)
	}
}
