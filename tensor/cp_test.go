package tensor

import (
	"math"
	"math/rand"
	"testing"
)

func TestCPVolumeRankOne(t *testing.T) {
	// One group, one component: v = w * f (x) r1 (x) r2.
	w, _ := NewTensor([]int{2, 1}, []float64{1, 2})
	f, _ := NewTensor([]int{1, 2}, []float64{1, 3})
	r1, _ := NewTensor([]int{1, 2}, []float64{1, 2})
	r2, _ := NewTensor([]int{1, 2}, []float64{5, 7})
	v, err := CPVolume(w, f, r1, r2, []int{0, 0})
	if err != nil {
		t.Fatalf("CPVolume: %v", err)
	}
	if v.Shape[0] != 2 || v.Shape[1] != 8 {
		t.Fatalf("shape %v, want [2 8]", v.Shape)
	}
	want := []float64{5, 7, 10, 14, 15, 21, 30, 42}
	for i, x := range want {
		if math.Abs(v.Data[i]-x) > 1e-12 || math.Abs(v.Data[8+i]-2*x) > 1e-12 {
			t.Fatalf("volume %v, want rows %v and twice that", v.Data, want)
		}
	}
}

func TestCPVolumeSelectsGroup(t *testing.T) {
	w, _ := NewTensor([]int{2, 1}, []float64{1, 1})
	f, _ := NewTensor([]int{2, 1}, []float64{1, 2})
	r, _ := NewTensor([]int{2, 1}, []float64{1, 1})
	v, err := CPVolume(w, f, r, r, []int{1, 0})
	if err != nil {
		t.Fatalf("CPVolume: %v", err)
	}
	if v.Data[0] != 2 || v.Data[1] != 1 {
		t.Errorf("volume %v, want [2 1]", v.Data)
	}
}

func TestCPVolumeErrors(t *testing.T) {
	w, _ := Zeros([]int{2, 3})
	f, _ := Zeros([]int{2, 6})
	r, _ := Zeros([]int{2, 9})
	bad, _ := Zeros([]int{2, 4})
	tests := []struct {
		name  string
		f, r  *Tensor
		index []int
	}{
		{"index count", f, r, []int{0}},
		{"index range", f, r, []int{0, 2}},
		{"negative index", f, r, []int{-1, 0}},
		{"width", bad, r, []int{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CPVolume(w, tt.f, tt.r, tt.r, tt.index); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestCPVolumeGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	w := randParam(t, rng, 3, 2)
	f := randParam(t, rng, 2, 2*3)
	r1 := randParam(t, rng, 2, 2*2)
	r2 := randParam(t, rng, 2, 2*2)
	index := []int{1, 0, 1}
	checkGradients(t, []*Tensor{w, f, r1, r2}, func() *Tensor {
		return weightedSum(CPVolumeAutograd(w, f, r1, r2, index))
	})
}
