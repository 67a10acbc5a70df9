package tensor

import (
	"math/rand"
	"testing"
)

func TestLstsqMethodsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b, _ := RandomNormal([]int{6, 3}, 0, 1, rng)
	z, _ := RandomNormal([]int{4, 3}, 0, 1, rng)

	// Consistent system: targets lie exactly in the column space of B.
	bt, _ := Transpose(b)
	targets, _ := MatMul(z, bt)

	for _, method := range []SolveMethod{SolveQR, SolvePinv} {
		t.Run(method.String(), func(t *testing.T) {
			sol, err := Lstsq(b, targets, method)
			if err != nil {
				t.Fatalf("Lstsq failed: %v", err)
			}
			if !sol.AllClose(z, 1e-9) {
				t.Errorf("solution %v, expected %v", sol.Data, z.Data)
			}
		})
	}
}

func TestLstsqErrors(t *testing.T) {
	b, _ := Zeros([]int{2, 3})
	tg, _ := Zeros([]int{1, 2})
	if _, err := Lstsq(b, tg, SolveQR); err == nil {
		t.Error("expected error for underdetermined system")
	}
	b2, _ := Zeros([]int{4, 2})
	if _, err := Lstsq(b2, tg, SolveQR); err == nil {
		t.Error("expected error for mismatched targets")
	}
}

func TestLstsqGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, method := range []SolveMethod{SolveQR, SolvePinv} {
		t.Run(method.String(), func(t *testing.T) {
			b := randParam(t, rng, 5, 3)
			tg := randParam(t, rng, 2, 5)
			checkGradients(t, []*Tensor{b, tg}, func() *Tensor {
				return weightedSum(LstsqAutograd(b, tg, method))
			})
		})
	}
}
