package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// SolveMethod selects how LstsqOp solves the normal problem.
type SolveMethod int

const (
	// SolveQR uses a QR factorization of the design matrix.
	SolveQR SolveMethod = iota
	// SolvePinv multiplies by the SVD pseudoinverse of the design matrix.
	SolvePinv
)

func (m SolveMethod) String() string {
	switch m {
	case SolveQR:
		return "lstsq"
	case SolvePinv:
		return "pinv"
	default:
		return "unknown"
	}
}

// LstsqOp solves min_z ||B z - t_i|| for every row t_i of T. B is [m,k] with
// full column rank, T is [b,m] and the result is [b,k].
type LstsqOp struct {
	method SolveMethod
	b, t   *Tensor
	output *Tensor
}

func (op *LstsqOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("LstsqOp requires exactly 2 inputs")
	}
	op.b, op.t = inputs[0], inputs[1]
	result, err := Lstsq(op.b, op.t, op.method)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	op.output = result
	return Record(op, result, inputs...)
}

func (op *LstsqOp) Backward(gradOut *Tensor) []*Tensor {
	m, k := op.b.Shape[0], op.b.Shape[1]
	n := op.t.Shape[0]
	B := mat.NewDense(m, k, op.b.Data)
	T := mat.NewDense(n, m, op.t.Data)
	Z := mat.NewDense(n, k, op.output.Data)
	G := mat.NewDense(n, k, gradOut.Data)

	var gram mat.SymDense
	gram.SymOuterK(1, B.T())
	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		panic("Backward pass failed: least squares design matrix is rank deficient")
	}

	// W = G (B^T B)^-1, solved as (B^T B) W^T = G^T
	var wt mat.Dense
	if err := chol.SolveTo(&wt, G.T()); err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	W := wt.T()

	gradT := mat.NewDense(n, m, nil)
	gradT.Mul(W, B.T())

	// R = T - Z B^T; dB = R^T W - B (W^T Z)
	var R mat.Dense
	R.Mul(Z, B.T())
	R.Sub(T, &R)
	gradB := mat.NewDense(m, k, nil)
	gradB.Mul(R.T(), W)
	var wz, bwz mat.Dense
	wz.Mul(W.T(), Z)
	bwz.Mul(B, &wz)
	gradB.Sub(gradB, &bwz)

	return []*Tensor{FromDense(gradB), FromDense(gradT)}
}

// Lstsq computes the least squares solution for every row of T without
// recording a graph.
func Lstsq(b, t *Tensor, method SolveMethod) (*Tensor, error) {
	if err := check2D(b, "lstsq"); err != nil {
		return nil, err
	}
	if err := check2D(t, "lstsq"); err != nil {
		return nil, err
	}
	m, k := b.Shape[0], b.Shape[1]
	n := t.Shape[0]
	if t.Shape[1] != m {
		return nil, fmt.Errorf("lstsq: design matrix %v does not match targets %v", b.Shape, t.Shape)
	}
	if m < k {
		return nil, fmt.Errorf("lstsq: underdetermined system %dx%d", m, k)
	}
	B := mat.NewDense(m, k, b.Data)
	T := mat.NewDense(n, m, t.Data)

	switch method {
	case SolveQR:
		var qr mat.QR
		qr.Factorize(B)
		var sol mat.Dense
		if err := qr.SolveTo(&sol, false, T.T()); err != nil {
			return nil, fmt.Errorf("lstsq: %w", err)
		}
		return FromDense(sol.T()), nil
	case SolvePinv:
		pinv, err := pseudoInverse(B)
		if err != nil {
			return nil, err
		}
		out := newTensor([]int{n, k})
		mat.NewDense(n, k, out.Data).Mul(T, pinv.T())
		return out, nil
	default:
		return nil, fmt.Errorf("lstsq: unknown method %d", method)
	}
}

// pseudoInverse returns V S^-1 U^T, dropping singular values below the
// usual max(m,n)*eps*s_max cutoff.
func pseudoInverse(a *mat.Dense) (*mat.Dense, error) {
	m, k := a.Dims()
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, fmt.Errorf("pinv: SVD failed to converge")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	cutoff := 0.0
	if len(values) > 0 {
		cutoff = float64(max(m, k)) * 2.220446049250313e-16 * values[0]
	}
	for j, s := range values {
		inv := 0.0
		if s > cutoff && !math.IsInf(1/s, 0) {
			inv = 1 / s
		}
		for i := 0; i < k; i++ {
			v.Set(i, j, v.At(i, j)*inv)
		}
	}
	pinv := mat.NewDense(k, m, nil)
	pinv.Mul(&v, u.T())
	return pinv, nil
}

// LstsqAutograd solves B z = t_i in the least squares sense for every row of
// T, with gradients flowing to both B and T.
func LstsqAutograd(b, t *Tensor, method SolveMethod) *Tensor {
	return (&LstsqOp{method: method}).Forward(b, t)
}
