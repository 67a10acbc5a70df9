// Package gp implements the Gaussian-process smoothness prior placed on
// frequency factors: a stationary kernel over frequency bins and the
// multivariate-normal log-density it induces.
package gp

import (
	"fmt"
	"math"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-lpne/tensor"
)

const (
	// ModeOU selects the Ornstein-Uhlenbeck kernel exp(-|d|/ls).
	ModeOU = "ou"
	// ModeSE selects the squared-exponential kernel exp(-2^{-1/2}(d/ls)^2).
	ModeSE = "se"
)

// Params configures the prior. LS is measured in frequency bins.
type Params struct {
	Mean        float64 `json:"mean"`
	LS          float64 `json:"ls"`
	ObsNoiseVar float64 `json:"obs_noise_var"`
	Reg         float64 `json:"reg"`
	Mode        string  `json:"mode"`
}

func DefaultParams() Params {
	return Params{
		Mean:        0.0,
		LS:          0.2,
		ObsNoiseVar: 1e-3,
		Reg:         0.1,
		Mode:        ModeOU,
	}
}

func (p Params) Validate() error {
	if p.Mode != ModeOU && p.Mode != ModeSE {
		return errors.NotSupportedf("GP kernel mode %q", p.Mode)
	}
	if !(p.LS > 0) {
		return errors.NotValidf("GP lengthscale %v", p.LS)
	}
	if p.ObsNoiseVar < 0 {
		return errors.NotValidf("GP observation noise variance %v", p.ObsNoiseVar)
	}
	if p.Reg < 0 {
		return errors.NotValidf("GP regularization strength %v", p.Reg)
	}
	return nil
}

// Kernel builds the n by n covariance over frequency bins, including the
// observation noise on the diagonal.
func Kernel(n int, p Params) (*mat.SymDense, error) {
	if err := p.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if n < 1 {
		return nil, errors.NotValidf("number of frequencies %d", n)
	}
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			d := math.Abs(float64(i-j)) / p.LS
			var v float64
			if p.Mode == ModeSE {
				v = math.Exp(-math.Sqrt2 / 2 * d * d)
			} else {
				v = math.Exp(-d)
			}
			if i == j {
				v += p.ObsNoiseVar
			}
			k.SetSym(i, j, v)
		}
	}
	return k, nil
}

// Prior is a multivariate normal with constant mean and the kernel above.
type Prior struct {
	params Params
	n      int
	kernel *mat.SymDense
	chol   mat.Cholesky
	norm   float64
}

// New factors the kernel for n frequency bins.
func New(n int, p Params) (*Prior, error) {
	k, err := Kernel(n, p)
	if err != nil {
		return nil, errors.Trace(err)
	}
	prior := &Prior{params: p, n: n, kernel: k}
	if ok := prior.chol.Factorize(k); !ok {
		return nil, errors.NotValidf("GP kernel is not positive definite (ls=%v, obs_noise_var=%v)", p.LS, p.ObsNoiseVar)
	}
	prior.norm = -0.5*prior.chol.LogDet() - 0.5*float64(n)*math.Log(2*math.Pi)
	return prior, nil
}

func (p *Prior) Params() Params {
	return p.params
}

// Kernel returns the covariance matrix. Callers must not modify it.
func (p *Prior) Kernel() *mat.SymDense {
	return p.kernel
}

// solve returns (v - mean) and K^-1 (v - mean).
func (p *Prior) solve(v []float64) ([]float64, []float64) {
	d := make([]float64, len(v))
	copy(d, v)
	floats.AddConst(-p.params.Mean, d)
	x := mat.NewVecDense(p.n, nil)
	if err := p.chol.SolveVecTo(x, mat.NewVecDense(p.n, d)); err != nil {
		panic(fmt.Sprintf("GP solve failed: %v", err))
	}
	return d, x.RawVector().Data
}

// LogProb is the log-density of one frequency vector of length n.
func (p *Prior) LogProb(v []float64) float64 {
	if len(v) != p.n {
		panic(fmt.Sprintf("GP log-density expects %d frequencies, got %d", p.n, len(v)))
	}
	d, x := p.solve(v)
	return p.norm - 0.5*floats.Dot(d, x)
}

// logProbOp scores every row of an [r,n] tensor and returns [r].
type logProbOp struct {
	prior  *Prior
	solved [][]float64
	shape  []int
}

func (op *logProbOp) Forward(inputs ...*tensor.Tensor) *tensor.Tensor {
	rows := inputs[0]
	if len(rows.Shape) != 2 || rows.Shape[1] != op.prior.n {
		panic(fmt.Sprintf("GP log-density expects [rows,%d], got %v", op.prior.n, rows.Shape))
	}
	op.shape = rows.Shape
	r, n := rows.Shape[0], rows.Shape[1]
	out, _ := tensor.Zeros([]int{r})
	op.solved = make([][]float64, r)
	for i := 0; i < r; i++ {
		d, x := op.prior.solve(rows.Data[i*n : (i+1)*n])
		op.solved[i] = x
		out.Data[i] = op.prior.norm - 0.5*floats.Dot(d, x)
	}
	return tensor.Record(op, out, inputs...)
}

func (op *logProbOp) Backward(gradOut *tensor.Tensor) []*tensor.Tensor {
	// d/dv log N(v; m, K) = -K^-1 (v - m)
	g, _ := tensor.Zeros(op.shape)
	n := op.shape[1]
	for i, x := range op.solved {
		row := g.Data[i*n : (i+1)*n]
		floats.AddScaled(row, -gradOut.Data[i], x)
	}
	return []*tensor.Tensor{g}
}

// LogProbRows scores each row of rows ([r,n]) with gradients.
func (p *Prior) LogProbRows(rows *tensor.Tensor) *tensor.Tensor {
	return (&logProbOp{prior: p}).Forward(rows)
}

// Loss is -Reg times the summed log-density of the rows, shape [1].
func (p *Prior) Loss(rows *tensor.Tensor) *tensor.Tensor {
	return tensor.ScaleAutograd(tensor.SumAutograd(p.LogProbRows(rows)), -p.params.Reg)
}
