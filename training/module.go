package training

import (
	"math"
	"math/rand"

	"github.com/juju/errors"

	"github.com/tsawler/go-lpne/tensor"
)

// Module is a differentiable component with trainable parameters.
type Module interface {
	Forward(input *tensor.Tensor) *tensor.Tensor
	Parameters() []*tensor.Tensor
}

// Linear implements a fully connected layer: y = xW + b
type Linear struct {
	Weight *tensor.Tensor // [in, out]
	Bias   *tensor.Tensor // [1, out]
}

// NewLinear creates a Linear layer with weights and bias drawn from
// U(-1/sqrt(in), 1/sqrt(in)).
func NewLinear(inputSize, outputSize int, rng *rand.Rand) (*Linear, error) {
	if inputSize < 1 || outputSize < 1 {
		return nil, errors.NotValidf("linear layer %d -> %d", inputSize, outputSize)
	}
	bound := 1 / math.Sqrt(float64(inputSize))

	weight, err := tensor.Uniform([]int{inputSize, outputSize}, -bound, bound, rng)
	if err != nil {
		return nil, errors.Annotate(err, "failed to create weight tensor")
	}
	bias, err := tensor.Uniform([]int{1, outputSize}, -bound, bound, rng)
	if err != nil {
		return nil, errors.Annotate(err, "failed to create bias tensor")
	}
	weight.SetRequiresGrad(true)
	bias.SetRequiresGrad(true)

	return &Linear{Weight: weight, Bias: bias}, nil
}

// Forward maps [b, in] to [b, out].
func (l *Linear) Forward(input *tensor.Tensor) *tensor.Tensor {
	return tensor.AddAutograd(tensor.MatMulAutograd(input, l.Weight), l.Bias)
}

func (l *Linear) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{l.Weight, l.Bias}
}

// InputSize returns the number of input features.
func (l *Linear) InputSize() int {
	return l.Weight.Shape[0]
}

// OutputSize returns the number of output features.
func (l *Linear) OutputSize() int {
	return l.Weight.Shape[1]
}
