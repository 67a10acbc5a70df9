package tensor

import (
	"fmt"
	"math/rand"
)

// NewTensor wraps data (not copied) in a tensor of the given shape.
func NewTensor(shape []int, data []float64) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)
	if data == nil {
		data = make([]float64, numElems)
	}
	if len(data) != numElems {
		return nil, fmt.Errorf("data length %d does not match tensor size %d", len(data), numElems)
	}

	s := make([]int, len(shape))
	copy(s, shape)
	return &Tensor{
		Shape:    s,
		Strides:  calculateStrides(s),
		Device:   CPU,
		Data:     data,
		NumElems: numElems,
	}, nil
}

func Zeros(shape []int) (*Tensor, error) {
	return NewTensor(shape, nil)
}

func Ones(shape []int) (*Tensor, error) {
	return Full(shape, 1)
}

func Full(shape []int, value float64) (*Tensor, error) {
	t, err := Zeros(shape)
	if err != nil {
		return nil, err
	}
	for i := range t.Data {
		t.Data[i] = value
	}
	return t, nil
}

// Uniform fills a tensor with values drawn from U(low, high).
func Uniform(shape []int, low, high float64, rng *rand.Rand) (*Tensor, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source cannot be nil")
	}
	t, err := Zeros(shape)
	if err != nil {
		return nil, err
	}
	for i := range t.Data {
		t.Data[i] = low + (high-low)*rng.Float64()
	}
	return t, nil
}

// RandomNormal fills a tensor with values drawn from N(mean, std^2).
func RandomNormal(shape []int, mean, std float64, rng *rand.Rand) (*Tensor, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source cannot be nil")
	}
	t, err := Zeros(shape)
	if err != nil {
		return nil, err
	}
	for i := range t.Data {
		t.Data[i] = mean + std*rng.NormFloat64()
	}
	return t, nil
}

// FromScalar creates a one-element tensor.
func FromScalar(value float64) *Tensor {
	t := newTensor([]int{1})
	t.Data[0] = value
	return t
}

// Param creates a leaf tensor that accumulates gradients.
func Param(shape []int, data []float64) (*Tensor, error) {
	t, err := NewTensor(shape, data)
	if err != nil {
		return nil, err
	}
	t.requiresGrad = true
	return t, nil
}
