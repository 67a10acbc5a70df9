package tensor

import (
	"fmt"
	"math"
)

func checkCompatibility(t1, t2 *Tensor) error {
	if t1 == nil || t2 == nil {
		return fmt.Errorf("tensors cannot be nil")
	}
	if t1.Device != t2.Device {
		return fmt.Errorf("tensors must be on same device: %s vs %s", t1.Device, t2.Device)
	}
	return nil
}

func binaryOp(t1, t2 *Tensor, f func(a, b float64) float64) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	outputShape, err := BroadcastShapes(t1.Shape, t2.Shape)
	if err != nil {
		return nil, err
	}

	result := newTensor(outputShape)
	if shapesEqual(t1.Shape, t2.Shape) {
		for i := range result.Data {
			result.Data[i] = f(t1.Data[i], t2.Data[i])
		}
		return result, nil
	}

	idx1 := broadcastIndices(t1.Shape, outputShape)
	idx2 := broadcastIndices(t2.Shape, outputShape)
	for i := range result.Data {
		result.Data[i] = f(t1.Data[idx1[i]], t2.Data[idx2[i]])
	}
	return result, nil
}

func unaryOp(t *Tensor, f func(a float64) float64) *Tensor {
	result := newTensor(t.Shape)
	for i, v := range t.Data {
		result.Data[i] = f(v)
	}
	return result
}

func Add(t1, t2 *Tensor) (*Tensor, error) {
	return binaryOp(t1, t2, func(a, b float64) float64 { return a + b })
}

func Sub(t1, t2 *Tensor) (*Tensor, error) {
	return binaryOp(t1, t2, func(a, b float64) float64 { return a - b })
}

func Mul(t1, t2 *Tensor) (*Tensor, error) {
	return binaryOp(t1, t2, func(a, b float64) float64 { return a * b })
}

func Div(t1, t2 *Tensor) (*Tensor, error) {
	return binaryOp(t1, t2, func(a, b float64) float64 { return a / b })
}

// Scale multiplies every element by c.
func Scale(t *Tensor, c float64) *Tensor {
	return unaryOp(t, func(a float64) float64 { return a * c })
}

// AddScalar adds c to every element.
func AddScalar(t *Tensor, c float64) *Tensor {
	return unaryOp(t, func(a float64) float64 { return a + c })
}

func ReLU(t *Tensor) *Tensor {
	return unaryOp(t, func(a float64) float64 { return math.Max(a, 0) })
}

func Sigmoid(t *Tensor) *Tensor {
	return unaryOp(t, sigmoid)
}

// Softplus computes log(1 + exp(x)) without overflowing for large x.
func Softplus(t *Tensor) *Tensor {
	return unaryOp(t, softplus)
}

func Exp(t *Tensor) *Tensor {
	return unaryOp(t, math.Exp)
}

func Log(t *Tensor) *Tensor {
	return unaryOp(t, math.Log)
}

func Square(t *Tensor) *Tensor {
	return unaryOp(t, func(a float64) float64 { return a * a })
}

func Sqrt(t *Tensor) *Tensor {
	return unaryOp(t, math.Sqrt)
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func softplus(x float64) float64 {
	if x > 20 {
		return x
	}
	if x < -20 {
		return math.Exp(x)
	}
	return math.Log1p(math.Exp(x))
}
