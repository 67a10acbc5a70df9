package tensor

import (
	"fmt"
)

// BroadcastShapes determines if two shapes are broadcastable and returns the resulting shape
// Follows NumPy/PyTorch broadcasting rules:
// 1. Start from trailing dimensions and work backwards
// 2. Dimensions are compatible if they are equal, or one of them is 1, or one is missing
// 3. Result shape is the maximum of each dimension
func BroadcastShapes(shape1, shape2 []int) ([]int, error) {
	if len(shape1) == 0 {
		return append([]int(nil), shape2...), nil
	}
	if len(shape2) == 0 {
		return append([]int(nil), shape1...), nil
	}

	maxDims := len(shape1)
	if len(shape2) > maxDims {
		maxDims = len(shape2)
	}

	resultShape := make([]int, maxDims)
	for i := 0; i < maxDims; i++ {
		dim1 := dimFromEnd(shape1, i)
		dim2 := dimFromEnd(shape2, i)
		resultIdx := maxDims - 1 - i

		switch {
		case dim1 == dim2:
			resultShape[resultIdx] = dim1
		case dim1 == 1:
			resultShape[resultIdx] = dim2
		case dim2 == 1:
			resultShape[resultIdx] = dim1
		default:
			return nil, fmt.Errorf("shapes %v and %v are not broadcastable: dimension %d (%d vs %d)",
				shape1, shape2, i, dim1, dim2)
		}
	}

	return resultShape, nil
}

// AreBroadcastable checks if two shapes can be broadcast together
func AreBroadcastable(shape1, shape2 []int) bool {
	_, err := BroadcastShapes(shape1, shape2)
	return err == nil
}

func dimFromEnd(shape []int, i int) int {
	idx := len(shape) - 1 - i
	if idx < 0 {
		return 1
	}
	return shape[idx]
}

// broadcastStrides returns strides of shape laid over target, with zero
// strides on every broadcast dimension.
func broadcastStrides(shape, target []int) []int {
	strides := make([]int, len(target))
	own := calculateStrides(shape)
	offset := len(target) - len(shape)
	for i := range target {
		j := i - offset
		if j < 0 || shape[j] == 1 {
			continue
		}
		strides[i] = own[j]
	}
	return strides
}

// broadcastIndices maps every flat index of target to the flat index of the
// broadcast source.
func broadcastIndices(shape, target []int) []int {
	n := calculateNumElements(target)
	out := make([]int, n)
	if shapesEqual(shape, target) {
		for i := range out {
			out[i] = i
		}
		return out
	}
	strides := broadcastStrides(shape, target)
	coords := make([]int, len(target))
	for i := 0; i < n; i++ {
		idx := 0
		for d, c := range coords {
			idx += c * strides[d]
		}
		out[i] = idx
		for d := len(target) - 1; d >= 0; d-- {
			coords[d]++
			if coords[d] < target[d] {
				break
			}
			coords[d] = 0
		}
	}
	return out
}

// reduceGradientToShape sums a gradient computed for a broadcast result back
// to the shape of the operand.
func reduceGradientToShape(grad *Tensor, targetShape []int) *Tensor {
	if shapesEqual(grad.Shape, targetShape) {
		return grad
	}
	out := newTensor(targetShape)
	for i, src := range broadcastIndices(targetShape, grad.Shape) {
		out.Data[src] += grad.Data[i]
	}
	return out
}

func shapesEqual(shape1, shape2 []int) bool {
	if len(shape1) != len(shape2) {
		return false
	}
	for i := range shape1 {
		if shape1[i] != shape2[i] {
			return false
		}
	}
	return true
}
