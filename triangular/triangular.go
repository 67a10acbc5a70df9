// Package triangular converts symmetric region-by-region tensors to and from
// their condensed lower-triangular storage form.
//
// Element (i, j) with j <= i of an n by n matrix is stored at condensed index
// i(i+1)/2 + j, so the lower triangle is read in row-major order.
package triangular

import (
	"math"

	"github.com/juju/errors"

	"github.com/tsawler/go-lpne/tensor"
)

// Size returns the condensed length of an n by n symmetric matrix.
func Size(n int) int {
	return n * (n + 1) / 2
}

// Order inverts Size.
func Order(m int) (int, error) {
	n := int((math.Sqrt(float64(8*m+1)) - 1) / 2)
	for _, c := range []int{n - 1, n, n + 1} {
		if c >= 1 && Size(c) == m {
			return c, nil
		}
	}
	return 0, errors.NotValidf("condensed length %d is not triangular", m)
}

func index(i, j int) int {
	if j > i {
		i, j = j, i
	}
	return i*(i+1)/2 + j
}

func product(dims []int) int {
	p := 1
	for _, d := range dims {
		p *= d
	}
	return p
}

// Expand replaces the condensed axis of t with two symmetric axes of size n.
func Expand(t *tensor.Tensor, axis int) (*tensor.Tensor, error) {
	if axis < 0 || axis >= len(t.Shape) {
		return nil, errors.NotValidf("axis %d for shape %v", axis, t.Shape)
	}
	n, err := Order(t.Shape[axis])
	if err != nil {
		return nil, errors.Trace(err)
	}

	outer := product(t.Shape[:axis])
	inner := product(t.Shape[axis+1:])
	m := t.Shape[axis]

	shape := make([]int, 0, len(t.Shape)+1)
	shape = append(shape, t.Shape[:axis]...)
	shape = append(shape, n, n)
	shape = append(shape, t.Shape[axis+1:]...)
	out, err := tensor.Zeros(shape)
	if err != nil {
		return nil, errors.Trace(err)
	}

	for o := 0; o < outer; o++ {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				src := (o*m + index(i, j)) * inner
				dst := ((o*n+i)*n + j) * inner
				copy(out.Data[dst:dst+inner], t.Data[src:src+inner])
			}
		}
	}
	return out, nil
}

// Compress extracts the lower triangle spanned by axis1 and axis2. The
// condensed axis takes the place of the smaller axis and the other is removed.
// Only the lower triangle is read, so t is assumed symmetric in the two axes.
func Compress(t *tensor.Tensor, axis1, axis2 int) (*tensor.Tensor, error) {
	rank := len(t.Shape)
	if axis1 < 0 || axis1 >= rank || axis2 < 0 || axis2 >= rank {
		return nil, errors.NotValidf("axes (%d, %d) for shape %v", axis1, axis2, t.Shape)
	}
	if axis1 == axis2 {
		return nil, errors.NotValidf("identical axes %d", axis1)
	}
	if t.Shape[axis1] != t.Shape[axis2] {
		return nil, errors.NotValidf("axes of unequal size %d and %d", t.Shape[axis1], t.Shape[axis2])
	}
	a, b := min(axis1, axis2), max(axis1, axis2)
	n := t.Shape[a]

	shape := make([]int, 0, rank-1)
	for d, s := range t.Shape {
		switch d {
		case a:
			shape = append(shape, Size(n))
		case b:
		default:
			shape = append(shape, s)
		}
	}
	out, err := tensor.Zeros(shape)
	if err != nil {
		return nil, errors.Trace(err)
	}

	outStrides := out.Strides
	coords := make([]int, rank)
	for flat := range t.Data {
		i, j := coords[a], coords[b]
		if j <= i {
			dst := 0
			k := 0
			for d, c := range coords {
				switch d {
				case a:
					dst += index(i, j) * outStrides[k]
					k++
				case b:
				default:
					dst += c * outStrides[k]
					k++
				}
			}
			out.Data[dst] = t.Data[flat]
		}
		for d := rank - 1; d >= 0; d-- {
			coords[d]++
			if coords[d] < t.Shape[d] {
				break
			}
			coords[d] = 0
		}
	}
	return out, nil
}
