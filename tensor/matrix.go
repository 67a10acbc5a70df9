package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

func check2D(t *Tensor, op string) error {
	if t == nil {
		return fmt.Errorf("%s: tensor cannot be nil", op)
	}
	if len(t.Shape) != 2 {
		return fmt.Errorf("%s requires a 2D tensor, got shape %v", op, t.Shape)
	}
	return nil
}

// Dense returns a gonum view of a 2D tensor. The view shares memory with t.
func (t *Tensor) Dense() (*mat.Dense, error) {
	if err := check2D(t, "Dense"); err != nil {
		return nil, err
	}
	return mat.NewDense(t.Shape[0], t.Shape[1], t.Data), nil
}

// FromDense copies a gonum matrix into a new 2D tensor.
func FromDense(m mat.Matrix) *Tensor {
	r, c := m.Dims()
	t := newTensor([]int{r, c})
	dst := mat.NewDense(r, c, t.Data)
	dst.Copy(m)
	return t
}

func MatMul(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	if err := check2D(t1, "matmul"); err != nil {
		return nil, err
	}
	if err := check2D(t2, "matmul"); err != nil {
		return nil, err
	}

	rows1, cols1 := t1.Shape[0], t1.Shape[1]
	rows2, cols2 := t2.Shape[0], t2.Shape[1]
	if cols1 != rows2 {
		return nil, fmt.Errorf("incompatible matrix dimensions: %dx%d and %dx%d", rows1, cols1, rows2, cols2)
	}

	result := newTensor([]int{rows1, cols2})
	a := mat.NewDense(rows1, cols1, t1.Data)
	b := mat.NewDense(rows2, cols2, t2.Data)
	mat.NewDense(rows1, cols2, result.Data).Mul(a, b)
	return result, nil
}

func Transpose(t *Tensor) (*Tensor, error) {
	if err := check2D(t, "transpose"); err != nil {
		return nil, err
	}
	rows, cols := t.Shape[0], t.Shape[1]
	result := newTensor([]int{cols, rows})
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			result.Data[j*rows+i] = t.Data[i*cols+j]
		}
	}
	return result, nil
}

// Sum reduces t over dim.
func Sum(t *Tensor, dim int, keepDim bool) (*Tensor, error) {
	if dim < 0 || dim >= len(t.Shape) {
		return nil, fmt.Errorf("dimension %d out of bounds for tensor with %d dimensions", dim, len(t.Shape))
	}

	outer := 1
	for _, d := range t.Shape[:dim] {
		outer *= d
	}
	inner := t.Strides[dim]
	size := t.Shape[dim]

	result := newTensor(reducedShape(t.Shape, dim, keepDim))
	for o := 0; o < outer; o++ {
		for k := 0; k < size; k++ {
			base := (o*size + k) * inner
			for i := 0; i < inner; i++ {
				result.Data[o*inner+i] += t.Data[base+i]
			}
		}
	}
	return result, nil
}

func reducedShape(shape []int, dim int, keepDim bool) []int {
	out := make([]int, 0, len(shape))
	for i, s := range shape {
		switch {
		case i != dim:
			out = append(out, s)
		case keepDim:
			out = append(out, 1)
		}
	}
	if len(out) == 0 {
		out = append(out, 1)
	}
	return out
}

// Concat joins two 2D tensors along dim (0 stacks rows, 1 stacks columns).
func Concat(t1, t2 *Tensor, dim int) (*Tensor, error) {
	if err := check2D(t1, "concat"); err != nil {
		return nil, err
	}
	if err := check2D(t2, "concat"); err != nil {
		return nil, err
	}

	switch dim {
	case 0:
		if t1.Shape[1] != t2.Shape[1] {
			return nil, fmt.Errorf("concat rows: column mismatch %v vs %v", t1.Shape, t2.Shape)
		}
		result := newTensor([]int{t1.Shape[0] + t2.Shape[0], t1.Shape[1]})
		copy(result.Data, t1.Data)
		copy(result.Data[t1.NumElems:], t2.Data)
		return result, nil
	case 1:
		if t1.Shape[0] != t2.Shape[0] {
			return nil, fmt.Errorf("concat columns: row mismatch %v vs %v", t1.Shape, t2.Shape)
		}
		rows, c1, c2 := t1.Shape[0], t1.Shape[1], t2.Shape[1]
		result := newTensor([]int{rows, c1 + c2})
		for i := 0; i < rows; i++ {
			copy(result.Data[i*(c1+c2):], t1.Data[i*c1:(i+1)*c1])
			copy(result.Data[i*(c1+c2)+c1:], t2.Data[i*c2:(i+1)*c2])
		}
		return result, nil
	default:
		return nil, fmt.Errorf("concat: dimension %d out of bounds for 2D tensors", dim)
	}
}

// SliceCols returns columns [start, end) of a 2D tensor.
func SliceCols(t *Tensor, start, end int) (*Tensor, error) {
	if err := check2D(t, "slice"); err != nil {
		return nil, err
	}
	rows, cols := t.Shape[0], t.Shape[1]
	if start < 0 || end > cols || start >= end {
		return nil, fmt.Errorf("invalid column range [%d, %d) for %d columns", start, end, cols)
	}
	width := end - start
	result := newTensor([]int{rows, width})
	for i := 0; i < rows; i++ {
		copy(result.Data[i*width:(i+1)*width], t.Data[i*cols+start:i*cols+end])
	}
	return result, nil
}

// SliceRows returns rows [start, end) of a tensor as a copy.
func SliceRows(t *Tensor, start, end int) (*Tensor, error) {
	if len(t.Shape) == 0 || start < 0 || end > t.Shape[0] || start >= end {
		return nil, fmt.Errorf("invalid row range [%d, %d) for shape %v", start, end, t.Shape)
	}
	shape := append([]int{end - start}, t.Shape[1:]...)
	result := newTensor(shape)
	stride := t.NumElems / t.Shape[0]
	copy(result.Data, t.Data[start*stride:end*stride])
	return result, nil
}

// GatherRows selects rows of a 2D tensor. A negative index yields a zero row.
func GatherRows(t *Tensor, indices []int) (*Tensor, error) {
	if err := check2D(t, "gather"); err != nil {
		return nil, err
	}
	rows, cols := t.Shape[0], t.Shape[1]
	if len(indices) == 0 {
		return nil, fmt.Errorf("gather: no indices")
	}
	result := newTensor([]int{len(indices), cols})
	for i, idx := range indices {
		if idx >= rows {
			return nil, fmt.Errorf("gather: index %d out of range for %d rows", idx, rows)
		}
		if idx < 0 {
			continue
		}
		copy(result.Data[i*cols:(i+1)*cols], t.Data[idx*cols:(idx+1)*cols])
	}
	return result, nil
}

// Diag builds a square matrix with the elements of t on its diagonal.
func Diag(t *Tensor) *Tensor {
	n := t.NumElems
	result := newTensor([]int{n, n})
	for i, v := range t.Data {
		result.Data[i*n+i] = v
	}
	return result
}
