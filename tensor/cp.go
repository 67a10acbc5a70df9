package tensor

import (
	"fmt"
)

// CPVolume contracts per-row weights with a selected rank-one factor triple:
//
//	v[b, f, i, j] = sum_z w[b, z] F[g_b, z, f] R1[g_b, z, i] R2[g_b, z, j]
//
// w is [b, z]; F is [G, z*f]; R1 and R2 are [G, z*r]; index holds g_b for
// every row. The result is flattened to [b, f*r*r].
func CPVolume(w, f, r1, r2 *Tensor, index []int) (*Tensor, error) {
	dims, err := cpDims(w, f, r1, r2, index)
	if err != nil {
		return nil, err
	}
	out := newTensor([]int{dims.b, dims.f * dims.r * dims.r})
	dims.each(w, f, r1, r2, index, func(b, z, fi, i, j, pos int, wbz, fv, r1v, r2v float64) {
		out.Data[b*dims.f*dims.r*dims.r+pos] += wbz * fv * r1v * r2v
	})
	return out, nil
}

type cpShape struct {
	b, z, f, r, groups int
}

func cpDims(w, f, r1, r2 *Tensor, index []int) (cpShape, error) {
	for _, t := range []*Tensor{w, f, r1, r2} {
		if len(t.Shape) != 2 {
			return cpShape{}, fmt.Errorf("CP volume expects 2D tensors, got shape %v", t.Shape)
		}
	}
	d := cpShape{b: w.Shape[0], z: w.Shape[1], groups: f.Shape[0]}
	if len(index) != d.b {
		return d, fmt.Errorf("CP volume: %d group indices for %d rows", len(index), d.b)
	}
	if f.Shape[1]%d.z != 0 || r1.Shape[1]%d.z != 0 {
		return d, fmt.Errorf("CP volume: factor widths %d and %d are not multiples of %d", f.Shape[1], r1.Shape[1], d.z)
	}
	d.f, d.r = f.Shape[1]/d.z, r1.Shape[1]/d.z
	if r1.Shape[0] != d.groups || r2.Shape[0] != d.groups || r2.Shape[1] != r1.Shape[1] {
		return d, fmt.Errorf("CP volume: mismatched factor shapes %v, %v, %v", f.Shape, r1.Shape, r2.Shape)
	}
	for _, g := range index {
		if g < 0 || g >= d.groups {
			return d, fmt.Errorf("CP volume: group index %d out of range [0, %d)", g, d.groups)
		}
	}
	return d, nil
}

// each visits every term of the contraction. pos is the offset of (fi, i, j)
// within a row of the output.
func (d cpShape) each(w, f, r1, r2 *Tensor, index []int, visit func(b, z, fi, i, j, pos int, wbz, fv, r1v, r2v float64)) {
	for b, g := range index {
		for z := 0; z < d.z; z++ {
			wbz := w.Data[b*d.z+z]
			fRow := f.Data[(g*d.z+z)*d.f : (g*d.z+z+1)*d.f]
			r1Row := r1.Data[(g*d.z+z)*d.r : (g*d.z+z+1)*d.r]
			r2Row := r2.Data[(g*d.z+z)*d.r : (g*d.z+z+1)*d.r]
			for fi, fv := range fRow {
				for i, r1v := range r1Row {
					for j, r2v := range r2Row {
						visit(b, z, fi, i, j, (fi*d.r+i)*d.r+j, wbz, fv, r1v, r2v)
					}
				}
			}
		}
	}
}

// CPVolumeOp differentiates CPVolume with respect to all four tensors.
type CPVolumeOp struct {
	index  []int
	dims   cpShape
	inputs []*Tensor
}

func (op *CPVolumeOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 4 {
		panic("CPVolumeOp requires exactly 4 inputs")
	}
	op.inputs = inputs
	result, err := CPVolume(inputs[0], inputs[1], inputs[2], inputs[3], op.index)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	op.dims, _ = cpDims(inputs[0], inputs[1], inputs[2], inputs[3], op.index)
	return Record(op, result, inputs...)
}

func (op *CPVolumeOp) Backward(gradOut *Tensor) []*Tensor {
	w, f, r1, r2 := op.inputs[0], op.inputs[1], op.inputs[2], op.inputs[3]
	d := op.dims
	gw, gf, gr1, gr2 := newTensor(w.Shape), newTensor(f.Shape), newTensor(r1.Shape), newTensor(r2.Shape)
	rowSize := d.f * d.r * d.r
	d.each(w, f, r1, r2, op.index, func(b, z, fi, i, j, pos int, wbz, fv, r1v, r2v float64) {
		g := gradOut.Data[b*rowSize+pos]
		if g == 0 {
			return
		}
		row := op.index[b]*d.z + z
		gw.Data[b*d.z+z] += g * fv * r1v * r2v
		gf.Data[row*d.f+fi] += g * wbz * r1v * r2v
		gr1.Data[row*d.r+i] += g * wbz * fv * r2v
		gr2.Data[row*d.r+j] += g * wbz * fv * r1v
	})
	return []*Tensor{gw, gf, gr1, gr2}
}

// CPVolumeAutograd is CPVolume with gradients.
func CPVolumeAutograd(w, f, r1, r2 *Tensor, index []int) *Tensor {
	return (&CPVolumeOp{index: append([]int(nil), index...)}).Forward(w, f, r1, r2)
}
