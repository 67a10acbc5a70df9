package tensor

import (
	"fmt"
	"math"
)

// Record attaches op as the creator of out. The output only joins the graph
// when at least one input requires gradients.
func Record(op Operation, out *Tensor, inputs ...*Tensor) *Tensor {
	for _, in := range inputs {
		if in.requiresGrad {
			out.requiresGrad = true
			out.creator = op
			out.parents = inputs
			break
		}
	}
	return out
}

// Backward runs reverse-mode differentiation from a one-element tensor and
// accumulates gradients into every leaf that requires them.
func (t *Tensor) Backward() error {
	if t.NumElems != 1 {
		return fmt.Errorf("backward requires a scalar output, got shape %v", t.Shape)
	}
	if !t.requiresGrad {
		return fmt.Errorf("tensor does not require gradients")
	}

	order := topoSort(t)
	grads := map[*Tensor]*Tensor{t: onesLike(t)}

	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		g := grads[node]
		if g == nil {
			continue
		}
		delete(grads, node)

		if node.creator == nil {
			if node.requiresGrad {
				if node.grad == nil {
					node.grad = g
				} else {
					accumulate(node.grad, g)
				}
			}
			continue
		}

		inGrads := node.creator.Backward(g)
		if len(inGrads) != len(node.parents) {
			return fmt.Errorf("operation %T returned %d gradients for %d inputs", node.creator, len(inGrads), len(node.parents))
		}
		for j, p := range node.parents {
			if !p.requiresGrad || inGrads[j] == nil {
				continue
			}
			if !shapesEqual(inGrads[j].Shape, p.Shape) {
				return fmt.Errorf("operation %T produced gradient of shape %v for input of shape %v", node.creator, inGrads[j].Shape, p.Shape)
			}
			if existing, ok := grads[p]; ok {
				accumulate(existing, inGrads[j])
			} else {
				// Operations may hand back their incoming gradient, so own a copy.
				grads[p] = inGrads[j].Clone()
			}
		}
	}
	return nil
}

// topoSort returns the graph below root in post order (inputs before outputs).
func topoSort(root *Tensor) []*Tensor {
	var order []*Tensor
	visited := make(map[*Tensor]bool)
	var visit func(*Tensor)
	visit = func(n *Tensor) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, p := range n.parents {
			if p.requiresGrad {
				visit(p)
			}
		}
		order = append(order, n)
	}
	visit(root)
	return order
}

func accumulate(dst, src *Tensor) {
	for i, v := range src.Data {
		dst.Data[i] += v
	}
}

// onesLike returns a tensor of ones with the shape of t.
func onesLike(t *Tensor) *Tensor {
	out := newTensor(t.Shape)
	for i := range out.Data {
		out.Data[i] = 1
	}
	return out
}

// AddOp implements the Operation interface for broadcasting addition
type AddOp struct {
	inputs []*Tensor
}

func (op *AddOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("AddOp requires exactly 2 inputs")
	}
	op.inputs = inputs
	result, err := Add(inputs[0], inputs[1])
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	return Record(op, result, inputs...)
}

func (op *AddOp) Backward(gradOut *Tensor) []*Tensor {
	return []*Tensor{
		reduceGradientToShape(gradOut, op.inputs[0].Shape),
		reduceGradientToShape(gradOut, op.inputs[1].Shape),
	}
}

// SubOp implements the Operation interface for broadcasting subtraction
type SubOp struct {
	inputs []*Tensor
}

func (op *SubOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("SubOp requires exactly 2 inputs")
	}
	op.inputs = inputs
	result, err := Sub(inputs[0], inputs[1])
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	return Record(op, result, inputs...)
}

func (op *SubOp) Backward(gradOut *Tensor) []*Tensor {
	return []*Tensor{
		reduceGradientToShape(gradOut, op.inputs[0].Shape),
		reduceGradientToShape(Scale(gradOut, -1), op.inputs[1].Shape),
	}
}

// MulOp implements the Operation interface for broadcasting elementwise multiplication
type MulOp struct {
	inputs []*Tensor
}

func (op *MulOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("MulOp requires exactly 2 inputs")
	}
	op.inputs = inputs
	result, err := Mul(inputs[0], inputs[1])
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	return Record(op, result, inputs...)
}

func (op *MulOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]
	// d(a*b)/da = b, d(a*b)/db = a
	gradA, err := Mul(gradOut, b)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	gradB, err := Mul(gradOut, a)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	return []*Tensor{
		reduceGradientToShape(gradA, a.Shape),
		reduceGradientToShape(gradB, b.Shape),
	}
}

// ScaleOp multiplies by a constant.
type ScaleOp struct {
	c float64
}

func (op *ScaleOp) Forward(inputs ...*Tensor) *Tensor {
	return Record(op, Scale(inputs[0], op.c), inputs...)
}

func (op *ScaleOp) Backward(gradOut *Tensor) []*Tensor {
	return []*Tensor{Scale(gradOut, op.c)}
}

// AddScalarOp adds a constant.
type AddScalarOp struct {
	c float64
}

func (op *AddScalarOp) Forward(inputs ...*Tensor) *Tensor {
	return Record(op, AddScalar(inputs[0], op.c), inputs...)
}

func (op *AddScalarOp) Backward(gradOut *Tensor) []*Tensor {
	return []*Tensor{gradOut}
}

// MatMulOp implements the Operation interface for 2D matrix multiplication
type MatMulOp struct {
	inputs []*Tensor
}

func (op *MatMulOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("MatMulOp requires exactly 2 inputs")
	}
	op.inputs = inputs
	result, err := MatMul(inputs[0], inputs[1])
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	return Record(op, result, inputs...)
}

func (op *MatMulOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]
	// C = A @ B: dA = dC @ B^T, dB = A^T @ dC
	bT, _ := Transpose(b)
	aT, _ := Transpose(a)
	gradA, err := MatMul(gradOut, bT)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	gradB, err := MatMul(aT, gradOut)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	return []*Tensor{gradA, gradB}
}

// TransposeOp swaps the two axes of a 2D tensor.
type TransposeOp struct{}

func (op *TransposeOp) Forward(inputs ...*Tensor) *Tensor {
	result, err := Transpose(inputs[0])
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	return Record(op, result, inputs...)
}

func (op *TransposeOp) Backward(gradOut *Tensor) []*Tensor {
	g, _ := Transpose(gradOut)
	return []*Tensor{g}
}

// ReshapeOp views the data under a new shape with the same element count.
type ReshapeOp struct {
	shape []int
	from  []int
}

func (op *ReshapeOp) Forward(inputs ...*Tensor) *Tensor {
	op.from = inputs[0].Shape
	result, err := inputs[0].Reshape(op.shape)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	return Record(op, result, inputs...)
}

func (op *ReshapeOp) Backward(gradOut *Tensor) []*Tensor {
	g, err := gradOut.Reshape(op.from)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	return []*Tensor{g}
}

// elementwiseOp covers unary activations. deriv receives the input and the
// output value at the same position.
type elementwiseOp struct {
	name   string
	fn     func(float64) float64
	deriv  func(x, y float64) float64
	input  *Tensor
	output *Tensor
}

func (op *elementwiseOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic(fmt.Sprintf("%s requires exactly 1 input", op.name))
	}
	op.input = inputs[0]
	op.output = unaryOp(inputs[0], op.fn)
	return Record(op, op.output, inputs...)
}

func (op *elementwiseOp) Backward(gradOut *Tensor) []*Tensor {
	g := newTensor(op.input.Shape)
	for i, x := range op.input.Data {
		g.Data[i] = gradOut.Data[i] * op.deriv(x, op.output.Data[i])
	}
	return []*Tensor{g}
}

// ReLUOp implements the Operation interface for ReLU activation
func ReLUOp() Operation {
	return &elementwiseOp{
		name: "ReLU",
		fn:   func(x float64) float64 { return math.Max(x, 0) },
		deriv: func(x, _ float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		},
	}
}

// SigmoidOp implements the Operation interface for Sigmoid activation
func SigmoidOp() Operation {
	return &elementwiseOp{
		name:  "Sigmoid",
		fn:    sigmoid,
		deriv: func(_, y float64) float64 { return y * (1 - y) },
	}
}

// SoftplusOp implements the Operation interface for Softplus activation
func SoftplusOp() Operation {
	return &elementwiseOp{
		name:  "Softplus",
		fn:    softplus,
		deriv: func(x, _ float64) float64 { return sigmoid(x) },
	}
}

func ExpOp() Operation {
	return &elementwiseOp{
		name:  "Exp",
		fn:    math.Exp,
		deriv: func(_, y float64) float64 { return y },
	}
}

func LogOp() Operation {
	return &elementwiseOp{
		name:  "Log",
		fn:    math.Log,
		deriv: func(x, _ float64) float64 { return 1 / x },
	}
}

func SquareOp() Operation {
	return &elementwiseOp{
		name:  "Square",
		fn:    func(x float64) float64 { return x * x },
		deriv: func(x, _ float64) float64 { return 2 * x },
	}
}

// SumOp reduces every element to a one-element tensor.
type SumOp struct {
	shape []int
}

func (op *SumOp) Forward(inputs ...*Tensor) *Tensor {
	op.shape = inputs[0].Shape
	total := 0.0
	for _, v := range inputs[0].Data {
		total += v
	}
	return Record(op, FromScalar(total), inputs...)
}

func (op *SumOp) Backward(gradOut *Tensor) []*Tensor {
	g := newTensor(op.shape)
	for i := range g.Data {
		g.Data[i] = gradOut.Data[0]
	}
	return []*Tensor{g}
}

// SumDimOp reduces a single dimension.
type SumDimOp struct {
	dim     int
	keepDim bool
	shape   []int
}

func (op *SumDimOp) Forward(inputs ...*Tensor) *Tensor {
	op.shape = inputs[0].Shape
	result, err := Sum(inputs[0], op.dim, op.keepDim)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	return Record(op, result, inputs...)
}

func (op *SumDimOp) Backward(gradOut *Tensor) []*Tensor {
	kept := reducedShape(op.shape, op.dim, true)
	g := newTensor(op.shape)
	for i, src := range broadcastIndices(kept, op.shape) {
		g.Data[i] = gradOut.Data[src]
	}
	return []*Tensor{g}
}

// SliceColsOp selects a contiguous column range of a 2D tensor.
type SliceColsOp struct {
	start, end int
	shape      []int
}

func (op *SliceColsOp) Forward(inputs ...*Tensor) *Tensor {
	op.shape = inputs[0].Shape
	result, err := SliceCols(inputs[0], op.start, op.end)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	return Record(op, result, inputs...)
}

func (op *SliceColsOp) Backward(gradOut *Tensor) []*Tensor {
	rows, cols := op.shape[0], op.shape[1]
	width := op.end - op.start
	g := newTensor(op.shape)
	for i := 0; i < rows; i++ {
		copy(g.Data[i*cols+op.start:i*cols+op.end], gradOut.Data[i*width:(i+1)*width])
	}
	return []*Tensor{g}
}

// ConcatOp joins two 2D tensors along rows (dim 0) or columns (dim 1).
type ConcatOp struct {
	dim    int
	inputs []*Tensor
}

func (op *ConcatOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("ConcatOp requires exactly 2 inputs")
	}
	op.inputs = inputs
	result, err := Concat(inputs[0], inputs[1], op.dim)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	return Record(op, result, inputs...)
}

func (op *ConcatOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]
	if op.dim == 0 {
		gradA := newTensor(a.Shape)
		gradB := newTensor(b.Shape)
		copy(gradA.Data, gradOut.Data[:a.NumElems])
		copy(gradB.Data, gradOut.Data[a.NumElems:])
		return []*Tensor{gradA, gradB}
	}
	c1 := a.Shape[1]
	gradA, _ := SliceCols(gradOut, 0, c1)
	gradB, _ := SliceCols(gradOut, c1, gradOut.Shape[1])
	return []*Tensor{gradA, gradB}
}

// GatherRowsOp selects rows by index. Negative indices produce zero rows that
// receive no gradient.
type GatherRowsOp struct {
	indices []int
	shape   []int
}

func (op *GatherRowsOp) Forward(inputs ...*Tensor) *Tensor {
	op.shape = inputs[0].Shape
	result, err := GatherRows(inputs[0], op.indices)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	return Record(op, result, inputs...)
}

func (op *GatherRowsOp) Backward(gradOut *Tensor) []*Tensor {
	cols := op.shape[1]
	g := newTensor(op.shape)
	for i, idx := range op.indices {
		if idx < 0 {
			continue
		}
		dst := g.Data[idx*cols : (idx+1)*cols]
		for j, v := range gradOut.Data[i*cols : (i+1)*cols] {
			dst[j] += v
		}
	}
	return []*Tensor{g}
}

// DiagOp builds a diagonal matrix from a vector.
type DiagOp struct {
	shape []int
}

func (op *DiagOp) Forward(inputs ...*Tensor) *Tensor {
	op.shape = inputs[0].Shape
	return Record(op, Diag(inputs[0]), inputs...)
}

func (op *DiagOp) Backward(gradOut *Tensor) []*Tensor {
	n := gradOut.Shape[0]
	g := newTensor(op.shape)
	for i := range g.Data {
		g.Data[i] = gradOut.Data[i*n+i]
	}
	return []*Tensor{g}
}

// NormalizeColsOp scales every column of a 2D tensor to unit L2 norm.
type NormalizeColsOp struct {
	output *Tensor
	norms  []float64
}

func (op *NormalizeColsOp) Forward(inputs ...*Tensor) *Tensor {
	x := inputs[0]
	if err := check2D(x, "normalize"); err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	rows, cols := x.Shape[0], x.Shape[1]
	op.norms = make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := x.Data[i*cols+j]
			op.norms[j] += v * v
		}
	}
	for j := range op.norms {
		op.norms[j] = math.Sqrt(op.norms[j])
	}
	op.output = newTensor(x.Shape)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			op.output.Data[i*cols+j] = x.Data[i*cols+j] / op.norms[j]
		}
	}
	return Record(op, op.output, inputs...)
}

func (op *NormalizeColsOp) Backward(gradOut *Tensor) []*Tensor {
	// y = x/|x|: dx = (g - y (y.g)) / |x| per column
	rows, cols := op.output.Shape[0], op.output.Shape[1]
	dots := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dots[j] += op.output.Data[i*cols+j] * gradOut.Data[i*cols+j]
		}
	}
	g := newTensor(op.output.Shape)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			k := i*cols + j
			g.Data[k] = (gradOut.Data[k] - op.output.Data[k]*dots[j]) / op.norms[j]
		}
	}
	return []*Tensor{g}
}

// LogSoftmaxPickOp returns, per row of a [b,c] logit matrix, the log
// probability of the row's label. Rows labelled -1 produce 0.
type LogSoftmaxPickOp struct {
	labels []int
	probs  []float64
	shape  []int
}

func (op *LogSoftmaxPickOp) Forward(inputs ...*Tensor) *Tensor {
	logits := inputs[0]
	if err := check2D(logits, "log-softmax"); err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	rows, cols := logits.Shape[0], logits.Shape[1]
	if len(op.labels) != rows {
		panic(fmt.Sprintf("Forward pass failed: %d labels for %d rows", len(op.labels), rows))
	}
	op.shape = logits.Shape
	op.probs = Softmax(logits).Data
	result := newTensor([]int{rows})
	for i, label := range op.labels {
		if label < 0 {
			continue
		}
		if label >= cols {
			panic(fmt.Sprintf("Forward pass failed: label %d out of range for %d classes", label, cols))
		}
		row := logits.Data[i*cols : (i+1)*cols]
		result.Data[i] = row[label] - logSumExp(row)
	}
	return Record(op, result, inputs...)
}

func (op *LogSoftmaxPickOp) Backward(gradOut *Tensor) []*Tensor {
	cols := op.shape[1]
	g := newTensor(op.shape)
	for i, label := range op.labels {
		if label < 0 {
			continue
		}
		for j := 0; j < cols; j++ {
			ind := 0.0
			if j == label {
				ind = 1
			}
			g.Data[i*cols+j] = gradOut.Data[i] * (ind - op.probs[i*cols+j])
		}
	}
	return []*Tensor{g}
}

// Softmax normalizes each row of a 2D tensor into a probability distribution.
func Softmax(t *Tensor) *Tensor {
	rows, cols := t.Shape[0], t.Shape[1]
	out := newTensor(t.Shape)
	for i := 0; i < rows; i++ {
		row := t.Data[i*cols : (i+1)*cols]
		lse := logSumExp(row)
		for j, v := range row {
			out.Data[i*cols+j] = math.Exp(v - lse)
		}
	}
	return out
}

func logSumExp(row []float64) float64 {
	m := math.Inf(-1)
	for _, v := range row {
		m = math.Max(m, v)
	}
	s := 0.0
	for _, v := range row {
		s += math.Exp(v - m)
	}
	return m + math.Log(s)
}

// High-level autograd functions that create and execute operations

// AddAutograd performs broadcasting addition with automatic differentiation
func AddAutograd(a, b *Tensor) *Tensor {
	return (&AddOp{}).Forward(a, b)
}

// SubAutograd performs broadcasting subtraction with automatic differentiation
func SubAutograd(a, b *Tensor) *Tensor {
	return (&SubOp{}).Forward(a, b)
}

// MulAutograd performs broadcasting multiplication with automatic differentiation
func MulAutograd(a, b *Tensor) *Tensor {
	return (&MulOp{}).Forward(a, b)
}

func ScaleAutograd(a *Tensor, c float64) *Tensor {
	return (&ScaleOp{c: c}).Forward(a)
}

func AddScalarAutograd(a *Tensor, c float64) *Tensor {
	return (&AddScalarOp{c: c}).Forward(a)
}

// MatMulAutograd performs matrix multiplication with automatic differentiation
func MatMulAutograd(a, b *Tensor) *Tensor {
	return (&MatMulOp{}).Forward(a, b)
}

func TransposeAutograd(a *Tensor) *Tensor {
	return (&TransposeOp{}).Forward(a)
}

func ReshapeAutograd(a *Tensor, shape ...int) *Tensor {
	return (&ReshapeOp{shape: shape}).Forward(a)
}

// ReLUAutograd performs ReLU activation with automatic differentiation
func ReLUAutograd(a *Tensor) *Tensor {
	return ReLUOp().Forward(a)
}

// SigmoidAutograd performs Sigmoid activation with automatic differentiation
func SigmoidAutograd(a *Tensor) *Tensor {
	return SigmoidOp().Forward(a)
}

func SoftplusAutograd(a *Tensor) *Tensor {
	return SoftplusOp().Forward(a)
}

func ExpAutograd(a *Tensor) *Tensor {
	return ExpOp().Forward(a)
}

func LogAutograd(a *Tensor) *Tensor {
	return LogOp().Forward(a)
}

func SquareAutograd(a *Tensor) *Tensor {
	return SquareOp().Forward(a)
}

// SumAutograd reduces all elements to shape [1].
func SumAutograd(a *Tensor) *Tensor {
	return (&SumOp{}).Forward(a)
}

// MeanAutograd averages all elements to shape [1].
func MeanAutograd(a *Tensor) *Tensor {
	return ScaleAutograd(SumAutograd(a), 1/float64(a.NumElems))
}

func SumDimAutograd(a *Tensor, dim int, keepDim bool) *Tensor {
	return (&SumDimOp{dim: dim, keepDim: keepDim}).Forward(a)
}

func MeanDimAutograd(a *Tensor, dim int, keepDim bool) *Tensor {
	return ScaleAutograd(SumDimAutograd(a, dim, keepDim), 1/float64(a.Shape[dim]))
}

func SliceColsAutograd(a *Tensor, start, end int) *Tensor {
	return (&SliceColsOp{start: start, end: end}).Forward(a)
}

func ConcatAutograd(a, b *Tensor, dim int) *Tensor {
	return (&ConcatOp{dim: dim}).Forward(a, b)
}

func GatherRowsAutograd(a *Tensor, indices []int) *Tensor {
	return (&GatherRowsOp{indices: indices}).Forward(a)
}

func DiagAutograd(a *Tensor) *Tensor {
	return (&DiagOp{}).Forward(a)
}

func NormalizeColsAutograd(a *Tensor) *Tensor {
	return (&NormalizeColsOp{}).Forward(a)
}

func LogSoftmaxPickAutograd(logits *Tensor, labels []int) *Tensor {
	return (&LogSoftmaxPickOp{labels: labels}).Forward(logits)
}
