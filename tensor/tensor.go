// Package tensor implements dense real tensors with labeled axis
// contractions.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock
package tensor

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch is returned when tensors with incompatible axis
// lengths are contracted or combined.
var ErrShapeMismatch = errors.New("shape mismatch")

// Dense is a dense tensor with an ordered list of index dimensions and
// a row-major float64 payload.
type Dense struct {
	shape []int
	data  []float64
}

// Zeros returns a zero tensor of the given shape.
func Zeros(shape ...int) *Dense {
	for _, d := range shape {
		if d <= 0 {
			panic(fmt.Sprintf("%#v", shape))
		}
	}
	return &Dense{shape: append([]int{}, shape...), data: make([]float64, prod(shape))}
}

// New wraps data in a tensor of the given shape.
// The data slice is owned by the returned tensor.
func New(shape []int, data []float64) (*Dense, error) {
	if prod(shape) != len(data) {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("shape %v data %d", shape, len(data)))
	}
	return &Dense{shape: append([]int{}, shape...), data: data}, nil
}

// T2 creates a matrix tensor from a 2D slice.
func T2(rows [][]float64) *Dense {
	t := Zeros(len(rows), len(rows[0]))
	for i, row := range rows {
		if len(row) != len(rows[0]) {
			panic(fmt.Sprintf("%d %d", len(row), len(rows[0])))
		}
		copy(t.data[i*len(row):(i+1)*len(row)], row)
	}
	return t
}

// T4 creates a 4-dimensional tensor from a 2D slice of matrix blocks.
func T4(blocks [][][][]float64) *Dense {
	d0, d1 := len(blocks), len(blocks[0])
	d2, d3 := len(blocks[0][0]), len(blocks[0][0][0])
	t := Zeros(d0, d1, d2, d3)
	for i := range blocks {
		for j := range blocks[i] {
			for k := range blocks[i][j] {
				for l, v := range blocks[i][j][k] {
					t.Set(v, i, j, k, l)
				}
			}
		}
	}
	return t
}

// Rand returns a tensor with entries drawn uniformly from [-1, 1).
func Rand(rnd *rand.Rand, shape ...int) *Dense {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = rnd.Float64()*2 - 1
	}
	return t
}

// Shape returns the tensor dimensions.
// The returned slice must not be modified.
func (t *Dense) Shape() []int { return t.shape }

// Size returns the total element count.
func (t *Dense) Size() int { return len(t.data) }

// Data returns the row-major payload.
// The returned slice is shared with the tensor.
func (t *Dense) Data() []float64 { return t.data }

// At returns the element at the given multi-index.
func (t *Dense) At(ix ...int) float64 {
	return t.data[t.offset(ix)]
}

// Set sets the element at the given multi-index.
func (t *Dense) Set(v float64, ix ...int) {
	t.data[t.offset(ix)] = v
}

func (t *Dense) offset(ix []int) int {
	if len(ix) != len(t.shape) {
		panic(fmt.Sprintf("%v %v", ix, t.shape))
	}
	off := 0
	for i, x := range ix {
		if x < 0 || x >= t.shape[i] {
			panic(fmt.Sprintf("%v %v", ix, t.shape))
		}
		off = off*t.shape[i] + x
	}
	return off
}

// Clone returns a deep copy.
func (t *Dense) Clone() *Dense {
	return &Dense{shape: append([]int{}, t.shape...), data: append([]float64{}, t.data...)}
}

// Reshape returns a tensor sharing t's payload under a new shape.
// At most one dimension may be -1, in which case it is inferred.
func (t *Dense) Reshape(shape ...int) *Dense {
	shape = append([]int{}, shape...)
	infer := -1
	known := 1
	for i, d := range shape {
		switch {
		case d == -1:
			if infer >= 0 {
				panic(fmt.Sprintf("%#v", shape))
			}
			infer = i
		case d <= 0:
			panic(fmt.Sprintf("%#v", shape))
		default:
			known *= d
		}
	}
	if infer >= 0 {
		if len(t.data)%known != 0 {
			panic(fmt.Sprintf("%#v %d", shape, len(t.data)))
		}
		shape[infer] = len(t.data) / known
	} else if known != len(t.data) {
		panic(fmt.Sprintf("%#v %d", shape, len(t.data)))
	}
	return &Dense{shape: shape, data: t.data}
}

// Transpose returns a copy of t with axes permuted.
func (t *Dense) Transpose(perm ...int) *Dense {
	n := len(t.shape)
	if len(perm) != n {
		panic(fmt.Sprintf("%v %v", perm, t.shape))
	}
	seen := make([]bool, n)
	newShape := make([]int, n)
	for i, p := range perm {
		if p < 0 || p >= n || seen[p] {
			panic(fmt.Sprintf("%v", perm))
		}
		seen[p] = true
		newShape[i] = t.shape[p]
	}

	dst := Zeros(newShape...)
	dstStride := strides(newShape)
	ix := make([]int, n)
	for off := range t.data {
		dstOff := 0
		for i, p := range perm {
			dstOff += ix[p] * dstStride[i]
		}
		dst.data[dstOff] = t.data[off]

		// Advance the odometer over t's shape.
		for i := n - 1; i >= 0; i-- {
			ix[i]++
			if ix[i] < t.shape[i] {
				break
			}
			ix[i] = 0
		}
	}
	return dst
}

// Slice returns a copy of the subtensor bounded by the half-open
// ranges, one [lo, hi) pair per axis.
func (t *Dense) Slice(ranges [][2]int) *Dense {
	n := len(t.shape)
	if len(ranges) != n {
		panic(fmt.Sprintf("%v %v", ranges, t.shape))
	}
	newShape := make([]int, n)
	for i, r := range ranges {
		if r[0] < 0 || r[1] > t.shape[i] || r[0] >= r[1] {
			panic(fmt.Sprintf("%v %v", ranges, t.shape))
		}
		newShape[i] = r[1] - r[0]
	}

	dst := Zeros(newShape...)
	srcStride := strides(t.shape)
	ix := make([]int, n)
	for off := range dst.data {
		srcOff := 0
		for i := range ix {
			srcOff += (ranges[i][0] + ix[i]) * srcStride[i]
		}
		dst.data[off] = t.data[srcOff]

		for i := n - 1; i >= 0; i-- {
			ix[i]++
			if ix[i] < newShape[i] {
				break
			}
			ix[i] = 0
		}
	}
	return dst
}

// Scale multiplies every element by c and returns t.
func (t *Dense) Scale(c float64) *Dense {
	for i := range t.data {
		t.data[i] *= c
	}
	return t
}

// Norm returns the Frobenius norm.
func (t *Dense) Norm() float64 {
	var s float64
	for _, v := range t.data {
		s += v * v
	}
	return math.Sqrt(s)
}

// Dot returns the inner product of a and b viewed as flat vectors.
func Dot(a, b *Dense) (float64, error) {
	if len(a.data) != len(b.data) {
		return 0, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("%v %v", a.shape, b.shape))
	}
	var s float64
	for i, v := range a.data {
		s += v * b.data[i]
	}
	return s, nil
}

// Contract contracts a and b over the paired axes axesA and axesB.
// The result's indices are the non-contracted axes of a followed by
// those of b, in order.
func Contract(a, b *Dense, axesA, axesB []int) (*Dense, error) {
	if len(axesA) != len(axesB) {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("%v %v", axesA, axesB))
	}
	for i := range axesA {
		if a.shape[axesA[i]] != b.shape[axesB[i]] {
			return nil, errors.Wrap(ErrShapeMismatch,
				fmt.Sprintf("axis %d of %v vs axis %d of %v", axesA[i], a.shape, axesB[i], b.shape))
		}
	}

	freeA := free(len(a.shape), axesA)
	freeB := free(len(b.shape), axesB)

	// Permute contracted axes to the tail of a and the head of b, then
	// the contraction is one matrix multiplication.
	at := a.Transpose(append(append([]int{}, freeA...), axesA...)...)
	bt := b.Transpose(append(append([]int{}, axesB...), freeB...)...)

	m, n, k := 1, 1, 1
	outShape := make([]int, 0, len(freeA)+len(freeB))
	for _, ax := range freeA {
		m *= a.shape[ax]
		outShape = append(outShape, a.shape[ax])
	}
	for _, ax := range axesA {
		k *= a.shape[ax]
	}
	for _, ax := range freeB {
		n *= b.shape[ax]
		outShape = append(outShape, b.shape[ax])
	}

	var c mat.Dense
	c.Mul(mat.NewDense(m, k, at.data), mat.NewDense(k, n, bt.data))
	out := &Dense{shape: outShape, data: c.RawMatrix().Data}
	if len(outShape) == 0 {
		out.shape = []int{1}
	}
	return out, nil
}

func free(n int, axes []int) []int {
	used := make([]bool, n)
	for _, ax := range axes {
		used[ax] = true
	}
	fs := make([]int, 0, n-len(axes))
	for i := 0; i < n; i++ {
		if !used[i] {
			fs = append(fs, i)
		}
	}
	return fs
}

func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

func prod(shape []int) int {
	p := 1
	for _, d := range shape {
		p *= d
	}
	return p
}
