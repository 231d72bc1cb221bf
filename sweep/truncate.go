package sweep

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"mpsweep/tensor"
)

// Truncation bounds the rank retained when a local state is split at a
// bond.
type Truncation struct {
	// MaxDim caps the retained bond dimension. Zero or negative means
	// no cap.
	MaxDim int
	// WeightCeil, when positive, allows dropping further eigenvectors
	// as long as the total discarded weight stays at or below it.
	WeightCeil float64
}

// Split factors the two-axis state psi into l (rows x k) and r
// (k x cols) such that l·r reconstructs psi up to the retained rank.
//
// The reduced density matrix is formed by tracing psi against itself
// over the columns when traceRight is true (the row side keeps the new
// orthonormal bond and the norm is absorbed into r), or over the rows
// otherwise. The discarded weight is the sum of the dropped density
// matrix eigenvalues; it is exactly 0 when nothing is truncated.
func Split(psi *tensor.Dense, traceRight bool, tr Truncation) (l, r *tensor.Dense, discarded float64, err error) {
	shape := psi.Shape()
	if len(shape) != 2 {
		return nil, nil, 0, errors.Wrap(tensor.ErrShapeMismatch, fmt.Sprintf("split wants a matrix, got %v", shape))
	}
	rows, cols := shape[0], shape[1]
	pm := mat.NewDense(rows, cols, psi.Data())

	kept := rows
	if !traceRight {
		kept = cols
	}

	// Reduced density matrix on the retained side.
	var dm mat.Dense
	if traceRight {
		dm.Mul(pm, pm.T())
	} else {
		dm.Mul(pm.T(), pm)
	}
	sym := mat.NewSymDense(kept, nil)
	for i := 0; i < kept; i++ {
		for j := i; j < kept; j++ {
			sym.SetSym(i, j, (dm.At(i, j)+dm.At(j, i))/2)
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, nil, 0, errors.Errorf("density matrix eigendecomposition failed for %v", shape)
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Sort eigenpairs descending.
	order := make([]int, kept)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return vals[order[a]] > vals[order[b]] })

	natural := min(rows, cols)
	k := natural
	if tr.MaxDim > 0 && tr.MaxDim < k {
		k = tr.MaxDim
	}
	if tr.WeightCeil > 0 {
		for k > 1 && tailWeight(vals, order, k-1) <= tr.WeightCeil {
			k--
		}
	}
	if k < natural {
		discarded = tailWeight(vals, order, k)
	}

	// v holds the top-k orthonormal eigenvectors as columns.
	v := mat.NewDense(kept, k, nil)
	for j := 0; j < k; j++ {
		for i := 0; i < kept; i++ {
			v.Set(i, j, vecs.At(i, order[j]))
		}
	}

	if traceRight {
		// l = v carries the orthonormal bond; r = vᵀ·psi absorbs the norm.
		var rm mat.Dense
		rm.Mul(v.T(), pm)
		l, err = tensor.New([]int{rows, k}, rawCopy(v))
		if err == nil {
			r, err = tensor.New([]int{k, cols}, rawCopy(&rm))
		}
	} else {
		// r = vᵀ carries the orthonormal bond; l = psi·v absorbs the norm.
		var lm mat.Dense
		lm.Mul(pm, v)
		var rm mat.Dense
		rm.CloneFrom(v.T())
		l, err = tensor.New([]int{rows, k}, rawCopy(&lm))
		if err == nil {
			r, err = tensor.New([]int{k, cols}, rawCopy(&rm))
		}
	}
	if err != nil {
		return nil, nil, 0, errors.Wrap(err, "")
	}
	return l, r, discarded, nil
}

// tailWeight sums the eigenvalues dropped when keeping the first k of
// the descending order. Tiny negative eigenvalues from roundoff count
// as zero.
func tailWeight(vals []float64, order []int, k int) float64 {
	var w float64
	for _, ix := range order[k:] {
		if vals[ix] > 0 {
			w += vals[ix]
		}
	}
	return w
}

func rawCopy(m mat.Matrix) []float64 {
	rows, cols := m.Dims()
	out := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[i*cols+j] = m.At(i, j)
		}
	}
	return out
}
