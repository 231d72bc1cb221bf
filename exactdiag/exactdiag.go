// Package exactdiag builds dense spin-chain Hamiltonians and
// diagonalizes them directly. It is a brute-force reference for small
// chains; the matrix dimension doubles per site.
package exactdiag

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	identity2 = mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	pauliX    = mat.NewDense(2, 2, []float64{0, 1, 1, 0})
	pauliZ    = mat.NewDense(2, 2, []float64{1, 0, 0, -1})
	raise     = mat.NewDense(2, 2, []float64{0, 1, 0, 0})
	lower     = mat.NewDense(2, 2, []float64{0, 0, 1, 0})
	spinZ     = mat.NewDense(2, 2, []float64{0.5, 0, 0, -0.5})
)

// Ising returns the dense transverse-field Ising Hamiltonian
// H = -Σ Z_i·Z_{i+1} - h·Σ X_i on n sites.
func Ising(n int, h float64) *mat.Dense {
	dim := 1 << n
	hm := mat.NewDense(dim, dim, nil)
	for i := 0; i < n-1; i++ {
		addTerm(hm, -1, n, map[int]mat.Matrix{i: pauliZ, i + 1: pauliZ})
	}
	for i := 0; i < n; i++ {
		addTerm(hm, -h, n, map[int]mat.Matrix{i: pauliX})
	}
	return hm
}

// HeisenbergXXZ returns the dense spin-1/2 XXZ Hamiltonian
// H = Σ (S+_i·S-_{i+1} + S-_i·S+_{i+1})/2 + jz·Σ Sz_i·Sz_{i+1}
// on n sites.
func HeisenbergXXZ(n int, jz float64) *mat.Dense {
	dim := 1 << n
	hm := mat.NewDense(dim, dim, nil)
	for i := 0; i < n-1; i++ {
		addTerm(hm, 0.5, n, map[int]mat.Matrix{i: raise, i + 1: lower})
		addTerm(hm, 0.5, n, map[int]mat.Matrix{i: lower, i + 1: raise})
		addTerm(hm, jz, n, map[int]mat.Matrix{i: spinZ, i + 1: spinZ})
	}
	return hm
}

// addTerm accumulates c times the Kronecker product of the given
// per-site operators, identity elsewhere, into hm.
func addTerm(hm *mat.Dense, c float64, n int, site map[int]mat.Matrix) {
	var acc *mat.Dense
	for i := 0; i < n; i++ {
		op, ok := site[i]
		if !ok {
			op = identity2
		}
		if acc == nil {
			acc = mat.DenseCopyOf(op)
			continue
		}
		var next mat.Dense
		next.Kronecker(acc, op)
		acc = &next
	}
	acc.Scale(c, acc)
	hm.Add(hm, acc)
}

// GroundEnergy returns the lowest eigenvalue of hm.
func GroundEnergy(hm *mat.Dense) (float64, error) {
	eig, err := factorize(hm, false)
	if err != nil {
		return 0, err
	}
	vals := eig.Values(nil)
	lowest := vals[0]
	for _, v := range vals {
		lowest = math.Min(lowest, v)
	}
	return lowest, nil
}

// GroundState returns the lowest eigenpair of hm.
func GroundState(hm *mat.Dense) (float64, []float64, error) {
	eig, err := factorize(hm, true)
	if err != nil {
		return 0, nil, err
	}
	vals := eig.Values(nil)
	var q mat.Dense
	eig.VectorsTo(&q)

	lowest := 0
	for i, v := range vals {
		if v < vals[lowest] {
			lowest = i
		}
	}
	dim := len(vals)
	vec := make([]float64, dim)
	for i := range vec {
		vec[i] = q.At(i, lowest)
	}
	return vals[lowest], vec, nil
}

// Evolve returns exp(-beta·hm)·psi, computed from the full
// eigendecomposition of hm.
func Evolve(hm *mat.Dense, psi []float64, beta float64) ([]float64, error) {
	eig, err := factorize(hm, true)
	if err != nil {
		return nil, err
	}
	vals := eig.Values(nil)
	var q mat.Dense
	eig.VectorsTo(&q)

	dim := len(vals)
	if len(psi) != dim {
		return nil, errors.Errorf("state length %d against dimension %d", len(psi), dim)
	}
	out := make([]float64, dim)
	for l := 0; l < dim; l++ {
		var proj float64
		for j := 0; j < dim; j++ {
			proj += q.At(j, l) * psi[j]
		}
		w := math.Exp(-beta*vals[l]) * proj
		for i := 0; i < dim; i++ {
			out[i] += q.At(i, l) * w
		}
	}
	return out, nil
}

func factorize(hm *mat.Dense, vectors bool) (*mat.EigenSym, error) {
	dim, cols := hm.Dims()
	if dim != cols {
		return nil, errors.Errorf("%dx%d matrix is not square", dim, cols)
	}
	sym := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			sym.SetSym(i, j, (hm.At(i, j)+hm.At(j, i))/2)
		}
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(sym, vectors); !ok {
		return nil, errors.Errorf("eigendecomposition failed for dimension %d", dim)
	}
	return &eig, nil
}
