// Package mps builds matrix product states and operators for a
// one-dimensional chain.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock
package mps

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"

	"mpsweep/sweep"
	"mpsweep/tensor"
)

const (
	// mpsLeftAxis is the axis of a_{l-1} in Figure 6, Ulrich Schollwock.
	mpsLeftAxis  = 0
	mpsUpAxis    = 1
	mpsRightAxis = 2
	// mpoLeftAxis is the axis of b_{l-1} in Figure 35.
	mpoLeftAxis  = 0
	mpoRightAxis = 1
	mpoUpAxis    = 2
	mpoDownAxis  = 3
)

// Rand creates a random matrix product state compatible with mpo.
// maxD is the maximum bond dimension, which is D in the discussion
// below equation 71 in section 4.1.4, Ulrich Schollwock.
func Rand(rnd *rand.Rand, mpo []*tensor.Dense, maxD int) []*tensor.Dense {
	sites := make([]*tensor.Dense, 0, len(mpo))

	// First site.
	physD := mpo[0].Shape()[mpoDownAxis]
	leftD := physD
	sites = append(sites, tensor.Rand(rnd, 1, physD, min(physD, maxD)))

	for i := 1; i <= len(mpo)-2; i++ {
		physD := mpo[i].Shape()[mpoDownAxis]
		var rightD int
		switch {
		case i < len(mpo)/2:
			rightD = leftD * physD
		case i > len(mpo)/2:
			rightD = leftD / physD
		case len(mpo)%2 == 0:
			rightD = leftD / physD
		default:
			rightD = leftD
		}
		leftD = rightD

		si1 := sites[i-1].Shape()
		sites = append(sites, tensor.Rand(rnd, si1[mpsRightAxis], physD, min(rightD, maxD)))
	}

	// Last site.
	physD = mpo[len(mpo)-1].Shape()[mpoDownAxis]
	si1 := sites[len(mpo)-2].Shape()
	sites = append(sites, tensor.Rand(rnd, si1[mpsRightAxis], physD, 1))

	return sites
}

// InnerProduct computes the inner product between x and y.
// See Section 4.2.1 Efficient evaluation of contractions, Ulrich Schollwock.
func InnerProduct(x, y []*tensor.Dense) (float64, error) {
	if len(x) != len(y) {
		return 0, errors.Errorf("%d sites against %d", len(x), len(y))
	}

	f := tensor.Zeros(1, 1)
	f.Set(1, 0, 0)
	const fTopAxis, fBottomAxis = 0, 1
	for i, xi := range x {
		// fy is (top, up, ket right).
		fy, err := tensor.Contract(f, y[i], []int{fBottomAxis}, []int{mpsLeftAxis})
		if err != nil {
			return 0, errors.Wrap(err, fmt.Sprintf("site %d", i))
		}
		// f is (bra right, ket right).
		f, err = tensor.Contract(xi, fy, []int{mpsLeftAxis, mpsUpAxis}, []int{fTopAxis, 1})
		if err != nil {
			return 0, errors.Wrap(err, fmt.Sprintf("site %d", i))
		}
	}
	return f.At(0, 0), nil
}

// Expectation computes <ms|mpo|ms> without normalizing.
// See Figure 38, Ulrich Schollwock for a graphical explanation of the
// left-to-right fold.
func Expectation(mpo, ms []*tensor.Dense) (float64, error) {
	if len(mpo) != len(ms) {
		return 0, errors.Errorf("%d MPO sites, %d MPS sites", len(mpo), len(ms))
	}

	f := tensor.Zeros(1, 1, 1)
	f.Set(1, 0, 0, 0)
	for i, m := range ms {
		// fm is (bra, ham, up, ket right).
		fm, err := tensor.Contract(f, m, []int{2}, []int{mpsLeftAxis})
		if err != nil {
			return 0, errors.Wrap(err, fmt.Sprintf("site %d", i))
		}
		// wfm is (ham right, up, bra, ket right).
		wfm, err := tensor.Contract(mpo[i], fm, []int{mpoDownAxis, mpoLeftAxis}, []int{2, 1})
		if err != nil {
			return 0, errors.Wrap(err, fmt.Sprintf("site %d", i))
		}
		// f is (bra right, ham right, ket right).
		f, err = tensor.Contract(m, wfm, []int{mpsLeftAxis, mpsUpAxis}, []int{2, 1})
		if err != nil {
			return 0, errors.Wrap(err, fmt.Sprintf("site %d", i))
		}
	}
	return f.At(0, 0, 0), nil
}

// RightCanonicalize brings every site except the first into
// right-normalized form, leaving the orthogonality center at site 0.
func RightCanonicalize(ms []*tensor.Dense) error {
	for i := len(ms) - 1; i >= 1; i-- {
		s := ms[i].Shape()
		lmat, rf, _, err := sweep.Split(ms[i].Reshape(s[0], s[1]*s[2]), false, sweep.Truncation{})
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("site %d", i))
		}
		k := rf.Shape()[0]
		ms[i] = rf.Reshape(k, s[1], s[2])

		merged, err := tensor.Contract(ms[i-1], lmat, []int{mpsRightAxis}, []int{0})
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("site %d", i))
		}
		ms[i-1] = merged
	}
	return nil
}

// Normalize scales the state to unit norm in place and returns the
// previous norm.
func Normalize(ms []*tensor.Dense) (float64, error) {
	n2, err := InnerProduct(ms, ms)
	if err != nil {
		return 0, err
	}
	if !(n2 > 0) {
		return 0, errors.Errorf("norm² %v", n2)
	}
	norm := math.Sqrt(n2)
	ms[0].Scale(1 / norm)
	return norm, nil
}

// ToDense contracts the chain into a single tensor with one physical
// axis per site. It is only tractable for small chains.
func ToDense(ms []*tensor.Dense) (*tensor.Dense, error) {
	state := ms[0]
	for i, m := range ms[1:] {
		var err error
		state, err = tensor.Contract(state, m, []int{len(state.Shape()) - 1}, []int{mpsLeftAxis})
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("site %d", i+1))
		}
	}
	shape := state.Shape()
	return state.Reshape(shape[1 : len(shape)-1]...), nil
}

// BondDims returns the right bond dimension of every site but the last.
func BondDims(ms []*tensor.Dense) []int {
	dims := make([]int, 0, len(ms)-1)
	for _, m := range ms[:len(ms)-1] {
		dims = append(dims, m.Shape()[mpsRightAxis])
	}
	return dims
}
