package mps

import (
	"mpsweep/tensor"
)

var (
	zero = [][]float64{
		{0, 0},
		{0, 0},
	}
	identity = [][]float64{
		{1, 0},
		{0, 1},
	}
	pauliX = [][]float64{
		{0, 1},
		{1, 0},
	}
	pauliZ = [][]float64{
		{1, 0},
		{0, -1},
	}
	// Spin-1/2 ladder operators.
	raise = [][]float64{
		{0, 1},
		{0, 0},
	}
	lower = [][]float64{
		{0, 0},
		{1, 0},
	}
)

// MagnetizationZ returns the MPO of the total z magnetization on a
// chain of n sites.
func MagnetizationZ(n int) []*tensor.Dense {
	w := tensor.T4([][][][]float64{
		{identity, zero},
		{pauliZ, identity},
	})
	return newMPO(w, n)
}

// Ising returns the MPO of the transverse-field Ising chain
// H = -Σ Z_i·Z_{i+1} - h·Σ X_i on n sites.
func Ising(n int, h float64) []*tensor.Dense {
	w := tensor.T4([][][][]float64{
		{identity, zero, zero},
		{pauliZ, zero, zero},
		{mul(-h, pauliX), mul(-1, pauliZ), identity},
	})
	return newMPO(w, n)
}

// HeisenbergXXZ returns the MPO of the spin-1/2 XXZ chain
// H = Σ (S+_i·S-_{i+1} + S-_i·S+_{i+1})/2 + jz·Σ Sz_i·Sz_{i+1}
// on n sites, with Sz = Z/2.
func HeisenbergXXZ(n int, jz float64) []*tensor.Dense {
	sz := mul(0.5, pauliZ)
	w := tensor.T4([][][][]float64{
		{identity, zero, zero, zero, zero},
		{raise, zero, zero, zero, zero},
		{lower, zero, zero, zero, zero},
		{sz, zero, zero, zero, zero},
		{zero, mul(0.5, lower), mul(0.5, raise), mul(jz, sz), identity},
	})
	return newMPO(w, n)
}

func mul(c float64, x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = c * v
		}
	}
	return out
}

func newMPO(w *tensor.Dense, n int) []*tensor.Dense {
	d0, d1, d2, d3 := w.Shape()[0], w.Shape()[1], w.Shape()[2], w.Shape()[3]
	mpo := make([]*tensor.Dense, 0, n)

	// First MPO is w[-1].
	mpo = append(mpo, w.Slice([][2]int{{d0 - 1, d0}, {0, d1}, {0, d2}, {0, d3}}))

	for range n - 2 {
		mpo = append(mpo, w)
	}

	// Last MPO is w[:, 0].
	mpo = append(mpo, w.Slice([][2]int{{0, d0}, {0, 1}, {0, d2}, {0, d3}}))

	return mpo
}
