package exactdiag

import (
	"fmt"
	"math"
	"testing"
)

func TestIsingGroundEnergy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n    int
		h    float64
		want float64
	}{
		// With no transverse field the spins align and every bond
		// contributes -1.
		{n: 3, h: 0, want: -2},
		{n: 5, h: 0, want: -4},
		// The two-site problem diagonalizes by hand.
		{n: 2, h: 1, want: -math.Sqrt(5)},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("n%d_h%g", test.n, test.h), func(t *testing.T) {
			t.Parallel()
			got, err := GroundEnergy(Ising(test.n, test.h))
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if math.Abs(got-test.want) > 1e-10 {
				t.Fatalf("%f, expected %f", got, test.want)
			}
		})
	}
}

func TestHeisenbergGroundEnergy(t *testing.T) {
	t.Parallel()
	// Two spins form a singlet at -3/4.
	got, err := GroundEnergy(HeisenbergXXZ(2, 1))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if math.Abs(got+0.75) > 1e-10 {
		t.Fatalf("%f", got)
	}
}

func TestGroundState(t *testing.T) {
	t.Parallel()
	hm := Ising(3, 1.2)
	energy, vec, err := GroundState(hm)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	// H·v = E·v.
	dim, _ := hm.Dims()
	for i := 0; i < dim; i++ {
		var hv float64
		for j := 0; j < dim; j++ {
			hv += hm.At(i, j) * vec[j]
		}
		if math.Abs(hv-energy*vec[i]) > 1e-9 {
			t.Fatalf("row %d: %f, expected %f", i, hv, energy*vec[i])
		}
	}
}

func TestEvolve(t *testing.T) {
	t.Parallel()
	hm := Ising(3, 0.8)
	energy, vec, err := GroundState(hm)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	// An eigenvector only picks up the scalar exp(-beta·E).
	beta := 0.7
	got, err := Evolve(hm, vec, beta)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	scale := math.Exp(-beta * energy)
	for i, v := range got {
		if math.Abs(v-scale*vec[i]) > 1e-9 {
			t.Fatalf("%d: %f, expected %f", i, v, scale*vec[i])
		}
	}

	if _, err := Evolve(hm, vec[:3], beta); err == nil {
		t.Fatalf("expected length error")
	}
}
