package sweep

import (
	"github.com/pkg/errors"

	"mpsweep/tensor"
)

// Effective local operators are the Hamiltonian contracted with
// everything outside the current update window, reshaped to a square
// matrix acting on the flattened local state.

// effOne builds the one-site effective operator from the left block l
// (bra, ham, ket), the site Hamiltonian w (left, right, up, down) and
// the right block r.
func effOne(l, w, r *tensor.Dense) (*tensor.Dense, error) {
	// lw is (bra, ket, ham right, up, down).
	lw, err := tensor.Contract(l, w, []int{1}, []int{0})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	// lwr is (bra, ket, up, down, bra right, ket right).
	lwr, err := tensor.Contract(lw, r, []int{2}, []int{1})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	h := lwr.Transpose(0, 2, 4, 1, 3, 5)
	s := h.Shape()
	return h.Reshape(s[0]*s[1]*s[2], s[3]*s[4]*s[5]), nil
}

// effTwo builds the two-site effective operator. w2 is the reduced
// Hamiltonian pair (left, up1, down1, up2, down2, right).
func effTwo(l, w2, r *tensor.Dense) (*tensor.Dense, error) {
	// lw is (bra, ket, up1, down1, up2, down2, ham right).
	lw, err := tensor.Contract(l, w2, []int{1}, []int{0})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	// lwr is (bra, ket, up1, down1, up2, down2, bra right, ket right).
	lwr, err := tensor.Contract(lw, r, []int{6}, []int{1})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	h := lwr.Transpose(0, 2, 4, 6, 1, 3, 5, 7)
	s := h.Shape()
	return h.Reshape(s[0]*s[1]*s[2]*s[3], s[4]*s[5]*s[6]*s[7]), nil
}

// effBond builds the zero-site effective operator acting on the bond
// matrix between the spans covered by the left and right blocks.
func effBond(l, r *tensor.Dense) (*tensor.Dense, error) {
	// lr is (bra, ket, bra right, ket right).
	lr, err := tensor.Contract(l, r, []int{1}, []int{1})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	h := lr.Transpose(0, 2, 1, 3)
	s := h.Shape()
	return h.Reshape(s[0]*s[1], s[2]*s[3]), nil
}
