package sweep

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMissingContractor is returned when a local update is requested
	// without a configured backend contractor.
	ErrMissingContractor = errors.New("no contractor configured for local update")

	// ErrUnknownCanonicalForm is returned when the post-sweep invariant
	// check finds no orthogonality-center marker.
	ErrUnknownCanonicalForm = errors.New("unknown canonical form")
)

// ConvergenceError reports that a local solver reached its iteration
// cap without meeting tolerance. It is fatal to the enclosing sweep: an
// unconverged local solve corrupts the canonical form for the rest of
// the pass.
type ConvergenceError struct {
	Iterations int
	Residual   float64
	Tol        float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("local solve did not converge after %d iterations: residual %g, tol %g",
		e.Iterations, e.Residual, e.Tol)
}
