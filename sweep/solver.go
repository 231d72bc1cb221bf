package sweep

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"mpsweep/tensor"
)

// Result is the outcome of a local update.
type Result struct {
	// Energy is the lowest eigenvalue (ground-state solve) or the
	// energy expectation of the state before the step (exponential
	// solve).
	Energy float64
	// NormSq is the self inner product of the returned state.
	NormSq float64
	// State is the updated local state, in the shape of the input.
	State *tensor.Dense
	// Iterations counts solver iterations or operator applications.
	Iterations int
}

// LocalSolver is the local update primitive of a sweep: given the
// effective operator (a square matrix) and the current local state, it
// returns the updated state and diagnostics. step is the imaginary-time
// step for the exponential solver and is ignored by the eigensolver; a
// negative step walks the compensating half-step backward.
type LocalSolver interface {
	Solve(op, psi *tensor.Dense, step float64) (Result, error)
}

// Lanczos is the iterative ground-state eigensolver. It converges to
// the lowest eigenvalue of the effective operator, seeded with the
// current local state.
type Lanczos struct {
	MaxIterations int
	Tol           float64
}

// NewLanczos returns an eigensolver with default settings.
func NewLanczos() *Lanczos {
	return &Lanczos{MaxIterations: 64, Tol: 1e-10}
}

// Solve finds the lowest eigenpair of op. It returns a
// ConvergenceError if the iteration cap is reached before the residual
// meets tolerance.
func (s *Lanczos) Solve(op, psi *tensor.Dense, _ float64) (Result, error) {
	m := psi.Size()
	a, err := opMatrix(op, m)
	if err != nil {
		return Result{}, err
	}

	v0 := append([]float64{}, psi.Data()...)
	norm := vecNorm(v0)
	if norm < 1e-300 {
		return Result{}, errors.Errorf("zero local state")
	}
	vecScale(v0, 1/norm)

	basis := [][]float64{v0}
	var alphas, betas []float64
	maxIter := s.MaxIterations
	if maxIter > m {
		maxIter = m
	}

	var residual float64
	for j := 0; j < maxIter; j++ {
		w := matVec(a, basis[j])
		alphas = append(alphas, vecDot(basis[j], w))
		vecAxpy(w, -alphas[j], basis[j])
		if j > 0 {
			vecAxpy(w, -betas[j-1], basis[j-1])
		}
		// Full reorthogonalization; local problems are small.
		for _, b := range basis {
			vecAxpy(w, -vecDot(b, w), b)
		}
		beta := vecNorm(w)

		theta, svec := lowestRitz(alphas, betas)
		residual = beta * math.Abs(svec[j])
		if residual <= s.Tol*math.Max(math.Abs(theta), 1) || beta < 1e-14 || j+1 == m {
			state := ritzVector(basis, svec, psi.Shape())
			return Result{Energy: theta, NormSq: 1, State: state, Iterations: j + 1}, nil
		}

		vecScale(w, 1/beta)
		basis = append(basis, w)
		betas = append(betas, beta)
	}
	return Result{}, &ConvergenceError{Iterations: maxIter, Residual: residual, Tol: s.Tol}
}

// Expo approximates exp(-step·op)·psi in a Krylov subspace built from
// repeated applications of op; no full diagonalization of op is
// performed.
type Expo struct {
	// MaxDim caps the Krylov subspace dimension.
	MaxDim int
}

// NewExpo returns an exponential solver with default settings.
func NewExpo() *Expo {
	return &Expo{MaxDim: 20}
}

// Solve returns the un-normalized evolved state, its norm², the energy
// expectation of psi before the step, and the number of operator
// applications.
func (s *Expo) Solve(op, psi *tensor.Dense, step float64) (Result, error) {
	m := psi.Size()
	a, err := opMatrix(op, m)
	if err != nil {
		return Result{}, err
	}

	v0 := append([]float64{}, psi.Data()...)
	norm := vecNorm(v0)
	if norm < 1e-300 {
		return Result{}, errors.Errorf("zero local state")
	}
	vecScale(v0, 1/norm)

	maxDim := s.MaxDim
	if maxDim <= 0 || maxDim > m {
		maxDim = m
	}
	basis := [][]float64{v0}
	var alphas, betas []float64
	for j := 0; j < maxDim; j++ {
		w := matVec(a, basis[j])
		alphas = append(alphas, vecDot(basis[j], w))
		vecAxpy(w, -alphas[j], basis[j])
		if j > 0 {
			vecAxpy(w, -betas[j-1], basis[j-1])
		}
		for _, b := range basis {
			vecAxpy(w, -vecDot(b, w), b)
		}
		beta := vecNorm(w)
		if beta < 1e-14 || j+1 == maxDim {
			break
		}
		vecScale(w, 1/beta)
		basis = append(basis, w)
		betas = append(betas, beta)
	}
	k := len(alphas)

	// y = exp(-step·T)·e1 through the eigendecomposition of the
	// tridiagonal T.
	tri := tridiagonal(alphas, betas)
	var eig mat.EigenSym
	if ok := eig.Factorize(tri, true); !ok {
		return Result{}, errors.Errorf("krylov tridiagonal eigendecomposition failed, dim %d", k)
	}
	vals := eig.Values(nil)
	var q mat.Dense
	eig.VectorsTo(&q)
	y := make([]float64, k)
	for i := 0; i < k; i++ {
		for l := 0; l < k; l++ {
			y[i] += q.At(i, l) * math.Exp(-step*vals[l]) * q.At(0, l)
		}
	}

	out := make([]float64, m)
	for i, b := range basis {
		vecAxpy(out, norm*y[i], b)
	}
	normsq := vecDot(out, out)
	state, err := tensor.New(psi.Shape(), out)
	if err != nil {
		return Result{}, errors.Wrap(err, "")
	}
	return Result{Energy: alphas[0], NormSq: normsq, State: state, Iterations: k}, nil
}

func opMatrix(op *tensor.Dense, dim int) (*mat.Dense, error) {
	shape := op.Shape()
	if len(shape) != 2 || shape[0] != shape[1] || shape[0] != dim {
		return nil, errors.Wrap(tensor.ErrShapeMismatch,
			"effective operator is not square over the local state")
	}
	return mat.NewDense(dim, dim, op.Data()), nil
}

// lowestRitz diagonalizes the Lanczos tridiagonal and returns its
// lowest eigenvalue with the corresponding eigenvector.
func lowestRitz(alphas, betas []float64) (float64, []float64) {
	tri := tridiagonal(alphas, betas)
	var eig mat.EigenSym
	if ok := eig.Factorize(tri, true); !ok {
		panic("lanczos tridiagonal eigendecomposition failed")
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
	svec := make([]float64, len(alphas))
	for i := range svec {
		svec[i] = q.At(i, lowest)
	}
	return vals[lowest], svec
}

func tridiagonal(alphas, betas []float64) *mat.SymDense {
	k := len(alphas)
	tri := mat.NewSymDense(k, nil)
	for i, a := range alphas {
		tri.SetSym(i, i, a)
	}
	for i, b := range betas {
		tri.SetSym(i, i+1, b)
	}
	return tri
}

func ritzVector(basis [][]float64, svec []float64, shape []int) *tensor.Dense {
	out := make([]float64, len(basis[0]))
	for i := range svec {
		vecAxpy(out, svec[i], basis[i])
	}
	t, err := tensor.New(shape, out)
	if err != nil {
		panic(err)
	}
	return t
}

func matVec(a *mat.Dense, x []float64) []float64 {
	var y mat.VecDense
	y.MulVec(a, mat.NewVecDense(len(x), x))
	return append([]float64{}, y.RawVector().Data...)
}

func vecDot(a, b []float64) float64 {
	var s float64
	for i, v := range a {
		s += v * b[i]
	}
	return s
}

func vecNorm(a []float64) float64 { return math.Sqrt(vecDot(a, a)) }

func vecScale(a []float64, c float64) {
	for i := range a {
		a[i] *= c
	}
}

// vecAxpy does a += c·b.
func vecAxpy(a []float64, c float64, b []float64) {
	for i := range a {
		a[i] += c * b[i]
	}
}
