package sweep

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"mpsweep/tensor"
)

// randSym returns a random symmetric dim x dim operator tensor.
func randSym(rnd *rand.Rand, dim int) *tensor.Dense {
	op := tensor.Zeros(dim, dim)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			v := rnd.Float64()*2 - 1
			op.Set(v, i, j)
			op.Set(v, j, i)
		}
	}
	return op
}

func lowestEigen(op *tensor.Dense) float64 {
	dim := op.Shape()[0]
	sym := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			sym.SetSym(i, j, op.At(i, j))
		}
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(sym, false); !ok {
		panic("eigendecomposition failed")
	}
	vals := eig.Values(nil)
	lowest := vals[0]
	for _, v := range vals {
		lowest = math.Min(lowest, v)
	}
	return lowest
}

func TestLanczos(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewPCG(30, 0))
	for _, dim := range []int{4, 16, 40} {
		op := randSym(rnd, dim)
		psi := tensor.Rand(rnd, dim)

		res, err := NewLanczos().Solve(op, psi, 0)
		if err != nil {
			t.Fatalf("dim %d: %+v", dim, err)
		}

		want := lowestEigen(op)
		if math.Abs(res.Energy-want) > 1e-8 {
			t.Fatalf("dim %d: %f, expected %f", dim, res.Energy, want)
		}

		// The state is a normalized eigenvector.
		if math.Abs(res.State.Norm()-1) > 1e-8 {
			t.Fatalf("norm %f", res.State.Norm())
		}
		hv, err := tensor.Contract(op, res.State, []int{1}, []int{0})
		if err != nil {
			t.Fatalf("%+v", err)
		}
		for i, v := range hv.Data() {
			if math.Abs(v-res.Energy*res.State.Data()[i]) > 1e-7 {
				t.Fatalf("dim %d residual at %d", dim, i)
			}
		}
	}
}

func TestLanczosConvergenceError(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewPCG(31, 0))
	op := randSym(rnd, 50)
	psi := tensor.Rand(rnd, 50)

	s := &Lanczos{MaxIterations: 2, Tol: 1e-14}
	_, err := s.Solve(op, psi, 0)
	var cerr *ConvergenceError
	if !errors.As(err, &cerr) {
		t.Fatalf("%+v", err)
	}
	if cerr.Iterations != 2 {
		t.Fatalf("%+v", cerr)
	}
}

func TestExpo(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewPCG(32, 0))
	dim := 8
	op := randSym(rnd, dim)
	psi := tensor.Rand(rnd, dim)
	step := 0.3

	res, err := NewExpo().Solve(op, psi, step)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	// Dense reference through the full eigendecomposition.
	sym := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			sym.SetSym(i, j, op.At(i, j))
		}
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		t.Fatalf("eigendecomposition failed")
	}
	vals := eig.Values(nil)
	var q mat.Dense
	eig.VectorsTo(&q)
	want := make([]float64, dim)
	for l := 0; l < dim; l++ {
		var proj float64
		for j := 0; j < dim; j++ {
			proj += q.At(j, l) * psi.Data()[j]
		}
		w := math.Exp(-step*vals[l]) * proj
		for i := 0; i < dim; i++ {
			want[i] += q.At(i, l) * w
		}
	}

	for i, v := range res.State.Data() {
		if math.Abs(v-want[i]) > 1e-8 {
			t.Fatalf("%d: %f, expected %f", i, v, want[i])
		}
	}
	var normsq float64
	for _, v := range want {
		normsq += v * v
	}
	if math.Abs(res.NormSq-normsq) > 1e-8 {
		t.Fatalf("norm² %f, expected %f", res.NormSq, normsq)
	}
}

func TestExpoRoundTrip(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewPCG(33, 0))
	dim := 12
	op := randSym(rnd, dim)
	psi := tensor.Rand(rnd, dim)
	step := 0.2

	s := NewExpo()
	fwd, err := s.Solve(op, psi, step)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	back, err := s.Solve(op, fwd.State, -step)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for i, v := range back.State.Data() {
		if math.Abs(v-psi.Data()[i]) > 1e-8 {
			t.Fatalf("%d: %f, expected %f", i, v, psi.Data()[i])
		}
	}
}

func TestSolverShapeMismatch(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewPCG(34, 0))
	op := randSym(rnd, 4)
	psi := tensor.Rand(rnd, 5)
	if _, err := NewLanczos().Solve(op, psi, 0); !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Fatalf("%+v", err)
	}
}
