package sweep_test

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"

	"mpsweep/exactdiag"
	"mpsweep/mps"
	"mpsweep/sweep"
	"mpsweep/tensor"
)

// newChain builds a normalized random state compatible with mpo, with
// the orthogonality center at site 0.
func newChain(t *testing.T, mpo []*tensor.Dense, seed uint64, maxD int) []*tensor.Dense {
	t.Helper()
	rnd := rand.New(rand.NewPCG(seed, 0))
	state := mps.Rand(rnd, mpo, maxD)
	require.NoError(t, mps.RightCanonicalize(state))
	_, err := mps.Normalize(state)
	require.NoError(t, err)
	return state
}

func TestGroundState(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		n    int
		mpo  []*tensor.Dense
		hm   *mat.Dense
	}{
		{name: "ising_critical", n: 4, mpo: mps.Ising(4, 1), hm: exactdiag.Ising(4, 1)},
		{name: "ising_paramagnetic", n: 5, mpo: mps.Ising(5, 2), hm: exactdiag.Ising(5, 2)},
		{name: "xxz", n: 6, mpo: mps.HeisenbergXXZ(6, 1), hm: exactdiag.HeisenbergXXZ(6, 1)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			state := newChain(t, test.mpo, 42, 16)
			eng, err := sweep.NewGroundState(test.mpo, state, 0, 2, []int{16},
				sweep.WithContractor(sweep.NewDenseContractor()))
			require.NoError(t, err)

			energy, err := eng.Solve(6, true, -1)
			require.NoError(t, err)

			want, err := exactdiag.GroundEnergy(test.hm)
			require.NoError(t, err)
			require.InDelta(t, want, energy, 1e-6)

			// The optimized state is normalized and reproduces the
			// energy on its own.
			ms, err := eng.MPS()
			require.NoError(t, err)
			n2, err := mps.InnerProduct(ms, ms)
			require.NoError(t, err)
			require.InDelta(t, 1, n2, 1e-8)

			e2, err := mps.Expectation(test.mpo, ms)
			require.NoError(t, err)
			require.InDelta(t, want, e2, 1e-6)
		})
	}
}

func TestCanonicalFormMarkers(t *testing.T) {
	t.Parallel()
	n := 5
	mpo := mps.Ising(n, 1)
	state := newChain(t, mpo, 7, 8)
	eng, err := sweep.NewGroundState(mpo, state, 0, 2, []int{8},
		sweep.WithContractor(sweep.NewDenseContractor()))
	require.NoError(t, err)

	// A forward sweep leaves the center at the right end.
	_, _, _, err = eng.Sweep(true, 8, 0)
	require.NoError(t, err)
	require.Equal(t, "LLLLC", formString(eng.Form()))

	// The next backward sweep brings it to the left end.
	_, _, _, err = eng.Sweep(false, 8, 0)
	require.NoError(t, err)
	require.Equal(t, "CRRRR", formString(eng.Form()))
}

func TestTwoDotToOneDot(t *testing.T) {
	t.Parallel()
	n := 4
	mpo := mps.Ising(n, 1)
	state := newChain(t, mpo, 3, 16)
	eng, err := sweep.NewGroundState(mpo, state, 0, 2, []int{16},
		sweep.WithContractor(sweep.NewDenseContractor()))
	require.NoError(t, err)

	energy, err := eng.Solve(8, true, 4)
	require.NoError(t, err)
	require.Equal(t, 1, eng.DotScheme())

	want, err := exactdiag.GroundEnergy(exactdiag.Ising(n, 1))
	require.NoError(t, err)
	require.InDelta(t, want, energy, 1e-6)

	// Switching the scheme again is an error.
	_, err = eng.Solve(1, true, 0)
	require.Error(t, err)
}

func TestTimeEvolutionExact(t *testing.T) {
	t.Parallel()
	// On two sites the engine applies the global propagator exactly,
	// so the energy must match the dense evolution step for step.
	n := 2
	h := 1.3
	mpo := mps.Ising(n, h)
	hm := exactdiag.Ising(n, h)
	state := newChain(t, mpo, 9, 4)

	dense0, err := mps.ToDense(state)
	require.NoError(t, err)

	beta := 0.2
	nSweeps := 4
	eng, err := sweep.NewTimeEvolution(mpo, state, beta, 0, 2, []int{8},
		sweep.WithContractor(sweep.NewDenseContractor()))
	require.NoError(t, err)
	_, err = eng.Solve(nSweeps, true, -1)
	require.NoError(t, err)

	ms, err := eng.MPS()
	require.NoError(t, err)
	got, err := mps.Expectation(mpo, ms)
	require.NoError(t, err)
	n2, err := mps.InnerProduct(ms, ms)
	require.NoError(t, err)
	require.InDelta(t, 1, n2, 1e-8)

	evolved, err := exactdiag.Evolve(hm, dense0.Data(), beta/2*float64(nSweeps))
	require.NoError(t, err)
	require.InDelta(t, denseEnergy(hm, evolved), got, 1e-8)
}

// denseEnergy returns the energy expectation <v|H|v>/<v|v> of an
// unnormalized dense state vector.
func denseEnergy(hm *mat.Dense, v []float64) float64 {
	var num, den float64
	for i, x := range v {
		for j, y := range v {
			num += x * hm.At(i, j) * y
		}
		den += x * x
	}
	return num / den
}

func TestTimeEvolutionRoundTrip(t *testing.T) {
	t.Parallel()
	// Evolving by beta and then by -beta must recover the initial
	// state up to normalization.
	mpo := mps.Ising(2, 0.9)
	state := newChain(t, mpo, 11, 4)

	fwd, err := sweep.NewTimeEvolution(mpo, state, 0.3, 0, 2, []int{8},
		sweep.WithContractor(sweep.NewDenseContractor()))
	require.NoError(t, err)
	_, err = fwd.Solve(2, true, -1)
	require.NoError(t, err)
	evolved, err := fwd.MPS()
	require.NoError(t, err)

	back, err := sweep.NewTimeEvolution(mpo, evolved, -0.3, 0, 2, []int{8},
		sweep.WithContractor(sweep.NewDenseContractor()))
	require.NoError(t, err)
	_, err = back.Solve(2, true, -1)
	require.NoError(t, err)
	recovered, err := back.MPS()
	require.NoError(t, err)

	overlap, err := mps.InnerProduct(state, recovered)
	require.NoError(t, err)
	require.InDelta(t, 1, math.Abs(overlap), 1e-8)
}

func TestTimeEvolutionRelaxes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		oneDotAt int
	}{
		{name: "two_dot", oneDotAt: -1},
		{name: "switch_to_one_dot", oneDotAt: 8},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			n := 4
			beta := 0.4
			nSweeps := 16
			mpo := mps.Ising(n, 1)
			hm := exactdiag.Ising(n, 1)
			state := newChain(t, mpo, 5, 16)
			dense0, err := mps.ToDense(state)
			require.NoError(t, err)

			eng, err := sweep.NewTimeEvolution(mpo, state, beta, 0, 2, []int{16},
				sweep.WithContractor(sweep.NewDenseContractor()))
			require.NoError(t, err)
			_, err = eng.Solve(nSweeps, true, test.oneDotAt)
			require.NoError(t, err)

			e0, err := exactdiag.GroundEnergy(hm)
			require.NoError(t, err)
			first := eng.Energies[0]
			last := eng.Energies[len(eng.Energies)-1]
			require.Less(t, last, first)
			// Imaginary time projects toward the ground state, so the
			// energy is non-increasing sweep over sweep.
			for i := 1; i < len(eng.Energies); i++ {
				require.LessOrEqual(t, eng.Energies[i], eng.Energies[i-1]+1e-4,
					"sweep %d", i)
			}
			// The energy stays variational.
			require.GreaterOrEqual(t, last, e0-1e-6)

			ms, err := eng.MPS()
			require.NoError(t, err)
			n2, err := mps.InnerProduct(ms, ms)
			require.NoError(t, err)
			require.InDelta(t, 1, n2, 1e-6)

			// At full bond dimension the sweeps reproduce the dense
			// propagator, so the final energy matches exact evolution at
			// the accumulated beta.
			got, err := mps.Expectation(mpo, ms)
			require.NoError(t, err)
			evolved, err := exactdiag.Evolve(hm, dense0.Data(), beta/2*float64(nSweeps))
			require.NoError(t, err)
			require.InDelta(t, denseEnergy(hm, evolved), got, 1e-6)
		})
	}
}

func TestSolveLogsBetaOnlyWhenEvolving(t *testing.T) {
	t.Parallel()
	mpo := mps.Ising(4, 1)

	core, logs := observer.New(zapcore.InfoLevel)
	gs, err := sweep.NewGroundState(mpo, newChain(t, mpo, 6, 8), 0, 2, []int{8},
		sweep.WithContractor(sweep.NewDenseContractor()),
		sweep.WithLogger(zap.New(core).Sugar()))
	require.NoError(t, err)
	_, err = gs.Solve(2, true, -1)
	require.NoError(t, err)
	entries := logs.FilterMessage("sweep").All()
	require.NotEmpty(t, entries)
	for _, entry := range entries {
		require.NotContains(t, logKeys(entry), "beta")
	}

	core, logs = observer.New(zapcore.InfoLevel)
	ev, err := sweep.NewTimeEvolution(mpo, newChain(t, mpo, 6, 8), 0.1, 0, 2, []int{8},
		sweep.WithContractor(sweep.NewDenseContractor()),
		sweep.WithLogger(zap.New(core).Sugar()))
	require.NoError(t, err)
	_, err = ev.Solve(2, true, -1)
	require.NoError(t, err)
	entries = logs.FilterMessage("sweep").All()
	require.NotEmpty(t, entries)
	for _, entry := range entries {
		require.Contains(t, logKeys(entry), "beta")
	}
}

func logKeys(entry observer.LoggedEntry) []string {
	keys := make([]string, 0, len(entry.Context))
	for _, f := range entry.Context {
		keys = append(keys, f.Key)
	}
	return keys
}

func TestSweepMissingContractor(t *testing.T) {
	t.Parallel()
	mpo := mps.Ising(4, 1)
	state := newChain(t, mpo, 1, 8)
	eng, err := sweep.NewGroundState(mpo, state, 0, 2, []int{8})
	require.NoError(t, err)

	_, _, _, err = eng.Sweep(true, 8, 0)
	require.True(t, errors.Is(err, sweep.ErrMissingContractor), "%+v", err)
}

func TestNewEngineValidation(t *testing.T) {
	t.Parallel()
	mpo := mps.Ising(4, 1)
	state := newChain(t, mpo, 2, 8)
	tests := []struct {
		center int
		dot    int
		dims   []int
	}{
		{center: 0, dot: 3, dims: []int{8}},
		{center: 3, dot: 2, dims: []int{8}},
		{center: -1, dot: 2, dims: []int{8}},
		{center: 0, dot: 2, dims: nil},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d_%d_%v", test.center, test.dot, test.dims), func(t *testing.T) {
			t.Parallel()
			_, err := sweep.NewGroundState(mpo, state, test.center, test.dot, test.dims)
			require.Error(t, err)
		})
	}
}

func formString(form []sweep.Form) string {
	b := make([]byte, len(form))
	for i, f := range form {
		b[i] = byte(f)
	}
	return string(b)
}
