// Package sweep implements the sweep-based variational optimizer over
// matrix-product networks: ground-state search by iterative local
// eigensolves, and imaginary-time evolution by local exponential
// applications. Both share the moving-environment, local-solve and
// truncated-redecomposition skeleton.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock
package sweep

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"mpsweep/network"
	"mpsweep/tensor"
)

// Form is a per-site canonical-form marker.
type Form byte

const (
	// FormL marks a left-normalized site.
	FormL Form = 'L'
	// FormR marks a right-normalized site.
	FormR Form = 'R'
	// FormC marks the orthogonality center.
	FormC Form = 'C'
	// FormK marks a left-normalized site times a scalar, the state a
	// forward sweep leaves at the last site.
	FormK Form = 'K'
	// FormS marks a right-normalized site times a scalar, the state a
	// backward sweep leaves at site 0.
	FormS Form = 'S'
)

// Engine runs one-dot or two-dot local updates across all sites of a
// ket/bra/Hamiltonian network, alternating sweep direction.
//
// The ket, bra and environment blocks are mutated in place by the
// single active sweep; Blocking is atomic with respect to this shared
// state and no other component may read it mid-update.
type Engine struct {
	n      int
	dot    int
	center int
	form   []Form

	net *network.Network
	env *Environment

	ctr    Contractor
	solver LocalSolver
	log    *zap.SugaredLogger

	// beta is the full imaginary-time step; each sweep applies beta/2.
	// backstep enables the compensating back-propagation of time
	// evolution.
	beta     float64
	backstep bool

	// tol marks convergence in the diagnostics when consecutive sweep
	// energies differ by less than it. It never terminates the run.
	tol float64

	bondDims []int

	// Per-sweep diagnostics, appended by Solve.
	Energies []float64
	NormSqs  []float64
	Errors   []float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithContractor sets the backend contractor. Local updates fail with
// ErrMissingContractor without one.
func WithContractor(c Contractor) Option {
	return func(e *Engine) { e.ctr = c }
}

// WithLogger routes sweep progress to l.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Engine) { e.log = l }
}

// WithSolver overrides the local solver.
func WithSolver(s LocalSolver) Option {
	return func(e *Engine) { e.solver = s }
}

// WithCanonicalForm declares the canonical form of the initial state
// instead of assuming L..C..R around the center.
func WithCanonicalForm(form []Form) Option {
	return func(e *Engine) { copy(e.form, form) }
}

// WithTolerance sets the energy difference below which a sweep is
// reported as converged. Zero disables the report.
func WithTolerance(tol float64) Option {
	return func(e *Engine) { e.tol = tol }
}

// NewGroundState returns an engine performing iterative ground-state
// search on the given MPO and MPS.
func NewGroundState(mpo, state []*tensor.Dense, center, dot int, bondDims []int, opts ...Option) (*Engine, error) {
	e, err := newEngine(mpo, state, center, dot, bondDims)
	if err != nil {
		return nil, err
	}
	e.solver = NewLanczos()
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewTimeEvolution returns an engine applying exp(-beta·H) to the MPS,
// half a step per sweep. A negative beta evolves backward.
func NewTimeEvolution(mpo, state []*tensor.Dense, beta float64, center, dot int, bondDims []int, opts ...Option) (*Engine, error) {
	e, err := newEngine(mpo, state, center, dot, bondDims)
	if err != nil {
		return nil, err
	}
	e.solver = NewExpo()
	e.beta = beta
	e.backstep = true
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func newEngine(mpo, state []*tensor.Dense, center, dot int, bondDims []int) (*Engine, error) {
	n := len(mpo)
	if n < 2 || len(state) != n {
		return nil, errors.Errorf("%d MPO sites, %d MPS sites", n, len(state))
	}
	if dot != 1 && dot != 2 {
		return nil, errors.Errorf("dot scheme %d", dot)
	}
	if center < 0 || center > n-dot {
		return nil, errors.Errorf("center %d out of range [0, %d]", center, n-dot)
	}
	if len(bondDims) == 0 {
		return nil, errors.Errorf("empty bond dimension schedule")
	}

	net := network.New()
	for i, w := range mpo {
		net.Add(network.Key{Sector: network.Ham, Sites: network.Site(i)}, w)
	}
	for i, m := range state {
		net.ReplaceState(network.Site(i), m.Clone())
	}

	form := make([]Form, n)
	for i := range form {
		switch {
		case i < center:
			form[i] = FormL
		case i < center+dot:
			form[i] = FormC
		default:
			form[i] = FormR
		}
	}

	return &Engine{
		n:        n,
		dot:      dot,
		center:   center,
		form:     form,
		net:      net,
		bondDims: append([]int{}, bondDims...),
		log:      zap.NewNop().Sugar(),
	}, nil
}

// Center returns the current center position.
func (e *Engine) Center() int { return e.center }

// DotScheme returns the current dot scheme.
func (e *Engine) DotScheme() int { return e.dot }

// Form returns a copy of the per-site canonical-form markers.
func (e *Engine) Form() []Form { return append([]Form{}, e.form...) }

// MPS returns a copy of the current ket site tensors.
func (e *Engine) MPS() ([]*tensor.Dense, error) {
	ms := make([]*tensor.Dense, 0, e.n)
	for i := 0; i < e.n; i++ {
		m, err := e.ket(i)
		if err != nil {
			return nil, err
		}
		ms = append(ms, m.Clone())
	}
	return ms, nil
}

// Solve runs nSweeps sweeps, flipping direction after each. The bond
// dimension schedule is extended with its last value when shorter than
// the sweep count. twoDotToOneDot, when non-negative, switches from
// the two-dot to the one-dot scheme before that sweep index. The
// returned energy is that of the final sweep; per-sweep diagnostics
// accumulate in Energies, NormSqs and Errors.
func (e *Engine) Solve(nSweeps int, forward bool, twoDotToOneDot int) (float64, error) {
	if nSweeps <= 0 {
		return 0, errors.Errorf("%d sweeps", nSweeps)
	}
	for len(e.bondDims) < nSweeps {
		e.bondDims = append(e.bondDims, e.bondDims[len(e.bondDims)-1])
	}

	start := time.Now()
	currentBeta := 0.0
	var energy float64
	for iw := 0; iw < nSweeps; iw++ {
		if twoDotToOneDot == iw {
			if e.dot != 2 {
				return 0, errors.Errorf("dot scheme switch at sweep %d, but dot is %d", iw, e.dot)
			}
			e.dot = 1
			if e.center != 0 && e.center == e.n-2 {
				e.center = e.n - 1
			}
		}

		step := e.beta / 2
		fields := []interface{}{"sweep", iw, "direction", dirString(forward),
			"bondDim", e.bondDims[iw]}
		if e.backstep {
			currentBeta += step
			fields = append(fields, "beta", currentBeta)
		}
		e.log.Infow("sweep", fields...)

		var normsq, errw float64
		var err error
		energy, normsq, errw, err = e.Sweep(forward, e.bondDims[iw], step)
		if err != nil {
			return 0, errors.Wrap(err, fmt.Sprintf("sweep %d", iw))
		}
		e.Energies = append(e.Energies, energy)
		e.NormSqs = append(e.NormSqs, normsq)
		e.Errors = append(e.Errors, errw)

		forward = !forward
		e.log.Infow("sweep done", "sweep", iw, "energy", energy,
			"normsq", normsq, "error", errw, "elapsed", time.Since(start))
		if e.tol > 0 && iw > 0 && math.Abs(energy-e.Energies[iw-1]) < e.tol {
			e.log.Infow("energy converged", "sweep", iw, "tol", e.tol)
		}

		if e.backstep {
			// Each half-step must leave a normalized state.
			if err := e.renormalize(normsq); err != nil {
				return 0, errors.Wrap(err, fmt.Sprintf("sweep %d", iw))
			}
		}
	}
	return energy, nil
}

// Sweep performs one pass over all sites starting from the current
// center. It returns the energy and norm² of the final step and the
// maximum discarded weight across steps.
func (e *Engine) Sweep(forward bool, bondDim int, step float64) (energy, normsq, maxErr float64, err error) {
	if e.ctr == nil {
		return 0, 0, 0, errors.Wrap(ErrMissingContractor, "")
	}
	if err := e.ctr.PreSweep(); err != nil {
		return 0, 0, 0, errors.Wrap(err, "")
	}

	if e.env == nil || e.ctr.Rebuild() {
		e.env = NewEnvironment(e.n, e.center, e.dot, e.net)
	} else {
		e.env.PrepareSweep(e.dot, e.center)
	}

	var sites []int
	if forward {
		for i := e.center; i <= e.n-e.dot; i++ {
			sites = append(sites, i)
		}
	} else {
		for i := e.center; i >= 0; i-- {
			sites = append(sites, i)
		}
	}

	for _, i := range sites {
		start := time.Now()
		st, err := e.Blocking(i, forward, bondDim, step)
		if err != nil {
			return 0, 0, 0, err
		}
		e.log.Debugw("local update", "dir", dirString(forward), "site", i,
			"dot", e.dot, "energy", st.energy, "error", st.discarded,
			"nsolve", st.nsolve, "nback", st.nback, "t", time.Since(start))

		energy, normsq = st.energy, st.normsq
		maxErr = math.Max(maxErr, st.discarded)
	}

	if err := e.ctr.PostSweep(); err != nil {
		return 0, 0, 0, errors.Wrap(err, "")
	}
	return energy, normsq, maxErr, nil
}

type stepResult struct {
	energy    float64
	normsq    float64
	discarded float64
	nsolve    int
	nback     int
}

// Blocking performs one local update at site i (the left dot in the
// two-dot scheme).
func (e *Engine) Blocking(i int, forward bool, bondDim int, step float64) (stepResult, error) {
	e.env.MoveTo(i)
	e.center = i

	var st stepResult
	var err error
	if e.dot == 1 {
		st, err = e.updateOneDot(i, forward, bondDim, step)
	} else {
		st, err = e.updateTwoDot(i, forward, bondDim, step)
	}
	if err != nil {
		return stepResult{}, errors.Wrap(err, fmt.Sprintf("site %d", i))
	}
	return st, nil
}

// updateTwoDot fuses sites i and i+1, solves the two-site effective
// problem, and splits the result back into the two sites.
func (e *Engine) updateTwoDot(i int, forward bool, bondDim int, step float64) (stepResult, error) {
	span := network.Span(i, i+1)

	// The exact lookup avoids refusing a pair fused by a prior step.
	theta, fused := e.net.Get(network.Key{Sector: network.Ket, Sites: span})
	if !fused {
		a, err := e.ket(i)
		if err != nil {
			return stepResult{}, err
		}
		b, err := e.ket(i + 1)
		if err != nil {
			return stepResult{}, err
		}
		theta, err = tensor.Contract(a, b, []int{2}, []int{0})
		if err != nil {
			return stepResult{}, errors.Wrap(err, "")
		}
		e.net.ReplaceState(span, theta)
	}

	w2, err := e.net.Reduce(network.Ham, span)
	if err != nil {
		return stepResult{}, errors.Wrap(err, "")
	}
	h, err := effTwo(e.env.LeftAt(i), w2, e.env.RightAt(i+2))
	if err != nil {
		return stepResult{}, errors.Wrap(err, "")
	}

	res, err := e.solver.Solve(h, theta, step)
	if err != nil {
		return stepResult{}, err
	}

	s := res.State.Shape()
	lf, rf, discarded, err := Split(res.State.Reshape(s[0]*s[1], s[2]*s[3]), forward, Truncation{MaxDim: bondDim})
	if err != nil {
		return stepResult{}, err
	}
	k := lf.Shape()[1]
	lt := lf.Reshape(s[0], s[1], k)
	rt := rf.Reshape(k, s[2], s[3])

	e.net.ReplaceState(network.Site(i), lt)
	e.net.ReplaceState(network.Site(i+1), rt)
	e.env.SiteUpdated(i)
	e.env.SiteUpdated(i + 1)

	if forward {
		if err := e.ctr.UpdateLeftInfo(i, lt); err != nil {
			return stepResult{}, err
		}
		e.form[i], e.form[i+1] = FormL, FormC
	} else {
		if err := e.ctr.UpdateRightInfo(i+1, rt); err != nil {
			return stepResult{}, err
		}
		e.form[i], e.form[i+1] = FormC, FormR
	}

	st := stepResult{energy: res.Energy, normsq: res.NormSq, discarded: discarded, nsolve: res.Iterations}
	if !e.backstep {
		return st, nil
	}

	// Compensating back-propagation: the orthogonality center moved
	// through the newly exposed neighbor, double-counting its
	// Hamiltonian contribution; the opposite-sign half step at that
	// neighbor cancels it. Skipped only at the physical chain ends.
	switch {
	case forward && i+1 != e.n-1:
		nback, err := e.backPropagate(i+1, -step)
		if err != nil {
			return stepResult{}, err
		}
		st.nback = nback
	case !forward && i != 0:
		nback, err := e.backPropagate(i, -step)
		if err != nil {
			return stepResult{}, err
		}
		st.nback = nback
	}
	return st, nil
}

// backPropagate applies the one-site exponential with the given step
// at site j and writes the state back.
func (e *Engine) backPropagate(j int, step float64) (int, error) {
	m, err := e.ket(j)
	if err != nil {
		return 0, err
	}
	w, err := e.ham(j)
	if err != nil {
		return 0, err
	}
	h, err := effOne(e.env.LeftAt(j), w, e.env.RightAt(j+1))
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	res, err := e.solver.Solve(h, m, step)
	if err != nil {
		return 0, err
	}
	e.net.ReplaceState(network.Site(j), res.State)
	e.env.SiteUpdated(j)
	return res.Iterations, nil
}

// updateOneDot solves the one-site effective problem in fused form and
// propagates the bond factor to the neighbor.
func (e *Engine) updateOneDot(i int, forward bool, bondDim int, step float64) (stepResult, error) {
	m, err := e.ket(i)
	if err != nil {
		return stepResult{}, err
	}
	w, err := e.ham(i)
	if err != nil {
		return stepResult{}, err
	}
	d := m.Shape()[1]

	h, err := effOne(e.env.LeftAt(i), w, e.env.RightAt(i+1))
	if err != nil {
		return stepResult{}, errors.Wrap(err, "")
	}

	// Fuse on whichever side keeps the fused tensor smaller.
	fuseLeft := i <= e.n/2
	var psi *tensor.Dense
	if fuseLeft {
		psi = e.ctr.FuseLeft(i, m)
	} else {
		psi = e.ctr.FuseRight(i, m)
	}

	res, err := e.solver.Solve(h, psi, step)
	if err != nil {
		return stepResult{}, err
	}
	out := res.State

	// Refuse toward the split side when the fuse side and the sweep
	// direction disagree.
	if fuseLeft && !forward {
		out = e.ctr.FuseRight(i, e.ctr.UnfuseLeft(i, out, d))
	} else if !fuseLeft && forward {
		out = e.ctr.FuseLeft(i, e.ctr.UnfuseRight(i, out, d))
	}

	st := stepResult{energy: res.Energy, normsq: res.NormSq, nsolve: res.Iterations}

	if forward {
		lf, rmat, discarded, err := Split(out, true, Truncation{MaxDim: bondDim})
		if err != nil {
			return stepResult{}, err
		}
		st.discarded = discarded

		site := e.ctr.UnfuseLeft(i, lf, d)
		if i == e.n-1 {
			// No neighbor: absorb the scalar right factor.
			site, err = tensor.Contract(site, rmat, []int{2}, []int{0})
			if err != nil {
				return stepResult{}, errors.Wrap(err, "")
			}
			e.net.ReplaceState(network.Site(i), site)
			e.env.SiteUpdated(i)
			e.form[i] = FormK
			if err := e.ctr.UpdateLeftInfo(i, site); err != nil {
				return stepResult{}, err
			}
			return st, nil
		}

		e.net.ReplaceState(network.Site(i), site)
		e.env.SiteUpdated(i)
		e.form[i], e.form[i+1] = FormL, FormC
		if err := e.ctr.UpdateLeftInfo(i, site); err != nil {
			return stepResult{}, err
		}

		if e.backstep {
			// Compensate on the newly exposed bond.
			kb, err := effBond(e.env.LeftAt(i+1), e.env.RightAt(i+1))
			if err != nil {
				return stepResult{}, errors.Wrap(err, "")
			}
			back, err := e.solver.Solve(kb, rmat, -step)
			if err != nil {
				return stepResult{}, err
			}
			rmat = back.State
			st.nback = back.Iterations
		}
		nb, err := e.ket(i + 1)
		if err != nil {
			return stepResult{}, err
		}
		merged, err := tensor.Contract(rmat, nb, []int{1}, []int{0})
		if err != nil {
			return stepResult{}, errors.Wrap(err, "")
		}
		e.net.ReplaceState(network.Site(i+1), merged)
		e.env.SiteUpdated(i + 1)
		return st, nil
	}

	lmat, rf, discarded, err := Split(out, false, Truncation{MaxDim: bondDim})
	if err != nil {
		return stepResult{}, err
	}
	st.discarded = discarded

	site := e.ctr.UnfuseRight(i, rf, d)
	if i == 0 {
		site, err = tensor.Contract(lmat, site, []int{1}, []int{0})
		if err != nil {
			return stepResult{}, errors.Wrap(err, "")
		}
		e.net.ReplaceState(network.Site(i), site)
		e.env.SiteUpdated(i)
		e.form[i] = FormS
		if err := e.ctr.UpdateRightInfo(i, site); err != nil {
			return stepResult{}, err
		}
		return st, nil
	}

	e.net.ReplaceState(network.Site(i), site)
	e.env.SiteUpdated(i)
	e.form[i-1], e.form[i] = FormC, FormR
	if err := e.ctr.UpdateRightInfo(i, site); err != nil {
		return stepResult{}, err
	}

	if e.backstep {
		kb, err := effBond(e.env.LeftAt(i), e.env.RightAt(i))
		if err != nil {
			return stepResult{}, errors.Wrap(err, "")
		}
		back, err := e.solver.Solve(kb, lmat, -step)
		if err != nil {
			return stepResult{}, err
		}
		lmat = back.State
		st.nback = back.Iterations
	}
	nb, err := e.ket(i - 1)
	if err != nil {
		return stepResult{}, err
	}
	merged, err := tensor.Contract(nb, lmat, []int{2}, []int{0})
	if err != nil {
		return stepResult{}, errors.Wrap(err, "")
	}
	e.net.ReplaceState(network.Site(i-1), merged)
	e.env.SiteUpdated(i - 1)
	return st, nil
}

// renormalize scales the orthogonality-center tensor by 1/√(norm²) in
// the ket, bra and environment copies consistently.
func (e *Engine) renormalize(normsq float64) error {
	if !(normsq > 0) {
		return errors.Errorf("norm² %v", normsq)
	}
	cc := -1
marker:
	for _, marker := range []Form{FormC, FormK, FormS} {
		for i, f := range e.form {
			if f == marker {
				cc = i
				break marker
			}
		}
	}
	if cc < 0 {
		return errors.Wrap(ErrUnknownCanonicalForm, formString(e.form))
	}

	t, err := e.ket(cc)
	if err != nil {
		return err
	}
	e.net.ReplaceState(network.Site(cc), t.Clone().Scale(1/math.Sqrt(normsq)))
	e.env.SiteUpdated(cc)
	return nil
}

func (e *Engine) ket(i int) (*tensor.Dense, error) {
	t, ok := e.net.Get(network.Key{Sector: network.Ket, Sites: network.Site(i)})
	if !ok {
		return nil, errors.Errorf("no ket tensor at site %d", i)
	}
	return t, nil
}

func (e *Engine) ham(i int) (*tensor.Dense, error) {
	t, ok := e.net.Get(network.Key{Sector: network.Ham, Sites: network.Site(i)})
	if !ok {
		return nil, errors.Errorf("no Hamiltonian tensor at site %d", i)
	}
	return t, nil
}

func formString(form []Form) string {
	b := make([]byte, len(form))
	for i, f := range form {
		b[i] = byte(f)
	}
	return string(b)
}

func dirString(forward bool) string {
	if forward {
		return "forward"
	}
	return "backward"
}
