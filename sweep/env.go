package sweep

import (
	"fmt"

	"github.com/pkg/errors"

	"mpsweep/network"
	"mpsweep/tensor"
)

// Environment maintains, for a moving optimization center, the partial
// contraction of every bra, Hamiltonian and ket tensor to the left and
// to the right of the center window.
//
// Blocks are three-index tensors laid out (bra bond, Hamiltonian bond,
// ket bond). Moving the center by one site recontracts exactly one
// block from its predecessor, so a full sweep costs O(n) absorptions.
type Environment struct {
	n      int
	dot    int
	center int
	net    *network.Network

	// left[b] covers sites [0, b); right[b] covers sites [b, n).
	left  []*tensor.Dense
	right []*tensor.Dense
	// left[b] is valid for b <= lvalid; right[b] is valid for b >= rvalid.
	lvalid int
	rvalid int
}

// NewEnvironment builds the environment blocks for the given center
// from scratch.
func NewEnvironment(n, center, dot int, net *network.Network) *Environment {
	e := &Environment{
		n:      n,
		dot:    dot,
		net:    net,
		left:   make([]*tensor.Dense, n+1),
		right:  make([]*tensor.Dense, n+1),
		lvalid: 0,
		rvalid: n,
	}
	e.left[0] = boundaryBlock()
	e.right[n] = boundaryBlock()
	e.MoveTo(center)
	return e
}

func boundaryBlock() *tensor.Dense {
	t := tensor.Zeros(1, 1, 1)
	t.Set(1, 0, 0, 0)
	return t
}

// Center returns the current center position.
func (e *Environment) Center() int { return e.center }

// MoveTo positions the center window at site i, absorbing sites into
// the left or right blocks as needed. A center outside [0, n-dot] is a
// programming error and panics.
func (e *Environment) MoveTo(i int) {
	if i < 0 || i > e.n-e.dot {
		panic(fmt.Sprintf("center %d out of range [0, %d]", i, e.n-e.dot))
	}
	e.LeftAt(i)
	e.RightAt(i + e.dot)
	e.center = i
}

// PrepareSweep revalidates the environment for a sweep starting with
// the given dot scheme and center.
func (e *Environment) PrepareSweep(dot, center int) {
	e.dot = dot
	e.MoveTo(center)
}

// Rebuild discards every block and reconstructs both sides for the
// current center in O(n) contractions.
func (e *Environment) Rebuild() {
	e.lvalid, e.rvalid = 0, e.n
	e.MoveTo(e.center)
}

// SiteUpdated marks every block containing site i as stale.
func (e *Environment) SiteUpdated(i int) {
	if e.lvalid > i {
		e.lvalid = i
	}
	if e.rvalid < i+1 {
		e.rvalid = i + 1
	}
}

// LeftAt returns the block contracting sites [0, b).
func (e *Environment) LeftAt(b int) *tensor.Dense {
	if b < 0 || b > e.n {
		panic(fmt.Sprintf("left boundary %d out of range [0, %d]", b, e.n))
	}
	for bb := e.lvalid + 1; bb <= b; bb++ {
		e.left[bb] = e.absorbLeft(e.left[bb-1], bb-1)
	}
	if b > e.lvalid {
		e.lvalid = b
	}
	return e.left[b]
}

// RightAt returns the block contracting sites [b, n).
func (e *Environment) RightAt(b int) *tensor.Dense {
	if b < 0 || b > e.n {
		panic(fmt.Sprintf("right boundary %d out of range [0, %d]", b, e.n))
	}
	for bb := e.rvalid - 1; bb >= b; bb-- {
		e.right[bb] = e.absorbRight(e.right[bb+1], bb)
	}
	if b < e.rvalid {
		e.rvalid = b
	}
	return e.right[b]
}

// absorbLeft contracts the ket, Hamiltonian and bra tensors at site i
// into the left block f.
func (e *Environment) absorbLeft(f *tensor.Dense, i int) *tensor.Dense {
	m, w := e.site(i)

	// f is (bra, ham, ket); m is (left, up, right).
	// fm is (bra, ham, up, ket right).
	fm, err := tensor.Contract(f, m, []int{2}, []int{0})
	if err != nil {
		panic(fmt.Sprintf("site %d: %+v", i, err))
	}
	// w is (left, right, up, down).
	// wfm is (ham right, up, bra, ket right).
	wfm, err := tensor.Contract(w, fm, []int{3, 0}, []int{2, 1})
	if err != nil {
		panic(fmt.Sprintf("site %d: %+v", i, err))
	}
	// The bra layer carries the same tensor as the ket layer.
	// out is (bra right, ham right, ket right).
	out, err := tensor.Contract(m, wfm, []int{0, 1}, []int{2, 1})
	if err != nil {
		panic(fmt.Sprintf("site %d: %+v", i, err))
	}
	return out
}

// absorbRight contracts the ket, Hamiltonian and bra tensors at site i
// into the right block f.
func (e *Environment) absorbRight(f *tensor.Dense, i int) *tensor.Dense {
	m, w := e.site(i)

	// fm is (bra, ham, ket left, up).
	fm, err := tensor.Contract(f, m, []int{2}, []int{2})
	if err != nil {
		panic(fmt.Sprintf("site %d: %+v", i, err))
	}
	// wfm is (ham left, up, bra, ket left).
	wfm, err := tensor.Contract(w, fm, []int{3, 1}, []int{3, 1})
	if err != nil {
		panic(fmt.Sprintf("site %d: %+v", i, err))
	}
	// out is (bra left, ham left, ket left).
	out, err := tensor.Contract(m, wfm, []int{2, 1}, []int{2, 1})
	if err != nil {
		panic(fmt.Sprintf("site %d: %+v", i, err))
	}
	return out
}

func (e *Environment) site(i int) (m, w *tensor.Dense) {
	mt, ok := e.net.Get(network.Key{Sector: network.Ket, Sites: network.Site(i)})
	if !ok {
		panic(fmt.Sprintf("%+v", errors.Errorf("no ket tensor at site %d", i)))
	}
	wt, ok := e.net.Get(network.Key{Sector: network.Ham, Sites: network.Site(i)})
	if !ok {
		panic(fmt.Sprintf("%+v", errors.Errorf("no Hamiltonian tensor at site %d", i)))
	}
	return mt, wt
}
