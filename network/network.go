// Package network implements a tensor network over a site chain.
//
// Tensors are addressed by a typed key consisting of a sector (ket,
// bra, Hamiltonian) and the contiguous range of sites the tensor
// covers. The ket and bra sectors act as two views over the same
// underlying state: replacing a state tensor updates both views in one
// write.
package network

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"mpsweep/tensor"
)

// Sector labels which layer of the network a tensor belongs to.
type Sector uint8

const (
	Ket Sector = iota
	Bra
	Ham
)

func (s Sector) String() string {
	switch s {
	case Ket:
		return "KET"
	case Bra:
		return "BRA"
	case Ham:
		return "HAM"
	}
	return fmt.Sprintf("Sector(%d)", uint8(s))
}

// Sites is a contiguous, inclusive range of site indices.
type Sites struct {
	First, Last int
}

// Site returns the range covering a single site.
func Site(i int) Sites { return Sites{First: i, Last: i} }

// Span returns the range covering sites i through j inclusive.
func Span(i, j int) Sites {
	if j < i {
		panic(fmt.Sprintf("%d %d", i, j))
	}
	return Sites{First: i, Last: j}
}

// Overlaps reports whether the two ranges share a site.
func (s Sites) Overlaps(o Sites) bool {
	return s.First <= o.Last && o.First <= s.Last
}

// Contains reports whether site i lies in the range.
func (s Sites) Contains(i int) bool { return s.First <= i && i <= s.Last }

func (s Sites) String() string {
	if s.First == s.Last {
		return fmt.Sprintf("%d", s.First)
	}
	return fmt.Sprintf("%d-%d", s.First, s.Last)
}

// Key addresses one tensor in the network.
type Key struct {
	Sector Sector
	Sites  Sites
}

func (k Key) String() string { return fmt.Sprintf("{%v %v}", k.Sector, k.Sites) }

// Match selects between overlap and equality semantics in Select.
type Match int

const (
	// Any matches entries whose site range overlaps the query.
	Any Match = iota
	// Exact matches entries whose site range equals the query.
	Exact
)

// Entry is a tensor together with its key.
type Entry struct {
	Key Key
	T   *tensor.Dense
}

// Network is an unordered collection of keyed tensors.
type Network struct {
	entries map[Key]*tensor.Dense
}

// New returns an empty network.
func New() *Network {
	return &Network{entries: make(map[Key]*tensor.Dense)}
}

// Add inserts or overwrites the tensor at key k.
func (n *Network) Add(k Key, t *tensor.Dense) {
	n.entries[k] = t
}

// Get returns the tensor stored exactly at key k.
func (n *Network) Get(k Key) (*tensor.Dense, bool) {
	t, ok := n.entries[k]
	return t, ok
}

// Remove deletes the entry at key k, reporting whether it existed.
func (n *Network) Remove(k Key) bool {
	_, ok := n.entries[k]
	delete(n.entries, k)
	return ok
}

// Len returns the number of entries.
func (n *Network) Len() int { return len(n.entries) }

// Select returns the entries of a sector matching the site query,
// ordered by ascending site range.
func (n *Network) Select(sec Sector, sites Sites, m Match) []Entry {
	es := make([]Entry, 0, 2)
	for k, t := range n.entries {
		if k.Sector != sec {
			continue
		}
		switch m {
		case Exact:
			if k.Sites != sites {
				continue
			}
		default:
			if !k.Sites.Overlaps(sites) {
				continue
			}
		}
		es = append(es, Entry{Key: k, T: t})
	}
	sort.Slice(es, func(i, j int) bool {
		a, b := es[i].Key.Sites, es[j].Key.Sites
		if a.First != b.First {
			return a.First < b.First
		}
		return a.Last < b.Last
	})
	return es
}

// Covering returns the single entry of a sector that covers site i.
func (n *Network) Covering(sec Sector, i int) (Entry, bool) {
	for k, t := range n.entries {
		if k.Sector == sec && k.Sites.Contains(i) {
			return Entry{Key: k, T: t}, true
		}
	}
	return Entry{}, false
}

// ReplaceState removes every ket and bra entry overlapping sites and
// stores t at sites in both sectors. Both views share t, so the state
// update is a single write.
func (n *Network) ReplaceState(sites Sites, t *tensor.Dense) {
	for _, sec := range []Sector{Ket, Bra} {
		for _, e := range n.Select(sec, sites, Any) {
			delete(n.entries, e.Key)
		}
		n.entries[Key{Sector: sec, Sites: sites}] = t
	}
}

// Union returns a new network holding the entries of n and o.
// Entries of o win on key collision.
func (n *Network) Union(o *Network) *Network {
	u := New()
	for k, t := range n.entries {
		u.entries[k] = t
	}
	for k, t := range o.entries {
		u.entries[k] = t
	}
	return u
}

// Reduce contracts every tensor of a sector overlapping sites into one
// tensor, walking the chain left to right over the shared bond axes.
//
// State tensors are laid out (left, phys..., right) and the result
// keeps that layout. Hamiltonian tensors are laid out (left, right,
// up, down) and the result is (left, up1, down1, ..., upK, downK,
// right).
func (n *Network) Reduce(sec Sector, sites Sites) (*tensor.Dense, error) {
	es := n.Select(sec, sites, Any)
	if len(es) == 0 {
		return nil, errors.Errorf("no %v tensors over %v", sec, sites)
	}
	for i := 1; i < len(es); i++ {
		if es[i].Key.Sites.First != es[i-1].Key.Sites.Last+1 {
			return nil, errors.Errorf("gap between %v and %v", es[i-1].Key, es[i].Key)
		}
	}

	acc := chainForm(sec, es[0].T)
	for _, e := range es[1:] {
		next := chainForm(sec, e.T)
		var err error
		acc, err = tensor.Contract(acc, next, []int{len(acc.Shape()) - 1}, []int{0})
		if err != nil {
			return nil, errors.Wrap(err, e.Key.String())
		}
	}
	return acc, nil
}

// chainForm rotates a tensor so the chain bonds are its first and last
// axes.
func chainForm(sec Sector, t *tensor.Dense) *tensor.Dense {
	if sec == Ham {
		// (left, right, up, down) -> (left, up, down, right).
		return t.Transpose(0, 2, 3, 1)
	}
	return t
}
