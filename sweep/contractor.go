package sweep

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"mpsweep/page"
	"mpsweep/tensor"
)

// Contractor is the backend collaborator around local updates: it
// changes the representation of site tensors between unfused
// (left, phys, right) and fused matrix forms, and persists updated
// bond bookkeeping after each truncation.
type Contractor interface {
	// FuseLeft merges the left bond and physical index of the site
	// tensor at i into one row index.
	FuseLeft(i int, t *tensor.Dense) *tensor.Dense
	// FuseRight merges the physical index and right bond of the site
	// tensor at i into one column index.
	FuseRight(i int, t *tensor.Dense) *tensor.Dense
	// UnfuseLeft undoes FuseLeft; phys is the physical dimension.
	UnfuseLeft(i int, t *tensor.Dense, phys int) *tensor.Dense
	// UnfuseRight undoes FuseRight.
	UnfuseRight(i int, t *tensor.Dense, phys int) *tensor.Dense

	// UpdateLeftInfo and UpdateRightInfo run after each truncation with
	// the retained factor, so the backend can persist bond bookkeeping.
	UpdateLeftInfo(i int, t *tensor.Dense) error
	UpdateRightInfo(i int, t *tensor.Dense) error

	PreSweep() error
	PostSweep() error

	// Rebuild reports whether environments must be reconstructed from
	// scratch every sweep instead of reused. The rebuild mode trades
	// sweep time for reduced peak memory.
	Rebuild() bool
}

// DenseContractor is the in-memory contraction backend, optionally
// paging bond bookkeeping to a sqlite store.
type DenseContractor struct {
	store   *page.Store
	log     *zap.SugaredLogger
	rebuild bool
}

// DenseOption configures a DenseContractor.
type DenseOption func(*DenseContractor)

// WithStore persists truncated factors and bond dimensions to s.
func WithStore(s *page.Store) DenseOption {
	return func(c *DenseContractor) { c.store = s }
}

// WithContractorLogger routes backend diagnostics to l.
func WithContractorLogger(l *zap.SugaredLogger) DenseOption {
	return func(c *DenseContractor) { c.log = l }
}

// WithRebuild disables environment reuse across sweeps.
func WithRebuild(rebuild bool) DenseOption {
	return func(c *DenseContractor) { c.rebuild = rebuild }
}

// NewDenseContractor returns the default backend.
func NewDenseContractor(opts ...DenseOption) *DenseContractor {
	c := &DenseContractor{log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *DenseContractor) FuseLeft(i int, t *tensor.Dense) *tensor.Dense {
	s := t.Shape()
	return t.Reshape(s[0]*s[1], s[2])
}

func (c *DenseContractor) FuseRight(i int, t *tensor.Dense) *tensor.Dense {
	s := t.Shape()
	return t.Reshape(s[0], s[1]*s[2])
}

func (c *DenseContractor) UnfuseLeft(i int, t *tensor.Dense, phys int) *tensor.Dense {
	s := t.Shape()
	return t.Reshape(s[0]/phys, phys, s[1])
}

func (c *DenseContractor) UnfuseRight(i int, t *tensor.Dense, phys int) *tensor.Dense {
	s := t.Shape()
	return t.Reshape(s[0], phys, s[1]/phys)
}

func (c *DenseContractor) UpdateLeftInfo(i int, t *tensor.Dense) error {
	return c.updateInfo(i, "L", t)
}

func (c *DenseContractor) UpdateRightInfo(i int, t *tensor.Dense) error {
	return c.updateInfo(i, "R", t)
}

func (c *DenseContractor) updateInfo(i int, side string, t *tensor.Dense) error {
	shape := t.Shape()
	dim := shape[len(shape)-1]
	if side == "R" {
		dim = shape[0]
	}
	c.log.Debugw("bond info", "site", i, "side", side, "dim", dim)
	if c.store == nil {
		return nil
	}
	if err := c.store.PutBond(i, side, dim); err != nil {
		return errors.Wrap(err, "")
	}
	if err := c.store.PutTensor(fmt.Sprintf("%s%d", side, i), t); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func (c *DenseContractor) PreSweep() error  { return nil }
func (c *DenseContractor) PostSweep() error { return nil }

func (c *DenseContractor) Rebuild() bool { return c.rebuild }
