package main

import (
	"math/rand/v2"

	"github.com/pkg/errors"

	"mpsweep/mps"
	"mpsweep/page"
	"mpsweep/sweep"
	"mpsweep/tensor"
)

// buildChain constructs the model MPO and a normalized random initial
// state with the orthogonality center at site 0.
func buildChain(model string, n int, h, jz float64, seed uint64, maxD int) (mpo, state []*tensor.Dense, err error) {
	switch model {
	case "ising":
		mpo = mps.Ising(n, h)
	case "xxz":
		mpo = mps.HeisenbergXXZ(n, jz)
	default:
		return nil, nil, errors.Errorf("unknown model %q", model)
	}

	rnd := rand.New(rand.NewPCG(seed, 0))
	state = mps.Rand(rnd, mpo, maxD)
	if err := mps.RightCanonicalize(state); err != nil {
		return nil, nil, err
	}
	if _, err := mps.Normalize(state); err != nil {
		return nil, nil, err
	}
	return mpo, state, nil
}

// newContractor builds the dense backend, paging bond bookkeeping to
// sqlite when db is non-empty.
func newContractor(db string, rebuild bool) (*sweep.DenseContractor, func(), error) {
	opts := []sweep.DenseOption{
		sweep.WithContractorLogger(logger.Sugar()),
		sweep.WithRebuild(rebuild),
	}
	closeStore := func() {}
	if db != "" {
		store, err := page.Open(db)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, sweep.WithStore(store))
		closeStore = func() { _ = store.Close() }
	}
	return sweep.NewDenseContractor(opts...), closeStore, nil
}
