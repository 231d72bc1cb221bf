package page

import (
	"math/rand/v2"
	"path/filepath"
	"testing"

	"mpsweep/tensor"
)

func TestTensorRoundTrip(t *testing.T) {
	t.Parallel()
	store, err := Open(filepath.Join(t.TempDir(), "s.db"))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer store.Close()

	rnd := rand.New(rand.NewPCG(40, 0))
	want := tensor.Rand(rnd, 3, 2, 4)
	if err := store.PutTensor("L3", want); err != nil {
		t.Fatalf("%+v", err)
	}

	got, err := store.Tensor("L3")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	gs, ws := got.Shape(), want.Shape()
	if len(gs) != len(ws) || gs[0] != ws[0] || gs[1] != ws[1] || gs[2] != ws[2] {
		t.Fatalf("%v %v", gs, ws)
	}
	for i, v := range got.Data() {
		if v != want.Data()[i] {
			t.Fatalf("%d: %f %f", i, v, want.Data()[i])
		}
	}

	// Overwrite under the same key.
	want2 := tensor.Rand(rnd, 2, 2)
	if err := store.PutTensor("L3", want2); err != nil {
		t.Fatalf("%+v", err)
	}
	got2, err := store.Tensor("L3")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if got2.Size() != 4 {
		t.Fatalf("%d", got2.Size())
	}

	if _, err := store.Tensor("nope"); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestBond(t *testing.T) {
	t.Parallel()
	store, err := Open(filepath.Join(t.TempDir(), "s.db"))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer store.Close()

	if err := store.PutBond(2, "L", 8); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := store.PutBond(2, "R", 4); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := store.PutBond(2, "L", 16); err != nil {
		t.Fatalf("%+v", err)
	}

	dim, err := store.Bond(2, "L")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if dim != 16 {
		t.Fatalf("%d", dim)
	}
	dim, err = store.Bond(2, "R")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if dim != 4 {
		t.Fatalf("%d", dim)
	}

	if _, err := store.Bond(9, "L"); err == nil {
		t.Fatalf("expected missing bond error")
	}
}
