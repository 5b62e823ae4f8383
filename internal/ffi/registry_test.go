package ffi

import (
	"testing"

	"github.com/chrysante/scatha-sub008/internal/types"
)

func TestRegistryResolvesSlotAndIndex(t *testing.T) {
	ctx := types.NewContext()
	r := NewRegistry()
	evm := r.Library("Evm")
	evm.Declare("sender", 0, nil, ctx.IntType(64))
	evm.Declare("balance", 1, []types.Type{ctx.IntType(64)}, ctx.IntType(64))

	table := r.Library("Table")
	table.Declare("get", 0, []types.Type{ctx.IntType(64)}, ctx.IntType(64))

	ref, ok := r.Resolve("Evm", "balance")
	if !ok {
		t.Fatal("expected Evm.balance to resolve")
	}
	if ref.Slot != evm.Slot || ref.Index != 1 || ref.Name != "balance" {
		t.Fatalf("unexpected ForeignRef: %+v", ref)
	}

	if _, ok := r.Resolve("Evm", "missing"); ok {
		t.Fatal("expected lookup of an undeclared function to fail")
	}

	libs := r.Libraries()
	if len(libs) != 2 || libs[0].Name != "Evm" || libs[1].Name != "Table" {
		t.Fatalf("expected libraries ordered by slot, got %+v", libs)
	}
	fns := evm.Functions()
	if len(fns) != 2 || fns[0].Name != "sender" || fns[1].Name != "balance" {
		t.Fatalf("expected functions ordered by index, got %+v", fns)
	}
}
