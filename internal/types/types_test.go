package types

import "testing"

func TestPrimitiveUniquing(t *testing.T) {
	ctx := NewContext()
	if ctx.IntType(32) != ctx.IntType(32) {
		t.Fatal("i32 must be a singleton per context")
	}
	if ctx.IntType(32) == ctx.IntType(64) {
		t.Fatal("distinct widths must be distinct types")
	}
	if ctx.ArrayType(ctx.IntType(8), 4) != ctx.ArrayType(ctx.IntType(8), 4) {
		t.Fatal("array types must be uniqued by (element, count)")
	}
}

func TestAnonymousStructStructuralUniquing(t *testing.T) {
	ctx := NewContext()
	a := ctx.AnonymousStruct([]Type{ctx.IntType(64), ctx.IntType(8)})
	b := ctx.AnonymousStruct([]Type{ctx.IntType(64), ctx.IntType(8)})
	if a != b {
		t.Fatal("structurally equal anonymous structs must be pointer-equal")
	}
	c := ctx.AnonymousStruct([]Type{ctx.IntType(8), ctx.IntType(64)})
	if a == c {
		t.Fatal("member order matters")
	}
}

func TestNamedStructsUniquedByName(t *testing.T) {
	ctx := NewContext()
	a := ctx.DeclareStruct("A", []Type{ctx.IntType(64)})
	b := ctx.DeclareStruct("B", []Type{ctx.IntType(64)})
	if a == b {
		t.Fatal("identically-shaped named structs must stay distinct")
	}
	if ctx.DeclareStruct("A", nil) != a {
		t.Fatal("re-declaring a name must return the existing type")
	}
}

func TestNaturalLayout(t *testing.T) {
	ctx := NewContext()
	// {i8, i64, i16} lays out at 0, 8, 16; size 24, align 8.
	st := ctx.AnonymousStruct([]Type{ctx.IntType(8), ctx.IntType(64), ctx.IntType(16)})
	wantOffsets := []int{0, 8, 16}
	for i, off := range st.Offsets {
		if off != wantOffsets[i] {
			t.Fatalf("offset[%d] = %d, want %d", i, off, wantOffsets[i])
		}
	}
	if st.Size() != 24 || st.Align() != 8 {
		t.Fatalf("size/align = %d/%d, want 24/8", st.Size(), st.Align())
	}
	if st.Size()%st.Align() != 0 {
		t.Fatal("size must be a multiple of alignment")
	}
	if !IsPowerOfTwo(st.Align()) {
		t.Fatal("alignment must be a power of two")
	}
}

func TestConstantCanonicalization(t *testing.T) {
	ctx := NewContext()
	if ctx.IntConstant(64, 5) != ctx.IntConstant(64, 5) {
		t.Fatal("equal (width, value) constants must be pointer-equal")
	}
	if ctx.IntConstant(32, 5) == ctx.IntConstant(64, 5) {
		t.Fatal("width participates in constant identity")
	}
	// Values are masked to width, so 256 as an i8 is 0.
	if ctx.IntConstant(8, 256) != ctx.IntConstant(8, 0) {
		t.Fatal("constants must be masked to their width on construction")
	}
	if ctx.Undef(ctx.IntType(64)) != ctx.Undef(ctx.IntType(64)) {
		t.Fatal("one undef per type")
	}
	if ctx.StringLiteral("hi") != ctx.StringLiteral("hi") {
		t.Fatal("string literals must be cached by contents")
	}
}

func TestSignedReinterpretation(t *testing.T) {
	ctx := NewContext()
	c := ctx.IntConstant(8, 0xFF)
	if c.Signed() != -1 {
		t.Fatalf("i8 0xFF reads back as %d, want -1", c.Signed())
	}
	if ctx.IntConstant(64, ^uint64(0)).Signed() != -1 {
		t.Fatal("i64 all-ones reads back as -1")
	}
}
