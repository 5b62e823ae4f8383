package debuginfo

import (
	"encoding/json"
	"testing"

	"github.com/chrysante/scatha-sub008/internal/asm"
)

func sampleBinary() *asm.Binary {
	return &asm.Binary{
		InstOffsets: []asm.InstLoc{
			{Offset: 0, Loc: asm.SourceLoc{File: "main.sc", Line: 1, Col: 1}},
			{Offset: 10, Loc: asm.SourceLoc{File: "main.sc", Line: 2, Col: 5}},
			{Offset: 15, Loc: asm.SourceLoc{File: "lib.sc", Line: 7, Col: 3}},
			{Offset: 21},
		},
		FuncRanges: []asm.FuncRange{
			{Name: "main", Begin: 0, End: 15},
			{Name: "helper", Begin: 15, End: 22},
		},
	}
}

func TestBuildInternsFiles(t *testing.T) {
	m := Build(sampleBinary())
	if len(m.Files) != 2 {
		t.Fatalf("files = %v, want [main.sc lib.sc]", m.Files)
	}
	if m.SourceMap[0].File != 0 || m.SourceMap[2].File != 1 {
		t.Fatal("file indices do not match interning order")
	}
	if m.SourceMap[3].File != -1 {
		t.Fatal("an instruction with no position must map to file -1")
	}
}

func TestJSONShape(t *testing.T) {
	m := Build(sampleBinary())
	doc, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(doc, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"files", "sourcemap", "functions"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("document missing %q: %s", key, doc)
		}
	}
	var rows [][4]int
	if err := json.Unmarshal(raw["sourcemap"], &rows); err != nil {
		t.Fatalf("sourcemap rows are not [file,idx,line,col] quadruples: %v", err)
	}
	if rows[1] != [4]int{0, 10, 2, 5} {
		t.Fatalf("row 1 = %v", rows[1])
	}
}

func TestJSONRoundTrip(t *testing.T) {
	m := Build(sampleBinary())
	doc, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back Map
	if err := json.Unmarshal(doc, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(back.SourceMap) != len(m.SourceMap) || len(back.Functions) != len(m.Functions) {
		t.Fatal("round trip lost rows")
	}
	if back.Functions[1].Name != "helper" || back.Functions[1].Begin != 15 {
		t.Fatalf("functions row mangled: %+v", back.Functions[1])
	}
}

func TestLookupFindsEnclosingInstruction(t *testing.T) {
	m := Build(sampleBinary())
	e, ok := m.Lookup(12)
	if !ok || e.Offset != 10 {
		t.Fatalf("Lookup(12) = %+v, %v; want the entry at offset 10", e, ok)
	}
	if _, ok := m.Lookup(-1); ok {
		t.Fatal("Lookup before the first instruction must fail")
	}
}
