// Package debuginfo produces the debug-info map emitted alongside the
// binary: the source file list, a byte-offset to (file, line, column) map
// for every lowered instruction, and per-function text ranges.
// The serialized form is the JSON document the debugger consumes.
package debuginfo

import (
	"encoding/json"

	"github.com/chrysante/scatha-sub008/internal/asm"
)

// Entry maps one emitted instruction to its source position: file index
// into Files, byte offset in the text section, line, column.
type Entry struct {
	File   int
	Offset int
	Line   int
	Col    int
}

// FuncRange is a function's [Begin, End) extent in the text section.
type FuncRange struct {
	Name       string
	Begin, End int
}

// Map is the whole debug-info document.
type Map struct {
	Files     []string
	SourceMap []Entry
	Functions []FuncRange
}

// Build derives the map from an assembled binary, interning file names and
// keeping one source-map row per emitted instruction, in disassembled
// instruction order. Instructions with no known position map to file -1.
func Build(b *asm.Binary) *Map {
	m := &Map{}
	fileIndex := make(map[string]int)
	for _, il := range b.InstOffsets {
		file := -1
		if il.Loc.File != "" {
			idx, ok := fileIndex[il.Loc.File]
			if !ok {
				idx = len(m.Files)
				fileIndex[il.Loc.File] = idx
				m.Files = append(m.Files, il.Loc.File)
			}
			file = idx
		}
		m.SourceMap = append(m.SourceMap, Entry{File: file, Offset: il.Offset, Line: il.Loc.Line, Col: il.Loc.Col})
	}
	for _, fr := range b.FuncRanges {
		m.Functions = append(m.Functions, FuncRange{Name: fr.Name, Begin: fr.Begin, End: fr.End})
	}
	return m
}

// MarshalJSON renders the row-array document form:
// {"files":[...],"sourcemap":[[file,idx,line,col],...],"functions":[[name,begin,end],...]}.
func (m *Map) MarshalJSON() ([]byte, error) {
	doc := struct {
		Files     []string        `json:"files"`
		SourceMap [][4]int        `json:"sourcemap"`
		Functions [][]interface{} `json:"functions"`
	}{Files: m.Files}
	if doc.Files == nil {
		doc.Files = []string{}
	}
	doc.SourceMap = make([][4]int, len(m.SourceMap))
	for i, e := range m.SourceMap {
		doc.SourceMap[i] = [4]int{e.File, e.Offset, e.Line, e.Col}
	}
	doc.Functions = make([][]interface{}, len(m.Functions))
	for i, f := range m.Functions {
		doc.Functions[i] = []interface{}{f.Name, f.Begin, f.End}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON is the inverse of MarshalJSON, used by the debugger side
// and the round-trip tests.
func (m *Map) UnmarshalJSON(data []byte) error {
	// Functions rows mix a string with two numbers; decode loosely.
	var loose struct {
		Files     []string        `json:"files"`
		SourceMap [][4]int        `json:"sourcemap"`
		Functions [][]interface{} `json:"functions"`
	}
	if err := json.Unmarshal(data, &loose); err != nil {
		return err
	}
	m.Files = loose.Files
	m.SourceMap = m.SourceMap[:0]
	for _, row := range loose.SourceMap {
		m.SourceMap = append(m.SourceMap, Entry{File: row[0], Offset: row[1], Line: row[2], Col: row[3]})
	}
	m.Functions = m.Functions[:0]
	for _, row := range loose.Functions {
		if len(row) != 3 {
			continue
		}
		name, _ := row[0].(string)
		begin, _ := row[1].(float64)
		end, _ := row[2].(float64)
		m.Functions = append(m.Functions, FuncRange{Name: name, Begin: int(begin), End: int(end)})
	}
	return nil
}

// Lookup resolves a text offset to its source-map entry, or ok=false when
// the offset precedes every mapped instruction.
func (m *Map) Lookup(offset int) (Entry, bool) {
	best := -1
	for i, e := range m.SourceMap {
		if e.Offset <= offset {
			best = i
		} else {
			break
		}
	}
	if best < 0 {
		return Entry{}, false
	}
	return m.SourceMap[best], true
}
