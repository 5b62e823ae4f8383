package driver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chrysante/scatha-sub008/internal/asm"
	"github.com/chrysante/scatha-sub008/internal/debuginfo"
)

// Target bundles everything a compilation produced: the binary, the
// optional debug-info map, and the symbol table. It is the only artifact
// the core ever writes to disk.
type Target struct {
	Name    string
	Binary  *asm.Binary
	Debug   *debuginfo.Map
	IRText  string // EmitStaticLib only
	Mode    EmitMode
	Symbols map[string]int
}

// WriteToDisk writes the target's artifacts under dir in one operation:
// <name>.sbin, and unless binary-only, <name>.json (when debug info was
// requested) and <name>.sym. A static library writes <name>.scir instead.
func (t *Target) WriteToDisk(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if t.Mode == EmitStaticLib {
		return os.WriteFile(filepath.Join(dir, t.Name+".scir"), []byte(t.IRText), 0o644)
	}
	if t.Binary == nil {
		return fmt.Errorf("driver: target %q has no binary", t.Name)
	}
	if err := os.WriteFile(filepath.Join(dir, t.Name+".sbin"), t.Binary.Bytes, 0o755); err != nil {
		return err
	}
	if t.Mode == EmitBinaryOnly {
		return nil
	}
	if t.Debug != nil {
		doc, err := json.Marshal(t.Debug)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, t.Name+".json"), doc, 0o644); err != nil {
			return err
		}
	}
	return os.WriteFile(filepath.Join(dir, t.Name+".sym"), []byte(t.symbolText()), 0o644)
}

func (t *Target) symbolText() string {
	names := make([]string, 0, len(t.Symbols))
	for n := range t.Symbols {
		names = append(names, n)
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, n := range names {
		fmt.Fprintf(&sb, "%08x %s\n", t.Symbols[n], n)
	}
	return sb.String()
}
