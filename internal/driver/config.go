// Package driver orchestrates a compilation: it parses the command line,
// runs the optimization pipeline, drives codegen and the assembler, and
// bundles the result into a Target written to disk in one operation.
package driver

import (
	"fmt"
	"strings"
)

// EmitMode selects what the driver produces.
type EmitMode int

const (
	// EmitExecutable writes the full binary with header and FFI table.
	EmitExecutable EmitMode = iota
	// EmitBinaryOnly writes the raw binary without debug/symbol sidecars.
	EmitBinaryOnly
	// EmitStaticLib writes the optimized IR text for later linking.
	EmitStaticLib
)

// Options is the parsed command line.
type Options struct {
	Inputs   []string
	OptLevel int
	Pipeline string
	Debug    bool
	Output   string
	LibDirs  []string
	Time     bool
	Mode     EmitMode
}

// ParseArgs reads the driver flags: -O{0..3}, --pipeline <text>, --debug,
// -o <path>, -L <lib-dir> (repeatable), --time, --binary-only, --lib.
// Remaining arguments are input files (source or IR text).
func ParseArgs(args []string) (*Options, error) {
	opts := &Options{OptLevel: 1}
	i := 0
	next := func(flag string) (string, error) {
		i++
		if i >= len(args) {
			return "", fmt.Errorf("flag %s requires an argument", flag)
		}
		return args[i], nil
	}
	for ; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-O0", a == "-O1", a == "-O2", a == "-O3":
			opts.OptLevel = int(a[2] - '0')
		case a == "--pipeline":
			v, err := next(a)
			if err != nil {
				return nil, err
			}
			opts.Pipeline = v
		case a == "--debug":
			opts.Debug = true
		case a == "-o":
			v, err := next(a)
			if err != nil {
				return nil, err
			}
			opts.Output = v
		case a == "-L":
			v, err := next(a)
			if err != nil {
				return nil, err
			}
			opts.LibDirs = append(opts.LibDirs, v)
		case a == "--time":
			opts.Time = true
		case a == "--binary-only":
			opts.Mode = EmitBinaryOnly
		case a == "--lib":
			opts.Mode = EmitStaticLib
		case strings.HasPrefix(a, "-"):
			return nil, fmt.Errorf("unknown flag %s", a)
		default:
			opts.Inputs = append(opts.Inputs, a)
		}
	}
	if len(opts.Inputs) == 0 {
		return nil, fmt.Errorf("no input files")
	}
	return opts, nil
}

// DefaultPipeline is the pipeline text each -O level expands to when no
// --pipeline override is given.
func DefaultPipeline(level int) string {
	switch level {
	case 0:
		return ""
	case 1:
		return "unify-returns, sroa, simplify-cfg, dce"
	case 2:
		return "unify-returns, sroa, simplify-cfg, inst-combine, gvn, dce, tail-rec-elim, simplify-cfg"
	default:
		return "unify-returns, sroa, simplify-cfg, inst-combine, gvn, " +
			"inline(sroa, simplify-cfg, inst-combine, gvn, dce), " +
			"tail-rec-elim, loop-canonicalize, split-critical-edges, dce, globaldce"
	}
}
