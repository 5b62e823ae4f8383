package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"

	"github.com/chrysante/scatha-sub008/internal/driver"
	"github.com/chrysante/scatha-sub008/internal/issue"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := driver.ParseArgs(args)
	if err != nil {
		color.Red("❌ %s", err)
		usage()
		return 2
	}

	verbosity := 0
	if opts.Time {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	c := driver.NewCompiler(opts)
	name := driver.TargetName(opts)

	var target *driver.Target
	for _, input := range opts.Inputs {
		source, err := os.ReadFile(input)
		if err != nil {
			color.Red("❌ failed to read %s: %s", input, err)
			return 2
		}
		switch {
		case strings.HasSuffix(input, ".scir"):
			target, err = c.CompileIRText(name, string(source))
		default:
			// Source-language inputs go through the external front end; the
			// core only accepts its output.
			color.Red("❌ %s: source inputs require the front end; pass IR text (.scir)", input)
			return 2
		}
		if err != nil || c.Issues.HasErrors() {
			reportIssues(c.Issues)
			return 1
		}
	}

	reportIssues(c.Issues)
	if target == nil {
		return 1
	}

	outDir := "."
	if opts.Output != "" {
		if d := filepath.Dir(opts.Output); d != "" {
			outDir = d
		}
	}
	if err := target.WriteToDisk(outDir); err != nil {
		color.Red("❌ failed to write output: %s", err)
		return 2
	}
	color.Green("✅ Successfully compiled %s", name)
	return 0
}

// reportIssues renders every collected diagnostic, errors in red, warnings
// in yellow, other levels and attached notes in plain text.
func reportIssues(h *issue.Handler) {
	for _, i := range h.Issues() {
		switch i.Level {
		case issue.Error:
			color.Red("❌ %s", i)
		case issue.Warning:
			color.Yellow("⚠ %s", i)
		default:
			fmt.Println(i)
		}
		for _, n := range i.Notes {
			fmt.Printf("  → %s\n", n)
		}
	}
}

func usage() {
	fmt.Println("Usage: scathac [flags] <input.scir>...")
	fmt.Println("  -O0..-O3          optimization level (default -O1)")
	fmt.Println("  --pipeline <text> explicit pass pipeline")
	fmt.Println("  --debug           emit debug-info JSON")
	fmt.Println("  -o <path>         output path")
	fmt.Println("  -L <dir>          foreign library search directory")
	fmt.Println("  --time            log per-stage timing")
	fmt.Println("  --binary-only     omit symbol/debug sidecars")
	fmt.Println("  --lib             emit optimized IR text instead of a binary")
}
