package driver

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chrysante/scatha-sub008/internal/asm"
	"github.com/chrysante/scatha-sub008/internal/ast"
	"github.com/chrysante/scatha-sub008/internal/codegen"
	"github.com/chrysante/scatha-sub008/internal/debuginfo"
	"github.com/chrysante/scatha-sub008/internal/ffi"
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/irgen"
	"github.com/chrysante/scatha-sub008/internal/issue"
	_ "github.com/chrysante/scatha-sub008/internal/passes" // registers the pass catalogue the default pipelines name
	"github.com/chrysante/scatha-sub008/internal/passmgr"
	"github.com/chrysante/scatha-sub008/internal/sema"
	"github.com/chrysante/scatha-sub008/internal/types"
)

// Stage identifies a compilation stage; the driver invokes OnStage after
// each with the stage's artifact, and the callback may call Stop to abort
// further stages cleanly.
type Stage int

const (
	StageAST Stage = iota
	StageIR
	StageOptimized
	StageMIR
	StageAssembly
	StageBinary
)

var stageNames = map[Stage]string{
	StageAST: "ast", StageIR: "irgen", StageOptimized: "optimize",
	StageMIR: "codegen", StageAssembly: "assembly", StageBinary: "binary",
}

func (s Stage) String() string { return stageNames[s] }

var log = commonlog.GetLogger("scathac.driver")

// Compiler drives one compilation. It never prints diagnostics itself;
// everything lands in Issues for the CLI to render.
type Compiler struct {
	Opts    *Options
	Issues  *issue.Handler
	OnStage func(stage Stage, artifact any)

	continueCompilation bool
}

func NewCompiler(opts *Options) *Compiler {
	return &Compiler{Opts: opts, Issues: issue.NewHandler(), continueCompilation: true}
}

// Stop aborts the compilation after the current stage; meant to be called
// from an OnStage callback.
func (c *Compiler) Stop() { c.continueCompilation = false }

func (c *Compiler) stage(s Stage, artifact any) bool {
	if c.OnStage != nil {
		c.OnStage(s, artifact)
	}
	return c.continueCompilation && !c.Issues.HasErrors()
}

var errStopped = fmt.Errorf("driver: compilation stopped")

// CompileIRText compiles a module given in the textual IR format, the entry
// point used for .scir inputs and by tooling; name becomes the target name.
func (c *Compiler) CompileIRText(name, source string) (*Target, error) {
	ctx := types.NewContext()
	m, err := ir.Parse(ctx, source)
	if err != nil {
		c.Issues.Report(issue.Issue{Level: issue.Error, Kind: issue.KindSemantic,
			Code: issue.ErrUnsupportedConstruct, Message: err.Error(), Where: name})
		return nil, err
	}
	if !c.stage(StageIR, m) {
		return nil, errStopped
	}
	return c.compileModule(name, m, ffi.NewRegistry())
}

// CompileProgram compiles a resolved AST program, the entry point the
// external front end hands its output to.
func (c *Compiler) CompileProgram(name string, prog *ast.Program, table *sema.SymbolTable, deco *sema.Decorations) (*Target, error) {
	if !c.stage(StageAST, prog) {
		return nil, errStopped
	}
	ctx := types.NewContext()
	foreign := ffi.NewRegistry()
	lower := irgen.New(ctx, table, deco, foreign)
	if err := lower.LowerProgram(prog); err != nil {
		c.Issues.Report(issue.Issue{Level: issue.Error, Kind: issue.KindSemantic,
			Code: issue.ErrUnsupportedConstruct, Message: err.Error(), Where: name})
		return nil, err
	}
	if !c.stage(StageIR, lower.Module) {
		return nil, errStopped
	}
	return c.compileModule(name, lower.Module, foreign)
}

func (c *Compiler) compileModule(name string, m *ir.Module, foreign *ffi.Registry) (*Target, error) {
	if err := c.optimize(m); err != nil {
		return nil, err
	}
	if !c.stage(StageOptimized, m) {
		return nil, errStopped
	}

	if c.Opts.Mode == EmitStaticLib {
		return &Target{Name: name, Mode: EmitStaticLib, IRText: ir.Print(m)}, nil
	}

	start := time.Now()
	mm, err := codegen.Run(m)
	c.logStage("codegen", start)
	if err != nil {
		c.Issues.Report(issue.Issue{Level: issue.Error, Kind: issue.KindCodegen,
			Code: issue.ErrNoMatchingPattern, Message: err.Error(), Where: name})
		return nil, err
	}
	if !c.stage(StageMIR, mm) {
		return nil, errStopped
	}

	prog, err := codegen.Emit(mm, m)
	if err != nil {
		c.Issues.Report(issue.Issue{Level: issue.Error, Kind: issue.KindCodegen,
			Code: issue.ErrSpillFailure, Message: err.Error(), Where: name})
		return nil, err
	}
	if !c.stage(StageAssembly, prog) {
		return nil, errStopped
	}

	start = time.Now()
	bin, err := asm.Assemble(prog, foreign)
	c.logStage("assemble", start)
	if err != nil {
		c.Issues.Report(issue.Issue{Level: issue.Error, Kind: issue.KindAssembly,
			Code: issue.ErrJumpOutOfRange, Message: err.Error(), Where: name})
		return nil, err
	}
	if !c.stage(StageBinary, bin) {
		return nil, errStopped
	}

	target := &Target{Name: name, Binary: bin, Mode: c.Opts.Mode, Symbols: bin.Symbols}
	if c.Opts.Debug {
		target.Debug = debuginfo.Build(bin)
	}
	return target, nil
}

// optimize parses and runs the pipeline for the configured -O level (or the
// explicit --pipeline text), reporting pipeline errors through Issues.
func (c *Compiler) optimize(m *ir.Module) error {
	text := c.Opts.Pipeline
	if text == "" {
		text = DefaultPipeline(c.Opts.OptLevel)
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	nodes, err := passmgr.Parse(text)
	if err != nil {
		if pe, ok := err.(*issue.PipelineError); ok {
			c.Issues.Report(pe.Issue)
		} else {
			c.Issues.Report(issue.Issue{Level: issue.Error, Kind: issue.KindPipeline,
				Code: issue.ErrMalformedPipeline, Message: err.Error()})
		}
		return err
	}
	start := time.Now()
	_, err = passmgr.RunPipeline(m, nodes)
	c.logStage(fmt.Sprintf("pipeline %q", text), start)
	if err != nil {
		c.Issues.Report(issue.Issue{Level: issue.Error, Kind: issue.KindPipeline,
			Code: issue.ErrMalformedPipeline, Message: err.Error()})
	}
	return err
}

func (c *Compiler) logStage(name string, start time.Time) {
	if c.Opts.Time {
		log.Infof("%s took %s", name, time.Since(start))
	} else {
		log.Debugf("%s done", name)
	}
}

// TargetName derives the output name from -o or the first input file.
func TargetName(opts *Options) string {
	var base string
	if opts.Output != "" {
		base = filepath.Base(opts.Output)
	} else {
		base = filepath.Base(opts.Inputs[0])
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
