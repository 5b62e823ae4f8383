// Package issue is the compiler's diagnostic taxonomy: every stage past the
// (external) front end reports failures as an Issue rather than a bare
// error, so the driver can render them uniformly and collect more than one
// per run.
package issue

import "fmt"

// Level is a diagnostic's severity.
type Level string

const (
	Error   Level = "error"
	Warning Level = "warning"
	Note    Level = "note"
)

// Kind classifies which stage raised the Issue.
type Kind string

const (
	KindSemantic Kind = "semantic" // malformed input from the AST/SymbolTable collaborator
	KindPipeline Kind = "pipeline" // unknown pass name, malformed pipeline grammar
	KindCodegen  Kind = "codegen"  // instruction selection / register allocation failure
	KindAssembly Kind = "assembly" // unresolved jump site, oversized operand, FFI table overflow
	KindInternal Kind = "internal" // invariant violation; always a compiler bug, never user error
)

// Issue is a single diagnostic, optionally anchored to a function/block/
// instruction name (there is no source position once codegen is underway:
// debuginfo.Map is what recovers one if the caller needs it).
type Issue struct {
	Level   Level
	Kind    Kind
	Code    string
	Message string
	Where   string // e.g. "function @f, block %entry"
	Notes   []string
}

func (i Issue) Error() string { return i.String() }

func (i Issue) String() string {
	if i.Where != "" {
		return fmt.Sprintf("%s[%s] in %s: %s", i.Level, i.Code, i.Where, i.Message)
	}
	return fmt.Sprintf("%s[%s]: %s", i.Level, i.Code, i.Message)
}

// Error code ranges, mirroring the source-language compiler's convention of
// grouping codes by the stage that raises them.
const (
	// I01xx: pipeline/pass-manager errors
	ErrUnknownPass     = "I0101"
	ErrMalformedPipeline = "I0102"

	// I02xx: IR-gen / lowering errors surfaced from the AST+SymbolTable boundary
	ErrUnsupportedConstruct = "I0201"

	// I03xx: codegen errors
	ErrSpillFailure     = "I0301"
	ErrNoMatchingPattern = "I0302"

	// I04xx: assembler errors
	ErrJumpOutOfRange  = "I0401"
	ErrFFISlotOverflow = "I0402"

	// I09xx: internal invariant violations
	ErrInvariantViolation = "I0901"
)

// PipelineError wraps an Issue of KindPipeline, returned by passmgr when a
// pipeline description names an unknown pass or is grammatically malformed.
type PipelineError struct{ Issue Issue }

func (e *PipelineError) Error() string { return e.Issue.String() }

// Handler collects Issues raised during a compilation and reports whether
// any reached Error severity (the driver stops the pipeline when it has).
type Handler struct {
	issues []Issue
}

func NewHandler() *Handler { return &Handler{} }

func (h *Handler) Report(i Issue) { h.issues = append(h.issues, i) }

func (h *Handler) HasErrors() bool {
	for _, i := range h.issues {
		if i.Level == Error {
			return true
		}
	}
	return false
}

func (h *Handler) Issues() []Issue { return h.issues }
