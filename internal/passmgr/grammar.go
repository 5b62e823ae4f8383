package passmgr

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/chrysante/scatha-sub008/internal/issue"
)

// pipelineLexer tokenizes a pipeline description such as
// "unify-returns, inline(sroa, mem2reg, gvn), dce, globaldce".
var pipelineLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_-]*`, nil},
		{"Punct", `[(),]`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})

type stepAST struct {
	Name     string     `@Ident`
	Children []*stepAST `("(" (@@ ","?)* ")")?`
}

type pipelineAST struct {
	Steps []*stepAST `(@@ ","?)*`
}

var pipelineParser = participle.MustBuild[pipelineAST](
	participle.Lexer(pipelineLexer),
	participle.Elide("Whitespace"),
)

// Node is a pipeline step: a pass name, optionally wrapping a nested
// sub-pipeline that repeats alongside it to a local fixed point (used by
// composite passes like "inline(sroa, mem2reg, gvn)" that clean up after
// every inlining decision before considering the next one).
type Node struct {
	Name     string
	Children []*Node
}

// Parse reads a pipeline description into its Node tree, validating that
// every named step resolves to a registered pass.
func Parse(source string) ([]*Node, error) {
	ast, err := pipelineParser.ParseString("", source)
	if err != nil {
		return nil, &issue.PipelineError{Issue: issue.Issue{
			Level: issue.Error, Kind: issue.KindPipeline, Code: issue.ErrMalformedPipeline,
			Message: err.Error(),
		}}
	}
	return convert(ast.Steps)
}

func convert(steps []*stepAST) ([]*Node, error) {
	out := make([]*Node, 0, len(steps))
	for _, s := range steps {
		if _, _, ok := Lookup(s.Name); !ok {
			return nil, &issue.PipelineError{Issue: issue.Issue{
				Level: issue.Error, Kind: issue.KindPipeline, Code: issue.ErrUnknownPass,
				Message: "unknown pass \"" + s.Name + "\"",
			}}
		}
		children, err := convert(s.Children)
		if err != nil {
			return nil, err
		}
		out = append(out, &Node{Name: s.Name, Children: children})
	}
	return out, nil
}
