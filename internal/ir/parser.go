package ir

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/fatih/color"

	"github.com/chrysante/scatha-sub008/internal/types"
)

var textParser = participle.MustBuild[fileAST](
	participle.Lexer(textLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(3),
)

// Parse reads the textual IR format produced by Print and reconstructs a
// live Module against ctx, using the same low-level instruction
// constructors the Builder uses. It is the inverse of Print except for the
// gap documented in fromtext.go (aggregate constant literals, which it
// does not parse).
func Parse(ctx *types.Context, source string) (*Module, error) {
	ast, err := textParser.ParseString("", source)
	if err != nil {
		reportParseError(source, err)
		return nil, err
	}
	return buildModule(ctx, ast)
}

// reportParseError prints a caret-style diagnostic, the same shape the
// language's own source parser uses for syntax errors.
func reportParseError(src string, err error) {
	pe, ok := err.(participle.Error)
	if !ok {
		color.Red("unexpected error: %s", err)
		return
	}
	fmt.Printf("parse error at %s: %s\n", pe.Position(), pe.Message())
}
