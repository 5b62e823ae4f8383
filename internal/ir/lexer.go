package ir

import "github.com/alecthomas/participle/v2/lexer"

// textLexer tokenizes the IR text format printed by Print,
// following the same lexer.MustStateful shape used for the language's own
// source grammar: one flat "Root" state, longest-match-first rules, comments
// and whitespace elided by the parser rather than the lexer.
var textLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Comment", `//[^\n]*`, nil},
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_.]*`, nil},
		{"Float", `-?[0-9]+\.[0-9]+`, nil},
		{"Integer", `-?[0-9]+`, nil},
		{"Punct", `[{}()\[\]%@,:=]`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
