package sema

import (
	"github.com/chrysante/scatha-sub008/internal/ast"
	"github.com/chrysante/scatha-sub008/internal/types"
)

// ExprInfo is the analyzer's verdict on one expression node: its type, its
// value category, and (for an IdentExpr) the local it resolves to.
type ExprInfo struct {
	Type     types.Type
	Category ValueCategory
	Local    *LocalSymbol // non-nil when X is an IdentExpr naming a local/param
}

// Decorations is the AST-object -> resolved-info map the analyzer hands
// irgen. Keyed by the concrete Expr
// node's identity, since two structurally-equal nodes may still carry
// different resolved types (e.g. `a + b` under shadowed redeclaration).
type Decorations struct {
	Exprs map[ast.Expr]*ExprInfo
}

func NewDecorations() *Decorations {
	return &Decorations{Exprs: make(map[ast.Expr]*ExprInfo)}
}

func (d *Decorations) Annotate(x ast.Expr, info *ExprInfo) { d.Exprs[x] = info }

func (d *Decorations) Info(x ast.Expr) *ExprInfo { return d.Exprs[x] }
