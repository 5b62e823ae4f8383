package irgen

import (
	"github.com/chrysante/scatha-sub008/internal/ast"
	"github.com/chrysante/scatha-sub008/internal/sema"
)

func (l *Lowerer) lowerIf(fs *funcState, s *ast.IfStmt) error {
	cond, err := l.lowerExpr(fs, s.Cond)
	if err != nil {
		return err
	}
	thenBlock := fs.b.NewBlock("if.then")
	elseBlock := thenBlock
	if s.Else != nil {
		elseBlock = fs.b.NewBlock("if.else")
	}
	joinBlock := fs.b.NewBlock("if.join")
	if s.Else != nil {
		fs.b.Branch(cond, thenBlock, elseBlock)
	} else {
		fs.b.Branch(cond, thenBlock, joinBlock)
	}

	fs.b.SetCurrentBlock(thenBlock)
	if err := l.lowerBlock(fs, s.Then); err != nil {
		return err
	}
	if fs.b.CurrentBlock().Terminator() == nil {
		fs.b.Goto(joinBlock)
	}

	if s.Else != nil {
		fs.b.SetCurrentBlock(elseBlock)
		if err := l.lowerBlock(fs, s.Else); err != nil {
			return err
		}
		if fs.b.CurrentBlock().Terminator() == nil {
			fs.b.Goto(joinBlock)
		}
	}

	fs.b.SetCurrentBlock(joinBlock)
	return nil
}

func (l *Lowerer) lowerWhile(fs *funcState, s *ast.WhileStmt) error {
	headerBlock := fs.b.NewBlock("while.header")
	bodyBlock := fs.b.NewBlock("while.body")
	exitBlock := fs.b.NewBlock("while.exit")

	fs.b.Goto(headerBlock)
	fs.b.SetCurrentBlock(headerBlock)
	cond, err := l.lowerExpr(fs, s.Cond)
	if err != nil {
		return err
	}
	fs.b.Branch(cond, bodyBlock, exitBlock)

	fs.b.SetCurrentBlock(bodyBlock)
	fs.loops = append(fs.loops, &loopContext{continueTarget: headerBlock, breakTarget: exitBlock, scopeDepth: len(fs.scopes)})
	if err := l.lowerBlock(fs, s.Body); err != nil {
		return err
	}
	fs.loops = fs.loops[:len(fs.loops)-1]
	if fs.b.CurrentBlock().Terminator() == nil {
		fs.b.Goto(headerBlock)
	}

	fs.b.SetCurrentBlock(exitBlock)
	return nil
}

func (l *Lowerer) lowerDoWhile(fs *funcState, s *ast.DoWhileStmt) error {
	bodyBlock := fs.b.NewBlock("dowhile.body")
	latchBlock := fs.b.NewBlock("dowhile.latch")
	exitBlock := fs.b.NewBlock("dowhile.exit")

	fs.b.Goto(bodyBlock)
	fs.b.SetCurrentBlock(bodyBlock)
	fs.loops = append(fs.loops, &loopContext{continueTarget: latchBlock, breakTarget: exitBlock, scopeDepth: len(fs.scopes)})
	if err := l.lowerBlock(fs, s.Body); err != nil {
		return err
	}
	fs.loops = fs.loops[:len(fs.loops)-1]
	if fs.b.CurrentBlock().Terminator() == nil {
		fs.b.Goto(latchBlock)
	}

	fs.b.SetCurrentBlock(latchBlock)
	cond, err := l.lowerExpr(fs, s.Cond)
	if err != nil {
		return err
	}
	fs.b.Branch(cond, bodyBlock, exitBlock)

	fs.b.SetCurrentBlock(exitBlock)
	return nil
}

func (l *Lowerer) lowerFor(fs *funcState, s *ast.ForStmt) error {
	fs.pushScope(sema.NewScope(fs.currentScope().sema))

	if s.Init != nil {
		if err := l.lowerStmt(fs, s.Init); err != nil {
			fs.popScope()
			return err
		}
	}

	headerBlock := fs.b.NewBlock("for.header")
	bodyBlock := fs.b.NewBlock("for.body")
	latchBlock := fs.b.NewBlock("for.latch")
	exitBlock := fs.b.NewBlock("for.exit")

	fs.b.Goto(headerBlock)
	fs.b.SetCurrentBlock(headerBlock)
	if s.Cond != nil {
		cond, err := l.lowerExpr(fs, s.Cond)
		if err != nil {
			fs.popScope()
			return err
		}
		fs.b.Branch(cond, bodyBlock, exitBlock)
	} else {
		fs.b.Goto(bodyBlock)
	}

	fs.b.SetCurrentBlock(bodyBlock)
	fs.loops = append(fs.loops, &loopContext{continueTarget: latchBlock, breakTarget: exitBlock, scopeDepth: len(fs.scopes)})
	if err := l.lowerBlock(fs, s.Body); err != nil {
		return err
	}
	fs.loops = fs.loops[:len(fs.loops)-1]
	if fs.b.CurrentBlock().Terminator() == nil {
		fs.b.Goto(latchBlock)
	}

	fs.b.SetCurrentBlock(latchBlock)
	if s.Post != nil {
		if err := l.lowerStmt(fs, s.Post); err != nil {
			return err
		}
	}
	if fs.b.CurrentBlock().Terminator() == nil {
		fs.b.Goto(headerBlock)
	}

	fs.b.SetCurrentBlock(exitBlock)
	if fs.b.CurrentBlock().Terminator() == nil {
		fs.emitCleanupsFrom(len(fs.scopes) - 1)
	}
	fs.popScope()
	return nil
}
