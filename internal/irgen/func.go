package irgen

import (
	"fmt"

	"github.com/chrysante/scatha-sub008/internal/ast"
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/sema"
	"github.com/chrysante/scatha-sub008/internal/types"
)

// DefinePhase lowers every non-foreign function body. DeclarePhase must
// have already run so every callee and struct is resolvable.
func (l *Lowerer) DefinePhase(prog *ast.Program) error {
	for _, fd := range prog.Functions {
		if fd.Foreign {
			continue
		}
		fe := l.Table.Functions[fd.Name]
		if err := l.lowerFunction(fe); err != nil {
			return fmt.Errorf("function %s: %w", fd.Name, err)
		}
	}
	return nil
}

func (l *Lowerer) lowerFunction(fe *sema.FunctionEntity) error {
	fn := fe.IR
	b := ir.NewBuilder(l.Ctx, fn)
	entry := fn.AppendBlock("entry")
	b.SetCurrentBlock(entry)

	fs := &funcState{b: b, fn: fn, fe: fe, locals: make(map[*sema.LocalSymbol]ir.Value)}

	isVoid := fe.ReturnType == l.Ctx.Void()
	if !isVoid {
		fs.ret = b.Alloca(fe.ReturnType, "retval")
	}

	top := sema.NewScope(nil)
	fs.pushScope(top)
	for i, p := range fe.Decl.Params {
		sym := top.Define(p.Name, fn.Params[i].Type(), true)
		addr := b.Alloca(fn.Params[i].Type(), p.Name+".addr")
		b.Store(addr, fn.Params[i])
		fs.locals[sym] = addr
	}

	if err := l.lowerBlock(fs, fe.Decl.Body); err != nil {
		return err
	}

	// Fall off the end of the body: for a void function this is a valid
	// implicit return; a value-returning function whose every path
	// already returned leaves this block unreachable, in which case
	// the exit block's wiring below still needs a terminator here.
	if fs.b.CurrentBlock().Terminator() == nil {
		fs.emitCleanupsFrom(0)
		l.jumpToExit(fs)
	}
	fs.popScope()

	if fs.exit != nil {
		b.SetCurrentBlock(fs.exit)
		if isVoid {
			b.Return(nil)
		} else {
			b.Return(b.Load(fs.ret, fe.ReturnType, "ret"))
		}
	}

	return ir.SetupInvariants(fn)
}

// jumpToExit lazily creates the function's shared exit block on first use
// and jumps to it from the current block.
func (l *Lowerer) jumpToExit(fs *funcState) {
	if fs.exit == nil {
		fs.exit = fs.fn.AppendBlock("exit")
	}
	fs.b.Goto(fs.exit)
}

func (l *Lowerer) lowerBlock(fs *funcState, blk *ast.BlockStmt) error {
	sc := sema.NewScope(fs.currentScope().sema)
	fs.pushScope(sc)
	defer func() {
		if fs.b.CurrentBlock().Terminator() == nil {
			fs.emitCleanupsFrom(len(fs.scopes) - 1)
		}
		fs.popScope()
	}()
	for _, s := range blk.Stmts {
		if err := l.lowerStmt(fs, s); err != nil {
			return err
		}
		if fs.b.CurrentBlock().Terminator() != nil {
			break // unreachable code after a return/break/continue
		}
	}
	return nil
}

func (l *Lowerer) lowerStmt(fs *funcState, s ast.Stmt) error {
	if pos := s.Pos(); pos.Line > 0 {
		fs.b.SetSourceLoc(ir.SourceLoc{File: pos.Filename, Line: pos.Line, Col: pos.Column})
	}
	switch v := s.(type) {
	case *ast.ExprStmt:
		_, err := l.lowerExpr(fs, v.X)
		return err
	case *ast.LetStmt:
		return l.lowerLet(fs, v)
	case *ast.AssignStmt:
		return l.lowerAssign(fs, v)
	case *ast.ReturnStmt:
		return l.lowerReturn(fs, v)
	case *ast.IfStmt:
		return l.lowerIf(fs, v)
	case *ast.WhileStmt:
		return l.lowerWhile(fs, v)
	case *ast.DoWhileStmt:
		return l.lowerDoWhile(fs, v)
	case *ast.ForStmt:
		return l.lowerFor(fs, v)
	case *ast.BreakStmt:
		return l.lowerBreak(fs)
	case *ast.ContinueStmt:
		return l.lowerContinue(fs)
	case *ast.BlockStmt:
		return l.lowerBlock(fs, v)
	default:
		return fmt.Errorf("irgen: unsupported statement %T", s)
	}
}

func (l *Lowerer) lowerLet(fs *funcState, s *ast.LetStmt) error {
	val, ty, err := l.lowerExprTyped(fs, s.Value)
	if err != nil {
		return err
	}
	sym := fs.currentScope().sema.Define(s.Name, ty, s.Mutable)
	addr := fs.b.Alloca(ty, s.Name)
	fs.b.Store(addr, val)
	fs.locals[sym] = addr

	if se := l.structEntityOf(ty); se != nil && se.HasLifetime() {
		sc := fs.currentScope()
		sc.cleanups = append(sc.cleanups, cleanupEntry{addr: addr, dtor: se.Destructor})
	}
	return nil
}

func (l *Lowerer) lowerAssign(fs *funcState, s *ast.AssignStmt) error {
	addr, err := l.lowerLValue(fs, s.Target)
	if err != nil {
		return err
	}
	val, err := l.lowerExpr(fs, s.Value)
	if err != nil {
		return err
	}
	fs.b.Store(addr, val)
	return nil
}

func (l *Lowerer) lowerReturn(fs *funcState, s *ast.ReturnStmt) error {
	if s.Value != nil {
		val, err := l.lowerExpr(fs, s.Value)
		if err != nil {
			return err
		}
		fs.b.Store(fs.ret, val)
	}
	fs.emitCleanupsFrom(0)
	l.jumpToExit(fs)
	return nil
}

func (l *Lowerer) lowerBreak(fs *funcState) error {
	lc := fs.currentLoop()
	if lc == nil {
		return fmt.Errorf("irgen: break outside a loop")
	}
	fs.emitCleanupsFrom(lc.scopeDepth)
	fs.b.Goto(lc.breakTarget)
	return nil
}

func (l *Lowerer) lowerContinue(fs *funcState) error {
	lc := fs.currentLoop()
	if lc == nil {
		return fmt.Errorf("irgen: continue outside a loop")
	}
	fs.emitCleanupsFrom(lc.scopeDepth)
	fs.b.Goto(lc.continueTarget)
	return nil
}

// structEntityOf finds the struct entity (if any) whose layout ty was
// declared as, so its lifetime hooks can be looked up by value type alone.
func (l *Lowerer) structEntityOf(ty types.Type) *sema.StructEntity {
	st, ok := ty.(*types.StructType)
	if !ok || st.Name == "" {
		return nil
	}
	return l.Table.Structs[st.Name]
}
