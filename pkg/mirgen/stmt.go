package mirgen

import (
	"fmt"

	"github.com/quorlang/quorc/pkg/ast"
	"github.com/quorlang/quorc/pkg/mir"
)

func (b *Builder) lowerStmt(s ast.Stmt) error {
	switch st := s.(type) {
	case ast.AtDecl:
		if st.Decl == "asm" {
			b.emit(mir.Declaration{Decl: mir.InlineAssemblyDecl{Content: st.Content}})
			return nil
		}
		if st.Decl == "cfg" {
			return b.lowerBlock(st.Body)
		}
		return nil
	case ast.VarDecl:
		return b.emitIntoLocal(st.Name, st.VarType, st.Value)
	case ast.ExprStmt:
		_, _, err := b.lowerExpr(st.Expr)
		return err
	case ast.IfStmt:
		var elseBody []ast.Stmt
		if st.Else != nil {
			elseBody = asBlock(st.Else)
		}
		return b.lowerIf(st.Cond, asBlock(st.Then), elseBody)
	case ast.WhileStmt:
		return b.lowerWhile(st.Cond, asBlock(st.Body))
	case ast.ForStmt:
		return b.lowerFor(st)
	case ast.BlockStmt:
		return b.lowerBlock(st.Stmts)
	case ast.ReturnStmt:
		var value mir.Value
		if st.Value != nil {
			v, _, err := b.lowerExpr(st.Value)
			if err != nil {
				return err
			}
			value = v
		}
		b.setTerminator(b.scope.current, mir.Return{Value: value})
		return nil
	case ast.BreakStmt:
		target := b.scope.topBreak()
		b.setTerminator(b.scope.current, mir.Jump{Block: target})
		return nil
	case ast.ContinueStmt:
		target := b.scope.topContinue()
		b.setTerminator(b.scope.current, mir.Jump{Block: target})
		return nil
	default:
		return fmt.Errorf("mirgen: unhandled statement %T", s)
	}
}

func (b *Builder) lowerBlock(stmts []ast.Stmt) error {
	for _, s := range stmts {
		if _, ok := s.(ast.FunDecl); ok {
			continue // nested function declarations are not part of this language's scope rules
		}
		if _, ok := s.(ast.StructDecl); ok {
			continue
		}
		if err := b.lowerStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func asBlock(s ast.Stmt) []ast.Stmt {
	if blk, ok := s.(ast.BlockStmt); ok {
		return blk.Stmts
	}
	return []ast.Stmt{s}
}

// lowerIf lowers a conditional with the four-block shape: cond, then,
// (optional) else, and a shared continuation block that both arms jump
// to when they fall through.
func (b *Builder) lowerIf(cond ast.Expr, thenBody, elseBody []ast.Stmt) error {
	condBlock := b.newBlock()
	thenBlock := b.newBlock()
	var elseBlock *mir.BlockId
	if elseBody != nil {
		eb := b.newBlock()
		elseBlock = &eb
	}
	continueBlock := b.newBlock()

	value, _, err := b.lowerExpr(cond)
	if err != nil {
		return err
	}

	b.setTerminator(b.scope.current, mir.Jump{Block: condBlock})
	b.setCurrent(condBlock)

	if elseBlock != nil {
		b.setTerminator(b.scope.current, mir.Branch{Cond: value, IfTrue: thenBlock, IfFalse: *elseBlock})
	} else {
		b.setTerminator(b.scope.current, mir.Branch{Cond: value, IfTrue: thenBlock, IfFalse: continueBlock})
	}

	b.setCurrent(thenBlock)
	if err := b.lowerBlock(thenBody); err != nil {
		return err
	}
	if _, ok := b.blocks[b.scope.current].Terminator.(mir.TemporaryNone); ok {
		b.setTerminator(b.scope.current, mir.Jump{Block: continueBlock})
	}

	if elseBlock != nil {
		b.setCurrent(*elseBlock)
		if err := b.lowerBlock(elseBody); err != nil {
			return err
		}
		if _, ok := b.blocks[b.scope.current].Terminator.(mir.TemporaryNone); ok {
			b.setTerminator(b.scope.current, mir.Jump{Block: continueBlock})
		}
	}

	b.setCurrent(continueBlock)
	return nil
}

// lowerWhile lowers to a three-block loop: re-evaluate the condition on
// every iteration, so break targets the after-block and continue targets
// the cond-block.
func (b *Builder) lowerWhile(cond ast.Expr, body []ast.Stmt) error {
	condBlock := b.newBlock()
	bodyBlock := b.newBlock()
	afterBlock := b.newBlock()

	b.setTerminator(b.scope.current, mir.Jump{Block: condBlock})
	b.setCurrent(condBlock)

	value, _, err := b.lowerExpr(cond)
	if err != nil {
		return err
	}
	b.setTerminator(condBlock, mir.Branch{Cond: value, IfTrue: bodyBlock, IfFalse: afterBlock})

	b.scope.pushBreak(afterBlock)
	b.scope.pushContinue(condBlock)

	b.setCurrent(bodyBlock)
	if err := b.lowerBlock(body); err != nil {
		return err
	}

	b.scope.popBreak()
	b.scope.popContinue()

	if _, ok := b.blocks[b.scope.current].Terminator.(mir.TemporaryNone); ok {
		b.setTerminator(b.scope.current, mir.Jump{Block: condBlock})
	}

	b.setCurrent(afterBlock)
	return nil
}

// lowerFor desugars `for (init; cond; update) body` into the same
// cond/body/after loop shape as while, with continue jumping to an
// update block that runs before re-testing the condition.
func (b *Builder) lowerFor(f ast.ForStmt) error {
	if f.Init != nil {
		if err := b.lowerStmt(f.Init); err != nil {
			return err
		}
	}

	condBlock := b.newBlock()
	bodyBlock := b.newBlock()
	updateBlock := b.newBlock()
	afterBlock := b.newBlock()

	b.setTerminator(b.scope.current, mir.Jump{Block: condBlock})
	b.setCurrent(condBlock)

	var condValue mir.Value = mir.Const{Value: 1}
	if f.Cond != nil {
		v, _, err := b.lowerExpr(f.Cond)
		if err != nil {
			return err
		}
		condValue = v
	}
	b.setTerminator(condBlock, mir.Branch{Cond: condValue, IfTrue: bodyBlock, IfFalse: afterBlock})

	b.scope.pushBreak(afterBlock)
	b.scope.pushContinue(updateBlock)

	b.setCurrent(bodyBlock)
	if err := b.lowerBlock(asBlock(f.Body)); err != nil {
		return err
	}

	b.scope.popBreak()
	b.scope.popContinue()

	if _, ok := b.blocks[b.scope.current].Terminator.(mir.TemporaryNone); ok {
		b.setTerminator(b.scope.current, mir.Jump{Block: updateBlock})
	}

	b.setCurrent(updateBlock)
	if f.Update != nil {
		if _, _, err := b.lowerExpr(f.Update); err != nil {
			return err
		}
	}
	b.setTerminator(updateBlock, mir.Jump{Block: condBlock})

	b.setCurrent(afterBlock)
	return nil
}
