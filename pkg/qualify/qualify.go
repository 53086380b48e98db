// Package qualify implements spec §4.1's two-pass symbol qualification:
// pass one walks a module's top-level declarations and registers each
// one's qualified name ("base.<module_id>") with the alias Manager; pass
// two walks every statement body with a lexical scope stack and rewrites
// references to structs, functions, and globals to their qualified form
// while leaving local names untouched.
package qualify

import (
	"fmt"

	"github.com/quorlang/quorc/pkg/alias"
	"github.com/quorlang/quorc/pkg/ast"
	"github.com/quorlang/quorc/pkg/types"
)

// scope is one lexical level of local bindings (parameters, let
// declarations, loop induction variables). Locals are never qualified.
type scope struct {
	names map[string]bool
}

type scopeStack struct {
	frames []scope
}

func newScopeStack() *scopeStack {
	return &scopeStack{frames: []scope{{names: map[string]bool{}}}}
}

func (s *scopeStack) push() {
	s.frames = append(s.frames, scope{names: map[string]bool{}})
}

func (s *scopeStack) pop() {
	s.frames = s.frames[:len(s.frames)-1]
}

func (s *scopeStack) declare(name string) {
	s.frames[len(s.frames)-1].names[name] = true
}

func (s *scopeStack) isLocal(name string) bool {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].names[name] {
			return true
		}
	}
	return false
}

// Qualifier runs both passes of symbol qualification for a single module
// against the shared alias.Manager.
type Qualifier struct {
	Manager *alias.Manager
}

func NewQualifier(m *alias.Manager) *Qualifier {
	return &Qualifier{Manager: m}
}

// Run performs pass 1 (declare) then pass 2 (resolve) over prog, returning
// a new, fully qualified ast.Program. mod must already be registered with
// the Manager via RegisterModule.
func (q *Qualifier) Run(prog *ast.Program, mod *alias.Module) (*ast.Program, error) {
	stmts := make([]ast.Stmt, len(prog.Stmts))
	copy(stmts, prog.Stmts)

	if err := q.declarePass(stmts, mod); err != nil {
		return nil, err
	}
	qualified, err := q.resolvePass(stmts, mod)
	if err != nil {
		return nil, err
	}
	return &ast.Program{File: prog.File, Stmts: qualified}, nil
}

// declarePass is Pass 1: it registers every top-level symbol's qualified
// name and import alias with the module, and rewrites the declaration
// node's own Name in place.
func (q *Qualifier) declarePass(stmts []ast.Stmt, mod *alias.Module) error {
	for i, s := range stmts {
		switch st := s.(type) {
		case ast.FunDecl:
			qname := alias.Qualify(st.Name, mod.ID)
			params := make([]types.Type, len(st.Params))
			for j, p := range st.Params {
				params[j] = p.Type
			}
			mod.Symbols.Functions[qname] = alias.FuncSig{
				Params:     params,
				Return:     st.ReturnType,
				Attributes: st.Attributes,
			}
			st.Name = qname
			stmts[i] = st
		case ast.StructDecl:
			qname := alias.Qualify(st.Name, mod.ID)
			mod.Symbols.Structs[qname] = st.Union
			mod.Symbols.StructFields[qname] = st.Fields
			st.Name = qname
			stmts[i] = st
		case ast.VarDecl:
			qname := alias.Qualify(st.Name, mod.ID)
			mod.Symbols.Globals[qname] = st.VarType
			st.Name = qname
			stmts[i] = st
		case ast.AtDecl:
			if err := q.declareAt(st, mod); err != nil {
				return err
			}
			stmts[i] = st
		}
	}
	return nil
}

func (q *Qualifier) declareAt(st ast.AtDecl, mod *alias.Module) error {
	switch st.Decl {
	case "import":
		if st.Name == nil {
			return fmt.Errorf("@import with no path in %s", mod.File)
		}
		canonical, err := alias.ResolveImportPath(*st.Name, mod.File)
		if err != nil {
			return fmt.Errorf("@import %q: %w", *st.Name, err)
		}
		q.Manager.RegisterModule(canonical)
		aliasName := canonical
		if st.Alias != nil {
			aliasName = *st.Alias
		}
		mod.Aliases[aliasName] = canonical
	case "extern", "const":
		if st.Name != nil {
			qname := alias.Qualify(*st.Name, mod.ID)
			ty := types.Unknown()
			if st.Value != nil {
				ty = st.Value.Type()
			}
			mod.Symbols.Globals[qname] = ty
		}
	case "cfg":
		if err := q.declarePass(st.Body, mod); err != nil {
			return err
		}
	case "asm":
		// inline assembly blocks declare nothing.
	}
	return nil
}

// resolvePass is Pass 2: it walks every statement body with a lexical
// scope stack, qualifying references that resolve to module symbols and
// leaving local names untouched.
func (q *Qualifier) resolvePass(stmts []ast.Stmt, mod *alias.Module) ([]ast.Stmt, error) {
	scopes := newScopeStack()
	out := make([]ast.Stmt, len(stmts))
	for i, s := range stmts {
		rewritten, err := q.rewriteStmt(s, mod, scopes)
		if err != nil {
			return nil, err
		}
		out[i] = rewritten
	}
	return out, nil
}

func (q *Qualifier) rewriteStmts(stmts []ast.Stmt, mod *alias.Module, sc *scopeStack) ([]ast.Stmt, error) {
	out := make([]ast.Stmt, len(stmts))
	for i, s := range stmts {
		r, err := q.rewriteStmt(s, mod, sc)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func (q *Qualifier) rewriteStmt(s ast.Stmt, mod *alias.Module, sc *scopeStack) (ast.Stmt, error) {
	var err error
	switch st := s.(type) {
	case ast.FunDecl:
		sc.push()
		for _, p := range st.Params {
			sc.declare(p.Name)
		}
		st.Body, err = q.rewriteStmts(st.Body, mod, sc)
		sc.pop()
		return st, err
	case ast.StructDecl:
		return st, nil
	case ast.AtDecl:
		if st.Decl == "cfg" {
			st.Body, err = q.rewriteStmts(st.Body, mod, sc)
		}
		return st, err
	case ast.VarDecl:
		if st.Value != nil {
			st.Value, err = q.rewriteExpr(st.Value, mod, sc)
		}
		if err != nil {
			return st, err
		}
		// A VarDecl here is a local let-binding, or a top-level global
		// whose Name pass 1 already qualified; either way, declare it in
		// the current scope.
		sc.declare(st.Name)
		return st, nil
	case ast.ExprStmt:
		st.Expr, err = q.rewriteExpr(st.Expr, mod, sc)
		return st, err
	case ast.ReturnStmt:
		if st.Value != nil {
			st.Value, err = q.rewriteExpr(st.Value, mod, sc)
		}
		return st, err
	case ast.BreakStmt, ast.ContinueStmt:
		return st, nil
	case ast.IfStmt:
		if st.Cond, err = q.rewriteExpr(st.Cond, mod, sc); err != nil {
			return st, err
		}
		sc.push()
		st.Then, err = q.rewriteStmt(st.Then, mod, sc)
		sc.pop()
		if err != nil {
			return st, err
		}
		if st.Else != nil {
			sc.push()
			st.Else, err = q.rewriteStmt(st.Else, mod, sc)
			sc.pop()
		}
		return st, err
	case ast.WhileStmt:
		if st.Cond, err = q.rewriteExpr(st.Cond, mod, sc); err != nil {
			return st, err
		}
		sc.push()
		st.Body, err = q.rewriteStmt(st.Body, mod, sc)
		sc.pop()
		return st, err
	case ast.ForStmt:
		sc.push()
		if st.Init != nil {
			if st.Init, err = q.rewriteStmt(st.Init, mod, sc); err != nil {
				sc.pop()
				return st, err
			}
		}
		if st.Cond != nil {
			if st.Cond, err = q.rewriteExpr(st.Cond, mod, sc); err != nil {
				sc.pop()
				return st, err
			}
		}
		if st.Update != nil {
			if st.Update, err = q.rewriteExpr(st.Update, mod, sc); err != nil {
				sc.pop()
				return st, err
			}
		}
		st.Body, err = q.rewriteStmt(st.Body, mod, sc)
		sc.pop()
		return st, err
	case ast.BlockStmt:
		sc.push()
		st.Stmts, err = q.rewriteStmts(st.Stmts, mod, sc)
		sc.pop()
		return st, err
	default:
		return s, fmt.Errorf("qualify: unhandled statement %T", s)
	}
}

func (q *Qualifier) rewriteExpr(e ast.Expr, mod *alias.Module, sc *scopeStack) (ast.Expr, error) {
	if e == nil {
		return nil, nil
	}
	var err error
	switch x := e.(type) {
	case ast.IntLit, ast.LongLit, ast.FloatLit, ast.BoolLit, ast.CharLit, ast.StringLit:
		return e, nil
	case ast.Var:
		if sc.isLocal(x.Name) {
			return x, nil
		}
		qname, ok := q.resolveName(x.Name, mod)
		if ok {
			x.Name = qname
		}
		return x, nil
	case ast.Binary:
		if x.Left, err = q.rewriteExpr(x.Left, mod, sc); err != nil {
			return x, err
		}
		x.Right, err = q.rewriteExpr(x.Right, mod, sc)
		return x, err
	case ast.Unary:
		x.Expr, err = q.rewriteExpr(x.Expr, mod, sc)
		return x, err
	case ast.Call:
		if !sc.isLocal(x.Name) {
			if qname, ok := q.resolveName(x.Name, mod); ok {
				x.Name = qname
			}
		}
		for i, a := range x.Args {
			if x.Args[i], err = q.rewriteExpr(a, mod, sc); err != nil {
				return x, err
			}
		}
		return x, nil
	case ast.Cast:
		x.Expr, err = q.rewriteExpr(x.Expr, mod, sc)
		return x, err
	case ast.Assign:
		if !sc.isLocal(x.Name) {
			if qname, ok := q.resolveName(x.Name, mod); ok {
				x.Name = qname
			}
		}
		x.Value, err = q.rewriteExpr(x.Value, mod, sc)
		return x, err
	case ast.CompoundAssign:
		if !sc.isLocal(x.Name) {
			if qname, ok := q.resolveName(x.Name, mod); ok {
				x.Name = qname
			}
		}
		x.Value, err = q.rewriteExpr(x.Value, mod, sc)
		return x, err
	case ast.PreIncrement, ast.PostIncrement, ast.PreDecrement, ast.PostDecrement:
		return x, nil
	case ast.StructInit:
		if qname, ok := q.resolveName(x.Name, mod); ok {
			x.Name = qname
		}
		for i, f := range x.Fields {
			if x.Fields[i].Value, err = q.rewriteExpr(f.Value, mod, sc); err != nil {
				return x, err
			}
		}
		return x, nil
	case ast.InstanceVar:
		if !sc.isLocal(x.Var) {
			if qname, ok := q.resolveName(x.Var, mod); ok {
				x.Var = qname
			}
		}
		return x, nil
	case ast.FieldAssign:
		x.Value, err = q.rewriteExpr(x.Value, mod, sc)
		return x, err
	case ast.ArrayLit:
		for i, el := range x.Elems {
			if x.Elems[i], err = q.rewriteExpr(el, mod, sc); err != nil {
				return x, err
			}
		}
		return x, nil
	case ast.ArrayAccess:
		if x.Array, err = q.rewriteExpr(x.Array, mod, sc); err != nil {
			return x, err
		}
		x.Index, err = q.rewriteExpr(x.Index, mod, sc)
		return x, err
	case ast.IndexAssign:
		if x.Array, err = q.rewriteExpr(x.Array, mod, sc); err != nil {
			return x, err
		}
		if x.Index, err = q.rewriteExpr(x.Index, mod, sc); err != nil {
			return x, err
		}
		x.Value, err = q.rewriteExpr(x.Value, mod, sc)
		return x, err
	case ast.AddressOf:
		x.Expr, err = q.rewriteExpr(x.Expr, mod, sc)
		return x, err
	default:
		return e, fmt.Errorf("qualify: unhandled expression %T", e)
	}
}

// resolveName asks the alias Manager to qualify a possibly-aliased
// reference. It reports ok == false when the name cannot be resolved
// (an undeclared global, struct, or function), leaving the caller free
// to pass the bare name through to a later diagnostic stage.
func (q *Qualifier) resolveName(name string, mod *alias.Module) (string, bool) {
	_, qualified, ok := q.Manager.ResolveForLookup(name, mod)
	if !ok {
		return name, false
	}
	return qualified, true
}
