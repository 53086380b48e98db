package main

// Fixture decodes the YAML shape the (out-of-scope) lexer/parser/type
// checker would otherwise hand the Alias Manager: a typed, not-yet-
// qualified ast.Program per source file. Real source syntax, its lexer,
// and its parser are external collaborators (spec §1); this file is the
// stand-in that satisfies their documented interface directly in terms
// of pkg/ast, so the driver below can still be exercised end to end.

import (
	"fmt"

	"github.com/quorlang/quorc/pkg/ast"
	"github.com/quorlang/quorc/pkg/types"
)

// TypeDTO is a self-contained type literal: struct/union fields embed
// their own TypeDTO rather than referencing a name table, matching how
// types.Type itself carries its fields inline.
type TypeDTO struct {
	Kind   string     `yaml:"kind"`
	Elem   *TypeDTO   `yaml:"elem,omitempty"`
	Len    *int       `yaml:"len,omitempty"`
	Name   string     `yaml:"name,omitempty"`
	Fields []FieldDTO `yaml:"fields,omitempty"`
}

type FieldDTO struct {
	Name string  `yaml:"name"`
	Type TypeDTO `yaml:"type"`
}

func buildFields(fs []FieldDTO) []types.Field {
	out := make([]types.Field, len(fs))
	for i, f := range fs {
		out[i] = types.Field{Name: f.Name, Type: f.Type.build()}
	}
	return out
}

func (t *TypeDTO) build() types.Type {
	if t == nil {
		return types.Unknown()
	}
	switch t.Kind {
	case "int":
		return types.Int()
	case "long":
		return types.Long()
	case "float":
		return types.Float()
	case "char":
		return types.Char()
	case "bool":
		return types.Bool()
	case "void":
		return types.Void()
	case "pointer":
		return types.Pointer(t.Elem.build())
	case "array":
		elem := t.Elem.build()
		return types.Array(elem, t.Len)
	case "struct":
		return types.Struct(t.Name, buildFields(t.Fields), false)
	case "union":
		return types.Struct(t.Name, buildFields(t.Fields), true)
	default:
		return types.Unknown()
	}
}

// ParamDTO is one function parameter.
type ParamDTO struct {
	Name string  `yaml:"name"`
	Type TypeDTO `yaml:"type"`
}

// ExprDTO is a flat, kind-tagged expression node covering every ast.Expr
// variant. Only the fields relevant to Kind are populated.
type ExprDTO struct {
	Kind string `yaml:"kind"`

	IntValue    *int32   `yaml:"int,omitempty"`
	LongValue   *int64   `yaml:"long,omitempty"`
	FloatValue  *float64 `yaml:"float,omitempty"`
	BoolValue   *bool    `yaml:"bool,omitempty"`
	CharValue   *string  `yaml:"char,omitempty"`
	StringValue *string  `yaml:"string,omitempty"`

	Name string   `yaml:"name,omitempty"`
	Type *TypeDTO `yaml:"type,omitempty"`

	Op    string   `yaml:"op,omitempty"`
	Left  *ExprDTO `yaml:"left,omitempty"`
	Right *ExprDTO `yaml:"right,omitempty"`
	Expr  *ExprDTO `yaml:"expr,omitempty"`

	Args []ExprDTO `yaml:"args,omitempty"`

	TargetType *TypeDTO `yaml:"target_type,omitempty"`

	Value *ExprDTO `yaml:"value,omitempty"`

	Field  string             `yaml:"field,omitempty"`
	Fields []StructInitFldDTO `yaml:"fields,omitempty"`

	Elems []ExprDTO `yaml:"elems,omitempty"`
	Array *ExprDTO  `yaml:"array,omitempty"`
	Index *ExprDTO  `yaml:"index,omitempty"`
}

type StructInitFldDTO struct {
	Name  string  `yaml:"name"`
	Value ExprDTO `yaml:"value"`
}

func buildExpr(d *ExprDTO) (ast.Expr, error) {
	if d == nil {
		return nil, nil
	}
	switch d.Kind {
	case "int":
		v := int32(0)
		if d.IntValue != nil {
			v = *d.IntValue
		}
		ty := types.Unknown()
		if d.Type != nil {
			ty = d.Type.build()
		}
		return ast.IntLit{Value: v, Ty: ty}, nil
	case "long":
		v := int64(0)
		if d.LongValue != nil {
			v = *d.LongValue
		}
		return ast.LongLit{Value: v}, nil
	case "float":
		v := 0.0
		if d.FloatValue != nil {
			v = *d.FloatValue
		}
		ty := types.Unknown()
		if d.Type != nil {
			ty = d.Type.build()
		}
		return ast.FloatLit{Value: v, Ty: ty}, nil
	case "bool":
		v := false
		if d.BoolValue != nil {
			v = *d.BoolValue
		}
		return ast.BoolLit{Value: v}, nil
	case "char":
		var v byte
		if d.CharValue != nil && len(*d.CharValue) > 0 {
			v = (*d.CharValue)[0]
		}
		return ast.CharLit{Value: v}, nil
	case "string":
		v := ""
		if d.StringValue != nil {
			v = *d.StringValue
		}
		return ast.StringLit{Value: v}, nil
	case "var":
		ty := types.Unknown()
		if d.Type != nil {
			ty = d.Type.build()
		}
		return ast.Var{Name: d.Name, Ty: ty}, nil
	case "binary":
		left, err := buildExpr(d.Left)
		if err != nil {
			return nil, err
		}
		right, err := buildExpr(d.Right)
		if err != nil {
			return nil, err
		}
		ty := types.Int()
		if d.Type != nil {
			ty = d.Type.build()
		}
		return ast.Binary{Op: ast.BinOp(d.Op), Left: left, Right: right, ResultType: ty}, nil
	case "unary":
		e, err := buildExpr(d.Expr)
		if err != nil {
			return nil, err
		}
		ty := types.Int()
		if d.Type != nil {
			ty = d.Type.build()
		}
		return ast.Unary{Op: ast.UnOp(d.Op), Expr: e, ResultType: ty}, nil
	case "call":
		args := make([]ast.Expr, len(d.Args))
		for i, a := range d.Args {
			ae, err := buildExpr(&a)
			if err != nil {
				return nil, err
			}
			args[i] = ae
		}
		ret := types.Void()
		if d.Type != nil {
			ret = d.Type.build()
		}
		return ast.Call{Name: d.Name, Args: args, ReturnType: ret}, nil
	case "cast":
		e, err := buildExpr(d.Expr)
		if err != nil {
			return nil, err
		}
		return ast.Cast{Expr: e, TargetType: d.TargetType.build()}, nil
	case "assign":
		v, err := buildExpr(d.Value)
		if err != nil {
			return nil, err
		}
		return ast.Assign{Name: d.Name, Value: v}, nil
	case "compound_assign":
		v, err := buildExpr(d.Value)
		if err != nil {
			return nil, err
		}
		return ast.CompoundAssign{Name: d.Name, Op: ast.BinOp(d.Op), Value: v}, nil
	case "pre_inc":
		return ast.PreIncrement{Name: d.Name}, nil
	case "post_inc":
		return ast.PostIncrement{Name: d.Name}, nil
	case "pre_dec":
		return ast.PreDecrement{Name: d.Name}, nil
	case "post_dec":
		return ast.PostDecrement{Name: d.Name}, nil
	case "struct_init":
		fields := make([]ast.StructInitField, len(d.Fields))
		for i, f := range d.Fields {
			v, err := buildExpr(&f.Value)
			if err != nil {
				return nil, err
			}
			fields[i] = ast.StructInitField{Name: f.Name, Value: v}
		}
		return ast.StructInit{Name: d.Name, Fields: fields, Ty: d.Type.build()}, nil
	case "instance_var":
		return ast.InstanceVar{Var: d.Name, Field: d.Field, Ty: d.Type.build()}, nil
	case "field_assign":
		v, err := buildExpr(d.Value)
		if err != nil {
			return nil, err
		}
		return ast.FieldAssign{ClassName: d.Name, Field: d.Field, Value: v}, nil
	case "array_lit":
		elems := make([]ast.Expr, len(d.Elems))
		for i, e := range d.Elems {
			ee, err := buildExpr(&e)
			if err != nil {
				return nil, err
			}
			elems[i] = ee
		}
		return ast.ArrayLit{Elems: elems, Ty: d.Type.build()}, nil
	case "array_access":
		arr, err := buildExpr(d.Array)
		if err != nil {
			return nil, err
		}
		idx, err := buildExpr(d.Index)
		if err != nil {
			return nil, err
		}
		return ast.ArrayAccess{Array: arr, Index: idx, Ty: d.Type.build()}, nil
	case "index_assign":
		arr, err := buildExpr(d.Array)
		if err != nil {
			return nil, err
		}
		idx, err := buildExpr(d.Index)
		if err != nil {
			return nil, err
		}
		v, err := buildExpr(d.Value)
		if err != nil {
			return nil, err
		}
		return ast.IndexAssign{Array: arr, Index: idx, Value: v}, nil
	case "address_of":
		e, err := buildExpr(d.Expr)
		if err != nil {
			return nil, err
		}
		return ast.AddressOf{Expr: e, Ty: d.Type.build()}, nil
	default:
		return nil, fmt.Errorf("fixture: unknown expression kind %q", d.Kind)
	}
}

// StmtDTO is a flat, kind-tagged statement node covering every ast.Stmt
// variant.
type StmtDTO struct {
	Kind string `yaml:"kind"`

	Name       string     `yaml:"name,omitempty"`
	Params     []ParamDTO `yaml:"params,omitempty"`
	ReturnType *TypeDTO   `yaml:"return_type,omitempty"`
	Body       []StmtDTO  `yaml:"body,omitempty"`
	Attributes []string   `yaml:"attributes,omitempty"`

	Fields   []FieldDTO `yaml:"fields,omitempty"`
	Union    bool       `yaml:"union,omitempty"`
	Generics []string   `yaml:"generics,omitempty"`

	Decl     string   `yaml:"decl,omitempty"`
	DeclName *string  `yaml:"decl_name,omitempty"`
	Value    *ExprDTO `yaml:"value,omitempty"`
	Content  string   `yaml:"content,omitempty"`
	Alias    *string  `yaml:"alias,omitempty"`

	VarType *TypeDTO `yaml:"var_type,omitempty"`

	Expr *ExprDTO `yaml:"expr,omitempty"`

	Cond   *ExprDTO `yaml:"cond,omitempty"`
	Then   *StmtDTO `yaml:"then,omitempty"`
	Else   *StmtDTO `yaml:"else,omitempty"`
	Init   *StmtDTO `yaml:"init,omitempty"`
	Update *ExprDTO `yaml:"update,omitempty"`
	Loop   *StmtDTO `yaml:"loop_body,omitempty"`

	Stmts []StmtDTO `yaml:"stmts,omitempty"`
}

func buildStmt(d StmtDTO) (ast.Stmt, error) {
	switch d.Kind {
	case "fun":
		params := make([]ast.Param, len(d.Params))
		for i, p := range d.Params {
			params[i] = ast.Param{Name: p.Name, Type: p.Type.build()}
		}
		body, err := buildStmts(d.Body)
		if err != nil {
			return nil, err
		}
		ret := types.Void()
		if d.ReturnType != nil {
			ret = d.ReturnType.build()
		}
		return ast.FunDecl{Name: d.Name, Params: params, ReturnType: ret, Body: body, Attributes: d.Attributes}, nil
	case "struct":
		return ast.StructDecl{Name: d.Name, Fields: buildFields(d.Fields), Union: d.Union, Generics: d.Generics}, nil
	case "at":
		body, err := buildStmts(d.Body)
		if err != nil {
			return nil, err
		}
		val, err := buildExpr(d.Value)
		if err != nil {
			return nil, err
		}
		return ast.AtDecl{Decl: d.Decl, Name: d.DeclName, Value: val, Content: d.Content, Alias: d.Alias, Body: body}, nil
	case "var":
		val, err := buildExpr(d.Value)
		if err != nil {
			return nil, err
		}
		vt := types.Unknown()
		if d.VarType != nil {
			vt = d.VarType.build()
		}
		return ast.VarDecl{Name: d.Name, VarType: vt, Value: val}, nil
	case "expr":
		e, err := buildExpr(d.Expr)
		if err != nil {
			return nil, err
		}
		return ast.ExprStmt{Expr: e}, nil
	case "return":
		v, err := buildExpr(d.Value)
		if err != nil {
			return nil, err
		}
		return ast.ReturnStmt{Value: v}, nil
	case "break":
		return ast.BreakStmt{}, nil
	case "continue":
		return ast.ContinueStmt{}, nil
	case "if":
		cond, err := buildExpr(d.Cond)
		if err != nil {
			return nil, err
		}
		var then, els ast.Stmt
		if d.Then != nil {
			then, err = buildStmt(*d.Then)
			if err != nil {
				return nil, err
			}
		}
		if d.Else != nil {
			els, err = buildStmt(*d.Else)
			if err != nil {
				return nil, err
			}
		}
		return ast.IfStmt{Cond: cond, Then: then, Else: els}, nil
	case "while":
		cond, err := buildExpr(d.Cond)
		if err != nil {
			return nil, err
		}
		body, err := buildStmt(*d.Loop)
		if err != nil {
			return nil, err
		}
		return ast.WhileStmt{Cond: cond, Body: body}, nil
	case "for":
		var init ast.Stmt
		var err error
		if d.Init != nil {
			init, err = buildStmt(*d.Init)
			if err != nil {
				return nil, err
			}
		}
		cond, err := buildExpr(d.Cond)
		if err != nil {
			return nil, err
		}
		update, err := buildExpr(d.Update)
		if err != nil {
			return nil, err
		}
		body, err := buildStmt(*d.Loop)
		if err != nil {
			return nil, err
		}
		return ast.ForStmt{Init: init, Cond: cond, Update: update, Body: body}, nil
	case "block":
		stmts, err := buildStmts(d.Stmts)
		if err != nil {
			return nil, err
		}
		return ast.BlockStmt{Stmts: stmts}, nil
	default:
		return nil, fmt.Errorf("fixture: unknown statement kind %q", d.Kind)
	}
}

func buildStmts(ds []StmtDTO) ([]ast.Stmt, error) {
	out := make([]ast.Stmt, len(ds))
	for i, d := range ds {
		s, err := buildStmt(d)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// FileFixture is the on-disk YAML shape of one translation unit.
type FileFixture struct {
	Stmts []StmtDTO `yaml:"stmts"`
}
