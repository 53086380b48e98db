package main

import (
	"testing"

	"github.com/quorlang/quorc/pkg/ast"
	"gopkg.in/yaml.v3"
)

func TestBuildStmtsDecodesFunction(t *testing.T) {
	var fx FileFixture
	src := `
stmts:
  - kind: fun
    name: main
    return_type: {kind: int}
    body:
      - kind: return
        value: {kind: int, int: 7}
`
	if err := yaml.Unmarshal([]byte(src), &fx); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	stmts, err := buildStmts(fx.Stmts)
	if err != nil {
		t.Fatalf("buildStmts: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(stmts))
	}
	fn, ok := stmts[0].(ast.FunDecl)
	if !ok {
		t.Fatalf("expected FunDecl, got %T", stmts[0])
	}
	if fn.Name != "main" {
		t.Errorf("expected name main, got %q", fn.Name)
	}
	ret, ok := fn.Body[0].(ast.ReturnStmt)
	if !ok {
		t.Fatalf("expected ReturnStmt, got %T", fn.Body[0])
	}
	lit, ok := ret.Value.(ast.IntLit)
	if !ok {
		t.Fatalf("expected IntLit, got %T", ret.Value)
	}
	if lit.Value != 7 {
		t.Errorf("expected 7, got %d", lit.Value)
	}
}

func TestBuildStmtUnknownKindErrors(t *testing.T) {
	_, err := buildStmt(StmtDTO{Kind: "bogus"})
	if err == nil {
		t.Fatal("expected an error for an unknown statement kind")
	}
}

func TestBuildExprUnknownKindErrors(t *testing.T) {
	_, err := buildExpr(&ExprDTO{Kind: "bogus"})
	if err == nil {
		t.Fatal("expected an error for an unknown expression kind")
	}
}

func TestNormalizeFlagsRewritesSingleDash(t *testing.T) {
	got := normalizeFlags([]string{"-dmir", "file.yaml", "-dlir"})
	want := []string{"--dmir", "file.yaml", "--dlir"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestDefaultTargetNameIsKnownToTarget(t *testing.T) {
	name := defaultTargetName()
	if name != "arm64" && name != "x86-64" {
		t.Fatalf("unexpected default target name %q", name)
	}
}
