package alias

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quorlang/quorc/pkg/types"
)

func TestRegisterModuleIsIdempotent(t *testing.T) {
	m := NewManager()
	a := m.RegisterModule("/src/main.quor")
	b := m.RegisterModule("/src/main.quor")
	if a != b {
		t.Fatalf("RegisterModule should return the same Module on repeat registration")
	}
	if a.ID != 0 {
		t.Fatalf("first module id = %d, want 0", a.ID)
	}
	c := m.RegisterModule("/src/util.quor")
	if c.ID != 1 {
		t.Fatalf("second distinct module id = %d, want 1", c.ID)
	}
}

func TestResolveForLookupUnqualified(t *testing.T) {
	m := NewManager()
	mod := m.RegisterModule("/src/main.quor")
	mod.Symbols.Functions["add.0"] = FuncSig{Return: types.Int()}

	sym, qualified, ok := m.ResolveForLookup("add", mod)
	if !ok {
		t.Fatal("expected resolution to succeed")
	}
	if qualified != "add.0" {
		t.Fatalf("qualified name = %q, want add.0", qualified)
	}
	if _, found := sym.LookupFunc("add.0"); !found {
		t.Fatal("expected add.0 to be registered in resolved symbols")
	}
}

func TestResolveForLookupAliased(t *testing.T) {
	m := NewManager()
	main := m.RegisterModule("/src/main.quor")
	util := m.RegisterModule("/src/util.quor")
	util.Symbols.Functions["helper.1"] = FuncSig{Return: types.Void()}
	main.Aliases["util"] = "/src/util.quor"

	sym, qualified, ok := m.ResolveForLookup("util::helper", main)
	if !ok {
		t.Fatal("expected aliased resolution to succeed")
	}
	if qualified != "helper.1" {
		t.Fatalf("qualified name = %q, want helper.1", qualified)
	}
	if _, found := sym.LookupFunc("helper.1"); !found {
		t.Fatal("expected helper.1 to resolve into util's symbols")
	}
}

func TestResolveForLookupUnknownAlias(t *testing.T) {
	m := NewManager()
	main := m.RegisterModule("/src/main.quor")
	if _, _, ok := m.ResolveForLookup("missing::thing", main); ok {
		t.Fatal("expected resolution through an unregistered alias to fail")
	}
}

func TestResolveImportPathStdlib(t *testing.T) {
	t.Setenv(StdlibRootEnv, "/opt/quorc-lib")
	got, err := ResolveImportPath("io!", "/src/main.quor")
	if err != nil {
		t.Fatalf("ResolveImportPath: %v", err)
	}
	want, _ := filepath.Abs("/opt/quorc-lib/io")
	if got != want {
		t.Fatalf("resolved = %q, want %q", got, want)
	}
}

func TestResolveImportPathRelative(t *testing.T) {
	dir := t.TempDir()
	current := filepath.Join(dir, "main.quor")
	target := filepath.Join(dir, "util.quor")
	if err := os.WriteFile(target, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveImportPath("util.quor", current)
	if err != nil {
		t.Fatalf("ResolveImportPath: %v", err)
	}
	want, _ := filepath.EvalSymlinks(target)
	if got != want {
		t.Fatalf("resolved = %q, want %q", got, want)
	}
}

func TestResolveImportPathDefaultStdlibDir(t *testing.T) {
	os.Unsetenv(StdlibRootEnv)
	got, err := ResolveImportPath("io!", "/src/main.quor")
	if err != nil {
		t.Fatalf("ResolveImportPath: %v", err)
	}
	want, _ := filepath.Abs(filepath.Join(DefaultStdlibDir, "io"))
	if got != want {
		t.Fatalf("resolved = %q, want %q", got, want)
	}
}
