package main

// pipeline drives one compilation: recursively load every module reached
// by @import, qualify each in dependency order, merge the result into a
// single already-qualified ast.Program, then run it through the MIR
// builder, LIR lowering, register allocation, and a target emitter. This
// is the part of the driver spec §4.1/§4.2/§4.3/§4.4 describe; the YAML
// decoding in fixture.go stands in for the out-of-scope lexer/parser/
// type checker that would normally hand the Alias Manager its input.
import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/quorlang/quorc/pkg/alias"
	"github.com/quorlang/quorc/pkg/ast"
	"github.com/quorlang/quorc/pkg/codegen"
	"github.com/quorlang/quorc/pkg/lir"
	"github.com/quorlang/quorc/pkg/lirgen"
	"github.com/quorlang/quorc/pkg/mir"
	"github.com/quorlang/quorc/pkg/mirgen"
	"github.com/quorlang/quorc/pkg/qualify"
	"github.com/quorlang/quorc/pkg/target"
	"gopkg.in/yaml.v3"
)

// loader recursively reads and qualifies every module reachable from an
// entry file, depth-first through @import, so an imported module's
// functions and structs are registered before the importer's reference
// pass needs to resolve them.
type loader struct {
	mgr      *alias.Manager
	loaded   map[alias.CanonicalFile]*ast.Program
	visiting map[alias.CanonicalFile]bool
	order    []alias.CanonicalFile
}

func newLoader() *loader {
	return &loader{
		mgr:      alias.NewManager(),
		loaded:   make(map[alias.CanonicalFile]*ast.Program),
		visiting: make(map[alias.CanonicalFile]bool),
	}
}

func (l *loader) load(file string) error {
	canonical, err := filepath.Abs(file)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", file, err)
	}
	canonical, err = filepath.EvalSymlinks(canonical)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", file, err)
	}
	if _, ok := l.loaded[canonical]; ok {
		return nil
	}
	if l.visiting[canonical] {
		return nil // import cycle: best-effort, already being loaded by an ancestor frame
	}
	l.visiting[canonical] = true
	defer delete(l.visiting, canonical)

	raw, err := os.ReadFile(canonical)
	if err != nil {
		return fmt.Errorf("reading %q: %w", canonical, err)
	}
	var fx FileFixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return fmt.Errorf("decoding %q: %w", canonical, err)
	}
	stmts, err := buildStmts(fx.Stmts)
	if err != nil {
		return fmt.Errorf("%q: %w", canonical, err)
	}
	prog := &ast.Program{File: canonical, Stmts: stmts}
	mod := l.mgr.RegisterModule(canonical)

	for _, s := range stmts {
		at, ok := s.(ast.AtDecl)
		if !ok || at.Decl != "import" || at.Name == nil {
			continue
		}
		imported, err := alias.ResolveImportPath(*at.Name, canonical)
		if err != nil {
			return fmt.Errorf("%q: @import %q: %w", canonical, *at.Name, err)
		}
		if err := l.load(imported); err != nil {
			return err
		}
	}

	qualified, err := qualify.NewQualifier(l.mgr).Run(prog, mod)
	if err != nil {
		return fmt.Errorf("qualifying %q: %w", canonical, err)
	}
	l.loaded[canonical] = qualified
	l.order = append(l.order, canonical)
	return nil
}

// merged concatenates every loaded module's qualified statements in load
// order into the single ast.Program the MIR builder expects: names are
// already globally qualified, so there is no further merge work to do.
func (l *loader) merged() *ast.Program {
	out := &ast.Program{File: l.order[0]}
	for _, file := range l.order {
		out.Stmts = append(out.Stmts, l.loaded[file].Stmts...)
	}
	return out
}

// compileResult carries every intermediate stage's output so the driver
// can dump whichever one a debug flag asked for.
type compileResult struct {
	modules *loader
	merged  *ast.Program
	mirProg *mir.IRProgram
	lirProg *lir.LProgram
	asmText string
}

// compile runs entryFile through every stage up to (and including) the
// chosen target's emitter.
func compile(entryFile string, rf target.RegisterFile, em target.Emitter) (*compileResult, error) {
	l := newLoader()
	if err := l.load(entryFile); err != nil {
		return nil, err
	}
	merged := l.merged()

	mirProg, err := mirgen.Generate(merged)
	if err != nil {
		return nil, fmt.Errorf("building MIR: %w", err)
	}

	lirProg, err := lirgen.Generate(mirProg)
	if err != nil {
		return nil, fmt.Errorf("lowering LIR: %w", err)
	}

	asmText := codegen.Generate(lirProg, rf, em)

	return &compileResult{modules: l, merged: merged, mirProg: mirProg, lirProg: lirProg, asmText: asmText}, nil
}
