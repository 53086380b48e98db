// Package alias implements the process-wide module registry described in
// spec §4.1: it assigns a dense module id to every source file reached by
// an @import, qualifies every top-level symbol name by its owning
// module, and resolves "alias::name" references back to the module that
// defines them.
package alias

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quorlang/quorc/pkg/types"
)

// CanonicalFile is an absolute source path (symlink-resolved for
// importer-relative imports): the key every module is registered and
// looked up under.
type CanonicalFile = string

// StdlibRootEnv is the environment variable naming the install-time
// standard-library root that `@import <path>!` resolves against.
const StdlibRootEnv = "QUORC_STDLIB_ROOT"

// DefaultStdlibDir is used when StdlibRootEnv is unset.
const DefaultStdlibDir = "lib"

// ResolveImportPath turns an import path written in currentFile into a
// canonical file path. A path ending in '!' resolves against the
// standard-library root and is only made absolute. Every other path
// resolves against the importing file's parent directory, is made
// absolute and has symlinks resolved, matching spec §4.1's "canonicalized
// via filesystem realpath."
func ResolveImportPath(importPath, currentFile string) (CanonicalFile, error) {
	var full string
	if strings.HasSuffix(importPath, "!") {
		trimmed := strings.TrimSuffix(importPath, "!")
		root := os.Getenv(StdlibRootEnv)
		if root == "" {
			root = DefaultStdlibDir
		}
		abs, err := filepath.Abs(filepath.Join(root, trimmed))
		if err != nil {
			return "", fmt.Errorf("resolving import path %q from %q: %w", importPath, currentFile, err)
		}
		return abs, nil
	} else if filepath.IsAbs(importPath) {
		full = importPath
	} else {
		full = filepath.Join(filepath.Dir(currentFile), importPath)
	}

	abs, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("resolving import path %q from %q: %w", importPath, currentFile, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolving import path %q from %q: %w", importPath, currentFile, err)
	}
	return resolved, nil
}

// FuncSig is a function's qualified-type signature as recorded by the
// module it was declared in.
type FuncSig struct {
	Params     []types.Type
	Return     types.Type
	Attributes []string
}

// ModuleSymbols is the symbol table a single module accumulates during
// Pass 1 of symbol qualification (spec §4.1).
type ModuleSymbols struct {
	Structs      map[string]bool // qualified struct name -> is_union
	StructFields map[string][]types.Field
	Functions    map[string]FuncSig
	Globals      map[string]types.Type
}

func newModuleSymbols() ModuleSymbols {
	return ModuleSymbols{
		Structs:      make(map[string]bool),
		StructFields: make(map[string][]types.Field),
		Functions:    make(map[string]FuncSig),
		Globals:      make(map[string]types.Type),
	}
}

func (s *ModuleSymbols) LookupFunc(qualifiedName string) (FuncSig, bool) {
	f, ok := s.Functions[qualifiedName]
	return f, ok
}

func (s *ModuleSymbols) LookupStruct(qualifiedName string) (isUnion bool, ok bool) {
	isUnion, ok = s.Structs[qualifiedName]
	return
}

func (s *ModuleSymbols) LookupStructFields(qualifiedName string) ([]types.Field, bool) {
	f, ok := s.StructFields[qualifiedName]
	return f, ok
}

func (s *ModuleSymbols) LookupGlobal(qualifiedName string) (types.Type, bool) {
	t, ok := s.Globals[qualifiedName]
	return t, ok
}

// Module is one registered source file: its dense id, its symbol table,
// and its local import-alias map (alias -> canonical path of the module
// it names).
type Module struct {
	File    CanonicalFile
	ID      int
	Symbols ModuleSymbols
	Aliases map[string]CanonicalFile
}

// Manager is the process-wide module registry. It is the only stateful
// registry that outlives an individual module's processing (spec §3,
// Lifecycle).
type Manager struct {
	registry map[CanonicalFile]*Module
	ids      map[CanonicalFile]int
	count    int
}

func NewManager() *Manager {
	return &Manager{
		registry: make(map[CanonicalFile]*Module),
		ids:      make(map[CanonicalFile]int),
	}
}

// RegisterModule assigns a fresh monotonically increasing id to an unseen
// canonical path and returns its (possibly pre-existing) Module. Calling
// it twice for the same path is a no-op that returns the original Module,
// since a module reached via two different import edges must resolve to
// one id.
func (m *Manager) RegisterModule(file CanonicalFile) *Module {
	if mod, ok := m.registry[file]; ok {
		return mod
	}
	mod := &Module{
		File:    file,
		ID:      m.count,
		Symbols: newModuleSymbols(),
		Aliases: make(map[string]CanonicalFile),
	}
	m.registry[file] = mod
	m.ids[file] = m.count
	m.count++
	return mod
}

// Module returns the registered module for a canonical path, if any.
func (m *Manager) Module(file CanonicalFile) (*Module, bool) {
	mod, ok := m.registry[file]
	return mod, ok
}

// ModuleID returns the dense id assigned to a canonical path.
func (m *Manager) ModuleID(file CanonicalFile) (int, bool) {
	id, ok := m.ids[file]
	return id, ok
}

// Qualify appends the module id to a bare name: "base.<module_id>".
func Qualify(name string, moduleID int) string {
	return fmt.Sprintf("%s.%d", name, moduleID)
}

// ResolveForLookup implements spec §4.1's contract: given a possibly
// "alias::base" name and the module it appears in, return that name's
// target ModuleSymbols and its qualified form. It never caches beyond
// the call, so it may be invoked freely during type checking.
func (m *Manager) ResolveForLookup(name string, current *Module) (*ModuleSymbols, string, bool) {
	if !strings.Contains(name, "::") {
		return &current.Symbols, Qualify(name, current.ID), true
	}
	parts := strings.SplitN(name, "::", 2)
	if len(parts) != 2 {
		return nil, "", false
	}
	aliasName, base := parts[0], parts[1]
	canonical, ok := current.Aliases[aliasName]
	if !ok {
		return nil, "", false
	}
	target, ok := m.registry[canonical]
	if !ok {
		return nil, "", false
	}
	return &target.Symbols, Qualify(base, target.ID), true
}
