package main

// Integration tests drive the real pipeline end to end against the
// scenario fixtures in testdata/e2e.yaml. Every fixture's files are
// written to a real temp directory before compile() runs: @import
// resolution walks actual symlinks (pkg/alias.ResolveImportPath), so
// there is no synthetic in-memory stand-in for the filesystem.

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quorlang/quorc/pkg/emit/arm64"
	"github.com/quorlang/quorc/pkg/lir"
	"github.com/quorlang/quorc/pkg/mir"
	"github.com/quorlang/quorc/pkg/target"
	"gopkg.in/yaml.v3"
)

type e2eFile struct {
	Path    string `yaml:"path"`
	Content string `yaml:"content"`
}

type e2eSpec struct {
	Name        string    `yaml:"name"`
	Entry       string    `yaml:"entry"`
	Stage       string    `yaml:"stage"`
	Expect      []string  `yaml:"expect"`
	ExpectOrder []string  `yaml:"expect_order"`
	ExpectNot   []string  `yaml:"expect_not"`
	Skip        string    `yaml:"skip,omitempty"`
	Files       []e2eFile `yaml:"files"`
}

type e2eSuite struct {
	Tests []e2eSpec `yaml:"tests"`
}

func loadE2ESpecs(t *testing.T) []e2eSpec {
	t.Helper()
	data, err := os.ReadFile("../../testdata/e2e.yaml")
	if err != nil {
		t.Fatalf("reading testdata/e2e.yaml: %v", err)
	}
	var file e2eSuite
	if err := yaml.Unmarshal(data, &file); err != nil {
		t.Fatalf("parsing testdata/e2e.yaml: %v", err)
	}
	return file.Tests
}

func TestEndToEndScenarios(t *testing.T) {
	for _, tc := range loadE2ESpecs(t) {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}

			dir := t.TempDir()
			for _, f := range tc.Files {
				path := filepath.Join(dir, f.Path)
				if err := os.WriteFile(path, []byte(f.Content), 0644); err != nil {
					t.Fatalf("writing %s: %v", f.Path, err)
				}
			}

			rf := target.AArch64()
			result, err := compile(filepath.Join(dir, tc.Entry), rf, arm64.New())
			if err != nil {
				t.Fatalf("compile: %v", err)
			}

			var out string
			switch tc.Stage {
			case "mir":
				var b strings.Builder
				mir.NewPrinter(&b).PrintProgram(result.mirProg)
				out = b.String()
			case "lir":
				var b strings.Builder
				lir.NewPrinter(&b).PrintProgram(result.lirProg)
				out = b.String()
			case "asm", "":
				out = result.asmText
			default:
				t.Fatalf("unknown stage %q", tc.Stage)
			}

			for _, want := range tc.Expect {
				if !strings.Contains(out, want) {
					t.Errorf("expected output to contain %q, got:\n%s", want, out)
				}
			}
			for _, bad := range tc.ExpectNot {
				if strings.Contains(out, bad) {
					t.Errorf("expected output NOT to contain %q, got:\n%s", bad, out)
				}
			}
			pos := 0
			for _, want := range tc.ExpectOrder {
				idx := strings.Index(out[pos:], want)
				if idx < 0 {
					t.Errorf("expected %q to appear after position %d, got:\n%s", want, pos, out)
					break
				}
				pos += idx + len(want)
			}
		})
	}
}
