package codegen

import (
	"strings"
	"testing"

	"github.com/quorlang/quorc/pkg/emit/arm64"
	"github.com/quorlang/quorc/pkg/lir"
	"github.com/quorlang/quorc/pkg/mir"
	"github.com/quorlang/quorc/pkg/target"
	"github.com/quorlang/quorc/pkg/types"
)

func TestGenerateIdentityFunction(t *testing.T) {
	p := lir.Reg{ID: 0, Class: mir.ClassInt, Width: mir.W64}
	fn := &lir.LFunction{
		Name:    "identity",
		Params:  []lir.Reg{p},
		RetType: types.Long(),
		Blocks: []lir.LBlock{
			{ID: 0, Term: lir.Ret{Value: lir.RegOperand{Reg: p}}},
		},
	}
	prog := &lir.LProgram{Functions: map[string]*lir.LFunction{"identity": fn}}

	out := Generate(prog, target.AArch64(), arm64.New())

	if !strings.Contains(out, ".text") {
		t.Errorf("expected a text section, got %q", out)
	}
	if !strings.Contains(out, "identity:") {
		t.Errorf("expected function label, got %q", out)
	}
	if !strings.Contains(out, "ret") {
		t.Errorf("expected epilogue ret, got %q", out)
	}
}

func TestGenerateBucketsStringGlobalAsCstring(t *testing.T) {
	prog := &lir.LProgram{
		Functions:    map[string]*lir.LFunction{},
		GlobalConsts: []mir.GlobalDef{{ID: 0, Value: mir.StringValue{Value: "hi"}}},
	}
	out := Generate(prog, target.AArch64(), arm64.New())
	if !strings.Contains(out, "__q_g_0:") {
		t.Errorf("expected global label, got %q", out)
	}
	if !strings.Contains(out, ".asciz") {
		t.Errorf("expected asciz directive, got %q", out)
	}
}
