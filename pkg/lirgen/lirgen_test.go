package lirgen

import (
	"testing"

	"github.com/quorlang/quorc/pkg/lir"
	"github.com/quorlang/quorc/pkg/mir"
	"github.com/quorlang/quorc/pkg/types"
)

func reg(id int) mir.VReg { return mir.VReg{ID: id, Class: mir.ClassInt, Width: mir.W32} }

func TestGenerateSimpleAddFunction(t *testing.T) {
	prog := mir.NewIRProgram()
	prog.Functions["add"] = &mir.IRFunction{
		Name:    "add",
		Params:  []mir.VReg{reg(0), reg(1)},
		RetType: types.Int(),
		Entry:   0,
		Blocks: []mir.IRBlock{
			{
				ID: 0,
				Instructions: []mir.Instruction{
					mir.Add{Dest: reg(2), Left: mir.Reg{Reg: reg(0)}, Right: mir.Reg{Reg: reg(1)}},
				},
				Terminator: mir.Return{Value: mir.Reg{Reg: reg(2)}},
			},
		},
	}

	out, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	fn := out.Functions["add"]
	if len(fn.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(fn.Blocks))
	}
	if len(fn.Blocks[0].Inst) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(fn.Blocks[0].Inst))
	}
	add, ok := fn.Blocks[0].Inst[0].(lir.Add)
	if !ok {
		t.Fatalf("expected lir.Add, got %T", fn.Blocks[0].Inst[0])
	}
	if add.Dst != reg(2) {
		t.Fatalf("unexpected Add.Dst: %+v", add.Dst)
	}
	ret, ok := fn.Blocks[0].Term.(lir.Ret)
	if !ok {
		t.Fatalf("expected lir.Ret terminator, got %T", fn.Blocks[0].Term)
	}
	if op, ok := ret.Value.(lir.RegOperand); !ok || op.Reg != reg(2) {
		t.Fatalf("unexpected Ret.Value: %+v", ret.Value)
	}
}

func TestLoadStoreFromLocalResolvesLocalAddr(t *testing.T) {
	prog := mir.NewIRProgram()
	prog.Functions["f"] = &mir.IRFunction{
		Name:    "f",
		RetType: types.Void(),
		Entry:   0,
		Blocks: []mir.IRBlock{
			{
				ID: 0,
				Instructions: []mir.Instruction{
					mir.Store{Value: mir.Const{Value: 42}, Addr: mir.Local{Index: 3}, Offset: 4, Ty: types.Int()},
					mir.Load{Dest: reg(0), Addr: mir.Local{Index: 3}, Offset: 4, Ty: types.Int()},
				},
				Terminator: mir.Return{},
			},
		},
	}
	out, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	fn := out.Functions["f"]
	store, ok := fn.Blocks[0].Inst[0].(lir.Store)
	if !ok {
		t.Fatalf("expected lir.Store, got %T", fn.Blocks[0].Inst[0])
	}
	addr, ok := store.Addr.(lir.LocalAddr)
	if !ok || addr.Index != 3 || addr.Offset != 4 {
		t.Fatalf("unexpected Store.Addr: %+v", store.Addr)
	}
	load, ok := fn.Blocks[0].Inst[1].(lir.Load)
	if !ok {
		t.Fatalf("expected lir.Load, got %T", fn.Blocks[0].Inst[1])
	}
	if a, ok := load.Addr.(lir.LocalAddr); !ok || a.Index != 3 || a.Offset != 4 {
		t.Fatalf("unexpected Load.Addr: %+v", load.Addr)
	}
}

func TestGepWithConstantIndexFoldsIntoLea(t *testing.T) {
	prog := mir.NewIRProgram()
	prog.Functions["f"] = &mir.IRFunction{
		Name:    "f",
		RetType: types.Void(),
		Entry:   0,
		Blocks: []mir.IRBlock{
			{
				ID: 0,
				Instructions: []mir.Instruction{
					mir.Gep{Dest: reg(5), Base: mir.Local{Index: 0}, Index: mir.Const{Value: 2}, Scale: 4},
				},
				Terminator: mir.Return{},
			},
		},
	}
	out, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	fn := out.Functions["f"]
	lea, ok := fn.Blocks[0].Inst[0].(lir.Lea)
	if !ok {
		t.Fatalf("expected lir.Lea, got %T", fn.Blocks[0].Inst[0])
	}
	addr, ok := lea.Addr.(lir.LocalAddr)
	if !ok || addr.Index != 0 || addr.Offset != 8 {
		t.Fatalf("expected LocalAddr{0,8}, got %+v", lea.Addr)
	}
}

func TestGepWithRegisterIndexUsesBaseIndex(t *testing.T) {
	prog := mir.NewIRProgram()
	prog.Functions["f"] = &mir.IRFunction{
		Name:    "f",
		Params:  []mir.VReg{reg(0)},
		RetType: types.Void(),
		Entry:   0,
		Blocks: []mir.IRBlock{
			{
				ID: 0,
				Instructions: []mir.Instruction{
					mir.Gep{Dest: reg(5), Base: mir.Reg{Reg: reg(1)}, Index: mir.Reg{Reg: reg(0)}, Scale: 8},
				},
				Terminator: mir.Return{},
			},
		},
	}
	out, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	fn := out.Functions["f"]
	lea, ok := fn.Blocks[0].Inst[0].(lir.Lea)
	if !ok {
		t.Fatalf("expected lir.Lea, got %T", fn.Blocks[0].Inst[0])
	}
	bi, ok := lea.Addr.(lir.BaseIndex)
	if !ok {
		t.Fatalf("expected lir.BaseIndex, got %T", lea.Addr)
	}
	if bi.Base != reg(1) || bi.Index != reg(0) || bi.Scale != 8 {
		t.Fatalf("unexpected BaseIndex: %+v", bi)
	}
}

func TestMemcpyExpandsIntoChunkedLoadStore(t *testing.T) {
	prog := mir.NewIRProgram()
	prog.Functions["f"] = &mir.IRFunction{
		Name:    "f",
		RetType: types.Void(),
		Entry:   0,
		Blocks: []mir.IRBlock{
			{
				ID: 0,
				Instructions: []mir.Instruction{
					mir.Memcpy{Dst: mir.Local{Index: 0}, Src: mir.Local{Index: 1}, Size: 9, Align: 4},
				},
				Terminator: mir.Return{},
			},
		},
	}
	out, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	fn := out.Functions["f"]
	// 9 bytes -> one 8-byte chunk, one 1-byte chunk: 4 instructions (load+store each)
	if len(fn.Blocks[0].Inst) != 4 {
		t.Fatalf("expected 4 instructions for a 9-byte copy, got %d", len(fn.Blocks[0].Inst))
	}
	firstLoad := fn.Blocks[0].Inst[0].(lir.Load)
	if firstLoad.Ty.Kind != types.KindLong {
		t.Fatalf("expected first chunk to be a long load, got %v", firstLoad.Ty)
	}
	lastLoad := fn.Blocks[0].Inst[2].(lir.Load)
	if lastLoad.Ty.Kind != types.KindChar {
		t.Fatalf("expected final chunk to be a char load, got %v", lastLoad.Ty)
	}
}

func TestCallTranslatesArgsAndDest(t *testing.T) {
	prog := mir.NewIRProgram()
	prog.Functions["f"] = &mir.IRFunction{
		Name:    "f",
		RetType: types.Int(),
		Entry:   0,
		Blocks: []mir.IRBlock{
			{
				ID: 0,
				Instructions: []mir.Instruction{
					mir.Call{Dest: ptr(reg(3)), Func: "helper", Args: []mir.Value{mir.Const{Value: 1}, mir.Reg{Reg: reg(0)}}},
				},
				Terminator: mir.Return{Value: mir.Reg{Reg: reg(3)}},
			},
		},
	}
	out, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	fn := out.Functions["f"]
	call, ok := fn.Blocks[0].Inst[0].(lir.Call)
	if !ok {
		t.Fatalf("expected lir.Call, got %T", fn.Blocks[0].Inst[0])
	}
	if call.Dst == nil || *call.Dst != reg(3) {
		t.Fatalf("unexpected Call.Dst: %+v", call.Dst)
	}
	target, ok := call.Target.(lir.DirectCall)
	if !ok || target.Sym != "helper" {
		t.Fatalf("unexpected Call.Target: %+v", call.Target)
	}
	if len(call.Args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(call.Args))
	}
}

func TestNoFrameAttributeCarriesIntoLFunction(t *testing.T) {
	prog := mir.NewIRProgram()
	prog.Functions["raw"] = &mir.IRFunction{
		Name:       "raw",
		RetType:    types.Int(),
		Entry:      0,
		Attributes: []mir.AtDecl{mir.NoFrameDecl{}},
		Blocks:     []mir.IRBlock{{ID: 0, Terminator: mir.Return{}}},
	}
	out, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !out.Functions["raw"].NoFrame {
		t.Fatalf("expected NoFrame to carry from @no_frame into lir.LFunction")
	}
}

func TestCallToVariadicFunctionIsMarked(t *testing.T) {
	prog := mir.NewIRProgram()
	prog.Functions["printf"] = &mir.IRFunction{
		Name:       "printf",
		RetType:    types.Int(),
		Entry:      0,
		Attributes: []mir.AtDecl{mir.VariadicDecl{}},
		Blocks:     []mir.IRBlock{{ID: 0, Terminator: mir.Return{}}},
	}
	prog.Functions["main"] = &mir.IRFunction{
		Name:    "main",
		RetType: types.Int(),
		Entry:   0,
		Blocks: []mir.IRBlock{
			{
				ID: 0,
				Instructions: []mir.Instruction{
					mir.Call{Func: "printf", Args: []mir.Value{mir.Const{Value: 1}}},
					mir.Call{Func: "helper", Args: nil},
				},
				Terminator: mir.Return{},
			},
		},
	}
	out, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	fn := out.Functions["main"]
	toPrintf, ok := fn.Blocks[0].Inst[0].(lir.Call)
	if !ok || !toPrintf.Variadic {
		t.Fatalf("expected call to a @variadic function to be marked Variadic, got %+v", fn.Blocks[0].Inst[0])
	}
	toHelper, ok := fn.Blocks[0].Inst[1].(lir.Call)
	if !ok || toHelper.Variadic {
		t.Fatalf("expected call to a non-variadic function to stay unmarked, got %+v", fn.Blocks[0].Inst[1])
	}
}

func ptr(r mir.VReg) *mir.VReg { return &r }
