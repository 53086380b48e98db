// Package mir defines the MIR (Mid-level Intermediate Representation)
// data model: a single CFG-based IR that every qualified, typed function
// is lowered into before register allocation and target emission. Unlike
// the teacher's eight-stage pipeline, quorc's front end (spec §1, an
// external collaborator) hands a typed AST directly to the MIR builder,
// so there is exactly one IR between the type checker and LIR.
package mir

import "github.com/quorlang/quorc/pkg/types"

// RegWidth is the physical width a VReg is allocated at.
type RegWidth int

const (
	W8 RegWidth = iota
	W32
	W64
)

func (w RegWidth) String() string {
	switch w {
	case W8:
		return "w8"
	case W32:
		return "w32"
	case W64:
		return "w64"
	default:
		return "w?"
	}
}

// TypeToRegWidth maps a source type to the register width a value of
// that type occupies once loaded into a VReg.
func TypeToRegWidth(t types.Type) RegWidth {
	switch t.Kind {
	case types.KindBool, types.KindChar:
		return W8
	case types.KindInt, types.KindFloat:
		return W32
	case types.KindLong, types.KindPointer:
		return W64
	default:
		return W64
	}
}

// VRegClass distinguishes general-purpose from floating-point virtual
// registers; the two never interfere and are colored independently.
type VRegClass int

const (
	ClassInt VRegClass = iota
	ClassFloat
)

// VReg is a virtual register: an unbounded-supply SSA-adjacent value slot
// assigned during MIR construction and later colored by regalloc.
type VReg struct {
	ID    int
	Class VRegClass
	Width RegWidth
}

func (r VReg) IsGPR() bool { return r.Class == ClassInt }
func (r VReg) IsFPR() bool { return r.Class == ClassFloat }

// BlockId names a basic block within a function's CFG.
type BlockId int

// Value is an operand to an instruction: either the result of a prior
// instruction (Reg), an immediate, or a reference to a local/global slot.
type Value interface {
	implValue()
}

type Reg struct{ Reg VReg }
type Const struct{ Value int64 }
type ConstFloat struct{ Value float64 }
type Local struct{ Index int }
type Global struct{ Index int }

func (Reg) implValue()        {}
func (Const) implValue()      {}
func (ConstFloat) implValue() {}
func (Local) implValue()      {}
func (Global) implValue()     {}

// Instruction is one non-terminating operation within a block.
type Instruction interface {
	implInstruction()
}

type Add struct {
	Dest        VReg
	Left, Right Value
}
type Sub struct {
	Dest        VReg
	Left, Right Value
}
type Mul struct {
	Dest        VReg
	Left, Right Value
}
type Div struct {
	Dest        VReg
	Left, Right Value
}
type Mod struct {
	Dest        VReg
	Left, Right Value
}
type Eq struct {
	Dest        VReg
	Left, Right Value
}
type Ne struct {
	Dest        VReg
	Left, Right Value
}
type Lt struct {
	Dest        VReg
	Left, Right Value
}
type Le struct {
	Dest        VReg
	Left, Right Value
}
type Gt struct {
	Dest        VReg
	Left, Right Value
}
type Ge struct {
	Dest        VReg
	Left, Right Value
}

// Cast reinterprets/converts src to ty, leaving the result in Dest.
type Cast struct {
	Dest VReg
	Src  Value
	Ty   types.Type
}

// Load reads Ty-sized memory at addr+offset into Dest.
type Load struct {
	Dest   VReg
	Addr   Value
	Offset int32
	Ty     types.Type
}

// Store writes Value into Ty-sized memory at addr+offset.
type Store struct {
	Value  Value
	Addr   Value
	Offset int32
	Ty     types.Type
}

// Gep computes base + index*scale, a raw byte address (no load).
type Gep struct {
	Dest  VReg
	Base  Value
	Index Value
	Scale int
}

// Call invokes a qualified function name; Dest is nil for void calls.
type Call struct {
	Dest *VReg
	Func string
	Args []Value
}

// Move copies From into Dest without interpretation.
type Move struct {
	Dest VReg
	From Value
}

// AddressOf takes the address of a Local or Global.
type AddressOf struct {
	Dest VReg
	Src  Value
}

// Memcpy copies Size bytes from Src to Dst; both must be addressable
// (Local, Global, or a register holding a raw address).
type Memcpy struct {
	Dst, Src Value
	Size     int
	Align    int
}

// Declaration carries a non-code top-level attribute (import, inline
// assembly, extern) through into the block stream so later passes see it
// in program order; it emits no machine code itself.
type Declaration struct {
	Decl AtDecl
}

func (Add) implInstruction()         {}
func (Sub) implInstruction()         {}
func (Mul) implInstruction()         {}
func (Div) implInstruction()         {}
func (Mod) implInstruction()         {}
func (Eq) implInstruction()          {}
func (Ne) implInstruction()          {}
func (Lt) implInstruction()          {}
func (Le) implInstruction()          {}
func (Gt) implInstruction()          {}
func (Ge) implInstruction()          {}
func (Cast) implInstruction()        {}
func (Load) implInstruction()        {}
func (Store) implInstruction()       {}
func (Gep) implInstruction()         {}
func (Call) implInstruction()        {}
func (Move) implInstruction()        {}
func (AddressOf) implInstruction()   {}
func (Memcpy) implInstruction()      {}
func (Declaration) implInstruction() {}

// AtDecl is a parsed top-level or function-level attribute, per spec
// §4.3's attribute vocabulary.
type AtDecl interface {
	implAtDecl()
}

type ImportDecl struct {
	Path  string
	Local bool
}
type ConstDecl struct {
	Name string
	Ty   types.Type
}
type TrustRetDecl struct{}
type InlineAssemblyDecl struct{ Content string }
type ExternDecl struct{ Name string }
type VariadicDecl struct{}
type InlineDecl struct{}
type NoFrameDecl struct{}

func (ImportDecl) implAtDecl()         {}
func (ConstDecl) implAtDecl()          {}
func (TrustRetDecl) implAtDecl()       {}
func (InlineAssemblyDecl) implAtDecl() {}
func (ExternDecl) implAtDecl()         {}
func (VariadicDecl) implAtDecl()       {}
func (InlineDecl) implAtDecl()         {}
func (NoFrameDecl) implAtDecl()        {}

// ParseAttribute maps a bare @-attribute name to its AtDecl, for the
// attributes that carry no further payload.
func ParseAttribute(attribute string) (AtDecl, bool) {
	switch attribute {
	case "trust_ret":
		return TrustRetDecl{}, true
	case "variadic":
		return VariadicDecl{}, true
	case "inline":
		return InlineDecl{}, true
	case "no_frame":
		return NoFrameDecl{}, true
	default:
		return nil, false
	}
}

// Terminator is the single control-flow exit of a block. Every IRBlock
// must end with exactly one non-TemporaryNone terminator before MIR
// leaves the builder (spec §4.2's block-totality invariant).
type Terminator interface {
	implTerminator()
}

type Return struct{ Value Value } // Value == nil for a void return
type Jump struct{ Block BlockId }
type Branch struct {
	Cond           Value
	IfTrue, IfFalse BlockId
}

// TemporaryNone is a build-time sentinel terminator: blocks created by
// the builder start in this state and are either filled in before the
// function is finalized or pruned as dead (spec §4.2).
type TemporaryNone struct{}

func (Return) implTerminator()        {}
func (Jump) implTerminator()          {}
func (Branch) implTerminator()        {}
func (TemporaryNone) implTerminator() {}

// IRBlock is one basic block: a straight-line instruction list ending in
// a terminator.
type IRBlock struct {
	ID           BlockId
	Instructions []Instruction
	Terminator   Terminator
}

// IRFunction is one function's full CFG.
type IRFunction struct {
	Name       string
	Params     []VReg
	RetType    types.Type
	Blocks     []IRBlock
	Entry      BlockId
	Attributes []AtDecl
	// Offset is the byte size of this function's stack frame. No pass
	// sets it: frame sizes are computed from the LIR by pkg/frame into a
	// frame.Layout.
	Offset int32
}

// Block returns the block with the given id, if present.
func (f *IRFunction) Block(id BlockId) (*IRBlock, bool) {
	for i := range f.Blocks {
		if f.Blocks[i].ID == id {
			return &f.Blocks[i], true
		}
	}
	return nil, false
}

// HasAttribute reports whether the function carries an attribute of the
// given concrete type, e.g. HasAttribute[NoFrameDecl](f).
func HasAttribute[T AtDecl](f *IRFunction) bool {
	for _, a := range f.Attributes {
		if _, ok := a.(T); ok {
			return true
		}
	}
	return false
}

// StructDef is a struct or union's resolved layout: each field's byte
// offset and type, computed once by the MIR builder from pkg/types.
type StructDef struct {
	Name    string
	Fields  map[string]StructField
	IsUnion bool
	Size    int
}

type StructField struct {
	Offset int
	Type   types.Type
}

// GlobalValue is the compile-time-known initial contents of a global.
type GlobalValue interface {
	implGlobalValue()
}

type BytesValue struct{ Value []byte }
type StringValue struct{ Value string }
type IntValue struct{ Value int64 }
type FloatValue struct{ Value float64 }
type BoolValue struct{ Value bool }
type ZeroedValue struct{ Size int }
type CharValue struct{ Value byte }
type ArrayValue struct{ Elems []GlobalValue }

func (BytesValue) implGlobalValue()  {}
func (StringValue) implGlobalValue() {}
func (IntValue) implGlobalValue()    {}
func (FloatValue) implGlobalValue()  {}
func (BoolValue) implGlobalValue()   {}
func (ZeroedValue) implGlobalValue() {}
func (CharValue) implGlobalValue()   {}
func (ArrayValue) implGlobalValue()  {}

// GlobalDef is one compiled global constant or variable.
type GlobalDef struct {
	ID    int
	Ty    types.Type
	Value GlobalValue
}

// IRProgram is a complete, qualified, lowered translation unit.
type IRProgram struct {
	Externs      []string
	Functions    map[string]*IRFunction
	GlobalConsts []GlobalDef
	Structs      map[string]*StructDef
}

func NewIRProgram() *IRProgram {
	return &IRProgram{
		Functions: make(map[string]*IRFunction),
		Structs:   make(map[string]*StructDef),
	}
}
