package mir

import (
	"fmt"
	"io"
)

// Printer outputs a textual dump of MIR, used by the driver's -dmir
// debug flag. The format is not meant to round-trip; it exists to make
// block structure and VReg wiring inspectable.
type Printer struct {
	w io.Writer
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) PrintProgram(prog *IRProgram) {
	for _, g := range prog.GlobalConsts {
		fmt.Fprintf(p.w, "global g%d: %s\n", g.ID, g.Ty)
	}
	if len(prog.GlobalConsts) > 0 {
		fmt.Fprintln(p.w)
	}
	for name, fn := range prog.Functions {
		p.PrintFunction(name, fn)
		fmt.Fprintln(p.w)
	}
}

func (p *Printer) PrintFunction(name string, fn *IRFunction) {
	fmt.Fprintf(p.w, "%s(", name)
	for i, r := range fn.Params {
		if i > 0 {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprintf(p.w, "%s", regName(r))
	}
	fmt.Fprintf(p.w, ") -> %s {\n", fn.RetType)
	for _, b := range fn.Blocks {
		p.printBlock(&b)
	}
	fmt.Fprintln(p.w, "}")
	fmt.Fprintf(p.w, "entry: bb%d\n", fn.Entry)
}

func (p *Printer) printBlock(b *IRBlock) {
	fmt.Fprintf(p.w, "bb%d:\n", b.ID)
	for _, instr := range b.Instructions {
		fmt.Fprint(p.w, "  ")
		p.printInstruction(instr)
		fmt.Fprintln(p.w)
	}
	fmt.Fprint(p.w, "  ")
	p.printTerminator(b.Terminator)
	fmt.Fprintln(p.w)
}

func regName(r VReg) string {
	prefix := "r"
	if r.Class == ClassFloat {
		prefix = "f"
	}
	return fmt.Sprintf("%s%d.%s", prefix, r.ID, r.Width)
}

func valueStr(v Value) string {
	switch x := v.(type) {
	case Reg:
		return regName(x.Reg)
	case Const:
		return fmt.Sprintf("%d", x.Value)
	case ConstFloat:
		return fmt.Sprintf("%v", x.Value)
	case Local:
		return fmt.Sprintf("local[%d]", x.Index)
	case Global:
		return fmt.Sprintf("global[%d]", x.Index)
	default:
		return "?"
	}
}

func (p *Printer) printInstruction(instr Instruction) {
	switch i := instr.(type) {
	case Add:
		fmt.Fprintf(p.w, "%s = add %s, %s", regName(i.Dest), valueStr(i.Left), valueStr(i.Right))
	case Sub:
		fmt.Fprintf(p.w, "%s = sub %s, %s", regName(i.Dest), valueStr(i.Left), valueStr(i.Right))
	case Mul:
		fmt.Fprintf(p.w, "%s = mul %s, %s", regName(i.Dest), valueStr(i.Left), valueStr(i.Right))
	case Div:
		fmt.Fprintf(p.w, "%s = div %s, %s", regName(i.Dest), valueStr(i.Left), valueStr(i.Right))
	case Mod:
		fmt.Fprintf(p.w, "%s = mod %s, %s", regName(i.Dest), valueStr(i.Left), valueStr(i.Right))
	case Eq:
		fmt.Fprintf(p.w, "%s = eq %s, %s", regName(i.Dest), valueStr(i.Left), valueStr(i.Right))
	case Ne:
		fmt.Fprintf(p.w, "%s = ne %s, %s", regName(i.Dest), valueStr(i.Left), valueStr(i.Right))
	case Lt:
		fmt.Fprintf(p.w, "%s = lt %s, %s", regName(i.Dest), valueStr(i.Left), valueStr(i.Right))
	case Le:
		fmt.Fprintf(p.w, "%s = le %s, %s", regName(i.Dest), valueStr(i.Left), valueStr(i.Right))
	case Gt:
		fmt.Fprintf(p.w, "%s = gt %s, %s", regName(i.Dest), valueStr(i.Left), valueStr(i.Right))
	case Ge:
		fmt.Fprintf(p.w, "%s = ge %s, %s", regName(i.Dest), valueStr(i.Left), valueStr(i.Right))
	case Cast:
		fmt.Fprintf(p.w, "%s = cast %s to %s", regName(i.Dest), valueStr(i.Src), i.Ty)
	case Load:
		fmt.Fprintf(p.w, "%s = load %s[%s+%d]", regName(i.Dest), i.Ty, valueStr(i.Addr), i.Offset)
	case Store:
		fmt.Fprintf(p.w, "store %s[%s+%d] = %s", i.Ty, valueStr(i.Addr), i.Offset, valueStr(i.Value))
	case Gep:
		fmt.Fprintf(p.w, "%s = gep %s + %s*%d", regName(i.Dest), valueStr(i.Base), valueStr(i.Index), i.Scale)
	case Call:
		if i.Dest != nil {
			fmt.Fprintf(p.w, "%s = ", regName(*i.Dest))
		}
		fmt.Fprintf(p.w, "call %s(", i.Func)
		for j, a := range i.Args {
			if j > 0 {
				fmt.Fprint(p.w, ", ")
			}
			fmt.Fprint(p.w, valueStr(a))
		}
		fmt.Fprint(p.w, ")")
	case Move:
		fmt.Fprintf(p.w, "%s = move %s", regName(i.Dest), valueStr(i.From))
	case AddressOf:
		fmt.Fprintf(p.w, "%s = addressof %s", regName(i.Dest), valueStr(i.Src))
	case Memcpy:
		fmt.Fprintf(p.w, "memcpy %s, %s, %d, align %d", valueStr(i.Dst), valueStr(i.Src), i.Size, i.Align)
	case Declaration:
		fmt.Fprintf(p.w, "decl %v", i.Decl)
	default:
		fmt.Fprintf(p.w, "???(%T)", instr)
	}
}

func (p *Printer) printTerminator(t Terminator) {
	switch term := t.(type) {
	case Return:
		if term.Value != nil {
			fmt.Fprintf(p.w, "return %s", valueStr(term.Value))
		} else {
			fmt.Fprint(p.w, "return")
		}
	case Jump:
		fmt.Fprintf(p.w, "jump bb%d", term.Block)
	case Branch:
		fmt.Fprintf(p.w, "branch %s, bb%d, bb%d", valueStr(term.Cond), term.IfTrue, term.IfFalse)
	case TemporaryNone:
		fmt.Fprint(p.w, "<unterminated>")
	default:
		fmt.Fprint(p.w, "???")
	}
}
