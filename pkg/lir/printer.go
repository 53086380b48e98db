package lir

import (
	"fmt"
	"io"

	"github.com/quorlang/quorc/pkg/mir"
)

// Printer outputs a textual dump of LIR, used by the driver's -dlir
// debug flag. Mirrors pkg/mir's Printer; not meant to round-trip.
type Printer struct {
	w io.Writer
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) PrintProgram(prog *LProgram) {
	for name, fn := range prog.Functions {
		p.PrintFunction(name, fn)
		fmt.Fprintln(p.w)
	}
}

func (p *Printer) PrintFunction(name string, fn *LFunction) {
	fmt.Fprintf(p.w, "%s(", name)
	for i, r := range fn.Params {
		if i > 0 {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprint(p.w, regName(r))
	}
	fmt.Fprintf(p.w, ") -> %s {\n", fn.RetType)
	for _, b := range fn.Blocks {
		p.printBlock(&b)
	}
	fmt.Fprintln(p.w, "}")
}

func (p *Printer) printBlock(b *LBlock) {
	fmt.Fprintf(p.w, "bb%d:\n", b.ID)
	for _, instr := range b.Inst {
		fmt.Fprint(p.w, "  ")
		p.printInstruction(instr)
		fmt.Fprintln(p.w)
	}
	fmt.Fprint(p.w, "  ")
	p.printTerm(b.Term)
	fmt.Fprintln(p.w)
}

func regName(r Reg) string {
	prefix := "r"
	if r.Class == mir.ClassFloat {
		prefix = "f"
	}
	return fmt.Sprintf("%s%d.%s", prefix, r.ID, r.Width)
}

func operandStr(o Operand) string {
	switch x := o.(type) {
	case RegOperand:
		return regName(x.Reg)
	case ImmI64:
		return fmt.Sprintf("%d", x.Value)
	case ImmF64:
		return fmt.Sprintf("%v", x.Value)
	default:
		return "?"
	}
}

func addrStr(a Addr) string {
	switch x := a.(type) {
	case BaseOff:
		return fmt.Sprintf("[%s+%d]", regName(x.Base), x.Offset)
	case BaseIndex:
		return fmt.Sprintf("[%s+%s*%d+%d]", regName(x.Base), regName(x.Index), x.Scale, x.Offset)
	case GlobalAddr:
		return fmt.Sprintf("[g%d+%d]", x.Sym, x.Offset)
	case LocalAddr:
		return fmt.Sprintf("[local%d+%d]", x.Index, x.Offset)
	default:
		return "?"
	}
}

func (p *Printer) printInstruction(instr Instruction) {
	switch i := instr.(type) {
	case Add:
		fmt.Fprintf(p.w, "%s = add %s, %s", regName(i.Dst), operandStr(i.A), operandStr(i.B))
	case Sub:
		fmt.Fprintf(p.w, "%s = sub %s, %s", regName(i.Dst), operandStr(i.A), operandStr(i.B))
	case Mul:
		fmt.Fprintf(p.w, "%s = mul %s, %s", regName(i.Dst), operandStr(i.A), operandStr(i.B))
	case Div:
		fmt.Fprintf(p.w, "%s = div %s, %s", regName(i.Dst), operandStr(i.A), operandStr(i.B))
	case Mod:
		fmt.Fprintf(p.w, "%s = mod %s, %s", regName(i.Dst), operandStr(i.A), operandStr(i.B))
	case CmpSet:
		fmt.Fprintf(p.w, "%s = cmp.%s %s, %s", regName(i.Dst), i.Op, operandStr(i.A), operandStr(i.B))
	case Cast:
		fmt.Fprintf(p.w, "%s = cast %s to %s", regName(i.Dst), operandStr(i.Src), i.Ty)
	case Load:
		fmt.Fprintf(p.w, "%s = load %s %s", regName(i.Dst), i.Ty, addrStr(i.Addr))
	case Store:
		fmt.Fprintf(p.w, "store %s %s = %s", i.Ty, addrStr(i.Addr), operandStr(i.Src))
	case Call:
		if i.Dst != nil {
			fmt.Fprintf(p.w, "%s = ", regName(*i.Dst))
		}
		switch t := i.Target.(type) {
		case DirectCall:
			fmt.Fprintf(p.w, "call %s(", t.Sym)
		case IndirectCall:
			fmt.Fprintf(p.w, "call *%s(", regName(t.Reg))
		}
		for j, a := range i.Args {
			if j > 0 {
				fmt.Fprint(p.w, ", ")
			}
			fmt.Fprint(p.w, operandStr(a))
		}
		fmt.Fprint(p.w, ")")
	case Mov:
		fmt.Fprintf(p.w, "%s = mov %s", regName(i.Dst), operandStr(i.Src))
	case Lea:
		fmt.Fprintf(p.w, "%s = lea %s", regName(i.Dst), addrStr(i.Addr))
	default:
		fmt.Fprintf(p.w, "???(%T)", instr)
	}
}

func (p *Printer) printTerm(t Terminator) {
	switch term := t.(type) {
	case Ret:
		if term.Value != nil {
			fmt.Fprintf(p.w, "ret %s", operandStr(term.Value))
		} else {
			fmt.Fprint(p.w, "ret")
		}
	case Jump:
		fmt.Fprintf(p.w, "jump bb%d", term.Target)
	case Branch:
		fmt.Fprintf(p.w, "branch %s, bb%d, bb%d", operandStr(term.Cond), term.IfTrue, term.IfFalse)
	default:
		fmt.Fprint(p.w, "???")
	}
}
