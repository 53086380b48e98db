// Package arm64 implements pkg/target.Emitter for AArch64, producing
// GNU-as syntax text. Grounded on ralph-cc/pkg/asm/printer.go's register
// naming and section idioms, ralph-cc/pkg/asmgen/transform.go's per-
// instruction translation structure, and the prologue/epilogue and
// global-constant directive shapes from
// original_source/quorc/src/backend/emitter/aarch64.rs (a TargetEmitter
// impl that was itself stubbed with todo!() for every instruction and
// terminator case -- only its prologue/epilogue/global-const bodies
// were concrete, so the per-instruction lowering below is original work
// in the teacher's idiom, not a transcription of an existing body).
package arm64

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/quorlang/quorc/pkg/frame"
	"github.com/quorlang/quorc/pkg/lir"
	"github.com/quorlang/quorc/pkg/mir"
	"github.com/quorlang/quorc/pkg/target"
	"github.com/quorlang/quorc/pkg/types"
)

// Emitter lowers allocated AArch64 LIR to GNU-as text.
type Emitter struct {
	isDarwin bool
	rf       target.RegisterFile
}

func New() *Emitter {
	return &Emitter{isDarwin: runtime.GOOS == "darwin", rf: target.AArch64()}
}

func (e *Emitter) symbolName(name string) string {
	if e.isDarwin {
		return "_" + name
	}
	return name
}

func (e *Emitter) globalLabel(id int) string {
	return e.symbolName(fmt.Sprintf("__q_g_%d", id))
}

// EmitGlobalConst renders one compiled global's storage directive.
func (e *Emitter) EmitGlobalConst(prog lir.LProgram, id int) string {
	for _, g := range prog.GlobalConsts {
		if g.ID != id {
			continue
		}
		var body string
		switch v := g.Value.(type) {
		case mir.StringValue:
			body = fmt.Sprintf("\t.asciz \"%s\"", v.Value)
		case mir.BytesValue:
			var parts []string
			for _, b := range v.Value {
				parts = append(parts, fmt.Sprintf("%d", b))
			}
			body = "\t.byte " + strings.Join(parts, ", ")
		case mir.IntValue:
			body = fmt.Sprintf("\t.word %d", v.Value)
		case mir.FloatValue:
			body = fmt.Sprintf("\t.double %v", v.Value)
		case mir.BoolValue:
			b := 0
			if v.Value {
				b = 1
			}
			body = fmt.Sprintf("\t.byte %d", b)
		case mir.CharValue:
			body = fmt.Sprintf("\t.byte %d", v.Value)
		case mir.ZeroedValue:
			body = fmt.Sprintf("\t.zero %d", v.Size)
		default:
			body = "\t.zero 0"
		}
		return fmt.Sprintf("%s:\n%s", e.globalLabel(id), body)
	}
	return ""
}

// Prologue reserves the frame in one pre-indexed store of the saved
// FP/LR pair, then spills any used callee-saved registers into their
// slots.
func (e *Emitter) Prologue(fn *lir.LFunction, fl *frame.Layout, used []target.PhysReg) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", e.symbolName(fn.Name))
	if fn.NoFrame {
		return b.String()
	}
	fmt.Fprintf(&b, "\tstp\tx29, x30, [sp, #-%d]!\n", fl.TotalSize)
	fmt.Fprintf(&b, "\tmov\tx29, sp\n")
	for i := 0; i+1 < len(used); i += 2 {
		off := fl.CalleeSaveOffset + int32(i)*8
		fmt.Fprintf(&b, "\tstp\t%s, %s, [x29, #%d]\n", used[i], used[i+1], off)
	}
	if len(used)%2 == 1 {
		last := len(used) - 1
		off := fl.CalleeSaveOffset + int32(last)*8
		fmt.Fprintf(&b, "\tstr\t%s, [x29, #%d]\n", used[last], off)
	}
	return b.String()
}

func (e *Emitter) Epilogue(fn *lir.LFunction, fl *frame.Layout, used []target.PhysReg) string {
	var b strings.Builder
	if fn.NoFrame {
		fmt.Fprintf(&b, "\tret\n")
		return b.String()
	}
	for i := 0; i+1 < len(used); i += 2 {
		off := fl.CalleeSaveOffset + int32(i)*8
		fmt.Fprintf(&b, "\tldp\t%s, %s, [x29, #%d]\n", used[i], used[i+1], off)
	}
	if len(used)%2 == 1 {
		last := len(used) - 1
		off := fl.CalleeSaveOffset + int32(last)*8
		fmt.Fprintf(&b, "\tldr\t%s, [x29, #%d]\n", used[last], off)
	}
	fmt.Fprintf(&b, "\tldp\tx29, x30, [sp], #%d\n", fl.TotalSize)
	fmt.Fprintf(&b, "\tret\n")
	return b.String()
}

func gpName(phys target.PhysReg, is64 bool) string {
	s := string(phys)
	if !is64 && strings.HasPrefix(s, "x") {
		return "w" + s[1:]
	}
	return s
}

func fpName(phys target.PhysReg, is64 bool) string {
	s := string(phys)
	if !is64 && strings.HasPrefix(s, "d") {
		return "s" + s[1:]
	}
	return s
}

func regText(r lir.Reg, phys target.PhysReg) string {
	is64 := r.Width == mir.W64
	if r.Class == mir.ClassFloat {
		return fpName(phys, is64)
	}
	return gpName(phys, is64)
}

func scratchFor(r lir.Reg, rf target.RegisterFile, which target.PhysReg) string {
	return regText(r, which)
}

// materialize resolves a virtual register to a physical register name,
// emitting a reload from its spill slot into scratch first if needed.
func materialize(r lir.Reg, fl *frame.Layout, loc target.Locator, rf target.RegisterFile, scratch target.PhysReg) (pre, name string) {
	l, ok := loc.Location(r)
	if !ok {
		return "", scratchFor(r, rf, scratch)
	}
	switch v := l.(type) {
	case target.InReg:
		return "", regText(r, v.Reg)
	case target.InSpill:
		name = scratchFor(r, rf, scratch)
		off := fl.SpillOffsetOf(v.Slot)
		return fmt.Sprintf("\tldr\t%s, [x29, #%d]\n", name, off), name
	default:
		return "", scratchFor(r, rf, scratch)
	}
}

func storeIfSpilled(r lir.Reg, fl *frame.Layout, loc target.Locator, name string) string {
	l, ok := loc.Location(r)
	if !ok {
		return ""
	}
	if v, ok := l.(target.InSpill); ok {
		off := fl.SpillOffsetOf(v.Slot)
		return fmt.Sprintf("\tstr\t%s, [x29, #%d]\n", name, off)
	}
	return ""
}

func destName(r lir.Reg, fl *frame.Layout, loc target.Locator, rf target.RegisterFile) string {
	l, ok := loc.Location(r)
	if ok {
		if v, ok := l.(target.InReg); ok {
			return regText(r, v.Reg)
		}
	}
	return scratchFor(r, rf, rf.Scratch)
}

func operandText(o lir.Operand, fl *frame.Layout, loc target.Locator, rf target.RegisterFile, scratch target.PhysReg) (pre, text string) {
	switch v := o.(type) {
	case lir.RegOperand:
		return materialize(v.Reg, fl, loc, rf, scratch)
	case lir.ImmI64:
		return "", fmt.Sprintf("#%d", v.Value)
	case lir.ImmF64:
		return "", fmt.Sprintf("#%v", v.Value)
	default:
		return "", "#0"
	}
}

// addrText resolves an Addr to bracketed GNU-as operand text, emitting
// any register materialization the addressing mode needs first.
func addrText(a lir.Addr, fl *frame.Layout, loc target.Locator, rf target.RegisterFile, isDarwin bool) (pre, text string) {
	switch x := a.(type) {
	case lir.BaseOff:
		p, base := materialize(x.Base, fl, loc, rf, rf.Scratch)
		return p, fmt.Sprintf("[%s, #%d]", base, x.Offset)
	case lir.BaseIndex:
		p1, base := materialize(x.Base, fl, loc, rf, rf.Scratch)
		p2, index := materialize(x.Index, fl, loc, rf, rf.Scratch2)
		shift := log2(x.Scale)
		if x.Offset != 0 {
			// Fold a nonzero constant offset into a scratch copy of the
			// base first: AArch64's register+register addressing mode has
			// no immediate slot, and base may be a live allocated register
			// that must not be clobbered.
			scratchBase := string(rf.Scratch)
			p1 += fmt.Sprintf("\tadd\t%s, %s, #%d\n", scratchBase, base, x.Offset)
			base = scratchBase
		}
		if shift > 0 {
			return p1 + p2, fmt.Sprintf("[%s, %s, lsl #%d]", base, index, shift)
		}
		return p1 + p2, fmt.Sprintf("[%s, %s]", base, index)
	case lir.GlobalAddr:
		sym := fmt.Sprintf("__q_g_%d", x.Sym)
		var pre string
		if isDarwin {
			sym = "_" + sym
			pre = fmt.Sprintf("\tadrp\t%s, %s@PAGE\n\tadd\t%s, %s, %s@PAGEOFF\n", rf.Scratch, sym, rf.Scratch, rf.Scratch, sym)
		} else {
			pre = fmt.Sprintf("\tadrp\t%s, %s\n\tadd\t%s, %s, :lo12:%s\n", rf.Scratch, sym, rf.Scratch, rf.Scratch, sym)
		}
		return pre, fmt.Sprintf("[%s, #%d]", rf.Scratch, x.Offset)
	case lir.LocalAddr:
		return "", fmt.Sprintf("[x29, #%d]", fl.LocalOffsetOf(x))
	default:
		return "", "[x29]"
	}
}

func log2(n int) int {
	r := 0
	for n > 1 {
		n >>= 1
		r++
	}
	return r
}

var cmpSuffix = map[lir.CmpOp]string{
	lir.CmpEq: "eq", lir.CmpNe: "ne",
	lir.CmpLt: "lt", lir.CmpLe: "le",
	lir.CmpGt: "gt", lir.CmpGe: "ge",
}

// EmitInstruction lowers one LIR instruction to assembly text.
func (e *Emitter) EmitInstruction(instr lir.Instruction, fl *frame.Layout, loc target.Locator) string {
	rf := e.rf
	var b strings.Builder
	switch i := instr.(type) {
	case lir.Add:
		aPre, aText := operandText(i.A, fl, loc, rf, rf.Scratch)
		bPre, bText := operandText(i.B, fl, loc, rf, rf.Scratch2)
		dst := destName(i.Dst, fl, loc, rf)
		b.WriteString(aPre)
		b.WriteString(bPre)
		fmt.Fprintf(&b, "\tadd\t%s, %s, %s\n", dst, aText, bText)
		b.WriteString(storeIfSpilled(i.Dst, fl, loc, dst))
	case lir.Sub:
		aPre, aText := operandText(i.A, fl, loc, rf, rf.Scratch)
		bPre, bText := operandText(i.B, fl, loc, rf, rf.Scratch2)
		dst := destName(i.Dst, fl, loc, rf)
		b.WriteString(aPre)
		b.WriteString(bPre)
		fmt.Fprintf(&b, "\tsub\t%s, %s, %s\n", dst, aText, bText)
		b.WriteString(storeIfSpilled(i.Dst, fl, loc, dst))
	case lir.Mul:
		aPre, aText := operandText(i.A, fl, loc, rf, rf.Scratch)
		bPre, bText := operandText(i.B, fl, loc, rf, rf.Scratch2)
		dst := destName(i.Dst, fl, loc, rf)
		b.WriteString(aPre)
		b.WriteString(bPre)
		fmt.Fprintf(&b, "\tmul\t%s, %s, %s\n", dst, aText, bText)
		b.WriteString(storeIfSpilled(i.Dst, fl, loc, dst))
	case lir.Div:
		aPre, aText := operandText(i.A, fl, loc, rf, rf.Scratch)
		bPre, bText := operandText(i.B, fl, loc, rf, rf.Scratch2)
		dst := destName(i.Dst, fl, loc, rf)
		b.WriteString(aPre)
		b.WriteString(bPre)
		op := "sdiv"
		if i.Dst.Class == mir.ClassFloat {
			op = "fdiv"
		}
		fmt.Fprintf(&b, "\t%s\t%s, %s, %s\n", op, dst, aText, bText)
		b.WriteString(storeIfSpilled(i.Dst, fl, loc, dst))
	case lir.Mod:
		aPre, aText := operandText(i.A, fl, loc, rf, rf.Scratch)
		bPre, bText := operandText(i.B, fl, loc, rf, rf.Scratch2)
		dst := destName(i.Dst, fl, loc, rf)
		tmp := string(rf.Scratch)
		b.WriteString(aPre)
		b.WriteString(bPre)
		fmt.Fprintf(&b, "\tsdiv\t%s, %s, %s\n", tmp, aText, bText)
		fmt.Fprintf(&b, "\tmsub\t%s, %s, %s, %s\n", dst, tmp, bText, aText)
		b.WriteString(storeIfSpilled(i.Dst, fl, loc, dst))
	case lir.CmpSet:
		aPre, aText := operandText(i.A, fl, loc, rf, rf.Scratch)
		bPre, bText := operandText(i.B, fl, loc, rf, rf.Scratch2)
		dst := destName(i.Dst, fl, loc, rf)
		b.WriteString(aPre)
		b.WriteString(bPre)
		fmt.Fprintf(&b, "\tcmp\t%s, %s\n", aText, bText)
		fmt.Fprintf(&b, "\tcset\t%s, %s\n", dst, cmpSuffix[i.Op])
		b.WriteString(storeIfSpilled(i.Dst, fl, loc, dst))
	case lir.Cast:
		pre, srcText := operandText(i.Src, fl, loc, rf, rf.Scratch)
		dst := destName(i.Dst, fl, loc, rf)
		b.WriteString(pre)
		srcFloat := false
		switch s := i.Src.(type) {
		case lir.ImmF64:
			srcFloat = true
		case lir.RegOperand:
			srcFloat = s.Reg.Class == mir.ClassFloat
		}
		dstFloat := i.Ty.Kind == types.KindFloat
		switch {
		case srcFloat && dstFloat:
			fmt.Fprintf(&b, "\tfmov\t%s, %s\n", dst, srcText)
		case !srcFloat && dstFloat:
			fmt.Fprintf(&b, "\tscvtf\t%s, %s\n", dst, srcText)
		case srcFloat && !dstFloat:
			fmt.Fprintf(&b, "\tfcvtzs\t%s, %s\n", dst, srcText)
		default:
			fmt.Fprintf(&b, "\tmov\t%s, %s\n", dst, srcText)
		}
		b.WriteString(storeIfSpilled(i.Dst, fl, loc, dst))
	case lir.Load:
		pre, addr := addrText(i.Addr, fl, loc, rf, e.isDarwin)
		dst := destName(i.Dst, fl, loc, rf)
		b.WriteString(pre)
		fmt.Fprintf(&b, "\tldr\t%s, %s\n", dst, addr)
		b.WriteString(storeIfSpilled(i.Dst, fl, loc, dst))
	case lir.Store:
		pre, addr := addrText(i.Addr, fl, loc, rf, e.isDarwin)
		srcPre, srcText := operandText(i.Src, fl, loc, rf, rf.Scratch2)
		b.WriteString(pre)
		b.WriteString(srcPre)
		fmt.Fprintf(&b, "\tstr\t%s, %s\n", srcText, addr)
	case lir.Call:
		gpIdx, fpIdx, overflow := 0, 0, 0
		for _, a := range i.Args {
			pre, text := operandText(a, fl, loc, rf, rf.Scratch)
			b.WriteString(pre)
			isFloat := false
			if ro, ok := a.(lir.RegOperand); ok {
				isFloat = ro.Reg.Class == mir.ClassFloat
			}
			switch {
			case isFloat && fpIdx < len(rf.ArgFPR):
				fmt.Fprintf(&b, "\tfmov\t%s, %s\n", rf.ArgFPR[fpIdx], text)
				fpIdx++
			case !isFloat && gpIdx < len(rf.ArgGPR):
				fmt.Fprintf(&b, "\tmov\t%s, %s\n", rf.ArgGPR[gpIdx], text)
				gpIdx++
			default:
				off := fl.OutgoingOffset + int32(overflow)*8
				fmt.Fprintf(&b, "\tstr\t%s, [x29, #%d]\n", text, off)
				overflow++
			}
		}
		switch t := i.Target.(type) {
		case lir.DirectCall:
			fmt.Fprintf(&b, "\tbl\t%s\n", e.symbolName(t.Sym))
		case lir.IndirectCall:
			_, regName := materialize(t.Reg, fl, loc, rf, rf.Scratch)
			fmt.Fprintf(&b, "\tblr\t%s\n", regName)
		}
		if i.Dst != nil {
			dst := destName(*i.Dst, fl, loc, rf)
			retReg := rf.RetGPR
			if i.Dst.Class == mir.ClassFloat {
				retReg = rf.RetFPR
			}
			if dst != regText(*i.Dst, retReg) {
				fmt.Fprintf(&b, "\tmov\t%s, %s\n", dst, regText(*i.Dst, retReg))
			}
			b.WriteString(storeIfSpilled(*i.Dst, fl, loc, dst))
		}
	case lir.Mov:
		pre, srcText := operandText(i.Src, fl, loc, rf, rf.Scratch)
		dst := destName(i.Dst, fl, loc, rf)
		b.WriteString(pre)
		if i.Dst.Class == mir.ClassFloat {
			fmt.Fprintf(&b, "\tfmov\t%s, %s\n", dst, srcText)
		} else {
			fmt.Fprintf(&b, "\tmov\t%s, %s\n", dst, srcText)
		}
		b.WriteString(storeIfSpilled(i.Dst, fl, loc, dst))
	case lir.Lea:
		dst := destName(i.Dst, fl, loc, rf)
		switch x := i.Addr.(type) {
		case lir.LocalAddr:
			fmt.Fprintf(&b, "\tadd\t%s, x29, #%d\n", dst, fl.LocalOffsetOf(x))
		case lir.GlobalAddr:
			pre, addr := addrText(x, fl, loc, rf, e.isDarwin)
			b.WriteString(pre)
			fmt.Fprintf(&b, "\tadd\t%s, %s\n", dst, strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]"))
		default:
			pre, addr := addrText(i.Addr, fl, loc, rf, e.isDarwin)
			b.WriteString(pre)
			fmt.Fprintf(&b, "\tadd\t%s, %s\n", dst, strings.Replace(strings.Replace(addr, "[", "", 1), "]", "", 1))
		}
		b.WriteString(storeIfSpilled(i.Dst, fl, loc, dst))
	}
	return b.String()
}

// EmitTerminator lowers one LIR terminator to assembly text.
func (e *Emitter) EmitTerminator(term lir.Terminator, fl *frame.Layout, loc target.Locator, blockLabel func(id int) string) string {
	rf := e.rf
	var b strings.Builder
	switch t := term.(type) {
	case lir.Ret:
		if t.Value != nil {
			pre, text := operandText(t.Value, fl, loc, rf, rf.Scratch)
			b.WriteString(pre)
			retReg := rf.RetGPR
			if ro, ok := t.Value.(lir.RegOperand); ok && ro.Reg.Class == mir.ClassFloat {
				retReg = rf.RetFPR
			}
			fmt.Fprintf(&b, "\tmov\t%s, %s\n", retReg, text)
		}
		fmt.Fprintf(&b, "\tb\t.Lepilogue\n")
	case lir.Jump:
		fmt.Fprintf(&b, "\tb\t%s\n", blockLabel(int(t.Target)))
	case lir.Branch:
		pre, text := operandText(t.Cond, fl, loc, rf, rf.Scratch)
		b.WriteString(pre)
		fmt.Fprintf(&b, "\tcmp\t%s, #0\n", text)
		fmt.Fprintf(&b, "\tbne\t%s\n", blockLabel(int(t.IfTrue)))
		fmt.Fprintf(&b, "\tb\t%s\n", blockLabel(int(t.IfFalse)))
	}
	return b.String()
}

