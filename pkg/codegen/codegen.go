// Package codegen drives a whole lir.LProgram through register
// allocation, frame layout, and a target.Emitter to produce one
// complete assembly text, bucketed into sections the way a real
// assembler expects them. Grounded on
// original_source/quorc/src/backend/mod.rs's Codegen::generate/emit
// (AsmSection bucketing, per-OS section header selection) and
// ralph-cc/pkg/asm/printer.go's PrintProgram (rodata/data/text ordering,
// runtime.GOOS-driven Darwin section names).
package codegen

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/quorlang/quorc/pkg/frame"
	"github.com/quorlang/quorc/pkg/lir"
	"github.com/quorlang/quorc/pkg/mir"
	"github.com/quorlang/quorc/pkg/regalloc"
	"github.com/quorlang/quorc/pkg/target"
)

// Section buckets one kind of assembly directive, mirroring AsmEmitter's
// text/data/rodata/bss/cstrings split.
type Section int

const (
	Text Section = iota
	Data
	Rodata
	Bss
	Cstring
)

// asm collects emitted lines per section before final concatenation.
type asm struct {
	text, data, rodata, bss, cstring strings.Builder
}

func (a *asm) add(s Section, line string) {
	var b *strings.Builder
	switch s {
	case Text:
		b = &a.text
	case Data:
		b = &a.data
	case Rodata:
		b = &a.rodata
	case Bss:
		b = &a.bss
	case Cstring:
		b = &a.cstring
	}
	b.WriteString(line)
	if !strings.HasSuffix(line, "\n") {
		b.WriteString("\n")
	}
}

// Generate lowers an allocated program to complete assembly text for rf,
// using em to emit per-function bodies. isDarwin selects macOS section
// names and __TEXT/__DATA segment prefixes over Linux's .rodata/.data.
func Generate(prog *lir.LProgram, rf target.RegisterFile, em target.Emitter) string {
	a := &asm{}
	isDarwin := runtime.GOOS == "darwin"

	for _, g := range prog.GlobalConsts {
		line := em.EmitGlobalConst(*prog, g.ID)
		if line == "" {
			continue
		}
		if _, ok := g.Value.(mir.StringValue); ok {
			a.add(Cstring, line)
		} else {
			a.add(Rodata, line)
		}
	}

	var names []string
	for name := range prog.Functions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fn := prog.Functions[name]
		a.add(Text, generateFunction(fn, rf, em))
	}

	return render(a, isDarwin)
}

// generateFunction lowers one function: allocate registers, compute its
// frame layout, then emit the prologue, each block's instructions and
// terminator, and the epilogue.
func generateFunction(fn *lir.LFunction, rf target.RegisterFile, em target.Emitter) string {
	alloc := regalloc.AllocateFunction(fn, rf)

	savedRegBytes := int32(16)
	if rf.LR == "" {
		savedRegBytes = 8
	}
	layout := frame.ComputeLayout(fn, frame.Params{
		CalleeSaveBytes:  int32(len(alloc.UsedCalleeSaved)) * 8,
		SpillSlots:       alloc.SpillSlots,
		SavedRegBytes:    savedRegBytes,
		OutgoingArgBytes: outgoingArgBytes(fn, rf),
	})

	var b strings.Builder
	b.WriteString(em.Prologue(fn, layout, alloc.UsedCalleeSaved))

	blockLabel := func(id int) string { return fmt.Sprintf(".L%s_%d", fn.Name, id) }

	for _, blk := range fn.Blocks {
		fmt.Fprintf(&b, "%s:\n", blockLabel(int(blk.ID)))
		for _, inst := range blk.Inst {
			b.WriteString(em.EmitInstruction(inst, layout, alloc))
		}
		b.WriteString(em.EmitTerminator(blk.Term, layout, alloc, blockLabel))
	}

	fmt.Fprintf(&b, ".Lepilogue:\n")
	b.WriteString(em.Epilogue(fn, layout, alloc.UsedCalleeSaved))

	return b.String()
}

// outgoingArgBytes finds the largest argument area any call site in fn
// needs for stack-passed arguments beyond the calling convention's
// register slots.
func outgoingArgBytes(fn *lir.LFunction, rf target.RegisterFile) int32 {
	max := int32(0)
	for _, blk := range fn.Blocks {
		for _, inst := range blk.Inst {
			call, ok := inst.(lir.Call)
			if !ok {
				continue
			}
			gp, fp := 0, 0
			for _, a := range call.Args {
				ro, ok := a.(lir.RegOperand)
				if ok && ro.Reg.Class == mir.ClassFloat {
					fp++
				} else {
					gp++
				}
			}
			overflow := int32(0)
			if gp > len(rf.ArgGPR) {
				overflow += int32(gp - len(rf.ArgGPR))
			}
			if fp > len(rf.ArgFPR) {
				overflow += int32(fp - len(rf.ArgFPR))
			}
			if need := overflow * 8; need > max {
				max = need
			}
		}
	}
	return max
}

func render(a *asm, isDarwin bool) string {
	var b strings.Builder
	if a.cstring.Len() > 0 {
		if isDarwin {
			fmt.Fprintf(&b, "\t.section\t__TEXT,__cstring\n")
		} else {
			fmt.Fprintf(&b, "\t.section\t.rodata\n")
		}
		b.WriteString(a.cstring.String())
	}
	if a.rodata.Len() > 0 {
		if isDarwin {
			fmt.Fprintf(&b, "\t.section\t__TEXT,__const\n")
		} else {
			fmt.Fprintf(&b, "\t.section\t.rodata\n")
		}
		b.WriteString(a.rodata.String())
	}
	if a.data.Len() > 0 {
		if isDarwin {
			fmt.Fprintf(&b, "\t.section\t__DATA,__data\n")
		} else {
			fmt.Fprintf(&b, "\t.data\n")
		}
		b.WriteString(a.data.String())
	}
	if a.bss.Len() > 0 {
		if isDarwin {
			fmt.Fprintf(&b, "\t.section\t__DATA,__bss\n")
		} else {
			fmt.Fprintf(&b, "\t.bss\n")
		}
		b.WriteString(a.bss.String())
	}
	if isDarwin {
		fmt.Fprintf(&b, "\t.section\t__TEXT,__text\n")
	} else {
		fmt.Fprintf(&b, "\t.text\n")
	}
	b.WriteString(a.text.String())
	return b.String()
}
