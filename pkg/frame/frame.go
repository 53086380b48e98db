// Package frame computes concrete stack frame layouts from an LFunction,
// generalizing the teacher's single ARM64 layout to any calling
// convention pkg/target describes.
package frame

import (
	"github.com/quorlang/quorc/pkg/lir"
)

const stackAlignment = 16

// Layout describes one function's concrete stack frame, expressed as
// offsets from the frame pointer the way pkg/emit's prologue/epilogue
// and addressing-mode text expect them.
//
//	+---------------------------+  <- old SP (before call)
//	| return address            |
//	| saved old FP              |
//	+---------------------------+  <- FP
//	| callee-saved registers    |
//	| spill slots               |
//	| locals                    |
//	| outgoing arguments        |
//	+---------------------------+  <- SP (16-byte aligned)
type Layout struct {
	CalleeSaveSize int32
	SpillSize      int32
	LocalSize      int32
	OutgoingSize   int32

	CalleeSaveOffset int32
	SpillOffset      int32
	LocalOffset      int32
	OutgoingOffset   int32

	TotalSize int32

	// SavedRegBytes is how many bytes the prologue/epilogue save for the
	// FP/LR pair (16 on AArch64, 8 on x86-64 where there's no LR slot).
	SavedRegBytes int32
}

// Params bundles the inputs ComputeLayout needs beyond the function body
// itself: how many bytes regalloc's callee-save set requires, how many
// 8-byte spill slots it used, and the target's saved-register-pair size.
type Params struct {
	CalleeSaveBytes int32
	SpillSlots      int
	// SavedRegBytes is 16 on AArch64 (FP+LR), 8 on x86-64 (saved RBP only;
	// the return address lives on the stack and isn't part of the frame
	// the callee owns).
	SavedRegBytes int32
	// OutgoingArgBytes is the largest argument area any call site in the
	// function needs for stack-passed arguments, 0 if every call's
	// arguments fit in argument registers.
	OutgoingArgBytes int32
}

// ComputeLayout lays out fn's stack frame. Local slot sizes aren't
// tracked anywhere upstream of LIR -- a local only ever appears as a
// LocalAddr{Index,Offset} pair on some Load/Store/Lea -- so the local
// area size is inferred here by scanning every such occurrence and
// taking the maximum extent touched per index.
func ComputeLayout(fn *lir.LFunction, p Params) *Layout {
	if fn.NoFrame {
		return &Layout{}
	}

	localSize := inferLocalSize(fn)

	l := &Layout{
		CalleeSaveSize: alignUp32(p.CalleeSaveBytes, 8),
		SpillSize:      int32(p.SpillSlots) * 8,
		LocalSize:      alignUp32(localSize, 8),
		OutgoingSize:   alignUp32(p.OutgoingArgBytes, 8),
		SavedRegBytes:  p.SavedRegBytes,
	}

	l.CalleeSaveOffset = l.SavedRegBytes
	l.SpillOffset = l.CalleeSaveOffset + l.CalleeSaveSize
	l.LocalOffset = l.SpillOffset + l.SpillSize
	l.OutgoingOffset = l.LocalOffset + l.LocalSize

	body := l.CalleeSaveSize + l.SpillSize + l.LocalSize + l.OutgoingSize
	body = alignUp32(body, stackAlignment)
	l.TotalSize = body + l.SavedRegBytes

	return l
}

// LocalOffsetOf returns the concrete FP-relative offset for a LocalAddr.
func (l *Layout) LocalOffsetOf(a lir.LocalAddr) int32 {
	return l.LocalOffset + int32(a.Index)*8 + a.Offset
}

// SpillOffsetOf returns the concrete FP-relative offset for a spill slot.
func (l *Layout) SpillOffsetOf(slot int) int32 {
	return l.SpillOffset + int32(slot)*8
}

// inferLocalSize returns how many bytes the local area needs, at 8 bytes
// per local index.
// LocalOffsetOf spaces each local index 8 bytes apart regardless of its
// own size, so this only needs the highest index any LocalAddr touches.
func inferLocalSize(fn *lir.LFunction) int32 {
	maxIndex := -1
	touch := func(a lir.Addr) {
		if la, ok := a.(lir.LocalAddr); ok && la.Index > maxIndex {
			maxIndex = la.Index
		}
	}
	for _, b := range fn.Blocks {
		for _, instr := range b.Inst {
			switch i := instr.(type) {
			case lir.Load:
				touch(i.Addr)
			case lir.Store:
				touch(i.Addr)
			case lir.Lea:
				touch(i.Addr)
			}
		}
	}
	if maxIndex < 0 {
		return 0
	}
	return int32(maxIndex+1) * 8
}

func alignUp32(n, align int32) int32 {
	if align == 0 {
		return n
	}
	return ((n + align - 1) / align) * align
}
