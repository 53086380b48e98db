package regalloc

import (
	"sort"

	"github.com/quorlang/quorc/pkg/mir"
)

// Reg is the virtual register regalloc colors, carried over unchanged
// from lir.Reg / mir.VReg.
type Reg = mir.VReg

// RegSet is a set of virtual registers.
type RegSet map[Reg]struct{}

func NewRegSet() RegSet {
	return make(RegSet)
}

func (s RegSet) Add(r Reg) {
	s[r] = struct{}{}
}

func (s RegSet) Contains(r Reg) bool {
	_, ok := s[r]
	return ok
}

func (s RegSet) Remove(r Reg) {
	delete(s, r)
}

func (s RegSet) Union(other RegSet) RegSet {
	u := NewRegSet()
	for r := range s {
		u.Add(r)
	}
	for r := range other {
		u.Add(r)
	}
	return u
}

func (s RegSet) Minus(other RegSet) RegSet {
	d := NewRegSet()
	for r := range s {
		if !other.Contains(r) {
			d.Add(r)
		}
	}
	return d
}

func (s RegSet) Equal(other RegSet) bool {
	if len(s) != len(other) {
		return false
	}
	for r := range s {
		if !other.Contains(r) {
			return false
		}
	}
	return true
}

func (s RegSet) Copy() RegSet {
	c := NewRegSet()
	for r := range s {
		c.Add(r)
	}
	return c
}

func (s RegSet) Slice() []Reg {
	out := make([]Reg, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	return out
}

// regLess gives virtual registers a total order, needed wherever the
// allocator must make a deterministic choice between two registers
// (coalescing which node survives, sorting for stable output) since
// Reg is a struct and has no natural ordering operator.
func regLess(a, b Reg) bool {
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	if a.Class != b.Class {
		return a.Class < b.Class
	}
	return a.Width < b.Width
}

// SortedRegSlice returns a deterministically ordered slice, for tests
// and debug output.
func SortedRegSlice(s RegSet) []Reg {
	out := s.Slice()
	sort.Slice(out, func(i, j int) bool { return regLess(out[i], out[j]) })
	return out
}
