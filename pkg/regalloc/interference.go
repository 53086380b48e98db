package regalloc

import "github.com/quorlang/quorc/pkg/lir"

// InterferenceGraph represents the register interference graph. Two
// registers interfere if they are both live at the same point.
type InterferenceGraph struct {
	Nodes           RegSet
	Edges           map[Reg]RegSet
	Preferences     map[Reg]RegSet
	LiveAcrossCalls RegSet
}

func NewInterferenceGraph() *InterferenceGraph {
	return &InterferenceGraph{
		Nodes:           NewRegSet(),
		Edges:           make(map[Reg]RegSet),
		Preferences:     make(map[Reg]RegSet),
		LiveAcrossCalls: NewRegSet(),
	}
}

func (g *InterferenceGraph) AddNode(r Reg) {
	g.Nodes.Add(r)
	if g.Edges[r] == nil {
		g.Edges[r] = NewRegSet()
	}
	if g.Preferences[r] == nil {
		g.Preferences[r] = NewRegSet()
	}
}

func (g *InterferenceGraph) AddEdge(r1, r2 Reg) {
	if r1 == r2 {
		return
	}
	g.AddNode(r1)
	g.AddNode(r2)
	g.Edges[r1].Add(r2)
	g.Edges[r2].Add(r1)
}

func (g *InterferenceGraph) AddPreference(r1, r2 Reg) {
	if r1 == r2 {
		return
	}
	g.AddNode(r1)
	g.AddNode(r2)
	g.Preferences[r1].Add(r2)
	g.Preferences[r2].Add(r1)
}

func (g *InterferenceGraph) HasEdge(r1, r2 Reg) bool {
	if edges, ok := g.Edges[r1]; ok {
		return edges.Contains(r2)
	}
	return false
}

func (g *InterferenceGraph) Degree(r Reg) int {
	return len(g.Edges[r])
}

func (g *InterferenceGraph) Neighbors(r Reg) RegSet {
	if edges, ok := g.Edges[r]; ok {
		return edges.Copy()
	}
	return NewRegSet()
}

func (g *InterferenceGraph) RemoveNode(r Reg) {
	if edges, ok := g.Edges[r]; ok {
		for neighbor := range edges {
			delete(g.Edges[neighbor], r)
		}
	}
	if prefs, ok := g.Preferences[r]; ok {
		for neighbor := range prefs {
			delete(g.Preferences[neighbor], r)
		}
	}
	delete(g.Nodes, r)
	delete(g.Edges, r)
	delete(g.Preferences, r)
}

func (g *InterferenceGraph) MoveRelated(r Reg) bool {
	return len(g.Preferences[r]) > 0
}

// BuildInterferenceGraph constructs the interference graph for one class
// of registers (Int or Float) from liveness info: nodes of the other
// class never interfere with these, since pkg/lir keeps GPR and FPR
// virtual registers in disjoint spaces, so the caller filters by class
// before calling this.
func BuildInterferenceGraph(fn *lir.LFunction, liveness *LivenessInfo, include func(Reg) bool) *InterferenceGraph {
	g := NewInterferenceGraph()

	for _, param := range fn.Params {
		if include(param) {
			g.AddNode(param)
		}
	}
	for n, def := range liveness.Def {
		for r := range def {
			if include(r) {
				g.AddNode(r)
			}
		}
		for r := range liveness.Use[n] {
			if include(r) {
				g.AddNode(r)
			}
		}
	}

	for _, b := range fn.Blocks {
		for i, instr := range b.Inst {
			n := Node{Block: b.ID, Index: i}
			def := liveness.Def[n]
			liveOut := liveness.LiveOut[n]

			moveSrc, isMove := isMoveNode(instr)
			for defReg := range def {
				if !include(defReg) {
					continue
				}
				for liveReg := range liveOut {
					if !include(liveReg) {
						continue
					}
					if isMove && moveSrc == liveReg {
						continue
					}
					g.AddEdge(defReg, liveReg)
				}
			}

			if isCallNode(instr) {
				for liveReg := range liveOut {
					if include(liveReg) {
						g.LiveAcrossCalls.Add(liveReg)
					}
				}
			}
		}
	}

	// Used parameters interfere with every other node: they arrive in
	// fixed argument registers, so nothing else may use that register
	// until the parameter's last use. Conservative, but simple.
	for _, param := range fn.Params {
		if !include(param) {
			continue
		}
		used := false
		for _, use := range liveness.Use {
			if use.Contains(param) {
				used = true
				break
			}
		}
		if !used {
			continue
		}
		for other := range g.Nodes {
			if other != param {
				g.AddEdge(param, other)
			}
		}
	}

	for _, b := range fn.Blocks {
		for _, instr := range b.Inst {
			if src, ok := isMoveNode(instr); ok {
				dst := instr.(lir.Mov).Dst
				if include(dst) && include(src) {
					g.AddPreference(dst, src)
				}
			}
		}
	}

	return g
}
