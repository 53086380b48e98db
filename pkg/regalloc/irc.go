package regalloc

// classResult is one register class's (Int or Float) coloring result,
// before it's translated into target.Loc values by AllocateFunction.
type classResult struct {
	colors     map[Reg]int // color index into the class's allocatable list
	spillSlot  map[Reg]int
	spilled    RegSet
	nextSpill  int
}

// allocator runs Iterated Register Coalescing for one register class.
// Adapted from the teacher's single hardcoded ARM64 allocator into one
// parameterized by an arbitrary allocatable register list and a
// precoloring function, so the same algorithm drives both GPR and FPR
// passes on any target.RegisterFile.
type allocator struct {
	graph    *InterferenceGraph
	k        int
	firstCalleeSaved int

	colors    map[Reg]int
	spillSlot map[Reg]int

	simplifyWorklist []Reg
	freezeWorklist   []Reg
	spillWorklist    []Reg
	coalescedNodes   RegSet
	coloredNodes     RegSet
	spilledNodes     RegSet
	selectStack      []Reg

	alias map[Reg]Reg

	worklistMoves [][2]Reg
	activeMoves   [][2]Reg
	frozenMoves   [][2]Reg

	nextSpillSlot int
	startSpillSlot int

	precolored map[Reg]int // register already fixed to a color (e.g. a param)
}

func newAllocator(graph *InterferenceGraph, k, firstCalleeSaved, startSpillSlot int, precolored map[Reg]int) *allocator {
	a := &allocator{
		graph:            graph,
		k:                k,
		firstCalleeSaved: firstCalleeSaved,
		colors:           make(map[Reg]int),
		spillSlot:        make(map[Reg]int),
		coalescedNodes:   NewRegSet(),
		coloredNodes:     NewRegSet(),
		spilledNodes:     NewRegSet(),
		alias:            make(map[Reg]Reg),
		nextSpillSlot:    startSpillSlot,
		startSpillSlot:   startSpillSlot,
		precolored:       precolored,
	}
	for r, c := range precolored {
		a.colors[r] = c
		a.coloredNodes.Add(r)
	}
	return a
}

func (a *allocator) allocate() *classResult {
	a.buildWorklists()
	for {
		switch {
		case len(a.simplifyWorklist) > 0:
			a.simplify()
		case len(a.worklistMoves) > 0:
			a.coalesce()
		case len(a.freezeWorklist) > 0:
			a.freeze()
		case len(a.spillWorklist) > 0:
			a.selectSpill()
		default:
			return a.assignColorsAndBuild()
		}
	}
}

func (a *allocator) buildWorklists() {
	for r := range a.graph.Nodes {
		if _, pre := a.precolored[r]; pre {
			continue
		}
		if a.degree(r) >= a.k {
			a.spillWorklist = append(a.spillWorklist, r)
		} else if a.graph.MoveRelated(r) {
			a.freezeWorklist = append(a.freezeWorklist, r)
		} else {
			a.simplifyWorklist = append(a.simplifyWorklist, r)
		}
	}
	for r, prefs := range a.graph.Preferences {
		for p := range prefs {
			if regLess(r, p) {
				a.worklistMoves = append(a.worklistMoves, [2]Reg{r, p})
			}
		}
	}
}

func (a *allocator) degree(r Reg) int {
	deg := 0
	for n := range a.graph.Edges[r] {
		if !a.coalescedNodes.Contains(n) {
			deg++
		}
	}
	return deg
}

func (a *allocator) simplify() {
	n := len(a.simplifyWorklist) - 1
	r := a.simplifyWorklist[n]
	a.simplifyWorklist = a.simplifyWorklist[:n]
	a.selectStack = append(a.selectStack, r)
	for neighbor := range a.graph.Edges[r] {
		a.decrementDegree(neighbor)
	}
}

func (a *allocator) decrementDegree(r Reg) {
	if a.coalescedNodes.Contains(r) {
		return
	}
	if _, pre := a.precolored[r]; pre {
		return
	}
	if a.degree(r) == a.k-1 {
		a.removeFromWorklist(r, &a.spillWorklist)
		if a.graph.MoveRelated(r) {
			a.freezeWorklist = append(a.freezeWorklist, r)
		} else {
			a.simplifyWorklist = append(a.simplifyWorklist, r)
		}
	}
}

func (a *allocator) removeFromWorklist(r Reg, list *[]Reg) {
	for i, x := range *list {
		if x == r {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}

func (a *allocator) coalesce() {
	n := len(a.worklistMoves) - 1
	m := a.worklistMoves[n]
	a.worklistMoves = a.worklistMoves[:n]

	x := a.getAlias(m[0])
	y := a.getAlias(m[1])

	var u, v Reg
	if regLess(x, y) {
		u, v = x, y
	} else {
		u, v = y, x
	}

	// Precolored nodes must always be the surviving node 'u' if either
	// side of the move is precolored.
	if _, pre := a.precolored[v]; pre {
		u, v = v, u
	}

	switch {
	case u == v:
		a.addToWorklist(u)
	case a.graph.HasEdge(u, v):
		a.addToWorklist(u)
		a.addToWorklist(v)
	case a.canCoalesce(u, v):
		a.combine(u, v)
		a.addToWorklist(u)
	default:
		a.activeMoves = append(a.activeMoves, m)
	}
}

func (a *allocator) getAlias(r Reg) Reg {
	if a.coalescedNodes.Contains(r) {
		return a.getAlias(a.alias[r])
	}
	return r
}

// canCoalesce applies the Briggs conservative criterion, except when u
// is precolored: a precolored node can absorb v as long as v's other
// neighbors remain low-degree (George's criterion), since a precolored
// node effectively has infinite degree itself.
func (a *allocator) canCoalesce(u, v Reg) bool {
	if _, pre := a.precolored[u]; pre {
		for n := range a.graph.Edges[v] {
			if a.coalescedNodes.Contains(n) {
				continue
			}
			if _, npre := a.precolored[n]; npre {
				continue
			}
			if a.degree(n) >= a.k && !a.graph.HasEdge(n, u) {
				return false
			}
		}
		return true
	}

	highDegree := 0
	neighbors := NewRegSet()
	for n := range a.graph.Edges[u] {
		if !a.coalescedNodes.Contains(n) {
			neighbors.Add(n)
		}
	}
	for n := range a.graph.Edges[v] {
		if !a.coalescedNodes.Contains(n) {
			neighbors.Add(n)
		}
	}
	for n := range neighbors {
		if a.degree(n) >= a.k {
			highDegree++
		}
	}
	return highDegree < a.k
}

func (a *allocator) combine(u, v Reg) {
	a.removeFromWorklist(v, &a.freezeWorklist)
	a.removeFromWorklist(v, &a.spillWorklist)

	a.coalescedNodes.Add(v)
	a.alias[v] = u

	if a.graph.LiveAcrossCalls.Contains(v) {
		a.graph.LiveAcrossCalls.Add(u)
	}

	for n := range a.graph.Edges[v] {
		if !a.coalescedNodes.Contains(n) && n != u {
			a.graph.AddEdge(u, n)
			a.decrementDegree(n)
		}
	}
	for n := range a.graph.Preferences[v] {
		if n != u {
			a.graph.AddPreference(u, n)
		}
	}

	if _, pre := a.precolored[u]; !pre && a.degree(u) >= a.k {
		a.removeFromWorklist(u, &a.freezeWorklist)
		a.spillWorklist = append(a.spillWorklist, u)
	}
}

func (a *allocator) addToWorklist(r Reg) {
	if a.coalescedNodes.Contains(r) {
		return
	}
	if _, pre := a.precolored[r]; pre {
		return
	}
	if a.degree(r) < a.k && !a.graph.MoveRelated(r) {
		a.removeFromWorklist(r, &a.freezeWorklist)
		a.simplifyWorklist = append(a.simplifyWorklist, r)
	}
}

func (a *allocator) freeze() {
	n := len(a.freezeWorklist) - 1
	r := a.freezeWorklist[n]
	a.freezeWorklist = a.freezeWorklist[:n]
	a.simplifyWorklist = append(a.simplifyWorklist, r)
	a.freezeMovesFor(r)
}

func (a *allocator) freezeMovesFor(r Reg) {
	var remaining [][2]Reg
	for _, m := range a.activeMoves {
		if m[0] == r || m[1] == r {
			a.frozenMoves = append(a.frozenMoves, m)
			other := m[1]
			if m[0] != r {
				other = m[0]
			}
			a.addToWorklist(other)
		} else {
			remaining = append(remaining, m)
		}
	}
	a.activeMoves = remaining
}

func (a *allocator) selectSpill() {
	maxDeg, maxIdx := -1, -1
	var maxReg Reg
	for i, r := range a.spillWorklist {
		d := a.degree(r)
		if d > maxDeg || maxIdx == -1 {
			maxDeg, maxReg, maxIdx = d, r, i
		}
	}
	if maxIdx >= 0 {
		a.spillWorklist = append(a.spillWorklist[:maxIdx], a.spillWorklist[maxIdx+1:]...)
		a.simplifyWorklist = append(a.simplifyWorklist, maxReg)
		a.freezeMovesFor(maxReg)
	}
}

func (a *allocator) assignColorsAndBuild() *classResult {
	for len(a.selectStack) > 0 {
		n := len(a.selectStack) - 1
		r := a.selectStack[n]
		a.selectStack = a.selectStack[:n]

		used := make(map[int]bool)
		for neighbor := range a.graph.Edges[r] {
			alias := a.getAlias(neighbor)
			if a.coloredNodes.Contains(alias) {
				used[a.colors[alias]] = true
			}
		}

		start := 0
		if a.graph.LiveAcrossCalls.Contains(r) {
			start = a.firstCalleeSaved
		}

		color := -1
		for c := start; c < a.k; c++ {
			if !used[c] {
				color = c
				break
			}
		}

		if color >= 0 {
			a.coloredNodes.Add(r)
			a.colors[r] = color
		} else {
			a.spilledNodes.Add(r)
			a.spillSlot[r] = a.nextSpillSlot
			a.nextSpillSlot++
		}
	}

	for r := range a.coalescedNodes {
		alias := a.getAlias(r)
		if a.coloredNodes.Contains(alias) {
			a.colors[r] = a.colors[alias]
			a.coloredNodes.Add(r)
		} else if a.spilledNodes.Contains(alias) {
			a.spilledNodes.Add(r)
			a.spillSlot[r] = a.spillSlot[alias]
		}
	}

	return &classResult{
		colors:    a.colors,
		spillSlot: a.spillSlot,
		spilled:   a.spilledNodes,
		nextSpill: a.nextSpillSlot,
	}
}
