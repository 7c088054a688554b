package smiles

import (
	"fmt"
	"sort"
	"strings"
)

// freeValenceH computes the hydrogen count atom i would receive implicitly,
// ignoring any explicit bracket count. The canonical writer compares this
// with the actual count to decide whether an atom needs brackets.
func freeValenceH(m *Molecule, i int) int {
	a := m.Atoms[i]
	valences, ok := defaultValences[a.Element]
	if !ok || a.Charge != 0 {
		return 0
	}

	sum := bondOrderSum(m, i)

	if a.Aromatic {
		if a.Element == "C" && sum < 4 {
			return 4 - sum
		}
		return 0
	}

	for _, v := range valences {
		if sum <= v {
			return v - sum
		}
	}
	return 0
}

// canonicalRanks assigns each atom a unique canonical rank using iterative
// invariant refinement. The initial invariant covers element, degree, charge,
// hydrogen count, aromaticity and isotope; refinement folds in sorted
// neighbor ranks until the partition stabilizes, then ties are broken
// deterministically and refinement resumes.
func canonicalRanks(m *Molecule) []int {
	n := len(m.Atoms)
	if n == 1 {
		return []int{0}
	}

	keys := make([][]int, n)
	for i, a := range m.Atoms {
		arom := 0
		if a.Aromatic {
			arom = 1
		}
		keys[i] = []int{
			atomicNumbers[a.Element],
			len(a.bonds),
			a.Charge,
			implicitHCount(m, i),
			arom,
			a.Isotope,
		}
	}
	ranks := rankByKey(keys)

	ranks = refine(m, ranks)

	// Break remaining ties (symmetry classes) one atom at a time.
	for classCount(ranks) < n {
		// The tied class with the smallest rank, its member with the
		// smallest atom index.
		tieRank, tieAtom := -1, -1
		for i, r := range ranks {
			if count(ranks, r) > 1 && (tieRank < 0 || r < tieRank) {
				tieRank, tieAtom = r, i
			}
		}
		for i := range ranks {
			ranks[i] *= 2
		}
		ranks[tieAtom]--
		ranks = normalizeRanks(ranks)
		ranks = refine(m, ranks)
	}

	return ranks
}

// refine iterates neighbor-rank refinement until the number of distinct
// ranks stops growing.
func refine(m *Molecule, ranks []int) []int {
	n := len(m.Atoms)
	for {
		before := classCount(ranks)

		keys := make([][]int, n)
		for i := range m.Atoms {
			nbr := make([]int, 0, len(m.Atoms[i].bonds))
			for _, nb := range m.neighbors(i) {
				b := m.Bonds[nb.bond]
				order := b.Order
				if b.Aromatic {
					order = 4 // distinct from single/double/triple
				}
				nbr = append(nbr, ranks[nb.atom]*8+order)
			}
			sort.Ints(nbr)
			keys[i] = append([]int{ranks[i]}, nbr...)
		}
		ranks = rankByKey(keys)

		if classCount(ranks) == before {
			return ranks
		}
	}
}

func rankByKey(keys [][]int) []int {
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return lessIntSlice(keys[idx[a]], keys[idx[b]])
	})

	ranks := make([]int, len(keys))
	rank := 0
	for i, id := range idx {
		if i > 0 && lessIntSlice(keys[idx[i-1]], keys[id]) {
			rank++
		}
		ranks[id] = rank
	}
	return ranks
}

func lessIntSlice(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func normalizeRanks(ranks []int) []int {
	keys := make([][]int, len(ranks))
	for i, r := range ranks {
		keys[i] = []int{r}
	}
	return rankByKey(keys)
}

func classCount(ranks []int) int {
	seen := make(map[int]bool, len(ranks))
	for _, r := range ranks {
		seen[r] = true
	}
	return len(seen)
}

func count(ranks []int, r int) int {
	c := 0
	for _, x := range ranks {
		if x == r {
			c++
		}
	}
	return c
}

// writer emits the canonical SMILES string for a molecule with assigned
// canonical ranks.
type writer struct {
	m     *Molecule
	ranks []int

	sb         strings.Builder
	visited    []bool
	usedBond   []bool
	closures   map[int]bool // bond index -> is a ring-closure bond
	closureNum map[int]int  // bond index -> assigned ring number
	numInUse   map[int]bool // ring numbers currently open
}

func write(m *Molecule, ranks []int) string {
	w := &writer{
		m:          m,
		ranks:      ranks,
		visited:    make([]bool, len(m.Atoms)),
		usedBond:   make([]bool, len(m.Bonds)),
		closures:   make(map[int]bool),
		closureNum: make(map[int]int),
		numInUse:   make(map[int]bool),
	}

	start := 0
	for i := range m.Atoms {
		if ranks[i] < ranks[start] {
			start = i
		}
	}

	w.findClosures(start)

	for i := range w.visited {
		w.visited[i] = false
	}
	for i := range w.usedBond {
		w.usedBond[i] = false
	}

	w.writeAtom(start)
	return w.sb.String()
}

// orderedNeighbors returns the neighbors of atom i sorted by canonical rank.
func (w *writer) orderedNeighbors(i int) []neighbor {
	ns := w.m.neighbors(i)
	sort.Slice(ns, func(a, b int) bool {
		return w.ranks[ns[a].atom] < w.ranks[ns[b].atom]
	})
	return ns
}

// findClosures walks the spanning tree once to classify ring-closure bonds.
func (w *writer) findClosures(atom int) {
	w.visited[atom] = true
	for _, nb := range w.orderedNeighbors(atom) {
		if w.usedBond[nb.bond] {
			continue
		}
		if w.visited[nb.atom] {
			w.usedBond[nb.bond] = true
			w.closures[nb.bond] = true
			continue
		}
		w.usedBond[nb.bond] = true
		w.findClosures(nb.atom)
	}
}

func (w *writer) writeAtom(atom int) {
	w.visited[atom] = true
	w.sb.WriteString(w.atomString(atom))

	// Ring-closure digits attached to this atom, in traversal order.
	// Numbers of rings closed here are recycled only after the whole digit
	// run, so a close and an open on one atom never share a number.
	var closed []int
	for _, nb := range w.orderedNeighbors(atom) {
		if !w.closures[nb.bond] {
			continue
		}
		num, open := w.closureNum[nb.bond]
		if !open {
			num = w.allocClosureNum()
			w.closureNum[nb.bond] = num
			// The bond symbol is written at the opening digit only.
			w.sb.WriteString(w.bondString(nb.bond))
		} else {
			closed = append(closed, num)
		}
		if num >= 10 {
			fmt.Fprintf(&w.sb, "%%%02d", num)
		} else {
			fmt.Fprintf(&w.sb, "%d", num)
		}
	}
	for _, num := range closed {
		delete(w.numInUse, num)
	}

	// Tree children.
	children := make([]neighbor, 0, 4)
	for _, nb := range w.orderedNeighbors(atom) {
		if w.closures[nb.bond] || w.visited[nb.atom] {
			continue
		}
		children = append(children, nb)
	}

	for i, nb := range children {
		if i < len(children)-1 {
			w.sb.WriteByte('(')
			w.sb.WriteString(w.bondString(nb.bond))
			w.writeAtom(nb.atom)
			w.sb.WriteByte(')')
		} else {
			w.sb.WriteString(w.bondString(nb.bond))
			w.writeAtom(nb.atom)
		}
	}
}

// allocClosureNum hands out the smallest ring number not currently open.
func (w *writer) allocClosureNum() int {
	for n := 1; ; n++ {
		if !w.numInUse[n] {
			w.numInUse[n] = true
			return n
		}
	}
}

func (w *writer) bondString(bi int) string {
	b := w.m.Bonds[bi]
	switch {
	case b.Aromatic:
		return ""
	case b.Order == BondDouble:
		return "="
	case b.Order == BondTriple:
		return "#"
	case w.m.Atoms[b.From].Aromatic && w.m.Atoms[b.To].Aromatic:
		// Explicit single bond between two aromatic systems (biphenyl).
		return "-"
	default:
		return ""
	}
}

func (w *writer) atomString(i int) string {
	a := w.m.Atoms[i]

	name := a.Element
	if a.Aromatic {
		name = strings.ToLower(name)
	}

	hCount := implicitHCount(w.m, i)
	plain := organicSubset[a.Element] &&
		a.Isotope == 0 &&
		a.Charge == 0 &&
		hCount == freeValenceH(w.m, i)

	if plain {
		return name
	}

	var sb strings.Builder
	sb.WriteByte('[')
	if a.Isotope > 0 {
		fmt.Fprintf(&sb, "%d", a.Isotope)
	}
	sb.WriteString(name)
	if hCount == 1 {
		sb.WriteByte('H')
	} else if hCount > 1 {
		fmt.Fprintf(&sb, "H%d", hCount)
	}
	switch {
	case a.Charge == 1:
		sb.WriteByte('+')
	case a.Charge == -1:
		sb.WriteByte('-')
	case a.Charge > 1:
		fmt.Fprintf(&sb, "+%d", a.Charge)
	case a.Charge < -1:
		fmt.Fprintf(&sb, "-%d", -a.Charge)
	}
	sb.WriteByte(']')
	return sb.String()
}
