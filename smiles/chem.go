package smiles

// atomicNumbers maps element symbols to atomic numbers. Canonical ranking
// needs a stable element ordering; atomic number provides it.
var atomicNumbers = map[string]int{
	"H": 1, "He": 2, "Li": 3, "Be": 4, "B": 5, "C": 6, "N": 7, "O": 8,
	"F": 9, "Ne": 10, "Na": 11, "Mg": 12, "Al": 13, "Si": 14, "P": 15,
	"S": 16, "Cl": 17, "Ar": 18, "K": 19, "Ca": 20, "Ti": 22, "Cr": 24,
	"Mn": 25, "Fe": 26, "Co": 27, "Ni": 28, "Cu": 29, "Zn": 30, "Ga": 31,
	"Ge": 32, "As": 33, "Se": 34, "Br": 35, "Kr": 36, "Rb": 37, "Sr": 38,
	"Mo": 42, "Ru": 44, "Rh": 45, "Pd": 46, "Ag": 47, "Cd": 48, "In": 49,
	"Sn": 50, "Sb": 51, "Te": 52, "I": 53, "Xe": 54, "Cs": 55, "Ba": 56,
	"W": 74, "Pt": 78, "Au": 79, "Hg": 80, "Tl": 81, "Pb": 82, "Bi": 83,
}

// defaultValences lists the allowed valences (ascending) for SMILES
// implicit-hydrogen computation over the organic subset.
var defaultValences = map[string][]int{
	"B":  {3},
	"C":  {4},
	"N":  {3, 5},
	"O":  {2},
	"P":  {3, 5},
	"S":  {2, 4, 6},
	"F":  {1},
	"Cl": {1},
	"Br": {1},
	"I":  {1},
	"H":  {1},
}

// organicSubset lists the elements writable without brackets.
var organicSubset = map[string]bool{
	"B": true, "C": true, "N": true, "O": true, "P": true, "S": true,
	"F": true, "Cl": true, "Br": true, "I": true,
}

func aromaticCapable(sym string) bool {
	switch sym {
	case "B", "C", "N", "O", "P", "S", "Se", "As":
		return true
	}
	return false
}

// bondOrderSum returns the total bond order at atom i.
// Aromatic bonds count as 1; an aromatic atom carries an extra +1 for the
// delocalized pi system, which matches the conventional SMILES hydrogen rule
// (aromatic carbon in benzene: 2 ring bonds + 1 = 3, one implicit hydrogen).
func bondOrderSum(m *Molecule, i int) int {
	sum := 0
	for _, bi := range m.Atoms[i].bonds {
		b := m.Bonds[bi]
		if b.Aromatic {
			sum++
		} else {
			sum += b.Order
		}
	}
	if m.Atoms[i].Aromatic {
		sum++
	}
	return sum
}

// implicitHCount returns the hydrogen count of atom i: the explicit bracket
// count when present, otherwise the implicit count for the organic subset.
func implicitHCount(m *Molecule, i int) int {
	a := m.Atoms[i]
	if a.HCount >= 0 {
		return a.HCount
	}

	valences, ok := defaultValences[a.Element]
	if !ok || a.Charge != 0 {
		return 0
	}

	sum := bondOrderSum(m, i)

	if a.Aromatic {
		// Aromatic nitrogen contributes its lone pair (pyridine-like) and
		// pyrrole-like nitrogens must spell their hydrogen explicitly, so
		// only aromatic carbon receives an implicit hydrogen.
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

// ringMembership reports, for every atom and bond, whether it lies on a cycle.
func ringMembership(m *Molecule) (atomInRing []bool, bondInRing []bool) {
	atomInRing = make([]bool, len(m.Atoms))
	bondInRing = make([]bool, len(m.Bonds))

	for bi, b := range m.Bonds {
		if pathExists(m, b.From, b.To, bi) {
			bondInRing[bi] = true
			atomInRing[b.From] = true
			atomInRing[b.To] = true
		}
	}
	return atomInRing, bondInRing
}

// pathExists reports whether from and to stay connected with bond skip removed.
func pathExists(m *Molecule, from, to, skip int) bool {
	seen := make([]bool, len(m.Atoms))
	stack := []int{from}
	seen[from] = true
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		for _, n := range m.neighbors(cur) {
			if n.bond == skip || seen[n.atom] {
				continue
			}
			seen[n.atom] = true
			stack = append(stack, n.atom)
		}
	}
	return false
}

// shortestRing returns the atoms of the shortest cycle through bond bi,
// or nil if the bond is acyclic.
func shortestRing(m *Molecule, bi int) []int {
	b := m.Bonds[bi]
	// BFS from b.From to b.To with bond bi removed.
	prev := make([]int, len(m.Atoms))
	for i := range prev {
		prev[i] = -1
	}
	prev[b.From] = b.From
	queue := []int{b.From}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == b.To {
			ring := []int{}
			for at := b.To; at != b.From; at = prev[at] {
				ring = append(ring, at)
			}
			ring = append(ring, b.From)
			return ring
		}
		for _, n := range m.neighbors(cur) {
			if n.bond == bi || prev[n.atom] >= 0 {
				continue
			}
			prev[n.atom] = cur
			queue = append(queue, n.atom)
		}
	}
	return nil
}

// perceiveAromaticity normalizes Kekule-form benzenoid rings into the
// aromatic representation so that c1ccccc1 and C1=CC=CC=C1 canonicalize
// identically. Perception is deliberately conservative: six-membered rings of
// carbon/nitrogen where every ring atom carries exactly one double bond to a
// ring atom. Five-membered heteroaromatics must be written in aromatic form.
// It returns per-atom ring membership for later validation.
func perceiveAromaticity(m *Molecule) []bool {
	atomInRing, bondInRing := ringMembership(m)

	seen := make(map[[6]int]bool)
	for bi := range m.Bonds {
		if !bondInRing[bi] {
			continue
		}
		ring := shortestRing(m, bi)
		if len(ring) != 6 {
			continue
		}

		var key [6]int
		copy(key[:], sortedCopy(ring))
		if seen[key] {
			continue
		}
		seen[key] = true

		if isBenzenoid(m, ring, atomInRing) {
			markAromatic(m, ring)
		}
	}

	return atomInRing
}

func sortedCopy(xs []int) []int {
	out := make([]int, len(xs))
	copy(out, xs)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func isBenzenoid(m *Molecule, ring []int, atomInRing []bool) bool {
	inRing := make(map[int]bool, len(ring))
	for _, a := range ring {
		inRing[a] = true
	}

	for _, ai := range ring {
		a := m.Atoms[ai]
		if a.Element != "C" && a.Element != "N" {
			return false
		}
		if a.Aromatic {
			continue
		}

		doubles := 0
		partnerOK := false
		for _, nb := range m.neighbors(ai) {
			b := m.Bonds[nb.bond]
			if b.Order == BondTriple {
				return false
			}
			if b.Order == BondDouble && !b.Aromatic {
				doubles++
				if atomInRing[nb.atom] {
					partnerOK = true
				}
			}
		}
		if doubles != 1 || !partnerOK {
			return false
		}
	}
	return true
}

func markAromatic(m *Molecule, ring []int) {
	inRing := make(map[int]bool, len(ring))
	for _, a := range ring {
		inRing[a] = true
		m.Atoms[a].Aromatic = true
	}
	for bi := range m.Bonds {
		b := &m.Bonds[bi]
		if inRing[b.From] && inRing[b.To] {
			b.Aromatic = true
			b.Order = BondSingle
		}
	}
}

// validateValence rejects aromatic atoms outside rings and atoms whose total
// bond order exceeds the maximum allowed valence for their element.
func validateValence(m *Molecule, raw string, atomInRing []bool) error {
	for i, a := range m.Atoms {
		if a.Aromatic && !atomInRing[i] {
			return &ParseError{Input: raw, Msg: "aromatic atom outside ring"}
		}

		valences, ok := defaultValences[a.Element]
		if !ok || a.Charge != 0 {
			continue
		}

		total := bondOrderSum(m, i) + implicitHCount(m, i)
		if total > valences[len(valences)-1] {
			return &ParseError{Input: raw, Msg: "valence exceeded for " + a.Element}
		}
	}
	return nil
}
