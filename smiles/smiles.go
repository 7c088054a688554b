// Package smiles parses SMILES molecule notation and produces a canonical
// string form. The canonical form is a deterministic, total function of the
// molecular graph: any two valid encodings of the same structure canonicalize
// to the byte-identical string, which makes it usable as a de-duplication key.
package smiles

import "fmt"

// ParseError indicates that an input string could not be parsed into a valid
// molecular graph. It is a terminal, user-facing error; no retries apply.
type ParseError struct {
	Input string // Input is the raw string that failed to parse.
	Pos   int    // Pos is the byte offset where parsing failed.
	Msg   string // Msg describes the failure.
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("smiles: parse %q at %d: %s", e.Input, e.Pos, e.Msg)
}

// Atom is a single atom in a molecular graph.
type Atom struct {
	Element  string // Element symbol with canonical capitalization, e.g. "C", "Cl".
	Aromatic bool
	Charge   int
	Isotope  int
	// HCount is the explicit hydrogen count from a bracket atom,
	// or -1 when hydrogens are implicit.
	HCount int

	bonds []int // indexes into Molecule.Bonds
}

// Bond order constants.
const (
	BondSingle = 1
	BondDouble = 2
	BondTriple = 3
)

// Bond connects two atoms by index.
type Bond struct {
	From, To int
	Order    int
	Aromatic bool
}

// Molecule is a parsed, connected molecular graph.
type Molecule struct {
	Atoms []Atom
	Bonds []Bond
}

// neighbors returns (atom index, bond index) pairs adjacent to atom i.
func (m *Molecule) neighbors(i int) []neighbor {
	ns := make([]neighbor, 0, len(m.Atoms[i].bonds))
	for _, bi := range m.Atoms[i].bonds {
		b := m.Bonds[bi]
		other := b.From
		if other == i {
			other = b.To
		}
		ns = append(ns, neighbor{atom: other, bond: bi})
	}
	return ns
}

type neighbor struct {
	atom int
	bond int
}

// Parse converts a SMILES string into a molecular graph.
// It returns a *ParseError for malformed syntax, unknown elements,
// disconnected input and gross valence violations.
func Parse(raw string) (*Molecule, error) {
	p := &parser{input: raw}
	mol, err := p.parse()
	if err != nil {
		return nil, err
	}
	inRing := perceiveAromaticity(mol)
	if err := validateValence(mol, raw, inRing); err != nil {
		return nil, err
	}
	return mol, nil
}

// Canonicalize parses raw and writes the canonical form of the molecule.
// It is pure, deterministic and idempotent:
// Canonicalize(Canonicalize(s)) == Canonicalize(s).
func Canonicalize(raw string) (string, error) {
	mol, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return write(mol, canonicalRanks(mol)), nil
}

// MustCanonicalize is a test helper that panics on parse failure.
func MustCanonicalize(raw string) string {
	s, err := Canonicalize(raw)
	if err != nil {
		panic(err)
	}
	return s
}
