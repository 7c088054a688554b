package smiles

import (
	"strings"
)

type ringOpen struct {
	atom int
	bond byte // bond symbol at the opening position, 0 if none
}

type parser struct {
	input string
	pos   int

	mol         *Molecule
	prev        int
	stack       []int
	pendingBond byte
	rings       map[int]ringOpen
}

func (p *parser) errorf(msg string) *ParseError {
	return &ParseError{Input: p.input, Pos: p.pos, Msg: msg}
}

func (p *parser) parse() (*Molecule, error) {
	if strings.TrimSpace(p.input) == "" {
		return nil, p.errorf("empty input")
	}

	p.mol = &Molecule{}
	p.prev = -1
	p.rings = make(map[int]ringOpen)

	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch {
		case c == ' ' || c == '\t':
			return nil, p.errorf("unexpected whitespace")

		case c == '.':
			return nil, p.errorf("disconnected structure")

		case c == '(':
			if p.prev < 0 {
				return nil, p.errorf("branch before any atom")
			}
			p.stack = append(p.stack, p.prev)
			p.pos++

		case c == ')':
			if len(p.stack) == 0 {
				return nil, p.errorf("unmatched ')'")
			}
			if p.pendingBond != 0 {
				return nil, p.errorf("dangling bond before ')'")
			}
			p.prev = p.stack[len(p.stack)-1]
			p.stack = p.stack[:len(p.stack)-1]
			p.pos++

		case isBondSymbol(c):
			if p.pendingBond != 0 {
				return nil, p.errorf("duplicate bond symbol")
			}
			p.pendingBond = c
			p.pos++

		case c >= '0' && c <= '9':
			if err := p.ringClosure(int(c - '0')); err != nil {
				return nil, err
			}
			p.pos++

		case c == '%':
			if p.pos+2 >= len(p.input) || !isDigit(p.input[p.pos+1]) || !isDigit(p.input[p.pos+2]) {
				return nil, p.errorf("malformed %% ring closure")
			}
			n := int(p.input[p.pos+1]-'0')*10 + int(p.input[p.pos+2]-'0')
			if err := p.ringClosure(n); err != nil {
				return nil, err
			}
			p.pos += 3

		case c == '[':
			atom, err := p.bracketAtom()
			if err != nil {
				return nil, err
			}
			p.addAtom(atom)

		default:
			atom, ok := p.organicAtom()
			if !ok {
				return nil, p.errorf("unexpected character " + string(c))
			}
			p.addAtom(atom)
		}
	}

	if len(p.stack) > 0 {
		return nil, p.errorf("unmatched '('")
	}
	if p.pendingBond != 0 {
		return nil, p.errorf("dangling bond at end of input")
	}
	if len(p.rings) > 0 {
		return nil, p.errorf("unclosed ring bond")
	}
	if len(p.mol.Atoms) == 0 {
		return nil, p.errorf("no atoms")
	}

	return p.mol, nil
}

func isBondSymbol(c byte) bool {
	return c == '-' || c == '=' || c == '#' || c == ':' || c == '/' || c == '\\'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// organicAtom consumes a bare organic-subset atom (B, C, N, O, P, S, F, Cl,
// Br, I or aromatic b, c, n, o, p, s) at the current position.
func (p *parser) organicAtom() (Atom, bool) {
	rest := p.input[p.pos:]

	// Two-letter symbols first.
	for _, sym := range [...]string{"Cl", "Br"} {
		if strings.HasPrefix(rest, sym) {
			p.pos += 2
			return Atom{Element: sym, HCount: -1}, true
		}
	}

	c := rest[0]
	if strings.IndexByte("BCNOPSFI", c) >= 0 {
		p.pos++
		return Atom{Element: string(c), HCount: -1}, true
	}
	if strings.IndexByte("bcnops", c) >= 0 {
		p.pos++
		return Atom{Element: strings.ToUpper(string(c)), Aromatic: true, HCount: -1}, true
	}

	return Atom{}, false
}

// bracketAtom consumes a full bracket atom expression,
// e.g. [13CH4], [O-], [nH+].
func (p *parser) bracketAtom() (Atom, error) {
	start := p.pos
	p.pos++ // consume '['

	atom := Atom{HCount: 0}

	// Isotope.
	for p.pos < len(p.input) && isDigit(p.input[p.pos]) {
		atom.Isotope = atom.Isotope*10 + int(p.input[p.pos]-'0')
		p.pos++
	}

	// Element symbol.
	sym, aromatic, ok := p.bracketSymbol()
	if !ok {
		p.pos = start
		return Atom{}, p.errorf("invalid element symbol in bracket atom")
	}
	atom.Element = sym
	atom.Aromatic = aromatic

	// Chirality markers are accepted and discarded; stereochemistry does not
	// participate in the canonical form.
	for p.pos < len(p.input) && p.input[p.pos] == '@' {
		p.pos++
	}

	// Hydrogen count.
	if p.pos < len(p.input) && p.input[p.pos] == 'H' {
		p.pos++
		atom.HCount = 1
		if p.pos < len(p.input) && isDigit(p.input[p.pos]) {
			atom.HCount = 0
			for p.pos < len(p.input) && isDigit(p.input[p.pos]) {
				atom.HCount = atom.HCount*10 + int(p.input[p.pos]-'0')
				p.pos++
			}
		}
	}

	// Charge.
	if p.pos < len(p.input) && (p.input[p.pos] == '+' || p.input[p.pos] == '-') {
		sign := 1
		if p.input[p.pos] == '-' {
			sign = -1
		}
		c := p.input[p.pos]
		n := 0
		for p.pos < len(p.input) && p.input[p.pos] == c {
			n++
			p.pos++
		}
		if p.pos < len(p.input) && isDigit(p.input[p.pos]) {
			if n > 1 {
				return Atom{}, p.errorf("malformed charge")
			}
			n = 0
			for p.pos < len(p.input) && isDigit(p.input[p.pos]) {
				n = n*10 + int(p.input[p.pos]-'0')
				p.pos++
			}
		}
		atom.Charge = sign * n
	}

	// Atom class, accepted and discarded.
	if p.pos < len(p.input) && p.input[p.pos] == ':' {
		p.pos++
		if p.pos >= len(p.input) || !isDigit(p.input[p.pos]) {
			return Atom{}, p.errorf("malformed atom class")
		}
		for p.pos < len(p.input) && isDigit(p.input[p.pos]) {
			p.pos++
		}
	}

	if p.pos >= len(p.input) || p.input[p.pos] != ']' {
		return Atom{}, p.errorf("unclosed bracket atom")
	}
	p.pos++

	return atom, nil
}

// bracketSymbol consumes the element symbol inside a bracket atom.
func (p *parser) bracketSymbol() (string, bool, bool) {
	if p.pos >= len(p.input) {
		return "", false, false
	}

	rest := p.input[p.pos:]

	// Aromatic two-letter symbols.
	for _, sym := range [...]string{"se", "as"} {
		if strings.HasPrefix(rest, sym) {
			p.pos += 2
			return strings.ToUpper(sym[:1]) + sym[1:], true, true
		}
	}

	c := rest[0]
	if c >= 'a' && c <= 'z' {
		sym := strings.ToUpper(string(c))
		if !aromaticCapable(sym) {
			return "", false, false
		}
		p.pos++
		return sym, true, true
	}

	if c < 'A' || c > 'Z' {
		return "", false, false
	}

	// Prefer the two-letter symbol when it names a known element.
	if len(rest) >= 2 && rest[1] >= 'a' && rest[1] <= 'z' {
		two := rest[:2]
		if _, ok := atomicNumbers[two]; ok {
			p.pos += 2
			return two, false, true
		}
	}

	one := string(c)
	if _, ok := atomicNumbers[one]; !ok {
		return "", false, false
	}
	p.pos++
	return one, false, true
}

// addAtom appends an atom and connects it to the previous one.
func (p *parser) addAtom(atom Atom) {
	idx := len(p.mol.Atoms)
	p.mol.Atoms = append(p.mol.Atoms, atom)

	if p.prev >= 0 {
		p.addBond(p.prev, idx, p.pendingBond)
	}
	p.pendingBond = 0
	p.prev = idx
}

// ringClosure opens or closes a ring bond numbered n.
func (p *parser) ringClosure(n int) error {
	if p.prev < 0 {
		return p.errorf("ring closure before any atom")
	}

	open, ok := p.rings[n]
	if !ok {
		p.rings[n] = ringOpen{atom: p.prev, bond: p.pendingBond}
		p.pendingBond = 0
		return nil
	}
	delete(p.rings, n)

	sym := open.bond
	if p.pendingBond != 0 {
		if sym != 0 && sym != p.pendingBond {
			return p.errorf("conflicting ring bond symbols")
		}
		sym = p.pendingBond
	}
	p.pendingBond = 0

	if open.atom == p.prev {
		return p.errorf("ring bond to self")
	}

	p.addBond(open.atom, p.prev, sym)
	return nil
}

// addBond appends a bond with the given symbol between atoms a and b.
// With no explicit symbol, a bond between two aromatic atoms is aromatic,
// otherwise single.
func (p *parser) addBond(a, b int, sym byte) {
	bond := Bond{From: a, To: b, Order: BondSingle}

	switch sym {
	case '=':
		bond.Order = BondDouble
	case '#':
		bond.Order = BondTriple
	case ':':
		bond.Aromatic = true
	case 0:
		if p.mol.Atoms[a].Aromatic && p.mol.Atoms[b].Aromatic {
			bond.Aromatic = true
		}
	}
	// '-', '/' and '\' stay single; bond stereo does not participate in the
	// canonical form.

	bi := len(p.mol.Bonds)
	p.mol.Bonds = append(p.mol.Bonds, bond)
	p.mol.Atoms[a].bonds = append(p.mol.Atoms[a].bonds, bi)
	p.mol.Atoms[b].bonds = append(p.mol.Atoms[b].bonds, bi)
}
