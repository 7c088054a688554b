package smiles

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeEquivalentEncodings(t *testing.T) {
	tests := []struct {
		name   string
		inputs []string
	}{
		{
			name:   "ethanol",
			inputs: []string{"CCO", "OCC", "C(C)O", "[CH3][CH2][OH]"},
		},
		{
			name:   "isopropanol",
			inputs: []string{"CC(C)O", "C(C)(C)O", "OC(C)C"},
		},
		{
			name:   "benzene",
			inputs: []string{"c1ccccc1", "C1=CC=CC=C1", "c1ccc(cc1)", "C=1C=CC=CC1"},
		},
		{
			name:   "toluene",
			inputs: []string{"Cc1ccccc1", "c1ccccc1C", "CC1=CC=CC=C1"},
		},
		{
			name:   "pyridine",
			inputs: []string{"c1ccncc1", "C1=CC=NC=C1", "n1ccccc1"},
		},
		{
			name:   "acetic acid",
			inputs: []string{"CC(=O)O", "OC(=O)C", "C(C)(=O)O"},
		},
		{
			name:   "triethylamine",
			inputs: []string{"CCN(CC)CC", "N(CC)(CC)CC", "C(C)N(CC)CC"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := Canonicalize(tt.inputs[0])
			require.NoError(t, err)
			for _, in := range tt.inputs[1:] {
				got, err := Canonicalize(in)
				require.NoError(t, err, "input %q", in)
				assert.Equal(t, first, got, "input %q", in)
			}
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := []string{
		"CCO",
		"CC(=O)O",
		"c1ccccc1",
		"CC(C)O",
		"CCN(CC)CC",
		"c1ccc(cc1)O",
		"CC(=O)OC1=CC=CC=C1C(=O)O", // aspirin
		"c1ccc2c(c1)cccn2",         // quinoline
		"c1ccc(cc1)N",              // aniline
		"CC(C)(C)OC(=O)NC1CCC(CC1)O",
		"CCCCCCCCCCCCCCC(=O)O",
		"[O-]C(=O)C",
		"[13CH4]",
	}

	for _, in := range inputs {
		once, err := Canonicalize(in)
		require.NoError(t, err, "input %q", in)
		twice, err := Canonicalize(once)
		require.NoError(t, err, "canonical form %q", once)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestCanonicalizeDistinctMolecules(t *testing.T) {
	inputs := []string{
		"CCO",      // ethanol
		"CC(C)O",   // isopropanol
		"CCCO",     // propanol
		"c1ccccc1", // benzene
		"CCN",      // ethylamine
	}

	seen := make(map[string]string)
	for _, in := range inputs {
		got, err := Canonicalize(in)
		require.NoError(t, err)
		prev, dup := seen[got]
		assert.False(t, dup, "%q and %q collided on %q", in, prev, got)
		seen[got] = in
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"unknown element", "INVALID"},
		{"unmatched paren", "C(C"},
		{"unmatched close paren", "CC)C"},
		{"unclosed ring", "C1CCC"},
		{"unclosed bracket", "[CH3"},
		{"dangling bond", "CC="},
		{"disconnected", "CCO.CCN"},
		{"lone bond", "="},
		{"ring to self", "C11"},
		{"valence exceeded", "C(C)(C)(C)(C)C"},
		{"aromatic outside ring", "cC"},
		{"conflicting ring bonds", "C=1CCCCC-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Canonicalize(tt.input)
			require.Error(t, err)

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.input, perr.Input)
		})
	}
}

func TestParseBracketAtoms(t *testing.T) {
	mol, err := Parse("[13C@H3+]")
	require.NoError(t, err)
	require.Len(t, mol.Atoms, 1)

	a := mol.Atoms[0]
	assert.Equal(t, "C", a.Element)
	assert.Equal(t, 13, a.Isotope)
	assert.Equal(t, 3, a.HCount)
	assert.Equal(t, 1, a.Charge)
}

func TestCanonicalizeChargesAndIsotopes(t *testing.T) {
	got, err := Canonicalize("[O-]C(=O)C")
	require.NoError(t, err)
	assert.Contains(t, got, "[O-]")

	got, err = Canonicalize("CC[13CH3]")
	require.NoError(t, err)
	assert.Contains(t, got, "[13CH3]")

	// The same molecule without the isotope label collapses to plain form.
	got, err = Canonicalize("CC[CH3]")
	require.NoError(t, err)
	assert.Equal(t, "CCC", got)
}

func TestCanonicalizeRingClosureDigits(t *testing.T) {
	// Percent-encoded ring closures parse like plain digits.
	a, err := Canonicalize("C%10CCCCC%10")
	require.NoError(t, err)
	b, err := Canonicalize("C1CCCCC1")
	require.NoError(t, err)
	assert.Equal(t, b, a)
}

func TestCanonicalizeReusesRingClosureNumbers(t *testing.T) {
	// A chain of twelve cyclopropanes: each ring closes before the next
	// opens, so the writer can reuse one digit throughout. Without reuse
	// the numbers climb past 9 and force percent escapes.
	const rings = 12
	reused := strings.Repeat("C1CC1", rings)

	got, err := Canonicalize(reused)
	require.NoError(t, err)
	assert.NotContains(t, got, "%")

	twice, err := Canonicalize(got)
	require.NoError(t, err)
	assert.Equal(t, got, twice)

	// The same molecule spelled with a distinct number per ring.
	var sb strings.Builder
	for i := 1; i <= rings; i++ {
		if i < 10 {
			fmt.Fprintf(&sb, "C%dCC%d", i, i)
		} else {
			fmt.Fprintf(&sb, "C%%%02dCC%%%02d", i, i)
		}
	}
	distinct, err := Canonicalize(sb.String())
	require.NoError(t, err)
	assert.Equal(t, got, distinct)
}

func TestCanonicalizeDeterministicOverPermutations(t *testing.T) {
	// Phenol written starting from different atoms.
	inputs := []string{"c1ccc(cc1)O", "Oc1ccccc1", "c1cc(O)ccc1"}

	first, err := Canonicalize(inputs[0])
	require.NoError(t, err)
	for _, in := range inputs[1:] {
		got, err := Canonicalize(in)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}
