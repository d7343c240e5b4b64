// Package punct maps quotation glyphs between the Simplified-style and
// Traditional-style conventions.
package punct

import (
	"sort"
	"strings"
)

// Direction selects a punctuation table.
type Direction int

const (
	// None leaves punctuation untouched.
	None Direction = iota
	// S2T maps curly quotes to corner brackets.
	S2T
	// T2S maps corner brackets to curly quotes.
	T2S
)

// String returns the direction name used in pipeline definitions.
func (d Direction) String() string {
	switch d {
	case S2T:
		return "s2t"
	case T2S:
		return "t2s"
	default:
		return "none"
	}
}

// ParseDirection is the inverse of Direction.String.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "s2t":
		return S2T, true
	case "t2s":
		return T2S, true
	case "none", "":
		return None, true
	}
	return None, false
}

// Table is a glyph substitution table. Glyphs it does not declare pass
// through unchanged.
type Table struct {
	dir   Direction
	pairs map[rune]rune
}

var s2tPairs = map[rune]rune{
	'“': '「',
	'”': '」',
	'‘': '『',
	'’': '』',
}

var (
	s2tTable = &Table{dir: S2T, pairs: s2tPairs}
	t2sTable = &Table{dir: T2S, pairs: invert(s2tPairs)}
	glyphs   = buildGlyphs()
)

func invert(m map[rune]rune) map[rune]rune {
	out := make(map[rune]rune, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

func buildGlyphs() map[rune]struct{} {
	g := make(map[rune]struct{}, 2*len(s2tPairs))
	for k, v := range s2tPairs {
		g[k] = struct{}{}
		g[v] = struct{}{}
	}
	return g
}

// TableFor returns the table for d, or nil for None.
func TableFor(d Direction) *Table {
	switch d {
	case S2T:
		return s2tTable
	case T2S:
		return t2sTable
	}
	return nil
}

// Direction reports which direction the table converts.
func (t *Table) Direction() Direction {
	if t == nil {
		return None
	}
	return t.dir
}

// MapRune returns the substitute for r.
func (t *Table) MapRune(r rune) rune {
	if t == nil {
		return r
	}
	if m, ok := t.pairs[r]; ok {
		return m
	}
	return r
}

// Apply substitutes every declared glyph in text.
func (t *Table) Apply(text string) string {
	if t == nil || !strings.ContainsFunc(text, t.declares) {
		return text
	}
	return strings.Map(t.MapRune, text)
}

func (t *Table) declares(r rune) bool {
	_, ok := t.pairs[r]
	return ok
}

// Map applies the table for d to text.
func Map(text string, d Direction) string {
	return TableFor(d).Apply(text)
}

// IsGlyph reports whether r belongs to either table.
func IsGlyph(r rune) bool {
	_, ok := glyphs[r]
	return ok
}

// Glyphs returns every glyph declared by either direction, sorted.
func Glyphs() []rune {
	out := make([]rune, 0, len(glyphs))
	for r := range glyphs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
