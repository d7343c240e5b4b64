// Package engine rewrites text with dictionary stages using forward
// maximum matching.
package engine

import (
	"strings"
	"unicode/utf8"

	"github.com/FocuswithJustin/zhconv/core/dict"
	"github.com/FocuswithJustin/zhconv/core/punct"
)

// Stage is one dictionary pass. Stages run in Ordinal order; the output
// of one stage is the input of the next.
type Stage struct {
	Ordinal int
	Dict    *dict.Dictionary
}

// Apply runs text through every stage and then, when table is non-nil,
// through the punctuation table. Punctuation glyphs never take part in
// phrase matching. Apply is pure and safe for concurrent use.
func Apply(text string, stages []Stage, table *punct.Table) string {
	for _, st := range stages {
		text = ApplyStage(text, st.Dict)
	}
	if table != nil {
		text = table.Apply(text)
	}
	return text
}

// ApplyStage runs a single forward maximum matching pass. At each
// position the longest phrase in d wins; unmatched runes are copied.
func ApplyStage(text string, d *dict.Dictionary) string {
	maxLen := d.MaxLength()
	if maxLen == 0 || text == "" {
		return text
	}
	lengths := d.Lengths()

	var b strings.Builder
	b.Grow(len(text) + len(text)/8)

	// ends[k] is the byte offset just past k runes from the cursor.
	ends := make([]int, maxLen+1)
	changed := false

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if punct.IsGlyph(r) {
			b.WriteString(text[i : i+size])
			i += size
			continue
		}

		n := 0
		for j := i; n < maxLen && j < len(text); {
			r2, s2 := utf8.DecodeRuneInString(text[j:])
			if punct.IsGlyph(r2) {
				break
			}
			j += s2
			n++
			ends[n] = j
		}

		next := ends[1]
		replacement, matched := "", false
		for _, l := range lengths {
			if l > n {
				continue
			}
			if rep, ok := d.Lookup(text[i:ends[l]]); ok {
				replacement, matched, next = rep, true, ends[l]
				break
			}
		}

		if matched {
			if replacement != text[i:next] {
				changed = true
			}
			b.WriteString(replacement)
		} else {
			b.WriteString(text[i:next])
		}
		i = next
	}

	if !changed {
		return text
	}
	return b.String()
}
