// Package detect guesses whether Chinese text is written in Traditional
// or Simplified characters.
package detect

import (
	"unicode/utf8"

	"github.com/FocuswithJustin/zhconv/core/dict"
)

// Script is a detection result. The numeric values are part of the
// public contract.
type Script int

const (
	Other       Script = 0
	Traditional Script = 1
	Simplified  Script = 2
)

func (s Script) String() string {
	switch s {
	case Traditional:
		return "traditional"
	case Simplified:
		return "simplified"
	default:
		return "other"
	}
}

// Detector votes over script-exclusive character sets.
type Detector struct {
	simplified  map[rune]struct{}
	traditional map[rune]struct{}
}

// New builds a detector from the Simplified to Traditional and
// Traditional to Simplified character tables. A rune is exclusive to the
// source script of a table when it is a single-rune key that the table
// never produces as a candidate: 里 maps to 裏 but also to itself, so it
// belongs to both scripts. Runes exclusive to both sides are dropped.
func New(st, ts *dict.Dictionary) *Detector {
	d := &Detector{
		simplified:  exclusive(st),
		traditional: exclusive(ts),
	}
	for r := range d.simplified {
		if _, ok := d.traditional[r]; ok {
			delete(d.simplified, r)
			delete(d.traditional, r)
		}
	}
	return d
}

func exclusive(d *dict.Dictionary) map[rune]struct{} {
	keys := make(map[rune]struct{}, d.Len())
	produced := make(map[rune]struct{}, d.Len())
	d.Range(func(phrase, replacement string) bool {
		r, ok := singleRune(phrase)
		if !ok || replacement == phrase {
			return true
		}
		keys[r] = struct{}{}
		for _, c := range d.Candidates(phrase) {
			if cr, ok := singleRune(c); ok {
				produced[cr] = struct{}{}
			}
		}
		return true
	})
	for r := range produced {
		delete(keys, r)
	}
	return keys
}

func singleRune(s string) (rune, bool) {
	r, size := utf8.DecodeRuneInString(s)
	return r, size == len(s) && r != utf8.RuneError
}

// Detect tallies script-exclusive runes; the strictly larger tally wins.
// Ties and text without exclusive runes yield Other.
func (d *Detector) Detect(text string) Script {
	trad, simp := d.Tally(text)
	switch {
	case trad > simp:
		return Traditional
	case simp > trad:
		return Simplified
	default:
		return Other
	}
}

// Tally returns the number of Traditional-only and Simplified-only runes
// in text.
func (d *Detector) Tally(text string) (traditional, simplified int) {
	for _, r := range text {
		if _, ok := d.traditional[r]; ok {
			traditional++
		} else if _, ok := d.simplified[r]; ok {
			simplified++
		}
	}
	return traditional, simplified
}

// SetSizes reports how many runes vote for each script.
func (d *Detector) SetSizes() (traditional, simplified int) {
	return len(d.traditional), len(d.simplified)
}
