// Package dict loads OpenCC-format conversion tables and exposes them as
// immutable phrase dictionaries indexed by phrase length.
package dict

import (
	"encoding/hex"
	"io"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/zeebo/blake3"
)

// Entry is one phrase mapping. Replacement is the default candidate;
// Alternatives holds the remaining candidates in table order.
type Entry struct {
	Phrase       string
	Replacement  string
	Alternatives []string
}

// Dictionary is an immutable phrase to replacement mapping. It is safe
// for concurrent use.
type Dictionary struct {
	entries map[string]string
	alts    map[string][]string // non-default candidates, only for phrases that have them
	lengths []int // distinct phrase lengths in runes, longest first
	maxLen  int
	minLen  int

	fpOnce      sync.Once
	fingerprint string
}

// NewDictionary builds a dictionary from entries. When a phrase repeats,
// the first occurrence wins.
func NewDictionary(entries []Entry) *Dictionary {
	m := make(map[string]string, len(entries))
	var alts map[string][]string
	for _, e := range entries {
		if e.Phrase == "" {
			continue
		}
		if _, ok := m[e.Phrase]; ok {
			continue
		}
		m[e.Phrase] = e.Replacement
		if len(e.Alternatives) > 0 {
			if alts == nil {
				alts = make(map[string][]string)
			}
			alts[e.Phrase] = e.Alternatives
		}
	}
	d := fromMap(m)
	d.alts = alts
	return d
}

// Merge combines dictionaries into one. Earlier dictionaries win on
// conflicting phrases.
func Merge(dicts ...*Dictionary) *Dictionary {
	if len(dicts) == 1 {
		return dicts[0]
	}
	size := 0
	for _, d := range dicts {
		size += d.Len()
	}
	m := make(map[string]string, size)
	var alts map[string][]string
	for _, d := range dicts {
		if d == nil {
			continue
		}
		for k, v := range d.entries {
			if _, ok := m[k]; ok {
				continue
			}
			m[k] = v
			if a, ok := d.alts[k]; ok {
				if alts == nil {
					alts = make(map[string][]string)
				}
				alts[k] = a
			}
		}
	}
	merged := fromMap(m)
	merged.alts = alts
	return merged
}

func fromMap(m map[string]string) *Dictionary {
	seen := make(map[int]struct{})
	d := &Dictionary{entries: m}
	for k := range m {
		n := utf8.RuneCountInString(k)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		d.lengths = append(d.lengths, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(d.lengths)))
	if len(d.lengths) > 0 {
		d.maxLen = d.lengths[0]
		d.minLen = d.lengths[len(d.lengths)-1]
	}
	return d
}

// Lookup returns the replacement for an exact phrase.
func (d *Dictionary) Lookup(phrase string) (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d.entries[phrase]
	return v, ok
}

// Candidates returns every candidate for phrase, the default first. The
// returned slice is freshly allocated.
func (d *Dictionary) Candidates(phrase string) []string {
	if d == nil {
		return nil
	}
	v, ok := d.entries[phrase]
	if !ok {
		return nil
	}
	return append([]string{v}, d.alts[phrase]...)
}

// Len returns the number of phrases.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Lengths returns the distinct phrase lengths in runes, longest first.
// The returned slice must not be modified.
func (d *Dictionary) Lengths() []int {
	if d == nil {
		return nil
	}
	return d.lengths
}

// MaxLength returns the longest phrase length in runes.
func (d *Dictionary) MaxLength() int {
	if d == nil {
		return 0
	}
	return d.maxLen
}

// MinLength returns the shortest phrase length in runes.
func (d *Dictionary) MinLength() int {
	if d == nil {
		return 0
	}
	return d.minLen
}

// Range calls fn for every entry in unspecified order until fn returns false.
func (d *Dictionary) Range(fn func(phrase, replacement string) bool) {
	if d == nil {
		return
	}
	for k, v := range d.entries {
		if !fn(k, v) {
			return
		}
	}
}

// Fingerprint returns a BLAKE3 digest over the sorted entries. Equal
// dictionaries have equal fingerprints regardless of load order.
func (d *Dictionary) Fingerprint() string {
	d.fpOnce.Do(func() {
		keys := make([]string, 0, len(d.entries))
		for k := range d.entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		h := blake3.New()
		for _, k := range keys {
			io.WriteString(h, k)
			io.WriteString(h, "\t")
			io.WriteString(h, d.entries[k])
			io.WriteString(h, "\n")
		}
		d.fingerprint = hex.EncodeToString(h.Sum(nil))
	})
	return d.fingerprint
}
