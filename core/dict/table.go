package dict

import (
	"bufio"
	"io"
	"sort"
	"strings"

	"github.com/FocuswithJustin/zhconv/core/errors"
)

// Table identifiers.
const (
	STCharacters         = "st_characters"
	STPhrases            = "st_phrases"
	TSCharacters         = "ts_characters"
	TSPhrases            = "ts_phrases"
	TWPhrases            = "tw_phrases"
	TWPhrasesRev         = "tw_phrases_rev"
	TWVariants           = "tw_variants"
	TWVariantsRev        = "tw_variants_rev"
	TWVariantsRevPhrases = "tw_variants_rev_phrases"
	HKVariants           = "hk_variants"
	HKVariantsRev        = "hk_variants_rev"
	HKVariantsRevPhrases = "hk_variants_rev_phrases"
	JPSCharacters        = "jps_characters"
	JPSPhrases           = "jps_phrases"
	JPVariants           = "jp_variants"
	JPVariantsRev        = "jp_variants_rev"
)

// fileNames maps table identifiers to OpenCC dictionary file names.
var fileNames = map[string]string{
	STCharacters:         "STCharacters.txt",
	STPhrases:            "STPhrases.txt",
	TSCharacters:         "TSCharacters.txt",
	TSPhrases:            "TSPhrases.txt",
	TWPhrases:            "TWPhrases.txt",
	TWPhrasesRev:         "TWPhrasesRev.txt",
	TWVariants:           "TWVariants.txt",
	TWVariantsRev:        "TWVariantsRev.txt",
	TWVariantsRevPhrases: "TWVariantsRevPhrases.txt",
	HKVariants:           "HKVariants.txt",
	HKVariantsRev:        "HKVariantsRev.txt",
	HKVariantsRevPhrases: "HKVariantsRevPhrases.txt",
	JPSCharacters:        "JPShinjitaiCharacters.txt",
	JPSPhrases:           "JPShinjitaiPhrases.txt",
	JPVariants:           "JPVariants.txt",
	JPVariantsRev:        "JPVariantsRev.txt",
}

// FileName returns the OpenCC file name for a table identifier.
func FileName(id string) (string, bool) {
	name, ok := fileNames[id]
	return name, ok
}

// TableIDs returns every known table identifier in sorted order.
func TableIDs() []string {
	ids := make([]string, 0, len(fileNames))
	for id := range fileNames {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsTableID reports whether id names a known table.
func IsTableID(id string) bool {
	_, ok := fileNames[id]
	return ok
}

// tableBuilder accumulates entries for one table and rejects conflicting
// duplicates.
type tableBuilder struct {
	id      string
	entries []Entry
	seen    map[string]string
}

func newTableBuilder(id string) *tableBuilder {
	return &tableBuilder{id: id, seen: make(map[string]string)}
}

// add records phrase with its candidate list. line is used for errors only.
func (b *tableBuilder) add(line int, phrase, candidates string) error {
	if phrase == "" {
		return errors.NewDictionaryLoad(b.id, line, "empty phrase")
	}
	cands := strings.Fields(candidates)
	if len(cands) == 0 {
		return errors.NewDictionaryLoad(b.id, line, "no replacement for "+phrase)
	}
	if prev, ok := b.seen[phrase]; ok {
		if prev != cands[0] {
			return errors.NewDictionaryLoad(b.id, line,
				"duplicate phrase "+phrase+" maps to both "+prev+" and "+cands[0])
		}
		return nil
	}
	b.seen[phrase] = cands[0]
	b.entries = append(b.entries, Entry{
		Phrase:       phrase,
		Replacement:  cands[0],
		Alternatives: cands[1:],
	})
	return nil
}

// ParseTable reads an OpenCC table: one "phrase<TAB>cand1 cand2 ..." per
// line. Blank lines and lines starting with '#' are skipped.
func ParseTable(r io.Reader, id string) ([]Entry, error) {
	b := newTableBuilder(id)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		phrase, rest, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, errors.NewDictionaryLoad(id, lineNo, "missing tab separator")
		}
		if err := b.add(lineNo, strings.TrimSpace(phrase), rest); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &errors.DictionaryLoadError{Table: id, Message: "read failed", Err: err}
	}
	return b.entries, nil
}
