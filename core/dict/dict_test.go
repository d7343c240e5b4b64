package dict

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/zhconv/core/errors"
	"github.com/FocuswithJustin/zhconv/core/sqlite"
)

func TestParseTable(t *testing.T) {
	input := "\ufeff# comment\n\n头发\t頭髮\n干\t幹 乾 干\r\n头发\t頭髮\n"
	entries, err := ParseTable(strings.NewReader(input), "test")
	if err != nil {
		t.Fatalf("ParseTable() error = %v", err)
	}

	want := []Entry{
		{Phrase: "头发", Replacement: "頭髮", Alternatives: []string{}},
		{Phrase: "干", Replacement: "幹", Alternatives: []string{"乾", "干"}},
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i := range want {
		if entries[i].Phrase != want[i].Phrase || entries[i].Replacement != want[i].Replacement {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
		if len(entries[i].Alternatives) != len(want[i].Alternatives) {
			t.Errorf("entry %d alternatives = %v, want %v", i, entries[i].Alternatives, want[i].Alternatives)
		}
	}
}

func TestParseTableErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
	}{
		{"missing tab", "头发 頭髮\n", 1},
		{"empty phrase", "\t頭髮\n", 1},
		{"no candidate", "头发\t  \n", 1},
		{"conflicting duplicate", "头发\t頭髮\n发\t發\n头发\t頭發\n", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTable(strings.NewReader(tt.input), "broken")
			if err == nil {
				t.Fatal("ParseTable() error = nil, want error")
			}
			if !errors.Is(err, errors.ErrDictionaryLoad) {
				t.Errorf("error %v does not match ErrDictionaryLoad", err)
			}
			var dle *errors.DictionaryLoadError
			if !errors.As(err, &dle) {
				t.Fatalf("error %T is not a DictionaryLoadError", err)
			}
			if dle.Table != "broken" || dle.Line != tt.wantLine {
				t.Errorf("error at %s:%d, want broken:%d", dle.Table, dle.Line, tt.wantLine)
			}
		})
	}
}

func TestDictionaryLengths(t *testing.T) {
	d := NewDictionary([]Entry{
		{Phrase: "A", Replacement: "a"},
		{Phrase: "ABC", Replacement: "abc"},
		{Phrase: "AB", Replacement: "ab"},
		{Phrase: "XY", Replacement: "xy"},
		{Phrase: "A", Replacement: "ignored"},
	})

	if got, want := d.Lengths(), []int{3, 2, 1}; !reflect.DeepEqual(got, want) {
		t.Errorf("Lengths() = %v, want %v", got, want)
	}
	if d.MaxLength() != 3 || d.MinLength() != 1 {
		t.Errorf("MaxLength/MinLength = %d/%d, want 3/1", d.MaxLength(), d.MinLength())
	}
	if d.Len() != 4 {
		t.Errorf("Len() = %d, want 4", d.Len())
	}
	if v, ok := d.Lookup("A"); !ok || v != "a" {
		t.Errorf("Lookup(A) = %q, %v; first occurrence should win", v, ok)
	}
	if _, ok := d.Lookup("Z"); ok {
		t.Error("Lookup(Z) should miss")
	}
}

func TestDictionaryEmptyAndNil(t *testing.T) {
	empty := NewDictionary(nil)
	if empty.Len() != 0 || empty.MaxLength() != 0 || len(empty.Lengths()) != 0 {
		t.Errorf("empty dictionary = len %d max %d", empty.Len(), empty.MaxLength())
	}

	var d *Dictionary
	if _, ok := d.Lookup("x"); ok {
		t.Error("nil dictionary Lookup should miss")
	}
	if d.Len() != 0 || d.MaxLength() != 0 || d.MinLength() != 0 || d.Lengths() != nil {
		t.Error("nil dictionary should report zero values")
	}
}

func TestMergePrecedence(t *testing.T) {
	phrases := NewDictionary([]Entry{{Phrase: "干净", Replacement: "乾淨"}, {Phrase: "干", Replacement: "PHRASE"}})
	chars := NewDictionary([]Entry{{Phrase: "干", Replacement: "幹"}, {Phrase: "净", Replacement: "淨"}})

	m := Merge(phrases, chars)
	if v, _ := m.Lookup("干"); v != "PHRASE" {
		t.Errorf("Lookup(干) = %q, earlier table should win", v)
	}
	if v, _ := m.Lookup("净"); v != "淨" {
		t.Errorf("Lookup(净) = %q, want 淨", v)
	}
	if got, want := m.Lengths(), []int{2, 1}; !reflect.DeepEqual(got, want) {
		t.Errorf("Lengths() = %v, want %v", got, want)
	}
	if Merge(chars) != chars {
		t.Error("Merge of a single dictionary should return it unchanged")
	}
}

func TestCandidates(t *testing.T) {
	chars := NewDictionary([]Entry{
		{Phrase: "干", Replacement: "幹", Alternatives: []string{"乾", "干"}},
		{Phrase: "头", Replacement: "頭"},
	})
	phrases := NewDictionary([]Entry{{Phrase: "干", Replacement: "乾"}})

	if got := chars.Candidates("干"); !reflect.DeepEqual(got, []string{"幹", "乾", "干"}) {
		t.Errorf("Candidates(干) = %v", got)
	}
	if got := chars.Candidates("头"); !reflect.DeepEqual(got, []string{"頭"}) {
		t.Errorf("Candidates(头) = %v", got)
	}
	if got := chars.Candidates("无"); got != nil {
		t.Errorf("Candidates(无) = %v, want nil", got)
	}
	// The winning entry brings its own candidates.
	if got := Merge(phrases, chars).Candidates("干"); !reflect.DeepEqual(got, []string{"乾"}) {
		t.Errorf("merged Candidates(干) = %v", got)
	}
	if got := Merge(chars, phrases).Candidates("干"); len(got) != 3 {
		t.Errorf("merged Candidates(干) = %v", got)
	}
}

func TestFingerprint(t *testing.T) {
	a := NewDictionary([]Entry{{Phrase: "云", Replacement: "雲"}, {Phrase: "发", Replacement: "發"}})
	b := NewDictionary([]Entry{{Phrase: "发", Replacement: "發"}, {Phrase: "云", Replacement: "雲"}})
	c := NewDictionary([]Entry{{Phrase: "发", Replacement: "髮"}, {Phrase: "云", Replacement: "雲"}})

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint should not depend on entry order")
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different replacements should change the fingerprint")
	}
	if len(a.Fingerprint()) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a.Fingerprint()))
	}
}

func TestEmbeddedSourceLoadsAllTables(t *testing.T) {
	src := EmbeddedSource{}
	for _, id := range TableIDs() {
		entries, err := src.Table(id)
		if err != nil {
			t.Errorf("Table(%s) error = %v", id, err)
			continue
		}
		if len(entries) == 0 {
			t.Errorf("Table(%s) is empty", id)
		}
	}

	_, err := src.Table("no_such_table")
	if !errors.Is(err, errors.ErrDictionaryLoad) || !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("unknown table error = %v, want DictionaryLoadError wrapping NotFound", err)
	}
}

func TestEmbeddedTablesAreComplete(t *testing.T) {
	tests := []struct {
		id       string
		minLen   int
		phrase   string
		wantRepl string
	}{
		{STCharacters, 3900, "习", "習"},
		{STCharacters, 3900, "济", "濟"},
		{STPhrases, 45000, "头发", "頭髮"},
		{TSCharacters, 4000, "習", "习"},
		{TSPhrases, 250, "一目瞭然", "一目了然"},
		{TWPhrases, 500, "軟件", "軟體"},
		{TWPhrasesRev, 500, "軟體", "軟件"},
	}
	for _, tt := range tests {
		d, err := Default().Table(tt.id)
		if err != nil {
			t.Fatalf("Table(%s): %v", tt.id, err)
		}
		if d.Len() < tt.minLen {
			t.Errorf("Table(%s) has %d entries, want at least %d", tt.id, d.Len(), tt.minLen)
		}
		if got, _ := d.Lookup(tt.phrase); got != tt.wantRepl {
			t.Errorf("Table(%s).Lookup(%s) = %q, want %q", tt.id, tt.phrase, got, tt.wantRepl)
		}
	}
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "STPhrases.txt"), []byte("头发\t頭髮\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := os.Create(filepath.Join(dir, "STCharacters.txt.xz"))
	if err != nil {
		t.Fatal(err)
	}
	xw, err := xz.NewWriter(f)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := xw.Write([]byte("发\t發 髮\n头\t頭\n")); err != nil {
		t.Fatal(err)
	}
	if err := xw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	src := DirSource{Dir: dir}

	plain, err := src.Table(STPhrases)
	if err != nil || len(plain) != 1 {
		t.Fatalf("Table(st_phrases) = %v, %v", plain, err)
	}

	compressed, err := src.Table(STCharacters)
	if err != nil {
		t.Fatalf("Table(st_characters) error = %v", err)
	}
	if len(compressed) != 2 || compressed[0].Replacement != "發" {
		t.Errorf("Table(st_characters) = %+v", compressed)
	}

	_, err = src.Table(TWVariants)
	if !errors.Is(err, errors.ErrNotFound) || !errors.Is(err, errors.ErrDictionaryLoad) {
		t.Errorf("missing table error = %v, want not found dictionary error", err)
	}
}

func TestDirSourceMalformed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "TWVariants.txt"), []byte("爲 為\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := DirSource{Dir: dir}.Table(TWVariants)
	var dle *errors.DictionaryLoadError
	if !errors.As(err, &dle) || dle.Line != 1 {
		t.Errorf("error = %v, want DictionaryLoadError at line 1", err)
	}
}

func TestFSSource(t *testing.T) {
	fsys := fstest.MapFS{
		"HKVariants.txt": &fstest.MapFile{Data: []byte("說\t説\n")},
	}
	entries, err := FSSource{FS: fsys}.Table(HKVariants)
	if err != nil || len(entries) != 1 || entries[0].Replacement != "説" {
		t.Fatalf("Table(hk_variants) = %+v, %v", entries, err)
	}
	if _, err := (FSSource{FS: fsys}).Table(HKVariantsRev); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("missing file error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteSource(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dict.db")

	db, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	n, err := Import(ctx, db, EmbeddedSource{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != len(TableIDs()) {
		t.Errorf("Import() = %d tables, want %d", n, len(TableIDs()))
	}
	db.Close()

	src, err := OpenSQLiteSource(path)
	if err != nil {
		t.Fatalf("OpenSQLiteSource: %v", err)
	}
	defer src.Close()

	want, _ := EmbeddedSource{}.Table(STCharacters)
	got, err := src.Table(STCharacters)
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if NewDictionary(got).Fingerprint() != NewDictionary(want).Fingerprint() {
		t.Error("SQLite round trip changed st_characters")
	}
	for i, e := range got {
		if e.Phrase == "干" && !reflect.DeepEqual(e.Alternatives, []string{"乾", "干"}) {
			t.Errorf("entry %d alternatives = %v", i, e.Alternatives)
		}
	}
}

func TestOpenSQLiteSourceErrors(t *testing.T) {
	if _, err := OpenSQLiteSource(filepath.Join(t.TempDir(), "missing.db")); !errors.Is(err, errors.ErrDictionaryLoad) {
		t.Errorf("missing database error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "empty.db")
	db, err := sqlite.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE other (x TEXT)`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	if _, err := OpenSQLiteSource(path); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("non-dictionary database error = %v, want ErrNotFound", err)
	}
}

type countingSource struct {
	Source
	calls map[string]int
}

func (c *countingSource) Table(id string) ([]Entry, error) {
	c.calls[id]++
	return c.Source.Table(id)
}

func TestStoreCaching(t *testing.T) {
	src := &countingSource{Source: EmbeddedSource{}, calls: map[string]int{}}
	s := NewStore(src)

	a, err := s.Load(STPhrases, STCharacters)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, err := s.Load(STPhrases, STCharacters)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a != b {
		t.Error("repeated Load should return the same instance")
	}

	c, err := s.Table(STPhrases)
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if c2, _ := s.Table(STPhrases); c2 != c {
		t.Error("repeated Table should return the same instance")
	}
	if src.calls[STPhrases] != 1 || src.calls[STCharacters] != 1 {
		t.Errorf("source calls = %v, want one per table", src.calls)
	}

	if v, _ := a.Lookup("头发"); v != "頭髮" {
		t.Errorf("merged Lookup(头发) = %q, want 頭髮", v)
	}
	if v, _ := a.Lookup("发"); v != "發" {
		t.Errorf("merged Lookup(发) = %q, want 發", v)
	}

	tables, merged := s.Stats()
	if tables.Size != 2 || merged.Size != 1 {
		t.Errorf("Stats() sizes = %d/%d, want 2/1", tables.Size, merged.Size)
	}
}

func TestStoreLoadError(t *testing.T) {
	s := NewStore(DirSource{Dir: t.TempDir()})
	if _, err := s.Load(STPhrases); !errors.Is(err, errors.ErrDictionaryLoad) {
		t.Errorf("Load error = %v, want ErrDictionaryLoad", err)
	}
}

func TestDefaultStore(t *testing.T) {
	if Default() != Default() {
		t.Error("Default() should return a single store")
	}
	if _, ok := Default().Source().(EmbeddedSource); !ok {
		t.Errorf("Default() source = %T, want EmbeddedSource", Default().Source())
	}
}

func TestFileNames(t *testing.T) {
	if name, ok := FileName(JPSCharacters); !ok || name != "JPShinjitaiCharacters.txt" {
		t.Errorf("FileName(jps_characters) = %q, %v", name, ok)
	}
	if _, ok := FileName("bogus"); ok {
		t.Error("FileName(bogus) should fail")
	}
	if len(TableIDs()) != 16 {
		t.Errorf("TableIDs() has %d ids, want 16", len(TableIDs()))
	}
}
