package dict

import (
	"bufio"
	"context"
	"database/sql"
	"embed"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/zhconv/core/errors"
	"github.com/FocuswithJustin/zhconv/core/sqlite"
)

// The bundled tables are the complete OpenCC dictionaries, xz-compressed.
//
//go:embed data/*.txt.xz
var bundled embed.FS

// Source provides raw table entries by identifier.
type Source interface {
	Table(id string) ([]Entry, error)
}

// EmbeddedSource serves the tables bundled into the binary.
type EmbeddedSource struct{}

// Table implements Source.
func (EmbeddedSource) Table(id string) ([]Entry, error) {
	name, ok := FileName(id)
	if !ok {
		return nil, unknownTable(id)
	}
	f, err := bundled.Open("data/" + name + ".xz")
	if err != nil {
		return nil, &errors.DictionaryLoadError{Table: id, Message: "table not bundled", Err: err}
	}
	defer f.Close()
	return parseXZ(f, id)
}

// DirSource reads OpenCC table files from a directory. A table may be
// stored plain (STPhrases.txt) or xz-compressed (STPhrases.txt.xz).
type DirSource struct {
	Dir string
}

// Table implements Source.
func (s DirSource) Table(id string) ([]Entry, error) {
	name, ok := FileName(id)
	if !ok {
		return nil, unknownTable(id)
	}
	path := filepath.Join(s.Dir, name)

	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		return ParseTable(f, id)
	}
	if !os.IsNotExist(err) {
		return nil, &errors.DictionaryLoadError{Table: id, Err: errors.NewIO("open", path, err)}
	}

	xf, err := os.Open(path + ".xz")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.DictionaryLoadError{
				Table:   id,
				Message: "table file not found in " + s.Dir,
				Err:     errors.NewNotFound("table", name),
			}
		}
		return nil, &errors.DictionaryLoadError{Table: id, Err: errors.NewIO("open", path+".xz", err)}
	}
	defer xf.Close()
	return parseXZ(xf, id)
}

func parseXZ(r io.Reader, id string) ([]Entry, error) {
	xr, err := xz.NewReader(bufio.NewReader(r))
	if err != nil {
		return nil, &errors.DictionaryLoadError{Table: id, Message: "invalid xz stream", Err: err}
	}
	return ParseTable(xr, id)
}

// FSSource reads plain OpenCC table files from an fs.FS.
type FSSource struct {
	FS fs.FS
}

// Table implements Source.
func (s FSSource) Table(id string) ([]Entry, error) {
	name, ok := FileName(id)
	if !ok {
		return nil, unknownTable(id)
	}
	f, err := s.FS.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = errors.NewNotFound("table", name)
		}
		return nil, &errors.DictionaryLoadError{Table: id, Message: "table file not found", Err: err}
	}
	defer f.Close()
	return ParseTable(f, id)
}

// SQLiteSource reads tables from a database created with
// sqlite.CreateDictionarySchema.
type SQLiteSource struct {
	db *sql.DB
}

// OpenSQLiteSource opens a dictionary database read-only.
func OpenSQLiteSource(path string) (*SQLiteSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &errors.DictionaryLoadError{Table: "*", Err: errors.NewIO("open", path, err)}
	}
	db, err := sqlite.OpenReadOnly(path)
	if err != nil {
		return nil, &errors.DictionaryLoadError{Table: "*", Err: errors.NewIO("open", path, err)}
	}
	ok, err := sqlite.HasTable(context.Background(), db, "dictionary")
	if err != nil || !ok {
		db.Close()
		if err == nil {
			err = errors.NewNotFound("table", "dictionary")
		}
		return nil, &errors.DictionaryLoadError{Table: "*", Message: "not a dictionary database: " + path, Err: err}
	}
	return &SQLiteSource{db: db}, nil
}

// NewSQLiteSource wraps an already open database.
func NewSQLiteSource(db *sql.DB) *SQLiteSource {
	return &SQLiteSource{db: db}
}

// Table implements Source.
func (s *SQLiteSource) Table(id string) ([]Entry, error) {
	if !IsTableID(id) {
		return nil, unknownTable(id)
	}
	rows, err := s.db.Query(`SELECT phrase, replacement FROM dictionary WHERE name = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, &errors.DictionaryLoadError{Table: id, Message: "query failed", Err: err}
	}
	defer rows.Close()

	b := newTableBuilder(id)
	row := 0
	for rows.Next() {
		row++
		var phrase, replacement string
		if err := rows.Scan(&phrase, &replacement); err != nil {
			return nil, &errors.DictionaryLoadError{Table: id, Line: row, Message: "scan failed", Err: err}
		}
		if err := b.add(row, phrase, replacement); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.DictionaryLoadError{Table: id, Message: "query failed", Err: err}
	}
	if len(b.entries) == 0 {
		return nil, &errors.DictionaryLoadError{
			Table:   id,
			Message: "table has no rows",
			Err:     errors.NewNotFound("table", id),
		}
	}
	return b.entries, nil
}

// Close releases the database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// Import copies every table src can provide into db, creating the schema
// when needed. Tables src does not have are skipped.
func Import(ctx context.Context, db *sql.DB, src Source) (int, error) {
	if err := sqlite.CreateDictionarySchema(ctx, db); err != nil {
		return 0, err
	}
	imported := 0
	for _, id := range TableIDs() {
		entries, err := src.Table(id)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				continue
			}
			return imported, err
		}
		rows := make([][2]string, 0, len(entries))
		for _, e := range entries {
			cands := e.Replacement
			for _, alt := range e.Alternatives {
				cands += " " + alt
			}
			rows = append(rows, [2]string{e.Phrase, cands})
		}
		if err := sqlite.InsertDictionaryRows(ctx, db, id, rows); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

func unknownTable(id string) error {
	return &errors.DictionaryLoadError{
		Table:   id,
		Message: "unknown table identifier",
		Err:     errors.NewNotFound("table", id),
	}
}
