// Package sqlite provides a unified SQLite interface supporting both
// pure Go (modernc.org/sqlite) and CGO (mattn/go-sqlite3) implementations.
//
// Build modes:
//   - Default (CGO_ENABLED=0): Uses pure Go modernc.org/sqlite
//   - CGO mode (CGO_ENABLED=1 -tags cgo_sqlite): Uses mattn/go-sqlite3
//
// Use Open() instead of sql.Open() to ensure the correct driver is used.
//
// Conversion tables can be shipped as a single database holding every
// table in the layout created by CreateDictionarySchema.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// DictionarySchema is the layout read by the dictionary loader. One row
// per phrase; name is the table identifier (e.g. "st_phrases") and
// replacement holds the space separated candidates, default first.
const DictionarySchema = `CREATE TABLE IF NOT EXISTS dictionary (
	name TEXT NOT NULL,
	phrase TEXT NOT NULL,
	replacement TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dictionary_name ON dictionary(name);`

// DriverName returns the SQL driver name to use.
func DriverName() string {
	return driverName
}

// DriverType returns a string identifying the underlying implementation.
// Returns "cgo" for mattn/go-sqlite3, "purego" for modernc.org/sqlite.
func DriverType() string {
	return driverType
}

// IsCGO returns true if the CGO implementation is being used.
func IsCGO() bool {
	return driverType == "cgo"
}

// Open opens a SQLite database using the appropriate driver.
// This is the preferred way to open SQLite databases.
func Open(dataSourceName string) (*sql.DB, error) {
	return sql.Open(driverName, dataSourceName)
}

// OpenReadOnly opens a SQLite database in read-only mode.
func OpenReadOnly(path string) (*sql.DB, error) {
	dsn := "file:" + path + "?mode=ro"
	return Open(dsn)
}

// CreateDictionarySchema creates the dictionary table if it does not exist.
func CreateDictionarySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(DictionarySchema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating dictionary schema: %w", err)
		}
	}
	return nil
}

// InsertDictionaryRows writes rows for one table inside a single transaction.
func InsertDictionaryRows(ctx context.Context, db *sql.DB, name string, rows [][2]string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO dictionary (name, phrase, replacement) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, name, row[0], row[1]); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting %s/%s: %w", name, row[0], err)
		}
	}
	return tx.Commit()
}

// HasTable reports whether the database contains a table with the given name.
func HasTable(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Info contains information about the SQLite driver configuration.
type Info struct {
	DriverName string `json:"driver_name"`
	DriverType string `json:"driver_type"`
	IsCGO      bool   `json:"is_cgo"`
	Package    string `json:"package"`
}

// GetInfo returns information about the current SQLite configuration.
func GetInfo() Info {
	return Info{
		DriverName: driverName,
		DriverType: driverType,
		IsCGO:      IsCGO(),
		Package:    driverPackage,
	}
}
