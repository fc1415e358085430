package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/arcstore/internal/schema"
)

const createSequences = `CREATE TABLE IF NOT EXISTS arcstore_sequences (
    collection TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);`

const documentTableDDL = `CREATE TABLE IF NOT EXISTS %s (
    pk TEXT PRIMARY KEY,
    doc TEXT NOT NULL
);`

const indexTableDDL = `CREATE TABLE IF NOT EXISTS %s (
    index_name TEXT NOT NULL,
    value TEXT NOT NULL,
    pk TEXT NOT NULL,
    PRIMARY KEY (index_name, value, pk)
);`

const indexPKDDL = `CREATE INDEX IF NOT EXISTS %s ON %s(pk);`

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates the tables of every collection and records the layout
// version in user_version. A database written by a newer layout is refused.
func applySchema(db *sql.DB, desc schema.Descriptor) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version > desc.Version {
		return fmt.Errorf("database layout version %d is newer than %d", version, desc.Version)
	}

	stmts := []string{createSequences}
	for _, c := range desc.Collections {
		stmts = append(stmts, collectionDDL(c)...)
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", desc.Version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func collectionDDL(c schema.Collection) []string {
	return []string{
		fmt.Sprintf(documentTableDDL, docTable(c.Name)),
		fmt.Sprintf(indexTableDDL, indexTable(c.Name)),
		fmt.Sprintf(indexPKDDL, quoteIdent(c.Name+"__index_pk"), indexTable(c.Name)),
	}
}

func docTable(collection string) string { return quoteIdent(collection) }

func indexTable(collection string) string { return quoteIdent(collection + "__index") }

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
