package textindex

import (
	"database/sql"
	"fmt"
	"strings"
)

// migrateV001 creates the document table, the full-text table for the
// schema's searchable columns, and the meta table holding the schema
// fingerprint.
func migrateV001(tx *sql.Tx, schema Schema) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			docid      INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_key    TEXT NOT NULL,
			sort_value INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts4(
			%s,
			tokenize=unicode61
		)`, strings.Join(schema.searchableColumns(), ",\n\t\t\t")),

		`CREATE INDEX IF NOT EXISTS idx_documents_key  ON documents(doc_key)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_sort ON documents(sort_value)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	_, err := tx.Exec(
		`INSERT OR REPLACE INTO meta (key, value) VALUES ('schema', ?)`,
		schema.fingerprint(),
	)
	return err
}
