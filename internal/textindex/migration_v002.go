package textindex

import (
	"database/sql"
	"fmt"
	"strings"
)

// migrateV002 rebuilds the full-text table with prefix indexes for two and
// three character prefixes, which address-bar queries hit on every
// keystroke. Existing rows are copied across under their docids.
func migrateV002(tx *sql.Tx, schema Schema) error {
	cols := strings.Join(schema.searchableColumns(), ", ")
	stmts := []string{
		`DROP TABLE IF EXISTS documents_fts_next`,
		fmt.Sprintf(`CREATE VIRTUAL TABLE documents_fts_next USING fts4(
			%s,
			tokenize=unicode61,
			prefix="2,3"
		)`, cols),
		fmt.Sprintf(`INSERT INTO documents_fts_next (docid, %[1]s)
			SELECT docid, %[1]s FROM documents_fts`, cols),
		`DROP TABLE documents_fts`,
		`ALTER TABLE documents_fts_next RENAME TO documents_fts`,
		// Version tracking moved to user_version.
		`DROP TABLE IF EXISTS schema_migrations`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
