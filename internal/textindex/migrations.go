package textindex

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// layoutVersion is the on-disk format this package writes. It is kept in
// PRAGMA user_version; older files are upgraded in place on Open, newer
// ones are treated like a schema change and recreated.
const layoutVersion = 2

type migration struct {
	version int
	name    string
	apply   func(tx *sql.Tx, schema Schema) error
}

var migrations = []migration{
	{version: 1, name: "initial_schema", apply: migrateV001},
	{version: 2, name: "prefix_indexes", apply: migrateV002},
}

// MigrationRunner brings an index database up to layoutVersion.
type MigrationRunner struct {
	db     *sql.DB
	schema Schema
	logger *slog.Logger
}

// NewMigrationRunner returns a runner for db laid out by schema.
func NewMigrationRunner(db *sql.DB, schema Schema, logger *slog.Logger) *MigrationRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &MigrationRunner{db: db, schema: schema, logger: logger}
}

// Version returns the layout version recorded in the database; zero for a
// fresh file.
func (r *MigrationRunner) Version() (int, error) {
	var v int
	if err := r.db.QueryRow(`PRAGMA user_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read layout version: %w", err)
	}
	return v, nil
}

// Run applies every migration newer than the recorded version, each in its
// own transaction, and returns how many ran.
func (r *MigrationRunner) Run() (int, error) {
	from, err := r.Version()
	if err != nil {
		return 0, err
	}
	if from > layoutVersion {
		return 0, fmt.Errorf("%w: layout version %d is newer than %d", errSchemaChanged, from, layoutVersion)
	}

	applied := 0
	for _, m := range migrations {
		if m.version <= from {
			continue
		}
		if err := r.apply(m); err != nil {
			return applied, fmt.Errorf("apply migration %d (%s): %w", m.version, m.name, err)
		}
		applied++
	}
	if from > 0 && applied > 0 {
		r.logger.Info("upgraded text index", slog.Int("from", from), slog.Int("to", layoutVersion))
	}
	return applied, nil
}

func (r *MigrationRunner) apply(m migration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := m.apply(tx, r.schema); err != nil {
		return err
	}
	// user_version lives in the file header and commits with the tx.
	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, m.version)); err != nil {
		return fmt.Errorf("record layout version: %w", err)
	}
	return tx.Commit()
}
