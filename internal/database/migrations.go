package database

import (
	"context"
	"fmt"
	"strings"
)

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns true if the migration is already applied
}

// migrations is the ordered list of schema migrations to apply.
// Each must be idempotent (use IF NOT EXISTS, IF EXISTS, etc.).
var migrations = []migration{
	{
		name:  "add lessons.issue_count",
		sql:   `ALTER TABLE lessons ADD COLUMN IF NOT EXISTS issue_count int NOT NULL DEFAULT 0`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'lessons' AND column_name = 'issue_count')`,
	},
	{
		name:  "add lessons full-text index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_lessons_text_fts ON lessons USING gin (to_tsvector('simple', text))`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_lessons_text_fts')`,
	},
}

// Migrate brings an existing lessons table up to date. Each migration is
// skipped when its check query reports the change as present. A failed
// apply returns a *MigrationError and should stop startup.
func (db *DB) Migrate(ctx context.Context) error {
	pending := db.pendingMigrations(ctx)
	for i, m := range pending {
		if _, err := db.Pool.Exec(ctx, m.sql); err != nil {
			return &MigrationError{Name: m.name, Remaining: pending[i:], Err: err}
		}
		db.log.Info().Str("migration", m.name).Msg("schema migration applied")
	}
	if len(pending) > 0 {
		db.log.Info().Int("applied", len(pending)).Msg("schema migrations complete")
	}
	return nil
}

// pendingMigrations returns migrations whose check does not confirm them.
// A check that errors counts as not applied.
func (db *DB) pendingMigrations(ctx context.Context) []migration {
	var out []migration
	for _, m := range migrations {
		if m.check != "" {
			var done bool
			if err := db.Pool.QueryRow(ctx, m.check).Scan(&done); err == nil && done {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// MigrationError reports the failed migration together with the SQL an
// operator can run by hand to finish the upgrade.
type MigrationError struct {
	Name      string
	Remaining []migration
	Err       error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "schema migration %q failed: %v\n\n", e.Name, e.Err)
	b.WriteString("Apply the remaining changes as a database owner:\n\n")
	for _, m := range e.Remaining {
		fmt.Fprintf(&b, "  %s;\n", m.sql)
	}
	b.WriteString("\nThen restart listenlab.")
	return b.String()
}

func (e *MigrationError) Unwrap() error { return e.Err }
