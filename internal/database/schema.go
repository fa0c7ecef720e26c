package database

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS lessons (
    id            uuid PRIMARY KEY,
    source        text NOT NULL,
    title         text,
    speed         real NOT NULL,
    language      text NOT NULL,
    provider      text,
    model         text,
    duration      real,
    word_count    int NOT NULL DEFAULT 0,
    text          text NOT NULL DEFAULT '',
    tokens        jsonb NOT NULL DEFAULT '[]',
    created_at    timestamptz NOT NULL,
    archived_at   timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_lessons_created ON lessons (created_at DESC)`

// InitSchema creates the lessons table on a fresh database. It is a no-op
// when the table already exists.
func (db *DB) InitSchema(ctx context.Context) error {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = 'public' AND tablename = 'lessons')`,
	).Scan(&exists)
	if err != nil {
		return err
	}

	if exists {
		db.log.Debug().Msg("schema already initialized, skipping")
		return nil
	}

	db.log.Info().Msg("fresh database detected, applying schema")
	if _, err := db.Pool.Exec(ctx, schemaSQL); err != nil {
		return err
	}
	db.log.Info().Msg("schema applied successfully")
	return nil
}
