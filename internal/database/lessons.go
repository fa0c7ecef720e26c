package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/snarg/listenlab/internal/karaoke"
)

// ErrNoLesson is returned when an archived lesson does not exist.
var ErrNoLesson = errors.New("archived lesson not found")

// LessonRow is an archived, ready lesson.
type LessonRow struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	Title      string          `json:"title,omitempty"`
	Speed      float64         `json:"speed"`
	Language   string          `json:"language"`
	Provider   string          `json:"provider,omitempty"`
	Model      string          `json:"model,omitempty"`
	Duration   float64         `json:"duration,omitempty"`
	WordCount  int             `json:"word_count"`
	IssueCount int             `json:"issue_count"`
	Text       string          `json:"text"`
	Tokens     []karaoke.Token `json:"tokens,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	ArchivedAt time.Time       `json:"archived_at"`
}

// LessonFilter narrows ListLessons. Zero values match everything.
type LessonFilter struct {
	Language string
	Query    string // full-text match against the transcript text
	Since    *time.Time
	Limit    int
	Offset   int
}

// InsertLesson archives a lesson, replacing any earlier copy with the same ID.
func (db *DB) InsertLesson(ctx context.Context, row *LessonRow) error {
	tokens := row.Tokens
	if tokens == nil {
		tokens = []karaoke.Token{}
	}
	tokensJSON, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO lessons (id, source, title, speed, language, provider, model,
			duration, word_count, issue_count, text, tokens, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, provider = EXCLUDED.provider, model = EXCLUDED.model,
			duration = EXCLUDED.duration, word_count = EXCLUDED.word_count,
			issue_count = EXCLUDED.issue_count, text = EXCLUDED.text,
			tokens = EXCLUDED.tokens, archived_at = now()`,
		row.ID, row.Source, pqString(row.Title), row.Speed, row.Language,
		pqString(row.Provider), pqString(row.Model), row.Duration, row.WordCount,
		row.IssueCount, row.Text, tokensJSON, row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert lesson %s: %w", row.ID, err)
	}
	return nil
}

// GetLesson returns one archived lesson with its tokens.
func (db *DB) GetLesson(ctx context.Context, id string) (*LessonRow, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id::text, source, COALESCE(title, ''), speed, language,
			COALESCE(provider, ''), COALESCE(model, ''), COALESCE(duration, 0),
			word_count, issue_count, text, tokens, created_at, archived_at
		FROM lessons WHERE id = $1`, id)

	var r LessonRow
	var tokensJSON []byte
	err := row.Scan(&r.ID, &r.Source, &r.Title, &r.Speed, &r.Language,
		&r.Provider, &r.Model, &r.Duration, &r.WordCount, &r.IssueCount,
		&r.Text, &tokensJSON, &r.CreatedAt, &r.ArchivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoLesson
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tokensJSON, &r.Tokens); err != nil {
		return nil, fmt.Errorf("decode tokens of %s: %w", id, err)
	}
	return &r, nil
}

// ListLessons returns archived lessons without tokens, newest first, and the
// total matching count.
func (db *DB) ListLessons(ctx context.Context, f LessonFilter) ([]LessonRow, int, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}

	const where = `
		WHERE ($1::text IS NULL OR language = $1)
		  AND ($2::text IS NULL OR to_tsvector('simple', text) @@ plainto_tsquery('simple', $2))
		  AND ($3::timestamptz IS NULL OR created_at >= $3)`
	args := []any{pqString(f.Language), pqString(f.Query), f.Since}

	var total int
	if err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM lessons`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id::text, source, COALESCE(title, ''), speed, language,
			COALESCE(provider, ''), COALESCE(model, ''), COALESCE(duration, 0),
			word_count, issue_count, text, created_at, archived_at
		FROM lessons`+where+`
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []LessonRow{}
	for rows.Next() {
		var r LessonRow
		if err := rows.Scan(&r.ID, &r.Source, &r.Title, &r.Speed, &r.Language,
			&r.Provider, &r.Model, &r.Duration, &r.WordCount, &r.IssueCount,
			&r.Text, &r.CreatedAt, &r.ArchivedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// DeleteLesson removes an archived lesson. Missing rows are not an error.
func (db *DB) DeleteLesson(ctx context.Context, id string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM lessons WHERE id = $1`, id)
	return err
}

// PurgeLessons deletes archived lessons created before cutoff.
func (db *DB) PurgeLessons(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM lessons WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ScanLessons calls fn for every archived lesson, oldest first, with tokens
// decoded. Iteration stops at the first error fn returns.
func (db *DB) ScanLessons(ctx context.Context, fn func(*LessonRow) error) error {
	rows, err := db.Pool.Query(ctx, `
		SELECT id::text, source, language, word_count, issue_count, tokens, created_at
		FROM lessons ORDER BY created_at`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r LessonRow
		var tokensJSON []byte
		if err := rows.Scan(&r.ID, &r.Source, &r.Language, &r.WordCount,
			&r.IssueCount, &tokensJSON, &r.CreatedAt); err != nil {
			return err
		}
		if err := json.Unmarshal(tokensJSON, &r.Tokens); err != nil {
			return fmt.Errorf("decode tokens of %s: %w", r.ID, err)
		}
		if err := fn(&r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SetIssueCount updates the stored malformed-token count of a lesson.
func (db *DB) SetIssueCount(ctx context.Context, id string, n int) error {
	_, err := db.Pool.Exec(ctx, `UPDATE lessons SET issue_count = $2 WHERE id = $1`, id, n)
	return err
}
