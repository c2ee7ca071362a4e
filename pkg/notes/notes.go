// Package notes keeps encrypted notes in the store. Every operation is a
// command submitted to the worker; titles and tags stay in plaintext for
// listing and search, bodies are sealed with the store's data key.
package notes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/forest6511/vaultkeeper/pkg/store"
	"github.com/forest6511/vaultkeeper/pkg/worker"
)

// Limits
const (
	MaxTitleLength = 256
	MaxBodySize    = 1 << 20
	MaxTagCount    = 10
	MaxTagLength   = 64
)

// Errors
var (
	ErrNoteNotFound = errors.New("notes: note not found")
	ErrTitleInvalid = errors.New("notes: invalid title")
	ErrBodyTooLarge = errors.New("notes: body too large")
	ErrTooManyTags  = errors.New("notes: too many tags")
	ErrTagInvalid   = errors.New("notes: invalid tag format")
	ErrEmptyQuery   = errors.New("notes: search query must not be empty")
)

var tagRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const schema = `
CREATE TABLE IF NOT EXISTS notes (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	title      TEXT NOT NULL UNIQUE,
	body       BLOB NOT NULL,
	tags       TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_updated ON notes(updated_at);
`

// Note is a decrypted note.
type Note struct {
	Title     string
	Body      string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary is a note without its body.
type Summary struct {
	Title     string    `json:"title"`
	Tags      []string  `json:"tags,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store runs note operations through a worker.
type Store struct {
	w *worker.Worker
}

// Open creates the notes table if needed. The store must already be keyed.
func Open(ctx context.Context, w *worker.Worker) (*Store, error) {
	err := worker.Exec(ctx, w, func(ctx context.Context, conn *store.Conn) error {
		if _, err := conn.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("notes: failed to create schema: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Store{w: w}, nil
}

// Put creates or replaces the note with n.Title.
func (s *Store) Put(ctx context.Context, n *Note) error {
	if err := validateTitle(n.Title); err != nil {
		return err
	}
	if len(n.Body) > MaxBodySize {
		return fmt.Errorf("%w: %d bytes exceeds maximum of %d bytes", ErrBodyTooLarge, len(n.Body), MaxBodySize)
	}
	if err := validateTags(n.Tags); err != nil {
		return err
	}

	var tags sql.NullString
	if len(n.Tags) > 0 {
		b, err := json.Marshal(n.Tags)
		if err != nil {
			return fmt.Errorf("notes: failed to encode tags: %w", err)
		}
		tags = sql.NullString{String: string(b), Valid: true}
	}

	return worker.Exec(ctx, s.w, func(ctx context.Context, conn *store.Conn) error {
		sealed, err := conn.Seal([]byte(n.Body))
		if err != nil {
			return fmt.Errorf("notes: failed to seal body: %w", err)
		}
		now := time.Now().Unix()
		_, err = conn.ExecContext(ctx, `
			INSERT INTO notes (title, body, tags, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(title) DO UPDATE SET
				body = excluded.body,
				tags = excluded.tags,
				updated_at = excluded.updated_at`,
			n.Title, sealed, tags, now, now)
		if err != nil {
			return fmt.Errorf("notes: failed to save note: %w", err)
		}
		return nil
	})
}

// Get returns the note with title.
func (s *Store) Get(ctx context.Context, title string) (*Note, error) {
	return worker.Do(ctx, s.w, func(ctx context.Context, conn *store.Conn) (*Note, error) {
		var sealed []byte
		var tags sql.NullString
		var created, updated int64
		err := conn.QueryRowContext(ctx,
			`SELECT body, tags, created_at, updated_at FROM notes WHERE title = ?`, title).
			Scan(&sealed, &tags, &created, &updated)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoteNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("notes: failed to read note: %w", err)
		}

		body, err := conn.Unseal(sealed)
		if err != nil {
			return nil, fmt.Errorf("notes: failed to open note %q: %w", title, err)
		}
		return &Note{
			Title:     title,
			Body:      string(body),
			Tags:      decodeTags(tags),
			CreatedAt: time.Unix(created, 0),
			UpdatedAt: time.Unix(updated, 0),
		}, nil
	})
}

// List returns every note, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	return s.query(ctx, `SELECT title, tags, updated_at FROM notes ORDER BY updated_at DESC, title`)
}

// Search returns notes whose title or tags contain query, ignoring case.
// Bodies are never searched.
func (s *Store) Search(ctx context.Context, query string) ([]Summary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return s.query(ctx, `
		SELECT title, tags, updated_at FROM notes
		WHERE lower(title) LIKE ? ESCAPE '\' OR lower(coalesce(tags, '')) LIKE ? ESCAPE '\'
		ORDER BY updated_at DESC, title`, pattern, pattern)
}

// Delete removes the note with title.
func (s *Store) Delete(ctx context.Context, title string) error {
	return worker.Exec(ctx, s.w, func(ctx context.Context, conn *store.Conn) error {
		res, err := conn.ExecContext(ctx, `DELETE FROM notes WHERE title = ?`, title)
		if err != nil {
			return fmt.Errorf("notes: failed to delete note: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("notes: failed to delete note: %w", err)
		}
		if n == 0 {
			return ErrNoteNotFound
		}
		return nil
	})
}

// Count returns the number of notes.
func (s *Store) Count(ctx context.Context) (int, error) {
	return worker.Do(ctx, s.w, func(ctx context.Context, conn *store.Conn) (int, error) {
		var n int
		err := conn.QueryRowContext(ctx, `SELECT count(*) FROM notes`).Scan(&n)
		return n, err
	})
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Summary, error) {
	return worker.Do(ctx, s.w, func(ctx context.Context, conn *store.Conn) ([]Summary, error) {
		rows, err := conn.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("notes: failed to query notes: %w", err)
		}
		defer rows.Close()

		var out []Summary
		for rows.Next() {
			var title string
			var tags sql.NullString
			var updated int64
			if err := rows.Scan(&title, &tags, &updated); err != nil {
				return nil, fmt.Errorf("notes: failed to scan row: %w", err)
			}
			out = append(out, Summary{Title: title, Tags: decodeTags(tags), UpdatedAt: time.Unix(updated, 0)})
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("notes: error iterating rows: %w", err)
		}
		return out, nil
	})
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: must not be empty", ErrTitleInvalid)
	}
	if len(title) > MaxTitleLength {
		return fmt.Errorf("%w: %d characters exceeds maximum of %d", ErrTitleInvalid, len(title), MaxTitleLength)
	}
	if strings.ContainsAny(title, "\r\n\x00") {
		return fmt.Errorf("%w: must be a single line", ErrTitleInvalid)
	}
	return nil
}

func validateTags(tags []string) error {
	if len(tags) > MaxTagCount {
		return fmt.Errorf("%w: %d tags exceeds maximum of %d", ErrTooManyTags, len(tags), MaxTagCount)
	}
	for _, tag := range tags {
		if len(tag) == 0 || len(tag) > MaxTagLength || !tagRegex.MatchString(tag) {
			return fmt.Errorf("%w: tag '%s' must be 1-%d characters of [a-zA-Z0-9_-]", ErrTagInvalid, tag, MaxTagLength)
		}
	}
	return nil
}

func decodeTags(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(s.String), &tags); err != nil {
		return nil
	}
	return tags
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
