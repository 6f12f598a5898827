// Package sqlitestore keeps the consultation archive in a SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"clinscribe/internal/domain"
	"clinscribe/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS consultations (
	id         TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS consultations_created_at ON consultations (created_at DESC);
`

var _ ports.Archive = (*Store)(nil)

// Store persists drafts as JSON payloads keyed by draft ID.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. The path ":memory:" opens a
// private in-memory database.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// List returns every archived draft, newest first.
func (s *Store) List(ctx context.Context) ([]domain.ConsultationDraft, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload
		FROM consultations
		ORDER BY created_at DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query consultations: %w", err)
	}
	defer rows.Close()

	var drafts []domain.ConsultationDraft
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan consultation: %w", err)
		}
		draft, err := decode(payload)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}
	return drafts, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (domain.ConsultationDraft, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM consultations WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ConsultationDraft{}, domain.ErrDraftNotFound
	}
	if err != nil {
		return domain.ConsultationDraft{}, fmt.Errorf("query consultation: %w", err)
	}
	return decode(payload)
}

// Put inserts draft, replacing any archived draft with the same ID.
func (s *Store) Put(ctx context.Context, draft domain.ConsultationDraft) error {
	if draft.ID == "" {
		return errors.New("draft id is empty")
	}
	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode consultation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO consultations (id, created_at, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			payload    = excluded.payload
	`, draft.ID, unixMillis(draft.CreatedAt), string(payload))
	if err != nil {
		return fmt.Errorf("upsert consultation: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM consultations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete consultation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete consultation: %w", err)
	}
	if affected == 0 {
		return domain.ErrDraftNotFound
	}
	return nil
}

func decode(payload string) (domain.ConsultationDraft, error) {
	var draft domain.ConsultationDraft
	if err := json.Unmarshal([]byte(payload), &draft); err != nil {
		return domain.ConsultationDraft{}, fmt.Errorf("decode consultation: %w", err)
	}
	return draft, nil
}

func unixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
