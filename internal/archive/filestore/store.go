// Package filestore keeps the consultation archive in a single TOML file.
// Every mutation rewrites the whole file through a temp file and rename.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"clinscribe/internal/domain"
	"clinscribe/internal/ports"
)

const (
	schemaVersion   = 1
	archiveFileMode = 0o600
	archiveDirMode  = 0o700
	tempFilePattern = ".archive-*.toml.tmp"
)

var _ ports.Archive = (*Store)(nil)

type Store struct {
	path string
	mu   sync.RWMutex
}

// New returns a store backed by path. The file is created on first write.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("archive path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve archive path: %w", err)
	}
	return &Store{path: filepath.Clean(abs)}, nil
}

func (s *Store) Path() string {
	return s.path
}

// List returns every archived draft, newest first.
func (s *Store) List(ctx context.Context) ([]domain.ConsultationDraft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.readSchema()
	if err != nil {
		return nil, err
	}

	drafts := make([]domain.ConsultationDraft, 0, len(file.Consultations))
	for _, entry := range file.Consultations {
		drafts = append(drafts, fromSchema(entry))
	}
	sort.SliceStable(drafts, func(i, j int) bool {
		return drafts[i].CreatedAt.After(drafts[j].CreatedAt)
	})
	return drafts, nil
}

func (s *Store) Get(ctx context.Context, id string) (domain.ConsultationDraft, error) {
	if err := ctx.Err(); err != nil {
		return domain.ConsultationDraft{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.readSchema()
	if err != nil {
		return domain.ConsultationDraft{}, err
	}
	for _, entry := range file.Consultations {
		if entry.ID == id {
			return fromSchema(entry), nil
		}
	}
	return domain.ConsultationDraft{}, domain.ErrDraftNotFound
}

// Put inserts draft, replacing any archived draft with the same ID.
func (s *Store) Put(ctx context.Context, draft domain.ConsultationDraft) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if draft.ID == "" {
		return errors.New("draft id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.readSchema()
	if err != nil {
		return err
	}

	encoded := toSchema(draft)
	replaced := false
	for i := range file.Consultations {
		if file.Consultations[i].ID == encoded.ID {
			file.Consultations[i] = encoded
			replaced = true
			break
		}
	}
	if !replaced {
		file.Consultations = append(file.Consultations, encoded)
	}

	return s.writeSchema(file)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.readSchema()
	if err != nil {
		return err
	}

	kept := file.Consultations[:0]
	for _, entry := range file.Consultations {
		if entry.ID != id {
			kept = append(kept, entry)
		}
	}
	if len(kept) == len(file.Consultations) {
		return domain.ErrDraftNotFound
	}
	file.Consultations = kept

	return s.writeSchema(file)
}

func (s *Store) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{Version: schemaVersion}, nil
		}
		return fileSchema{}, fmt.Errorf("read archive file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode archive file: %w", err)
	}
	if file.Version > schemaVersion {
		return fileSchema{}, fmt.Errorf("unsupported archive version %d", file.Version)
	}
	return file, nil
}

func (s *Store) writeSchema(file fileSchema) error {
	file.Version = schemaVersion

	if err := os.MkdirAll(filepath.Dir(s.path), archiveDirMode); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode archive file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(s.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp archive file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp archive file: %w", err)
	}
	if err := tempFile.Chmod(archiveFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp archive file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp archive file: %w", err)
	}
	if err := os.Rename(tempName, s.path); err != nil {
		return fmt.Errorf("replace archive file: %w", err)
	}

	cleanup = false
	return nil
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
