package credit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"videoexpress/internal/domain"
)

// FileStore keeps the counter in a JSON document on disk. It exists for
// keyless local runs and tests; deployments back the guard with the
// relational store instead.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore at the given path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("credit: file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("credit: ensure directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load reads the counter document. A missing file means no counter yet.
func (s *FileStore) Load(ctx context.Context) (*domain.CreditCounter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("credit: read counter file: %w", err)
	}
	var counter domain.CreditCounter
	if err := json.Unmarshal(data, &counter); err != nil {
		return nil, fmt.Errorf("credit: corrupt counter file: %w", err)
	}
	return &counter, nil
}

// Save writes the counter document atomically via a rename.
func (s *FileStore) Save(ctx context.Context, counter *domain.CreditCounter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(counter, "", "  ")
	if err != nil {
		return fmt.Errorf("credit: marshal counter: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("credit: write counter file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("credit: replace counter file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
