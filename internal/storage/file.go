package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend keeps the document in a single JSON file.
type FileBackend struct {
	path string
	mu   sync.Mutex
}

// NewFileBackend creates a backend writing to path. Parent directories are created on first save.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the document location.
func (b *FileBackend) Path() string {
	return b.path
}

func (b *FileBackend) Load(_ context.Context) (Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return Document{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", b.path, err)
	}

	return Decode(data)
}

// Save writes to a temporary file and renames it over the old one so a crash never leaves a torn document.
func (b *FileBackend) Save(ctx context.Context, doc Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	temp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		temp.Close()
		os.Remove(tempPath)

		return fmt.Errorf("failed to write settings: %w", err)
	}

	if err := temp.Sync(); err != nil {
		temp.Close()
		os.Remove(tempPath)

		return fmt.Errorf("failed to sync settings: %w", err)
	}

	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close settings: %w", err)
	}

	if err := os.Rename(tempPath, b.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace %s: %w", b.path, err)
	}

	return nil
}

func (b *FileBackend) Close() error {
	return nil
}
