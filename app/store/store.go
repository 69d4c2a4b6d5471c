package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

type Item struct {
	URL             string            `json:"url"`
	Title           string            `json:"title"`
	SourceURL       string            `json:"source_url"`
	Characteristics map[string]string `json:"characteristics"`
}

// Store is the JSON file holding every queued item. It does no locking of
// its own; callers coordinate through the lock package.
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load never fails: a missing, empty or malformed file yields an empty sequence.
func (s *Store) Load() []Item {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("Store file not found, starting empty", "path", s.path)
		} else {
			slog.Warn("Failed to read store, starting empty", "path", s.path, "error", err)
		}
		return []Item{}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		slog.Debug("Store file is empty", "path", s.path)
		return []Item{}
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		slog.Warn("Malformed store, starting empty", "path", s.path, "error", err)
		return []Item{}
	}
	if items == nil {
		items = []Item{}
	}

	return items
}

// Save replaces the whole file with items.
func (s *Store) Save(items []Item) error {
	if items == nil {
		items = []Item{}
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := writeSynced(tmpPath, data); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write store: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace store: %w", err)
	}

	slog.Debug("Store saved", "path", s.path, "items", len(items))
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
