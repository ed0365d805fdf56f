package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// FileStore keeps the state as an indented JSON document on disk. Reads
// accept comments and trailing commas; keys match case-insensitively.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file location.
func (f *FileStore) Path() string { return f.path }

// LoadState reads the state file. A missing file yields ErrStateNotFound.
func (f *FileStore) LoadState(ctx context.Context) (MultiplierState, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return MultiplierState{}, ErrStateNotFound
		}
		return MultiplierState{}, fmt.Errorf("read state file: %w", err)
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return MultiplierState{}, fmt.Errorf("parse state file: %w", err)
	}

	var state MultiplierState
	if err := json.Unmarshal(std, &state); err != nil {
		return MultiplierState{}, fmt.Errorf("decode state file: %w", err)
	}
	state.normalize()
	return state, nil
}

// SaveState writes the state through a temp file and rename so a crash
// mid-write never leaves a truncated document behind.
func (f *FileStore) SaveState(ctx context.Context, state MultiplierState) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	state.normalize()
	body, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

var _ StateStore = (*FileStore)(nil)
