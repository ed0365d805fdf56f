package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

// SnapshotVersion is the archive format written by WriteSnapshot.
const SnapshotVersion = 1

// SnapshotHeader is the first line of a snapshot archive.
type SnapshotHeader struct {
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	Items      int       `json:"items"`
	Categories int       `json:"categories"`
}

// WriteSnapshot archives state as zstd-compressed JSON lines: a header line
// followed by the state document.
func WriteSnapshot(path string, state MultiplierState, now time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	if err := encodeSnapshot(f, state, now); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

func encodeSnapshot(f *os.File, state MultiplierState, now time.Time) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}

	bw := bufio.NewWriter(enc)
	header := SnapshotHeader{
		Version:    SnapshotVersion,
		CreatedAt:  now.UTC(),
		Items:      len(state.ItemMultiplier),
		Categories: len(state.CategoryMultiplier),
	}
	je := json.NewEncoder(bw)
	if err := je.Encode(header); err != nil {
		enc.Close()
		return fmt.Errorf("encode snapshot header: %w", err)
	}
	if err := je.Encode(state); err != nil {
		enc.Close()
		return fmt.Errorf("encode snapshot state: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return enc.Close()
}

// ReadSnapshot loads an archive written by WriteSnapshot.
func ReadSnapshot(path string) (SnapshotHeader, MultiplierState, error) {
	var header SnapshotHeader

	f, err := os.Open(path)
	if err != nil {
		return header, MultiplierState{}, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return header, MultiplierState{}, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	jd := json.NewDecoder(bufio.NewReader(dec))
	if err := jd.Decode(&header); err != nil {
		return header, MultiplierState{}, fmt.Errorf("decode snapshot header: %w", err)
	}
	if header.Version != SnapshotVersion {
		return header, MultiplierState{}, fmt.Errorf("unsupported snapshot version %d", header.Version)
	}

	var state MultiplierState
	if err := jd.Decode(&state); err != nil {
		return header, MultiplierState{}, fmt.Errorf("decode snapshot state: %w", err)
	}
	state.normalize()
	if state.LastDecayAt.IsZero() {
		return header, MultiplierState{}, errors.New("snapshot has no lastDecayAt")
	}
	return header, state, nil
}
