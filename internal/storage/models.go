package storage

import (
	"context"
	"errors"
	"maps"
	"time"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrStateNotFound is returned by LoadState when nothing has been persisted yet.
	ErrStateNotFound = errors.New("storage: state not found")
)

// Kinds of multiplier rows in the relational backends.
const (
	kindItem     = "item"
	kindCategory = "category"
)

// MultiplierState is the persisted pressure bookkeeping: signed magnitudes
// per item template and per handbook category, plus the time of the last
// decay pass.
type MultiplierState struct {
	ItemMultiplier     map[string]float64 `json:"itemMultiplier"`
	CategoryMultiplier map[string]float64 `json:"itemCategoryMultiplier"`
	LastDecayAt        time.Time          `json:"lastDecayAt"`
}

// NewMultiplierState returns an empty state stamped with now.
func NewMultiplierState(now time.Time) MultiplierState {
	return MultiplierState{
		ItemMultiplier:     map[string]float64{},
		CategoryMultiplier: map[string]float64{},
		LastDecayAt:        now.UTC(),
	}
}

// Clone deep-copies the maps so the copy can be handed to another goroutine.
func (s MultiplierState) Clone() MultiplierState {
	out := MultiplierState{
		ItemMultiplier:     make(map[string]float64, len(s.ItemMultiplier)),
		CategoryMultiplier: make(map[string]float64, len(s.CategoryMultiplier)),
		LastDecayAt:        s.LastDecayAt,
	}
	maps.Copy(out.ItemMultiplier, s.ItemMultiplier)
	maps.Copy(out.CategoryMultiplier, s.CategoryMultiplier)
	return out
}

// normalize replaces nil maps so callers can write into a loaded state.
func (s *MultiplierState) normalize() {
	if s.ItemMultiplier == nil {
		s.ItemMultiplier = map[string]float64{}
	}
	if s.CategoryMultiplier == nil {
		s.CategoryMultiplier = map[string]float64{}
	}
}

// StateStore persists MultiplierState.
type StateStore interface {
	LoadState(ctx context.Context) (MultiplierState, error)
	SaveState(ctx context.Context, state MultiplierState) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Closer is implemented by backends holding connections.
type Closer interface {
	Close()
}

type multiplierRow struct {
	Kind  string  `db:"kind"`
	ID    string  `db:"id"`
	Value float64 `db:"value"`
}
