package flea

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dynamic-flea-price/internal/config"
	"dynamic-flea-price/internal/storage"
)

// CategoryResolver maps an item template to its handbook category.
type CategoryResolver interface {
	CategoryOf(tpl string) (string, bool)
}

// Transaction is one buy (positive quantity) or sale (negative quantity) of
// an item. CategoryID is empty when the catalog has no category for it.
type Transaction struct {
	ItemID     string
	CategoryID string
	Quantity   float64
}

// Breakdown explains how a combined multiplier was assembled.
type Breakdown struct {
	ItemID       string  `json:"itemId"`
	CategoryID   string  `json:"categoryId,omitempty"`
	ItemPart     float64 `json:"itemPart"`
	CategoryPart float64 `json:"categoryPart"`
	Combined     float64 `json:"combined"`
	Effective    float64 `json:"effective"`
}

// Options tune engine behaviour.
type Options struct {
	// Strict makes LoadState failures other than "not found" fatal.
	Strict bool
	Now    func() time.Time
}

// Engine owns the multiplier bookkeeping: it folds transactions into item
// and category pressure, relaxes that pressure on every decay pass and
// answers multiplier lookups for the pricing path. All methods are safe for
// concurrent use.
type Engine struct {
	mu    sync.RWMutex
	cfg   *config.FleaConfig
	state *storage.MultiplierState
	rev   uint64
	decay DecayFunc

	saveMu  sync.Mutex
	catalog CategoryResolver
	store   storage.StateStore
	strict  bool
	now     func() time.Time
	logger  zerolog.Logger
}

// New constructs an engine. The state is empty until Load succeeds; until
// then ingestion and decay are no-ops.
func New(cfg *config.FleaConfig, catalog CategoryResolver, store storage.StateStore, opts Options, logger zerolog.Logger) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	mode := ""
	if cfg != nil {
		mode = cfg.DecayMode
	}
	return &Engine{
		cfg:     cfg,
		decay:   DecayFor(mode),
		catalog: catalog,
		store:   store,
		strict:  opts.Strict,
		now:     now,
		logger:  logger.With().Str("component", "flea_engine").Logger(),
	}
}

// Config returns the mod config the engine runs with.
func (e *Engine) Config() *config.FleaConfig {
	return e.cfg
}

// Load reads the persisted state. A missing state is created empty and
// written back immediately. Any other failure resets to an empty state with
// a warning, or is returned when the engine is strict.
func (e *Engine) Load(ctx context.Context) error {
	if e.store == nil {
		return storage.ErrNotConfigured
	}

	state, err := e.store.LoadState(ctx)
	switch {
	case err == nil:
		dropZeros(state.ItemMultiplier)
		dropZeros(state.CategoryMultiplier)
		e.setState(state)
		e.logger.Info().
			Int("items", len(state.ItemMultiplier)).
			Int("categories", len(state.CategoryMultiplier)).
			Time("last_decay_at", state.LastDecayAt).
			Msg("flea state loaded")
		return nil
	case errors.Is(err, storage.ErrStateNotFound):
		e.setState(storage.NewMultiplierState(e.now()))
		e.logger.Info().Msg("no flea state yet; starting empty")
		_ = e.Save(ctx)
		return nil
	case e.strict:
		e.logger.Error().Err(err).Msg("flea state is unreadable")
		return fmt.Errorf("load flea state: %w", err)
	default:
		e.setState(storage.NewMultiplierState(e.now()))
		e.logger.Warn().Err(err).Msg("flea state is unreadable; starting empty")
		return nil
	}
}

func (e *Engine) setState(state storage.MultiplierState) {
	e.mu.Lock()
	e.state = &state
	e.rev++
	e.mu.Unlock()
}

// Revision increases every time the state changes. Observers compare it to
// skip unchanged snapshots.
func (e *Engine) Revision() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rev
}

// Save writes the current state. Failures are logged and returned; the
// in-memory state stays authoritative either way.
func (e *Engine) Save(ctx context.Context) error {
	if e.store == nil {
		return storage.ErrNotConfigured
	}

	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	snapshot, ok := e.Snapshot()
	if !ok {
		return errors.New("flea state not initialised")
	}
	if err := e.store.SaveState(ctx, snapshot); err != nil {
		e.logger.Error().Err(err).Msg("failed to persist flea state")
		return err
	}
	return nil
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() (storage.MultiplierState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state == nil {
		return storage.MultiplierState{}, false
	}
	return e.state.Clone(), true
}

// Reset discards all pressure and persists the empty state.
func (e *Engine) Reset(ctx context.Context) error {
	e.setState(storage.NewMultiplierState(e.now()))
	e.logger.Warn().Msg("flea state reset")
	return e.Save(ctx)
}

// Restore replaces the state wholesale and persists it.
func (e *Engine) Restore(ctx context.Context, state storage.MultiplierState) error {
	state = state.Clone()
	dropZeros(state.ItemMultiplier)
	dropZeros(state.CategoryMultiplier)
	e.setState(state)
	e.logger.Info().
		Int("items", len(state.ItemMultiplier)).
		Int("categories", len(state.CategoryMultiplier)).
		Msg("flea state restored")
	return e.Save(ctx)
}

// RecordTransaction resolves the item's category and records the transaction.
// It does not persist; callers save once per batch.
func (e *Engine) RecordTransaction(ctx context.Context, itemID string, quantity float64) bool {
	tx := Transaction{ItemID: itemID, Quantity: quantity}
	if e.catalog != nil {
		if cat, ok := e.catalog.CategoryOf(itemID); ok {
			tx.CategoryID = cat
		}
	}
	return e.Record(ctx, tx)
}

// Record adds quantity x weight to the item and category pressure. Items or
// categories without a positive configured weight are left alone. It reports
// whether anything changed.
func (e *Engine) Record(ctx context.Context, tx Transaction) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil || e.cfg == nil {
		e.logger.Error().Str("item", tx.ItemID).Msg("flea state is not initialised; transaction ignored")
		return false
	}
	if tx.ItemID == "" || tx.Quantity == 0 {
		return false
	}

	changed := false
	if w := e.cfg.ItemWeight(tx.ItemID); w > 0 {
		addPressure(e.state.ItemMultiplier, tx.ItemID, tx.Quantity*w)
		changed = true
	}
	if tx.CategoryID != "" {
		if w := e.cfg.CategoryWeight(tx.CategoryID); w > 0 {
			addPressure(e.state.CategoryMultiplier, tx.CategoryID, tx.Quantity*w)
			changed = true
		}
	}

	if changed {
		e.rev++
		e.logger.Debug().
			Str("item", tx.ItemID).
			Str("category", tx.CategoryID).
			Float64("quantity", tx.Quantity).
			Float64("item_multiplier", e.state.ItemMultiplier[tx.ItemID]).
			Float64("category_multiplier", e.state.CategoryMultiplier[tx.CategoryID]).
			Msg("transaction recorded")
	}
	return changed
}

func addPressure(m map[string]float64, id string, delta float64) {
	v := m[id] + delta
	if v == 0 {
		delete(m, id)
		return
	}
	m[id] = v
}

func dropZeros(m map[string]float64) {
	for id, v := range m {
		if v == 0 {
			delete(m, id)
		}
	}
}

// Tick runs one decay pass stamped at now and persists the result.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	e.Decay(ctx, 1, now)
}

// Decay runs passes decay passes, stamps the state with at and persists it
// once. It returns how many entries are still non-zero.
func (e *Engine) Decay(ctx context.Context, passes int, at time.Time) int {
	e.mu.Lock()
	if e.state == nil || e.cfg == nil {
		e.mu.Unlock()
		e.logger.Error().Msg("flea state is not initialised; decay skipped")
		return 0
	}

	decayPct := e.cfg.DecreaseMultiplierPercentage
	regenPct := e.cfg.RegenerateMultiplierPercentage
	for i := 0; i < passes; i++ {
		e.relax(e.state.ItemMultiplier, decayPct, regenPct)
		e.relax(e.state.CategoryMultiplier, decayPct, regenPct)
	}
	e.state.LastDecayAt = at.UTC()
	e.rev++
	remaining := len(e.state.ItemMultiplier) + len(e.state.CategoryMultiplier)
	e.mu.Unlock()

	e.logger.Debug().Int("passes", passes).Int("remaining", remaining).Msg("decay applied")
	_ = e.Save(ctx)
	return remaining
}

func (e *Engine) relax(m map[string]float64, decayPct, regenPct float64) {
	for id, v := range m {
		next := e.decay(v, decayPct, regenPct)
		if next == 0 {
			delete(m, id)
			continue
		}
		m[id] = next
	}
}

// LastDecayAt reports when decay last ran, zero when uninitialised.
func (e *Engine) LastDecayAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state == nil {
		return time.Time{}
	}
	return e.state.LastDecayAt
}

// ItemMultiplier is the item's own pressure plus its category's pressure.
func (e *Engine) ItemMultiplier(itemID string) float64 {
	return e.Breakdown(itemID).Combined
}

// Breakdown returns the parts of the item's combined multiplier.
func (e *Engine) Breakdown(itemID string) Breakdown {
	b := Breakdown{ItemID: itemID}
	if e.catalog != nil {
		if cat, ok := e.catalog.CategoryOf(itemID); ok {
			b.CategoryID = cat
		}
	}

	e.mu.RLock()
	if e.state != nil {
		b.ItemPart = e.state.ItemMultiplier[itemID]
		if b.CategoryID != "" {
			b.CategoryPart = e.state.CategoryMultiplier[b.CategoryID]
		}
	}
	e.mu.RUnlock()

	b.Combined = b.ItemPart + b.CategoryPart
	b.Effective = EffectiveMultiplier(b.Combined)
	return b
}

// ApplyToBasePrice scales basePrice by the item's effective multiplier.
func (e *Engine) ApplyToBasePrice(basePrice float64, itemID string) float64 {
	return ApplyMultiplier(basePrice, e.ItemMultiplier(itemID))
}

// EffectiveMultiplier clamps m away from zero: [0, 1) becomes 1 and (-1, 0)
// becomes -1.
func EffectiveMultiplier(m float64) float64 {
	switch {
	case m >= 0 && m < 1:
		return 1
	case m < 0 && m > -1:
		return -1
	default:
		return m
	}
}

// ApplyMultiplier multiplies basePrice by a multiplier of at least 1 and
// divides it by the magnitude of a multiplier of at most -1.
func ApplyMultiplier(basePrice, m float64) float64 {
	m = EffectiveMultiplier(m)
	if m >= 1 {
		return basePrice * m
	}
	return basePrice / math.Abs(m)
}
