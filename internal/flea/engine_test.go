package flea

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"dynamic-flea-price/internal/config"
	"dynamic-flea-price/internal/storage"
)

const (
	itemAmmo  = "59e6906286f7746c9f75e847"
	itemSalt  = "5d1b32c186f774252167a530"
	catAmmo   = "5b47574386f77428ca22b33b"
	catOthers = "5b47574386f77428ca22b2f0"
)

type staticCatalog map[string]string

func (c staticCatalog) CategoryOf(tpl string) (string, bool) {
	cat, ok := c[tpl]
	return cat, ok
}

type memoryStore struct {
	mu    sync.Mutex
	state *storage.MultiplierState
	saves int
	err   error
	load  error
}

func (m *memoryStore) LoadState(ctx context.Context) (storage.MultiplierState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.load != nil {
		return storage.MultiplierState{}, m.load
	}
	if m.state == nil {
		return storage.MultiplierState{}, storage.ErrStateNotFound
	}
	return m.state.Clone(), nil
}

func (m *memoryStore) SaveState(ctx context.Context, state storage.MultiplierState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.err != nil {
		return m.err
	}
	clone := state.Clone()
	m.state = &clone
	return nil
}

func testConfig() *config.FleaConfig {
	cfg := config.DefaultFlea()
	cfg.IncreaseMultiplierPerItem[itemAmmo] = 2.0
	cfg.IncreaseMultiplierPerItemCategory[catAmmo] = 0.5
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.FleaConfig, store storage.StateStore) *Engine {
	t.Helper()
	cat := staticCatalog{itemAmmo: catAmmo, itemSalt: catOthers}
	e := New(cfg, cat, store, Options{}, zerolog.Nop())
	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return e
}

func TestRecordScenario(t *testing.T) {
	e := newTestEngine(t, testConfig(), &memoryStore{})

	e.RecordTransaction(context.Background(), itemAmmo, 3)

	state, _ := e.Snapshot()
	if got := state.ItemMultiplier[itemAmmo]; got != 6.0 {
		t.Fatalf("item multiplier = %v, want 6", got)
	}
	if got := state.CategoryMultiplier[catAmmo]; got != 1.5 {
		t.Fatalf("category multiplier = %v, want 1.5", got)
	}
	if got := e.ItemMultiplier(itemAmmo); got != 7.5 {
		t.Fatalf("combined multiplier = %v, want 7.5", got)
	}
}

func TestRecordUnweightedItemIsInert(t *testing.T) {
	e := newTestEngine(t, testConfig(), &memoryStore{})
	for i := 0; i < 50; i++ {
		e.RecordTransaction(context.Background(), itemSalt, 4)
		e.RecordTransaction(context.Background(), itemSalt, -9)
	}
	state, _ := e.Snapshot()
	if len(state.ItemMultiplier) != 0 || len(state.CategoryMultiplier) != 0 {
		t.Fatalf("unweighted item changed state: %+v", state)
	}
	if e.ItemMultiplier(itemSalt) != 0 {
		t.Fatal("unweighted item should have a zero multiplier")
	}
}

func TestRecordExplicitCategory(t *testing.T) {
	e := newTestEngine(t, testConfig(), &memoryStore{})
	if !e.Record(context.Background(), Transaction{ItemID: "unknown", CategoryID: catAmmo, Quantity: -4}) {
		t.Fatal("category weight should register the transaction")
	}
	state, _ := e.Snapshot()
	if state.CategoryMultiplier[catAmmo] != -2 {
		t.Fatalf("category = %v, want -2", state.CategoryMultiplier[catAmmo])
	}
	if _, ok := state.ItemMultiplier["unknown"]; ok {
		t.Fatal("unknown item should not be stored")
	}
}

func TestRecordCancellingRemovesEntry(t *testing.T) {
	e := newTestEngine(t, testConfig(), &memoryStore{})
	e.Record(context.Background(), Transaction{ItemID: itemAmmo, Quantity: 2})
	e.Record(context.Background(), Transaction{ItemID: itemAmmo, Quantity: -2})
	state, _ := e.Snapshot()
	if _, ok := state.ItemMultiplier[itemAmmo]; ok {
		t.Fatal("zero-valued entry should not be stored")
	}
}

func TestUninitialisedEngineIsNoop(t *testing.T) {
	e := New(testConfig(), staticCatalog{}, &memoryStore{}, Options{}, zerolog.Nop())
	if e.RecordTransaction(context.Background(), itemAmmo, 1) {
		t.Fatal("record before load should be ignored")
	}
	if e.Decay(context.Background(), 1, time.Now()) != 0 {
		t.Fatal("decay before load should be ignored")
	}
	if e.ItemMultiplier(itemAmmo) != 0 {
		t.Fatal("lookup before load should be neutral")
	}

	noCfg := New(nil, staticCatalog{}, &memoryStore{}, Options{}, zerolog.Nop())
	if err := noCfg.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if noCfg.RecordTransaction(context.Background(), itemAmmo, 1) {
		t.Fatal("record without config should be ignored")
	}
}

func TestDecayPositiveConvergesWithoutCrossing(t *testing.T) {
	cfg := testConfig()
	cfg.DecreaseMultiplierPercentage = 10
	e := newTestEngine(t, cfg, &memoryStore{})
	e.Record(context.Background(), Transaction{ItemID: itemAmmo, Quantity: 5})

	prev := 10.0
	for i := 0; i < 200; i++ {
		e.Tick(context.Background(), time.Now())
		state, _ := e.Snapshot()
		v, ok := state.ItemMultiplier[itemAmmo]
		if !ok {
			break
		}
		if v < 0 || v >= prev {
			t.Fatalf("pass %d: %v after %v", i, v, prev)
		}
		prev = v
	}
	if prev > 0.01 {
		t.Fatalf("value did not converge: %v", prev)
	}
}

func TestDecayNegativeRegeneratesWithoutCrossing(t *testing.T) {
	cfg := testConfig()
	cfg.RegenerateMultiplierPercentage = 25
	e := newTestEngine(t, cfg, &memoryStore{})
	e.Record(context.Background(), Transaction{ItemID: itemAmmo, Quantity: -8})

	prev := -16.0
	for i := 0; i < 50; i++ {
		e.Tick(context.Background(), time.Now())
		state, _ := e.Snapshot()
		v, ok := state.ItemMultiplier[itemAmmo]
		if !ok {
			break
		}
		if v > 0 || v <= prev {
			t.Fatalf("pass %d: %v after %v", i, v, prev)
		}
		prev = v
	}
}

func TestDecayZeroPercentLeavesValues(t *testing.T) {
	cfg := testConfig()
	cfg.DecreaseMultiplierPercentage = 0
	cfg.RegenerateMultiplierPercentage = 0
	e := newTestEngine(t, cfg, &memoryStore{})
	e.Record(context.Background(), Transaction{ItemID: itemAmmo, CategoryID: catAmmo, Quantity: 3})
	e.Record(context.Background(), Transaction{ItemID: "x", CategoryID: catAmmo, Quantity: -10})

	before, _ := e.Snapshot()
	e.Decay(context.Background(), 25, time.Now())
	after, _ := e.Snapshot()

	if after.ItemMultiplier[itemAmmo] != before.ItemMultiplier[itemAmmo] ||
		after.CategoryMultiplier[catAmmo] != before.CategoryMultiplier[catAmmo] {
		t.Fatalf("zero percentages changed values: %+v -> %+v", before, after)
	}
}

func TestDecayStampsAndPersists(t *testing.T) {
	store := &memoryStore{}
	e := newTestEngine(t, testConfig(), store)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	saves := store.saves
	e.Tick(context.Background(), at)
	if store.saves != saves+1 {
		t.Fatalf("tick should persist once, saves %d -> %d", saves, store.saves)
	}
	if !e.LastDecayAt().Equal(at) || !store.state.LastDecayAt.Equal(at) {
		t.Fatalf("last decay = %s / %s", e.LastDecayAt(), store.state.LastDecayAt)
	}
}

func TestSteppedDecayClampsAtZero(t *testing.T) {
	cfg := testConfig()
	cfg.DecayMode = config.DecayStepped
	cfg.DecreaseMultiplierPercentage = 1
	e := newTestEngine(t, cfg, &memoryStore{})
	e.Record(context.Background(), Transaction{ItemID: itemAmmo, Quantity: 1.5})

	e.Tick(context.Background(), time.Now())
	state, _ := e.Snapshot()
	if state.ItemMultiplier[itemAmmo] != 2 {
		t.Fatalf("stepped decay should remove one unit, got %v", state.ItemMultiplier[itemAmmo])
	}
	e.Decay(context.Background(), 5, time.Now())
	state, _ = e.Snapshot()
	if _, ok := state.ItemMultiplier[itemAmmo]; ok {
		t.Fatalf("stepped decay should clamp to zero and drop the entry: %+v", state.ItemMultiplier)
	}
}

func TestDecayFuncs(t *testing.T) {
	cases := []struct {
		name string
		fn   DecayFunc
		v    float64
		want float64
	}{
		{"relax positive", RelaxDecay, 100, 90},
		{"relax negative", RelaxDecay, -100, -80},
		{"relax zero", RelaxDecay, 0, 0},
		{"stepped positive", SteppedDecay, 100, 90},
		{"stepped small", SteppedDecay, 3, 2},
		{"stepped negative", SteppedDecay, -100, -80},
		{"stepped small negative", SteppedDecay, -0.5, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.fn(tc.v, 10, 20); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestApplyMultiplierClamp(t *testing.T) {
	cases := []struct {
		m    float64
		want float64
	}{
		{0.5, 100},
		{0, 100},
		{-0.5, 100},
		{1, 100},
		{2.5, 250},
		{-1, 100},
		{-4, 25},
	}
	for _, tc := range cases {
		if got := ApplyMultiplier(100, tc.m); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("ApplyMultiplier(100, %v) = %v, want %v", tc.m, got, tc.want)
		}
	}
	if EffectiveMultiplier(0.5) != 1 || EffectiveMultiplier(-0.5) != -1 {
		t.Fatal("clamp should snap near-zero multipliers to +/-1")
	}
}

func TestApplyToBasePriceUsesCombined(t *testing.T) {
	e := newTestEngine(t, testConfig(), &memoryStore{})
	e.RecordTransaction(context.Background(), itemAmmo, -2)

	// item -4, category -1 => divide by 5
	if got := e.ApplyToBasePrice(1000, itemAmmo); got != 200 {
		t.Fatalf("ApplyToBasePrice = %v, want 200", got)
	}
	b := e.Breakdown(itemAmmo)
	if b.CategoryID != catAmmo || b.ItemPart != -4 || b.CategoryPart != -1 || b.Combined != -5 {
		t.Fatalf("breakdown = %+v", b)
	}
}

func TestLoadMissingCreatesState(t *testing.T) {
	store := &memoryStore{}
	newTestEngine(t, testConfig(), store)
	if store.state == nil || store.saves != 1 {
		t.Fatalf("missing state should be written back, saves=%d", store.saves)
	}
}

func TestLoadCorruptDefaultsUnlessStrict(t *testing.T) {
	corrupt := errors.New("unexpected end of JSON input")

	lenient := New(testConfig(), staticCatalog{}, &memoryStore{load: corrupt}, Options{}, zerolog.Nop())
	if err := lenient.Load(context.Background()); err != nil {
		t.Fatalf("lenient load should default: %v", err)
	}
	if _, ok := lenient.Snapshot(); !ok {
		t.Fatal("lenient load should leave an empty state")
	}

	strict := New(testConfig(), staticCatalog{}, &memoryStore{load: corrupt}, Options{Strict: true}, zerolog.Nop())
	if err := strict.Load(context.Background()); !errors.Is(err, corrupt) {
		t.Fatalf("strict load should fail with the cause, got %v", err)
	}
}

func TestSaveFailureKeepsMemoryState(t *testing.T) {
	store := &memoryStore{}
	e := newTestEngine(t, testConfig(), store)
	store.err = errors.New("disk full")

	e.RecordTransaction(context.Background(), itemAmmo, 1)
	if err := e.Save(context.Background()); err == nil {
		t.Fatal("save should report the failure")
	}
	if e.ItemMultiplier(itemAmmo) != 2.5 {
		t.Fatalf("in-memory state lost: %v", e.ItemMultiplier(itemAmmo))
	}
}

func TestFileRoundTripThroughEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Data", "DynamicFleaData.json")
	e := newTestEngine(t, testConfig(), storage.NewFileStore(path))
	e.RecordTransaction(context.Background(), itemAmmo, 3)
	if err := e.Save(context.Background()); err != nil {
		t.Fatal(err)
	}

	reloaded := newTestEngine(t, testConfig(), storage.NewFileStore(path))
	if got := reloaded.ItemMultiplier(itemAmmo); got != 7.5 {
		t.Fatalf("reloaded multiplier = %v, want 7.5", got)
	}
}

func TestResetClearsState(t *testing.T) {
	e := newTestEngine(t, testConfig(), &memoryStore{})
	e.RecordTransaction(context.Background(), itemAmmo, 3)
	if err := e.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}
	if e.ItemMultiplier(itemAmmo) != 0 {
		t.Fatal("reset should clear pressure")
	}
}
