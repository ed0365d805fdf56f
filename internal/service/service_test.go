package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"dynamic-flea-price/internal/alerting"
	"dynamic-flea-price/internal/config"
	"dynamic-flea-price/internal/flea"
	"dynamic-flea-price/internal/storage"
)

const (
	itemAmmo = "59e6906286f7746c9f75e847"
	catAmmo  = "5b47574386f77428ca22b33b"
)

type staticCatalog map[string]string

func (c staticCatalog) CategoryOf(tpl string) (string, bool) {
	cat, ok := c[tpl]
	return cat, ok
}

func (c staticCatalog) Name(id string) string { return "name:" + id }

type captureNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
	err   error
}

func (c *captureNotifier) Notify(_ context.Context, n alerting.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = append(c.notes, n)
	return c.err
}

type lockingStore struct {
	storage.StateStore
	acquired bool
	err      error
	calls    int
	unlocked int
}

func (l *lockingStore) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	l.calls++
	if l.err != nil {
		return nil, false, l.err
	}
	return func() { l.unlocked++ }, l.acquired, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{CatchUp: true, MaxCatchUp: 100, AdvisoryLockKey: 42},
		Alerting:  config.AlertingConfig{Enabled: true, Threshold: 10, Cooldown: time.Hour, Channels: []string{"telegram"}},
	}
}

func newEngine(t *testing.T, store storage.StateStore) *flea.Engine {
	t.Helper()
	cfg := config.DefaultFlea()
	cfg.UpdatePeriod = 600
	cfg.DecreaseMultiplierPercentage = 10
	cfg.IncreaseMultiplierPerItem[itemAmmo] = 2
	e := flea.New(cfg, staticCatalog{itemAmmo: catAmmo}, store, flea.Options{}, zerolog.Nop())
	if err := e.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestRecordTransactionAlertsOnceAboveThreshold(t *testing.T) {
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	engine := newEngine(t, store)
	notifier := &captureNotifier{}
	svc := New(testConfig(), engine, nil, store, notifier, staticCatalog{}, zerolog.Nop())

	ctx := context.Background()
	svc.RecordTransaction(ctx, itemAmmo, 2) // 4
	if len(notifier.notes) != 0 {
		t.Fatal("below threshold should not alert")
	}
	svc.RecordTransaction(ctx, itemAmmo, 3) // 10
	svc.RecordTransaction(ctx, itemAmmo, 1) // 12, throttled
	if len(notifier.notes) != 1 {
		t.Fatalf("alerts = %d, want 1", len(notifier.notes))
	}
	note := notifier.notes[0]
	if note.ItemName != "name:"+itemAmmo || note.Direction != "up" || note.Multiplier.InexactFloat64() != 10 {
		t.Fatalf("unexpected note: %+v", note)
	}
}

func TestRecordTransactionNegativeDirection(t *testing.T) {
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	notifier := &captureNotifier{err: errors.New("telegram down")}
	svc := New(testConfig(), newEngine(t, store), nil, store, notifier, nil, zerolog.Nop())

	if !svc.RecordTransaction(context.Background(), itemAmmo, -6) {
		t.Fatal("weighted item should register")
	}
	if len(notifier.notes) != 1 || notifier.notes[0].Direction != "down" || notifier.notes[0].ItemName != itemAmmo {
		t.Fatalf("notes = %+v", notifier.notes)
	}
}

func TestProcessTickRespectsAdvisoryLock(t *testing.T) {
	inner := storage.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	store := &lockingStore{StateStore: inner}
	engine := newEngine(t, store)
	svc := New(testConfig(), engine, nil, store, nil, nil, zerolog.Nop())
	engine.RecordTransaction(context.Background(), itemAmmo, 5)

	at := time.Now().UTC().Add(time.Minute)
	if err := svc.ProcessTick(context.Background(), at); err != nil {
		t.Fatal(err)
	}
	if engine.ItemMultiplier(itemAmmo) != 10 {
		t.Fatal("tick should be skipped while the lock is held elsewhere")
	}

	store.acquired = true
	if err := svc.ProcessTick(context.Background(), at); err != nil {
		t.Fatal(err)
	}
	if engine.ItemMultiplier(itemAmmo) != 9 {
		t.Fatalf("multiplier = %v, want 9 after one pass", engine.ItemMultiplier(itemAmmo))
	}
	if store.unlocked != 1 {
		t.Fatalf("unlock calls = %d", store.unlocked)
	}

	store.err = errors.New("connection reset")
	if err := svc.ProcessTick(context.Background(), at); err == nil {
		t.Fatal("lock error should surface")
	}
}

func TestCatchUpReplaysMissedPeriods(t *testing.T) {
	inner := storage.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	engine := newEngine(t, inner)
	engine.RecordTransaction(context.Background(), itemAmmo, 50) // 100

	cfg := testConfig()
	cfg.Scheduler.AdvisoryLockKey = 0
	svc := New(cfg, engine, nil, inner, nil, nil, zerolog.Nop())

	last := engine.LastDecayAt()
	now := last.Add(25 * time.Minute)
	passes, err := svc.CatchUp(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if passes != 2 {
		t.Fatalf("passes = %d, want 2", passes)
	}
	if got := engine.ItemMultiplier(itemAmmo); got < 80.99 || got > 81.01 {
		t.Fatalf("multiplier = %v, want 81", got)
	}
	if want := last.Add(20 * time.Minute); !engine.LastDecayAt().Equal(want) {
		t.Fatalf("last decay = %s, want %s", engine.LastDecayAt(), want)
	}

	if passes, _ := svc.CatchUp(context.Background(), now); passes != 0 {
		t.Fatalf("second catch-up replayed %d passes", passes)
	}
}

func TestCatchUpCapped(t *testing.T) {
	inner := storage.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	engine := newEngine(t, inner)

	cfg := testConfig()
	cfg.Scheduler.AdvisoryLockKey = 0
	cfg.Scheduler.MaxCatchUp = 3
	svc := New(cfg, engine, nil, inner, nil, nil, zerolog.Nop())

	now := engine.LastDecayAt().Add(48 * time.Hour)
	passes, err := svc.CatchUp(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if passes != 3 || !engine.LastDecayAt().Equal(now) {
		t.Fatalf("passes = %d last = %s", passes, engine.LastDecayAt())
	}
}

func TestRunWithoutScheduler(t *testing.T) {
	inner := storage.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	svc := New(testConfig(), newEngine(t, inner), nil, inner, nil, nil, zerolog.Nop())
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("Run without scheduler should fail")
	}
}
