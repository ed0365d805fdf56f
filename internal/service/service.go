package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dynamic-flea-price/internal/alerting"
	"dynamic-flea-price/internal/config"
	"dynamic-flea-price/internal/flea"
	"dynamic-flea-price/internal/ragfair"
	"dynamic-flea-price/internal/scheduler"
	"dynamic-flea-price/internal/storage"
)

// Namer resolves display names for alerts.
type Namer interface {
	Name(id string) string
}

// Service orchestrates decay passes, catch-up and pressure alerts around
// the flea engine.
type Service struct {
	engine    *flea.Engine
	scheduler *scheduler.Scheduler
	notifier  alerting.Notifier
	throttle  *alerting.Throttle
	names     Namer
	logger    zerolog.Logger

	threshold  decimal.Decimal
	channels   []string
	alertsOn   bool
	catchUp    bool
	maxCatchUp int
	locker     storage.AdvisoryLocker
	lockKey    int64
	now        func() time.Time
}

var _ ragfair.Recorder = (*Service)(nil)

// New constructs the service. sched, notifier and names may be nil.
func New(cfg *config.Config, engine *flea.Engine, sched *scheduler.Scheduler, store storage.StateStore, notifier alerting.Notifier, names Namer, logger zerolog.Logger) *Service {
	threshold := decimal.Zero
	if cfg.Alerting.Enabled && cfg.Alerting.Threshold > 0 {
		threshold = decimal.NewFromFloat(cfg.Alerting.Threshold)
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		engine:     engine,
		scheduler:  sched,
		notifier:   notifier,
		throttle:   alerting.NewThrottle(cfg.Alerting.Cooldown),
		names:      names,
		logger:     logger.With().Str("component", "service").Logger(),
		threshold:  threshold,
		channels:   cfg.Alerting.Channels,
		alertsOn:   cfg.Alerting.Enabled,
		catchUp:    cfg.Scheduler.CatchUp,
		maxCatchUp: cfg.Scheduler.MaxCatchUp,
		locker:     locker,
		lockKey:    cfg.Scheduler.AdvisoryLockKey,
		now:        time.Now,
	}
}

// Run replays missed decay periods and then starts the decay loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	if s.catchUp {
		if _, err := s.CatchUp(ctx, s.now().UTC()); err != nil {
			s.logger.Error().Err(err).Msg("catch-up failed")
		}
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick runs one decay pass unless another instance holds the lock.
func (s *Service) ProcessTick(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("at", at).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	remaining := s.engine.Decay(ctx, 1, at)
	s.logger.Info().Time("at", at).Int("remaining", remaining).Msg("decay pass applied")
	return nil
}

// CatchUp applies the decay passes that elapsed since the persisted
// lastDecayAt while the process was down. It returns the number of passes.
func (s *Service) CatchUp(ctx context.Context, now time.Time) (int, error) {
	cfg := s.engine.Config()
	if cfg == nil {
		return 0, nil
	}
	interval := cfg.UpdateInterval()
	last := s.engine.LastDecayAt()
	passes := scheduler.Missed(last, now, interval, s.maxCatchUp)
	if passes == 0 {
		return 0, nil
	}

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return 0, err
	}
	if !proceed {
		return 0, nil
	}
	if unlock != nil {
		defer unlock()
	}

	// Keep the partial period so the next scheduled pass lines up; a capped
	// replay restarts the clock at now.
	at := last.Add(time.Duration(passes) * interval)
	if now.Sub(at) >= interval {
		at = now
	}
	s.engine.Decay(ctx, passes, at)
	s.logger.Info().Int("passes", passes).Time("since", last).Msg("replayed missed decay passes")
	return passes, nil
}

// RecordTransaction records through the engine and raises a pressure alert
// when the item's combined multiplier crosses the threshold.
func (s *Service) RecordTransaction(ctx context.Context, itemID string, quantity float64) bool {
	if !s.engine.RecordTransaction(ctx, itemID, quantity) {
		return false
	}
	s.maybeAlert(ctx, itemID)
	return true
}

// Save persists the engine state.
func (s *Service) Save(ctx context.Context) error {
	return s.engine.Save(ctx)
}

func (s *Service) maybeAlert(ctx context.Context, itemID string) {
	if !s.alertsOn || s.notifier == nil || s.threshold.IsZero() {
		return
	}
	b := s.engine.Breakdown(itemID)
	combined := decimal.NewFromFloat(b.Combined)
	if combined.Abs().LessThan(s.threshold) {
		return
	}
	now := s.now().UTC()
	if !s.throttle.Allow(itemID, now) {
		return
	}

	name := itemID
	if s.names != nil {
		name = s.names.Name(itemID)
	}
	note := alerting.Notification{
		At:         now,
		ItemID:     itemID,
		ItemName:   name,
		CategoryID: b.CategoryID,
		Multiplier: combined,
		Threshold:  s.threshold,
		Direction:  classifyPressure(b.Combined),
		Channels:   s.channels,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("item", itemID).Msg("failed to dispatch alert")
	}
}

func classifyPressure(m float64) string {
	switch {
	case m > 0:
		return "up"
	case m < 0:
		return "down"
	default:
		return "flat"
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
