package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"dynamic-flea-price/internal/alerting"
	"dynamic-flea-price/internal/catalog"
	"dynamic-flea-price/internal/config"
	"dynamic-flea-price/internal/fetcher"
	"dynamic-flea-price/internal/flea"
	"dynamic-flea-price/internal/pricing"
	"dynamic-flea-price/internal/ragfair"
	"dynamic-flea-price/internal/scheduler"
	"dynamic-flea-price/internal/server"
	"dynamic-flea-price/internal/service"
	"dynamic-flea-price/internal/storage"
	"dynamic-flea-price/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// runtime is the wired core shared by the commands.
type runtime struct {
	flea    *config.FleaConfig
	store   storage.StateStore
	catalog *catalog.Catalog
	engine  *flea.Engine
	closer  func()
}

func (r *runtime) Close() {
	if r.closer != nil {
		r.closer()
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (storage.StateStore, func(), error) {
	store, err := storage.Open(ctx, a.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s state store: %w", a.Config.State.Backend, err)
	}
	closer := func() {}
	if c, ok := store.(storage.Closer); ok {
		closer = c.Close
	}
	return store, closer, nil
}

// loadCatalog reads the host database. With required unset, a source that
// cannot be read degrades to an empty catalog so reporting still works.
func (a *App) loadCatalog(ctx context.Context, required bool) (*catalog.Catalog, error) {
	src := fetcher.New(fetcher.Options{
		Timeout:   a.Config.Catalog.RequestTimeout,
		UserAgent: a.Config.Catalog.UserAgent,
	}, a.Logger)

	cat, err := catalog.Load(ctx, src, catalog.Sources{
		Handbook:  a.Config.Catalog.Handbook,
		Prices:    a.Config.Catalog.Prices,
		Locale:    a.Config.Catalog.Locale,
		Templates: a.Config.Catalog.Templates,
	}, a.Logger)
	if err != nil {
		if required {
			return nil, err
		}
		a.Logger.Warn().Err(err).Msg("host catalog unavailable; ids will not be resolved")
		cat = catalog.New(nil, nil)
	}
	cat.SetRoublesTemplate(a.Config.Pricing.RoublesTemplate)
	return cat, nil
}

func (a *App) bootstrap(ctx context.Context, catalogRequired bool) (*runtime, error) {
	fleaCfg, err := config.LoadFlea(a.Config.Flea.ConfigPath, a.Logger)
	if err != nil {
		return nil, err
	}

	cat, err := a.loadCatalog(ctx, catalogRequired)
	if err != nil {
		return nil, err
	}

	store, closer, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	engine := flea.New(fleaCfg, cat, store, flea.Options{Strict: a.Config.State.Strict}, a.Logger)
	if err := engine.Load(ctx); err != nil {
		closer()
		return nil, err
	}

	return &runtime{flea: fleaCfg, store: store, catalog: cat, engine: engine, closer: closer}, nil
}

func (a *App) newPricer(cat *catalog.Catalog, mult pricing.MultiplierSource) *pricing.Pricer {
	return pricing.New(cat, mult, pricing.Options{
		TraderBuyRatio: a.Config.Pricing.TraderBuyRatio,
		MaxMarkupPct:   a.Config.Pricing.MaxMarkupPct,
	}, a.Logger)
}

// Run executes the long-running hook API and decay loop.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := a.bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	sched, err := scheduler.New(scheduler.Options{
		Interval:     rt.flea.UpdateInterval(),
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	if err != nil {
		return err
	}

	svc := service.New(a.Config, rt.engine, sched, rt.store, a.newNotifier(), rt.catalog, a.Logger)
	book := ragfair.NewMemoryBook()
	hooks := ragfair.NewHooks(rt.flea, svc, book, book, ragfair.Options{MinUserLevel: a.Config.Ragfair.MinUserLevel}, a.Logger)

	api := server.New(server.Deps{
		Engine:  rt.engine,
		Ticker:  svc,
		Hooks:   hooks,
		Book:    book,
		Pricer:  a.newPricer(rt.catalog, rt.engine),
		Version: version.Version,

		StreamInterval: a.Config.Server.StreamInterval,
	}, a.Logger)

	a.Logger.Info().
		Str("backend", a.Config.State.Backend).
		Dur("update_period", rt.flea.UpdateInterval()).
		Msg("starting dynamic flea service")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	g.Go(func() error { return api.ListenAndServe(gctx, a.Config.Server) })

	err = g.Wait()
	if saveErr := rt.engine.Save(context.Background()); saveErr != nil {
		a.Logger.Error().Err(saveErr).Msg("final save failed")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("dynamic flea service stopped")
	return nil
}

// ExportOptions hold parameters for exporting the current multipliers.
type ExportOptions struct {
	PNGPath string
	CSVPath string
	MaxRows int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// TickOptions configure the tick command.
type TickOptions struct {
	CatchUp bool
}

// CheatSheetOptions configure the cheatsheet command.
type CheatSheetOptions struct {
	TextPath string
	XLSXPath string
}

// SimulateOptions describe a synthetic trade.
type SimulateOptions struct {
	ItemID   string
	Quantity float64
	Currency string
	Persist  bool
}
