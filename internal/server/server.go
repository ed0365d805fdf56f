package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"dynamic-flea-price/internal/config"
	"dynamic-flea-price/internal/flea"
	"dynamic-flea-price/internal/pricing"
	"dynamic-flea-price/internal/ragfair"
)

// Ticker runs a decay pass on demand.
type Ticker interface {
	ProcessTick(ctx context.Context, at time.Time) error
}

// Deps are the components the hook API serves.
type Deps struct {
	Engine  *flea.Engine
	Ticker  Ticker
	Hooks   *ragfair.Hooks
	Book    *ragfair.MemoryBook
	Pricer  *pricing.Pricer
	Version string

	// StreamInterval is how often /api/stream checks for changes.
	StreamInterval time.Duration
}

// Server is the HTTP hook API the host game server calls.
type Server struct {
	deps     Deps
	router   chi.Router
	upgrader websocket.Upgrader
	started  time.Time
	done     chan struct{}
	logger   zerolog.Logger
}

// New creates a Server and mounts its routes.
func New(deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		deps:    deps,
		started: time.Now(),
		done:    make(chan struct{}),
		logger:  logger.With().Str("component", "server").Logger(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 64 * 1024,
		// The host and its tools talk to the API from localhost.
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", d).
			Msg("request")
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/multipliers", s.handleMultipliers)
		r.Get("/multipliers/{itemID}", s.handleItemMultiplier)

		r.Post("/offers/price", s.handleOfferPrice)
		r.Post("/offers/validate", s.handleValidateOffer)
		r.Post("/offers/complete", s.handleCompleteOffer)
		r.Post("/trades/purchase", s.handlePurchase)
		r.Post("/profiles/process", s.handleProcessProfiles)
		r.Post("/tick", s.handleTick)

		r.Get("/stream", s.handleStream)
	})

	s.router = r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, cfg config.ServerConfig) error {
	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      s,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", cfg.Listen).Msg("hook api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve hook api: %w", err)
	case <-ctx.Done():
	}

	// Hijacked stream connections are not tracked by Shutdown.
	close(s.done)

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown hook api: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
