package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"dynamic-flea-price/internal/storage"
)

// BackupOptions configure the backup command.
type BackupOptions struct {
	Path string
}

// RestoreOptions configure the restore command.
type RestoreOptions struct {
	Path string
}

// Backup archives the persisted state into a compressed snapshot.
func (a *App) Backup(ctx context.Context, opts BackupOptions) error {
	if opts.Path == "" {
		return errors.New("a snapshot path is required")
	}

	rt, err := a.bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	state, ok := rt.engine.Snapshot()
	if !ok {
		return errors.New("flea state not initialised")
	}
	if err := storage.WriteSnapshot(opts.Path, state, time.Now()); err != nil {
		return err
	}

	a.Logger.Info().
		Str("path", opts.Path).
		Int("items", len(state.ItemMultiplier)).
		Int("categories", len(state.CategoryMultiplier)).
		Msg("snapshot written")
	return nil
}

// Restore replaces the persisted state with a snapshot.
func (a *App) Restore(ctx context.Context, opts RestoreOptions) error {
	if opts.Path == "" {
		return errors.New("a snapshot path is required")
	}

	header, state, err := storage.ReadSnapshot(opts.Path)
	if err != nil {
		return err
	}

	rt, err := a.bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.engine.Restore(ctx, state); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}

	fmt.Fprintf(os.Stdout, "restored snapshot from %s (%d items, %d categories)\n",
		header.CreatedAt.Format(time.RFC3339), header.Items, header.Categories)
	return nil
}

// Reset discards all recorded pressure and persists the empty state.
func (a *App) Reset(ctx context.Context) error {
	rt, err := a.bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	return rt.engine.Reset(ctx)
}
