package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"dynamic-flea-price/internal/service"
)

// Tick runs one decay pass against the persisted state, or with CatchUp
// replays every pass missed since the last one.
func (a *App) Tick(ctx context.Context, opts TickOptions) error {
	rt, err := a.bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	svc := service.New(a.Config, rt.engine, nil, rt.store, nil, rt.catalog, a.Logger)
	now := time.Now().UTC()

	passes := 1
	if opts.CatchUp {
		passes, err = svc.CatchUp(ctx, now)
	} else {
		err = svc.ProcessTick(ctx, now)
	}
	if err != nil {
		return err
	}

	state, _ := rt.engine.Snapshot()
	fmt.Fprintf(os.Stdout, "applied %d decay pass(es); %d item and %d category multipliers remain\n",
		passes, len(state.ItemMultiplier), len(state.CategoryMultiplier))
	return nil
}
