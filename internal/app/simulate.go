package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"dynamic-flea-price/internal/flea"
	"dynamic-flea-price/internal/ragfair"
	"dynamic-flea-price/internal/service"
	"dynamic-flea-price/internal/storage"
)

// Simulate records a synthetic trade and prints how the item's multiplier
// and listing price move. The persisted state is only touched with Persist.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.ItemID == "" || opts.Quantity == 0 {
		return errors.New("an item and a non-zero quantity are required")
	}

	rt, err := a.bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	engine := rt.engine
	store := rt.store
	if !opts.Persist {
		state, _ := rt.engine.Snapshot()
		store = storage.NewMemoryStoreFrom(state)
		engine = flea.New(rt.flea, rt.catalog, store, flea.Options{}, a.Logger)
		if err := engine.Load(ctx); err != nil {
			return err
		}
	}

	svc := service.New(a.Config, engine, nil, store, a.newNotifier(), rt.catalog, a.Logger)
	pricer := a.newPricer(rt.catalog, engine)
	offer := []ragfair.Item{{ID: "simulated", Tpl: opts.ItemID}}

	currency := opts.Currency
	if currency == "" {
		currency = a.Config.Pricing.RoublesTemplate
	}

	before := engine.Breakdown(opts.ItemID)
	priceBefore, err := pricer.DynamicOfferPrice(offer, currency, false)
	if err != nil {
		return err
	}

	if !svc.RecordTransaction(ctx, opts.ItemID, opts.Quantity) {
		a.Logger.Warn().Str("item", opts.ItemID).Msg("item and category carry no weight; trade has no effect")
	}
	if err := svc.Save(ctx); err != nil {
		return err
	}

	after := engine.Breakdown(opts.ItemID)
	priceAfter, err := pricer.DynamicOfferPrice(offer, currency, false)
	if err != nil {
		return err
	}

	writeSimulation(os.Stdout, rt.catalog.Name(opts.ItemID), opts, before, after, priceBefore, priceAfter)
	return nil
}

func writeSimulation(w io.Writer, name string, opts SimulateOptions, before, after flea.Breakdown, priceBefore, priceAfter float64) {
	fmt.Fprintf(w, "item:       %s (%s)\n", name, opts.ItemID)
	fmt.Fprintf(w, "quantity:   %+g\n", opts.Quantity)
	fmt.Fprintf(w, "multiplier: %.3f -> %.3f (item %.3f, category %.3f)\n", before.Combined, after.Combined, after.ItemPart, after.CategoryPart)
	fmt.Fprintf(w, "effective:  %.3f -> %.3f\n", before.Effective, after.Effective)
	fmt.Fprintf(w, "price:      %.0f -> %.0f\n", priceBefore, priceAfter)
	if !opts.Persist {
		fmt.Fprintln(w, "(dry run; state not saved)")
	}
}
