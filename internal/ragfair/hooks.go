package ragfair

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"dynamic-flea-price/internal/config"
)

// Recorder folds signed transactions into flea pressure.
type Recorder interface {
	RecordTransaction(ctx context.Context, itemID string, quantity float64) bool
	Save(ctx context.Context) error
}

// Options tune the hooks.
type Options struct {
	MinUserLevel int
	Now          func() time.Time
}

// Hooks are the flea market overrides the host calls into: the FIR listing
// gate, sale completion, purchases and the periodic profile sweep.
type Hooks struct {
	cfg      *config.FleaConfig
	recorder Recorder
	book     OfferBook
	profiles ProfileSource
	minLevel int
	now      func() time.Time
	logger   zerolog.Logger
}

// NewHooks wires the overrides.
func NewHooks(cfg *config.FleaConfig, recorder Recorder, book OfferBook, profiles ProfileSource, opts Options, logger zerolog.Logger) *Hooks {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Hooks{
		cfg:      cfg,
		recorder: recorder,
		book:     book,
		profiles: profiles,
		minLevel: opts.MinUserLevel,
		now:      now,
		logger:   logger.With().Str("component", "ragfair").Logger(),
	}
}

// ValidatePlayerOffer returns a warning when the FIR gate is on and any of
// the items is not found in raid. A nil result means the listing may go
// through the host's normal offer creation.
func (h *Hooks) ValidatePlayerOffer(items []Item) *Warning {
	if h.cfg == nil || !h.cfg.RequireFoundInRaid() {
		return nil
	}
	for _, it := range items {
		if !it.FoundInRaid() {
			h.logger.Info().Str("item", it.Tpl).Msg("rejected non-FIR flea listing")
			return &Warning{Index: 0, ErrorMessage: MessageOnlyFIR, Code: CodeRagfairUnavailable}
		}
	}
	return nil
}

// CompleteOffer settles a sale and records supply pressure for every item
// the offer held, then persists.
func (h *Hooks) CompleteOffer(ctx context.Context, sessionID, offerID string, boughtAmount int) error {
	offer, err := h.book.CompleteOffer(ctx, sessionID, offerID, boughtAmount)
	if err != nil {
		return err
	}
	if h.cfg == nil || h.recorder == nil {
		h.logger.Error().Str("offer", offerID).Msg("flea engine not initialised; sale not recorded")
		return nil
	}

	scale := h.cfg.SellScale()
	for i, it := range offer.Items {
		qty := math.Trunc(soldUnits(offer, i, boughtAmount) * scale)
		h.recorder.RecordTransaction(ctx, it.Tpl, -qty)
	}
	_ = h.recorder.Save(ctx)

	h.logger.Debug().
		Str("session", sessionID).
		Str("offer", offerID).
		Int("bought", boughtAmount).
		Msg("offer completed")
	return nil
}

// soldUnits is how many units of the i-th item changed hands. A root item
// sold piecewise only moves the bought amount; bundles and attached children
// move whole.
func soldUnits(offer Offer, i, boughtAmount int) float64 {
	stack := offer.Items[i].StackCount()
	if i != 0 || offer.SellInOnePiece {
		return stack
	}
	return math.Max(0, math.Min(float64(boughtAmount), stack))
}

// RecordPurchase records demand pressure for count units of tpl bought from
// the flea market, then persists.
func (h *Hooks) RecordPurchase(ctx context.Context, tpl string, count float64) (bool, error) {
	if tpl == "" || count <= 0 {
		return false, fmt.Errorf("record purchase: invalid item %q x %v", tpl, count)
	}
	if h.cfg == nil || h.recorder == nil {
		h.logger.Error().Str("item", tpl).Msg("flea engine not initialised; purchase not recorded")
		return false, nil
	}
	qty := math.Trunc(count * h.cfg.BuyScale())
	changed := h.recorder.RecordTransaction(ctx, tpl, qty)
	if changed {
		_ = h.recorder.Save(ctx)
	}
	return changed, nil
}

// Update sweeps every profile allowed to trade on the flea market and
// settles their pending sales. It returns how many profiles were processed.
func (h *Hooks) Update(ctx context.Context) int {
	processed := 0
	for _, p := range h.profiles.Profiles(ctx) {
		if !p.HasRagfairInfo || p.Level < h.minLevel {
			continue
		}
		h.ProcessOffersOnProfile(ctx, p.SessionID)
		processed++
	}
	return processed
}

// ProcessOffersOnProfile settles the first due sell result of each live
// offer owned by sessionID. Expired offers and offers with nothing due yet
// are left alone.
func (h *Hooks) ProcessOffersOnProfile(ctx context.Context, sessionID string) bool {
	now := h.now().Unix()
	offers := h.book.ProfileOffers(ctx, sessionID)

	for i := len(offers) - 1; i >= 0; i-- {
		offer := offers[i]
		if now > offer.EndTime {
			continue
		}
		if len(offer.SellResults) == 0 || now < offer.SellResults[0].SellTime {
			continue
		}

		first := offer.SellResults[0]
		total := 1.0
		bought := 1
		if !offer.SellInOnePiece {
			total = offer.TotalStack()
			if first.Amount != nil {
				bought = *first.Amount
			}
		}
		if total > 0 {
			h.profiles.AddRating(ctx, sessionID, offer.SummaryCost/total*float64(bought))
		}

		h.book.PopSellResult(ctx, sessionID, offer.ID)
		if err := h.CompleteOffer(ctx, sessionID, offer.ID, bought); err != nil {
			h.logger.Error().Err(err).Str("session", sessionID).Str("offer", offer.ID).Msg("failed to complete offer")
		}
	}
	return true
}
