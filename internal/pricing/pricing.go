package pricing

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dynamic-flea-price/internal/catalog"
	"dynamic-flea-price/internal/ragfair"
)

// ErrUnknownCurrency is returned when the offer currency has no rouble rate.
var ErrUnknownCurrency = errors.New("unknown currency")

// Catalog is the read-only price data the pricer needs.
type Catalog interface {
	FleaPrice(tpl string) (float64, bool)
	HandbookPrice(tpl string) (float64, bool)
	CurrencyRate(currency string) (float64, bool)
	IsOfBaseClass(tpl, base string) bool
}

// MultiplierSource scales a base price by the item's flea pressure.
type MultiplierSource interface {
	ApplyToBasePrice(basePrice float64, itemID string) float64
}

// Options tune the trader floor.
type Options struct {
	// TraderBuyRatio is the share of the handbook price traders pay.
	TraderBuyRatio float64
	// MaxMarkupPct bounds the random markup added on top of the floor.
	MaxMarkupPct float64
	// Rand returns a value in [0, 1). Defaults to a time-seeded source.
	Rand func() float64
}

// Line is one item's contribution to an offer price.
type Line struct {
	ItemID       string          `json:"itemId"`
	Tpl          string          `json:"tpl"`
	Base         decimal.Decimal `json:"base"`
	Adjusted     decimal.Decimal `json:"adjusted"`
	TraderFloor  decimal.Decimal `json:"traderFloor"`
	Floored      bool            `json:"floored"`
	Contribution decimal.Decimal `json:"contribution"`
}

// Quote is a priced offer.
type Quote struct {
	Currency string          `json:"currency"`
	Total    decimal.Decimal `json:"total"`
	Lines    []Line          `json:"lines"`
}

// Pricer computes dynamic flea offer prices.
type Pricer struct {
	catalog Catalog
	mult    MultiplierSource
	ratio   decimal.Decimal
	markup  decimal.Decimal
	rand    func() float64
	logger  zerolog.Logger
}

// New constructs a Pricer.
func New(cat Catalog, mult MultiplierSource, opts Options, logger zerolog.Logger) *Pricer {
	rnd := opts.Rand
	if rnd == nil {
		src := rand.New(rand.NewSource(time.Now().UnixNano()))
		var mu sync.Mutex
		rnd = func() float64 {
			mu.Lock()
			defer mu.Unlock()
			return src.Float64()
		}
	}
	return &Pricer{
		catalog: cat,
		mult:    mult,
		ratio:   decimal.NewFromFloat(opts.TraderBuyRatio),
		markup:  decimal.NewFromFloat(opts.MaxMarkupPct).Div(decimal.NewFromInt(100)),
		rand:    rnd,
		logger:  logger.With().Str("component", "pricing").Logger(),
	}
}

// DynamicOfferPrice returns the rounded listing price of an offer in the
// desired currency.
func (p *Pricer) DynamicOfferPrice(items []ragfair.Item, currency string, isPackOffer bool) (float64, error) {
	q, err := p.Quote(items, currency, isPackOffer)
	if err != nil {
		return 0, err
	}
	return q.Total.InexactFloat64(), nil
}

// Quote prices every item of an offer. Built-in armor inserts are skipped
// and nothing after a weapon preset root is counted, since the preset price
// already covers its parts. The total is rounded to a whole currency unit.
func (p *Pricer) Quote(items []ragfair.Item, currency string, isPackOffer bool) (Quote, error) {
	rate, ok := p.catalog.CurrencyRate(currency)
	if !ok || rate <= 0 {
		return Quote{}, fmt.Errorf("price offer in %q: %w", currency, ErrUnknownCurrency)
	}
	roublesPerUnit := decimal.NewFromFloat(rate)

	q := Quote{Currency: currency, Total: decimal.Zero}
	for _, it := range items {
		if p.catalog.IsOfBaseClass(it.Tpl, catalog.BaseClassBuiltInInserts) {
			continue
		}

		line := p.priceItem(it, roublesPerUnit)
		if isPackOffer {
			line.Contribution = line.Contribution.Mul(decimal.NewFromFloat(it.StackCount()))
		}
		q.Total = q.Total.Add(line.Contribution)
		q.Lines = append(q.Lines, line)

		if _, preset := it.PresetID(); preset && p.catalog.IsOfBaseClass(it.Tpl, catalog.BaseClassWeapon) {
			break
		}
	}
	q.Total = q.Total.Round(0)

	p.logger.Debug().
		Str("currency", currency).
		Int("items", len(q.Lines)).
		Str("total", q.Total.String()).
		Msg("offer priced")
	return q, nil
}

func (p *Pricer) priceItem(it ragfair.Item, roublesPerUnit decimal.Decimal) Line {
	line := Line{ItemID: it.ID, Tpl: it.Tpl}

	fleaRoubles, ok := p.catalog.FleaPrice(it.Tpl)
	if !ok {
		return line
	}
	line.Base = decimal.NewFromFloat(fleaRoubles).Div(roublesPerUnit)

	base, _ := line.Base.Float64()
	line.Adjusted = decimal.NewFromFloat(p.mult.ApplyToBasePrice(base, it.Tpl))
	line.Contribution = line.Adjusted

	if handbook, ok := p.catalog.HandbookPrice(it.Tpl); ok && p.ratio.IsPositive() {
		line.TraderFloor = decimal.NewFromFloat(handbook).Mul(p.ratio).Div(roublesPerUnit)
		if line.Adjusted.LessThan(line.TraderFloor) {
			markup := p.markup.Mul(decimal.NewFromFloat(p.rand()))
			line.Contribution = line.TraderFloor.Mul(decimal.NewFromInt(1).Add(markup))
			line.Floored = true
		}
	}
	return line
}
