package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"dynamic-flea-price/internal/fetcher"
)

// Well-known template and base class identifiers.
const (
	RoublesTemplate         = "5449016a4bdc2d6f028b456f"
	BaseClassBuiltInInserts = "65649eb40bf0ed77b8044453"
	BaseClassWeapon         = "5422acb9af1c889c16000029"
)

// Sources locates the host database documents. Prices, Locale and
// Templates are optional.
type Sources struct {
	Handbook  string
	Prices    string
	Locale    string
	Templates string
}

// HandbookItem is one priced entry of the host handbook.
type HandbookItem struct {
	ID       string  `json:"Id"`
	ParentID string  `json:"ParentId"`
	Price    float64 `json:"Price"`
}

// HandbookCategory is one node of the handbook category tree.
type HandbookCategory struct {
	ID       string `json:"Id"`
	ParentID string `json:"ParentId"`
}

type handbook struct {
	Categories []HandbookCategory `json:"Categories"`
	Items      []HandbookItem     `json:"Items"`
}

type template struct {
	ID     string `json:"_id"`
	Name   string `json:"_name"`
	Parent string `json:"_parent"`
	Type   string `json:"_type"`
}

// Catalog is a read-only index over the host's handbook, flea prices,
// locale and item templates.
type Catalog struct {
	items      map[string]HandbookItem
	categories map[string]HandbookCategory
	prices     map[string]float64
	locale     map[string]string
	templates  map[string]template
	roubles    string
}

// Load fetches and indexes every configured source.
func Load(ctx context.Context, src fetcher.SourceFetcher, sources Sources, logger zerolog.Logger) (*Catalog, error) {
	log := logger.With().Str("component", "catalog").Logger()

	var hb handbook
	if err := fetchJSON(ctx, src, sources.Handbook, &hb); err != nil {
		return nil, fmt.Errorf("load handbook: %w", err)
	}

	c := New(hb.Categories, hb.Items)

	if sources.Prices != "" {
		if err := fetchJSON(ctx, src, sources.Prices, &c.prices); err != nil {
			return nil, fmt.Errorf("load prices: %w", err)
		}
	}
	if sources.Locale != "" {
		if err := fetchJSON(ctx, src, sources.Locale, &c.locale); err != nil {
			return nil, fmt.Errorf("load locale: %w", err)
		}
	}
	if sources.Templates != "" {
		if err := fetchJSON(ctx, src, sources.Templates, &c.templates); err != nil {
			return nil, fmt.Errorf("load templates: %w", err)
		}
	}

	log.Info().
		Int("items", len(c.items)).
		Int("categories", len(c.categories)).
		Int("prices", len(c.prices)).
		Int("templates", len(c.templates)).
		Msg("catalog loaded")
	return c, nil
}

// New builds a catalog from handbook entries alone.
func New(categories []HandbookCategory, items []HandbookItem) *Catalog {
	c := &Catalog{
		items:      make(map[string]HandbookItem, len(items)),
		categories: make(map[string]HandbookCategory, len(categories)),
		prices:     map[string]float64{},
		locale:     map[string]string{},
		templates:  map[string]template{},
		roubles:    RoublesTemplate,
	}
	for _, it := range items {
		c.items[it.ID] = it
	}
	for _, cat := range categories {
		c.categories[cat.ID] = cat
	}
	return c
}

// WithPrices sets flea base prices. Used by tests and the simulate command.
func (c *Catalog) WithPrices(prices map[string]float64) *Catalog {
	c.prices = prices
	return c
}

// WithNames sets display names keyed like the host locale.
func (c *Catalog) WithNames(locale map[string]string) *Catalog {
	c.locale = locale
	return c
}

// WithTemplate registers a template parent link for base class checks.
func (c *Catalog) WithTemplate(id, parent string) *Catalog {
	c.templates[id] = template{ID: id, Parent: parent}
	return c
}

// SetRoublesTemplate overrides the base currency template.
func (c *Catalog) SetRoublesTemplate(tpl string) {
	if tpl != "" {
		c.roubles = tpl
	}
}

func fetchJSON(ctx context.Context, src fetcher.SourceFetcher, location string, out any) error {
	body, err := src.Fetch(ctx, location)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", location, err)
	}
	return nil
}

// CategoryOf resolves the handbook parent category of an item template.
func (c *Catalog) CategoryOf(tpl string) (string, bool) {
	it, ok := c.items[tpl]
	if !ok || it.ParentID == "" {
		return "", false
	}
	return it.ParentID, true
}

// HandbookPrice is the handbook rouble price of a template.
func (c *Catalog) HandbookPrice(tpl string) (float64, bool) {
	it, ok := c.items[tpl]
	if !ok {
		return 0, false
	}
	return it.Price, true
}

// FleaPrice is the flea base rouble price, falling back to the handbook price.
func (c *Catalog) FleaPrice(tpl string) (float64, bool) {
	if p, ok := c.prices[tpl]; ok {
		return p, true
	}
	return c.HandbookPrice(tpl)
}

// CurrencyRate returns how many roubles one unit of currency is worth.
func (c *Catalog) CurrencyRate(currency string) (float64, bool) {
	if currency == "" || currency == c.roubles {
		return 1, true
	}
	p, ok := c.HandbookPrice(currency)
	if !ok || p <= 0 {
		return 0, false
	}
	return p, true
}

// IsOfBaseClass walks the template parent chain looking for base.
func (c *Catalog) IsOfBaseClass(tpl, base string) bool {
	seen := make(map[string]struct{})
	for id := tpl; id != ""; {
		if id == base {
			return true
		}
		if _, loop := seen[id]; loop {
			return false
		}
		seen[id] = struct{}{}
		t, ok := c.templates[id]
		if !ok {
			return false
		}
		id = t.Parent
	}
	return false
}

// Name returns the English display name of an item or category, or the id
// itself when the locale has no entry.
func (c *Catalog) Name(id string) string {
	if name, ok := c.locale[id+" Name"]; ok && name != "" {
		return name
	}
	if name, ok := c.locale[id]; ok && name != "" {
		return name
	}
	if t, ok := c.templates[id]; ok && t.Name != "" {
		return t.Name
	}
	return id
}

// Group is a handbook category with the priced item templates under it.
type Group struct {
	CategoryID string
	Items      []string
}

// PricedItemsByCategory groups every template present in the flea price
// table by its handbook parent. Templates absent from the handbook are
// skipped. Groups and items are sorted by id for stable output.
func (c *Catalog) PricedItemsByCategory() []Group {
	byCat := make(map[string][]string)
	for tpl := range c.prices {
		cat, ok := c.CategoryOf(tpl)
		if !ok {
			continue
		}
		byCat[cat] = append(byCat[cat], tpl)
	}

	groups := make([]Group, 0, len(byCat))
	for cat, items := range byCat {
		sort.Strings(items)
		groups = append(groups, Group{CategoryID: cat, Items: items})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].CategoryID < groups[j].CategoryID })
	return groups
}
