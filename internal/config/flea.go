package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/tailscale/hujson"
)

// Decay policies selectable through FleaConfig.DecayMode.
const (
	// DecayRelax shrinks every value by a percentage of itself and never snaps to zero.
	DecayRelax = "relax"
	// DecayStepped removes at least one whole unit per pass and clamps at zero.
	DecayStepped = "stepped"
)

// ErrInvalidFleaConfig marks a mod config file that exists but cannot be used.
var ErrInvalidFleaConfig = errors.New("invalid flea config")

// FleaConfig holds the operator-authored tunables of the dynamic flea mod.
// It is read-only once loaded.
type FleaConfig struct {
	OnlyFoundInRaidForFleaOffers      bool               `mapstructure:"onlyfoundinraidforfleaoffers" json:"onlyFoundInRaidForFleaOffers"`
	DecreaseMultiplierPercentage      float64            `mapstructure:"decreasemultiplierpercentage" json:"decreaseMultiplierPercentage"`
	RegenerateMultiplierPercentage    float64            `mapstructure:"regeneratemultiplierpercentage" json:"regenerateMultiplierPercentage"`
	MoreMultiplierPerBuying           float64            `mapstructure:"moremultiplierperbuying" json:"moreMultiplierPerBuying"`
	MoreMultiplierPerSelling          float64            `mapstructure:"moremultiplierperselling" json:"moreMultiplierPerSelling"`
	UpdatePeriod                      int                `mapstructure:"updateperiod" json:"updatePeriod"`
	DecayMode                         string             `mapstructure:"decaymode" json:"decayMode"`
	IncreaseMultiplierPerItem         map[string]float64 `mapstructure:"increasemultiplierperitem" json:"increaseMultiplierPerItem"`
	IncreaseMultiplierPerItemCategory map[string]float64 `mapstructure:"increasemultiplierperitemcategory" json:"increaseMultiplierPerItemCategory"`
}

// DefaultFlea returns the template written on first run.
func DefaultFlea() *FleaConfig {
	return &FleaConfig{
		OnlyFoundInRaidForFleaOffers:      false,
		DecreaseMultiplierPercentage:      1,
		RegenerateMultiplierPercentage:    1,
		MoreMultiplierPerBuying:           1,
		MoreMultiplierPerSelling:          2,
		UpdatePeriod:                      600,
		DecayMode:                         DecayRelax,
		IncreaseMultiplierPerItem:         map[string]float64{},
		IncreaseMultiplierPerItemCategory: map[string]float64{},
	}
}

// LoadFlea reads the mod config at path. A missing file yields the defaults,
// which are also written to path as a template; failing to write the template
// is logged and otherwise ignored. A file that exists but does not parse or
// validate is returned as ErrInvalidFleaConfig.
func LoadFlea(path string, logger zerolog.Logger) (*FleaConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read flea config: %w", err)
		}
		cfg := DefaultFlea()
		logger.Info().Str("path", path).Msg("flea config not found; writing default template")
		if werr := WriteFlea(path, cfg); werr != nil {
			logger.Error().Err(werr).Str("path", path).Msg("failed to write flea config template")
		}
		return cfg, nil
	}

	cfg, err := ParseFlea(raw)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("flea config is malformed")
		return nil, err
	}
	return cfg, nil
}

// ParseFlea decodes a JSON (comments and trailing commas allowed) mod config.
// Keys match case-insensitively; omitted keys take their default values.
func ParseFlea(raw []byte) (*FleaConfig, error) {
	std, err := hujson.Standardize(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFleaConfig, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(std, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFleaConfig, err)
	}
	if err := validateFlea(lowerKeys(doc)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFleaConfig, err)
	}

	v := viper.New()
	v.SetConfigType("json")
	setFleaDefaults(v)
	if err := v.ReadConfig(bytes.NewReader(std)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFleaConfig, err)
	}

	cfg := &FleaConfig{}
	if err := v.Unmarshal(cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFleaConfig, err)
	}
	if cfg.IncreaseMultiplierPerItem == nil {
		cfg.IncreaseMultiplierPerItem = map[string]float64{}
	}
	if cfg.IncreaseMultiplierPerItemCategory == nil {
		cfg.IncreaseMultiplierPerItemCategory = map[string]float64{}
	}
	cfg.DecayMode = strings.ToLower(cfg.DecayMode)
	return cfg, nil
}

// WriteFlea persists cfg as indented JSON, creating the parent directory.
func WriteFlea(path string, cfg *FleaConfig) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create flea config dir: %w", err)
		}
	}
	body, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal flea config: %w", err)
	}
	if err := os.WriteFile(path, append(body, '\n'), 0o644); err != nil {
		return fmt.Errorf("write flea config: %w", err)
	}
	return nil
}

func setFleaDefaults(v *viper.Viper) {
	def := DefaultFlea()
	v.SetDefault("onlyfoundinraidforfleaoffers", def.OnlyFoundInRaidForFleaOffers)
	v.SetDefault("decreasemultiplierpercentage", def.DecreaseMultiplierPercentage)
	v.SetDefault("regeneratemultiplierpercentage", def.RegenerateMultiplierPercentage)
	v.SetDefault("moremultiplierperbuying", def.MoreMultiplierPerBuying)
	v.SetDefault("moremultiplierperselling", def.MoreMultiplierPerSelling)
	v.SetDefault("updateperiod", def.UpdatePeriod)
	v.SetDefault("decaymode", def.DecayMode)
}

func lowerKeys(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, val := range doc {
		out[strings.ToLower(k)] = val
	}
	return out
}

// ItemWeight returns the configured per-item increase, zero when unset.
func (c *FleaConfig) ItemWeight(itemID string) float64 {
	return lookupWeight(c.IncreaseMultiplierPerItem, itemID)
}

// CategoryWeight returns the configured per-category increase, zero when unset.
func (c *FleaConfig) CategoryWeight(categoryID string) float64 {
	return lookupWeight(c.IncreaseMultiplierPerItemCategory, categoryID)
}

// viper lowercases map keys on decode, so fall back to a lowercase lookup.
func lookupWeight(weights map[string]float64, id string) float64 {
	if w, ok := weights[id]; ok {
		return w
	}
	return weights[strings.ToLower(id)]
}

// UpdateInterval is the decay cadence.
func (c *FleaConfig) UpdateInterval() time.Duration {
	return time.Duration(c.UpdatePeriod) * time.Second
}

// BuyScale is the weight applied to units bought.
func (c *FleaConfig) BuyScale() float64 { return c.MoreMultiplierPerBuying }

// SellScale is the weight applied to units sold.
func (c *FleaConfig) SellScale() float64 { return c.MoreMultiplierPerSelling }

// RequireFoundInRaid reports whether non-FIR items are refused on the flea.
func (c *FleaConfig) RequireFoundInRaid() bool { return c.OnlyFoundInRaidForFleaOffers }
