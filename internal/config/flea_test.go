package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoadFleaMissingWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Config", "DynamicFleaConfig.json")

	cfg, err := LoadFlea(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadFlea: %v", err)
	}

	def := DefaultFlea()
	if cfg.OnlyFoundInRaidForFleaOffers != def.OnlyFoundInRaidForFleaOffers ||
		cfg.DecreaseMultiplierPercentage != 1 ||
		cfg.RegenerateMultiplierPercentage != 1 ||
		cfg.UpdatePeriod != 600 ||
		cfg.MoreMultiplierPerBuying != 1 ||
		cfg.MoreMultiplierPerSelling != 2 ||
		len(cfg.IncreaseMultiplierPerItem) != 0 ||
		len(cfg.IncreaseMultiplierPerItemCategory) != 0 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("template not written: %v", err)
	}

	reloaded, err := LoadFlea(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reload template: %v", err)
	}
	if reloaded.UpdatePeriod != 600 || reloaded.MoreMultiplierPerSelling != 2 || reloaded.DecayMode != DecayRelax {
		t.Fatalf("template did not round trip: %+v", reloaded)
	}
}

func TestParseFleaTolerantAndCaseInsensitive(t *testing.T) {
	raw := []byte(`{
		// operator notes
		"OnlyFoundInRaidForFleaOffers": true,
		"DECREASEMULTIPLIERPERCENTAGE": 5,
		"updatePeriod": 60,
		"increaseMultiplierPerItem": {
			"5449016a4bdc2d6f028b456f": 2.0,
		},
		"increaseMultiplierPerItemCategory": {"5b47574386f77428ca22b33e": 0.5},
	}`)

	cfg, err := ParseFlea(raw)
	if err != nil {
		t.Fatalf("ParseFlea: %v", err)
	}
	if !cfg.RequireFoundInRaid() {
		t.Fatal("FIR flag should be set")
	}
	if cfg.DecreaseMultiplierPercentage != 5 {
		t.Fatalf("decrease = %v, want 5", cfg.DecreaseMultiplierPercentage)
	}
	if cfg.RegenerateMultiplierPercentage != 1 {
		t.Fatalf("omitted regenerate should default to 1, got %v", cfg.RegenerateMultiplierPercentage)
	}
	if cfg.UpdateInterval() != time.Minute {
		t.Fatalf("interval = %s", cfg.UpdateInterval())
	}
	if w := cfg.ItemWeight("5449016a4bdc2d6f028b456f"); w != 2 {
		t.Fatalf("item weight = %v, want 2", w)
	}
	if w := cfg.CategoryWeight("5b47574386f77428ca22b33e"); w != 0.5 {
		t.Fatalf("category weight = %v, want 0.5", w)
	}
	if w := cfg.ItemWeight("unknown"); w != 0 {
		t.Fatalf("unknown item weight = %v, want 0", w)
	}
}

func TestParseFleaRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"syntax":     `{"updatePeriod": }`,
		"range":      `{"decreaseMultiplierPercentage": 150}`,
		"type":       `{"increaseMultiplierPerItem": {"a": "lots"}}`,
		"bad period": `{"updatePeriod": 0}`,
		"decay mode": `{"decayMode": "sideways"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseFlea([]byte(raw)); !errors.Is(err, ErrInvalidFleaConfig) {
				t.Fatalf("want ErrInvalidFleaConfig, got %v", err)
			}
		})
	}
}

func TestLoadFleaMalformedIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFlea(path, zerolog.Nop()); err == nil {
		t.Fatal("malformed config should fail")
	}
}
