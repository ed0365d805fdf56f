package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"dynamic-flea-price/internal/logging"
)

// State backends understood by StateConfig.Backend.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config materialises service configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Flea      FleaFileConfig  `mapstructure:"flea"`
	State     StateConfig     `mapstructure:"state"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Ragfair   RagfairConfig   `mapstructure:"ragfair"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// FleaFileConfig locates the operator-authored mod config.
type FleaFileConfig struct {
	ConfigPath string `mapstructure:"config_path"`
}

// StateConfig selects where multipliers are persisted.
type StateConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	// Strict makes a malformed state file fatal instead of resetting it.
	Strict bool `mapstructure:"strict"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the decay cadence around the mod's updatePeriod.
type SchedulerConfig struct {
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	CatchUp         bool          `mapstructure:"catch_up"`
	MaxCatchUp      int           `mapstructure:"max_catch_up"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// ServerConfig configures the hook API.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	StreamInterval  time.Duration `mapstructure:"stream_interval"`
}

// CatalogConfig points at the host database dumps. Each source is a file
// path or an http(s) URL.
type CatalogConfig struct {
	Handbook       string        `mapstructure:"handbook"`
	Prices         string        `mapstructure:"prices"`
	Locale         string        `mapstructure:"locale"`
	Templates      string        `mapstructure:"templates"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// PricingConfig tunes the offer price calculation.
type PricingConfig struct {
	TraderBuyRatio  float64 `mapstructure:"trader_buy_ratio"`
	MaxMarkupPct    float64 `mapstructure:"max_markup_pct"`
	RoublesTemplate string  `mapstructure:"roubles_template"`
}

// RagfairConfig mirrors the host's flea market globals.
type RagfairConfig struct {
	MinUserLevel int `mapstructure:"min_user_level"`
}

// AlertingConfig defines pressure alert thresholds and routing.
type AlertingConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	Threshold float64        `mapstructure:"threshold"`
	Cooldown  time.Duration  `mapstructure:"cooldown"`
	Channels  []string       `mapstructure:"channels"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxRows int `mapstructure:"max_rows"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("DYNFLEA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "dynamicflea")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("flea.config_path", "user/mods/DynamicFleaPrice/Config/DynamicFleaConfig.json")

	v.SetDefault("state.backend", BackendFile)
	v.SetDefault("state.path", "user/mods/DynamicFleaPrice/Data/DynamicFleaData.json")
	v.SetDefault("state.strict", false)

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.catch_up", true)
	v.SetDefault("scheduler.max_catch_up", 10000)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x64666c70))

	v.SetDefault("server.listen", "127.0.0.1:7420")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.stream_interval", "2s")

	v.SetDefault("catalog.handbook", "SPT_Data/Server/database/templates/handbook.json")
	v.SetDefault("catalog.prices", "SPT_Data/Server/database/templates/prices.json")
	v.SetDefault("catalog.locale", "SPT_Data/Server/database/locales/global/en.json")
	v.SetDefault("catalog.templates", "SPT_Data/Server/database/templates/items.json")
	v.SetDefault("catalog.request_timeout", "15s")
	v.SetDefault("catalog.user_agent", "dynamicflea/1.0")

	v.SetDefault("pricing.trader_buy_ratio", 0.6)
	v.SetDefault("pricing.max_markup_pct", 4.0)
	v.SetDefault("pricing.roubles_template", "5449016a4bdc2d6f028b456f")

	v.SetDefault("ragfair.min_user_level", 15)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.threshold", 10.0)
	v.SetDefault("alerting.cooldown", "1h")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_rows", 5000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.State.Backend {
	case BackendFile, BackendSQLite:
		if c.State.Path == "" {
			return fmt.Errorf("state.path is required for the %s backend", c.State.Backend)
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("state.backend %q is not one of file, sqlite, postgres", c.State.Backend)
	}
	if c.Flea.ConfigPath == "" {
		return fmt.Errorf("flea.config_path is required")
	}
	if c.Scheduler.MaxCatchUp < 0 {
		return fmt.Errorf("scheduler.max_catch_up cannot be negative")
	}
	if c.Pricing.TraderBuyRatio < 0 {
		return fmt.Errorf("pricing.trader_buy_ratio cannot be negative")
	}
	if c.Pricing.MaxMarkupPct < 0 {
		return fmt.Errorf("pricing.max_markup_pct cannot be negative")
	}
	if c.Export.MaxRows <= 0 {
		return fmt.Errorf("export.max_rows must be greater than zero")
	}
	if c.Alerting.Threshold < 0 {
		return fmt.Errorf("alerting.threshold cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxRows returns either the CLI override or config default.
func (c *Config) ResolveMaxRows(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxRows
}
