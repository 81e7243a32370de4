package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"pairs_go/internal/domain"
	"pairs_go/internal/strategy"
)

// EnvPrefix namespaces every environment override (PAIRS_LOG_LEVEL, ...).
const EnvPrefix = "PAIRS"

// Feed modes.
const (
	FeedCSV = "csv"
	FeedWS  = "ws"
)

// Config holds every application setting.
// After LoadConfig reads the file, environment variables override deployment values.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	// Strategy is the default tuning every pair starts from
	Strategy StrategyConfig `yaml:"strategy"`
	Pairs    []PairConfig   `yaml:"pairs"`

	Feed struct {
		Mode            string `yaml:"mode"`    // csv | ws
		CSVDir          string `yaml:"csv_dir"` // Base directory for relative pair files
		ReplayDelayMS   int    `yaml:"replay_delay_ms"`
		WSURL           string `yaml:"ws_url"`
		ReconnectMaxSec int    `yaml:"reconnect_max_sec"`
	} `yaml:"feed"`

	Engine struct {
		InboxSize int    `yaml:"inbox_size"`
		DumpDir   string `yaml:"dump_dir"`
	} `yaml:"engine"`

	Storage struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"storage"`

	NATS struct {
		Enabled       bool   `yaml:"enabled"`
		URL           string `yaml:"url"`
		Token         string `yaml:"token"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	HTTP struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"http"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// PairConfig describes one traded pair. Its strategy block overrides the
// top-level defaults field by field.
type PairConfig struct {
	ID        string    `yaml:"id"`
	SymbolX   string    `yaml:"symbol_x"`
	SymbolY   string    `yaml:"symbol_y"`
	File      string    `yaml:"file"`   // CSV replay file (timestamp,price_x,price_y)
	FileX     string    `yaml:"file_x"` // Per-leg files (timestamp,price), used when file is empty
	FileY     string    `yaml:"file_y"`
	Overrides yaml.Node `yaml:"strategy"`

	// Strategy is the effective tuning after merging defaults and overrides
	Strategy StrategyConfig `yaml:"-"`
}

// StrategyConfig is the YAML shape of strategy.Config.
type StrategyConfig struct {
	LookbackWindow       int             `yaml:"lookback_window"`
	SecondaryWindow      int             `yaml:"secondary_window"`
	MinSpreadPoints      int             `yaml:"min_spread_points"`
	EntryThreshold       float64         `yaml:"entry_threshold"`
	ExitThreshold        float64         `yaml:"exit_threshold"`
	ConfidenceLevel      string          `yaml:"cointegration_confidence_level"`
	MaxHoldDuration      time.Duration   `yaml:"max_hold_duration"`
	StopLossZScore       float64         `yaml:"stop_loss_zscore"`
	InterceptMode        string          `yaml:"intercept_mode"`
	HedgeEstimator       string          `yaml:"hedge_estimator"`
	MinSamples           int             `yaml:"min_samples"`
	ADFMaxLag            int             `yaml:"adf_max_lag"`
	ADFAutoLag           bool            `yaml:"adf_autolag"`
	RecomputeHistory     bool            `yaml:"recompute_history"`
	LegNotional          decimal.Decimal `yaml:"leg_notional"`
	RequireCointegration bool            `yaml:"require_cointegration"`
}

// envOverrides lists the settings a deployment may replace without editing the file.
type envOverrides struct {
	LogLevel    string `envconfig:"LOG_LEVEL"`
	FeedMode    string `envconfig:"FEED_MODE"`
	FeedWSURL   string `envconfig:"FEED_WS_URL"`
	StoragePath string `envconfig:"STORAGE_PATH"`
	NATSURL     string `envconfig:"NATS_URL"`
	NATSToken   string `envconfig:"NATS_TOKEN"`
	HTTPAddr    string `envconfig:"HTTP_ADDR"`
}

// DefaultStrategyConfig mirrors strategy.DefaultConfig in YAML form.
func DefaultStrategyConfig() StrategyConfig {
	d := strategy.DefaultConfig("")
	return StrategyConfig{
		LookbackWindow:       d.LookbackWindow,
		EntryThreshold:       d.EntryThreshold,
		ExitThreshold:        d.ExitThreshold,
		ConfidenceLevel:      string(d.ConfidenceLevel),
		InterceptMode:        string(d.InterceptMode),
		HedgeEstimator:       d.HedgeEstimator,
		MinSamples:           d.MinSamples,
		ADFMaxLag:            d.ADFMaxLag,
		ADFAutoLag:           d.ADFAutoLag,
		LegNotional:          d.LegNotional,
		RequireCointegration: d.RequireCointegration,
	}
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML, applies defaults and environment overrides and validates.
func ParseConfig(data []byte) (*Config, error) {
	cfg := Config{Strategy: DefaultStrategyConfig()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	for i := range cfg.Pairs {
		p := &cfg.Pairs[i]
		p.Strategy = cfg.Strategy
		if !p.Overrides.IsZero() {
			if err := p.Overrides.Decode(&p.Strategy); err != nil {
				return nil, &domain.ConfigError{Field: "pairs[" + p.ID + "].strategy", Err: err}
			}
		}
	}

	// Secrets and deployment endpoints come from the environment
	if err := overrideWithEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "pairs_go"
	}
	if c.Feed.Mode == "" {
		c.Feed.Mode = FeedCSV
	}
	if c.Feed.ReconnectMaxSec <= 0 {
		c.Feed.ReconnectMaxSec = 60
	}
	if c.Engine.InboxSize <= 0 {
		c.Engine.InboxSize = 1024
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/pairs.db"
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "pairs.intents"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":9090"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if len(c.Pairs) == 0 {
		return &domain.ConfigError{Field: "pairs", Err: fmt.Errorf("at least one pair is required")}
	}

	seen := make(map[string]bool, len(c.Pairs))
	for _, p := range c.Pairs {
		if p.ID == "" {
			return &domain.ConfigError{Field: "pairs.id", Err: fmt.Errorf("must not be empty")}
		}
		if seen[p.ID] {
			return &domain.ConfigError{Field: "pairs.id", Err: fmt.Errorf("duplicate pair %q", p.ID)}
		}
		seen[p.ID] = true

		if c.Feed.Mode == FeedCSV && p.File == "" && (p.FileX == "" || p.FileY == "") {
			return &domain.ConfigError{Field: "pairs[" + p.ID + "].file", Err: fmt.Errorf("file or file_x and file_y required for the csv feed")}
		}
		if _, err := p.StrategyConfig(); err != nil {
			return err
		}
	}

	switch c.Feed.Mode {
	case FeedCSV:
	case FeedWS:
		if !strings.HasPrefix(c.Feed.WSURL, "ws://") && !strings.HasPrefix(c.Feed.WSURL, "wss://") {
			return &domain.ConfigError{Field: "feed.ws_url", Err: fmt.Errorf("invalid websocket URL %q", c.Feed.WSURL)}
		}
	default:
		return &domain.ConfigError{Field: "feed.mode", Err: fmt.Errorf("unknown mode %q", c.Feed.Mode)}
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return &domain.ConfigError{Field: "nats.url", Err: fmt.Errorf("required when nats is enabled")}
	}

	return nil
}

// StrategyConfig converts the pair's effective YAML tuning into a validated strategy.Config.
func (p PairConfig) StrategyConfig() (strategy.Config, error) {
	s := p.Strategy
	level, err := domain.ParseConfidenceLevel(s.ConfidenceLevel)
	if err != nil {
		return strategy.Config{}, &domain.ConfigError{Field: "cointegration_confidence_level", Err: err}
	}

	cfg := strategy.Config{
		PairID:               p.ID,
		LookbackWindow:       s.LookbackWindow,
		SecondaryWindow:      s.SecondaryWindow,
		MinSpreadPoints:      s.MinSpreadPoints,
		EntryThreshold:       s.EntryThreshold,
		ExitThreshold:        s.ExitThreshold,
		ConfidenceLevel:      level,
		MaxHold:              s.MaxHoldDuration,
		StopLossZ:            s.StopLossZScore,
		InterceptMode:        domain.InterceptMode(s.InterceptMode),
		HedgeEstimator:       s.HedgeEstimator,
		MinSamples:           s.MinSamples,
		ADFMaxLag:            s.ADFMaxLag,
		ADFAutoLag:           s.ADFAutoLag,
		RecomputeHistory:     s.RecomputeHistory,
		LegNotional:          s.LegNotional,
		RequireCointegration: s.RequireCointegration,
	}
	if err := cfg.Validate(); err != nil {
		return strategy.Config{}, err
	}
	return cfg, nil
}

// overrideWithEnv replaces settings with environment variables when present.
// A .env file in the working directory is loaded first if it exists.
func overrideWithEnv(cfg *Config) error {
	_ = godotenv.Load()

	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return &domain.ConfigError{Field: "env", Err: err}
	}

	if env.LogLevel != "" {
		cfg.Logging.Level = env.LogLevel
	}
	if env.FeedMode != "" {
		cfg.Feed.Mode = env.FeedMode
	}
	if env.FeedWSURL != "" {
		cfg.Feed.WSURL = env.FeedWSURL
	}
	if env.StoragePath != "" {
		cfg.Storage.Path = env.StoragePath
	}
	if env.NATSURL != "" {
		cfg.NATS.URL = env.NATSURL
	}
	if env.NATSToken != "" {
		cfg.NATS.Token = env.NATSToken
	}
	if env.HTTPAddr != "" {
		cfg.HTTP.Addr = env.HTTPAddr
	}
	return nil
}
