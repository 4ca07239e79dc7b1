// Package config loads the tlg configuration: defaults, then TOML files, then
// TLG_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/etnz/tradeledger"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Store   StoreConfig   `toml:"store"`
	Engine  EngineConfig  `toml:"engine"`
	Agent   AgentConfig   `toml:"agent"`
	Prices  PricesConfig  `toml:"prices"`
	Logging LoggingConfig `toml:"logging"`
}

// StoreConfig contains the event store gateway settings.
type StoreConfig struct {
	// Driver is postgres or sqlite.
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`

	MaxConns         int32    `toml:"max_conns"`
	MinConns         int32    `toml:"min_conns"`
	AcquireTimeout   Duration `toml:"acquire_timeout"`
	StatementTimeout Duration `toml:"statement_timeout"`

	// MaxAttempts bounds the tries of an operation failing transiently.
	MaxAttempts int      `toml:"max_attempts"`
	BaseDelay   Duration `toml:"base_delay"`
	MaxDelay    Duration `toml:"max_delay"`
}

// EngineConfig contains the query surface and anomaly rule settings.
type EngineConfig struct {
	DefaultLimit           int      `toml:"default_limit"`
	StaleAfter             Duration `toml:"stale_after"`
	ChurnPerWeek           float64  `toml:"churn_per_week"`
	ConcentrationThreshold float64  `toml:"concentration_threshold"`
	IgnoreCapBuckets       []string `toml:"ignore_cap_buckets"`
	// ClassificationFile replaces the embedded ticker classification table.
	ClassificationFile string `toml:"classification_file"`
}

// AgentConfig contains the chat agent settings.
type AgentConfig struct {
	// Provider is gemini or openai.
	Provider        string   `toml:"provider"`
	Model           string   `toml:"model"`
	APIKey          string   `toml:"api_key"`
	BaseURL         string   `toml:"base_url"`
	MaxRounds       int      `toml:"max_rounds"`
	TurnTimeout     Duration `toml:"turn_timeout"`
	ToolParallelism int      `toml:"tool_parallelism"`
}

// PricesConfig contains the EODHD price feed settings.
type PricesConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	// CacheDir keeps the responses of the day, no cache if empty.
	CacheDir string `toml:"cache_dir"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Load loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files, empty paths are skipped.
func Load(paths ...string) (*Config, error) {
	config := Default()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	if err := applyEnvOverrides(config, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides applies TLG_* environment variable overrides to config.
func applyEnvOverrides(config *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		if v, ok := lookup(name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s=%q: %w", name, v, err)
			}
			*dst = n
		}
		return nil
	}
	dur := func(name string, dst *Duration) error {
		if v, ok := lookup(name); ok && v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("invalid %s=%q: %w", name, v, err)
			}
		}
		return nil
	}

	str("TLG_STORE_DRIVER", &config.Store.Driver)
	str("TLG_STORE_DSN", &config.Store.DSN)
	str("TLG_AGENT_PROVIDER", &config.Agent.Provider)
	str("TLG_AGENT_MODEL", &config.Agent.Model)
	str("TLG_AGENT_API_KEY", &config.Agent.APIKey)
	str("TLG_AGENT_BASE_URL", &config.Agent.BaseURL)
	str("TLG_PRICES_API_KEY", &config.Prices.APIKey)
	str("TLG_LOG_LEVEL", &config.Logging.Level)
	str("TLG_LOG_FORMAT", &config.Logging.Format)
	// the provider SDKs own conventional variables.
	if config.Agent.APIKey == "" {
		switch config.Agent.Provider {
		case "gemini":
			str("GEMINI_API_KEY", &config.Agent.APIKey)
		case "openai":
			str("OPENAI_API_KEY", &config.Agent.APIKey)
		}
	}
	if config.Prices.APIKey == "" {
		str("EODHD_API_KEY", &config.Prices.APIKey)
	}
	for _, err := range []error{
		num("TLG_STORE_MAX_ATTEMPTS", &config.Store.MaxAttempts),
		num("TLG_ENGINE_DEFAULT_LIMIT", &config.Engine.DefaultLimit),
		num("TLG_AGENT_MAX_ROUNDS", &config.Agent.MaxRounds),
		dur("TLG_ENGINE_STALE_AFTER", &config.Engine.StaleAfter),
		dur("TLG_AGENT_TURN_TIMEOUT", &config.Agent.TurnTimeout),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("store.driver must be postgres or sqlite, got %q", c.Store.Driver)
	}
	if c.Store.MaxAttempts < 1 {
		return fmt.Errorf("store.max_attempts must be >= 1, got %d", c.Store.MaxAttempts)
	}
	if c.Engine.DefaultLimit < 1 {
		return fmt.Errorf("engine.default_limit must be >= 1, got %d", c.Engine.DefaultLimit)
	}
	if c.Engine.ConcentrationThreshold <= 0 || c.Engine.ConcentrationThreshold > 1 {
		return fmt.Errorf("engine.concentration_threshold must be in ]0, 1], got %v", c.Engine.ConcentrationThreshold)
	}
	switch c.Agent.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("agent.provider must be gemini or openai, got %q", c.Agent.Provider)
	}
	if c.Agent.MaxRounds < 1 {
		return fmt.Errorf("agent.max_rounds must be >= 1, got %d", c.Agent.MaxRounds)
	}
	if c.Agent.ToolParallelism < 1 {
		return fmt.Errorf("agent.tool_parallelism must be >= 1, got %d", c.Agent.ToolParallelism)
	}
	return nil
}

// Rules returns the anomaly rules, loading the classification file if any.
func (e EngineConfig) Rules() (tradeledger.Rules, error) {
	rules := tradeledger.Rules{
		StaleAfter:             e.StaleAfter.Std(),
		ChurnPerWeek:           e.ChurnPerWeek,
		ConcentrationThreshold: e.ConcentrationThreshold,
		IgnoreCapBuckets:       e.IgnoreCapBuckets,
	}
	if e.ClassificationFile == "" {
		rules.Classifier = tradeledger.DefaultClassifier()
		return rules, nil
	}
	c, err := tradeledger.LoadClassifier(e.ClassificationFile)
	if err != nil {
		return rules, fmt.Errorf("load classification file: %w", err)
	}
	rules.Classifier = c
	return rules, nil
}

// String redacts the secrets of the configuration.
func (c Config) String() string {
	if c.Agent.APIKey != "" {
		c.Agent.APIKey = strings.Repeat("*", 8)
	}
	if c.Prices.APIKey != "" {
		c.Prices.APIKey = strings.Repeat("*", 8)
	}
	b, err := toml.Marshal(c)
	if err != nil {
		return err.Error()
	}
	return string(b)
}
