package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// clearEnv blanks the variables Load reads, empty values are ignored.
func clearEnv(t *testing.T) {
	for _, name := range []string{
		"TLG_STORE_DRIVER", "TLG_STORE_DSN", "TLG_STORE_MAX_ATTEMPTS",
		"TLG_ENGINE_DEFAULT_LIMIT", "TLG_ENGINE_STALE_AFTER",
		"TLG_AGENT_PROVIDER", "TLG_AGENT_MODEL", "TLG_AGENT_API_KEY", "TLG_AGENT_BASE_URL",
		"TLG_AGENT_MAX_ROUNDS", "TLG_AGENT_TURN_TIMEOUT",
		"TLG_LOG_LEVEL", "TLG_LOG_FORMAT",
		"TLG_PRICES_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY", "EODHD_API_KEY",
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	got, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(Default(), got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Files(t *testing.T) {
	first := writeFile(t, "first.toml", `
[store]
driver = "postgres"
dsn = "postgres://localhost/ledger"
acquire_timeout = "2s"

[engine]
default_limit = 25
stale_after = "48h"
ignore_cap_buckets = ["large", "mega"]
`)
	second := writeFile(t, "second.toml", `
[engine]
default_limit = 50

[agent]
provider = "openai"
model = "gpt-4o-mini"
`)

	clearEnv(t)
	got, err := Load(first, second)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Default()
	want.Store.Driver = "postgres"
	want.Store.DSN = "postgres://localhost/ledger"
	want.Store.AcquireTimeout = Duration(2 * time.Second)
	want.Engine.DefaultLimit = 50
	want.Engine.StaleAfter = Duration(48 * time.Hour)
	want.Engine.IgnoreCapBuckets = []string{"large", "mega"}
	want.Agent.Provider = "openai"
	want.Agent.Model = "gpt-4o-mini"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[store\n", "failed to parse config file"},
		{"duration", "[engine]\nstale_after = \"soon\"\n", "failed to parse config file"},
		{"driver", "[store]\ndriver = \"mysql\"\n", "store.driver"},
		{"limit", "[engine]\ndefault_limit = 0\n", "engine.default_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeFile(t, "tlg.toml", tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want it to contain %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load(missing file) succeeded")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"TLG_STORE_DRIVER":       "postgres",
		"TLG_STORE_DSN":          "postgres://db/ledger",
		"TLG_STORE_MAX_ATTEMPTS": "5",
		"TLG_ENGINE_STALE_AFTER": "72h",
		"TLG_AGENT_PROVIDER":     "openai",
		"TLG_AGENT_TURN_TIMEOUT": "10s",
		"TLG_LOG_LEVEL":          "",
		"OPENAI_API_KEY":         "sk-test",
		"GEMINI_API_KEY":         "ignored",
		"EODHD_API_KEY":          "eod-key",
	}
	lookup := func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}

	got := Default()
	if err := applyEnvOverrides(got, lookup); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	want := Default()
	want.Store.Driver = "postgres"
	want.Store.DSN = "postgres://db/ledger"
	want.Store.MaxAttempts = 5
	want.Engine.StaleAfter = Duration(72 * time.Hour)
	want.Agent.Provider = "openai"
	want.Agent.TurnTimeout = Duration(10 * time.Second)
	want.Agent.APIKey = "sk-test"
	want.Prices.APIKey = "eod-key"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("applyEnvOverrides() mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyEnvOverrides_Invalid(t *testing.T) {
	for name, value := range map[string]string{
		"TLG_STORE_MAX_ATTEMPTS": "three",
		"TLG_AGENT_TURN_TIMEOUT": "forever",
	} {
		t.Run(name, func(t *testing.T) {
			lookup := func(n string) (string, bool) {
				if n == name {
					return value, true
				}
				return "", false
			}
			err := applyEnvOverrides(Default(), lookup)
			if err == nil || !strings.Contains(err.Error(), name) {
				t.Errorf("applyEnvOverrides() error = %v, want it to name %s", err, name)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"driver", func(c *Config) { c.Store.Driver = "" }, "store.driver"},
		{"attempts", func(c *Config) { c.Store.MaxAttempts = 0 }, "store.max_attempts"},
		{"threshold", func(c *Config) { c.Engine.ConcentrationThreshold = 1.5 }, "engine.concentration_threshold"},
		{"provider", func(c *Config) { c.Agent.Provider = "claude" }, "agent.provider"},
		{"rounds", func(c *Config) { c.Agent.MaxRounds = 0 }, "agent.max_rounds"},
		{"parallelism", func(c *Config) { c.Agent.ToolParallelism = 0 }, "agent.tool_parallelism"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestEngineConfig_Rules(t *testing.T) {
	e := Default().Engine
	rules, err := e.Rules()
	if err != nil {
		t.Fatalf("Rules() error = %v", err)
	}
	if rules.StaleAfter != 30*24*time.Hour {
		t.Errorf("StaleAfter = %v, want 720h", rules.StaleAfter)
	}
	if rules.ConcentrationThreshold != 0.5 || rules.ChurnPerWeek != 1.5 {
		t.Errorf("Rules() = %+v, want the default thresholds", rules)
	}
	if rules.Classifier == nil {
		t.Fatal("Rules() has no classifier")
	}

	e.ClassificationFile = writeFile(t, "classes.yaml", "tickers:\n  ZZZ: {sector: Energy, cap: small}\n")
	rules, err = e.Rules()
	if err != nil {
		t.Fatalf("Rules() error = %v", err)
	}
	c, ok := rules.Classifier.Classify("zzz")
	if !ok || c.Sector != "Energy" || c.CapBucket != "small" {
		t.Errorf("Classify(zzz) = %+v, %v", c, ok)
	}

	e.ClassificationFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := e.Rules(); err == nil {
		t.Error("Rules() with a missing classification file succeeded")
	}
}

func TestConfig_String(t *testing.T) {
	c := Default()
	c.Agent.APIKey = "sk-secret-value"
	c.Prices.APIKey = "eod-secret-value"
	s := c.String()
	if strings.Contains(s, "sk-secret-value") || strings.Contains(s, "eod-secret-value") {
		t.Errorf("String() leaks the api key:\n%s", s)
	}
	if !strings.Contains(s, "********") {
		t.Errorf("String() = %s, want a redacted api key", s)
	}
	if c.Agent.APIKey != "sk-secret-value" {
		t.Error("String() modified the configuration")
	}
}

func TestLoggingConfig_Logger(t *testing.T) {
	for _, l := range []LoggingConfig{{Format: "json", Level: "warn"}, {Format: "console", Level: "debug"}, {}} {
		logger, err := l.Logger(false)
		if err != nil {
			t.Errorf("Logger(%+v) error = %v", l, err)
			continue
		}
		_ = logger.Sync()
	}
	if _, err := (LoggingConfig{Format: "xml"}).Logger(false); err == nil {
		t.Error("Logger(xml) succeeded")
	}
	if _, err := (LoggingConfig{Level: "loud"}).Logger(false); err == nil {
		t.Error("Logger(loud) succeeded")
	}
	logger, err := LoggingConfig{Level: "error"}.Logger(true)
	if err != nil {
		t.Fatal(err)
	}
	if !logger.Core().Enabled(-1) {
		t.Error("verbose logger does not log at debug")
	}
}
