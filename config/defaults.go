package config

import "time"

// Default creates a configuration with default values.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:           "sqlite",
			DSN:              "tradeledger.db",
			MaxConns:         10,
			MinConns:         1,
			AcquireTimeout:   Duration(5 * time.Second),
			StatementTimeout: Duration(30 * time.Second),
			MaxAttempts:      3,
			BaseDelay:        Duration(500 * time.Millisecond),
			MaxDelay:         Duration(5 * time.Second),
		},
		Engine: EngineConfig{
			DefaultLimit:           100,
			StaleAfter:             Duration(30 * 24 * time.Hour),
			ChurnPerWeek:           1.5,
			ConcentrationThreshold: 0.5,
			IgnoreCapBuckets:       []string{"large"},
		},
		Agent: AgentConfig{
			Provider:        "gemini",
			Model:           "gemini-2.5-flash",
			MaxRounds:       8,
			TurnTimeout:     Duration(2 * time.Minute),
			ToolParallelism: 4,
		},
		Prices: PricesConfig{
			BaseURL: "https://eodhd.com/api",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
