package config

import "time"

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxRunTimes:         500,
			NodeTimeout:         10 * time.Minute,
			Timezone:            "UTC",
			PointsPerKiloTokens: 1,
		},
		LLM: LLMConfig{
			Model:   "gpt-4o-mini",
			Timeout: 2 * time.Minute,
		},
		Tool: ToolConfig{
			RequestTimeout: 30 * time.Second,
			RatePerHost:    10,
			Burst:          20,
		},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			Name:    "flowgate.db",
			SSLMode: "disable",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			SuspendTTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
