package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Engine.MaxRunTimes)
	assert.Equal(t, 10*time.Minute, cfg.Engine.NodeTimeout)
	assert.Equal(t, float64(1), cfg.Engine.PointsPerKiloTokens)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  max_run_times: 42
  node_timeout: 1m
llm:
  base_url: https://api.example.com/v1
  model: gpt-4o
database:
  driver: postgres
  host: db.internal
  port: 5432
  user: flowgate
  name: flowgate
log:
  level: debug
  format: console
`), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Engine.MaxRunTimes)
	assert.Equal(t, time.Minute, cfg.Engine.NodeTimeout)
	assert.Equal(t, "https://api.example.com/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Tool.RequestTimeout)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/does/not/exist.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Engine.MaxRunTimes)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_run_times: 42\n"), 0o600))

	t.Setenv("FLOWGATE_ENGINE_MAX_RUN_TIMES", "7")
	t.Setenv("FLOWGATE_ENGINE_NODE_TIMEOUT", "90s")
	t.Setenv("FLOWGATE_LLM_API_KEY", "sk-test")
	t.Setenv("FLOWGATE_TOOL_RATE_PER_HOST", "2.5")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Engine.MaxRunTimes)
	assert.Equal(t, 90*time.Second, cfg.Engine.NodeTimeout)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 2.5, cfg.Tool.RatePerHost)
}

func TestCustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_LOG_LEVEL", "warn")
	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.MaxRunTimes = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_run_times")

	cfg = DefaultConfig()
	cfg.Database.Driver = "oracle"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}

func TestDatabaseDSN(t *testing.T) {
	pg := DatabaseConfig{
		Driver: "postgres", Host: "db", Port: 5432,
		User: "u", Password: "p", Name: "flowgate", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=flowgate sslmode=disable", pg.DSN())

	my := DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "flowgate"}
	assert.Equal(t, "u:p@tcp(db:3306)/flowgate?parseTime=true", my.DSN())

	lite := DatabaseConfig{Driver: "sqlite", Name: "flowgate.db"}
	assert.Equal(t, "flowgate.db", lite.DSN())
}
