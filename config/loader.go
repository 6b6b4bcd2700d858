// Package config loads engine configuration from defaults, an optional
// YAML file and environment variable overrides, in that order.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("FLOWGATE").
//	    Load()
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full flowgate configuration.
type Config struct {
	// Engine tunes the workflow dispatcher.
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`

	// LLM selects the chat completion provider.
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Tool tunes the HTTP tool node.
	Tool ToolConfig `yaml:"tool" env:"TOOL"`

	// Database persists chat turns and the usage ledger.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis stores suspended interactive state.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Log configures the zap logger.
	Log LogConfig `yaml:"log" env:"LOG"`
}

// EngineConfig tunes dispatch behavior.
type EngineConfig struct {
	// MaxRunTimes caps node executions per dispatch.
	MaxRunTimes int `yaml:"max_run_times" env:"MAX_RUN_TIMES"`
	// NodeTimeout bounds a single node execution.
	NodeTimeout time.Duration `yaml:"node_timeout" env:"NODE_TIMEOUT"`
	// Timezone renders run timestamps for flows.
	Timezone string `yaml:"timezone" env:"TIMEZONE"`
	// PointsPerKiloTokens prices LLM usage.
	PointsPerKiloTokens float64 `yaml:"points_per_kilo_tokens" env:"POINTS_PER_KILO_TOKENS"`
}

// LLMConfig selects the chat provider.
type LLMConfig struct {
	// BaseURL of an OpenAI-compatible endpoint. Empty selects the offline
	// static client.
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// APIKey for the provider.
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// Model used when a chat node names none.
	Model string `yaml:"model" env:"MODEL"`
	// Timeout per completion request.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ToolConfig tunes the HTTP tool node.
type ToolConfig struct {
	// RequestTimeout bounds one outbound call.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	// RatePerHost limits calls per second per target host. Zero disables.
	RatePerHost float64 `yaml:"rate_per_host" env:"RATE_PER_HOST"`
	// Burst per target host.
	Burst int `yaml:"burst" env:"BURST"`
}

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	// Driver: postgres, mysql or sqlite.
	Driver string `yaml:"driver" env:"DRIVER"`
	Host   string `yaml:"host" env:"HOST"`
	Port   int    `yaml:"port" env:"PORT"`
	User   string `yaml:"user" env:"USER"`
	// Password for the database user.
	Password string `yaml:"password" env:"PASSWORD"`
	// Name is the database name, or the file path for sqlite.
	Name    string `yaml:"name" env:"NAME"`
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
}

// RedisConfig configures the interactive state store.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	// SuspendTTL bounds how long a paused run stays resumable.
	SuspendTTL time.Duration `yaml:"suspend_ttl" env:"SUSPEND_TTL"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
}

// Loader assembles a Config from file and environment.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader returns a loader with the FLOWGATE env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "FLOWGATE"}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load resolves the configuration. Precedence: defaults, then YAML file,
// then environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("load config env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	}
	return nil
}

// MustLoad loads the configuration from path and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	return cfg
}

// Validate reports configuration errors in one pass.
func (c *Config) Validate() error {
	var errs []string
	if c.Engine.MaxRunTimes <= 0 {
		errs = append(errs, "engine.max_run_times must be positive")
	}
	if c.Engine.NodeTimeout <= 0 {
		errs = append(errs, "engine.node_timeout must be positive")
	}
	switch c.Database.Driver {
	case "", "postgres", "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("unknown database driver %q", c.Database.Driver))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN builds the driver connection string.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
