package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/acheong08/sentinel/internal/osv"
	"github.com/acheong08/sentinel/internal/pool"
	"github.com/acheong08/sentinel/internal/registry"
	"github.com/acheong08/sentinel/internal/scan"
)

// EnvPrefix is prepended to every environment variable, e.g. SENTINEL_OSV_URL
const EnvPrefix = "SENTINEL"

// Keys shared by flags, environment variables and .env files
const (
	KeyPort          = "port"
	KeyOSVURL        = "osv-url"
	KeyPyPIURL       = "pypi-url"
	KeyWorkers       = "workers"
	KeyTimeout       = "timeout"
	KeyLogLevel      = "log-level"
	KeyOpenAIKey     = "openai-api-key"
	KeyOpenAIBaseURL = "openai-base-url"
	KeyOpenAIModel   = "openai-model"
)

// Config holds all runtime configuration
type Config struct {
	// Server
	Port string

	// Lookups
	OSVURL  string
	PyPIURL string
	Workers int
	Timeout time.Duration

	LogLevel string

	// OpenAI-compatible endpoint for the optional review; empty key disables it
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
}

// Load reads .env if present, then the environment, then any flags in fs
// that share a key name. Flags win over the environment.
func Load(fs *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault(KeyPort, "8080")
	v.SetDefault(KeyOSVURL, osv.DefaultBaseURL)
	v.SetDefault(KeyPyPIURL, registry.DefaultBaseURL)
	v.SetDefault(KeyWorkers, pool.DefaultWorkers)
	v.SetDefault(KeyTimeout, osv.DefaultTimeout)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyOpenAIBaseURL, "https://api.openai.com/v1")
	v.SetDefault(KeyOpenAIModel, "gpt-5-mini")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// the bare variable is what most tooling already exports
	if err := v.BindEnv(KeyOpenAIKey, EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", KeyOpenAIKey, err)
	}

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	cfg := &Config{
		Port:          v.GetString(KeyPort),
		OSVURL:        v.GetString(KeyOSVURL),
		PyPIURL:       v.GetString(KeyPyPIURL),
		Workers:       v.GetInt(KeyWorkers),
		Timeout:       v.GetDuration(KeyTimeout),
		LogLevel:      v.GetString(KeyLogLevel),
		OpenAIAPIKey:  v.GetString(KeyOpenAIKey),
		OpenAIBaseURL: v.GetString(KeyOpenAIBaseURL),
		OpenAIModel:   v.GetString(KeyOpenAIModel),
	}

	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("%s must be positive, got %d", KeyWorkers, cfg.Workers)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("%s must be positive, got %s", KeyTimeout, cfg.Timeout)
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ScanOptions returns the scanner settings from this config
func (c *Config) ScanOptions() scan.Options {
	return scan.Options{
		OSVURL:  c.OSVURL,
		PyPIURL: c.PyPIURL,
		Workers: c.Workers,
		Timeout: c.Timeout,
	}
}

// ReviewEnabled reports whether an API key is configured
func (c *Config) ReviewEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// ParseLevel maps debug, info, warn and error to slog levels
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}
