package config

import (
	"fmt"
	"os"
	"time"

	"github.com/liamcoop/ruledefs/rules"
	"github.com/spf13/viper"
)

// ConfigFileEnv names the environment variable pointing at an optional config file
const ConfigFileEnv = "RULEDEFS_CONFIG"

// Key is one allowed configuration key with its default
type Key struct {
	Name         string
	DefaultValue any
	Description  string
}

// AllowedKeys lists every configuration key read by Load
var AllowedKeys = []Key{
	{Name: "DATABASE_URL", DefaultValue: "", Description: "PostgreSQL connection string; empty keeps rule sets in memory"},
	{Name: "PORT", DefaultValue: "8080", Description: "HTTP listen port"},
	{Name: "LOG_LEVEL", DefaultValue: "INFO", Description: "TRACE, DEBUG, INFO, WARN, ERROR or FATAL"},
	{Name: "RULES_FORMAT", DefaultValue: "yaml", Description: "Default format of imported documents (yaml or json)"},
	{Name: "RULES_STRICT_FIELDS", DefaultValue: false, Description: "Reject documents carrying unknown keys"},
	{Name: "RULES_CHECK_CONDITIONS", DefaultValue: false, Description: "Reject imports whose conditions are not valid CEL syntax"},
	{Name: "CACHE_TTL", DefaultValue: "0s", Description: "Lifetime of cached rule lists; 0 only expires on change"},
	{Name: "SHUTDOWN_TIMEOUT", DefaultValue: "30s", Description: "Grace period for in-flight requests on shutdown"},
}

// Config is the resolved service configuration
type Config struct {
	DatabaseURL     string
	Port            string
	LogLevel        string
	Format          rules.Format
	StrictFields    bool
	CheckConditions bool
	CacheTTL        time.Duration
	ShutdownTimeout time.Duration
}

// ReaderOptions turns the reader settings into rules.ReaderOption values
func (c *Config) ReaderOptions() []rules.ReaderOption {
	opts := []rules.ReaderOption{rules.WithFormat(c.Format)}
	if c.StrictFields {
		opts = append(opts, rules.WithStrictFields())
	}
	return opts
}

// Load reads the environment, and the file named by RULEDEFS_CONFIG if set.
// Environment variables win over file values.
func Load() (*Config, error) {
	return load(viper.New(), os.Getenv(ConfigFileEnv))
}

func load(v *viper.Viper, configFile string) (*Config, error) {
	for _, key := range AllowedKeys {
		v.SetDefault(key.Name, key.DefaultValue)
		if err := v.BindEnv(key.Name); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key.Name, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	format, err := rules.ParseFormat(v.GetString("RULES_FORMAT"))
	if err != nil {
		return nil, fmt.Errorf("invalid RULES_FORMAT: %w", err)
	}

	cacheTTL, err := parseDuration(v, "CACHE_TTL")
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDuration(v, "SHUTDOWN_TIMEOUT")
	if err != nil {
		return nil, err
	}

	return &Config{
		DatabaseURL:     v.GetString("DATABASE_URL"),
		Port:            v.GetString("PORT"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		Format:          format,
		StrictFields:    v.GetBool("RULES_STRICT_FIELDS"),
		CheckConditions: v.GetBool("RULES_CHECK_CONDITIONS"),
		CacheTTL:        cacheTTL,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}
