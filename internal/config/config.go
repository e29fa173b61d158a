package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries the engine's runtime settings, read from engine.yaml with
// environment overrides.
type Config struct {
	DatabasePath  string            `mapstructure:"database_path"`
	MinBaseAmount float64           `mapstructure:"min_base_amount"`
	LocalMarket   string            `mapstructure:"local_market"`
	FxRates       map[string]float64 `mapstructure:"fx_rates"`
	Prices        map[string]float64 `mapstructure:"prices"`
	Vendors       []string          `mapstructure:"vendors"`
	OpsAddr       string            `mapstructure:"ops_addr"`

	Session  SessionConfig  `mapstructure:"session"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Broker   BrokerConfig   `mapstructure:"broker"`
}

// SessionConfig is the published trading-session layout.
type SessionConfig struct {
	Open         string `mapstructure:"open"`  // HH:MM
	Close        string `mapstructure:"close"` // HH:MM
	SliceMinutes int    `mapstructure:"slice_minutes"`
}

// DispatchConfig bounds the per-account fan-out.
type DispatchConfig struct {
	Concurrency   int `mapstructure:"concurrency"`
	ExpirySeconds int `mapstructure:"expiry_seconds"`
}

// BrokerConfig paces outbound vendor API calls.
type BrokerConfig struct {
	CallsPerSecond float64 `mapstructure:"calls_per_second"`
	Burst          int     `mapstructure:"burst"`
}

// Load reads configuration from the given directory (engine.yaml) plus
// ENGINE_* environment overrides. A missing file falls back to defaults.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("engine")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	v.SetDefault("database_path", "engine.db")
	v.SetDefault("min_base_amount", 1000.0)
	v.SetDefault("local_market", "LOCAL")
	v.SetDefault("vendors", []string{"SIM"})
	v.SetDefault("ops_addr", ":8090")
	v.SetDefault("session.open", "09:00")
	v.SetDefault("session.close", "15:00")
	v.SetDefault("session.slice_minutes", 30)
	v.SetDefault("dispatch.concurrency", 16)
	v.SetDefault("dispatch.expiry_seconds", 300)
	v.SetDefault("broker.calls_per_second", 20.0)
	v.SetDefault("broker.burst", 5)

	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// ParseClock converts an HH:MM string to an offset from midnight.
func ParseClock(value string) (time.Duration, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", value, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
