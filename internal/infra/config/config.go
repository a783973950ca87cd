// Package config loads runtime settings from an optional YAML file plus
// MCPREG_-prefixed environment variables, with defaults suitable for local
// use.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"mcpreg/internal/domain"
	"mcpreg/internal/infra/store"
)

const (
	DefaultSettleDelayMs = 500
	DefaultMetricsAddr   = "127.0.0.1:9465"
)

type Settings struct {
	DatabasePath   string `mapstructure:"databasePath"`
	HostConfigPath string `mapstructure:"hostConfigPath"`
	MetricsAddress string `mapstructure:"metricsAddress"`
	LogLevel       string `mapstructure:"logLevel"`
	SettleDelayMs  int    `mapstructure:"settleDelayMs"`

	Store StoreSettings `mapstructure:"store"`
}

type StoreSettings struct {
	CacheSize           int    `mapstructure:"cacheSize"`
	CacheTTLMs          int    `mapstructure:"cacheTtlMs"`
	EnableWatchers      bool   `mapstructure:"enableWatchers"`
	EnableEvents        bool   `mapstructure:"enableEvents"`
	EnableTransactions  bool   `mapstructure:"enableTransactions"`
	ConnectionTimeoutMs int    `mapstructure:"connectionTimeoutMs"`
	QueryTimeoutMs      int    `mapstructure:"queryTimeoutMs"`
	RetryCount          int    `mapstructure:"retryCount"`
	EncryptionKey       string `mapstructure:"encryptionKey"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MCPREG")
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("databasePath", defaultDatabasePath())
	v.SetDefault("metricsAddress", DefaultMetricsAddr)
	v.SetDefault("logLevel", "info")
	v.SetDefault("settleDelayMs", DefaultSettleDelayMs)

	defaults := store.DefaultOptions("")
	v.SetDefault("store.cacheSize", defaults.CacheSize)
	v.SetDefault("store.cacheTtlMs", int(defaults.CacheTTL/time.Millisecond))
	v.SetDefault("store.enableWatchers", defaults.EnableWatchers)
	v.SetDefault("store.enableEvents", defaults.EnableEvents)
	v.SetDefault("store.enableTransactions", defaults.EnableTransactions)
	v.SetDefault("store.connectionTimeoutMs", int(defaults.ConnectionTimeout/time.Millisecond))
	v.SetDefault("store.queryTimeoutMs", int(defaults.QueryTimeout/time.Millisecond))
	v.SetDefault("store.retryCount", defaults.RetryCount)
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mcpreg.db"
	}
	return filepath.Join(home, ".mcpreg", "mcpreg.db")
}

// Load reads settings from path when it exists; an empty path or a missing
// file falls back to defaults and environment variables.
func Load(path string) (Settings, error) {
	const op = "config.load"
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return Settings{}, domain.E(domain.CodeConfigIO, op, path, err)
			}
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return Settings{}, domain.E(domain.CodeConfigIO, op, "decode settings", err)
	}
	return settings, nil
}

// StoreOptions maps the settings onto the repository factory inputs.
func (s Settings) StoreOptions() store.Options {
	return store.Options{
		Path:               s.DatabasePath,
		CacheSize:          s.Store.CacheSize,
		CacheTTL:           time.Duration(s.Store.CacheTTLMs) * time.Millisecond,
		EnableWatchers:     s.Store.EnableWatchers,
		EnableEvents:       s.Store.EnableEvents,
		EnableTransactions: s.Store.EnableTransactions,
		ConnectionTimeout:  time.Duration(s.Store.ConnectionTimeoutMs) * time.Millisecond,
		QueryTimeout:       time.Duration(s.Store.QueryTimeoutMs) * time.Millisecond,
		RetryCount:         s.Store.RetryCount,
		EncryptionKey:      s.Store.EncryptionKey,
	}
}

func (s Settings) SettleDelay() time.Duration {
	if s.SettleDelayMs <= 0 {
		return time.Duration(DefaultSettleDelayMs) * time.Millisecond
	}
	return time.Duration(s.SettleDelayMs) * time.Millisecond
}
