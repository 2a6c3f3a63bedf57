// Package config provides centralized configuration for litetable.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// AppFs is the filesystem used to probe for .env files.
var AppFs = afero.NewOsFs()

// Config holds all application configuration values.
type Config struct {
	DatabaseURL    string // SQLite file path, ":memory:", or a libsql:// URL
	AuthToken      string // Auth token appended to remote libsql URLs
	StreamPrefetch int    // Rows buffered ahead of a row stream consumer
	LockRetries    int    // Retries for "database is locked" before giving up
	LogLevel       string // debug, info, warn or error
}

// Cfg is the global configuration instance, loaded at startup.
var Cfg Config

func init() {
	Cfg = Defaults()
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		DatabaseURL:    "litetable.db",
		StreamPrefetch: 1024,
		LockRetries:    12,
		LogLevel:       "info",
	}
}

// Load reads configuration from .env files, an optional .litetable.yaml in
// the working or home directory, and LITETABLE_* environment variables.
// Environment variables win over the config file.
func Load() (Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return Config{}, err
	}

	if _, err := AppFs.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
	if _, err := AppFs.Stat(".env.local"); err == nil {
		_ = godotenv.Overload(".env.local")
	}

	v := viper.New()
	v.SetConfigName(".litetable")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(home)
	v.AddConfigPath(filepath.Join(home, ".config", "litetable"))

	v.SetEnvPrefix("LITETABLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Defaults()
	v.SetDefault("database_url", d.DatabaseURL)
	v.SetDefault("auth_token", "")
	v.SetDefault("stream_prefetch", d.StreamPrefetch)
	v.SetDefault("lock_retries", d.LockRetries)
	v.SetDefault("log_level", d.LogLevel)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	cfg := Config{
		DatabaseURL:    v.GetString("database_url"),
		AuthToken:      v.GetString("auth_token"),
		StreamPrefetch: v.GetInt("stream_prefetch"),
		LockRetries:    v.GetInt("lock_retries"),
		LogLevel:       v.GetString("log_level"),
	}
	if cfg.StreamPrefetch <= 0 {
		cfg.StreamPrefetch = d.StreamPrefetch
	}
	if cfg.LockRetries < 0 {
		cfg.LockRetries = 0
	}
	// Fall back to the Turso CLI's variable.
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TURSO_AUTH_TOKEN")
	}

	return cfg, nil
}
