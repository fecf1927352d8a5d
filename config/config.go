/*
config.go - Server configuration

PURPOSE:
  Loads the server configuration from an optional YAML file, then applies
  ENGINE_* environment overrides. A .env file in the working directory is
  loaded first when present, so local runs can keep overrides out of the
  shell profile.

PRECEDENCE (lowest to highest):
  1. Defaults
  2. YAML file (-config flag)
  3. Environment (ENGINE_*, possibly from .env)
  4. Command-line flags (applied by cmd/server)

EXAMPLE (config.yaml):

  server:
    listen_addr: ":8080"
    read_timeout: 15s
    write_timeout: 15s
  database:
    path: timeoff.db
  engine:
    end_of_contract_offset: 5s
    metrics_namespace: employment
    accrual_refresh_interval: 1h
  log:
    level: info

SEE ALSO:
  - cmd/server/main.go: Uses Config
*/
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the whole server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"-"`
	WriteTimeout    time.Duration `yaml:"-"`
	ReadTimeoutRaw  string        `yaml:"read_timeout"`
	WriteTimeoutRaw string        `yaml:"write_timeout"`
}

// DatabaseConfig locates the SQLite database. ":memory:" keeps everything
// in process.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type EngineConfig struct {
	EndOfContractOffset    time.Duration `yaml:"-"`
	AccrualRefreshInterval time.Duration `yaml:"-"`
	MetricsNamespace       string        `yaml:"metrics_namespace"`

	EndOfContractOffsetRaw    string `yaml:"end_of_contract_offset"`
	AccrualRefreshIntervalRaw string `yaml:"accrual_refresh_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Env variables read by Load.
const (
	EnvListenAddr             = "ENGINE_LISTEN_ADDR"
	EnvDatabasePath           = "ENGINE_DB_PATH"
	EnvEndOfContractOffset    = "ENGINE_END_OF_CONTRACT_OFFSET"
	EnvMetricsNamespace       = "ENGINE_METRICS_NAMESPACE"
	EnvAccrualRefreshInterval = "ENGINE_ACCRUAL_REFRESH_INTERVAL"
	EnvLogLevel               = "ENGINE_LOG_LEVEL"
)

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeoutRaw:  "15s",
			WriteTimeoutRaw: "15s",
		},
		Database: DatabaseConfig{Path: "timeoff.db"},
		Engine: EngineConfig{
			EndOfContractOffsetRaw:    "5s",
			MetricsNamespace:          "employment",
			AccrualRefreshIntervalRaw: "1h",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path (optional, "" skips the file) over the defaults and
// applies environment overrides.
func Load(path string) (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	override := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(EnvListenAddr, &c.Server.ListenAddr)
	override(EnvDatabasePath, &c.Database.Path)
	override(EnvEndOfContractOffset, &c.Engine.EndOfContractOffsetRaw)
	override(EnvMetricsNamespace, &c.Engine.MetricsNamespace)
	override(EnvAccrualRefreshInterval, &c.Engine.AccrualRefreshIntervalRaw)
	override(EnvLogLevel, &c.Log.Level)
}

func (c *Config) validateAndNormalize() error {
	if c.Server.ListenAddr == "" {
		return errors.New("config: server.listen_addr must be set")
	}
	if c.Database.Path == "" {
		return errors.New("config: database.path must be set")
	}

	var err error
	if c.Server.ReadTimeout, err = parseDurationAllowEmpty(c.Server.ReadTimeoutRaw); err != nil {
		return fmt.Errorf("config: server.read_timeout: %w", err)
	}
	if c.Server.WriteTimeout, err = parseDurationAllowEmpty(c.Server.WriteTimeoutRaw); err != nil {
		return fmt.Errorf("config: server.write_timeout: %w", err)
	}

	e := &c.Engine
	if e.EndOfContractOffset, err = parseDurationAllowEmpty(e.EndOfContractOffsetRaw); err != nil {
		return fmt.Errorf("config: engine.end_of_contract_offset: %w", err)
	}
	// Generated entries use offsets 0s..2s within a day.
	if e.EndOfContractOffset != 0 && e.EndOfContractOffset <= 2*time.Second {
		return fmt.Errorf("config: engine.end_of_contract_offset must be greater than 2s, got %s", e.EndOfContractOffset)
	}
	if e.AccrualRefreshInterval, err = parseDurationAllowEmpty(e.AccrualRefreshIntervalRaw); err != nil {
		return fmt.Errorf("config: engine.accrual_refresh_interval: %w", err)
	}
	if e.AccrualRefreshInterval < 0 {
		return errors.New("config: engine.accrual_refresh_interval must not be negative")
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses the configured level (debug, info, warn, error).
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return level, nil
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}
