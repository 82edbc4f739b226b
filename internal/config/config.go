// Package config provides Viper-based configuration loading for the combat
// engine and its tools.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. DELVE_ENGINE_SEED.
const EnvPrefix = "DELVE"

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// EngineConfig holds the tunable combat numbers.
type EngineConfig struct {
	CritMultiplier float64 `mapstructure:"crit_multiplier"`
	DefenseFactor  float64 `mapstructure:"defense_factor"`
	Variance       int     `mapstructure:"variance"`
	FleeBaseChance float64 `mapstructure:"flee_base_chance"`
	FleePerLevel   float64 `mapstructure:"flee_per_level"`
	FleeMaxChance  float64 `mapstructure:"flee_max_chance"`
	XPPerLevel     int     `mapstructure:"xp_per_level"`
	RewardFloor    float64 `mapstructure:"reward_floor"`
	RewardCeil     float64 `mapstructure:"reward_ceil"`
	// Seed fixes the dice for reproducible runs; 0 uses crypto randomness.
	Seed int64 `mapstructure:"seed"`
	// ScriptInstructionLimit bounds each Lua hook call; 0 uses the default.
	ScriptInstructionLimit int `mapstructure:"script_instruction_limit"`
}

// NarrativeConfig holds the text-generation collaborator settings.
type NarrativeConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
	APIKey    string        `mapstructure:"api_key"`
}

// TelemetryConfig holds OpenTelemetry tracing settings.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	// Endpoint is the OTLP HTTP collector host:port; empty uses the exporter default.
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

// ContentConfig selects where definitions are loaded from.
type ContentConfig struct {
	// Dir overrides the embedded definitions when non-empty.
	Dir string `mapstructure:"dir"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Narrative NarrativeConfig `mapstructure:"narrative"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Content   ContentConfig   `mapstructure:"content"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateDatabase(c.Database); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateEngine(c.Engine); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateNarrative(c.Narrative); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		errs = append(errs, "telemetry.service_name must not be empty when telemetry is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateEngine(e EngineConfig) error {
	var errs []string
	if e.CritMultiplier < 1 {
		errs = append(errs, fmt.Sprintf("engine.crit_multiplier must be >= 1, got %v", e.CritMultiplier))
	}
	if e.DefenseFactor < 0 || e.DefenseFactor > 1 {
		errs = append(errs, fmt.Sprintf("engine.defense_factor must be in [0, 1], got %v", e.DefenseFactor))
	}
	if e.Variance < 0 {
		errs = append(errs, fmt.Sprintf("engine.variance must be >= 0, got %d", e.Variance))
	}
	for name, p := range map[string]float64{
		"flee_base_chance": e.FleeBaseChance,
		"flee_per_level":   e.FleePerLevel,
		"flee_max_chance":  e.FleeMaxChance,
	} {
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Sprintf("engine.%s must be in [0, 1], got %v", name, p))
		}
	}
	if e.XPPerLevel < 1 {
		errs = append(errs, fmt.Sprintf("engine.xp_per_level must be >= 1, got %d", e.XPPerLevel))
	}
	if e.RewardFloor < 0 || e.RewardCeil < e.RewardFloor {
		errs = append(errs, "engine.reward_floor must be >= 0 and not exceed engine.reward_ceil")
	}
	if e.ScriptInstructionLimit < 0 {
		errs = append(errs, "engine.script_instruction_limit must not be negative")
	}
	if len(errs) > 0 {
		// Map iteration order is random; keep messages stable.
		sort.Strings(errs)
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateNarrative(n NarrativeConfig) error {
	if !n.Enabled {
		return nil
	}
	var errs []string
	if n.Model == "" {
		errs = append(errs, "narrative.model must not be empty when narrative is enabled")
	}
	if n.MaxTokens < 1 {
		errs = append(errs, fmt.Sprintf("narrative.max_tokens must be >= 1, got %d", n.MaxTokens))
	}
	if n.Timeout <= 0 {
		errs = append(errs, "narrative.timeout must be positive")
	}
	if n.APIKey == "" {
		errs = append(errs, "narrative.api_key must be set when narrative is enabled")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path uses defaults and the
// environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	return LoadFromViper(v)
}

// NewViper returns a Viper instance with defaults and DELVE_ environment
// overrides configured.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "delve")
	v.SetDefault("database.password", "delve")
	v.SetDefault("database.name", "delve")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("engine.crit_multiplier", 1.5)
	v.SetDefault("engine.defense_factor", 0.5)
	v.SetDefault("engine.variance", 2)
	v.SetDefault("engine.flee_base_chance", 0.4)
	v.SetDefault("engine.flee_per_level", 0.05)
	v.SetDefault("engine.flee_max_chance", 1.0)
	v.SetDefault("engine.xp_per_level", 100)
	v.SetDefault("engine.reward_floor", 0.5)
	v.SetDefault("engine.reward_ceil", 1.5)
	v.SetDefault("engine.seed", 0)
	v.SetDefault("engine.script_instruction_limit", 0)

	v.SetDefault("narrative.enabled", false)
	v.SetDefault("narrative.model", "claude-3-5-haiku-latest")
	v.SetDefault("narrative.max_tokens", 256)
	v.SetDefault("narrative.timeout", "5s")
	v.SetDefault("narrative.api_key", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "delve")
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)

	v.SetDefault("content.dir", "")
}
