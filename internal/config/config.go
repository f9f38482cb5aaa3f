package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/eugenenazirov/safeconfig/internal/yamlloader"
)

const (
	defaultPort             = "8080"
	defaultRateLimitRPS     = 25.0
	defaultRateLimitBurst   = 50
	defaultMaxDocumentBytes = 1 << 20
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > Environment variables > YAML config > Defaults
type Config struct {
	Port                 string        `validate:"required"`
	ShutdownGracePeriod  time.Duration `validate:"gte=0"`
	ReadHeaderTimeout    time.Duration `validate:"gte=0"`
	WriteTimeout         time.Duration `validate:"gte=0"`
	IdleTimeout          time.Duration `validate:"gte=0"`
	EnableRequestLogging bool
	LogLevel             string  `validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
	MaxDocumentBytes     int64   `validate:"gt=0"`
	RateLimitRPS         float64 `validate:"gte=0"`
	RateLimitBurst       int     `validate:"gte=0"`
	// AllowedSources restricts the source labels the service accepts.
	// Nil accepts every label.
	AllowedSources *yamlloader.Regexp `validate:"-"`
}

// fileConfig holds the settings present in the YAML configuration file.
// Nil fields were not set.
type fileConfig struct {
	Port                 *string
	ShutdownGracePeriod  *time.Duration
	ReadHeaderTimeout    *time.Duration
	WriteTimeout         *time.Duration
	IdleTimeout          *time.Duration
	EnableRequestLogging *bool
	LogLevel             *string
	MaxDocumentBytes     *int64
	RateLimitRPS         *float64
	RateLimitBurst       *int
	AllowedSources       *yamlloader.Regexp
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile       string
	Port             *string
	LogLevel         *string
	MaxDocumentBytes *int64
	RateLimitRPS     *float64
	RateLimitBurst   *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > Environment variables > YAML config > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	// Load from YAML file if specified
	if overrides != nil && overrides.ConfigFile != "" {
		fileCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		applyFileConfig(&cfg, fileCfg)
	}

	// Apply environment variables (override YAML)
	applyEnvConfig(&cfg)

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		LogLevel:             "info",
		MaxDocumentBytes:     defaultMaxDocumentBytes,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
	}
}

// loadFromFile reads the configuration file through the safe loader, so the
// file may use !ruby/regexp but nothing outside the allow-list.
func loadFromFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	tree, err := yamlloader.Load(data, path)
	if err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return interpret(tree)
}

// interpret maps the generic tree onto the known settings. Unknown keys are
// ignored.
func interpret(tree any) (*fileConfig, error) {
	var cfg fileConfig
	if tree == nil {
		return &cfg, nil
	}

	root, ok := tree.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("top-level value must be a mapping, got %s", typeName(tree))
	}

	var err error
	if cfg.Port, err = portField(root, "port"); err != nil {
		return nil, err
	}
	if cfg.ShutdownGracePeriod, err = durationField(root, "shutdown_grace_period"); err != nil {
		return nil, err
	}
	if cfg.ReadHeaderTimeout, err = durationField(root, "read_header_timeout"); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout, err = durationField(root, "write_timeout"); err != nil {
		return nil, err
	}
	if cfg.IdleTimeout, err = durationField(root, "idle_timeout"); err != nil {
		return nil, err
	}
	if cfg.EnableRequestLogging, err = boolField(root, "enable_request_logging"); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = stringField(root, "log_level"); err != nil {
		return nil, err
	}
	if cfg.MaxDocumentBytes, err = int64Field(root, "max_document_bytes"); err != nil {
		return nil, err
	}
	if cfg.AllowedSources, err = regexpField(root, "allowed_sources"); err != nil {
		return nil, err
	}

	if raw, ok := root["rate_limit"]; ok && raw != nil {
		rateLimit, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("rate_limit must be a mapping, got %s", typeName(raw))
		}
		if cfg.RateLimitRPS, err = floatField(rateLimit, "rps"); err != nil {
			return nil, err
		}
		if cfg.RateLimitBurst, err = intField(rateLimit, "burst"); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// applyFileConfig applies YAML configuration to the Config struct.
func applyFileConfig(cfg *Config, fileCfg *fileConfig) {
	if fileCfg.Port != nil && *fileCfg.Port != "" {
		cfg.Port = *fileCfg.Port
	}
	if fileCfg.ShutdownGracePeriod != nil {
		cfg.ShutdownGracePeriod = *fileCfg.ShutdownGracePeriod
	}
	if fileCfg.ReadHeaderTimeout != nil {
		cfg.ReadHeaderTimeout = *fileCfg.ReadHeaderTimeout
	}
	if fileCfg.WriteTimeout != nil {
		cfg.WriteTimeout = *fileCfg.WriteTimeout
	}
	if fileCfg.IdleTimeout != nil {
		cfg.IdleTimeout = *fileCfg.IdleTimeout
	}
	if fileCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *fileCfg.EnableRequestLogging
	}
	if fileCfg.LogLevel != nil && *fileCfg.LogLevel != "" {
		cfg.LogLevel = *fileCfg.LogLevel
	}
	if fileCfg.MaxDocumentBytes != nil {
		cfg.MaxDocumentBytes = *fileCfg.MaxDocumentBytes
	}
	if fileCfg.RateLimitRPS != nil && *fileCfg.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *fileCfg.RateLimitRPS
	}
	if fileCfg.RateLimitBurst != nil && *fileCfg.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *fileCfg.RateLimitBurst
	}
	if fileCfg.AllowedSources != nil {
		cfg.AllowedSources = fileCfg.AllowedSources
	}
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Port = port
	}

	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}

	if size := strings.TrimSpace(os.Getenv("MAX_DOCUMENT_BYTES")); size != "" {
		if value, err := strconv.ParseInt(size, 10, 64); err == nil && value > 0 {
			cfg.MaxDocumentBytes = value
		}
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(*overrides.LogLevel)
	}

	if overrides.MaxDocumentBytes != nil && *overrides.MaxDocumentBytes > 0 {
		cfg.MaxDocumentBytes = *overrides.MaxDocumentBytes
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
