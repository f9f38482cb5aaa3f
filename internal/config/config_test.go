package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eugenenazirov/safeconfig/internal/yamlloader"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PORT", "LOG_LEVEL", "MAX_DOCUMENT_BYTES", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "safeconfig.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != defaultPort {
		t.Fatalf("expected default port %s, got %s", defaultPort, cfg.Port)
	}
	if cfg.ShutdownGracePeriod != 10*time.Second {
		t.Fatalf("unexpected shutdown grace period: %s", cfg.ShutdownGracePeriod)
	}
	if cfg.MaxDocumentBytes != defaultMaxDocumentBytes {
		t.Fatalf("unexpected max document bytes: %d", cfg.MaxDocumentBytes)
	}
	if !cfg.EnableRequestLogging {
		t.Fatalf("expected request logging to be enabled by default")
	}
	if cfg.AllowedSources != nil {
		t.Fatalf("expected no source restriction by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("MAX_DOCUMENT_BYTES", "2048")
	t.Setenv("RATE_LIMIT_RPS", "not-a-number")

	cfg, err := Load(&CLIOverrides{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "9000" {
		t.Fatalf("expected overridden port, got %s", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected debug level, got %s", cfg.LogLevel)
	}
	if cfg.MaxDocumentBytes != 2048 {
		t.Fatalf("expected 2048 bytes, got %d", cfg.MaxDocumentBytes)
	}
	if cfg.RateLimitRPS != defaultRateLimitRPS {
		t.Fatalf("expected invalid env value to be ignored, got %f", cfg.RateLimitRPS)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
port: 9191
shutdown_grace_period: 3s
read_header_timeout: 1s
enable_request_logging: false
log_level: warn
max_document_bytes: 4096
allowed_sources: !ruby/regexp '/\A[\w.\/-]+\.ya?ml\z/'
rate_limit:
  rps: 5
  burst: 7
`)

	cfg, err := Load(&CLIOverrides{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "9191" {
		t.Fatalf("expected port 9191, got %s", cfg.Port)
	}
	if cfg.ShutdownGracePeriod != 3*time.Second || cfg.ReadHeaderTimeout != time.Second {
		t.Fatalf("unexpected timeouts: %s %s", cfg.ShutdownGracePeriod, cfg.ReadHeaderTimeout)
	}
	if cfg.WriteTimeout != 15*time.Second {
		t.Fatalf("expected default write timeout to survive, got %s", cfg.WriteTimeout)
	}
	if cfg.EnableRequestLogging {
		t.Fatalf("expected request logging to be disabled")
	}
	if cfg.LogLevel != "warn" || cfg.MaxDocumentBytes != 4096 {
		t.Fatalf("unexpected level/size: %s %d", cfg.LogLevel, cfg.MaxDocumentBytes)
	}
	if cfg.RateLimitRPS != 5 || cfg.RateLimitBurst != 7 {
		t.Fatalf("unexpected rate limit: %f %d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.AllowedSources == nil {
		t.Fatalf("expected allowed_sources to be loaded")
	}
	if !cfg.AllowedSources.MatchString("config/.rubocop.yml") || cfg.AllowedSources.MatchString("../etc/passwd") {
		t.Fatalf("allowed_sources %s does not behave as configured", cfg.AllowedSources.Literal())
	}
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")
	t.Setenv("RATE_LIMIT_BURST", "3")

	path := writeConfig(t, "port: \"6000\"\nrate_limit:\n  burst: 9\n  rps: 2.5\n")
	port := "8000"

	cfg, err := Load(&CLIOverrides{ConfigFile: path, Port: &port})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "8000" {
		t.Fatalf("expected CLI port to win, got %s", cfg.Port)
	}
	if cfg.RateLimitBurst != 3 {
		t.Fatalf("expected env burst to override YAML, got %d", cfg.RateLimitBurst)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected YAML rps to override default, got %f", cfg.RateLimitRPS)
	}
}

func TestLoadRejectsDisallowedTagsInConfigFile(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "port: !ruby/object:Port {}\n")

	_, err := Load(&CLIOverrides{ConfigFile: path})
	if !errors.Is(err, yamlloader.ErrDisallowedType) {
		t.Fatalf("expected ErrDisallowedType, got %v", err)
	}
}

func TestLoadRejectsMalformedConfigFile(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "port: {8080\n")

	_, err := Load(&CLIOverrides{ConfigFile: path})
	if !errors.Is(err, yamlloader.ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
	if !strings.Contains(err.Error(), path) {
		t.Fatalf("expected error to name the file, got %v", err)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	clearEnv(t)

	if _, err := Load(&CLIOverrides{ConfigFile: filepath.Join(t.TempDir(), "missing.yml")}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadValidatesResult(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "log_level: chatty\n")
	if _, err := Load(&CLIOverrides{ConfigFile: path}); err == nil {
		t.Fatalf("expected validation error for unknown log level")
	}

	path = writeConfig(t, "write_timeout: -5s\n")
	if _, err := Load(&CLIOverrides{ConfigFile: path}); err == nil {
		t.Fatalf("expected validation error for negative timeout")
	}
}

func TestInterpretRejectsWrongTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tree any
	}{
		{name: "ScalarRoot", tree: "just a string"},
		{name: "DurationNotString", tree: map[string]any{"idle_timeout": 5}},
		{name: "BadDuration", tree: map[string]any{"idle_timeout": "soon"}},
		{name: "BoolAsString", tree: map[string]any{"enable_request_logging": "yes please"}},
		{name: "SizeAsFloat", tree: map[string]any{"max_document_bytes": 1.5}},
		{name: "RateLimitNotMapping", tree: map[string]any{"rate_limit": []any{1}}},
		{name: "BurstAsString", tree: map[string]any{"rate_limit": map[string]any{"burst": "many"}}},
		{name: "AllowedSourcesAsString", tree: map[string]any{"allowed_sources": `\A.*\z`}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := interpret(tc.tree); err == nil {
				t.Fatalf("expected error for %v", tc.tree)
			}
		})
	}
}

func TestInterpretEmptyDocument(t *testing.T) {
	t.Parallel()

	cfg, err := interpret(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != nil || cfg.RateLimitRPS != nil {
		t.Fatalf("expected no settings, got %+v", cfg)
	}
}
