// Package config loads runtime configuration from multiple sources (YAML files,
// environment variables, CLI flags) with precedence: CLI flags > Environment
// variables > YAML config > Defaults. The YAML file goes through the same safe
// loader the service exposes, so it may only use allow-listed tags.
package config
