package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/eugenenazirov/safeconfig/internal/yamlloader"
)

func stringField(m map[string]any, key string) (*string, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case string:
		return &v, nil
	case yamlloader.Symbol:
		s := string(v)
		return &s, nil
	default:
		return nil, fmt.Errorf("%s must be a string, got %s", key, typeName(raw))
	}
}

// portField accepts both "8080" and 8080.
func portField(m map[string]any, key string) (*string, error) {
	if n, ok := m[key].(int); ok {
		s := strconv.Itoa(n)
		return &s, nil
	}
	return stringField(m, key)
}

func durationField(m map[string]any, key string) (*time.Duration, error) {
	s, err := stringField(m, key)
	if err != nil || s == nil {
		return nil, err
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &d, nil
}

func boolField(m map[string]any, key string) (*bool, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return nil, fmt.Errorf("%s must be a boolean, got %s", key, typeName(raw))
	}
	return &b, nil
}

func intField(m map[string]any, key string) (*int, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil, nil
	}
	n, ok := raw.(int)
	if !ok {
		return nil, fmt.Errorf("%s must be an integer, got %s", key, typeName(raw))
	}
	return &n, nil
}

func int64Field(m map[string]any, key string) (*int64, error) {
	n, err := intField(m, key)
	if err != nil || n == nil {
		return nil, err
	}
	v := int64(*n)
	return &v, nil
}

func floatField(m map[string]any, key string) (*float64, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil, nil
	}
	var f float64
	switch v := raw.(type) {
	case int:
		f = float64(v)
	case float64:
		f = v
	default:
		return nil, fmt.Errorf("%s must be a number, got %s", key, typeName(raw))
	}
	return &f, nil
}

func regexpField(m map[string]any, key string) (*yamlloader.Regexp, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil, nil
	}
	re, ok := raw.(*yamlloader.Regexp)
	if !ok {
		return nil, fmt.Errorf("%s must be tagged !ruby/regexp, got %s", key, typeName(raw))
	}
	return re, nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case yamlloader.Symbol:
		return "symbol"
	case bool:
		return "boolean"
	case int, int64, uint64, float64:
		return "number"
	case []any:
		return "sequence"
	case map[string]any:
		return "mapping"
	case *yamlloader.Regexp:
		return "regexp"
	default:
		return fmt.Sprintf("%T", v)
	}
}
