package yamlloader

import (
	regexp "github.com/wasilibs/go-re2"
)

// Loader describes the behaviour required from a safe YAML loader.
//
// Load returns a tree made of map[string]any, []any, string, int, int64,
// uint64, float64, bool, nil, *Regexp and Symbol. The source label only
// appears in error messages.
type Loader interface {
	Load(text []byte, source string) (any, error)
}

// Symbol is an interned name such as :foo, distinct from an ordinary string.
type Symbol string

func (s Symbol) String() string {
	return ":" + string(s)
}

// Regexp is a compiled !ruby/regexp value. Source and Options keep the
// literal as written so the value can be compared and rendered back.
type Regexp struct {
	*regexp.Regexp
	Source  string
	Options string
}

// Literal renders the value in /source/options form.
func (r *Regexp) Literal() string {
	return "/" + r.Source + "/" + r.Options
}

// Option configures a Loader built by New.
type Option func(*safeLoader)

// WithMaxDepth bounds how deeply collections may nest.
func WithMaxDepth(depth int) Option {
	return func(l *safeLoader) {
		if depth > 0 {
			l.maxDepth = depth
		}
	}
}

// WithAliases allows *alias references. Without it any alias is malformed
// input, and merge keys only accept inline mappings.
func WithAliases() Option {
	return func(l *safeLoader) {
		l.aliases = true
	}
}

// WithMaxAliasExpansion bounds how many nodes may be produced by expanding
// aliases when WithAliases is set, guarding against exponential alias bombs.
func WithMaxAliasExpansion(nodes int) Option {
	return func(l *safeLoader) {
		if nodes > 0 {
			l.maxAliasExpansion = nodes
		}
	}
}
