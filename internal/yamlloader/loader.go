package yamlloader

import (
	"fmt"
	"strconv"
	"strings"

	regexp "github.com/wasilibs/go-re2"
	"gopkg.in/yaml.v3"
)

const (
	defaultMaxDepth          = 512
	defaultMaxAliasExpansion = 100_000
)

const (
	tagStr       = "!!str"
	tagInt       = "!!int"
	tagFloat     = "!!float"
	tagBool      = "!!bool"
	tagNull      = "!!null"
	tagMap       = "!!map"
	tagSeq       = "!!seq"
	tagMerge     = "!!merge"
	tagTimestamp = "!!timestamp"
)

var regexpTags = map[string]struct{}{
	"!ruby/regexp":                  {},
	"tag:ruby.yaml.org,2002:regexp": {},
}

var symbolTags = map[string]struct{}{
	"!ruby/symbol":                  {},
	"!ruby/sym":                     {},
	"tag:ruby.yaml.org,2002:symbol": {},
	"tag:ruby.yaml.org,2002:sym":    {},
}

var syntaxErrorLine = regexp.MustCompile(`(?s)\Ayaml: line (\d+): (.*)\z`)

type safeLoader struct {
	aliases           bool
	maxDepth          int
	maxAliasExpansion int
}

// New creates a Loader that only constructs allow-listed types.
func New(opts ...Option) Loader {
	l := &safeLoader{
		maxDepth:          defaultMaxDepth,
		maxAliasExpansion: defaultMaxAliasExpansion,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var defaultLoader = New()

// Load parses text with the default limits. See Loader.
func Load(text []byte, source string) (any, error) {
	return defaultLoader.Load(text, source)
}

func (l *safeLoader) Load(text []byte, source string) (any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(text, &doc); err != nil {
		return nil, syntaxError(source, err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if err := l.inspect(root, source, 0); err != nil {
		return nil, err
	}

	b := &builder{
		source:            source,
		maxDepth:          l.maxDepth,
		maxAliasExpansion: l.maxAliasExpansion,
		active:            make(map[*yaml.Node]struct{}),
	}
	return b.build(root, 0)
}

// inspect walks the tree without constructing anything and rejects the first
// node whose tag is not allow-listed, or the first alias unless aliases are
// enabled. Alias targets are checked where their anchor is defined.
func (l *safeLoader) inspect(n *yaml.Node, source string, depth int) error {
	if depth > l.maxDepth {
		return depthError(source, n, l.maxDepth)
	}

	switch n.Kind {
	case yaml.AliasNode:
		if !l.aliases {
			return aliasError(source, n)
		}
		return nil
	case yaml.ScalarNode:
		if classifyScalar(n) == scalarDisallowed {
			return disallowed(source, n)
		}
		return nil
	case yaml.MappingNode:
		if n.Tag != tagMap && n.Tag != "" {
			return disallowed(source, n)
		}
	case yaml.SequenceNode:
		if n.Tag != tagSeq && n.Tag != "" {
			return disallowed(source, n)
		}
	}

	for _, child := range n.Content {
		if err := l.inspect(child, source, depth+1); err != nil {
			return err
		}
	}
	return nil
}

type scalarKind int

const (
	scalarCore scalarKind = iota
	scalarRegexp
	scalarSymbol
	scalarDisallowed
)

func classifyScalar(n *yaml.Node) scalarKind {
	if _, ok := regexpTags[n.Tag]; ok {
		return scalarRegexp
	}
	if _, ok := symbolTags[n.Tag]; ok {
		return scalarSymbol
	}

	switch n.Tag {
	case "", tagStr, tagInt, tagFloat, tagBool, tagNull, tagMerge:
		return scalarCore
	case tagTimestamp:
		// Plain scalars resolve to timestamps implicitly and stay strings;
		// an explicit !!timestamp asks for a time value.
		if n.Style&yaml.TaggedStyle == 0 {
			return scalarCore
		}
	}
	return scalarDisallowed
}

type builder struct {
	source            string
	maxDepth          int
	maxAliasExpansion int

	aliasDepth int
	expanded   int
	active     map[*yaml.Node]struct{}
}

func (b *builder) build(n *yaml.Node, depth int) (any, error) {
	if depth > b.maxDepth {
		return nil, depthError(b.source, n, b.maxDepth)
	}
	if b.aliasDepth > 0 {
		b.expanded++
		if b.expanded > b.maxAliasExpansion {
			return nil, b.malformed(n, "document contains excessive aliasing")
		}
	}

	if n.Anchor != "" {
		if _, busy := b.active[n]; busy {
			return nil, b.malformed(n, fmt.Sprintf("anchor %q value contains itself", n.Anchor))
		}
		b.active[n] = struct{}{}
		defer delete(b.active, n)
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return b.build(n.Content[0], depth)
	case yaml.AliasNode:
		if n.Alias == nil {
			return nil, b.malformed(n, fmt.Sprintf("unknown anchor %q referenced", n.Value))
		}
		if _, busy := b.active[n.Alias]; busy {
			return nil, b.malformed(n, fmt.Sprintf("anchor %q value contains itself", n.Alias.Anchor))
		}
		b.aliasDepth++
		defer func() { b.aliasDepth-- }()
		return b.build(n.Alias, depth)
	case yaml.ScalarNode:
		return b.scalar(n)
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, child := range n.Content {
			value, err := b.build(child, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, value)
		}
		return out, nil
	case yaml.MappingNode:
		return b.mapping(n, depth)
	default:
		return nil, b.malformed(n, fmt.Sprintf("unexpected node kind %d", n.Kind))
	}
}

func (b *builder) scalar(n *yaml.Node) (any, error) {
	switch classifyScalar(n) {
	case scalarRegexp:
		re, err := compileRegexp(n.Value)
		if err != nil {
			return nil, b.malformed(n, fmt.Sprintf("invalid regexp %q: %v", n.Value, err))
		}
		return re, nil
	case scalarSymbol:
		return Symbol(n.Value), nil
	case scalarDisallowed:
		return nil, disallowed(b.source, n)
	}

	switch {
	case n.Tag == tagStr:
		if n.Style == 0 {
			if sym, ok := plainSymbol(n.Value); ok {
				return sym, nil
			}
		}
		return n.Value, nil
	case n.Tag == tagTimestamp, n.Tag == tagMerge:
		return n.Value, nil
	}

	var value any
	if err := n.Decode(&value); err != nil {
		return nil, b.malformed(n, strings.TrimPrefix(err.Error(), "yaml: "))
	}
	return value, nil
}

func (b *builder) mapping(n *yaml.Node, depth int) (any, error) {
	if len(n.Content)%2 != 0 {
		return nil, b.malformed(n, "mapping has a key without a value")
	}

	out := make(map[string]any, len(n.Content)/2)
	var merges []*yaml.Node
	for i := 0; i < len(n.Content); i += 2 {
		keyNode, valueNode := n.Content[i], n.Content[i+1]
		if keyNode.Kind == yaml.ScalarNode && keyNode.Tag == tagMerge {
			merges = append(merges, valueNode)
			continue
		}

		key, err := b.key(keyNode, depth+1)
		if err != nil {
			return nil, err
		}
		value, err := b.build(valueNode, depth+1)
		if err != nil {
			return nil, err
		}
		out[key] = value
	}

	// Explicit keys win over merged ones and earlier merges win over later.
	for _, merge := range merges {
		value, err := b.build(merge, depth+1)
		if err != nil {
			return nil, err
		}
		switch v := value.(type) {
		case map[string]any:
			mergeInto(out, v)
		case []any:
			for _, item := range v {
				m, ok := item.(map[string]any)
				if !ok {
					return nil, b.malformed(merge, "map merge requires map or sequence of maps as the value")
				}
				mergeInto(out, m)
			}
		default:
			return nil, b.malformed(merge, "map merge requires map or sequence of maps as the value")
		}
	}
	return out, nil
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if _, exists := dst[k]; !exists {
			dst[k] = v
		}
	}
}

func (b *builder) key(n *yaml.Node, depth int) (string, error) {
	value, err := b.build(n, depth)
	if err != nil {
		return "", err
	}

	switch k := value.(type) {
	case string:
		return k, nil
	case Symbol:
		return string(k), nil
	case nil:
		return "", nil
	case *Regexp:
		return k.Literal(), nil
	case map[string]any, []any:
		return "", b.malformed(n, "mapping key must be a scalar")
	default:
		return fmt.Sprint(k), nil
	}
}

// plainSymbol recognises unquoted :name and :"quoted name" scalars.
func plainSymbol(value string) (Symbol, bool) {
	if len(value) < 2 || value[0] != ':' {
		return "", false
	}
	name := value[1:]
	if len(name) >= 2 {
		if q := name[0]; (q == '"' || q == '\'') && name[len(name)-1] == q {
			return Symbol(name[1 : len(name)-1]), true
		}
	}
	return Symbol(name), true
}

func (b *builder) malformed(n *yaml.Node, reason string) error {
	return &MalformedInputError{
		Source: b.source,
		Line:   n.Line,
		Column: n.Column,
		Reason: reason,
	}
}

func disallowed(source string, n *yaml.Node) error {
	return &DisallowedTypeError{
		Source: source,
		Tag:    n.Tag,
		Line:   n.Line,
		Column: n.Column,
	}
}

func aliasError(source string, n *yaml.Node) error {
	return &MalformedInputError{
		Source: source,
		Line:   n.Line,
		Column: n.Column,
		Reason: fmt.Sprintf("cannot load alias *%s: alias parsing is not enabled", n.Value),
	}
}

func depthError(source string, n *yaml.Node, limit int) error {
	return &MalformedInputError{
		Source: source,
		Line:   n.Line,
		Column: n.Column,
		Reason: fmt.Sprintf("document exceeds maximum nesting depth of %d", limit),
	}
}

func syntaxError(source string, err error) error {
	malformed := &MalformedInputError{
		Source: source,
		Reason: strings.TrimPrefix(err.Error(), "yaml: "),
		Err:    err,
	}
	if m := syntaxErrorLine.FindStringSubmatch(err.Error()); m != nil {
		if line, convErr := strconv.Atoi(m[1]); convErr == nil {
			malformed.Line = line
			malformed.Reason = m[2]
		}
	}
	return malformed
}
