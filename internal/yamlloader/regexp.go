package yamlloader

import (
	"fmt"
	"regexp/syntax"
	"strings"

	regexp "github.com/wasilibs/go-re2"
)

var regexpLiteral = regexp.MustCompile(`(?s)\A/(.*)/([mixn]*)\z`)

// Class bodies for the Ruby property names RE2 does not know.
var rubyProperties = map[string]string{
	"word":  `\p{L}\p{M}\p{N}\p{Pc}`,
	"alnum": `\p{L}\p{M}\p{N}`,
	"alpha": `\p{L}\p{M}`,
	"digit": `\p{Nd}`,
	"space": `\s\p{Z}`,
	"upper": `\p{Lu}`,
	"lower": `\p{Ll}`,
}

const hexDigits = `0-9a-fA-F`

// compileRegexp builds a Regexp from a !ruby/regexp scalar. The value is
// either /source/options or a bare pattern.
func compileRegexp(value string) (*Regexp, error) {
	source, options := value, ""
	if m := regexpLiteral.FindStringSubmatch(value); m != nil {
		source, options = m[1], normalizeOptions(m[2])
	}

	pattern, err := translatePattern(source, strings.ContainsRune(options, 'x'))
	if err != nil {
		return nil, err
	}

	// Ruby anchors ^ and $ always match at line boundaries.
	flags := "m"
	if strings.ContainsRune(options, 'i') {
		flags += "i"
	}
	if strings.ContainsRune(options, 'm') {
		flags += "s"
	}

	expr := "(?" + flags + ")" + pattern
	// go-re2 logs parse failures to stderr, so invalid patterns are caught
	// by the syntax parser first.
	if _, err := syntax.Parse(expr, syntax.Perl); err != nil {
		return nil, err
	}
	compiled, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &Regexp{Regexp: compiled, Source: source, Options: options}, nil
}

func normalizeOptions(raw string) string {
	var b strings.Builder
	for _, opt := range "mix" {
		if strings.ContainsRune(raw, opt) {
			b.WriteRune(opt)
		}
	}
	return b.String()
}

// translatePattern rewrites the Ruby-only escapes of source into RE2 syntax.
// In extended mode unescaped whitespace and # comments outside character
// classes are dropped.
func translatePattern(source string, extended bool) (string, error) {
	var out strings.Builder
	runes := []rune(source)
	classDepth := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case r == '\\':
			if i+1 >= len(runes) {
				return "", fmt.Errorf("trailing backslash")
			}
			i++
			consumed, err := translateEscape(&out, runes, i, classDepth > 0)
			if err != nil {
				return "", err
			}
			i += consumed
		case r == '[':
			classDepth++
			out.WriteRune(r)
		case r == ']' && classDepth > 0:
			classDepth--
			out.WriteRune(r)
		case extended && classDepth == 0 && (r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\v'):
		case extended && classDepth == 0 && r == '#':
			for i+1 < len(runes) && runes[i+1] != '\n' {
				i++
			}
		default:
			out.WriteRune(r)
		}
	}
	return out.String(), nil
}

// translateEscape writes the translation of the escape whose letter sits at
// runes[i] and returns how many extra runes it consumed.
func translateEscape(out *strings.Builder, runes []rune, i int, inClass bool) (int, error) {
	switch c := runes[i]; c {
	case 'h':
		if inClass {
			out.WriteString(hexDigits)
		} else {
			out.WriteString("[" + hexDigits + "]")
		}
	case 'H':
		if inClass {
			return 0, fmt.Errorf(`\H is not supported inside a character class`)
		}
		out.WriteString("[^" + hexDigits + "]")
	case 'Z':
		if inClass {
			return 0, fmt.Errorf(`\Z is not supported inside a character class`)
		}
		out.WriteString(`(?:\n?\z)`)
	case 'p', 'P':
		name, width, ok := propertyName(runes, i+1)
		if !ok {
			out.WriteRune('\\')
			out.WriteRune(c)
			return 0, nil
		}
		body, known := rubyProperties[strings.ToLower(name)]
		if !known {
			out.WriteRune('\\')
			out.WriteRune(c)
			out.WriteString(string(runes[i+1 : i+1+width]))
			return width, nil
		}
		switch {
		case c == 'p' && inClass:
			out.WriteString(body)
		case c == 'p':
			out.WriteString("[" + body + "]")
		case inClass:
			return 0, fmt.Errorf(`\P{%s} is not supported inside a character class`, name)
		default:
			out.WriteString("[^" + body + "]")
		}
		return width, nil
	default:
		out.WriteRune('\\')
		out.WriteRune(c)
	}
	return 0, nil
}

// propertyName reads a {Name} group starting at runes[start].
func propertyName(runes []rune, start int) (string, int, bool) {
	if start >= len(runes) || runes[start] != '{' {
		return "", 0, false
	}
	for j := start + 1; j < len(runes); j++ {
		if runes[j] == '}' {
			return string(runes[start+1 : j]), j - start + 1, true
		}
	}
	return "", 0, false
}
