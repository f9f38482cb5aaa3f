package yamlloader

import (
	"errors"
	"fmt"
)

var (
	// ErrDisallowedType is matched by every DisallowedTypeError.
	ErrDisallowedType = errors.New("disallowed type")
	// ErrMalformedInput is matched by every MalformedInputError.
	ErrMalformedInput = errors.New("malformed input")
)

// DisallowedTypeError reports a tag requesting a type outside the allow-list.
type DisallowedTypeError struct {
	Source string
	Tag    string
	Line   int
	Column int
}

func (e *DisallowedTypeError) Error() string {
	return fmt.Sprintf("(%s): tried to load disallowed type %q%s", sourceName(e.Source), e.Tag, position(e.Line, e.Column))
}

// Is reports whether target is ErrDisallowedType.
func (e *DisallowedTypeError) Is(target error) bool {
	return target == ErrDisallowedType
}

// MalformedInputError reports text that could not be parsed. Line and Column
// are 1-based and zero when the parser did not provide them.
type MalformedInputError struct {
	Source string
	Line   int
	Column int
	Reason string
	Err    error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("(%s): %s%s", sourceName(e.Source), e.Reason, position(e.Line, e.Column))
}

// Is reports whether target is ErrMalformedInput.
func (e *MalformedInputError) Is(target error) bool {
	return target == ErrMalformedInput
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

func sourceName(source string) string {
	if source == "" {
		return "<unknown>"
	}
	return source
}

func position(line, column int) string {
	switch {
	case line > 0 && column > 0:
		return fmt.Sprintf(" at line %d column %d", line, column)
	case line > 0:
		return fmt.Sprintf(" at line %d", line)
	default:
		return ""
	}
}
