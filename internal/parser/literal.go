package parser

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
)

// ParseLiteral reads a single JSON-like literal and returns plain data
// (map[string]any, []any, string, float64, bool, nil). It is more
// permissive than encoding/json: keys may be unquoted identifiers,
// trailing commas are allowed, strings may be single-quoted, and a
// null-like token (null, nil) maps to nil. Input is only ever read,
// never evaluated.
func ParseLiteral(text string) (any, error) {
	s := &literalScanner{input: text}
	s.skipSpace()
	value, err := s.value()
	if err != nil {
		return nil, err
	}
	s.skipSpace()
	if s.pos != len(s.input) {
		return nil, eris.Errorf("parser: trailing data at offset %d", s.pos)
	}
	return value, nil
}

type literalScanner struct {
	input string
	pos   int
}

func (s *literalScanner) skipSpace() {
	for s.pos < len(s.input) && unicode.IsSpace(rune(s.input[s.pos])) {
		s.pos++
	}
}

func (s *literalScanner) peek() (byte, bool) {
	if s.pos >= len(s.input) {
		return 0, false
	}
	return s.input[s.pos], true
}

func (s *literalScanner) value() (any, error) {
	c, ok := s.peek()
	if !ok {
		return nil, eris.New("parser: unexpected end of literal")
	}
	switch {
	case c == '{':
		return s.object()
	case c == '[':
		return s.array()
	case c == '"' || c == '\'':
		return s.quotedString(c)
	case c == '-' || (c >= '0' && c <= '9'):
		return s.number()
	default:
		return s.bareword()
	}
}

func (s *literalScanner) object() (map[string]any, error) {
	s.pos++ // consume '{'
	obj := make(map[string]any)
	for {
		s.skipSpace()
		c, ok := s.peek()
		if !ok {
			return nil, eris.New("parser: unterminated object")
		}
		if c == '}' {
			s.pos++
			return obj, nil
		}

		key, err := s.key()
		if err != nil {
			return nil, err
		}
		s.skipSpace()
		if c, ok := s.peek(); !ok || c != ':' {
			return nil, eris.Errorf("parser: expected ':' after key %q at offset %d", key, s.pos)
		}
		s.pos++
		s.skipSpace()
		value, err := s.value()
		if err != nil {
			return nil, err
		}
		obj[key] = value

		s.skipSpace()
		c, ok = s.peek()
		switch {
		case ok && c == ',':
			s.pos++ // trailing comma before '}' is fine, loop re-checks
		case ok && c == '}':
		default:
			return nil, eris.Errorf("parser: expected ',' or '}' at offset %d", s.pos)
		}
	}
}

// key reads an object key: a quoted string, a :symbol, or a bare
// identifier.
func (s *literalScanner) key() (string, error) {
	c, ok := s.peek()
	if !ok {
		return "", eris.New("parser: unexpected end of literal in key")
	}
	if c == '"' || c == '\'' {
		return s.quotedString(c)
	}
	if c == ':' {
		s.pos++
	}
	start := s.pos
	for s.pos < len(s.input) && isIdentChar(s.input[s.pos]) {
		s.pos++
	}
	if s.pos == start {
		return "", eris.Errorf("parser: invalid object key at offset %d", s.pos)
	}
	return s.input[start:s.pos], nil
}

func (s *literalScanner) array() ([]any, error) {
	s.pos++ // consume '['
	arr := []any{}
	for {
		s.skipSpace()
		c, ok := s.peek()
		if !ok {
			return nil, eris.New("parser: unterminated array")
		}
		if c == ']' {
			s.pos++
			return arr, nil
		}
		value, err := s.value()
		if err != nil {
			return nil, err
		}
		arr = append(arr, value)

		s.skipSpace()
		c, ok = s.peek()
		switch {
		case ok && c == ',':
			s.pos++
		case ok && c == ']':
		default:
			return nil, eris.Errorf("parser: expected ',' or ']' at offset %d", s.pos)
		}
	}
}

func (s *literalScanner) quotedString(quote byte) (string, error) {
	s.pos++ // opening quote
	var b strings.Builder
	for s.pos < len(s.input) {
		c := s.input[s.pos]
		switch c {
		case quote:
			s.pos++
			return b.String(), nil
		case '\\':
			s.pos++
			if s.pos >= len(s.input) {
				return "", eris.New("parser: unterminated escape")
			}
			esc := s.input[s.pos]
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'u':
				if s.pos+4 >= len(s.input) {
					return "", eris.New("parser: truncated unicode escape")
				}
				code, err := strconv.ParseUint(s.input[s.pos+1:s.pos+5], 16, 32)
				if err != nil {
					return "", eris.Wrap(err, "parser: unicode escape")
				}
				b.WriteRune(rune(code))
				s.pos += 4
			default:
				b.WriteByte(esc)
			}
			s.pos++
		default:
			b.WriteByte(c)
			s.pos++
		}
	}
	return "", eris.New("parser: unterminated string")
}

func (s *literalScanner) number() (float64, error) {
	start := s.pos
	if c, ok := s.peek(); ok && c == '-' {
		s.pos++
	}
	for s.pos < len(s.input) {
		c := s.input[s.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-' {
			s.pos++
			continue
		}
		break
	}
	n, err := strconv.ParseFloat(s.input[start:s.pos], 64)
	if err != nil {
		return 0, eris.Errorf("parser: invalid number %q", s.input[start:s.pos])
	}
	return n, nil
}

func (s *literalScanner) bareword() (any, error) {
	start := s.pos
	for s.pos < len(s.input) && isIdentChar(s.input[s.pos]) {
		s.pos++
	}
	word := s.input[start:s.pos]
	switch strings.ToLower(word) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null", "nil":
		return nil, nil
	case "":
		return nil, eris.Errorf("parser: unexpected character %q at offset %d", s.input[start], start)
	default:
		return nil, eris.Errorf("parser: unknown token %q at offset %d", word, start)
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
