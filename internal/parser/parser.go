// Package parser turns free-form language-model output into structured
// attributes. Models are unreliable about formats: the same prompt can
// come back as a numbered markdown list, a bare JSON object, or a JSON-ish
// literal wrapped in a code fence. Each path here is a pure function of
// its input text.
package parser

import (
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/betagouv/quotecheck/internal/model"
)

// ErrResult indicates model output that could not be parsed into
// structured data. Fatal for the owning run; not retried.
var ErrResult = errors.New("unparseable model result")

// Format selects how a model reply is interpreted.
type Format string

const (
	FormatNumberedList Format = "numbered_list"
	FormatJSON         Format = "json"
)

// numberedLinePattern matches one finding line of a numbered markdown
// list: `<number>. ... **<label>** : <value>`.
var numberedLinePattern = regexp.MustCompile(`(?m)^\s*(\d+)\.\s.*?\*\*(.*?)\*\*\s*:\s*(.*)$`)

// Item is one entry of a parsed numbered list.
type Item struct {
	Number int      `json:"number"`
	Label  string   `json:"label"`
	Values []string `json:"values"`
}

// ExtractNumberedList scans text for numbered `**label** : value` lines
// and returns them sorted ascending by their leading number. Input line
// order is not trusted; models renumber and reorder freely. Empty input
// or no matches yields an empty slice, not an error.
//
// Each value is split on the first separator found among "/" and ",",
// checked in that priority order, defaulting to "," when neither
// appears.
func ExtractNumberedList(text string) []Item {
	matches := numberedLinePattern.FindAllStringSubmatch(text, -1)
	items := make([]Item, 0, len(matches))
	for _, m := range matches {
		number, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		items = append(items, Item{
			Number: number,
			Label:  m[2],
			Values: splitValues(m[3]),
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Number < items[j].Number })
	return items
}

// splitValues splits a raw value on its detected separator, trimming
// whitespace around each token.
func splitValues(value string) []string {
	sep := ","
	for _, candidate := range []string{"/", ","} {
		if strings.Contains(value, candidate) {
			sep = candidate
			break
		}
	}
	parts := strings.Split(value, sep)
	values := make([]string, len(parts))
	for i, p := range parts {
		values[i] = strings.TrimSpace(p)
	}
	return values
}

// ByLabel re-keys items by label. On duplicate labels the last
// occurrence (after number sorting) wins.
func ByLabel(items []Item) model.Attributes {
	attrs := make(model.Attributes, len(items))
	for _, item := range items {
		attrs[item.Label] = item.Values
	}
	return attrs
}

// fencedBlockPattern detects a model reply wrapped in a pseudo-code
// fence, the case where strict JSON parsing is known to fail.
var fencedBlockPattern = regexp.MustCompile("(?i)```(?:jsx?|json)?\\s*\\n")

// objectSpanPattern grabs the outermost brace span, greedily, across
// newlines.
var objectSpanPattern = regexp.MustCompile(`(?s)(\{.+\})`)

// ExtractJSON parses a model reply expected to contain one object.
//
// When the reply carries a code fence, the brace span inside it is read
// by the tolerant literal parser (unquoted keys, trailing commas, a
// null-like token) because fenced output is routinely not strict JSON.
// Otherwise the first balanced brace span is parsed as strict JSON.
// Either way a failure is ErrResult carrying the offending substring.
func ExtractJSON(text string) (model.Attributes, error) {
	if fencedBlockPattern.MatchString(text) {
		span := objectSpanPattern.FindString(text)
		if span != "" {
			value, err := ParseLiteral(span)
			if err != nil {
				return nil, eris.Wrapf(ErrResult, "parser: literal inside fence: %s (%v)", truncate(span), err)
			}
			obj, ok := value.(map[string]any)
			if !ok {
				return nil, eris.Wrapf(ErrResult, "parser: fenced literal is not an object: %s", truncate(span))
			}
			return model.Attributes(obj), nil
		}
	}

	span := balancedObjectSpan(text)
	if span == "" {
		return nil, eris.Wrapf(ErrResult, "parser: no object found in content: %s", truncate(text))
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(span), &obj); err != nil {
		return nil, eris.Wrapf(ErrResult, "parser: parsing JSON inside content: %s", truncate(span))
	}
	return model.Attributes(obj), nil
}

// Parse applies the requested format to content.
func Parse(content string, format Format) (model.Attributes, error) {
	switch format {
	case FormatNumberedList:
		return ByLabel(ExtractNumberedList(content)), nil
	case FormatJSON:
		return ExtractJSON(content)
	default:
		return nil, eris.Errorf("parser: invalid result format %q", format)
	}
}

// balancedObjectSpan returns the first balanced top-level {...} span in
// text, or "" when none closes. Brace tracking ignores braces inside
// string literals.
func balancedObjectSpan(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// truncate keeps diagnostics readable when the offending substring is a
// whole model reply.
func truncate(s string) string {
	const max = 500
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
