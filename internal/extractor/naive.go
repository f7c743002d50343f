package extractor

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/betagouv/quotecheck/internal/model"
)

// NaiveStrategy is the deterministic offline extractor. It reads the
// administrative fields a rule can reach reliably (SIRET, phone, email,
// RGE qualification, quote number, dates) and never calls a model, so it
// stays available even when every remote strategy is down. Its output is
// also what the anonymisation review compares against.
type NaiveStrategy struct{}

// NewNaive creates the offline extractor.
func NewNaive() *NaiveStrategy {
	return &NaiveStrategy{}
}

func (s *NaiveStrategy) Name() string { return NameNaive }

// Configured is always true: no credentials, no network.
func (s *NaiveStrategy) Configured() bool { return true }

var (
	siretPattern       = regexp.MustCompile(`\b\d{3}[ .]?\d{3}[ .]?\d{3}[ .]?\d{5}\b`)
	phonePattern       = regexp.MustCompile(`(?:\+33[ .]?|0)[1-9](?:[ .-]?\d{2}){4}\b`)
	emailPattern       = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	rgePattern         = regexp.MustCompile(`(?i)\bRGE\b[ :n°o]*([A-Z]*[-/]?\d{4,}[A-Z0-9/-]*)`)
	quoteNumberPattern = regexp.MustCompile(`(?i)\bdevis\b[ :n°o]*([A-Z0-9][A-Z0-9-]{2,})`)
	datePattern        = regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b`)
)

// foldAccents strips combining marks so keyword-anchored patterns match
// both "N°" blocks and accented French labels uniformly.
var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func (s *NaiveStrategy) Extract(_ context.Context, text string) (*Result, error) {
	folded, _, err := transform.String(foldAccents, text)
	if err != nil {
		// Fold failures leave the raw text usable.
		folded = text
	}

	attrs := model.Attributes{}
	put := func(key string, values []string) {
		if len(values) > 0 {
			attrs[key] = dedupe(values)
		}
	}

	put("sirets", siretPattern.FindAllString(folded, -1))
	put("telephones", phonePattern.FindAllString(folded, -1))
	put("emails", emailPattern.FindAllString(folded, -1))
	put("rge_numbers", captures(rgePattern, folded))
	put("numero_devis", captures(quoteNumberPattern, folded))
	put("dates", datePattern.FindAllString(folded, -1))

	return &Result{Attributes: attrs}, nil
}

func captures(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		v := strings.TrimSpace(m[1])
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func dedupe(values []string) []any {
	seen := make(map[string]bool, len(values))
	out := make([]any, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
