package extractor

import "regexp"

// Anonymise masks the personal identifiers the offline patterns can
// reach. The result is what review tooling displays instead of the raw
// quote text; extraction always runs on the original.
func Anonymise(text string) string {
	for _, m := range []struct {
		pattern *regexp.Regexp
		mask    string
	}{
		{emailPattern, "[EMAIL]"},
		{phonePattern, "[TELEPHONE]"},
		{siretPattern, "[SIRET]"},
	} {
		text = m.pattern.ReplaceAllString(text, m.mask)
	}
	return text
}
