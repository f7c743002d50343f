package extractor

import "github.com/betagouv/quotecheck/internal/model"

// Merge combines per-strategy attributes into the canonical detected
// view. Keyed by field name, so strategy completion order is
// irrelevant; precedence on a shared key is naive < private < general,
// matching how much context each source had. The gestes sequence comes
// only from the general extractor: the other strategies never detect
// works and must not mask an empty detection.
func Merge(naive, private, general model.Attributes) model.Attributes {
	merged := model.Attributes{}
	for _, attrs := range []model.Attributes{naive, private, general} {
		for k, v := range attrs {
			if k == "gestes" {
				continue
			}
			merged[k] = v
		}
	}

	if general != nil {
		if gestes, ok := general["gestes"]; ok {
			merged["gestes"] = gestes
		}
	}

	if len(merged) == 0 {
		return nil
	}
	return merged
}
