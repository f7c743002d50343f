package model

// Attributes is a structured attribute mapping produced by an extraction
// strategy or by the merger. Values are plain JSON-shaped data: strings,
// numbers, bools, []any, map[string]any.
type Attributes map[string]any

// Gestes returns the detected work items as a slice of objects. The
// second return is false when the gestes entry is absent or not a
// sequence of objects, which callers treat as structurally unusable.
func (a Attributes) Gestes() ([]map[string]any, bool) {
	raw, ok := a["gestes"]
	if !ok {
		return nil, false
	}
	seq, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	gestes := make([]map[string]any, 0, len(seq))
	for _, item := range seq {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		gestes = append(gestes, obj)
	}
	return gestes, true
}

// GesteTypes returns the type of each detected geste, in detection order,
// skipping entries without a string type.
func (a Attributes) GesteTypes() []string {
	gestes, ok := a.Gestes()
	if !ok {
		return nil
	}
	var types []string
	for _, g := range gestes {
		if t, ok := g["type"].(string); ok && t != "" {
			types = append(types, t)
		}
	}
	return types
}

// Clone returns a shallow copy one level deep, enough for merge callers
// that overwrite top-level keys.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
