// Package validator diff-checks detected attributes against what the
// submitter asked to have checked, and produces findings whose ids are
// stable across reruns.
package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/betagouv/quotecheck/internal/model"
)

// ErrBadInput indicates detected attributes too malformed to validate.
// The run ends in error rather than emitting a partial finding list.
var ErrBadInput = errors.New("detected attributes structurally unusable")

// Finding codes.
const (
	CodeGesteManquant  = "geste_manquant"
	CodeGesteInattendu = "geste_inattendu"
	CodeGesteIncomplet = "geste_incomplet"
	CodeAideManquante  = "aide_manquante"
	CodeAideInattendue = "aide_inattendue"
)

// Validator compares detected attributes against declared metadata.
type Validator struct {
	rules Rules
}

// New creates a validator with the given geste rule table.
func New(rules Rules) *Validator {
	return &Validator{rules: rules}
}

// Validate returns the ordered finding list for one quote. Identical
// inputs always produce the identical id set: ids derive from each
// finding's content, never from its position.
func (v *Validator) Validate(detected model.Attributes, metadata model.Metadata) ([]model.ValidationErrorDetail, error) {
	detectedGestes, err := gesteSequence(detected)
	if err != nil {
		return nil, err
	}

	var findings []model.ValidationErrorDetail

	detectedTypes := make(map[string]bool)
	for _, g := range detectedGestes {
		if t, ok := g["type"].(string); ok && t != "" {
			detectedTypes[t] = true
		}
	}
	requestedTypes := make(map[string]bool, len(metadata.Gestes))
	for _, t := range metadata.Gestes {
		requestedTypes[t] = true
	}

	// Requested but not detected, in request order.
	for _, t := range metadata.Gestes {
		if !detectedTypes[t] {
			findings = append(findings, newFinding(
				CodeGesteManquant, "gestes", "error",
				fmt.Sprintf("Geste demandé non détecté dans le devis : %s", t),
				t, "", ""))
		}
	}

	// Detected but not requested, in detection order, one finding per
	// type.
	reported := make(map[string]bool)
	for _, g := range detectedGestes {
		t, ok := g["type"].(string)
		if !ok || t == "" {
			continue
		}
		if !requestedTypes[t] && !reported[t] {
			reported[t] = true
			findings = append(findings, newFinding(
				CodeGesteInattendu, "gestes", "warning",
				fmt.Sprintf("Geste détecté mais non demandé : %s", t),
				t, "", ""))
		}
	}

	// Structurally invalid detected entries: required sub-fields per
	// geste type.
	incomplete := make(map[string]bool)
	for _, g := range detectedGestes {
		t, ok := g["type"].(string)
		if !ok || t == "" {
			if !incomplete["|type"] {
				incomplete["|type"] = true
				findings = append(findings, newFinding(
					CodeGesteIncomplet, "gestes", "error",
					"Geste détecté sans type", "", "", "type"))
			}
			continue
		}
		rule, ok := v.rules[t]
		if !ok {
			continue
		}
		for _, field := range rule.RequiredFields {
			if missingField(g, field) {
				key := t + "|" + field
				if incomplete[key] {
					continue
				}
				incomplete[key] = true
				findings = append(findings, newFinding(
					CodeGesteIncomplet, "gestes", "error",
					fmt.Sprintf("Champ requis manquant pour le geste %s : %s", t, field),
					t, "", field))
			}
		}
	}

	// Aides, by identifier, both directions.
	detectedAides := aideSet(detected)
	for _, a := range metadata.Aides {
		if !detectedAides[a] {
			findings = append(findings, newFinding(
				CodeAideManquante, "aides", "error",
				fmt.Sprintf("Aide demandée non détectée dans le devis : %s", a),
				"", a, ""))
		}
	}
	reportedAides := make(map[string]bool)
	for _, a := range aideList(detected) {
		if containsString(metadata.Aides, a) || reportedAides[a] {
			continue
		}
		reportedAides[a] = true
		findings = append(findings, newFinding(
			CodeAideInattendue, "aides", "warning",
			fmt.Sprintf("Aide détectée mais non demandée : %s", a),
			"", a, ""))
	}

	return findings, nil
}

// newFinding assembles a finding with its content-derived id.
func newFinding(code, category, severity, title, geste, aide, field string) model.ValidationErrorDetail {
	return model.ValidationErrorDetail{
		ID:       FindingID(code, geste, aide, field),
		Code:     code,
		Category: category,
		Severity: severity,
		Title:    title,
		Geste:    geste,
		Aide:     aide,
		Field:    field,
	}
}

// FindingID derives the stable identifier for a finding. Feedback and
// the regression harness reference findings by this id across reruns,
// so it hashes the finding's content, never its list position.
func FindingID(code, geste, aide, field string) string {
	sum := sha256.Sum256([]byte(code + "|" + geste + "|" + aide + "|" + field))
	return code + "-" + hex.EncodeToString(sum[:])[:12]
}

// gesteSequence extracts detected gestes, failing fast when the entry
// exists but is not a sequence of objects. A fully absent gestes key is
// an empty detection, not a structural failure.
func gesteSequence(detected model.Attributes) ([]map[string]any, error) {
	if detected == nil {
		return nil, nil
	}
	if _, present := detected["gestes"]; !present {
		return nil, nil
	}
	gestes, ok := detected.Gestes()
	if !ok {
		return nil, eris.Wrapf(ErrBadInput, "validator: gestes is not a sequence of objects: %T", detected["gestes"])
	}
	return gestes, nil
}

// missingField reports whether a required sub-field is absent, null or
// blank on a detected geste.
func missingField(geste map[string]any, field string) bool {
	v, ok := geste[field]
	if !ok || v == nil {
		return true
	}
	if s, ok := v.(string); ok && s == "" {
		return true
	}
	return false
}

func aideList(detected model.Attributes) []string {
	raw, ok := detected["aides"].([]any)
	if !ok {
		return nil
	}
	var aides []string
	for _, a := range raw {
		if s, ok := a.(string); ok && s != "" {
			aides = append(aides, s)
		}
	}
	return aides
}

func aideSet(detected model.Attributes) map[string]bool {
	set := make(map[string]bool)
	for _, a := range aideList(detected) {
		set[a] = true
	}
	return set
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
