// Package regression compares a quote check's latest validation errors
// against an operator-supplied expected snapshot. Comparison is by the
// findings' stable ids, so it survives reordering and rewording.
package regression

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/rotisserie/eris"

	"github.com/betagouv/quotecheck/internal/model"
	"github.com/betagouv/quotecheck/internal/store"
)

// ErrInvalidPayload rejects an expected-errors upload that is not a
// strict JSON array of validation error details.
var ErrInvalidPayload = errors.New("expected errors payload invalid")

// ErrNoExpected means no expected snapshot was ever recorded for the
// quote check, so there is nothing to diff against.
var ErrNoExpected = errors.New("no expected validation errors recorded")

// Diff is the id-set comparison between a run and its expected
// snapshot. Missing ids were expected but not produced, Unexpected were
// produced but not expected.
type Diff struct {
	Missing    []string `json:"missing"`
	Unexpected []string `json:"unexpected"`
	Matching   []string `json:"matching"`
}

// Clean reports whether the run reproduced exactly the expected set.
func (d Diff) Clean() bool {
	return len(d.Missing) == 0 && len(d.Unexpected) == 0
}

// Compare diffs actual findings against expected ones by id. Missing
// and Matching follow expected order, Unexpected follows actual order.
func Compare(actual, expected []model.ValidationErrorDetail) Diff {
	actualIDs := idSet(actual)
	expectedIDs := idSet(expected)

	var diff Diff
	seen := make(map[string]bool)
	for _, e := range expected {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		if actualIDs[e.ID] {
			diff.Matching = append(diff.Matching, e.ID)
		} else {
			diff.Missing = append(diff.Missing, e.ID)
		}
	}
	seen = make(map[string]bool)
	for _, a := range actual {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		if !expectedIDs[a.ID] {
			diff.Unexpected = append(diff.Unexpected, a.ID)
		}
	}
	return diff
}

func idSet(details []model.ValidationErrorDetail) map[string]bool {
	ids := make(map[string]bool, len(details))
	for _, d := range details {
		ids[d.ID] = true
	}
	return ids
}

// Harness wires the diff to stored quote checks.
type Harness struct {
	store store.Store
}

// New creates a Harness.
func New(st store.Store) *Harness {
	return &Harness{store: st}
}

// SetExpected strict-parses payload as a JSON array of validation error
// details and records it as the quote check's expected snapshot.
// Rechecks never touch the snapshot; only this operation replaces it.
func (h *Harness) SetExpected(ctx context.Context, quoteCheckID string, payload []byte) ([]model.ValidationErrorDetail, error) {
	expected, err := parseExpected(payload)
	if err != nil {
		return nil, err
	}
	if err := h.store.SetExpectedValidationErrors(ctx, quoteCheckID, expected); err != nil {
		return nil, err
	}
	return expected, nil
}

// Run diffs the quote check's current validation errors against its
// expected snapshot.
func (h *Harness) Run(ctx context.Context, quoteCheckID string) (*Diff, error) {
	qc, err := h.store.GetQuoteCheck(ctx, quoteCheckID)
	if err != nil {
		return nil, err
	}
	if qc.ExpectedValidationErrors == nil {
		return nil, eris.Wrapf(ErrNoExpected, "regression: quote check %s", quoteCheckID)
	}
	diff := Compare(qc.ValidationErrors, qc.ExpectedValidationErrors)
	return &diff, nil
}

// parseExpected decodes the upload strictly: one JSON array, known
// fields only, every entry carrying an id, no trailing data.
func parseExpected(payload []byte) ([]model.ValidationErrorDetail, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()

	var expected []model.ValidationErrorDetail
	if err := dec.Decode(&expected); err != nil {
		return nil, eris.Wrapf(ErrInvalidPayload, "regression: %v", err)
	}
	if err := dec.Decode(new(json.RawMessage)); err != io.EOF {
		return nil, eris.Wrap(ErrInvalidPayload, "regression: trailing data after array")
	}
	for i, e := range expected {
		if e.ID == "" {
			return nil, eris.Wrapf(ErrInvalidPayload, "regression: entry %d has no id", i)
		}
	}
	return expected, nil
}
