// Package feedback records human input against individual validation
// errors. Correlation is by the finding's stable id, so a feedback
// submitted on an old run still attaches if the rerun reproduced the
// same finding.
package feedback

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/betagouv/quotecheck/internal/model"
	"github.com/betagouv/quotecheck/internal/store"
)

// ErrInvalidRating rejects ratings outside the 0-5 scale.
var ErrInvalidRating = errors.New("rating must be between 0 and 5")

// Payload is the submitter-provided part of a feedback.
type Payload struct {
	IsHelpful     *bool  `json:"is_helpful,omitempty"`
	Comment       string `json:"comment,omitempty"`
	Rating        *int   `json:"rating,omitempty"`
	Email         string `json:"email,omitempty"`
	ProvidedValue string `json:"provided_value,omitempty"`
}

// Correlator attaches feedback to validation error details.
type Correlator struct {
	store store.Store
}

// New creates a Correlator.
func New(st store.Store) *Correlator {
	return &Correlator{store: st}
}

// Attach records feedback against one validation error of a quote
// check. The detail id must appear in the quote check's current error
// set: a stale id from a superseded run gets store.ErrNotFound and
// nothing is written.
func (c *Correlator) Attach(ctx context.Context, quoteCheckID, detailID string, payload Payload) (*model.Feedback, error) {
	if payload.Rating != nil && (*payload.Rating < 0 || *payload.Rating > 5) {
		return nil, eris.Wrapf(ErrInvalidRating, "feedback: rating %d", *payload.Rating)
	}

	qc, err := c.store.GetQuoteCheck(ctx, quoteCheckID)
	if err != nil {
		return nil, err
	}
	if !hasDetail(qc.ValidationErrors, detailID) {
		return nil, eris.Wrapf(store.ErrNotFound, "feedback: validation error detail %s on quote check %s", detailID, quoteCheckID)
	}

	fb, err := c.store.CreateFeedback(ctx, model.Feedback{
		QuoteCheckID:             quoteCheckID,
		ValidationErrorDetailsID: detailID,
		IsHelpful:                payload.IsHelpful,
		Comment:                  payload.Comment,
		Rating:                   payload.Rating,
		Email:                    payload.Email,
		ProvidedValue:            payload.ProvidedValue,
	})
	if err != nil {
		return nil, eris.Wrap(err, "feedback: create")
	}
	return fb, nil
}

// List returns all feedback recorded for a quote check, oldest first.
func (c *Correlator) List(ctx context.Context, quoteCheckID string) ([]model.Feedback, error) {
	if _, err := c.store.GetQuoteCheck(ctx, quoteCheckID); err != nil {
		return nil, err
	}
	return c.store.ListFeedbacks(ctx, quoteCheckID)
}

func hasDetail(details []model.ValidationErrorDetail, id string) bool {
	for _, d := range details {
		if d.ID == id {
			return true
		}
	}
	return false
}
