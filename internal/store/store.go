package store

import (
	"context"
	"errors"

	"github.com/betagouv/quotecheck/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a state transition loses against the
// current stored status, e.g. starting a run on a quote check that is
// already processing. It enforces the single-active-run rule at the
// storage boundary.
var ErrConflict = errors.New("conflicting quote check state")

// QuoteCheckFilter specifies criteria for listing quote checks.
type QuoteCheckFilter struct {
	Status       model.Status `json:"status,omitempty"`
	Profile      string       `json:"profile,omitempty"`
	WithExpected bool         `json:"with_expected,omitempty"`
	Limit        int          `json:"limit,omitempty"`
	Offset       int          `json:"offset,omitempty"`
}

// Store defines the persistence interface for quote checks and their
// feedback.
type Store interface {
	// Quote checks
	CreateQuoteCheck(ctx context.Context, qc model.QuoteCheck) (*model.QuoteCheck, error)
	GetQuoteCheck(ctx context.Context, id string) (*model.QuoteCheck, error)
	ListQuoteChecks(ctx context.Context, filter QuoteCheckFilter) ([]model.QuoteCheck, error)

	// BeginProcessing transitions pending → processing; ErrConflict when
	// the stored status is anything else.
	BeginProcessing(ctx context.Context, id string) error
	// ResetForRecheck returns a terminal quote check to pending without
	// touching feedback or the expected-errors snapshot.
	ResetForRecheck(ctx context.Context, id string) error
	// UpdateResult persists a finished run: attributes, validation
	// errors, metrics and the outcome status.
	UpdateResult(ctx context.Context, qc *model.QuoteCheck) error

	// SetExpectedValidationErrors stores the operator-supplied snapshot
	// used by the regression harness.
	SetExpectedValidationErrors(ctx context.Context, id string, errors []model.ValidationErrorDetail) error

	// Feedback
	CreateFeedback(ctx context.Context, fb model.Feedback) (*model.Feedback, error)
	ListFeedbacks(ctx context.Context, quoteCheckID string) ([]model.Feedback, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
