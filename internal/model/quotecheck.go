package model

import "time"

// Status represents the current state of a quote check run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusValid      Status = "valid"
	StatusInvalid    Status = "invalid"
	StatusError      Status = "error"
)

// Terminal reports whether the status is an outcome state. A terminal
// quote check is only re-entered through an explicit recheck, which
// resets it to pending.
func (s Status) Terminal() bool {
	switch s {
	case StatusValid, StatusInvalid, StatusError:
		return true
	}
	return false
}

// Metadata carries what the submitter asked to have checked.
type Metadata struct {
	Gestes []string `json:"gestes"`
	Aides  []string `json:"aides"`
}

// QuoteCheck is one record per submitted quote ("devis").
type QuoteCheck struct {
	ID      string `json:"id"`
	Profile string `json:"profile,omitempty"`
	FileRef string `json:"file_ref,omitempty"`

	Text           string   `json:"text"`
	AnonymisedText string   `json:"anonymised_text,omitempty"`
	Metadata       Metadata `json:"metadata"`

	// Per-strategy outputs. Naive is the deterministic offline reader;
	// the QA pairs keep the raw model reply alongside the parsed view.
	NaiveAttributes         Attributes `json:"naive_attributes,omitempty"`
	PrivateDataQAAttributes Attributes `json:"private_data_qa_attributes,omitempty"`
	PrivateDataQAResult     string     `json:"private_data_qa_result,omitempty"`
	QAAttributes            Attributes `json:"qa_attributes,omitempty"`
	QAResult                string     `json:"qa_result,omitempty"`

	// ReadAttributes is the merged detected view used by validation
	// and review tooling.
	ReadAttributes Attributes `json:"read_attributes,omitempty"`

	ValidationErrors []ValidationErrorDetail `json:"validation_errors,omitempty"`

	// ExpectedValidationErrors is an operator-supplied snapshot used only
	// for regression comparison, never merged into ValidationErrors.
	ExpectedValidationErrors []ValidationErrorDetail `json:"expected_validation_errors,omitempty"`

	TokensCount        int     `json:"tokens_count"`
	ProcessingTime     float64 `json:"processing_time"` // seconds
	ApplicationVersion string  `json:"application_version,omitempty"`

	Status     Status     `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ValidationErrorDetail is one finding produced by the validator.
//
// The ID is derived from the finding's content (code, concerned geste or
// aide type, field), not from its position, so identical inputs always
// yield identical ids across reruns. Feedback correlation and the
// regression harness both rely on that stability.
type ValidationErrorDetail struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Title    string `json:"title"`
	Geste    string `json:"geste,omitempty"`
	Aide     string `json:"aide,omitempty"`
	Field    string `json:"field,omitempty"`
	Line     int    `json:"line,omitempty"`
}

// Feedback is human input on one ValidationErrorDetail. Immutable once
// created; it is never deleted when the owning quote check is rerun, so
// it may reference an id absent from the latest error set.
type Feedback struct {
	ID                       string    `json:"id"`
	QuoteCheckID             string    `json:"quote_check_id"`
	ValidationErrorDetailsID string    `json:"validation_error_details_id"`
	IsHelpful                *bool     `json:"is_helpful,omitempty"`
	Comment                  string    `json:"comment,omitempty"`
	Rating                   *int      `json:"rating,omitempty"`
	Email                    string    `json:"email,omitempty"`
	ProvidedValue            string    `json:"provided_value,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
}
