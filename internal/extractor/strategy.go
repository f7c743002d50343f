// Package extractor holds the extraction strategies that turn quote text
// into structured attributes, and the merger that combines their
// outputs. Strategies are interchangeable: the pipeline only sees the
// Strategy interface and records each one's result or failure
// independently.
package extractor

import (
	"context"
	"errors"

	"github.com/betagouv/quotecheck/internal/model"
)

// Strategy names, used for per-strategy result attribution and the
// required-strategy configuration.
const (
	NameNaive     = "naive"
	NamePrivateQA = "private_data_qa"
	NameGeneralQA = "general_qa"
)

// ErrNotConfigured is returned when a strategy's backing model or
// credentials are unavailable.
var ErrNotConfigured = errors.New("strategy not configured")

// Result is one strategy's output for a quote.
type Result struct {
	Attributes  model.Attributes
	RawResponse string
	Tokens      int
}

// Strategy produces structured attributes from quote text.
type Strategy interface {
	Name() string
	// Configured reports whether the strategy can run (credentials and
	// model available). Unconfigured strategies are skipped, not failed.
	Configured() bool
	Extract(ctx context.Context, text string) (*Result, error)
}

// Throttle gates remote model calls. A *rate.Limiter satisfies it; the
// shared limiter caps external-model volume independently of how many
// quote checks run concurrently.
type Throttle interface {
	Wait(ctx context.Context) error
}

// noThrottle is used when no limiter is supplied.
type noThrottle struct{}

func (noThrottle) Wait(context.Context) error { return nil }
