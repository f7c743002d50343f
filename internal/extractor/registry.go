package extractor

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/betagouv/quotecheck/internal/config"
	"github.com/betagouv/quotecheck/pkg/albert"
	"github.com/betagouv/quotecheck/pkg/anthropic"
	"github.com/betagouv/quotecheck/pkg/mistral"
)

// Registry holds the ordered list of active strategies for a deployment
// plus the shared throttle on remote model calls. It is built once from
// explicit configuration; there is no ambient strategy state.
type Registry struct {
	strategies []Strategy
	throttle   Throttle
	required   map[string]bool
}

// NewRegistry builds the strategy set from configuration. Strategies
// whose credentials are missing are constructed anyway and report
// Configured() == false, so the pipeline can log the skip instead of
// silently narrowing coverage.
func NewRegistry(cfg *config.Config) *Registry {
	var albertClient albert.Client
	if cfg.Albert.Key != "" {
		albertClient = albert.NewClient(cfg.Albert.Key, albert.WithBaseURL(cfg.Albert.BaseURL), albert.WithModel(cfg.Albert.Model))
	}

	var general Strategy
	if cfg.Extraction.GeneralBackend == "anthropic" {
		var claude anthropic.Client
		if cfg.Anthropic.Key != "" {
			claude = anthropic.NewClient(cfg.Anthropic.Key)
		}
		general = NewGeneralQAAnthropic(claude, cfg.Anthropic.Model)
	} else {
		var mistralClient mistral.Client
		if cfg.Mistral.Key != "" {
			mistralClient = mistral.NewClient(cfg.Mistral.Key, mistral.WithBaseURL(cfg.Mistral.BaseURL), mistral.WithModel(cfg.Mistral.Model))
		}
		general = NewGeneralQA(mistralClient, cfg.Mistral.Model)
	}

	required := make(map[string]bool, len(cfg.Extraction.Required))
	for _, name := range cfg.Extraction.Required {
		required[name] = true
	}

	return &Registry{
		strategies: []Strategy{
			NewNaive(),
			NewPrivateQA(albertClient, cfg.Albert.Model),
			general,
		},
		throttle: rate.NewLimiter(rate.Limit(cfg.Extraction.RequestsPerSecond), cfg.Extraction.RequestBurst),
		required: required,
	}
}

// NewRegistryWith builds a registry from explicit strategies, used by
// tests and fixture replays. A nil throttle disables throttling.
func NewRegistryWith(throttle Throttle, required []string, strategies ...Strategy) *Registry {
	if throttle == nil {
		throttle = noThrottle{}
	}
	req := make(map[string]bool, len(required))
	for _, name := range required {
		req[name] = true
	}
	return &Registry{strategies: strategies, throttle: throttle, required: req}
}

// Active returns the configured strategies, in registry order.
// Unconfigured ones are skipped with a warning.
func (r *Registry) Active() []Strategy {
	active := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		if !s.Configured() {
			zap.L().Warn("extractor: strategy not configured, skipping", zap.String("strategy", s.Name()))
			continue
		}
		active = append(active, s)
	}
	return active
}

// Required reports whether a strategy's failure must abort the whole
// run instead of being recorded against that strategy only.
func (r *Registry) Required(name string) bool {
	return r.required[name]
}

// Extract runs one strategy against text, waiting on the shared
// throttle first for remote strategies. The offline extractor bypasses
// the throttle: it consumes no external quota.
func (r *Registry) Extract(ctx context.Context, s Strategy, text string) (*Result, error) {
	if s.Name() != NameNaive {
		if err := r.throttle.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return s.Extract(ctx, text)
}
