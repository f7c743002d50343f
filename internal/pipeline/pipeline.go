// Package pipeline drives one quote check from pending to a terminal
// status: extraction fan-out, attribute merge, validation, persistence.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/betagouv/quotecheck/internal/config"
	"github.com/betagouv/quotecheck/internal/extractor"
	"github.com/betagouv/quotecheck/internal/model"
	"github.com/betagouv/quotecheck/internal/resilience"
	"github.com/betagouv/quotecheck/internal/store"
	"github.com/betagouv/quotecheck/internal/validator"
)

// Pipeline orchestrates the extraction strategies and the validator for
// stored quote checks.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	registry *extractor.Registry
	validate *validator.Validator
	version  string
}

// New creates a Pipeline. version tags every finished run so regression
// diffs can tell which build produced which error set.
func New(cfg *config.Config, st store.Store, reg *extractor.Registry, v *validator.Validator, version string) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		registry: reg,
		validate: v,
		version:  version,
	}
}

// Run executes the full check for one pending quote check. The store
// guard rejects a second concurrent run on the same record with
// store.ErrConflict.
func (p *Pipeline) Run(ctx context.Context, id string) (*model.QuoteCheck, error) {
	qc, err := p.store.GetQuoteCheck(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.store.BeginProcessing(ctx, id); err != nil {
		return nil, err
	}

	// A recheck starts from a clean slate: everything the previous run
	// produced is replaced, never accumulated or carried over.
	qc.TokensCount = 0
	qc.NaiveAttributes = nil
	qc.PrivateDataQAAttributes = nil
	qc.PrivateDataQAResult = ""
	qc.QAAttributes = nil
	qc.QAResult = ""
	qc.ReadAttributes = nil
	qc.ValidationErrors = nil

	start := time.Now()
	log := zap.L().With(zap.String("quote_check_id", id))
	log.Info("pipeline: starting quote check", zap.String("profile", qc.Profile))

	// The general strategy talks to a model outside sovereign hosting,
	// so it only ever sees the masked text.
	qc.AnonymisedText = extractor.Anonymise(qc.Text)

	results, err := p.extract(ctx, qc.Text, qc.AnonymisedText, log)
	if err != nil {
		return p.fail(ctx, qc, start, log, err)
	}

	var naive, private, general model.Attributes
	if r := results[extractor.NameNaive]; r != nil {
		naive = r.Attributes
		qc.NaiveAttributes = r.Attributes
	}
	if r := results[extractor.NamePrivateQA]; r != nil {
		private = r.Attributes
		qc.PrivateDataQAAttributes = r.Attributes
		qc.PrivateDataQAResult = r.RawResponse
		qc.TokensCount += r.Tokens
	}
	if r := results[extractor.NameGeneralQA]; r != nil {
		general = r.Attributes
		qc.QAAttributes = r.Attributes
		qc.QAResult = r.RawResponse
		qc.TokensCount += r.Tokens
	}
	qc.ReadAttributes = extractor.Merge(naive, private, general)

	findings, err := p.validate.Validate(qc.ReadAttributes, qc.Metadata)
	if err != nil {
		return p.fail(ctx, qc, start, log, eris.Wrap(err, "pipeline: validate"))
	}
	qc.ValidationErrors = findings
	if len(findings) == 0 {
		qc.Status = model.StatusValid
	} else {
		qc.Status = model.StatusInvalid
	}

	qc.ProcessingTime = time.Since(start).Seconds()
	qc.ApplicationVersion = p.version
	if err := p.store.UpdateResult(ctx, qc); err != nil {
		return nil, eris.Wrap(err, "pipeline: save result")
	}

	log.Info("pipeline: quote check complete",
		zap.String("status", string(qc.Status)),
		zap.Int("validation_errors", len(findings)),
		zap.Int("tokens", qc.TokensCount),
		zap.Float64("processing_time", qc.ProcessingTime),
	)
	return qc, nil
}

// Recheck resets a finished quote check to pending and runs it again.
// Feedback records and the expected-errors snapshot are left untouched;
// only the detected attributes and validation errors are replaced.
func (p *Pipeline) Recheck(ctx context.Context, id string) (*model.QuoteCheck, error) {
	if err := p.store.ResetForRecheck(ctx, id); err != nil {
		return nil, err
	}
	return p.Run(ctx, id)
}

// extract fans the active strategies out concurrently and collects each
// one's result. A failed optional strategy is logged and recorded as
// absent; a failed required strategy aborts the whole run.
func (p *Pipeline) extract(ctx context.Context, text, anonymised string, log *zap.Logger) (map[string]*extractor.Result, error) {
	retryCfg := resilience.RetryConfig{
		MaxAttempts: p.cfg.Extraction.MaxCallRetries + 1,
		// Only transport failures are worth another call. An unparseable
		// reply is fatal for the run; re-prompting would hide it.
		ShouldRetry: resilience.IsTransient,
	}

	results := make(map[string]*extractor.Result)
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	for _, s := range p.registry.Active() {
		g.Go(func() error {
			callCtx := gCtx
			if secs := p.cfg.Extraction.CallTimeoutSecs; secs > 0 && s.Name() != extractor.NameNaive {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gCtx, time.Duration(secs)*time.Second)
				defer cancel()
			}

			input := text
			if s.Name() == extractor.NameGeneralQA {
				input = anonymised
			}

			cfg := retryCfg
			cfg.OnRetry = resilience.RetryLogger(s.Name(), "extract")
			strategyStart := time.Now()
			res, err := resilience.DoVal(callCtx, cfg, func(ctx context.Context) (*extractor.Result, error) {
				return p.registry.Extract(ctx, s, input)
			})
			if err != nil {
				if p.registry.Required(s.Name()) {
					return eris.Wrapf(err, "pipeline: required strategy %s", s.Name())
				}
				log.Warn("pipeline: strategy failed",
					zap.String("strategy", s.Name()),
					zap.Error(err),
				)
				return nil
			}

			mu.Lock()
			results[s.Name()] = res
			mu.Unlock()
			log.Info("pipeline: strategy complete",
				zap.String("strategy", s.Name()),
				zap.Int("tokens", res.Tokens),
				zap.Int64("duration_ms", time.Since(strategyStart).Milliseconds()),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// fail records a terminal error status with whatever partial state the
// run produced, then surfaces the cause.
func (p *Pipeline) fail(ctx context.Context, qc *model.QuoteCheck, start time.Time, log *zap.Logger, cause error) (*model.QuoteCheck, error) {
	qc.Status = model.StatusError
	qc.ProcessingTime = time.Since(start).Seconds()
	qc.ApplicationVersion = p.version
	if err := p.store.UpdateResult(ctx, qc); err != nil {
		log.Warn("pipeline: failed to save error status", zap.Error(err))
	}
	log.Error("pipeline: quote check failed", zap.Error(cause))
	return qc, cause
}
