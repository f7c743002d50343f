package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betagouv/quotecheck/internal/config"
	"github.com/betagouv/quotecheck/internal/extractor"
	"github.com/betagouv/quotecheck/internal/model"
	"github.com/betagouv/quotecheck/internal/parser"
	"github.com/betagouv/quotecheck/internal/store"
	"github.com/betagouv/quotecheck/internal/validator"
)

type stubStrategy struct {
	name   string
	result *extractor.Result
	err    error
}

func (s *stubStrategy) Name() string     { return s.name }
func (s *stubStrategy) Configured() bool { return true }
func (s *stubStrategy) Extract(context.Context, string) (*extractor.Result, error) {
	return s.result, s.err
}

// countingStrategy records how many times it was invoked.
type countingStrategy struct {
	name  string
	calls int
	err   error
}

func (s *countingStrategy) Name() string     { return s.name }
func (s *countingStrategy) Configured() bool { return true }
func (s *countingStrategy) Extract(context.Context, string) (*extractor.Result, error) {
	s.calls++
	return nil, s.err
}

// captureStrategy records the text it was given.
type captureStrategy struct {
	name    string
	result  *extractor.Result
	gotText string
}

func (s *captureStrategy) Name() string     { return s.name }
func (s *captureStrategy) Configured() bool { return true }
func (s *captureStrategy) Extract(_ context.Context, text string) (*extractor.Result, error) {
	s.gotText = text
	return s.result, nil
}

func heatPumpGeneralResult() *extractor.Result {
	return &extractor.Result{
		Attributes: model.Attributes{
			"gestes": []any{
				map[string]any{
					"type":      "pac_air_eau",
					"marque":    "Atlantic",
					"reference": "Alfea Excellia",
					"puissance": 6.0,
					"scop":      4.5,
				},
			},
			"aides": []any{"ma_prime_renov"},
		},
		RawResponse: `{"gestes": [...]}`,
		Tokens:      150,
	}
}

func newTestPipeline(t *testing.T, required []string, strategies ...extractor.Strategy) (*Pipeline, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	rules, err := validator.DefaultRules()
	require.NoError(t, err)

	cfg := &config.Config{}
	reg := extractor.NewRegistryWith(nil, required, strategies...)
	return New(cfg, st, reg, validator.New(rules), "test-build"), st
}

func createQuoteCheck(t *testing.T, st store.Store, metadata model.Metadata) string {
	t.Helper()
	qc, err := st.CreateQuoteCheck(context.Background(), model.QuoteCheck{
		Text:     "Devis n° D-2024-001\nPompe à chaleur air/eau Atlantic\nContact : artisan@example.fr",
		Metadata: metadata,
	})
	require.NoError(t, err)
	return qc.ID
}

func TestRun_Valid(t *testing.T) {
	p, st := newTestPipeline(t, nil,
		extractor.NewNaive(),
		&stubStrategy{name: extractor.NameGeneralQA, result: heatPumpGeneralResult()},
	)
	id := createQuoteCheck(t, st, model.Metadata{Gestes: []string{"pac_air_eau"}, Aides: []string{"ma_prime_renov"}})

	qc, err := p.Run(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusValid, qc.Status)
	assert.Empty(t, qc.ValidationErrors)
	assert.Equal(t, []string{"pac_air_eau"}, qc.ReadAttributes.GesteTypes())
	assert.NotEmpty(t, qc.NaiveAttributes)
	assert.Equal(t, 150, qc.TokensCount)
	assert.Equal(t, "test-build", qc.ApplicationVersion)
	assert.Greater(t, qc.ProcessingTime, 0.0)
	assert.NotContains(t, qc.AnonymisedText, "artisan@example.fr")

	saved, err := st.GetQuoteCheck(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusValid, saved.Status)
	assert.NotNil(t, saved.FinishedAt)
}

func TestRun_Invalid(t *testing.T) {
	p, st := newTestPipeline(t, nil,
		&stubStrategy{name: extractor.NameGeneralQA, result: &extractor.Result{
			Attributes: model.Attributes{"gestes": []any{}},
		}},
	)
	id := createQuoteCheck(t, st, model.Metadata{Gestes: []string{"pac_air_eau"}})

	qc, err := p.Run(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInvalid, qc.Status)
	require.Len(t, qc.ValidationErrors, 1)
	assert.Equal(t, validator.CodeGesteManquant, qc.ValidationErrors[0].Code)
}

func TestRun_OptionalStrategyFailureDoesNotAbort(t *testing.T) {
	p, st := newTestPipeline(t, nil,
		&stubStrategy{name: extractor.NamePrivateQA, err: errors.New("albert down")},
		&stubStrategy{name: extractor.NameGeneralQA, result: heatPumpGeneralResult()},
	)
	id := createQuoteCheck(t, st, model.Metadata{Gestes: []string{"pac_air_eau"}, Aides: []string{"ma_prime_renov"}})

	qc, err := p.Run(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusValid, qc.Status)
	assert.Nil(t, qc.PrivateDataQAAttributes)
	assert.NotNil(t, qc.QAAttributes)
}

func TestRun_RequiredStrategyFailureAborts(t *testing.T) {
	p, st := newTestPipeline(t, []string{extractor.NameGeneralQA},
		&stubStrategy{name: extractor.NameGeneralQA, err: errors.New("model unavailable")},
	)
	id := createQuoteCheck(t, st, model.Metadata{Gestes: []string{"pac_air_eau"}})

	_, err := p.Run(context.Background(), id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required strategy")

	saved, getErr := st.GetQuoteCheck(context.Background(), id)
	require.NoError(t, getErr)
	assert.Equal(t, model.StatusError, saved.Status)
}

func TestRun_BadDetectedAttributes(t *testing.T) {
	p, st := newTestPipeline(t, nil,
		&stubStrategy{name: extractor.NameGeneralQA, result: &extractor.Result{
			Attributes: model.Attributes{"gestes": "pas une liste"},
		}},
	)
	id := createQuoteCheck(t, st, model.Metadata{})

	_, err := p.Run(context.Background(), id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, validator.ErrBadInput))

	saved, getErr := st.GetQuoteCheck(context.Background(), id)
	require.NoError(t, getErr)
	assert.Equal(t, model.StatusError, saved.Status)
}

func TestRun_ConcurrentRunRejected(t *testing.T) {
	p, st := newTestPipeline(t, nil, extractor.NewNaive())
	id := createQuoteCheck(t, st, model.Metadata{})

	require.NoError(t, st.BeginProcessing(context.Background(), id))

	_, err := p.Run(context.Background(), id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrConflict))
}

func TestRecheck_StableIDsAndPreservedSnapshots(t *testing.T) {
	p, st := newTestPipeline(t, nil,
		&stubStrategy{name: extractor.NameGeneralQA, result: &extractor.Result{
			Attributes: model.Attributes{"gestes": []any{}},
		}},
	)
	id := createQuoteCheck(t, st, model.Metadata{Gestes: []string{"pac_air_eau", "isolation_murs"}})
	ctx := context.Background()

	first, err := p.Run(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, first.ValidationErrors)

	require.NoError(t, st.SetExpectedValidationErrors(ctx, id, first.ValidationErrors))
	_, err = st.CreateFeedback(ctx, model.Feedback{
		QuoteCheckID:             id,
		ValidationErrorDetailsID: first.ValidationErrors[0].ID,
		Comment:                  "confirmé",
	})
	require.NoError(t, err)

	second, err := p.Recheck(ctx, id)
	require.NoError(t, err)

	firstIDs := findingIDs(first.ValidationErrors)
	assert.Equal(t, firstIDs, findingIDs(second.ValidationErrors))

	saved, err := st.GetQuoteCheck(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, firstIDs, findingIDs(saved.ExpectedValidationErrors))

	feedbacks, err := st.ListFeedbacks(ctx, id)
	require.NoError(t, err)
	assert.Len(t, feedbacks, 1)
}

func TestRecheck_ReplacesPriorRunOutput(t *testing.T) {
	general := &stubStrategy{name: extractor.NameGeneralQA, result: heatPumpGeneralResult()}
	p, st := newTestPipeline(t, nil, general)
	id := createQuoteCheck(t, st, model.Metadata{Gestes: []string{"pac_air_eau"}, Aides: []string{"ma_prime_renov"}})
	ctx := context.Background()

	first, err := p.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 150, first.TokensCount)

	// Same input, same count: the metric reports the run, not a running sum.
	second, err := p.Recheck(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 150, second.TokensCount)

	// A strategy failing on recheck must not leave the prior run's output
	// behind as if it were current.
	general.result = nil
	general.err = errors.New("model unavailable")
	third, err := p.Recheck(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, third.TokensCount)
	assert.Nil(t, third.QAAttributes)
	assert.Empty(t, third.QAResult)
	assert.Equal(t, model.StatusInvalid, third.Status)

	saved, err := st.GetQuoteCheck(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, saved.TokensCount)
	assert.Nil(t, saved.QAAttributes)
}

func TestRun_UnparseableResponseNotRetried(t *testing.T) {
	general := &countingStrategy{name: extractor.NameGeneralQA, err: parser.ErrResult}
	p, st := newTestPipeline(t, []string{extractor.NameGeneralQA}, general)
	p.cfg.Extraction.MaxCallRetries = 2
	id := createQuoteCheck(t, st, model.Metadata{})

	_, err := p.Run(context.Background(), id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, parser.ErrResult))
	assert.Equal(t, 1, general.calls)

	saved, getErr := st.GetQuoteCheck(context.Background(), id)
	require.NoError(t, getErr)
	assert.Equal(t, model.StatusError, saved.Status)
}

func TestRun_TransientFailureRetried(t *testing.T) {
	general := &countingStrategy{name: extractor.NameGeneralQA, err: errors.New("mistral: unexpected status 503: overloaded")}
	p, st := newTestPipeline(t, []string{extractor.NameGeneralQA}, general)
	p.cfg.Extraction.MaxCallRetries = 1
	id := createQuoteCheck(t, st, model.Metadata{})

	_, err := p.Run(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, 2, general.calls)
}

func TestRun_GeneralStrategySeesMaskedTextOnly(t *testing.T) {
	naive := &captureStrategy{name: extractor.NameNaive, result: &extractor.Result{}}
	general := &captureStrategy{name: extractor.NameGeneralQA, result: heatPumpGeneralResult()}
	p, st := newTestPipeline(t, nil, naive, general)
	id := createQuoteCheck(t, st, model.Metadata{Gestes: []string{"pac_air_eau"}, Aides: []string{"ma_prime_renov"}})

	_, err := p.Run(context.Background(), id)
	require.NoError(t, err)

	// The offline reader needs the raw text to find contact details; the
	// general model, hosted outside sovereign infrastructure, never sees
	// them.
	assert.Contains(t, naive.gotText, "artisan@example.fr")
	assert.NotContains(t, general.gotText, "artisan@example.fr")
	assert.Contains(t, general.gotText, "[EMAIL]")
}

func TestRecheck_WhileProcessingRejected(t *testing.T) {
	p, st := newTestPipeline(t, nil, extractor.NewNaive())
	id := createQuoteCheck(t, st, model.Metadata{})

	require.NoError(t, st.BeginProcessing(context.Background(), id))

	_, err := p.Recheck(context.Background(), id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrConflict))
}

func findingIDs(findings []model.ValidationErrorDetail) []string {
	ids := make([]string, len(findings))
	for i, f := range findings {
		ids[i] = f.ID
	}
	return ids
}
