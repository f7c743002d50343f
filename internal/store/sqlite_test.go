package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betagouv/quotecheck/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func createTestQuoteCheck(t *testing.T, s *SQLiteStore) *model.QuoteCheck {
	t.Helper()
	qc, err := s.CreateQuoteCheck(context.Background(), model.QuoteCheck{
		Text:    "Devis pompe à chaleur",
		Profile: "artisan",
		Metadata: model.Metadata{
			Gestes: []string{"pac_air_eau"},
			Aides:  []string{"ma_prime_renov"},
		},
		ApplicationVersion: "test-1",
	})
	require.NoError(t, err)
	return qc
}

func TestSQLiteCreateAndGetQuoteCheck(t *testing.T) {
	s := newTestStore(t)
	created := createTestQuoteCheck(t, s)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.StatusPending, created.Status)

	got, err := s.GetQuoteCheck(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Devis pompe à chaleur", got.Text)
	assert.Equal(t, "artisan", got.Profile)
	assert.Equal(t, []string{"pac_air_eau"}, got.Metadata.Gestes)
	assert.Equal(t, []string{"ma_prime_renov"}, got.Metadata.Aides)
	assert.Nil(t, got.StartedAt)
}

func TestSQLiteGetQuoteCheck_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetQuoteCheck(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLiteBeginProcessing_Guard(t *testing.T) {
	s := newTestStore(t)
	qc := createTestQuoteCheck(t, s)
	ctx := context.Background()

	require.NoError(t, s.BeginProcessing(ctx, qc.ID))

	// Second run on the same quote check loses.
	err := s.BeginProcessing(ctx, qc.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))

	err = s.BeginProcessing(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	got, err := s.GetQuoteCheck(ctx, qc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, got.Status)
	assert.NotNil(t, got.StartedAt)
}

func TestSQLiteUpdateResult_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	qc := createTestQuoteCheck(t, s)
	ctx := context.Background()
	require.NoError(t, s.BeginProcessing(ctx, qc.ID))

	qc.Status = model.StatusInvalid
	qc.AnonymisedText = "Devis [MASQUÉ]"
	qc.NaiveAttributes = model.Attributes{"sirets": []any{"123 456 789 00012"}}
	qc.QAAttributes = model.Attributes{"gestes": []any{map[string]any{"type": "pac_air_eau"}}}
	qc.QAResult = `{"gestes": []}`
	qc.ReadAttributes = qc.QAAttributes
	qc.ValidationErrors = []model.ValidationErrorDetail{
		{ID: "geste_manquant-abc", Code: "geste_manquant", Category: "gestes", Severity: "error", Title: "manquant", Geste: "isolation_murs"},
	}
	qc.TokensCount = 1200
	qc.ProcessingTime = 4.2
	require.NoError(t, s.UpdateResult(ctx, qc))

	got, err := s.GetQuoteCheck(ctx, qc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInvalid, got.Status)
	assert.Equal(t, "Devis [MASQUÉ]", got.AnonymisedText)
	assert.Equal(t, []string{"pac_air_eau"}, got.ReadAttributes.GesteTypes())
	require.Len(t, got.ValidationErrors, 1)
	assert.Equal(t, "geste_manquant-abc", got.ValidationErrors[0].ID)
	assert.Equal(t, 1200, got.TokensCount)
	assert.InDelta(t, 4.2, got.ProcessingTime, 0.001)
	assert.NotNil(t, got.FinishedAt)
	// Expected snapshot untouched by the run.
	assert.Nil(t, got.ExpectedValidationErrors)
}

func TestSQLiteResetForRecheck(t *testing.T) {
	s := newTestStore(t)
	qc := createTestQuoteCheck(t, s)
	ctx := context.Background()

	require.NoError(t, s.BeginProcessing(ctx, qc.ID))
	qc.Status = model.StatusValid
	require.NoError(t, s.UpdateResult(ctx, qc))

	require.NoError(t, s.ResetForRecheck(ctx, qc.ID))
	got, err := s.GetQuoteCheck(ctx, qc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	// A processing quote check cannot be reset out from under its run.
	require.NoError(t, s.BeginProcessing(ctx, qc.ID))
	err = s.ResetForRecheck(ctx, qc.ID)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestSQLiteSetExpectedValidationErrors(t *testing.T) {
	s := newTestStore(t)
	qc := createTestQuoteCheck(t, s)
	ctx := context.Background()

	expected := []model.ValidationErrorDetail{{ID: "geste_manquant-abc", Code: "geste_manquant"}}
	require.NoError(t, s.SetExpectedValidationErrors(ctx, qc.ID, expected))

	got, err := s.GetQuoteCheck(ctx, qc.ID)
	require.NoError(t, err)
	require.Len(t, got.ExpectedValidationErrors, 1)
	assert.Equal(t, "geste_manquant-abc", got.ExpectedValidationErrors[0].ID)

	err = s.SetExpectedValidationErrors(ctx, "missing", expected)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLiteFeedbackRoundTrip(t *testing.T) {
	s := newTestStore(t)
	qc := createTestQuoteCheck(t, s)
	ctx := context.Background()

	helpful := true
	rating := 4
	created, err := s.CreateFeedback(ctx, model.Feedback{
		QuoteCheckID:             qc.ID,
		ValidationErrorDetailsID: "geste_manquant-abc",
		IsHelpful:                &helpful,
		Comment:                  "bonne détection",
		Rating:                   &rating,
		Email:                    "user@example.fr",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	list, err := s.ListFeedbacks(ctx, qc.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "geste_manquant-abc", list[0].ValidationErrorDetailsID)
	require.NotNil(t, list[0].IsHelpful)
	assert.True(t, *list[0].IsHelpful)
	require.NotNil(t, list[0].Rating)
	assert.Equal(t, 4, *list[0].Rating)

	// No feedback for other quote checks.
	other, err := s.ListFeedbacks(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLiteListQuoteChecks_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	first := createTestQuoteCheck(t, s)
	second := createTestQuoteCheck(t, s)

	require.NoError(t, s.SetExpectedValidationErrors(ctx, second.ID, []model.ValidationErrorDetail{{ID: "x"}}))

	all, err := s.ListQuoteChecks(ctx, QuoteCheckFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	ids := []string{all[0].ID, all[1].ID}
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)

	pending, err := s.ListQuoteChecks(ctx, QuoteCheckFilter{Status: model.StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	withExpected, err := s.ListQuoteChecks(ctx, QuoteCheckFilter{WithExpected: true})
	require.NoError(t, err)
	require.Len(t, withExpected, 1)
	assert.Equal(t, second.ID, withExpected[0].ID)

	limited, err := s.ListQuoteChecks(ctx, QuoteCheckFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
