package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const naiveFixture = `DEVIS N° D2024-0117 du 15/03/2024

SARL CHAUFFAGE PLUS
SIRET 123 456 789 00012
Qualification RGE n° QB/59665
Tél : 01 23 45 67 89 - contact@chauffageplus.fr

Pompe à chaleur AIR/EAU Atlantic Alféa Extensa
`

func TestNaiveExtract_AdministrativeFields(t *testing.T) {
	res, err := NewNaive().Extract(context.Background(), naiveFixture)
	require.NoError(t, err)

	assert.Equal(t, []any{"123 456 789 00012"}, res.Attributes["sirets"])
	assert.Equal(t, []any{"01 23 45 67 89"}, res.Attributes["telephones"])
	assert.Equal(t, []any{"contact@chauffageplus.fr"}, res.Attributes["emails"])
	assert.Equal(t, []any{"QB/59665"}, res.Attributes["rge_numbers"])
	assert.Equal(t, []any{"D2024-0117"}, res.Attributes["numero_devis"])
	assert.Equal(t, []any{"15/03/2024"}, res.Attributes["dates"])
	assert.Zero(t, res.Tokens)
	assert.Empty(t, res.RawResponse)
}

func TestNaiveExtract_Deterministic(t *testing.T) {
	first, err := NewNaive().Extract(context.Background(), naiveFixture)
	require.NoError(t, err)
	second, err := NewNaive().Extract(context.Background(), naiveFixture)
	require.NoError(t, err)
	assert.Equal(t, first.Attributes, second.Attributes)
}

func TestNaiveExtract_EmptyText(t *testing.T) {
	res, err := NewNaive().Extract(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, res.Attributes)
}

func TestNaiveExtract_DeduplicatesRepeats(t *testing.T) {
	res, err := NewNaive().Extract(context.Background(),
		"SIRET 123 456 789 00012 ... rappel SIRET 123 456 789 00012")
	require.NoError(t, err)
	assert.Equal(t, []any{"123 456 789 00012"}, res.Attributes["sirets"])
}

func TestNaiveConfigured(t *testing.T) {
	assert.True(t, NewNaive().Configured())
	assert.Equal(t, NameNaive, NewNaive().Name())
}
