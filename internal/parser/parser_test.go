package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const numberedText = `Voici les informations extraites :

3. Numéro de téléphone : **telephone** : 01 23 45 67 89
1. Nom du client : **client** : DUPONT / MARTIN
2. Adresse : **adresse** : 12 rue de la Paix, 75002 Paris
`

func TestExtractNumberedList_SortsByNumber(t *testing.T) {
	items := ExtractNumberedList(numberedText)
	require.Len(t, items, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{items[0].Number, items[1].Number, items[2].Number})
	assert.Equal(t, "client", items[0].Label)
	assert.Equal(t, "adresse", items[1].Label)
	assert.Equal(t, "telephone", items[2].Label)
}

func TestExtractNumberedList_OrderInvariant(t *testing.T) {
	permuted := "2. Adresse : **adresse** : 12 rue de la Paix, 75002 Paris\n" +
		"1. Nom du client : **client** : DUPONT / MARTIN\n" +
		"3. Numéro de téléphone : **telephone** : 01 23 45 67 89\n"
	assert.Equal(t, ExtractNumberedList(numberedText), ExtractNumberedList(permuted))
}

func TestExtractNumberedList_SeparatorPriority(t *testing.T) {
	// "/" wins over "," even when both are present.
	items := ExtractNumberedList("1. **client** : DUPONT, Jean / MARTIN, Paul")
	require.Len(t, items, 1)
	assert.Equal(t, []string{"DUPONT, Jean", "MARTIN, Paul"}, items[0].Values)
}

func TestExtractNumberedList_DefaultSeparator(t *testing.T) {
	items := ExtractNumberedList("1. **adresse** : 12 rue de la Paix, 75002 Paris")
	require.Len(t, items, 1)
	assert.Equal(t, []string{"12 rue de la Paix", "75002 Paris"}, items[0].Values)
}

func TestExtractNumberedList_NoSeparator(t *testing.T) {
	items := ExtractNumberedList("1. **siret** : 123 456 789 00012")
	require.Len(t, items, 1)
	assert.Equal(t, []string{"123 456 789 00012"}, items[0].Values)
}

func TestExtractNumberedList_EmptyInput(t *testing.T) {
	assert.Empty(t, ExtractNumberedList(""))
	assert.Empty(t, ExtractNumberedList("no list here at all"))
}

func TestByLabel_LastOccurrenceWins(t *testing.T) {
	attrs := ByLabel(ExtractNumberedList("1. **client** : DUPONT\n2. **client** : MARTIN"))
	assert.Equal(t, []string{"MARTIN"}, attrs["client"])
}

func TestExtractJSON_StrictFallback(t *testing.T) {
	attrs, err := ExtractJSON(`Voici le résultat : {"gestes": [{"type": "pac_air_eau"}], "version": 2}`)
	require.NoError(t, err)
	assert.Equal(t, float64(2), attrs["version"])
	gestes, ok := attrs.Gestes()
	require.True(t, ok)
	require.Len(t, gestes, 1)
	assert.Equal(t, "pac_air_eau", gestes[0]["type"])
}

func TestExtractJSON_FencedPseudoJSON(t *testing.T) {
	content := "```jsx\n{gestes: [{type: \"pac_air_eau\", puissance: 6.0,},], client: null,}\n```"
	attrs, err := ExtractJSON(content)
	require.NoError(t, err)
	assert.Nil(t, attrs["client"])
	gestes, ok := attrs.Gestes()
	require.True(t, ok)
	require.Len(t, gestes, 1)
	assert.Equal(t, 6.0, gestes[0]["puissance"])
}

func TestExtractJSON_PureFunction(t *testing.T) {
	content := "```json\n{\"aides\": [\"ma_prime_renov\"]}\n```"
	first, err := ExtractJSON(content)
	require.NoError(t, err)
	second, err := ExtractJSON(content)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExtractJSON_MalformedIsResultError(t *testing.T) {
	_, err := ExtractJSON(`{"gestes": [}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResult))
	// Diagnostics carry the offending substring.
	assert.Contains(t, err.Error(), `{"gestes": [}`)
}

func TestExtractJSON_NoObject(t *testing.T) {
	_, err := ExtractJSON("pas de JSON ici")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResult))
}

func TestParse_InvalidFormat(t *testing.T) {
	_, err := Parse("{}", Format("xml"))
	assert.Error(t, err)
}

func TestParse_NumberedList(t *testing.T) {
	attrs, err := Parse(numberedText, FormatNumberedList)
	require.NoError(t, err)
	assert.Equal(t, []string{"DUPONT", "MARTIN"}, attrs["client"])
}

func TestBalancedObjectSpan_IgnoresBracesInStrings(t *testing.T) {
	span := balancedObjectSpan(`prefix {"a": "closing } inside", "b": 1} suffix`)
	assert.Equal(t, `{"a": "closing } inside", "b": 1}`, span)
}

func TestBalancedObjectSpan_Unclosed(t *testing.T) {
	assert.Equal(t, "", balancedObjectSpan(`{"a": 1`))
}
