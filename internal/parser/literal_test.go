package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLiteral_UnquotedKeys(t *testing.T) {
	v, err := ParseLiteral(`{type: "pac_air_eau", puissance: 6.0, scop: 4.5}`)
	require.NoError(t, err)
	obj := v.(map[string]any)
	assert.Equal(t, "pac_air_eau", obj["type"])
	assert.Equal(t, 6.0, obj["puissance"])
	assert.Equal(t, 4.5, obj["scop"])
}

func TestParseLiteral_TrailingCommas(t *testing.T) {
	v, err := ParseLiteral(`{gestes: [{type: "isolation",},],}`)
	require.NoError(t, err)
	obj := v.(map[string]any)
	gestes := obj["gestes"].([]any)
	require.Len(t, gestes, 1)
	assert.Equal(t, "isolation", gestes[0].(map[string]any)["type"])
}

func TestParseLiteral_NullTokens(t *testing.T) {
	v, err := ParseLiteral(`{client: null, pro: nil}`)
	require.NoError(t, err)
	obj := v.(map[string]any)
	assert.Nil(t, obj["client"])
	assert.Nil(t, obj["pro"])
}

func TestParseLiteral_SingleQuotedStrings(t *testing.T) {
	v, err := ParseLiteral(`{marque: 'Atlantic'}`)
	require.NoError(t, err)
	assert.Equal(t, "Atlantic", v.(map[string]any)["marque"])
}

func TestParseLiteral_Booleans(t *testing.T) {
	v, err := ParseLiteral(`{rge: true, sous_traitance: false}`)
	require.NoError(t, err)
	obj := v.(map[string]any)
	assert.Equal(t, true, obj["rge"])
	assert.Equal(t, false, obj["sous_traitance"])
}

func TestParseLiteral_NegativeAndExponentNumbers(t *testing.T) {
	v, err := ParseLiteral(`[-3.5, 1e3]`)
	require.NoError(t, err)
	assert.Equal(t, []any{-3.5, 1000.0}, v)
}

func TestParseLiteral_EscapesAndUnicode(t *testing.T) {
	v, err := ParseLiteral(`{adresse: "12 rue\nParis é"}`)
	require.NoError(t, err)
	assert.Equal(t, "12 rue\nParis é", v.(map[string]any)["adresse"])
}

func TestParseLiteral_Errors(t *testing.T) {
	for _, input := range []string{
		`{type: }`,
		`{type "pac"}`,
		`{"a": 1} extra`,
		`[1, 2`,
		`{a: undefined_token}`,
		``,
	} {
		_, err := ParseLiteral(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestParseLiteral_EmptyContainers(t *testing.T) {
	v, err := ParseLiteral(`{}`)
	require.NoError(t, err)
	assert.Empty(t, v.(map[string]any))

	v, err = ParseLiteral(`[]`)
	require.NoError(t, err)
	assert.Equal(t, []any{}, v)
}
