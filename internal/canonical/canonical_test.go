package canonical

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeSortsKeys(t *testing.T) {
	a := map[string]interface{}{"b": 1, "a": 2}
	b := map[string]interface{}{"a": 2, "b": 1}

	encA, err := EncodeString(a)
	require.NoError(t, err)
	encB, err := EncodeString(b)
	require.NoError(t, err)

	require.Equal(t, encA, encB)
	require.Equal(t, `{"a":2,"b":1}`, encA)
}

func TestEncodeNoHTMLEscaping(t *testing.T) {
	enc, err := EncodeString(map[string]interface{}{"q": "<tag>&</tag>"})
	require.NoError(t, err)
	require.Equal(t, `{"q":"<tag>&</tag>"}`, enc)
}

func TestHashStableAcrossFieldOrder(t *testing.T) {
	type inputs struct {
		BaseToken  string `json:"base_token"`
		QuoteToken string `json:"quote_token"`
	}
	h1, err := Hash(inputs{BaseToken: "SOL", QuoteToken: "USD"})
	require.NoError(t, err)

	h2, err := Hash(map[string]interface{}{"quote_token": "USD", "base_token": "SOL"})
	require.NoError(t, err)

	require.Equal(t, h1, h2)
}

func TestHashDiffersOnContent(t *testing.T) {
	h1, _ := Hash(map[string]interface{}{"a": 1})
	h2, _ := Hash(map[string]interface{}{"a": 2})
	require.NotEqual(t, h1, h2)
}

func TestHashStableAcrossUnicodeNormalizationForm(t *testing.T) {
	// "caf" + precomposed e-acute (U+00E9) vs "caf" + "e" + a combining
	// acute accent (U+0301): visually and semantically identical text,
	// different byte sequences.
	precomposed := "caf\u00e9"
	decomposed := "cafe\u0301"
	require.NotEqual(t, precomposed, decomposed, "test fixture must differ at the byte level")

	h1, err := Hash(map[string]interface{}{"name": precomposed})
	require.NoError(t, err)
	h2, err := Hash(map[string]interface{}{"name": decomposed})
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestEncodeNormalizesKeysToNFC(t *testing.T) {
	precomposed := "caf\u00e9"
	decomposed := "cafe\u0301"

	enc1, err := EncodeString(map[string]interface{}{precomposed: 1})
	require.NoError(t, err)
	enc2, err := EncodeString(map[string]interface{}{decomposed: 1})
	require.NoError(t, err)
	require.Equal(t, enc1, enc2)
}

func TestEncodeNumberPreserved(t *testing.T) {
	enc, err := EncodeString(map[string]interface{}{"n": 0})
	require.NoError(t, err)
	require.Equal(t, `{"n":0}`, enc)

	enc, err = EncodeString(map[string]interface{}{"n": -5})
	require.NoError(t, err)
	require.Equal(t, `{"n":-5}`, enc)
}
