package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"sorted keys", map[string]any{"b": 1, "a": 2}, `{"a":2,"b":1}`},
		{"ir object", Object(O("z", IRBool(true)), O("m", IRString("x"))), `{"m":"x","z":true}`},
		{"no html escape", "<a&b>", `"<a&b>"`},
		{"control chars", "a\nb\x01", `"a\nb\u0001"`},
		{"line separator literal", "a\u2028b", "\"a\u2028b\""},
		{"string slice", []string{"x", "y"}, `["x","y"]`},
		{"nfc", "e\u0301", "\"\u00e9\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"f": 1.5})
	assert.Error(t, err)

	_, err = MarshalCanonical(nil)
	assert.Error(t, err)
}

func TestPayloadHash(t *testing.T) {
	h1, err := PayloadHash(Object(O("a", IRInt(1)), O("b", IRInt(2))))
	require.NoError(t, err)
	h2, err := PayloadHash(IRObject{"b": IRInt(2), "a": IRInt(1)})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	empty, err := PayloadHash(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
