package jsoncodec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type window struct {
	Name  string   `json:"name"`
	Count int64    `json:"count"`
	Tags  []string `json:"tags,omitempty"`
}

func TestMarshalMatchesEncodingJSON(t *testing.T) {
	data, err := Marshal(window{Name: "orders", Count: 12})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"orders","count":12}`, string(data))

	var got window
	require.NoError(t, Unmarshal(data, &got))
	assert.Equal(t, window{Name: "orders", Count: 12}, got)

	indented, err := MarshalIndent(got, "", "\t")
	require.NoError(t, err)
	assert.Contains(t, string(indented), "\n\t\"count\": 12")
}

func TestUnmarshalRejectsInvalidInput(t *testing.T) {
	var got window
	assert.Error(t, Unmarshal([]byte(`{"name":`), &got))
}

func TestDecodeSingleValue(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, window{Name: "a", Count: 1}))

	var got window
	require.NoError(t, Decode(&buf, &got))
	assert.Equal(t, window{Name: "a", Count: 1}, got)
}

func TestNewDecoderReadsStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, window{Name: "a", Count: 1}))
	require.NoError(t, Encode(&buf, window{Name: "b", Count: 2, Tags: []string{"slow"}}))

	dec := NewDecoder(&buf)
	var first, second window
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	assert.Equal(t, "a", first.Name)
	assert.Equal(t, []string{"slow"}, second.Tags)
}
