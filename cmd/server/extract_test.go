package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sozercan/session-analyzer/internal/extract"
)

func TestRunExtract(t *testing.T) {
	var out bytes.Buffer
	err := runExtract(strings.NewReader("model said: {\"alert\": null}\n"), &out, extract.New(), false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"alert": null}`, out.String())
}

func TestRunExtractWithStrategy(t *testing.T) {
	var out bytes.Buffer
	err := runExtract(strings.NewReader(`{"a": [1, 2`), &out, extract.New(), true)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "truncation_repair", got["strategy"])
	assert.Equal(t, map[string]any{"a": []any{float64(1), float64(2)}}, got["record"])
}

func TestRunExtractFailure(t *testing.T) {
	var out bytes.Buffer
	err := runExtract(strings.NewReader("nothing structured here"), &out, extract.New(), false)
	assert.Error(t, err)
	assert.Empty(t, out.String())
}
