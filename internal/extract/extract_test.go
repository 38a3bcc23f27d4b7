package extract

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		want     string
		strategy Strategy
	}{
		{
			name:     "plain object",
			text:     `{"alert": null, "score": 3}`,
			want:     `{"alert": null, "score": 3}`,
			strategy: StrategyWholeText,
		},
		{
			name:     "surrounding whitespace",
			text:     "\n\t  {\"a\": [1, 2]}  \n",
			want:     `{"a": [1, 2]}`,
			strategy: StrategyWholeText,
		},
		{
			name:     "wrapped in prose",
			text:     `Sure! Here's the result: {"alert": {"timing": "now"}} Hope that helps.`,
			want:     `{"alert": {"timing": "now"}}`,
			strategy: StrategyBraceMatch,
		},
		{
			name:     "fenced block",
			text:     "Analysis below.\n```json\n{\"category\": \"safety\", \"nested\": {\"k\": [true]}}\n```\nDone.",
			want:     `{"category": "safety", "nested": {"k": [true]}}`,
			strategy: StrategyBraceMatch,
		},
		{
			name:     "fenced and truncated inside array",
			text:     "```json\n{\"a\": 1, \"b\": [1,2\n",
			want:     `{"a": 1, "b": [1,2]}`,
			strategy: StrategyRepair,
		},
		{
			name:     "truncated after dangling comma",
			text:     `{"title": "Check in", "timing": "now",`,
			want:     `{"title": "Check in", "timing": "now"}`,
			strategy: StrategyRepair,
		},
		{
			name:     "truncated mid string value",
			text:     `Result: {"title": "Check in", "message": "The client descr`,
			want:     `{"title": "Check in"}`,
			strategy: StrategyRepair,
		},
		{
			name:     "truncated nested object",
			text:     `{"alert": {"title": "Pause", "evidence": ["quote one", "quote`,
			want:     `{"alert": {"title": "Pause", "evidence": ["quote one"]}}`,
			strategy: StrategyRepair,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.text)
			require.True(t, ok)
			assert.Equal(t, tt.strategy, got.Strategy)
			if diff := cmp.Diff(decode(t, tt.want), got.Record); diff != "" {
				t.Errorf("record mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractFailures(t *testing.T) {
	for _, text := range []string{
		"I'm sorry, I can't help with that.",
		"[1, 2, 3]",
		"null",
		"} closing only",
		"{" + strings.Repeat("x", 250),
	} {
		t.Run(text, func(t *testing.T) {
			got, ok := Extract(text)
			assert.False(t, ok)
			assert.Nil(t, got.Record)
		})
	}
}

// By default a stray opening brace close to the end repairs to an empty
// object.
func TestExtractStrayBraceRepairsToEmptyObject(t *testing.T) {
	got, ok := Extract("I'll answer with { in a moment")
	require.True(t, ok)
	assert.Equal(t, StrategyRepair, got.Strategy)
	assert.Empty(t, got.Record)
}

func TestExtractEmptyRepairCanBeRejected(t *testing.T) {
	e := New(WithEmptyRepair(false))

	for _, text := range []string{
		"I'll answer with { in a moment",
		"Use {braces} like: {\"a\":1",
		"Use {braces} like: {\"a\":1}",
		`prefix {"x": "unterminated`,
	} {
		t.Run(text, func(t *testing.T) {
			got, ok := e.Extract(text)
			assert.False(t, ok)
			assert.Nil(t, got.Record)
		})
	}

	got, ok := e.Extract(`{"a": [1, 2`)
	require.True(t, ok)
	assert.Equal(t, StrategyRepair, got.Strategy)

	got, ok = e.Extract("{}")
	require.True(t, ok)
	assert.Equal(t, StrategyWholeText, got.Strategy)
	assert.Empty(t, got.Record)
}

func TestExtractEmptyShortCircuits(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t\r\n"} {
		got, ok := Extract(text)
		assert.False(t, ok)
		assert.Zero(t, got.Attempts, "no strategy may run for %q", text)
	}
}

func TestExtractCountsAttempts(t *testing.T) {
	got, ok := Extract(`{"a": 1}`)
	require.True(t, ok)
	assert.Equal(t, 1, got.Attempts)

	got, ok = Extract(`note: {"a": 1} end`)
	require.True(t, ok)
	assert.Equal(t, 2, got.Attempts)
}

func TestExtractRepairRespectsTrimLimit(t *testing.T) {
	// the only repairable prefix sits more than 10 characters before the end
	text := `{"a": 1, "b": "` + strings.Repeat("x", 40)

	_, ok := New(WithMaxTrim(10)).Extract(text)
	assert.False(t, ok)

	got, ok := New(WithMaxTrim(100)).Extract(text)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": float64(1)}, got.Record)
}

func TestExtractTruncatedNeverPanics(t *testing.T) {
	full, err := json.Marshal(map[string]any{
		"alert": map[string]any{
			"timing":         "now",
			"category":       "safety",
			"title":          "Assess risk, ask directly",
			"message":        "Client mentioned {braces} and [brackets] in text",
			"evidence":       []string{"quote one", "quote two", "ünïcödé"},
			"recommendation": []any{"step", 2, true, nil},
		},
		"session_state": map[string]any{"engagement": 0.7, "flags": []int{1, 2, 3}},
	})
	require.NoError(t, err)
	s := string(full)

	lo := len(s) - 200
	if lo < 1 {
		lo = 1
	}
	for cut := lo; cut < len(s); cut++ {
		assert.NotPanics(t, func() {
			got, ok := Extract(s[:cut])
			if !ok {
				assert.Nil(t, got.Record)
				return
			}
			out, err := json.Marshal(got.Record)
			require.NoError(t, err)
			assert.True(t, json.Valid(out))
		}, "cut at %d", cut)
	}
}

func TestExtractRoundTripsValidObjects(t *testing.T) {
	objects := []map[string]any{
		{"ok": true},
		{"alert": nil},
		{"nested": map[string]any{"list": []any{"a", float64(1), false}}},
		{"text": "contains } and { and ```"},
	}
	for _, obj := range objects {
		raw, err := json.Marshal(obj)
		require.NoError(t, err)

		for _, text := range []string{
			string(raw),
			"Here you go:\n" + string(raw) + "\nThanks",
			"```json\n" + string(raw) + "\n```",
		} {
			got, ok := Extract(text)
			require.True(t, ok, text)
			if diff := cmp.Diff(obj, got.Record); diff != "" {
				t.Errorf("%q (-want +got):\n%s", text, diff)
			}
		}
	}
}
