package llm

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sozercan/session-analyzer/internal/config"
)

var configFixture = config.GeminiConfig{
	Project:           "proj",
	Location:          "us-central1",
	DatastoreLocation: "us",
	Model:             "gemini-2.5-flash",
}

func TestChunkFromCompletion(t *testing.T) {
	var delta openai.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(`{
  "id": "c1", "object": "chat.completion.chunk", "created": 1, "model": "gpt-4o-mini",
  "choices": [{"index": 0, "delta": {"content": "{\"ok\""}, "finish_reason": null}]
}`), &delta))

	chunk := chunkFromCompletion(delta)
	assert.Equal(t, []string{`{"ok"`}, chunk.Texts)
	assert.Empty(t, chunk.FinishReason)
	assert.Nil(t, chunk.Usage)

	var final openai.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(`{
  "id": "c1", "object": "chat.completion.chunk", "created": 1, "model": "gpt-4o-mini",
  "choices": [],
  "usage": {"prompt_tokens": 11, "completion_tokens": 7, "total_tokens": 18}
}`), &final))

	chunk = chunkFromCompletion(final)
	assert.Empty(t, chunk.Texts)
	require.NotNil(t, chunk.Usage)
	assert.Equal(t, int64(11), *chunk.Usage.PromptTokens)
	assert.Equal(t, int64(18), *chunk.Usage.TotalTokens)
	assert.Nil(t, chunk.Usage.ThinkingTokens)
}

func TestStreamErrorUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(&StreamError{Provider: "gemini", Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "gemini stream: connection reset", err.Error())
}
