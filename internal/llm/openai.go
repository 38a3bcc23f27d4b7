package llm

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/sozercan/session-analyzer/internal/config"
)

// OpenAI streams chat completions from OpenAI or Azure OpenAI. It has no
// retrieval grounding, so chunks never carry grounding metadata.
type OpenAI struct {
	client *openai.Client
	cfg    *config.OpenAIConfig
}

func NewOpenAI(cfg *config.OpenAIConfig) (*OpenAI, error) {
	var client *openai.Client

	switch cfg.Provider {
	case "azure":
		client = openai.NewClient(
			azure.WithEndpoint(cfg.APIEndpoint, cfg.APIVersion),
			azure.WithAPIKey(cfg.APIKey),
		)
	default: // "openai"
		client = openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.APIEndpoint),
		)
	}

	return &OpenAI{
		client: client,
		cfg:    cfg,
	}, nil
}

func (o *OpenAI) Stream(ctx context.Context, prompt string, opts ...Option) Stream {
	options := applyOptions(Options{Model: o.cfg.Model}, opts)
	if len(options.Tools) > 0 {
		zap.L().Debug("openai provider has no retrieval tools, ignoring", zap.Strings("tools", options.Tools))
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.F(options.Model),
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		}),
		Temperature: openai.F(options.Temperature),
		StreamOptions: openai.F(openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.F(true),
		}),
	}
	if options.MaxOutputTokens > 0 {
		params.MaxTokens = openai.F(int64(options.MaxOutputTokens))
	}

	return func(yield func(*Chunk, error) bool) {
		stream := o.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		// The terminal usage chunk has no choices; carry the finish reason
		// forward so the last chunk reports it.
		var finishReason string
		for stream.Next() {
			chunk := chunkFromCompletion(stream.Current())
			if chunk.FinishReason != "" {
				finishReason = chunk.FinishReason
			}
			chunk.FinishReason = finishReason
			if !yield(chunk, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(nil, &StreamError{Provider: "openai", Err: err})
		}
	}
}

// The usage-only terminal chunk has no choices and a non-zero total.
func chunkFromCompletion(c openai.ChatCompletionChunk) *Chunk {
	chunk := &Chunk{}
	if len(c.Choices) > 0 {
		choice := c.Choices[0]
		if choice.Delta.Content != "" {
			chunk.Texts = []string{choice.Delta.Content}
		}
		chunk.FinishReason = string(choice.FinishReason)
	}
	if c.Usage.TotalTokens > 0 {
		chunk.Usage = &Usage{
			PromptTokens:     int64Ptr(c.Usage.PromptTokens),
			CompletionTokens: int64Ptr(c.Usage.CompletionTokens),
			TotalTokens:      int64Ptr(c.Usage.TotalTokens),
		}
	}
	return chunk
}
