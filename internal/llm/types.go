package llm

import (
	"context"
	"iter"
)

type Provider interface {
	// Stream sends prompt to the model and returns its output as a lazy,
	// finite sequence of chunks. A non-nil error ends the sequence.
	Stream(ctx context.Context, prompt string, opts ...Option) Stream
}

// Stream yields model output chunks in arrival order.
type Stream = iter.Seq2[*Chunk, error]

// Chunk is one unit of streamed model output.
type Chunk struct {
	// Texts holds the text fragments carried by this chunk, possibly none.
	Texts []string

	// Grounding is nil when the chunk carries no grounding metadata.
	Grounding []GroundingSource

	// Usage is normally only set on the terminal chunk.
	Usage *Usage

	FinishReason string
}

// GroundingSource is one grounding entry. Retrieved is nil when the entry
// has no retrieved-context payload.
type GroundingSource struct {
	Retrieved *RetrievedContext
}

type RetrievedContext struct {
	Title string
	URI   string
	Text  string
	Pages *PageRange
}

type PageRange struct {
	First int
	Last  int
}

// Usage counters; nil means the transport did not report the value.
type Usage struct {
	PromptTokens     *int64
	CompletionTokens *int64
	TotalTokens      *int64
	ThinkingTokens   *int64
	CachedTokens     *int64
}

type Option func(*Options)

type Options struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int
	// ThinkingBudget is nil when no reasoning budget is requested.
	ThinkingBudget *int
	// Tools are retrieval datastore IDs to ground the answer on.
	Tools []string
}

func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

func WithTemperature(t float64) Option {
	return func(o *Options) { o.Temperature = t }
}

func WithMaxOutputTokens(n int) Option {
	return func(o *Options) { o.MaxOutputTokens = n }
}

// WithThinkingBudget sets a reasoning budget; n <= 0 clears it.
func WithThinkingBudget(n int) Option {
	return func(o *Options) {
		if n <= 0 {
			o.ThinkingBudget = nil
			return
		}
		o.ThinkingBudget = &n
	}
}

func WithTools(ids ...string) Option {
	return func(o *Options) { o.Tools = ids }
}

func applyOptions(base Options, opts []Option) Options {
	for _, opt := range opts {
		opt(&base)
	}
	return base
}

// StreamError reports a transport failure raised by a provider mid-stream.
type StreamError struct {
	Provider string
	Err      error
}

func (e *StreamError) Error() string {
	return e.Provider + " stream: " + e.Err.Error()
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

func int64Ptr(v int64) *int64 {
	return &v
}
