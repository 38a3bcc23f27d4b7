package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sozercan/session-analyzer/apimodels"
	"github.com/sozercan/session-analyzer/internal/llm"
)

func TestMain(m *testing.M) {
	// genai pulls in opencensus, whose stats worker starts at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func fromChunks(chunks ...*llm.Chunk) llm.Stream {
	return func(yield func(*llm.Chunk, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

// chanStream mimics a network transport: a producer goroutine feeds chunks
// until the consumer stops or ctx is done.
func chanStream(ctx context.Context, chunks ...*llm.Chunk) llm.Stream {
	return func(yield func(*llm.Chunk, error) bool) {
		ch := make(chan *llm.Chunk)
		done := make(chan struct{})
		defer close(done)

		go func() {
			defer close(ch)
			for _, c := range chunks {
				select {
				case ch <- c:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}
		}()

		for c := range ch {
			if !yield(c, nil) {
				return
			}
		}
		if err := ctx.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func text(parts ...string) *llm.Chunk {
	return &llm.Chunk{Texts: parts}
}

func tick(start time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return start.Add(time.Duration(n) * 100 * time.Millisecond)
	}
}

func ptr[T any](v T) *T { return &v }

func TestConsumeConcatenatesText(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	a := New(WithClock(tick(start)))

	resp, err := a.Consume(context.Background(), fromChunks(
		&llm.Chunk{},
		text("{\"ok\"", ""),
		text(": true", "}"),
	))
	require.NoError(t, err)

	assert.Equal(t, `{"ok": true}`, resp.Text)
	assert.Equal(t, 3, resp.Chunks)
	require.NotNil(t, resp.FirstToken)
	assert.Equal(t, start.Add(100*time.Millisecond), *resp.FirstToken)
}

func TestConsumeNoContent(t *testing.T) {
	resp, err := New().Consume(context.Background(), fromChunks())
	require.NoError(t, err)
	assert.Empty(t, resp.Text)
	assert.Nil(t, resp.FirstToken)
	assert.Nil(t, resp.Usage)
	assert.Empty(t, resp.Citations)
}

func TestConsumeLastChunkMetadataWins(t *testing.T) {
	early := &llm.Usage{TotalTokens: ptr(int64(5))}
	late := &llm.Usage{TotalTokens: ptr(int64(42)), PromptTokens: ptr(int64(30))}

	resp, err := New().Consume(context.Background(), fromChunks(
		&llm.Chunk{Texts: []string{"a"}, Usage: early, FinishReason: "OTHER"},
		&llm.Chunk{Texts: []string{"b"}, Usage: late, FinishReason: "MAX_TOKENS"},
	))
	require.NoError(t, err)
	assert.Same(t, late, resp.Usage)
	assert.Equal(t, "MAX_TOKENS", resp.FinishReason)

	// a terminal chunk without usage clears what earlier chunks reported
	resp, err = New().Consume(context.Background(), fromChunks(
		&llm.Chunk{Texts: []string{"a"}, Usage: early, FinishReason: "STOP"},
		&llm.Chunk{},
	))
	require.NoError(t, err)
	assert.Nil(t, resp.Usage)
	assert.Empty(t, resp.FinishReason)
}

func source(title string, pages *llm.PageRange) llm.GroundingSource {
	return llm.GroundingSource{Retrieved: &llm.RetrievedContext{Title: title, URI: "gs://" + title, Text: "excerpt " + title, Pages: pages}}
}

func TestConsumeCitationsNumberedByFirstObservation(t *testing.T) {
	a := New()
	resp, err := a.Consume(context.Background(), fromChunks(
		&llm.Chunk{Texts: []string{"x"}, Grounding: []llm.GroundingSource{source("A", nil), source("B", &llm.PageRange{First: 3, Last: 4})}},
		&llm.Chunk{Texts: []string{"y"}},
		// repeats positions 0 and 1, adds one new entry
		&llm.Chunk{Grounding: []llm.GroundingSource{source("A", nil), source("B", nil), source("C", nil)}},
		// shorter repeat adds nothing
		&llm.Chunk{Grounding: []llm.GroundingSource{source("Z", nil)}},
	))
	require.NoError(t, err)

	require.Len(t, resp.Citations, 3)
	for i, c := range resp.Citations {
		assert.Equal(t, i+1, c.Number)
	}
	assert.Equal(t, "A", resp.Citations[0].Source.Title)
	assert.Equal(t, "B", resp.Citations[1].Source.Title)
	assert.Equal(t, &apimodels.PageSpan{First: 3, Last: 4}, resp.Citations[1].Source.Pages)
	assert.Equal(t, "C", resp.Citations[2].Source.Title)
}

func TestConsumeCitationsWithoutPositionDedupe(t *testing.T) {
	a := New(WithPositionDedupe(false))
	resp, err := a.Consume(context.Background(), fromChunks(
		&llm.Chunk{Grounding: []llm.GroundingSource{source("A", nil)}},
		&llm.Chunk{Grounding: []llm.GroundingSource{source("A", nil), source("B", nil)}},
	))
	require.NoError(t, err)

	require.Len(t, resp.Citations, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{resp.Citations[0].Number, resp.Citations[1].Number, resp.Citations[2].Number})
}

func TestConsumeCitationDefaults(t *testing.T) {
	a := New(WithCitationTitle("EBT Manual"))
	resp, err := a.Consume(context.Background(), fromChunks(
		&llm.Chunk{Grounding: []llm.GroundingSource{
			{Retrieved: &llm.RetrievedContext{}},
			{},
		}},
	))
	require.NoError(t, err)
	require.Len(t, resp.Citations, 2)

	src := resp.Citations[0].Source
	require.NotNil(t, src)
	assert.Equal(t, "EBT Manual", src.Title)
	assert.Nil(t, src.URI)
	assert.Nil(t, src.Excerpt)
	assert.Nil(t, src.Pages)

	assert.Equal(t, 2, resp.Citations[1].Number)
	assert.Nil(t, resp.Citations[1].Source)
}

func TestConsumeTransportError(t *testing.T) {
	cause := errors.New("connection reset by peer")
	s := func(yield func(*llm.Chunk, error) bool) {
		if !yield(text("partial"), nil) {
			return
		}
		yield(nil, cause)
	}

	resp, err := New().Consume(context.Background(), s)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrCanceled)
}

func TestConsumeCancelMidStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	yielded := 0
	s := func(yield func(*llm.Chunk, error) bool) {
		for i := 0; i < 10; i++ {
			yielded++
			if i == 1 {
				cancel()
			}
			if !yield(text("x"), nil) {
				return
			}
		}
	}

	resp, err := New().Consume(ctx, s)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, yielded, "consumption must stop at the first chunk after cancellation")
}

func TestConsumeCancelStopsProducerGoroutine(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	chunks := make([]*llm.Chunk, 50)
	for i := range chunks {
		chunks[i] = text("y")
	}

	s := chanStream(ctx, chunks...)
	cancel()

	resp, err := New().Consume(ctx, s)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestConsumeDeadlineExceeded(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := New().Consume(ctx, fromChunks(text("late")))
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConsumeChanStreamCompletes(t *testing.T) {
	ctx := context.Background()
	resp, err := New().Consume(ctx, chanStream(ctx, text("{"), text("}")))
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Text)
}
