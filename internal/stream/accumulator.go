// Package stream folds a model's chunk stream into a single response.
package stream

import (
	"context"
	"strings"
	"time"

	"github.com/sozercan/session-analyzer/apimodels"
	"github.com/sozercan/session-analyzer/internal/llm"
)

const DefaultCitationTitle = "Clinical Manual"

// Response is the accumulated result of one stream. It is not modified
// after Consume returns.
type Response struct {
	Text string

	// FirstToken is nil when no chunk carried text.
	FirstToken *time.Time

	Citations []apimodels.Citation

	// Usage and FinishReason come from the last chunk received.
	Usage        *llm.Usage
	FinishReason string

	Chunks int
}

type Accumulator struct {
	now              func() time.Time
	citationTitle    string
	dedupeByPosition bool
}

type Option func(*Accumulator)

// WithClock replaces time.Now for first-token stamps.
func WithClock(now func() time.Time) Option {
	return func(a *Accumulator) { a.now = now }
}

// WithCitationTitle sets the title used for sources that carry none.
func WithCitationTitle(title string) Option {
	return func(a *Accumulator) { a.citationTitle = title }
}

// WithPositionDedupe controls whether grounding entries at positions already
// seen in an earlier chunk are skipped. Enabled by default.
func WithPositionDedupe(enabled bool) Option {
	return func(a *Accumulator) { a.dedupeByPosition = enabled }
}

func New(opts ...Option) *Accumulator {
	a := &Accumulator{
		now:              time.Now,
		citationTitle:    DefaultCitationTitle,
		dedupeByPosition: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Consume reads s to the end. On a transport error or cancellation the
// partial text is discarded and the returned error matches ErrTransport or
// ErrCanceled.
func (a *Accumulator) Consume(ctx context.Context, s llm.Stream) (*Response, error) {
	var (
		text strings.Builder
		resp Response
		// longest grounding list observed in any single chunk
		seen int
	)

	for chunk, err := range s {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, canceledError(ctxErr)
		}
		if err != nil {
			return nil, transportError(err)
		}
		if chunk == nil {
			continue
		}
		resp.Chunks++

		for _, fragment := range chunk.Texts {
			if fragment == "" {
				continue
			}
			if resp.FirstToken == nil {
				t := a.now()
				resp.FirstToken = &t
			}
			text.WriteString(fragment)
		}

		if chunk.Grounding != nil {
			start := 0
			if a.dedupeByPosition {
				start = seen
			}
			for i := start; i < len(chunk.Grounding); i++ {
				resp.Citations = append(resp.Citations, a.citation(len(resp.Citations)+1, chunk.Grounding[i]))
			}
			if len(chunk.Grounding) > seen {
				seen = len(chunk.Grounding)
			}
		}

		resp.Usage = chunk.Usage
		resp.FinishReason = chunk.FinishReason
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, canceledError(ctxErr)
	}

	resp.Text = text.String()
	return &resp, nil
}

func (a *Accumulator) citation(number int, g llm.GroundingSource) apimodels.Citation {
	c := apimodels.Citation{Number: number}
	rc := g.Retrieved
	if rc == nil {
		return c
	}

	src := &apimodels.CitationSource{
		Title:   rc.Title,
		URI:     optional(rc.URI),
		Excerpt: optional(rc.Text),
	}
	if src.Title == "" {
		src.Title = a.citationTitle
	}
	if rc.Pages != nil {
		src.Pages = &apimodels.PageSpan{First: rc.Pages.First, Last: rc.Pages.Last}
	}
	c.Source = src
	return c
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
