// Package diagnostics builds the per-attempt _diagnostics record consumed by
// the client activity log. Field names are a wire contract.
package diagnostics

import (
	"strconv"
	"time"

	"github.com/sozercan/session-analyzer/apimodels"
	"github.com/sozercan/session-analyzer/internal/llm"
)

// TimestampLayout is ISO-8601 with microseconds and a UTC offset.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

const unknownTitle = "Unknown"

type Record struct {
	Model                 string     `json:"model"`
	AnalysisType          string     `json:"analysis_type"`
	PromptUsed            string     `json:"prompt_used"`
	Temperature           float64    `json:"temperature"`
	MaxOutputTokens       int        `json:"max_output_tokens"`
	ThinkingBudget        *int       `json:"thinking_budget"`
	RAGTools              []string   `json:"rag_tools"`
	LatencyMS             int64      `json:"latency_ms"`
	TTFTMS                *int64     `json:"ttft_ms"`
	TokenUsage            TokenUsage `json:"token_usage"`
	FinishReason          *string    `json:"finish_reason"`
	Grounding             Grounding  `json:"grounding"`
	ResponseLengthChars   int        `json:"response_length_chars"`
	JSONParseSuccess      bool       `json:"json_parse_success"`
	UsedFallback          bool       `json:"used_fallback"`
	TriggerPhraseDetected *bool      `json:"trigger_phrase_detected,omitempty"`
	Timestamp             string     `json:"timestamp"`
}

type TokenUsage struct {
	PromptTokens     *int64 `json:"prompt_tokens"`
	CompletionTokens *int64 `json:"completion_tokens"`
	TotalTokens      *int64 `json:"total_tokens"`
	ThinkingTokens   *int64 `json:"thinking_tokens"`
	CachedTokens     *int64 `json:"cached_tokens"`
}

type Grounding struct {
	ChunksRetrieved int      `json:"chunks_retrieved"`
	Sources         []Source `json:"sources"`
}

type Source struct {
	Title string `json:"title"`
	// Pages is "first-last", empty when the source has no page span.
	Pages string `json:"pages,omitempty"`
}

// Attempt is everything known about one finished model call.
type Attempt struct {
	Model           string
	AnalysisType    string
	PromptName      string
	Temperature     float64
	MaxOutputTokens int
	ThinkingBudget  *int
	RAGTools        []string

	Start      time.Time
	FirstToken *time.Time
	End        time.Time

	Usage        *llm.Usage
	FinishReason string
	Citations    []apimodels.Citation

	ResponseLength int
	ParseSuccess   bool
}

// Build is a pure function of a; the record timestamp is a.End.
func Build(a Attempt) Record {
	r := Record{
		Model:               a.Model,
		AnalysisType:        a.AnalysisType,
		PromptUsed:          a.PromptName,
		Temperature:         a.Temperature,
		MaxOutputTokens:     a.MaxOutputTokens,
		ThinkingBudget:      a.ThinkingBudget,
		RAGTools:            append([]string{}, a.RAGTools...),
		LatencyMS:           millis(a.End.Sub(a.Start)),
		TokenUsage:          tokenUsage(a.Usage),
		Grounding:           grounding(a.Citations),
		ResponseLengthChars: a.ResponseLength,
		JSONParseSuccess:    a.ParseSuccess,
		Timestamp:           a.End.Format(TimestampLayout),
	}
	if a.FirstToken != nil {
		ttft := millis(a.FirstToken.Sub(a.Start))
		r.TTFTMS = &ttft
	}
	if a.FinishReason != "" {
		fr := a.FinishReason
		r.FinishReason = &fr
	}
	return r
}

// MarkTrigger records the trigger-detection verdict after the fact.
func (r *Record) MarkTrigger(detected bool) {
	r.TriggerPhraseDetected = &detected
}

func millis(d time.Duration) int64 {
	return d.Round(time.Millisecond).Milliseconds()
}

func tokenUsage(u *llm.Usage) TokenUsage {
	if u == nil {
		return TokenUsage{}
	}
	return TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		ThinkingTokens:   u.ThinkingTokens,
		CachedTokens:     u.CachedTokens,
	}
}

func grounding(citations []apimodels.Citation) Grounding {
	g := Grounding{
		ChunksRetrieved: len(citations),
		Sources:         make([]Source, 0, len(citations)),
	}
	for _, c := range citations {
		s := Source{Title: unknownTitle}
		if c.Source != nil {
			s.Title = c.Source.Title
			if p := c.Source.Pages; p != nil {
				s.Pages = strconv.Itoa(p.First) + "-" + strconv.Itoa(p.Last)
			}
		}
		g.Sources = append(g.Sources, s)
	}
	return g
}
