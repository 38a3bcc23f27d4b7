package analyzer

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sozercan/session-analyzer/apimodels"
	"github.com/sozercan/session-analyzer/internal/config"
	"github.com/sozercan/session-analyzer/internal/diagnostics"
	"github.com/sozercan/session-analyzer/internal/extract"
	"github.com/sozercan/session-analyzer/internal/llm"
	"github.com/sozercan/session-analyzer/internal/metrics"
	"github.com/sozercan/session-analyzer/internal/prompts"
	"github.com/sozercan/session-analyzer/internal/stream"
	"github.com/sozercan/session-analyzer/internal/tools"
	"github.com/sozercan/session-analyzer/internal/trigger"
)

var tracer = otel.Tracer("session-analyzer/analyzer")

// ErrEmptyTranscript is returned when a segment analysis has no entries.
var ErrEmptyTranscript = eris.New("transcript segment is empty")

// Analysis types as reported in diagnostics and response lines.
const (
	TypeRealtime        = "realtime"
	TypeComprehensive   = "comprehensive"
	TypePathwayGuidance = "pathway_guidance"
	TypeSessionSummary  = "session_summary"
)

// Prompt labels reported as prompt_used on realtime lines.
const (
	LabelStrict    = "strict"
	LabelNonStrict = "non-strict"
)

const (
	defaultApproach = "Cognitive Behavioral Therapy"
	noResponse      = "No response received"
)

// AttemptOutcome is one prompt, stream and extract cycle.
type AttemptOutcome struct {
	Prompt string
	Text   string
	// Record is nil when no JSON object could be recovered.
	Record      map[string]any
	Strategy    extract.Strategy
	Citations   []apimodels.Citation
	Diagnostics diagnostics.Record
	// StreamErr is set when the transport failed; Text is then empty.
	StreamErr error
}

func (o *AttemptOutcome) Parsed() bool {
	return o.Record != nil
}

// Preview is the first n characters of the model output, the stream error
// when the transport failed, or a placeholder when nothing arrived.
func (o *AttemptOutcome) Preview(n int) string {
	s := o.Text
	if o.StreamErr != nil {
		s = o.StreamErr.Error()
	}
	if s == "" {
		return noResponse
	}
	return truncate(s, n)
}

// RetryResult is the terminal state of a realtime retry cycle.
type RetryResult struct {
	TriggerDetected bool
	// Attempts holds one outcome per attempt, in the order they ran.
	Attempts     []*AttemptOutcome
	Succeeded    bool
	UsedFallback bool
}

// Final is the last attempt that ran.
func (r *RetryResult) Final() *AttemptOutcome {
	return r.Attempts[len(r.Attempts)-1]
}

type models struct {
	standard string
	pro      string
}

type Analyzer struct {
	llmProvider llm.Provider
	catalog     *prompts.Catalog
	detector    *trigger.Detector
	streamOpts  []stream.Option
	extractor   *extract.Extractor

	models       models
	cfg          config.AnalysisConfig
	previewChars int
	now          func() time.Time
}

type Option func(*Analyzer)

// WithClock replaces time.Now for latency and timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

func New(llmProvider llm.Provider, catalog *prompts.Catalog, cfg *config.Config, opts ...Option) *Analyzer {
	a := &Analyzer{
		llmProvider: llmProvider,
		catalog:     catalog,
		detector:    trigger.NewDetector(catalog.TriggerPhrases()),
		extractor: extract.New(
			extract.WithMaxTrim(cfg.Analysis.RepairTrimLimit),
			extract.WithEmptyRepair(cfg.Analysis.AcceptEmptyRepair),
		),
		models:       modelsFor(cfg),
		cfg:          cfg.Analysis,
		previewChars: cfg.Analysis.PreviewChars,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.streamOpts = []stream.Option{
		stream.WithClock(a.now),
		stream.WithPositionDedupe(cfg.Analysis.DedupeByPosition),
	}
	return a
}

func modelsFor(cfg *config.Config) models {
	if cfg.LLM.Provider == "openai" {
		m := cfg.OpenAI.Model
		if cfg.OpenAI.Provider == "azure" && cfg.OpenAI.DeploymentName != "" {
			m = cfg.OpenAI.DeploymentName
		}
		return models{standard: m, pro: m}
	}
	return models{standard: cfg.Gemini.Model, pro: cfg.Gemini.ProModel}
}

// Realtime runs the two-attempt retry protocol over the strict and
// non-strict realtime prompts. A trigger phrase in the latest entry puts
// the non-strict prompt first. Only caller cancellation and template
// failures are returned as errors; stream failures count as failed attempts.
func (a *Analyzer) Realtime(ctx context.Context, req apimodels.AnalysisRequest) (*RetryResult, error) {
	if len(req.TranscriptSegment) == 0 {
		return nil, ErrEmptyTranscript
	}

	texts := make([]string, len(req.TranscriptSegment))
	for i, e := range req.TranscriptSegment {
		texts[i] = e.Text
	}
	phrase, triggered := a.detector.DetectLatest(texts)

	order := []string{prompts.RealtimeStrict, prompts.Realtime}
	if triggered {
		order = []string{prompts.Realtime, prompts.RealtimeStrict}
		zap.L().Info("trigger phrase detected, trying non-strict prompt first", zap.String("phrase", phrase))
	}
	zap.L().Info("starting realtime analysis",
		zap.Bool("trigger_phrase_detected", triggered),
		zap.String("first_prompt", order[0]),
	)

	approach := req.SessionContext.CurrentApproach
	if approach == "" {
		approach = defaultApproach
	}
	data := prompts.RealtimeData{
		TranscriptText:       prompts.FormatTranscript(req.TranscriptSegment),
		PreviousAlertContext: prompts.PreviousAlertContext(req.PreviousAlert, true),
		CurrentApproach:      approach,
	}
	c := call{
		analysisType: TypeRealtime,
		model:        a.models.standard,
		gen:          a.cfg.Realtime,
		tools:        tools.ForSession(req.SessionContext.SessionType, false),
	}

	result := &RetryResult{TriggerDetected: triggered}
	for i, name := range order {
		prompt, err := a.catalog.Render(name, data)
		if err != nil {
			return nil, err
		}

		out, err := a.attempt(ctx, c, name, prompt)
		if err != nil {
			return nil, err
		}
		out.Diagnostics.MarkTrigger(triggered)
		result.Attempts = append(result.Attempts, out)

		if out.Parsed() {
			result.Succeeded = true
			if i > 0 {
				result.UsedFallback = true
				out.Diagnostics.UsedFallback = true
				metrics.RecordFallback()
			}
			return result, nil
		}
		if i+1 < len(order) {
			zap.L().Info("prompt failed, retrying with fallback",
				zap.String("failed", name),
				zap.String("fallback", order[i+1]),
				zap.Bool("stream_error", out.StreamErr != nil),
			)
		}
	}

	zap.L().Error("both prompts failed to produce valid JSON", zap.Strings("attempts", order))
	metrics.RecordExhausted()
	return result, nil
}

// call is the model profile shared by every attempt of one analysis.
type call struct {
	analysisType string
	model        string
	gen          config.GenerationConfig
	tools        []string
}

func (c call) options() []llm.Option {
	return []llm.Option{
		llm.WithModel(c.model),
		llm.WithTemperature(c.gen.Temperature),
		llm.WithMaxOutputTokens(c.gen.MaxOutputTokens),
		llm.WithThinkingBudget(c.gen.ThinkingBudget),
		llm.WithTools(c.tools...),
	}
}

// accumulatorFor applies the call's citation title on top of the shared
// stream options.
func (a *Analyzer) accumulatorFor(c call) *stream.Accumulator {
	opts := make([]stream.Option, 0, len(a.streamOpts)+1)
	opts = append(opts, a.streamOpts...)
	if c.gen.CitationTitle != "" {
		opts = append(opts, stream.WithCitationTitle(c.gen.CitationTitle))
	}
	return stream.New(opts...)
}

func (c call) thinkingBudget() *int {
	if c.gen.ThinkingBudget <= 0 {
		return nil
	}
	b := c.gen.ThinkingBudget
	return &b
}

// attempt streams one prompt and extracts its record. Transport failures are
// folded into the outcome; cancellation is returned.
func (a *Analyzer) attempt(ctx context.Context, c call, promptName, prompt string) (*AttemptOutcome, error) {
	ctx, span := tracer.Start(ctx, "Analyzer.attempt",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("analysis.type", c.analysisType),
			attribute.String("analysis.prompt", promptName),
			attribute.String("llm.model", c.model),
			attribute.StringSlice("llm.tools", c.tools),
		),
	)
	defer span.End()

	out := &AttemptOutcome{Prompt: promptName}

	start := a.now()
	resp, err := a.accumulatorFor(c).Consume(ctx, a.llmProvider.Stream(ctx, prompt, c.options()...))
	end := a.now()

	switch {
	case errors.Is(err, stream.ErrCanceled):
		span.RecordError(err)
		span.SetStatus(codes.Error, "canceled")
		zap.L().Warn("analysis canceled", zap.String("prompt", promptName), zap.Error(err))
		return nil, err
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream failed")
		zap.L().Error("model stream failed", zap.String("prompt", promptName), zap.Error(err))
		out.StreamErr = err
		resp = &stream.Response{}
	}

	out.Text = resp.Text
	out.Citations = resp.Citations
	res, ok := a.extractor.Extract(resp.Text)
	if ok {
		out.Record = res.Record
		out.Strategy = res.Strategy
	}

	out.Diagnostics = diagnostics.Build(diagnostics.Attempt{
		Model:           c.model,
		AnalysisType:    c.analysisType,
		PromptName:      promptName,
		Temperature:     c.gen.Temperature,
		MaxOutputTokens: c.gen.MaxOutputTokens,
		ThinkingBudget:  c.thinkingBudget(),
		RAGTools:        c.tools,
		Start:           start,
		FirstToken:      resp.FirstToken,
		End:             end,
		Usage:           resp.Usage,
		FinishReason:    resp.FinishReason,
		Citations:       resp.Citations,
		ResponseLength:  utf8.RuneCountInString(resp.Text),
		ParseSuccess:    ok,
	})

	a.record(c, out, end.Sub(start), resp.FirstToken, start)
	span.SetAttributes(
		attribute.Bool("analysis.parsed", ok),
		attribute.Int("analysis.citations", len(out.Citations)),
		attribute.Int("analysis.response_chars", out.Diagnostics.ResponseLengthChars),
	)
	return out, nil
}

func (a *Analyzer) record(c call, out *AttemptOutcome, latency time.Duration, firstToken *time.Time, start time.Time) {
	var ttft *time.Duration
	if firstToken != nil {
		d := firstToken.Sub(start)
		ttft = &d
	}
	metrics.ObserveLatency(c.analysisType, c.model, latency, ttft)

	outcome := metrics.OutcomeParsed
	switch {
	case out.StreamErr != nil:
		outcome = metrics.OutcomeStreamError
	case !out.Parsed():
		outcome = metrics.OutcomeUnparsable
	default:
		metrics.RecordRecovery(string(out.Strategy))
	}
	metrics.RecordAttempt(c.analysisType, out.Prompt, outcome)

	d := out.Diagnostics
	metrics.RecordTokens(c.analysisType, c.model, metrics.TokensPrompt, d.TokenUsage.PromptTokens)
	metrics.RecordTokens(c.analysisType, c.model, metrics.TokensCompletion, d.TokenUsage.CompletionTokens)
	metrics.RecordTokens(c.analysisType, c.model, metrics.TokensTotal, d.TokenUsage.TotalTokens)
	metrics.RecordTokens(c.analysisType, c.model, metrics.TokensThinking, d.TokenUsage.ThinkingTokens)
	metrics.RecordTokens(c.analysisType, c.model, metrics.TokensCached, d.TokenUsage.CachedTokens)
	fields := []zap.Field{
		zap.String("prompt", out.Prompt),
		zap.Int("length", d.ResponseLengthChars),
		zap.Int("citations", len(out.Citations)),
		zap.Int64("latency_ms", d.LatencyMS),
		zap.Any("tokens", d.TokenUsage),
	}
	if out.Parsed() {
		zap.L().Info("model response parsed", append(fields, zap.String("strategy", string(out.Strategy)))...)
		return
	}
	if out.StreamErr == nil {
		zap.L().Error("JSON parsing failed", append(fields, zap.String("preview", out.Preview(a.previewChars)))...)
		zap.L().Debug("full model response", zap.String("prompt", out.Prompt), zap.String("text", out.Text))
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
