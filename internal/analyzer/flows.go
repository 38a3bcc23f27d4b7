package analyzer

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sozercan/session-analyzer/apimodels"
	"github.com/sozercan/session-analyzer/internal/diagnostics"
	"github.com/sozercan/session-analyzer/internal/prompts"
	"github.com/sozercan/session-analyzer/internal/tools"
)

// Error messages carried in response payloads.
const (
	ErrMsgRetryExhausted = "Failed to parse analysis response after retry - no valid JSON found"
	ErrMsgUnparsable     = "Failed to parse analysis response - no valid JSON found"
	ErrMsgPathwayParse   = "Failed to parse pathway guidance response - no valid JSON found"
	ErrMsgAnalysisFailed = "Analysis failed"
	ErrMsgPathwayFailed  = "Pathway guidance failed"
	ErrMsgSummaryFailed  = "Session summary failed"
)

const (
	defaultSessionType  = "General Therapy"
	defaultNotSpecified = "Not specified"
	diagnosticsKey      = "_diagnostics"
	citationsKey        = "citations"
)

// Line is one newline-delimited JSON response line.
type Line map[string]any

// AnalyzeSegment runs realtime or comprehensive analysis over a transcript
// window and returns the single line to stream back. Failed analyses are
// reported inside the line; the error is reserved for bad input,
// cancellation and template failures.
func (a *Analyzer) AnalyzeSegment(ctx context.Context, req apimodels.AnalysisRequest) (Line, error) {
	if len(req.TranscriptSegment) == 0 {
		return nil, ErrEmptyTranscript
	}
	phase := prompts.DeterminePhase(req.SessionDurationMinutes)

	zap.L().Info("segment analysis request",
		zap.Int("duration_minutes", req.SessionDurationMinutes),
		zap.Int("segments", len(req.TranscriptSegment)),
		zap.Bool("realtime", req.IsRealtime),
		zap.Bool("has_previous_alert", req.PreviousAlert != nil),
		zap.String("phase", phase),
	)

	if req.IsRealtime {
		res, err := a.Realtime(ctx, req)
		if err != nil {
			return nil, err
		}
		return a.realtimeLine(res, phase, req.JobID), nil
	}

	out, err := a.Comprehensive(ctx, req, phase)
	if err != nil {
		return nil, err
	}
	return a.comprehensiveLine(out, phase, req.JobID), nil
}

func (a *Analyzer) realtimeLine(res *RetryResult, phase string, jobID *string) Line {
	final := res.Final()
	if !res.Succeeded {
		names := make([]string, len(res.Attempts))
		for i, o := range res.Attempts {
			names[i] = o.Prompt
		}
		return Line{
			"error":                   ErrMsgRetryExhausted,
			"raw_response":            final.Preview(a.previewChars),
			"trigger_phrase_detected": res.TriggerDetected,
			"attempts":                names,
			diagnosticsKey:            final.Diagnostics,
		}
	}

	line := a.recordLine(final, TypeRealtime, phase, jobID)
	line["prompt_used"] = promptLabel(final.Prompt)
	line["trigger_phrase_detected"] = res.TriggerDetected
	if res.UsedFallback {
		line["used_fallback"] = true
	}
	return line
}

func promptLabel(name string) string {
	if name == prompts.RealtimeStrict {
		return LabelStrict
	}
	return LabelNonStrict
}

// Comprehensive runs a single grounded attempt on the pro model.
func (a *Analyzer) Comprehensive(ctx context.Context, req apimodels.AnalysisRequest, phase string) (*AttemptOutcome, error) {
	sc := req.SessionContext
	prompt, err := a.catalog.Render(prompts.Comprehensive, prompts.ComprehensiveData{
		Phase:           phase,
		PhaseFocus:      a.catalog.Phase(phase).Focus,
		SessionDuration: req.SessionDurationMinutes,
		SessionType:     orDefault(sc.SessionType, defaultSessionType),
		PrimaryConcern:  orDefault(sc.PrimaryConcern, defaultNotSpecified),
		CurrentApproach: orDefault(sc.CurrentApproach, defaultNotSpecified),
		TranscriptText:  prompts.FormatTranscript(req.TranscriptSegment),
	})
	if err != nil {
		return nil, err
	}

	return a.attempt(ctx, call{
		analysisType: TypeComprehensive,
		model:        a.models.pro,
		gen:          a.cfg.Comprehensive,
		tools:        tools.ForSession(sc.SessionType, true),
	}, prompts.Comprehensive, prompt)
}

func (a *Analyzer) comprehensiveLine(out *AttemptOutcome, phase string, jobID *string) Line {
	switch {
	case out.Parsed():
		return a.recordLine(out, TypeComprehensive, phase, jobID)
	case out.StreamErr != nil:
		return Line{
			"error":        ErrMsgAnalysisFailed + ": " + out.StreamErr.Error(),
			diagnosticsKey: out.Diagnostics,
		}
	default:
		return Line{
			"error":        ErrMsgUnparsable,
			"raw_response": out.Preview(a.previewChars),
			diagnosticsKey: out.Diagnostics,
		}
	}
}

// recordLine decorates a parsed record with response metadata. Injected
// keys win over keys of the same name in the record.
func (a *Analyzer) recordLine(out *AttemptOutcome, analysisType, phase string, jobID *string) Line {
	line := Line(out.RecordWithCitations())
	line["timestamp"] = a.now().Format(diagnostics.TimestampLayout)
	line["session_phase"] = phase
	line["analysis_type"] = analysisType
	if jobID != nil {
		line["job_id"] = *jobID
	}
	line[diagnosticsKey] = out.Diagnostics
	return line
}

// RecordWithCitations copies the record and adds citations when any were
// retrieved.
func (o *AttemptOutcome) RecordWithCitations() map[string]any {
	rec := make(map[string]any, len(o.Record)+1)
	for k, v := range o.Record {
		rec[k] = v
	}
	if len(o.Citations) > 0 {
		rec[citationsKey] = o.Citations
	}
	return rec
}

// PathwayGuidance asks the pro model whether the current treatment approach
// still fits the presenting issues.
func (a *Analyzer) PathwayGuidance(ctx context.Context, req apimodels.AnalysisRequest) (*AttemptOutcome, error) {
	zap.L().Info("pathway guidance request", zap.String("approach", req.CurrentApproach))

	prompt, err := a.catalog.Render(prompts.PathwayGuidance, prompts.PathwayData{
		CurrentApproach:  req.CurrentApproach,
		PresentingIssues: strings.Join(req.PresentingIssues, ", "),
		HistorySummary:   prompts.SummarizeHistory(req.SessionHistory),
	})
	if err != nil {
		return nil, err
	}

	return a.attempt(ctx, call{
		analysisType: TypePathwayGuidance,
		model:        a.models.pro,
		gen:          a.cfg.Pathway,
		tools:        tools.ForSession(req.SessionContext.SessionType, false),
	}, prompts.PathwayGuidance, prompt)
}

// SessionSummary summarizes a full session transcript.
func (a *Analyzer) SessionSummary(ctx context.Context, req apimodels.AnalysisRequest) (*AttemptOutcome, error) {
	zap.L().Info("session summary request", zap.Int("transcript_length", len(req.FullTranscript)))

	metricsJSON := "{}"
	if len(req.SessionMetrics) > 0 {
		b, err := json.MarshalIndent(req.SessionMetrics, "", "  ")
		if err != nil {
			return nil, eris.Wrap(err, "render session metrics")
		}
		metricsJSON = string(b)
	}

	prompt, err := a.catalog.Render(prompts.SessionSummary, prompts.SummaryData{
		TranscriptText: prompts.FormatTranscript(req.FullTranscript),
		SessionMetrics: metricsJSON,
	})
	if err != nil {
		return nil, err
	}

	return a.attempt(ctx, call{
		analysisType: TypeSessionSummary,
		model:        a.models.pro,
		gen:          a.cfg.Summary,
		tools:        tools.ForSession(req.SessionContext.SessionType, false),
	}, prompts.SessionSummary, prompt)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
