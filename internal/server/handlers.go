package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/sozercan/session-analyzer/apimodels"
	"github.com/sozercan/session-analyzer/internal/analyzer"
)

const (
	missingBody   = "Missing JSON body"
	invalidAction = `Invalid action. Use "analyze_segment", "pathway_guidance", or "session_summary"`
)

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, missingBody)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	// null and {} carry nothing to act on
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if len(fields) == 0 {
		writeError(w, http.StatusBadRequest, missingBody)
		return
	}

	var req apimodels.AnalysisRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	zap.L().Debug("received analysis request",
		zap.String("request_id", RequestID(r.Context())),
		zap.String("action", req.Action),
	)

	switch req.Action {
	case apimodels.ActionAnalyzeSegment:
		s.handleSegment(w, r, req)
	case apimodels.ActionPathwayGuidance:
		s.handlePathwayGuidance(w, r, req)
	case apimodels.ActionSessionSummary:
		s.handleSessionSummary(w, r, req)
	default:
		writeError(w, http.StatusBadRequest, invalidAction)
	}
}

// handleSegment streams exactly one NDJSON line, success or structured error.
func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request, req apimodels.AnalysisRequest) {
	if len(req.TranscriptSegment) == 0 {
		writeError(w, http.StatusBadRequest, "Missing transcript_segment")
		return
	}

	line, err := s.analyzer.AnalyzeSegment(r.Context(), req)
	if err != nil {
		zap.L().Error("segment analysis failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Segment analysis failed: "+err.Error())
		return
	}
	writeLine(w, line)
}

// handlePathwayGuidance treats an empty record like an unparsable one.
func (s *Server) handlePathwayGuidance(w http.ResponseWriter, r *http.Request, req apimodels.AnalysisRequest) {
	out, err := s.analyzer.PathwayGuidance(r.Context(), req)
	switch {
	case err != nil:
		zap.L().Error("pathway guidance failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, analyzer.ErrMsgPathwayFailed+": "+err.Error())
	case out.StreamErr != nil:
		writeError(w, http.StatusInternalServerError, analyzer.ErrMsgPathwayFailed+": "+out.StreamErr.Error())
	case len(out.Record) > 0:
		writeJSON(w, http.StatusOK, out.RecordWithCitations())
	default:
		writeJSON(w, http.StatusInternalServerError, apimodels.ErrorResponse{
			Error:       analyzer.ErrMsgPathwayParse,
			RawResponse: out.Preview(s.previewChars),
		})
	}
}

// handleSessionSummary falls back to the raw model text when no record can
// be recovered.
func (s *Server) handleSessionSummary(w http.ResponseWriter, r *http.Request, req apimodels.AnalysisRequest) {
	out, err := s.analyzer.SessionSummary(r.Context(), req)
	switch {
	case err != nil:
		zap.L().Error("session summary failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, analyzer.ErrMsgSummaryFailed+": "+err.Error())
	case out.StreamErr != nil:
		writeError(w, http.StatusInternalServerError, analyzer.ErrMsgSummaryFailed+": "+out.StreamErr.Error())
	case out.Parsed():
		writeJSON(w, http.StatusOK, apimodels.SummaryResponse{Summary: out.RecordWithCitations()})
	default:
		zap.L().Warn("session summary is not JSON, returning raw text")
		writeJSON(w, http.StatusOK, apimodels.SummaryResponse{Summary: out.Text})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, apimodels.HealthResponse{Status: "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apimodels.ErrorResponse{Error: msg})
}

// writeLine writes one newline-terminated JSON line and flushes it.
func writeLine(w http.ResponseWriter, line analyzer.Line) {
	b, err := json.Marshal(line)
	if err != nil {
		zap.L().Error("failed to encode response line", zap.Error(err))
		b, _ = json.Marshal(apimodels.ErrorResponse{Error: "Analysis failed: " + err.Error()})
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(append(b, '\n')); err != nil {
		zap.L().Warn("failed to write response line", zap.Error(err))
		return
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
