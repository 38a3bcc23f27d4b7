package apimodels

// Supported values of AnalysisRequest.Action.
const (
	ActionAnalyzeSegment  = "analyze_segment"
	ActionPathwayGuidance = "pathway_guidance"
	ActionSessionSummary  = "session_summary"
)

type AnalysisRequest struct {
	// Action selects the analysis flow
	Action string `json:"action"`

	// Transcript window for analyze_segment; the last entry drives trigger detection
	TranscriptSegment []TranscriptEntry `json:"transcript_segment,omitempty"`

	SessionContext SessionContext `json:"session_context,omitempty"`

	// Elapsed session time, used to pick the therapy phase
	SessionDurationMinutes int `json:"session_duration_minutes,omitempty"`

	// IsRealtime selects the fast two-attempt path instead of comprehensive analysis
	IsRealtime bool `json:"is_realtime,omitempty"`

	// Previous alert, rendered into the realtime prompt for de-duplication
	PreviousAlert *PreviousAlert `json:"previous_alert,omitempty"`

	// JobID pairs realtime and comprehensive results for the same window
	JobID *string `json:"job_id,omitempty"`

	// pathway_guidance
	CurrentApproach  string               `json:"current_approach,omitempty"`
	SessionHistory   []SessionHistoryItem `json:"session_history,omitempty"`
	PresentingIssues []string             `json:"presenting_issues,omitempty"`

	// session_summary
	FullTranscript []TranscriptEntry `json:"full_transcript,omitempty"`
	SessionMetrics map[string]any    `json:"session_metrics,omitempty"`
}

type TranscriptEntry struct {
	Speaker   string `json:"speaker,omitempty"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
}

type SessionContext struct {
	SessionType     string `json:"session_type,omitempty"`
	PrimaryConcern  string `json:"primary_concern,omitempty"`
	CurrentApproach string `json:"current_approach,omitempty"`
}

type PreviousAlert struct {
	Title          string `json:"title,omitempty"`
	Category       string `json:"category,omitempty"`
	Message        string `json:"message,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
	Timing         string `json:"timing,omitempty"`
}

type SessionHistoryItem struct {
	Date       string   `json:"date,omitempty"`
	MainTopics []string `json:"main_topics,omitempty"`
}
