// Package tools selects the retrieval corpora a model call is grounded on.
// Names are Vertex AI Search datastore ids; the Gemini provider resolves
// them to full resource paths.
package tools

import (
	"strings"

	"go.uber.org/zap"
)

const (
	EBTCorpus          = "ebt-corpus"
	CBTCorpus          = "cbt-corpus"
	BACorpus           = "ba-corpus"
	DBTCorpus          = "dbt-corpus"
	IPTCorpus          = "ipt-corpus"
	TranscriptPatterns = "transcript-patterns"

	DefaultSessionType = "CBT"
)

// modalityCorpora maps a session type to its research corpus. Exposure and
// ACT share the cognitive-behavioral evidence base.
var modalityCorpora = map[string]string{
	"CBT":      CBTCorpus,
	"BA":       BACorpus,
	"DBT":      DBTCorpus,
	"IPT":      IPTCorpus,
	"Exposure": CBTCorpus,
	"ACT":      CBTCorpus,
}

// ModalityCorpus returns the research corpus for sessionType, falling back
// to the CBT corpus for unknown or empty types.
func ModalityCorpus(sessionType string) string {
	if c, ok := modalityCorpora[strings.TrimSpace(sessionType)]; ok {
		return c
	}
	return CBTCorpus
}

// ForSession returns the core manuals corpus, the modality corpus, and for
// comprehensive analyses the transcript pattern corpus.
func ForSession(sessionType string, comprehensive bool) []string {
	if sessionType == "" {
		sessionType = DefaultSessionType
	}
	ids := []string{EBTCorpus, ModalityCorpus(sessionType)}
	if comprehensive {
		ids = append(ids, TranscriptPatterns)
	}
	zap.L().Debug("selected retrieval tools",
		zap.String("session_type", sessionType),
		zap.Strings("tools", ids),
	)
	return ids
}
