package prompts

import (
	"fmt"
	"strings"

	"github.com/sozercan/session-analyzer/apimodels"
)

const (
	PhaseBeginning = "beginning"
	PhaseMiddle    = "middle"
	PhaseEnd       = "end"
)

const (
	noPreviousAlert    = "No previous alert to consider."
	noPreviousSessions = "No previous sessions"
	historyWindow      = 3
)

// DeterminePhase maps elapsed minutes to a session phase.
func DeterminePhase(minutes int) string {
	switch {
	case minutes <= 10:
		return PhaseBeginning
	case minutes <= 40:
		return PhaseMiddle
	default:
		return PhaseEnd
	}
}

var (
	therapistPrefixes = []string{"Therapist:", "T:"}
	clientPrefixes    = []string{"Client:", "C:", "Patient:", "P:"}
)

// FormatTranscript renders one "[timestamp] Speaker: text" line per entry.
// Entries from the combined "conversation" channel get their speaker
// inferred from a leading label.
func FormatTranscript(entries []apimodels.TranscriptEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		speaker, text := e.Speaker, e.Text
		if speaker == "" {
			speaker = "Unknown"
		}
		if speaker == "conversation" {
			switch {
			case hasAnyPrefix(text, therapistPrefixes):
				speaker, text = "Therapist", stripLabel(text)
			case hasAnyPrefix(text, clientPrefixes):
				speaker, text = "Client", stripLabel(text)
			}
		}

		if e.Timestamp != "" {
			lines = append(lines, fmt.Sprintf("[%s] %s: %s", e.Timestamp, speaker, text))
		} else {
			lines = append(lines, fmt.Sprintf("%s: %s", speaker, text))
		}
	}
	return strings.Join(lines, "\n")
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func stripLabel(s string) string {
	_, rest, _ := strings.Cut(s, ":")
	return strings.TrimSpace(rest)
}

// SummarizeHistory condenses the last three sessions into one line.
func SummarizeHistory(items []apimodels.SessionHistoryItem) string {
	if len(items) == 0 {
		return noPreviousSessions
	}
	if len(items) > historyWindow {
		items = items[len(items)-historyWindow:]
	}
	points := make([]string, 0, len(items))
	for _, it := range items {
		date := it.Date
		if date == "" {
			date = "Unknown date"
		}
		points = append(points, date+": "+strings.Join(it.MainTopics, ", "))
	}
	return strings.Join(points, "; ")
}

// PreviousAlertContext renders the last alert for de-duplication. Only
// realtime prompts see it.
func PreviousAlertContext(alert *apimodels.PreviousAlert, realtime bool) string {
	if alert == nil || !realtime {
		return noPreviousAlert
	}
	return fmt.Sprintf("Title: %s\nCategory: %s\nMessage: %s\nRecommendation: %s\nTiming: %s",
		orNA(alert.Title),
		orNA(alert.Category),
		orNA(alert.Message),
		orNA(alert.Recommendation),
		orNA(alert.Timing),
	)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
