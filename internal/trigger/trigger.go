// Package trigger detects risk phrases in the most recent transcript entry.
package trigger

import "strings"

// Detector holds an immutable, lowercased phrase set. It is safe for
// concurrent use.
type Detector struct {
	phrases []string
}

func NewDetector(phrases []string) *Detector {
	lowered := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		lowered = append(lowered, p)
	}
	return &Detector{phrases: lowered}
}

// Match reports the first phrase contained in text, ignoring case.
func (d *Detector) Match(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, p := range d.phrases {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}

// DetectLatest checks only the last of units and reports the phrase that
// fired. Earlier units never trigger.
func (d *Detector) DetectLatest(units []string) (string, bool) {
	if len(units) == 0 {
		return "", false
	}
	return d.Match(units[len(units)-1])
}
