package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForSession(t *testing.T) {
	tests := []struct {
		sessionType   string
		comprehensive bool
		want          []string
	}{
		{"CBT", false, []string{EBTCorpus, CBTCorpus}},
		{"BA", false, []string{EBTCorpus, BACorpus}},
		{"DBT", true, []string{EBTCorpus, DBTCorpus, TranscriptPatterns}},
		{"IPT", false, []string{EBTCorpus, IPTCorpus}},
		{"Exposure", false, []string{EBTCorpus, CBTCorpus}},
		{"ACT", true, []string{EBTCorpus, CBTCorpus, TranscriptPatterns}},
		{"Psychodynamic", false, []string{EBTCorpus, CBTCorpus}},
		{"", false, []string{EBTCorpus, CBTCorpus}},
	}
	for _, tt := range tests {
		t.Run(tt.sessionType, func(t *testing.T) {
			assert.Equal(t, tt.want, ForSession(tt.sessionType, tt.comprehensive))
		})
	}
}

func TestModalityCorpusIsCaseSensitive(t *testing.T) {
	assert.Equal(t, DBTCorpus, ModalityCorpus(" DBT "))
	assert.Equal(t, CBTCorpus, ModalityCorpus("dbt"))
}
