package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordAttempt(t *testing.T) {
	c := attempts.WithLabelValues("realtime", "REALTIME_ANALYSIS_PROMPT", OutcomeParsed)
	before := testutil.ToFloat64(c)

	RecordAttempt("realtime", "REALTIME_ANALYSIS_PROMPT", OutcomeParsed)
	RecordAttempt("realtime", "REALTIME_ANALYSIS_PROMPT", OutcomeParsed)

	assert.Equal(t, before+2, testutil.ToFloat64(c))
}

func TestRecordFallbackAndExhausted(t *testing.T) {
	f, e := testutil.ToFloat64(fallbacks), testutil.ToFloat64(exhausted)

	RecordFallback()
	RecordExhausted()

	assert.Equal(t, f+1, testutil.ToFloat64(fallbacks))
	assert.Equal(t, e+1, testutil.ToFloat64(exhausted))
}

func TestObserveLatencySkipsMissingTTFT(t *testing.T) {
	series := testutil.CollectAndCount(ttft)

	ObserveLatency("comprehensive", "model-without-ttft", 2*time.Second, nil)
	assert.Equal(t, series, testutil.CollectAndCount(ttft))

	first := 300 * time.Millisecond
	ObserveLatency("comprehensive", "model-with-ttft", 2*time.Second, &first)
	assert.Equal(t, series+1, testutil.CollectAndCount(ttft))
}

func TestRecordTokens(t *testing.T) {
	prompt := tokens.WithLabelValues("session_summary", "token-model", TokensPrompt)
	before := testutil.ToFloat64(prompt)
	n := int64(1200)

	RecordTokens("session_summary", "token-model", TokensPrompt, &n)
	assert.Equal(t, before+1200, testutil.ToFloat64(prompt))

	series := testutil.CollectAndCount(tokens)
	RecordTokens("session_summary", "token-model", TokensCached, nil)
	assert.Equal(t, series, testutil.CollectAndCount(tokens))
}
