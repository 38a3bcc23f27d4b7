// Package extract recovers a JSON object from free-form model output.
//
// Strategies run in a fixed order and the first success wins:
//
//  1. the whole trimmed text
//  2. a greedy {...} match, then fenced ```json blocks
//  3. truncation repair: trim the tail of the text starting at the first '{'
//     until brace and bracket counts are non-negative, then close them
//
// Extraction never fails loudly; callers get (Result, false) instead.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

// DefaultMaxTrim bounds how many trailing characters truncation repair may drop.
const DefaultMaxTrim = 200

type Strategy string

const (
	StrategyWholeText   Strategy = "whole_text"
	StrategyBraceMatch  Strategy = "brace_match"
	StrategyFencedBlock Strategy = "fenced_block"
	StrategyRepair      Strategy = "truncation_repair"
)

var (
	bracePattern  = regexp.MustCompile(`(?is)\{.*\}`)
	fencedPattern = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{.*\\})\\s*```")
)

// Result is a syntactically valid JSON object and the strategy that
// produced it.
type Result struct {
	Record   map[string]any
	Strategy Strategy
	// Attempts counts parse attempts, including the successful one.
	Attempts int
}

type Extractor struct {
	maxTrim    int
	allowEmpty bool
}

type Option func(*Extractor)

// WithMaxTrim overrides DefaultMaxTrim. Negative values are treated as zero.
func WithMaxTrim(n int) Option {
	return func(e *Extractor) {
		if n < 0 {
			n = 0
		}
		e.maxTrim = n
	}
}

// WithEmptyRepair controls whether truncation repair may return an empty
// object. Prose with a stray '{' near the end otherwise repairs to {}.
// Allowed by default; other strategies always accept {}.
func WithEmptyRepair(allow bool) Option {
	return func(e *Extractor) { e.allowEmpty = allow }
}

func New(opts ...Option) *Extractor {
	e := &Extractor{maxTrim: DefaultMaxTrim, allowEmpty: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract runs with default settings.
func Extract(text string) (Result, bool) {
	return New().Extract(text)
}

// Extract returns the first JSON object recovered from text. Empty or
// whitespace-only text returns immediately with zero attempts.
func (e *Extractor) Extract(text string) (Result, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		zap.L().Warn("empty text provided for JSON extraction")
		return Result{}, false
	}

	var attempts int
	parse := func(s string) (map[string]any, bool) {
		attempts++
		return parseObject(s)
	}

	if rec, ok := parse(trimmed); ok {
		return Result{Record: rec, Strategy: StrategyWholeText, Attempts: attempts}, true
	}

	for _, p := range []struct {
		re       *regexp.Regexp
		strategy Strategy
	}{
		{bracePattern, StrategyBraceMatch},
		{fencedPattern, StrategyFencedBlock},
	} {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			candidate := m[0]
			if len(m) > 1 {
				candidate = m[1]
			}
			if rec, ok := parse(strings.TrimSpace(candidate)); ok {
				zap.L().Debug("extracted JSON by pattern", zap.String("strategy", string(p.strategy)))
				return Result{Record: rec, Strategy: p.strategy, Attempts: attempts}, true
			}
		}
	}

	if rec, ok := e.repair(text, parse); ok {
		zap.L().Info("recovered truncated JSON", zap.Int("attempts", attempts))
		return Result{Record: rec, Strategy: StrategyRepair, Attempts: attempts}, true
	}

	zap.L().Debug("JSON extraction failed", zap.Int("attempts", attempts), zap.Int("length", len(text)))
	return Result{}, false
}

func (e *Extractor) repair(text string, parse func(string) (map[string]any, bool)) (map[string]any, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, false
	}
	candidate := text[start:]

	for trimmed := 0; trimmed <= e.maxTrim && candidate != ""; trimmed++ {
		if d := countDepth(candidate); d.balancedOrOpen() {
			if rec, ok := parse(d.close(candidate)); ok {
				// shorter candidates can only close to {} as well
				if len(rec) == 0 && !e.allowEmpty {
					return nil, false
				}
				return rec, true
			}
		}
		_, size := utf8.DecodeLastRuneInString(candidate)
		candidate = candidate[:len(candidate)-size]
	}
	return nil, false
}

type depth struct {
	openBraces, closeBraces     int
	openBrackets, closeBrackets int
}

// countDepth counts structural characters without regard to string
// literals; the repair only needs a cheap balance estimate.
func countDepth(s string) depth {
	var d depth
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			d.openBraces++
		case '}':
			d.closeBraces++
		case '[':
			d.openBrackets++
		case ']':
			d.closeBrackets++
		}
	}
	return d
}

func (d depth) balancedOrOpen() bool {
	return d.openBraces >= d.closeBraces && d.openBrackets >= d.closeBrackets
}

// close drops a dangling comma and appends the missing brackets, then braces.
func (d depth) close(s string) string {
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	s = strings.TrimSuffix(s, ",")

	var b strings.Builder
	b.Grow(len(s) + d.openBrackets - d.closeBrackets + d.openBraces - d.closeBraces)
	b.WriteString(s)
	b.WriteString(strings.Repeat("]", d.openBrackets-d.closeBrackets))
	b.WriteString(strings.Repeat("}", d.openBraces-d.closeBraces))
	return b.String()
}

func parseObject(s string) (map[string]any, bool) {
	var rec map[string]any
	if err := json.Unmarshal([]byte(s), &rec); err != nil || rec == nil {
		return nil, false
	}
	return rec, true
}
