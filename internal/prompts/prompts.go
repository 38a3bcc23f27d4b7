// Package prompts loads the prompt catalog and renders model prompts from
// session data.
package prompts

import (
	"bytes"
	_ "embed"
	"os"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Template names. Realtime variant names also appear in diagnostics and in
// the attempts list of an exhausted retry.
const (
	Realtime        = "REALTIME_ANALYSIS_PROMPT"
	RealtimeStrict  = "REALTIME_ANALYSIS_PROMPT_STRICT"
	Comprehensive   = "COMPREHENSIVE_ANALYSIS_PROMPT"
	PathwayGuidance = "PATHWAY_GUIDANCE_PROMPT"
	SessionSummary  = "SESSION_SUMMARY_PROMPT"
)

var requiredTemplates = []string{Realtime, RealtimeStrict, Comprehensive, PathwayGuidance, SessionSummary}

type Phase struct {
	Description string `yaml:"description"`
	Focus       string `yaml:"focus"`
}

type catalogFile struct {
	TriggerPhrases []string          `yaml:"trigger_phrases"`
	Phases         map[string]Phase  `yaml:"phases"`
	Templates      map[string]string `yaml:"templates"`
}

// Catalog is read-only after Load and safe for concurrent use.
type Catalog struct {
	triggerPhrases []string
	phases         map[string]Phase
	templates      map[string]*template.Template
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "read prompt catalog %s", path)
		}
		data = b
	}

	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	zap.L().Info("prompt catalog loaded",
		zap.String("path", path),
		zap.Int("templates", len(c.templates)),
		zap.Int("trigger_phrases", len(c.triggerPhrases)),
	)
	return c, nil
}

func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "decode prompt catalog")
	}

	c := &Catalog{
		triggerPhrases: f.TriggerPhrases,
		phases:         f.Phases,
		templates:      make(map[string]*template.Template, len(f.Templates)),
	}
	for name, src := range f.Templates {
		tmpl, err := template.New(name).Parse(src)
		if err != nil {
			return nil, eris.Wrapf(err, "parse template %s", name)
		}
		c.templates[name] = tmpl
	}

	for _, name := range requiredTemplates {
		if _, ok := c.templates[name]; !ok {
			return nil, eris.Errorf("prompt catalog: missing template %s", name)
		}
	}
	for _, p := range []string{PhaseBeginning, PhaseMiddle, PhaseEnd} {
		if _, ok := c.phases[p]; !ok {
			return nil, eris.Errorf("prompt catalog: missing phase %s", p)
		}
	}
	return c, nil
}

func (c *Catalog) TriggerPhrases() []string {
	return append([]string(nil), c.triggerPhrases...)
}

func (c *Catalog) Phase(name string) Phase {
	return c.phases[name]
}

// Render executes the named template with data.
func (c *Catalog) Render(name string, data any) (string, error) {
	tmpl, ok := c.templates[name]
	if !ok {
		return "", eris.Errorf("unknown prompt template %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", eris.Wrapf(err, "render %s", name)
	}
	return strings.TrimSpace(buf.String()), nil
}

type RealtimeData struct {
	TranscriptText       string
	PreviousAlertContext string
	CurrentApproach      string
}

type ComprehensiveData struct {
	Phase           string
	PhaseFocus      string
	SessionDuration int
	SessionType     string
	PrimaryConcern  string
	CurrentApproach string
	TranscriptText  string
}

type PathwayData struct {
	CurrentApproach  string
	PresentingIssues string
	HistorySummary   string
}

type SummaryData struct {
	TranscriptText string
	SessionMetrics string
}
