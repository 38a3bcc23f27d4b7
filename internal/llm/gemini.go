package llm

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/sozercan/session-analyzer/internal/config"
)

// Gemini streams completions from Gemini, on Vertex AI by default. Retrieval
// tools are resolved to Vertex AI Search datastores of the configured project.
type Gemini struct {
	client *genai.Client
	cfg    *config.GeminiConfig
}

func NewGemini(ctx context.Context, cfg *config.GeminiConfig) (*Gemini, error) {
	cc := &genai.ClientConfig{}
	if cfg.APIKey != "" {
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	} else {
		if cfg.Project == "" {
			return nil, eris.New("gemini: project is required for Vertex AI")
		}
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		cc.Backend = genai.BackendVertexAI
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}

	zap.L().Info("gemini client initialized",
		zap.String("project", cfg.Project),
		zap.String("location", cfg.Location),
		zap.Bool("vertex", cc.Backend == genai.BackendVertexAI),
	)
	return &Gemini{client: client, cfg: cfg}, nil
}

func (g *Gemini) Stream(ctx context.Context, prompt string, opts ...Option) Stream {
	options := applyOptions(Options{Model: g.cfg.Model}, opts)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	genCfg := g.generateConfig(options)

	return func(yield func(*Chunk, error) bool) {
		for resp, err := range g.client.Models.GenerateContentStream(ctx, options.Model, contents, genCfg) {
			if err != nil {
				yield(nil, &StreamError{Provider: "gemini", Err: err})
				return
			}
			if !yield(chunkFromResponse(resp), nil) {
				return
			}
		}
	}
}

func (g *Gemini) generateConfig(o Options) *genai.GenerateContentConfig {
	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(o.Temperature)),
		MaxOutputTokens: int32(o.MaxOutputTokens),
		SafetySettings:  safetySettingsOff(),
	}
	if o.ThinkingBudget != nil {
		genCfg.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget:  genai.Ptr(int32(*o.ThinkingBudget)),
			IncludeThoughts: false,
		}
	}
	if len(o.Tools) > 0 {
		if g.cfg.APIKey != "" {
			zap.L().Warn("retrieval tools require Vertex AI, ignoring", zap.Strings("tools", o.Tools))
		} else {
			genCfg.Tools = retrievalTools(g.cfg.Project, g.cfg.DatastoreLocation, o.Tools)
		}
	}
	return genCfg
}

// DatastorePath is the fully qualified Vertex AI Search datastore resource.
func DatastorePath(project, location, id string) string {
	return fmt.Sprintf("projects/%s/locations/%s/collections/default_collection/dataStores/%s", project, location, id)
}

func retrievalTools(project, location string, ids []string) []*genai.Tool {
	tools := make([]*genai.Tool, 0, len(ids))
	for _, id := range ids {
		tools = append(tools, &genai.Tool{
			Retrieval: &genai.Retrieval{
				VertexAISearch: &genai.VertexAISearch{
					Datastore: DatastorePath(project, location, id),
				},
			},
		})
	}
	return tools
}

// Clinical transcripts routinely trip the default harm filters.
func safetySettingsOff() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdOff,
		})
	}
	return settings
}

// chunkFromResponse reads the first candidate only; thought parts are dropped.
func chunkFromResponse(resp *genai.GenerateContentResponse) *Chunk {
	chunk := &Chunk{}
	if resp == nil {
		return chunk
	}

	if u := resp.UsageMetadata; u != nil {
		chunk.Usage = &Usage{
			PromptTokens:     int64Ptr(int64(u.PromptTokenCount)),
			CompletionTokens: int64Ptr(int64(u.CandidatesTokenCount)),
			TotalTokens:      int64Ptr(int64(u.TotalTokenCount)),
			ThinkingTokens:   int64Ptr(int64(u.ThoughtsTokenCount)),
			CachedTokens:     int64Ptr(int64(u.CachedContentTokenCount)),
		}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return chunk
	}
	cand := resp.Candidates[0]
	chunk.FinishReason = string(cand.FinishReason)

	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought || part.Text == "" {
				continue
			}
			chunk.Texts = append(chunk.Texts, part.Text)
		}
	}

	if gm := cand.GroundingMetadata; gm != nil && len(gm.GroundingChunks) > 0 {
		chunk.Grounding = make([]GroundingSource, 0, len(gm.GroundingChunks))
		for _, gc := range gm.GroundingChunks {
			chunk.Grounding = append(chunk.Grounding, groundingSource(gc))
		}
	}
	return chunk
}

func groundingSource(gc *genai.GroundingChunk) GroundingSource {
	if gc == nil || gc.RetrievedContext == nil {
		return GroundingSource{}
	}
	rc := gc.RetrievedContext
	src := &RetrievedContext{
		Title: rc.Title,
		URI:   rc.URI,
		Text:  rc.Text,
	}
	if rc.RAGChunk != nil && rc.RAGChunk.PageSpan != nil {
		src.Pages = &PageRange{
			First: int(rc.RAGChunk.PageSpan.FirstPage),
			Last:  int(rc.RAGChunk.PageSpan.LastPage),
		}
	}
	return GroundingSource{Retrieved: src}
}
