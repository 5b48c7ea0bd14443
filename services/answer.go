package services

import (
	"context"

	genai "github.com/google/generative-ai-go/genai"

	"docatlas/internal/ai"
	"docatlas/internal/logger"
	"docatlas/models"
)

// AnswerService turns a fused chunk list into the final answer with cited
// sources. It never returns an error to the caller: every failure path
// degrades to a fallback answer string.
type AnswerService struct {
	gen        TextGenerator
	maxContext int
}

func NewAnswerService(gen TextGenerator, maxContext int) *AnswerService {
	return &AnswerService{gen: gen, maxContext: maxContext}
}

const (
	fallbackInfra = "No matching infrastructure documentation is indexed for this query. Ingest the relevant provider documentation or module source and try again."
	fallbackCode  = "No code or configuration examples are indexed for this query. Ingest documents containing example configurations and try again."
	fallbackError = "The knowledge base could not produce an answer for this query right now. Please try again."
)

// Assemble builds the answer: deduplicate source documents in first-seen
// order, cap the context, and hand everything to the generator.
func (as *AnswerService) Assemble(ctx context.Context, query string, tag models.QueryTag, chunks []models.ScoredChunk) *models.Answer {
	if len(chunks) == 0 {
		return as.emptyContextAnswer(ctx, query, tag)
	}

	if len(chunks) > as.maxContext {
		chunks = chunks[:as.maxContext]
	}

	sources := make([]models.Source, 0, len(chunks))
	seen := make(map[string]bool)
	contexts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		contexts = append(contexts, c.Text)
		key := c.DocID.String()
		if !seen[key] {
			seen[key] = true
			sources = append(sources, models.Source{ID: c.DocID, Name: c.Filename, URI: c.OriginalGCS})
		}
	}

	text, err := as.gen.GenerateText(ctx, genai.Text(ai.AnswerPrompt(query, string(tag), contexts)))
	if err != nil {
		logger.Error("Answer generation failed", "error", err)
		return &models.Answer{Answer: fallbackError, Sources: []models.Source{}}
	}
	return &models.Answer{Answer: text, Sources: sources}
}

// emptyContextAnswer handles queries with no retrieved context. Code-facing
// tags get a static pointer to ingest more material; everything else gets a
// clearly-labelled general-knowledge answer.
func (as *AnswerService) emptyContextAnswer(ctx context.Context, query string, tag models.QueryTag) *models.Answer {
	switch tag {
	case models.TagInfraCode:
		return &models.Answer{Answer: fallbackInfra, Sources: []models.Source{}}
	case models.TagCodeGeneration:
		return &models.Answer{Answer: fallbackCode, Sources: []models.Source{}}
	}

	text, err := as.gen.GenerateText(ctx, genai.Text(ai.GeneralKnowledgePrompt(query)))
	if err != nil {
		logger.Error("General-knowledge fallback failed", "error", err)
		return &models.Answer{Answer: fallbackError, Sources: []models.Source{}}
	}
	return &models.Answer{Answer: text, Sources: []models.Source{}}
}
