package services

import (
	"context"
	"encoding/json"
	"strings"

	genai "github.com/google/generative-ai-go/genai"

	"docatlas/internal/ai"
	"docatlas/internal/logger"
	"docatlas/models"
)

// RefineService is the bounded agentic loop over the retrieved context: the
// model inspects the working set and picks one retrieval action per
// iteration until it declares the context sufficient or the iteration budget
// runs out.
type RefineService struct {
	store    SearchStore
	embedder QueryEmbedder
	gen      TextGenerator
	maxIters int
}

func NewRefineService(st SearchStore, em QueryEmbedder, gen TextGenerator, maxIters int) *RefineService {
	return &RefineService{store: st, embedder: em, gen: gen, maxIters: maxIters}
}

// agentDecision is the model's JSON verdict for one iteration.
type agentDecision struct {
	Action      string   `json:"action"`
	SearchTerms []string `json:"search_terms"`
}

const (
	actionSufficient = "sufficient_context"
	actionMore       = "search_more"
	actionSpecific   = "search_specific"
	actionExamples   = "need_examples"
	actionBroader    = "request_broader_context"
)

// widenedDistance corresponds to the loosened similarity threshold of 0.4
// used by search_more (cosine distance = 1 - similarity).
const widenedDistance = 0.6

// Refine expands the working set for up to maxIters iterations. Any
// malformed model output terminates the loop with the current set; the loop
// never fails the query.
func (rf *RefineService) Refine(ctx context.Context, query string, working []models.ScoredChunk) []models.ScoredChunk {
	for iter := 0; iter < rf.maxIters; iter++ {
		decision := rf.classify(ctx, query, working)
		if decision.Action == actionSufficient {
			return working
		}

		added, err := rf.act(ctx, query, decision, working)
		if err != nil {
			logger.Warn("Refinement action failed, keeping current context", "action", decision.Action, "error", err)
			return working
		}
		before := len(working)
		working = mergeChunks(working, added)
		logger.Info("Refinement iteration", "iteration", iter+1, "action", decision.Action, "added", len(working)-before)
	}
	return working
}

// classify asks the model for the next action, summarising the working set
// by its top chunk heads.
func (rf *RefineService) classify(ctx context.Context, query string, working []models.ScoredChunk) agentDecision {
	heads := make([]string, 0, 5)
	for _, c := range working {
		heads = append(heads, chunkHead(c.Text))
		if len(heads) == 5 {
			break
		}
	}

	resp, err := rf.gen.GenerateText(ctx, genai.Text(ai.RefinementPrompt(query, heads)))
	if err != nil {
		logger.Warn("Refinement classification failed", "error", err)
		return agentDecision{Action: actionSufficient}
	}

	var decision agentDecision
	if err := json.Unmarshal([]byte(StripCodeFences(resp)), &decision); err != nil || decision.Action == "" {
		// Malformed output means the agent loop stops, not that the query
		// fails.
		return agentDecision{Action: actionSufficient}
	}
	return decision
}

func (rf *RefineService) act(ctx context.Context, query string, decision agentDecision, working []models.ScoredChunk) ([]models.ScoredChunk, error) {
	switch decision.Action {
	case actionMore:
		vec, err := rf.embedder.EmbedQuery(ctx, query)
		if err != nil {
			return nil, err
		}
		return rf.store.VectorSearchWithin(ctx, vec, 15, widenedDistance)

	case actionSpecific:
		terms := decision.SearchTerms
		if len(terms) > 3 {
			terms = terms[:3]
		}
		var out []models.ScoredChunk
		for _, term := range terms {
			vec, err := rf.embedder.EmbedQuery(ctx, term)
			if err != nil {
				return nil, err
			}
			hits, err := rf.store.VectorSearch(ctx, vec, 3)
			if err != nil {
				return nil, err
			}
			out = mergeChunks(out, hits)
		}
		return out, nil

	case actionExamples:
		vec, err := rf.embedder.EmbedQuery(ctx, query+" example code configuration")
		if err != nil {
			return nil, err
		}
		hits, err := rf.store.VectorSearch(ctx, vec, 5)
		if err != nil {
			return nil, err
		}
		var examples []models.ScoredChunk
		for _, h := range hits {
			if HasCodeIndicators(h.Text) {
				examples = append(examples, h)
			}
		}
		return examples, nil

	case actionBroader:
		var out []models.ScoredChunk
		for i, c := range working {
			if i == 2 {
				break
			}
			neighbours, err := rf.store.ChunksRange(ctx, c.DocID, c.Index-1, c.Index+3)
			if err != nil {
				return nil, err
			}
			out = mergeChunks(out, neighbours)
		}
		return out, nil

	default:
		// Unknown action from the model: treat like sufficient_context.
		return nil, nil
	}
}

// chunkHead is the first line of a chunk, truncated for the classification
// prompt.
func chunkHead(text string) string {
	head := strings.TrimSpace(text)
	if i := strings.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	if len(head) > 120 {
		head = head[:120]
	}
	return head
}
