package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"docatlas/models"
)

// SearchStore is the retrieval surface of the persistence layer.
type SearchStore interface {
	VectorSearch(ctx context.Context, queryVec []float32, limit int) ([]models.ScoredChunk, error)
	VectorSearchWithin(ctx context.Context, queryVec []float32, limit int, maxDistance float64) ([]models.ScoredChunk, error)
	KeywordSearch(ctx context.Context, query string, limit int) ([]models.ScoredChunk, error)
	ChunksRange(ctx context.Context, docID uuid.UUID, start, end int) ([]models.ScoredChunk, error)
}

// QueryEmbedder embeds a single retrieval query.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// RetrieverService selects context chunks with a per-tag strategy. Infra
// queries lean on exact keyword matches for resource names; documentation
// queries pull surrounding chunks for continuity.
type RetrieverService struct {
	store       SearchStore
	embedder    QueryEmbedder
	contextSize int
}

func NewRetrieverService(st SearchStore, em QueryEmbedder, contextSize int) *RetrieverService {
	return &RetrieverService{store: st, embedder: em, contextSize: contextSize}
}

// Retrieve returns the candidate context for a classified query.
func (rs *RetrieverService) Retrieve(ctx context.Context, query string, tag models.QueryTag) ([]models.ScoredChunk, error) {
	switch tag {
	case models.TagInfraCode:
		return rs.retrieveInfra(ctx, query)
	case models.TagCodeGeneration:
		return rs.retrieveCodegen(ctx, query)
	case models.TagDocLookup:
		return rs.retrieveDocLookup(ctx, query)
	default:
		return rs.vectorTop(ctx, query, rs.contextSize)
	}
}

func (rs *RetrieverService) vectorTop(ctx context.Context, query string, limit int) ([]models.ScoredChunk, error) {
	vec, err := rs.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return rs.store.VectorSearch(ctx, vec, limit)
}

// retrieveInfra targets a provider_resource_type reference with exact
// keyword probes, falling back to prioritised vector search when the query
// names no resource or the probes come up empty.
func (rs *RetrieverService) retrieveInfra(ctx context.Context, query string) ([]models.ScoredChunk, error) {
	full, resourceType, ok := ExtractResourceRef(query)
	if ok {
		probes := []string{
			full,
			fmt.Sprintf("resource %q", full),
			resourceType,
		}
		var hits []models.ScoredChunk
		for _, probe := range probes {
			found, err := rs.store.KeywordSearch(ctx, probe, rs.contextSize)
			if err != nil {
				return nil, err
			}
			hits = mergeChunks(hits, found)
		}
		if len(hits) > 0 {
			top := hits[0]
			neighbours, err := rs.store.ChunksRange(ctx, top.DocID, top.Index-2, top.Index+3+rs.contextSize)
			if err != nil {
				return nil, err
			}
			hits = mergeChunks(hits, neighbours)
			return capChunks(hits, rs.contextSize), nil
		}
	}

	// Prioritised vector search: infra-looking documents bubble to the top.
	hits, err := rs.vectorTop(ctx, query, rs.contextSize*3)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return looksInfra(hits[i]) && !looksInfra(hits[j])
	})
	return capChunks(hits, rs.contextSize), nil
}

// retrieveCodegen combines example-bearing chunks with prioritised vector
// hits so the generator has both working code and reference prose.
func (rs *RetrieverService) retrieveCodegen(ctx context.Context, query string) ([]models.ScoredChunk, error) {
	exampleHits, err := rs.vectorTop(ctx, query+" example code configuration", rs.contextSize*3)
	if err != nil {
		return nil, err
	}
	var examples []models.ScoredChunk
	for _, h := range exampleHits {
		if HasCodeIndicators(h.Text) {
			examples = append(examples, h)
			if len(examples) == 3 {
				break
			}
		}
	}

	prioritised, err := rs.vectorTop(ctx, query, rs.contextSize*3)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(prioritised, func(i, j int) bool {
		return looksInfra(prioritised[i]) && !looksInfra(prioritised[j])
	})
	if len(prioritised) > 4 {
		prioritised = prioritised[:4]
	}

	return mergeChunks(examples, prioritised), nil
}

// retrieveDocLookup takes the top vector hits plus the immediate neighbours
// of the best one, so definitions are not cut off mid-paragraph.
func (rs *RetrieverService) retrieveDocLookup(ctx context.Context, query string) ([]models.ScoredChunk, error) {
	hits, err := rs.vectorTop(ctx, query, 5)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return hits, nil
	}

	top := hits[0]
	neighbours, err := rs.store.ChunksRange(ctx, top.DocID, top.Index-2, top.Index+3)
	if err != nil {
		return nil, err
	}
	merged := mergeChunks(hits[:1], neighbours)
	merged = mergeChunks(merged, hits[1:])
	return capChunks(merged, rs.contextSize), nil
}

// HasCodeIndicators reports whether chunk text carries configuration or
// code examples.
func HasCodeIndicators(text string) bool {
	if strings.Contains(text, `resource "`) || strings.Contains(text, `provider "`) {
		return true
	}
	if strings.Contains(text, "```") {
		return true
	}
	return strings.Contains(text, "{") && strings.Contains(text, "}")
}

// looksInfra is the prioritisation heuristic for infra and api-reference
// documents.
func looksInfra(c models.ScoredChunk) bool {
	return IsInfraCode(c.Filename, c.Text)
}

// mergeChunks unions two lists preserving first-seen order, deduplicating by
// chunk id.
func mergeChunks(a, b []models.ScoredChunk) []models.ScoredChunk {
	seen := make(map[int64]bool, len(a))
	out := make([]models.ScoredChunk, 0, len(a)+len(b))
	for _, c := range a {
		if !seen[c.ChunkID] {
			seen[c.ChunkID] = true
			out = append(out, c)
		}
	}
	for _, c := range b {
		if !seen[c.ChunkID] {
			seen[c.ChunkID] = true
			out = append(out, c)
		}
	}
	return out
}

func capChunks(chunks []models.ScoredChunk, limit int) []models.ScoredChunk {
	if len(chunks) > limit {
		return chunks[:limit]
	}
	return chunks
}
