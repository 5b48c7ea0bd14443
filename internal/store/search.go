package store

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"docatlas/internal/faults"
	"docatlas/models"
)

// VectorSearch returns the top-limit chunks from Ready documents by
// ascending cosine distance against the query vector.
func (s *Store) VectorSearch(ctx context.Context, queryVec []float32, limit int) ([]models.ScoredChunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.doc_id, d.filename, d.original_gcs, c.chunk_index, c.text, c.embedding <=> $1 AS distance
		 FROM chunks c
		 JOIN documents d ON d.id = c.doc_id
		 WHERE d.status = $2
		 ORDER BY distance
		 LIMIT $3`,
		pgvector.NewVector(queryVec), models.StatusReady, limit)
	if err != nil {
		return nil, faults.Wrap(faults.Upstream, "store.VectorSearch", err)
	}
	defer rows.Close()
	return scanScored(rows)
}

// VectorSearchWithin is VectorSearch with a distance ceiling, used by the
// refinement agent's widened search.
func (s *Store) VectorSearchWithin(ctx context.Context, queryVec []float32, limit int, maxDistance float64) ([]models.ScoredChunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.doc_id, d.filename, d.original_gcs, c.chunk_index, c.text, c.embedding <=> $1 AS distance
		 FROM chunks c
		 JOIN documents d ON d.id = c.doc_id
		 WHERE d.status = $2 AND c.embedding <=> $1 <= $3
		 ORDER BY distance
		 LIMIT $4`,
		pgvector.NewVector(queryVec), models.StatusReady, maxDistance, limit)
	if err != nil {
		return nil, faults.Wrap(faults.Upstream, "store.VectorSearchWithin", err)
	}
	defer rows.Close()
	return scanScored(rows)
}

// stopwords excluded from keyword scoring. Small on purpose; the vector side
// of hybrid retrieval carries the semantic weight.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "do": true, "for": true, "from": true,
	"how": true, "i": true, "in": true, "is": true, "it": true, "of": true,
	"on": true, "or": true, "that": true, "the": true, "this": true, "to": true,
	"was": true, "what": true, "where": true, "which": true, "with": true,
}

var wordPattern = regexp.MustCompile(`[a-z0-9_.]+`)

// tokenizeQuery lowercases and splits the query into scoring terms,
// dropping stopwords. Underscores and dots stay inside tokens so resource
// names like aws_s3_bucket survive intact.
func tokenizeQuery(query string) []string {
	raw := wordPattern.FindAllString(strings.ToLower(query), -1)
	terms := make([]string, 0, len(raw))
	seen := make(map[string]bool)
	for _, t := range raw {
		if stopwords[t] || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return terms
}

// scoreText counts term occurrences in the lowercased text.
func scoreText(text string, terms []string) float64 {
	lower := strings.ToLower(text)
	score := 0
	for _, t := range terms {
		score += strings.Count(lower, t)
	}
	return float64(score)
}

// KeywordSearch is the term-matching half of hybrid retrieval: a naive
// occurrence count over chunk text from Ready documents. The database does a
// coarse ILIKE prefilter; exact scoring and ordering happen here.
func (s *Store) KeywordSearch(ctx context.Context, query string, limit int) ([]models.ScoredChunk, error) {
	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		return nil, nil
	}

	patterns := make([]string, len(terms))
	for i, t := range terms {
		patterns[i] = "%" + t + "%"
	}

	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.doc_id, d.filename, d.original_gcs, c.chunk_index, c.text
		 FROM chunks c
		 JOIN documents d ON d.id = c.doc_id
		 WHERE d.status = $1 AND c.text ILIKE ANY($2)`,
		models.StatusReady, patterns)
	if err != nil {
		return nil, faults.Wrap(faults.Upstream, "store.KeywordSearch", err)
	}
	defer rows.Close()

	var hits []models.ScoredChunk
	for rows.Next() {
		var c models.ScoredChunk
		if err := rows.Scan(&c.ChunkID, &c.DocID, &c.Filename, &c.OriginalGCS, &c.Index, &c.Text); err != nil {
			return nil, faults.Wrap(faults.Upstream, "store.KeywordSearch", err)
		}
		c.Score = scoreText(c.Text, terms)
		if c.Score > 0 {
			hits = append(hits, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.Upstream, "store.KeywordSearch", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// ChunksRange fetches chunks with ordinals in [start, end) for one document,
// ordered by ordinal. Out-of-range ordinals simply return fewer rows.
func (s *Store) ChunksRange(ctx context.Context, docID uuid.UUID, start, end int) ([]models.ScoredChunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.doc_id, d.filename, d.original_gcs, c.chunk_index, c.text, 0.0
		 FROM chunks c
		 JOIN documents d ON d.id = c.doc_id
		 WHERE c.doc_id = $1 AND c.chunk_index >= $2 AND c.chunk_index < $3
		 ORDER BY c.chunk_index`,
		docID, start, end)
	if err != nil {
		return nil, faults.Wrap(faults.Upstream, "store.ChunksRange", err)
	}
	defer rows.Close()
	return scanScored(rows)
}

func scanScored(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]models.ScoredChunk, error) {
	var out []models.ScoredChunk
	for rows.Next() {
		var c models.ScoredChunk
		if err := rows.Scan(&c.ChunkID, &c.DocID, &c.Filename, &c.OriginalGCS, &c.Index, &c.Text, &c.Distance); err != nil {
			return nil, faults.Wrap(faults.Upstream, "store.scan", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.Upstream, "store.scan", err)
	}
	return out, nil
}
