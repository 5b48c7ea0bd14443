package models

import "github.com/google/uuid"

// Chunk is a contiguous text window cut from a document. Ordinals within a
// document form a contiguous [0,N) range.
type Chunk struct {
	ID        int64     `json:"id"`
	DocID     uuid.UUID `json:"doc_id"`
	Index     int       `json:"chunk_index"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
}

// ScoredChunk is a retrieval hit: a chunk joined with its document metadata
// and whichever score the producing search assigned.
type ScoredChunk struct {
	ChunkID     int64     `json:"chunk_id"`
	DocID       uuid.UUID `json:"doc_id"`
	Filename    string    `json:"filename"`
	OriginalGCS string    `json:"-"`
	Index       int       `json:"chunk_index"`
	Text        string    `json:"text"`
	// Distance is the cosine distance for vector hits (lower is better).
	Distance float64 `json:"distance,omitempty"`
	// Score is the term-occurrence count for keyword hits or the fused
	// RRF score after rank fusion (higher is better).
	Score float64 `json:"score,omitempty"`
}

// ChunkPoint is one chunk's position in the 3D projection.
type ChunkPoint struct {
	ChunkID int64   `json:"chunk_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
}

// SpatialChunk is the UI read view: a 3D point with enough document context
// to label it.
type SpatialChunk struct {
	ChunkID  int64     `json:"chunk_id"`
	DocID    uuid.UUID `json:"doc_id"`
	Filename string    `json:"filename"`
	Index    int       `json:"chunk_index"`
	Snippet  string    `json:"snippet"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Z        float64   `json:"z"`
}
