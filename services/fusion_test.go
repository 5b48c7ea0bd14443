package services

import (
	"math"
	"testing"

	"docatlas/models"
)

func chunksByID(ids ...int64) []models.ScoredChunk {
	out := make([]models.ScoredChunk, len(ids))
	for i, id := range ids {
		out[i] = models.ScoredChunk{ChunkID: id}
	}
	return out
}

func TestFuseRanksScores(t *testing.T) {
	keyword := chunksByID(1, 2, 3)
	vector := chunksByID(2, 1, 4)

	fused := FuseRanks(60, keyword, vector)
	if len(fused) != 4 {
		t.Fatalf("expected 4 fused chunks, got %d", len(fused))
	}

	scores := make(map[int64]float64)
	for _, c := range fused {
		scores[c.ChunkID] = c.Score
	}

	// Chunk 1: rank 1 in keyword, rank 2 in vector.
	want1 := 1.0/61 + 1.0/62
	if math.Abs(scores[1]-want1) > 1e-12 {
		t.Errorf("chunk 1 score = %v, want %v", scores[1], want1)
	}
	// Chunk 3 appears once at rank 3.
	want3 := 1.0 / 63
	if math.Abs(scores[3]-want3) > 1e-12 {
		t.Errorf("chunk 3 score = %v, want %v", scores[3], want3)
	}
}

func TestFuseRanksMonotonicity(t *testing.T) {
	// Chunk 10 outranks chunk 20 in both lists; it must not come out lower.
	keyword := chunksByID(10, 5, 20)
	vector := chunksByID(7, 10, 20)

	fused := FuseRanks(60, keyword, vector)
	pos := make(map[int64]int)
	for i, c := range fused {
		pos[c.ChunkID] = i
	}
	if pos[10] > pos[20] {
		t.Errorf("chunk 10 (better in both lists) ranked below chunk 20: %v", fused)
	}
}

func TestFuseRanksEmptyLists(t *testing.T) {
	if got := FuseRanks(60, nil, nil); len(got) != 0 {
		t.Errorf("expected empty fusion, got %v", got)
	}
	single := chunksByID(1, 2)
	fused := FuseRanks(60, single, nil)
	if len(fused) != 2 || fused[0].ChunkID != 1 {
		t.Errorf("single-list fusion should preserve order, got %v", fused)
	}
}
