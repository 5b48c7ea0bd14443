package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"docatlas/models"
)

func workingSet(ids ...int64) []models.ScoredChunk {
	out := make([]models.ScoredChunk, len(ids))
	for i, id := range ids {
		out[i] = models.ScoredChunk{ChunkID: id, DocID: uuid.Nil, Index: int(id), Text: "chunk text"}
	}
	return out
}

func TestRefineSufficientContextStopsImmediately(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`{"action":"sufficient_context"}`}}
	rf := NewRefineService(&fakeSearchStore{}, fakeQueryEmbedder{}, gen, 3)

	initial := workingSet(1, 2)
	got := rf.Refine(context.Background(), "query", initial)
	if len(got) != 2 || gen.calls != 1 {
		t.Fatalf("got %d chunks after %d calls", len(got), gen.calls)
	}
}

func TestRefineTerminatesWithinBudget(t *testing.T) {
	// The model always asks for more; the loop must stop at 3 iterations.
	gen := &fakeGenerator{responses: []string{
		`{"action":"search_more"}`,
		`{"action":"search_more"}`,
		`{"action":"search_more"}`,
		`{"action":"search_more"}`,
	}}
	st := &fakeSearchStore{vectorHits: []models.ScoredChunk{{ChunkID: 99, Distance: 0.5}}}
	rf := NewRefineService(st, fakeQueryEmbedder{}, gen, 3)

	rf.Refine(context.Background(), "query", workingSet(1))
	if gen.calls != 3 {
		t.Fatalf("expected exactly 3 classification calls, got %d", gen.calls)
	}
}

func TestRefineMalformedJSONStops(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"I think the context looks fine!"}}
	rf := NewRefineService(&fakeSearchStore{}, fakeQueryEmbedder{}, gen, 3)

	got := rf.Refine(context.Background(), "query", workingSet(1))
	if len(got) != 1 || gen.calls != 1 {
		t.Fatalf("malformed output should stop the loop: %d chunks, %d calls", len(got), gen.calls)
	}
}

func TestRefineModelErrorStops(t *testing.T) {
	gen := &fakeGenerator{errs: []error{errors.New("model down")}}
	rf := NewRefineService(&fakeSearchStore{}, fakeQueryEmbedder{}, gen, 3)

	got := rf.Refine(context.Background(), "query", workingSet(1, 2, 3))
	if len(got) != 3 {
		t.Fatalf("model failure should keep the working set, got %d", len(got))
	}
}

func TestRefineSearchSpecificMergesByChunkID(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		`{"action":"search_specific","search_terms":["locking","backend","state","extra-ignored"]}`,
		`{"action":"sufficient_context"}`,
	}}
	st := &fakeSearchStore{vectorHits: []models.ScoredChunk{{ChunkID: 1}, {ChunkID: 7}}}
	rf := NewRefineService(st, fakeQueryEmbedder{}, gen, 3)

	got := rf.Refine(context.Background(), "query", workingSet(1))
	ids := map[int64]int{}
	for _, c := range got {
		ids[c.ChunkID]++
	}
	if ids[1] != 1 {
		t.Errorf("chunk 1 duplicated or lost: %v", ids)
	}
	if ids[7] != 1 {
		t.Errorf("new chunk 7 not merged: %v", ids)
	}
}

func TestRefineBroaderContextFetchesNeighbours(t *testing.T) {
	docID := uuid.New()
	gen := &fakeGenerator{responses: []string{
		`{"action":"request_broader_context"}`,
		`{"action":"sufficient_context"}`,
	}}
	st := &fakeSearchStore{chunks: map[uuid.UUID][]models.ScoredChunk{docID: {
		{ChunkID: 30, DocID: docID, Index: 1},
		{ChunkID: 31, DocID: docID, Index: 2},
		{ChunkID: 32, DocID: docID, Index: 3},
		{ChunkID: 33, DocID: docID, Index: 4},
	}}}
	rf := NewRefineService(st, fakeQueryEmbedder{}, gen, 3)

	initial := []models.ScoredChunk{{ChunkID: 31, DocID: docID, Index: 2, Text: "middle"}}
	got := rf.Refine(context.Background(), "query", initial)

	ids := map[int64]bool{}
	for _, c := range got {
		ids[c.ChunkID] = true
	}
	// Ordinals [1, 5) around index 2.
	for _, want := range []int64{30, 31, 32, 33} {
		if !ids[want] {
			t.Errorf("missing neighbour chunk %d: %v", want, ids)
		}
	}
}
