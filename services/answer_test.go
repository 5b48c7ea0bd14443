package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"docatlas/models"
)

func TestAssembleDedupesSourcesFirstSeen(t *testing.T) {
	docA := uuid.New()
	docB := uuid.New()
	chunks := []models.ScoredChunk{
		{ChunkID: 1, DocID: docA, Filename: "a.pdf", OriginalGCS: "gs://raw/a.pdf", Text: "first"},
		{ChunkID: 2, DocID: docB, Filename: "b.pdf", OriginalGCS: "gs://raw/b.pdf", Text: "second"},
		{ChunkID: 3, DocID: docA, Filename: "a.pdf", OriginalGCS: "gs://raw/a.pdf", Text: "third"},
	}
	gen := &fakeGenerator{responses: []string{"the answer"}}
	as := NewAnswerService(gen, 5)

	got := as.Assemble(context.Background(), "q", models.TagGeneral, chunks)
	if got.Answer != "the answer" {
		t.Fatalf("answer = %q", got.Answer)
	}
	if len(got.Sources) != 2 {
		t.Fatalf("sources = %+v", got.Sources)
	}
	if got.Sources[0].ID != docA || got.Sources[1].ID != docB {
		t.Errorf("citation order broken: %+v", got.Sources)
	}
	if got.Sources[0].URI != "gs://raw/a.pdf" {
		t.Errorf("source uri = %q", got.Sources[0].URI)
	}
}

func TestAssembleCapsContext(t *testing.T) {
	docID := uuid.New()
	var chunks []models.ScoredChunk
	for i := 0; i < 10; i++ {
		chunks = append(chunks, models.ScoredChunk{ChunkID: int64(i), DocID: docID, Text: "t"})
	}
	gen := &fakeGenerator{responses: []string{"ok"}}
	as := NewAnswerService(gen, 3)

	got := as.Assemble(context.Background(), "q", models.TagGeneral, chunks)
	if len(got.Sources) != 1 {
		t.Errorf("sources = %+v", got.Sources)
	}
}

func TestAssembleEmptyContextStaticFallbacks(t *testing.T) {
	gen := &fakeGenerator{}
	as := NewAnswerService(gen, 5)

	infra := as.Assemble(context.Background(), "q", models.TagInfraCode, nil)
	if infra.Answer == "" || len(infra.Sources) != 0 {
		t.Errorf("infra fallback = %+v", infra)
	}
	code := as.Assemble(context.Background(), "q", models.TagCodeGeneration, nil)
	if code.Answer == "" || len(code.Sources) != 0 {
		t.Errorf("codegen fallback = %+v", code)
	}
	if gen.calls != 0 {
		t.Errorf("static fallbacks must not call the model, got %d calls", gen.calls)
	}
}

func TestAssembleEmptyContextGeneralKnowledge(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"general knowledge answer"}}
	as := NewAnswerService(gen, 5)

	got := as.Assemble(context.Background(), "q", models.TagGeneral, nil)
	if got.Answer != "general knowledge answer" || len(got.Sources) != 0 {
		t.Errorf("got %+v", got)
	}
	if gen.calls != 1 {
		t.Errorf("expected one model call, got %d", gen.calls)
	}
}

func TestAssembleGeneratorFailureNeverErrors(t *testing.T) {
	gen := &fakeGenerator{errs: []error{errors.New("model down")}}
	as := NewAnswerService(gen, 5)

	got := as.Assemble(context.Background(), "q", models.TagGeneral,
		[]models.ScoredChunk{{ChunkID: 1, DocID: uuid.New(), Text: "ctx"}})
	if got == nil || got.Answer == "" {
		t.Fatal("fallback answer missing")
	}
	if len(got.Sources) != 0 {
		t.Errorf("failed generation should return empty sources, got %+v", got.Sources)
	}
}
