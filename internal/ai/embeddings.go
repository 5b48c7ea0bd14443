package ai

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/pkoukk/tiktoken-go"

	"docatlas/internal/faults"
	"docatlas/internal/logger"
)

// batchTokenBudget caps the total token mass of one batch embedding request.
// The provider rejects requests well above this; staying under it keeps each
// call a single round trip.
const batchTokenBudget = 18000

const embedBatchTimeout = 60 * time.Second

// Embedder produces dense vectors for chunk texts and queries. It holds its
// own genai client so embedding traffic does not share the generative
// client's circuit breaker.
type Embedder struct {
	client *genai.Client
	model  string
	dim    int
	enc    *tiktoken.Tiktoken
}

func NewEmbedder(apiKey, model string, dim int) (*Embedder, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, faults.Wrap(faults.Upstream, "ai.NewEmbedder", err)
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		client.Close()
		return nil, faults.Wrap(faults.Fatal, "ai.NewEmbedder", err)
	}
	return &Embedder{client: client, model: model, dim: dim, enc: enc}, nil
}

func (e *Embedder) Close() error { return e.client.Close() }

func (e *Embedder) Dim() int { return e.dim }

// EmbedTexts embeds every text and returns exactly one vector per input, in
// input order. Texts are packed into batches under the token budget; when a
// whole batch fails after logging, its slots are filled with zero vectors so
// one bad batch cannot sink an ingest that already cost extraction and
// chunking.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	tracer := otel.Tracer("embedder")
	ctx, span := tracer.Start(ctx, "embedder.embed_texts")
	defer span.End()
	span.SetAttributes(attribute.Int("embed.texts", len(texts)))

	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	batches := planBatches(texts, e.countTokens, batchTokenBudget)
	span.SetAttributes(attribute.Int("embed.batches", len(batches)))

	failed := 0
	for _, b := range batches {
		vectors, err := e.embedBatch(ctx, texts[b.start:b.end])
		if err != nil {
			if ctx.Err() != nil {
				return nil, faults.Wrap(faults.Transient, "ai.EmbedTexts", ctx.Err())
			}
			logger.Error("Embedding batch failed, filling zero vectors",
				"start", b.start, "end", b.end, "error", err)
			for i := b.start; i < b.end; i++ {
				out[i] = make([]float32, e.dim)
			}
			failed++
			continue
		}
		copy(out[b.start:b.end], vectors)
	}

	if failed > 0 {
		span.SetAttributes(attribute.Int("embed.failed_batches", failed))
	}
	return out, nil
}

// EmbedQuery embeds a single retrieval query.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := e.embedBatch(ctx, []string{query})
	if err != nil {
		return nil, faults.Wrap(faults.Upstream, "ai.EmbedQuery", err)
	}
	return vectors[0], nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, embedBatchTimeout)
	defer cancel()

	em := e.client.EmbeddingModel(e.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, faults.Newf(faults.Upstream, "ai.embedBatch",
			"embedding count mismatch: sent %d got %d", len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func (e *Embedder) countTokens(text string) int {
	return len(e.enc.Encode(text, nil, nil))
}

// span is a half-open [start, end) index range over the input texts.
type span struct {
	start, end int
}

// planBatches packs consecutive texts into batches whose summed token counts
// stay under budget. A single text over budget still travels alone; it is
// the provider's call whether to accept it.
func planBatches(texts []string, count func(string) int, budget int) []span {
	var batches []span
	start := 0
	tokens := 0
	for i, t := range texts {
		n := count(t)
		if i > start && tokens+n > budget {
			batches = append(batches, span{start, i})
			start = i
			tokens = 0
		}
		tokens += n
	}
	if start < len(texts) {
		batches = append(batches, span{start, len(texts)})
	}
	return batches
}
