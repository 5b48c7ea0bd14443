package services

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	genai "github.com/google/generative-ai-go/genai"

	"docatlas/internal/ai"
	"docatlas/internal/faults"
	"docatlas/internal/logger"
)

// Page is one extracted PDF page as returned by the model.
type Page struct {
	Page   int     `json:"page"`
	Header *string `json:"header"`
	Body   string  `json:"body"`
}

// TextGenerator is the slice of the model client the extractor needs.
type TextGenerator interface {
	GenerateText(ctx context.Context, parts ...genai.Part) (string, error)
}

// ExtractorService pulls structured page text from PDFs. The generative
// model is the primary path; a local PDF text extraction is the fallback
// when the model cannot produce parseable pages.
type ExtractorService struct {
	gen TextGenerator
}

func NewExtractorService(gen TextGenerator) *ExtractorService {
	return &ExtractorService{gen: gen}
}

const extractRetries = 2

// ExtractPDF returns the page structure and the joined document text. A
// model response that fails to parse as the page schema is retriable;
// after the retries are spent the local extractor takes over.
func (es *ExtractorService) ExtractPDF(ctx context.Context, path string) ([]Page, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", faults.Wrap(faults.Fatal, "services.ExtractPDF", err)
	}

	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt <= extractRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, "", faults.Wrap(faults.Transient, "services.ExtractPDF", ctx.Err())
			}
			backoff *= 2
		}

		resp, err := es.gen.GenerateText(ctx,
			genai.Blob{MIMEType: "application/pdf", Data: raw},
			genai.Text(ai.PDFExtractionPrompt))
		if err != nil {
			lastErr = err
			continue
		}

		pages, err := parsePages(resp)
		if err != nil {
			logger.Warn("Page extraction response unparseable, retrying", "attempt", attempt, "error", err)
			lastErr = err
			continue
		}
		return pages, joinPages(pages), nil
	}

	logger.Error("Model page extraction exhausted retries, using local extraction", "path", path, "error", lastErr)
	pages, err := extractPDFLocal(path)
	if err != nil {
		return nil, "", faults.Wrap(faults.Upstream, "services.ExtractPDF", lastErr)
	}
	return pages, joinPages(pages), nil
}

// parsePages decodes the model's JSON page array, tolerating code fences
// around the payload.
func parsePages(resp string) ([]Page, error) {
	cleaned := StripCodeFences(resp)
	var pages []Page
	if err := json.Unmarshal([]byte(cleaned), &pages); err != nil {
		return nil, faults.Wrap(faults.Transient, "services.parsePages", err)
	}
	for _, p := range pages {
		if p.Page < 1 {
			return nil, faults.Newf(faults.Transient, "services.parsePages", "invalid page number %d", p.Page)
		}
	}
	return pages, nil
}

// joinPages concatenates page bodies on single spaces.
func joinPages(pages []Page) string {
	bodies := make([]string, 0, len(pages))
	for _, p := range pages {
		if b := strings.TrimSpace(p.Body); b != "" {
			bodies = append(bodies, b)
		}
	}
	return strings.Join(bodies, " ")
}

// StripCodeFences removes a surrounding markdown code fence, with or
// without a language tag.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop the language tag line (```json).
		first := strings.TrimSpace(s[:i])
		if first == "" || !strings.ContainsAny(first, "[{") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractPDFLocal reads page text directly from the PDF structure. No
// headers, no layout smarts; good enough to keep an ingest alive when the
// model path is down.
func extractPDFLocal(path string) ([]Page, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []Page
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		var buf bytes.Buffer
		rows, err := p.GetTextByRow()
		if err != nil {
			continue
		}
		for _, row := range rows {
			for _, word := range row.Content {
				buf.WriteString(word.S)
				buf.WriteByte(' ')
			}
		}
		body := strings.TrimSpace(buf.String())
		if body != "" {
			pages = append(pages, Page{Page: i, Body: body})
		}
	}
	return pages, nil
}
