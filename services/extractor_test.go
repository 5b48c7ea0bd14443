package services

import (
	"context"
	"errors"
	"os"
	"testing"

	genai "github.com/google/generative-ai-go/genai"
)

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

// fakeGenerator returns scripted responses in sequence.
type fakeGenerator struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeGenerator) GenerateText(ctx context.Context, parts ...genai.Part) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no more scripted responses")
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`[{"page":1}]`, `[{"page":1}]`},
		{"```json\n[{\"page\":1}]\n```", `[{"page":1}]`},
		{"```\n[1,2]\n```", `[1,2]`},
		{"  ```json\n{}\n```  ", `{}`},
	}
	for _, tc := range cases {
		if got := StripCodeFences(tc.in); got != tc.want {
			t.Errorf("StripCodeFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParsePages(t *testing.T) {
	pages, err := parsePages("```json\n[{\"page\":1,\"header\":\"Intro\",\"body\":\"hello\"},{\"page\":2,\"header\":null,\"body\":\"world\"}]\n```")
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("got %d pages", len(pages))
	}
	if pages[0].Header == nil || *pages[0].Header != "Intro" {
		t.Errorf("page 1 header = %v", pages[0].Header)
	}
	if pages[1].Header != nil {
		t.Errorf("page 2 header should be nil, got %v", *pages[1].Header)
	}

	if _, err := parsePages("not json at all"); err == nil {
		t.Error("expected parse error")
	}
	if _, err := parsePages(`[{"page":0,"body":"x"}]`); err == nil {
		t.Error("expected invalid page number error")
	}
}

func TestExtractPDFRetriesUnparseableResponses(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/doc.pdf"
	if err := writeFile(path, []byte("%PDF-1.4 stub")); err != nil {
		t.Fatal(err)
	}

	gen := &fakeGenerator{responses: []string{
		"this is not json",
		"still not json",
		`[{"page":1,"header":null,"body":"recovered text"}]`,
	}}
	es := NewExtractorService(gen)

	pages, text, err := es.ExtractPDF(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if gen.calls != 3 {
		t.Errorf("expected 3 model calls, got %d", gen.calls)
	}
	if len(pages) != 1 || text != "recovered text" {
		t.Errorf("got pages=%v text=%q", pages, text)
	}
}

func TestJoinPages(t *testing.T) {
	pages := []Page{
		{Page: 1, Body: "first page "},
		{Page: 2, Body: ""},
		{Page: 3, Body: " third page"},
	}
	if got := joinPages(pages); got != "first page third page" {
		t.Errorf("joinPages = %q", got)
	}
}
