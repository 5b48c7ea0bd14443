package services

import (
	"strings"
	"testing"
)

func newTestChunker(t *testing.T) *ChunkerService {
	t.Helper()
	c, err := NewChunkerService(800, 200, 10000, 500)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewChunkerServiceRejectsOverlapGreaterThanSize(t *testing.T) {
	if _, err := NewChunkerService(100, 100, 1000, 50); err == nil {
		t.Fatal("expected error when overlap >= chunk size")
	}
}

func TestChunkTokensWindowing(t *testing.T) {
	c := newTestChunker(t)
	// Roughly 1620 tokens of repeated prose; expect three windows under
	// 800/200 (steps of 600).
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 180)
	total := len(c.enc.Encode(text, nil, nil))
	if total < 1400 || total > 1900 {
		t.Fatalf("test corpus drifted: %d tokens", total)
	}

	chunks, err := c.ChunkTokens(text)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks for %d tokens, got %d", total, len(chunks))
	}
	for i, ch := range chunks {
		n := len(c.enc.Encode(ch, nil, nil))
		if n > 800 {
			t.Errorf("chunk %d has %d tokens, over the window", i, n)
		}
		if strings.TrimSpace(ch) == "" {
			t.Errorf("chunk %d is whitespace-only", i)
		}
	}
}

func TestChunkTokensRoundTrip(t *testing.T) {
	c := newTestChunker(t)
	text := strings.Repeat("alpha beta gamma delta epsilon zeta eta theta ", 300)
	chunks, err := c.ChunkTokens(text)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("need multiple chunks, got %d", len(chunks))
	}

	// Rejoining with the 200-token overlap removed reproduces the input.
	joined := chunks[0]
	for _, ch := range chunks[1:] {
		tokens := c.enc.Encode(ch, nil, nil)
		if len(tokens) > 200 {
			joined += c.enc.Decode(tokens[200:])
		}
	}
	norm := func(s string) string { return strings.Join(strings.Fields(s), " ") }
	if norm(joined) != norm(text) {
		t.Fatal("rejoined chunks do not reproduce input")
	}
}

func TestChunkTokensEmpty(t *testing.T) {
	c := newTestChunker(t)
	chunks, err := c.ChunkTokens("")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty input, got %d", len(chunks))
	}
}

func TestChunkWhitespacePrefersWordBoundaries(t *testing.T) {
	c, err := NewChunkerService(800, 200, 100, 20)
	if err != nil {
		t.Fatal(err)
	}
	text := strings.Repeat("lorem ipsum dolor sit amet consectetur ", 20)
	chunks := c.ChunkWhitespace(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks[:len(chunks)-1] {
		if !strings.HasSuffix(ch, " ") {
			t.Errorf("chunk %d does not end on whitespace: ...%q", i, ch[len(ch)-10:])
		}
	}
	for i, ch := range chunks {
		if strings.TrimSpace(ch) == "" {
			t.Errorf("chunk %d is whitespace-only", i)
		}
	}
}

func TestChunkWhitespaceNeverSplitsLongToken(t *testing.T) {
	c, err := NewChunkerService(800, 200, 100, 20)
	if err != nil {
		t.Fatal(err)
	}
	long := strings.Repeat("x", 90)
	text := strings.Repeat("word ", 10) + long + " " + strings.Repeat("tail ", 10)
	chunks := c.ChunkWhitespace(text)
	found := false
	for _, ch := range chunks {
		if strings.Contains(ch, long) {
			found = true
		}
	}
	if !found {
		t.Fatalf("long token was split across chunks: %q", chunks)
	}
}

func TestIsInfraCode(t *testing.T) {
	cases := []struct {
		filename string
		text     string
		want     bool
	}{
		{"main.tf", "whatever", true},
		{"notes.txt", `resource "google_storage_bucket" "b" {}`, true},
		{"terraform-guide.pdf", "prose", true},
		{"report.pdf", "quarterly results were strong", false},
	}
	for _, tc := range cases {
		if got := IsInfraCode(tc.filename, tc.text); got != tc.want {
			t.Errorf("IsInfraCode(%q, ...) = %v, want %v", tc.filename, got, tc.want)
		}
	}
}

func TestChunkStructuredExtractsBlocks(t *testing.T) {
	c := newTestChunker(t)
	text := `This guide shows how to create a storage bucket.

resource "google_storage_bucket" "b" {
  name     = "x"
  location = "US"
}

The bucket name must be globally unique.`

	segments, err := c.Chunk("guide.tf", text, false)
	if err != nil {
		t.Fatal(err)
	}

	var block *Segment
	for i := range segments {
		if segments[i].Kind == "resource" {
			block = &segments[i]
		}
	}
	if block == nil {
		t.Fatal("no resource block segment emitted")
	}
	if !strings.Contains(block.Text, `name     = "x"`) || !strings.HasSuffix(strings.TrimSpace(block.Text), "}") {
		t.Errorf("block segment incomplete: %q", block.Text)
	}
	if len(block.Labels) != 2 || block.Labels[0] != "google_storage_bucket" || block.Labels[1] != "b" {
		t.Errorf("block labels = %v", block.Labels)
	}

	// Every piece of the input text must be covered by some segment.
	all := ""
	for _, s := range segments {
		all += s.Text + " "
	}
	for _, want := range []string{"storage bucket", "globally unique", `location = "US"`} {
		if !strings.Contains(all, want) {
			t.Errorf("segments do not cover %q", want)
		}
	}
}

func TestChunkStructuredNestedBraces(t *testing.T) {
	c := newTestChunker(t)
	text := `resource "aws_s3_bucket" "logs" {
  lifecycle_rule {
    enabled = true
    expiration {
      days = 30
    }
  }
  tags = { env = "prod" }
}`
	segments, err := c.chunkStructured(text)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 1 {
		t.Fatalf("expected one block segment, got %d", len(segments))
	}
	if !strings.Contains(segments[0].Text, "days = 30") {
		t.Error("nested block content missing")
	}
}

func TestChunkStructuredBraceInString(t *testing.T) {
	c := newTestChunker(t)
	text := `variable "pattern" {
  default = "prefix-{suffix}"
}
trailing prose`
	segments, err := c.chunkStructured(text)
	if err != nil {
		t.Fatal(err)
	}
	if segments[0].Kind != "variable" {
		t.Fatalf("first segment kind = %q", segments[0].Kind)
	}
	if !strings.HasSuffix(strings.TrimSpace(segments[0].Text), "}") {
		t.Errorf("block truncated by brace inside string: %q", segments[0].Text)
	}
}
