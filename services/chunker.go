package services

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"

	"docatlas/internal/faults"
)

// ChunkerService cuts extracted document text into overlapping windows. The
// default strategy works in tokens; plain text gets a whitespace-preferred
// character strategy; infrastructure code gets block-aware chunking first.
type ChunkerService struct {
	enc               *tiktoken.Tiktoken
	maxTokens         int
	overlap           int
	whitespaceSize    int
	whitespaceOverlap int
}

// Segment is one emitted chunk before embedding. Kind and Labels describe
// the source block for structure-aware chunks and stay empty otherwise.
type Segment struct {
	Text   string
	Kind   string
	Labels []string
}

func NewChunkerService(maxTokens, overlap, whitespaceSize, whitespaceOverlap int) (*ChunkerService, error) {
	if maxTokens <= overlap {
		return nil, faults.Newf(faults.Validation, "services.NewChunkerService",
			"chunk size %d must exceed overlap %d", maxTokens, overlap)
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, faults.Wrap(faults.Fatal, "services.NewChunkerService", err)
	}
	return &ChunkerService{
		enc:               enc,
		maxTokens:         maxTokens,
		overlap:           overlap,
		whitespaceSize:    whitespaceSize,
		whitespaceOverlap: whitespaceOverlap,
	}, nil
}

// infraIndicators mark infrastructure-as-code content in a filename or the
// head of the body.
var infraIndicators = regexp.MustCompile(`(?i)(\.tf\b|terraform|\bhcl\b|resource\s+"|provider\s+"|module\s+"|variable\s+")`)

// blockHeader matches the opening of a top-level configuration block:
// KEYWORD "TYPE" "NAME" { or KEYWORD "NAME" {.
var blockHeader = regexp.MustCompile(`(?m)^(resource|data|provider|module|variable|output)\s+"([^"]+)"(?:\s+"([^"]+)")?\s*\{`)

// IsInfraCode reports whether the filename or the first part of the body
// looks like infrastructure code.
func IsInfraCode(filename, text string) bool {
	if infraIndicators.MatchString(filename) {
		return true
	}
	head := text
	if len(head) > 2000 {
		head = head[:2000]
	}
	return infraIndicators.MatchString(head)
}

// Chunk dispatches to the right strategy: structure-aware for infra code,
// token windows otherwise. plainText selects the whitespace-preferred
// variant used for .txt ingests.
func (c *ChunkerService) Chunk(filename, text string, plainText bool) ([]Segment, error) {
	if IsInfraCode(filename, text) {
		return c.chunkStructured(text)
	}
	if plainText {
		return wrapPlain(c.ChunkWhitespace(text)), nil
	}
	texts, err := c.ChunkTokens(text)
	if err != nil {
		return nil, err
	}
	return wrapPlain(texts), nil
}

func wrapPlain(texts []string) []Segment {
	segs := make([]Segment, len(texts))
	for i, t := range texts {
		segs[i] = Segment{Text: t}
	}
	return segs
}

// ChunkTokens emits token windows of up to maxTokens with overlap tokens of
// lookback. The final window is whatever remains.
func (c *ChunkerService) ChunkTokens(text string) ([]string, error) {
	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil, nil
	}

	var chunks []string
	step := c.maxTokens - c.overlap
	for start := 0; start < len(tokens); start += step {
		end := start + c.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		chunk := c.enc.Decode(tokens[start:end])
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(tokens) {
			break
		}
	}
	return chunks, nil
}

// ChunkWhitespace is the plain-text strategy: character windows biased
// toward the nearest whitespace split point in the second half of the
// window. A single run of non-whitespace longer than half the window is
// never split.
func (c *ChunkerService) ChunkWhitespace(text string) []string {
	size := c.whitespaceSize
	overlap := c.whitespaceOverlap

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			end = len(text)
		} else {
			end = splitPoint(text, start, end)
		}

		chunk := text[start:end]
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(text) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// splitPoint finds the best cut position inside (start, limit]: the last
// whitespace in the second half of the window, falling back to the window
// edge. If the edge would land inside a token longer than half the window,
// the cut moves past the token's end.
func splitPoint(text string, start, limit int) int {
	half := start + (limit-start)/2
	for i := limit; i > half; i-- {
		if unicode.IsSpace(rune(text[i-1])) {
			return i
		}
	}
	// No whitespace in the second half: the window edge sits inside one long
	// token. Extend to the token's end rather than splitting it.
	for i := limit; i < len(text); i++ {
		if unicode.IsSpace(rune(text[i])) {
			return i
		}
	}
	return len(text)
}

// chunkStructured extracts complete top-level blocks as single chunks and
// token-chunks the surrounding text, preserving source order.
func (c *ChunkerService) chunkStructured(text string) ([]Segment, error) {
	var segments []Segment
	pos := 0
	for pos < len(text) {
		loc := blockHeader.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		headStart := pos + loc[0]
		// The match ends at the opening brace; walk brace depth to its mate.
		braceOpen := pos + loc[1] - 1
		blockEnd := matchBrace(text, braceOpen)
		if blockEnd < 0 {
			// Unterminated block: treat the rest as prose.
			break
		}

		if prose := text[pos:headStart]; strings.TrimSpace(prose) != "" {
			proseSegs, err := c.ChunkTokens(prose)
			if err != nil {
				return nil, err
			}
			segments = append(segments, wrapPlain(proseSegs)...)
		}

		block := text[headStart : blockEnd+1]
		kind := text[pos+loc[2] : pos+loc[3]]
		labels := []string{text[pos+loc[4] : pos+loc[5]]}
		if loc[6] >= 0 {
			labels = append(labels, text[pos+loc[6]:pos+loc[7]])
		}
		if len(c.enc.Encode(block, nil, nil)) <= c.maxTokens {
			segments = append(segments, Segment{Text: block, Kind: kind, Labels: labels})
		} else {
			// Oversized block falls back to token windows so nothing is lost.
			blockSegs, err := c.ChunkTokens(block)
			if err != nil {
				return nil, err
			}
			segments = append(segments, wrapPlain(blockSegs)...)
		}
		pos = blockEnd + 1
	}

	if tail := text[pos:]; strings.TrimSpace(tail) != "" {
		tailSegs, err := c.ChunkTokens(tail)
		if err != nil {
			return nil, err
		}
		segments = append(segments, wrapPlain(tailSegs)...)
	}
	return segments, nil
}

// matchBrace returns the index of the closing brace matching the opener at
// open, or -1 when unterminated. Braces inside quoted strings are skipped.
func matchBrace(text string, open int) int {
	depth := 0
	inString := false
	for i := open; i < len(text); i++ {
		ch := text[i]
		if inString {
			if ch == '\\' {
				i++
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
