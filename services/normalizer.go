package services

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"docatlas/internal/faults"
	"docatlas/internal/logger"
)

// NormalizeResult reports what the normaliser produced: a path that the PDF
// extractor can consume, or the original path with PlainText set, meaning no
// PDF extraction is needed.
type NormalizeResult struct {
	Path      string
	PlainText bool
}

// Normalize converts an ingested file into an extractable form based on its
// suffix. Office documents go through a synchronous out-of-process converter
// that writes the PDF next to the source.
func Normalize(ctx context.Context, path string) (*NormalizeResult, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return &NormalizeResult{Path: path}, nil
	case ".txt":
		return &NormalizeResult{Path: path, PlainText: true}, nil
	case ".doc", ".docx":
		pdfPath, err := convertToPDF(ctx, path)
		if err != nil {
			return nil, err
		}
		return &NormalizeResult{Path: pdfPath}, nil
	default:
		return nil, faults.Newf(faults.Unsupported, "services.Normalize",
			"unsupported file type %q", filepath.Ext(path))
	}
}

// convertToPDF shells out to LibreOffice. Its stderr is surfaced verbatim on
// failure because the converter's own message is the only useful diagnostic.
func convertToPDF(ctx context.Context, path string) (string, error) {
	outDir := filepath.Dir(path)
	cmd := exec.CommandContext(ctx, "soffice", "--headless", "--convert-to", "pdf", "--outdir", outDir, path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Info("Converting office document to PDF", "path", path)
	if err := cmd.Run(); err != nil {
		return "", faults.Newf(faults.Upstream, "services.convertToPDF",
			"converter failed: %v: %s", err, stderr.String())
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(outDir, base+".pdf"), nil
}

// DecodeText interprets raw bytes as UTF-8, falling back to latin-1 when the
// bytes are not valid UTF-8. Latin-1 decoding cannot fail, so every byte
// sequence yields some string.
func DecodeText(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes)
}
