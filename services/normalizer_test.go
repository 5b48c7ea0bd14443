package services

import (
	"context"
	"testing"

	"docatlas/internal/faults"
)

func TestNormalizePDFPassThrough(t *testing.T) {
	res, err := Normalize(context.Background(), "/tmp/work/abc.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "/tmp/work/abc.pdf" || res.PlainText {
		t.Errorf("got %+v", res)
	}
}

func TestNormalizeTxtIsPlainText(t *testing.T) {
	res, err := Normalize(context.Background(), "/tmp/work/notes.TXT")
	if err != nil {
		t.Fatal(err)
	}
	if !res.PlainText || res.Path != "/tmp/work/notes.TXT" {
		t.Errorf("got %+v", res)
	}
}

func TestNormalizeUnsupportedType(t *testing.T) {
	_, err := Normalize(context.Background(), "/tmp/work/deck.pptx")
	if err == nil {
		t.Fatal("expected error")
	}
	if faults.KindOf(err) != faults.Unsupported {
		t.Errorf("kind = %v, want Unsupported", faults.KindOf(err))
	}
}

func TestDecodeText(t *testing.T) {
	if got := DecodeText([]byte("hello\nworld")); got != "hello\nworld" {
		t.Errorf("utf-8 decode = %q", got)
	}
	// 0xE9 is é in latin-1 but invalid as a standalone UTF-8 byte.
	got := DecodeText([]byte{'c', 'a', 'f', 0xE9})
	if got != "café" {
		t.Errorf("latin-1 fallback = %q", got)
	}
}
