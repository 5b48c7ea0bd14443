package faults

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"direct", New(Validation, "op", "bad uuid"), Validation},
		{"wrapped", fmt.Errorf("outer: %w", New(NotFound, "op", "gone")), NotFound},
		{"double wrap keeps outermost kind", Wrap(Upstream, "op", New(Transient, "inner", "429")), Upstream},
		{"cancelled is transient", context.Canceled, Transient},
		{"plain error is fatal", errors.New("boom"), Fatal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLabel(t *testing.T) {
	err := Wrap(Upstream, "extractor.ExtractPDF", errors.New("model returned 503"))
	if got, want := Label(err), "Upstream: model returned 503"; got != want {
		t.Fatalf("Label = %q, want %q", got, want)
	}

	err = New(Unsupported, "normalizer", "unsupported file type .xyz")
	if got, want := Label(err), "Unsupported: unsupported file type .xyz"; got != want {
		t.Fatalf("Label = %q, want %q", got, want)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(Upstream, "op", nil) != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
}
