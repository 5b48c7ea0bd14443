package store

import (
	"reflect"
	"testing"
)

func TestTokenizeQuery(t *testing.T) {
	cases := []struct {
		query string
		want  []string
	}{
		{"How do I create a google_storage_bucket resource?", []string{"create", "google_storage_bucket", "resource"}},
		{"What is the provider?", []string{"provider"}},
		{"THE the The", nil},
		{"", nil},
		{"aws_s3_bucket aws_s3_bucket versioning", []string{"aws_s3_bucket", "versioning"}},
	}
	for _, tc := range cases {
		got := tokenizeQuery(tc.query)
		if len(got) == 0 && len(tc.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("tokenizeQuery(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestScoreText(t *testing.T) {
	text := `resource "google_storage_bucket" "b" { name = "x" }
	The bucket resource stores objects.`
	terms := []string{"resource", "google_storage_bucket"}
	if got := scoreText(text, terms); got != 3 {
		t.Errorf("scoreText = %v, want 3", got)
	}
	if got := scoreText(text, []string{"kubernetes"}); got != 0 {
		t.Errorf("scoreText for absent term = %v, want 0", got)
	}
}
