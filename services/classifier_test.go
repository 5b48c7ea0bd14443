package services

import (
	"testing"

	"docatlas/models"
)

func TestClassifyQuery(t *testing.T) {
	cases := []struct {
		query string
		want  models.QueryTag
	}{
		{"How do I create a google_storage_bucket resource?", models.TagInfraCode},
		{"terraform state locking", models.TagInfraCode},
		{"what does main.tf contain", models.TagInfraCode},
		{"how to create a load balancer", models.TagCodeGeneration},
		{"generate some code for pagination", models.TagCodeGeneration},
		{"syntax for a cron schedule", models.TagCodeGeneration},
		{"what is a service account", models.TagDocLookup},
		{"explain eventual consistency", models.TagDocLookup},
		{"ship it", models.TagGeneral},
		{"", models.TagGeneral},
	}
	for _, tc := range cases {
		if got := ClassifyQuery(tc.query); got != tc.want {
			t.Errorf("ClassifyQuery(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestClassifyQueryPrecedence(t *testing.T) {
	// Matches infra, codegen and doclookup patterns at once; infra wins.
	q := "explain how to create a terraform resource"
	if got := ClassifyQuery(q); got != models.TagInfraCode {
		t.Errorf("precedence broke: got %v", got)
	}
	// Codegen beats doclookup.
	q = "explain how to create a widget"
	if got := ClassifyQuery(q); got != models.TagCodeGeneration {
		t.Errorf("precedence broke: got %v", got)
	}
}

func TestExtractResourceRef(t *testing.T) {
	full, rtype, ok := ExtractResourceRef("How do I create a google_storage_bucket resource?")
	if !ok || full != "google_storage_bucket" || rtype != "storage_bucket" {
		t.Errorf("got (%q, %q, %v)", full, rtype, ok)
	}
	if _, _, ok := ExtractResourceRef("what is a bucket"); ok {
		t.Error("expected no resource ref")
	}
}
