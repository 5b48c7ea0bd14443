package services

import (
	"regexp"
	"strings"

	"docatlas/models"
)

// Query tagging is regex-driven over the lowercased query. Precedence:
// infra-code beats code-generation beats doc-lookup; anything else is
// general.
var (
	infraPatterns = []*regexp.Regexp{
		regexp.MustCompile(`terraform`),
		regexp.MustCompile(`\.tf\b`),
		regexp.MustCompile(`(resource|provider|variable|output|module|data)\s+"`),
		regexp.MustCompile(`(aws|google|azurerm)_\w+`),
		regexp.MustCompile(`\bhcl\b`),
	}
	codegenPatterns = []*regexp.Regexp{
		regexp.MustCompile(`create\s+.*\b(resource|configuration)\b`),
		regexp.MustCompile(`generate\s+.*code`),
		regexp.MustCompile(`example\s+of\s+.*\bresource\b`),
		regexp.MustCompile(`how\s+to\s+create`),
		regexp.MustCompile(`configuration\s+for`),
		regexp.MustCompile(`syntax\s+for`),
	}
	doclookupPatterns = []*regexp.Regexp{
		regexp.MustCompile(`what\s+is`),
		regexp.MustCompile(`explain`),
		regexp.MustCompile(`describe`),
		regexp.MustCompile(`definition\s+of`),
		regexp.MustCompile(`documentation\s+for`),
		regexp.MustCompile(`reference\s+for`),
	}
)

// ClassifyQuery tags a user query for retrieval-strategy selection.
func ClassifyQuery(query string) models.QueryTag {
	q := strings.ToLower(query)
	for _, p := range infraPatterns {
		if p.MatchString(q) {
			return models.TagInfraCode
		}
	}
	for _, p := range codegenPatterns {
		if p.MatchString(q) {
			return models.TagCodeGeneration
		}
	}
	for _, p := range doclookupPatterns {
		if p.MatchString(q) {
			return models.TagDocLookup
		}
	}
	return models.TagGeneral
}

// resourceRef matches a provider-prefixed resource type like
// google_storage_bucket or aws_s3_bucket.
var resourceRef = regexp.MustCompile(`\b(aws|google|azurerm)_(\w+)\b`)

// ExtractResourceRef pulls the first provider_resource_type reference out of
// a query. ok is false when the query names none.
func ExtractResourceRef(query string) (full, resourceType string, ok bool) {
	m := resourceRef.FindStringSubmatch(strings.ToLower(query))
	if m == nil {
		return "", "", false
	}
	return m[0], m[2], true
}
