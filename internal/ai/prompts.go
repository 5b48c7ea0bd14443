package ai

import (
	"fmt"
	"strings"
)

// PDFExtractionPrompt asks the model for the full page structure of an
// attached PDF. The response contract is a bare JSON array; callers still
// strip code fences before parsing because models wrap output anyway.
const PDFExtractionPrompt = `Extract the complete text content of this PDF document.

Return ONLY a JSON array where each element describes one page:
[
  {"page": 1, "header": "section heading or null", "body": "full page text"},
  ...
]

Rules:
- "page" is the 1-based page number.
- "header" is the page's top-level heading if one exists, otherwise null.
- "body" is the full readable text of the page, in reading order.
- Preserve code blocks and configuration snippets verbatim inside "body".
- Do not summarise, do not omit pages, do not add commentary outside the JSON.`

// RefinementPrompt asks the model whether the retrieved context suffices for
// the query, and if not, which retrieval action to take next.
func RefinementPrompt(query string, chunkHeads []string) string {
	var b strings.Builder
	b.WriteString("You are evaluating whether retrieved context is sufficient to answer a user query.\n\n")
	fmt.Fprintf(&b, "User query: %s\n\nRetrieved context (first lines of top chunks):\n", query)
	for i, head := range chunkHeads {
		fmt.Fprintf(&b, "%d. %s\n", i+1, head)
	}
	b.WriteString(`
Respond with ONLY a JSON object:
{"action": "<one of: sufficient_context, search_more, search_specific, need_examples, request_broader_context>", "search_terms": ["term1", "term2"]}

Guidance:
- sufficient_context: the chunks already answer the query.
- search_more: the chunks are on-topic but too thin; cast a wider net.
- search_specific: the query names concrete things missing from the chunks; list up to 3 search terms.
- need_examples: the user needs working code or configuration examples and none are present.
- request_broader_context: the chunks are relevant but cut off mid-thought; surrounding text is needed.

"search_terms" is only used for search_specific and may be omitted otherwise.`)
	return b.String()
}

// AnswerPrompt grounds the final answer in the assembled context. The tag
// shifts the register: code-oriented queries get complete runnable snippets,
// documentation queries get prose.
func AnswerPrompt(query, tag string, contexts []string) string {
	var b strings.Builder
	b.WriteString("You are a documentation assistant for infrastructure and platform engineering teams.\n\n")
	b.WriteString("Context from the knowledge base:\n\n")
	for i, c := range contexts {
		fmt.Fprintf(&b, "--- Context %d ---\n%s\n\n", i+1, c)
	}
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	switch tag {
	case "infra_code", "code_generation":
		b.WriteString("Answer using the context above. When the question asks for configuration or code, produce a complete, syntactically valid snippet and explain the key arguments. If the context does not cover something, say so rather than inventing arguments.")
	case "doc_lookup":
		b.WriteString("Answer using the context above in clear prose. Define terms before using them and cite which context block supports each claim where practical.")
	default:
		b.WriteString("Answer using the context above. Be direct and concrete; if the context is insufficient for part of the answer, state which part.")
	}
	return b.String()
}

// GeneralKnowledgePrompt is the no-context fallback for queries whose
// retrieval came back empty.
func GeneralKnowledgePrompt(query string) string {
	return fmt.Sprintf(`The knowledge base has no documents matching this query. Answer from general knowledge, and start your reply by noting that the answer is not grounded in the indexed documents.

Question: %s`, query)
}
