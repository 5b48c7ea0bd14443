package models

import "github.com/google/uuid"

// QueryTag classifies a natural-language query for strategy dispatch.
type QueryTag string

const (
	TagInfraCode      QueryTag = "infra_code"
	TagCodeGeneration QueryTag = "code_generation"
	TagDocLookup      QueryTag = "doc_lookup"
	TagGeneral        QueryTag = "general"
)

// Source is one distinct document cited by an answer, in citation order.
type Source struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	URI  string    `json:"uri"`
}

// Answer is the response of POST /query: a generated answer grounded in the
// listed sources. Retrieval failures degrade to a fallback answer with an
// empty source list, never an error.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}
