package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus is the caller-visible lifecycle state of a document.
type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Document is one ingested source, uniquely identified by its original
// object location plus the object-store generation it was read at.
type Document struct {
	ID            uuid.UUID      `json:"id"`
	Filename      string         `json:"filename"`
	OriginalGCS   string         `json:"original_gcs"`
	GCSGeneration int64          `json:"gcs_generation"`
	ProcessedGCS  *string        `json:"processed_gcs,omitempty"`
	Status        DocumentStatus `json:"status"`
	ErrorMessage  *string        `json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// DocumentSummary is the list view returned by GET /documents.
type DocumentSummary struct {
	ID            uuid.UUID      `json:"id"`
	Filename      string         `json:"filename"`
	OriginalGCS   string         `json:"original_gcs"`
	GCSGeneration int64          `json:"gcs_generation"`
	ProcessedGCS  *string        `json:"processed_gcs,omitempty"`
	Status        DocumentStatus `json:"status"`
	ErrorMessage  *string        `json:"error_message,omitempty"`
	ChunkCount    int            `json:"chunk_count"`
	CreatedAt     time.Time      `json:"created_at"`
}
