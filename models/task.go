package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskType identifies what kind of ingestion a task performs.
type TaskType string

const (
	TaskURLProcessing  TaskType = "url_processing"
	TaskTextProcessing TaskType = "text_processing"
	TaskFileProcessing TaskType = "file_processing"
)

// TaskStatus is the monotonic task lifecycle: queued -> processing ->
// completed | failed.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is the caller-visible record of an asynchronous ingestion request.
type Task struct {
	TaskID       uuid.UUID       `json:"task_id"`
	TaskType     TaskType        `json:"task_type"`
	Status       TaskStatus      `json:"status"`
	InputData    json.RawMessage `json:"input_data"`
	ResultData   json.RawMessage `json:"result_data,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// ValidTaskType reports whether t is one of the known task kinds.
func ValidTaskType(t TaskType) bool {
	switch t {
	case TaskURLProcessing, TaskTextProcessing, TaskFileProcessing:
		return true
	}
	return false
}
