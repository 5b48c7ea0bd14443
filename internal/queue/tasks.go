// Package queue is the task-queue bridge: it serialises ingest requests onto
// the broker and dispatches deliveries to the pipelines, keeping the
// caller-visible task rows in step.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"docatlas/internal/faults"
	"docatlas/internal/logger"
	"docatlas/internal/store"
	"docatlas/models"
	"docatlas/services"
)

// QueueIngest is the broker queue all ingest tasks go through.
const QueueIngest = "ingest"

const (
	fileTaskTimeout = 30 * time.Minute
	urlTaskTimeout  = 20 * time.Minute
	textTaskTimeout = 10 * time.Minute
)

// Message is the bus payload. InputData's schema depends on TaskType;
// an unknown type is a validation error, never a retry.
type Message struct {
	TaskID    uuid.UUID         `json:"task_id"`
	TaskType  models.TaskType   `json:"task_type"`
	InputData json.RawMessage   `json:"input_data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// URLInput is the input_data schema for url_processing.
type URLInput struct {
	URLs        []string `json:"urls"`
	Description string   `json:"description,omitempty"`
}

// TextInput is the input_data schema for text_processing.
type TextInput struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// FileInput is the input_data schema for file_processing. The HTTP surface
// sets DocID plus the generation it pinned at claim time; storage events
// carry the raw (bucket, name, generation) triple instead.
type FileInput struct {
	DocID            string `json:"doc_id,omitempty"`
	GCSURI           string `json:"gcs_uri,omitempty"`
	OriginalFilename string `json:"original_filename,omitempty"`
	Bucket           string `json:"bucket,omitempty"`
	Name             string `json:"name,omitempty"`
	Generation       int64  `json:"generation,omitempty"`
}

// NewIngestTask wraps a Message into a broker task. The asynq type is the
// task_type string so handlers dispatch without re-reading the payload.
func NewIngestTask(msg Message) (*asynq.Task, error) {
	if !models.ValidTaskType(msg.TaskType) {
		return nil, faults.Newf(faults.Validation, "queue.NewIngestTask", "unknown task type %q", msg.TaskType)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, faults.Wrap(faults.Fatal, "queue.NewIngestTask", err)
	}

	timeout := fileTaskTimeout
	switch msg.TaskType {
	case models.TaskURLProcessing:
		timeout = urlTaskTimeout
	case models.TaskTextProcessing:
		timeout = textTaskTimeout
	}

	return asynq.NewTask(
		string(msg.TaskType),
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(timeout),
		asynq.Queue(QueueIngest),
		asynq.TaskID(msg.TaskID.String()),
	), nil
}

// TaskProcessor handles broker deliveries.
type TaskProcessor struct {
	store  *store.Store
	ingest *services.IngestService
}

func NewTaskProcessor(st *store.Store, ingest *services.IngestService) *TaskProcessor {
	return &TaskProcessor{store: st, ingest: ingest}
}

// Register binds the processor's handlers on the worker mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(string(models.TaskFileProcessing), p.HandleIngest)
	mux.HandleFunc(string(models.TaskURLProcessing), p.HandleIngest)
	mux.HandleFunc(string(models.TaskTextProcessing), p.HandleIngest)
}

// HandleIngest processes one delivery: task row to processing, dispatch by
// type, task row to completed or failed. Returning an error is the negative
// ack that lets the broker redeliver; validation failures skip retry.
func (p *TaskProcessor) HandleIngest(ctx context.Context, t *asynq.Task) error {
	var msg Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return fmt.Errorf("unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := p.store.UpdateTaskStatus(ctx, msg.TaskID, models.TaskProcessing, nil, nil); err != nil {
		logger.Warn("Could not mark task processing", "task_id", msg.TaskID, "error", err)
	}

	result, err := p.dispatch(ctx, msg)
	if err != nil {
		label := faults.Label(err)
		if uerr := p.store.UpdateTaskStatus(ctx, msg.TaskID, models.TaskFailed, nil, &label); uerr != nil {
			logger.Error("Could not mark task failed", "task_id", msg.TaskID, "error", uerr)
		}
		switch faults.KindOf(err) {
		case faults.Validation, faults.Unsupported:
			return fmt.Errorf("%s: %w", label, asynq.SkipRetry)
		default:
			return err
		}
	}

	payload, merr := json.Marshal(result)
	if merr != nil {
		payload = nil
	}
	if err := p.store.UpdateTaskStatus(ctx, msg.TaskID, models.TaskCompleted, payload, nil); err != nil {
		logger.Error("Could not mark task completed", "task_id", msg.TaskID, "error", err)
	}
	return nil
}

func (p *TaskProcessor) dispatch(ctx context.Context, msg Message) (any, error) {
	switch msg.TaskType {
	case models.TaskFileProcessing:
		return p.dispatchFile(ctx, msg)
	case models.TaskURLProcessing:
		return p.dispatchURLs(ctx, msg)
	case models.TaskTextProcessing:
		var in TextInput
		if err := json.Unmarshal(msg.InputData, &in); err != nil {
			return nil, faults.Wrap(faults.Validation, "queue.dispatch", err)
		}
		return p.ingest.IngestText(ctx, in.Title, in.Text)
	default:
		return nil, faults.Newf(faults.Validation, "queue.dispatch", "unknown task type %q", msg.TaskType)
	}
}

func (p *TaskProcessor) dispatchFile(ctx context.Context, msg Message) (any, error) {
	var in FileInput
	if err := json.Unmarshal(msg.InputData, &in); err != nil {
		return nil, faults.Wrap(faults.Validation, "queue.dispatchFile", err)
	}

	if in.DocID != "" {
		docID, err := uuid.Parse(in.DocID)
		if err != nil {
			return nil, faults.Wrap(faults.Validation, "queue.dispatchFile", err)
		}
		return p.ingest.IngestClaimed(ctx, docID, in.GCSURI, in.OriginalFilename, in.Generation)
	}
	if in.Bucket != "" && in.Name != "" {
		return p.ingest.IngestObject(ctx, in.Bucket, in.Name, in.Generation)
	}
	return nil, faults.New(faults.Validation, "queue.dispatchFile", "file input needs doc_id+gcs_uri or bucket+name")
}

// dispatchURLs ingests each URL in order. Per-URL failures are collected
// rather than aborting the batch; the task only fails when nothing worked.
func (p *TaskProcessor) dispatchURLs(ctx context.Context, msg Message) (any, error) {
	var in URLInput
	if err := json.Unmarshal(msg.InputData, &in); err != nil {
		return nil, faults.Wrap(faults.Validation, "queue.dispatchURLs", err)
	}
	if len(in.URLs) == 0 {
		return nil, faults.New(faults.Validation, "queue.dispatchURLs", "no urls in task input")
	}

	type urlResult struct {
		URL    string `json:"url"`
		Status string `json:"status"`
		DocID  string `json:"doc_id,omitempty"`
		Error  string `json:"error,omitempty"`
		Chunks int    `json:"chunks,omitempty"`
	}

	results := make([]urlResult, 0, len(in.URLs))
	succeeded := 0
	var lastErr error
	for _, u := range in.URLs {
		outcome, err := p.ingest.IngestURL(ctx, u)
		if err != nil {
			lastErr = err
			results = append(results, urlResult{URL: u, Status: "failed", Error: faults.Label(err)})
			continue
		}
		succeeded++
		results = append(results, urlResult{URL: u, Status: outcome.Status, DocID: outcome.DocID.String(), Chunks: outcome.ChunkCount})
	}

	if succeeded == 0 {
		return nil, faults.Wrapf(faults.Upstream, "queue.dispatchURLs", lastErr, "all %d urls failed", len(in.URLs))
	}
	return map[string]any{"results": results, "succeeded": succeeded, "total": len(in.URLs)}, nil
}

// StorageEvent is the object-storage notification variant: the bus delivers
// a base64-encoded JSON body naming the new object.
type StorageEvent struct {
	Bucket     string `json:"bucket"`
	Name       string `json:"name"`
	Generation int64  `json:"generation,omitempty"`
}

// MessageFromStorageEvent converts a decoded storage notification into a
// file_processing message with a fresh task id.
func MessageFromStorageEvent(ev StorageEvent) (Message, error) {
	if ev.Bucket == "" || ev.Name == "" {
		return Message{}, faults.New(faults.Validation, "queue.MessageFromStorageEvent", "storage event missing bucket or name")
	}
	input, err := json.Marshal(FileInput{Bucket: ev.Bucket, Name: ev.Name, Generation: ev.Generation})
	if err != nil {
		return Message{}, faults.Wrap(faults.Fatal, "queue.MessageFromStorageEvent", err)
	}
	return Message{
		TaskID:    uuid.New(),
		TaskType:  models.TaskFileProcessing,
		InputData: input,
		Metadata:  map[string]string{"source": "storage-event"},
	}, nil
}
