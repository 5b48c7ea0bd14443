package routes

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"docatlas/internal/gcs"
	"docatlas/internal/logger"
	"docatlas/internal/queue"
	"docatlas/internal/store"
	"docatlas/models"
	"docatlas/utils"
)

const maxURLsPerBatch = 20

// SetupIngestRoutes wires the ingestion surface: file ingests claim
// synchronously so the caller leaves with a document id, URL and text ingests
// return a task id to poll instead.
func SetupIngestRoutes(router *gin.Engine, st *store.Store, gateway *gcs.Gateway, queueClient *asynq.Client) {
	ingest := router.Group("/ingest")

	ingest.POST("/file", func(c *gin.Context) {
		var req struct {
			GCSURI   string `json:"gcs_uri" binding:"required"`
			Filename string `json:"original_filename"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		bucket, name, err := gcs.ParseURI(req.GCSURI)
		if err != nil {
			utils.RespondWithFault(c, err)
			return
		}

		ctx, cancel := utils.WithLongTimeout(c.Request.Context())
		defer cancel()

		// Pin the current object generation before claiming so a later
		// overwrite of the same object counts as new content.
		generation, metaName, err := gateway.Stat(ctx, bucket, name)
		if err != nil {
			utils.RespondWithFault(c, err)
			return
		}
		filename := req.Filename
		if filename == "" {
			filename = metaName
		}
		if filename == "" {
			filename = name
		}

		claim, err := st.ClaimDocument(ctx, filename, gcs.URI(bucket, name), generation)
		if err != nil {
			utils.RespondWithFault(c, err)
			return
		}
		if !claim.Fresh {
			c.JSON(http.StatusOK, gin.H{
				"doc_id":          claim.DocID,
				"status":          "skipped",
				"document_status": claim.Status,
			})
			return
		}

		input, _ := json.Marshal(queue.FileInput{
			DocID:            claim.DocID.String(),
			GCSURI:           gcs.URI(bucket, name),
			OriginalFilename: filename,
			Generation:       generation,
		})
		taskID, err := enqueueIngest(c, st, queueClient, models.TaskFileProcessing, input)
		if err != nil {
			// The claim row stays behind as Processing; the failure path
			// marks it so the caller sees why.
			label := "enqueue failed: " + err.Error()
			if markErr := st.MarkFailed(ctx, claim.DocID, label); markErr != nil {
				logger.Error("Could not mark claim failed after enqueue error", "doc_id", claim.DocID, "error", markErr)
			}
			utils.RespondWithInternalError(c, "Failed to enqueue processing task", nil)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"doc_id":  claim.DocID,
			"task_id": taskID,
			"status":  "queued",
		})
	})

	ingest.POST("/urls", func(c *gin.Context) {
		var req struct {
			URLs        []string `json:"urls" binding:"required"`
			Description string   `json:"description"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}
		if len(req.URLs) == 0 {
			utils.RespondWithBadRequest(c, "At least one URL is required", nil)
			return
		}
		if len(req.URLs) > maxURLsPerBatch {
			utils.RespondWithBadRequest(c, "Too many URLs in one batch", gin.H{"max": maxURLsPerBatch})
			return
		}

		input, _ := json.Marshal(queue.URLInput{URLs: req.URLs, Description: req.Description})
		taskID, err := enqueueIngest(c, st, queueClient, models.TaskURLProcessing, input)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to enqueue processing task", nil)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"task_id":   taskID,
			"status":    "processing",
			"url_count": len(req.URLs),
		})
	})

	ingest.POST("/text", func(c *gin.Context) {
		var req struct {
			Title string `json:"title"`
			Text  string `json:"text" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		input, _ := json.Marshal(queue.TextInput{Title: req.Title, Text: req.Text})
		taskID, err := enqueueIngest(c, st, queueClient, models.TaskTextProcessing, input)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to enqueue processing task", nil)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"task_id": taskID,
			"status":  "processing",
		})
	})

	// Object-storage push notifications land here: a base64 JSON body naming
	// the uploaded object. Malformed envelopes are rejected so the push
	// subscription surfaces them; valid ones are acked once enqueued.
	ingest.POST("/events", func(c *gin.Context) {
		var envelope struct {
			Message struct {
				Data      string `json:"data"`
				MessageID string `json:"messageId"`
			} `json:"message"`
			Subscription string `json:"subscription"`
		}
		if err := c.ShouldBindJSON(&envelope); err != nil {
			utils.RespondWithBadRequest(c, "Invalid push envelope", gin.H{"error": err.Error()})
			return
		}

		raw, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid event payload encoding", nil)
			return
		}
		var event queue.StorageEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			utils.RespondWithBadRequest(c, "Invalid event payload", nil)
			return
		}

		msg, err := queue.MessageFromStorageEvent(event)
		if err != nil {
			utils.RespondWithFault(c, err)
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()
		if _, err := st.CreateTask(ctx, msg.TaskID, msg.TaskType, msg.InputData); err != nil {
			utils.RespondWithInternalError(c, "Failed to record task", nil)
			return
		}
		task, err := queue.NewIngestTask(msg)
		if err != nil {
			utils.RespondWithFault(c, err)
			return
		}
		if _, err := queueClient.Enqueue(task); err != nil {
			logger.Error("Could not enqueue storage event", "object", event.Name, "error", err)
			utils.RespondWithInternalError(c, "Failed to enqueue processing task", nil)
			return
		}

		logger.Info("Storage event accepted", "bucket", event.Bucket, "object", event.Name, "task_id", msg.TaskID)
		c.Status(http.StatusNoContent)
	})
}

// enqueueIngest records the task row and hands the message to the broker
// under one shared id.
func enqueueIngest(c *gin.Context, st *store.Store, queueClient *asynq.Client, taskType models.TaskType, input json.RawMessage) (uuid.UUID, error) {
	msg := queue.Message{TaskID: uuid.New(), TaskType: taskType, InputData: input}

	ctx, cancel := utils.WithTimeout(c.Request.Context())
	defer cancel()
	if _, err := st.CreateTask(ctx, msg.TaskID, msg.TaskType, msg.InputData); err != nil {
		return uuid.Nil, err
	}

	task, err := queue.NewIngestTask(msg)
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := queueClient.Enqueue(task); err != nil {
		return uuid.Nil, err
	}
	return msg.TaskID, nil
}
