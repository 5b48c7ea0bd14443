package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"docatlas/internal/faults"
	"docatlas/models"
)

// CreateTask inserts a new task in queued state under the caller's id, so
// the row and the broker task share one identity.
func (s *Store) CreateTask(ctx context.Context, taskID uuid.UUID, taskType models.TaskType, inputData json.RawMessage) (uuid.UUID, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO processing_tasks (task_id, task_type, status, input_data)
		 VALUES ($1, $2, $3, $4)`,
		taskID, taskType, models.TaskQueued, inputData)
	if err != nil {
		return uuid.Nil, faults.Wrap(faults.Upstream, "store.CreateTask", err)
	}
	return taskID, nil
}

// taskRank orders statuses for the monotonic-progress guard. Failed ranks
// below completed so a broker redelivery that eventually succeeds can still
// complete the task; completed is terminal.
var taskRank = map[models.TaskStatus]int{
	models.TaskQueued:     0,
	models.TaskProcessing: 1,
	models.TaskFailed:     2,
	models.TaskCompleted:  3,
}

// UpdateTaskStatus advances a task through queued → processing →
// completed|failed. A transition backwards (a late redelivery touching a
// finished task) is silently dropped.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status models.TaskStatus, resultData json.RawMessage, errorMessage *string) error {
	var completedAt *time.Time
	if status == models.TaskCompleted || status == models.TaskFailed {
		now := time.Now().UTC()
		completedAt = &now
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE processing_tasks
		 SET status = $2,
		     result_data = COALESCE($3, result_data),
		     error_message = COALESCE($4, error_message),
		     updated_at = now(),
		     completed_at = COALESCE($5, completed_at)
		 WHERE task_id = $1
		   AND CASE status
		         WHEN 'queued' THEN 0
		         WHEN 'processing' THEN 1
		         WHEN 'failed' THEN 2
		         ELSE 3
		       END < $6`,
		taskID, status, resultData, errorMessage, completedAt, taskRank[status])
	if err != nil {
		return faults.Wrap(faults.Upstream, "store.UpdateTaskStatus", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM processing_tasks WHERE task_id = $1)`, taskID).Scan(&exists); err != nil {
			return faults.Wrap(faults.Upstream, "store.UpdateTaskStatus", err)
		}
		if !exists {
			return faults.Newf(faults.NotFound, "store.UpdateTaskStatus", "task %s not found", taskID)
		}
		// Monotonicity guard rejected the transition; not an error.
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	var t models.Task
	err := s.pool.QueryRow(ctx,
		`SELECT task_id, task_type, status, input_data, result_data, error_message, created_at, updated_at, completed_at
		 FROM processing_tasks WHERE task_id = $1`, taskID).
		Scan(&t.TaskID, &t.TaskType, &t.Status, &t.InputData, &t.ResultData, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, faults.Newf(faults.NotFound, "store.GetTask", "task %s not found", taskID)
	}
	if err != nil {
		return nil, faults.Wrap(faults.Upstream, "store.GetTask", err)
	}
	return &t, nil
}

// ListTasks returns tasks newest first, optionally filtered by type and
// status (empty string means no filter).
func (s *Store) ListTasks(ctx context.Context, taskType, status string, limit int) ([]models.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT task_id, task_type, status, input_data, result_data, error_message, created_at, updated_at, completed_at
		 FROM processing_tasks
		 WHERE ($1 = '' OR task_type = $1)
		   AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC
		 LIMIT $3`, taskType, status, limit)
	if err != nil {
		return nil, faults.Wrap(faults.Upstream, "store.ListTasks", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.TaskID, &t.TaskType, &t.Status, &t.InputData, &t.ResultData, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt); err != nil {
			return nil, faults.Wrap(faults.Upstream, "store.ListTasks", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.Upstream, "store.ListTasks", err)
	}
	return tasks, nil
}
