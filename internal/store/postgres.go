package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"submission-engine/internal/common/logger"
	"submission-engine/internal/models"

	"github.com/lib/pq"
)

// ErrTaskNotFound is returned when a task id has no row.
var ErrTaskNotFound = errors.New("task not found")

// PostgresTaskStore persists submission tasks in the submission_tasks table.
type PostgresTaskStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresTaskStore(db *sql.DB, log logger.Logger) *PostgresTaskStore {
	return &PostgresTaskStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "task-store"}),
	}
}

const insertTaskQuery = `
INSERT INTO submission_tasks
	(id, transaction_id, servicer_id, document_type, priority, status,
	 retry_count, max_retries, metadata, error_history, last_attempt,
	 next_retry, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

func (s *PostgresTaskStore) Insert(ctx context.Context, task *models.SubmissionTask) error {
	metadata, errHistory, err := marshalTaskJSON(task)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, insertTaskQuery,
		task.ID, task.TransactionID, task.ServicerID, task.DocumentType,
		string(task.Priority), string(task.Status), task.RetryCount,
		task.MaxRetries, metadata, errHistory,
		nullableTime(task.LastAttempt), nullableTime(task.NextRetry),
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", task.ID, err)
	}
	return nil
}

const updateTaskQuery = `
UPDATE submission_tasks
SET status = $2, priority = $3, retry_count = $4, max_retries = $5,
	submission_channel = $6, metadata = $7, error_history = $8,
	last_attempt = $9, next_retry = $10, updated_at = $11
WHERE id = $1`

func (s *PostgresTaskStore) Update(ctx context.Context, task *models.SubmissionTask) error {
	metadata, errHistory, err := marshalTaskJSON(task)
	if err != nil {
		return err
	}

	task.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, updateTaskQuery,
		task.ID, string(task.Status), string(task.Priority), task.RetryCount,
		task.MaxRetries, nullableString(string(task.Channel)), metadata,
		errHistory, nullableTime(task.LastAttempt),
		nullableTime(task.NextRetry), task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update task %s: %w", task.ID, ErrTaskNotFound)
	}
	return nil
}

const selectTaskColumns = `
	id, transaction_id, servicer_id, document_type, priority, status,
	retry_count, max_retries, submission_channel, metadata, error_history,
	last_attempt, next_retry, created_at, updated_at`

func (s *PostgresTaskStore) GetByID(ctx context.Context, id string) (*models.SubmissionTask, error) {
	query := `SELECT` + selectTaskColumns + ` FROM submission_tasks WHERE id = $1`
	row := s.db.QueryRowContext(ctx, query, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return task, nil
}

func (s *PostgresTaskStore) ListByStatus(ctx context.Context, statuses ...models.TaskStatus) ([]*models.SubmissionTask, error) {
	statusStrs := make([]string, len(statuses))
	for i, st := range statuses {
		statusStrs[i] = string(st)
	}

	query := `SELECT` + selectTaskColumns + `
FROM submission_tasks
WHERE status = ANY($1)
ORDER BY CASE priority
	WHEN 'urgent' THEN 0
	WHEN 'high' THEN 1
	WHEN 'normal' THEN 2
	ELSE 3
END, created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(statusStrs))
	if err != nil {
		return nil, fmt.Errorf("list tasks by status: %w", err)
	}
	defer rows.Close()

	var tasks []*models.SubmissionTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.SubmissionTask, error) {
	var (
		task        models.SubmissionTask
		priority    string
		status      string
		channel     sql.NullString
		metadata    []byte
		errHistory  []byte
		lastAttempt sql.NullTime
		nextRetry   sql.NullTime
	)

	err := row.Scan(
		&task.ID, &task.TransactionID, &task.ServicerID, &task.DocumentType,
		&priority, &status, &task.RetryCount, &task.MaxRetries, &channel,
		&metadata, &errHistory, &lastAttempt, &nextRetry,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Priority = models.Priority(priority)
	task.Status = models.TaskStatus(status)
	if channel.Valid {
		task.Channel = models.Channel(channel.String)
	}
	if lastAttempt.Valid {
		t := lastAttempt.Time
		task.LastAttempt = &t
	}
	if nextRetry.Valid {
		t := nextRetry.Time
		task.NextRetry = &t
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &task.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal task metadata: %w", err)
		}
	}
	if len(errHistory) > 0 {
		if err := json.Unmarshal(errHistory, &task.ErrorHistory); err != nil {
			return nil, fmt.Errorf("unmarshal task error history: %w", err)
		}
	}
	return &task, nil
}

func marshalTaskJSON(task *models.SubmissionTask) ([]byte, []byte, error) {
	metadata, err := json.Marshal(task.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal task metadata: %w", err)
	}
	errHistory, err := json.Marshal(task.ErrorHistory)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal task error history: %w", err)
	}
	return metadata, errHistory, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
