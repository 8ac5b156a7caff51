package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// SaveTask upserts a task and rewrites its transition history. It satisfies
// the router's Store interface.
func (db *DB) SaveTask(task *models.Task) error {
	contextJSON, err := json.Marshal(task.Context)
	if err != nil {
		return fmt.Errorf("marshal task context: %w", err)
	}
	attachmentsJSON, err := json.Marshal(task.Attachments)
	if err != nil {
		return fmt.Errorf("marshal task attachments: %w", err)
	}

	var deadline sql.NullString
	if task.Deadline != nil {
		deadline = sql.NullString{String: formatTime(*task.Deadline), Valid: true}
	}

	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO tasks (id, task_type, sender_role, recipient_role, priority, status,
				description, context, attachments, deadline, created_at, updated_at, retry_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				recipient_role = excluded.recipient_role,
				priority = excluded.priority,
				status = excluded.status,
				context = excluded.context,
				attachments = excluded.attachments,
				deadline = excluded.deadline,
				updated_at = excluded.updated_at,
				retry_count = excluded.retry_count
		`, task.ID, string(task.Type), string(task.SenderRole), string(task.RecipientRole),
			string(task.Priority), string(task.Status), task.Description,
			string(contextJSON), string(attachmentsJSON), deadline,
			formatTime(task.CreatedAt), formatTime(task.UpdatedAt), task.RetryCount)
		if err != nil {
			return fmt.Errorf("upsert task: %w", err)
		}

		// History is append-only in memory; rewriting it keeps the stored
		// copy exact without tracking which entries are new.
		if _, err := tx.Exec("DELETE FROM task_history WHERE task_id = ?", task.ID); err != nil {
			return fmt.Errorf("clear task history: %w", err)
		}
		for seq, entry := range task.History {
			_, err := tx.Exec(`
				INSERT INTO task_history (task_id, seq, actor, from_status, to_status, occurred_at, comment)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, task.ID, seq, entry.Actor, string(entry.From), string(entry.To),
				formatTime(entry.Timestamp), entry.Comment)
			if err != nil {
				return fmt.Errorf("insert history entry %d: %w", seq, err)
			}
		}
		return nil
	})
}

// GetTask loads a task and its history by ID.
func (db *DB) GetTask(taskID string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT id, task_type, sender_role, recipient_role, priority, status,
			description, context, attachments, deadline, created_at, updated_at, retry_count
		FROM tasks WHERE id = ?
	`, taskID)

	task, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", models.ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}

	history, err := db.loadHistory(taskID)
	if err != nil {
		return nil, err
	}
	task.History = history
	return task, nil
}

// ListTasks loads all tasks with a matching status, or all tasks when status
// is empty. History is included.
func (db *DB) ListTasks(status models.TaskStatus) ([]*models.Task, error) {
	query := `
		SELECT id, task_type, sender_role, recipient_role, priority, status,
			description, context, attachments, deadline, created_at, updated_at, retry_count
		FROM tasks`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at, id"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	for _, task := range tasks {
		history, err := db.loadHistory(task.ID)
		if err != nil {
			return nil, err
		}
		task.History = history
	}
	return tasks, nil
}

func (db *DB) loadHistory(taskID string) ([]models.HistoryEntry, error) {
	rows, err := db.Query(`
		SELECT actor, from_status, to_status, occurred_at, comment
		FROM task_history WHERE task_id = ? ORDER BY seq
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task history: %w", err)
	}
	defer rows.Close()

	var history []models.HistoryEntry
	for rows.Next() {
		var entry models.HistoryEntry
		var from, to, occurredAt string
		var comment sql.NullString
		if err := rows.Scan(&entry.Actor, &from, &to, &occurredAt, &comment); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entry.From = models.TaskStatus(from)
		entry.To = models.TaskStatus(to)
		if entry.Timestamp, err = parseTime(occurredAt); err != nil {
			return nil, fmt.Errorf("parse history timestamp: %w", err)
		}
		entry.Comment = comment.String
		history = append(history, entry)
	}
	return history, rows.Err()
}

func scanTask(scan func(...any) error) (*models.Task, error) {
	var task models.Task
	var taskType, sender, recipient, priority, status string
	var contextJSON, attachmentsJSON string
	var deadline sql.NullString
	var createdAt, updatedAt string

	err := scan(&task.ID, &taskType, &sender, &recipient, &priority, &status,
		&task.Description, &contextJSON, &attachmentsJSON, &deadline,
		&createdAt, &updatedAt, &task.RetryCount)
	if err != nil {
		return nil, err
	}

	task.Type = models.TaskType(taskType)
	task.SenderRole = models.Role(sender)
	task.RecipientRole = models.Role(recipient)
	task.Priority = models.Priority(priority)
	task.Status = models.TaskStatus(status)
	task.Deadline = parseNullableTime(deadline)

	if task.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if task.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if contextJSON != "" && contextJSON != "null" {
		if err := json.Unmarshal([]byte(contextJSON), &task.Context); err != nil {
			return nil, fmt.Errorf("unmarshal context: %w", err)
		}
	}
	if attachmentsJSON != "" && attachmentsJSON != "null" {
		if err := json.Unmarshal([]byte(attachmentsJSON), &task.Attachments); err != nil {
			return nil, fmt.Errorf("unmarshal attachments: %w", err)
		}
	}
	return &task, nil
}
