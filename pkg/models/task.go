// Package models defines the core data types shared across Quorum:
// tasks, roles, worker pools, and alert definitions.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusCreated indicates the task has been constructed but not submitted.
	TaskStatusCreated TaskStatus = "created"
	// TaskStatusQueued indicates the task is waiting for a worker of its recipient role.
	TaskStatusQueued TaskStatus = "queued"
	// TaskStatusInProgress indicates a worker is executing the task.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusWaitingApproval indicates the task is paused pending human sign-off.
	TaskStatusWaitingApproval TaskStatus = "waiting_approval"
	// TaskStatusWaitingInfo indicates the task is paused pending additional information.
	TaskStatusWaitingInfo TaskStatus = "waiting_info"
	// TaskStatusBlocked indicates the task cannot proceed until it is reassigned or unblocked.
	TaskStatusBlocked TaskStatus = "blocked"
	// TaskStatusCompleted indicates the task finished successfully. Terminal.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusRejected indicates the task was rejected or cancelled. Terminal.
	TaskStatusRejected TaskStatus = "rejected"
	// TaskStatusError indicates the task failed after retries were exhausted.
	// Terminal unless an operator explicitly requeues it.
	TaskStatusError TaskStatus = "error"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusCreated, TaskStatusQueued, TaskStatusInProgress,
		TaskStatusWaitingApproval, TaskStatusWaitingInfo, TaskStatusBlocked,
		TaskStatusCompleted, TaskStatusRejected, TaskStatusError:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are allowed from this
// status through normal routing. An error task can still be requeued by an
// explicit operator action.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusRejected
}

// allowedTransitions defines the task state machine. A transition not listed
// here is rejected with ErrInvalidTransition.
var allowedTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusCreated:         {TaskStatusQueued},
	TaskStatusQueued:          {TaskStatusInProgress, TaskStatusRejected, TaskStatusBlocked},
	TaskStatusInProgress:      {TaskStatusWaitingApproval, TaskStatusWaitingInfo, TaskStatusBlocked, TaskStatusCompleted, TaskStatusRejected, TaskStatusError},
	TaskStatusWaitingApproval: {TaskStatusInProgress, TaskStatusRejected},
	TaskStatusWaitingInfo:     {TaskStatusInProgress, TaskStatusBlocked, TaskStatusRejected},
	TaskStatusBlocked:         {TaskStatusQueued, TaskStatusInProgress, TaskStatusRejected},
	TaskStatusError:           {TaskStatusQueued},
}

// CanTransition reports whether moving from s to next is legal.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	for _, t := range allowedTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// TaskType categorizes the kind of work a task represents. The set is open:
// any non-empty string is accepted, these are the well-known values.
type TaskType string

const (
	TaskTypeArchitectureDesign TaskType = "architecture_design"
	TaskTypeImplementation     TaskType = "implementation"
	TaskTypeTestExecution      TaskType = "test_execution"
	TaskTypeReview             TaskType = "review"
	TaskTypePromptDesign       TaskType = "prompt_design"
	TaskTypeDataPipeline       TaskType = "data_pipeline"
	TaskTypeResearch           TaskType = "research"
	TaskTypeConsultation       TaskType = "consultation"
)

// Priority orders tasks for dispatch: low < medium < high < critical.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns the numeric ordering of a priority. Higher dispatches first.
// Unknown priorities rank below low.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// HistoryEntry records a single state transition of a task.
type HistoryEntry struct {
	// Actor identifies who or what performed the transition (role, worker ID, "router", "operator").
	Actor string `json:"actor"`
	// From is the status before the transition.
	From TaskStatus `json:"from"`
	// To is the status after the transition.
	To TaskStatus `json:"to"`
	// Timestamp is when the transition occurred.
	Timestamp time.Time `json:"timestamp"`
	// Comment provides optional context (error text, rejection reason, etc.).
	Comment string `json:"comment,omitempty"`
}

// Task represents a unit of work routed between roles.
type Task struct {
	// ID is the unique, immutable identifier for this task.
	ID string `json:"id"`
	// Type is the kind of work this task represents.
	Type TaskType `json:"type"`
	// SenderRole is the role that originated the task.
	SenderRole Role `json:"sender_role"`
	// RecipientRole is the role currently expected to execute the task.
	// It may change through Reassign while the task is queued or blocked.
	RecipientRole Role `json:"recipient_role"`
	// Priority orders the task relative to others waiting for the same role.
	Priority Priority `json:"priority"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Description is the free-form task description.
	Description string `json:"description"`
	// Context carries arbitrary key/value data, opaque to the router.
	Context map[string]any `json:"context,omitempty"`
	// Attachments lists opaque references into the external artifact store.
	Attachments []string `json:"attachments,omitempty"`
	// Deadline is the optional completion deadline.
	Deadline *time.Time `json:"deadline,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is bumped on every mutation.
	UpdatedAt time.Time `json:"updated_at"`
	// RetryCount is the number of execution retries performed so far.
	RetryCount int `json:"retry_count,omitempty"`
	// CancelRequested is set when a cancellation has been requested for an
	// in-progress task. The executing worker observes it cooperatively.
	CancelRequested bool `json:"cancel_requested,omitempty"`
	// History is the append-only list of state transitions. The final
	// entry's To always equals Status.
	History []HistoryEntry `json:"history"`
}

// NewTask constructs a task in the created state and records the initial
// history entry. It fails with ErrValidation if a required field is missing.
func NewTask(sender, recipient Role, taskType TaskType, description string) (*Task, error) {
	if sender == "" {
		return nil, fmt.Errorf("%w: sender_role is required", ErrValidation)
	}
	if recipient == "" {
		return nil, fmt.Errorf("%w: recipient_role is required", ErrValidation)
	}
	if taskType == "" {
		return nil, fmt.Errorf("%w: task_type is required", ErrValidation)
	}
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrValidation)
	}

	now := time.Now().UTC()
	t := &Task{
		ID:            uuid.New().String(),
		Type:          taskType,
		SenderRole:    sender,
		RecipientRole: recipient,
		Priority:      PriorityMedium,
		Status:        TaskStatusCreated,
		Description:   description,
		CreatedAt:     now,
		UpdatedAt:     now,
		History: []HistoryEntry{{
			Actor:     string(sender),
			From:      TaskStatusCreated,
			To:        TaskStatusCreated,
			Timestamp: now,
			Comment:   "task created",
		}},
	}
	return t, nil
}

// Transition moves the task to a new status, appending a history entry and
// updating UpdatedAt. It fails with ErrInvalidTransition if the move is not
// allowed by the state machine; the task is left unchanged on failure.
func (t *Task) Transition(next TaskStatus, actor, comment string) error {
	if !next.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, next)
	}
	if actor == "" {
		return fmt.Errorf("%w: actor is required", ErrValidation)
	}
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, next)
	}

	now := time.Now().UTC()
	t.History = append(t.History, HistoryEntry{
		Actor:     actor,
		From:      t.Status,
		To:        next,
		Timestamp: now,
		Comment:   comment,
	})
	t.Status = next
	t.UpdatedAt = now
	return nil
}

// Reassign changes the recipient role. It is only allowed while the task is
// queued or blocked, and records the change in history without altering the
// status.
func (t *Task) Reassign(newRecipient Role, actor string) error {
	if newRecipient == "" {
		return fmt.Errorf("%w: recipient_role is required", ErrValidation)
	}
	if t.Status != TaskStatusQueued && t.Status != TaskStatusBlocked {
		return fmt.Errorf("%w: reassign not allowed in status %s", ErrInvalidTransition, t.Status)
	}

	now := time.Now().UTC()
	t.History = append(t.History, HistoryEntry{
		Actor:     actor,
		From:      t.Status,
		To:        t.Status,
		Timestamp: now,
		Comment:   fmt.Sprintf("reassigned %s -> %s", t.RecipientRole, newRecipient),
	})
	t.RecipientRole = newRecipient
	t.UpdatedAt = now
	return nil
}

// LastEntry returns the most recent history entry.
func (t *Task) LastEntry() HistoryEntry {
	return t.History[len(t.History)-1]
}
