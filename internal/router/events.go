// Package router implements task routing between roles: queueing, dispatch,
// approval gating, retries, and lifecycle events.
package router

import (
	"time"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// EventType represents the type of router event.
type EventType string

const (
	// EventTaskSubmitted indicates a task was accepted and queued.
	EventTaskSubmitted EventType = "task_submitted"
	// EventTaskDispatched indicates a task was handed to a worker.
	EventTaskDispatched EventType = "task_dispatched"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task exhausted its retries.
	EventTaskFailed EventType = "task_failed"
	// EventTaskRetried indicates a failed task was requeued for another attempt.
	EventTaskRetried EventType = "task_retried"
	// EventTaskBlocked indicates a task cannot proceed.
	EventTaskBlocked EventType = "task_blocked"
	// EventTaskCancelled indicates a task was cancelled or rejected.
	EventTaskCancelled EventType = "task_cancelled"
	// EventTaskReassigned indicates a task moved to a different recipient role.
	EventTaskReassigned EventType = "task_reassigned"
	// EventApprovalRequested indicates a task is waiting for human sign-off.
	EventApprovalRequested EventType = "approval_requested"
	// EventApprovalEscalated indicates an approval request has waited past the
	// escalation timeout without a decision.
	EventApprovalEscalated EventType = "approval_escalated"
	// EventInfoRequested indicates a task is waiting for additional information.
	EventInfoRequested EventType = "info_requested"
)

// Event represents a task lifecycle event emitted by the router.
// Subscribers include the protocol bridge, the alert metric feed, and the CLI.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task.
	TaskID string
	// Role is the recipient role of the task, if applicable.
	Role models.Role
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Attempt is the retry attempt number for retry events.
	Attempt int
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
