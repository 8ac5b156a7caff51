package router

import (
	"context"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// Outcome is what a worker produced for one execution attempt. A worker may
// finish the task, ask for human sign-off, or ask for more information; the
// router resolves the pause and re-invokes the executor where needed.
type Outcome struct {
	// Result is the produced result text, stored in the task context.
	Result string
	// NeedsApproval pauses the task in waiting_approval before completion.
	NeedsApproval bool
	// ApprovalSummary describes the result awaiting sign-off.
	ApprovalSummary string
	// NeedsInfo pauses the task in waiting_info and re-executes after the
	// answer arrives.
	NeedsInfo bool
	// Question is what the worker needs to know when NeedsInfo is set.
	Question string
}

// Executor performs the actual work of a task. Implementations must honor
// context cancellation: the router cancels the context on task cancellation
// and on per-type timeout.
type Executor interface {
	Execute(ctx context.Context, task *models.Task) (*Outcome, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *models.Task) (*Outcome, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, task *models.Task) (*Outcome, error) {
	return f(ctx, task)
}
