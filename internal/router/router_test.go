package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ShayCichocki/quorum/internal/config"
	"github.com/ShayCichocki/quorum/pkg/models"
)

func testRouterConfig() config.RouterConfig {
	return config.RouterConfig{
		MaxRetries:                2,
		RetryBaseDelay:            5 * time.Millisecond,
		RetryMaxDelay:             50 * time.Millisecond,
		ApprovalEscalationTimeout: 0,
		DefaultTaskTimeout:        5 * time.Second,
		EventBufferSize:           100,
	}
}

// eventLog drains the router's single event stream into a growing list so
// concurrent tasks' events are never stolen by an earlier wait.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func recordEvents(r *Router) *eventLog {
	l := &eventLog{}
	go func() {
		for ev := range r.Events() {
			l.mu.Lock()
			l.events = append(l.events, ev)
			l.mu.Unlock()
		}
	}()
	return l
}

// waitFor blocks until an event of the given type has been recorded for the
// task, or the timeout expires.
func (l *eventLog) waitFor(t *testing.T, taskID string, eventType EventType) Event {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		for _, ev := range l.events {
			if ev.Type == eventType && ev.TaskID == taskID {
				l.mu.Unlock()
				return ev
			}
		}
		l.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s event for task %s", eventType, taskID)
	return Event{}
}

func startRouter(t *testing.T, executor Executor, opts ...Option) (*Router, *eventLog, context.CancelFunc) {
	t.Helper()
	return startRouterWithConfig(t, testRouterConfig(), 1, executor, opts...)
}

func startRouterWithConfig(t *testing.T, cfg config.RouterConfig, capacity int, executor Executor, opts ...Option) (*Router, *eventLog, context.CancelFunc) {
	t.Helper()

	registry := NewRegistry()
	registry.Register(models.RoleEngineer, capacity)

	r := New(cfg, registry, executor, opts...)
	events := recordEvents(r)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	return r, events, cancel
}

func submitTask(t *testing.T, r *Router) *models.Task {
	t.Helper()
	task, err := models.NewTask(models.RoleLead, models.RoleEngineer, models.TaskTypeImplementation, "do the work")
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	if err := r.Submit(task); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return task
}

func TestSubmitAndComplete(t *testing.T) {
	executor := ExecutorFunc(func(ctx context.Context, task *models.Task) (*Outcome, error) {
		return &Outcome{Result: "done: " + task.Description}, nil
	})
	r, events, cancel := startRouter(t, executor)
	defer cancel()

	task := submitTask(t, r)
	events.waitFor(t, task.ID, EventTaskCompleted)

	got, err := r.Get(task.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.Context["result"] != "done: do the work" {
		t.Errorf("unexpected result: %v", got.Context["result"])
	}
	if got.LastEntry().To != models.TaskStatusCompleted {
		t.Errorf("history does not end in completed: %s", got.LastEntry().To)
	}
}

func TestUnknownRoleBlocksThenReassign(t *testing.T) {
	executor := ExecutorFunc(func(ctx context.Context, task *models.Task) (*Outcome, error) {
		return &Outcome{Result: "ok"}, nil
	})
	r, events, cancel := startRouter(t, executor)
	defer cancel()

	task, err := models.NewTask(models.RoleLead, models.Role("astrologer"), models.TaskTypeResearch, "read the stars")
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	if err := r.Submit(task); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	events.waitFor(t, task.ID, EventTaskBlocked)

	got, _ := r.Get(task.ID)
	if got.Status != models.TaskStatusBlocked {
		t.Fatalf("expected blocked, got %s", got.Status)
	}

	if err := r.Reassign(task.ID, models.RoleEngineer, "operator"); err != nil {
		t.Fatalf("Reassign failed: %v", err)
	}
	events.waitFor(t, task.ID, EventTaskCompleted)
}

func TestReassignToUnknownRoleRejected(t *testing.T) {
	executor := ExecutorFunc(func(ctx context.Context, task *models.Task) (*Outcome, error) {
		return &Outcome{}, nil
	})
	r, _, cancel := startRouter(t, executor)
	defer cancel()

	task := submitTask(t, r)
	if err := r.Reassign(task.ID, models.Role("nobody"), "operator"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestRetrySucceedsEventually(t *testing.T) {
	var attempts atomic.Int32
	executor := ExecutorFunc(func(ctx context.Context, task *models.Task) (*Outcome, error) {
		if attempts.Add(1) < 3 {
			return nil, fmt.Errorf("transient failure")
		}
		return &Outcome{Result: "recovered"}, nil
	})
	r, events, cancel := startRouter(t, executor)
	defer cancel()

	task := submitTask(t, r)
	events.waitFor(t, task.ID, EventTaskRetried)
	events.waitFor(t, task.ID, EventTaskCompleted)

	got, _ := r.Get(task.ID)
	if got.RetryCount != 2 {
		t.Errorf("expected 2 retries, got %d", got.RetryCount)
	}
}

func TestRetryExhaustionThenRequeue(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	executor := ExecutorFunc(func(ctx context.Context, task *models.Task) (*Outcome, error) {
		if failing.Load() {
			return nil, fmt.Errorf("broken backend")
		}
		return &Outcome{Result: "fixed"}, nil
	})
	r, events, cancel := startRouter(t, executor)
	defer cancel()

	task := submitTask(t, r)
	events.waitFor(t, task.ID, EventTaskFailed)

	got, _ := r.Get(task.ID)
	if got.Status != models.TaskStatusError {
		t.Fatalf("expected error status, got %s", got.Status)
	}

	failing.Store(false)
	if err := r.Requeue(task.ID, "operator"); err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}
	events.waitFor(t, task.ID, EventTaskCompleted)

	got, _ = r.Get(task.ID)
	if got.RetryCount != 0 {
		t.Errorf("requeue should reset retry count, got %d", got.RetryCount)
	}
}

func TestRequeueRequiresErrorState(t *testing.T) {
	executor := ExecutorFunc(func(ctx context.Context, task *models.Task) (*Outcome, error) {
		return &Outcome{}, nil
	})
	r, events, cancel := startRouter(t, executor)
	defer cancel()

	task := submitTask(t, r)
	events.waitFor(t, task.ID, EventTaskCompleted)

	if err := r.Requeue(task.ID, "operator"); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestApprovalFlow(t *testing.T) {
	executor := ExecutorFunc(func(ctx context.Context, task *models.Task) (*Outcome, error) {
		return &Outcome{Result: "draft", NeedsApproval: true, ApprovalSummary: "review the draft"}, nil
	})
	r, events, cancel := startRouter(t, executor)
	defer cancel()

	task := submitTask(t, r)

	select {
	case req := <-r.ApprovalRequests():
		if req.TaskID != task.ID {
			t.Fatalf("approval request for wrong task: %s", req.TaskID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no approval request received")
	}

	got, _ := r.Get(task.ID)
	if got.Status != models.TaskStatusWaitingApproval {
		t.Fatalf("expected waiting_approval, got %s", got.Status)
	}

	if err := r.Approve(task.ID, "operator"); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	events.waitFor(t, task.ID, EventTaskCompleted)
}

func TestApprovalGateByTaskType(t *testing.T) {
	// The executor never asks for approval; the configured gate forces the
	// pause for implementation tasks.
	executor := ExecutorFunc(func(ctx context.Context, task *models.Task) (*Outcome, error) {
		return &Outcome{Result: "patch ready"}, nil
	})
	cfg := testRouterConfig()
	cfg.ApprovalRequiredTypes = []string{string(models.TaskTypeImplementation)}
	r, events, cancel := startRouterWithConfig(t, cfg, 1, executor)
	defer cancel()

	task := submitTask(t, r)

	select {
	case req := <-r.ApprovalRequests():
		if req.TaskID != task.ID {
			t.Fatalf("approval request for wrong task: %s", req.TaskID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("gated task type did not request approval")
	}

	if err := r.Approve(task.ID, "operator"); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	events.waitFor(t, task.ID, EventTaskCompleted)

	// Task types outside the gate complete without pausing.
	other, err := models.NewTask(models.RoleLead, models.RoleEngineer, models.TaskTypeReview, "look it over")
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	if err := r.Submit(other); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	events.waitFor(t, other.ID, EventTaskCompleted)
}

func TestRejectWaitingApproval(t *testing.T) {
	executor := ExecutorFunc(func(ctx context.Context, task *models.Task) (*Outcome, error) {
		return &Outcome{NeedsApproval: true}, nil
	})
	r, events, cancel := startRouter(t, executor)
	defer cancel()

	task := submitTask(t, r)
	<-r.ApprovalRequests()

	if err := r.Reject(task.ID, "operator", "not good enough"); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	events.waitFor(t, task.ID, EventTaskCancelled)

	got, _ := r.Get(task.ID)
	if got.Status != models.TaskStatusRejected {
		t.Errorf("expected rejected, got %s", got.Status)
	}
	if got.LastEntry().Comment != "not good enough" {
		t.Errorf("rejection reason not recorded: %q", got.LastEntry().Comment)
	}
}

func TestApproveWithoutPendingRequest(t *testing.T) {
	executor := ExecutorFunc(func(ctx context.Context, task *models.Task) (*Outcome, error) {
		return &Outcome{}, nil
	})
	r, events, cancel := startRouter(t, executor)
	defer cancel()

	task := submitTask(t, r)
	events.waitFor(t, task.ID, EventTaskCompleted)

	if err := r.Approve(task.ID, "operator"); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if err := r.Approve("missing", "operator"); !errors.Is(err, models.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestInfoFlow(t *testing.T) {
	executor := ExecutorFunc(func(ctx context.Context, task *models.Task) (*Outcome, error) {
		if _, answered := task.Context["info_response"]; !answered {
			return &Outcome{NeedsInfo: true, Question: "which database?"}, nil
		}
		return &Outcome{Result: fmt.Sprintf("using %v", task.Context["info_response"])}, nil
	})
	r, events, cancel := startRouter(t, executor)
	defer cancel()

	task := submitTask(t, r)

	select {
	case req := <-r.InfoRequests():
		if req.Question != "which database?" {
			t.Fatalf("unexpected question: %q", req.Question)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no info request received")
	}

	if err := r.ProvideInfo(task.ID, "operator", "postgres"); err != nil {
		t.Fatalf("ProvideInfo failed: %v", err)
	}
	events.waitFor(t, task.ID, EventTaskCompleted)

	got, _ := r.Get(task.ID)
	if got.Context["result"] != "using postgres" {
		t.Errorf("info answer not threaded through: %v", got.Context["result"])
	}
}

func TestCancelQueued(t *testing.T) {
	executor := ExecutorFunc(func(ctx context.Context, task *models.Task) (*Outcome, error) {
		return &Outcome{}, nil
	})
	// No capacity, tasks stay queued.
	r, _, cancel := startRouterWithConfig(t, testRouterConfig(), 0, executor)
	defer cancel()

	task := submitTask(t, r)
	if err := r.Cancel(task.ID, "operator"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	got, _ := r.Get(task.ID)
	if got.Status != models.TaskStatusRejected {
		t.Errorf("expected rejected, got %s", got.Status)
	}
	if r.QueueDepth(models.RoleEngineer) != 0 {
		t.Errorf("cancelled task left in queue")
	}
}

func TestCancelInProgress(t *testing.T) {
	started := make(chan struct{})
	executor := ExecutorFunc(func(ctx context.Context, task *models.Task) (*Outcome, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r, events, cancel := startRouter(t, executor)
	defer cancel()

	task := submitTask(t, r)
	<-started

	if err := r.Cancel(task.ID, "operator"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	events.waitFor(t, task.ID, EventTaskCancelled)

	got, _ := r.Get(task.ID)
	if got.Status != models.TaskStatusRejected {
		t.Errorf("expected rejected, got %s", got.Status)
	}
}

func TestCancelWaitingInfo(t *testing.T) {
	executor := ExecutorFunc(func(ctx context.Context, task *models.Task) (*Outcome, error) {
		return &Outcome{NeedsInfo: true, Question: "what color?"}, nil
	})
	r, events, cancel := startRouter(t, executor)
	defer cancel()

	task := submitTask(t, r)
	<-r.InfoRequests()

	if err := r.Cancel(task.ID, "operator"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	events.waitFor(t, task.ID, EventTaskCancelled)

	got, _ := r.Get(task.ID)
	if got.Status != models.TaskStatusRejected {
		t.Errorf("expected rejected, got %s", got.Status)
	}
}

func TestDispatchRespectsCapacity(t *testing.T) {
	var concurrent atomic.Int32
	var peak atomic.Int32
	executor := ExecutorFunc(func(ctx context.Context, task *models.Task) (*Outcome, error) {
		n := concurrent.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		concurrent.Add(-1)
		return &Outcome{}, nil
	})
	r, events, cancel := startRouterWithConfig(t, testRouterConfig(), 2, executor)
	defer cancel()

	var tasks []*models.Task
	for i := 0; i < 6; i++ {
		tasks = append(tasks, submitTask(t, r))
	}
	for _, task := range tasks {
		events.waitFor(t, task.ID, EventTaskCompleted)
	}

	if peak.Load() > 2 {
		t.Errorf("capacity 2 exceeded: peak concurrency %d", peak.Load())
	}
}

func TestDoubleSubmitRejected(t *testing.T) {
	executor := ExecutorFunc(func(ctx context.Context, task *models.Task) (*Outcome, error) {
		return &Outcome{}, nil
	})
	r, _, cancel := startRouter(t, executor)
	defer cancel()

	task := submitTask(t, r)
	if err := r.Submit(task); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation on resubmit, got %v", err)
	}
}
