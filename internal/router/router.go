package router

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ShayCichocki/quorum/internal/config"
	"github.com/ShayCichocki/quorum/internal/metrics"
	"github.com/ShayCichocki/quorum/pkg/models"
)

// Store persists task mutations. Persistence failures are logged and never
// block routing; the in-memory state stays authoritative for the process.
type Store interface {
	SaveTask(task *models.Task) error
}

type nopStore struct{}

func (nopStore) SaveTask(*models.Task) error { return nil }

// LatencyObserver receives the wall-clock latency of each completed task.
// The scaling controller registers one to feed its rolling windows.
type LatencyObserver func(role models.Role, latency time.Duration)

// ApprovalGate decides whether a task must pause for human sign-off before
// completing, independent of whether the executor asked for approval.
type ApprovalGate func(task *models.Task) bool

// Router owns the task lifecycle: it queues submitted tasks, dispatches them
// to workers when their role has capacity, gates approvals and info requests,
// retries failures with backoff, and emits lifecycle events.
type Router struct {
	cfg       config.RouterConfig
	queue     *Queue
	registry  *Registry
	emitter   *EventEmitter
	approvals *ApprovalManager
	info      *InfoBroker
	executor  Executor
	store     Store
	metrics   *metrics.Registry
	backoff   BackoffPolicy
	observer  LatencyObserver
	gate      ApprovalGate

	// mu protects tasks, inflight, and running.
	mu       sync.Mutex
	tasks    map[string]*models.Task
	inflight map[string]context.CancelFunc
	running  map[models.Role]int

	trigger chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Router.
type Option func(*Router)

// WithStore sets the persistence backend.
func WithStore(s Store) Option {
	return func(r *Router) { r.store = s }
}

// WithMetrics sets the shared metric registry.
func WithMetrics(m *metrics.Registry) Option {
	return func(r *Router) { r.metrics = m }
}

// WithLatencyObserver registers a completed-task latency callback.
func WithLatencyObserver(obs LatencyObserver) Option {
	return func(r *Router) { r.observer = obs }
}

// WithBackoff overrides the retry backoff policy.
func WithBackoff(p BackoffPolicy) Option {
	return func(r *Router) { r.backoff = p }
}

// WithApprovalGate overrides the approval predicate. The default gate requires
// approval for the task types listed in the router configuration.
func WithApprovalGate(gate ApprovalGate) Option {
	return func(r *Router) { r.gate = gate }
}

// New creates a Router. The registry defines which roles can receive tasks;
// the executor performs the work.
func New(cfg config.RouterConfig, registry *Registry, executor Executor, opts ...Option) *Router {
	r := &Router{
		cfg:      cfg,
		queue:    NewQueue(),
		registry: registry,
		emitter:  NewEventEmitter(cfg.EventBufferSize),
		info:     NewInfoBroker(),
		executor: executor,
		store:    nopStore{},
		metrics:  metrics.NewRegistry(),
		backoff: BackoffPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryBaseDelay,
			MaxDelay:   cfg.RetryMaxDelay,
		},
		tasks:    make(map[string]*models.Task),
		inflight: make(map[string]context.CancelFunc),
		running:  make(map[models.Role]int),
		trigger:  make(chan struct{}, 1),
	}
	if r.backoff.MaxRetries == 0 && r.backoff.BaseDelay == 0 {
		r.backoff = DefaultBackoffPolicy()
	}
	if len(cfg.ApprovalRequiredTypes) > 0 {
		gated := make(map[string]bool, len(cfg.ApprovalRequiredTypes))
		for _, tt := range cfg.ApprovalRequiredTypes {
			gated[tt] = true
		}
		r.gate = func(task *models.Task) bool { return gated[string(task.Type)] }
	}
	for _, opt := range opts {
		opt(r)
	}

	r.approvals = NewApprovalManager(cfg.ApprovalEscalationTimeout, func(req ApprovalRequest) {
		log.Printf("[router] approval for task %s has waited past %s, escalating", req.TaskID, cfg.ApprovalEscalationTimeout)
		r.emitter.Emit(Event{
			Type:      EventApprovalEscalated,
			TaskID:    req.TaskID,
			Role:      models.Role(req.Role),
			Message:   "approval request unanswered past escalation timeout",
			Timestamp: time.Now().UTC(),
		})
	})

	return r
}

// Events returns the router's lifecycle event stream.
func (r *Router) Events() <-chan Event {
	return r.emitter.Events()
}

// ApprovalRequests returns the channel of pending approval requests.
func (r *Router) ApprovalRequests() <-chan ApprovalRequest {
	return r.approvals.RequestCh()
}

// InfoRequests returns the channel of pending info requests.
func (r *Router) InfoRequests() <-chan InfoRequest {
	return r.info.RequestCh()
}

// Registry returns the role registry.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Run drives the dispatch loop until the context is cancelled. In-flight
// workers are cancelled on shutdown and Run returns after they unwind.
func (r *Router) Run(ctx context.Context) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			for _, cancel := range r.inflight {
				cancel()
			}
			r.mu.Unlock()
			r.wg.Wait()
			return ctx.Err()
		case <-r.trigger:
			r.dispatch(ctx)
		case <-ticker.C:
			r.dispatch(ctx)
		}
	}
}

// Submit accepts a task in the created state, validates it, and queues it for
// dispatch. Tasks addressed to an unregistered role are accepted but parked
// in the blocked state until they are reassigned.
func (r *Router) Submit(task *models.Task) error {
	if task == nil {
		return fmt.Errorf("%w: task is nil", models.ErrValidation)
	}
	if task.Status != models.TaskStatusCreated {
		return fmt.Errorf("%w: submit requires a task in created state, got %s", models.ErrValidation, task.Status)
	}
	if task.Priority != "" && !task.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", models.ErrValidation, task.Priority)
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}

	r.mu.Lock()
	if _, exists := r.tasks[task.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: task %s already submitted", models.ErrValidation, task.ID)
	}
	if err := task.Transition(models.TaskStatusQueued, string(task.SenderRole), ""); err != nil {
		r.mu.Unlock()
		return err
	}
	r.tasks[task.ID] = task

	known := r.registry.Known(task.RecipientRole)
	if !known {
		// Park until an operator reassigns it to a registered role.
		task.Transition(models.TaskStatusBlocked, "router", fmt.Sprintf("no registered role %q", task.RecipientRole))
	}
	r.mu.Unlock()

	r.persist(task)

	if !known {
		log.Printf("[router] task %s blocked: recipient role %q not registered", task.ID, task.RecipientRole)
		r.emitter.Emit(Event{
			Type:      EventTaskBlocked,
			TaskID:    task.ID,
			Role:      task.RecipientRole,
			Message:   "recipient role not registered",
			Timestamp: time.Now().UTC(),
		})
		return nil
	}

	r.queue.Push(task)
	r.publishDepths()
	r.emitter.Emit(Event{
		Type:      EventTaskSubmitted,
		TaskID:    task.ID,
		Role:      task.RecipientRole,
		Message:   task.Description,
		Timestamp: time.Now().UTC(),
	})
	r.triggerDispatch()
	return nil
}

// Get returns a copy of the task with the given ID.
func (r *Router) Get(taskID string) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrTaskNotFound, taskID)
	}
	return copyTask(task), nil
}

// List returns copies of all known tasks, ordered by creation time.
func (r *Router) List() []*models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, copyTask(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Approve resolves a pending approval in favor of the task.
func (r *Router) Approve(taskID, actor string) error {
	if err := r.requireStatus(taskID, models.TaskStatusWaitingApproval); err != nil {
		return err
	}
	if !r.approvals.SubmitResponse(ApprovalResponse{TaskID: taskID, Approved: true, Actor: actor}) {
		return fmt.Errorf("%w: no pending approval for task %s", models.ErrInvalidTransition, taskID)
	}
	return nil
}

// Reject declines a task. Waiting approvals resolve as rejected; queued tasks
// are removed from the queue and rejected directly.
func (r *Router) Reject(taskID, actor, reason string) error {
	r.mu.Lock()
	task, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", models.ErrTaskNotFound, taskID)
	}
	status := task.Status
	r.mu.Unlock()

	switch status {
	case models.TaskStatusWaitingApproval:
		if !r.approvals.SubmitResponse(ApprovalResponse{TaskID: taskID, Approved: false, Actor: actor, Reason: reason}) {
			return fmt.Errorf("%w: no pending approval for task %s", models.ErrInvalidTransition, taskID)
		}
		return nil
	case models.TaskStatusQueued, models.TaskStatusBlocked:
		r.queue.Remove(taskID, task.RecipientRole)
		if err := r.transition(task, models.TaskStatusRejected, actor, reason); err != nil {
			return err
		}
		r.publishDepths()
		r.emitter.Emit(Event{
			Type:      EventTaskCancelled,
			TaskID:    taskID,
			Role:      task.RecipientRole,
			Message:   reason,
			Timestamp: time.Now().UTC(),
		})
		return nil
	default:
		return fmt.Errorf("%w: cannot reject task in status %s", models.ErrInvalidTransition, status)
	}
}

// Cancel requests cancellation of a task. Queued and blocked tasks are
// rejected immediately; in-progress and waiting tasks have their context
// cancelled and unwind cooperatively.
func (r *Router) Cancel(taskID, actor string) error {
	r.mu.Lock()
	task, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", models.ErrTaskNotFound, taskID)
	}

	switch task.Status {
	case models.TaskStatusQueued, models.TaskStatusBlocked:
		r.mu.Unlock()
		return r.Reject(taskID, actor, "cancelled")
	case models.TaskStatusInProgress, models.TaskStatusWaitingApproval, models.TaskStatusWaitingInfo:
		task.CancelRequested = true
		cancel := r.inflight[taskID]
		r.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		debugLog("[router] cancellation requested for task %s by %s", taskID, actor)
		return nil
	default:
		status := task.Status
		r.mu.Unlock()
		return fmt.Errorf("%w: cannot cancel task in status %s", models.ErrInvalidTransition, status)
	}
}

// ProvideInfo answers a task waiting for information.
func (r *Router) ProvideInfo(taskID, actor, answer string) error {
	if err := r.requireStatus(taskID, models.TaskStatusWaitingInfo); err != nil {
		return err
	}
	if !r.info.SubmitAnswer(InfoResponse{TaskID: taskID, Actor: actor, Answer: answer}) {
		return fmt.Errorf("%w: no pending info request for task %s", models.ErrInvalidTransition, taskID)
	}
	return nil
}

// Requeue puts an errored task back in its role's queue with a fresh retry
// budget. This is the only path out of the error state.
func (r *Router) Requeue(taskID, actor string) error {
	r.mu.Lock()
	task, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", models.ErrTaskNotFound, taskID)
	}
	if task.Status != models.TaskStatusError {
		status := task.Status
		r.mu.Unlock()
		return fmt.Errorf("%w: requeue requires error status, got %s", models.ErrInvalidTransition, status)
	}
	if err := task.Transition(models.TaskStatusQueued, actor, "requeued"); err != nil {
		r.mu.Unlock()
		return err
	}
	task.RetryCount = 0
	r.mu.Unlock()

	r.persist(task)
	r.queue.Push(task)
	r.publishDepths()
	r.emitter.Emit(Event{
		Type:      EventTaskSubmitted,
		TaskID:    taskID,
		Role:      task.RecipientRole,
		Message:   "requeued",
		Timestamp: time.Now().UTC(),
	})
	r.triggerDispatch()
	return nil
}

// Reassign moves a queued or blocked task to a different recipient role.
// A blocked task reassigned to a registered role returns to the queue.
func (r *Router) Reassign(taskID string, newRole models.Role, actor string) error {
	if !r.registry.Known(newRole) {
		return fmt.Errorf("%w: role %q not registered", models.ErrValidation, newRole)
	}

	r.mu.Lock()
	task, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", models.ErrTaskNotFound, taskID)
	}

	oldRole := task.RecipientRole
	wasBlocked := task.Status == models.TaskStatusBlocked
	if err := task.Reassign(newRole, actor); err != nil {
		r.mu.Unlock()
		return err
	}
	if wasBlocked {
		if err := task.Transition(models.TaskStatusQueued, actor, "unblocked by reassignment"); err != nil {
			r.mu.Unlock()
			return err
		}
	}
	r.mu.Unlock()

	if !wasBlocked {
		r.queue.Remove(taskID, oldRole)
	}
	r.queue.Push(task)
	r.persist(task)
	r.publishDepths()
	r.emitter.Emit(Event{
		Type:      EventTaskReassigned,
		TaskID:    taskID,
		Role:      newRole,
		Message:   fmt.Sprintf("reassigned %s -> %s", oldRole, newRole),
		Timestamp: time.Now().UTC(),
	})
	r.triggerDispatch()
	return nil
}

// QueueDepth returns the number of queued tasks for a role.
func (r *Router) QueueDepth(role models.Role) int {
	return r.queue.Depth(role)
}

// InflightCount returns the number of tasks currently executing for a role.
func (r *Router) InflightCount(role models.Role) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[role]
}

// dispatch hands queued tasks to workers while their role has free capacity.
// Pop, transition, and slot accounting happen under one critical section per
// task so a task is never claimed twice.
func (r *Router) dispatch(ctx context.Context) {
	for _, role := range r.queue.Roles() {
		for {
			r.mu.Lock()
			capacity := r.registry.Capacity(role)
			if r.running[role] >= capacity {
				r.mu.Unlock()
				break
			}
			r.mu.Unlock()

			task := r.queue.Pop(role)
			if task == nil {
				break
			}

			r.mu.Lock()
			if err := task.Transition(models.TaskStatusInProgress, "router", ""); err != nil {
				// Left the queued state while queued (cancelled); drop it.
				r.mu.Unlock()
				debugLog("[router] skipping dispatch of task %s: %v", task.ID, err)
				continue
			}
			taskCtx, cancel := context.WithCancel(ctx)
			r.inflight[task.ID] = cancel
			r.running[role]++
			r.mu.Unlock()

			r.persist(task)
			r.publishDepths()
			r.emitter.Emit(Event{
				Type:      EventTaskDispatched,
				TaskID:    task.ID,
				Role:      role,
				Timestamp: time.Now().UTC(),
			})

			r.wg.Add(1)
			go r.executeTask(ctx, taskCtx, task)
		}
	}
}

// executeTask runs a single task to a resolution, handling info and approval
// pauses. It owns the task's worker slot for its whole lifetime, including
// while the task waits on a human. runCtx is the router's run context; ctx is
// the per-task context, cancelled when the attempt unwinds.
func (r *Router) executeTask(runCtx, ctx context.Context, task *models.Task) {
	defer r.wg.Done()

	start := time.Now()
	role := task.RecipientRole

	defer func() {
		r.mu.Lock()
		if cancel, ok := r.inflight[task.ID]; ok {
			cancel()
			delete(r.inflight, task.ID)
		}
		r.running[role]--
		r.mu.Unlock()
		r.triggerDispatch()
	}()

	for {
		timeout := r.cfg.TaskTimeout(string(task.Type))
		execCtx, cancelExec := context.WithTimeout(ctx, timeout)
		outcome, err := r.executor.Execute(execCtx, r.mustCopy(task.ID))
		cancelExec()

		if err != nil {
			if r.cancelRequested(task) {
				r.finishCancelled(task)
				return
			}
			r.handleFailure(runCtx, task, err)
			return
		}
		if outcome == nil {
			outcome = &Outcome{}
		}

		if outcome.NeedsInfo {
			if err := r.transition(task, models.TaskStatusWaitingInfo, string(role), outcome.Question); err != nil {
				return
			}
			r.emitter.Emit(Event{
				Type:      EventInfoRequested,
				TaskID:    task.ID,
				Role:      role,
				Message:   outcome.Question,
				Timestamp: time.Now().UTC(),
			})

			resp, err := r.info.WaitForAnswer(ctx, InfoRequest{
				TaskID:      task.ID,
				Role:        string(role),
				Question:    outcome.Question,
				RequestedAt: time.Now().UTC(),
			})
			if err != nil {
				if r.cancelRequested(task) {
					r.finishCancelled(task)
				}
				return
			}

			if err := r.transition(task, models.TaskStatusInProgress, resp.Actor, "info provided"); err != nil {
				return
			}
			r.setContext(task, "info_response", resp.Answer)
			continue
		}

		if !outcome.NeedsApproval && r.gate != nil && r.gate(r.mustCopy(task.ID)) {
			outcome.NeedsApproval = true
			if outcome.ApprovalSummary == "" {
				outcome.ApprovalSummary = fmt.Sprintf("%s task requires sign-off", task.Type)
			}
		}

		if outcome.NeedsApproval {
			if err := r.transition(task, models.TaskStatusWaitingApproval, string(role), ""); err != nil {
				return
			}
			r.emitter.Emit(Event{
				Type:      EventApprovalRequested,
				TaskID:    task.ID,
				Role:      role,
				Message:   outcome.ApprovalSummary,
				Timestamp: time.Now().UTC(),
			})

			resp, err := r.approvals.WaitForDecision(ctx, ApprovalRequest{
				TaskID:      task.ID,
				Role:        string(role),
				Summary:     outcome.ApprovalSummary,
				RequestedAt: time.Now().UTC(),
			})
			if err != nil {
				if r.cancelRequested(task) {
					r.finishCancelled(task)
				}
				return
			}

			if !resp.Approved {
				r.transition(task, models.TaskStatusRejected, resp.Actor, resp.Reason)
				r.emitter.Emit(Event{
					Type:      EventTaskCancelled,
					TaskID:    task.ID,
					Role:      role,
					Message:   resp.Reason,
					Timestamp: time.Now().UTC(),
				})
				return
			}
			if err := r.transition(task, models.TaskStatusInProgress, resp.Actor, "approved"); err != nil {
				return
			}
		}

		r.setContext(task, "result", outcome.Result)
		if err := r.transition(task, models.TaskStatusCompleted, string(role), ""); err != nil {
			return
		}

		latency := time.Since(start)
		if r.observer != nil {
			r.observer(role, latency)
		}
		r.metrics.Add("router.tasks_completed", 1)
		r.emitter.Emit(Event{
			Type:      EventTaskCompleted,
			TaskID:    task.ID,
			Role:      role,
			Timestamp: time.Now().UTC(),
		})
		return
	}
}

// handleFailure moves a failed task to the error state and schedules an
// automatic retry if the budget allows. The backoff wait is bound to the
// router's run context: the per-task context is already cancelled by the time
// the failing attempt unwinds.
func (r *Router) handleFailure(runCtx context.Context, task *models.Task, execErr error) {
	if err := r.transition(task, models.TaskStatusError, "router", execErr.Error()); err != nil {
		return
	}

	r.mu.Lock()
	retryCount := task.RetryCount
	r.mu.Unlock()

	if !r.backoff.ShouldRetry(retryCount) {
		log.Printf("[router] task %s failed permanently after %d retries: %v", task.ID, retryCount, execErr)
		r.metrics.Add("router.tasks_failed", 1)
		r.emitter.Emit(Event{
			Type:      EventTaskFailed,
			TaskID:    task.ID,
			Role:      task.RecipientRole,
			Error:     execErr,
			Attempt:   retryCount,
			Timestamp: time.Now().UTC(),
		})
		return
	}

	attempt := retryCount + 1
	delay := r.backoff.Delay(attempt)
	log.Printf("[router] task %s failed (attempt %d/%d), retrying in %s: %v", task.ID, attempt, r.backoff.MaxRetries, delay, execErr)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		select {
		case <-time.After(delay):
		case <-runCtx.Done():
			return
		}

		r.mu.Lock()
		if task.Status != models.TaskStatusError {
			r.mu.Unlock()
			return
		}
		if err := task.Transition(models.TaskStatusQueued, "router", fmt.Sprintf("retry %d/%d", attempt, r.backoff.MaxRetries)); err != nil {
			r.mu.Unlock()
			return
		}
		task.RetryCount = attempt
		r.mu.Unlock()

		r.persist(task)
		r.queue.Push(task)
		r.publishDepths()
		r.emitter.Emit(Event{
			Type:      EventTaskRetried,
			TaskID:    task.ID,
			Role:      task.RecipientRole,
			Attempt:   attempt,
			Timestamp: time.Now().UTC(),
		})
		r.triggerDispatch()
	}()
}

// finishCancelled resolves a cancelled task to rejected.
func (r *Router) finishCancelled(task *models.Task) {
	if err := r.transition(task, models.TaskStatusRejected, "router", "cancelled"); err != nil {
		return
	}
	r.emitter.Emit(Event{
		Type:      EventTaskCancelled,
		TaskID:    task.ID,
		Role:      task.RecipientRole,
		Message:   "cancelled",
		Timestamp: time.Now().UTC(),
	})
}

// transition applies a state change under the router lock and persists it.
func (r *Router) transition(task *models.Task, next models.TaskStatus, actor, comment string) error {
	r.mu.Lock()
	err := task.Transition(next, actor, comment)
	r.mu.Unlock()
	if err != nil {
		debugLog("[router] transition of task %s to %s failed: %v", task.ID, next, err)
		return err
	}
	r.persist(task)
	return nil
}

// setContext writes a key into the task context under the router lock.
func (r *Router) setContext(task *models.Task, key, value string) {
	if value == "" {
		return
	}
	r.mu.Lock()
	if task.Context == nil {
		task.Context = make(map[string]any)
	}
	task.Context[key] = value
	task.UpdatedAt = time.Now().UTC()
	r.mu.Unlock()
	r.persist(task)
}

// cancelRequested reports whether cancellation was requested for the task.
func (r *Router) cancelRequested(task *models.Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return task.CancelRequested
}

// requireStatus verifies a task exists and is in the expected status.
func (r *Router) requireStatus(taskID string, want models.TaskStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrTaskNotFound, taskID)
	}
	if task.Status != want {
		return fmt.Errorf("%w: task is %s, expected %s", models.ErrInvalidTransition, task.Status, want)
	}
	return nil
}

// persist saves a task snapshot, logging failures.
func (r *Router) persist(task *models.Task) {
	r.mu.Lock()
	snapshot := copyTask(task)
	r.mu.Unlock()

	if err := r.store.SaveTask(snapshot); err != nil {
		log.Printf("[router] failed to persist task %s: %v", task.ID, err)
	}
}

// publishDepths refreshes per-role queue depth metrics.
func (r *Router) publishDepths() {
	for _, role := range r.registry.Roles() {
		r.metrics.Set("router.queue_depth."+string(role), float64(r.queue.Depth(role)))
	}
}

// triggerDispatch nudges the dispatch loop without blocking.
func (r *Router) triggerDispatch() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// mustCopy returns a copy of the task for handing to an executor.
func (r *Router) mustCopy(taskID string) *models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	if task, ok := r.tasks[taskID]; ok {
		return copyTask(task)
	}
	return nil
}

// copyTask clones a task so callers cannot mutate router-owned state.
func copyTask(t *models.Task) *models.Task {
	c := *t
	c.History = append([]models.HistoryEntry(nil), t.History...)
	c.Attachments = append([]string(nil), t.Attachments...)
	if t.Context != nil {
		c.Context = make(map[string]any, len(t.Context))
		for k, v := range t.Context {
			c.Context[k] = v
		}
	}
	return &c
}
