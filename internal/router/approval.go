package router

import (
	"context"
	"sync"
	"time"
)

// ApprovalRequest is sent when a task pauses for human sign-off.
// Operators receive it through the CLI or the HTTP API.
type ApprovalRequest struct {
	// TaskID is the ID of the task requiring approval.
	TaskID string
	// Role is the recipient role that produced the result.
	Role string
	// Summary describes the result awaiting sign-off.
	Summary string
	// RequestedAt is when the task entered waiting_approval.
	RequestedAt time.Time
}

// ApprovalResponse is the operator's decision on an approval request.
type ApprovalResponse struct {
	// TaskID is the ID of the task being approved or rejected.
	TaskID string
	// Approved indicates whether the result was accepted.
	Approved bool
	// Actor identifies who decided.
	Actor string
	// Reason provides context for rejections.
	Reason string
}

// ApprovalManager parks tasks waiting for human sign-off and delivers
// decisions back to the blocked worker. A worker blocks in WaitForDecision;
// the CLI or API unblocks it through SubmitResponse. If no decision arrives
// within the escalation timeout, the onEscalate callback fires once and the
// worker keeps waiting.
type ApprovalManager struct {
	// pendingRequests maps task IDs to channels waiting for decisions.
	pendingRequests map[string]chan ApprovalResponse
	// requestCh delivers approval requests to subscribers.
	requestCh chan ApprovalRequest
	// escalationTimeout is how long a request may wait before escalating.
	escalationTimeout time.Duration
	// onEscalate is called when a request passes the escalation timeout.
	onEscalate func(ApprovalRequest)
	// mu protects pendingRequests.
	mu sync.RWMutex
}

// NewApprovalManager creates an ApprovalManager. A zero escalation timeout
// disables escalation.
func NewApprovalManager(escalationTimeout time.Duration, onEscalate func(ApprovalRequest)) *ApprovalManager {
	return &ApprovalManager{
		pendingRequests:   make(map[string]chan ApprovalResponse),
		requestCh:         make(chan ApprovalRequest, 10),
		escalationTimeout: escalationTimeout,
		onEscalate:        onEscalate,
	}
}

// RequestCh returns a read-only channel for receiving approval requests.
func (m *ApprovalManager) RequestCh() <-chan ApprovalRequest {
	return m.requestCh
}

// WaitForDecision blocks until the operator approves or rejects the task, or
// the context is cancelled. The request stays pending across escalation; only
// a decision or cancellation ends the wait.
func (m *ApprovalManager) WaitForDecision(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error) {
	responseCh := make(chan ApprovalResponse, 1)

	m.mu.Lock()
	m.pendingRequests[req.TaskID] = responseCh
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pendingRequests, req.TaskID)
		m.mu.Unlock()
	}()

	select {
	case m.requestCh <- req:
	case <-ctx.Done():
		return ApprovalResponse{}, ctx.Err()
	}

	var escalate <-chan time.Time
	if m.escalationTimeout > 0 {
		timer := time.NewTimer(m.escalationTimeout)
		defer timer.Stop()
		escalate = timer.C
	}

	for {
		select {
		case resp := <-responseCh:
			return resp, nil
		case <-escalate:
			if m.onEscalate != nil {
				m.onEscalate(req)
			}
			escalate = nil
		case <-ctx.Done():
			return ApprovalResponse{}, ctx.Err()
		}
	}
}

// SubmitResponse delivers an operator's decision to a pending request.
// Returns true if a request was waiting for this task.
func (m *ApprovalManager) SubmitResponse(resp ApprovalResponse) bool {
	m.mu.RLock()
	ch, exists := m.pendingRequests[resp.TaskID]
	m.mu.RUnlock()

	if !exists {
		return false
	}

	select {
	case ch <- resp:
		return true
	default:
		// Decision already submitted.
		return false
	}
}

// HasPendingRequest returns true if there is a pending approval request for the task.
func (m *ApprovalManager) HasPendingRequest(taskID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.pendingRequests[taskID]
	return exists
}

// PendingTaskIDs returns the IDs of tasks currently waiting for a decision.
func (m *ApprovalManager) PendingTaskIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.pendingRequests))
	for id := range m.pendingRequests {
		ids = append(ids, id)
	}
	return ids
}
