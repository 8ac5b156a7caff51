package router

import (
	"context"
	"sync"
	"time"
)

// InfoRequest is sent when a task pauses pending additional information.
type InfoRequest struct {
	// TaskID is the ID of the task asking for information.
	TaskID string
	// Role is the recipient role that asked.
	Role string
	// Question is what the worker needs to know.
	Question string
	// RequestedAt is when the task entered waiting_info.
	RequestedAt time.Time
}

// InfoResponse answers an InfoRequest.
type InfoResponse struct {
	TaskID string
	Actor  string
	Answer string
}

// InfoBroker parks tasks waiting for information the same way the
// ApprovalManager parks tasks waiting for sign-off.
type InfoBroker struct {
	pending   map[string]chan InfoResponse
	requestCh chan InfoRequest
	mu        sync.RWMutex
}

// NewInfoBroker creates an InfoBroker.
func NewInfoBroker() *InfoBroker {
	return &InfoBroker{
		pending:   make(map[string]chan InfoResponse),
		requestCh: make(chan InfoRequest, 10),
	}
}

// RequestCh returns a read-only channel for receiving info requests.
func (b *InfoBroker) RequestCh() <-chan InfoRequest {
	return b.requestCh
}

// WaitForAnswer blocks until an answer arrives or the context is cancelled.
func (b *InfoBroker) WaitForAnswer(ctx context.Context, req InfoRequest) (InfoResponse, error) {
	responseCh := make(chan InfoResponse, 1)

	b.mu.Lock()
	b.pending[req.TaskID] = responseCh
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, req.TaskID)
		b.mu.Unlock()
	}()

	select {
	case b.requestCh <- req:
	case <-ctx.Done():
		return InfoResponse{}, ctx.Err()
	}

	select {
	case resp := <-responseCh:
		return resp, nil
	case <-ctx.Done():
		return InfoResponse{}, ctx.Err()
	}
}

// SubmitAnswer delivers an answer to a waiting task. Returns true if a
// request was pending for this task.
func (b *InfoBroker) SubmitAnswer(resp InfoResponse) bool {
	b.mu.RLock()
	ch, exists := b.pending[resp.TaskID]
	b.mu.RUnlock()

	if !exists {
		return false
	}

	select {
	case ch <- resp:
		return true
	default:
		return false
	}
}

// HasPendingRequest returns true if the task is waiting for an answer.
func (b *InfoBroker) HasPendingRequest(taskID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, exists := b.pending[taskID]
	return exists
}
