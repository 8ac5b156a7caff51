package router

import (
	"sync"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// Queue holds queued tasks grouped by recipient role. Dispatch order within a
// role is highest priority first, then oldest created_at, then lexically
// smallest task ID. The ID tie-break keeps dispatch deterministic when tasks
// share a creation timestamp.
type Queue struct {
	mu      sync.Mutex
	pending map[models.Role][]*models.Task
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		pending: make(map[models.Role][]*models.Task),
	}
}

// Push adds a task to its recipient role's queue.
func (q *Queue) Push(task *models.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[task.RecipientRole] = append(q.pending[task.RecipientRole], task)
}

// Pop removes and returns the next task for the role, or nil if the role's
// queue is empty.
func (q *Queue) Pop(role models.Role) *models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := q.pending[role]
	if len(tasks) == 0 {
		return nil
	}

	best := 0
	for i := 1; i < len(tasks); i++ {
		if queuedBefore(tasks[i], tasks[best]) {
			best = i
		}
	}

	task := tasks[best]
	q.pending[role] = append(tasks[:best], tasks[best+1:]...)
	return task
}

// queuedBefore reports whether a dispatches before b.
func queuedBefore(a, b *models.Task) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() > b.Priority.Rank()
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Remove takes a specific task out of its role's queue. Returns true if the
// task was found and removed.
func (q *Queue) Remove(taskID string, role models.Role) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := q.pending[role]
	for i, t := range tasks {
		if t.ID == taskID {
			q.pending[role] = append(tasks[:i], tasks[i+1:]...)
			return true
		}
	}
	return false
}

// Depth returns the number of queued tasks for a role.
func (q *Queue) Depth(role models.Role) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[role])
}

// Depths returns queue depths for all roles that have queued tasks.
func (q *Queue) Depths() map[models.Role]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[models.Role]int, len(q.pending))
	for role, tasks := range q.pending {
		if len(tasks) > 0 {
			out[role] = len(tasks)
		}
	}
	return out
}

// Roles returns all roles that currently have queued tasks.
func (q *Queue) Roles() []models.Role {
	q.mu.Lock()
	defer q.mu.Unlock()

	roles := make([]models.Role, 0, len(q.pending))
	for role, tasks := range q.pending {
		if len(tasks) > 0 {
			roles = append(roles, role)
		}
	}
	return roles
}
