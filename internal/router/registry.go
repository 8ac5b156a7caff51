package router

import (
	"sort"
	"sync"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// Registry tracks the roles known to the router and their current worker
// capacity. Role registration happens at startup and rarely afterwards;
// capacity changes arrive from the scaling controller.
type Registry struct {
	mu    sync.RWMutex
	slots map[models.Role]int
}

// NewRegistry creates a registry with no roles.
func NewRegistry() *Registry {
	return &Registry{
		slots: make(map[models.Role]int),
	}
}

// Register adds a role with an initial worker capacity. Re-registering an
// existing role updates its capacity.
func (r *Registry) Register(role models.Role, capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[role] = capacity
}

// SetCapacity updates the worker capacity for a role. Unknown roles are
// ignored; the scaling controller only manages registered pools.
func (r *Registry) SetCapacity(role models.Role, capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[role]; ok {
		r.slots[role] = capacity
	}
}

// Capacity returns the worker capacity for a role. Unregistered roles have
// zero capacity.
func (r *Registry) Capacity(role models.Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slots[role]
}

// Known reports whether the role is registered.
func (r *Registry) Known(role models.Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.slots[role]
	return ok
}

// Roles returns all registered roles, sorted for stable iteration.
func (r *Registry) Roles() []models.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := make([]models.Role, 0, len(r.slots))
	for role := range r.slots {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
