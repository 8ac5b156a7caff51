// Package metrics provides a lightweight in-process gauge registry shared by
// the scaling controller and the alert engine.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// Sample is a single observed metric value.
type Sample struct {
	Key   string
	Value float64
	At    time.Time
}

// Registry stores the latest value for each metric key. Writers call Set from
// the router and scaling controller; readers snapshot values on their own
// evaluation ticks.
type Registry struct {
	mu     sync.RWMutex
	values map[string]Sample
}

// NewRegistry creates an empty metric registry.
func NewRegistry() *Registry {
	return &Registry{
		values: make(map[string]Sample),
	}
}

// Set records the current value for a key.
func (r *Registry) Set(key string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = Sample{Key: key, Value: value, At: time.Now().UTC()}
}

// Add increments the current value for a key, treating a missing key as zero.
func (r *Registry) Add(key string, delta float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.values[key]
	s.Key = key
	s.Value += delta
	s.At = time.Now().UTC()
	r.values[key] = s
}

// Get returns the latest sample for a key, and whether the key exists.
func (r *Registry) Get(key string) (Sample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.values[key]
	return s, ok
}

// Value returns the latest value for a key, or zero if it has never been set.
func (r *Registry) Value(key string) float64 {
	s, _ := r.Get(key)
	return s.Value
}

// Snapshot returns all samples sorted by key.
func (r *Registry) Snapshot() []Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Sample, 0, len(r.values))
	for _, s := range r.values {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
