package models

import "time"

// WorkerPool tracks the elastic set of execution slots for one role.
// The scaling controller is the only writer of CurrentSize.
type WorkerPool struct {
	// Role is the role this pool serves.
	Role Role `json:"role"`
	// CurrentSize is the current number of worker slots.
	CurrentSize int `json:"current_size"`
	// MinSize is the lower bound for CurrentSize.
	MinSize int `json:"min_size"`
	// MaxSize is the upper bound for CurrentSize.
	MaxSize int `json:"max_size"`
	// PendingQueueDepth is the most recent observed queue depth for the role.
	PendingQueueDepth int `json:"pending_queue_depth"`
	// AvgLatencyMS is the rolling-window average task latency in milliseconds.
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	// LastScaleActionAt is when the last scale action occurred, for cooldown.
	LastScaleActionAt time.Time `json:"last_scale_action_at"`
}

// SizeValid reports whether CurrentSize is inside [MinSize, MaxSize].
func (p *WorkerPool) SizeValid() bool {
	return p.MinSize <= p.CurrentSize && p.CurrentSize <= p.MaxSize
}

// ScaleDirection indicates which way a scale command moves a pool.
type ScaleDirection string

const (
	// ScaleUp grows the pool.
	ScaleUp ScaleDirection = "up"
	// ScaleDown shrinks the pool.
	ScaleDown ScaleDirection = "down"
)

// ScaleCommand is emitted by the scaling controller for the external
// execution platform to realize. The controller does not start or stop
// workers itself.
type ScaleCommand struct {
	// Role is the pool being resized.
	Role Role `json:"role"`
	// Direction is up or down.
	Direction ScaleDirection `json:"direction"`
	// FromSize is the size before the action.
	FromSize int `json:"from_size"`
	// ToSize is the requested size.
	ToSize int `json:"to_size"`
	// Reason describes the trigger (pressure or latency).
	Reason string `json:"reason"`
	// IssuedAt is when the command was emitted.
	IssuedAt time.Time `json:"issued_at"`
}
