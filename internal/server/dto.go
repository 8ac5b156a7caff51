package server

import (
	"time"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// SubmitTaskRequest creates and queues a new task.
type SubmitTaskRequest struct {
	SenderRole    string         `json:"sender_role" example:"lead"`
	RecipientRole string         `json:"recipient_role" example:"engineer"`
	TaskType      string         `json:"task_type" example:"implementation"`
	Description   string         `json:"description" example:"Build the export endpoint"`
	Priority      string         `json:"priority,omitempty" example:"high"`
	Context       map[string]any `json:"context,omitempty"`
	Attachments   []string       `json:"attachments,omitempty"`
	Deadline      *time.Time     `json:"deadline,omitempty"`
}

// HistoryEntryResponse is one recorded task transition.
type HistoryEntryResponse struct {
	Actor     string    `json:"actor"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Comment   string    `json:"comment,omitempty"`
}

// TaskResponse is the API shape of a task.
type TaskResponse struct {
	ID            string                 `json:"task_id"`
	TaskType      string                 `json:"task_type"`
	SenderRole    string                 `json:"sender_role"`
	RecipientRole string                 `json:"recipient_role"`
	Priority      string                 `json:"priority"`
	Status        string                 `json:"status"`
	Description   string                 `json:"description"`
	Context       map[string]any         `json:"context,omitempty"`
	Attachments   []string               `json:"attachments,omitempty"`
	Deadline      *time.Time             `json:"deadline,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	RetryCount    int                    `json:"retry_count"`
	History       []HistoryEntryResponse `json:"history,omitempty"`
}

func taskResponse(t *models.Task) TaskResponse {
	resp := TaskResponse{
		ID:            t.ID,
		TaskType:      string(t.Type),
		SenderRole:    string(t.SenderRole),
		RecipientRole: string(t.RecipientRole),
		Priority:      string(t.Priority),
		Status:        string(t.Status),
		Description:   t.Description,
		Context:       t.Context,
		Attachments:   t.Attachments,
		Deadline:      t.Deadline,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		RetryCount:    t.RetryCount,
	}
	for _, h := range t.History {
		resp.History = append(resp.History, HistoryEntryResponse{
			Actor:     h.Actor,
			From:      string(h.From),
			To:        string(h.To),
			Timestamp: h.Timestamp,
			Comment:   h.Comment,
		})
	}
	return resp
}

func mapTasks(tasks []*models.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskResponse(t))
	}
	return out
}

// PoolResponse is the API shape of a worker pool.
type PoolResponse struct {
	Role              string    `json:"role"`
	CurrentSize       int       `json:"current_size"`
	MinSize           int       `json:"min_size"`
	MaxSize           int       `json:"max_size"`
	PendingQueueDepth int       `json:"pending_queue_depth"`
	AvgLatencyMS      float64   `json:"avg_latency_ms"`
	LastScaleActionAt time.Time `json:"last_scale_action_at,omitempty"`
}

func poolResponse(p models.WorkerPool) PoolResponse {
	return PoolResponse{
		Role:              string(p.Role),
		CurrentSize:       p.CurrentSize,
		MinSize:           p.MinSize,
		MaxSize:           p.MaxSize,
		PendingQueueDepth: p.PendingQueueDepth,
		AvgLatencyMS:      p.AvgLatencyMS,
		LastScaleActionAt: p.LastScaleActionAt,
	}
}

// AlertInstanceResponse is the API shape of an alert instance.
type AlertInstanceResponse struct {
	RuleID         string     `json:"rule_id"`
	TriggeredAt    time.Time  `json:"triggered_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	SilencedUntil  *time.Time `json:"silenced_until,omitempty"`
	LastNotifiedAt time.Time  `json:"last_notified_at"`
}

func alertResponse(a models.AlertInstance) AlertInstanceResponse {
	return AlertInstanceResponse{
		RuleID:         a.RuleID,
		TriggeredAt:    a.TriggeredAt,
		ResolvedAt:     a.ResolvedAt,
		AcknowledgedAt: a.AcknowledgedAt,
		SilencedUntil:  a.SilencedUntil,
		LastNotifiedAt: a.LastNotifiedAt,
	}
}

func mapAlerts(instances []models.AlertInstance) []AlertInstanceResponse {
	out := make([]AlertInstanceResponse, 0, len(instances))
	for _, a := range instances {
		out = append(out, alertResponse(a))
	}
	return out
}

// MetricResponse is one sampled metric value.
type MetricResponse struct {
	Key   string    `json:"key"`
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}
