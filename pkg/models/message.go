package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageKind is the envelope type of an inter-role message.
type MessageKind string

const (
	// MessageTaskRequest asks the recipient role to perform work.
	MessageTaskRequest MessageKind = "task_request"
	// MessageTaskResponse reports the outcome of a task request.
	MessageTaskResponse MessageKind = "task_response"
	// MessageInfoRequest asks the recipient for additional information.
	MessageInfoRequest MessageKind = "info_request"
	// MessageInfoResponse answers an earlier info request.
	MessageInfoResponse MessageKind = "info_response"
	// MessageStatusUpdate carries a progress report for an in-flight task.
	MessageStatusUpdate MessageKind = "status_update"
)

// Valid returns true if the kind is a known envelope type.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageTaskRequest, MessageTaskResponse, MessageInfoRequest,
		MessageInfoResponse, MessageStatusUpdate:
		return true
	default:
		return false
	}
}

// Message is the envelope exchanged between roles and across the protocol
// bridge. TaskID ties responses and updates back to the originating task;
// CorrelationID ties an info_response back to its info_request.
type Message struct {
	// ID uniquely identifies the message.
	ID string `json:"id"`
	// Kind is the envelope type.
	Kind MessageKind `json:"kind"`
	// TaskID links the message to a task, when applicable.
	TaskID string `json:"task_id,omitempty"`
	// CorrelationID links a response to the request it answers.
	CorrelationID string `json:"correlation_id,omitempty"`
	// Sender is the originating role.
	Sender Role `json:"sender"`
	// Recipient is the destination role.
	Recipient Role `json:"recipient"`
	// Body is the free-form message content.
	Body string `json:"body,omitempty"`
	// Payload carries structured data, opaque to the router.
	Payload map[string]any `json:"payload,omitempty"`
	// SentAt is when the message was created.
	SentAt time.Time `json:"sent_at"`
}

// NewMessage constructs a message envelope, validating the kind and roles.
func NewMessage(kind MessageKind, sender, recipient Role, body string) (*Message, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown message kind %q", ErrValidation, kind)
	}
	if sender == "" || recipient == "" {
		return nil, fmt.Errorf("%w: sender and recipient are required", ErrValidation)
	}
	return &Message{
		ID:        uuid.New().String(),
		Kind:      kind,
		Sender:    sender,
		Recipient: recipient,
		Body:      body,
		SentAt:    time.Now().UTC(),
	}, nil
}
