package models

import "time"

// BridgeConversation is the persisted snapshot of a protocol bridge
// conversation, keyed by conversation ID. The bridge writes one when a
// conversation closes so peer exchange history survives restarts.
type BridgeConversation struct {
	// ID is the unique conversation identifier.
	ID string `json:"conversation_id"`
	// Peer is the external peer the conversation belongs to.
	Peer string `json:"peer"`
	// Version is the protocol version the conversation was held at.
	Version string `json:"protocol_version"`
	// Status is the lifecycle state at snapshot time.
	Status string `json:"status"`
	// MessageCount is how many messages were exchanged.
	MessageCount int `json:"message_count"`
	// CreatedAt is when the conversation was opened.
	CreatedAt time.Time `json:"created_at"`
	// LastActiveAt is when the conversation last saw a message.
	LastActiveAt time.Time `json:"last_active_at"`
	// ClosedAt is when the conversation was closed, nil while active.
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}
