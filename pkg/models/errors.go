package models

import "errors"

// Error taxonomy shared across components. Callers match with errors.Is;
// wrapping sites add context with %w.
var (
	// ErrValidation indicates malformed input, rejected before any state change.
	ErrValidation = errors.New("validation error")
	// ErrInvalidTransition indicates a task state-machine violation; the task is unchanged.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrTaskNotFound indicates an unknown task ID.
	ErrTaskNotFound = errors.New("task not found")
	// ErrReasoningTimeout indicates the reasoning collaborator timed out.
	ErrReasoningTimeout = errors.New("reasoning timeout")
	// ErrReasoning indicates the reasoning collaborator failed.
	ErrReasoning = errors.New("reasoning error")
	// ErrUnsupportedMessageType indicates an internal event with no external
	// protocol analogue.
	ErrUnsupportedMessageType = errors.New("unsupported message type")
	// ErrIncompatibleProtocolVersion indicates version negotiation with a
	// bridge peer failed.
	ErrIncompatibleProtocolVersion = errors.New("incompatible protocol version")
	// ErrConversationClosed indicates a send to a closed bridge conversation.
	ErrConversationClosed = errors.New("conversation closed")
	// ErrScaleCommandFailed indicates the execution platform did not realize a
	// scale command. Retried on the next controller tick, never fatal.
	ErrScaleCommandFailed = errors.New("scale command failed")
)
