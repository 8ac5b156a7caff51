package bridge

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/quorum/internal/config"
	"github.com/ShayCichocki/quorum/pkg/models"
)

// Bridge connects the internal router to external protocol peers. Each peer
// gets a negotiated protocol version and a lazily opened conversation;
// messages are translated between the internal envelope and the external wire
// shape on the way through.
type Bridge struct {
	cfg           config.BridgeConfig
	mapper        *Mapper
	conversations *ConversationManager

	mu    sync.RWMutex
	peers map[string]string // peer name -> negotiated version
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithArchiver registers a callback receiving a snapshot of each conversation
// as it closes, typically to persist it.
func WithArchiver(fn Archiver) Option {
	return func(b *Bridge) { b.conversations.OnClose(fn) }
}

// New creates a Bridge from configuration.
func New(cfg config.BridgeConfig, opts ...Option) *Bridge {
	b := &Bridge{
		cfg:           cfg,
		mapper:        NewMapper(cfg.RoleMap),
		conversations: NewConversationManager(cfg.ConversationIdleTimeout),
		peers:         make(map[string]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Mapper returns the role mapper.
func (b *Bridge) Mapper() *Mapper {
	return b.mapper
}

// Conversations returns the conversation manager.
func (b *Bridge) Conversations() *ConversationManager {
	return b.conversations
}

// Connect negotiates a protocol version with a peer and remembers it.
// Reconnecting renegotiates.
func (b *Bridge) Connect(peer string, peerVersions []string) (string, error) {
	version, err := b.Negotiate(peerVersions)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.peers[peer] = version
	b.mu.Unlock()

	log.Printf("[bridge] connected to peer %s at protocol version %s", peer, version)
	return version, nil
}

// Negotiate picks a protocol version both sides support. Preference order is
// our advertised version followed by the configured fallback list. An exact
// match wins; otherwise any peer version sharing a major version with a
// preferred one is accepted. No overlap at all fails with
// ErrIncompatibleProtocolVersion.
func (b *Bridge) Negotiate(peerVersions []string) (string, error) {
	if len(peerVersions) == 0 {
		return "", fmt.Errorf("%w: peer advertised no versions", models.ErrIncompatibleProtocolVersion)
	}

	preferred := append([]string{b.cfg.ProtocolVersion}, b.cfg.CompatibleVersions...)

	for _, want := range preferred {
		for _, have := range peerVersions {
			if want == have {
				return want, nil
			}
		}
	}

	for _, want := range preferred {
		for _, have := range peerVersions {
			if majorVersion(want) == majorVersion(have) {
				return have, nil
			}
		}
	}

	return "", fmt.Errorf("%w: ours %v, peer %v", models.ErrIncompatibleProtocolVersion, preferred, peerVersions)
}

func majorVersion(v string) string {
	if i := strings.IndexByte(v, '.'); i >= 0 {
		return v[:i]
	}
	return v
}

// Send translates an internal message and appends it to the peer's
// conversation. The peer must be connected first.
func (b *Bridge) Send(peer string, msg *models.Message) (ExternalMessage, error) {
	b.mu.RLock()
	version, connected := b.peers[peer]
	b.mu.RUnlock()
	if !connected {
		return ExternalMessage{}, fmt.Errorf("%w: peer %s not connected", models.ErrValidation, peer)
	}

	ext, err := b.ToExternal(msg)
	if err != nil {
		return ExternalMessage{}, err
	}

	conv := b.conversations.Get(peer, version)
	if err := conv.Append(ext); err != nil {
		return ExternalMessage{}, err
	}
	return ext, nil
}

// Receive records an inbound external message on the peer's conversation and
// translates it to the internal envelope.
func (b *Bridge) Receive(peer string, ext ExternalMessage) (*models.Message, error) {
	b.mu.RLock()
	version, connected := b.peers[peer]
	b.mu.RUnlock()
	if !connected {
		return nil, fmt.Errorf("%w: peer %s not connected", models.ErrValidation, peer)
	}

	msg, err := b.FromExternal(ext)
	if err != nil {
		return nil, err
	}

	conv := b.conversations.Get(peer, version)
	if err := conv.Append(ext); err != nil {
		return nil, err
	}
	return msg, nil
}

// ToExternal translates an internal message to the external wire shape.
// Message kinds without a protocol analogue fail with
// ErrUnsupportedMessageType.
func (b *Bridge) ToExternal(msg *models.Message) (ExternalMessage, error) {
	if msg == nil || !msg.Kind.Valid() {
		var kind models.MessageKind
		if msg != nil {
			kind = msg.Kind
		}
		return ExternalMessage{}, fmt.Errorf("%w: %q", models.ErrUnsupportedMessageType, kind)
	}

	metadata := map[string]any{
		"kind":           string(msg.Kind),
		"recipient_role": string(b.mapper.Outbound(msg.Recipient)),
	}
	if msg.TaskID != "" {
		metadata["task_id"] = msg.TaskID
	}
	if msg.CorrelationID != "" {
		metadata["correlation_id"] = msg.CorrelationID
	}

	return ExternalMessage{
		ID:        msg.ID,
		Role:      string(b.mapper.Outbound(msg.Sender)),
		Content:   msg.Body,
		Timestamp: msg.SentAt,
		Metadata:  metadata,
	}, nil
}

// FromExternal translates an inbound external message to the internal
// envelope. The message kind must be carried in metadata; the recipient role
// is taken from metadata when mapped, and inferred from the task type
// otherwise.
func (b *Bridge) FromExternal(ext ExternalMessage) (*models.Message, error) {
	kindStr, _ := ext.Metadata["kind"].(string)
	kind := models.MessageKind(kindStr)
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: inbound kind %q", models.ErrUnsupportedMessageType, kindStr)
	}

	sender := models.RoleOperator
	if internals := b.mapper.Inbound(ExternalRole(ext.Role)); len(internals) > 0 {
		sender = internals[0]
	}

	var recipient models.Role
	if recipientStr, ok := ext.Metadata["recipient_role"].(string); ok {
		if internals := b.mapper.Inbound(ExternalRole(recipientStr)); len(internals) > 0 {
			recipient = internals[0]
		} else if models.Role(recipientStr).Known() {
			recipient = models.Role(recipientStr)
		}
	}
	if recipient == "" {
		taskTypeStr, _ := ext.Metadata["task_type"].(string)
		recipient = b.mapper.InferInternalRole(models.TaskType(taskTypeStr))
	}

	msg := &models.Message{
		ID:        ext.ID,
		Kind:      kind,
		Sender:    sender,
		Recipient: recipient,
		Body:      ext.Content,
		SentAt:    ext.Timestamp,
	}
	if taskID, ok := ext.Metadata["task_id"].(string); ok {
		msg.TaskID = taskID
	}
	if corrID, ok := ext.Metadata["correlation_id"].(string); ok {
		msg.CorrelationID = corrID
	}
	return msg, nil
}

// Run closes idle conversations periodically until the context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	interval := b.cfg.ConversationIdleTimeout / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := b.conversations.CloseIdle(); n > 0 {
				log.Printf("[bridge] closed %d idle conversation(s)", n)
			}
		}
	}
}
