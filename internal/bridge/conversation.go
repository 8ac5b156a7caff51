package bridge

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// ConversationStatus is the lifecycle state of a peer conversation.
type ConversationStatus string

const (
	// ConversationActive means the conversation accepts messages.
	ConversationActive ConversationStatus = "active"
	// ConversationClosed means the conversation no longer accepts messages.
	ConversationClosed ConversationStatus = "closed"
)

// ExternalMessage is one message in the external protocol's wire shape.
type ExternalMessage struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Conversation is an ordered message exchange with one peer. Appends are
// serialized per conversation so message order matches append order exactly.
type Conversation struct {
	ID        string
	Peer      string
	Version   string
	CreatedAt time.Time

	mu         sync.Mutex
	clock      func() time.Time
	messages   []ExternalMessage
	status     ConversationStatus
	lastActive time.Time
	closedAt   time.Time
}

// Append adds a message to the conversation. Appending to a closed
// conversation fails with ErrConversationClosed.
func (c *Conversation) Append(msg ExternalMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != ConversationActive {
		return fmt.Errorf("%w: conversation %s with peer %s", models.ErrConversationClosed, c.ID, c.Peer)
	}

	c.messages = append(c.messages, msg)
	c.lastActive = c.clock().UTC()
	return nil
}

// Messages returns a copy of the conversation history in append order.
func (c *Conversation) Messages() []ExternalMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ExternalMessage(nil), c.messages...)
}

// Status returns the conversation status.
func (c *Conversation) Status() ConversationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastActive returns when the conversation last saw a message.
func (c *Conversation) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// close marks the conversation closed. Idempotent.
func (c *Conversation) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == ConversationClosed {
		return
	}
	c.status = ConversationClosed
	c.closedAt = c.clock().UTC()
}

// snapshot returns the persisted view of the conversation.
func (c *Conversation) snapshot() models.BridgeConversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := models.BridgeConversation{
		ID:           c.ID,
		Peer:         c.Peer,
		Version:      c.Version,
		Status:       string(c.status),
		MessageCount: len(c.messages),
		CreatedAt:    c.CreatedAt,
		LastActiveAt: c.lastActive,
	}
	if !c.closedAt.IsZero() {
		closed := c.closedAt
		rec.ClosedAt = &closed
	}
	return rec
}

// Archiver receives a snapshot of each conversation as it closes, typically
// to persist it.
type Archiver func(models.BridgeConversation)

// ConversationManager opens conversations lazily per peer and closes them
// after an idle timeout. One active conversation exists per peer at a time; a
// new message to a peer whose conversation was closed opens a fresh one.
type ConversationManager struct {
	idleTimeout time.Duration
	clock       func() time.Time

	mu      sync.Mutex
	active  map[string]*Conversation
	closed  []*Conversation
	archive Archiver
}

// NewConversationManager creates a manager. A zero idle timeout disables
// idle-based closing.
func NewConversationManager(idleTimeout time.Duration) *ConversationManager {
	return &ConversationManager{
		idleTimeout: idleTimeout,
		clock:       time.Now,
		active:      make(map[string]*Conversation),
	}
}

// Get returns the active conversation for a peer, opening one if needed.
func (cm *ConversationManager) Get(peer, version string) *Conversation {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if conv, ok := cm.active[peer]; ok {
		return conv
	}

	now := cm.clock().UTC()
	conv := &Conversation{
		ID:         uuid.New().String(),
		Peer:       peer,
		Version:    version,
		CreatedAt:  now,
		clock:      cm.clock,
		status:     ConversationActive,
		lastActive: now,
	}
	cm.active[peer] = conv
	return conv
}

// Lookup returns the active conversation for a peer without opening one.
func (cm *ConversationManager) Lookup(peer string) (*Conversation, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	conv, ok := cm.active[peer]
	return conv, ok
}

// OnClose registers the archiver called with a snapshot of each conversation
// as it closes.
func (cm *ConversationManager) OnClose(fn Archiver) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.archive = fn
}

// Close closes the active conversation with a peer, if any.
func (cm *ConversationManager) Close(peer string) bool {
	cm.mu.Lock()
	conv, ok := cm.active[peer]
	if !ok {
		cm.mu.Unlock()
		return false
	}
	conv.close()
	delete(cm.active, peer)
	cm.closed = append(cm.closed, conv)
	archive := cm.archive
	cm.mu.Unlock()

	if archive != nil {
		archive(conv.snapshot())
	}
	return true
}

// CloseIdle closes conversations idle past the timeout and returns how many
// were closed. Call this periodically; the Bridge runs it on its janitor
// tick.
func (cm *ConversationManager) CloseIdle() int {
	if cm.idleTimeout <= 0 {
		return 0
	}

	cm.mu.Lock()
	cutoff := cm.clock().Add(-cm.idleTimeout)
	var idle []*Conversation
	for peer, conv := range cm.active {
		if conv.LastActive().Before(cutoff) {
			conv.close()
			delete(cm.active, peer)
			cm.closed = append(cm.closed, conv)
			idle = append(idle, conv)
		}
	}
	archive := cm.archive
	cm.mu.Unlock()

	if archive != nil {
		for _, conv := range idle {
			archive(conv.snapshot())
		}
	}
	return len(idle)
}

// ActivePeers returns peers with open conversations, sorted.
func (cm *ConversationManager) ActivePeers() []string {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	peers := make([]string, 0, len(cm.active))
	for peer := range cm.active {
		peers = append(peers, peer)
	}
	sort.Strings(peers)
	return peers
}
