package state

import (
	"database/sql"
	"fmt"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// SaveConversation upserts a bridge conversation snapshot, keyed by
// conversation ID.
func (db *DB) SaveConversation(conv *models.BridgeConversation) error {
	_, err := db.Exec(`
		INSERT INTO conversations (id, peer, protocol_version, status, message_count, created_at, last_active_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			message_count = excluded.message_count,
			last_active_at = excluded.last_active_at,
			closed_at = excluded.closed_at
	`, conv.ID, conv.Peer, conv.Version, conv.Status, conv.MessageCount,
		formatTime(conv.CreatedAt), formatTime(conv.LastActiveAt),
		nullableTimeString(conv.ClosedAt))
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// ListConversations loads conversation snapshots for a peer, oldest first. An
// empty peer loads every conversation.
func (db *DB) ListConversations(peer string) ([]*models.BridgeConversation, error) {
	query := `
		SELECT id, peer, protocol_version, status, message_count, created_at, last_active_at, closed_at
		FROM conversations`
	args := []any{}
	if peer != "" {
		query += " WHERE peer = ?"
		args = append(args, peer)
	}
	query += " ORDER BY created_at, id"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*models.BridgeConversation
	for rows.Next() {
		var conv models.BridgeConversation
		var createdAt, lastActiveAt string
		var closedAt sql.NullString
		if err := rows.Scan(&conv.ID, &conv.Peer, &conv.Version, &conv.Status, &conv.MessageCount, &createdAt, &lastActiveAt, &closedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if conv.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if conv.LastActiveAt, err = parseTime(lastActiveAt); err != nil {
			return nil, fmt.Errorf("parse last_active_at: %w", err)
		}
		conv.ClosedAt = parseNullableTime(closedAt)
		conversations = append(conversations, &conv)
	}
	return conversations, rows.Err()
}
