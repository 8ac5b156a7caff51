package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// SaveAlertInstance upserts an alert instance, keyed by rule ID and trigger
// time.
func (db *DB) SaveAlertInstance(inst *models.AlertInstance) error {
	_, err := db.Exec(`
		INSERT INTO alert_instances (rule_id, triggered_at, resolved_at, acknowledged_at, silenced_until, last_notified_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(rule_id, triggered_at) DO UPDATE SET
			resolved_at = excluded.resolved_at,
			acknowledged_at = excluded.acknowledged_at,
			silenced_until = excluded.silenced_until,
			last_notified_at = excluded.last_notified_at
	`, inst.RuleID, formatTime(inst.TriggeredAt),
		nullableTimeString(inst.ResolvedAt),
		nullableTimeString(inst.AcknowledgedAt),
		nullableTimeString(inst.SilencedUntil),
		formatTime(inst.LastNotifiedAt))
	if err != nil {
		return fmt.Errorf("upsert alert instance: %w", err)
	}
	return nil
}

// ListAlertInstances loads instances for a rule, oldest first. An empty rule
// ID loads every instance.
func (db *DB) ListAlertInstances(ruleID string) ([]*models.AlertInstance, error) {
	query := `
		SELECT rule_id, triggered_at, resolved_at, acknowledged_at, silenced_until, last_notified_at
		FROM alert_instances`
	args := []any{}
	if ruleID != "" {
		query += " WHERE rule_id = ?"
		args = append(args, ruleID)
	}
	query += " ORDER BY triggered_at, rule_id"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alert instances: %w", err)
	}
	defer rows.Close()

	var instances []*models.AlertInstance
	for rows.Next() {
		var inst models.AlertInstance
		var triggeredAt, lastNotifiedAt string
		var resolvedAt, acknowledgedAt, silencedUntil sql.NullString
		if err := rows.Scan(&inst.RuleID, &triggeredAt, &resolvedAt, &acknowledgedAt, &silencedUntil, &lastNotifiedAt); err != nil {
			return nil, fmt.Errorf("scan alert instance: %w", err)
		}
		if inst.TriggeredAt, err = parseTime(triggeredAt); err != nil {
			return nil, fmt.Errorf("parse triggered_at: %w", err)
		}
		if inst.LastNotifiedAt, err = parseTime(lastNotifiedAt); err != nil {
			return nil, fmt.Errorf("parse last_notified_at: %w", err)
		}
		inst.ResolvedAt = parseNullableTime(resolvedAt)
		inst.AcknowledgedAt = parseNullableTime(acknowledgedAt)
		inst.SilencedUntil = parseNullableTime(silencedUntil)
		instances = append(instances, &inst)
	}
	return instances, rows.Err()
}

func nullableTimeString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
