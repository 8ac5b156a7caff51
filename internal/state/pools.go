package state

import (
	"database/sql"
	"fmt"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// SavePool upserts the persistent fields of a worker pool. Queue depth and
// latency are runtime observations and are not stored.
func (db *DB) SavePool(pool *models.WorkerPool) error {
	var lastAction sql.NullString
	if !pool.LastScaleActionAt.IsZero() {
		lastAction = sql.NullString{String: formatTime(pool.LastScaleActionAt), Valid: true}
	}

	_, err := db.Exec(`
		INSERT INTO pools (role, current_size, min_size, max_size, last_scale_action_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(role) DO UPDATE SET
			current_size = excluded.current_size,
			min_size = excluded.min_size,
			max_size = excluded.max_size,
			last_scale_action_at = excluded.last_scale_action_at
	`, string(pool.Role), pool.CurrentSize, pool.MinSize, pool.MaxSize, lastAction)
	if err != nil {
		return fmt.Errorf("upsert pool: %w", err)
	}
	return nil
}

// ListPools loads all persisted pools, sorted by role.
func (db *DB) ListPools() ([]*models.WorkerPool, error) {
	rows, err := db.Query(`
		SELECT role, current_size, min_size, max_size, last_scale_action_at
		FROM pools ORDER BY role
	`)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()

	var pools []*models.WorkerPool
	for rows.Next() {
		var pool models.WorkerPool
		var role string
		var lastAction sql.NullString
		if err := rows.Scan(&role, &pool.CurrentSize, &pool.MinSize, &pool.MaxSize, &lastAction); err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		pool.Role = models.Role(role)
		if t := parseNullableTime(lastAction); t != nil {
			pool.LastScaleActionAt = *t
		}
		pools = append(pools, &pool)
	}
	return pools, rows.Err()
}
