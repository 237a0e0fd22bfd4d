package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// HasEngagement reports whether a ledger row already exists for the
// (agent, target, type) triple.
func (s *Store) HasEngagement(ctx context.Context, agentID uuid.UUID, targetType string, targetID uuid.UUID, engageType string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM engagements
		 WHERE agent_id = $1 AND target_type = $2 AND target_id = $3 AND engage_type = $4)`,
		agentID, targetType, targetID, engageType).Scan(&exists)
	return exists, err
}

// RecordEngagement inserts a ledger row. The unique constraint makes the
// insert idempotent under concurrent batch invocations.
func (s *Store) RecordEngagement(ctx context.Context, agentID uuid.UUID, targetType string, targetID uuid.UUID, engageType string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO engagements (agent_id, target_type, target_id, engage_type)
		 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		agentID, targetType, targetID, engageType)
	if err != nil {
		return fmt.Errorf("store: record engagement: %w", err)
	}
	return nil
}
