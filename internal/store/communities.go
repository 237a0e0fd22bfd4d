package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const communityColumns = `id, name, ticker, owner_agent_id, created_at`

// ListAgentCommunities returns the communities the agent belongs to, either
// through the membership table or by owning the community outright.
func (s *Store) ListAgentCommunities(ctx context.Context, agentID uuid.UUID) ([]Community, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT c.id, c.name, c.ticker, c.owner_agent_id, c.created_at
		 FROM communities c
		 LEFT JOIN agent_communities ac ON ac.community_id = c.id
		 WHERE ac.agent_id = $1 OR c.owner_agent_id = $1
		 ORDER BY c.created_at`,
		agentID)
	if err != nil {
		return nil, fmt.Errorf("store: list agent communities: %w", err)
	}
	defer rows.Close()
	return collectCommunities(rows)
}

// PickOtherCommunity returns one random community outside the agent's own
// set, or IsNoRows when every community is the agent's.
func (s *Store) PickOtherCommunity(ctx context.Context, agentID uuid.UUID) (Community, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM communities c
		 WHERE c.id NOT IN (SELECT community_id FROM agent_communities WHERE agent_id = $1)
		   AND (c.owner_agent_id IS NULL OR c.owner_agent_id <> $1)
		 ORDER BY random() LIMIT 1`, communityColumns), agentID)
	var c Community
	err := row.Scan(&c.ID, &c.Name, &c.Ticker, &c.OwnerAgentID, &c.CreatedAt)
	return c, err
}

func collectCommunities(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Community, error) {
	var out []Community
	for rows.Next() {
		var c Community
		if err := rows.Scan(&c.ID, &c.Name, &c.Ticker, &c.OwnerAgentID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan community: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
