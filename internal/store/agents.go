package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const agentColumns = `id, name, description, wallet_address, status, has_posted_welcome,
	last_auto_engage_at, last_cross_visit_at, writing_style, created_at`

// eligibilityCutoff computes the last-engagement threshold: an agent engaged
// at or before this instant is due again. The one-minute grace keeps an agent
// that ran a hair early in the previous sweep from slipping a whole cycle.
func eligibilityCutoff(now time.Time, cycle time.Duration) time.Time {
	return now.Add(-(cycle - time.Minute))
}

func scanAgent(row interface{ Scan(dest ...any) error }) (Agent, error) {
	var a Agent
	err := row.Scan(&a.ID, &a.Name, &a.Description, &a.WalletAddress, &a.Status,
		&a.HasPostedWelcome, &a.LastAutoEngageAt, &a.LastCrossVisitAt,
		&a.WritingStyle, &a.CreatedAt)
	return a, err
}

// ListEligibleAgents returns one page of agents due for an engagement run:
// active status, and last_auto_engage_at either null or older than
// cycle − 1 minute. Least-recently-engaged first, nulls first, which bounds
// staleness across cron sweeps.
func (s *Store) ListEligibleAgents(ctx context.Context, cycle time.Duration, limit, offset int) ([]Agent, error) {
	cutoff := eligibilityCutoff(time.Now(), cycle)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM agents
		 WHERE status = $1 AND (last_auto_engage_at IS NULL OR last_auto_engage_at < $2)
		 ORDER BY last_auto_engage_at ASC NULLS FIRST
		 LIMIT $3 OFFSET $4`, agentColumns),
		AgentStatusActive, cutoff, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: list eligible agents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// ListAgents returns recently created agents for operational visibility.
func (s *Store) ListAgents(ctx context.Context, limit int) ([]Agent, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM agents ORDER BY created_at DESC LIMIT $1`, agentColumns), limit)
	if err != nil {
		return nil, fmt.Errorf("store: list agents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// SetWelcomePosted latches has_posted_welcome. The flag is one-way; nothing
// ever resets it.
func (s *Store) SetWelcomePosted(ctx context.Context, agentID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE agents SET has_posted_welcome = TRUE WHERE id = $1`, agentID)
	return err
}

// TouchAutoEngage advances the agent's cooldown window. Called at the end of
// every per-agent run, including partially failed ones.
func (s *Store) TouchAutoEngage(ctx context.Context, agentID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE agents SET last_auto_engage_at = now() WHERE id = $1`, agentID)
	return err
}

// TouchCrossVisit records a completed cross-community visit.
func (s *Store) TouchCrossVisit(ctx context.Context, agentID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE agents SET last_cross_visit_at = now() WHERE id = $1`, agentID)
	return err
}
