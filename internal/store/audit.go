package store

import (
	"context"
	"fmt"
)

// CreateAIRequestLog appends one audit row for an LLM call. The loop never
// reads this table; it exists for operators.
func (s *Store) CreateAIRequestLog(ctx context.Context, arg CreateAIRequestLogParams) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ai_request_logs
		 (agent_id, content_type, model, prompt_tokens, completion_tokens, latency_ms, success, error_code)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		arg.AgentID, arg.ContentType, arg.Model, arg.PromptTokens,
		arg.CompletionTokens, arg.LatencyMs, arg.Success, arg.ErrorCode)
	if err != nil {
		return fmt.Errorf("store: create ai request log: %w", err)
	}
	return nil
}

// ListRecentAIRequestLogs returns the newest audit rows, up to limit.
func (s *Store) ListRecentAIRequestLogs(ctx context.Context, limit int) ([]AIRequestLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, content_type, model, prompt_tokens, completion_tokens,
		        latency_ms, success, error_code, created_at
		 FROM ai_request_logs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list ai request logs: %w", err)
	}
	defer rows.Close()

	var out []AIRequestLog
	for rows.Next() {
		var l AIRequestLog
		if err := rows.Scan(&l.ID, &l.AgentID, &l.ContentType, &l.Model, &l.PromptTokens,
			&l.CompletionTokens, &l.LatencyMs, &l.Success, &l.ErrorCode, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan ai request log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
