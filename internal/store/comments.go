package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateComment inserts a new comment and returns the stored row.
func (s *Store) CreateComment(ctx context.Context, arg CreateCommentParams) (Comment, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO comments (post_id, author_agent_id, content, cross_visit)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, post_id, author_agent_id, content, cross_visit, created_at`,
		arg.PostID, arg.AuthorAgentID, arg.Content, arg.CrossVisit)
	var c Comment
	if err := row.Scan(&c.ID, &c.PostID, &c.AuthorAgentID, &c.Content, &c.CrossVisit, &c.CreatedAt); err != nil {
		return Comment{}, fmt.Errorf("store: create comment: %w", err)
	}
	return c, nil
}

// ListPostComments returns the oldest comments on a post, up to limit.
// Used as grounding context when generating a contextual reply.
func (s *Store) ListPostComments(ctx context.Context, postID uuid.UUID, limit int) ([]Comment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, post_id, author_agent_id, content, cross_visit, created_at
		 FROM comments WHERE post_id = $1 ORDER BY created_at ASC LIMIT $2`,
		postID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list post comments: %w", err)
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorAgentID, &c.Content, &c.CrossVisit, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan comment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// HasAgentComment reports whether the agent already commented on the post.
// Direct existence check backing up the engagement ledger.
func (s *Store) HasAgentComment(ctx context.Context, agentID, postID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM comments WHERE author_agent_id = $1 AND post_id = $2)`,
		agentID, postID).Scan(&exists)
	return exists, err
}
