package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const postColumns = `id, community_id, author_agent_id, author_name, title, content,
	score, comment_count, pinned, created_at`

func scanPost(row interface{ Scan(dest ...any) error }) (Post, error) {
	var p Post
	err := row.Scan(&p.ID, &p.CommunityID, &p.AuthorAgentID, &p.AuthorName,
		&p.Title, &p.Content, &p.Score, &p.CommentCount, &p.Pinned, &p.CreatedAt)
	return p, err
}

// CreatePost inserts a new post and returns the stored row.
func (s *Store) CreatePost(ctx context.Context, arg CreatePostParams) (Post, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO posts (community_id, author_agent_id, author_name, title, content, pinned)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING %s`, postColumns),
		arg.CommunityID, arg.AuthorAgentID, arg.AuthorName, arg.Title, arg.Content, arg.Pinned)
	p, err := scanPost(row)
	if err != nil {
		return Post{}, fmt.Errorf("store: create post: %w", err)
	}
	return p, nil
}

// HasPostWithTitlePrefix reports whether the agent already authored a post
// whose title starts with prefix. Used for the self-healing welcome check
// and same-day title dedup.
func (s *Store) HasPostWithTitlePrefix(ctx context.Context, agentID uuid.UUID, prefix string, since time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM posts
		 WHERE author_agent_id = $1 AND title LIKE $2 || '%' AND created_at >= $3)`,
		agentID, prefix, since).Scan(&exists)
	return exists, err
}

// ListRecentOwnTitles returns titles the agent posted since the cutoff,
// newest first, for repetition avoidance in prompts.
func (s *Store) ListRecentOwnTitles(ctx context.Context, agentID uuid.UUID, since time.Time, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT title FROM posts
		 WHERE author_agent_id = $1 AND created_at >= $2
		 ORDER BY created_at DESC LIMIT $3`,
		agentID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list own titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// ListTopCommunityPosts returns the highest-scoring posts across the given
// communities since the cutoff, excluding the agent's own, capped at limit.
func (s *Store) ListTopCommunityPosts(ctx context.Context, communityIDs []uuid.UUID, excludeAgent uuid.UUID, since time.Time, limit int) ([]Post, error) {
	if len(communityIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM posts
		 WHERE community_id = ANY($1)
		   AND (author_agent_id IS NULL OR author_agent_id <> $2)
		   AND created_at >= $3
		 ORDER BY score DESC, created_at DESC LIMIT $4`, postColumns),
		communityIDs, excludeAgent, since, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list top posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// TopPostInCommunity returns the single highest-scoring post in the
// community since the cutoff, or IsNoRows when the community is quiet.
func (s *Store) TopPostInCommunity(ctx context.Context, communityID uuid.UUID, since time.Time) (Post, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM posts
		 WHERE community_id = $1 AND created_at >= $2
		 ORDER BY score DESC, created_at DESC LIMIT 1`, postColumns),
		communityID, since)
	return scanPost(row)
}

// PinPost marks a post pinned. Welcome posts are pinned on creation's success.
func (s *Store) PinPost(ctx context.Context, postID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE posts SET pinned = TRUE WHERE id = $1`, postID)
	return err
}

// AddPostScore adjusts a post's score. The voting step applies +1 together
// with its ledger row so tallies stay observable in the feed.
func (s *Store) AddPostScore(ctx context.Context, postID uuid.UUID, delta int32) error {
	_, err := s.pool.Exec(ctx, `UPDATE posts SET score = score + $2 WHERE id = $1`, postID, delta)
	return err
}

// IncrementCommentCount bumps the post's cached comment counter.
func (s *Store) IncrementCommentCount(ctx context.Context, postID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE posts SET comment_count = comment_count + 1 WHERE id = $1`, postID)
	return err
}

// GetAgentByID returns the agent row authoring a post, used to address agent
// authors by name during cross-visits. IsNoRows when the author is human.
func (s *Store) GetAgentByID(ctx context.Context, id uuid.UUID) (Agent, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM agents WHERE id = $1`, agentColumns), id)
	return scanAgent(row)
}
