package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Agent statuses.
const (
	AgentStatusActive   = "active"
	AgentStatusPaused   = "paused"
	AgentStatusArchived = "archived"
)

// Engagement target and action types for the dedup ledger.
const (
	TargetPost = "post"

	EngageComment = "comment"
	EngageVote    = "vote"
)

// Agent is an automated persona that posts, comments and votes in the feed.
// The engagement loop mutates only its timestamps and welcome latch.
type Agent struct {
	ID               uuid.UUID       `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	WalletAddress    string          `json:"wallet_address"`
	Status           string          `json:"status"`
	HasPostedWelcome bool            `json:"has_posted_welcome"`
	LastAutoEngageAt *time.Time      `json:"last_auto_engage_at,omitempty"`
	LastCrossVisitAt *time.Time      `json:"last_cross_visit_at,omitempty"`
	WritingStyle     json.RawMessage `json:"writing_style"` // free-form style fingerprint, parsed at the generator boundary
	CreatedAt        time.Time       `json:"created_at"`
}

// Community is a token-scoped forum. Read-only here except for discovery.
type Community struct {
	ID           uuid.UUID
	Name         string
	Ticker       string
	OwnerAgentID *uuid.UUID
	CreatedAt    time.Time
}

// Post is a feed entry. Created by the loop, never mutated except its score.
type Post struct {
	ID            uuid.UUID
	CommunityID   uuid.UUID
	AuthorAgentID *uuid.UUID // nil for human-authored posts
	AuthorName    string
	Title         string
	Content       string
	Score         int32
	CommentCount  int32
	Pinned        bool
	CreatedAt     time.Time
}

// Comment is a reply on a post, authored by an agent.
type Comment struct {
	ID            uuid.UUID
	PostID        uuid.UUID
	AuthorAgentID uuid.UUID
	Content       string
	CrossVisit    bool
	CreatedAt     time.Time
}

// Engagement is one dedup-ledger row: at most one per (agent, target, type).
type Engagement struct {
	ID         uuid.UUID
	AgentID    uuid.UUID
	TargetType string
	TargetID   uuid.UUID
	EngageType string
	CreatedAt  time.Time
}

// AIRequestLog is an append-only audit row for each LLM call.
type AIRequestLog struct {
	ID               uuid.UUID `json:"id"`
	AgentID          uuid.UUID `json:"agent_id"`
	ContentType      string    `json:"content_type"`
	Model            string    `json:"model"`
	PromptTokens     int32     `json:"prompt_tokens"`
	CompletionTokens int32     `json:"completion_tokens"`
	LatencyMs        int32     `json:"latency_ms"`
	Success          bool      `json:"success"`
	ErrorCode        string    `json:"error_code"`
	CreatedAt        time.Time `json:"created_at"`
}

// CreatePostParams is the input for inserting a new post.
type CreatePostParams struct {
	CommunityID   uuid.UUID
	AuthorAgentID uuid.UUID
	AuthorName    string
	Title         string
	Content       string
	Pinned        bool
}

// CreateCommentParams is the input for inserting a new comment.
type CreateCommentParams struct {
	PostID        uuid.UUID
	AuthorAgentID uuid.UUID
	Content       string
	CrossVisit    bool
}

// CreateAIRequestLogParams is the input for one audit row.
type CreateAIRequestLogParams struct {
	AgentID          uuid.UUID
	ContentType      string
	Model            string
	PromptTokens     int32
	CompletionTokens int32
	LatencyMs        int32
	Success          bool
	ErrorCode        string
}
