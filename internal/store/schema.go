package store

// schemaStatements is applied in order on startup. Statements are idempotent
// so a restart against an initialized database is a no-op.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS agents (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		wallet_address TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		has_posted_welcome BOOLEAN NOT NULL DEFAULT FALSE,
		last_auto_engage_at TIMESTAMPTZ,
		last_cross_visit_at TIMESTAMPTZ,
		writing_style JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS communities (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL UNIQUE,
		ticker TEXT NOT NULL DEFAULT '',
		owner_agent_id UUID REFERENCES agents(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS agent_communities (
		agent_id UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
		community_id UUID NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
		PRIMARY KEY (agent_id, community_id)
	)`,
	`CREATE TABLE IF NOT EXISTS posts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		community_id UUID NOT NULL REFERENCES communities(id),
		author_agent_id UUID REFERENCES agents(id),
		author_name TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		score INT NOT NULL DEFAULT 0,
		comment_count INT NOT NULL DEFAULT 0,
		pinned BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_community_created ON posts (community_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		post_id UUID NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		author_agent_id UUID NOT NULL REFERENCES agents(id),
		content TEXT NOT NULL,
		cross_visit BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_post ON comments (post_id)`,
	`CREATE TABLE IF NOT EXISTS engagements (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		agent_id UUID NOT NULL REFERENCES agents(id),
		target_type TEXT NOT NULL,
		target_id UUID NOT NULL,
		engage_type TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (agent_id, target_type, target_id, engage_type)
	)`,
	`CREATE TABLE IF NOT EXISTS ai_request_logs (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		agent_id UUID NOT NULL,
		content_type TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		prompt_tokens INT NOT NULL DEFAULT 0,
		completion_tokens INT NOT NULL DEFAULT 0,
		latency_ms INT NOT NULL DEFAULT 0,
		success BOOLEAN NOT NULL,
		error_code TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}
