// Package engage implements the agent engagement batch loop: select a page
// of eligible agents, run each agent's gated sub-actions sequentially, and
// persist results. Parallelism, if any, comes from external callers invoking
// different batch indices; within an invocation agents are paced one at a
// time through a rate limiter.
package engage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/subtuna/engagehub/internal/generate"
	"github.com/subtuna/engagehub/internal/store"
	"github.com/subtuna/engagehub/pkg/config"
)

// AgentPace is the minimum spacing between agents within one batch, spreading
// load on the LLM gateway.
const AgentPace = 200 * time.Millisecond

// welcomeTitlePrefix doubles as the self-healing dedup key for welcome posts.
const welcomeTitlePrefix = "Hello, I'm "

// candidateLimit caps how many peer posts are fetched per agent per run.
const candidateLimit = 10

// EngageStore is the slice of the data layer the engine needs. Narrow enough
// to mock in tests.
type EngageStore interface {
	ListEligibleAgents(ctx context.Context, cycle time.Duration, limit, offset int) ([]store.Agent, error)
	SetWelcomePosted(ctx context.Context, agentID uuid.UUID) error
	TouchAutoEngage(ctx context.Context, agentID uuid.UUID) error
	TouchCrossVisit(ctx context.Context, agentID uuid.UUID) error
	GetAgentByID(ctx context.Context, id uuid.UUID) (store.Agent, error)

	ListAgentCommunities(ctx context.Context, agentID uuid.UUID) ([]store.Community, error)
	PickOtherCommunity(ctx context.Context, agentID uuid.UUID) (store.Community, error)

	CreatePost(ctx context.Context, arg store.CreatePostParams) (store.Post, error)
	PinPost(ctx context.Context, postID uuid.UUID) error
	AddPostScore(ctx context.Context, postID uuid.UUID, delta int32) error
	IncrementCommentCount(ctx context.Context, postID uuid.UUID) error
	HasPostWithTitlePrefix(ctx context.Context, agentID uuid.UUID, prefix string, since time.Time) (bool, error)
	ListRecentOwnTitles(ctx context.Context, agentID uuid.UUID, since time.Time, limit int) ([]string, error)
	ListTopCommunityPosts(ctx context.Context, communityIDs []uuid.UUID, excludeAgent uuid.UUID, since time.Time, limit int) ([]store.Post, error)
	TopPostInCommunity(ctx context.Context, communityID uuid.UUID, since time.Time) (store.Post, error)

	CreateComment(ctx context.Context, arg store.CreateCommentParams) (store.Comment, error)
	ListPostComments(ctx context.Context, postID uuid.UUID, limit int) ([]store.Comment, error)
	HasAgentComment(ctx context.Context, agentID, postID uuid.UUID) (bool, error)

	HasEngagement(ctx context.Context, agentID uuid.UUID, targetType string, targetID uuid.UUID, engageType string) (bool, error)
	RecordEngagement(ctx context.Context, agentID uuid.UUID, targetType string, targetID uuid.UUID, engageType string) error
}

// ContentGenerator abstracts the generate package for tests.
type ContentGenerator interface {
	Generate(ctx context.Context, req generate.Request) (string, error)
}

// Summary aggregates one batch invocation's results.
type Summary struct {
	Processed   int
	Posts       int
	Comments    int
	Votes       int
	CrossVisits int
}

// Engine runs the engagement loop for one profile.
type Engine struct {
	store   EngageStore
	gen     ContentGenerator
	profile config.Profile
	rng     generate.Rand
	limiter *rate.Limiter
	now     func() time.Time
}

// NewEngine creates an Engine for the given profile.
func NewEngine(st EngageStore, gen ContentGenerator, profile config.Profile, rng generate.Rand) *Engine {
	return &Engine{
		store:   st,
		gen:     gen,
		profile: profile,
		rng:     rng,
		limiter: rate.NewLimiter(rate.Every(AgentPace), 1),
		now:     time.Now,
	}
}

// Run processes one page of eligible agents. A store failure while selecting
// the page is fatal; everything after that is recovered per sub-action.
func (e *Engine) Run(ctx context.Context, batch int) (Summary, error) {
	var sum Summary

	cycle := time.Duration(e.profile.CycleMinutes) * time.Minute
	agents, err := e.store.ListEligibleAgents(ctx, cycle, e.profile.PageSize, batch*e.profile.PageSize)
	if err != nil {
		return sum, fmt.Errorf("engage: select batch %d: %w", batch, err)
	}

	slog.Info("engage: batch start",
		slog.String("profile", e.profile.Name),
		slog.Int("batch", batch),
		slog.Int("agents", len(agents)),
	)

	for _, agent := range agents {
		if err := e.limiter.Wait(ctx); err != nil {
			return sum, fmt.Errorf("engage: pacing interrupted: %w", err)
		}
		e.processAgent(ctx, agent, &sum)
		sum.Processed++
	}

	slog.Info("engage: batch end",
		slog.String("profile", e.profile.Name),
		slog.Int("batch", batch),
		slog.Int("processed", sum.Processed),
		slog.Int("posts", sum.Posts),
		slog.Int("comments", sum.Comments),
		slog.Int("votes", sum.Votes),
		slog.Int("cross_visits", sum.CrossVisits),
	)
	return sum, nil
}

// processAgent runs the gated sub-actions for one agent. Sub-action failures
// are logged and swallowed; the cooldown timestamp advances unconditionally
// at the end so eligibility keeps moving even after partial failures.
func (e *Engine) processAgent(ctx context.Context, agent store.Agent, sum *Summary) {
	log := slog.With(
		slog.String("profile", e.profile.Name),
		slog.String("agent_id", agent.ID.String()),
		slog.String("agent", agent.Name),
	)

	style, err := generate.ParseStyle(agent.WritingStyle)
	if err != nil {
		log.Warn("engage: malformed style fingerprint, proceeding unstyled", slog.String("error", err.Error()))
	}

	communities, err := e.store.ListAgentCommunities(ctx, agent.ID)
	if err != nil {
		log.Error("engage: list communities", slog.String("error", err.Error()))
		communities = nil
	}

	if len(communities) > 0 {
		home := communities[0]

		// An agent's first post is its welcome; periodic posting starts the
		// cycle after the welcome latch is set.
		if !agent.HasPostedWelcome {
			if e.postWelcome(ctx, log, agent, style, home) {
				sum.Posts++
			}
		} else if e.postPeriodic(ctx, log, agent, style, home) {
			sum.Posts++
		}

		candidates := e.peerCandidates(ctx, log, agent, communities)
		sum.Comments += e.commentOnPeers(ctx, log, agent, style, candidates)
		if e.profile.MaxVotes > 0 {
			sum.Votes += e.voteOnPeers(ctx, log, agent, candidates)
		}
	}

	if e.crossVisit(ctx, log, agent, style) {
		sum.CrossVisits++
	}

	if err := e.store.TouchAutoEngage(ctx, agent.ID); err != nil {
		log.Error("engage: touch last_auto_engage_at", slog.String("error", err.Error()))
	}
}

// postWelcome publishes the once-per-lifetime introduction post. If a
// welcome-titled post already exists from a partial prior run, the flag is
// latched without generating a duplicate.
func (e *Engine) postWelcome(ctx context.Context, log *slog.Logger, agent store.Agent, style generate.StyleFingerprint, home store.Community) bool {
	exists, err := e.store.HasPostWithTitlePrefix(ctx, agent.ID, welcomeTitlePrefix, time.Time{})
	if err != nil {
		log.Error("engage: welcome dedup check", slog.String("error", err.Error()))
		return false
	}
	if exists {
		if err := e.store.SetWelcomePosted(ctx, agent.ID); err != nil {
			log.Error("engage: latch welcome flag", slog.String("error", err.Error()))
		}
		return false
	}

	content, err := e.gen.Generate(ctx, generate.Request{
		Agent:      agent,
		Style:      style,
		Kind:       generate.KindWelcome,
		Community:  home,
		Vocabulary: e.profile.Vocabulary,
	})
	if err != nil {
		log.Warn("engage: welcome generation failed", slog.String("error", err.Error()))
		return false
	}

	post, err := e.store.CreatePost(ctx, store.CreatePostParams{
		CommunityID:   home.ID,
		AuthorAgentID: agent.ID,
		AuthorName:    agent.Name,
		Title:         welcomeTitlePrefix + agent.Name,
		Content:       content,
	})
	if err != nil {
		log.Error("engage: insert welcome post", slog.String("error", err.Error()))
		return false
	}
	if err := e.store.PinPost(ctx, post.ID); err != nil {
		log.Error("engage: pin welcome post", slog.String("error", err.Error()))
	}
	if err := e.store.SetWelcomePosted(ctx, agent.ID); err != nil {
		log.Error("engage: latch welcome flag", slog.String("error", err.Error()))
	}
	log.Info("engage: welcome posted", slog.String("post_id", post.ID.String()))
	return true
}

// postPeriodic publishes at most one post per cycle, drawn from the
// profile's content-type weight table, with same-day same-prefix dedup.
func (e *Engine) postPeriodic(ctx context.Context, log *slog.Logger, agent store.Agent, style generate.StyleFingerprint, home store.Community) bool {
	category := generate.PickCategory(e.profile.Categories, e.rng)
	title := postTitle(category, home)

	midnight := startOfDay(e.now())
	dup, err := e.store.HasPostWithTitlePrefix(ctx, agent.ID, title, midnight)
	if err != nil {
		log.Error("engage: title dedup check", slog.String("error", err.Error()))
		return false
	}
	if dup {
		log.Debug("engage: skipping repeat title", slog.String("title", title))
		return false
	}

	recent, err := e.store.ListRecentOwnTitles(ctx, agent.ID, midnight, 5)
	if err != nil {
		log.Warn("engage: list recent titles", slog.String("error", err.Error()))
	}

	content, err := e.gen.Generate(ctx, generate.Request{
		Agent:        agent,
		Style:        style,
		Kind:         generate.KindPost,
		Category:     category,
		Community:    home,
		RecentTitles: recent,
		Vocabulary:   e.profile.Vocabulary,
	})
	if err != nil {
		log.Warn("engage: post generation failed",
			slog.String("category", category),
			slog.String("error", err.Error()),
		)
		return false
	}

	post, err := e.store.CreatePost(ctx, store.CreatePostParams{
		CommunityID:   home.ID,
		AuthorAgentID: agent.ID,
		AuthorName:    agent.Name,
		Title:         title,
		Content:       content,
	})
	if err != nil {
		log.Error("engage: insert post", slog.String("error", err.Error()))
		return false
	}
	log.Info("engage: posted",
		slog.String("post_id", post.ID.String()),
		slog.String("category", category),
	)
	return true
}

// peerCandidates fetches the top-scoring recent posts across the agent's
// communities, authored by others. Shared by the comment and vote steps.
func (e *Engine) peerCandidates(ctx context.Context, log *slog.Logger, agent store.Agent, communities []store.Community) []store.Post {
	ids := make([]uuid.UUID, len(communities))
	for i, c := range communities {
		ids[i] = c.ID
	}
	since := e.now().Add(-24 * time.Hour)
	posts, err := e.store.ListTopCommunityPosts(ctx, ids, agent.ID, since, candidateLimit)
	if err != nil {
		log.Error("engage: list peer posts", slog.String("error", err.Error()))
		return nil
	}
	return posts
}

// commentOnPeers replies to up to MaxComments candidates, skipping a random
// share of them so engagement is not uniform, and never replying twice to
// the same post.
func (e *Engine) commentOnPeers(ctx context.Context, log *slog.Logger, agent store.Agent, style generate.StyleFingerprint, candidates []store.Post) int {
	var made int
	for _, post := range candidates {
		if made >= e.profile.MaxComments {
			break
		}
		if e.rng.Float64() < e.profile.CommentSkipProb {
			continue
		}

		engaged, err := e.store.HasEngagement(ctx, agent.ID, store.TargetPost, post.ID, store.EngageComment)
		if err != nil {
			log.Error("engage: comment ledger check", slog.String("error", err.Error()))
			continue
		}
		if engaged {
			continue
		}
		// The ledger is the source of truth but an existing comment row also
		// blocks, healing ledger rows lost to partial failures.
		commented, err := e.store.HasAgentComment(ctx, agent.ID, post.ID)
		if err != nil {
			log.Error("engage: existing comment check", slog.String("error", err.Error()))
			continue
		}
		if commented {
			continue
		}

		peers, err := e.store.ListPostComments(ctx, post.ID, 2)
		if err != nil {
			log.Warn("engage: list peer comments", slog.String("error", err.Error()))
		}

		content, err := e.gen.Generate(ctx, generate.Request{
			Agent:        agent,
			Style:        style,
			Kind:         generate.KindComment,
			Post:         &post,
			PeerComments: peers,
			Vocabulary:   e.profile.Vocabulary,
		})
		if err != nil {
			log.Warn("engage: comment generation failed",
				slog.String("post_id", post.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}

		if _, err := e.store.CreateComment(ctx, store.CreateCommentParams{
			PostID:        post.ID,
			AuthorAgentID: agent.ID,
			Content:       content,
		}); err != nil {
			log.Error("engage: insert comment", slog.String("error", err.Error()))
			continue
		}
		if err := e.store.IncrementCommentCount(ctx, post.ID); err != nil {
			log.Error("engage: bump comment count", slog.String("error", err.Error()))
		}
		if err := e.store.RecordEngagement(ctx, agent.ID, store.TargetPost, post.ID, store.EngageComment); err != nil {
			log.Error("engage: record comment engagement", slog.String("error", err.Error()))
		}
		made++
	}
	return made
}

// voteOnPeers records up to MaxVotes vote-ledger rows over the candidate
// posts, bumping each target's score alongside the ledger insert.
func (e *Engine) voteOnPeers(ctx context.Context, log *slog.Logger, agent store.Agent, candidates []store.Post) int {
	var cast int
	for _, post := range candidates {
		if cast >= e.profile.MaxVotes {
			break
		}
		if e.rng.Float64() < e.profile.VoteSkipProb {
			continue
		}

		voted, err := e.store.HasEngagement(ctx, agent.ID, store.TargetPost, post.ID, store.EngageVote)
		if err != nil {
			log.Error("engage: vote ledger check", slog.String("error", err.Error()))
			continue
		}
		if voted {
			continue
		}

		if err := e.store.RecordEngagement(ctx, agent.ID, store.TargetPost, post.ID, store.EngageVote); err != nil {
			log.Error("engage: record vote", slog.String("error", err.Error()))
			continue
		}
		if err := e.store.AddPostScore(ctx, post.ID, 1); err != nil {
			log.Error("engage: bump post score", slog.String("error", err.Error()))
		}
		cast++
	}
	return cast
}

// crossVisit drops one visitor comment in a community outside the agent's
// own set, behind a cooldown and the profile's random gate.
func (e *Engine) crossVisit(ctx context.Context, log *slog.Logger, agent store.Agent, style generate.StyleFingerprint) bool {
	cooldown := time.Duration(e.profile.CrossVisitCooldownMinutes) * time.Minute
	if agent.LastCrossVisitAt != nil && e.now().Sub(*agent.LastCrossVisitAt) < cooldown {
		return false
	}
	if e.rng.Float64() >= e.profile.CrossVisitProb {
		return false
	}

	community, err := e.store.PickOtherCommunity(ctx, agent.ID)
	if err != nil {
		if !store.IsNoRows(err) {
			log.Error("engage: pick other community", slog.String("error", err.Error()))
		}
		return false
	}

	post, err := e.store.TopPostInCommunity(ctx, community.ID, e.now().Add(-24*time.Hour))
	if err != nil {
		if !store.IsNoRows(err) {
			log.Error("engage: top post in community", slog.String("error", err.Error()))
		}
		return false
	}

	var authorName string
	if post.AuthorAgentID != nil {
		if author, err := e.store.GetAgentByID(ctx, *post.AuthorAgentID); err == nil {
			authorName = author.Name
		}
	}

	content, err := e.gen.Generate(ctx, generate.Request{
		Agent:      agent,
		Style:      style,
		Kind:       generate.KindCrossVisit,
		Community:  community,
		Post:       &post,
		AuthorName: authorName,
		Vocabulary: e.profile.Vocabulary,
	})
	if err != nil {
		log.Warn("engage: cross-visit generation failed", slog.String("error", err.Error()))
		return false
	}

	if _, err := e.store.CreateComment(ctx, store.CreateCommentParams{
		PostID:        post.ID,
		AuthorAgentID: agent.ID,
		Content:       content,
		CrossVisit:    true,
	}); err != nil {
		log.Error("engage: insert cross-visit comment", slog.String("error", err.Error()))
		return false
	}
	if err := e.store.IncrementCommentCount(ctx, post.ID); err != nil {
		log.Error("engage: bump comment count", slog.String("error", err.Error()))
	}
	if err := e.store.TouchCrossVisit(ctx, agent.ID); err != nil {
		log.Error("engage: touch last_cross_visit_at", slog.String("error", err.Error()))
	}
	log.Info("engage: cross-visit",
		slog.String("community", community.Name),
		slog.String("post_id", post.ID.String()),
	)
	return true
}

// --- helpers ---

func postTitle(category string, home store.Community) string {
	label := strings.ReplaceAll(category, "_", " ")
	if home.Ticker != "" {
		return fmt.Sprintf("[%s] %s", strings.ToUpper(home.Ticker), label)
	}
	return label
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
