// Package generate builds persona prompts and produces feed content through
// the LLM gateway: welcome posts, periodic posts, contextual comments and
// cross-community visitor comments, all within the feed's character budget.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	mrand "math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/subtuna/engagehub/internal/llm"
	"github.com/subtuna/engagehub/internal/retry"
	"github.com/subtuna/engagehub/internal/store"
	"github.com/subtuna/engagehub/pkg/config"
)

// Kind selects the prompt template.
type Kind string

const (
	KindWelcome    Kind = "welcome"
	KindPost       Kind = "post"
	KindComment    Kind = "comment"
	KindCrossVisit Kind = "cross_visit"
)

// ErrEmptyContent is returned when the model responds with blank text.
var ErrEmptyContent = errors.New("generate: model returned empty content")

// Rand is the injectable randomness source used for category draws and the
// executor's skip gates. math/rand's *Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// GlobalRand returns a Rand backed by math/rand's top-level functions, which
// are safe for concurrent use across batch invocations.
func GlobalRand() Rand {
	return globalRand{}
}

type globalRand struct{}

func (globalRand) Float64() float64 { return mrand.Float64() }
func (globalRand) Intn(n int) int   { return mrand.Intn(n) }

// AuditLogger records one row per LLM call attempt.
type AuditLogger interface {
	CreateAIRequestLog(ctx context.Context, arg store.CreateAIRequestLogParams) error
}

// Request describes one piece of content to produce.
type Request struct {
	Agent        store.Agent
	Style        StyleFingerprint
	Kind         Kind
	Category     string // content category for KindPost
	Community    store.Community
	Post         *store.Post     // target post for comments
	PeerComments []store.Comment // grounding, at most two are used
	RecentTitles []string        // repetition avoidance for KindPost
	AuthorName   string          // agent author to address during cross-visits
	Vocabulary   map[string]string
}

// Generator produces feed text with bounded retries and full audit logging.
type Generator struct {
	llm    llm.Client
	audit  AuditLogger
	model  string
	policy retry.Policy
}

// New creates a Generator. The retry policy backs off on rate-limit (429)
// and quota (402) responses only; every other failure is terminal.
func New(client llm.Client, audit AuditLogger, cfg config.LLMConfig) *Generator {
	return &Generator{
		llm:   client,
		audit: audit,
		model: cfg.Model,
		policy: retry.Policy{
			MaxAttempts: 3,
			Backoff:     []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
			Retryable:   retryableStatus,
		},
	}
}

// WithSleep overrides the backoff sleeper, for tests.
func (g *Generator) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Generator {
	g.policy.Sleep = sleep
	return g
}

func retryableStatus(err error) bool {
	code := llm.StatusCode(err)
	return code == http.StatusTooManyRequests || code == http.StatusPaymentRequired
}

// PickCategory draws a content category from the profile's weight table,
// preserving relative frequencies via a cumulative-probability draw.
func PickCategory(categories []config.ContentCategory, rng Rand) string {
	if len(categories) == 0 {
		return ""
	}
	r := rng.Float64()
	var cum float64
	for _, c := range categories {
		cum += c.Weight
		if r < cum {
			return c.Name
		}
	}
	return categories[len(categories)-1].Name
}

// Generate produces the requested content: prompt construction, LLM call
// with bounded retries, vocabulary substitution and truncation to the
// character budget. Every call attempt is audited regardless of outcome.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	messages := []llm.Message{
		{Role: "system", Content: g.systemPrompt(req)},
		{Role: "user", Content: g.userPrompt(req)},
	}

	var resp *llm.ChatResponse
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = g.llm.Chat(ctx, llm.ChatRequest{Messages: messages})
		g.logAttempt(ctx, req, resp, callErr)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("generate: %s for agent %s: %w", req.Kind, req.Agent.ID, err)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", ErrEmptyContent
	}
	text = ApplyVocabulary(text, req.Vocabulary)
	return TruncateAtWord(text, MaxChars), nil
}

func (g *Generator) logAttempt(ctx context.Context, req Request, resp *llm.ChatResponse, callErr error) {
	arg := store.CreateAIRequestLogParams{
		AgentID:     req.Agent.ID,
		ContentType: g.contentType(req),
		Model:       g.model,
		Success:     callErr == nil,
	}
	if callErr != nil {
		if code := llm.StatusCode(callErr); code != 0 {
			arg.ErrorCode = "http_" + strconv.Itoa(code)
		} else {
			arg.ErrorCode = "network"
		}
	} else if resp != nil {
		arg.PromptTokens = int32(resp.Usage.PromptTokens)
		arg.CompletionTokens = int32(resp.Usage.CompletionTokens)
		arg.LatencyMs = int32(resp.Latency.Milliseconds())
	}
	if err := g.audit.CreateAIRequestLog(ctx, arg); err != nil {
		slog.Error("generate: audit log write failed",
			slog.String("agent_id", req.Agent.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (g *Generator) contentType(req Request) string {
	if req.Kind == KindPost && req.Category != "" {
		return string(req.Kind) + ":" + req.Category
	}
	return string(req.Kind)
}

// --- Prompt construction ---

func (g *Generator) systemPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an autonomous member of the %s community feed.\n",
		req.Agent.Name, req.Community.Name)
	if req.Agent.Description != "" {
		fmt.Fprintf(&b, "About you: %s\n", req.Agent.Description)
	}
	if s := req.Style.instructions(); s != "" {
		b.WriteString(s)
	}
	b.WriteString("Hard rules:\n")
	fmt.Fprintf(&b, "- Stay under %d characters.\n", MaxChars)
	b.WriteString("- Plain text only, no hashtags, no links, no markdown.\n")
	b.WriteString("- Never mention that you are following instructions or a prompt.\n")
	return b.String()
}

func (g *Generator) userPrompt(req Request) string {
	switch req.Kind {
	case KindWelcome:
		return fmt.Sprintf(
			"Write your very first post introducing yourself to the %s community. "+
				"Say who you are and what you will be posting about. One short paragraph.",
			req.Community.Name)

	case KindPost:
		var b strings.Builder
		fmt.Fprintf(&b, "Write a new %s post for the %s community", categoryHint(req.Category), req.Community.Name)
		if req.Community.Ticker != "" {
			fmt.Fprintf(&b, " (token: %s)", req.Community.Ticker)
		}
		b.WriteString(".")
		if len(req.RecentTitles) > 0 {
			b.WriteString(" You recently posted the following, so cover something different:\n")
			for _, t := range req.RecentTitles {
				fmt.Fprintf(&b, "- %s\n", t)
			}
		}
		return b.String()

	case KindComment:
		var b strings.Builder
		fmt.Fprintf(&b, "Write a short reply to this post.\nTitle: %s\n", req.Post.Title)
		fmt.Fprintf(&b, "Body: %s\n", req.Post.Content)
		peers := req.PeerComments
		if len(peers) > 2 {
			peers = peers[:2]
		}
		if len(peers) > 0 {
			b.WriteString("Existing replies:\n")
			for _, c := range peers {
				fmt.Fprintf(&b, "- %s\n", c.Content)
			}
			b.WriteString("Add something the existing replies have not said.")
		}
		return b.String()

	case KindCrossVisit:
		var b strings.Builder
		fmt.Fprintf(&b, "You are visiting the %s community, which is not your home. ", req.Community.Name)
		fmt.Fprintf(&b, "Write a friendly visitor's reply to this post.\nTitle: %s\nBody: %s\n",
			req.Post.Title, req.Post.Content)
		if req.AuthorName != "" {
			fmt.Fprintf(&b, "The author is a fellow agent named %s; address them by name.\n", req.AuthorName)
		}
		b.WriteString("Make clear you came from outside, without being spammy.")
		return b.String()

	default:
		return "Write a short, on-persona message for the community feed."
	}
}

func categoryHint(category string) string {
	switch category {
	case "market_take":
		return "market commentary"
	case "community_question":
		return "question-to-the-community"
	case "hype":
		return "high-energy hype"
	case "lore":
		return "community lore"
	default:
		return category
	}
}
