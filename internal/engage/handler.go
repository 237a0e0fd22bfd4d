package engage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/subtuna/engagehub/internal/runlock"
	"github.com/subtuna/engagehub/internal/store"
)

// RunResponse is the JSON envelope returned by a batch invocation.
type RunResponse struct {
	Success          bool   `json:"success"`
	Batch            int    `json:"batch"`
	Processed        int    `json:"processed"`
	TotalPosts       int    `json:"totalPosts"`
	TotalComments    int    `json:"totalComments"`
	TotalVotes       *int   `json:"totalVotes,omitempty"` // omitted when the profile disables voting
	TotalCrossVisits int    `json:"totalCrossVisits"`
	Message          string `json:"message,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// AuditReader lists recent LLM audit rows for the operator endpoint.
type AuditReader interface {
	ListRecentAIRequestLogs(ctx context.Context, limit int) ([]store.AIRequestLog, error)
	ListAgents(ctx context.Context, limit int) ([]store.Agent, error)
}

// RunLocker is the mutual-exclusion surface the handler needs, satisfied by
// *runlock.Locker.
type RunLocker interface {
	Acquire(ctx context.Context, name, token string) error
	Release(ctx context.Context, name, token string) error
	MarkRun(ctx context.Context, name string, at time.Time) error
}

// Handler exposes the engagement functions over HTTP.
type Handler struct {
	engines       map[string]*Engine
	locker        RunLocker
	audit         AuditReader
	llmConfigured bool
}

// NewHandler creates a Handler. engines is keyed by profile name, which is
// also the invocation path segment.
func NewHandler(engines map[string]*Engine, locker RunLocker, audit AuditReader, llmConfigured bool) *Handler {
	return &Handler{
		engines:       engines,
		locker:        locker,
		audit:         audit,
		llmConfigured: llmConfigured,
	}
}

// Routes returns the chi router for the engagement surface.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(corsHeaders)
	r.Options("/functions/{profile}", h.handlePreflight)
	r.Post("/functions/{profile}", h.handleRun)
	r.Get("/functions/ai-audit", h.handleAudit)
	r.Get("/agents", h.handleAgents)
	return r
}

// corsHeaders mirrors the permissive headers the cron/browser callers expect.
func corsHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "authorization, content-type")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	profile := chi.URLParam(r, "profile")
	eng, ok := h.engines[profile]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown profile: " + profile})
		return
	}
	if !h.llmConfigured {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "AI not configured"})
		return
	}

	batch := 0
	if v := r.URL.Query().Get("batch"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid batch parameter"})
			return
		}
		batch = n
	}

	lockName := profile + ":" + strconv.Itoa(batch)
	token := uuid.NewString()
	if err := h.locker.Acquire(r.Context(), lockName, token); err != nil {
		if errors.Is(err, runlock.ErrHeld) {
			writeJSON(w, http.StatusConflict, errorResponse{Error: "batch already running"})
			return
		}
		slog.Error("engage: lock acquire failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "lock unavailable"})
		return
	}
	defer func() {
		// Release against a background context so a cancelled request still
		// frees the lock; the TTL covers a crashed process.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.locker.Release(releaseCtx, lockName, token); err != nil {
			slog.Error("engage: lock release failed", slog.String("error", err.Error()))
		}
	}()

	sum, err := eng.Run(r.Context(), batch)
	if err != nil {
		slog.Error("engage: run failed",
			slog.String("profile", profile),
			slog.Int("batch", batch),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	if err := h.locker.MarkRun(r.Context(), profile, time.Now()); err != nil {
		slog.Warn("engage: mark run failed", slog.String("error", err.Error()))
	}

	resp := RunResponse{
		Success:          true,
		Batch:            batch,
		Processed:        sum.Processed,
		TotalPosts:       sum.Posts,
		TotalComments:    sum.Comments,
		TotalCrossVisits: sum.CrossVisits,
	}
	if eng.profile.MaxVotes > 0 {
		votes := sum.Votes
		resp.TotalVotes = &votes
	}
	if sum.Processed == 0 {
		resp.Message = "no eligible agents in batch"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	logs, err := h.audit.ListRecentAIRequestLogs(r.Context(), 100)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if logs == nil {
		logs = []store.AIRequestLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "logs": logs})
}

func (h *Handler) handleAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.audit.ListAgents(r.Context(), 100)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if agents == nil {
		agents = []store.Agent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "agents": agents})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("engage: write response", slog.String("error", err.Error()))
	}
}
