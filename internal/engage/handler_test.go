package engage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/subtuna/engagehub/internal/runlock"
	"github.com/subtuna/engagehub/internal/store"
	"github.com/subtuna/engagehub/pkg/config"
)

type fakeLocker struct {
	held     map[string]bool
	acquired []string
	released []string
	marked   []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) Acquire(_ context.Context, name, _ string) error {
	if l.held[name] {
		return runlock.ErrHeld
	}
	l.acquired = append(l.acquired, name)
	return nil
}

func (l *fakeLocker) Release(_ context.Context, name, _ string) error {
	l.released = append(l.released, name)
	return nil
}

func (l *fakeLocker) MarkRun(_ context.Context, name string, _ time.Time) error {
	l.marked = append(l.marked, name)
	return nil
}

type fakeAuditReader struct {
	logs   []store.AIRequestLog
	agents []store.Agent
}

func (f *fakeAuditReader) ListRecentAIRequestLogs(_ context.Context, _ int) ([]store.AIRequestLog, error) {
	return f.logs, nil
}

func (f *fakeAuditReader) ListAgents(_ context.Context, _ int) ([]store.Agent, error) {
	return f.agents, nil
}

type handlerFixture struct {
	st     *mockEngageStore
	clawSt *mockEngageStore
	locker *fakeLocker
	router http.Handler
}

func newHandlerFixture(t *testing.T, llmConfigured bool) *handlerFixture {
	t.Helper()
	st := newMockEngageStore()
	clawSt := newMockEngageStore()

	auto := newTestEngine(st, &mockGenerator{}, testProfile())
	claw := newTestEngine(clawSt, &mockGenerator{}, config.DefaultClawProfile())

	locker := newFakeLocker()
	h := NewHandler(map[string]*Engine{
		"agent-auto-engage": auto,
		"claw-agent-engage": claw,
	}, locker, &fakeAuditReader{}, llmConfigured)

	return &handlerFixture{st: st, clawSt: clawSt, locker: locker, router: h.Routes()}
}

func (f *handlerFixture) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleRunUnknownProfile(t *testing.T) {
	f := newHandlerFixture(t, true)
	rec := f.do(http.MethodPost, "/functions/no-such-profile")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleRunLLMNotConfigured(t *testing.T) {
	f := newHandlerFixture(t, false)
	rec := f.do(http.MethodPost, "/functions/agent-auto-engage")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp.Error != "AI not configured" {
		t.Fatalf("unexpected error message %q", resp.Error)
	}
}

func TestHandleRunInvalidBatch(t *testing.T) {
	f := newHandlerFixture(t, true)
	for _, batch := range []string{"abc", "-1", "1.5"} {
		rec := f.do(http.MethodPost, "/functions/agent-auto-engage?batch="+batch)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("batch=%s: expected 400, got %d", batch, rec.Code)
		}
	}
}

func TestHandleRunLockContention(t *testing.T) {
	f := newHandlerFixture(t, true)
	f.locker.held["agent-auto-engage:2"] = true

	rec := f.do(http.MethodPost, "/functions/agent-auto-engage?batch=2")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	// A different batch of the same profile is an independent lock.
	rec = f.do(http.MethodPost, "/functions/agent-auto-engage?batch=3")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for uncontended batch, got %d", rec.Code)
	}
}

func TestHandleRunSuccessEnvelope(t *testing.T) {
	f := newHandlerFixture(t, true)
	agent := testAgent(false)
	f.st.eligible = []store.Agent{agent}
	f.st.communities[agent.ID] = []store.Community{testCommunity("tunapond")}

	rec := f.do(http.MethodPost, "/functions/agent-auto-engage")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var resp RunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if !resp.Success || resp.Batch != 0 || resp.Processed != 1 || resp.TotalPosts != 1 {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if resp.TotalVotes == nil {
		t.Fatal("totalVotes missing for a voting profile")
	}
	if resp.Message != "" {
		t.Fatalf("unexpected message %q", resp.Message)
	}

	if len(f.locker.acquired) != 1 || f.locker.acquired[0] != "agent-auto-engage:0" {
		t.Fatalf("lock not acquired per batch: %v", f.locker.acquired)
	}
	if len(f.locker.released) != 1 {
		t.Fatal("lock not released after run")
	}
	if len(f.locker.marked) != 1 || f.locker.marked[0] != "agent-auto-engage" {
		t.Fatalf("last-run marker wrong: %v", f.locker.marked)
	}
}

func TestHandleRunVotesOmittedForNonVotingProfile(t *testing.T) {
	f := newHandlerFixture(t, true)
	rec := f.do(http.MethodPost, "/functions/claw-agent-engage")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if _, present := raw["totalVotes"]; present {
		t.Fatal("totalVotes should be omitted when voting is disabled")
	}
}

func TestHandleRunEmptyBatchMessage(t *testing.T) {
	f := newHandlerFixture(t, true)
	rec := f.do(http.MethodPost, "/functions/agent-auto-engage?batch=7")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp RunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp.Processed != 0 || resp.Message != "no eligible agents in batch" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
}

func TestHandleRunFailureReleasesLock(t *testing.T) {
	f := newHandlerFixture(t, true)
	f.st.eligibleErr = context.DeadlineExceeded

	rec := f.do(http.MethodPost, "/functions/agent-auto-engage")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if len(f.locker.released) != 1 {
		t.Fatal("lock leaked after failed run")
	}
	if len(f.locker.marked) != 0 {
		t.Fatal("last-run marker set for a failed run")
	}
}

func TestHandlePreflightCORS(t *testing.T) {
	f := newHandlerFixture(t, true)
	rec := f.do(http.MethodOptions, "/functions/agent-auto-engage")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS origin header")
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatal("missing CORS methods header")
	}
}

func TestHandleAudit(t *testing.T) {
	st := newMockEngageStore()
	auto := newTestEngine(st, &mockGenerator{}, testProfile())
	audit := &fakeAuditReader{logs: []store.AIRequestLog{{
		ID:          uuid.New(),
		AgentID:     uuid.New(),
		ContentType: "post",
		Model:       "gpt-4o-mini",
		Success:     true,
	}}}
	h := NewHandler(map[string]*Engine{"agent-auto-engage": auto}, newFakeLocker(), audit, true)

	req := httptest.NewRequest(http.MethodGet, "/functions/ai-audit", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Success bool                 `json:"success"`
		Logs    []store.AIRequestLog `json:"logs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if !resp.Success || len(resp.Logs) != 1 || resp.Logs[0].ContentType != "post" {
		t.Fatalf("unexpected audit payload: %+v", resp)
	}
}
