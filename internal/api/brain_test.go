package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nabdhq/nabd/internal/agent"
	"github.com/nabdhq/nabd/internal/brain"
	"github.com/nabdhq/nabd/internal/identity"
	"github.com/nabdhq/nabd/internal/ratelimit"
	"github.com/nabdhq/nabd/internal/storage"
	"github.com/nabdhq/nabd/internal/tools"
)

const userToken = "session-token"

type mockVerifier struct {
	id string
}

func (m mockVerifier) Verify(_ context.Context, token string) (identity.Identity, error) {
	if token != userToken {
		return identity.Identity{}, identity.ErrUnauthorized
	}
	return identity.Identity{ID: m.id}, nil
}

type mockResponder struct {
	answer brain.Answer
	err    error
	calls  int
}

func (m *mockResponder) Respond(_ context.Context, _ agent.Persona, _ string, _ []brain.Turn) (brain.Answer, error) {
	m.calls++
	return m.answer, m.err
}

type emptyAgentStore struct{}

func (emptyAgentStore) GetActiveAgentBySlug(string) (storage.Agent, error) {
	return storage.Agent{}, storage.ErrNotFound
}
func (emptyAgentStore) IncrementAgentUsage(string) error { return nil }

func setupChatHandler(t *testing.T, limiter *ratelimit.Limiter, responder Responder) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewChatHandler(ChatDeps{
		Verifier: mockVerifier{id: "user-1"},
		Limiter:  limiter,
		Personas: agent.NewLoader(emptyAgentStore{}, logger),
		Brain:    responder,
	})
}

func chatReq(body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(http.MethodPost, "/agent/chat", reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestChat_OptionsPreflights(t *testing.T) {
	h := setupChatHandler(t, ratelimit.New(30, time.Minute), &mockResponder{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/agent/chat", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != "ok" {
		t.Errorf("body = %q, want ok", rr.Body.String())
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q, want *", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "authorization") {
		t.Errorf("allow-headers = %q", got)
	}
}

func TestChat_MissingAuth(t *testing.T) {
	h := setupChatHandler(t, ratelimit.New(30, time.Minute), &mockResponder{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, chatReq(`{"query":"مرحبا"}`, ""))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["error"] != msgLoginRequired {
		t.Errorf("error = %q", resp["error"])
	}
}

func TestChat_InvalidToken(t *testing.T) {
	h := setupChatHandler(t, ratelimit.New(30, time.Minute), &mockResponder{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, chatReq(`{"query":"مرحبا"}`, "wrong-token"))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["error"] != msgSessionInvalid {
		t.Errorf("error = %q", resp["error"])
	}
}

func TestChat_RejectedAuthDoesNotConsumeQuota(t *testing.T) {
	limiter := ratelimit.New(1, time.Minute)
	responder := &mockResponder{answer: brain.Answer{Reply: "أهلاً"}}
	h := setupChatHandler(t, limiter, responder)

	// Burn unauthorized requests first; they must not touch the limiter.
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, chatReq(`{"query":"مرحبا"}`, "wrong-token"))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, chatReq(`{"query":"مرحبا"}`, userToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("authenticated request after failed attempts: status = %d, body = %s", rr.Code, rr.Body.String())
	}
}

func TestChat_RateLimitExceeded(t *testing.T) {
	limiter := ratelimit.New(2, time.Minute)
	responder := &mockResponder{answer: brain.Answer{Reply: "أهلاً"}}
	h := setupChatHandler(t, limiter, responder)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, chatReq(`{"query":"مرحبا"}`, userToken))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, chatReq(`{"query":"مرحبا"}`, userToken))

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	var resp map[string]any
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["error"] != msgRateLimitExceeded {
		t.Errorf("error = %v", resp["error"])
	}
	if _, ok := resp["retryAfter"]; !ok {
		t.Error("missing retryAfter in body")
	}
	if responder.calls != 2 {
		t.Errorf("responder calls = %d, want 2", responder.calls)
	}
}

func TestChat_MissingQuery(t *testing.T) {
	h := setupChatHandler(t, ratelimit.New(30, time.Minute), &mockResponder{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, chatReq(`{"history":[]}`, userToken))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["error"] != "No valid query provided" {
		t.Errorf("error = %q", resp["error"])
	}
}

func TestChat_SuccessEnvelope(t *testing.T) {
	responder := &mockResponder{answer: brain.Answer{
		Reply: "إليك النتائج 🎯",
		ToolResults: []tools.Result{
			{Name: "search_tools", Success: true, Items: 3},
			{Name: "compare_tools", Success: false},
		},
	}}
	h := setupChatHandler(t, ratelimit.New(30, time.Minute), responder)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, chatReq(`{"query":"أريد أدوات","agentSlug":"general"}`, userToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp chatResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Reply != "إليك النتائج 🎯" || resp.Answer != resp.Reply {
		t.Errorf("reply = %q, answer = %q", resp.Reply, resp.Answer)
	}
	if resp.Agent.Slug != "general" || resp.Agent.Emoji != "🤖" {
		t.Errorf("agent = %+v", resp.Agent)
	}
	if len(resp.ToolsExecuted) != 2 {
		t.Fatalf("toolsExecuted = %+v", resp.ToolsExecuted)
	}
	if resp.ToolsExecuted[0].ItemsFound != 3 || !resp.ToolsExecuted[0].Success {
		t.Errorf("toolsExecuted[0] = %+v", resp.ToolsExecuted[0])
	}
	if resp.RateLimit.Remaining != 29 {
		t.Errorf("rateLimit.remaining = %d, want 29", resp.RateLimit.Remaining)
	}
	if resp.RateLimit.ResetIn <= 0 || resp.RateLimit.ResetIn > 60 {
		t.Errorf("rateLimit.resetIn = %d", resp.RateLimit.ResetIn)
	}
}

func TestChat_BrainFailure(t *testing.T) {
	responder := &mockResponder{err: errors.New("tool selection: api down")}
	h := setupChatHandler(t, ratelimit.New(30, time.Minute), responder)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, chatReq(`{"query":"مرحبا"}`, userToken))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}
