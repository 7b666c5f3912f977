package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nabdhq/nabd/internal/agent"
	"github.com/nabdhq/nabd/internal/brain"
	"github.com/nabdhq/nabd/internal/identity"
	"github.com/nabdhq/nabd/internal/ratelimit"
)

const maxChatBodySize = 1 << 20 // 1MB

// User-facing Arabic messages. The web client renders these verbatim, so
// their wording is part of the API contract.
const (
	msgLoginRequired     = "يجب تسجيل الدخول لاستخدام نبض AI 🔐"
	msgSessionInvalid    = "جلسة غير صالحة، يرجى تسجيل الدخول مجدداً 🔄"
	msgRateLimitExceeded = "لقد تجاوزت الحد المسموح من الطلبات. يرجى الانتظار قليلاً ⏳"
)

// Responder answers one conversation turn as a persona.
type Responder interface {
	Respond(ctx context.Context, p agent.Persona, query string, history []brain.Turn) (brain.Answer, error)
}

// ChatDeps holds dependencies for the public chat endpoint.
type ChatDeps struct {
	Verifier identity.Verifier
	Limiter  *ratelimit.Limiter
	Personas *agent.Loader
	Brain    Responder
}

type chatRequest struct {
	Query     string       `json:"query"`
	History   []brain.Turn `json:"history"`
	AgentSlug string       `json:"agentSlug"`
}

type chatAgent struct {
	Slug  string `json:"slug"`
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

type chatToolExecution struct {
	Name       string `json:"name"`
	Success    bool   `json:"success"`
	ItemsFound int    `json:"itemsFound"`
}

type chatRateLimit struct {
	Remaining int `json:"remaining"`
	ResetIn   int `json:"resetIn"`
}

type chatResponse struct {
	Reply         string              `json:"reply"`
	Answer        string              `json:"answer"`
	Agent         chatAgent           `json:"agent"`
	ToolsExecuted []chatToolExecution `json:"toolsExecuted"`
	ExecutionTime int64               `json:"executionTime"`
	RateLimit     chatRateLimit       `json:"rateLimit"`
}

// NewChatHandler builds the public chat surface. Every response carries
// permissive CORS headers because the endpoint is called straight from
// browsers.
func NewChatHandler(deps ChatDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(corsHeaders)

	r.Options("/agent/chat", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Post("/agent/chat", handleChat(deps))

	return r
}

func corsHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
		next.ServeHTTP(w, r)
	})
}

func handleChat(deps ChatDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()

		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) {
			writeChatError(w, http.StatusUnauthorized, msgLoginRequired)
			return
		}

		user, err := deps.Verifier.Verify(r.Context(), auth[len(prefix):])
		if err != nil {
			writeChatError(w, http.StatusUnauthorized, msgSessionInvalid)
			return
		}

		limit := deps.Limiter.Check(user.ID)
		if !limit.Allowed {
			retryAfter := ceilSeconds(limit.ResetIn)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"error":      msgRateLimitExceeded,
				"retryAfter": retryAfter,
			})
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxChatBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeChatError(w, http.StatusInternalServerError, "invalid request body: "+err.Error())
			return
		}
		if req.Query == "" {
			writeChatError(w, http.StatusInternalServerError, "No valid query provided")
			return
		}

		persona := deps.Personas.Resolve(req.AgentSlug)
		if persona.ID != "default" {
			deps.Personas.RecordUsage(persona.Slug)
		}

		answer, err := deps.Brain.Respond(r.Context(), persona, req.Query, req.History)
		if err != nil {
			writeChatError(w, http.StatusInternalServerError, err.Error())
			return
		}

		executed := make([]chatToolExecution, len(answer.ToolResults))
		for i, tr := range answer.ToolResults {
			executed[i] = chatToolExecution{
				Name:       tr.Name,
				Success:    tr.Success,
				ItemsFound: tr.Items,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{
			Reply:  answer.Reply,
			Answer: answer.Reply,
			Agent: chatAgent{
				Slug:  persona.Slug,
				Name:  persona.Name,
				Emoji: persona.AvatarEmoji,
			},
			ToolsExecuted: executed,
			ExecutionTime: time.Since(started).Milliseconds(),
			RateLimit: chatRateLimit{
				Remaining: limit.Remaining,
				ResetIn:   ceilSeconds(limit.ResetIn),
			},
		})
	}
}

func writeChatError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
