package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nabdhq/nabd/internal/storage"
)

const maxAdminBodySize = 1 << 20 // 1MB

// VectorDeleter abstracts vector cleanup for the admin layer.
type VectorDeleter interface {
	Delete(toolID string) error
}

// AdminDeps holds dependencies for the token-protected catalog API.
type AdminDeps struct {
	Store   *storage.Store
	Token   string
	Vectors VectorDeleter // optional; if nil, vector cleanup is skipped on delete
}

// NewAdminHandler builds the catalog management surface used by the
// directory's back office and seeding scripts.
func NewAdminHandler(deps AdminDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/tools", handleCreateTool(deps))
		r.Get("/tools", handleListTools(deps))
		r.Get("/tools/{id}", handleGetTool(deps))
		r.Delete("/tools/{id}", handleDeleteTool(deps))
		r.Get("/agents", handleListAgents(deps))
		r.Post("/agents", handleCreateAgent(deps))
	})

	return r
}

func handleHealth(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		count, err := deps.Store.CountTools()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "storage unavailable: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"tools":  count,
		})
	}
}

type createToolRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	PricingType string   `json:"pricing_type"`
	Slug        string   `json:"slug"`
	ImageURL    string   `json:"image_url"`
	WebsiteURL  string   `json:"website_url"`
	Features    []string `json:"features"`
	Rating      float64  `json:"rating"`
	Reviews     int      `json:"reviews_count"`
}

func handleCreateTool(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxAdminBodySize)
		defer r.Body.Close()

		var req createToolRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Title == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}

		featuresJSON := "[]"
		if req.Features != nil {
			b, err := json.Marshal(req.Features)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to marshal features: %v", err)
				return
			}
			featuresJSON = string(b)
		}

		tool := storage.Tool{
			ID:           uuid.New().String(),
			Title:        req.Title,
			Description:  req.Description,
			Category:     req.Category,
			PricingType:  req.PricingType,
			Slug:         req.Slug,
			ImageURL:     req.ImageURL,
			WebsiteURL:   req.WebsiteURL,
			Features:     featuresJSON,
			Rating:       req.Rating,
			ReviewsCount: req.Reviews,
			CreatedAt:    time.Now().UTC(),
		}
		if err := deps.Store.SaveTool(tool); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save tool: %v", err)
			return
		}

		// Embedding happens out of band so the request stays fast even
		// when the embedding API is slow or down.
		payload, err := json.Marshal(map[string]string{"tool_id": tool.ID})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to marshal embed payload: %v", err)
			return
		}
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        "tool_embed",
			PayloadJSON: string(payload),
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saved tool but failed to queue embedding: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(tool)
	}
}

func handleListTools(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 50)
		if limit > 200 {
			limit = 200
		}
		offset := queryInt(r, "offset", 0)

		list, err := deps.Store.ListTools(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list tools: %v", err)
			return
		}
		if list == nil {
			list = []storage.Tool{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(list)
	}
}

func handleGetTool(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		tool, err := deps.Store.GetTool(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "tool %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load tool: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tool)
	}
}

func handleDeleteTool(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := deps.Store.DeleteTool(id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found_error", "tool %s not found", id)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete tool: %v", err)
			return
		}

		if deps.Vectors != nil {
			if err := deps.Vectors.Delete(id); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "tool deleted but vector cleanup failed: %v", err)
				return
			}
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListAgents(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		list, err := deps.Store.ListAgents()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list agents: %v", err)
			return
		}
		if list == nil {
			list = []storage.Agent{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(list)
	}
}

type createAgentRequest struct {
	Name         string   `json:"name"`
	Slug         string   `json:"slug"`
	Description  string   `json:"description"`
	AvatarEmoji  string   `json:"avatar_emoji"`
	SystemPrompt string   `json:"system_prompt"`
	ToolsEnabled []string `json:"tools_enabled"`
	Temperature  float64  `json:"temperature"`
	IsActive     *bool    `json:"is_active"`
}

func handleCreateAgent(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxAdminBodySize)
		defer r.Body.Close()

		var req createAgentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Name == "" || req.Slug == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name and slug are required")
			return
		}
		if req.SystemPrompt == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "system_prompt is required")
			return
		}

		toolsJSON := "[]"
		if req.ToolsEnabled != nil {
			b, err := json.Marshal(req.ToolsEnabled)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to marshal tools_enabled: %v", err)
				return
			}
			toolsJSON = string(b)
		}

		temperature := req.Temperature
		if temperature == 0 {
			temperature = 0.7
		}
		active := true
		if req.IsActive != nil {
			active = *req.IsActive
		}

		a := storage.Agent{
			ID:           uuid.New().String(),
			Name:         req.Name,
			Slug:         req.Slug,
			Description:  req.Description,
			AvatarEmoji:  req.AvatarEmoji,
			SystemPrompt: req.SystemPrompt,
			ToolsEnabled: toolsJSON,
			Temperature:  temperature,
			IsActive:     active,
			CreatedAt:    time.Now().UTC(),
		}
		if err := deps.Store.SaveAgent(a); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save agent: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(a)
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return fallback
	}
	return i
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
