package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nabdhq/nabd/internal/gemini"
	"github.com/nabdhq/nabd/internal/retrieval"
	"github.com/nabdhq/nabd/internal/storage"
)

const (
	defaultLimit   = 5
	matchThreshold = 0.5
)

// Catalog is the subset of storage the executor reads from.
type Catalog interface {
	SearchToolsByTitle(query string, limit int) ([]storage.Tool, error)
	BestToolByTitle(name string) (storage.Tool, error)
	SearchToolsByCategory(category string, limit int) ([]storage.Tool, error)
	ListRecentTools(limit int, category string) ([]storage.Tool, error)
	GetToolsByIDs(ids []string) ([]storage.Tool, error)
}

// Embedder turns text into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher finds the closest stored tool embeddings.
type VectorSearcher interface {
	Search(vector []float32, topK int, minScore float32) ([]retrieval.Match, error)
}

// Result is the outcome of one tool invocation. Data is nil when the call
// failed; Err then carries a user-facing Arabic message where the tool
// defines one.
type Result struct {
	Name    string
	Success bool
	Data    any
	Err     string
	Items   int
}

// Summary is the compact tool representation returned by list-style handlers.
type Summary struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	PricingType string  `json:"pricing_type"`
	Category    string  `json:"category"`
	Slug        string  `json:"slug"`
	ImageURL    string  `json:"image_url"`
	Score       float32 `json:"score,omitempty"`
}

// Comparison extends Summary with the fields a side-by-side comparison needs.
type Comparison struct {
	Summary
	WebsiteURL string `json:"website_url"`
	Features   string `json:"features"`
}

type handler func(ctx context.Context, args map[string]any) Result

// Executor dispatches model-requested function calls to catalog operations.
type Executor struct {
	catalog  Catalog
	embedder Embedder
	vectors  VectorSearcher
	logger   *slog.Logger
	handlers map[string]handler
}

func NewExecutor(catalog Catalog, embedder Embedder, vectors VectorSearcher, logger *slog.Logger) *Executor {
	e := &Executor{
		catalog:  catalog,
		embedder: embedder,
		vectors:  vectors,
		logger:   logger,
	}
	e.handlers = map[string]handler{
		NameSearchTools:      e.searchTools,
		NameCompareTools:     e.compareTools,
		NameGetToolDetails:   e.getToolDetails,
		NameSearchByCategory: e.searchByCategory,
		NameGetPopularTools:  e.getPopularTools,
	}
	return e
}

// Execute runs one function call. The allow-list is checked before dispatch,
// so a model hallucinating a disabled tool cannot reach the catalog.
func (e *Executor) Execute(ctx context.Context, call gemini.FunctionCall, allowed []string) Result {
	e.logger.Info("executing tool", "tool", call.Name)

	permitted := false
	for _, name := range allowed {
		if name == call.Name {
			permitted = true
			break
		}
	}
	if !permitted {
		return Result{Name: call.Name, Err: fmt.Sprintf("Tool not enabled: %s", call.Name)}
	}

	h, ok := e.handlers[call.Name]
	if !ok {
		return Result{Name: call.Name, Err: fmt.Sprintf("Unknown tool: %s", call.Name)}
	}

	res := h(ctx, call.Args)
	res.Name = call.Name
	return res
}

// searchTools embeds the query and ranks stored tool vectors by cosine
// similarity. When embedding fails it degrades to a title substring search
// so the assistant still gets something to work with.
func (e *Executor) searchTools(ctx context.Context, args map[string]any) Result {
	query := argString(args, "query")
	limit := argInt(args, "limit", defaultLimit)

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.logger.Warn("embedding failed, falling back to title search", "error", err)
		list, err := e.catalog.SearchToolsByTitle(query, limit)
		if err != nil {
			return Result{Err: err.Error()}
		}
		return Result{Success: true, Data: summaries(list, nil), Items: len(list)}
	}

	matches, err := e.vectors.Search(vector, limit, matchThreshold)
	if err != nil {
		return Result{Err: err.Error()}
	}

	ids := make([]string, len(matches))
	scores := make(map[string]float32, len(matches))
	for i, m := range matches {
		ids[i] = m.ToolID
		scores[m.ToolID] = m.Score
	}

	found, err := e.catalog.GetToolsByIDs(ids)
	if err != nil {
		return Result{Err: err.Error()}
	}

	// Restore ranking order: GetToolsByIDs makes no ordering promise.
	byID := make(map[string]storage.Tool, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}
	ordered := make([]storage.Tool, 0, len(found))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			ordered = append(ordered, t)
		}
	}

	return Result{Success: true, Data: summaries(ordered, scores), Items: len(ordered)}
}

func (e *Executor) compareTools(_ context.Context, args map[string]any) Result {
	names := argStringSlice(args, "tool_names")
	if len(names) < 2 {
		return Result{Err: "يجب تحديد أداتين على الأقل للمقارنة"}
	}

	var found []Comparison
	for _, name := range names {
		t, err := e.catalog.BestToolByTitle(name)
		if err != nil {
			continue
		}
		found = append(found, Comparison{
			Summary:    summary(t, 0),
			WebsiteURL: t.WebsiteURL,
			Features:   t.Features,
		})
	}

	if len(found) < 2 {
		return Result{Err: "لم يتم العثور على أدوات كافية للمقارنة"}
	}

	return Result{
		Success: true,
		Data:    map[string]any{"tools": found, "comparison_count": len(found)},
		Items:   len(found),
	}
}

func (e *Executor) getToolDetails(_ context.Context, args map[string]any) Result {
	name := argString(args, "tool_name")

	t, err := e.catalog.BestToolByTitle(name)
	if err != nil {
		return Result{Err: fmt.Sprintf("لم يتم العثور على أداة باسم %q", name)}
	}
	return Result{Success: true, Data: t, Items: 1}
}

func (e *Executor) searchByCategory(_ context.Context, args map[string]any) Result {
	category := argString(args, "category")
	limit := argInt(args, "limit", defaultLimit)

	list, err := e.catalog.SearchToolsByCategory(category, limit)
	if err != nil {
		return Result{Err: err.Error()}
	}
	if len(list) == 0 {
		return Result{Err: fmt.Sprintf("لم يتم العثور على أدوات في فئة %q", category)}
	}
	return Result{Success: true, Data: summaries(list, nil), Items: len(list)}
}

func (e *Executor) getPopularTools(_ context.Context, args map[string]any) Result {
	limit := argInt(args, "limit", defaultLimit)
	category := argString(args, "category")

	list, err := e.catalog.ListRecentTools(limit, category)
	if err != nil {
		return Result{Err: err.Error()}
	}
	return Result{Success: true, Data: summaries(list, nil), Items: len(list)}
}

func summary(t storage.Tool, score float32) Summary {
	return Summary{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		PricingType: t.PricingType,
		Category:    t.Category,
		Slug:        t.Slug,
		ImageURL:    t.ImageURL,
		Score:       score,
	}
}

func summaries(list []storage.Tool, scores map[string]float32) []Summary {
	out := make([]Summary, len(list))
	for i, t := range list {
		out[i] = summary(t, scores[t.ID])
	}
	return out
}

// Function call arguments arrive as map[string]any decoded from JSON, so
// numbers are float64 and arrays are []any.

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argInt(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return fallback
}

func argStringSlice(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		if direct, ok := args[key].([]string); ok {
			return direct
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
