package agent

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/nabdhq/nabd/internal/storage"
)

// AgentStore is the subset of storage used to resolve personas.
type AgentStore interface {
	GetActiveAgentBySlug(slug string) (storage.Agent, error)
	IncrementAgentUsage(slug string) error
}

// Loader resolves persona slugs against the store, falling back to the
// built-in default when the slug is missing or the lookup fails.
type Loader struct {
	store  AgentStore
	logger *slog.Logger
}

func NewLoader(store AgentStore, logger *slog.Logger) *Loader {
	return &Loader{store: store, logger: logger}
}

// Resolve returns the persona for slug. Any failure degrades to the default
// persona rather than failing the conversation.
func (l *Loader) Resolve(slug string) Persona {
	if slug == "" {
		slug = "general"
	}

	a, err := l.store.GetActiveAgentBySlug(slug)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			l.logger.Warn("agent lookup failed, using default persona", "slug", slug, "error", err)
		}
		return DefaultPersona()
	}

	var tools []string
	if err := json.Unmarshal([]byte(a.ToolsEnabled), &tools); err != nil {
		l.logger.Warn("agent has malformed tools_enabled, using default persona", "slug", slug, "error", err)
		return DefaultPersona()
	}

	return Persona{
		ID:           a.ID,
		Name:         a.Name,
		Slug:         a.Slug,
		Description:  a.Description,
		AvatarEmoji:  a.AvatarEmoji,
		SystemPrompt: a.SystemPrompt,
		ToolsEnabled: tools,
		Temperature:  float32(a.Temperature),
	}
}

// RecordUsage bumps the persona's usage counter in the background. The
// increment is best effort: a failure is logged and otherwise ignored.
func (l *Loader) RecordUsage(slug string) {
	go func() {
		if err := l.store.IncrementAgentUsage(slug); err != nil && !errors.Is(err, storage.ErrNotFound) {
			l.logger.Warn("usage increment failed", "slug", slug, "error", err)
		}
	}()
}
