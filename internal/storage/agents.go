package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const agentColumns = `id, name, slug, description, avatar_emoji, system_prompt, tools_enabled, temperature, is_active, usage_count, created_at`

func scanAgent(row interface{ Scan(...any) error }) (Agent, error) {
	var a Agent
	var createdAt string
	var active int
	err := row.Scan(&a.ID, &a.Name, &a.Slug, &a.Description, &a.AvatarEmoji,
		&a.SystemPrompt, &a.ToolsEnabled, &a.Temperature, &active, &a.UsageCount, &createdAt)
	if err != nil {
		return Agent{}, err
	}
	a.IsActive = active != 0
	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Agent{}, fmt.Errorf("parsing created_at: %w", err)
	}
	a.CreatedAt = ts
	return a, nil
}

func (s *Store) SaveAgent(a Agent) error {
	active := 0
	if a.IsActive {
		active = 1
	}
	toolsEnabled := a.ToolsEnabled
	if toolsEnabled == "" {
		toolsEnabled = "[]"
	}
	_, err := s.db.Exec(`
		INSERT INTO agents (`+agentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Slug, a.Description, a.AvatarEmoji, a.SystemPrompt,
		toolsEnabled, a.Temperature, active, a.UsageCount,
		a.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetActiveAgentBySlug returns the active agent with the given slug.
// Inactive agents are indistinguishable from missing ones: both are ErrNotFound.
func (s *Store) GetActiveAgentBySlug(slug string) (Agent, error) {
	a, err := scanAgent(s.db.QueryRow(`
		SELECT `+agentColumns+` FROM agents
		WHERE slug = ? AND is_active = 1`, slug))
	if err == sql.ErrNoRows {
		return Agent{}, ErrNotFound
	}
	return a, err
}

func (s *Store) ListAgents() ([]Agent, error) {
	rows, err := s.db.Query(`SELECT ` + agentColumns + ` FROM agents ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// IncrementAgentUsage bumps the usage counter for the given slug.
func (s *Store) IncrementAgentUsage(slug string) error {
	res, err := s.db.Exec(`UPDATE agents SET usage_count = usage_count + 1 WHERE slug = ?`, slug)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
