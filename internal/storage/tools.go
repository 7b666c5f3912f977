package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const toolColumns = `id, title, description, category, pricing_type, slug, image_url, website_url, features, rating, reviews_count, created_at`

func scanTool(row interface{ Scan(...any) error }) (Tool, error) {
	var t Tool
	var createdAt string
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Category, &t.PricingType, &t.Slug,
		&t.ImageURL, &t.WebsiteURL, &t.Features, &t.Rating, &t.ReviewsCount, &createdAt)
	if err != nil {
		return Tool{}, err
	}
	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Tool{}, fmt.Errorf("parsing created_at: %w", err)
	}
	t.CreatedAt = ts
	return t, nil
}

func (s *Store) collectTools(rows *sql.Rows) ([]Tool, error) {
	defer rows.Close()
	var results []Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

func (s *Store) SaveTool(t Tool) error {
	features := t.Features
	if features == "" {
		features = "[]"
	}
	_, err := s.db.Exec(`
		INSERT INTO tools (`+toolColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.Category, t.PricingType, t.Slug,
		t.ImageURL, t.WebsiteURL, features, t.Rating, t.ReviewsCount,
		t.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetTool(id string) (Tool, error) {
	t, err := scanTool(s.db.QueryRow(`SELECT `+toolColumns+` FROM tools WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Tool{}, ErrNotFound
	}
	return t, err
}

func (s *Store) DeleteTool(id string) error {
	res, err := s.db.Exec(`DELETE FROM tools WHERE id = ?`, id)
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

func (s *Store) ListTools(limit, offset int) ([]Tool, error) {
	rows, err := s.db.Query(`
		SELECT `+toolColumns+` FROM tools
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.collectTools(rows)
}

// SearchToolsByTitle returns tools whose title contains the query,
// case-insensitively, capped at limit.
func (s *Store) SearchToolsByTitle(query string, limit int) ([]Tool, error) {
	rows, err := s.db.Query(`
		SELECT `+toolColumns+` FROM tools
		WHERE instr(lower(title), lower(?)) > 0
		ORDER BY created_at DESC LIMIT ?`, query, limit)
	if err != nil {
		return nil, err
	}
	return s.collectTools(rows)
}

// BestToolByTitle returns a single tool whose title contains name. When
// several titles match, whichever row the database returns first wins; there
// is deliberately no tie-break (the production behavior is equally arbitrary).
func (s *Store) BestToolByTitle(name string) (Tool, error) {
	t, err := scanTool(s.db.QueryRow(`
		SELECT `+toolColumns+` FROM tools
		WHERE instr(lower(title), lower(?)) > 0
		LIMIT 1`, name))
	if err == sql.ErrNoRows {
		return Tool{}, ErrNotFound
	}
	return t, err
}

// SearchToolsByCategory returns tools whose category contains the given
// substring, case-insensitively, capped at limit.
func (s *Store) SearchToolsByCategory(category string, limit int) ([]Tool, error) {
	rows, err := s.db.Query(`
		SELECT `+toolColumns+` FROM tools
		WHERE instr(lower(category), lower(?)) > 0
		ORDER BY created_at DESC LIMIT ?`, category, limit)
	if err != nil {
		return nil, err
	}
	return s.collectTools(rows)
}

// ListRecentTools returns the most recently created tools, optionally
// filtered by category substring. Recency stands in for popularity: no
// usage or rating signal is consulted.
func (s *Store) ListRecentTools(limit int, category string) ([]Tool, error) {
	var rows *sql.Rows
	var err error
	if category != "" {
		rows, err = s.db.Query(`
			SELECT `+toolColumns+` FROM tools
			WHERE instr(lower(category), lower(?)) > 0
			ORDER BY created_at DESC LIMIT ?`, category, limit)
	} else {
		rows, err = s.db.Query(`
			SELECT `+toolColumns+` FROM tools
			ORDER BY created_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, err
	}
	return s.collectTools(rows)
}

// GetToolsByIDs returns tools matching the given IDs, in no particular order.
func (s *Store) GetToolsByIDs(ids []string) ([]Tool, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + toolColumns + ` FROM tools WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	return s.collectTools(rows)
}

func (s *Store) CountTools() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM tools`).Scan(&count)
	return count, err
}
