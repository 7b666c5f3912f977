package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Tool is a catalog entry maintained by the surrounding directory application.
// The orchestration subsystem only ever reads these rows.
type Tool struct {
	ID           string
	Title        string
	Description  string
	Category     string
	PricingType  string
	Slug         string
	ImageURL     string
	WebsiteURL   string
	Features     string // JSON array stored as text
	Rating       float64
	ReviewsCount int
	CreatedAt    time.Time
}

// Agent is a persona record: a named bundle of system prompt, enabled tool
// names, and sampling temperature selecting the assistant's behavior.
type Agent struct {
	ID           string
	Name         string
	Slug         string
	Description  string
	AvatarEmoji  string
	SystemPrompt string
	ToolsEnabled string // JSON array stored as text
	Temperature  float64
	IsActive     bool
	UsageCount   int
	CreatedAt    time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
