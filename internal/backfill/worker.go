package backfill

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nabdhq/nabd/internal/retrieval"
	"github.com/nabdhq/nabd/internal/storage"
)

// JobStore abstracts the job queue and tool lookup operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetTool(id string) (storage.Tool, error)
	ListTools(limit, offset int) ([]storage.Tool, error)
	EnqueueJob(job storage.Job) error
}

// TextEmbedder generates embeddings for text.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorUpserter stores tool embeddings.
type VectorUpserter interface {
	Upsert(r retrieval.Record) error
	HasVector(toolID string) (bool, error)
}

// Worker processes tool_embed jobs from the SQLite job queue, keeping the
// vector store in sync with the catalog.
type Worker struct {
	store    JobStore
	embedder TextEmbedder
	vectors  VectorUpserter
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, embedder TextEmbedder, vectors VectorUpserter, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single tool_embed job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{"tool_embed"})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type embedPayload struct {
	ToolID string `json:"tool_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload embedPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	tool, err := w.store.GetTool(payload.ToolID)
	if err != nil {
		return fmt.Errorf("loading tool %s: %w", payload.ToolID, err)
	}

	vec, err := w.embedder.Embed(ctx, embeddingText(tool))
	if err != nil {
		return fmt.Errorf("embedding tool: %w", err)
	}

	rec := retrieval.Record{
		ID:        uuid.New().String(),
		ToolID:    tool.ID,
		Embedding: vec,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.vectors.Upsert(rec); err != nil {
		return fmt.Errorf("upserting vector: %w", err)
	}

	return nil
}

// embeddingText is what gets vectorized for a tool. Title and description
// carry the semantic signal; category disambiguates short descriptions.
func embeddingText(t storage.Tool) string {
	text := t.Title
	if t.Description != "" {
		text += "\n" + t.Description
	}
	if t.Category != "" {
		text += "\n" + t.Category
	}
	return text
}

// Backfill walks the whole catalog and enqueues a tool_embed job for every
// tool that has no stored vector yet. Used after bulk seeding.
func (w *Worker) Backfill(batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	queued := 0
	for offset := 0; ; offset += batchSize {
		batch, err := w.store.ListTools(batchSize, offset)
		if err != nil {
			return queued, fmt.Errorf("listing tools: %w", err)
		}
		if len(batch) == 0 {
			return queued, nil
		}

		for _, tool := range batch {
			has, err := w.vectors.HasVector(tool.ID)
			if err != nil {
				return queued, fmt.Errorf("checking vector for %s: %w", tool.ID, err)
			}
			if has {
				continue
			}

			payload, err := json.Marshal(embedPayload{ToolID: tool.ID})
			if err != nil {
				return queued, fmt.Errorf("marshaling payload: %w", err)
			}
			job := storage.Job{
				ID:          uuid.New().String(),
				Type:        "tool_embed",
				PayloadJSON: string(payload),
			}
			if err := w.store.EnqueueJob(job); err != nil {
				return queued, fmt.Errorf("enqueueing job for %s: %w", tool.ID, err)
			}
			queued++
		}
	}
}
