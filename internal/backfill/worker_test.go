package backfill

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nabdhq/nabd/internal/retrieval"
	"github.com/nabdhq/nabd/internal/storage"
)

type mockEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	m.calls++
	return m.vector, m.err
}

type mockVectors struct {
	upserts []retrieval.Record
	has     map[string]bool
}

func (m *mockVectors) Upsert(r retrieval.Record) error {
	m.upserts = append(m.upserts, r)
	return nil
}

func (m *mockVectors) HasVector(toolID string) (bool, error) {
	return m.has[toolID], nil
}

func setupStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func enqueueEmbedJob(t *testing.T, store *storage.Store, toolID string) {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"tool_id": toolID})
	job := storage.Job{ID: "job-" + toolID, Type: "tool_embed", PayloadJSON: string(payload)}
	if err := store.EnqueueJob(job); err != nil {
		t.Fatal(err)
	}
}

func TestRunOnceEmbedsTool(t *testing.T) {
	store := setupStore(t)
	tool := storage.Tool{ID: "t1", Title: "Midjourney", Description: "توليد صور", Category: "تحرير الصور", CreatedAt: time.Now().UTC()}
	if err := store.SaveTool(tool); err != nil {
		t.Fatal(err)
	}
	enqueueEmbedJob(t, store, "t1")

	embedder := &mockEmbedder{vector: []float32{0.1, 0.2}}
	vectors := &mockVectors{}
	w := NewWorker(store, embedder, vectors, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("expected a job to be processed")
	}

	if len(vectors.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(vectors.upserts))
	}
	if vectors.upserts[0].ToolID != "t1" {
		t.Errorf("toolID = %q", vectors.upserts[0].ToolID)
	}
	if embedder.calls != 1 {
		t.Errorf("embed calls = %d", embedder.calls)
	}
}

func TestRunOnceNoJobs(t *testing.T) {
	store := setupStore(t)
	w := NewWorker(store, &mockEmbedder{}, &mockVectors{}, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if done {
		t.Fatal("no jobs should be processed")
	}
}

func TestRunOnceEmbedFailureMarksJobFailed(t *testing.T) {
	store := setupStore(t)
	tool := storage.Tool{ID: "t1", Title: "Jasper", CreatedAt: time.Now().UTC()}
	if err := store.SaveTool(tool); err != nil {
		t.Fatal(err)
	}
	enqueueEmbedJob(t, store, "t1")

	embedder := &mockEmbedder{err: errors.New("quota exceeded")}
	vectors := &mockVectors{}
	w := NewWorker(store, embedder, vectors, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("expected the job to be claimed")
	}
	if len(vectors.upserts) != 0 {
		t.Error("no vector should be stored on embed failure")
	}

	// The failed job is backed off, not immediately reclaimable.
	job, err := store.ClaimNextJob([]string{"tool_embed"})
	if err != nil {
		t.Fatal(err)
	}
	if job != nil {
		t.Errorf("job reclaimed immediately after failure: %+v", job)
	}
}

func TestBackfillQueuesOnlyMissingVectors(t *testing.T) {
	store := setupStore(t)
	now := time.Now().UTC()
	for _, id := range []string{"t1", "t2", "t3"} {
		if err := store.SaveTool(storage.Tool{ID: id, Title: "Tool " + id, Slug: id, CreatedAt: now}); err != nil {
			t.Fatal(err)
		}
	}

	vectors := &mockVectors{has: map[string]bool{"t2": true}}
	w := NewWorker(store, &mockEmbedder{vector: []float32{1}}, vectors, 0)

	queued, err := w.Backfill(2)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if queued != 2 {
		t.Fatalf("queued = %d, want 2", queued)
	}

	seen := map[string]bool{}
	for {
		job, err := store.ClaimNextJob([]string{"tool_embed"})
		if err != nil {
			t.Fatal(err)
		}
		if job == nil {
			break
		}
		var payload map[string]string
		json.Unmarshal([]byte(job.PayloadJSON), &payload)
		seen[payload["tool_id"]] = true
		store.CompleteJob(job.ID)
	}
	if !seen["t1"] || !seen["t3"] || seen["t2"] {
		t.Errorf("seen = %v", seen)
	}
}
