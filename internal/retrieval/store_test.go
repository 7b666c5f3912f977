package retrieval

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/nabdhq/nabd/internal/storage"
)

func openVectorStore(t *testing.T) *VectorStore {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewVectorStore(s.DB())
}

func mustUpsert(t *testing.T, vs *VectorStore, id, toolID string, embedding []float32) {
	t.Helper()
	if err := vs.Upsert(Record{ID: id, ToolID: toolID, Embedding: embedding}); err != nil {
		t.Fatalf("upserting %s: %v", toolID, err)
	}
}

func TestSearchRanksByCosineSimilarity(t *testing.T) {
	vs := openVectorStore(t)
	mustUpsert(t, vs, "v1", "exact", []float32{1, 0, 0})
	mustUpsert(t, vs, "v2", "close", []float32{0.9, 0.1, 0})
	mustUpsert(t, vs, "v3", "far", []float32{0, 1, 0})

	matches, err := vs.Search([]float32{1, 0, 0}, 10, 0.5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches above threshold, got %d: %+v", len(matches), matches)
	}
	if matches[0].ToolID != "exact" || matches[1].ToolID != "close" {
		t.Errorf("unexpected order: %+v", matches)
	}
	if math.Abs(float64(matches[0].Score)-1.0) > 1e-5 {
		t.Errorf("exact match score = %f, want ~1.0", matches[0].Score)
	}
}

func TestSearchTopKCap(t *testing.T) {
	vs := openVectorStore(t)
	mustUpsert(t, vs, "v1", "a", []float32{1, 0})
	mustUpsert(t, vs, "v2", "b", []float32{0.95, 0.05})
	mustUpsert(t, vs, "v3", "c", []float32{0.9, 0.1})

	matches, err := vs.Search([]float32{1, 0}, 2, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected topK=2 matches, got %d", len(matches))
	}
	if matches[0].ToolID != "a" || matches[1].ToolID != "b" {
		t.Errorf("kept the wrong candidates: %+v", matches)
	}
}

func TestSearchZeroQueryVector(t *testing.T) {
	vs := openVectorStore(t)
	mustUpsert(t, vs, "v1", "a", []float32{1, 0})

	matches, err := vs.Search([]float32{0, 0}, 5, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if matches != nil {
		t.Errorf("zero vector should match nothing, got %+v", matches)
	}
}

func TestUpsertReplacesExisting(t *testing.T) {
	vs := openVectorStore(t)
	mustUpsert(t, vs, "v1", "a", []float32{0, 1})
	mustUpsert(t, vs, "v2", "a", []float32{1, 0})

	count, err := vs.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 vector after upsert, got %d", count)
	}

	matches, err := vs.Search([]float32{1, 0}, 5, 0.9)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].ToolID != "a" {
		t.Errorf("replacement embedding not in effect: %+v", matches)
	}
}

func TestDeleteAndHasVector(t *testing.T) {
	vs := openVectorStore(t)
	mustUpsert(t, vs, "v1", "a", []float32{1, 0})

	has, err := vs.HasVector("a")
	if err != nil || !has {
		t.Fatalf("HasVector = %v, %v, want true", has, err)
	}

	if err := vs.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	has, err = vs.HasVector("a")
	if err != nil || has {
		t.Errorf("HasVector after delete = %v, %v, want false", has, err)
	}

	// Deleting a missing row is not an error.
	if err := vs.Delete("a"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestFloat32Codec(t *testing.T) {
	in := []float32{0, 1, -1, 0.5, 3.14159}
	out, err := decodeFloat32sInto(nil, encodeFloat32s(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length mismatch: %d vs %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("index %d: %f != %f", i, in[i], out[i])
		}
	}

	if _, err := decodeFloat32sInto(nil, []byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

type fakeEngine struct {
	vector []float32
	err    error
	model  string
	text   string
}

func (f *fakeEngine) Embed(_ context.Context, model, text string) ([]float32, error) {
	f.model = model
	f.text = text
	return f.vector, f.err
}

func TestEmbedderPassesModelAndText(t *testing.T) {
	engine := &fakeEngine{vector: []float32{0.1, 0.2}}
	e := NewEmbedder(engine, "text-embedding-004")

	got, err := e.Embed(context.Background(), "أداة لتوليد الصور")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("unexpected vector: %v", got)
	}
	if engine.model != "text-embedding-004" {
		t.Errorf("model = %s", engine.model)
	}
	if engine.text != "أداة لتوليد الصور" {
		t.Errorf("text = %s", engine.text)
	}
}

func TestEmbedderPropagatesError(t *testing.T) {
	wantErr := errors.New("quota exceeded")
	e := NewEmbedder(&fakeEngine{err: wantErr}, "text-embedding-004")

	if _, err := e.Embed(context.Background(), "query"); !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped engine error, got %v", err)
	}
}
