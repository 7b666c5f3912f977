package retrieval

import (
	"container/heap"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Record is an embedding row linked to one catalog tool.
type Record struct {
	ID        string
	ToolID    string
	Embedding []float32
	CreatedAt time.Time
}

// Match is a tool ID with its cosine similarity to the query vector.
type Match struct {
	ToolID string
	Score  float32
}

// VectorStore provides brute-force cosine similarity search over tool
// embeddings backed by SQLite. Adequate for catalog-sized data; an ANN
// index only becomes worth it past ~100K vectors.
type VectorStore struct {
	db *sql.DB
}

// NewVectorStore wraps an existing *sql.DB for vector operations.
// The tool_vectors table must already exist (created via migrations).
func NewVectorStore(db *sql.DB) *VectorStore {
	return &VectorStore{db: db}
}

// Upsert stores the embedding for a tool, replacing any previous one.
func (s *VectorStore) Upsert(r Record) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO tool_vectors (id, tool_id, embedding, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tool_id) DO UPDATE SET embedding = excluded.embedding, created_at = excluded.created_at`,
		r.ID, r.ToolID, encodeFloat32s(r.Embedding), createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting vector for tool %s: %w", r.ToolID, err)
	}
	return nil
}

// Search scans all stored embeddings and returns the top-K tool IDs whose
// cosine similarity to vector is at least minScore, best first.
func (s *VectorStore) Search(vector []float32, topK int, minScore float32) ([]Match, error) {
	rows, err := s.db.Query(`SELECT tool_id, embedding FROM tool_vectors`)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	h := &matchHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var toolID string
		var blob []byte
		if err := rows.Scan(&toolID, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", toolID, err)
		}

		score := dotProduct(vector, buf, queryNorm)
		if score < minScore {
			continue
		}
		if h.Len() < topK {
			heap.Push(h, Match{ToolID: toolID, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = Match{ToolID: toolID, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	// Pop the min-heap into descending score order.
	matches := make([]Match, h.Len())
	for i := len(matches) - 1; i >= 0; i-- {
		matches[i] = heap.Pop(h).(Match)
	}
	return matches, nil
}

// Delete removes the embedding for a tool. Missing rows are not an error.
func (s *VectorStore) Delete(toolID string) error {
	_, err := s.db.Exec(`DELETE FROM tool_vectors WHERE tool_id = ?`, toolID)
	return err
}

// HasVector reports whether an embedding exists for the given tool.
func (s *VectorStore) HasVector(toolID string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM tool_vectors WHERE tool_id = ?`, toolID).Scan(&count)
	return count > 0, err
}

// Count returns the number of stored embeddings.
func (s *VectorStore) Count() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM tool_vectors`).Scan(&count)
	return count, err
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during search scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// dotProduct computes cosine similarity as dot(a,b) / (aNorm * bNorm).
// aNorm is the precomputed L2 norm of vector a.
func dotProduct(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// matchHeap is a min-heap of Match ordered by Score, used to track the
// top-K candidates during a scan.
type matchHeap []Match

func (h matchHeap) Len() int            { return len(h) }
func (h matchHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h matchHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *matchHeap) Push(x interface{}) { *h = append(*h, x.(Match)) }
func (h *matchHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
