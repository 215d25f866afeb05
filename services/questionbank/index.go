package questionbank

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Match is one nearest-neighbor hit, ranked by similarity score descending.
type Match struct {
	ID    string
	Score float32
}

// VectorIndex is the semantic index backend. The question bank owns the
// embeddings; the index only ever sees id + vector + flat metadata.
type VectorIndex interface {
	Upsert(ctx context.Context, namespace, id string, vector []float32, metadata map[string]any) error
	Query(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]any) ([]Match, error)
}

// MemoryIndex is a brute-force cosine-similarity index for dev and tests.
// It mirrors the Pinecone index contract closely enough that the bank cannot
// tell them apart.
type MemoryIndex struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]memoryVector
}

type memoryVector struct {
	values   []float32
	metadata map[string]any
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{namespaces: make(map[string]map[string]memoryVector)}
}

func (m *MemoryIndex) Upsert(_ context.Context, namespace, id string, vector []float32, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string]memoryVector)
		m.namespaces[namespace] = ns
	}
	ns[id] = memoryVector{values: vector, metadata: metadata}
	return nil
}

func (m *MemoryIndex) Query(_ context.Context, namespace string, vector []float32, topK int, filter map[string]any) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Match
	for id, v := range m.namespaces[namespace] {
		if !metadataMatches(v.metadata, filter) {
			continue
		}
		matches = append(matches, Match{ID: id, Score: cosineSimilarity(vector, v.values)})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func metadataMatches(metadata, filter map[string]any) bool {
	for key, want := range filter {
		if metadata[key] != want {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
