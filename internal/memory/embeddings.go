package memory

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"

	"codeforge/internal/logging"
	"codeforge/internal/types"
)

// Embedder produces embedding vectors. Nil disables the embedding layer, in
// which case retrieval deterministically returns empty results.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SetEmbedder attaches an embedding engine. Pass nil to disable retrieval.
func (m *Memory) SetEmbedder(e Embedder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedder = e
}

// IndexFile embeds a file's current on-disk content. Unchanged hashes are
// skipped; a changed hash invalidates the previous vector.
func (m *Memory) IndexFile(ctx context.Context, path string) error {
	m.mu.RLock()
	e := m.embedder
	m.mu.RUnlock()
	if e == nil {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(m.workspace, path))
	if err != nil {
		return err
	}
	hash := hashBytes(data)

	m.mu.RLock()
	prev, ok := m.embeddings[path]
	m.mu.RUnlock()
	if ok && prev.Hash == hash {
		return nil
	}

	vec, err := e.Embed(ctx, string(data))
	if err != nil {
		logging.MemoryDebug("embedding of %s failed: %v", path, err)
		return err
	}

	m.mu.Lock()
	m.embeddings[path] = types.FileEmbedding{Path: path, Hash: hash, Vector: vec}
	m.hashes[path] = hash
	m.mu.Unlock()
	logging.MemoryDebug("indexed %s (%d dims)", path, len(vec))
	return nil
}

// Invalidate drops the embedding and hash for a path (content changed on
// disk outside the engine).
func (m *Memory) Invalidate(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.embeddings, path)
	delete(m.hashes, path)
}

// TopK returns the paths of the k files most similar to the query text.
// Without an embedder the result is always empty.
func (m *Memory) TopK(ctx context.Context, query string, k int) []string {
	m.mu.RLock()
	e := m.embedder
	m.mu.RUnlock()
	if e == nil || k <= 0 {
		return nil
	}

	qvec, err := e.Embed(ctx, query)
	if err != nil {
		logging.MemoryDebug("query embedding failed: %v", err)
		return nil
	}

	m.mu.RLock()
	type scored struct {
		path  string
		score float64
	}
	candidates := make([]scored, 0, len(m.embeddings))
	for path, emb := range m.embeddings {
		candidates = append(candidates, scored{path, cosine(qvec, emb.Vector)})
	}
	m.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].path < candidates[j].path
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.path)
	}
	return out
}

// Embeddings returns a snapshot of the index, for persistence.
func (m *Memory) Embeddings() []types.FileEmbedding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.FileEmbedding, 0, len(m.embeddings))
	for _, e := range m.embeddings {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// RestoreEmbeddings replaces the index (used on session resume).
func (m *Memory) RestoreEmbeddings(embs []types.FileEmbedding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeddings = make(map[string]types.FileEmbedding, len(embs))
	for _, e := range embs {
		m.embeddings[e.Path] = e
		m.hashes[e.Path] = e.Hash
	}
}

// cosine computes cosine similarity between two vectors.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
