// Package memory is the engine's structured project state: architecture
// summary, file index, dependency graph, failure log, per-role chat slices,
// and an optional embedding index. Memory holds references to files by path
// only; content is re-read from disk at slicing time, never cached across a
// verification boundary.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"codeforge/internal/logging"
	"codeforge/internal/types"
)

const (
	// maxFailuresPerTask bounds the failure log per task.
	maxFailuresPerTask = 10
	// maxHistoryPerRole bounds each role's conversation history.
	maxHistoryPerRole = 40
	// maxDepContextBytes bounds how much dependency file content a slice
	// carries.
	maxDepContextBytes = 4000
)

// Memory guards all layers behind a single writer lock; reads return
// snapshot copies.
type Memory struct {
	mu        sync.RWMutex
	workspace string

	summary   string
	specSlots types.SpecSlots
	fileIndex map[string]string   // path -> one-line purpose
	deps      map[string][]string // path -> imported paths
	failures  map[int][]types.FailureRecord
	histories map[types.Role][]types.Message

	embedder   Embedder
	embeddings map[string]types.FileEmbedding
	hashes     map[string]string
}

// New creates an empty memory rooted at the workspace.
func New(workspace string) *Memory {
	return &Memory{
		workspace:  workspace,
		fileIndex:  make(map[string]string),
		deps:       make(map[string][]string),
		failures:   make(map[int][]types.FailureRecord),
		histories:  make(map[types.Role][]types.Message),
		embeddings: make(map[string]types.FileEmbedding),
		hashes:     make(map[string]string),
	}
}

// LoadPlan seeds the summary, spec slots, file index, and dependency graph
// from a plan.
func (m *Memory) LoadPlan(plan *types.Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.summary = plan.ArchitectureSummary
	m.specSlots = plan.Spec
	for path, purpose := range plan.FileIndex {
		m.fileIndex[path] = purpose
	}
	byID := make(map[int]string, len(plan.Tasks))
	for _, t := range plan.Tasks {
		byID[t.ID] = t.File
	}
	for _, t := range plan.Tasks {
		var deps []string
		for _, id := range t.DependsOn {
			if f := byID[id]; f != "" {
				deps = append(deps, f)
			}
		}
		m.deps[t.File] = deps
		if _, ok := m.fileIndex[t.File]; !ok {
			m.fileIndex[t.File] = t.Description
		}
	}
	logging.Memory("plan loaded: %d files indexed", len(m.fileIndex))
}

// Summary returns the architecture summary.
func (m *Memory) Summary() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.summary
}

// SetSummary replaces the architecture summary.
func (m *Memory) SetSummary(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary = s
}

// FileIndex returns a snapshot copy of the file index.
func (m *Memory) FileIndex() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.fileIndex))
	for k, v := range m.fileIndex {
		out[k] = v
	}
	return out
}

// Dependencies returns the imported paths recorded for a file.
func (m *Memory) Dependencies(path string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.deps[path]...)
}

// AppendFailure records a fix attempt. The log is append-only within a
// session and bounded to the most recent entries per task.
func (m *Memory) AppendFailure(rec types.FailureRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := append(m.failures[rec.TaskID], rec)
	if len(log) > maxFailuresPerTask {
		log = log[len(log)-maxFailuresPerTask:]
	}
	m.failures[rec.TaskID] = log
	logging.MemoryDebug("failure recorded: task=%d attempt=%d strategy=%s", rec.TaskID, rec.Attempt, rec.Strategy)
}

// Failures returns a snapshot of a task's failure log.
func (m *Memory) Failures(taskID int) []types.FailureRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.FailureRecord(nil), m.failures[taskID]...)
}

// AllFailures returns a snapshot of every failure record, ordered by task id.
func (m *Memory) AllFailures() []types.FailureRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int, 0, len(m.failures))
	for id := range m.failures {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var out []types.FailureRecord
	for _, id := range ids {
		out = append(out, m.failures[id]...)
	}
	return out
}

// AttemptedStrategies lists the strategy codes already tried for a task.
func (m *Memory) AttemptedStrategies(taskID int) []types.StrategyCode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.StrategyCode
	for _, rec := range m.failures[taskID] {
		out = append(out, rec.Strategy)
	}
	return out
}

// AppendHistory appends one message to a role's bounded history, trimming
// oldest-first.
func (m *Memory) AppendHistory(role types.Role, msg types.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := append(m.histories[role], msg)
	if len(h) > maxHistoryPerRole {
		h = h[len(h)-maxHistoryPerRole:]
	}
	m.histories[role] = h
}

// History returns a snapshot of a role's conversation history.
func (m *Memory) History(role types.Role) []types.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.Message(nil), m.histories[role]...)
}

// Histories returns a snapshot of all role histories, for persistence.
func (m *Memory) Histories() map[types.Role][]types.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[types.Role][]types.Message, len(m.histories))
	for role, h := range m.histories {
		out[role] = append([]types.Message(nil), h...)
	}
	return out
}

// RestoreHistories replaces the role histories (used on session resume).
func (m *Memory) RestoreHistories(h map[types.Role][]types.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histories = make(map[types.Role][]types.Message, len(h))
	for role, msgs := range h {
		m.histories[role] = append([]types.Message(nil), msgs...)
	}
}

// RestoreFailures replaces the failure log (used on session resume).
func (m *Memory) RestoreFailures(recs []types.FailureRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[int][]types.FailureRecord)
	for _, rec := range recs {
		m.failures[rec.TaskID] = append(m.failures[rec.TaskID], rec)
	}
}

// FileHash returns the recorded content hash for a path.
func (m *Memory) FileHash(path string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hashes[path]
}

// RecordHash hashes a file's current on-disk content and records it. Called
// at verification time so a later run can prove the workspace is unchanged.
func (m *Memory) RecordHash(path string) error {
	data, err := os.ReadFile(filepath.Join(m.workspace, path))
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[path] = hashBytes(data)
	return nil
}

// HashMatches reports whether a file's on-disk content still matches its
// recorded hash.
func (m *Memory) HashMatches(path string) bool {
	m.mu.RLock()
	recorded := m.hashes[path]
	m.mu.RUnlock()
	if recorded == "" {
		return false
	}
	data, err := os.ReadFile(filepath.Join(m.workspace, path))
	if err != nil {
		return false
	}
	return hashBytes(data) == recorded
}

// Hashes returns a snapshot of the recorded hashes, for persistence.
func (m *Memory) Hashes() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.hashes))
	for k, v := range m.hashes {
		out[k] = v
	}
	return out
}

// RestoreHashes replaces the recorded hashes (used on session resume).
func (m *Memory) RestoreHashes(h map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range h {
		m.hashes[k] = v
	}
}

// hashBytes is the content hash used for embedding invalidation.
func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// readWorkspaceFile reads a file relative to the workspace, bounded.
func (m *Memory) readWorkspaceFile(path string, limit int) string {
	data, err := os.ReadFile(filepath.Join(m.workspace, path))
	if err != nil {
		return ""
	}
	if limit > 0 && len(data) > limit {
		data = data[:limit]
	}
	return string(data)
}
