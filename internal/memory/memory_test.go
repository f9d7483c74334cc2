package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeforge/internal/types"
)

// hashEmbedder derives a tiny deterministic vector from the text so
// similarity is stable in tests.
type hashEmbedder struct{ calls int }

func (h *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h.calls++
	vec := make([]float32, 4)
	for i, r := range text {
		vec[i%4] += float32(r % 17)
	}
	return vec, nil
}

func testPlan() *types.Plan {
	return &types.Plan{
		ArchitectureSummary: "A flask app with a sqlite store.",
		FileIndex: map[string]string{
			"models.py": "data model",
			"app.py":    "entrypoint",
		},
		Tasks: []*types.TaskNode{
			{ID: 1, File: "models.py", Description: "data model"},
			{ID: 2, File: "app.py", Description: "entrypoint", DependsOn: []int{1}},
		},
	}
}

func TestLoadPlan_SeedsIndexAndDependencies(t *testing.T) {
	m := New(t.TempDir())
	m.LoadPlan(testPlan())

	assert.Equal(t, "A flask app with a sqlite store.", m.Summary())
	assert.Equal(t, []string{"models.py"}, m.Dependencies("app.py"))
	assert.Empty(t, m.Dependencies("models.py"))
}

func TestFailureLog_BoundedAndAppendOnly(t *testing.T) {
	m := New(t.TempDir())
	for i := 1; i <= maxFailuresPerTask+5; i++ {
		m.AppendFailure(types.FailureRecord{TaskID: 7, Attempt: i, Strategy: types.StrategyTargetedPatch})
	}
	log := m.Failures(7)
	require.Len(t, log, maxFailuresPerTask)
	// Oldest entries were trimmed.
	assert.Equal(t, 6, log[0].Attempt)
	assert.Equal(t, maxFailuresPerTask+5, log[len(log)-1].Attempt)
}

func TestHistory_TrimsOldestFirst(t *testing.T) {
	m := New(t.TempDir())
	for i := 0; i < maxHistoryPerRole+3; i++ {
		m.AppendHistory(types.RoleCoder, types.Message{Role: "user", Content: fmt.Sprintf("msg %d", i)})
	}
	h := m.History(types.RoleCoder)
	require.Len(t, h, maxHistoryPerRole)
	assert.Equal(t, "msg 3", h[0].Content)
}

func TestTopK_WithoutEmbedderIsDeterministicallyEmpty(t *testing.T) {
	m := New(t.TempDir())
	assert.Nil(t, m.TopK(context.Background(), "anything", 5))
}

func TestIndexFile_SkipsUnchangedHash(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "a.py"), []byte("x = 1\n"), 0o644))

	m := New(ws)
	e := &hashEmbedder{}
	m.SetEmbedder(e)

	require.NoError(t, m.IndexFile(context.Background(), "a.py"))
	require.NoError(t, m.IndexFile(context.Background(), "a.py"))
	assert.Equal(t, 1, e.calls, "unchanged file must not be re-embedded")

	// A content change invalidates the old vector.
	require.NoError(t, os.WriteFile(filepath.Join(ws, "a.py"), []byte("x = 2\n"), 0o644))
	require.NoError(t, m.IndexFile(context.Background(), "a.py"))
	assert.Equal(t, 2, e.calls)
}

func TestTopK_RanksBySimilarity(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "auth.py"), []byte("login password session"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "math.py"), []byte("1234567890"), 0o644))

	m := New(ws)
	m.SetEmbedder(&hashEmbedder{})
	require.NoError(t, m.IndexFile(context.Background(), "auth.py"))
	require.NoError(t, m.IndexFile(context.Background(), "math.py"))

	got := m.TopK(context.Background(), "login password session", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "auth.py", got[0])
}

func TestCoderContext_IncludesSummaryAndDependencies(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "models.py"), []byte("class User: pass\n"), 0o644))

	m := New(ws)
	m.LoadPlan(testPlan())

	ctx := m.CoderContext(context.Background(), &types.TaskNode{ID: 2, File: "app.py", Description: "entrypoint"})
	assert.Contains(t, ctx, "flask app")
	assert.Contains(t, ctx, "models.py")
	assert.Contains(t, ctx, "class User")
}

func TestAnalyzerContext_IncludesFailureLog(t *testing.T) {
	m := New(t.TempDir())
	m.SetSummary("arch")
	m.AppendFailure(types.FailureRecord{TaskID: 3, Attempt: 1, Strategy: types.StrategyTargetedPatch, Diagnosis: "missing import", Outcome: types.OutcomeUnchanged})

	ctx := m.AnalyzerContext(3, "SyntaxError: bad")
	assert.Contains(t, ctx, "SyntaxError")
	assert.Contains(t, ctx, "missing import")
	assert.Contains(t, ctx, "arch")
}

func TestReviewerContext_NoOtherRolesLeak(t *testing.T) {
	m := New(t.TempDir())
	m.SetSummary("arch")
	m.AppendHistory(types.RolePlanner, types.Message{Role: "assistant", Content: "planner-secret"})

	ctx := m.ReviewerContext("app.py", "print(1)")
	assert.Contains(t, ctx, "print(1)")
	assert.NotContains(t, ctx, "planner-secret")
}

func TestWatcher_InvalidatesOnExternalWrite(t *testing.T) {
	ws := t.TempDir()
	path := filepath.Join(ws, "a.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	m := New(ws)
	m.SetEmbedder(&hashEmbedder{})
	require.NoError(t, m.IndexFile(context.Background(), "a.py"))
	require.NotEmpty(t, m.FileHash("a.py"))

	w, err := m.Watch()
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("x = 2\n"), 0o644))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if m.FileHash("a.py") == "" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("hash for a.py was not invalidated after external write")
}

func TestRestoreEmbeddings_RoundTrip(t *testing.T) {
	m := New(t.TempDir())
	in := []types.FileEmbedding{
		{Path: "a.py", Hash: "h1", Vector: []float32{1, 2}},
		{Path: "b.py", Hash: "h2", Vector: []float32{3, 4}},
	}
	m.RestoreEmbeddings(in)
	out := m.Embeddings()
	require.Len(t, out, 2)
	assert.Equal(t, in, out)
	assert.Equal(t, "h1", m.FileHash("a.py"))
}

func TestAttemptedStrategies(t *testing.T) {
	m := New(t.TempDir())
	m.AppendFailure(types.FailureRecord{TaskID: 1, Attempt: 1, Strategy: types.StrategyTargetedPatch})
	m.AppendFailure(types.FailureRecord{TaskID: 1, Attempt: 2, Strategy: types.StrategyDeepAnalysis})

	got := m.AttemptedStrategies(1)
	assert.Equal(t, []types.StrategyCode{types.StrategyTargetedPatch, types.StrategyDeepAnalysis}, got)
}

func TestPlannerContext(t *testing.T) {
	m := New(t.TempDir())
	m.AppendFailure(types.FailureRecord{TaskID: 2, Attempt: 1, Strategy: types.StrategyRegenerate, Verifier: "lint: unused var"})
	ctx := m.PlannerContext("build a forum")
	assert.True(t, strings.Contains(ctx, "build a forum") && strings.Contains(ctx, "unused var"))
}
