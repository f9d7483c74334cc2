package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"codeforge/internal/memory"
	"codeforge/internal/roles"
	"codeforge/internal/session"
	"codeforge/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeEngine is a scripted RoleEngine.
type fakeEngine struct {
	mu       sync.Mutex
	plan     *types.Plan
	planErr  error
	reviews  []roles.Review
	analysis roles.Analysis

	planCalls     int
	generateOrder []int
	generateCalls int
	patchCalls    int
	analyzeCalls  int
	lastHint      string
}

func (f *fakeEngine) Plan(ctx context.Context, request string) (*types.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.planCalls++
	return f.plan, f.planErr
}

func (f *fakeEngine) Refine(ctx context.Context, request string) (*types.Plan, error) {
	return f.Plan(ctx, request)
}

func (f *fakeEngine) Generate(ctx context.Context, task *types.TaskNode, stack []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls++
	f.generateOrder = append(f.generateOrder, task.ID)
	return fmt.Sprintf("# %s\n", task.File), nil
}

func (f *fakeEngine) Patch(ctx context.Context, task *types.TaskNode, current, instructions string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patchCalls++
	return fmt.Sprintf("# %s patched %d\n", task.File, f.patchCalls), nil
}

func (f *fakeEngine) Review(ctx context.Context, path, content string) (roles.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reviews) == 0 {
		return roles.Review{Approved: true}, nil
	}
	rev := f.reviews[0]
	f.reviews = f.reviews[1:]
	return rev, nil
}

func (f *fakeEngine) Analyze(ctx context.Context, task *types.TaskNode, verifierOutput string, attempted []types.StrategyCode, hint string) (roles.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzeCalls++
	f.lastHint = hint
	return f.analysis, nil
}

func (f *fakeEngine) ResearchGuidance(ctx context.Context, verifierOutput string) string {
	return ""
}

// fakeVerifier returns a scripted pass/fail sequence per path; paths with no
// script always pass.
type fakeVerifier struct {
	mu      sync.Mutex
	scripts map[string][]bool
	calls   map[string]int
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{scripts: map[string][]bool{}, calls: map[string]int{}}
}

func (v *fakeVerifier) Verify(ctx context.Context, path string) types.VerificationResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls[path]++
	pass := true
	if script, ok := v.scripts[path]; ok {
		if len(script) > 0 {
			pass = script[0]
			v.scripts[path] = script[1:]
		} else {
			pass = true
		}
	}
	if pass {
		return types.VerificationResult{Passed: true, Checks: map[string]types.CheckResult{"syntax": {Passed: true}}}
	}
	return types.VerificationResult{
		Passed: false,
		Checks: map[string]types.CheckResult{"syntax": {Passed: false, Detail: "boom"}},
	}
}

func alwaysFail(n int) []bool {
	out := make([]bool, n)
	return out
}

func chainPlan() *types.Plan {
	return &types.Plan{
		ArchitectureSummary: "three files",
		TechStack:           []string{"python"},
		Tasks: []*types.TaskNode{
			{ID: 1, File: "models.py", Description: "models", Status: types.TaskPending},
			{ID: 2, File: "api.py", Description: "api", DependsOn: []int{1}, Status: types.TaskPending},
			{ID: 3, File: "app.py", Description: "app", DependsOn: []int{1}, Status: types.TaskPending},
		},
	}
}

func newOrchestrator(t *testing.T, ws string, engine *fakeEngine, verifier *fakeVerifier, cfg Config) *Orchestrator {
	t.Helper()
	return New(ws, engine, verifier, memory.New(ws), session.NewStore(ws), types.NewEventLog(nil), cfg)
}

func TestBuild_HappyPathRespectsDependencyOrder(t *testing.T) {
	ws := t.TempDir()
	engine := &fakeEngine{plan: chainPlan()}
	o := newOrchestrator(t, ws, engine, newFakeVerifier(), Config{})

	req := &types.Request{Prompt: "build three files", Workspace: ws}
	require.NoError(t, o.Build(context.Background(), req))

	for _, task := range o.Plan().Tasks {
		assert.Equal(t, types.TaskVerified, task.Status, "task %d", task.ID)
		assert.FileExists(t, filepath.Join(ws, task.File))
	}

	// Task 1 generated strictly before its dependents.
	require.Len(t, engine.generateOrder, 3)
	assert.Equal(t, 1, engine.generateOrder[0])

	// Session persisted.
	assert.FileExists(t, filepath.Join(ws, session.FileName))
}

func TestBuild_FixLoopProgression(t *testing.T) {
	ws := t.TempDir()
	engine := &fakeEngine{plan: &types.Plan{
		Tasks: []*types.TaskNode{{ID: 1, File: "app.py", Status: types.TaskPending}},
	}}
	verifier := newFakeVerifier()
	// The pipeline verification fails, the fix loop's re-verifications fail
	// twice more, and the third fix attempt passes.
	verifier.scripts["app.py"] = []bool{false, false, false, true}

	o := newOrchestrator(t, ws, engine, verifier, Config{})
	require.NoError(t, o.Build(context.Background(), &types.Request{Prompt: "x", Workspace: ws}))

	task := o.Plan().Tasks[0]
	assert.Equal(t, types.TaskVerified, task.Status)
	assert.Equal(t, 2, task.FailureCount)

	// Two failed attempts are recorded; the success itself never is.
	failures := o.mem.Failures(1)
	require.Len(t, failures, 2)
	for i, rec := range failures {
		assert.Equal(t, types.StrategyTargetedPatch, rec.Strategy, "record %d", i)
		assert.NotEqual(t, types.OutcomeFixed, rec.Outcome, "record %d", i)
	}
	assert.Equal(t, types.OutcomeUnchanged, failures[0].Outcome)
	assert.Equal(t, types.OutcomeUnchanged, failures[1].Outcome)
}

func TestBuild_EscalationSkipAndUnreachableDependents(t *testing.T) {
	ws := t.TempDir()
	engine := &fakeEngine{plan: chainPlan()}
	verifier := newFakeVerifier()
	verifier.scripts["models.py"] = alwaysFail(50)

	o := newOrchestrator(t, ws, engine, verifier, Config{})
	require.NoError(t, o.Build(context.Background(), &types.Request{Prompt: "x", Workspace: ws}))

	plan := o.Plan()
	root := plan.Task(1)
	assert.Equal(t, types.TaskFailed, root.Status)
	assert.Equal(t, types.MaxTaskFailures, root.FailureCount)

	// The failed root never blocks scheduling, but its dependents become
	// unreachable and are skipped.
	assert.Equal(t, types.TaskSkipped, plan.Task(2).Status)
	assert.Equal(t, types.TaskSkipped, plan.Task(3).Status)

	assert.Equal(t, 1, o.Events().Count(types.EventEscalation))
	assert.GreaterOrEqual(t, o.Events().Count(types.EventTaskSkipped), 2)
}

func TestBuild_StrategyTableProgression(t *testing.T) {
	ws := t.TempDir()
	engine := &fakeEngine{plan: &types.Plan{
		Tasks: []*types.TaskNode{{ID: 1, File: "app.py", Status: types.TaskPending}},
	}}
	verifier := newFakeVerifier()
	verifier.scripts["app.py"] = alwaysFail(50)

	o := newOrchestrator(t, ws, engine, verifier, Config{})
	require.NoError(t, o.Build(context.Background(), &types.Request{Prompt: "x", Workspace: ws}))

	var got []types.StrategyCode
	for _, rec := range o.mem.Failures(1) {
		got = append(got, rec.Strategy)
	}
	want := []types.StrategyCode{"A", "A", "A", "B", "B", "C", "D", "E"}
	assert.Equal(t, want, got)
}

func TestBuild_ForbiddenStrategiesNeverApplied(t *testing.T) {
	ws := t.TempDir()
	engine := &fakeEngine{
		plan: &types.Plan{
			Tasks: []*types.TaskNode{{ID: 1, File: "app.py", Status: types.TaskPending}},
		},
		analysis: roles.Analysis{
			RootCause:        "broken",
			ForbidStrategies: []types.StrategyCode{types.StrategyTargetedPatch},
		},
	}
	verifier := newFakeVerifier()
	verifier.scripts["app.py"] = alwaysFail(50)

	o := newOrchestrator(t, ws, engine, verifier, Config{})
	require.NoError(t, o.Build(context.Background(), &types.Request{Prompt: "x", Workspace: ws}))

	for i, rec := range o.mem.Failures(1) {
		assert.NotEqual(t, types.StrategyTargetedPatch, rec.Strategy, "record %d used a forbidden strategy", i)
	}
}

func TestBuild_GuidedFixGrantsBoundedRetries(t *testing.T) {
	ws := t.TempDir()
	engine := &fakeEngine{plan: &types.Plan{
		Tasks: []*types.TaskNode{{ID: 1, File: "app.py", Status: types.TaskPending}},
	}}
	verifier := newFakeVerifier()
	// Initial verify + 8 fix attempts fail, then the guided attempt passes.
	verifier.scripts["app.py"] = append(alwaysFail(9), true)

	escalations := 0
	cfg := Config{Escalate: func(task *types.TaskNode, lastError string) types.EscalationDecision {
		escalations++
		return types.EscalationDecision{Choice: types.EscalationGuidedFix, Hint: "use port 8080"}
	}}

	o := newOrchestrator(t, ws, engine, verifier, cfg)
	require.NoError(t, o.Build(context.Background(), &types.Request{Prompt: "x", Workspace: ws}))

	task := o.Plan().Tasks[0]
	assert.Equal(t, types.TaskVerified, task.Status)
	assert.Equal(t, 1, escalations)
	assert.Equal(t, "use port 8080", engine.lastHint)
	// The counter never exceeds its cap.
	assert.LessOrEqual(t, task.FailureCount, types.MaxTaskFailures)
}

func TestBuild_EscalationPausePersistsState(t *testing.T) {
	ws := t.TempDir()
	engine := &fakeEngine{plan: &types.Plan{
		Tasks: []*types.TaskNode{{ID: 1, File: "app.py", Status: types.TaskPending}},
	}}
	verifier := newFakeVerifier()
	verifier.scripts["app.py"] = alwaysFail(50)

	cfg := Config{Escalate: func(task *types.TaskNode, lastError string) types.EscalationDecision {
		return types.EscalationDecision{Choice: types.EscalationPause}
	}}

	o := newOrchestrator(t, ws, engine, verifier, cfg)
	err := o.Build(context.Background(), &types.Request{Prompt: "x", Workspace: ws})
	assert.True(t, errors.Is(err, ErrPaused), "err = %v", err)
	assert.FileExists(t, filepath.Join(ws, session.FileName))
}

func TestBuild_PlanInvariantViolationAborts(t *testing.T) {
	ws := t.TempDir()
	engine := &fakeEngine{plan: &types.Plan{
		Tasks: []*types.TaskNode{
			{ID: 1, File: "dup.py", Status: types.TaskPending},
			{ID: 2, File: "dup.py", Status: types.TaskPending},
		},
	}}

	o := newOrchestrator(t, ws, engine, newFakeVerifier(), Config{})
	err := o.Build(context.Background(), &types.Request{Prompt: "x", Workspace: ws})
	assert.True(t, errors.Is(err, types.ErrPlanInvariant), "err = %v", err)
	assert.Equal(t, 1, o.Events().Count(types.EventPlanInvalid))
}

func TestBuild_RerunUnchangedWorkspaceMakesZeroModelCalls(t *testing.T) {
	ws := t.TempDir()
	engine := &fakeEngine{plan: chainPlan()}
	o := newOrchestrator(t, ws, engine, newFakeVerifier(), Config{})
	req := &types.Request{Prompt: "build three files", Workspace: ws}
	require.NoError(t, o.Build(context.Background(), req))

	// Fresh orchestrator over the same workspace and state file.
	engine2 := &fakeEngine{plan: chainPlan()}
	o2 := newOrchestrator(t, ws, engine2, newFakeVerifier(), Config{})
	require.NoError(t, o2.Build(context.Background(), req))

	assert.Equal(t, 0, engine2.planCalls, "resumed complete build must not re-plan")
	assert.Equal(t, 0, engine2.generateCalls, "resumed complete build must not call the model")
}

func TestBuild_RerunAfterFileEditedRegenerates(t *testing.T) {
	ws := t.TempDir()
	engine := &fakeEngine{plan: chainPlan()}
	o := newOrchestrator(t, ws, engine, newFakeVerifier(), Config{})
	req := &types.Request{Prompt: "build three files", Workspace: ws}
	require.NoError(t, o.Build(context.Background(), req))

	// Someone edits a generated file; the hash no longer matches.
	require.NoError(t, os.WriteFile(filepath.Join(ws, "api.py"), []byte("tampered\n"), 0o644))

	engine2 := &fakeEngine{plan: chainPlan()}
	o2 := newOrchestrator(t, ws, engine2, newFakeVerifier(), Config{})
	require.NoError(t, o2.Build(context.Background(), req))
	assert.Greater(t, engine2.generateCalls, 0)
}

func TestBuild_CancellationLeavesPendingAndPersists(t *testing.T) {
	ws := t.TempDir()
	engine := &fakeEngine{plan: chainPlan()}
	o := newOrchestrator(t, ws, engine, newFakeVerifier(), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := o.Build(ctx, &types.Request{Prompt: "x", Workspace: ws})
	assert.True(t, errors.Is(err, types.ErrCancelled), "err = %v", err)

	for _, task := range o.Plan().Tasks {
		assert.Equal(t, types.TaskPending, task.Status)
	}
	assert.FileExists(t, filepath.Join(ws, session.FileName))
}

func TestBuild_ReviewLoopPatchesAtMostTwice(t *testing.T) {
	ws := t.TempDir()
	blocking := roles.Review{
		Approved: false,
		Issues:   []roles.Issue{{Severity: roles.SeverityCritical, Description: "broken"}},
		Summary:  "broken",
	}
	engine := &fakeEngine{
		plan: &types.Plan{
			Tasks: []*types.TaskNode{{ID: 1, File: "app.py", Status: types.TaskPending}},
		},
		// Blocking on every round; the loop must still stop at the cap.
		reviews: []roles.Review{blocking, blocking, blocking, blocking},
	}

	o := newOrchestrator(t, ws, engine, newFakeVerifier(), Config{})
	require.NoError(t, o.Build(context.Background(), &types.Request{Prompt: "x", Workspace: ws}))

	assert.Equal(t, roles.MaxReviewRounds, engine.patchCalls)
	assert.Equal(t, types.TaskVerified, o.Plan().Tasks[0].Status)
}

func TestChooseStrategy(t *testing.T) {
	assert.Equal(t, types.StrategyTargetedPatch, chooseStrategy(1, nil))
	assert.Equal(t, types.StrategyTargetedPatch, chooseStrategy(3, nil))
	assert.Equal(t, types.StrategyDeepAnalysis, chooseStrategy(4, nil))
	assert.Equal(t, types.StrategyRegenerate, chooseStrategy(6, nil))
	assert.Equal(t, types.StrategySimplify, chooseStrategy(7, nil))
	assert.Equal(t, types.StrategyResearch, chooseStrategy(8, nil))

	// Forbidden table choice advances along the ladder.
	got := chooseStrategy(1, []types.StrategyCode{types.StrategyTargetedPatch})
	assert.Equal(t, types.StrategyDeepAnalysis, got)

	// Wrap-around when the tail of the ladder is forbidden.
	got = chooseStrategy(8, []types.StrategyCode{types.StrategyResearch})
	assert.Equal(t, types.StrategyTargetedPatch, got)
}

func TestWaveParallelismBoundedByFanOut(t *testing.T) {
	ws := t.TempDir()
	// Six independent tasks, fan-out 2.
	plan := &types.Plan{}
	for i := 1; i <= 6; i++ {
		plan.Tasks = append(plan.Tasks, &types.TaskNode{
			ID: i, File: fmt.Sprintf("f%d.py", i), Status: types.TaskPending,
		})
	}
	engine := &fakeEngine{plan: plan}
	o := newOrchestrator(t, ws, engine, newFakeVerifier(), Config{FanOut: 2})
	require.NoError(t, o.Build(context.Background(), &types.Request{Prompt: "x", Workspace: ws}))

	for _, task := range o.Plan().Tasks {
		assert.Equal(t, types.TaskVerified, task.Status)
	}
	assert.Equal(t, 6, engine.generateCalls)
}
