// Package orchestrator schedules the task DAG: topological wave scheduling
// with bounded fan-out, the per-task generate/review/verify pipeline, the
// five-strategy fix engine, and escalation when a task exhausts its budget.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"codeforge/internal/logging"
	"codeforge/internal/memory"
	"codeforge/internal/roles"
	"codeforge/internal/session"
	"codeforge/internal/types"
)

// ErrPaused is returned when an escalation decision pauses the build.
// Session state is persisted before returning.
var ErrPaused = errors.New("build paused at escalation")

// RoleEngine is the slice of the role engines the orchestrator drives.
type RoleEngine interface {
	Plan(ctx context.Context, request string) (*types.Plan, error)
	Refine(ctx context.Context, request string) (*types.Plan, error)
	Generate(ctx context.Context, task *types.TaskNode, stack []string) (string, error)
	Patch(ctx context.Context, task *types.TaskNode, current, instructions string) (string, error)
	Review(ctx context.Context, path, content string) (roles.Review, error)
	Analyze(ctx context.Context, task *types.TaskNode, verifierOutput string, attempted []types.StrategyCode, hint string) (roles.Analysis, error)
	ResearchGuidance(ctx context.Context, verifierOutput string) string
}

// FileVerifier is the slice of the verifier the orchestrator drives.
type FileVerifier interface {
	Verify(ctx context.Context, path string) types.VerificationResult
}

// EscalationFn decides what happens after a task exhausts its fix budget.
// The non-interactive default skips the task.
type EscalationFn func(task *types.TaskNode, lastError string) types.EscalationDecision

// Config tunes the orchestrator.
type Config struct {
	// FanOut bounds how many tasks run concurrently within one wave.
	FanOut int
	// Escalate handles exhausted tasks; nil means skip (non-interactive).
	Escalate EscalationFn
}

// Orchestrator runs one build against one workspace.
type Orchestrator struct {
	workspace string
	engine    RoleEngine
	verifier  FileVerifier
	mem       *memory.Memory
	store     *session.Store
	events    *types.EventLog
	cfg       Config

	mu    sync.Mutex // guards plan mutations across workers
	plan  *types.Plan
	state *session.State
}

// New creates an orchestrator.
func New(workspace string, engine RoleEngine, verifier FileVerifier, mem *memory.Memory, store *session.Store, events *types.EventLog, cfg Config) *Orchestrator {
	if cfg.FanOut < 2 {
		cfg.FanOut = 2
	}
	if cfg.Escalate == nil {
		cfg.Escalate = func(task *types.TaskNode, lastError string) types.EscalationDecision {
			return types.EscalationDecision{Choice: types.EscalationSkip}
		}
	}
	return &Orchestrator{
		workspace: workspace,
		engine:    engine,
		verifier:  verifier,
		mem:       mem,
		store:     store,
		events:    events,
		cfg:       cfg,
	}
}

// Events exposes the event log.
func (o *Orchestrator) Events() *types.EventLog { return o.events }

// Plan returns the current plan.
func (o *Orchestrator) Plan() *types.Plan {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.plan
}

// Build plans (or resumes) and executes the task DAG to completion.
func (o *Orchestrator) Build(ctx context.Context, request *types.Request) error {
	timer := logging.StartTimer(logging.CategoryOrchestrator, "Build")
	defer timer.StopWithInfo()

	if err := o.prepare(ctx, request); err != nil {
		return err
	}

	if o.alreadyComplete() {
		logging.Orchestrator("workspace unchanged and all tasks verified; nothing to do")
		return nil
	}

	// A verified file whose content changed since verification is rebuilt.
	o.mu.Lock()
	for _, t := range o.plan.Tasks {
		if t.Status == types.TaskVerified && !o.mem.HashMatches(t.File) {
			t.Status = types.TaskPending
		}
	}
	o.mu.Unlock()

	return o.runWaves(ctx)
}

// prepare restores a saved session or asks the planner for a fresh plan.
func (o *Orchestrator) prepare(ctx context.Context, request *types.Request) error {
	if st, err := o.store.Load(); err == nil && st != nil && !st.ReadOnly && st.Request == request.Prompt {
		logging.Orchestrator("resuming session %s", st.SessionID)
		plan := st.Plan()
		if err := plan.Validate(); err != nil {
			return o.planInvalid(err)
		}
		o.mu.Lock()
		o.plan = plan
		o.state = st
		o.mu.Unlock()
		o.mem.LoadPlan(plan)
		o.mem.RestoreHistories(st.Histories)
		o.mem.RestoreFailures(st.Failures)
		o.mem.RestoreEmbeddings(st.Embeddings)
		o.mem.RestoreHashes(st.Hashes)
		return nil
	}

	plan, err := o.engine.Plan(ctx, request.Prompt)
	if err != nil {
		if errors.Is(err, types.ErrPlanInvariant) {
			return o.planInvalid(err)
		}
		return fmt.Errorf("planning: %w", err)
	}
	// The planner validates, but the orchestrator owns the invariant.
	if err := plan.Validate(); err != nil {
		return o.planInvalid(err)
	}

	st := session.NewState(o.workspace, request.Prompt)
	st.Complexity = request.Complexity
	st.Size = request.Size

	o.mu.Lock()
	o.plan = plan
	o.state = st
	o.mu.Unlock()
	o.mem.LoadPlan(plan)
	logging.Orchestrator("plan ready: %d tasks", len(plan.Tasks))
	return nil
}

func (o *Orchestrator) planInvalid(err error) error {
	o.events.Emit(types.EventPlanInvalid, 0, err.Error())
	return err
}

// alreadyComplete reports whether every task is VERIFIED and every file's
// hash still matches - the re-run fast path that makes zero model calls.
func (o *Orchestrator) alreadyComplete() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range o.plan.Tasks {
		if t.Status != types.TaskVerified {
			return false
		}
		if !o.mem.HashMatches(t.File) {
			return false
		}
	}
	return len(o.plan.Tasks) > 0
}

// runWaves executes the ready set in parallel until the DAG drains.
func (o *Orchestrator) runWaves(ctx context.Context) error {
	wave := 0
	for {
		select {
		case <-ctx.Done():
			return o.cancelled(ctx)
		default:
		}

		ready := o.readySet()
		if len(ready) == 0 {
			pending := o.countStatus(types.TaskPending)
			if pending == 0 {
				break
			}
			// Remaining PENDING tasks are unreachable: their dependency
			// chains ended in FAILED or SKIPPED.
			o.skipUnreachable()
			break
		}

		wave++
		o.events.Emit(types.EventWaveStarted, 0, fmt.Sprintf("wave %d: %d tasks", wave, len(ready)))
		logging.Orchestrator("wave %d: %d ready tasks, fan-out %d", wave, len(ready), o.cfg.FanOut)

		g, waveCtx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.FanOut)
		for _, task := range ready {
			task := task
			g.Go(func() error {
				return o.runTask(waveCtx, task)
			})
		}
		if err := g.Wait(); err != nil {
			if ctx.Err() != nil {
				return o.cancelled(ctx)
			}
			if errors.Is(err, ErrPaused) || errors.Is(err, types.ErrCancelled) {
				// A resumed session reschedules interrupted tasks from
				// scratch.
				o.resetNonTerminal()
				_ = o.persist()
			}
			return err
		}

		// Re-index embeddings for the files this wave produced, then
		// persist.
		for _, task := range ready {
			if task.Status == types.TaskVerified {
				_ = o.mem.IndexFile(ctx, task.File)
			}
		}
		o.events.Emit(types.EventWaveCompleted, 0, fmt.Sprintf("wave %d", wave))
		if err := o.persist(); err != nil {
			logging.OrchestratorWarn("session save failed: %v", err)
		}
	}

	if err := o.persist(); err != nil {
		logging.OrchestratorWarn("session save failed: %v", err)
	}
	logging.Orchestrator("build finished: %s", o.statusLine())
	return nil
}

// readySet returns PENDING tasks whose dependencies are all VERIFIED.
func (o *Orchestrator) readySet() []*types.TaskNode {
	o.mu.Lock()
	defer o.mu.Unlock()
	byID := make(map[int]*types.TaskNode, len(o.plan.Tasks))
	for _, t := range o.plan.Tasks {
		byID[t.ID] = t
	}
	var ready []*types.TaskNode
	for _, t := range o.plan.Tasks {
		if t.Status != types.TaskPending {
			continue
		}
		ok := true
		for _, dep := range t.DependsOn {
			if byID[dep] == nil || byID[dep].Status != types.TaskVerified {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, t)
		}
	}
	return ready
}

// skipUnreachable marks every remaining PENDING task SKIPPED.
func (o *Orchestrator) skipUnreachable() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range o.plan.Tasks {
		if t.Status == types.TaskPending {
			t.Status = types.TaskSkipped
			o.events.Emit(types.EventTaskSkipped, t.ID, "unreachable: dependency chain failed")
			logging.Orchestrator("task %d (%s) skipped: unreachable", t.ID, t.File)
		}
	}
	o.events.Emit(types.EventDeadlock, 0, "no runnable tasks remained")
}

func (o *Orchestrator) countStatus(status types.TaskStatus) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, t := range o.plan.Tasks {
		if t.Status == status {
			n++
		}
	}
	return n
}

func (o *Orchestrator) setStatus(t *types.TaskNode, status types.TaskStatus) {
	o.mu.Lock()
	t.Status = status
	o.mu.Unlock()
}

// resetNonTerminal downgrades every interrupted task to PENDING.
func (o *Orchestrator) resetNonTerminal() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range o.plan.Tasks {
		if !t.Status.Terminal() {
			t.Status = types.TaskPending
		}
	}
}

// cancelled persists state with all non-terminal tasks reset to PENDING.
func (o *Orchestrator) cancelled(ctx context.Context) error {
	o.resetNonTerminal()
	o.events.Emit(types.EventCancelled, 0, "build cancelled")
	if err := o.persist(); err != nil {
		logging.OrchestratorWarn("session save on cancel failed: %v", err)
	}
	return fmt.Errorf("%w: %v", types.ErrCancelled, ctx.Err())
}

// persist snapshots plan, memory, and histories into the session file.
func (o *Orchestrator) persist() error {
	o.mu.Lock()
	st := o.state
	if st == nil {
		o.mu.Unlock()
		return nil
	}
	st.SetPlan(o.plan)
	o.mu.Unlock()

	st.Histories = o.mem.Histories()
	st.Failures = o.mem.AllFailures()
	st.Embeddings = o.mem.Embeddings()
	st.Hashes = o.mem.Hashes()

	if err := o.store.Save(st); err != nil {
		return err
	}
	o.events.Emit(types.EventSessionSaved, 0, o.store.Path())
	return nil
}

func (o *Orchestrator) statusLine() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	counts := map[types.TaskStatus]int{}
	for _, t := range o.plan.Tasks {
		counts[t.Status]++
	}
	return fmt.Sprintf("verified=%d failed=%d skipped=%d",
		counts[types.TaskVerified], counts[types.TaskFailed], counts[types.TaskSkipped])
}
