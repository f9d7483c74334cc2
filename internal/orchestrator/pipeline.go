package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"codeforge/internal/logging"
	"codeforge/internal/roles"
	"codeforge/internal/types"
	"codeforge/internal/workspace"
)

// runTask drives one task through the full pipeline:
// generate -> review loop -> verify -> fix loop.
func (o *Orchestrator) runTask(ctx context.Context, task *types.TaskNode) error {
	timer := logging.StartTimer(logging.CategoryOrchestrator, fmt.Sprintf("task %d (%s)", task.ID, task.File))
	defer timer.StopWithInfo()

	o.setStatus(task, types.TaskInProgress)
	o.events.Emit(types.EventTaskStarted, task.ID, task.File)

	content, err := o.generateWithRetry(ctx, task)
	if err != nil {
		return err
	}
	if content == "" {
		// Generation budget exhausted; the task was already marked FAILED.
		return nil
	}

	if err := o.writeTaskFile(task, content); err != nil {
		return err
	}
	o.setStatus(task, types.TaskGenerated)
	o.events.Emit(types.EventTaskGenerated, task.ID, task.File)

	content, err = o.reviewLoop(ctx, task, content)
	if err != nil {
		return err
	}
	o.setStatus(task, types.TaskReviewed)
	o.events.Emit(types.EventTaskReviewed, task.ID, task.File)

	res := o.verifier.Verify(ctx, task.File)
	if res.Passed {
		return o.markVerified(task)
	}

	o.setStatus(task, types.TaskNeedsFix)
	o.events.Emit(types.EventTaskNeedsFix, task.ID, res.Summary())
	return o.fixLoop(ctx, task, res)
}

// generateWithRetry calls the coder, counting unparseable output against the
// task's failure budget. Returns ("", nil) when the budget ran out and the
// task was marked FAILED.
func (o *Orchestrator) generateWithRetry(ctx context.Context, task *types.TaskNode) (string, error) {
	for {
		content, err := o.engine.Generate(ctx, task, o.Plan().TechStack)
		if err == nil {
			return content, nil
		}
		if !errors.Is(err, types.ErrParse) {
			return "", err
		}

		o.mu.Lock()
		task.FailureCount++
		task.LastError = err.Error()
		exhausted := task.FailureCount >= types.MaxTaskFailures
		o.mu.Unlock()
		logging.OrchestratorWarn("task %d: unparseable coder output (failure %d)", task.ID, task.FailureCount)

		if exhausted {
			o.setStatus(task, types.TaskFailed)
			o.events.Emit(types.EventTaskFailed, task.ID, "coder output never parseable")
			return "", nil
		}
	}
}

// reviewLoop runs at most MaxReviewRounds of review -> patch -> re-review.
// Review failures are logged, never fatal: the verifier has the final say.
func (o *Orchestrator) reviewLoop(ctx context.Context, task *types.TaskNode, content string) (string, error) {
	for round := 1; round <= roles.MaxReviewRounds; round++ {
		o.setStatus(task, types.TaskReviewing)

		rev, err := o.engine.Review(ctx, task.File, content)
		if err != nil {
			if errors.Is(err, types.ErrCancelled) {
				return content, err
			}
			logging.OrchestratorWarn("task %d: review round %d failed: %v", task.ID, round, err)
			return content, nil
		}

		o.mu.Lock()
		task.LastReview = rev.Summary
		o.mu.Unlock()

		if !rev.Blocking() {
			return content, nil
		}
		logging.Orchestrator("task %d: review round %d blocked: %s", task.ID, round, rev.Summary)

		patched, err := o.engine.Patch(ctx, task, content, rev.Instructions())
		if err != nil {
			if errors.Is(err, types.ErrParse) {
				logging.OrchestratorWarn("task %d: review patch unparseable, keeping previous content", task.ID)
				return content, nil
			}
			return content, err
		}
		content = patched
		if err := o.writeTaskFile(task, content); err != nil {
			return content, err
		}
	}
	return content, nil
}

// markVerified finishes a task: record the content hash so an unchanged
// re-run can prove there is nothing to do.
func (o *Orchestrator) markVerified(task *types.TaskNode) error {
	if err := o.mem.RecordHash(task.File); err != nil {
		logging.OrchestratorWarn("task %d: hash record failed: %v", task.ID, err)
	}
	o.setStatus(task, types.TaskVerified)
	o.events.Emit(types.EventTaskVerified, task.ID, task.File)
	logging.Orchestrator("task %d (%s) verified", task.ID, task.File)
	return nil
}

// writeTaskFile routes every workspace write through the atomic helper.
func (o *Orchestrator) writeTaskFile(task *types.TaskNode, content string) error {
	if err := workspace.WriteFileAtomic(o.workspace, task.File, content); err != nil {
		return err
	}
	o.events.Emit(types.EventFileWritten, task.ID, task.File)
	return nil
}

// readTaskFile loads the task's current on-disk content.
func (o *Orchestrator) readTaskFile(task *types.TaskNode) string {
	data, err := os.ReadFile(filepath.Join(o.workspace, task.File))
	if err != nil {
		return ""
	}
	return string(data)
}
