package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codeforge/internal/logging"
	"codeforge/internal/roles"
	"codeforge/internal/types"
)

// strategyForAttempt is the escalation table: attempts 1-3 patch, 4-5 deep
// analysis, 6 regeneration, 7 simplification, 8 research.
func strategyForAttempt(attempt int) types.StrategyCode {
	switch {
	case attempt <= 3:
		return types.StrategyTargetedPatch
	case attempt <= 5:
		return types.StrategyDeepAnalysis
	case attempt == 6:
		return types.StrategyRegenerate
	case attempt == 7:
		return types.StrategySimplify
	default:
		return types.StrategyResearch
	}
}

// strategyLadder is the escalation order used when the table's choice is
// forbidden.
var strategyLadder = []types.StrategyCode{
	types.StrategyTargetedPatch,
	types.StrategyDeepAnalysis,
	types.StrategyRegenerate,
	types.StrategySimplify,
	types.StrategyResearch,
}

// chooseStrategy applies the attempt table under the analyzer's forbid list,
// advancing along the ladder when the tabled choice is forbidden.
func chooseStrategy(attempt int, forbidden []types.StrategyCode) types.StrategyCode {
	banned := make(map[types.StrategyCode]bool, len(forbidden))
	for _, f := range forbidden {
		banned[f] = true
	}

	choice := strategyForAttempt(attempt)
	if !banned[choice] {
		return choice
	}
	start := 0
	for i, s := range strategyLadder {
		if s == choice {
			start = i
			break
		}
	}
	for i := 1; i <= len(strategyLadder); i++ {
		next := strategyLadder[(start+i)%len(strategyLadder)]
		if !banned[next] {
			return next
		}
	}
	// Everything forbidden: the table wins.
	return choice
}

// guidedBudget is how many further attempts a guided-fix escalation grants.
const guidedBudget = 3

// fixLoop repairs a failing task: analyze, pick a strategy, patch, re-verify.
// Only failed attempts count against MaxTaskFailures and enter the failure
// log; a passing re-verification is terminal and unrecorded.
func (o *Orchestrator) fixLoop(ctx context.Context, task *types.TaskNode, res types.VerificationResult) error {
	hint := ""

	for {
		o.mu.Lock()
		if task.FailureCount >= types.MaxTaskFailures {
			o.mu.Unlock()
			done, err := o.escalate(ctx, task, res, &hint)
			if done || err != nil {
				return err
			}
			// Guided retry granted: run a bounded extra loop.
			return o.guidedLoop(ctx, task, res, hint)
		}
		attempt := task.FailureCount + 1
		o.mu.Unlock()

		var err error
		res, err = o.fixAttempt(ctx, task, res, attempt, hint)
		if err != nil {
			return err
		}
		if res.Passed {
			return o.markVerified(task)
		}
	}
}

// guidedLoop runs up to guidedBudget more attempts after a guided-fix (or
// retry) escalation, with the user's hint in the analyzer context. The
// failure counter stays at its cap.
func (o *Orchestrator) guidedLoop(ctx context.Context, task *types.TaskNode, res types.VerificationResult, hint string) error {
	for i := 1; i <= guidedBudget; i++ {
		attempt := types.MaxTaskFailures + i
		var err error
		res, err = o.fixAttempt(ctx, task, res, attempt, hint)
		if err != nil {
			return err
		}
		if res.Passed {
			return o.markVerified(task)
		}
	}

	o.setStatus(task, types.TaskFailed)
	o.events.Emit(types.EventTaskFailed, task.ID, "guided fix exhausted: "+res.Summary())
	return nil
}

// fixAttempt runs one analyze -> strategy -> patch -> re-verify cycle. A
// failed attempt bumps the failure counter and enters the failure log; a
// passing re-verification does neither.
func (o *Orchestrator) fixAttempt(ctx context.Context, task *types.TaskNode, res types.VerificationResult, attempt int, hint string) (types.VerificationResult, error) {
	prevSummary := res.Summary()

	analysis, err := o.engine.Analyze(ctx, task, prevSummary, o.mem.AttemptedStrategies(task.ID), hint)
	if err != nil {
		if errors.Is(err, types.ErrCancelled) || errors.Is(err, types.ErrModelUnavailable) {
			return res, err
		}
		logging.OrchestratorWarn("task %d: analyzer failed (%v), proceeding without diagnosis", task.ID, err)
		analysis = roles.Analysis{RootCause: prevSummary}
	}

	strategy := chooseStrategy(attempt, analysis.ForbidStrategies)
	logging.Orchestrator("task %d: fix attempt %d, strategy %s", task.ID, attempt, strategy)

	if err := o.applyStrategy(ctx, task, strategy, analysis, prevSummary, hint); err != nil {
		if errors.Is(err, types.ErrParse) {
			// Unusable patch counts as an attempt that changed nothing.
			o.failAttempt(task, attempt, prevSummary, analysis, strategy, types.OutcomeUnchanged)
			return res, nil
		}
		return res, err
	}

	newRes := o.verifier.Verify(ctx, task.File)
	if newRes.Passed {
		// The success itself is unrecorded.
		return newRes, nil
	}

	outcome := types.OutcomeRegressed
	if newRes.Summary() == prevSummary {
		outcome = types.OutcomeUnchanged
	}
	o.failAttempt(task, attempt, prevSummary, analysis, strategy, outcome)

	o.mu.Lock()
	task.LastError = newRes.Summary()
	o.mu.Unlock()
	return newRes, nil
}

// failAttempt counts a failed fix attempt and appends its record. The
// counter never exceeds its cap, so guided attempts keep failure_count at
// MaxTaskFailures.
func (o *Orchestrator) failAttempt(task *types.TaskNode, attempt int, verifierSummary string, analysis roles.Analysis, strategy types.StrategyCode, outcome types.FailureOutcome) {
	o.mu.Lock()
	if task.FailureCount < types.MaxTaskFailures {
		task.FailureCount++
	}
	o.mu.Unlock()
	o.mem.AppendFailure(types.FailureRecord{
		TaskID:    task.ID,
		Attempt:   attempt,
		Verifier:  truncate(verifierSummary, 500),
		Diagnosis: analysis.RootCause,
		Strategy:  strategy,
		Outcome:   outcome,
		At:        time.Now(),
	})
}

// applyStrategy rewrites the task's file (and, for strategy B dependency
// issues, its dependency files) according to the selected strategy.
func (o *Orchestrator) applyStrategy(ctx context.Context, task *types.TaskNode, strategy types.StrategyCode, analysis roles.Analysis, verifierSummary, hint string) error {
	current := o.readTaskFile(task)

	var b strings.Builder
	fmt.Fprintf(&b, "The verifier rejected this file:\n%s\n", verifierSummary)
	if analysis.RootCause != "" {
		fmt.Fprintf(&b, "\nDiagnosis: %s\n", analysis.RootCause)
	}
	if hint != "" {
		fmt.Fprintf(&b, "\nUser guidance: %s\n", hint)
	}

	switch strategy {
	case types.StrategyTargetedPatch:
		b.WriteString("\nApply the minimal change that fixes the diagnosis. Keep everything else as it is.\n")

	case types.StrategyDeepAnalysis:
		if dependents := o.Plan().Dependents(task.ID); len(dependents) > 0 {
			fmt.Fprintf(&b, "\nFiles that depend on this one: %v. The fix must keep their expectations intact.\n", dependents)
		}
		b.WriteString("\nConsider the file's place in the dependency graph; the defect may be an interface mismatch.\n")
		if analysis.IsDependencyIssue {
			if err := o.patchDependencies(ctx, task, analysis.RootCause); err != nil {
				return err
			}
		}

	case types.StrategyRegenerate:
		b.WriteString("\nDiscard the current content and regenerate the complete file from scratch.\n")
		if failures := o.mem.Failures(task.ID); len(failures) > 0 {
			b.WriteString("Previous attempts and their outcomes:\n")
			for _, f := range failures {
				fmt.Fprintf(&b, "- strategy %s: %s (%s)\n", f.Strategy, f.Diagnosis, f.Outcome)
			}
		}

	case types.StrategySimplify:
		b.WriteString("\nRegenerate a minimal version that prioritizes compiling and running over features. Mark elided behaviour with TODO comments.\n")

	case types.StrategyResearch:
		if guidance := o.engine.ResearchGuidance(ctx, verifierSummary); guidance != "" {
			fmt.Fprintf(&b, "\nRetrieved guidance:\n%s\n", guidance)
		}
		b.WriteString("\nRegenerate the file using the guidance above.\n")
	}

	patched, err := o.engine.Patch(ctx, task, current, b.String())
	if err != nil {
		return err
	}
	return o.writeTaskFile(task, patched)
}

// patchDependencies rewrites the task's dependency files when the analyzer
// locates the defect there.
func (o *Orchestrator) patchDependencies(ctx context.Context, task *types.TaskNode, rootCause string) error {
	plan := o.Plan()
	for _, depID := range task.DependsOn {
		dep := plan.Task(depID)
		if dep == nil {
			continue
		}
		current := o.readTaskFile(dep)
		instructions := fmt.Sprintf("A file depending on this one (%s) fails verification. Diagnosis: %s\nAdjust this file so its dependents work, preserving its own behaviour.", task.File, rootCause)
		patched, err := o.engine.Patch(ctx, dep, current, instructions)
		if err != nil {
			if errors.Is(err, types.ErrParse) {
				continue
			}
			return err
		}
		if err := o.writeTaskFile(dep, patched); err != nil {
			return err
		}
		logging.Orchestrator("task %d: dependency %s patched", task.ID, dep.File)
	}
	return nil
}

// escalate emits the escalation event and applies the decision. done=true
// means the task reached a terminal state (or the build pauses via err).
func (o *Orchestrator) escalate(ctx context.Context, task *types.TaskNode, res types.VerificationResult, hint *string) (bool, error) {
	o.events.Emit(types.EventEscalation, task.ID, res.Summary())
	logging.Orchestrator("task %d: fix budget exhausted, escalating", task.ID)

	decision := o.cfg.Escalate(task, res.Summary())
	switch decision.Choice {
	case types.EscalationGuidedFix:
		*hint = decision.Hint
		return false, nil
	case types.EscalationRetry:
		*hint = ""
		return false, nil
	case types.EscalationPause:
		return true, ErrPaused
	default: // skip
		o.setStatus(task, types.TaskFailed)
		o.events.Emit(types.EventTaskFailed, task.ID, "skipped at escalation: "+res.Summary())
		return true, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
