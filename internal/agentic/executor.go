// Package agentic implements the single-shot autonomous path: one model
// call, parsed into file writes and shell commands, applied to the
// workspace, run, and auto-fixed on failure.
package agentic

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"codeforge/internal/logging"
	"codeforge/internal/parse"
	"codeforge/internal/types"
	"codeforge/internal/verify"
	"codeforge/internal/workspace"
)

// maxAutoFixRetries bounds the error-feedback loop before the failure is
// surfaced to the user.
const maxAutoFixRetries = 3

// Caller is the slice of the role engine the executor needs.
type Caller interface {
	Agentic(ctx context.Context, prompt string) (string, error)
}

// Runner is the slice of the verifier the executor needs.
type Runner interface {
	Run(ctx context.Context, command string, timeout time.Duration) (verify.RunResult, error)
	RunBackground(ctx context.Context, command string) (*exec.Cmd, error)
}

// Result summarizes one agentic execution.
type Result struct {
	FilesWritten []string
	Display      string
	Fixed        bool // a non-zero exit was repaired by the auto-fix loop
}

// Executor runs agentic requests against one workspace.
type Executor struct {
	root       string
	caller     Caller
	runner     Runner
	events     *types.EventLog
	runTimeout time.Duration
}

// New creates an executor.
func New(root string, caller Caller, runner Runner, events *types.EventLog, runTimeout time.Duration) *Executor {
	if runTimeout <= 0 {
		runTimeout = 120 * time.Second
	}
	return &Executor{root: root, caller: caller, runner: runner, events: events, runTimeout: runTimeout}
}

// Execute performs the generate -> apply -> run -> auto-fix cycle.
func (e *Executor) Execute(ctx context.Context, prompt string) (Result, error) {
	timer := logging.StartTimer(logging.CategoryAgentic, "Execute")
	defer timer.StopWithInfo()

	var result Result
	current := prompt

	for attempt := 0; ; attempt++ {
		raw, err := e.caller.Agentic(ctx, current)
		if err != nil {
			return result, err
		}

		parsed := parse.Parse(raw)
		result.Display = parsed.Display

		for _, dropped := range parsed.Dropped {
			e.events.Emit(types.EventDangerousCommand, 0, dropped)
			logging.Agentic("dangerous command dropped: %s", dropped)
		}

		if err := e.apply(parsed.Files, &result); err != nil {
			return result, err
		}

		failure, err := e.dispatch(ctx, parsed.Commands)
		if err != nil {
			return result, err
		}
		if failure == "" {
			if attempt > 0 {
				result.Fixed = true
			}
			return result, nil
		}

		if attempt >= maxAutoFixRetries {
			logging.Agentic("auto-fix budget exhausted after %d retries", attempt)
			return result, fmt.Errorf("command failed after %d auto-fix retries: %s", attempt, failure)
		}

		logging.Agentic("auto-fix retry %d", attempt+1)
		current = fmt.Sprintf("%s\n\nThe previous attempt failed. Command output:\n%s\n\nFix the files and emit them again, followed by the commands to run.", prompt, failure)
	}
}

// apply writes every extracted file through the atomic helper.
func (e *Executor) apply(files []parse.FileWrite, result *Result) error {
	for _, f := range files {
		if err := workspace.WriteFileAtomic(e.root, f.Path, f.Content); err != nil {
			return err
		}
		e.events.Emit(types.EventFileWritten, 0, f.Path)
		logging.Agentic("wrote %s (%d bytes)", f.Path, len(f.Content))
		result.FilesWritten = append(result.FilesWritten, f.Path)
	}
	return nil
}

// dispatch runs commands in order. The first non-zero foreground exit stops
// the remaining foreground commands; background commands are unaffected.
// Returns the captured failure output, or "" when everything succeeded.
func (e *Executor) dispatch(ctx context.Context, commands []parse.Command) (string, error) {
	stopped := false
	var failure string

	for _, cmd := range commands {
		if cmd.Background {
			if _, err := e.runner.RunBackground(ctx, cmd.Command); err != nil {
				logging.Agentic("background start failed: %v", err)
			}
			continue
		}
		if stopped {
			continue
		}

		e.events.Emit(types.EventCommandDispatch, 0, cmd.Command)
		res, err := e.runner.Run(ctx, cmd.Command, e.runTimeout)
		if err != nil && !errors.Is(err, types.ErrSubprocessTimeout) {
			return "", err
		}
		if res.Exit != 0 || err != nil {
			stopped = true
			failure = formatFailure(cmd.Command, res, err)
			e.events.Emit(types.EventCommandFailed, 0, cmd.Command)
			logging.Agentic("command failed (exit %d): %s", res.Exit, cmd.Command)
		}
	}
	return failure, nil
}

func formatFailure(command string, res verify.RunResult, err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "$ %s\nexit status %d\n", command, res.Exit)
	if err != nil {
		fmt.Fprintf(&b, "%v\n", err)
	}
	if res.Stdout != "" {
		fmt.Fprintf(&b, "stdout:\n%s\n", res.Stdout)
	}
	if res.Stderr != "" {
		fmt.Fprintf(&b, "stderr:\n%s\n", res.Stderr)
	}
	return b.String()
}
