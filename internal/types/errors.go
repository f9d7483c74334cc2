package types

import "errors"

// Sentinel errors shared across the engine. Components wrap these with
// context via fmt.Errorf("...: %w", err); callers branch with errors.Is.
var (
	// ErrTransport means the model server was unreachable.
	ErrTransport = errors.New("model server unreachable")

	// ErrModelMissing means the server reported the model is not installed.
	ErrModelMissing = errors.New("model not installed")

	// ErrModelUnavailable means routing found no installed model at all.
	ErrModelUnavailable = errors.New("no model available")

	// ErrCancelled means the caller aborted; partial output may be attached.
	ErrCancelled = errors.New("cancelled")

	// ErrParse means no parse strategy produced usable output.
	ErrParse = errors.New("unparseable model output")

	// ErrDangerousCommand means the safety filter rejected a shell command.
	ErrDangerousCommand = errors.New("dangerous command rejected")

	// ErrPlanInvariant means the plan violated a structural invariant
	// (duplicate file paths or a dependency cycle).
	ErrPlanInvariant = errors.New("plan invariant violated")

	// ErrSubprocessTimeout means a run command exceeded its deadline.
	ErrSubprocessTimeout = errors.New("subprocess timed out")
)
