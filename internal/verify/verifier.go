// Package verify runs per-language static checks against generated files and
// detects/executes a project's run command. Checks shell out to each
// language's own toolchain; files with no registered checks pass by default.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"codeforge/internal/logging"
	"codeforge/internal/types"
)

// Verifier runs static checks and subprocesses inside one workspace.
type Verifier struct {
	workspace  string
	runTimeout time.Duration
}

// New creates a verifier rooted at the workspace.
func New(workspace string, runTimeout time.Duration) *Verifier {
	if runTimeout <= 0 {
		runTimeout = 120 * time.Second
	}
	return &Verifier{workspace: workspace, runTimeout: runTimeout}
}

// Verify runs the static checks registered for the file's extension.
func (v *Verifier) Verify(ctx context.Context, path string) types.VerificationResult {
	timer := logging.StartTimer(logging.CategoryVerifier, "Verify("+path+")")
	defer timer.Stop()

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(v.workspace, path)
	}

	res := types.VerificationResult{Passed: true, Checks: map[string]types.CheckResult{}}
	if _, err := os.Stat(abs); err != nil {
		res.Passed = false
		res.Checks["exists"] = types.CheckResult{Passed: false, Detail: err.Error()}
		return res
	}

	switch strings.ToLower(filepath.Ext(abs)) {
	case ".py":
		v.checkPython(ctx, abs, &res)
	case ".js", ".ts", ".mjs", ".cjs":
		v.checkNode(ctx, abs, &res)
	case ".json":
		v.checkJSON(abs, &res)
	default:
		res.Checks["default"] = types.CheckResult{Passed: true, Detail: "no checks registered"}
	}

	for _, c := range res.Checks {
		if !c.Passed {
			res.Passed = false
		}
	}
	if !res.Passed {
		logging.Verifier("verification failed for %s: %s", path, res.Summary())
	}
	return res
}

// checkPython compiles the file with the interpreter's own syntax check and
// then runs the preferred linter, falling back to the secondary one.
func (v *Verifier) checkPython(ctx context.Context, abs string, res *types.VerificationResult) {
	py := firstInPath("python3", "python")
	if py == "" {
		res.Checks["syntax"] = types.CheckResult{Passed: true, Detail: "skipped: python not installed"}
		return
	}

	out, err := v.capture(ctx, py, "-m", "py_compile", abs)
	if err != nil {
		res.Checks["syntax"] = types.CheckResult{Passed: false, Detail: out}
		res.Errors = append(res.Errors, StructuredErrors(out)...)
		return
	}
	res.Checks["syntax"] = types.CheckResult{Passed: true}

	linter := firstInPath("ruff", "pyflakes")
	if linter == "" {
		return
	}
	args := []string{abs}
	if filepath.Base(linter) == "ruff" {
		args = []string{"check", abs}
	}
	out, err = v.capture(ctx, linter, args...)
	if err != nil {
		res.Checks["lint"] = types.CheckResult{Passed: false, Detail: out}
		res.Errors = append(res.Errors, StructuredErrors(out)...)
		return
	}
	res.Checks["lint"] = types.CheckResult{Passed: true}
}

// checkNode syntax-checks with node --check.
func (v *Verifier) checkNode(ctx context.Context, abs string, res *types.VerificationResult) {
	node := firstInPath("node")
	if node == "" {
		res.Checks["syntax"] = types.CheckResult{Passed: true, Detail: "skipped: node not installed"}
		return
	}
	// TypeScript is outside node --check; syntax-check the JS family only.
	if ext := strings.ToLower(filepath.Ext(abs)); ext == ".ts" {
		res.Checks["syntax"] = types.CheckResult{Passed: true, Detail: "skipped: no typescript checker"}
		return
	}
	out, err := v.capture(ctx, node, "--check", abs)
	if err != nil {
		res.Checks["syntax"] = types.CheckResult{Passed: false, Detail: out}
		res.Errors = append(res.Errors, StructuredErrors(out)...)
		return
	}
	res.Checks["syntax"] = types.CheckResult{Passed: true}
}

// checkJSON parses the document.
func (v *Verifier) checkJSON(abs string, res *types.VerificationResult) {
	data, err := os.ReadFile(abs)
	if err != nil {
		res.Checks["parse"] = types.CheckResult{Passed: false, Detail: err.Error()}
		return
	}
	if !json.Valid(data) {
		var probe any
		detail := "invalid JSON"
		if err := json.Unmarshal(data, &probe); err != nil {
			detail = err.Error()
		}
		res.Checks["parse"] = types.CheckResult{Passed: false, Detail: detail}
		return
	}
	res.Checks["parse"] = types.CheckResult{Passed: true}
}

// capture runs a short-lived check command and returns combined output.
func (v *Verifier) capture(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, v.runTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = v.workspace
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return string(out), fmt.Errorf("%w: %s", types.ErrSubprocessTimeout, name)
	}
	return string(out), err
}

// firstInPath returns the first binary found in PATH, or "".
func firstInPath(names ...string) string {
	for _, n := range names {
		if p, err := exec.LookPath(n); err == nil {
			return p
		}
	}
	return ""
}
