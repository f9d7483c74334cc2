package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"codeforge/internal/logging"
	"codeforge/internal/types"
)

// RunResult captures one subprocess execution.
type RunResult struct {
	Exit      int
	Stdout    string
	Stderr    string
	Truncated bool
}

// displayLineLimit bounds captured output shown per command.
const displayLineLimit = 20

// killGrace is how long a cancelled subprocess gets between SIGTERM and
// SIGKILL.
const killGrace = 5 * time.Second

// nodeEntryFiles are the conventional node entrypoints, in preference order.
var nodeEntryFiles = []string{"app.js", "index.js", "server.js", "main.js"}

// nodeEntryDirs are the common subdirectories searched for node entrypoints.
var nodeEntryDirs = []string{"server", "backend", "src", "api", "app"}

// DetectRunCommand inspects the workspace and returns the command that runs
// the project, or "" when nothing recognizable exists.
func (v *Verifier) DetectRunCommand() string {
	// 1. Python entry files.
	for _, name := range []string{"main.py", "app.py"} {
		if fileExists(filepath.Join(v.workspace, name)) {
			return pythonCmd() + " " + name
		}
	}

	// 2. package.json scripts, then its main field.
	if cmd := v.packageJSONCommand(); cmd != "" {
		return cmd
	}

	// 3. Known node entry files at the root and in common subdirectories.
	for _, name := range nodeEntryFiles {
		if fileExists(filepath.Join(v.workspace, name)) {
			return "node " + name
		}
	}
	for _, dir := range nodeEntryDirs {
		for _, name := range nodeEntryFiles {
			rel := filepath.Join(dir, name)
			if fileExists(filepath.Join(v.workspace, rel)) {
				return "node " + rel
			}
		}
	}

	// 4. An HTML entry is served statically.
	if fileExists(filepath.Join(v.workspace, "index.html")) {
		return pythonCmd() + " -m http.server 8000"
	}

	// 5. Any python file at all.
	entries, err := os.ReadDir(v.workspace)
	if err == nil {
		var pys []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".py") {
				pys = append(pys, e.Name())
			}
		}
		if len(pys) > 0 {
			sort.Strings(pys)
			return pythonCmd() + " " + pys[0]
		}
	}
	return ""
}

// packageJSONCommand reads package.json for a start/dev script or a main
// field. A malformed file is logged but never fatal.
func (v *Verifier) packageJSONCommand() string {
	data, err := os.ReadFile(filepath.Join(v.workspace, "package.json"))
	if err != nil {
		return ""
	}
	var pkg struct {
		Main    string            `json:"main"`
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		logging.Verifier("malformed package.json: %v", err)
		return ""
	}
	if _, ok := pkg.Scripts["start"]; ok {
		return "npm start"
	}
	if _, ok := pkg.Scripts["dev"]; ok {
		return "npm run dev"
	}
	if pkg.Main != "" && fileExists(filepath.Join(v.workspace, pkg.Main)) {
		return "node " + pkg.Main
	}
	return ""
}

// Run executes a foreground command in the workspace with a timeout. The
// whole process group receives SIGTERM on cancellation, then SIGKILL after a
// grace period.
func (v *Verifier) Run(ctx context.Context, command string, timeout time.Duration) (RunResult, error) {
	if timeout <= 0 {
		timeout = v.runTimeout
	}
	logging.Verifier("running: %s (timeout %v)", command, timeout)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = v.workspace
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid addresses the process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	exit := -1
	if cmd.ProcessState != nil {
		exit = cmd.ProcessState.ExitCode()
	}
	res := RunResult{Exit: exit}
	res.Stdout, res.Truncated = truncateLines(stdout.String(), displayLineLimit)
	var errTrunc bool
	res.Stderr, errTrunc = truncateLines(stderr.String(), displayLineLimit)
	res.Truncated = res.Truncated || errTrunc

	if ctx.Err() == context.DeadlineExceeded {
		return res, fmt.Errorf("%w: %s", types.ErrSubprocessTimeout, command)
	}
	if err != nil && res.Exit < 0 {
		return res, fmt.Errorf("run %q: %w", command, err)
	}
	return res, nil
}

// RunBackground spawns a non-blocking process (for servers). The returned
// process is detached from the run timeout; cancellation of ctx terminates
// its process group.
func (v *Verifier) RunBackground(ctx context.Context, command string) (*exec.Cmd, error) {
	logging.Verifier("starting background: %s", command)
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = v.workspace
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", command, err)
	}
	return cmd, nil
}

// truncateLines keeps the first n lines for display.
func truncateLines(s string, n int) (string, bool) {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return s, false
	}
	return strings.Join(lines[:n], "\n") + "\n... [truncated]", true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func pythonCmd() string {
	if firstInPath("python3") != "" {
		return "python3"
	}
	return "python"
}
