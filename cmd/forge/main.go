// Command forge is the codeforge launcher: an autonomous code-generation
// engine driven by a local model server.
//
// Modes:
//
//	forge agent "build a forum"   autonomous mode (default)
//	forge chat  "how does X work" read-only chat
//
// Exit codes: 0 success, 1 engine error, 2 user abort, 3 model unavailable.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"codeforge/internal/config"
	"codeforge/internal/logging"
	"codeforge/internal/types"
)

const (
	exitOK               = 0
	exitEngineError      = 1
	exitUserAbort        = 2
	exitModelUnavailable = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		workspaceFlag  string
		fanOutFlag     int
		nonInteractive bool
	)

	root := &cobra.Command{
		Use:           "forge [prompt]",
		Short:         "Autonomous code generation against a local model server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Bare invocation defaults to agent mode.
			return runAgent(cmd.Context(), strings.Join(args, " "), workspaceFlag, fanOutFlag, nonInteractive)
		},
	}
	root.PersistentFlags().StringVarP(&workspaceFlag, "workspace", "w", "", "workspace directory (default: settings output_dir)")
	root.PersistentFlags().IntVar(&fanOutFlag, "fan-out", 0, "parallel tasks per wave (default: settings fan_out)")
	root.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt; skip at escalation")

	agentCmd := &cobra.Command{
		Use:   "agent [prompt]",
		Short: "Autonomous mode: plan, generate, verify, and fix a project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), strings.Join(args, " "), workspaceFlag, fanOutFlag, nonInteractive)
		},
	}
	chatCmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Read-only mode: answer without touching the workspace",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), strings.Join(args, " "), workspaceFlag)
		},
	}
	root.AddCommand(agentCmd, chatCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := root.ExecuteContext(ctx)
	logging.Shutdown()
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, types.ErrModelUnavailable):
		fmt.Fprintln(os.Stderr, "forge: no suitable model installed (is the model server running?)")
		return exitModelUnavailable
	case errors.Is(err, types.ErrCancelled), errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "forge: aborted")
		return exitUserAbort
	default:
		fmt.Fprintln(os.Stderr, "forge:", err)
		return exitEngineError
	}
}

// resolveWorkspace picks the workspace directory and makes sure it exists.
func resolveWorkspace(flag string, settings config.Settings) (string, error) {
	ws := flag
	if ws == "" {
		ws = settings.OutputDir
	}
	if err := os.MkdirAll(ws, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return ws, nil
}
