package roles

import (
	"context"
	"fmt"

	"codeforge/internal/types"
)

const agenticSystemPrompt = `You are an autonomous coding agent working directly in the user's workspace.

For every file you create or change, emit:
===FILE: <relative-path>===
<complete file content>
===END===

For every command to run afterwards, emit:
===RUN: <shell command>===
or, for servers and other long-lived processes:
===BACKGROUND: <shell command>===

Rules:
- Emit complete files, never fragments.
- Emit commands in the order they must run.
- Anything outside these blocks is shown to the user as commentary.`

// Agentic performs the single-shot autonomous call: one prompt in, file
// blocks and command blocks out.
func (e *Engine) Agentic(ctx context.Context, prompt string) (string, error) {
	raw, err := e.call(ctx, types.RoleAgentic, agenticSystemPrompt, prompt)
	if err != nil {
		return raw, fmt.Errorf("agentic call: %w", err)
	}
	return raw, nil
}
