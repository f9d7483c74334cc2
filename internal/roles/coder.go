package roles

import (
	"context"
	"fmt"
	"strings"

	"codeforge/internal/parse"
	"codeforge/internal/types"
)

const coderSystemPrompt = `You are the coder of a code-generation engine. You write one complete file per request.

Output format, exactly:
===FILE: <relative-path>===
<complete file content>
===END===

Rules:
- Write the COMPLETE file, never a diff or a fragment.
- Use only the technology stack fixed by the plan; do not substitute alternatives.
- The file must be immediately runnable: imports first, no placeholders.
- No prose outside the file block.`

// Generate produces the initial content for a task's file.
func (e *Engine) Generate(ctx context.Context, task *types.TaskNode, stack []string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Write %s.\n\n## Purpose\n%s\n", task.File, task.Description)
	if len(stack) > 0 {
		fmt.Fprintf(&b, "\n## Technology stack (fixed)\n%s\n", strings.Join(stack, ", "))
	}
	if extra := e.mem.CoderContext(ctx, task); extra != "" {
		b.WriteString("\n")
		b.WriteString(extra)
	}
	return e.completeFile(ctx, task.File, b.String())
}

// Patch produces a full replacement for a file under a fix strategy.
func (e *Engine) Patch(ctx context.Context, task *types.TaskNode, current, instructions string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Fix %s.\n\n## Fix instructions\n%s\n\n## Current content\n```\n%s\n```\n",
		task.File, instructions, strings.TrimRight(current, "\n"))
	if extra := e.mem.CoderContext(ctx, task); extra != "" {
		b.WriteString("\n")
		b.WriteString(extra)
	}
	return e.completeFile(ctx, task.File, b.String())
}

// completeFile calls the coder model and extracts the produced file body.
// Output may be marker-delimited or a bare fenced block.
func (e *Engine) completeFile(ctx context.Context, path, user string) (string, error) {
	raw, err := e.call(ctx, types.RoleCoder, coderSystemPrompt, user)
	if err != nil {
		return "", fmt.Errorf("coder call: %w", err)
	}

	res := parse.Parse(raw)
	for _, f := range res.Files {
		if f.Path == path {
			return f.Content, nil
		}
	}
	if len(res.Files) > 0 {
		// The model renamed the file; keep the content, our path wins.
		return res.Files[0].Content, nil
	}

	// Bare fenced block or raw body with no markers at all.
	body := strings.TrimSpace(raw)
	if strings.HasPrefix(body, "```") {
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		}
		if idx := strings.LastIndex(body, "```"); idx >= 0 {
			body = body[:idx]
		}
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("%w: coder produced no file body", types.ErrParse)
	}
	return body + "\n", nil
}
