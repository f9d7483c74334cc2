package memory

import (
	"context"
	"fmt"
	"strings"

	"codeforge/internal/types"
)

// The slicing contract: each role sees exactly the layers it needs, never a
// raw dump of another role's conversation.

// CoderContext assembles the context for generating one file: architecture
// summary, spec slots, the file's dependency files, and the top-k
// semantically related files when embeddings are available.
func (m *Memory) CoderContext(ctx context.Context, task *types.TaskNode) string {
	var b strings.Builder

	if s := m.Summary(); s != "" {
		b.WriteString("## Architecture\n")
		b.WriteString(s)
		b.WriteString("\n\n")
	}

	m.mu.RLock()
	slots := m.specSlots
	m.mu.RUnlock()
	writeSlot := func(name, val string) {
		if val != "" {
			fmt.Fprintf(&b, "## %s\n%s\n\n", name, val)
		}
	}
	writeSlot("Database Schema", slots.DatabaseSchema)
	writeSlot("API Surface", slots.APISurface)
	writeSlot("Auth Flow", slots.AuthFlow)
	writeSlot("Deployment", slots.Deployment)

	deps := m.Dependencies(task.File)
	if len(deps) > 0 {
		b.WriteString("## Dependencies\n")
		budget := maxDepContextBytes / len(deps)
		index := m.FileIndex()
		for _, dep := range deps {
			fmt.Fprintf(&b, "### %s - %s\n", dep, index[dep])
			if content := m.readWorkspaceFile(dep, budget); content != "" {
				fmt.Fprintf(&b, "```\n%s\n```\n", strings.TrimRight(content, "\n"))
			}
		}
		b.WriteString("\n")
	}

	related := m.TopK(ctx, task.Description, 3)
	if len(related) > 0 {
		index := m.FileIndex()
		b.WriteString("## Related files\n")
		for _, path := range related {
			if path == task.File {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", path, index[path])
		}
	}

	return b.String()
}

// ReviewerContext assembles the context for reviewing one file: the content
// under review plus the architecture summary.
func (m *Memory) ReviewerContext(path, content string) string {
	var b strings.Builder
	if s := m.Summary(); s != "" {
		b.WriteString("## Architecture\n")
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "## File under review: %s\n```\n%s\n```\n", path, strings.TrimRight(content, "\n"))
	return b.String()
}

// AnalyzerContext assembles the context for diagnosing a failure: the
// verifier output, this task's failure log, and the architecture summary.
func (m *Memory) AnalyzerContext(taskID int, verifierOutput string) string {
	var b strings.Builder
	if s := m.Summary(); s != "" {
		b.WriteString("## Architecture\n")
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	b.WriteString("## Verifier output\n")
	b.WriteString(verifierOutput)
	b.WriteString("\n")

	if failures := m.Failures(taskID); len(failures) > 0 {
		b.WriteString("\n## Previous attempts\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "- attempt %d, strategy %s, outcome %s: %s\n",
				f.Attempt, f.Strategy, f.Outcome, f.Diagnosis)
		}
	}
	return b.String()
}

// PlannerContext assembles the refinement context: the original request plus
// the accumulated failure log.
func (m *Memory) PlannerContext(request string) string {
	var b strings.Builder
	b.WriteString("## Request\n")
	b.WriteString(request)
	b.WriteString("\n")

	if failures := m.AllFailures(); len(failures) > 0 {
		b.WriteString("\n## Failures so far\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "- task %d attempt %d (%s): %s\n", f.TaskID, f.Attempt, f.Strategy, f.Verifier)
		}
	}
	return b.String()
}
