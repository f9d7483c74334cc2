// Package roles implements the four model-facing behaviors - Planner, Coder,
// Reviewer, Analyzer - as thin wrappers around the model client: a stable
// system prompt, an output schema, and a parser each. Every call is routed
// through the model router.
package roles

import (
	"context"
	"fmt"
	"strings"

	"codeforge/internal/logging"
	"codeforge/internal/memory"
	"codeforge/internal/ollama"
	"codeforge/internal/types"
)

// ChatClient is the slice of the ollama client the roles need.
type ChatClient interface {
	Chat(ctx context.Context, model string, messages []types.Message, opts ollama.Options, onToken func(string)) (ollama.Result, error)
}

// Resolver is the slice of the router the roles need.
type Resolver interface {
	Resolve(ctx context.Context, role types.Role, complexity types.Complexity, size types.Size) (types.ModelSpec, error)
	Fastest(ctx context.Context) (types.ModelSpec, error)
}

// Engine binds the role behaviors to one classified request.
type Engine struct {
	client     ChatClient
	resolver   Resolver
	mem        *memory.Memory
	complexity types.Complexity
	size       types.Size
	researcher Researcher
}

// NewEngine creates a role engine. It starts with NoopResearcher, so strategy
// E proceeds without retrieved guidance until SetResearcher attaches a
// provider.
func NewEngine(client ChatClient, resolver Resolver, mem *memory.Memory) *Engine {
	return &Engine{
		client:     client,
		resolver:   resolver,
		mem:        mem,
		complexity: types.ComplexityMedium,
		size:       types.SizeMedium,
		researcher: NoopResearcher{},
	}
}

// SetProfile fixes the classified complexity/size used for routing.
func (e *Engine) SetProfile(complexity types.Complexity, size types.Size) {
	e.complexity = complexity
	e.size = size
}

// SetResearcher attaches the external research provider.
func (e *Engine) SetResearcher(r Researcher) {
	if r != nil {
		e.researcher = r
	}
}

// call routes one prompt through the router and model client, recording the
// exchange in the role's bounded history.
func (e *Engine) call(ctx context.Context, role types.Role, system, user string) (string, error) {
	spec, err := e.resolver.Resolve(ctx, role, e.complexity, e.size)
	if err != nil {
		return "", err
	}
	opts := ollama.DefaultOptions(role, spec, e.size)

	logging.Roles("%s -> %s (temp=%.2f)", role, spec.Name, opts.Temperature)

	messages := []types.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	res, err := e.client.Chat(ctx, spec.Name, messages, opts, nil)
	if err != nil {
		return res.Text, err
	}

	e.mem.AppendHistory(role, types.Message{Role: "user", Content: truncate(user, 2000)})
	e.mem.AppendHistory(role, types.Message{Role: "assistant", Content: truncate(res.Text, 2000)})
	return res.Text, nil
}

// Label implements classify.LabelModel using the fastest installed model.
func (e *Engine) Label(ctx context.Context, prompt string) (string, error) {
	spec, err := e.resolver.Fastest(ctx)
	if err != nil {
		return "", err
	}
	opts := ollama.DefaultOptions(types.RoleClassifier, spec, types.SizeSmall)
	res, err := e.client.Chat(ctx, spec.Name, []types.Message{
		{Role: "user", Content: prompt},
	}, opts, nil)
	return res.Text, err
}

// extractJSON pulls the first JSON object out of a model answer, tolerating
// fences and surrounding prose.
func extractJSON(s string) (string, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object in output", types.ErrParse)
	}
	return s[start : end+1], nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
