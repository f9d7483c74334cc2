package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"codeforge/internal/agentic"
	"codeforge/internal/classify"
	"codeforge/internal/config"
	"codeforge/internal/logging"
	"codeforge/internal/memory"
	"codeforge/internal/ollama"
	"codeforge/internal/orchestrator"
	"codeforge/internal/roles"
	"codeforge/internal/router"
	"codeforge/internal/session"
	"codeforge/internal/types"
	"codeforge/internal/verify"
)

// engine owns every subordinate component for one invocation. Apart from the
// logging package's shared logger set, the only process-wide resource is the
// connection pool inside the HTTP client.
type engine struct {
	settings  config.Settings
	workspace string
	client    *ollama.Client
	router    *router.Router
	mem       *memory.Memory
	roles     *roles.Engine
	verifier  *verify.Verifier
	events    *types.EventLog
	watcher   *memory.Watcher
}

// newEngine wires the component graph.
func newEngine(workspaceFlag string, fanOutFlag int) (*engine, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	if fanOutFlag > 0 {
		settings.FanOut = fanOutFlag
	}

	workspace, err := resolveWorkspace(workspaceFlag, settings)
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(workspace, settings.DebugMode); err != nil {
		return nil, err
	}
	logging.Boot("forge starting in %s", workspace)

	client := ollama.NewClient(settings.ModelEndpoint)
	rt := router.New(client)
	mem := memory.New(workspace)

	if spec, ok := rt.EmbeddingModel(context.Background()); ok {
		mem.SetEmbedder(&ollamaEmbedder{client: client, model: spec.Name})
		logging.Boot("embedding layer enabled via %s", spec.Name)
	}

	roleEngine := roles.NewEngine(client, rt, mem)

	e := &engine{
		settings:  settings,
		workspace: workspace,
		client:    client,
		router:    rt,
		mem:       mem,
		roles:     roleEngine,
		verifier:  verify.New(workspace, time.Duration(settings.RunTimeoutSeconds)*time.Second),
		events:    types.NewEventLog(printEvent),
	}

	if w, err := mem.Watch(); err == nil {
		e.watcher = w
	}
	return e, nil
}

func (e *engine) close() {
	if e.watcher != nil {
		e.watcher.Close()
	}
}

// printEvent renders engine events one per line.
func printEvent(ev types.Event) {
	if ev.TaskID != 0 {
		fmt.Printf("[%s] task %d: %s\n", ev.Code, ev.TaskID, ev.Detail)
		return
	}
	fmt.Printf("[%s] %s\n", ev.Code, ev.Detail)
}

// runAgent is the autonomous path: classify, then either a full DAG build or
// a single-shot agentic execution.
func runAgent(ctx context.Context, prompt, workspaceFlag string, fanOutFlag int, nonInteractive bool) error {
	if prompt == "" {
		return fmt.Errorf("agent mode needs a prompt")
	}

	e, err := newEngine(workspaceFlag, fanOutFlag)
	if err != nil {
		return err
	}
	defer e.close()

	classifier := classify.New(e.roles)
	complexity, size := classifier.Classify(ctx, prompt, e.workspace)
	e.roles.SetProfile(complexity, size)
	fmt.Printf("classified as %s/%s\n", complexity, size)

	if !classify.IsBuildIntent(prompt) {
		executor := agentic.New(e.workspace, e.roles, e.verifier, e.events,
			time.Duration(e.settings.RunTimeoutSeconds)*time.Second)
		res, err := executor.Execute(ctx, prompt)
		if res.Display != "" {
			fmt.Println(res.Display)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%d file(s) written\n", len(res.FilesWritten))
		return nil
	}

	cfg := orchestrator.Config{FanOut: e.settings.FanOut}
	if !nonInteractive {
		cfg.Escalate = promptEscalation
		e.router.SetInteractive(e.client, promptPull, printPullProgress)
	}
	orch := orchestrator.New(e.workspace, e.roles, e.verifier, e.mem,
		session.NewStore(e.workspace), e.events, cfg)

	req := &types.Request{Prompt: prompt, Workspace: e.workspace, Complexity: complexity, Size: size}
	if err := orch.Build(ctx, req); err != nil {
		return err
	}

	if cmd := e.verifier.DetectRunCommand(); cmd != "" {
		fmt.Printf("run it with: %s\n", cmd)
	}
	return nil
}

// runChat answers without touching the workspace.
func runChat(ctx context.Context, prompt, workspaceFlag string) error {
	e, err := newEngine(workspaceFlag, 0)
	if err != nil {
		return err
	}
	defer e.close()

	spec, err := e.router.Resolve(ctx, types.RoleAgentic, types.ComplexityMedium, types.SizeMedium)
	if err != nil {
		return err
	}
	opts := ollama.DefaultOptions(types.RoleAgentic, spec, types.SizeMedium)
	_, err = e.client.Chat(ctx, spec.Name, []types.Message{
		{Role: "user", Content: prompt},
	}, opts, func(token string) { fmt.Print(token) })
	fmt.Println()
	return err
}

// promptEscalation asks the user what to do with an exhausted task.
func promptEscalation(task *types.TaskNode, lastError string) types.EscalationDecision {
	fmt.Printf("\ntask %d (%s) exhausted its fix budget: %s\n", task.ID, task.File, lastError)
	fmt.Print("choose [r]etry / [g]uided fix / [s]kip / [p]ause: ")

	var answer string
	if _, err := fmt.Fscanln(os.Stdin, &answer); err != nil {
		return types.EscalationDecision{Choice: types.EscalationSkip}
	}
	switch answer {
	case "r", "retry":
		return types.EscalationDecision{Choice: types.EscalationRetry}
	case "g", "guided":
		fmt.Print("hint: ")
		var hint string
		if _, err := fmt.Fscanln(os.Stdin, &hint); err == nil {
			return types.EscalationDecision{Choice: types.EscalationGuidedFix, Hint: hint}
		}
		return types.EscalationDecision{Choice: types.EscalationGuidedFix}
	case "p", "pause":
		return types.EscalationDecision{Choice: types.EscalationPause}
	default:
		return types.EscalationDecision{Choice: types.EscalationSkip}
	}
}

// promptPull asks the user whether a missing preferred model should be
// downloaded. Declining is non-fatal; the router falls back.
func promptPull(model string) bool {
	fmt.Printf("model %s is not installed. download it? [y/N]: ", model)
	var answer string
	if _, err := fmt.Fscanln(os.Stdin, &answer); err != nil {
		return false
	}
	return answer == "y" || answer == "yes"
}

// printPullProgress renders byte-accurate download progress on one line.
func printPullProgress(model string, p ollama.PullProgress) {
	if p.Total > 0 {
		fmt.Printf("\r%s: %s %d/%d bytes", model, p.Status, p.Completed, p.Total)
		if p.Completed >= p.Total {
			fmt.Println()
		}
		return
	}
	fmt.Printf("\r%s: %s", model, p.Status)
}

// ollamaEmbedder adapts the ollama client to the memory.Embedder interface.
type ollamaEmbedder struct {
	client *ollama.Client
	model  string
}

func (o *ollamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return o.client.Embed(ctx, o.model, text)
}
