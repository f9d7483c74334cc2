package roles

import (
	"context"
	"encoding/json"
	"fmt"

	"codeforge/internal/logging"
	"codeforge/internal/types"
)

const plannerSystemPrompt = `You are the planner of a code-generation engine. Given a software request, produce a complete project plan as a single JSON object:

{
  "architecture_summary": "2-4 sentences describing the system",
  "tech_stack": ["python", "flask", ...],
  "file_index": {"path": "one-line purpose", ...},
  "database_schema": "tables and columns, when the project stores data",
  "api_surface": "endpoints and payloads, when the project exposes an API",
  "auth_flow": "how users authenticate, when relevant",
  "deployment": "how the project runs, when relevant",
  "tasks": [
    {"id": 1, "file": "models.py", "description": "...", "depends_on": []},
    {"id": 2, "file": "app.py", "description": "...", "depends_on": [1]}
  ]
}

Rules:
- Every task creates exactly one file; file paths are unique and relative.
- depends_on lists task ids that must exist before this file can be written.
- The dependency graph must be acyclic; foundation files (data models, config) come first.
- Omit the schema/api/auth/deployment fields for trivial projects.
Only return the JSON object, no other text.`

// plannerOutput mirrors the planner's JSON schema.
type plannerOutput struct {
	ArchitectureSummary string            `json:"architecture_summary"`
	TechStack           []string          `json:"tech_stack"`
	FileIndex           map[string]string `json:"file_index"`
	DatabaseSchema      string            `json:"database_schema"`
	APISurface          string            `json:"api_surface"`
	AuthFlow            string            `json:"auth_flow"`
	Deployment          string            `json:"deployment"`
	Tasks               []struct {
		ID          int    `json:"id"`
		File        string `json:"file"`
		Description string `json:"description"`
		DependsOn   []int  `json:"depends_on"`
	} `json:"tasks"`
}

// Plan asks the planner model for a project plan.
func (e *Engine) Plan(ctx context.Context, request string) (*types.Plan, error) {
	return e.plan(ctx, "## Request\n"+request)
}

// Refine re-plans with the accumulated failure log as context.
func (e *Engine) Refine(ctx context.Context, request string) (*types.Plan, error) {
	return e.plan(ctx, e.mem.PlannerContext(request))
}

func (e *Engine) plan(ctx context.Context, user string) (*types.Plan, error) {
	timer := logging.StartTimer(logging.CategoryRoles, "Plan")
	defer timer.StopWithInfo()

	raw, err := e.call(ctx, types.RolePlanner, plannerSystemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("planner call: %w", err)
	}

	doc, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var out plannerOutput
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return nil, fmt.Errorf("%w: plan JSON: %v", types.ErrParse, err)
	}
	if len(out.Tasks) == 0 {
		return nil, fmt.Errorf("%w: plan has no tasks", types.ErrParse)
	}

	plan := &types.Plan{
		ArchitectureSummary: out.ArchitectureSummary,
		TechStack:           out.TechStack,
		FileIndex:           out.FileIndex,
		Spec: types.SpecSlots{
			DatabaseSchema: out.DatabaseSchema,
			APISurface:     out.APISurface,
			AuthFlow:       out.AuthFlow,
			Deployment:     out.Deployment,
		},
	}
	for _, t := range out.Tasks {
		plan.Tasks = append(plan.Tasks, &types.TaskNode{
			ID:          t.ID,
			File:        t.File,
			Description: t.Description,
			DependsOn:   t.DependsOn,
			Status:      types.TaskPending,
		})
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	logging.Roles("plan: %d tasks, stack=%v", len(plan.Tasks), plan.TechStack)
	return plan, nil
}
