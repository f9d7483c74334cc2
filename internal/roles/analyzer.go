package roles

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"codeforge/internal/types"
)

const analyzerSystemPrompt = `You are the failure analyzer of a code-generation engine. Given verifier output and a task's failure history, diagnose the root cause and pick a fix strategy.

Strategies:
- A: targeted patch of the failing file
- B: deep analysis including the files that depend on it; patch dependencies when the problem lives there
- C: regenerate the file from scratch
- D: regenerate a minimal simplified version that prioritizes compiling
- E: research the error pattern externally before regenerating

Response format (JSON only):
{
  "root_cause": "one or two sentences",
  "fix_strategy": "A|B|C|D|E",
  "is_dependency_issue": true/false,
  "forbid_strategies": ["A", ...]
}

forbid_strategies must list every strategy already attempted for this task that did not work. Only return the JSON object, no other text.`

// Analysis is the analyzer's structured diagnosis.
type Analysis struct {
	RootCause         string               `json:"root_cause"`
	FixStrategy       types.StrategyCode   `json:"fix_strategy"`
	IsDependencyIssue bool                 `json:"is_dependency_issue"`
	ForbidStrategies  []types.StrategyCode `json:"forbid_strategies"`
}

// Analyze diagnoses a verification failure. attempted lists the strategy
// codes already tried; hint carries a user's guided-fix instruction, when
// present.
func (e *Engine) Analyze(ctx context.Context, task *types.TaskNode, verifierOutput string, attempted []types.StrategyCode, hint string) (Analysis, error) {
	var b strings.Builder
	b.WriteString(e.mem.AnalyzerContext(task.ID, verifierOutput))
	if len(attempted) > 0 {
		fmt.Fprintf(&b, "\n## Strategies already attempted\n%v\n", attempted)
	}
	if hint != "" {
		fmt.Fprintf(&b, "\n## User hint\n%s\n", hint)
	}

	raw, err := e.call(ctx, types.RoleAnalyzer, analyzerSystemPrompt, b.String())
	if err != nil {
		return Analysis{}, fmt.Errorf("analyzer call: %w", err)
	}

	doc, err := extractJSON(raw)
	if err != nil {
		return Analysis{}, err
	}
	var a Analysis
	if err := json.Unmarshal([]byte(doc), &a); err != nil {
		return Analysis{}, fmt.Errorf("%w: analysis JSON: %v", types.ErrParse, err)
	}
	return a, nil
}
