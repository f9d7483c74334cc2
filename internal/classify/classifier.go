// Package classify maps a request and workspace snapshot to a (complexity,
// size) pair. Classification fuses two signals: keyword scoring over the
// prompt, and a single LLM call on the fastest available model. The higher
// of the two wins per axis, erring toward more resources.
package classify

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"codeforge/internal/logging"
	"codeforge/internal/types"
)

// LabelModel is the optional LLM phase. Label is called with a prompt that
// requests one of the nine complexity/size labels; a nil LabelModel skips the
// phase entirely.
type LabelModel interface {
	Label(ctx context.Context, prompt string) (string, error)
}

// Classifier fuses keyword and model signals.
type Classifier struct {
	model LabelModel // nil when no model is available
}

// New creates a classifier. model may be nil.
func New(model LabelModel) *Classifier {
	return &Classifier{model: model}
}

// Signal tables. The three sets are disjoint by construction.
var (
	heavySignals = []string{
		"social network", "marketplace", "dating app", "matching system",
		"recommendation engine", "booking", "saas", "fintech",
	}
	mediumSignals = []string{
		"web app", "mobile app", "game", "analytics", "profile", "search", "forum",
	}
	simpleSignals = []string{
		"simple", "basic", "calculator", "todo", "landing page",
	}

	// App-clone patterns: "like tinder", "uber for X", "a spotify".
	cloneBrands = `tinder|uber|spotify|netflix|airbnb|instagram|twitter|facebook|amazon|youtube|slack|discord`
	cloneRe     = regexp.MustCompile(`(?i)\b(?:like\s+(?:a\s+|an\s+)?(?:` + cloneBrands + `)|(?:` + cloneBrands + `)\s+(?:for|of)\s+\w+|(?:a|an)\s+(?:` + cloneBrands + `)\b)`)

	buildRe = regexp.MustCompile(`(?i)\b(?:build|create|make\s+me)\b`)
)

const buildMultiplier = 1.5

// IsBuildIntent reports whether the prompt asks to build a project rather
// than chat about one. Build patterns deterministically break ties against
// chat intent.
func IsBuildIntent(prompt string) bool {
	return buildRe.MatchString(prompt)
}

// Classify returns the fused (complexity, size) for a prompt and workspace.
func (c *Classifier) Classify(ctx context.Context, prompt, workspace string) (types.Complexity, types.Size) {
	timer := logging.StartTimer(logging.CategoryClassifier, "Classify")
	defer timer.Stop()

	kwComplexity, kwSize, matched := keywordPhase(prompt)
	logging.ClassifierDebug("keyword phase: complexity=%s size=%s matched=%v", kwComplexity, kwSize, matched)

	llmComplexity, llmSize, ok := c.modelPhase(ctx, prompt)
	if ok {
		logging.ClassifierDebug("model phase: complexity=%s size=%s", llmComplexity, llmSize)
	}

	if !matched && !ok {
		// No signal anywhere: never default below medium/medium.
		logging.Classifier("no signals, defaulting to medium/medium")
		kwComplexity, kwSize = types.ComplexityMedium, types.SizeMedium
	}

	complexity := kwComplexity
	size := kwSize
	if ok {
		complexity = maxComplexity(complexity, llmComplexity)
		size = maxSize(size, llmSize)
	}

	// Workspace footprint can only raise the size axis.
	wsSize := workspaceSize(workspace)
	size = maxSize(size, wsSize)

	logging.Classifier("classified %q as %s/%s", truncate(prompt, 60), complexity, size)
	return complexity, size
}

// keywordPhase scores the three disjoint signal sets. The bool result is
// false when no signal matched at all.
func keywordPhase(prompt string) (types.Complexity, types.Size, bool) {
	lower := strings.ToLower(prompt)

	heavy := scoreSignals(lower, heavySignals, 3.0)
	if cloneRe.MatchString(prompt) {
		heavy += 3.0
	}
	medium := scoreSignals(lower, mediumSignals, 2.0)
	simple := scoreSignals(lower, simpleSignals, 1.0)

	isBuild := buildRe.MatchString(prompt)
	if isBuild {
		heavy *= buildMultiplier
		medium *= buildMultiplier
		simple *= buildMultiplier
	}

	if heavy == 0 && medium == 0 && simple == 0 {
		if isBuild {
			// Build intent with no domain signal still implies a real
			// project.
			return types.ComplexityMedium, types.SizeMedium, true
		}
		return types.ComplexityMedium, types.SizeMedium, false
	}

	// Highest score wins; ties break toward the heavier class.
	switch {
	case heavy >= medium && heavy >= simple && heavy > 0:
		return types.ComplexityHeavy, types.SizeLarge, true
	case medium >= simple && medium > 0:
		return types.ComplexityMedium, types.SizeMedium, true
	default:
		return types.ComplexitySimple, types.SizeSmall, true
	}
}

func scoreSignals(lower string, signals []string, weight float64) float64 {
	score := 0.0
	for _, s := range signals {
		if strings.Contains(lower, s) {
			score += weight
		}
	}
	return score
}

// modelPhase asks the label model for one of the nine labels. Returns
// ok=false when the model is absent or the answer is unusable.
func (c *Classifier) modelPhase(ctx context.Context, prompt string) (types.Complexity, types.Size, bool) {
	if c.model == nil {
		return "", "", false
	}

	labelPrompt := `Classify this software request. Answer with exactly one label of the form complexity/size where complexity is one of heavy, medium, simple and size is one of small, medium, large. No other text.

Request: ` + prompt

	answer, err := c.model.Label(ctx, labelPrompt)
	if err != nil {
		logging.ClassifierDebug("model phase unavailable: %v", err)
		return "", "", false
	}
	return parseLabel(answer)
}

// parseLabel extracts a complexity/size pair from a model answer.
func parseLabel(answer string) (types.Complexity, types.Size, bool) {
	answer = strings.ToLower(strings.TrimSpace(answer))
	for _, comp := range []types.Complexity{types.ComplexityHeavy, types.ComplexityMedium, types.ComplexitySimple} {
		for _, size := range []types.Size{types.SizeSmall, types.SizeMedium, types.SizeLarge} {
			if strings.Contains(answer, string(comp)+"/"+string(size)) {
				return comp, size, true
			}
		}
	}
	return "", "", false
}

// workspaceSize maps the file count of a workspace to a size class:
// <=3 small, 4-10 medium, >10 large.
func workspaceSize(workspace string) types.Size {
	if workspace == "" {
		return types.SizeSmall
	}
	count := 0
	_ = filepath.WalkDir(workspace, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != workspace && (strings.HasPrefix(name, ".") || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		count++
		return nil
	})

	switch {
	case count <= 3:
		return types.SizeSmall
	case count <= 10:
		return types.SizeMedium
	default:
		return types.SizeLarge
	}
}

var complexityRank = map[types.Complexity]int{
	types.ComplexitySimple: 0,
	types.ComplexityMedium: 1,
	types.ComplexityHeavy:  2,
}

var sizeRank = map[types.Size]int{
	types.SizeSmall:  0,
	types.SizeMedium: 1,
	types.SizeLarge:  2,
}

func maxComplexity(a, b types.Complexity) types.Complexity {
	if complexityRank[b] > complexityRank[a] {
		return b
	}
	return a
}

func maxSize(a, b types.Size) types.Size {
	if sizeRank[b] > sizeRank[a] {
		return b
	}
	return a
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
