// Package router resolves (role, complexity, size) to a concrete installed
// model, degrading gracefully when preferred models are missing.
package router

import "codeforge/internal/types"

// Registry is the static model registry defined at engine startup.
// Specs are never mutated after construction.
var Registry = []types.ModelSpec{
	{Name: "qwen2.5-coder:32b", Category: types.CategoryCoding, Tier: types.TierLarge, Priority: 90, ContextWindow: 16384},
	{Name: "qwen2.5-coder:14b", Category: types.CategoryCoding, Tier: types.TierMedium, Priority: 80, ContextWindow: 16384},
	{Name: "qwen2.5-coder:7b", Category: types.CategoryCoding, Tier: types.TierSmall, Priority: 70, ContextWindow: 8192},
	{Name: "deepseek-r1:32b", Category: types.CategoryReasoning, Tier: types.TierLarge, Priority: 90, SupportsReasoningTrace: true, ContextWindow: 16384},
	{Name: "deepseek-r1:14b", Category: types.CategoryReasoning, Tier: types.TierMedium, Priority: 80, SupportsReasoningTrace: true, ContextWindow: 16384},
	{Name: "deepseek-r1:8b", Category: types.CategoryReasoning, Tier: types.TierSmall, Priority: 70, SupportsReasoningTrace: true, ContextWindow: 8192},
	{Name: "qwen2.5:14b-instruct", Category: types.CategoryAgentic, Tier: types.TierMedium, Priority: 80, ContextWindow: 16384},
	{Name: "qwen2.5:7b-instruct", Category: types.CategoryAgentic, Tier: types.TierSmall, Priority: 70, ContextWindow: 8192},
	{Name: "llama3.1:8b", Category: types.CategoryGeneral, Tier: types.TierSmall, Priority: 60, ContextWindow: 8192},
	{Name: "llama3.2:3b", Category: types.CategoryGeneral, Tier: types.TierSmall, Priority: 50, ContextWindow: 8192},
	{Name: "qwen2.5:3b-instruct", Category: types.CategorySummarizer, Tier: types.TierSmall, Priority: 50, ContextWindow: 8192},
	{Name: "nomic-embed-text:latest", Category: types.CategoryEmbedding, Tier: types.TierSmall, Priority: 50, ContextWindow: 2048},
}

// fastPreference is the fixed preference list for the classifier's single
// LLM call: smallest, fastest models first.
var fastPreference = []string{
	"llama3.2:3b",
	"qwen2.5:3b-instruct",
	"llama3.1:8b",
	"qwen2.5:7b-instruct",
}

// roleCategory maps each role to the model category it prefers.
var roleCategory = map[types.Role]types.ModelCategory{
	types.RolePlanner:    types.CategoryReasoning,
	types.RoleAnalyzer:   types.CategoryReasoning,
	types.RoleCoder:      types.CategoryCoding,
	types.RoleReviewer:   types.CategoryCoding,
	types.RoleAgentic:    types.CategoryAgentic,
	types.RoleClassifier: types.CategoryGeneral,
}

// routeKey indexes the two-level preference table.
type routeKey struct {
	complexity types.Complexity
	size       types.Size
}

// routes maps (complexity, size) to the preferred model per role. Entries
// not present fall back through tier degradation in Resolve.
var routes = map[routeKey]map[types.Role][]string{
	{types.ComplexityHeavy, types.SizeLarge}: {
		types.RolePlanner:  {"deepseek-r1:32b", "deepseek-r1:14b"},
		types.RoleCoder:    {"qwen2.5-coder:32b", "qwen2.5-coder:14b"},
		types.RoleReviewer: {"qwen2.5-coder:32b", "qwen2.5-coder:14b"},
		types.RoleAnalyzer: {"deepseek-r1:32b", "deepseek-r1:14b"},
		types.RoleAgentic:  {"qwen2.5:14b-instruct"},
	},
	{types.ComplexityHeavy, types.SizeMedium}: {
		types.RolePlanner:  {"deepseek-r1:32b", "deepseek-r1:14b"},
		types.RoleCoder:    {"qwen2.5-coder:32b", "qwen2.5-coder:14b"},
		types.RoleReviewer: {"qwen2.5-coder:14b"},
		types.RoleAnalyzer: {"deepseek-r1:14b"},
		types.RoleAgentic:  {"qwen2.5:14b-instruct"},
	},
	{types.ComplexityHeavy, types.SizeSmall}: {
		types.RolePlanner:  {"deepseek-r1:14b"},
		types.RoleCoder:    {"qwen2.5-coder:14b"},
		types.RoleReviewer: {"qwen2.5-coder:14b"},
		types.RoleAnalyzer: {"deepseek-r1:14b"},
		types.RoleAgentic:  {"qwen2.5:14b-instruct"},
	},
	{types.ComplexityMedium, types.SizeLarge}: {
		types.RolePlanner:  {"deepseek-r1:14b"},
		types.RoleCoder:    {"qwen2.5-coder:14b", "qwen2.5-coder:7b"},
		types.RoleReviewer: {"qwen2.5-coder:14b"},
		types.RoleAnalyzer: {"deepseek-r1:14b"},
		types.RoleAgentic:  {"qwen2.5:14b-instruct", "qwen2.5:7b-instruct"},
	},
	{types.ComplexityMedium, types.SizeMedium}: {
		types.RolePlanner:  {"deepseek-r1:14b", "deepseek-r1:8b"},
		types.RoleCoder:    {"qwen2.5-coder:14b", "qwen2.5-coder:7b"},
		types.RoleReviewer: {"qwen2.5-coder:7b"},
		types.RoleAnalyzer: {"deepseek-r1:8b"},
		types.RoleAgentic:  {"qwen2.5:7b-instruct"},
	},
	{types.ComplexityMedium, types.SizeSmall}: {
		types.RolePlanner:  {"deepseek-r1:8b"},
		types.RoleCoder:    {"qwen2.5-coder:7b"},
		types.RoleReviewer: {"qwen2.5-coder:7b"},
		types.RoleAnalyzer: {"deepseek-r1:8b"},
		types.RoleAgentic:  {"qwen2.5:7b-instruct"},
	},
	{types.ComplexitySimple, types.SizeLarge}: {
		types.RolePlanner:  {"deepseek-r1:8b"},
		types.RoleCoder:    {"qwen2.5-coder:14b", "qwen2.5-coder:7b"},
		types.RoleReviewer: {"qwen2.5-coder:7b"},
		types.RoleAnalyzer: {"deepseek-r1:8b"},
		types.RoleAgentic:  {"qwen2.5:7b-instruct"},
	},
	{types.ComplexitySimple, types.SizeMedium}: {
		types.RolePlanner:  {"deepseek-r1:8b"},
		types.RoleCoder:    {"qwen2.5-coder:7b"},
		types.RoleReviewer: {"qwen2.5-coder:7b"},
		types.RoleAnalyzer: {"deepseek-r1:8b"},
		types.RoleAgentic:  {"qwen2.5:7b-instruct"},
	},
	{types.ComplexitySimple, types.SizeSmall}: {
		types.RolePlanner:  {"deepseek-r1:8b"},
		types.RoleCoder:    {"qwen2.5-coder:7b"},
		types.RoleReviewer: {"qwen2.5-coder:7b"},
		types.RoleAnalyzer: {"deepseek-r1:8b"},
		types.RoleAgentic:  {"qwen2.5:7b-instruct", "llama3.2:3b"},
	},
}
