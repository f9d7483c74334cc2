package ollama

import "codeforge/internal/types"

// DefaultOptions returns the contractual sampling defaults for a role calling
// the given model, scaled by project size:
//
//	reasoning roles  -> temperature 0.4, strip reasoning traces
//	coding           -> 0.15
//	reviewer         -> 0.3
//	agentic/general  -> 0.6
func DefaultOptions(role types.Role, spec types.ModelSpec, size types.Size) Options {
	opts := Options{
		NumCtx:         int(float64(spec.ContextWindow) * size.ContextScale()),
		StripReasoning: spec.SupportsReasoningTrace,
	}
	switch role {
	case types.RolePlanner, types.RoleAnalyzer, types.RoleClassifier:
		opts.Temperature = 0.4
	case types.RoleCoder:
		opts.Temperature = 0.15
	case types.RoleReviewer:
		opts.Temperature = 0.3
	default:
		opts.Temperature = 0.6
	}
	return opts
}
