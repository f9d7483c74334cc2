package roles

import (
	"context"
	"strings"
)

// Researcher is the opaque external research provider consulted by fix
// strategy E. The engine only depends on this interface; the web-search
// implementation lives outside the core.
type Researcher interface {
	Research(ctx context.Context, query string) (string, error)
}

// NoopResearcher is used when internet access is disabled. It returns no
// guidance, which leaves strategy E as a plain regeneration.
type NoopResearcher struct{}

// Research implements Researcher with an empty result.
func (NoopResearcher) Research(ctx context.Context, query string) (string, error) {
	return "", nil
}

// ResearchGuidance classifies the error pattern and consults the research
// provider. An empty result is not an error.
func (e *Engine) ResearchGuidance(ctx context.Context, verifierOutput string) string {
	query := classifyErrorPattern(verifierOutput)
	guidance, err := e.researcher.Research(ctx, query)
	if err != nil {
		return ""
	}
	return guidance
}

// classifyErrorPattern reduces verifier output to a searchable query: the
// first line that names an error, else a bounded prefix.
func classifyErrorPattern(output string) string {
	for _, line := range strings.Split(output, "\n") {
		for _, marker := range []string{"Error", "error:", "Exception", "warning:"} {
			if strings.Contains(line, marker) {
				return strings.TrimSpace(line)
			}
		}
	}
	output = strings.TrimSpace(output)
	if len(output) > 120 {
		return output[:120]
	}
	return output
}
