package roles

import (
	"context"
	"encoding/json"
	"fmt"

	"codeforge/internal/types"
)

const reviewerSystemPrompt = `You are the reviewer of a code-generation engine. Assess one file for correctness and spec compliance.

Response format (JSON only):
{
  "approved": true/false,
  "issues": [
    {"severity": "critical|warning|info", "description": "..."}
  ],
  "summary": "one line"
}

Rules:
- critical: the file will not run or contradicts the plan.
- warning: the file runs but has a real defect.
- info: style or minor observations; never blocks approval.
- approved must be false when any critical or warning issue exists.
Only return the JSON object, no other text.`

// MaxReviewRounds bounds the review->patch->re-review loop per file.
const MaxReviewRounds = 2

// IssueSeverity classifies a review finding.
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "critical"
	SeverityWarning  IssueSeverity = "warning"
	SeverityInfo     IssueSeverity = "info"
)

// Issue is one review finding.
type Issue struct {
	Severity    IssueSeverity `json:"severity"`
	Description string        `json:"description"`
}

// Review is the reviewer's structured verdict.
type Review struct {
	Approved bool    `json:"approved"`
	Issues   []Issue `json:"issues"`
	Summary  string  `json:"summary"`
}

// Blocking reports whether the review should trigger a patch round.
// A review carrying only info issues counts as approved.
func (r Review) Blocking() bool {
	if r.Approved {
		return false
	}
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical || issue.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

// Instructions renders the blocking issues as patch instructions.
func (r Review) Instructions() string {
	out := ""
	for _, issue := range r.Issues {
		if issue.Severity == SeverityInfo {
			continue
		}
		out += fmt.Sprintf("- [%s] %s\n", issue.Severity, issue.Description)
	}
	return out
}

// Review asks the reviewer model to assess a file.
func (e *Engine) Review(ctx context.Context, path, content string) (Review, error) {
	raw, err := e.call(ctx, types.RoleReviewer, reviewerSystemPrompt, e.mem.ReviewerContext(path, content))
	if err != nil {
		return Review{}, fmt.Errorf("reviewer call: %w", err)
	}

	doc, err := extractJSON(raw)
	if err != nil {
		return Review{}, err
	}
	var rev Review
	if err := json.Unmarshal([]byte(doc), &rev); err != nil {
		return Review{}, fmt.Errorf("%w: review JSON: %v", types.ErrParse, err)
	}
	return rev, nil
}
