package verify

import (
	"regexp"
	"strconv"
	"strings"

	"codeforge/internal/types"
)

var (
	// File "app.py", line 3
	pythonDiagRe = regexp.MustCompile(`File "([^"]+)", line (\d+)`)
	// A trailing "SomeError: message" line names the category.
	pythonErrorRe = regexp.MustCompile(`(?m)^\s*(\w+(?:Error|Warning|Exception))\s*:\s*(.*)$`)
	// path:line:col: message  (col optional)
	colonDiagRe = regexp.MustCompile(`(?m)^([^\s:][^:\n]*):(\d+):(?:(\d+):)?\s*(.+)$`)
)

// StructuredErrors extracts file/line/category/message diagnostics from the
// two recognized formats: the interpreter traceback style and the
// path:line:col style used by linters and node.
func StructuredErrors(output string) []types.StructuredError {
	var errs []types.StructuredError

	category, message := "", ""
	if m := pythonErrorRe.FindStringSubmatch(output); m != nil {
		category, message = m[1], strings.TrimSpace(m[2])
	}
	for _, m := range pythonDiagRe.FindAllStringSubmatch(output, -1) {
		line, _ := strconv.Atoi(m[2])
		errs = append(errs, types.StructuredError{
			Path:     m[1],
			Line:     line,
			Category: category,
			Message:  message,
		})
	}
	if len(errs) > 0 {
		return errs
	}

	for _, m := range colonDiagRe.FindAllStringSubmatch(output, -1) {
		line, _ := strconv.Atoi(m[2])
		msg := strings.TrimSpace(m[4])
		cat := "diagnostic"
		if idx := strings.Index(msg, ":"); idx > 0 {
			head := strings.ToLower(msg[:idx])
			if head == "error" || head == "warning" || head == "note" {
				cat = head
				msg = strings.TrimSpace(msg[idx+1:])
			}
		}
		errs = append(errs, types.StructuredError{
			Path:     m[1],
			Line:     line,
			Category: cat,
			Message:  msg,
		})
	}
	return errs
}
