// Package parse turns free-form model output into file writes and shell
// commands. Models do not reliably follow one format, so extraction tries
// four strategies in order and uses the first that yields at least one file.
package parse

import (
	"regexp"
	"sort"
	"strings"

	"codeforge/internal/logging"
)

// FileWrite is one extracted file body.
type FileWrite struct {
	Path    string
	Content string
}

// Command is one extracted shell command.
type Command struct {
	Background bool
	Command    string
}

// Result is the full outcome of parsing one model response.
type Result struct {
	Files    []FileWrite
	Commands []Command
	// Dropped lists commands rejected by the safety filter.
	Dropped []string
	// Display is the original text with every recognized block removed.
	Display string
}

type span struct{ start, end int }

type fileBlock struct {
	path string
	body string
	span span
}

var (
	// Strategy 1: ===FILE: path=== ... ===END===
	strictRe = regexp.MustCompile(`(?ms)^===FILE:\s*(.+?)===[ \t]*\n(.*?)\n?^===END===[ \t]*$\n?`)

	// Strategy 2: ===FILE: path=== immediately followed by a fenced block.
	markerFenceRe = regexp.MustCompile("(?ms)^===FILE:\\s*(.+?)===[ \t]*\\n```[a-zA-Z0-9+-]*[ \t]*\\n(.*?)\\n```[ \t]*$\\n?")

	// Strategy 3: markdown heading or bold-only line naming a path, followed
	// by a fenced block.
	headingFenceRe = regexp.MustCompile("(?ms)^(?:#{1,6}[ \t]+|\\*\\*)([^\\n*`]+?)(?:\\*\\*)?[ \t]*\\n+```[a-zA-Z0-9+-]*[ \t]*\\n(.*?)\\n```[ \t]*$\\n?")

	// Strategy 4: ===FILE: path=== with raw content until the next marker or
	// end of text.
	openMarkerRe = regexp.MustCompile(`(?m)^===FILE:\s*(.+?)===[ \t]*$`)

	runRe        = regexp.MustCompile(`(?m)^===RUN:\s*(.+?)===[ \t]*$\n?`)
	backgroundRe = regexp.MustCompile(`(?m)^===BACKGROUND:\s*(.+?)===[ \t]*$\n?`)

	pathLikeRe = regexp.MustCompile(`^[\w./\\-]+\.[A-Za-z0-9]+$`)
)

// fenceTags are the language tags whose fences are stripped from captured
// bodies before the file is written.
var fenceTags = map[string]bool{
	"":           true,
	"json":       true,
	"javascript": true,
	"python":     true,
	"typescript": true,
	"bash":       true,
}

// Parse extracts file writes, shell commands, and display text.
func Parse(text string) Result {
	timer := logging.StartTimer(logging.CategoryParser, "Parse")
	defer timer.Stop()

	blocks, strategy := extractFiles(text)
	logging.ParserDebug("extracted %d file blocks via strategy %d", len(blocks), strategy)

	res := Result{}
	spans := make([]span, 0, len(blocks))
	for _, b := range blocks {
		res.Files = append(res.Files, FileWrite{
			Path:    b.path,
			Content: ensureTrailingNewline(stripFence(b.body)),
		})
		spans = append(spans, b.span)
	}

	cmds, cmdSpans, dropped := extractCommands(text)
	res.Commands = cmds
	res.Dropped = dropped
	spans = append(spans, cmdSpans...)

	res.Display = removeSpans(text, spans)
	return res
}

// extractFiles runs the four strategies in order and returns the blocks of
// the first strategy that found at least one file, plus its index (1-based).
func extractFiles(text string) ([]fileBlock, int) {
	strategies := []func(string) []fileBlock{
		parseStrict,
		parseMarkerFence,
		parseHeadingFence,
		parseOpenMarker,
	}
	for i, s := range strategies {
		if blocks := s(text); len(blocks) > 0 {
			return blocks, i + 1
		}
	}
	return nil, 0
}

func parseStrict(text string) []fileBlock {
	var out []fileBlock
	for _, m := range strictRe.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, fileBlock{
			path: strings.TrimSpace(text[m[2]:m[3]]),
			body: text[m[4]:m[5]],
			span: span{m[0], m[1]},
		})
	}
	return out
}

func parseMarkerFence(text string) []fileBlock {
	var out []fileBlock
	for _, m := range markerFenceRe.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, fileBlock{
			path: strings.TrimSpace(text[m[2]:m[3]]),
			body: text[m[4]:m[5]],
			span: span{m[0], m[1]},
		})
	}
	return out
}

func parseHeadingFence(text string) []fileBlock {
	var out []fileBlock
	for _, m := range headingFenceRe.FindAllStringSubmatchIndex(text, -1) {
		path := strings.TrimSpace(text[m[2]:m[3]])
		path = strings.Trim(path, "`")
		if !looksLikePath(path) {
			continue
		}
		out = append(out, fileBlock{
			path: path,
			body: text[m[4]:m[5]],
			span: span{m[0], m[1]},
		})
	}
	return out
}

func parseOpenMarker(text string) []fileBlock {
	markers := openMarkerRe.FindAllStringSubmatchIndex(text, -1)
	var out []fileBlock
	for i, m := range markers {
		bodyStart := m[1]
		if bodyStart < len(text) && text[bodyStart] == '\n' {
			bodyStart++
		}
		bodyEnd := len(text)
		if i+1 < len(markers) {
			bodyEnd = markers[i+1][0]
		}
		out = append(out, fileBlock{
			path: strings.TrimSpace(text[m[2]:m[3]]),
			body: strings.TrimRight(text[bodyStart:bodyEnd], "\n"),
			span: span{m[0], bodyEnd},
		})
	}
	return out
}

func extractCommands(text string) ([]Command, []span, []string) {
	var cmds []Command
	var spans []span
	var dropped []string

	collect := func(re *regexp.Regexp, background bool) {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			cmd := strings.TrimSpace(text[m[2]:m[3]])
			spans = append(spans, span{m[0], m[1]})
			if IsDangerous(cmd) {
				logging.Parser("dropping dangerous command: %s", cmd)
				dropped = append(dropped, cmd)
				continue
			}
			cmds = append(cmds, Command{Background: background, Command: cmd})
		}
	}
	collect(runRe, false)
	collect(backgroundRe, true)
	return cmds, spans, dropped
}

// stripFence removes a leading fenced code block when its language tag is one
// of the recognized tags, leaving other bodies untouched.
func stripFence(body string) string {
	trimmed := strings.TrimLeft(body, "\n")
	if !strings.HasPrefix(trimmed, "```") {
		return body
	}
	nl := strings.IndexByte(trimmed, '\n')
	if nl < 0 {
		return body
	}
	tag := strings.TrimSpace(trimmed[3:nl])
	if !fenceTags[strings.ToLower(tag)] {
		return body
	}
	inner := trimmed[nl+1:]
	if idx := strings.LastIndex(inner, "```"); idx >= 0 {
		inner = inner[:idx]
	}
	return strings.TrimRight(inner, "\n")
}

func looksLikePath(s string) bool {
	return s != "" && !strings.ContainsAny(s, " \t") && pathLikeRe.MatchString(s)
}

func ensureTrailingNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// removeSpans deletes the given byte ranges from text.
func removeSpans(text string, spans []span) string {
	if len(spans) == 0 {
		return text
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	var b strings.Builder
	pos := 0
	for _, sp := range spans {
		if sp.start < pos {
			continue
		}
		b.WriteString(text[pos:sp.start])
		pos = sp.end
	}
	b.WriteString(text[pos:])
	return strings.TrimSpace(b.String())
}
