package parse

import (
	"fmt"
	"strings"
)

// Emit renders a file write in the canonical wire format:
//
//	===FILE: <relative-path>===
//	<content>
//	===END===
//
// For content that ends in a newline, Parse(Emit(path, content)) yields the
// same (path, content) pair; other content comes back with a newline added.
func Emit(path, content string) string {
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return fmt.Sprintf("===FILE: %s===\n%s===END===\n", path, content)
}

// EmitCommand renders a shell command block in the canonical wire format.
func EmitCommand(cmd string, background bool) string {
	if background {
		return fmt.Sprintf("===BACKGROUND: %s===\n", cmd)
	}
	return fmt.Sprintf("===RUN: %s===\n", cmd)
}
