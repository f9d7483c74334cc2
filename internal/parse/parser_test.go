package parse

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_StrictMarkers(t *testing.T) {
	res := Parse("===FILE: app.py===\nprint(\"hi\")\n===END===\n")
	require.Len(t, res.Files, 1)
	assert.Equal(t, "app.py", res.Files[0].Path)
	assert.Equal(t, "print(\"hi\")\n", res.Files[0].Content)
	assert.Empty(t, res.Commands)
}

func TestParse_FenceStripping(t *testing.T) {
	res := Parse("===FILE: package.json===\n```json\n{\"name\":\"x\"}\n```\n===END===\n")
	require.Len(t, res.Files, 1)
	assert.Equal(t, "{\"name\":\"x\"}\n", res.Files[0].Content)
}

func TestParse_UnknownFenceTagKept(t *testing.T) {
	res := Parse("===FILE: main.rs===\n```rust\nfn main() {}\n```\n===END===\n")
	require.Len(t, res.Files, 1)
	assert.Equal(t, "```rust\nfn main() {}\n```\n", res.Files[0].Content)
}

func TestParse_MarkerWithFencedBody(t *testing.T) {
	text := "===FILE: util.js===\n```javascript\nmodule.exports = {};\n```\nsome trailing prose"
	res := Parse(text)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "util.js", res.Files[0].Path)
	assert.Equal(t, "module.exports = {};\n", res.Files[0].Content)
	assert.Contains(t, res.Display, "some trailing prose")
}

func TestParse_HeadingStyle(t *testing.T) {
	text := "Here is the server:\n\n## server/index.js\n```javascript\nrequire('http');\n```\n"
	res := Parse(text)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "server/index.js", res.Files[0].Path)
	assert.Equal(t, "require('http');\n", res.Files[0].Content)
}

func TestParse_BoldHeadingStyle(t *testing.T) {
	text := "**app.py**\n```python\nx = 1\n```\n"
	res := Parse(text)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "app.py", res.Files[0].Path)
	assert.Equal(t, "x = 1\n", res.Files[0].Content)
}

func TestParse_HeadingThatIsNotAPathIgnored(t *testing.T) {
	text := "## How it works\n```python\nx = 1\n```\n"
	res := Parse(text)
	assert.Empty(t, res.Files)
}

func TestParse_MarkerNoEnd(t *testing.T) {
	text := "===FILE: a.py===\nprint(1)\n===FILE: b.py===\nprint(2)"
	res := Parse(text)
	require.Len(t, res.Files, 2)
	assert.Equal(t, "a.py", res.Files[0].Path)
	assert.Equal(t, "print(1)\n", res.Files[0].Content)
	assert.Equal(t, "b.py", res.Files[1].Path)
	assert.Equal(t, "print(2)\n", res.Files[1].Content)
}

// The four supported formats must agree on the extracted (path, content)
// pairs modulo fence stripping.
func TestParse_FormatEquivalence(t *testing.T) {
	variants := map[string]string{
		"strict":       "===FILE: app.py===\nx = 1\n===END===\n",
		"marker_fence": "===FILE: app.py===\n```python\nx = 1\n```\n",
		"heading":      "## app.py\n```python\nx = 1\n```\n",
		"no_end":       "===FILE: app.py===\nx = 1",
	}
	want := []FileWrite{{Path: "app.py", Content: "x = 1\n"}}
	for name, text := range variants {
		res := Parse(text)
		if diff := cmp.Diff(want, res.Files); diff != "" {
			t.Errorf("%s: files mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestParse_Commands(t *testing.T) {
	text := "===RUN: npm install===\n===BACKGROUND: node server.js===\n"
	res := Parse(text)
	require.Len(t, res.Commands, 2)
	assert.Equal(t, Command{Background: false, Command: "npm install"}, res.Commands[0])
	assert.Equal(t, Command{Background: true, Command: "node server.js"}, res.Commands[1])
}

func TestParse_DangerousCommandDropped(t *testing.T) {
	res := Parse("===RUN: rm -rf /===\n")
	assert.Empty(t, res.Commands)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, "rm -rf /", res.Dropped[0])
}

func TestParse_DisplayTextExcludesBlocks(t *testing.T) {
	text := "I created the file below.\n===FILE: app.py===\nprint(1)\n===END===\n===RUN: python app.py===\nDone!"
	res := Parse(text)
	assert.Equal(t, "I created the file below.\nDone!", res.Display)
}

func TestIsDangerous(t *testing.T) {
	for _, cmd := range []string{
		"rm -rf /",
		"sudo rm -r /etc",
		"mkfs.ext4 /dev/sda1",
		"dd if=/dev/zero of=/dev/sda",
		":(){:|:&};:",
		":(){ :|:& };:",
	} {
		assert.True(t, IsDangerous(cmd), "expected dangerous: %s", cmd)
	}
	for _, cmd := range []string{
		"npm install",
		"python app.py",
		"rm build/output.txt",
		"echo done",
	} {
		assert.False(t, IsDangerous(cmd), "expected safe: %s", cmd)
	}
}

func TestEmitParseRoundTrip(t *testing.T) {
	cases := []FileWrite{
		{Path: "app.py", Content: "print(\"hi\")\n"},
		{Path: "src/server.js", Content: "const a = 1;\nconst b = 2;\n"},
		{Path: "empty.txt", Content: "\n"},
	}
	for _, c := range cases {
		res := Parse(Emit(c.Path, c.Content))
		require.Len(t, res.Files, 1, "path %s", c.Path)
		assert.Equal(t, c, res.Files[0])
	}
}

func TestEmitCommand(t *testing.T) {
	assert.Equal(t, "===RUN: npm test===\n", EmitCommand("npm test", false))
	assert.Equal(t, "===BACKGROUND: node app.js===\n", EmitCommand("node app.js", true))
}

func TestParse_MultipleStrictBlocks(t *testing.T) {
	text := Emit("a.py", "a = 1\n") + "\nand then\n\n" + Emit("b.py", "b = 2\n")
	res := Parse(text)
	require.Len(t, res.Files, 2)
	assert.Equal(t, "a.py", res.Files[0].Path)
	assert.Equal(t, "b.py", res.Files[1].Path)
	assert.Equal(t, "and then", res.Display)
}
