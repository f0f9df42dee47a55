package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCreateShorthand(t *testing.T) {
	reply := "Here is the implementation:\n" +
		"```filename: src/add.py\n" +
		"def add(a, b):\n" +
		"    return a + b\n" +
		"```\n" +
		"Let me know what you think."

	parsed := ParseReply(reply)
	require.Len(t, parsed.Ops, 1)
	op := parsed.Ops[0]
	assert.Equal(t, OpCreate, op.Kind)
	assert.Equal(t, "src/add.py", op.Path)
	assert.Equal(t, "def add(a, b):\n    return a + b", op.Content)
	assert.False(t, parsed.Complete)
}

func TestParseDirectiveThenContentBlock(t *testing.T) {
	reply := "```filename: app.py\n```\n" +
		"```python\n" +
		"print('hi')\n" +
		"```\n"

	parsed := ParseReply(reply)
	require.Len(t, parsed.Ops, 1)
	assert.Equal(t, OpCreate, parsed.Ops[0].Kind)
	assert.Equal(t, "app.py", parsed.Ops[0].Path)
	assert.Equal(t, "print('hi')", parsed.Ops[0].Content)
}

func TestParseMalformedDirectiveDropped(t *testing.T) {
	// Empty directive fence with no content block following, then a
	// valid shorthand update. Matches the tolerance policy: drop, warn,
	// continue.
	reply := "```filename: src/a.py\n```\n" +
		"some prose in between\n" +
		"```update: src/b.py\n" +
		"print(\"ok\")\n" +
		"```\n"

	parsed := ParseReply(reply)
	require.Len(t, parsed.Ops, 1)
	assert.Equal(t, OpUpdate, parsed.Ops[0].Kind)
	assert.Equal(t, "src/b.py", parsed.Ops[0].Path)
	assert.Equal(t, "print(\"ok\")", parsed.Ops[0].Content)
	assert.NotEmpty(t, parsed.Warnings)
}

func TestParseRead(t *testing.T) {
	parsed := ParseReply("I need to inspect it first.\n```read: src/config.py```\n")
	require.Len(t, parsed.Ops, 1)
	assert.Equal(t, OpRead, parsed.Ops[0].Kind)
	assert.Equal(t, "src/config.py", parsed.Ops[0].Path)
}

func TestParseMultipleOpsInOrder(t *testing.T) {
	reply := "```filename: a.py\nA = 1\n```\n" +
		"```update: b.py\nB = 2\n```\n" +
		"```read: c.py```\n"

	parsed := ParseReply(reply)
	require.Len(t, parsed.Ops, 3)
	assert.Equal(t, OpCreate, parsed.Ops[0].Kind)
	assert.Equal(t, OpUpdate, parsed.Ops[1].Kind)
	assert.Equal(t, OpRead, parsed.Ops[2].Kind)
	assert.Equal(t, []string{"a.py", "b.py", "c.py"},
		[]string{parsed.Ops[0].Path, parsed.Ops[1].Path, parsed.Ops[2].Path})
}

func TestParseLanguageHintIgnored(t *testing.T) {
	reply := "```python\nprint('no directive, no op')\n```\n"
	parsed := ParseReply(reply)
	assert.Empty(t, parsed.Ops)
	assert.False(t, parsed.Complete)
}

func TestParsePathSanitization(t *testing.T) {
	parsed := ParseReply("```filename: `src/app.py`\ncode\n```\n")
	require.Len(t, parsed.Ops, 1)
	assert.Equal(t, "src/app.py", parsed.Ops[0].Path)

	parsed = ParseReply("```filename: ../../etc/passwd\nboom\n```\n")
	assert.Empty(t, parsed.Ops)
	assert.NotEmpty(t, parsed.Warnings)

	parsed = ParseReply("```filename: !!!\ncode\n```\n")
	assert.Empty(t, parsed.Ops)
	assert.NotEmpty(t, parsed.Warnings)
}

func TestParseUnterminatedFence(t *testing.T) {
	reply := "```filename: tail.py\nprint('cut off by token limit')"
	parsed := ParseReply(reply)
	require.Len(t, parsed.Ops, 1)
	assert.Equal(t, "tail.py", parsed.Ops[0].Path)
	assert.Equal(t, "print('cut off by token limit')", parsed.Ops[0].Content)
}

func TestCompletionSignal(t *testing.T) {
	tests := []struct {
		reply string
		want  bool
	}{
		{"The Project Is Complete. Nothing left to do.", true},
		{"all requirements met, shipping it", true},
		{"We are READY FOR DEPLOYMENT now.", true},
		{"No further improvements needed.", true},
		{"Still working on the parser.", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseReply(tt.reply).Complete, "reply %q", tt.reply)
	}
}

func TestNoOpTurn(t *testing.T) {
	parsed := ParseReply("I reviewed the code and it all looks reasonable so far.")
	assert.Empty(t, parsed.Ops)
	assert.False(t, parsed.Complete)
}

func TestFormatOpRoundTrip(t *testing.T) {
	for _, op := range []FileOp{
		{Kind: OpCreate, Path: "src/app.py", Content: "def main():\n    pass"},
		{Kind: OpUpdate, Path: "src/app.py", Content: "def main():\n    return 1"},
	} {
		parsed := ParseReply(FormatOp(op))
		require.Len(t, parsed.Ops, 1)
		assert.Equal(t, op, parsed.Ops[0])
	}
}
