package capnp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capnls/internal/diag"
)

func pos(line, char uint32) diag.Position {
	return diag.Position{Line: line, Character: char}
}

func TestParseLineSingleColumn(t *testing.T) {
	d, ok := ParseLine("foo.capnp:32:9: error: Parse error.", ParseOptions{})
	require.True(t, ok)
	assert.Equal(t, diag.Range{Start: pos(31, 8), End: pos(31, 8)}, d.Range)
	assert.Equal(t, diag.SevError, d.Severity)
	assert.Equal(t, "capnls", d.Source)
	assert.Equal(t, "Parse error", d.Message)
}

func TestParseLineColumnRange(t *testing.T) {
	d, ok := ParseLine("/tmp/x/foo.capnp:4:3-14: error: Duplicate ordinal number.", ParseOptions{})
	require.True(t, ok)
	assert.Equal(t, pos(3, 2), d.Range.Start)
	assert.Equal(t, pos(3, 13), d.Range.End)
	assert.Equal(t, "Duplicate ordinal number", d.Message)
}

func TestParseLineSaturatesAtZero(t *testing.T) {
	tests := []struct {
		line string
		want diag.Range
	}{
		{"f:1:1: error: m.", diag.Range{Start: pos(0, 0), End: pos(0, 0)}},
		{"f:0:0: error: m.", diag.Range{Start: pos(0, 0), End: pos(0, 0)}},
		{"f:0:0-1: error: m.", diag.Range{Start: pos(0, 0), End: pos(0, 0)}},
		{"f:2:0-5: error: m.", diag.Range{Start: pos(1, 0), End: pos(1, 4)}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			d, ok := ParseLine(tt.line, ParseOptions{})
			require.True(t, ok)
			assert.Equal(t, tt.want, d.Range)
		})
	}
}

func TestParseLineMessageNormalisation(t *testing.T) {
	tests := map[string]string{
		"f:1:1: error:   padded message.  ":      "padded message",
		"f:1:1: error: ends with two..":          "ends with two.",
		"f:1:1: error: no period":                "no period",
		"f:1:1: error: a: b: c.":                 "a: b: c",
		"f:1:1: error: crlf.\r\n":                "crlf",
		"f:1:1: error: Not defined: Cafe\u0301.": "Not defined: Cafe\u0301",
	}
	for line, want := range tests {
		d, ok := ParseLine(line, ParseOptions{})
		require.True(t, ok, line)
		assert.Equal(t, want, d.Message, line)
	}
}

func TestParseLineHintClassification(t *testing.T) {
	d, ok := ParseLine("foo.capnp:3:7-9: error: Ordinal @0 originally used here.", ParseOptions{})
	require.True(t, ok)
	assert.Equal(t, diag.SevHint, d.Severity)

	d, ok = ParseLine("foo.capnp:3:7-9: error: originally used here by someone else.", ParseOptions{})
	require.True(t, ok)
	assert.Equal(t, diag.SevError, d.Severity)
}

func TestParseLineRejectsMalformed(t *testing.T) {
	lines := []string{
		"",
		"capnp compile: no outputs specified",
		"foo.capnp:3: error: too few colons.",
		"foo.capnp:3:9: warning: not an error.",
		"foo.capnp:3:9: note: something.",
		"foo.capnp:3:9:error: missing space.",
		"foo.capnp:x:9: error: bad line.",
		"foo.capnp:3:a-b: error: bad column.",
		"foo.capnp:3:9-: error: open range.",
		"foo.capnp:-3:9: error: negative line.",
		"foo.capnp:3:4294967297: error: column overflow.",
		"foo.capnp:3:1-4294967297: error: end column overflow.",
		"foo.capnp:99999999999:1: error: line overflow.",
	}
	for _, line := range lines {
		_, ok := ParseLine(line, ParseOptions{})
		assert.False(t, ok, "line %q should be skipped", line)
	}
}

func TestParseLineMaxUint32Column(t *testing.T) {
	d, ok := ParseLine("f:1:4294967295: error: m.", ParseOptions{})
	require.True(t, ok)
	assert.Equal(t, uint32(4294967294), d.Range.Start.Character)
}

func TestParseLineWarningsOptIn(t *testing.T) {
	line := "foo.capnp:2:1-20: warning: Import bar.capnp is unused."
	_, ok := ParseLine(line, ParseOptions{})
	assert.False(t, ok)

	d, ok := ParseLine(line, ParseOptions{Warnings: true})
	require.True(t, ok)
	assert.Equal(t, diag.SevWarning, d.Severity)
	assert.Equal(t, "Import bar.capnp is unused", d.Message)
}

func TestParseKeepsOrderAndSkipsNoise(t *testing.T) {
	text := "foo.capnp:4:3-14: error: Duplicate ordinal number.\n" +
		"\n" +
		"some summary line\n" +
		"foo.capnp:3:3-14: error: Ordinal @0 originally used here.\n" +
		"foo.capnp:9:1: warning: ignored.\n" +
		"foo.capnp:10:5-8: error: Not defined: Foo"

	list := Parse(text, ParseOptions{})
	require.Len(t, list, 3)
	assert.Equal(t, diag.SevError, list[0].Severity)
	assert.Equal(t, diag.SevHint, list[1].Severity)
	assert.Equal(t, uint32(2), list[1].Range.Start.Line)
	assert.Equal(t, "Not defined: Foo", list[2].Message)
	assert.Equal(t, pos(9, 4), list[2].Range.Start)
	assert.Equal(t, pos(9, 7), list[2].Range.End)
}

func TestParseEmpty(t *testing.T) {
	assert.Empty(t, Parse("", ParseOptions{}))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, diag.SevHint, Classify("Field @1 originally used here"))
	assert.Equal(t, diag.SevError, Classify("Duplicate ordinal number"))
	assert.Equal(t, diag.SevError, Classify(""))
}
