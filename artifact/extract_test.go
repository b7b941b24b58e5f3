package artifact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestExtract_TaggedBlock(t *testing.T) {
	raw := "Here you go:\n```CODE_OUTPUT: answer.py : python\nprint(42)\n```\nEnjoy."

	cleaned, art := Extract("Claude", raw)
	require.NotNil(t, art)

	assert.Equal(t, "Claude", art.Agent)
	assert.Equal(t, "answer.py", art.Filename)
	assert.Equal(t, "python", art.Language)
	assert.Equal(t, "print(42)", art.Content)
	assert.Equal(t, "Here you go:\n[Code file 'answer.py' added to artifacts]\nEnjoy.", cleaned)
	assert.NotContains(t, cleaned, "```")
}

func TestExtract_BareBlock(t *testing.T) {
	raw := "```index.html:html\n<h1>hi</h1>\n```"

	cleaned, art := Extract("Gemini", raw)
	require.NotNil(t, art)
	assert.Equal(t, "index.html", art.Filename)
	assert.Equal(t, "html", art.Language)
	assert.Equal(t, "[Code file 'index.html' added to artifacts]", cleaned)
}

func TestExtract_NoBlock(t *testing.T) {
	for _, raw := range []string{
		"",
		"plain text",
		"```python\nprint(1)\n```",
		"```CODE_OUTPUT:unterminated.py:python\nprint(1)",
	} {
		cleaned, art := Extract("A", raw)
		assert.Nil(t, art, raw)
		assert.Equal(t, raw, cleaned)
	}
}

func TestExtract_FirstBlockOnly(t *testing.T) {
	raw := "```main.go:go\npackage main\n```\nand\n```CODE_OUTPUT:b.py:python\nx = 1\n```"

	cleaned, art := Extract("A", raw)
	require.NotNil(t, art)
	assert.Equal(t, "main.go", art.Filename)
	assert.Contains(t, cleaned, "```CODE_OUTPUT:b.py:python\nx = 1\n```")
	assert.True(t, strings.HasPrefix(cleaned, PartialPlaceholder("main.go")))

	again, second := Extract("A", cleaned)
	assert.Nil(t, second)
	assert.Equal(t, cleaned, again)
}

func TestExtract_QuotedPlaceholderDoesNotHideBlock(t *testing.T) {
	raw := "Building on " + Placeholder("a.py") + " from Claude:\n```CODE_OUTPUT:b.py:python\nx = 2\n```"

	cleaned, art := Extract("Grok", raw)
	require.NotNil(t, art)
	assert.Equal(t, "b.py", art.Filename)
	assert.Equal(t, "x = 2", art.Content)
	assert.NotContains(t, cleaned, "```")
	assert.Equal(t, "Building on "+Placeholder("a.py")+" from Claude:\n"+Placeholder("b.py"), cleaned)

	again, second := Extract("Grok", cleaned)
	assert.Nil(t, second)
	assert.Equal(t, cleaned, again)
}

func TestExtract_PartialMarkerIsProcessed(t *testing.T) {
	raw := PartialPlaceholder("a.py") + "\n```CODE_OUTPUT:b.py:python\nx = 2\n```"

	cleaned, art := Extract("A", raw)
	assert.Nil(t, art)
	assert.Equal(t, raw, cleaned)
}

func TestExtract_Idempotent(t *testing.T) {
	pieces := []string{
		"hello ", "\n", "```", "CODE_OUTPUT:", "a.py", ":", "python", "x=1",
		"```b.js:javascript\n", "[Code file 'z' added to artifacts]", " ", "'",
		"[Code file 'y' added to artifacts; later code blocks kept inline]",
	}

	rapid.Check(t, func(t *rapid.T) {
		parts := rapid.SliceOf(rapid.SampledFrom(pieces)).Draw(t, "parts")
		raw := strings.Join(parts, "")

		cleaned, _ := Extract("A", raw)
		again, art := Extract("A", cleaned)
		if art != nil {
			t.Fatalf("second extraction produced %+v from %q", art, cleaned)
		}
		if again != cleaned {
			t.Fatalf("cleaned text changed: %q -> %q", cleaned, again)
		}
	})
}
