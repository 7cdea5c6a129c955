package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert_StripsMarkup(t *testing.T) {
	input := `# Getting Started

Introduction text with **bold** and a [link](https://example.com).

## Installation

- Install step one
- Install step two
`

	doc, err := NewConverter().Convert([]byte(input))
	require.NoError(t, err)

	assert.Equal(t, "Getting Started", doc.Title)
	assert.Contains(t, doc.Text, "Introduction text with bold and a link.")
	assert.Contains(t, doc.Text, "Install step one")
	assert.NotContains(t, doc.Text, "**")
	assert.NotContains(t, doc.Text, "https://example.com")
	assert.NotContains(t, doc.Text, "#")
	assert.True(t, strings.HasPrefix(doc.Text, "Getting Started"))
}

func TestConvert_KeepsCode(t *testing.T) {
	input := "# API\n\n```go\nfunc DoSomething() error {\n    return nil\n}\n```\n"

	doc, err := NewConverter().Convert([]byte(input))
	require.NoError(t, err)

	assert.Contains(t, doc.Text, "func DoSomething() error {")
	assert.Contains(t, doc.Text, "    return nil")
	assert.NotContains(t, doc.Text, "```")
}

func TestConvert_NoHeaders(t *testing.T) {
	doc, err := NewConverter().Convert([]byte("Just a paragraph.\nSecond line."))
	require.NoError(t, err)

	assert.Empty(t, doc.Title)
	assert.Equal(t, "Just a paragraph. Second line.", doc.Text)
}

func TestConvert_CollapsesBlankLines(t *testing.T) {
	doc, err := NewConverter().Convert([]byte("One.\n\n\n\n\nTwo.\n"))
	require.NoError(t, err)

	assert.Equal(t, "One.\n\nTwo.", doc.Text)
}

func TestConvert_Empty(t *testing.T) {
	doc, err := NewConverter().Convert(nil)
	require.NoError(t, err)

	assert.Empty(t, doc.Title)
	assert.Empty(t, doc.Text)
}
