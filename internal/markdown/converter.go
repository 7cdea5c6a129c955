// Package markdown converts markdown documents to plain text for chunking.
package markdown

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// Document is the plain-text rendering of a markdown source.
type Document struct {
	Title string // Text of the first top-level heading, empty if none
	Text  string // Prose with markup removed, one blank line between blocks
}

// Converter strips markdown syntax while keeping text and code content.
type Converter struct {
	parser goldmark.Markdown
}

// NewConverter creates a new markdown converter configured with goldmark parser.
func NewConverter() *Converter {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Converter{
		parser: md,
	}
}

// Convert parses source and returns its title and plain text.
func (c *Converter) Convert(source []byte) (*Document, error) {
	doc := c.parser.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true), // Remove empty items
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	var title string
	if len(tree.Items) > 0 {
		title = string(tree.Items[0].Title)
	}

	var buf bytes.Buffer
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				buf.WriteString("\n\n")
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			writeLines(&buf, n.Lines(), source)
			buf.WriteString("\n")
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			buf.Write(node.Segment.Value(source))
			if node.HardLineBreak() {
				buf.WriteString("\n")
			} else if node.SoftLineBreak() {
				buf.WriteString(" ")
			}
		case *ast.String:
			buf.Write(node.Value)
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown: %w", err)
	}

	plain := blankLines.ReplaceAllString(buf.String(), "\n\n")
	return &Document{
		Title: title,
		Text:  strings.TrimSpace(plain),
	}, nil
}

// writeLines copies the raw content of a block's line segments.
func writeLines(buf *bytes.Buffer, lines *text.Segments, source []byte) {
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
}
