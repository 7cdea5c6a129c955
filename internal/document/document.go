// Package document enumerates the documents fed to the ingestion pipeline.
package document

import (
	"context"
	"path"
	"strings"

	"github.com/bull/rag-chat-server/internal/markdown"
)

// Document is one source text with its identifier.
type Document struct {
	ID      string // Source identifier recorded in chunk metadata
	Title   string
	Content string
}

// Source lists every document to index.
type Source interface {
	Documents(ctx context.Context) ([]Document, error)
}

// Normalize converts markdown files to plain text and leaves everything else as is.
func Normalize(conv *markdown.Converter, id string, raw []byte) (Document, error) {
	switch strings.ToLower(path.Ext(id)) {
	case ".md", ".markdown":
		doc, err := conv.Convert(raw)
		if err != nil {
			return Document{}, err
		}
		return Document{ID: id, Title: doc.Title, Content: doc.Text}, nil
	default:
		return Document{ID: id, Content: string(raw)}, nil
	}
}
