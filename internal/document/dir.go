package document

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/bull/rag-chat-server/internal/markdown"
)

// DefaultPattern matches the plain-text files at the top of the data directory.
const DefaultPattern = "*.txt"

// DirSource reads every file under Root whose relative path matches Pattern.
// Patterns use doublestar syntax, so "**/*.{txt,md}" walks subdirectories.
type DirSource struct {
	Root    string
	Pattern string

	fsys      fs.FS
	converter *markdown.Converter
}

// NewDirSource creates a source over root. An empty pattern selects DefaultPattern.
func NewDirSource(root, pattern string) *DirSource {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &DirSource{
		Root:      root,
		Pattern:   pattern,
		fsys:      os.DirFS(root),
		converter: markdown.NewConverter(),
	}
}

// Documents returns the matching files sorted by path. IDs are root-joined paths.
func (s *DirSource) Documents(ctx context.Context) ([]Document, error) {
	matches, err := doublestar.Glob(s.fsys, s.Pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q in %s: %w", s.Pattern, s.Root, err)
	}
	sort.Strings(matches)

	docs := make([]Document, 0, len(matches))
	for _, rel := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := fs.Stat(s.fsys, rel)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", rel, err)
		}
		if info.IsDir() {
			continue
		}

		raw, err := fs.ReadFile(s.fsys, rel)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rel, err)
		}

		doc, err := Normalize(s.converter, path.Join(s.Root, rel), raw)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", rel, err)
		}
		docs = append(docs, doc)
	}

	return docs, nil
}
