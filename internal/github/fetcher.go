// Package github reads documents for ingestion from a GitHub repository directory.
package github

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"

	"github.com/bull/rag-chat-server/internal/document"
	"github.com/bull/rag-chat-server/internal/markdown"
)

// DefaultExtensions are the file types fetched when none are configured.
var DefaultExtensions = []string{".txt", ".md"}

// Fetcher lists and downloads documents below a repository path.
type Fetcher struct {
	client     *Client
	owner      string
	repo       string
	basePath   string
	extensions []string
	converter  *markdown.Converter
}

var _ document.Source = (*Fetcher)(nil)

// NewFetcher creates a fetcher for owner/repo rooted at basePath.
func NewFetcher(client *Client, owner, repo, basePath string, extensions ...string) *Fetcher {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	return &Fetcher{
		client:     client,
		owner:      owner,
		repo:       repo,
		basePath:   strings.Trim(basePath, "/"),
		extensions: extensions,
		converter:  markdown.NewConverter(),
	}
}

// Documents fetches every matching file. IDs have the form owner/repo/path.
func (f *Fetcher) Documents(ctx context.Context) ([]document.Document, error) {
	paths, err := f.ListDocs(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]document.Document, 0, len(paths))
	for _, rel := range paths {
		raw, err := f.FetchDoc(ctx, rel)
		if err != nil {
			return nil, err
		}

		id := path.Join(f.owner, f.repo, f.basePath, rel)
		doc, err := document.Normalize(f.converter, id, []byte(raw))
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", id, err)
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// ListDocs recursively lists matching files relative to the base path.
func (f *Fetcher) ListDocs(ctx context.Context) ([]string, error) {
	return f.listDocsRecursive(ctx, f.basePath, "")
}

func (f *Fetcher) listDocsRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var docs []string

	_, dirContents, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		name := item.GetName()
		if name == "" {
			continue
		}
		itemRelPath := path.Join(relativePath, name)

		switch item.GetType() {
		case "file":
			if f.wanted(name) {
				docs = append(docs, itemRelPath)
			}
		case "dir":
			subDocs, err := f.listDocsRecursive(ctx, path.Join(fullPath, name), itemRelPath)
			if err != nil {
				return nil, err
			}
			docs = append(docs, subDocs...)
		}
	}

	return docs, nil
}

// FetchDoc downloads and decodes one file.
func (f *Fetcher) FetchDoc(ctx context.Context, relativePath string) (string, error) {
	fullPath := path.Join(f.basePath, relativePath)

	fileContent, _, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, fullPath, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get content of %s: %w", fullPath, err)
	}
	if fileContent == nil {
		return "", fmt.Errorf("no file content returned for %s", fullPath)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return "", fmt.Errorf("failed to decode content of %s: %w", fullPath, err)
	}
	return content, nil
}

// LatestCommitSHA returns the most recent commit touching the base path.
func (f *Fetcher) LatestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := f.client.Repositories.ListCommits(ctx, f.owner, f.repo, &github.CommitsListOptions{
		Path:        f.basePath,
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}
	if len(commits) == 0 || commits[0].SHA == nil {
		return "", fmt.Errorf("no commits found for path %s", f.basePath)
	}

	return commits[0].GetSHA(), nil
}

func (f *Fetcher) wanted(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range f.extensions {
		if ext == e {
			return true
		}
	}
	return false
}
