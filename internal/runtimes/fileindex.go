package runtimes

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"runtimeviewer/internal/models"
)

// FileIndex maps a file basename to every repository path sharing it.
type FileIndex map[string][]string

// NewFileIndex builds an index from repository-relative paths.
func NewFileIndex(paths []string) FileIndex {
	index := make(FileIndex)
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		name := path.Base(p)
		index[name] = append(index[name], p)
	}
	for name := range index {
		sort.Strings(index[name])
	}
	return index
}

// LoadFileIndex reads either a git tree API response ({"tree":[{"path":...}]})
// or a newline separated list of paths.
func LoadFileIndex(r io.Reader) (FileIndex, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read file index: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var tree struct {
			Tree []struct {
				Path string `json:"path"`
			} `json:"tree"`
		}
		if err := json.Unmarshal(trimmed, &tree); err != nil {
			return nil, fmt.Errorf("parse git tree: %w", err)
		}
		paths := make([]string, 0, len(tree.Tree))
		for _, entry := range tree.Tree {
			paths = append(paths, entry.Path)
		}
		return NewFileIndex(paths), nil
	}

	var paths []string
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	for scanner.Scan() {
		paths = append(paths, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file index: %w", err)
	}
	return NewFileIndex(paths), nil
}

// Annotate attaches candidate files to every batch that has no confident
// match yet. Batches are modified in place.
func Annotate(batches []models.RuntimeBatch, index FileIndex) {
	if len(index) == 0 {
		return
	}
	for i := range batches {
		if batches[i].BestGuessFilenames.Kind() == models.GuessDefinitely {
			continue
		}
		if candidates, ok := index[batches[i].SourceFile]; ok {
			batches[i].BestGuessFilenames = models.Possible(candidates)
		}
	}
}
