package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// globResultCap bounds the truncation the context manager further applies
//, but it's also applied here so a
// single tool call can't balloon past a sane result before compaction ever
// sees it.
const globResultCap = 200

type globInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path"`
}

// GlobTool matches files by glob pattern under the sandbox boundary.
// Grounded on the pkg/tools/search.go file-discovery helpers.
type GlobTool struct {
	boundary *Boundary
}

// NewGlobTool constructs a GlobTool rooted at boundary.
func NewGlobTool(boundary *Boundary) *GlobTool {
	return &GlobTool{boundary: boundary}
}

func (t *GlobTool) Name() string        { return "Glob" }
func (t *GlobTool) Description() string { return "Finds files matching a glob pattern." }

func (t *GlobTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"pattern":{"type":"string"},"path":{"type":"string"}},"required":["pattern"]}`)
}

func (t *GlobTool) Execute(ctx context.Context, input json.RawMessage) Result {
	var in globInput
	if err := json.Unmarshal(input, &in); err != nil {
		return Result{Error: fmt.Sprintf("Glob: invalid input: %v", err)}
	}
	root := in.Path
	if root == "" {
		root = "."
	}
	absRoot, err := t.boundary.Resolve(root)
	if err != nil {
		return Result{Error: err.Error()}
	}

	var matches []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		ok, err := filepath.Match(in.Pattern, rel)
		if err == nil && ok {
			matches = append(matches, rel)
			return nil
		}
		ok, err = filepath.Match(in.Pattern, filepath.Base(rel))
		if err == nil && ok {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return Result{Error: fmt.Sprintf("Glob: %v", err)}
	}
	sort.Strings(matches)
	truncated := false
	if len(matches) > globResultCap {
		matches = matches[:globResultCap]
		truncated = true
	}
	content := strings.Join(matches, "\n")
	if truncated {
		content += fmt.Sprintf("\n... (truncated to first %d matches)", globResultCap)
	}
	return Result{Success: true, Content: content}
}
