package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

type grepInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path"`
	Glob    string `json:"glob"`
}

// GrepTool searches file contents by regular expression under the sandbox
// boundary. Grounded on the pkg/tools/grep_search.go.
type GrepTool struct {
	boundary *Boundary
}

// NewGrepTool constructs a GrepTool rooted at boundary.
func NewGrepTool(boundary *Boundary) *GrepTool {
	return &GrepTool{boundary: boundary}
}

func (t *GrepTool) Name() string        { return "Grep" }
func (t *GrepTool) Description() string { return "Searches file contents by regular expression." }

func (t *GrepTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"pattern":{"type":"string"},"path":{"type":"string"},"glob":{"type":"string"}},"required":["pattern"]}`)
}

func (t *GrepTool) Execute(ctx context.Context, input json.RawMessage) Result {
	var in grepInput
	if err := json.Unmarshal(input, &in); err != nil {
		return Result{Error: fmt.Sprintf("Grep: invalid input: %v", err)}
	}
	re, err := regexp.Compile(in.Pattern)
	if err != nil {
		return Result{Error: fmt.Sprintf("Grep: invalid pattern: %v", err)}
	}
	root := in.Path
	if root == "" {
		root = "."
	}
	absRoot, err := t.boundary.Resolve(root)
	if err != nil {
		return Result{Error: err.Error()}
	}

	var lines []string
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
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
		if in.Glob != "" {
			if ok, _ := filepath.Match(in.Glob, filepath.Base(rel)); !ok {
				return nil
			}
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if re.MatchString(scanner.Text()) {
				lines = append(lines, fmt.Sprintf("%s:%d:%s", rel, lineNo, scanner.Text()))
			}
		}
		return nil
	})
	if walkErr != nil {
		return Result{Error: fmt.Sprintf("Grep: %v", walkErr)}
	}

	const firstN = 20000
	content := joinTruncated(lines, firstN)
	return Result{Success: true, Content: content}
}

func joinTruncated(lines []string, maxChars int) string {
	var out string
	for i, l := range lines {
		if len(out)+len(l)+1 > maxChars {
			out += fmt.Sprintf("\n... (truncated, %d more lines omitted)", len(lines)-i)
			break
		}
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
