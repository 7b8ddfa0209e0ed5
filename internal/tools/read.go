package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"unicode/utf8"
)

// binarySniffLen is the prefix size checked for binary content, matching
// the common "look at the first few KB" heuristic (git, file(1)).
const binarySniffLen = 8000

// looksBinary reports whether data appears to be binary rather than text:
// a NUL byte in the sniffed prefix, or a prefix that isn't valid UTF-8.
func looksBinary(data []byte) bool {
	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) != -1 {
		return true
	}
	return !utf8.Valid(sniff)
}

type readInput struct {
	Path string `json:"path"`
}

// ReadTool reads one file's contents from within the sandbox boundary.
// Grounded on the pkg/tools/read_file.go.
type ReadTool struct {
	boundary *Boundary
}

// NewReadTool constructs a ReadTool rooted at boundary.
func NewReadTool(boundary *Boundary) *ReadTool {
	return &ReadTool{boundary: boundary}
}

func (t *ReadTool) Name() string        { return "Read" }
func (t *ReadTool) Description() string { return "Reads the contents of a file at the given path." }

func (t *ReadTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`)
}

func (t *ReadTool) Execute(ctx context.Context, input json.RawMessage) Result {
	var in readInput
	if err := json.Unmarshal(input, &in); err != nil {
		return Result{Error: fmt.Sprintf("Read: invalid input: %v", err)}
	}
	abs, err := t.boundary.Resolve(in.Path)
	if err != nil {
		return Result{Error: err.Error()}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return Result{Error: fmt.Sprintf("Read: %v", err)}
	}
	if looksBinary(data) {
		return Result{Error: fmt.Sprintf("Read: %s appears to be a binary file, refusing to read it as text", in.Path)}
	}
	return Result{Success: true, Content: string(data), SkipCredentialScan: IsCredentialScanBypassed(in.Path)}
}
