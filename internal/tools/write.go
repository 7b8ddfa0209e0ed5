package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type writeInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// WriteTool creates a new file within the sandbox boundary; it refuses to
// overwrite a file that already exists.
// Grounded on the pkg/tools/file_writer.go.
type WriteTool struct {
	boundary *Boundary
}

// NewWriteTool constructs a WriteTool rooted at boundary.
func NewWriteTool(boundary *Boundary) *WriteTool {
	return &WriteTool{boundary: boundary}
}

func (t *WriteTool) Name() string { return "Write" }
func (t *WriteTool) Description() string {
	return "Creates a new file (and parent directories) with the given content. Fails if the file already exists; use Edit to modify an existing file."
}

func (t *WriteTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`)
}

func (t *WriteTool) Execute(ctx context.Context, input json.RawMessage) Result {
	var in writeInput
	if err := json.Unmarshal(input, &in); err != nil {
		return Result{Error: fmt.Sprintf("Write: invalid input: %v", err)}
	}
	abs, err := t.boundary.Resolve(in.Path)
	if err != nil {
		return Result{Error: err.Error()}
	}
	if _, statErr := os.Stat(abs); statErr == nil {
		return Result{Error: fmt.Sprintf("Write: %s already exists; use Edit to modify it", in.Path)}
	} else if !os.IsNotExist(statErr) {
		return Result{Error: fmt.Sprintf("Write: %v", statErr)}
	}
	bypassed := IsCredentialScanBypassed(in.Path)
	if !bypassed {
		if leak := ScanForCredentials(in.Content); leak != "" {
			return Result{Error: "credential leak detected in write content: " + leak}
		}
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return Result{Error: fmt.Sprintf("Write: %v", err)}
	}
	if err := os.WriteFile(abs, []byte(in.Content), 0o644); err != nil {
		return Result{Error: fmt.Sprintf("Write: %v", err)}
	}
	return Result{
		Success:            true,
		Content:            fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path),
		SkipCredentialScan: true,
	}
}
