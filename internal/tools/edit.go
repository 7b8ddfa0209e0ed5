package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

type editInput struct {
	Path       string `json:"path"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all"`
}

// EditTool performs an exact string replacement inside an existing file.
// Grounded on the pkg/tools/search_replace.go.
type EditTool struct {
	boundary *Boundary
}

// NewEditTool constructs an EditTool rooted at boundary.
func NewEditTool(boundary *Boundary) *EditTool {
	return &EditTool{boundary: boundary}
}

func (t *EditTool) Name() string { return "Edit" }
func (t *EditTool) Description() string {
	return "Replaces an exact string match in a file with a new string."
}

func (t *EditTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"old_string":{"type":"string"},"new_string":{"type":"string"},"replace_all":{"type":"boolean"}},"required":["path","old_string","new_string"]}`)
}

func (t *EditTool) Execute(ctx context.Context, input json.RawMessage) Result {
	var in editInput
	if err := json.Unmarshal(input, &in); err != nil {
		return Result{Error: fmt.Sprintf("Edit: invalid input: %v", err)}
	}
	if in.OldString == in.NewString {
		return Result{Error: "Edit: old_string and new_string are identical"}
	}
	abs, err := t.boundary.Resolve(in.Path)
	if err != nil {
		return Result{Error: err.Error()}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return Result{Error: fmt.Sprintf("Edit: %v", err)}
	}
	content := string(data)
	count := strings.Count(content, in.OldString)
	if count == 0 {
		return Result{Error: "Edit: old_string not found in file"}
	}
	if count > 1 && !in.ReplaceAll {
		return Result{Error: fmt.Sprintf("Edit: old_string is not unique (%d matches); pass replace_all or a larger unique context", count)}
	}

	bypassed := IsCredentialScanBypassed(in.Path)
	if !bypassed {
		if leak := ScanForCredentials(in.NewString); leak != "" {
			return Result{Error: "credential leak detected in edit content: " + leak}
		}
	}

	var updated string
	if in.ReplaceAll {
		updated = strings.ReplaceAll(content, in.OldString, in.NewString)
	} else {
		updated = strings.Replace(content, in.OldString, in.NewString, 1)
	}
	if err := os.WriteFile(abs, []byte(updated), 0o644); err != nil {
		return Result{Error: fmt.Sprintf("Edit: %v", err)}
	}
	return Result{Success: true, Content: fmt.Sprintf("replaced %d occurrence(s) in %s", count, in.Path), SkipCredentialScan: true}
}
