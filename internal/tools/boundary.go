package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Boundary resolves relative tool paths against a root directory (the
// sandbox clone) and rejects any path that would escape it. Mirrors the
// validatePath pattern (pkg/tools/file_writer.go, pkg/tools/read_file.go)
// but is shared by every tool instead of duplicated per-tool, and reports
// violations with the "SANDBOX VIOLATION" prefix the phase executor
// matches on.
type Boundary struct {
	root string
}

// NewBoundary canonicalizes root once so every subsequent Resolve call is a
// cheap prefix check.
func NewBoundary(root string) (*Boundary, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("tools: resolve boundary root: %w", err)
	}
	resolved, err := evalSymlinksTolerant(filepath.Clean(abs))
	if err != nil {
		return nil, fmt.Errorf("tools: resolve boundary root: %w", err)
	}
	return &Boundary{root: resolved}, nil
}

// Root returns the boundary's canonical root.
func (b *Boundary) Root() string { return b.root }

// Resolve joins rel onto the boundary root and verifies the canonical
// result still lives under it. The containment check is
// canonical == root || strings.HasPrefix(canonical, root+separator) — a
// plain HasPrefix(canonical, root) would wrongly admit a sibling directory
// that merely shares the root as a string prefix (e.g. root "/a/b" and
// sibling "/a/bc").
//
// canonical is resolved through EvalSymlinks (tolerant of the target not
// existing yet, for Write's create case) before the prefix check, so a
// symlink inside the boundary that points outside it — e.g.
// root/escape -> /etc — cannot be used to read or write outside root.
func (b *Boundary) Resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("SANDBOX VIOLATION: absolute path not allowed: %s", rel)
	}
	joined := filepath.Join(b.root, rel)
	canonical, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("SANDBOX VIOLATION: cannot resolve path %s: %w", rel, err)
	}
	canonical = filepath.Clean(canonical)
	canonical, err = evalSymlinksTolerant(canonical)
	if err != nil {
		return "", fmt.Errorf("SANDBOX VIOLATION: cannot resolve path %s: %w", rel, err)
	}
	if canonical != b.root && !strings.HasPrefix(canonical, b.root+string(filepath.Separator)) {
		return "", fmt.Errorf("SANDBOX VIOLATION: path %s escapes sandbox boundary %s", rel, b.root)
	}
	return canonical, nil
}

// evalSymlinksTolerant resolves symlinks in path like filepath.EvalSymlinks,
// but tolerates the path (or a trailing portion of it) not existing yet:
// it resolves the longest existing ancestor and rejoins the remaining,
// not-yet-created components literally.
func evalSymlinksTolerant(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	dir := filepath.Dir(path)
	if dir == path {
		return path, nil
	}
	resolvedDir, err := evalSymlinksTolerant(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, filepath.Base(path)), nil
}
