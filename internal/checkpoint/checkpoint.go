// Package checkpoint creates and rolls back git-tag checkpoints around
// phase execution, and purges a session's tags once they're no longer
// needed. Adapted from the session-state checkpoint Manager/Storage split
// (pkg/checkpoint/manager.go, pkg/checkpoint/storage.go) but backed by
// lightweight git tags at HEAD instead of a JSON-serialized snapshot,
// since rollback here means reverting a working tree, not replaying an
// in-memory session.
package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases displayName, collapses runs of non-alphanumerics to a
// single hyphen, and strips leading/trailing hyphens.
func Slug(displayName string) string {
	lower := strings.ToLower(displayName)
	collapsed := nonAlphanumeric.ReplaceAllString(lower, "-")
	return strings.Trim(collapsed, "-")
}

// TagName returns the canonical checkpoint tag name for a phase.
func TagName(sessionID string, phaseIndex int, phaseDisplayName string) string {
	return fmt.Sprintf("ff-checkpoint/%s/pre-%d-%s", sessionID, phaseIndex, Slug(phaseDisplayName))
}

// Manager creates and resolves checkpoint tags inside one git working tree.
type Manager struct {
	repoDir string
	// disabled makes Create a no-op returning an empty tag, and Rollback
	// an immediate no-op. Set via Disable() when an operator turns
	// checkpointing off for the whole run.
	disabled bool
}

// NewManager builds a Manager rooted at repoDir.
func NewManager(repoDir string) *Manager {
	return &Manager{repoDir: repoDir}
}

// Disable turns every subsequent Create/Rollback into a no-op. Used when
// an operator disables git checkpointing for the run.
func (m *Manager) Disable() {
	m.disabled = true
}

func (m *Manager) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.repoDir
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, errBuf.String())
	}
	return strings.TrimSpace(out.String()), nil
}

// Create tags HEAD with the canonical checkpoint name for (sessionID,
// phaseIndex, phaseDisplayName) and returns the tag name. Idempotent: if
// the tag already exists (a retry reusing the phase's one checkpoint), the
// existing tag is left untouched and its name is returned.
func (m *Manager) Create(ctx context.Context, sessionID string, phaseIndex int, phaseDisplayName string) (string, error) {
	if m.disabled {
		return "", nil
	}
	tag := TagName(sessionID, phaseIndex, phaseDisplayName)
	if exists, err := m.tagExists(ctx, tag); err != nil {
		return "", err
	} else if exists {
		return tag, nil
	}
	if _, err := m.git(ctx, "tag", tag, "HEAD"); err != nil {
		return "", fmt.Errorf("checkpoint: create tag %s: %w", tag, err)
	}
	return tag, nil
}

func (m *Manager) tagExists(ctx context.Context, tag string) (bool, error) {
	out, err := m.git(ctx, "tag", "--list", tag)
	if err != nil {
		return false, fmt.Errorf("checkpoint: list tag %s: %w", tag, err)
	}
	return out != "", nil
}

// Rollback resets the working tree to tagName and removes untracked files,
// preserving gitignored ones. This is the equivalent of
// `git reset --hard <tag> && git clean -fd`.
func (m *Manager) Rollback(ctx context.Context, tagName string) error {
	if m.disabled || tagName == "" {
		return nil
	}
	if _, err := m.git(ctx, "reset", "--hard", tagName); err != nil {
		return fmt.Errorf("checkpoint: reset to %s: %w", tagName, err)
	}
	if _, err := m.git(ctx, "clean", "-fd"); err != nil {
		return fmt.Errorf("checkpoint: clean after reset to %s: %w", tagName, err)
	}
	return nil
}

// Cleanup deletes every checkpoint tag belonging to sessionID.
func (m *Manager) Cleanup(ctx context.Context, sessionID string) error {
	prefix := fmt.Sprintf("ff-checkpoint/%s/", sessionID)
	out, err := m.git(ctx, "tag", "--list", prefix+"*")
	if err != nil {
		return fmt.Errorf("checkpoint: list session tags: %w", err)
	}
	if out == "" {
		return nil
	}
	for _, tag := range strings.Split(out, "\n") {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, err := m.git(ctx, "tag", "-d", tag); err != nil {
			return fmt.Errorf("checkpoint: delete tag %s: %w", tag, err)
		}
	}
	return nil
}
