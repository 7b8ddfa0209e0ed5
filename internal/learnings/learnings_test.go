package learnings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadReturnsEmptyWhenNoFilesConfigured(t *testing.T) {
	l := Loader{}
	if got := l.Load(); got != "" {
		t.Fatalf("expected empty preamble, got %q", got)
	}
}

func TestLoadReturnsEmptyWhenFilesMissing(t *testing.T) {
	dir := t.TempDir()
	l := Loader{
		LearningsFilePath: filepath.Join(dir, "missing-learnings.md"),
		PatternsFilePath:  filepath.Join(dir, "missing-patterns.yaml"),
	}
	if got := l.Load(); got != "" {
		t.Fatalf("expected empty preamble for missing files, got %q", got)
	}
}

func TestLoadIncludesLearningsFileText(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "learnings.md", "Prefer table-driven tests in this codebase.")
	l := Loader{LearningsFilePath: path}
	got := l.Load()
	if !strings.Contains(got, header) {
		t.Fatalf("expected header in output, got %q", got)
	}
	if !strings.Contains(got, "table-driven tests") {
		t.Fatalf("expected learnings text in output, got %q", got)
	}
}

func TestLoadDropsResolvedPatternsAndSortsByOccurrence(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
patterns:
  - identifier: P1
    summary: low occurrence pattern
    occurrenceCount: 2
    resolved: false
  - identifier: P2
    summary: high occurrence pattern
    occurrenceCount: 9
    resolved: false
  - identifier: P3
    summary: resolved pattern should be dropped
    occurrenceCount: 100
    resolved: true
`
	path := writeFile(t, dir, "patterns.yaml", yamlContent)
	l := Loader{PatternsFilePath: path}
	got := l.Load()

	if strings.Contains(got, "resolved pattern should be dropped") {
		t.Fatalf("expected resolved pattern to be dropped, got %q", got)
	}
	p1Idx := strings.Index(got, "P1")
	p2Idx := strings.Index(got, "P2")
	if p1Idx == -1 || p2Idx == -1 {
		t.Fatalf("expected both unresolved patterns present, got %q", got)
	}
	if p2Idx > p1Idx {
		t.Fatalf("expected higher-occurrence pattern P2 to sort before P1, got %q", got)
	}
}

func TestLoadKeepsAtMostTenPatterns(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("patterns:\n")
	for i := 0; i < 15; i++ {
		b.WriteString("  - identifier: P")
		b.WriteString(string(rune('A' + i)))
		b.WriteString("\n    summary: pattern\n    occurrenceCount: ")
		b.WriteString(string(rune('0' + (i % 10))))
		b.WriteString("\n    resolved: false\n")
	}
	path := writeFile(t, dir, "patterns.yaml", b.String())
	l := Loader{PatternsFilePath: path}
	got := l.Load()

	count := strings.Count(got, "- [P")
	if count != maxPatterns {
		t.Fatalf("expected exactly %d rendered patterns, got %d in %q", maxPatterns, count, got)
	}
}

func TestLoadSwallowsMalformedPatternFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "patterns.yaml", "not: [valid, yaml: shape")
	l := Loader{PatternsFilePath: path}
	if got := l.Load(); got != "" {
		t.Fatalf("expected empty preamble for malformed patterns file, got %q", got)
	}
}

func TestLoadTruncatesToTailWithEllipsis(t *testing.T) {
	dir := t.TempDir()
	long := strings.Repeat("learning-line\n", 500)
	path := writeFile(t, dir, "learnings.md", long)
	l := Loader{LearningsFilePath: path}
	got := l.Load()

	if len(got) > maxPreambleSize {
		t.Fatalf("expected preamble capped at %d chars, got %d", maxPreambleSize, len(got))
	}
	if !strings.HasPrefix(got, truncationMark) {
		t.Fatalf("expected truncated preamble to start with ellipsis marker, got %q", got[:20])
	}
	if !strings.HasSuffix(strings.TrimRight(got, "\n"), "learning-line") {
		t.Fatalf("expected truncated preamble to preserve the tail, got %q", got[len(got)-40:])
	}
}

func TestLoadAcceptsBareListShape(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
- identifier: P1
  summary: bare list pattern
  occurrenceCount: 1
  resolved: false
`
	path := writeFile(t, dir, "patterns.yaml", yamlContent)
	l := Loader{PatternsFilePath: path}
	got := l.Load()
	if !strings.Contains(got, "bare list pattern") {
		t.Fatalf("expected bare-list pattern file to parse, got %q", got)
	}
}
