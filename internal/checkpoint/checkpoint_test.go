package checkpoint

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available in test environment")
	}
}

func initRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	os.WriteFile(filepath.Join(dir, "f.txt"), []byte("v1"), 0o644)
	run("add", ".")
	run("commit", "-m", "init")
}

func TestSlugNormalizesDisplayName(t *testing.T) {
	cases := map[string]string{
		"Architect Review!!":    "architect-review",
		"  leading/trailing  ":  "leading-trailing",
		"already-slugged":       "already-slugged",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTagNameFormat(t *testing.T) {
	got := TagName("sess-1", 2, "Dev Implementation")
	want := "ff-checkpoint/sess-1/pre-2-dev-implementation"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCreateIsIdempotentPerPhase(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	initRepo(t, dir)
	m := NewManager(dir)

	tag1, err := m.Create(context.Background(), "sess-1", 0, "Architect")
	if err != nil {
		t.Fatal(err)
	}
	tag2, err := m.Create(context.Background(), "sess-1", 0, "Architect")
	if err != nil {
		t.Fatal(err)
	}
	if tag1 != tag2 {
		t.Fatalf("expected the same tag on retry, got %q and %q", tag1, tag2)
	}
}

func TestRollbackResetsWorkingTree(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	initRepo(t, dir)
	m := NewManager(dir)

	tag, err := m.Create(context.Background(), "sess-1", 0, "Dev")
	if err != nil {
		t.Fatal(err)
	}

	os.WriteFile(filepath.Join(dir, "f.txt"), []byte("v2-dirty"), 0o644)
	os.WriteFile(filepath.Join(dir, "untracked.txt"), []byte("oops"), 0o644)

	if err := m.Rollback(context.Background(), tag); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "f.txt"))
	if err != nil || string(got) != "v1" {
		t.Fatalf("expected f.txt restored to v1, got %q err=%v", got, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "untracked.txt")); !os.IsNotExist(err) {
		t.Fatal("expected untracked.txt to be removed by git clean")
	}
}

func TestCleanupDeletesAllSessionTags(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	initRepo(t, dir)
	m := NewManager(dir)

	m.Create(context.Background(), "sess-1", 0, "Architect")
	m.Create(context.Background(), "sess-1", 1, "Dev")
	m.Create(context.Background(), "sess-2", 0, "Architect")

	if err := m.Cleanup(context.Background(), "sess-1"); err != nil {
		t.Fatal(err)
	}

	exists1, _ := m.tagExists(context.Background(), TagName("sess-1", 0, "Architect"))
	exists2, _ := m.tagExists(context.Background(), TagName("sess-2", 0, "Architect"))
	if exists1 {
		t.Fatal("expected sess-1 tags to be deleted")
	}
	if !exists2 {
		t.Fatal("expected sess-2 tags to remain")
	}
}

func TestDisableMakesCreateAndRollbackNoOps(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	initRepo(t, dir)
	m := NewManager(dir)
	m.Disable()

	tag, err := m.Create(context.Background(), "sess-1", 0, "Architect")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tag != "" {
		t.Fatalf("expected empty tag when disabled, got %q", tag)
	}
	exists, err := m.tagExists(context.Background(), TagName("sess-1", 0, "Architect"))
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("expected no tag to be created while disabled")
	}
	if err := m.Rollback(context.Background(), "ff-checkpoint/sess-1/pre-0-architect"); err != nil {
		t.Fatalf("expected Rollback to no-op while disabled, got %v", err)
	}
}
