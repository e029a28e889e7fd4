package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bitia-ru/wp-hostpath-backup/pkg/match"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/types"
)

type countingReporter struct {
	planned  int
	planDone int
	copied   int
	copyDone int
}

func (r *countingReporter) Planned(int)            { r.planned++ }
func (r *countingReporter) PlanDone(n int)         { r.planDone = n }
func (r *countingReporter) Copied(int, int, int64) { r.copied++ }
func (r *countingReporter) CopyDone(int, int64)    { r.copyDone++ }

func mustMatcher(t *testing.T, patterns []string) *match.Matcher {
	t.Helper()
	m, err := match.New(patterns)
	if err != nil {
		t.Fatalf("match.New(%q) error: %v", patterns, err)
	}
	return m
}

func sources(plan *types.TransferPlan) map[string]bool {
	m := make(map[string]bool)
	for _, e := range plan.Entries {
		m[e.Source] = true
	}
	return m
}

func TestPlan_LogExcluded(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.log"), "log")
	writeFile(t, filepath.Join(src, "a.txt"), "txt")

	p := NewPlanner(mustMatcher(t, []string{"*.log"}), nil, false, nil)
	plan, err := p.Plan(context.Background(), src, filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}

	if plan.TotalCount != 1 || len(plan.Entries) != 1 {
		t.Fatalf("TotalCount = %d, entries = %d, want 1", plan.TotalCount, len(plan.Entries))
	}
	if plan.Entries[0].Source != filepath.Join(src, "a.txt") {
		t.Errorf("Source = %q, want a.txt", plan.Entries[0].Source)
	}
	if plan.SkippedCount != 1 {
		t.Errorf("SkippedCount = %d, want 1", plan.SkippedCount)
	}
}

func TestPlan_MirrorsRelativePaths(t *testing.T) {
	src := t.TempDir()
	files := []string{
		"index.php",
		"wp-admin/admin.php",
		"wp-content/themes/t/style.css",
		"wp-content/uploads/2024/01/photo.jpg",
		"deep/a/b/c/d/e.txt",
	}
	for _, f := range files {
		writeFile(t, filepath.Join(src, f), f)
	}
	out := filepath.Join(t.TempDir(), "out")

	plan, err := NewPlanner(mustMatcher(t, nil), nil, false, nil).Plan(context.Background(), src, out)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if plan.TotalCount != len(files) {
		t.Fatalf("TotalCount = %d, want %d", plan.TotalCount, len(files))
	}

	seen := make(map[string]bool)
	for _, e := range plan.Entries {
		if seen[e.Destination] {
			t.Errorf("duplicate destination %q", e.Destination)
		}
		seen[e.Destination] = true

		srcRel, _ := filepath.Rel(src, e.Source)
		dstRel, _ := filepath.Rel(out, e.Destination)
		if srcRel != dstRel {
			t.Errorf("destination %q does not mirror source %q", e.Destination, e.Source)
		}
		if info, err := os.Stat(filepath.Dir(e.Destination)); err != nil || !info.IsDir() {
			t.Errorf("parent of %q was not created", e.Destination)
		}
		if _, err := os.Stat(e.Destination); !os.IsNotExist(err) {
			t.Errorf("planning must not copy %q", e.Destination)
		}
	}
}

func TestPlan_PrunesExcludedDirectories(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "wp-content", "cache", "page.html"), "x")
	writeFile(t, filepath.Join(src, "wp-content", "cache", "nested", "more.html"), "x")
	writeFile(t, filepath.Join(src, "wp-content", "index.php"), "x")
	out := filepath.Join(t.TempDir(), "out")

	// "*/cache" matches the directory itself, so it is never entered and its
	// files are not even counted as skipped.
	m := mustMatcher(t, []string{"*/cache"})
	plan, err := NewPlanner(m, nil, false, nil).Plan(context.Background(), src, out)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if plan.TotalCount != 1 || plan.SkippedCount != 0 {
		t.Errorf("plan = %d files, %d skipped, want 1 and 0", plan.TotalCount, plan.SkippedCount)
	}
	if _, err := os.Stat(filepath.Join(out, "wp-content", "cache")); !os.IsNotExist(err) {
		t.Error("pruned directory should not be mirrored")
	}
}

func TestPlan_FilePatternInsideDirectory(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "wp-content", "cache", "page.html"), "x")
	writeFile(t, filepath.Join(src, "wp-content", "index.php"), "x")

	// "*/cache/*" does not match the directory path, only its children.
	m := mustMatcher(t, match.DefaultExclusions)
	plan, err := NewPlanner(m, nil, false, nil).Plan(context.Background(), src, filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if plan.TotalCount != 1 || plan.SkippedCount != 1 {
		t.Errorf("plan = %d files, %d skipped, want 1 and 1", plan.TotalCount, plan.SkippedCount)
	}
}

func TestPlan_DanglingSymlinkSkipped(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "real.txt"), "x")
	if err := os.Symlink(filepath.Join(src, "gone.txt"), filepath.Join(src, "dangling")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	plan, err := NewPlanner(mustMatcher(t, nil), nil, false, nil).Plan(context.Background(), src, filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if plan.TotalCount != 1 || plan.SkippedCount != 1 {
		t.Errorf("plan = %d files, %d skipped, want 1 and 1", plan.TotalCount, plan.SkippedCount)
	}
}

func TestPlan_FileSymlinkIncluded(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "real.txt"), "x")
	if err := os.Symlink("real.txt", filepath.Join(src, "alias.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	linkedDir := t.TempDir()
	writeFile(t, filepath.Join(linkedDir, "outside.txt"), "x")
	if err := os.Symlink(linkedDir, filepath.Join(src, "linked")); err != nil {
		t.Fatal(err)
	}

	plan, err := NewPlanner(mustMatcher(t, nil), nil, false, nil).Plan(context.Background(), src, filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	got := sources(plan)
	if len(got) != 2 || !got[filepath.Join(src, "alias.txt")] || !got[filepath.Join(src, "real.txt")] {
		t.Errorf("sources = %v, want real.txt and alias.txt only", got)
	}
}

func TestPlan_ExclusionsUseGivenRoot(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "cache", "site")
	writeFile(t, filepath.Join(target, "index.php"), "x")
	writeFile(t, filepath.Join(target, "wp-content", "cache", "page.html"), "x")
	link := filepath.Join(base, "www")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	m := mustMatcher(t, match.DefaultExclusions)
	plan, err := NewPlanner(m, nil, false, nil).Plan(context.Background(), link, filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if plan.TotalCount != 1 {
		t.Fatalf("TotalCount = %d, want 1 (index.php only)", plan.TotalCount)
	}
	if got := filepath.Base(plan.Entries[0].Source); got != "index.php" {
		t.Errorf("Source = %q, want index.php", plan.Entries[0].Source)
	}
}

func TestPlan_OutputInsideInstallPruned(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "index.php"), "x")
	out := filepath.Join(src, "backups", "site")

	plan, err := NewPlanner(mustMatcher(t, nil), nil, false, nil).Plan(context.Background(), src, out)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if plan.TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1", plan.TotalCount)
	}
}

func TestPlan_DryRunCreatesNothing(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a", "b.txt"), "x")
	out := filepath.Join(t.TempDir(), "out")

	plan, err := NewPlanner(mustMatcher(t, nil), nil, true, nil).Plan(context.Background(), src, out)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if plan.TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1", plan.TotalCount)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("dry run created the output directory")
	}
}

func TestPlan_ReportsProgress(t *testing.T) {
	src := t.TempDir()
	for _, f := range []string{"a", "b", "c"} {
		writeFile(t, filepath.Join(src, f), f)
	}

	r := &countingReporter{}
	plan, err := NewPlanner(mustMatcher(t, nil), r, false, nil).Plan(context.Background(), src, filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if r.planned != 3 || r.planDone != plan.TotalCount {
		t.Errorf("reporter = %+v, want 3 updates and final count %d", r, plan.TotalCount)
	}
}

func TestPlan_InvalidRoot(t *testing.T) {
	p := NewPlanner(mustMatcher(t, nil), nil, false, nil)
	_, err := p.Plan(context.Background(), "/nonexistent/12345", filepath.Join(t.TempDir(), "out"))
	if !errors.Is(err, ErrInvalidInstall) {
		t.Fatalf("Plan() error = %v, want ErrInvalidInstall", err)
	}
}

func TestPlan_UnwritableOutputFails(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a", "b.txt"), "x")
	blocker := filepath.Join(t.TempDir(), "file")
	writeFile(t, blocker, "not a dir")

	_, err := NewPlanner(mustMatcher(t, nil), nil, false, nil).Plan(context.Background(), src, filepath.Join(blocker, "out"))
	if err == nil {
		t.Fatal("expected error when output dir cannot be created")
	}
}

func TestPlan_UnreadableSubdirectorySkipped(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "ok.txt"), "x")
	locked := filepath.Join(src, "locked")
	writeFile(t, filepath.Join(locked, "secret.txt"), "x")
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	plan, err := NewPlanner(mustMatcher(t, nil), nil, false, nil).Plan(context.Background(), src, filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if plan.TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1", plan.TotalCount)
	}
}

func TestPlan_Cancelled(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPlanner(mustMatcher(t, nil), nil, false, nil).Plan(ctx, src, filepath.Join(t.TempDir(), "out"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Plan() error = %v, want context.Canceled", err)
	}
}
