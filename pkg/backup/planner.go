package backup

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitia-ru/wp-hostpath-backup/pkg/match"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/progress"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/types"
)

// Planner walks an install tree and decides which files to copy. It never
// copies file contents; it only prepares the destination directory tree.
type Planner struct {
	matcher  *match.Matcher
	progress progress.Reporter
	dryRun   bool
	logger   *slog.Logger
}

// NewPlanner returns a Planner. In dry-run mode no destination directories
// are created.
func NewPlanner(matcher *match.Matcher, reporter progress.Reporter, dryRun bool, logger *slog.Logger) *Planner {
	if reporter == nil {
		reporter = progress.Nop{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Planner{
		matcher:  matcher,
		progress: reporter,
		dryRun:   dryRun,
		logger:   logger.With("component", "planner"),
	}
}

// Plan walks installRoot and returns the files to copy into outputDir.
// Excluded directories are pruned before they are entered. Excluded,
// vanished and non-regular files are counted as skipped. Errors reading the
// source tree below the root are logged and skipped; failing to create a
// destination directory is returned.
func (p *Planner) Plan(ctx context.Context, installRoot, outputDir string) (*types.TransferPlan, error) {
	root, err := filepath.Abs(installRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving install root: %w", err)
	}
	out, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("resolving output dir: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInstall, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %q is not a directory", ErrInvalidInstall, root)
	}
	// WalkDir does not descend into a symlinked root. Exclusions are still
	// matched against paths below the root as given.
	given := root
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	w := &planWalk{
		Planner: p,
		root:    root,
		given:   given,
		out:     out,
		created: make(map[string]bool),
		plan:    &types.TransferPlan{},
	}

	if err := w.ensureDir(out); err != nil {
		return nil, err
	}
	w.outReal = out
	if resolved, err := filepath.EvalSymlinks(out); err == nil {
		w.outReal = resolved
	}

	if err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		return w.visit(ctx, path, d, err)
	}); err != nil {
		return nil, err
	}

	w.plan.TotalCount = len(w.plan.Entries)
	p.progress.PlanDone(w.plan.TotalCount)
	p.logger.Debug("Plan ready", "root", root, "files", w.plan.TotalCount, "skipped", w.plan.SkippedCount)
	return w.plan, nil
}

// planWalk holds the state of one Plan call.
type planWalk struct {
	*Planner
	root    string
	given   string
	out     string
	outReal string
	created map[string]bool
	plan    *types.TransferPlan
}

func (w *planWalk) visit(ctx context.Context, path string, d fs.DirEntry, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if err != nil {
		if path == w.root {
			return fmt.Errorf("reading install root: %w", err)
		}
		w.logger.Warn("Cannot read", "path", path, "error", err)
		return nil
	}

	if d.IsDir() {
		return w.visitDir(path)
	}
	return w.visitFile(path)
}

func (w *planWalk) visitDir(path string) error {
	if path == w.root {
		return nil
	}
	if w.excluded(path) {
		w.logger.Debug("Pruned", "path", path)
		return filepath.SkipDir
	}
	// An output dir inside the install must not be copied into itself.
	if path == w.outReal {
		w.logger.Debug("Pruned output directory", "path", path)
		return filepath.SkipDir
	}

	dest, err := w.destination(path)
	if err != nil {
		return err
	}
	return w.ensureDir(dest)
}

func (w *planWalk) visitFile(path string) error {
	if w.excluded(path) {
		w.plan.SkippedCount++
		return nil
	}

	// Stat follows symlinks; a dangling link or a file removed since the
	// directory was listed counts as skipped.
	info, err := os.Stat(path)
	if err != nil {
		w.logger.Debug("Skipped missing file", "path", path, "error", err)
		w.plan.SkippedCount++
		return nil
	}
	if info.IsDir() {
		// Symlinked directories are not followed.
		w.logger.Debug("Skipped directory symlink", "path", path)
		return nil
	}
	if !info.Mode().IsRegular() {
		w.logger.Debug("Skipped special file", "path", path, "mode", info.Mode().String())
		w.plan.SkippedCount++
		return nil
	}

	dest, err := w.destination(path)
	if err != nil {
		return err
	}
	if err := w.ensureDir(filepath.Dir(dest)); err != nil {
		return err
	}

	w.plan.Entries = append(w.plan.Entries, types.TransferEntry{Source: path, Destination: dest})
	w.progress.Planned(len(w.plan.Entries))
	return nil
}

// excluded matches path as it appears under the install root the caller
// passed in, not under its resolved location.
func (w *planWalk) excluded(path string) bool {
	if w.given == w.root {
		return w.matcher.Match(path)
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return w.matcher.Match(path)
	}
	return w.matcher.Match(filepath.Join(w.given, rel))
}

// destination maps a source path below the install root onto the output dir.
func (w *planWalk) destination(path string) (string, error) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", fmt.Errorf("relative path of %q: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes install root %q", path, w.root)
	}
	return filepath.Join(w.out, rel), nil
}

func (w *planWalk) ensureDir(dir string) error {
	if w.dryRun || w.created[dir] {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	w.created[dir] = true
	return nil
}
