package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/bitia-ru/wp-hostpath-backup/pkg/types"
)

// DefaultWorkers is the number of roots searched at the same time.
const DefaultWorkers = 4

// DefaultRoots are the usual places web roots live on a Linux host.
var DefaultRoots = []types.RootSpec{
	{Path: "/home", MaxDepth: 2},
	{Path: "/var/www", MaxDepth: 3},
	{Path: "/usr/share/nginx/html", MaxDepth: 3},
	{Path: "/opt/lampp/htdocs", MaxDepth: 3},
	{Path: "/srv/www/htdocs", MaxDepth: 3},
}

// Discoverer searches root directories for install roots.
type Discoverer struct {
	detector *Detector
	workers  int
	logger   *slog.Logger
}

func New(detector *Detector, workers int, logger *slog.Logger) *Discoverer {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Discoverer{
		detector: detector,
		workers:  workers,
		logger:   logger.With("component", "discovery"),
	}
}

type rootResult struct {
	root  string
	found []string
	err   error
}

// Discover searches every root concurrently and returns the install roots
// found, deduplicated by absolute path and sorted. Failures are confined to
// the directory or root where they happen and never fail the whole pass.
func (d *Discoverer) Discover(ctx context.Context, roots []types.RootSpec) []types.Install {
	results := make(chan rootResult, len(roots))

	var g errgroup.Group
	g.SetLimit(d.workers)

	go func() {
		for _, root := range roots {
			g.Go(func() error {
				results <- d.searchRoot(ctx, root)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	seen := make(map[string]bool)
	var installs []types.Install
	// Results arrive in completion order.
	for r := range results {
		if r.err != nil {
			d.logger.Error("Search failed", "root", r.root, "error", r.err)
			continue
		}
		d.logger.Debug("Root searched", "root", r.root, "found", len(r.found))
		for _, p := range r.found {
			if seen[p] {
				continue
			}
			seen[p] = true
			installs = append(installs, types.Install{Path: p})
		}
	}

	sort.Slice(installs, func(i, j int) bool { return installs[i].Path < installs[j].Path })
	return installs
}

// searchRoot runs one root's search, turning a panic into an error so one
// bad root cannot take down the others.
func (d *Discoverer) searchRoot(ctx context.Context, root types.RootSpec) (res rootResult) {
	res.root = root.Path
	defer func() {
		if r := recover(); r != nil {
			res.found = nil
			res.err = fmt.Errorf("panic: %v", r)
		}
	}()

	start, err := filepath.Abs(root.Path)
	if err != nil {
		res.err = fmt.Errorf("resolving %q: %w", root.Path, err)
		return res
	}
	res.found = d.walk(ctx, filepath.Clean(start), root.MaxDepth)
	return res
}

// walk is a depth-bounded depth-first search. It stops descending at the
// first directory that looks like an install root.
func (d *Discoverer) walk(ctx context.Context, dir string, depth int) []string {
	if ctx.Err() != nil {
		return nil
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil
	}

	if d.detector.IsInstallRoot(dir) {
		d.logger.Debug("Install found", "path", dir)
		return []string{dir}
	}

	if depth <= 0 {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		d.logger.Debug("Cannot list directory", "path", dir, "error", err)
		return nil
	}

	var found []string
	for _, entry := range entries {
		child := filepath.Join(dir, entry.Name())
		if !isDir(child, entry) {
			continue
		}
		found = append(found, d.walk(ctx, child, depth-1)...)
	}
	return found
}

// isDir follows symlinks so linked web roots are searched too. Loops are
// bounded by the depth budget.
func isDir(path string, entry os.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
