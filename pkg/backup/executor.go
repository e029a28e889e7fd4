package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/bitia-ru/wp-hostpath-backup/pkg/progress"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/types"
)

// Executor copies the files of a TransferPlan.
type Executor struct {
	progress progress.Reporter
	logger   *slog.Logger
}

func NewExecutor(reporter progress.Reporter, logger *slog.Logger) *Executor {
	if reporter == nil {
		reporter = progress.Nop{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		progress: reporter,
		logger:   logger.With("component", "executor"),
	}
}

// Execute copies every entry in plan order, preserving permission bits and
// modification time. A file that cannot be copied is logged and counted in
// FilesFailed. Execute only returns an error when the destination can no
// longer be written (out of space, quota, read-only) or ctx is cancelled;
// the stats gathered so far are returned with it.
func (e *Executor) Execute(ctx context.Context, plan *types.TransferPlan) (types.TransferStats, error) {
	var stats types.TransferStats
	total := len(plan.Entries)

	for i, entry := range plan.Entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		n, err := copyFile(entry.Source, entry.Destination)
		if err != nil {
			if isFatalCopyError(err) {
				return stats, fmt.Errorf("copying %s: %w", entry.Source, err)
			}
			e.logger.Warn("Skipped file", "path", entry.Source, "error", err)
			stats.FilesFailed++
		} else {
			stats.FilesCopied++
			stats.TotalBytes += n
		}

		e.progress.Copied(i+1, total, stats.TotalBytes)
	}

	e.progress.CopyDone(total, stats.TotalBytes)
	return stats, nil
}

// copyFile copies src to dst with its permission bits and modification
// time and returns the number of bytes written. A partial dst is removed.
func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", src)
	}

	mode := info.Mode() & (os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky)
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dst)
		return 0, err
	}

	// The create mode was filtered by the umask.
	if err := os.Chmod(dst, mode); err != nil {
		return n, err
	}
	if err := os.Chtimes(dst, time.Time{}, info.ModTime()); err != nil {
		return n, err
	}
	return n, nil
}
