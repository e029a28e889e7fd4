package backup

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/bitia-ru/wp-hostpath-backup/pkg/match"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/progress"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/types"
)

// FilesDir is the subdirectory of a backup holding the install's files.
const FilesDir = "wordpress"

// ErrInvalidInstall is returned when an install root is missing or not a directory.
var ErrInvalidInstall = errors.New("invalid install")

// Backuper copies install trees into timestamped backup directories.
type Backuper struct {
	backupDir string
	planner   *Planner
	executor  *Executor
	dryRun    bool
	logger    *slog.Logger
}

func New(backupDir string, matcher *match.Matcher, reporter progress.Reporter, dryRun bool, logger *slog.Logger) *Backuper {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Backuper{
		backupDir: backupDir,
		planner:   NewPlanner(matcher, reporter, dryRun, logger),
		executor:  NewExecutor(reporter, logger),
		dryRun:    dryRun,
		logger:    logger.With("component", "backup"),
	}
}

// Timestamp renders t as day-month-year_hour-minute, e.g. "05-03-2025_9-07".
func Timestamp(t time.Time) string {
	return fmt.Sprintf("%02d-%02d-%d_%d-%02d", t.Day(), int(t.Month()), t.Year(), t.Hour(), t.Minute())
}

// FormatName returns the backup directory name for a site slug.
func FormatName(slug, timestamp string) string {
	return fmt.Sprintf("backup_%s_%s", slug, timestamp)
}

// OutputDir returns the backup directory for a site slug.
func (b *Backuper) OutputDir(slug, timestamp string) string {
	return filepath.Join(b.backupDir, FormatName(slug, timestamp))
}

// SaveFiles plans and copies the files of the install at installRoot into
// outDir/wordpress. In dry-run mode only the plan is built. The returned
// error means the backup of this install must be abandoned; per-file copy
// failures are reported in the stats instead.
func (b *Backuper) SaveFiles(ctx context.Context, installRoot, outDir string) (*types.TransferPlan, types.TransferStats, error) {
	var stats types.TransferStats

	info, err := os.Stat(installRoot)
	if err != nil {
		return nil, stats, fmt.Errorf("%w: %v", ErrInvalidInstall, err)
	}
	if !info.IsDir() {
		return nil, stats, fmt.Errorf("%w: %q is not a directory", ErrInvalidInstall, installRoot)
	}

	filesDir := filepath.Join(outDir, FilesDir)
	b.logger.Debug("Planning", "install", installRoot, "dest", filesDir)

	plan, err := b.planner.Plan(ctx, installRoot, filesDir)
	if err != nil {
		return nil, stats, fmt.Errorf("planning: %w", err)
	}
	if b.dryRun {
		return plan, stats, nil
	}

	stats, err = b.executor.Execute(ctx, plan)
	if err != nil {
		return plan, stats, fmt.Errorf("copying: %w", err)
	}
	b.logger.Debug("Files saved", "install", installRoot, "files", stats.FilesCopied, "failed", stats.FilesFailed, "bytes", stats.TotalBytes)
	return plan, stats, nil
}

// Archive packs outDir into outDir.tar.gz and removes outDir. It returns
// the archive path and size.
func (b *Backuper) Archive(outDir string) (string, int64, error) {
	archivePath := filepath.Clean(outDir) + ".tar.gz"
	b.logger.Debug("Archiving", "dir", outDir, "archive", archivePath)

	size, err := createTarGz(archivePath, outDir)
	if err != nil {
		return "", 0, fmt.Errorf("creating archive: %w", err)
	}
	if err := os.RemoveAll(outDir); err != nil {
		return archivePath, size, fmt.Errorf("removing %s: %w", outDir, err)
	}
	return archivePath, size, nil
}

// createTarGz writes sourceDir into a gzip-compressed tarball. Entries are
// named relative to the parent of sourceDir so they unpack into a directory
// of the same name.
func createTarGz(archivePath, sourceDir string) (int64, error) {
	file, err := os.Create(archivePath)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	gzWriter := gzip.NewWriter(file)
	defer gzWriter.Close()

	tarWriter := tar.NewWriter(gzWriter)
	defer tarWriter.Close()

	base := filepath.Dir(filepath.Clean(sourceDir))

	err = filepath.Walk(sourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		link := ""
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("creating tar header for %s: %w", path, err)
		}

		relPath, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)
		if info.IsDir() {
			header.Name += "/"
		}

		if err := tarWriter.WriteHeader(header); err != nil {
			return fmt.Errorf("writing tar header: %w", err)
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tarWriter, f)
		return err
	})

	if err != nil {
		os.Remove(archivePath)
		return 0, err
	}

	// Flush everything before getting file size
	if err := tarWriter.Close(); err != nil {
		os.Remove(archivePath)
		return 0, err
	}
	if err := gzWriter.Close(); err != nil {
		os.Remove(archivePath)
		return 0, err
	}

	stat, err := file.Stat()
	if err != nil {
		return 0, err
	}
	return stat.Size(), nil
}
