package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/bitia-ru/wp-hostpath-backup/pkg/backup"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/bytefmt"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/config"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/discovery"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/logging"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/match"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/progress"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/site"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/slug"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/types"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/wpconfig"
)

const banner = `
 __        ______    ____             _
 \ \      / /  _ \  | __ )  __ _  ___| | ___   _ _ __
  \ \ /\ / /| |_) | |  _ \ / _` + "`" + ` |/ __| |/ / | | | '_ \
   \ V  V / |  __/  | |_) | (_| | (__|   <| |_| | |_) |
    \_/\_/  |_|     |____/ \__,_|\___|_|\_\\__,_| .__/
                                                |_|
`

type options struct {
	configPath string
	roots      []string
	backupDir  string
	workers    int
	dryRun     bool
	noDB       bool
	archive    bool
	verbose    bool
	logFile    string
	logFormat  string
}

func main() {
	fs := flag.NewFlagSet("wp-backup", flag.ExitOnError)
	opts := bindFlags(fs)
	fs.Parse(os.Args[1:]) //nolint:errcheck

	cfg, err := loadConfig(fs, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		os.Exit(1)
	}

	logger, closer := logging.New(cfg.Logging, os.Stderr)
	defer closer.Close() //nolint:errcheck
	logger.Debug("Logging configured", "config", cfg.Logging.String())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Print(banner)

	a, err := newApp(cfg, opts.dryRun, os.Stdout, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := a.run(ctx); err != nil {
		logger.Error("Backup halted", "err", err)
		closer.Close() //nolint:errcheck
		cancel()
		os.Exit(1)
	}
}

func bindFlags(fs *flag.FlagSet) *options {
	opts := &options{}
	fs.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	fs.StringArrayVarP(&opts.roots, "root", "r", nil, "Search root as path[:depth] (repeatable, replaces the defaults)")
	fs.StringVarP(&opts.backupDir, "backup-dir", "d", "", "Directory receiving backups (default "+config.DefaultBackupDir+")")
	fs.IntVarP(&opts.workers, "workers", "w", 0, "Number of roots searched concurrently")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Show what would be done without doing it")
	fs.BoolVar(&opts.noDB, "no-db", false, "Skip the site settings query and the database dump")
	fs.BoolVar(&opts.archive, "archive", false, "Pack each backup directory into a .tar.gz")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output")
	fs.StringVar(&opts.logFile, "log-file", "", "Also write diagnostics to this file")
	fs.StringVar(&opts.logFormat, "log-format", "", "Diagnostic log format: text or json")
	return opts
}

// loadConfig merges defaults, the config file and the environment with the
// flags that were set explicitly.
func loadConfig(fs *flag.FlagSet, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	if len(opts.roots) > 0 {
		roots, err := config.ParseRoots(opts.roots)
		if err != nil {
			return nil, err
		}
		cfg.Roots = roots
	}
	if fs.Changed("backup-dir") {
		cfg.Backup.Dir = opts.backupDir
	}
	if fs.Changed("workers") {
		cfg.Discovery.Workers = opts.workers
	}
	if fs.Changed("no-db") {
		cfg.Backup.SkipDatabase = opts.noDB
	}
	if fs.Changed("archive") {
		cfg.Backup.Archive = opts.archive
	}
	if opts.verbose {
		cfg.Logging.Level = "debug"
	}
	if opts.logFile != "" {
		cfg.Logging.FilePath = opts.logFile
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type installFinder interface {
	Discover(ctx context.Context, roots []types.RootSpec) []types.Install
}

type fileSaver interface {
	OutputDir(slug, timestamp string) string
	SaveFiles(ctx context.Context, installRoot, outDir string) (*types.TransferPlan, types.TransferStats, error)
	Archive(outDir string) (string, int64, error)
}

type databaseDumper interface {
	Dump(ctx context.Context, cfg *types.DBConfig, outDir string) (string, int64, error)
}

// app runs one backup pass over every discovered install.
type app struct {
	roots    []types.RootSpec
	finder   installFinder
	files    fileSaver
	dumper   databaseDumper
	readDB   func(dir string) (*types.DBConfig, error)
	readSite func(ctx context.Context, cfg *types.DBConfig) (types.SiteInfo, error)
	now      func() time.Time
	runID    string
	dryRun   bool
	skipDB   bool
	archive  bool
	out      io.Writer
	logger   *slog.Logger
}

func newApp(cfg *config.Config, dryRun bool, out io.Writer, logger *slog.Logger) (*app, error) {
	matcher, err := match.New(cfg.Backup.Exclusions)
	if err != nil {
		return nil, err
	}

	detector := discovery.NewDetector(cfg.Discovery.Markers, cfg.Discovery.Threshold)

	return &app{
		roots:    cfg.Roots,
		finder:   discovery.New(detector, cfg.Discovery.Workers, logger),
		files:    backup.New(cfg.Backup.Dir, matcher, progress.NewConsole(out), dryRun, logger),
		dumper:   site.NewDumper(cfg.Dump.Command, cfg.Dump.Timeout, cfg.Dump.ProbeTimeout, logger),
		readDB:   wpconfig.Load,
		readSite: site.Read,
		now:      time.Now,
		runID:    uuid.NewString(),
		dryRun:   dryRun,
		skipDB:   cfg.Backup.SkipDatabase,
		archive:  cfg.Backup.Archive,
		out:      out,
		logger:   logger,
	}, nil
}

// run backs up every install in discovery order. It stops at the first
// install whose file or database phase fails and returns that error.
// Installs without usable credentials are skipped.
func (a *app) run(ctx context.Context) error {
	installs := a.finder.Discover(ctx, a.roots)
	fmt.Fprintf(a.out, "Found %d WordPress install(s)\n", len(installs))

	timestamp := backup.Timestamp(a.now())

	var (
		results []*types.BackupResult
		halt    error
	)
	for _, inst := range installs {
		if err := ctx.Err(); err != nil {
			halt = err
			break
		}
		r, err := a.backupInstall(ctx, inst, timestamp)
		results = append(results, r)
		if err != nil {
			halt = err
			break
		}
	}

	if len(results) > 0 {
		a.printSummary(results, len(installs))
	}
	fmt.Fprintln(a.out)
	return halt
}

func (a *app) backupInstall(ctx context.Context, inst types.Install, timestamp string) (*types.BackupResult, error) {
	r := &types.BackupResult{Install: inst.Path}
	log := a.logger.With("install", inst.Path)

	dbcfg, err := a.readDB(inst.Path)
	if err != nil {
		log.Warn("Skipping install", "err", err)
		fmt.Fprintf(a.out, "    Skipping backup of %s: %v\n", inst.Path, err)
		r.Skipped = true
		r.Err = err
		return r, nil
	}

	if !a.skipDB {
		info, err := a.readSite(ctx, dbcfg)
		if err != nil {
			log.Warn("Could not read site settings", "database", dbcfg.Name, "err", err)
		} else {
			r.Site = info
		}
	}

	fmt.Fprintf(a.out, "\nCreating a backup of '%s' (%s)\n", r.Site.BlogName, inst.Path)
	r.OutputDir = a.files.OutputDir(slug.Choose(r.Site.BlogName, r.Site.SiteURL, inst.Path), timestamp)

	fmt.Fprintln(a.out, "    Saving files")
	plan, stats, err := a.files.SaveFiles(ctx, inst.Path, r.OutputDir)
	if plan != nil {
		r.Planned = plan.TotalCount
		r.Excluded = plan.SkippedCount
	}
	r.Stats = stats
	if err != nil {
		r.Err = fmt.Errorf("saving files: %w", err)
		fmt.Fprintf(a.out, "    Error: %v\n", r.Err)
		return r, r.Err
	}

	if a.dryRun {
		fmt.Fprintf(a.out, "    Would copy %d file(s), %d excluded, into %s\n", r.Planned, r.Excluded, r.OutputDir)
		if !a.skipDB {
			fmt.Fprintf(a.out, "    Would dump database '%s'\n", dbcfg.Name)
		}
		return r, nil
	}

	fmt.Fprintf(a.out, "    Files saved: (%s)\n", bytefmt.FormatBytes(stats.TotalBytes))
	if stats.FilesFailed > 0 {
		fmt.Fprintf(a.out, "    Warning: %d file(s) could not be copied\n", stats.FilesFailed)
	}

	dbName := ""
	if !a.skipDB {
		dbName = dbcfg.Name
		fmt.Fprintf(a.out, "    Saving database '%s'\n", dbcfg.Name)
		path, size, err := a.dumper.Dump(ctx, dbcfg, r.OutputDir)
		if err != nil {
			r.Err = fmt.Errorf("saving database: %w", err)
			fmt.Fprintf(a.out, "    Error: %v\n", r.Err)
			return r, r.Err
		}
		r.DumpFile, r.DumpSize = path, size
		fmt.Fprintf(a.out, "    Database saved: %s (%s)\n", path, bytefmt.FormatBytes(size))
	}

	if err := backup.WriteManifest(r.OutputDir, backup.NewManifest(a.runID, a.now(), dbName, r)); err != nil {
		log.Warn("Could not write manifest", "err", err)
	}

	if a.archive {
		path, size, err := a.files.Archive(r.OutputDir)
		if err != nil {
			r.Err = fmt.Errorf("archiving: %w", err)
			fmt.Fprintf(a.out, "    Error: %v\n", r.Err)
			return r, r.Err
		}
		r.Archive = path
		fmt.Fprintf(a.out, "    Archive created: %s (%s)\n", path, bytefmt.FormatBytes(size))
	}
	return r, nil
}

func (a *app) printSummary(results []*types.BackupResult, discovered int) {
	fmt.Fprintln(a.out, "\n=== Backup Summary ===")
	for _, r := range results {
		switch {
		case r.Skipped:
			fmt.Fprintf(a.out, "  SKIP  %s: %v\n", r.Install, r.Err)
		case r.Err != nil:
			fmt.Fprintf(a.out, "  FAIL  %s: %v\n", r.Install, r.Err)
		case a.dryRun:
			fmt.Fprintf(a.out, "  PLAN  %s -> %s (%d files, %d excluded)\n", r.Install, r.OutputDir, r.Planned, r.Excluded)
		default:
			dest := r.OutputDir
			if r.Archive != "" {
				dest = r.Archive
			}
			line := fmt.Sprintf("  OK    %s -> %s (%s)", r.Install, dest, bytefmt.FormatBytes(r.Stats.TotalBytes+r.DumpSize))
			if r.Stats.FilesFailed > 0 {
				line += fmt.Sprintf(" PARTIAL: %d file(s) not copied", r.Stats.FilesFailed)
			}
			fmt.Fprintln(a.out, line)
		}
	}
	if n := discovered - len(results); n > 0 {
		fmt.Fprintf(a.out, "  Halted: %d install(s) not processed\n", n)
	}
}

