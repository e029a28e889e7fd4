package site

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bitia-ru/wp-hostpath-backup/pkg/types"
)

const (
	DefaultDumpCommand  = "mysqldump"
	DefaultDumpTimeout  = time.Hour
	DefaultProbeTimeout = 10 * time.Second
)

var (
	// ErrDumpToolMissing is returned when the dump command cannot be run.
	ErrDumpToolMissing = errors.New("dump tool is not installed or not accessible")
	// ErrEmptyDump is returned when the dump command succeeds but writes nothing.
	ErrEmptyDump = errors.New("empty dump")
)

// Dumper runs an external dump tool for one database at a time.
type Dumper struct {
	command      string
	timeout      time.Duration
	probeTimeout time.Duration
	logger       *slog.Logger
}

func NewDumper(command string, timeout, probeTimeout time.Duration, logger *slog.Logger) *Dumper {
	if command == "" {
		command = DefaultDumpCommand
	}
	if timeout <= 0 {
		timeout = DefaultDumpTimeout
	}
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dumper{
		command:      command,
		timeout:      timeout,
		probeTimeout: probeTimeout,
		logger:       logger.With("component", "dump"),
	}
}

// DumpFileName returns the dump file name for a database.
func DumpFileName(dbName string) string {
	return strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(dbName) + "_backup.sql"
}

// Dump writes a full dump of cfg's database into outDir and returns the
// file path and size. It succeeds only if the tool exits with status 0 and
// the file is not empty.
func (d *Dumper) Dump(ctx context.Context, cfg *types.DBConfig, outDir string) (string, int64, error) {
	if cfg.Name == "" || cfg.User == "" || cfg.Host == "" {
		return "", 0, fmt.Errorf("invalid database config")
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", 0, fmt.Errorf("creating %s: %w", outDir, err)
	}
	if err := d.probe(ctx); err != nil {
		return "", 0, err
	}

	outFile := filepath.Join(outDir, DumpFileName(cfg.Name))
	f, err := os.OpenFile(outFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", 0, fmt.Errorf("creating dump file: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, d.command, dumpArgs(cfg)...)
	// Keeps the password out of the process list.
	cmd.Env = append(os.Environ(), "MYSQL_PWD="+cfg.Password)
	cmd.Stdout = f
	cmd.Stderr = &stderr

	d.logger.Debug("Running dump", "database", cfg.Name, "file", outFile)
	runErr := cmd.Run()
	closeErr := f.Close()

	if runErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return outFile, 0, fmt.Errorf("%s timed out after %s", d.command, d.timeout)
		}
		return outFile, 0, fmt.Errorf("%s failed: %w: %s", d.command, runErr, strings.TrimSpace(stderr.String()))
	}
	if closeErr != nil {
		return outFile, 0, fmt.Errorf("writing dump file: %w", closeErr)
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		d.logger.Warn("Dump reported warnings", "database", cfg.Name, "stderr", msg)
	}

	info, err := os.Stat(outFile)
	if err != nil {
		return outFile, 0, fmt.Errorf("checking dump file: %w", err)
	}
	if info.Size() == 0 {
		return outFile, 0, ErrEmptyDump
	}
	return outFile, info.Size(), nil
}

// probe checks that the dump command runs at all.
func (d *Dumper) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	defer cancel()

	if err := exec.CommandContext(ctx, d.command, "--version").Run(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDumpToolMissing, d.command, err)
	}
	return nil
}

func dumpArgs(cfg *types.DBConfig) []string {
	addr := ParseHost(cfg.Host)

	args := []string{"--host=" + addr.Host}
	if addr.Host == "" {
		args[0] = "--host=localhost"
	}
	if addr.Port != "" {
		args = append(args, "--port="+addr.Port)
	}
	if addr.Socket != "" {
		args = append(args, "--socket="+addr.Socket)
	}
	args = append(args,
		"--user="+cfg.User,
		"--single-transaction",
		"--routines",
		"--triggers",
	)
	if cfg.Charset != "" {
		args = append(args, "--default-character-set="+cfg.Charset)
	}
	return append(args, "--databases", cfg.Name)
}
