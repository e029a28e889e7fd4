package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bitia-ru/wp-hostpath-backup/pkg/discovery"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/logging"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/match"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/site"
	"github.com/bitia-ru/wp-hostpath-backup/pkg/types"
)

// DefaultBackupDir is where backup directories are created.
const DefaultBackupDir = "/tmp/trickish_wp_backup"

// DefaultRootDepth is used for a --root value given without a depth.
const DefaultRootDepth = 3

// Config holds all application configuration.
type Config struct {
	Roots     []types.RootSpec `yaml:"roots"`
	Discovery DiscoveryConfig  `yaml:"discovery"`
	Backup    BackupConfig     `yaml:"backup"`
	Dump      DumpConfig       `yaml:"dump"`
	Logging   logging.Config   `yaml:"logging"`
}

// DiscoveryConfig holds install detection settings.
type DiscoveryConfig struct {
	Markers   []string `yaml:"markers"`
	Threshold int      `yaml:"threshold"`
	Workers   int      `yaml:"workers"`
}

// BackupConfig holds output settings.
type BackupConfig struct {
	Dir          string   `yaml:"dir"`
	Exclusions   []string `yaml:"exclusions"`
	Archive      bool     `yaml:"archive"`
	SkipDatabase bool     `yaml:"skip_database"`
}

// DumpConfig holds database dump settings.
type DumpConfig struct {
	Command      string        `yaml:"command"`
	Timeout      time.Duration `yaml:"timeout"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// Default returns a Config with the built-in roots, markers and exclusions.
func Default() *Config {
	return &Config{
		Roots: append([]types.RootSpec(nil), discovery.DefaultRoots...),
		Discovery: DiscoveryConfig{
			Markers:   append([]string(nil), discovery.DefaultMarkers...),
			Threshold: discovery.DefaultThreshold,
			Workers:   discovery.DefaultWorkers,
		},
		Backup: BackupConfig{
			Dir:        DefaultBackupDir,
			Exclusions: append([]string(nil), match.DefaultExclusions...),
		},
		Dump: DumpConfig{
			Command:      site.DefaultDumpCommand,
			Timeout:      site.DefaultDumpTimeout,
			ProbeTimeout: site.DefaultProbeTimeout,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads config from the YAML file at path, when path is set, and
// overrides it with environment variables. A named file that cannot be read
// is an error. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() error {
	if v := os.Getenv("WPB_ROOTS"); v != "" {
		roots, err := ParseRoots(strings.Split(v, ","))
		if err != nil {
			return fmt.Errorf("WPB_ROOTS: %w", err)
		}
		c.Roots = roots
	}
	if v := os.Getenv("WPB_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WPB_WORKERS: %w", err)
		}
		c.Discovery.Workers = n
	}
	if v := os.Getenv("WPB_BACKUP_DIR"); v != "" {
		c.Backup.Dir = v
	}
	if v := os.Getenv("WPB_ARCHIVE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WPB_ARCHIVE: %w", err)
		}
		c.Backup.Archive = b
	}
	if v := os.Getenv("WPB_NO_DB"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WPB_NO_DB: %w", err)
		}
		c.Backup.SkipDatabase = b
	}
	if v := os.Getenv("WPB_DUMP_COMMAND"); v != "" {
		c.Dump.Command = v
	}
	if v := os.Getenv("WPB_DUMP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("WPB_DUMP_TIMEOUT: %w", err)
		}
		c.Dump.Timeout = d
	}
	if v := os.Getenv("WPB_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("WPB_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("WPB_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
	return nil
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if len(c.Roots) == 0 {
		return fmt.Errorf("at least one search root is required")
	}
	for _, r := range c.Roots {
		if r.Path == "" {
			return fmt.Errorf("search root with empty path")
		}
		if r.MaxDepth < 0 {
			return fmt.Errorf("invalid depth %d for root %s", r.MaxDepth, r.Path)
		}
	}
	if len(c.Discovery.Markers) == 0 {
		return fmt.Errorf("at least one marker is required")
	}
	if c.Discovery.Threshold < 0 {
		return fmt.Errorf("invalid threshold: %d", c.Discovery.Threshold)
	}
	if c.Discovery.Workers < 1 {
		return fmt.Errorf("invalid workers: %d", c.Discovery.Workers)
	}
	if c.Backup.Dir == "" {
		return fmt.Errorf("backup dir is required")
	}
	if _, err := match.New(c.Backup.Exclusions); err != nil {
		return err
	}
	if c.Dump.Command == "" {
		return fmt.Errorf("dump command is required")
	}
	if c.Dump.Timeout <= 0 || c.Dump.ProbeTimeout <= 0 {
		return fmt.Errorf("dump timeouts must be positive")
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	if !logging.ValidFormat(c.Logging.Format) {
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}
	return nil
}

// ParseRoot parses a "path:depth" search root. The depth may be omitted.
func ParseRoot(s string) (types.RootSpec, error) {
	s = strings.TrimSpace(s)
	path, depth := s, DefaultRootDepth
	if i := strings.LastIndex(s, ":"); i >= 0 {
		n, err := strconv.Atoi(s[i+1:])
		if err != nil {
			return types.RootSpec{}, fmt.Errorf("invalid root %q: depth must be an integer", s)
		}
		path, depth = s[:i], n
	}
	if path == "" {
		return types.RootSpec{}, fmt.Errorf("invalid root %q: empty path", s)
	}
	if depth < 0 {
		return types.RootSpec{}, fmt.Errorf("invalid root %q: negative depth", s)
	}
	return types.RootSpec{Path: path, MaxDepth: depth}, nil
}

// ParseRoots parses each value with ParseRoot.
func ParseRoots(values []string) ([]types.RootSpec, error) {
	roots := make([]types.RootSpec, 0, len(values))
	for _, v := range values {
		r, err := ParseRoot(v)
		if err != nil {
			return nil, err
		}
		roots = append(roots, r)
	}
	return roots, nil
}
