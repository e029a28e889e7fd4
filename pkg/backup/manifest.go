package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bitia-ru/wp-hostpath-backup/pkg/types"
)

// ManifestFile is written at the top of every backup directory.
const ManifestFile = "manifest.yaml"

// Manifest describes one install backup.
type Manifest struct {
	RunID     string         `yaml:"run_id"`
	Install   string         `yaml:"install"`
	CreatedAt time.Time      `yaml:"created_at"`
	Site      types.SiteInfo `yaml:"site"`
	Database  string         `yaml:"database,omitempty"`
	Files     ManifestFiles  `yaml:"files"`
	DumpFile  string         `yaml:"dump_file,omitempty"`
	DumpBytes int64          `yaml:"dump_bytes,omitempty"`
}

// ManifestFiles summarizes the file phase.
type ManifestFiles struct {
	Planned  int   `yaml:"planned"`
	Excluded int   `yaml:"excluded"`
	Copied   int   `yaml:"copied"`
	Failed   int   `yaml:"failed"`
	Bytes    int64 `yaml:"bytes"`
}

// NewManifest builds a Manifest from the result of one install backup.
func NewManifest(runID string, createdAt time.Time, dbName string, r *types.BackupResult) Manifest {
	m := Manifest{
		RunID:     runID,
		Install:   r.Install,
		CreatedAt: createdAt,
		Site:      r.Site,
		Database:  dbName,
		Files: ManifestFiles{
			Planned:  r.Planned,
			Excluded: r.Excluded,
			Copied:   r.Stats.FilesCopied,
			Failed:   r.Stats.FilesFailed,
			Bytes:    r.Stats.TotalBytes,
		},
		DumpBytes: r.DumpSize,
	}
	if r.DumpFile != "" {
		m.DumpFile = filepath.Base(r.DumpFile)
	}
	return m
}

// WriteManifest writes m to outDir/manifest.yaml.
func WriteManifest(outDir string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, ManifestFile), data, 0644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}
