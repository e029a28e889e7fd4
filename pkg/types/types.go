package types

// RootSpec is a directory to search for installs and how deep to look below it.
type RootSpec struct {
	Path     string `yaml:"path"`
	MaxDepth int    `yaml:"max_depth"`
}

// Install is a discovered application install root.
type Install struct {
	Path string
}

// TransferEntry is one file to copy.
type TransferEntry struct {
	Source      string
	Destination string
}

// TransferPlan is the ordered list of files to copy for one install.
type TransferPlan struct {
	Entries      []TransferEntry
	TotalCount   int
	SkippedCount int
}

// TransferStats holds the outcome of executing a TransferPlan.
type TransferStats struct {
	FilesCopied int
	FilesFailed int
	TotalBytes  int64
}

// DBConfig holds the datastore credentials read from an install's config file.
type DBConfig struct {
	Name        string
	User        string
	Password    string
	Host        string
	Charset     string
	TablePrefix string
}

// SiteInfo holds the named site settings read from the datastore.
type SiteInfo struct {
	SiteURL         string `yaml:"siteurl"`
	Home            string `yaml:"home"`
	BlogName        string `yaml:"blogname"`
	BlogDescription string `yaml:"blogdescription"`
	AdminEmail      string `yaml:"admin_email"`
	Template        string `yaml:"template"`
}

// BackupResult holds the outcome of backing up a single install.
type BackupResult struct {
	Install   string
	OutputDir string
	Archive   string
	Site      SiteInfo
	Planned   int
	Excluded  int
	Stats     TransferStats
	DumpFile  string
	DumpSize  int64
	Skipped   bool
	Err       error
}
