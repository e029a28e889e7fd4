package discovery

import (
	"os"
	"path/filepath"
)

// DefaultMarkers are the names whose presence identifies a WordPress root.
var DefaultMarkers = []string{
	"wp-admin",
	"wp-content",
	"wp-includes",
	"wp-login.php",
	"wp-load.php",
	"wp-config.php",
	"wp-settings.php",
}

// DefaultThreshold is the number of markers that must be exceeded.
const DefaultThreshold = 3

// Detector decides whether a directory is an install root by counting marker
// names among its direct children.
type Detector struct {
	markers   []string
	threshold int
}

// NewDetector returns a Detector that accepts a directory once more than
// threshold of markers exist in it.
func NewDetector(markers []string, threshold int) *Detector {
	return &Detector{
		markers:   append([]string(nil), markers...),
		threshold: threshold,
	}
}

// IsInstallRoot reports whether more than the threshold of markers exist
// directly under dir. Markers are checked for existence only, files and
// directories alike. Any stat error counts as the marker being absent.
func (d *Detector) IsInstallRoot(dir string) bool {
	n := 0
	for _, m := range d.markers {
		if _, err := os.Stat(filepath.Join(dir, m)); err != nil {
			continue
		}
		n++
		if n > d.threshold {
			return true
		}
	}
	return false
}
