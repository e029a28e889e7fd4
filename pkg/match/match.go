// Package match decides which paths are left out of a backup.
package match

import (
	"fmt"

	"github.com/gobwas/glob"
)

// DefaultExclusions are matched against full source paths. A leading "*"
// spans directory separators, so "*/cache/*" hits any path containing
// "/cache/".
var DefaultExclusions = []string{
	// caches
	"*/cache/*",
	"*/wp-content/cache/*",
	"*/wp-content/uploads/cache/*",

	// temporary files
	"*.tmp",
	"*.temp",
	"*~",
	"*.log",

	// version control
	".git/*",
	".svn/*",
	".hg/*",

	"readme.html",
	"license.txt",

	// old dumps
	"*.sql",
	"*.sql.gz",

	"*/wp-content/uploads/*/thumbnails/*",

	// plugin caches
	"*/wp-content/plugins/*/cache/*",
	"*/wp-rocket/*",
	"*/wp-fastest-cache/*",
}

// Matcher reports whether a path matches any of a fixed set of exclusion
// patterns. It holds no mutable state and is safe for concurrent use.
type Matcher struct {
	globs []glob.Glob
}

// New compiles patterns. Patterns use shell glob syntax where "*" and "?"
// also match "/". Unlike fnmatch, "{a,b}" is an alternation and "\" escapes
// the next character; the default patterns use neither.
func New(patterns []string) (*Matcher, error) {
	m := &Matcher{globs: make([]glob.Glob, 0, len(patterns))}
	for _, p := range patterns {
		// No separators: wildcards are not confined to one path segment.
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling exclusion pattern %q: %w", p, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Match reports whether path matches at least one pattern.
func (m *Matcher) Match(path string) bool {
	for _, g := range m.globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

