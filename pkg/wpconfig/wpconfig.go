// Package wpconfig extracts datastore credentials from an install's
// wp-config.php.
package wpconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bitia-ru/wp-hostpath-backup/pkg/types"
)

// FileName is the config file looked up in an install root.
const FileName = "wp-config.php"

const (
	DefaultHost        = "localhost"
	DefaultTablePrefix = "wp_"
)

var (
	// ErrNoConfig is returned when the install has no config file.
	ErrNoConfig = errors.New("no config file found")
	// ErrIncomplete is returned when a required key is missing.
	ErrIncomplete = errors.New("database configuration is incomplete")
)

// definePattern matches define('KEY', 'value') with either quote style.
// DB_PASSWORD may be empty; the other values may not.
func definePattern(key string, allowEmpty bool) *regexp.Regexp {
	value := `([^'"]+)`
	if allowEmpty {
		value = `([^'"]*)`
	}
	return regexp.MustCompile(`(?i)define\s*\(\s*['"]` + key + `['"]\s*,\s*['"]` + value + `['"]`)
}

var (
	reName     = definePattern("DB_NAME", false)
	reUser     = definePattern("DB_USER", false)
	rePassword = definePattern("DB_PASSWORD", true)
	reHost     = definePattern("DB_HOST", false)
	reCharset  = definePattern("DB_CHARSET", false)
	rePrefix   = regexp.MustCompile(`\$table_prefix\s*=\s*['"]([A-Za-z0-9_]+)['"]`)
)

// Load reads and parses the config file of the install at dir.
func Load(dir string) (*types.DBConfig, error) {
	path := filepath.Join(dir, FileName)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w in %s", ErrNoConfig, dir)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(string(data))
}

// Parse extracts credentials from config file text. DB_HOST defaults to
// localhost and the table prefix to "wp_". A missing DB_NAME, DB_USER or
// DB_PASSWORD yields ErrIncomplete.
func Parse(content string) (*types.DBConfig, error) {
	cfg := &types.DBConfig{
		Host:        DefaultHost,
		TablePrefix: DefaultTablePrefix,
	}

	var missing []string
	required := []struct {
		key string
		re  *regexp.Regexp
		dst *string
	}{
		{"DB_NAME", reName, &cfg.Name},
		{"DB_USER", reUser, &cfg.User},
		{"DB_PASSWORD", rePassword, &cfg.Password},
	}
	for _, r := range required {
		v, ok := find(r.re, content)
		if !ok {
			missing = append(missing, r.key)
			continue
		}
		*r.dst = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}

	if v, ok := find(reHost, content); ok {
		cfg.Host = v
	}
	if v, ok := find(reCharset, content); ok {
		cfg.Charset = v
	}
	if v, ok := find(rePrefix, content); ok {
		cfg.TablePrefix = v
	}
	return cfg, nil
}

func find(re *regexp.Regexp, content string) (string, bool) {
	m := re.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return m[1], true
}
