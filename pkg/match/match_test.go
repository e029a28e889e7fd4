package match

import "testing"

func TestMatch_Defaults(t *testing.T) {
	m := mustNew(t, DefaultExclusions)

	tests := []struct {
		path string
		want bool
	}{
		{"/var/www/site/wp-content/cache/page.html", true},
		{"/var/www/site/cache/cache/x", true},
		{"/var/www/site/wp-content/uploads/2024/thumbnails/a.jpg", true},
		{"/var/www/site/wp-content/plugins/foo/cache/data.bin", true},
		{"/var/www/site/wp-content/wp-rocket/x.css", true},
		{"/var/www/site/debug.log", true},
		{"/var/www/site/dump.sql", true},
		{"/var/www/site/dump.sql.gz", true},
		{"/var/www/site/index.php~", true},
		{"/var/www/site/tmp/upload.tmp", true},
		{"/var/www/site/index.php", false},
		{"/var/www/site/wp-content/uploads/2024/photo.jpg", false},
		{"/var/www/site/wp-content/cachefile.php", false},
		// Anchored patterns only hit relative paths.
		{".git/config", true},
		{"/var/www/site/.git/config", false},
		{"readme.html", true},
		{"/var/www/site/readme.html", false},
	}

	for _, tt := range tests {
		if got := m.Match(tt.path); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestMatch_LogExtension(t *testing.T) {
	m := mustNew(t, []string{"*.log"})
	if !m.Match("/src/a.log") {
		t.Error("expected a.log to match")
	}
	if m.Match("/src/a.txt") {
		t.Error("expected a.txt not to match")
	}
}

func TestMatch_NonMatchingPatternDoesNotChangeResult(t *testing.T) {
	paths := []string{
		"/srv/site/wp-content/cache/x",
		"/srv/site/index.php",
		"/srv/site/a.log",
	}
	base := mustNew(t, DefaultExclusions)
	extended := mustNew(t, append(append([]string(nil), DefaultExclusions...), "*.never-seen-extension"))

	for _, p := range paths {
		if base.Match(p) != extended.Match(p) {
			t.Errorf("Match(%q) changed after adding a non-matching pattern", p)
		}
	}
}

func TestMatch_NoPatterns(t *testing.T) {
	m := mustNew(t, nil)
	if m.Match("/anything") {
		t.Error("empty matcher should never match")
	}
}

func TestMatch_QuestionMarkSpansSeparator(t *testing.T) {
	m := mustNew(t, []string{"a?b"})
	if !m.Match("a/b") {
		t.Error("expected ? to match a separator")
	}
}

func TestNew_InvalidPattern(t *testing.T) {
	if _, err := New([]string{"[unterminated"}); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func mustNew(t *testing.T, patterns []string) *Matcher {
	t.Helper()
	m, err := New(patterns)
	if err != nil {
		t.Fatalf("New(%q) error: %v", patterns, err)
	}
	return m
}

func TestNew_BraceAlternation(t *testing.T) {
	m := mustNew(t, []string{"*.{bak,old}"})
	if !m.Match("/var/www/site/wp-config.php.bak") || !m.Match("/var/www/site/index.old") {
		t.Error("expected brace alternatives to match")
	}
	if m.Match("/var/www/site/index.php") {
		t.Error("unexpected match")
	}
}
