// Package slug turns site names into directory-safe identifiers.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var replacer = strings.NewReplacer(
	" ", "_",
	"http://", "",
	"https://", "",
	"www.", "",
	"/", "-",
)

// Format lower-cases name, replaces spaces with underscores, drops URL
// schemes and "www.", turns slashes into hyphens and strips accents.
func Format(name string) string {
	name = replacer.Replace(strings.ToLower(name))

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, name)
	if err != nil {
		return name
	}
	return out
}

// Choose returns the slug for the first non-blank candidate, e.g. a site's
// name, then its URL, then its install path.
func Choose(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		if s := strings.Trim(Format(strings.TrimSpace(c)), "-_"); s != "" {
			return s
		}
	}
	return "site"
}
