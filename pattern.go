package wirebus

import (
	"regexp"
	"strings"
)

// Matcher tests whether literal keys match a compiled glob pattern.
//
// Patterns are sequences of components joined by a single separator rune
// (usually '.'). Two wildcard forms are recognized:
//
//   - "*" matches within a single component. It never crosses a separator,
//     and may be combined with literal text ("foo.bar*" matches "foo.barn").
//     A lone "*" matches exactly one, possibly empty, component.
//   - "**" matches any number of components, including none, crossing
//     separators freely.
//
// The empty pattern is a single zero-length component: it matches itself
// and is matched by "**".
type Matcher struct {
	pattern string
	re      *regexp.Regexp
}

// CompilePattern compiles a glob pattern against the given separator.
//
// Example:
//
//	m := wirebus.CompilePattern("orders.*", '.')
//	m.Match("orders.created") // true
//	m.Match("orders.eu.created") // false
//	wirebus.CompilePattern("orders.**", '.').Match("orders.eu.created") // true
func CompilePattern(pattern string, sep rune) *Matcher {
	return &Matcher{pattern: pattern, re: compileGlob(pattern, sep)}
}

// Match reports whether key matches the compiled pattern. The key is treated
// as a literal; matching a wildcard pattern against another wildcard pattern
// is unsupported and yields no defined result.
func (m *Matcher) Match(key string) bool {
	return m.re.MatchString(key)
}

// Pattern returns the original pattern string the Matcher was compiled from.
func (m *Matcher) Pattern() string {
	return m.pattern
}

// compileGlob translates the glob into an anchored regexp: split on "**",
// then on "*", escape the literal fragments, rejoin with "anything within a
// component" and "anything at all" respectively.
func compileGlob(pattern string, sep rune) *regexp.Regexp {
	notSep := "[^" + regexp.QuoteMeta(string(sep)) + "]*"

	spans := strings.Split(pattern, "**")
	compiled := make([]string, len(spans))
	for i, span := range spans {
		frags := strings.Split(span, "*")
		for j, frag := range frags {
			frags[j] = regexp.QuoteMeta(frag)
		}
		compiled[i] = strings.Join(frags, notSep)
	}

	return regexp.MustCompile("^" + strings.Join(compiled, ".*") + "$")
}

// containsWildcard reports whether the pattern carries glob characters.
func containsWildcard(pattern string) bool {
	return strings.ContainsRune(pattern, '*')
}
