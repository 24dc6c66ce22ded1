// Package match selects local files for upload using doublestar glob
// patterns, exclude patterns, and size/extension filters.
//
// Patterns use forward slashes. Windows-style backslash separators are
// accepted and normalized, while escapes of glob metacharacters (\*, \?,
// \[, \{) are kept so a literal metacharacter can still be matched.
package match

import (
	"strings"
)

// Glob metacharacters that can be escaped with backslash in patterns.
const globEscapable = `*?[]{}\`

// NormalizePattern converts a user-provided glob pattern to canonical form.
//
//	"docs/**/*.zip"       → "docs/**/*.zip"
//	"docs\reqs\*.zip"     → "docs/reqs/*.zip"
//	"docs/spec\*.zip"     → "docs/spec\*.zip"
//	"./docs/*.zip"        → "docs/*.zip"
func NormalizePattern(pattern string) string {
	if pattern == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(pattern))

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\\' {
			if i+1 < len(runes) && strings.ContainsRune(globEscapable, runes[i+1]) {
				b.WriteRune('\\')
				b.WriteRune(runes[i+1])
				i++
				continue
			}
			b.WriteRune('/')
			continue
		}
		b.WriteRune(r)
	}

	out := b.String()
	for strings.HasPrefix(out, "./") {
		out = strings.TrimLeft(out[2:], "/")
	}
	return out
}

// IsHidden returns true if any path segment starts with a dot. The
// segments "." and ".." are not hidden.
//
//	"docs/spec.zip"      → false
//	".cache/spec.zip"    → true
//	"../docs/spec.zip"   → false
func IsHidden(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// IsGlobPattern reports whether pattern contains an unescaped glob
// metacharacter.
func IsGlobPattern(pattern string) bool {
	return findFirstUnescapedMeta(NormalizePattern(pattern)) >= 0
}

// WalkRoot returns the directory a pattern's matches can live under: the
// static portion before the first unescaped metacharacter, cut back to a
// whole path segment. Patterns without a static directory walk ".".
//
//	"docs/2026/**/*.zip" → "docs/2026"
//	"*.zip"              → "."
//	"/srv/reqs-*/a.zip"  → "/srv"
//	"docs/\[old\]/*.zip" → "docs/[old]"
func WalkRoot(pattern string) string {
	pattern = NormalizePattern(pattern)
	idx := findFirstUnescapedMeta(pattern)
	static := pattern
	if idx >= 0 {
		static = pattern[:idx]
	}

	cut := strings.LastIndex(static, "/")
	switch {
	case cut < 0:
		return "."
	case cut == 0:
		return "/"
	}
	return unescape(static[:cut])
}

// findFirstUnescapedMeta returns the index of the first unescaped glob
// metacharacter (* ? [ {) in pattern, or -1.
func findFirstUnescapedMeta(pattern string) int {
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c == '\\' && i+1 < len(pattern) {
			switch pattern[i+1] {
			case '*', '?', '[', '{', '\\':
				i++
			}
			continue
		}
		if c == '*' || c == '?' || c == '[' || c == '{' {
			return i
		}
	}
	return -1
}

// unescape removes escape backslashes so a static pattern prefix becomes a
// real filesystem path.
func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) && strings.IndexByte(globEscapable, s[i+1]) >= 0 {
			b.WriteByte(s[i+1])
			i++
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
