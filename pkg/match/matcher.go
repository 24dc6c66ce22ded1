package match

import (
	"errors"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	ErrNoIncludes     = errors.New("at least one include pattern is required")
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// PatternError names the pattern that failed to compile.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// Config lists the upload globs. A path is selected when it matches any
// include and no exclude.
type Config struct {
	Includes []string
	Excludes []string

	// IncludeHidden selects dot-files and dot-directories below the
	// literal part of an include.
	IncludeHidden bool
}

// glob is a normalized pattern with what matching needs precomputed.
type glob struct {
	expr string
	// prefix is the literal leading directory, with trailing slash.
	prefix string
	// anyDir lets a slash-free exclude hit the base name at any depth.
	anyDir bool
}

func (g glob) hits(p string) bool {
	ok, _ := doublestar.Match(g.expr, p)
	return ok
}

// Matcher selects slash-separated paths. It is immutable once built.
type Matcher struct {
	includes      []glob
	excludes      []glob
	includeHidden bool
}

func New(cfg Config) (*Matcher, error) {
	if len(cfg.Includes) == 0 {
		return nil, ErrNoIncludes
	}
	inc, err := compileGlobs(cfg.Includes)
	if err != nil {
		return nil, err
	}
	exc, err := compileGlobs(cfg.Excludes)
	if err != nil {
		return nil, err
	}
	return &Matcher{includes: inc, excludes: exc, includeHidden: cfg.IncludeHidden}, nil
}

func compileGlobs(raw []string) ([]glob, error) {
	out := make([]glob, 0, len(raw))
	for _, r := range raw {
		expr := NormalizePattern(r)
		if expr == "" || !doublestar.ValidatePattern(expr) {
			return nil, &PatternError{Pattern: r, Err: ErrInvalidPattern}
		}
		g := glob{expr: expr, anyDir: !strings.Contains(expr, "/")}
		if root := WalkRoot(expr); root != "." {
			g.prefix = strings.TrimSuffix(root, "/") + "/"
		}
		out = append(out, g)
	}
	return out, nil
}

// Match reports whether p is selected. Hidden segments the user spelled
// out in an include's literal prefix do not count as hidden.
func (m *Matcher) Match(p string) bool {
	p = NormalizePattern(p)
	selected := slices.ContainsFunc(m.includes, func(g glob) bool {
		return g.hits(p) && (m.includeHidden || !IsHidden(strings.TrimPrefix(p, g.prefix)))
	})
	return selected && !m.Excluded(p)
}

// Excluded reports whether p hits any exclude.
func (m *Matcher) Excluded(p string) bool {
	p = NormalizePattern(p)
	base := path.Base(p)
	return slices.ContainsFunc(m.excludes, func(g glob) bool {
		return g.hits(p) || (g.anyDir && g.hits(base))
	})
}

// Roots returns the directories a walk must cover, without nesting.
func (m *Matcher) Roots() []string {
	roots := make([]string, len(m.includes))
	for i, g := range m.includes {
		roots[i] = WalkRoot(g.expr)
	}
	slices.Sort(roots)

	out := roots[:0]
	for _, r := range roots {
		if n := len(out); n > 0 && covers(out[n-1], r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// covers reports whether walking parent also reaches dir.
func covers(parent, dir string) bool {
	switch {
	case dir == parent:
		return true
	case parent == ".":
		return !strings.HasPrefix(dir, "/") && !strings.HasPrefix(dir, "..")
	case parent == "/":
		return strings.HasPrefix(dir, "/")
	}
	return strings.HasPrefix(dir, parent+"/")
}

func (m *Matcher) IncludePatterns() []string { return exprs(m.includes) }

func (m *Matcher) ExcludePatterns() []string { return exprs(m.excludes) }

func exprs(gs []glob) []string {
	out := make([]string, len(gs))
	for i, g := range gs {
		out[i] = g.expr
	}
	return out
}
