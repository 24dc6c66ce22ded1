package match

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ErrNoMatch is returned by Expand when no file was selected.
var ErrNoMatch = errors.New("no files matched")

// ExpandOptions configures Expand.
type ExpandOptions struct {
	Excludes      []string
	IncludeHidden bool

	// Filter is applied to every file found. Nil accepts everything.
	Filter *CompositeFilter
}

// Skipped is a file that matched a pattern but was rejected by a filter.
type Skipped struct {
	Path   string
	Reason string
}

// Selection is the result of Expand.
type Selection struct {
	Files   []Candidate
	Skipped []Skipped
}

// Expand resolves command-line arguments into files to upload.
//
// An argument naming an existing file selects it directly. A directory
// selects every file below it. Anything else is a glob pattern walked from
// its static root. Results are deduplicated and sorted by path.
func Expand(args []string, opts ExpandOptions) (*Selection, error) {
	var includes []string
	seen := make(map[string]bool)
	sel := &Selection{}

	excl, err := New(Config{Includes: []string{"**"}, Excludes: opts.Excludes})
	if err != nil {
		return nil, err
	}

	for _, arg := range args {
		if IsGlobPattern(arg) {
			includes = append(includes, arg)
			continue
		}
		st, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}
		if st.IsDir() {
			includes = append(includes, filepath.ToSlash(filepath.Clean(arg))+"/**")
			continue
		}
		if excl.Excluded(filepath.ToSlash(arg)) {
			continue
		}
		sel.add(seen, opts.Filter, Candidate{Path: filepath.Clean(arg), Size: st.Size(), ModTime: st.ModTime()})
	}

	if len(includes) > 0 {
		m, err := New(Config{Includes: includes, Excludes: opts.Excludes, IncludeHidden: opts.IncludeHidden})
		if err != nil {
			return nil, err
		}
		for _, root := range m.Roots() {
			if err := walk(root, m, opts.IncludeHidden, func(c Candidate) {
				sel.add(seen, opts.Filter, c)
			}); err != nil {
				return nil, err
			}
		}
	}

	sort.Slice(sel.Files, func(i, j int) bool { return sel.Files[i].Path < sel.Files[j].Path })
	if len(sel.Files) == 0 {
		return sel, ErrNoMatch
	}
	return sel, nil
}

func (s *Selection) add(seen map[string]bool, filter *CompositeFilter, c Candidate) {
	if seen[c.Path] {
		return
	}
	seen[c.Path] = true
	if f := filter.Reject(&c); f != nil {
		s.Skipped = append(s.Skipped, Skipped{Path: c.Path, Reason: f.String()})
		return
	}
	s.Files = append(s.Files, c)
}

func walk(root string, m *Matcher, includeHidden bool, visit func(Candidate)) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if p != root && !includeHidden && IsHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !m.Match(filepath.ToSlash(p)) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		visit(Candidate{Path: p, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
}
