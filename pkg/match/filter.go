package match

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ecodeclub/ekit/slice"
)

// Candidate is a local file considered for upload.
type Candidate struct {
	// Path uses the OS separator.
	Path    string
	Size    int64
	ModTime time.Time
}

// Filter accepts or rejects one candidate. String describes the rule for
// skip messages.
type Filter interface {
	Match(c *Candidate) bool
	String() string
}

// FilterConfig is the upload.filter section of the configuration.
type FilterConfig struct {
	Size *SizeFilterConfig `json:"size,omitempty" yaml:"size,omitempty" mapstructure:"size"`

	// Extensions lists accepted file extensions (".zip"). Empty accepts all.
	Extensions []string `json:"extensions,omitempty" yaml:"extensions,omitempty" mapstructure:"extensions"`
}

// SizeFilterConfig bounds are inclusive and accept ParseSize syntax.
type SizeFilterConfig struct {
	Min string `json:"min,omitempty" yaml:"min,omitempty" mapstructure:"min"`
	Max string `json:"max,omitempty" yaml:"max,omitempty" mapstructure:"max"`
}

var (
	ErrInvalidSize      = errors.New("invalid size value")
	ErrInvalidExtension = errors.New("invalid extension")
)

const unbounded int64 = -1

// SizeFilter accepts sizes within [min, max].
type SizeFilter struct {
	min, max int64
}

// NewSizeFilter returns nil when cfg sets no bound.
func NewSizeFilter(cfg *SizeFilterConfig) (*SizeFilter, error) {
	if cfg == nil || (cfg.Min == "" && cfg.Max == "") {
		return nil, nil
	}
	bound := func(name, v string) (int64, error) {
		if v == "" {
			return unbounded, nil
		}
		n, err := ParseSize(v)
		if err != nil {
			return 0, fmt.Errorf("%s size: %w", name, err)
		}
		return n, nil
	}

	lo, err := bound("min", cfg.Min)
	if err != nil {
		return nil, err
	}
	hi, err := bound("max", cfg.Max)
	if err != nil {
		return nil, err
	}
	if lo != unbounded && hi != unbounded && lo > hi {
		return nil, fmt.Errorf("%w: min (%d) > max (%d)", ErrInvalidSize, lo, hi)
	}
	return &SizeFilter{min: lo, max: hi}, nil
}

func (f *SizeFilter) Match(c *Candidate) bool {
	return (f.min == unbounded || c.Size >= f.min) && (f.max == unbounded || c.Size <= f.max)
}

func (f *SizeFilter) String() string {
	switch {
	case f.min == unbounded:
		return "size <= " + FormatSize(f.max)
	case f.max == unbounded:
		return "size >= " + FormatSize(f.min)
	}
	return "size " + FormatSize(f.min) + ".." + FormatSize(f.max)
}

// ExtensionFilter accepts a fixed set of extensions, ignoring case.
type ExtensionFilter struct {
	exts []string
}

// NewExtensionFilter takes extensions with or without the leading dot and
// returns nil for an empty list.
func NewExtensionFilter(exts []string) (*ExtensionFilter, error) {
	if len(exts) == 0 {
		return nil, nil
	}
	f := &ExtensionFilter{exts: make([]string, 0, len(exts))}
	for _, raw := range exts {
		e := strings.ToLower(strings.TrimSpace(raw))
		if e == "" || e == "." || strings.ContainsAny(e, `/\`) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidExtension, raw)
		}
		f.exts = append(f.exts, "."+strings.TrimPrefix(e, "."))
	}
	return f, nil
}

func (f *ExtensionFilter) Match(c *Candidate) bool {
	return slice.Contains(f.exts, strings.ToLower(filepath.Ext(c.Path)))
}

func (f *ExtensionFilter) String() string {
	return "extension in " + strings.Join(f.exts, ",")
}

// CompositeFilter passes candidates that every member accepts.
type CompositeFilter struct {
	filters []Filter
}

// NewCompositeFilter skips nil members.
func NewCompositeFilter(filters ...Filter) *CompositeFilter {
	cf := &CompositeFilter{}
	for _, f := range filters {
		if f != nil {
			cf.filters = append(cf.filters, f)
		}
	}
	return cf
}

// NewFilterFromConfig builds the upload filter. A nil cfg accepts everything.
func NewFilterFromConfig(cfg *FilterConfig) (*CompositeFilter, error) {
	if cfg == nil {
		return NewCompositeFilter(), nil
	}
	size, err := NewSizeFilter(cfg.Size)
	if err != nil {
		return nil, err
	}
	ext, err := NewExtensionFilter(cfg.Extensions)
	if err != nil {
		return nil, err
	}

	// Typed nils must not end up inside the Filter interface.
	cf := NewCompositeFilter()
	if size != nil {
		cf.filters = append(cf.filters, size)
	}
	if ext != nil {
		cf.filters = append(cf.filters, ext)
	}
	return cf, nil
}

func (f *CompositeFilter) Match(c *Candidate) bool {
	return f.Reject(c) == nil
}

// Reject returns the first member that refuses c, or nil.
func (f *CompositeFilter) Reject(c *Candidate) Filter {
	if f == nil {
		return nil
	}
	for _, m := range f.filters {
		if !m.Match(c) {
			return m
		}
	}
	return nil
}

func (f *CompositeFilter) String() string {
	if f == nil || len(f.filters) == 0 {
		return "none"
	}
	return strings.Join(slice.Map(f.filters, func(_ int, m Filter) string { return m.String() }), " AND ")
}

func (f *CompositeFilter) Filters() []Filter {
	return f.filters
}

const (
	Byte int64 = 1

	KB int64 = 1000
	MB       = 1000 * KB
	GB       = 1000 * MB
	TB       = 1000 * GB

	KiB int64 = 1024
	MiB       = 1024 * KiB
	GiB       = 1024 * MiB
	TiB       = 1024 * GiB
)

// sizeUnits maps upper-cased unit suffixes to multipliers.
var sizeUnits = map[string]int64{
	"": Byte, "B": Byte,
	"K": KB, "KB": KB, "M": MB, "MB": MB, "G": GB, "GB": GB, "T": TB, "TB": TB,
	"KI": KiB, "KIB": KiB, "MI": MiB, "MIB": MiB, "GI": GiB, "GIB": GiB, "TI": TiB, "TIB": TiB,
}

// ParseSize reads "1024", "100MB" (powers of 1000) or "100MiB" (powers of
// 1024). Units ignore case and fractions are allowed.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	split := strings.IndexFunc(s, func(r rune) bool { return (r < '0' || r > '9') && r != '.' })
	if split < 0 {
		split = len(s)
	}
	if split == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	digits, unit := s[:split], strings.ToUpper(strings.TrimSpace(s[split:]))
	mult, ok := sizeUnits[unit]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidSize, unit)
	}

	if strings.Contains(digits, ".") {
		f, err := strconv.ParseFloat(digits, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
		}
		v := f * float64(mult)
		if v >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: %q overflows", ErrInvalidSize, s)
		}
		return int64(v), nil
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n > math.MaxInt64/mult {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidSize, s)
	}
	return n * mult, nil
}

var binaryUnits = []struct {
	size int64
	name string
}{{TiB, "TiB"}, {GiB, "GiB"}, {MiB, "MiB"}, {KiB, "KiB"}}

// FormatSize renders bytes with one decimal in the largest binary unit.
func FormatSize(bytes int64) string {
	for _, u := range binaryUnits {
		if bytes >= u.size {
			return fmt.Sprintf("%.1f%s", float64(bytes)/float64(u.size), u.name)
		}
	}
	return fmt.Sprintf("%dB", bytes)
}
