// Package file saves exports into a local directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/3leaps/casegen/pkg/provider"
)

// Config configures a directory sink.
type Config struct {
	// BaseDir is created on the first Put when missing.
	BaseDir string
}

// Provider writes each export to BaseDir/<key>.
type Provider struct {
	dir string
}

var _ provider.Sink = (*Provider)(nil)

// New returns a sink rooted at cfg.BaseDir.
func New(cfg Config) (*Provider, error) {
	dir := strings.TrimSpace(cfg.BaseDir)
	if dir == "" {
		return nil, fmt.Errorf("%w: export directory is empty", provider.ErrInvalidDestination)
	}
	return &Provider{dir: filepath.Clean(dir)}, nil
}

func (p *Provider) Close() error { return nil }

// Location is the absolute path key is saved to.
func (p *Provider) Location(key string) string {
	target, err := p.resolve(key)
	if err != nil {
		return filepath.Join(p.dir, key)
	}
	if abs, err := filepath.Abs(target); err == nil {
		return abs
	}
	return target
}

// Head reports the saved file for key. Directories count as absent.
func (p *Provider) Head(_ context.Context, key string) (*provider.ObjectMeta, error) {
	target, err := p.resolve(key)
	if err != nil {
		return nil, p.fail("head", key, err)
	}
	info, err := os.Stat(target)
	if err == nil && info.IsDir() {
		err = fs.ErrNotExist
	}
	if err != nil {
		return nil, p.fail("head", key, err)
	}
	return &provider.ObjectMeta{Key: key, Size: info.Size(), LastModified: info.ModTime()}, nil
}

// Put saves body under key. The file appears complete or not at all.
func (p *Provider) Put(ctx context.Context, key string, body io.Reader, _ int64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := p.resolve(key)
	if err != nil {
		return p.fail("put", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return p.fail("put", key, err)
	}
	if err := writeAtomic(target, body); err != nil {
		return p.fail("put", key, err)
	}
	return nil
}

func writeAtomic(target string, body io.Reader) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".casegen-export-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = io.Copy(tmp, body); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// resolve maps key below the base directory. Keys may not climb out of it.
func (p *Provider) resolve(key string) (string, error) {
	rel := filepath.ToSlash(strings.TrimSpace(key))
	rel = strings.TrimLeft(rel, "/")
	if rel == "" {
		return "", fmt.Errorf("%w: empty key", provider.ErrInvalidKey)
	}
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return "", fmt.Errorf("%w: %q escapes the export directory", provider.ErrInvalidKey, key)
	}
	return filepath.Join(p.dir, filepath.FromSlash(rel)), nil
}

func (p *Provider) fail(op, key string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		err = provider.ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		err = fmt.Errorf("%w: %v", provider.ErrAccessDenied, err)
	}
	return &provider.SinkError{Op: op, Sink: provider.ProviderFile, Location: filepath.Join(p.dir, key), Err: err}
}
