// Package jobregistry keeps a local record of server jobs started by this
// client, so they can be listed and resumed after the process exits.
package jobregistry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when no record exists for a job id.
var ErrNotFound = errors.New("job record not found")

const recordExt = ".json"

// Store keeps one JSON file per job, <dir>/<job_id>.json. Writes replace
// the file atomically. A Store is safe for concurrent use within one
// process.
type Store struct {
	dir string
	mu  sync.Mutex
}

func NewStore(dir string) *Store {
	return &Store{dir: strings.TrimSpace(dir)}
}

func (s *Store) path(jobID string) (string, error) {
	id := strings.TrimSpace(jobID)
	switch {
	case id == "":
		return "", errors.New("job id is required")
	case strings.ContainsAny(id, `/\`), !filepath.IsLocal(id):
		return "", fmt.Errorf("invalid job id %q", jobID)
	case s.dir == "":
		return "", errors.New("job registry directory is not set")
	}
	return filepath.Join(s.dir, id+recordExt), nil
}

// Write stores record, replacing any earlier version.
func (s *Store) Write(record *JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(record)
}

func (s *Store) put(record *JobRecord) error {
	if record == nil {
		return errors.New("job record is nil")
	}
	dst, err := s.path(record.JobID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job %s: %w", record.JobID, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create job registry: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".job-*")
	if err != nil {
		return fmt.Errorf("write job %s: %w", record.JobID, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	_, err = tmp.Write(append(data, '\n'))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		return fmt.Errorf("write job %s: %w", record.JobID, err)
	}
	return nil
}

// Get loads one record. It returns ErrNotFound when none exists.
func (s *Store) Get(jobID string) (*JobRecord, error) {
	p, err := s.path(jobID)
	if err != nil {
		return nil, err
	}
	return readRecord(p)
}

func readRecord(p string) (*JobRecord, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec JobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(p), err)
	}
	return &rec, nil
}

// Update applies fn to the stored record, stamps UpdatedAt and writes it back.
func (s *Store) Update(jobID string, fn func(*JobRecord)) (*JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Get(jobID)
	if err != nil {
		return nil, err
	}
	fn(rec)
	rec.UpdatedAt = time.Now().UTC()
	if err := s.put(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *Store) Delete(jobID string) error {
	p, err := s.path(jobID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// List returns every readable record, newest first. Unparseable files are
// skipped. A registry that was never written to is empty.
func (s *Store) List() ([]JobRecord, error) {
	if s.dir == "" {
		return nil, errors.New("job registry directory is not set")
	}
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read job registry: %w", err)
	}

	var out []JobRecord
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != recordExt {
			continue
		}
		if rec, err := readRecord(filepath.Join(s.dir, name)); err == nil {
			out = append(out, *rec)
		}
	}
	slices.SortStableFunc(out, func(a, b JobRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// Pending returns records whose last known state is not terminal.
func (s *Store) Pending() ([]JobRecord, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(r JobRecord) bool { return r.State.IsTerminal() }), nil
}
