package jobregistry

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/casegen/pkg/gateway"
	"github.com/3leaps/casegen/pkg/poller"
)

func TestStore_WriteGetRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	rec := &JobRecord{
		JobID:     "task-1",
		Kind:      "generate",
		State:     JobStateProcessing,
		BaseURL:   "http://127.0.0.1:8000/api/v1",
		FileID:    "file-1",
		Project:   "shop",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.Write(rec))

	got, err := s.Get("task-1")
	require.NoError(t, err)
	assert.Equal(t, *rec, *got)
}

func TestStore_GetMissing(t *testing.T) {
	s := NewStore(t.TempDir())

	_, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get("../escape")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestStore_ListSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	require.NoError(t, s.Write(&JobRecord{JobID: "task-1", State: JobStateCompleted}))
	assert.FileExists(t, filepath.Join(dir, "task-1.json"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	got, err := s.List()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "task-1", got[0].JobID)
}

func TestStore_NeverWritten(t *testing.T) {
	got, err := NewStore(filepath.Join(t.TempDir(), "absent")).List()
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = NewStore("").List()
	assert.Error(t, err)
	assert.Error(t, NewStore("").Write(&JobRecord{JobID: "task-1"}))
}

func TestStore_ListSortsNewestFirst(t *testing.T) {
	s := NewStore(t.TempDir())

	t1 := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 10, 15, 13, 0, 0, 0, time.UTC)
	require.NoError(t, s.Write(&JobRecord{JobID: "task-1", State: JobStateCompleted, CreatedAt: t1}))
	require.NoError(t, s.Write(&JobRecord{JobID: "task-2", State: JobStateProcessing, CreatedAt: t2}))

	got, err := s.List()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "task-2", got[0].JobID)

	pending, err := s.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "task-2", pending[0].JobID)
}

func TestStore_UpdateAndDelete(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Write(&JobRecord{JobID: "task-1", State: JobStatePending}))

	rec, err := s.Update("task-1", func(r *JobRecord) { r.Progress = 50 })
	require.NoError(t, err)
	assert.Equal(t, 50, rec.Progress)
	assert.False(t, rec.UpdatedAt.IsZero())

	require.NoError(t, s.Delete("task-1"))
	_, err = s.Get("task-1")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Delete("task-1"))

	_, err = s.Update("task-1", func(r *JobRecord) {})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTracker_Lifecycle(t *testing.T) {
	s := NewStore(t.TempDir())
	tr := NewTracker(s, "http://api", nil)

	tr.Started("task-1", gateway.GenerateRequest{FileID: "file-1", ProjectName: "shop"}, "spec.zip")
	tr.Observe(poller.Attempt[*gateway.Job]{JobID: "task-1", N: 1, Value: &gateway.Job{TaskID: "task-1", Status: gateway.JobStatusProcessing, Progress: 40}})
	tr.Observe(poller.Attempt[*gateway.Job]{JobID: "task-1", N: 2, Err: errors.New("reset")})

	rec, err := s.Get("task-1")
	require.NoError(t, err)
	assert.Equal(t, JobStateProcessing, rec.State)
	assert.Equal(t, 40, rec.Progress)
	assert.Equal(t, 2, rec.Attempts)
	assert.Equal(t, "spec.zip", rec.FileName)
	require.NotNil(t, rec.LastPolledAt)

	result, _ := json.Marshal(gateway.GenerateResult{CasesCount: 12, ProjectName: "shop"})
	tr.Finished("task-1", &gateway.Job{TaskID: "task-1", Status: gateway.JobStatusCompleted, Progress: 100, Result: result}, nil)

	rec, err = s.Get("task-1")
	require.NoError(t, err)
	assert.Equal(t, JobStateCompleted, rec.State)
	assert.Equal(t, 12, rec.CasesCount)
	assert.NotNil(t, rec.EndedAt)
}

func TestTracker_FinishedOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		job       *gateway.Job
		err       error
		wantState JobState
		wantError string
	}{
		{name: "timeout", err: &poller.TimeoutError{JobID: "task-1", Attempts: 30}, wantState: JobStateTimeout},
		{name: "poll error", err: &poller.PollError{JobID: "task-1", Attempts: 3, Err: errors.New("down")}, wantState: JobStateUnknown, wantError: "down"},
		{name: "server failure", job: &gateway.Job{Status: gateway.JobStatusFailed, Error: "bad archive"}, wantState: JobStateFailed, wantError: "bad archive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(t.TempDir())
			tr := NewTracker(s, "http://api", nil)
			tr.Started("task-1", gateway.GenerateRequest{FileID: "f", ProjectName: "p"}, "")

			tr.Finished("task-1", tt.job, tt.err)

			rec, err := s.Get("task-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, rec.State)
			assert.Contains(t, rec.Error, tt.wantError)
		})
	}
}
