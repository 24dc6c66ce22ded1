package jobregistry

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/casegen/pkg/gateway"
	"github.com/3leaps/casegen/pkg/poller"
)

// Tracker mirrors the progress of polled jobs into a Store. Registry write
// failures are logged and never interrupt polling.
type Tracker struct {
	store   *Store
	baseURL string
	logger  *zap.Logger
}

// NewTracker creates a Tracker recording jobs of the API at baseURL.
func NewTracker(store *Store, baseURL string, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, baseURL: baseURL, logger: logger}
}

// Store returns the underlying store.
func (t *Tracker) Store() *Store {
	return t.store
}

// Started records a generation job that was just accepted by the server.
func (t *Tracker) Started(jobID string, req gateway.GenerateRequest, fileName string) {
	now := time.Now().UTC()
	rec := &JobRecord{
		JobID:     jobID,
		Kind:      string(gateway.JobTypeGenerate),
		State:     JobStatePending,
		BaseURL:   t.baseURL,
		FileID:    req.FileID,
		FileName:  strings.TrimSpace(fileName),
		Project:   req.ProjectName,
		Module:    req.ModuleName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.store.Write(rec); err != nil {
		t.logger.Warn("Failed to record job", zap.String("job_id", jobID), zap.Error(err))
	}
}

// Observe is a poller.OnAttempt callback.
func (t *Tracker) Observe(a poller.Attempt[*gateway.Job]) {
	_, err := t.store.Update(a.JobID, func(r *JobRecord) {
		now := time.Now().UTC()
		r.LastPolledAt = &now
		r.Attempts++
		if a.Err != nil || a.Value == nil {
			return
		}
		r.State = JobState(a.Value.Status)
		r.Progress = a.Value.Progress
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		t.logger.Debug("Failed to update job record", zap.String("job_id", a.JobID), zap.Error(err))
	}
}

// Finished records the outcome of polling jobID.
func (t *Tracker) Finished(jobID string, job *gateway.Job, pollErr error) {
	_, err := t.store.Update(jobID, func(r *JobRecord) {
		now := time.Now().UTC()
		switch {
		case pollErr != nil && poller.IsTimeout(pollErr):
			r.State = JobStateTimeout
		case pollErr != nil:
			r.State = JobStateUnknown
			r.Error = pollErr.Error()
		case job != nil:
			r.State = JobState(job.Status)
			r.Progress = job.Progress
			if job.Status == gateway.JobStatusFailed {
				r.Error = job.FailureMessage()
			}
			if res := job.GenerateResult(); res != nil {
				r.CasesCount = res.CasesCount
			}
		}
		if r.State.IsTerminal() {
			r.EndedAt = &now
		}
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		t.logger.Warn("Failed to finalize job record", zap.String("job_id", jobID), zap.Error(err))
	}
}
