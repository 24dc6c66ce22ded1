package jobregistry

import "time"

// JobState is the client's last known view of a server-side job.
//
// NOTE: These values are persisted in job.json and are part of the stable
// on-disk contract.
type JobState string

const (
	JobStatePending    JobState = "pending"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"

	// JobStateTimeout means polling gave up; the server job may still run.
	JobStateTimeout JobState = "timeout"

	// JobStateUnknown means the client lost track of the job (poll error).
	JobStateUnknown JobState = "unknown"
)

// IsTerminal reports whether the server will not change the job further.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// JobRecord is the persistent record written to job.json for each job this
// client started.
//
// The schema is designed for backward-compatible extension (additive fields).
type JobRecord struct {
	JobID    string   `json:"job_id"`
	Kind     string   `json:"kind"`
	State    JobState `json:"state"`
	BaseURL  string   `json:"base_url"`
	FileID   string   `json:"file_id,omitempty"`
	FileName string   `json:"file_name,omitempty"`
	Project  string   `json:"project,omitempty"`
	Module   string   `json:"module,omitempty"`

	Progress   int    `json:"progress,omitempty"`
	CasesCount int    `json:"cases_count,omitempty"`
	Error      string `json:"error,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastPolledAt *time.Time `json:"last_polled_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}
