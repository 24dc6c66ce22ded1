// Package output provides JSONL output for job progress and results.
//
// Output is structured as typed record envelopes. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: casegen.<type>.v<version>
const (
	// TypeFile identifies uploaded file records.
	TypeFile = "casegen.file.v1"

	// TypeJob identifies job progress records, one per poll attempt.
	TypeJob = "casegen.job.v1"

	// TypeResult identifies the final record of a polled job.
	TypeResult = "casegen.result.v1"

	// TypeExport identifies saved export records.
	TypeExport = "casegen.export.v1"

	// TypeError identifies error records.
	TypeError = "casegen.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "casegen.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "casegen.job.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID correlates every record emitted by one command invocation.
	RunID string `json:"run_id"`

	// API is the base URL of the service the run talked to.
	API string `json:"api"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// FileRecord is the data payload for an uploaded file.
type FileRecord struct {
	Path   string `json:"path"`
	FileID string `json:"file_id"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Status string `json:"status"`
}

// JobRecord is the data payload for one poll attempt of a job.
type JobRecord struct {
	JobID    string `json:"job_id"`
	Attempt  int    `json:"attempt"`
	Status   string `json:"status,omitempty"`
	Progress int    `json:"progress"`

	// Error is the transient fetch error of this attempt, if any.
	Error string `json:"error,omitempty"`
}

// ResultRecord is the data payload for a job that stopped being polled.
type ResultRecord struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	CasesCount  int    `json:"cases_count,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
	ModuleName  string `json:"module_name,omitempty"`

	// Error is the server's failure text for failed jobs.
	Error string `json:"error,omitempty"`

	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration_ns"`
}

// ExportRecord is the data payload for a saved export.
type ExportRecord struct {
	Location    string `json:"location"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
	CaseCount   int    `json:"case_count,omitempty"`
}

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records rather than failing the entire run,
// allowing partial results when one file of a batch fails.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Path is the local file related to this error, if applicable.
	Path string `json:"path,omitempty"`

	// JobID is the job related to this error, if applicable.
	JobID string `json:"job_id,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeNetwork indicates no response was received.
	ErrCodeNetwork = "NETWORK"

	// ErrCodeAPI indicates the server rejected the request.
	ErrCodeAPI = "API"

	// ErrCodeNotFound indicates the resource was not found.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeTimeout indicates polling ran out of attempts.
	ErrCodeTimeout = "TIMEOUT"

	// ErrCodeJobFailed indicates the server reported the job as failed.
	ErrCodeJobFailed = "JOB_FAILED"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// SummaryRecord is the data payload for final summaries.
type SummaryRecord struct {
	Files    int           `json:"files"`
	Jobs     int           `json:"jobs"`
	Cases    int           `json:"cases"`
	Errors   int           `json:"errors"`
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
