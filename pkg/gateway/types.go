package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/3leaps/casegen/pkg/transport"
)

// FileStatus is the processing state of an uploaded file.
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailed     FileStatus = "failed"
)

// FileItem is an uploaded requirements archive.
type FileItem struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Status    FileStatus `json:"status"`
	Path      string     `json:"path"`
	Error     string     `json:"error,omitempty"`
	CreatedAt string     `json:"created_at"`
	UpdatedAt string     `json:"updated_at"`
}

// Page is one window of a paginated listing. Total is the server's full count
// independent of the window; len(Items) never exceeds the requested size.
type Page[T any] struct {
	Total int `json:"total"`
	Items []T `json:"items"`
}

// TestCase is a generated test case.
type TestCase struct {
	CaseID  string      `json:"case_id"`
	Project string      `json:"project"`
	Module  string      `json:"module"`
	Name    string      `json:"name"`
	Level   string      `json:"level"`
	Status  string      `json:"status"`
	TaskID  string      `json:"task_id,omitempty"`
	Content CaseContent `json:"content"`
}

// CaseContent is the structured body of a test case. Expected[i] belongs to
// Steps[i]; nothing enforces equal lengths.
type CaseContent struct {
	Precondition  string   `json:"precondition,omitempty" yaml:"precondition,omitempty"`
	Steps         []string `json:"steps,omitempty" yaml:"steps,omitempty"`
	Expected      []string `json:"expected,omitempty" yaml:"expected,omitempty"`
	ActualResults []string `json:"actual_results,omitempty" yaml:"actual_results,omitempty"`
	Remark        string   `json:"remark,omitempty" yaml:"remark,omitempty"`
}

// StepPair is one aligned step with its expectation and actual result.
type StepPair struct {
	Index    int
	Step     string
	Expected string
	Actual   string
}

// Pairs aligns steps with expectations by index. Missing entries on either
// side are empty strings.
func (c CaseContent) Pairs() []StepPair {
	n := len(c.Steps)
	if len(c.Expected) > n {
		n = len(c.Expected)
	}
	out := make([]StepPair, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, StepPair{
			Index:    i,
			Step:     at(c.Steps, i),
			Expected: at(c.Expected, i),
			Actual:   at(c.ActualResults, i),
		})
	}
	return out
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

// CaseUpdate is the subset of TestCase fields the server accepts on update.
// Project and module are immutable once a case exists.
type CaseUpdate struct {
	Name    *string      `json:"name,omitempty"`
	Level   *string      `json:"level,omitempty"`
	Status  *string      `json:"status,omitempty"`
	Content *CaseContent `json:"content,omitempty"`
}

// Empty reports whether the update carries no changes.
func (u CaseUpdate) Empty() bool {
	return u.Name == nil && u.Level == nil && u.Status == nil && u.Content == nil
}

// JobStatus is the lifecycle state of a server-side job. It only moves
// forward: pending -> processing -> completed|failed.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition can happen.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobType identifies what a job does.
type JobType string

const (
	JobTypeGenerate JobType = "generate"
	JobTypeExport   JobType = "export"
)

// Job is a server-side asynchronous unit of work ("task").
type Job struct {
	TaskID    string          `json:"task_id"`
	Type      JobType         `json:"type"`
	Status    JobStatus       `json:"status"`
	Progress  int             `json:"progress"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// IsTerminal reports whether the job reached completed or failed.
func (j *Job) IsTerminal() bool {
	return j != nil && j.Status.IsTerminal()
}

// GenerateResult is the result payload of a completed generate job.
type GenerateResult struct {
	CasesCount  int    `json:"cases_count"`
	ProjectName string `json:"project_name"`
	ModuleName  string `json:"module_name,omitempty"`
}

// GenerateResult decodes Result when the job completed. It returns nil when
// the job has no result or the result has a different shape.
func (j *Job) GenerateResult() *GenerateResult {
	if j == nil || j.Status != JobStatusCompleted || len(j.Result) == 0 {
		return nil
	}
	var res GenerateResult
	if err := transport.Unmarshal(j.Result, &res); err != nil {
		return nil
	}
	return &res
}

// FailureMessage is the text shown for a failed job: the server's error
// verbatim when present, otherwise a generic message.
func (j *Job) FailureMessage() string {
	if j == nil {
		return ""
	}
	if msg := strings.TrimSpace(j.Error); msg != "" {
		return j.Error
	}
	return "task failed"
}

// GenerateRequest starts case generation from an uploaded file.
type GenerateRequest struct {
	FileID      string `json:"file_id"`
	ProjectName string `json:"project_name"`
	ModuleName  string `json:"module_name,omitempty"`
}

// Validate checks the client-side required fields.
func (r GenerateRequest) Validate() error {
	if strings.TrimSpace(r.FileID) == "" {
		return &ValidationError{Field: "file_id", Message: "file id is required"}
	}
	if strings.TrimSpace(r.ProjectName) == "" {
		return &ValidationError{Field: "project_name", Message: "project name is required"}
	}
	return nil
}

// ExportRequest selects the cases to export. Either explicit case ids or a
// project/module/task filter.
type ExportRequest struct {
	CaseIDs     []string `json:"case_ids,omitempty"`
	ProjectName string   `json:"project_name,omitempty"`
	ModuleName  string   `json:"module_name,omitempty"`
	TaskID      string   `json:"task_id,omitempty"`
}

// Validate checks that at least one selector is set.
func (r ExportRequest) Validate() error {
	if len(r.CaseIDs) == 0 && strings.TrimSpace(r.ProjectName) == "" &&
		strings.TrimSpace(r.ModuleName) == "" && strings.TrimSpace(r.TaskID) == "" {
		return &ValidationError{Field: "selector", Message: "select cases or set a project, module, or task"}
	}
	return nil
}

// DashboardStats summarizes files and cases for the dashboard.
type DashboardStats struct {
	TotalFiles  int `json:"total_files"`
	TotalCases  int `json:"total_cases"`
	RecentFiles int `json:"recent_files"`
	RecentCases int `json:"recent_cases"`
	CaseStats   struct {
		ByLevel  map[string]int `json:"by_level"`
		ByStatus map[string]int `json:"by_status"`
	} `json:"case_stats"`
	FileStats struct {
		ByType   map[string]int `json:"by_type"`
		ByStatus map[string]int `json:"by_status"`
	} `json:"file_stats"`
}

// MindMapState is the generation state of a task's mind map.
type MindMapState string

const (
	MindMapPending    MindMapState = "pending"
	MindMapGenerating MindMapState = "generating"
	MindMapSuccess    MindMapState = "success"
	MindMapFailed     MindMapState = "failed"
)

// MindMapStatus is the status payload of the mind-map endpoint.
type MindMapStatus struct {
	TaskID  string       `json:"task_id,omitempty"`
	Status  MindMapState `json:"status"`
	MindMap string       `json:"mindmap,omitempty"`
	Message string       `json:"message,omitempty"`
}

// IsTerminal reports whether the mind map finished, successfully or not.
func (s *MindMapStatus) IsTerminal() bool {
	return s != nil && (s.Status == MindMapSuccess || s.Status == MindMapFailed)
}

// ExportFormat is a rendered mind-map image format.
type ExportFormat string

const (
	FormatSVG ExportFormat = "svg"
	FormatPNG ExportFormat = "png"
)

// ParseTime parses the server's timestamp format. It returns the zero time for
// empty or unrecognized values.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
