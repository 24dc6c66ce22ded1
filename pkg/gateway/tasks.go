package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/3leaps/casegen/pkg/transport"
)

// Tasks is the gateway for server-side jobs.
type Tasks struct {
	c Doer
}

// ListTasksParams filters the job listing.
type ListTasksParams struct {
	Pagination
	Type   JobType
	Status JobStatus
}

// List returns one page of jobs. The endpoint answers with a bare array.
func (t *Tasks) List(ctx context.Context, params ListTasksParams) ([]Job, error) {
	q := url.Values{}
	params.apply(q)
	q.Set("type", string(params.Type))
	q.Set("status", string(params.Status))

	var jobs []Job
	if _, err := t.c.Do(ctx, http.MethodGet, "/cases/tasks", nil, &jobs, transport.WithQuery(q), transport.WithRoute("/cases/tasks")); err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []Job{}
	}
	return jobs, nil
}

// Get returns the current state of one job. It is the fetch function used
// when polling.
func (t *Tasks) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	if _, err := t.c.Do(ctx, http.MethodGet, "/cases/tasks/"+url.PathEscape(id), nil, &job, transport.WithRoute("/cases/tasks/{id}")); err != nil {
		return nil, err
	}
	if job.TaskID == "" {
		job.TaskID = id
	}
	return &job, nil
}

// Delete removes a job record, optionally with the cases it generated.
func (t *Tasks) Delete(ctx context.Context, id string, deleteCases bool) error {
	q := url.Values{}
	q.Set("delete_cases", strconv.FormatBool(deleteCases))
	_, err := t.c.Do(ctx, http.MethodDelete, "/cases/tasks/"+url.PathEscape(id), nil, nil,
		transport.WithQuery(q), transport.WithRoute("/cases/tasks/{id}"))
	return err
}
