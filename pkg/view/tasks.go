package view

import (
	"context"
	"fmt"

	"github.com/3leaps/casegen/pkg/gateway"
)

// TaskFilter narrows the task listing.
type TaskFilter struct {
	Type   gateway.JobType
	Status gateway.JobStatus
}

// TasksView is the background-task page.
type TasksView struct {
	base
	api *gateway.API

	filter TaskFilter
	page   gateway.Pagination
	items  []gateway.Job
}

// NewTasksView creates a tasks view over api.
func NewTasksView(api *gateway.API, opts ...Option) *TasksView {
	return &TasksView{
		base:  base{options: buildOptions(opts)},
		api:   api,
		page:  gateway.Pagination{Page: 1, PageSize: gateway.DefaultPageSize},
		items: []gateway.Job{},
	}
}

// SetFilter replaces the filter and returns to page 1.
func (v *TasksView) SetFilter(f TaskFilter) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.filter = f
	v.page.Page = 1
	v.invalidateLocked()
}

// SetPage changes the page window. A zero size keeps the current size.
func (v *TasksView) SetPage(page, size int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.page.Page = page
	if size > 0 {
		v.page.PageSize = size
	}
	v.invalidateLocked()
}

// Refresh fetches the current page.
func (v *TasksView) Refresh(ctx context.Context) error {
	v.mu.Lock()
	params := gateway.ListTasksParams{Pagination: v.page, Type: v.filter.Type, Status: v.filter.Status}
	gen := v.beginFetchLocked()
	v.mu.Unlock()

	jobs, err := v.api.Tasks.List(ctx, params)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.endFetchLocked(gen, err); err != nil {
		return err
	}
	v.items = jobs
	return nil
}

// Items returns the tasks of the last refresh.
func (v *TasksView) Items() []gateway.Job {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]gateway.Job{}, v.items...)
}

// Get fetches one task without polling.
func (v *TasksView) Get(ctx context.Context, id string) (*gateway.Job, error) {
	done := v.beginAction()
	job, err := v.api.Tasks.Get(ctx, id)
	return job, done(err, "")
}

// Watch polls an existing task with p until it reaches a terminal state.
// The listing entry for the task is updated with the final state.
func (v *TasksView) Watch(ctx context.Context, id string, p *JobPoller) (*gateway.Job, error) {
	done := v.beginAction()
	job, err := waitJob(ctx, p, v.api.Tasks, id)
	if job != nil {
		v.mu.Lock()
		for i := range v.items {
			if v.items[i].TaskID == job.TaskID {
				v.items[i] = *job
			}
		}
		v.mu.Unlock()
	}
	if err != nil {
		return job, done(err, "")
	}
	return job, done(nil, fmt.Sprintf("task %s %s", id, job.Status))
}

// Delete asks for confirmation, then deletes task id. With deleteCases the
// cases it generated are deleted too.
func (v *TasksView) Delete(ctx context.Context, id string, deleteCases bool) error {
	done := v.beginAction()
	prompt := fmt.Sprintf("Delete task %s?", id)
	if deleteCases {
		prompt = fmt.Sprintf("Delete task %s and the cases it generated?", id)
	}
	if err := v.confirm(ctx, prompt); err != nil {
		return done(err, "")
	}
	if err := v.api.Tasks.Delete(ctx, id, deleteCases); err != nil {
		return done(err, "")
	}

	v.mu.Lock()
	out := v.items[:0]
	for _, j := range v.items {
		if j.TaskID != id {
			out = append(out, j)
		}
	}
	v.items = out
	v.mu.Unlock()
	return done(nil, "deleted task "+id)
}
