package view

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ecodeclub/ekit/slice"
	"go.uber.org/zap"

	"github.com/3leaps/casegen/pkg/gateway"
	"github.com/3leaps/casegen/pkg/transport"
)

// FilesView is the uploaded-files page.
type FilesView struct {
	base
	api *gateway.API

	params gateway.ListFilesParams
	items  []gateway.FileItem
	total  int
	sel    Selection
}

// NewFilesView creates a files view over api.
func NewFilesView(api *gateway.API, opts ...Option) *FilesView {
	return &FilesView{
		base:   base{options: buildOptions(opts)},
		api:    api,
		params: gateway.ListFilesParams{Pagination: gateway.Pagination{Page: 1, PageSize: gateway.DefaultPageSize}},
		items:  []gateway.FileItem{},
	}
}

// SetStatus changes the status filter, returns to page 1 and clears the
// selection. In-flight refreshes become stale.
func (v *FilesView) SetStatus(status gateway.FileStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.params.Status = status
	v.params.Page = 1
	v.sel.Clear()
	v.invalidateLocked()
}

// SetPage changes the page window. A zero size keeps the current size.
func (v *FilesView) SetPage(page, size int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.params.Page = page
	if size > 0 {
		v.params.PageSize = size
	}
	v.invalidateLocked()
}

// Params returns the current filter and page window.
func (v *FilesView) Params() gateway.ListFilesParams {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.params
}

// Refresh fetches the current page.
func (v *FilesView) Refresh(ctx context.Context) error {
	v.mu.Lock()
	params := v.params
	gen := v.beginFetchLocked()
	v.mu.Unlock()

	page, err := v.api.Files.List(ctx, params)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.endFetchLocked(gen, err); err != nil {
		return err
	}
	v.items = page.Items
	v.total = page.Total
	if fullListing(params.Pagination, page.Total, len(page.Items)) {
		v.sel.Prune(fileIDs(page.Items))
	}
	return nil
}

// Items returns the files of the last refresh.
func (v *FilesView) Items() []gateway.FileItem {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]gateway.FileItem{}, v.items...)
}

// Total returns the server's full count for the current filter.
func (v *FilesView) Total() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.total
}

// Toggle flips the selection of id.
func (v *FilesView) Toggle(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sel.Toggle(id)
}

// Selected returns the selected file ids.
func (v *FilesView) Selected() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sel.IDs()
}

// Upload sends one file and refreshes the listing.
func (v *FilesView) Upload(ctx context.Context, name string, content io.Reader) (*gateway.FileItem, error) {
	done := v.beginAction()
	item, err := v.api.Files.Upload(ctx, name, content)
	if err != nil {
		return nil, done(err, "")
	}
	done(nil, fmt.Sprintf("uploaded %s", item.Name))
	v.refreshAfter(ctx)
	return item, nil
}

// Get fetches one file.
func (v *FilesView) Get(ctx context.Context, id string) (*gateway.FileItem, error) {
	done := v.beginAction()
	item, err := v.api.Files.Get(ctx, id)
	return item, done(err, "")
}

// Delete asks for confirmation, then deletes ids. A single id uses the
// single-delete endpoint. The result maps every id to whether the server
// deleted it.
func (v *FilesView) Delete(ctx context.Context, ids ...string) (map[string]bool, error) {
	if len(ids) == 0 {
		return nil, ErrNothingSelected
	}
	done := v.beginAction()
	if err := v.confirm(ctx, fmt.Sprintf("Delete %s?", plural(len(ids), "file"))); err != nil {
		return nil, done(err, "")
	}

	var result map[string]bool
	var err error
	if len(ids) == 1 {
		var ok bool
		ok, err = v.api.Files.Delete(ctx, ids[0])
		result = map[string]bool{ids[0]: ok}
	} else {
		result, err = v.api.Files.BatchDelete(ctx, ids)
	}
	if err != nil {
		return nil, done(err, "")
	}

	deleted := deletedIDs(result)
	v.mu.Lock()
	v.sel.Prune(removeAll(v.sel.IDs(), deleted))
	v.mu.Unlock()

	done(nil, fmt.Sprintf("deleted %s", plural(len(deleted), "file")))
	v.refreshAfter(ctx)
	v.pruneGone(ctx, failedIDs(result))
	return result, nil
}

// DeleteSelected deletes the selected files.
func (v *FilesView) DeleteSelected(ctx context.Context) (map[string]bool, error) {
	return v.Delete(ctx, v.Selected()...)
}

// StartGeneration validates req and starts a generation job. A validation
// failure sends no request.
func (v *FilesView) StartGeneration(ctx context.Context, req gateway.GenerateRequest) (string, error) {
	done := v.beginAction()
	if err := req.Validate(); err != nil {
		return "", done(err, "")
	}
	jobID, err := v.api.Cases.Generate(ctx, req)
	if err != nil {
		return "", done(err, "")
	}
	return jobID, done(nil, fmt.Sprintf("started task %s", jobID))
}

// Generate starts a generation job and polls it with p until it reaches a
// terminal state. A failed job is returned together with a JobFailedError.
func (v *FilesView) Generate(ctx context.Context, req gateway.GenerateRequest, p *JobPoller) (*gateway.Job, error) {
	jobID, err := v.StartGeneration(ctx, req)
	if err != nil {
		return nil, err
	}

	done := v.beginAction()
	job, err := waitJob(ctx, p, v.api.Tasks, jobID)
	if err != nil {
		return job, done(err, "")
	}
	msg := "task completed"
	if res := job.GenerateResult(); res != nil {
		msg = fmt.Sprintf("generated %s", plural(res.CasesCount, "case"))
	}
	return job, done(nil, msg)
}

// pruneGone drops failed deletions from the selection once the server no
// longer finds them.
func (v *FilesView) pruneGone(ctx context.Context, failed []string) {
	if len(failed) == 0 {
		return
	}
	v.mu.Lock()
	loaded := fileIDs(v.items)
	v.mu.Unlock()

	gone := goneIDs(ctx, failed, loaded, func(ctx context.Context, id string) error {
		_, err := v.api.Files.Get(ctx, id)
		return err
	})
	v.mu.Lock()
	v.sel.Prune(removeAll(v.sel.IDs(), gone))
	v.mu.Unlock()
}

// refreshAfter reloads the listing after a mutation. Failures only reach the
// notice and the log.
func (v *FilesView) refreshAfter(ctx context.Context) {
	if err := v.Refresh(ctx); err != nil && !errors.Is(err, ErrStale) {
		v.logger.Debug("Refresh after mutation failed", zap.Error(err))
	}
}

func fileIDs(items []gateway.FileItem) []string {
	return slice.Map(items, func(_ int, src gateway.FileItem) string { return src.ID })
}

// fullListing reports whether a page holds the complete filtered result, so
// ids missing from it no longer exist.
func fullListing(p gateway.Pagination, total, n int) bool {
	return p.Page <= 1 && n >= total
}

func deletedIDs(result map[string]bool) []string {
	var out []string
	for id, ok := range result {
		if ok {
			out = append(out, id)
		}
	}
	return out
}

func failedIDs(result map[string]bool) []string {
	var out []string
	for id, ok := range result {
		if !ok {
			out = append(out, id)
		}
	}
	return out
}

// goneIDs returns the failed ids that are missing from the loaded page and
// that get reports as not found.
func goneIDs(ctx context.Context, failed, loaded []string, get func(context.Context, string) error) []string {
	onPage := slice.ToMap(loaded, func(element string) string { return element })
	var out []string
	for _, id := range failed {
		if _, ok := onPage[id]; ok {
			continue
		}
		if err := get(ctx, id); transport.IsNotFound(err) {
			out = append(out, id)
		}
	}
	return out
}

// removeAll returns ids without any of drop.
func removeAll(ids, drop []string) []string {
	gone := slice.ToMap(drop, func(element string) string { return element })
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := gone[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
