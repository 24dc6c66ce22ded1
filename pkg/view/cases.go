package view

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/casegen/pkg/gateway"
	"github.com/3leaps/casegen/pkg/provider"
)

// SelectAllPageSize is the page size SelectAll walks the listing with.
const SelectAllPageSize = 100

// ExportFileName returns the spreadsheet name for an export made at t.
func ExportFileName(t time.Time) string {
	return "test_cases_" + t.Format("2006-01-02") + ".xlsx"
}

// CaseFilter narrows the case listing.
type CaseFilter struct {
	Project string
	Module  string
	TaskID  string
}

// ExportResult describes a saved export.
type ExportResult struct {
	Key         string
	Location    string
	Size        int64
	ContentType string

	// CaseCount is the number of explicitly selected cases, zero for a
	// filter-based export.
	CaseCount int
}

// CasesView is the generated-cases page.
type CasesView struct {
	base
	api *gateway.API

	filter CaseFilter
	page   gateway.Pagination
	items  []gateway.TestCase
	total  int
	sel    Selection
}

// NewCasesView creates a cases view over api.
func NewCasesView(api *gateway.API, opts ...Option) *CasesView {
	return &CasesView{
		base:  base{options: buildOptions(opts)},
		api:   api,
		page:  gateway.Pagination{Page: 1, PageSize: gateway.DefaultPageSize},
		items: []gateway.TestCase{},
	}
}

// SetFilter replaces the filter, returns to page 1 and clears the
// selection. In-flight refreshes become stale.
func (v *CasesView) SetFilter(f CaseFilter) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.filter = f
	v.page.Page = 1
	v.sel.Clear()
	v.invalidateLocked()
}

// Filter returns the current filter.
func (v *CasesView) Filter() CaseFilter {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filter
}

// SetPage changes the page window. A zero size keeps the current size.
func (v *CasesView) SetPage(page, size int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.page.Page = page
	if size > 0 {
		v.page.PageSize = size
	}
	v.invalidateLocked()
}

func (v *CasesView) paramsLocked(p gateway.Pagination) gateway.ListCasesParams {
	return gateway.ListCasesParams{
		Pagination: p,
		Project:    v.filter.Project,
		Module:     v.filter.Module,
		TaskID:     v.filter.TaskID,
	}
}

// Refresh fetches the current page.
func (v *CasesView) Refresh(ctx context.Context) error {
	v.mu.Lock()
	params := v.paramsLocked(v.page)
	gen := v.beginFetchLocked()
	v.mu.Unlock()

	page, err := v.api.Cases.List(ctx, params)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.endFetchLocked(gen, err); err != nil {
		return err
	}
	v.items = page.Items
	v.total = page.Total
	if fullListing(params.Pagination, page.Total, len(page.Items)) {
		v.sel.Prune(caseIDs(page.Items))
	}
	return nil
}

// Items returns the cases of the last refresh.
func (v *CasesView) Items() []gateway.TestCase {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]gateway.TestCase{}, v.items...)
}

// Total returns the server's full count for the current filter.
func (v *CasesView) Total() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.total
}

// Toggle flips the selection of id.
func (v *CasesView) Toggle(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sel.Toggle(id)
}

// Selected returns the selected case ids.
func (v *CasesView) Selected() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sel.IDs()
}

// ClearSelection deselects every case.
func (v *CasesView) ClearSelection() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sel.Clear()
}

// SelectAll selects every case matching the filter by walking the listing
// page by page, one request at a time. It returns the selected ids.
func (v *CasesView) SelectAll(ctx context.Context) ([]string, error) {
	done := v.beginAction()

	v.mu.Lock()
	filter := v.filter
	v.mu.Unlock()

	var ids []string
	for page := 1; ; page++ {
		v.mu.Lock()
		params := v.paramsLocked(gateway.Pagination{Page: page, PageSize: SelectAllPageSize})
		v.mu.Unlock()

		res, err := v.api.Cases.List(ctx, params)
		if err != nil {
			return nil, done(err, "")
		}
		ids = append(ids, caseIDs(res.Items)...)
		if len(res.Items) == 0 || len(ids) >= res.Total {
			break
		}
	}

	v.mu.Lock()
	if v.filter != filter {
		v.mu.Unlock()
		return nil, done(ErrStale, "")
	}
	for _, id := range ids {
		v.sel.Set(id, true)
	}
	v.mu.Unlock()
	return ids, done(nil, fmt.Sprintf("selected %s", plural(len(ids), "case")))
}

// Get fetches one case.
func (v *CasesView) Get(ctx context.Context, id string) (*gateway.TestCase, error) {
	done := v.beginAction()
	tc, err := v.api.Cases.Get(ctx, id)
	return tc, done(err, "")
}

// Delete asks for confirmation, then deletes ids.
func (v *CasesView) Delete(ctx context.Context, ids ...string) (map[string]bool, error) {
	if len(ids) == 0 {
		return nil, ErrNothingSelected
	}
	done := v.beginAction()
	if err := v.confirm(ctx, fmt.Sprintf("Delete %s?", plural(len(ids), "case"))); err != nil {
		return nil, done(err, "")
	}

	var result map[string]bool
	var err error
	if len(ids) == 1 {
		var ok bool
		ok, err = v.api.Cases.Delete(ctx, ids[0])
		result = map[string]bool{ids[0]: ok}
	} else {
		result, err = v.api.Cases.BatchDelete(ctx, ids)
	}
	if err != nil {
		return nil, done(err, "")
	}

	deleted := deletedIDs(result)
	v.mu.Lock()
	v.sel.Prune(removeAll(v.sel.IDs(), deleted))
	v.mu.Unlock()

	done(nil, fmt.Sprintf("deleted %s", plural(len(deleted), "case")))
	v.refreshAfter(ctx)
	v.pruneGone(ctx, failedIDs(result))
	return result, nil
}

// DeleteSelected deletes the selected cases.
func (v *CasesView) DeleteSelected(ctx context.Context) (map[string]bool, error) {
	return v.Delete(ctx, v.Selected()...)
}

// Export saves the spreadsheet of the selected cases, or of every case
// matching the filter when nothing is selected, into sink. The key is
// test_cases_<date>.xlsx with a numeric suffix when that name is taken.
// The blob is stored verbatim.
func (v *CasesView) Export(ctx context.Context, sink provider.Sink) (*ExportResult, error) {
	done := v.beginAction()

	v.mu.Lock()
	req := gateway.ExportRequest{
		CaseIDs:     v.sel.IDs(),
		ProjectName: v.filter.Project,
		ModuleName:  v.filter.Module,
		TaskID:      v.filter.TaskID,
	}
	v.mu.Unlock()
	if len(req.CaseIDs) > 0 {
		req = gateway.ExportRequest{CaseIDs: req.CaseIDs}
	}
	if err := req.Validate(); err != nil {
		return nil, done(err, "")
	}

	blob, err := v.api.Cases.ExportExcel(ctx, req)
	if err != nil {
		return nil, done(err, "")
	}

	res, err := save(ctx, sink, ExportFileName(v.now()), blob.Data, blob.ContentType)
	if err != nil {
		return nil, done(err, "")
	}
	res.CaseCount = len(req.CaseIDs)
	v.logger.Info("Export saved", zap.String("location", res.Location), zap.Int64("size", res.Size))
	return res, done(nil, "exported to "+res.Location)
}

// Edit returns a draft of case id for editing.
func (v *CasesView) Edit(ctx context.Context, id string) (*CaseDraft, error) {
	tc, err := v.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CaseDraft{
		view:     v,
		original: *tc,
		ID:       tc.CaseID,
		Project:  tc.Project,
		Module:   tc.Module,
		Name:     tc.Name,
		Level:    tc.Level,
		Status:   tc.Status,
		Content:  cloneContent(tc.Content),
	}, nil
}

// CaseDraft is a local edit of a case. ID, Project and Module are shown for
// context only and are never sent.
type CaseDraft struct {
	view     *CasesView
	original gateway.TestCase

	ID      string
	Project string
	Module  string

	Name    string
	Level   string
	Status  string
	Content gateway.CaseContent
}

// Changes returns the update Submit would send: only the editable fields
// that differ from the fetched case.
func (d *CaseDraft) Changes() gateway.CaseUpdate {
	var u gateway.CaseUpdate
	if d.Name != d.original.Name {
		u.Name = &d.Name
	}
	if d.Level != d.original.Level {
		u.Level = &d.Level
	}
	if d.Status != d.original.Status {
		u.Status = &d.Status
	}
	if !contentEqual(d.Content, d.original.Content) {
		content := d.Content
		u.Content = &content
	}
	return u
}

// Submit sends the changed fields. Without changes no request is sent and
// the fetched case is returned.
func (d *CaseDraft) Submit(ctx context.Context) (*gateway.TestCase, error) {
	u := d.Changes()
	if u.Empty() {
		tc := d.original
		return &tc, nil
	}
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return nil, &gateway.ValidationError{Field: "name", Message: "name is required"}
	}

	v := d.view
	done := v.beginAction()
	tc, err := v.api.Cases.Update(ctx, d.ID, u)
	if err != nil {
		return nil, done(err, "")
	}

	v.mu.Lock()
	for i := range v.items {
		if v.items[i].CaseID == tc.CaseID {
			v.items[i] = *tc
		}
	}
	v.mu.Unlock()

	d.original = *tc
	return tc, done(nil, "saved "+tc.Name)
}

// pruneGone drops failed deletions from the selection once the server no
// longer finds them.
func (v *CasesView) pruneGone(ctx context.Context, failed []string) {
	if len(failed) == 0 {
		return
	}
	v.mu.Lock()
	loaded := caseIDs(v.items)
	v.mu.Unlock()

	gone := goneIDs(ctx, failed, loaded, func(ctx context.Context, id string) error {
		_, err := v.api.Cases.Get(ctx, id)
		return err
	})
	v.mu.Lock()
	v.sel.Prune(removeAll(v.sel.IDs(), gone))
	v.mu.Unlock()
}

func (v *CasesView) refreshAfter(ctx context.Context) {
	if err := v.Refresh(ctx); err != nil && !errors.Is(err, ErrStale) {
		v.logger.Debug("Refresh after mutation failed", zap.Error(err))
	}
}

// save stores data under the first free variant of key.
func save(ctx context.Context, sink provider.Sink, key string, data []byte, contentType string) (*ExportResult, error) {
	key, err := provider.AvailableKey(ctx, sink, key)
	if err != nil {
		return nil, err
	}
	if err := sink.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return nil, err
	}
	return &ExportResult{
		Key:         key,
		Location:    sink.Location(key),
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

func caseIDs(items []gateway.TestCase) []string {
	ids := make([]string, 0, len(items))
	for _, tc := range items {
		ids = append(ids, tc.CaseID)
	}
	return ids
}

func cloneContent(c gateway.CaseContent) gateway.CaseContent {
	c.Steps = append([]string(nil), c.Steps...)
	c.Expected = append([]string(nil), c.Expected...)
	c.ActualResults = append([]string(nil), c.ActualResults...)
	return c
}

func contentEqual(a, b gateway.CaseContent) bool {
	return a.Precondition == b.Precondition && a.Remark == b.Remark &&
		slices.Equal(a.Steps, b.Steps) && slices.Equal(a.Expected, b.Expected) &&
		slices.Equal(a.ActualResults, b.ActualResults)
}

