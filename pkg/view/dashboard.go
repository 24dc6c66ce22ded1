package view

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/3leaps/casegen/pkg/gateway"
)

// RecentLimit is how many recent files and tasks the dashboard shows.
const RecentLimit = 5

// Dashboard is one consistent dashboard snapshot.
type Dashboard struct {
	Stats       gateway.DashboardStats `json:"stats"`
	RecentFiles []gateway.FileItem     `json:"recent_files"`
	RecentTasks []gateway.Job          `json:"recent_tasks"`
}

// DashboardView is the landing page.
type DashboardView struct {
	base
	api  *gateway.API
	data *Dashboard
}

// NewDashboardView creates a dashboard view over api.
func NewDashboardView(api *gateway.API, opts ...Option) *DashboardView {
	return &DashboardView{
		base: base{options: buildOptions(opts)},
		api:  api,
	}
}

// Refresh fetches stats, recent files and recent tasks concurrently. The
// snapshot is replaced only when all three succeed.
func (v *DashboardView) Refresh(ctx context.Context) error {
	v.mu.Lock()
	gen := v.beginFetchLocked()
	v.mu.Unlock()

	var next Dashboard
	recent := gateway.Pagination{Page: 1, PageSize: RecentLimit}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, err := v.api.Stats.Dashboard(gctx)
		if err != nil {
			return err
		}
		next.Stats = *stats
		return nil
	})
	g.Go(func() error {
		page, err := v.api.Files.List(gctx, gateway.ListFilesParams{Pagination: recent})
		if err != nil {
			return err
		}
		next.RecentFiles = page.Items
		return nil
	})
	g.Go(func() error {
		jobs, err := v.api.Tasks.List(gctx, gateway.ListTasksParams{Pagination: recent})
		if err != nil {
			return err
		}
		next.RecentTasks = jobs
		return nil
	})
	err := g.Wait()

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.endFetchLocked(gen, err); err != nil {
		return err
	}
	v.data = &next
	return nil
}

// Data returns the last snapshot, or nil before the first successful
// refresh.
func (v *DashboardView) Data() *Dashboard {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.data == nil {
		return nil
	}
	d := *v.data
	return &d
}
