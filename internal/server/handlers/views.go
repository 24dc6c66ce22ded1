package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/3leaps/casegen/pkg/gateway"
	"github.com/3leaps/casegen/pkg/jobregistry"
	"github.com/3leaps/casegen/pkg/view"
)

// Views serves read-only JSON renditions of the casegen pages.
type Views struct {
	api      *gateway.API
	mindmaps *view.MindMapView
	registry *jobregistry.Store
	logger   *zap.Logger
}

// NewViews creates the page handlers. mindmaps is shared across requests so
// finished mind maps are not polled again; registry may be nil.
func NewViews(api *gateway.API, mindmaps *view.MindMapView, registry *jobregistry.Store, logger *zap.Logger) *Views {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Views{api: api, mindmaps: mindmaps, registry: registry, logger: logger}
}

// ListPage is a listing response.
type ListPage[T any] struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Items []T `json:"items"`
}

// Dashboard serves GET /api/dashboard.
func (v *Views) Dashboard(w http.ResponseWriter, r *http.Request) {
	dv := view.NewDashboardView(v.api, view.WithLogger(v.logger))
	if err := dv.Refresh(r.Context()); err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dv.Data())
}

// Files serves GET /api/files.
func (v *Views) Files(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	fv := view.NewFilesView(v.api, view.WithLogger(v.logger))
	fv.SetStatus(gateway.FileStatus(r.URL.Query().Get("status")))
	fv.SetPage(page, size)
	if err := fv.Refresh(r.Context()); err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListPage[gateway.FileItem]{Total: fv.Total(), Page: page, Items: fv.Items()})
}

// Cases serves GET /api/cases.
func (v *Views) Cases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, size := pageParams(r)
	cv := view.NewCasesView(v.api, view.WithLogger(v.logger))
	cv.SetFilter(view.CaseFilter{Project: q.Get("project"), Module: q.Get("module"), TaskID: q.Get("task_id")})
	cv.SetPage(page, size)
	if err := cv.Refresh(r.Context()); err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListPage[gateway.TestCase]{Total: cv.Total(), Page: page, Items: cv.Items()})
}

// Tasks serves GET /api/tasks.
func (v *Views) Tasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, size := pageParams(r)
	tv := view.NewTasksView(v.api, view.WithLogger(v.logger))
	tv.SetFilter(view.TaskFilter{Type: gateway.JobType(q.Get("type")), Status: gateway.JobStatus(q.Get("status"))})
	tv.SetPage(page, size)
	if err := tv.Refresh(r.Context()); err != nil {
		respondWithError(w, r, err)
		return
	}
	items := tv.Items()
	writeJSON(w, http.StatusOK, ListPage[gateway.Job]{Total: len(items), Page: page, Items: items})
}

// Task serves GET /api/tasks/{id}.
func (v *Views) Task(w http.ResponseWriter, r *http.Request) {
	job, err := v.api.Tasks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// MindMap serves GET /api/tasks/{id}/mindmap. It waits for the mind map to
// finish and returns the decoded graph.
func (v *Views) MindMap(w http.ResponseWriter, r *http.Request) {
	q := view.MindMapQuery{}
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		q.PageSize, _ = strconv.Atoi(raw)
	}
	if raw := r.URL.Query().Get("modules"); raw != "" {
		q.Modules = strings.Split(raw, ",")
	}
	g, err := v.mindmaps.Load(r.Context(), chi.URLParam(r, "id"), q)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// Jobs serves GET /api/jobs: the jobs this client started.
func (v *Views) Jobs(w http.ResponseWriter, r *http.Request) {
	if v.registry == nil {
		writeJSON(w, http.StatusOK, []jobregistry.JobRecord{})
		return
	}
	records, err := v.registry.List()
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// BackendChecker reports whether the API backend answers its health check.
type BackendChecker struct {
	API *gateway.API
}

// CheckHealth implements HealthChecker.
func (c BackendChecker) CheckHealth(ctx context.Context) error {
	if c.API == nil {
		return errors.New("backend not configured")
	}
	return c.API.Stats.Health(ctx)
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	return page, size
}
