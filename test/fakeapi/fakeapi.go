// Package fakeapi provides an in-memory case generation backend for tests.
//
// The server speaks the same wire contract as the real API under the
// /api/v1 prefix: enveloped JSON responses, multipart uploads, binary
// exports, and generation jobs that advance one step per status fetch.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    api := fakeapi.New(t)
//	    client, _ := transport.New(transport.Config{BaseURL: api.URL()})
//	    // ... test code ...
//	}
package fakeapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/3leaps/casegen/pkg/gateway"
)

// Prefix is the API version prefix every route is mounted under.
const Prefix = "/api/v1"

// XLSXMagic is the leading bytes of every spreadsheet the fake exports.
var XLSXMagic = []byte("PK\x03\x04")

// PNGMagic is the leading bytes of every PNG the fake exports.
var PNGMagic = []byte("\x89PNG\r\n\x1a\n")

type injected struct {
	status  int
	code    int
	message string
}

// Server is an in-memory API backend.
type Server struct {
	srv *httptest.Server

	// StepsToComplete is the number of job fetches before a generation job
	// completes. The first StepsToComplete-1 fetches report processing.
	StepsToComplete int

	// CasesPerJob is the number of cases a completed generation creates.
	CasesPerJob int

	// FailJobsWith makes generation jobs end failed with this error text.
	FailJobsWith string

	// MindMapSteps is the number of status fetches before a mind map is
	// reported as success.
	MindMapSteps int

	// Bare makes successful responses skip the envelope.
	Bare bool

	// OnRequest, when set, is called before each request is served. Tests
	// use it to block or count requests.
	OnRequest func(r *http.Request)

	mu        sync.Mutex
	seq       int
	files     map[string]*gateway.FileItem
	fileOrder []string
	cases     map[string]*gateway.TestCase
	caseOrder []string
	jobs      map[string]*job
	jobOrder  []string
	hits      map[string]int
	bodies    map[string][]byte
	failures  map[string][]injected
}

type job struct {
	gateway.Job
	polls        int
	mindmapPolls int
	fileID       string
	project      string
	module       string
}

// New starts a fake API server and registers its shutdown with t.
func New(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		StepsToComplete: 3,
		CasesPerJob:     12,
		MindMapSteps:    2,
		files:           map[string]*gateway.FileItem{},
		cases:           map[string]*gateway.TestCase{},
		jobs:            map[string]*job{},
		hits:            map[string]int{},
		bodies:          map[string][]byte{},
		failures:        map[string][]injected{},
	}
	s.srv = httptest.NewServer(s.routes())
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the base URL including the version prefix.
func (s *Server) URL() string {
	return s.srv.URL + Prefix
}

// Close shuts the server down; later requests fail with a network error.
func (s *Server) Close() {
	s.srv.Close()
}

// Hits returns how many requests reached method and path (path without the
// version prefix, e.g. "/cases/tasks/task-1").
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// TotalHits returns the number of requests served.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.hits {
		n += v
	}
	return n
}

// LastBody returns the last request body sent to method and path.
func (s *Server) LastBody(method, path string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bodies[method+" "+path]
}

// FailNext makes the next request to method and path answer with an HTTP
// status and no envelope.
func (s *Server) FailNext(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], injected{status: status})
}

// RejectNext makes the next request to method and path answer 200 with an
// envelope carrying a failure code.
func (s *Server) RejectNext(method, path string, code int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], injected{status: http.StatusOK, code: code, message: message})
}

// AddFile seeds an uploaded file.
func (s *Server) AddFile(name string, status gateway.FileStatus) *gateway.FileItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addFileLocked(name, status)
}

// AddCases seeds n cases for project and module, optionally owned by taskID.
func (s *Server) AddCases(n int, project, module, taskID string) []gateway.TestCase {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gateway.TestCase, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, *s.addCaseLocked(project, module, taskID))
	}
	return out
}

// CaseCount returns the number of stored cases.
func (s *Server) CaseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cases)
}

// Case returns a stored case.
func (s *Server) Case(id string) (gateway.TestCase, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return gateway.TestCase{}, false
	}
	return *c, true
}

func (s *Server) nextID(kind string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", kind, s.seq)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (s *Server) addFileLocked(name string, status gateway.FileStatus) *gateway.FileItem {
	ext := ""
	if i := strings.LastIndex(name, "."); i >= 0 {
		ext = strings.TrimPrefix(name[i:], ".")
	}
	f := &gateway.FileItem{
		ID:        s.nextID("file"),
		Name:      name,
		Type:      ext,
		Status:    status,
		Path:      "uploads/" + name,
		CreatedAt: now(),
		UpdatedAt: now(),
	}
	s.files[f.ID] = f
	s.fileOrder = append(s.fileOrder, f.ID)
	return f
}

func (s *Server) addCaseLocked(project, module, taskID string) *gateway.TestCase {
	id := s.nextID("case")
	c := &gateway.TestCase{
		CaseID:  id,
		Project: project,
		Module:  module,
		Name:    "verify " + id,
		Level:   "P1",
		Status:  "draft",
		TaskID:  taskID,
		Content: gateway.CaseContent{
			Precondition: "system is running",
			Steps:        []string{"open page", "submit form"},
			Expected:     []string{"page loads", "form accepted"},
		},
	}
	s.cases[id] = c
	s.caseOrder = append(s.caseOrder, id)
	return c
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.track)

	r.Route(Prefix, func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			s.ok(w, map[string]string{"status": "ok"})
		})
		r.Get("/dashboard", s.dashboard)

		r.Post("/files/upload", s.uploadFile)
		r.Get("/files/", s.listFiles)
		r.Get("/files/{id}", s.getFile)
		r.Delete("/files/{id}", s.deleteFile)
		r.Delete("/files", s.batchDeleteFiles)

		r.Post("/cases/generate", s.generate)
		r.Post("/cases/export/excel", s.exportExcel)
		r.Get("/cases/tasks", s.listTasks)
		r.Get("/cases/tasks/{id}", s.getTask)
		r.Delete("/cases/tasks/{id}", s.deleteTask)
		r.Get("/cases/plantuml/status/{id}", s.mindmapStatus)
		r.Get("/cases/plantuml/content/{id}", s.mindmapContent)
		r.Post("/cases/plantuml/export/{id}", s.mindmapExport)
		r.Get("/cases/", s.listCases)
		r.Get("/cases/{id}", s.getCase)
		r.Put("/cases/{id}", s.updateCase)
		r.Delete("/cases/{id}", s.deleteCase)
		r.Delete("/cases", s.batchDeleteCases)
	})
	return r
}

func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.OnRequest != nil {
			s.OnRequest(r)
		}

		path := strings.TrimPrefix(r.URL.Path, Prefix)
		key := r.Method + " " + path

		var body []byte
		if r.Body != nil && !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(strings.NewReader(string(body)))
		}

		s.mu.Lock()
		s.hits[key]++
		if len(body) > 0 {
			s.bodies[key] = body
		}
		var fail *injected
		if q := s.failures[key]; len(q) > 0 {
			f := q[0]
			fail = &f
			s.failures[key] = q[1:]
		}
		s.mu.Unlock()

		if fail != nil {
			if fail.code != 0 {
				writeJSON(w, fail.status, map[string]any{"code": fail.code, "message": fail.message, "data": nil})
				return
			}
			writeJSON(w, fail.status, map[string]string{"detail": http.StatusText(fail.status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) ok(w http.ResponseWriter, data any) {
	if s.Bare {
		writeJSON(w, http.StatusOK, data)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": 200, "message": "success", "data": data})
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"detail": msg})
}

func pageWindow(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	return page, size
}

func window[T any](items []T, page, size int) []T {
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		badRequest(w, "multipart form required")
		return
	}
	_, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "file field required")
		return
	}
	s.mu.Lock()
	f := *s.addFileLocked(header.Filename, gateway.FileStatusCompleted)
	s.mu.Unlock()
	s.ok(w, f)
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	page, size := pageWindow(r)
	status := gateway.FileStatus(r.URL.Query().Get("status"))

	s.mu.Lock()
	items := []gateway.FileItem{}
	for _, id := range s.fileOrder {
		f := s.files[id]
		if status != "" && f.Status != status {
			continue
		}
		items = append(items, *f)
	}
	s.mu.Unlock()

	s.ok(w, gateway.Page[gateway.FileItem]{Total: len(items), Items: window(items, page, size)})
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	f, ok := s.files[chi.URLParam(r, "id")]
	var out gateway.FileItem
	if ok {
		out = *f
	}
	s.mu.Unlock()
	if !ok {
		notFound(w)
		return
	}
	s.ok(w, out)
}

func (s *Server) deleteFileLocked(id string) bool {
	if _, ok := s.files[id]; !ok {
		return false
	}
	delete(s.files, id)
	s.fileOrder = removeID(s.fileOrder, id)
	return true
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ok := s.deleteFileLocked(chi.URLParam(r, "id"))
	s.mu.Unlock()
	if !ok {
		notFound(w)
		return
	}
	s.ok(w, true)
}

func (s *Server) batchDeleteFiles(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FileIDs []string `json:"file_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid body")
		return
	}
	out := map[string]bool{}
	s.mu.Lock()
	for _, id := range body.FileIDs {
		out[id] = s.deleteFileLocked(id)
	}
	s.mu.Unlock()
	s.ok(w, out)
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var req gateway.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[req.FileID]; !ok {
		notFound(w)
		return
	}
	j := &job{
		Job: gateway.Job{
			TaskID:    s.nextID("task"),
			Type:      gateway.JobTypeGenerate,
			Status:    gateway.JobStatusPending,
			CreatedAt: now(),
			UpdatedAt: now(),
		},
		fileID:  req.FileID,
		project: req.ProjectName,
		module:  req.ModuleName,
	}
	s.jobs[j.TaskID] = j
	s.jobOrder = append(s.jobOrder, j.TaskID)
	s.ok(w, j.TaskID)
}

// advanceLocked moves a job one step forward. Completed and failed jobs
// never change again.
func (s *Server) advanceLocked(j *job) {
	if j.Status.IsTerminal() {
		return
	}
	j.polls++
	j.UpdatedAt = now()
	if j.polls < s.StepsToComplete {
		j.Status = gateway.JobStatusProcessing
		j.Progress = j.polls * 100 / s.StepsToComplete
		return
	}
	if s.FailJobsWith != "" {
		j.Status = gateway.JobStatusFailed
		j.Error = s.FailJobsWith
		return
	}
	for i := 0; i < s.CasesPerJob; i++ {
		s.addCaseLocked(j.project, j.module, j.TaskID)
	}
	j.Status = gateway.JobStatusCompleted
	j.Progress = 100
	j.Result, _ = json.Marshal(gateway.GenerateResult{
		CasesCount:  s.CasesPerJob,
		ProjectName: j.project,
		ModuleName:  j.module,
	})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	j, ok := s.jobs[chi.URLParam(r, "id")]
	var out gateway.Job
	if ok {
		s.advanceLocked(j)
		out = j.Job
	}
	s.mu.Unlock()
	if !ok {
		notFound(w)
		return
	}
	s.ok(w, out)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	page, size := pageWindow(r)
	typ := gateway.JobType(r.URL.Query().Get("type"))
	status := gateway.JobStatus(r.URL.Query().Get("status"))

	s.mu.Lock()
	items := []gateway.Job{}
	for _, id := range s.jobOrder {
		j := s.jobs[id]
		if typ != "" && j.Type != typ {
			continue
		}
		if status != "" && j.Status != status {
			continue
		}
		items = append(items, j.Job)
	}
	s.mu.Unlock()

	s.ok(w, window(items, page, size))
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cascade := r.URL.Query().Get("delete_cases") == "true"

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		notFound(w)
		return
	}
	delete(s.jobs, id)
	s.jobOrder = removeID(s.jobOrder, id)
	if cascade {
		for _, cid := range append([]string(nil), s.caseOrder...) {
			if s.cases[cid].TaskID == id {
				s.deleteCaseLocked(cid)
			}
		}
	}
	s.ok(w, nil)
}

func (s *Server) casesFor(project, module, taskID string) []gateway.TestCase {
	items := []gateway.TestCase{}
	for _, id := range s.caseOrder {
		c := s.cases[id]
		if project != "" && c.Project != project {
			continue
		}
		if module != "" && c.Module != module {
			continue
		}
		if taskID != "" && c.TaskID != taskID {
			continue
		}
		items = append(items, *c)
	}
	return items
}

func (s *Server) listCases(w http.ResponseWriter, r *http.Request) {
	page, size := pageWindow(r)
	q := r.URL.Query()

	s.mu.Lock()
	items := s.casesFor(q.Get("project"), q.Get("module"), q.Get("task_id"))
	s.mu.Unlock()

	s.ok(w, gateway.Page[gateway.TestCase]{Total: len(items), Items: window(items, page, size)})
}

func (s *Server) getCase(w http.ResponseWriter, r *http.Request) {
	c, ok := s.Case(chi.URLParam(r, "id"))
	if !ok {
		notFound(w)
		return
	}
	s.ok(w, c)
}

func (s *Server) updateCase(w http.ResponseWriter, r *http.Request) {
	var upd gateway.CaseUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		badRequest(w, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[chi.URLParam(r, "id")]
	if !ok {
		notFound(w)
		return
	}
	if upd.Name != nil {
		c.Name = *upd.Name
	}
	if upd.Level != nil {
		c.Level = *upd.Level
	}
	if upd.Status != nil {
		c.Status = *upd.Status
	}
	if upd.Content != nil {
		c.Content = *upd.Content
	}
	s.ok(w, *c)
}

func (s *Server) deleteCaseLocked(id string) bool {
	if _, ok := s.cases[id]; !ok {
		return false
	}
	delete(s.cases, id)
	s.caseOrder = removeID(s.caseOrder, id)
	return true
}

func (s *Server) deleteCase(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ok := s.deleteCaseLocked(chi.URLParam(r, "id"))
	s.mu.Unlock()
	if !ok {
		notFound(w)
		return
	}
	s.ok(w, true)
}

func (s *Server) batchDeleteCases(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CaseIDs []string `json:"case_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid body")
		return
	}
	out := map[string]bool{}
	s.mu.Lock()
	for _, id := range body.CaseIDs {
		out[id] = s.deleteCaseLocked(id)
	}
	s.mu.Unlock()
	s.ok(w, out)
}

func (s *Server) exportExcel(w http.ResponseWriter, r *http.Request) {
	var req gateway.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid body")
		return
	}

	s.mu.Lock()
	var ids []string
	if len(req.CaseIDs) > 0 {
		ids = append(ids, req.CaseIDs...)
	} else {
		for _, c := range s.casesFor(req.ProjectName, req.ModuleName, req.TaskID) {
			ids = append(ids, c.CaseID)
		}
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", gateway.SpreadsheetContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="test_cases.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(XLSXMagic)
	_, _ = io.WriteString(w, strings.Join(ids, ","))
}

// Outline renders the mind-map text the fake serves for a task.
func (s *Server) Outline(taskID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outlineLocked(taskID)
}

func (s *Server) outlineLocked(taskID string) string {
	j, ok := s.jobs[taskID]
	if !ok {
		return ""
	}
	byModule := map[string][]string{}
	for _, c := range s.casesFor("", "", taskID) {
		byModule[c.Module] = append(byModule[c.Module], c.Name)
	}
	modules := make([]string, 0, len(byModule))
	for m := range byModule {
		modules = append(modules, m)
	}
	sort.Strings(modules)

	var b strings.Builder
	b.WriteString("@startmindmap\n")
	b.WriteString("* " + j.project + "\n")
	for _, m := range modules {
		label := m
		if label == "" {
			label = "default"
		}
		b.WriteString("** " + label + "\n")
		for _, name := range byModule[m] {
			b.WriteString("***_ " + name + "\n")
		}
	}
	b.WriteString("@endmindmap\n")
	return b.String()
}

func (s *Server) mindmapStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		notFound(w)
		return
	}
	j.mindmapPolls++
	st := gateway.MindMapStatus{TaskID: id, Status: gateway.MindMapGenerating}
	switch {
	case j.Status == gateway.JobStatusFailed:
		st.Status = gateway.MindMapFailed
		st.Message = j.Error
	case j.mindmapPolls >= s.MindMapSteps && j.Status == gateway.JobStatusCompleted:
		st.Status = gateway.MindMapSuccess
		st.MindMap = s.outlineLocked(id)
	}
	s.mu.Unlock()

	s.ok(w, st)
}

func (s *Server) mindmapContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	_, ok := s.jobs[id]
	text := s.outlineLocked(id)
	s.mu.Unlock()
	if !ok {
		notFound(w)
		return
	}
	s.ok(w, text)
}

func (s *Server) mindmapExport(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	_, ok := s.jobs[chi.URLParam(r, "id")]
	s.mu.Unlock()
	if !ok {
		notFound(w)
		return
	}

	switch r.URL.Query().Get("format") {
	case "png":
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(PNGMagic)
	case "svg":
		w.Header().Set("Content-Type", "image/svg+xml")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `<svg xmlns="http://www.w3.org/2000/svg"></svg>`)
	default:
		badRequest(w, "unsupported format")
	}
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var stats gateway.DashboardStats
	stats.TotalFiles = len(s.files)
	stats.TotalCases = len(s.cases)
	stats.RecentFiles = len(s.files)
	stats.RecentCases = len(s.cases)
	stats.CaseStats.ByLevel = map[string]int{}
	stats.CaseStats.ByStatus = map[string]int{}
	for _, c := range s.cases {
		stats.CaseStats.ByLevel[c.Level]++
		stats.CaseStats.ByStatus[c.Status]++
	}
	stats.FileStats.ByType = map[string]int{}
	stats.FileStats.ByStatus = map[string]int{}
	for _, f := range s.files {
		stats.FileStats.ByType[f.Type]++
		stats.FileStats.ByStatus[string(f.Status)]++
	}
	s.mu.Unlock()

	s.ok(w, stats)
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
