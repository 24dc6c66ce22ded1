package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/3leaps/casegen/pkg/transport"
)

// SpreadsheetContentType is the MIME type of exported case workbooks.
const SpreadsheetContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Cases is the gateway for generated test cases and their generation jobs.
type Cases struct {
	c Doer
}

// ListCasesParams filters the case listing.
type ListCasesParams struct {
	Pagination
	Project string
	Module  string
	TaskID  string
}

// List returns one page of cases.
func (g *Cases) List(ctx context.Context, params ListCasesParams) (*Page[TestCase], error) {
	q := url.Values{}
	params.apply(q)
	q.Set("project", params.Project)
	q.Set("module", params.Module)
	q.Set("task_id", params.TaskID)

	var page Page[TestCase]
	if _, err := g.c.Do(ctx, http.MethodGet, "/cases/", nil, &page, transport.WithQuery(q), transport.WithRoute("/cases/")); err != nil {
		return nil, err
	}
	return capPage(&page, params.normalized().PageSize), nil
}

// Get returns one case.
func (g *Cases) Get(ctx context.Context, id string) (*TestCase, error) {
	var tc TestCase
	if _, err := g.c.Do(ctx, http.MethodGet, "/cases/"+url.PathEscape(id), nil, &tc, transport.WithRoute("/cases/{id}")); err != nil {
		return nil, err
	}
	if tc.CaseID == "" {
		return nil, ErrEmptyResponse
	}
	return &tc, nil
}

// Update sends a partial update and returns the stored case.
func (g *Cases) Update(ctx context.Context, id string, update CaseUpdate) (*TestCase, error) {
	if update.Empty() {
		return nil, &ValidationError{Field: "update", Message: "no fields to update"}
	}
	var tc TestCase
	if _, err := g.c.Do(ctx, http.MethodPut, "/cases/"+url.PathEscape(id), update, &tc, transport.WithRoute("/cases/{id}")); err != nil {
		return nil, err
	}
	return &tc, nil
}

// Delete removes one case.
func (g *Cases) Delete(ctx context.Context, id string) (bool, error) {
	var ok bool
	if _, err := g.c.Do(ctx, http.MethodDelete, "/cases/"+url.PathEscape(id), nil, &ok, transport.WithRoute("/cases/{id}")); err != nil {
		return false, err
	}
	return ok, nil
}

// BatchDelete removes several cases.
func (g *Cases) BatchDelete(ctx context.Context, ids []string) (map[string]bool, error) {
	body := struct {
		CaseIDs []string `json:"case_ids"`
	}{CaseIDs: ids}

	out := map[string]bool{}
	if _, err := g.c.Do(ctx, http.MethodDelete, "/cases", body, &out, transport.WithRoute("/cases")); err != nil {
		return nil, err
	}
	return out, nil
}

// Generate starts a generation job and returns its id.
func (g *Cases) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	var raw json.RawMessage
	if _, err := g.c.Do(ctx, http.MethodPost, "/cases/generate", req, &raw, transport.WithRoute("/cases/generate")); err != nil {
		return "", err
	}
	id := jobIDFrom(raw)
	if id == "" {
		return "", ErrEmptyResponse
	}
	return id, nil
}

// jobIDFrom accepts either a bare string or an object carrying task_id.
func jobIDFrom(raw json.RawMessage) string {
	var s string
	if err := transport.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		TaskID string `json:"task_id"`
	}
	if err := transport.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.TaskID)
	}
	return ""
}

// ExportExcel requests a spreadsheet and returns it verbatim.
func (g *Cases) ExportExcel(ctx context.Context, req ExportRequest) (*transport.Blob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return g.c.Fetch(ctx, http.MethodPost, "/cases/export/excel", req,
		transport.WithAccept(SpreadsheetContentType+", application/octet-stream"),
		transport.WithRoute("/cases/export/excel"))
}
