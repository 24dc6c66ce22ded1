package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/casegen/pkg/gateway"
	"github.com/3leaps/casegen/pkg/transport"
	"github.com/3leaps/casegen/test/fakeapi"
)

func newAPI(t *testing.T) (*gateway.API, *fakeapi.Server) {
	t.Helper()
	fake := fakeapi.New(t)
	c, err := transport.New(transport.Config{BaseURL: fake.URL()})
	require.NoError(t, err)
	return gateway.New(c), fake
}

func TestFiles_UploadAndList(t *testing.T) {
	api, fake := newAPI(t)
	ctx := context.Background()

	item, err := api.Files.Upload(ctx, "login.zip", strings.NewReader("archive bytes"))
	require.NoError(t, err)
	assert.Equal(t, "login.zip", item.Name)
	assert.Equal(t, gateway.FileStatusCompleted, item.Status)

	page, err := api.Files.List(ctx, gateway.ListFilesParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, item.ID, page.Items[0].ID)
	assert.Equal(t, 1, fake.Hits(http.MethodPost, "/files/upload"))
}

func TestFiles_Upload_RequiresName(t *testing.T) {
	api, fake := newAPI(t)

	_, err := api.Files.Upload(context.Background(), "", strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, gateway.IsValidation(err))
	assert.Equal(t, 0, fake.TotalHits())
}

func TestFiles_List_Pagination(t *testing.T) {
	api, fake := newAPI(t)
	for i := 0; i < 25; i++ {
		fake.AddFile("f.zip", gateway.FileStatusCompleted)
	}

	tests := []struct {
		name      string
		page      int
		size      int
		wantItems int
	}{
		{name: "first page", page: 1, size: 10, wantItems: 10},
		{name: "last partial page", page: 3, size: 10, wantItems: 5},
		{name: "past the end", page: 4, size: 10, wantItems: 0},
		{name: "default window", wantItems: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := api.Files.List(context.Background(), gateway.ListFilesParams{
				Pagination: gateway.Pagination{Page: tt.page, PageSize: tt.size},
			})
			require.NoError(t, err)
			assert.Equal(t, 25, page.Total)
			assert.Len(t, page.Items, tt.wantItems)
			assert.NotNil(t, page.Items)
		})
	}
}

func TestFiles_List_StatusFilter(t *testing.T) {
	api, fake := newAPI(t)
	fake.AddFile("a.zip", gateway.FileStatusCompleted)
	fake.AddFile("b.zip", gateway.FileStatusFailed)

	page, err := api.Files.List(context.Background(), gateway.ListFilesParams{Status: gateway.FileStatusFailed})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, "b.zip", page.Items[0].Name)
}

func TestFiles_DeleteAndBatchDelete(t *testing.T) {
	api, fake := newAPI(t)
	ctx := context.Background()
	a := fake.AddFile("a.zip", gateway.FileStatusCompleted)
	b := fake.AddFile("b.zip", gateway.FileStatusCompleted)
	c := fake.AddFile("c.zip", gateway.FileStatusCompleted)

	ok, err := api.Files.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = api.Files.Delete(ctx, a.ID)
	require.Error(t, err)
	assert.True(t, transport.IsNotFound(err))

	res, err := api.Files.BatchDelete(ctx, []string{b.ID, c.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{b.ID: true, c.ID: true, "missing": false}, res)
}

func TestCases_ListGetUpdate(t *testing.T) {
	api, fake := newAPI(t)
	ctx := context.Background()
	seeded := fake.AddCases(3, "shop", "cart", "")
	fake.AddCases(2, "shop", "checkout", "")

	page, err := api.Cases.List(ctx, gateway.ListCasesParams{Project: "shop", Module: "cart"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	got, err := api.Cases.Get(ctx, seeded[0].CaseID)
	require.NoError(t, err)
	assert.Equal(t, "cart", got.Module)
	require.Len(t, got.Content.Pairs(), 2)

	name := "renamed"
	updated, err := api.Cases.Update(ctx, seeded[0].CaseID, gateway.CaseUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, "shop", updated.Project)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(fake.LastBody(http.MethodPut, "/cases/"+seeded[0].CaseID), &sent))
	assert.Equal(t, map[string]any{"name": "renamed"}, sent)
}

func TestCases_Update_RejectsEmpty(t *testing.T) {
	api, fake := newAPI(t)

	_, err := api.Cases.Update(context.Background(), "case-1", gateway.CaseUpdate{})
	require.Error(t, err)
	assert.True(t, gateway.IsValidation(err))
	assert.Equal(t, 0, fake.TotalHits())
}

func TestCases_Generate(t *testing.T) {
	api, fake := newAPI(t)
	ctx := context.Background()
	f := fake.AddFile("spec.zip", gateway.FileStatusCompleted)

	id, err := api.Cases.Generate(ctx, gateway.GenerateRequest{FileID: f.ID, ProjectName: "shop"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	job, err := api.Tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, job.TaskID)
	assert.False(t, job.IsTerminal())
}

func TestCases_Generate_Validation(t *testing.T) {
	api, fake := newAPI(t)

	tests := []struct {
		name  string
		req   gateway.GenerateRequest
		field string
	}{
		{name: "missing file", req: gateway.GenerateRequest{ProjectName: "p"}, field: "file_id"},
		{name: "missing project", req: gateway.GenerateRequest{FileID: "f"}, field: "project_name"},
		{name: "blank project", req: gateway.GenerateRequest{FileID: "f", ProjectName: "  "}, field: "project_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := api.Cases.Generate(context.Background(), tt.req)
			var verr *gateway.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Equal(t, 0, fake.TotalHits())
}

func TestCases_ExportExcel_ReturnsBlobVerbatim(t *testing.T) {
	api, fake := newAPI(t)
	cases := fake.AddCases(2, "shop", "cart", "")

	blob, err := api.Cases.ExportExcel(context.Background(), gateway.ExportRequest{
		CaseIDs: []string{cases[0].CaseID, cases[1].CaseID},
	})
	require.NoError(t, err)
	assert.Equal(t, gateway.SpreadsheetContentType, blob.ContentType)
	assert.Equal(t, "test_cases.xlsx", blob.FileName)
	assert.True(t, bytes.HasPrefix(blob.Data, fakeapi.XLSXMagic))
	assert.Contains(t, string(blob.Data), cases[1].CaseID)
}

func TestCases_ExportExcel_NeedsSelector(t *testing.T) {
	api, _ := newAPI(t)

	_, err := api.Cases.ExportExcel(context.Background(), gateway.ExportRequest{})
	assert.True(t, gateway.IsValidation(err))
}

func TestTasks_ListAndDeleteCascade(t *testing.T) {
	api, fake := newAPI(t)
	ctx := context.Background()
	fake.StepsToComplete = 1
	fake.CasesPerJob = 4
	f := fake.AddFile("spec.zip", gateway.FileStatusCompleted)

	id, err := api.Cases.Generate(ctx, gateway.GenerateRequest{FileID: f.ID, ProjectName: "shop"})
	require.NoError(t, err)
	job, err := api.Tasks.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, gateway.JobStatusCompleted, job.Status)
	require.NotNil(t, job.GenerateResult())
	assert.Equal(t, 4, job.GenerateResult().CasesCount)

	jobs, err := api.Tasks.List(ctx, gateway.ListTasksParams{Type: gateway.JobTypeGenerate})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].TaskID)

	require.NoError(t, api.Tasks.Delete(ctx, id, true))
	assert.Equal(t, 0, fake.CaseCount())

	jobs, err = api.Tasks.List(ctx, gateway.ListTasksParams{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.NotNil(t, jobs)
}

func TestMindMaps_StatusUntilSuccess(t *testing.T) {
	api, fake := newAPI(t)
	ctx := context.Background()
	fake.StepsToComplete = 1
	fake.CasesPerJob = 2
	f := fake.AddFile("spec.zip", gateway.FileStatusCompleted)
	id, err := api.Cases.Generate(ctx, gateway.GenerateRequest{FileID: f.ID, ProjectName: "shop", ModuleName: "cart"})
	require.NoError(t, err)
	_, err = api.Tasks.Get(ctx, id)
	require.NoError(t, err)

	st, err := api.MindMaps.Status(ctx, id, 100, []string{"cart"})
	require.NoError(t, err)
	assert.Equal(t, gateway.MindMapGenerating, st.Status)
	assert.False(t, st.IsTerminal())

	st, err = api.MindMaps.Status(ctx, id, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, gateway.MindMapSuccess, st.Status)
	assert.True(t, st.IsTerminal())
	assert.Contains(t, st.MindMap, "* shop")

	text, err := api.MindMaps.Content(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, fake.Outline(id), text)
}

func TestMindMaps_Export(t *testing.T) {
	api, fake := newAPI(t)
	ctx := context.Background()
	f := fake.AddFile("spec.zip", gateway.FileStatusCompleted)
	id, err := api.Cases.Generate(ctx, gateway.GenerateRequest{FileID: f.ID, ProjectName: "shop"})
	require.NoError(t, err)

	png, err := api.MindMaps.Export(ctx, id, gateway.FormatPNG)
	require.NoError(t, err)
	assert.Equal(t, "image/png", png.ContentType)
	assert.Equal(t, fakeapi.PNGMagic, png.Data)

	svg, err := api.MindMaps.Export(ctx, id, gateway.FormatSVG)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(svg.Data), "<svg"))

	_, err = api.MindMaps.Export(ctx, id, "gif")
	assert.True(t, gateway.IsValidation(err))
}

func TestStats_DashboardAndHealth(t *testing.T) {
	api, fake := newAPI(t)
	ctx := context.Background()
	fake.AddFile("a.zip", gateway.FileStatusCompleted)
	fake.AddCases(3, "shop", "cart", "")

	stats, err := api.Stats.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFiles)
	assert.Equal(t, 3, stats.TotalCases)
	assert.Equal(t, 3, stats.CaseStats.ByLevel["P1"])
	assert.Equal(t, 1, stats.FileStats.ByType["zip"])

	require.NoError(t, api.Stats.Health(ctx))
}

func TestGateway_BareResponsesAreWrapped(t *testing.T) {
	api, fake := newAPI(t)
	fake.Bare = true
	fake.AddFile("a.zip", gateway.FileStatusCompleted)

	page, err := api.Files.List(context.Background(), gateway.ListFilesParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestGateway_ErrorsPropagate(t *testing.T) {
	api, fake := newAPI(t)
	ctx := context.Background()

	fake.FailNext(http.MethodGet, "/dashboard", http.StatusInternalServerError)
	_, err := api.Stats.Dashboard(ctx)
	var apiErr *transport.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "internal server error", apiErr.Message)

	fake.RejectNext(http.MethodGet, "/files/", 4001, "quota exceeded")
	_, err = api.Files.List(ctx, gateway.ListFilesParams{})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 4001, apiErr.Code)
	assert.Equal(t, "quota exceeded", apiErr.Message)
}
