package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/api/v1"})
	require.NoError(t, err)
	return c, srv
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "valid", cfg: Config{BaseURL: "http://localhost:8000/api/v1"}},
		{name: "missing base", cfg: Config{}, wantErr: "base URL is required"},
		{name: "bad scheme", cfg: Config{BaseURL: "ftp://host"}, wantErr: "scheme must be http or https"},
		{name: "no host", cfg: Config{BaseURL: "http://"}, wantErr: "host is required"},
		{name: "negative timeout", cfg: Config{BaseURL: "http://h", Timeout: -time.Second}, wantErr: "timeouts must not be negative"},
		{name: "negative rate", cfg: Config{BaseURL: "http://h", RateLimit: -1}, wantErr: "rate limit must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClient_Do_PassesEnvelopeThrough(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/files/f1", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get(HeaderRequestID))
		_, _ = io.WriteString(w, `{"code":200,"message":"ok","data":{"id":"f1"}}`)
	})

	var out struct {
		ID string `json:"id"`
	}
	env, err := c.Do(context.Background(), http.MethodGet, "/files/f1", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, 200, env.Code)
	assert.Equal(t, "ok", env.Message)
	assert.Equal(t, "f1", out.ID)
}

func TestClient_Do_WrapsBareBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"task_id":"t1"}]`)
	})

	var out []map[string]string
	env, err := c.Do(context.Background(), http.MethodGet, "/cases/tasks", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, CodeSuccess, env.Code)
	assert.Equal(t, "success", env.Message)
	require.Len(t, out, 1)
	assert.Equal(t, "t1", out[0]["task_id"])
}

func TestClient_Do_EnvelopeFailureIsAPIError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":4001,"message":"project name required","data":{"id":"x"}}`)
	})

	out := map[string]string{}
	_, err := c.Do(context.Background(), http.MethodPost, "/cases/generate", map[string]string{}, &out)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 4001, apiErr.Code)
	assert.Equal(t, "project name required", apiErr.Message)
	assert.Empty(t, out, "data must not be decoded on failure")
}

func TestClient_Do_SuccessCodeZero(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":0,"message":"","data":true}`)
	})

	var ok bool
	_, err := c.Do(context.Background(), http.MethodDelete, "/files/f1", nil, &ok)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClient_Do_HTTPStatusMapping(t *testing.T) {
	tests := []struct {
		status  int
		message string
	}{
		{http.StatusBadRequest, "bad request"},
		{http.StatusUnauthorized, "unauthorized"},
		{http.StatusForbidden, "forbidden"},
		{http.StatusNotFound, "resource not found"},
		{http.StatusInternalServerError, "internal server error"},
		{http.StatusBadGateway, "network error"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"detail":"nope"}`)
			})

			_, err := c.Do(context.Background(), http.MethodGet, "/files/x", nil, nil)
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)

			var httpErr *HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.status, httpErr.Status)
			assert.Equal(t, tt.status == http.StatusNotFound, IsNotFound(err))
		})
	}
}

func TestClient_Send_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: base})
	require.NoError(t, err)

	_, err = c.Do(context.Background(), http.MethodGet, "/health", nil, nil)
	require.Error(t, err)
	assert.True(t, IsNetwork(err))
	assert.False(t, IsAPI(err))
	assert.Equal(t, "network error", UserMessage(err))
}

func TestClient_Send_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Send(context.Background(), http.MethodGet, "/slow", nil)
	require.Error(t, err)
	assert.True(t, IsNetwork(err))
}

func TestClient_Send_QueryDropsEmptyValues(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		_, hasStatus := r.URL.Query()["status"]
		assert.False(t, hasStatus)
		_, _ = io.WriteString(w, `{"code":200,"message":"ok","data":null}`)
	})

	q := url.Values{}
	q.Set("page", "1")
	q.Set("status", "")
	_, err := c.Send(context.Background(), http.MethodGet, "/files/", nil, WithQuery(q))
	require.NoError(t, err)
}

func TestClient_Send_JSONBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"file_ids":["a","b"]}`, string(body))
		_, _ = io.WriteString(w, `{"code":200,"message":"ok","data":{"a":true,"b":false}}`)
	})

	var out map[string]bool
	_, err := c.Do(context.Background(), http.MethodDelete, "/files", map[string][]string{"file_ids": {"a", "b"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "b": false}, out)
}

func TestClient_Multipart_UsesOwnBoundary(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		assert.True(t, strings.HasPrefix(ct, "multipart/form-data; boundary="), ct)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = f.Close() }()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "spec.zip", hdr.Filename)
		assert.Equal(t, "PK-archive", string(data))

		_, _ = io.WriteString(w, `{"code":200,"message":"ok","data":{"id":"f1","status":"pending"}}`)
	})

	var out map[string]string
	_, err := c.Do(context.Background(), http.MethodPost, "/files/upload", nil, &out,
		WithMultipart(MultipartFile{Field: "file", FileName: "spec.zip", Content: strings.NewReader("PK-archive")}))
	require.NoError(t, err)
	assert.Equal(t, "f1", out["id"])
}

func TestClient_Fetch_ReturnsBinaryVerbatim(t *testing.T) {
	payload := []byte{0x50, 0x4b, 0x03, 0x04, '{', 0x00}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/octet-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="cases.xlsx"`)
		_, _ = w.Write(payload)
	})

	blob, err := c.Fetch(context.Background(), http.MethodPost, "/cases/export/excel", map[string]string{"project_name": "Proj"},
		WithAccept("application/octet-stream"))
	require.NoError(t, err)
	assert.Equal(t, payload, blob.Data)
	assert.Equal(t, "cases.xlsx", blob.FileName)
	assert.Contains(t, blob.ContentType, "spreadsheetml")
}

type recordingObserver struct {
	mu     sync.Mutex
	routes []string
	status []int
}

func (o *recordingObserver) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routes = append(o.routes, method+" "+route)
	o.status = append(o.status, status)
}

func TestClient_ObserverReceivesRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	obs := &recordingObserver{}
	c, err := New(Config{BaseURL: srv.URL}, WithObserver(obs))
	require.NoError(t, err)

	_, err = c.Do(context.Background(), http.MethodGet, "/files/abc", nil, nil, WithRoute("/files/{id}"))
	require.Error(t, err)

	assert.Equal(t, []string{"GET /files/{id}"}, obs.routes)
	assert.Equal(t, []int{http.StatusNotFound}, obs.status)
}

func TestClient_ConcurrentUse(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":200,"message":"ok","data":1}`)
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var n int
			_, err := c.Do(context.Background(), http.MethodGet, "/health", nil, &n)
			assert.NoError(t, err)
			assert.Equal(t, 1, n)
		}()
	}
	wg.Wait()
}
