package gateway

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/3leaps/casegen/pkg/transport"
)

// Files is the gateway for uploaded requirement archives.
type Files struct {
	c Doer
}

// ListFilesParams filters the file listing.
type ListFilesParams struct {
	Pagination
	Status FileStatus
}

// Upload streams content as multipart form field "file".
func (f *Files) Upload(ctx context.Context, name string, content io.Reader) (*FileItem, error) {
	if name == "" {
		return nil, &ValidationError{Field: "file", Message: "file name is required"}
	}
	var item FileItem
	_, err := f.c.Do(ctx, http.MethodPost, "/files/upload", nil, &item,
		transport.WithMultipart(transport.MultipartFile{Field: "file", FileName: name, Content: content}),
		transport.WithRoute("/files/upload"))
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// List returns one page of files.
func (f *Files) List(ctx context.Context, params ListFilesParams) (*Page[FileItem], error) {
	q := url.Values{}
	params.apply(q)
	q.Set("status", string(params.Status))

	var page Page[FileItem]
	if _, err := f.c.Do(ctx, http.MethodGet, "/files/", nil, &page, transport.WithQuery(q), transport.WithRoute("/files/")); err != nil {
		return nil, err
	}
	return capPage(&page, params.normalized().PageSize), nil
}

// Get returns one file.
func (f *Files) Get(ctx context.Context, id string) (*FileItem, error) {
	var item FileItem
	if _, err := f.c.Do(ctx, http.MethodGet, "/files/"+url.PathEscape(id), nil, &item, transport.WithRoute("/files/{id}")); err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, ErrEmptyResponse
	}
	return &item, nil
}

// Delete removes one file and reports whether the server deleted it.
func (f *Files) Delete(ctx context.Context, id string) (bool, error) {
	var ok bool
	if _, err := f.c.Do(ctx, http.MethodDelete, "/files/"+url.PathEscape(id), nil, &ok, transport.WithRoute("/files/{id}")); err != nil {
		return false, err
	}
	return ok, nil
}

// BatchDelete removes several files. The result maps each id to whether it
// was deleted.
func (f *Files) BatchDelete(ctx context.Context, ids []string) (map[string]bool, error) {
	body := struct {
		FileIDs []string `json:"file_ids"`
	}{FileIDs: ids}

	out := map[string]bool{}
	if _, err := f.c.Do(ctx, http.MethodDelete, "/files", body, &out, transport.WithRoute("/files")); err != nil {
		return nil, err
	}
	return out, nil
}
