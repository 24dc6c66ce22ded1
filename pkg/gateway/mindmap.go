package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/3leaps/casegen/pkg/transport"
)

// MindMaps is the gateway for the outline diagram of a generation job.
type MindMaps struct {
	c Doer
}

// Status returns the mind-map generation status for a task. The endpoint
// answers either with a structured status or with the outline text itself;
// bare text is reported as a successful status carrying that text.
func (m *MindMaps) Status(ctx context.Context, taskID string, pageSize int, modules []string) (*MindMapStatus, error) {
	q := url.Values{}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	q.Set("modules", strings.Join(modules, ","))

	var raw json.RawMessage
	_, err := m.c.Do(ctx, http.MethodGet, "/cases/plantuml/status/"+url.PathEscape(taskID), nil, &raw,
		transport.WithQuery(q), transport.WithRoute("/cases/plantuml/status/{task_id}"))
	if err != nil {
		return nil, err
	}
	return parseMindMapStatus(taskID, raw)
}

func parseMindMapStatus(taskID string, raw json.RawMessage) (*MindMapStatus, error) {
	if len(raw) == 0 {
		return &MindMapStatus{TaskID: taskID, Status: MindMapPending}, nil
	}

	var text string
	if err := transport.Unmarshal(raw, &text); err == nil {
		return &MindMapStatus{TaskID: taskID, Status: MindMapSuccess, MindMap: text}, nil
	}

	var st MindMapStatus
	if err := transport.Unmarshal(raw, &st); err != nil {
		return nil, &transport.DecodeError{Path: "/cases/plantuml/status/" + taskID, Err: err}
	}
	if st.TaskID == "" {
		st.TaskID = taskID
	}
	if st.Status == "" {
		if st.MindMap != "" {
			st.Status = MindMapSuccess
		} else {
			st.Status = MindMapPending
		}
	}
	return &st, nil
}

// Content returns the outline text of a task's mind map.
func (m *MindMaps) Content(ctx context.Context, taskID string) (string, error) {
	var raw json.RawMessage
	_, err := m.c.Do(ctx, http.MethodGet, "/cases/plantuml/content/"+url.PathEscape(taskID), nil, &raw,
		transport.WithRoute("/cases/plantuml/content/{task_id}"))
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", ErrEmptyResponse
	}

	var text string
	if err := transport.Unmarshal(raw, &text); err == nil {
		return text, nil
	}
	var obj struct {
		Content string `json:"content"`
		MindMap string `json:"mindmap"`
	}
	if err := transport.Unmarshal(raw, &obj); err != nil {
		return "", &transport.DecodeError{Path: "/cases/plantuml/content/" + taskID, Err: err}
	}
	if obj.Content != "" {
		return obj.Content, nil
	}
	if obj.MindMap != "" {
		return obj.MindMap, nil
	}
	return "", ErrEmptyResponse
}

// Export renders the mind map server-side and returns the image verbatim.
func (m *MindMaps) Export(ctx context.Context, taskID string, format ExportFormat) (*transport.Blob, error) {
	accept := "image/svg+xml"
	switch format {
	case FormatSVG:
	case FormatPNG:
		accept = "image/png"
	default:
		return nil, &ValidationError{Field: "format", Message: "format must be svg or png"}
	}

	q := url.Values{}
	q.Set("format", string(format))
	return m.c.Fetch(ctx, http.MethodPost, "/cases/plantuml/export/"+url.PathEscape(taskID), nil,
		transport.WithQuery(q), transport.WithAccept(accept),
		transport.WithRoute("/cases/plantuml/export/{task_id}"))
}
