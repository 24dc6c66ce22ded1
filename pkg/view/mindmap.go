package view

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/casegen/pkg/gateway"
	"github.com/3leaps/casegen/pkg/outline"
	"github.com/3leaps/casegen/pkg/poller"
	"github.com/3leaps/casegen/pkg/provider"
)

// MindMapPoller polls mind-map generation status.
type MindMapPoller = poller.Poller[*gateway.MindMapStatus]

// MindMapQuery narrows the cases a mind map is built from.
type MindMapQuery struct {
	PageSize int
	Modules  []string
}

func (q MindMapQuery) key(taskID string) string {
	return taskID + "|" + strconv.Itoa(q.PageSize) + "|" + strings.Join(q.Modules, ",")
}

// MindMapView shows the mind map of one task's cases. It owns its poller;
// Close stops it.
type MindMapView struct {
	base
	api    *gateway.API
	poller *MindMapPoller

	taskID string
	text   string
	graph  *outline.Graph
}

// NewMindMapView creates a mind-map view. cfg bounds the status polling.
func NewMindMapView(api *gateway.API, cfg poller.Config, opts ...Option) *MindMapView {
	o := buildOptions(opts)
	p := poller.New(func(s *gateway.MindMapStatus) bool { return s.IsTerminal() }, cfg,
		poller.WithLogger[*gateway.MindMapStatus](o.logger))
	return &MindMapView{
		base:   base{options: o},
		api:    api,
		poller: p,
	}
}

// Load polls the mind-map status of taskID until it is success or failed,
// then decodes the outline. A decode failure is returned as an
// *outline.DecodeError and shown in the notice; the previous graph is kept.
func (v *MindMapView) Load(ctx context.Context, taskID string, q MindMapQuery) (*outline.Graph, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, &gateway.ValidationError{Field: "task_id", Message: "task id is required"}
	}

	v.mu.Lock()
	gen := v.beginFetchLocked()
	v.mu.Unlock()

	text, err := v.fetchOutline(ctx, taskID, q)
	var g *outline.Graph
	if err == nil {
		g, err = outline.Decode(text)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.endFetchLocked(gen, err); err != nil {
		return nil, err
	}
	v.taskID = taskID
	v.text = text
	v.graph = g
	if g.Empty() {
		v.notice = Notice{Level: NoticeInfo, Message: "mind map is empty"}
	}
	return g, nil
}

func (v *MindMapView) fetchOutline(ctx context.Context, taskID string, q MindMapQuery) (string, error) {
	status, err := v.poller.Poll(ctx, q.key(taskID), func(ctx context.Context, _ string) (*gateway.MindMapStatus, error) {
		return v.api.MindMaps.Status(ctx, taskID, q.PageSize, q.Modules)
	})
	if err != nil {
		return "", err
	}
	if status.Status == gateway.MindMapFailed {
		msg := strings.TrimSpace(status.Message)
		if msg == "" {
			msg = "mind map generation failed"
		}
		return "", &JobFailedError{JobID: taskID, Message: msg}
	}
	if status.MindMap != "" {
		return status.MindMap, nil
	}
	v.logger.Debug("Status carried no outline, fetching content", zap.String("task_id", taskID))
	return v.api.MindMaps.Content(ctx, taskID)
}

// Graph returns the last decoded graph.
func (v *MindMapView) Graph() *outline.Graph {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.graph
}

// Text returns the outline text the last graph was decoded from.
func (v *MindMapView) Text() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.text
}

// Reload forgets the cached status of taskID and loads it again.
func (v *MindMapView) Reload(ctx context.Context, taskID string, q MindMapQuery) (*outline.Graph, error) {
	v.poller.Forget(q.key(taskID))
	return v.Load(ctx, taskID, q)
}

// Export saves the server-rendered image of taskID into sink as
// mindmap_<task>.<format>.
func (v *MindMapView) Export(ctx context.Context, taskID string, format gateway.ExportFormat, sink provider.Sink) (*ExportResult, error) {
	done := v.beginAction()
	blob, err := v.api.MindMaps.Export(ctx, taskID, format)
	if err != nil {
		return nil, done(err, "")
	}
	res, err := save(ctx, sink, fmt.Sprintf("mindmap_%s.%s", taskID, format), blob.Data, blob.ContentType)
	if err != nil {
		return nil, done(err, "")
	}
	return res, done(nil, "exported to "+res.Location)
}

// Close stops any outstanding status polling.
func (v *MindMapView) Close() {
	v.poller.Stop()
}
