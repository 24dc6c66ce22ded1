package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/casegen/internal/config"
	"github.com/3leaps/casegen/internal/observability"
	"github.com/3leaps/casegen/pkg/gateway"
	"github.com/3leaps/casegen/pkg/jobregistry"
	"github.com/3leaps/casegen/pkg/output"
	"github.com/3leaps/casegen/pkg/poller"
	"github.com/3leaps/casegen/pkg/provider"
	"github.com/3leaps/casegen/pkg/provider/file"
	"github.com/3leaps/casegen/pkg/provider/s3"
	"github.com/3leaps/casegen/pkg/transport"
	"github.com/3leaps/casegen/pkg/view"
)

// currentConfig returns the loaded configuration, loading defaults when a
// command runs without the root pre-run (tests).
func currentConfig() *config.Config {
	if appConfig != nil {
		return appConfig
	}
	cfg, err := config.Load(context.Background())
	if err != nil {
		observability.CLILogger.Warn("Falling back to empty configuration", zap.Error(err))
		return &config.Config{}
	}
	appConfig = cfg
	return cfg
}

// newAPI builds the gateway over a transport client that reports every
// request to the metrics collector.
func newAPI() (*gateway.API, error) {
	cfg := currentConfig()
	opts := []transport.Option{transport.WithLogger(observability.CLILogger)}
	if m := observability.InitMetrics(); m != nil {
		opts = append(opts, transport.WithObserver(m))
	}
	c, err := transport.New(cfg.Transport(), opts...)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid API configuration", err)
	}
	return gateway.New(c), nil
}

// viewOptions are the options every command-line view is built with.
func viewOptions() []view.Option {
	return []view.Option{
		view.WithLogger(observability.CLILogger),
		view.WithConfirmer(newConfirmer(os.Stdin, os.Stderr, flagYes)),
	}
}

// registryDir resolves where started jobs are recorded.
func registryDir() (string, error) {
	if dir := strings.TrimSpace(currentConfig().Registry.Dir); dir != "" {
		return dir, nil
	}
	identity := GetAppIdentity()
	name := config.DefaultIdentity.ConfigName
	if identity != nil && strings.TrimSpace(identity.ConfigName) != "" {
		name = identity.ConfigName
	}
	dataDir := gfconfig.GetAppDataDir(name)
	if dataDir == "" {
		return "", fmt.Errorf("cannot determine data directory for %s", name)
	}
	return filepath.Join(dataDir, "jobs"), nil
}

func newTracker() (*jobregistry.Tracker, error) {
	dir, err := registryDir()
	if err != nil {
		return nil, err
	}
	return jobregistry.NewTracker(jobregistry.NewStore(dir), currentConfig().API.BaseURL, observability.CLILogger), nil
}

// jobWatch polls generation jobs. Every attempt feeds the metrics, the job
// registry and, when w is set, the JSONL progress stream.
type jobWatch struct {
	tracker  *jobregistry.Tracker
	w        *output.JSONLWriter
	attempts atomic.Int64
}

func (jw *jobWatch) newPoller(ctx context.Context) *view.JobPoller {
	return view.NewJobPoller(currentConfig().Poller(),
		poller.WithLogger[*gateway.Job](observability.CLILogger),
		poller.OnAttempt(func(a poller.Attempt[*gateway.Job]) {
			jw.attempts.Add(1)
			if m := observability.Metrics; m != nil {
				m.ObservePoll("job", a.Terminal, a.Err)
			}
			if jw.tracker != nil {
				jw.tracker.Observe(a)
			}
			if jw.w == nil {
				return
			}
			rec := &output.JobRecord{JobID: a.JobID, Attempt: a.N}
			if a.Err != nil {
				rec.Error = a.Err.Error()
			} else if a.Value != nil {
				rec.Status = string(a.Value.Status)
				rec.Progress = a.Value.Progress
			}
			_ = jw.w.WriteJob(ctx, rec)
		}))
}

// wait polls jobID to a terminal state and records the outcome.
func (jw *jobWatch) wait(ctx context.Context, tv *view.TasksView, jobID string) (*gateway.Job, error) {
	p := jw.newPoller(ctx)
	defer p.Stop()

	before := jw.attempts.Load()
	start := time.Now()
	job, err := tv.Watch(ctx, jobID, p)
	if jw.tracker != nil {
		jw.tracker.Finished(jobID, job, err)
	}
	if jw.w != nil {
		_ = jw.w.WriteResult(ctx, resultRecord(jobID, job, err, int(jw.attempts.Load()-before), time.Since(start)))
	}
	return job, err
}

// newJSONLWriter starts a progress stream on stdout tagged with a fresh run id.
func newJSONLWriter() *output.JSONLWriter {
	return output.NewJSONLWriter(os.Stdout, uuid.NewString(), currentConfig().API.BaseURL)
}

// resultRecord describes how polling jobID ended.
func resultRecord(jobID string, job *gateway.Job, err error, attempts int, elapsed time.Duration) *output.ResultRecord {
	rec := &output.ResultRecord{JobID: jobID, Attempts: attempts, Duration: elapsed}
	if job != nil {
		rec.Status = string(job.Status)
		if res := job.GenerateResult(); res != nil {
			rec.CasesCount = res.CasesCount
			rec.ProjectName = res.ProjectName
			rec.ModuleName = res.ModuleName
		}
		if job.Status == gateway.JobStatusFailed {
			rec.Error = job.FailureMessage()
		}
	}
	if err != nil && rec.Error == "" {
		rec.Error = transport.UserMessage(err)
	}
	return rec
}

// errorRecord classifies err for the JSONL stream.
func errorRecord(err error, path, jobID string) *output.ErrorRecord {
	code := output.ErrCodeInternal
	switch {
	case transport.IsNotFound(err):
		code = output.ErrCodeNotFound
	case transport.IsNetwork(err):
		code = output.ErrCodeNetwork
	case poller.IsTimeout(err):
		code = output.ErrCodeTimeout
	case view.IsJobFailed(err):
		code = output.ErrCodeJobFailed
	case transport.IsAPI(err), gateway.IsValidation(err):
		code = output.ErrCodeAPI
	}
	return &output.ErrorRecord{Code: code, Message: transport.UserMessage(err), Path: path, JobID: jobID}
}

// openSink resolves an export destination: a directory or s3://bucket/prefix.
// An empty dest uses export.destination from the configuration.
func openSink(ctx context.Context, dest string) (provider.Sink, error) {
	cfg := currentConfig()
	if strings.TrimSpace(dest) == "" {
		dest = cfg.Export.Destination
	}
	d, err := provider.ParseDestination(dest)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid export destination", err)
	}

	switch d.Type {
	case provider.ProviderS3:
		sink, err := s3.New(ctx, cfg.S3(d.Bucket, d.Prefix))
		if err != nil {
			return nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
		}
		return sink, nil
	default:
		sink, err := file.New(file.Config{BaseDir: d.Dir})
		if err != nil {
			return nil, exitError(foundry.ExitInvalidArgument, "Invalid export directory", err)
		}
		return sink, nil
	}
}

func observeExport(sink provider.Sink) {
	m := observability.Metrics
	if m == nil {
		return
	}
	kind := provider.ProviderFile
	if _, ok := sink.(*s3.Provider); ok {
		kind = provider.ProviderS3
	}
	m.ObserveExport(kind.String())
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func valueOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// exportError reports a failed export. Storage failures get a hint and a
// write-error exit code, API failures go through apiError.
func exportError(err error) error {
	var sinkErr *provider.SinkError
	if !errors.As(err, &sinkErr) {
		return apiError("Export failed", err)
	}
	if hint := provider.Hint(err); hint != "" {
		observability.CLILogger.Info("Hint: "+hint, zap.String("location", sinkErr.Location))
	}
	code := foundry.ExitFileWriteError
	if errors.Is(err, provider.ErrUnavailable) {
		code = foundry.ExitExternalServiceUnavailable
	}
	return exitError(code, "Export failed", err)
}

// apiError maps a failed API call to the CLI exit code of its class.
func apiError(message string, err error) error {
	code := foundry.ExitExternalServiceUnavailable
	if gateway.IsValidation(err) {
		code = foundry.ExitInvalidArgument
	}
	return exitError(code, message, err)
}
