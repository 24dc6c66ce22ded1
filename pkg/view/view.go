// Package view implements the page controllers of casegen: files, cases,
// tasks, dashboard and mind map.
//
// A view owns its filter and pagination state, the last page it fetched and
// a selection set. Refresh tags every request with a generation number;
// a response whose generation was superseded (by a filter change or a newer
// Refresh) is dropped and reported as ErrStale. The Loading flag and the
// user-visible Notice are updated on every exit path.
//
// Views are safe for concurrent use.
package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/casegen/pkg/gateway"
	"github.com/3leaps/casegen/pkg/poller"
	"github.com/3leaps/casegen/pkg/transport"
)

var (
	// ErrStale is returned by Refresh when a newer request superseded it.
	// The view state is left untouched.
	ErrStale = errors.New("view: response superseded by a newer request")

	// ErrNotConfirmed is returned when a destructive action was declined.
	// No request is sent.
	ErrNotConfirmed = errors.New("view: action not confirmed")

	// ErrNothingSelected is returned by selection-based actions on an empty
	// selection.
	ErrNothingSelected = errors.New("view: nothing selected")
)

// JobFailedError reports a job that reached the failed state. Message is the
// server's error text, or a generic message when the server gave none.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.JobID, e.Message)
}

// IsJobFailed returns true if err is a JobFailedError.
func IsJobFailed(err error) bool {
	var jf *JobFailedError
	return errors.As(err, &jf)
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// AutoConfirm approves every prompt.
var AutoConfirm Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) {
	return true, nil
})

// NoticeLevel classifies a Notice.
type NoticeLevel string

const (
	NoticeNone  NoticeLevel = ""
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is the message a view shows to the user after its last action.
type Notice struct {
	Level   NoticeLevel `json:"level,omitempty"`
	Message string      `json:"message,omitempty"`
}

// JobPoller polls generation and export jobs.
type JobPoller = poller.Poller[*gateway.Job]

// NewJobPoller creates a poller that stops on completed or failed jobs.
func NewJobPoller(cfg poller.Config, opts ...poller.Option[*gateway.Job]) *JobPoller {
	return poller.New(func(j *gateway.Job) bool { return j.IsTerminal() }, cfg, opts...)
}

// Option configures a view.
type Option func(*options)

type options struct {
	confirmer Confirmer
	logger    *zap.Logger
	now       func() time.Time
}

// WithConfirmer sets the confirmation prompt for destructive actions.
// Without one every destructive action is declined.
func WithConfirmer(c Confirmer) Option {
	return func(o *options) { o.confirmer = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the clock used for export file names.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// base carries the state every view shares. Fields are guarded by mu.
type base struct {
	options

	mu       sync.Mutex
	gen uint64
	// fetches counts refreshes in flight, stale ones included.
	fetches int
	busy    int
	notice  Notice
}

// Loading reports whether a refresh or an action is in flight.
func (b *base) Loading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches > 0 || b.busy > 0
}

// Notice returns the message produced by the last finished operation.
func (b *base) Notice() Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.notice
}

// invalidateLocked makes every in-flight refresh stale.
func (b *base) invalidateLocked() {
	b.gen++
}

// beginFetchLocked starts a refresh and returns its generation.
func (b *base) beginFetchLocked() uint64 {
	b.gen++
	b.fetches++
	return b.gen
}

// endFetchLocked closes a refresh on every path. It returns ErrStale when
// gen is no longer current; otherwise it records err in the notice and
// returns it.
func (b *base) endFetchLocked(gen uint64, err error) error {
	b.fetches--
	if gen != b.gen {
		return ErrStale
	}
	if err != nil {
		b.notice = errorNotice(err)
		return err
	}
	return nil
}

// beginAction marks an action in flight. The returned func ends it and
// records the outcome.
func (b *base) beginAction() func(err error, success string) error {
	b.mu.Lock()
	b.busy++
	b.mu.Unlock()

	return func(err error, success string) error {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.busy--
		switch {
		case errors.Is(err, ErrNotConfirmed):
			b.notice = Notice{Level: NoticeInfo, Message: "cancelled"}
		case err != nil:
			b.notice = errorNotice(err)
		case success != "":
			b.notice = Notice{Level: NoticeInfo, Message: success}
		}
		return err
	}
}

// confirm asks the configured Confirmer. A missing confirmer or a negative
// answer yields ErrNotConfirmed.
func (b *base) confirm(ctx context.Context, prompt string) error {
	if b.confirmer == nil {
		return ErrNotConfirmed
	}
	ok, err := b.confirmer.Confirm(ctx, prompt)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotConfirmed
	}
	return nil
}

func errorNotice(err error) Notice {
	var jf *JobFailedError
	if errors.As(err, &jf) {
		return Notice{Level: NoticeError, Message: jf.Message}
	}
	if poller.IsTimeout(err) {
		return Notice{Level: NoticeError, Message: "task did not finish in time; it may still be running on the server"}
	}
	return Notice{Level: NoticeError, Message: transport.UserMessage(err)}
}

// waitJob polls jobID to a terminal state. A failed job is returned together
// with a JobFailedError.
func waitJob(ctx context.Context, p *JobPoller, tasks *gateway.Tasks, jobID string) (*gateway.Job, error) {
	job, err := p.Poll(ctx, jobID, tasks.Get)
	if err != nil {
		return nil, err
	}
	if job.Status == gateway.JobStatusFailed {
		return job, &JobFailedError{JobID: jobID, Message: job.FailureMessage()}
	}
	return job, nil
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
