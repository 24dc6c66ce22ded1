// Package poller drives server-side jobs to a terminal state from the client.
//
// A Poller repeatedly fetches a job's state until a terminal predicate holds,
// waiting Interval between attempts. Attempts for one job are strictly
// sequential, concurrent Poll calls for the same job share a single loop, and
// terminal results are remembered so later calls return without a fetch.
//
// Timing out is a client-side outcome only; the server job is never
// cancelled.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Config configures polling behavior.
type Config struct {
	// Interval is the wait between the end of one attempt and the next.
	// Default: 2s
	Interval time.Duration

	// MaxAttempts bounds the number of fetches per loop.
	// Default: 30
	MaxAttempts int

	// MaxConsecutiveErrors is how many fetch failures in a row end the loop
	// with a PollError.
	// Default: 3
	MaxConsecutiveErrors int
}

// DefaultConfig returns the default polling configuration.
func DefaultConfig() Config {
	return Config{
		Interval:             2 * time.Second,
		MaxAttempts:          30,
		MaxConsecutiveErrors: 3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = d.MaxConsecutiveErrors
	}
	return c
}

// Attempt describes one fetch.
type Attempt[T any] struct {
	JobID    string
	N        int
	Value    T
	Err      error
	Terminal bool
	Elapsed  time.Duration
}

// FetchFunc returns the current state of a job.
type FetchFunc[T any] func(ctx context.Context, jobID string) (T, error)

// Option configures a Poller.
type Option[T any] func(*Poller[T])

// WithLogger sets the logger for retry diagnostics.
func WithLogger[T any](l *zap.Logger) Option[T] {
	return func(p *Poller[T]) {
		if l != nil {
			p.logger = l
		}
	}
}

// OnAttempt registers a callback invoked after every fetch. Callbacks run on
// the polling goroutine and must not call Stop.
func OnAttempt[T any](fn func(Attempt[T])) Option[T] {
	return func(p *Poller[T]) {
		p.onAttempt = append(p.onAttempt, fn)
	}
}

// Poller polls jobs whose state is of type T.
type Poller[T any] struct {
	isTerminal func(T) bool
	cfg        Config
	logger     *zap.Logger
	onAttempt  []func(Attempt[T])

	group  singleflight.Group
	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	done    map[string]T
	flights map[string]*flight

	// cbMu serializes callbacks against Stop so none starts afterwards.
	cbMu    sync.RWMutex
	stopped bool
}

type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// New creates a Poller. isTerminal decides when a fetched state ends the loop.
func New[T any](isTerminal func(T) bool, cfg Config, opts ...Option[T]) *Poller[T] {
	base, cancel := context.WithCancel(context.Background())
	p := &Poller[T]{
		isTerminal: isTerminal,
		cfg:        cfg.withDefaults(),
		logger:     zap.NewNop(),
		base:       base,
		cancel:     cancel,
		done:       make(map[string]T),
		flights:    make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration.
func (p *Poller[T]) Config() Config {
	return p.cfg
}

// Poll fetches jobID until it is terminal and returns the terminal state.
//
// ctx bounds only this caller's wait: abandoning it does not stop a loop
// other callers still wait on.
func (p *Poller[T]) Poll(ctx context.Context, jobID string, fetch FetchFunc[T]) (T, error) {
	var zero T
	for {
		if p.isStopped() {
			return zero, ErrStopped
		}
		if v, ok := p.cached(jobID); ok {
			return v, nil
		}

		f := p.join(jobID)
		ch := p.group.DoChan(jobID, func() (any, error) {
			return p.run(f.ctx, jobID, fetch)
		})

		select {
		case res := <-ch:
			p.leave(jobID, f)
			if errors.Is(res.Err, errAbandoned) {
				if ctx.Err() != nil {
					return zero, ctx.Err()
				}
				continue
			}
			if res.Err != nil {
				return zero, res.Err
			}
			v, _ := res.Val.(T)
			return v, nil
		case <-ctx.Done():
			p.leave(jobID, f)
			return zero, ctx.Err()
		}
	}
}

// Stop cancels every outstanding loop. No OnAttempt callback fires once Stop
// returns, and later Poll calls fail with ErrStopped.
func (p *Poller[T]) Stop() {
	p.cbMu.Lock()
	p.stopped = true
	p.cbMu.Unlock()
	p.cancel()
}

// Forget drops the cached terminal state of jobID.
func (p *Poller[T]) Forget(jobID string) {
	p.mu.Lock()
	delete(p.done, jobID)
	p.mu.Unlock()
}

func (p *Poller[T]) isStopped() bool {
	p.cbMu.RLock()
	defer p.cbMu.RUnlock()
	return p.stopped
}

func (p *Poller[T]) cached(jobID string) (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.done[jobID]
	return v, ok
}

func (p *Poller[T]) join(jobID string) *flight {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.flights[jobID]
	if f == nil {
		ctx, cancel := context.WithCancel(p.base)
		f = &flight{ctx: ctx, cancel: cancel}
		p.flights[jobID] = f
	}
	f.waiters++
	return f
}

// leave cancels the loop once its last waiter is gone.
func (p *Poller[T]) leave(jobID string, f *flight) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if p.flights[jobID] == f {
		delete(p.flights, jobID)
	}
}

func (p *Poller[T]) run(ctx context.Context, jobID string, fetch FetchFunc[T]) (T, error) {
	var zero T
	if v, ok := p.cached(jobID); ok {
		return v, nil
	}

	consecutive := 0
	for n := 1; n <= p.cfg.MaxAttempts; n++ {
		if n > 1 && !sleep(ctx, p.cfg.Interval) {
			return zero, p.interrupted()
		}

		start := time.Now()
		v, err := fetch(ctx, jobID)
		if ctx.Err() != nil {
			return zero, p.interrupted()
		}
		terminal := err == nil && p.isTerminal(v)

		if !p.report(Attempt[T]{JobID: jobID, N: n, Value: v, Err: err, Terminal: terminal, Elapsed: time.Since(start)}) {
			return zero, ErrStopped
		}

		if err != nil {
			consecutive++
			p.logger.Debug("Job status fetch failed",
				zap.String("job_id", jobID),
				zap.Int("attempt", n),
				zap.Int("consecutive", consecutive),
				zap.Error(err))
			if consecutive >= p.cfg.MaxConsecutiveErrors {
				return zero, &PollError{JobID: jobID, Attempts: n, Err: err}
			}
			continue
		}
		consecutive = 0

		if terminal {
			p.mu.Lock()
			p.done[jobID] = v
			p.mu.Unlock()
			return v, nil
		}
	}

	p.logger.Debug("Job polling timed out",
		zap.String("job_id", jobID),
		zap.Int("attempts", p.cfg.MaxAttempts))
	return zero, &TimeoutError{JobID: jobID, Attempts: p.cfg.MaxAttempts}
}

// sleep waits d or until ctx is done. It returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (p *Poller[T]) interrupted() error {
	if p.base.Err() != nil {
		return ErrStopped
	}
	return errAbandoned
}

// report runs the callbacks unless the poller was stopped. It returns false
// when stopped.
func (p *Poller[T]) report(a Attempt[T]) bool {
	p.cbMu.RLock()
	defer p.cbMu.RUnlock()
	if p.stopped {
		return false
	}
	for _, fn := range p.onAttempt {
		fn(a)
	}
	return true
}
