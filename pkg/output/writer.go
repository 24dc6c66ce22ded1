package output

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// Writer emits one JSONL record per call. Implementations are safe for
// concurrent use and never interleave lines.
type Writer interface {
	WriteFile(ctx context.Context, f *FileRecord) error
	WriteJob(ctx context.Context, j *JobRecord) error
	WriteResult(ctx context.Context, r *ResultRecord) error
	WriteExport(ctx context.Context, e *ExportRecord) error
	WriteError(ctx context.Context, err *ErrorRecord) error
	WriteSummary(ctx context.Context, sum *SummaryRecord) error

	// Close stops further writes. The destination stays open.
	Close() error
}

var _ Writer = (*JSONLWriter)(nil)

// codec matches encoding/json output so records stay readable by any
// JSON tooling.
var codec = sonic.ConfigStd

// JSONLWriter stamps every record with the run id and API base URL of one
// command invocation.
type JSONLWriter struct {
	out   io.Writer
	run   Record
	clock func() time.Time

	mu     sync.Mutex
	closed bool
}

// NewJSONLWriter writes records to out. runID correlates the records of
// one invocation and api is the service base URL.
func NewJSONLWriter(out io.Writer, runID, api string) *JSONLWriter {
	return &JSONLWriter{
		out:   out,
		run:   Record{RunID: runID, API: api},
		clock: func() time.Time { return time.Now().UTC() },
	}
}

func (jw *JSONLWriter) WriteFile(ctx context.Context, f *FileRecord) error {
	return jw.emit(ctx, TypeFile, f)
}

func (jw *JSONLWriter) WriteJob(ctx context.Context, j *JobRecord) error {
	return jw.emit(ctx, TypeJob, j)
}

func (jw *JSONLWriter) WriteResult(ctx context.Context, r *ResultRecord) error {
	return jw.emit(ctx, TypeResult, r)
}

func (jw *JSONLWriter) WriteExport(ctx context.Context, e *ExportRecord) error {
	return jw.emit(ctx, TypeExport, e)
}

func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.emit(ctx, TypeError, err)
}

func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.emit(ctx, TypeSummary, sum)
}

func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	jw.closed = true
	jw.mu.Unlock()
	return nil
}

func (jw *JSONLWriter) emit(ctx context.Context, typ string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := jw.encode(typ, payload)
	if err != nil {
		return err
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()
	switch {
	case jw.closed:
		return ErrWriterClosed
	case ctx.Err() != nil:
		return ctx.Err()
	}
	if err := writeFull(jw.out, line); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

// encode renders the envelope as a single newline-terminated line.
func (jw *JSONLWriter) encode(typ string, payload any) ([]byte, error) {
	data, err := codec.Marshal(payload)
	if err != nil {
		return nil, &WriteError{Op: "marshal_data", Err: err}
	}
	rec := jw.run
	rec.Type = typ
	rec.TS = jw.clock()
	rec.Data = data

	line, err := codec.Marshal(rec)
	if err != nil {
		return nil, &WriteError{Op: "marshal_record", Err: err}
	}
	return append(line, '\n'), nil
}

// writeFull keeps writing until p is consumed. A writer that reports
// progress of zero bytes without an error fails with io.ErrShortWrite.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		switch {
		case err != nil:
			return err
		case n == 0:
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
