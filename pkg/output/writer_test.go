package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPI = "http://127.0.0.1:8000/api/v1"

var fixedTS = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

func newTestWriter(out io.Writer) *JSONLWriter {
	w := NewJSONLWriter(out, "run-7", testAPI)
	w.clock = func() time.Time { return fixedTS }
	return w
}

// lines splits JSONL output and decodes every envelope.
func lines(t *testing.T, out string) []Record {
	t.Helper()
	var recs []Record
	for _, l := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		var r Record
		require.NoError(t, json.Unmarshal([]byte(l), &r), "line %q", l)
		recs = append(recs, r)
	}
	return recs
}

func TestEnvelope(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	w := newTestWriter(&buf)

	require.NoError(t, w.WriteFile(ctx, &FileRecord{Path: "./login.docx", FileID: "f-1", Name: "login.docx", Status: "completed"}))
	require.NoError(t, w.WriteJob(ctx, &JobRecord{JobID: "t-1", Attempt: 1, Status: "processing", Progress: 40}))
	require.NoError(t, w.WriteResult(ctx, &ResultRecord{JobID: "t-1", Status: "completed", CasesCount: 12}))
	require.NoError(t, w.WriteExport(ctx, &ExportRecord{Location: "/tmp/cases.xlsx", Key: "cases.xlsx", Size: 10}))
	require.NoError(t, w.WriteError(ctx, &ErrorRecord{Code: ErrCodeTimeout, Message: "gave up", JobID: "t-1"}))
	require.NoError(t, w.WriteSummary(ctx, &SummaryRecord{Files: 1, Jobs: 1, Cases: 12}))

	recs := lines(t, buf.String())
	want := []string{TypeFile, TypeJob, TypeResult, TypeExport, TypeError, TypeSummary}
	require.Len(t, recs, len(want))
	for i, r := range recs {
		assert.Equal(t, want[i], r.Type)
		assert.Equal(t, "run-7", r.RunID)
		assert.Equal(t, testAPI, r.API)
		assert.True(t, fixedTS.Equal(r.TS))
	}
}

func TestResultPayload(t *testing.T) {
	var buf bytes.Buffer
	w := newTestWriter(&buf)

	require.NoError(t, w.WriteResult(context.Background(), &ResultRecord{
		JobID:       "t-1",
		Status:      "completed",
		CasesCount:  12,
		ProjectName: "Billing",
		Attempts:    3,
		Duration:    4 * time.Second,
	}))

	rec := lines(t, buf.String())[0]
	var got ResultRecord
	require.NoError(t, json.Unmarshal(rec.Data, &got))
	assert.Equal(t, "Billing", got.ProjectName)
	assert.Equal(t, 3, got.Attempts)
	assert.Equal(t, 4*time.Second, got.Duration)
	assert.NotContains(t, string(rec.Data), `"error"`)
	assert.NotContains(t, string(rec.Data), `"module_name"`)
}

func TestWritesAfterClose(t *testing.T) {
	var buf bytes.Buffer
	w := newTestWriter(&buf)
	require.NoError(t, w.Close())

	assert.ErrorIs(t, w.WriteJob(context.Background(), &JobRecord{JobID: "t-1"}), ErrWriterClosed)
	assert.Zero(t, buf.Len())
}

func TestCanceledContextWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	w := newTestWriter(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, w.WriteSummary(ctx, &SummaryRecord{}), context.Canceled)
	assert.Zero(t, buf.Len())
}

func TestConcurrentLinesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	w := newTestWriter(&buf)

	const workers, each = 8, 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < each; j++ {
				_ = w.WriteJob(context.Background(), &JobRecord{JobID: fmt.Sprintf("t-%d", id), Attempt: j})
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, lines(t, buf.String()), workers*each)
}

type chunkWriter struct {
	buf   bytes.Buffer
	chunk int
}

func (c *chunkWriter) Write(p []byte) (int, error) {
	if len(p) > c.chunk {
		p = p[:c.chunk]
	}
	return c.buf.Write(p)
}

type stuckWriter struct{}

func (stuckWriter) Write([]byte) (int, error) { return 0, nil }

type brokenWriter struct{ err error }

func (b brokenWriter) Write([]byte) (int, error) { return 0, b.err }

func TestPartialWrites(t *testing.T) {
	t.Run("short chunks are completed", func(t *testing.T) {
		cw := &chunkWriter{chunk: 7}
		w := newTestWriter(cw)
		require.NoError(t, w.WriteFile(context.Background(), &FileRecord{Path: "docs/requirements/login.docx", Size: 1 << 20}))

		recs := lines(t, cw.buf.String())
		require.Len(t, recs, 1)
		assert.Equal(t, TypeFile, recs[0].Type)
	})

	t.Run("no progress", func(t *testing.T) {
		w := newTestWriter(stuckWriter{})
		err := w.WriteJob(context.Background(), &JobRecord{JobID: "t-1"})
		assert.ErrorIs(t, err, io.ErrShortWrite)
	})

	t.Run("destination error", func(t *testing.T) {
		disk := errors.New("disk full")
		w := newTestWriter(brokenWriter{err: disk})
		err := w.WriteJob(context.Background(), &JobRecord{JobID: "t-1"})

		var we *WriteError
		require.ErrorAs(t, err, &we)
		assert.Equal(t, "write", we.Op)
		assert.ErrorIs(t, err, disk)
	})
}

func TestUnencodablePayload(t *testing.T) {
	var buf bytes.Buffer
	w := newTestWriter(&buf)

	err := w.WriteError(context.Background(), &ErrorRecord{Code: ErrCodeInternal, Details: make(chan int)})
	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "marshal_data", we.Op)
	assert.Zero(t, buf.Len())
}

func TestWriteErrorMessage(t *testing.T) {
	cause := errors.New("boom")
	err := &WriteError{Op: "marshal_record", Err: cause}
	assert.Equal(t, "output: marshal_record: boom", err.Error())
	assert.ErrorIs(t, err, cause)
}
