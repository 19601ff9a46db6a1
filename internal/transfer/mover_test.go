package transfer

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/dbxfer/internal/sqltype"
)

type fakeRows struct {
	data [][]any
	pos  int
	err  error
}

func sequence(n int) *fakeRows {
	data := make([][]any, n)
	for i := range data {
		data[i] = []any{int64(i + 1), "row"}
	}
	return &fakeRows{data: data}
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	for i, d := range dest {
		if sc, ok := d.(sql.Scanner); ok {
			if err := sc.Scan(row[i]); err != nil {
				return err
			}
			continue
		}
		*d.(*any) = row[i]
	}
	return nil
}

func (r *fakeRows) Err() error { return r.err }

type fakeSink struct {
	open      [][]any
	commits   []int
	rollbacks int
	inserted  int
	failAt    int
}

func (s *fakeSink) Begin(context.Context) error {
	s.open = s.open[:0]
	return nil
}

func (s *fakeSink) Insert(_ context.Context, args []any) error {
	s.inserted++
	if s.failAt > 0 && s.inserted == s.failAt {
		return errors.New("constraint violation")
	}
	s.open = append(s.open, args)
	return nil
}

func (s *fakeSink) Commit() error {
	s.commits = append(s.commits, len(s.open))
	s.open = nil
	return nil
}

func (s *fakeSink) Rollback() error {
	s.rollbacks++
	s.open = nil
	return nil
}

// stopAt requests a stop once the given number of rows has been reported.
type stopAt struct {
	NopHandler
	rows   int
	counts []int
}

func (h *stopAt) RecordTransferFinished(_ string, n int) {
	h.counts = append(h.counts, n)
	if h.rows > 0 && n >= h.rows {
		h.Stop()
	}
}

var twoColumns = []sqltype.Class{sqltype.BigInt, sqltype.Varchar}

func TestCopyRowsBatches(t *testing.T) {
	sink := &fakeSink{}
	h := &stopAt{}

	n, err := copyRows(context.Background(), sequence(2500), twoColumns, sink, 1000, h, "city")
	require.NoError(t, err)
	assert.Equal(t, 2500, n)
	assert.Equal(t, []int{1000, 1000, 500}, sink.commits)
	assert.Zero(t, sink.rollbacks)
	require.Len(t, h.counts, 2500)
	assert.Equal(t, 1, h.counts[0])
	assert.Equal(t, 2500, h.counts[2499])
}

func TestCopyRowsExactMultiple(t *testing.T) {
	sink := &fakeSink{}

	n, err := copyRows(context.Background(), sequence(2000), twoColumns, sink, 1000, &NopHandler{}, "city")
	require.NoError(t, err)
	assert.Equal(t, 2000, n)
	assert.Equal(t, []int{1000, 1000}, sink.commits)
}

func TestCopyRowsEmpty(t *testing.T) {
	sink := &fakeSink{}

	n, err := copyRows(context.Background(), sequence(0), twoColumns, sink, 1000, &NopHandler{}, "city")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, sink.commits)
}

func TestCopyRowsConvertsValues(t *testing.T) {
	sink := &fakeSink{}
	rows := &fakeRows{data: [][]any{{[]byte("12"), []byte("Sofia")}}}

	_, err := copyRows(context.Background(), rows, twoColumns, &capture{fakeSink: sink}, 10, &NopHandler{}, "city")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, sink.commits)
}

// capture checks the converted arguments before handing them on.
type capture struct {
	*fakeSink
}

func (c *capture) Insert(ctx context.Context, args []any) error {
	if args[0] != int64(12) || args[1] != "Sofia" {
		return errors.New("unexpected arguments")
	}
	return c.fakeSink.Insert(ctx, args)
}

func TestCopyRowsStopRollsBackOpenBatch(t *testing.T) {
	sink := &fakeSink{}
	h := &stopAt{rows: 1500}

	n, err := copyRows(context.Background(), sequence(2500), twoColumns, sink, 1000, h, "city")
	require.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, 1000, n)
	assert.Equal(t, []int{1000}, sink.commits)
	assert.Equal(t, 1, sink.rollbacks)
	assert.Len(t, h.counts, 1500)
}

func TestCopyRowsStopOnBatchBoundary(t *testing.T) {
	sink := &fakeSink{}
	h := &stopAt{rows: 1000}

	n, err := copyRows(context.Background(), sequence(2500), twoColumns, sink, 1000, h, "city")
	require.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, 1000, n)
	assert.Zero(t, sink.rollbacks)
}

func TestCopyRowsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &fakeSink{}

	n, err := copyRows(ctx, sequence(10), twoColumns, sink, 1000, &NopHandler{}, "city")
	require.ErrorIs(t, err, ErrStopped)
	assert.Zero(t, n)
	assert.Empty(t, sink.commits)
}

func TestCopyRowsInsertFailure(t *testing.T) {
	sink := &fakeSink{failAt: 1500}

	n, err := copyRows(context.Background(), sequence(2500), twoColumns, sink, 1000, &NopHandler{}, "city")
	var terr *TableTransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "city", terr.Table)
	assert.Equal(t, PhaseInsert, terr.Phase)
	assert.Equal(t, 1000, n)
	assert.Equal(t, []int{1000}, sink.commits)
	assert.Equal(t, 1, sink.rollbacks)
}

func TestCopyRowsCursorFailure(t *testing.T) {
	rows := sequence(5)
	rows.err = errors.New("connection reset")
	sink := &fakeSink{}

	n, err := copyRows(context.Background(), rows, twoColumns, sink, 1000, &NopHandler{}, "city")
	var terr *TableTransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, PhaseSelect, terr.Phase)
	assert.Zero(t, n)
	assert.Equal(t, 1, sink.rollbacks)
	assert.Empty(t, sink.commits)
}
