package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pneutrack/console/internal/session"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExec struct {
	calls []execCall
	err   error
}

func (f *fakeExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestRecordInsertsEvent(t *testing.T) {
	exec := &fakeExec{}
	rec := NewRecorder(exec)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("BRT", -3*3600))

	err := rec.Record(context.Background(), session.Event{
		Kind:      session.EventLoginSucceeded,
		Profile:   "p1",
		SubjectID: "7",
		Role:      "revenda",
		At:        at,
	})
	require.NoError(t, err)
	require.Len(t, exec.calls, 1)
	assert.Contains(t, exec.calls[0].sql, "console_auth_events")
	assert.Equal(t, []any{"login_succeeded", "p1", "7", "revenda", "", at.UTC()}, exec.calls[0].args)
}

func TestRecordStampsMissingTimeAndTruncatesDetail(t *testing.T) {
	exec := &fakeExec{}
	rec := NewRecorder(exec)
	now := time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return now }

	err := rec.Record(context.Background(), session.Event{
		Kind:    session.EventLoginFailed,
		Profile: "p1",
		Detail:  strings.Repeat("x", 2000),
	})
	require.NoError(t, err)
	args := exec.calls[0].args
	assert.Len(t, args[4], maxDetail)
	assert.Equal(t, now, args[5])
}

func TestRecordRejectsIncompleteEvents(t *testing.T) {
	exec := &fakeExec{}
	rec := NewRecorder(exec)

	assert.ErrorIs(t, rec.Record(context.Background(), session.Event{Profile: "p1"}), ErrInvalidEvent)
	assert.ErrorIs(t, rec.Record(context.Background(), session.Event{Kind: session.EventLogout, Profile: " "}), ErrInvalidEvent)
	assert.Empty(t, exec.calls)
}

func TestRecordWrapsDatabaseErrors(t *testing.T) {
	boom := errors.New("connection reset")
	rec := NewRecorder(&fakeExec{err: boom})

	err := rec.Record(context.Background(), session.Event{Kind: session.EventLogout, Profile: "p1"})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "logout")
}

func TestNilRecorderFails(t *testing.T) {
	var rec *Recorder
	assert.Error(t, rec.Record(context.Background(), session.Event{Kind: session.EventLogout, Profile: "p1"}))
}

func TestApplySchemaRunsEveryStatement(t *testing.T) {
	exec := &fakeExec{}
	require.NoError(t, applySchema(context.Background(), exec))
	require.Len(t, exec.calls, len(schema))
	assert.Contains(t, exec.calls[0].sql, "CREATE TABLE IF NOT EXISTS console_auth_events")

	failing := &fakeExec{err: errors.New("permission denied")}
	assert.Error(t, applySchema(context.Background(), failing))
	assert.Len(t, failing.calls, 1)
}
