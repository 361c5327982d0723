// Package audit persists session lifecycle events to Postgres.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pneutrack/console/internal/session"
)

const insertEvent = `INSERT INTO console_auth_events (kind, profile_id, subject_id, role, detail, occurred_at)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6)`

// maxDetail bounds the stored detail; upstream messages can be arbitrary.
const maxDetail = 512

// ErrInvalidEvent rejects events without a kind or profile.
var ErrInvalidEvent = errors.New("audit: event requires kind and profile")

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Recorder writes session events into console_auth_events.
type Recorder struct {
	db  Execer
	now func() time.Time
}

// NewRecorder returns a Recorder backed by db.
func NewRecorder(db Execer) *Recorder {
	return &Recorder{db: db, now: time.Now}
}

// Record implements session.EventRecorder.
func (r *Recorder) Record(ctx context.Context, event session.Event) error {
	if r == nil || r.db == nil {
		return errors.New("audit: recorder not initialised")
	}
	if event.Kind == "" || strings.TrimSpace(event.Profile) == "" {
		return ErrInvalidEvent
	}
	at := event.At
	if at.IsZero() {
		at = r.now()
	}
	detail := event.Detail
	if len(detail) > maxDetail {
		detail = detail[:maxDetail]
	}
	if _, err := r.db.Exec(ctx, insertEvent, string(event.Kind), event.Profile, event.SubjectID, event.Role, detail, at.UTC()); err != nil {
		return fmt.Errorf("audit: insert %s: %w", event.Kind, err)
	}
	return nil
}

var _ session.EventRecorder = (*Recorder)(nil)
