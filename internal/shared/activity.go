package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Activity actions recorded by the handlers.
const (
	ActionLogin        = "login"
	ActionLoginFailed  = "login_failed"
	ActionLogout       = "logout"
	ActionCreate       = "create"
	ActionUpdate       = "update"
	ActionDelete       = "delete"
	ActionProfileSaved = "profile_update"
)

// ActivityEntry represents a record stored in activity_log.
type ActivityEntry struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// ActivityRecorder persists activity entries.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) error
}

// ActivityLogger writes records into activity_log and mirrors them to slog.
type ActivityLogger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewActivityLogger returns a new ActivityLogger.
func NewActivityLogger(pool *pgxpool.Pool, logger *slog.Logger) *ActivityLogger {
	return &ActivityLogger{pool: pool, logger: logger}
}

// Record persists the log entry.
func (l *ActivityLogger) Record(ctx context.Context, entry ActivityEntry) error {
	if l == nil || l.pool == nil {
		return errors.New("activity logger not initialised")
	}
	if entry.Action == "" || entry.Entity == "" {
		return errors.New("activity entry requires action/entity")
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	if l.logger != nil {
		l.logger.Info("activity",
			slog.Int64("actor_id", entry.ActorID),
			slog.String("action", entry.Action),
			slog.String("entity", entry.Entity),
			slog.String("entity_id", entry.EntityID),
		)
	}
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	var actor *int64
	if entry.ActorID > 0 {
		actor = &entry.ActorID
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO activity_log (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		actor, entry.Action, entry.Entity, entry.EntityID, metaJSON, entry.At)
	return err
}

// RecordActivity writes entry through rec when configured. Failures are
// logged and swallowed so activity logging never blocks a request.
func RecordActivity(ctx context.Context, rec ActivityRecorder, logger *slog.Logger, entry ActivityEntry) {
	if rec == nil {
		return
	}
	if err := rec.Record(ctx, entry); err != nil && logger != nil {
		logger.Warn("record activity", slog.String("action", entry.Action), slog.Any("error", err))
	}
}

// PruneBefore deletes entries older than cutoff and returns the number removed.
func (l *ActivityLogger) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if l == nil || l.pool == nil {
		return 0, errors.New("activity logger not initialised")
	}
	tag, err := l.pool.Exec(ctx, `DELETE FROM activity_log WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
