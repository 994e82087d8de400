package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/inkwell-cms/inkwell/internal/jobs"
)

// ActivityPruner deletes activity entries older than a cutoff.
type ActivityPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ActivityPruneJob enforces activity log retention.
type ActivityPruneJob struct {
	Pruner  ActivityPruner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewActivityPruneJob wires dependencies for the prune handler.
func NewActivityPruneJob(pruner ActivityPruner, logger *slog.Logger, metrics *jobmetrics.Metrics) *ActivityPruneJob {
	return &ActivityPruneJob{
		Pruner:  pruner,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskTypeActivityPrune tasks.
func (j *ActivityPruneJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pruner == nil {
		return errors.New("activity prune: handler not configured")
	}
	var payload ActivityPrunePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.RetentionDays <= 0 {
		payload.RetentionDays = DefaultActivityRetentionDays
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracker := metrics.Track(TaskTypeActivityPrune)

	cutoff := j.clock().AddDate(0, 0, -payload.RetentionDays)
	removed, err := j.Pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		logger.Error("prune activity log", slog.Any("error", err))
		return tracker.End(err)
	}
	metrics.AddPruned(removed)
	logger.Info("pruned activity log", slog.Int64("removed", removed), slog.Time("cutoff", cutoff))
	return tracker.End(nil)
}
