package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tricktime/tricktime/internal/jobs"
)

// DefaultIdempotencyRetention keeps welcome keys long enough to outlive
// provider webhook redelivery.
const DefaultIdempotencyRetention = 30 * 24 * time.Hour

// IdempotencyPruner removes stale idempotency keys.
type IdempotencyPruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob prunes the idempotency ledger.
type IdempotencyCleanupJob struct {
	Store   IdempotencyPruner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob wires the cleanup handler.
func NewIdempotencyCleanupJob(store IdempotencyPruner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdempotencyCleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.OlderThan <= 0 {
		payload.OlderThan = DefaultIdempotencyRetention
	}
	tracker := j.Metrics.Track(TaskTypeIdempotencyCleanup)
	err := j.Store.Cleanup(ctx, payload.OlderThan)
	if err != nil {
		j.Logger.Error("idempotency cleanup", slog.Any("error", err))
	} else {
		j.Logger.Info("idempotency cleanup done", slog.Duration("older_than", payload.OlderThan))
	}
	return tracker.End(err)
}
