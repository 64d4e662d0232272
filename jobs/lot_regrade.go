package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/age-b2b/backoffice/internal/inventory"
	jobmetrics "github.com/age-b2b/backoffice/internal/jobs"
)

// Regrader recomputes stored lot grades.
type Regrader interface {
	RegradeAll(ctx context.Context) (inventory.RegradeResult, error)
}

// Invalidator drops cached read models after grades change.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// LotRegradeJob refreshes lot quality grades once the business date rolls over.
type LotRegradeJob struct {
	Inventory Regrader
	Cache     Invalidator
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewLotRegradeJob wires dependencies for the regrade handler.
func NewLotRegradeJob(inv Regrader, cache Invalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *LotRegradeJob {
	return &LotRegradeJob{Inventory: inv, Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle processes TaskLotRegrade tasks.
func (j *LotRegradeJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Inventory == nil {
		return errors.New("lot regrade: handler not configured")
	}
	var payload LotRegradePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	tracker := j.Metrics.Track(TaskLotRegrade)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	if !payload.ScheduledFor.IsZero() {
		logger = logger.With(slog.String("scheduled_for", payload.ScheduledFor.Format(time.RFC3339)))
	}
	result, err := j.Inventory.RegradeAll(ctx)
	if err != nil {
		logger.Error("lot regrade", slog.Int("changed", result.Changed), slog.Any("error", err))
		return err
	}
	j.Metrics.AddRegraded(result.Changed)
	if result.Changed > 0 && j.Cache != nil {
		j.Cache.Invalidate(ctx)
	}
	logger.Info("completed lot regrade", slog.Int("scanned", result.Scanned), slog.Int("changed", result.Changed))
	return nil
}

func (j *LotRegradeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
