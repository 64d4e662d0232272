package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLotRegrade recomputes lot quality grades for the new business date.
	TaskLotRegrade = "inventory:lot_regrade"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// LotRegradePayload carries scheduling metadata.
type LotRegradePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLotRegradeTask constructs the nightly regrade task.
func NewLotRegradeTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LotRegradePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLotRegrade, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload sets how long idempotency keys are retained.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask builds a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
