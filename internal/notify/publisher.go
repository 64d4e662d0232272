// Package notify turns committed domain events into queued mail notifications.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/age-b2b/backoffice/internal/inventory"
	"github.com/age-b2b/backoffice/internal/orders"
)

const (
	// TaskOrderStatus carries an orders.StatusChangedEvent.
	TaskOrderStatus = "notify:order_status"
	// TaskInboundRegistered carries an inventory.InboundRegisteredEvent.
	TaskInboundRegistered = "notify:inbound_registered"
	// QueueNotify is the queue notification tasks are published to.
	QueueNotify = "notify"
)

// Enqueuer is the subset of asynq.Client the publisher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// PublishObserver counts publish outcomes.
type PublishObserver interface {
	ObservePublish(taskType string, err error)
}

// Publisher enqueues notification tasks. Failures are logged and dropped.
type Publisher struct {
	queue    Enqueuer
	logger   *slog.Logger
	observer PublishObserver
	timeout  time.Duration
}

// NewPublisher constructs Publisher.
func NewPublisher(queue Enqueuer, logger *slog.Logger, observer PublishObserver) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{queue: queue, logger: logger, observer: observer, timeout: 2 * time.Second}
}

// NewOrderStatusTask builds the task for an order transition.
func NewOrderStatusTask(evt orders.StatusChangedEvent) (*asynq.Task, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode order status event: %w", err)
	}
	return asynq.NewTask(TaskOrderStatus, body, asynq.Queue(QueueNotify), asynq.MaxRetry(5)), nil
}

// NewInboundRegisteredTask builds the task for a received lot.
func NewInboundRegisteredTask(evt inventory.InboundRegisteredEvent) (*asynq.Task, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode inbound event: %w", err)
	}
	return asynq.NewTask(TaskInboundRegistered, body, asynq.Queue(QueueNotify), asynq.MaxRetry(5)), nil
}

// OrderStatusChanged publishes an order transition.
func (p *Publisher) OrderStatusChanged(ctx context.Context, evt orders.StatusChangedEvent) {
	task, err := NewOrderStatusTask(evt)
	p.publish(ctx, TaskOrderStatus, task, err, slog.Int64("order_id", evt.OrderID), slog.String("to", string(evt.To)))
}

// InboundRegistered publishes a received lot.
func (p *Publisher) InboundRegistered(ctx context.Context, evt inventory.InboundRegisteredEvent) {
	task, err := NewInboundRegisteredTask(evt)
	p.publish(ctx, TaskInboundRegistered, task, err, slog.Int64("lot_id", evt.LotID))
}

func (p *Publisher) publish(ctx context.Context, taskType string, task *asynq.Task, err error, attrs ...any) {
	if p == nil || p.queue == nil {
		return
	}
	if err == nil {
		// The request context may already be cancelled once the response is written.
		enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		_, err = p.queue.EnqueueContext(enqueueCtx, task)
		cancel()
	}
	if p.observer != nil {
		p.observer.ObservePublish(taskType, err)
	}
	if err != nil {
		p.logger.Warn("notification dropped", append(attrs, slog.String("task", taskType), slog.Any("error", err))...)
	}
}

// Sink receives every committed event the core publishes.
type Sink interface {
	orders.Notifier
	inventory.Notifier
}

// Fanout forwards each event to every sink in order.
type Fanout []Sink

// OrderStatusChanged implements orders.Notifier.
func (f Fanout) OrderStatusChanged(ctx context.Context, evt orders.StatusChangedEvent) {
	for _, s := range f {
		if s != nil {
			s.OrderStatusChanged(ctx, evt)
		}
	}
}

// InboundRegistered implements inventory.Notifier.
func (f Fanout) InboundRegistered(ctx context.Context, evt inventory.InboundRegisteredEvent) {
	for _, s := range f {
		if s != nil {
			s.InboundRegistered(ctx, evt)
		}
	}
}
