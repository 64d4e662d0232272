package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/age-b2b/backoffice/internal/clients"
	"github.com/age-b2b/backoffice/internal/inventory"
	"github.com/age-b2b/backoffice/internal/notify"
	"github.com/age-b2b/backoffice/internal/orders"
	"github.com/age-b2b/backoffice/internal/testing/memstore"
)

type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type publishLog struct {
	outcomes []string
}

func (p *publishLog) ObservePublish(taskType string, err error) {
	outcome := taskType + ":ok"
	if err != nil {
		outcome = taskType + ":dropped"
	}
	p.outcomes = append(p.outcomes, outcome)
}

type captureMailer struct {
	sent []notify.Mail
}

func (m *captureMailer) Send(_ context.Context, mail notify.Mail) error {
	m.sent = append(m.sent, mail)
	return nil
}

func shippedEvent(clientID int64) orders.StatusChangedEvent {
	return orders.StatusChangedEvent{
		OrderID:     11,
		OrderNumber: "20260301-4821",
		ClientID:    clientID,
		Event:       string(orders.EventCreateShipment),
		From:        orders.StatusPreparing,
		To:          orders.StatusShipped,
		TotalAmount: decimal.NewFromInt(5000),
		At:          time.Date(2026, 3, 1, 5, 30, 0, 0, time.UTC),
	}
}

func TestPublisherEnqueuesOrderStatus(t *testing.T) {
	queue := &fakeQueue{}
	observed := &publishLog{}
	pub := notify.NewPublisher(queue, nil, observed)

	pub.OrderStatusChanged(context.Background(), shippedEvent(3))

	require.Len(t, queue.tasks, 1)
	assert.Equal(t, notify.TaskOrderStatus, queue.tasks[0].Type())
	var decoded orders.StatusChangedEvent
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &decoded))
	assert.Equal(t, orders.StatusShipped, decoded.To)
	assert.True(t, decoded.TotalAmount.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, []string{"notify:order_status:ok"}, observed.outcomes)
}

func TestPublisherDropsOnQueueFailure(t *testing.T) {
	queue := &fakeQueue{err: errors.New("redis unavailable")}
	observed := &publishLog{}
	pub := notify.NewPublisher(queue, nil, observed)

	assert.NotPanics(t, func() {
		pub.InboundRegistered(context.Background(), inventory.InboundRegisteredEvent{LotID: 4, LotNumber: "LOT-20260301-AB12CD"})
	})
	assert.Empty(t, queue.tasks)
	assert.Equal(t, []string{"notify:inbound_registered:dropped"}, observed.outcomes)
}

func TestPublisherSurvivesCancelledRequestContext(t *testing.T) {
	queue := &fakeQueue{}
	pub := notify.NewPublisher(queue, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pub.OrderStatusChanged(ctx, shippedEvent(3))
	assert.Len(t, queue.tasks, 1)
}

type countingSink struct {
	orders, inbound int
}

func (c *countingSink) OrderStatusChanged(context.Context, orders.StatusChangedEvent) { c.orders++ }
func (c *countingSink) InboundRegistered(context.Context, inventory.InboundRegisteredEvent) {
	c.inbound++
}

func TestFanoutForwardsToEverySink(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	fan := notify.Fanout{a, b}

	fan.OrderStatusChanged(context.Background(), shippedEvent(1))
	fan.InboundRegistered(context.Background(), inventory.InboundRegisteredEvent{})

	assert.Equal(t, 1, a.orders)
	assert.Equal(t, 1, b.orders)
	assert.Equal(t, 1, b.inbound)
}

func newHandler(t *testing.T, opsEmail string) (*notify.Handler, *captureMailer, clients.Client) {
	t.Helper()
	store := memstore.New()
	client := store.AddClient(clients.Client{BusinessName: "Green Leaf Pharmacy", Email: "orders@greenleaf.example"})
	mailer := &captureMailer{}
	h := notify.NewHandler(notify.HandlerConfig{
		Mailer:   mailer,
		Clients:  store,
		OpsEmail: opsEmail,
		Language: language.English,
		Currency: "KRW",
	})
	return h, mailer, client
}

func TestHandleOrderStatusMailsClient(t *testing.T) {
	h, mailer, client := newHandler(t, "")
	task, err := notify.NewOrderStatusTask(shippedEvent(client.ID))
	require.NoError(t, err)

	require.NoError(t, h.HandleOrderStatus(context.Background(), task))

	require.Len(t, mailer.sent, 1)
	mail := mailer.sent[0]
	assert.Equal(t, "orders@greenleaf.example", mail.To)
	assert.Equal(t, "[20260301-4821] Order shipped", mail.Subject)
	assert.Contains(t, mail.Body, "Dear Green Leaf Pharmacy")
	assert.Contains(t, mail.Body, "5,000 KRW")
	assert.Contains(t, mail.Body, "2026-03-01 05:30")
}

func TestHandleOrderStatusSkipsUnknownClient(t *testing.T) {
	h, mailer, _ := newHandler(t, "")
	task, err := notify.NewOrderStatusTask(shippedEvent(404))
	require.NoError(t, err)

	require.NoError(t, h.HandleOrderStatus(context.Background(), task))
	assert.Empty(t, mailer.sent)
}

func TestHandlersRejectMalformedPayloads(t *testing.T) {
	h, _, _ := newHandler(t, "ops@example.com")

	err := h.HandleOrderStatus(context.Background(), asynq.NewTask(notify.TaskOrderStatus, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	err = h.HandleInboundRegistered(context.Background(), asynq.NewTask(notify.TaskInboundRegistered, []byte("nope")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleInboundRegistered(t *testing.T) {
	evt := inventory.InboundRegisteredEvent{
		LotID:      8,
		LotNumber:  "LOT-20260301-AB12CD",
		ProductID:  1001,
		Quantity:   1200,
		ExpiryDate: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		Grade:      inventory.GradeCaution,
	}
	task, err := notify.NewInboundRegisteredTask(evt)
	require.NoError(t, err)

	quiet, quietMailer, _ := newHandler(t, "")
	require.NoError(t, quiet.HandleInboundRegistered(context.Background(), task))
	assert.Empty(t, quietMailer.sent)

	h, mailer, _ := newHandler(t, "ops@example.com")
	require.NoError(t, h.HandleInboundRegistered(context.Background(), task))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ops@example.com", mailer.sent[0].To)
	assert.Equal(t, "Inbound registered: LOT-20260301-AB12CD", mailer.sent[0].Subject)
	assert.Contains(t, mailer.sent[0].Body, "product 1001.")
	assert.Contains(t, mailer.sent[0].Body, "Quantity: 1,200")
	assert.Contains(t, mailer.sent[0].Body, "Expiry: 2026-05-01 (CAUTION)")
}
