package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/age-b2b/backoffice/internal/clients"
	"github.com/age-b2b/backoffice/internal/inventory"
	"github.com/age-b2b/backoffice/internal/orders"
	"github.com/age-b2b/backoffice/internal/shared"
)

// Mail is a rendered notification.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers rendered mail. Delivery itself is owned by the mail service.
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// LogMailer writes mail to the log instead of sending it.
type LogMailer struct {
	Logger *slog.Logger
}

// Send implements Mailer.
func (m LogMailer) Send(_ context.Context, mail Mail) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("mail", slog.String("to", mail.To), slog.String("subject", mail.Subject), slog.Int("body_bytes", len(mail.Body)))
	return nil
}

// HandlerConfig wires the worker side of notifications.
type HandlerConfig struct {
	Mailer   Mailer
	Clients  clients.Resolver
	OpsEmail string
	Language language.Tag
	Currency string
	Location *time.Location
	Logger   *slog.Logger
}

// Handler renders queued events into mail.
type Handler struct {
	mailer   Mailer
	clients  clients.Resolver
	opsEmail string
	printer  *message.Printer
	currency string
	location *time.Location
	logger   *slog.Logger
}

// NewHandler constructs Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		mailer:   cfg.Mailer,
		clients:  cfg.Clients,
		opsEmail: cfg.OpsEmail,
		printer:  message.NewPrinter(cfg.Language),
		currency: cfg.Currency,
		location: cfg.Location,
		logger:   cfg.Logger,
	}
	if h.mailer == nil {
		h.mailer = LogMailer{Logger: cfg.Logger}
	}
	if h.location == nil {
		h.location = time.UTC
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

var statusSubjects = map[orders.Status]string{
	orders.StatusPending:         "Order received",
	orders.StatusPreparing:       "Payment confirmed",
	orders.StatusShipped:         "Order shipped",
	orders.StatusDelivered:       "Order delivered",
	orders.StatusCancelRequested: "Cancellation requested",
	orders.StatusCancelled:       "Order cancelled",
	orders.StatusCancelRejected:  "Cancellation rejected",
	orders.StatusReturnRequested: "Return requested",
	orders.StatusReturned:        "Return completed",
	orders.StatusReturnRejected:  "Return rejected",
}

// HandleOrderStatus mails the client about a committed order transition.
func (h *Handler) HandleOrderStatus(ctx context.Context, t *asynq.Task) error {
	var evt orders.StatusChangedEvent
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	mail, err := h.RenderOrderStatus(ctx, evt)
	if err != nil {
		if errors.Is(err, shared.ErrUnknownClient) || errors.Is(err, errNoRecipient) {
			h.logger.Warn("order notification skipped", slog.Int64("order_id", evt.OrderID), slog.Any("error", err))
			return nil
		}
		return err
	}
	return h.mailer.Send(ctx, mail)
}

// HandleInboundRegistered mails operations about a received lot.
func (h *Handler) HandleInboundRegistered(ctx context.Context, t *asynq.Task) error {
	var evt inventory.InboundRegisteredEvent
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if h.opsEmail == "" {
		return nil
	}
	return h.mailer.Send(ctx, h.RenderInbound(evt))
}

var errNoRecipient = errors.New("client has no email address")

// RenderOrderStatus builds the client mail for an order event.
func (h *Handler) RenderOrderStatus(ctx context.Context, evt orders.StatusChangedEvent) (Mail, error) {
	if h.clients == nil {
		return Mail{}, errNoRecipient
	}
	client, err := h.clients.ResolveClient(ctx, evt.ClientID)
	if err != nil {
		return Mail{}, err
	}
	if strings.TrimSpace(client.Email) == "" {
		return Mail{}, errNoRecipient
	}
	subject, ok := statusSubjects[evt.To]
	if !ok {
		subject = "Order updated"
	}
	p := h.printer
	var b strings.Builder
	b.WriteString(p.Sprintf("Dear %s,\n\n", client.BusinessName))
	b.WriteString(p.Sprintf("Order %s is now %s.\n", evt.OrderNumber, evt.To))
	b.WriteString(p.Sprintf("Order total: %v %s\n", number.Decimal(evt.TotalAmount.InexactFloat64(), number.MaxFractionDigits(2)), h.currency))
	b.WriteString(p.Sprintf("Updated at: %s\n", evt.At.In(h.location).Format("2006-01-02 15:04")))
	return Mail{
		To:      client.Email,
		Subject: p.Sprintf("[%s] %s", evt.OrderNumber, subject),
		Body:    b.String(),
	}, nil
}

// RenderInbound builds the operations mail for a received lot.
func (h *Handler) RenderInbound(evt inventory.InboundRegisteredEvent) Mail {
	p := h.printer
	var b strings.Builder
	b.WriteString(p.Sprintf("Lot %s received for product %s.\n", evt.LotNumber, strconv.FormatInt(evt.ProductID, 10)))
	b.WriteString(p.Sprintf("Quantity: %d\n", evt.Quantity))
	b.WriteString(p.Sprintf("Expiry: %s (%s)\n", evt.ExpiryDate.Format(time.DateOnly), evt.Grade))
	return Mail{
		To:      h.opsEmail,
		Subject: p.Sprintf("Inbound registered: %s", evt.LotNumber),
		Body:    b.String(),
	}
}
