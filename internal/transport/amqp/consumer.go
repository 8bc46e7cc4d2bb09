package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirinyoku/slotgo/internal/service/payment"
	amqp091 "github.com/rabbitmq/amqp091-go"
)

type Confirmer interface {
	Confirm(ctx context.Context, req payment.ConfirmRequest) (*payment.ConfirmResult, error)
}

type ConsumerConfig struct {
	URL      string
	Exchange string
	Queue    string
	Prefetch int
	Tag      string
}

// Consumer feeds payment.paid events into payment confirmation.
type Consumer struct {
	cfg       ConsumerConfig
	confirmer Confirmer
	log       *slog.Logger

	conn *amqp091.Connection
	ch   *amqp091.Channel
}

func NewConsumer(cfg ConsumerConfig, confirmer Confirmer, log *slog.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 8
	}

	if log == nil {
		log = slog.Default()
	}

	return &Consumer{cfg: cfg, confirmer: confirmer, log: log.With("component", "amqp-consumer")}
}

// Connect declares the exchange and queue and binds payment.paid.
func (c *Consumer) Connect() error {
	const op = "amqp.Consumer.Connect"

	conn, err := amqp091.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("%s: dial rabbitmq: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("%s: open channel: %w", op, err)
	}

	fail := func(step string, err error) error {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("%s: %s: %w", op, step, err)
	}

	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fail("declare exchange", err)
	}

	q, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return fail("declare queue", err)
	}

	if err := ch.QueueBind(q.Name, RKPaymentPaid, c.cfg.Exchange, false, nil); err != nil {
		return fail("bind queue", err)
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fail("set qos", err)
	}

	c.conn = conn
	c.ch = ch
	c.cfg.Queue = q.Name

	return nil
}

// Run consumes until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	const op = "amqp.Consumer.Run"

	msgs, err := c.ch.ConsumeWithContext(ctx, c.cfg.Queue, c.cfg.Tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: consume: %w", op, err)
	}

	c.log.Info("consuming", "queue", c.cfg.Queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			switch c.Handle(ctx, d.RoutingKey, d.Body) {
			case Ack:
				_ = d.Ack(false)
			case Requeue:
				_ = d.Nack(false, true)
			}
		}
	}
}

func (c *Consumer) Close() {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

type Outcome int

const (
	Ack Outcome = iota
	Requeue
)

// Handle processes one message. Malformed messages and business rejections
// are acknowledged so they are not redelivered forever; infrastructure
// failures are requeued.
func (c *Consumer) Handle(ctx context.Context, key string, body []byte) Outcome {
	if key != RKPaymentPaid {
		c.log.Debug("skip unknown key", "key", key)
		return Ack
	}

	var ev PaymentPaid
	if err := json.Unmarshal(body, &ev); err != nil {
		c.log.Warn("malformed payment event", "err", err)
		return Ack
	}

	res, err := c.confirmer.Confirm(ctx, payment.ConfirmRequest{
		VenueID:     ev.VenueID,
		Sport:       ev.Sport,
		SessionID:   ev.SessionID,
		UserID:      ev.UserID,
		PaymentRef:  ev.PaymentRef,
		BaseAmount:  ev.BaseAmount,
		Fees:        ev.Fees,
		TotalAmount: ev.TotalAmount,
	})
	switch {
	case err == nil:
		c.log.Info("payment confirmed",
			"booking_id", res.Booking.ID,
			"session_id", ev.SessionID,
			"already_confirmed", res.AlreadyConfirmed,
		)
		return Ack
	case errors.Is(err, payment.ErrHoldNotFound),
		errors.Is(err, payment.ErrHoldExpired),
		errors.Is(err, payment.ErrInvalidInput):
		c.log.Warn("payment rejected", "session_id", ev.SessionID, "payment_ref", ev.PaymentRef, "err", err)
		return Ack
	default:
		c.log.Error("payment confirmation failed", "session_id", ev.SessionID, "err", err)
		return Requeue
	}
}
