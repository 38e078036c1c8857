package queue

// The consumer listens to the booking events queue and appends one
// human-readable line per event to a log file.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sidasi/sidasi-backend/internal/retry"
)

// Consumer reads BookingEvents from RabbitMQ.
type Consumer struct {
	URL     string
	LogPath string
	Logger  *slog.Logger

	// Backoff is the wait between reconnect attempts. Defaults to doubling
	// from 1s up to 30s.
	Backoff func(attempt int) time.Duration
}

// Run connects, consumes and reconnects until ctx is cancelled. Processing
// errors reject the offending message and never stop the loop.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := c.Backoff
	if backoff == nil {
		backoff = retry.Exponential(time.Second, 30*time.Second)
	}
	failures := 0
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			failures++
			wait := backoff(failures)
			c.Logger.Warn("booking-consumer: failed to dial broker", "err", err, "retry_in", wait.String())
			if serr := retry.SleepContext(ctx, wait); serr != nil {
				return serr
			}
			continue
		}
		failures = 0 // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Logger.Warn("booking-consumer: consume loop ended; reconnecting", "err", err)
		if serr := retry.SleepContext(ctx, backoff(1)); serr != nil {
			return serr
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Logger.Warn("booking-consumer: set QoS failed", "err", err)
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.HandleMessage(d.Body); err != nil {
			c.Logger.Error("booking-consumer: handle message failed", "err", err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// HandleMessage decodes one event and appends it to LogPath.
func (c *Consumer) HandleMessage(body []byte) error {
	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.LogPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(c.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	c.Logger.Info("booking event recorded", "type", ev.Type, "booking_id", ev.BookingID)
	return nil
}

// FormatLine renders an event as a single log line.
func FormatLine(ev BookingEvent) string {
	what := "Booking event"
	switch ev.Type {
	case EventBookingCreated:
		what = "Booking created"
	case EventBookingCompleted:
		what = "Booking completed"
	}
	return fmt.Sprintf("[%s] %s | booking_id=%d | user_id=%d | date=%s | payment=%q | validation=%s | items=%d\n",
		ev.OccurredAt, what, ev.BookingID, ev.UserID, ev.BookingDate, ev.PaymentStatus, ev.ValidationStatus, ev.ItemCount)
}
