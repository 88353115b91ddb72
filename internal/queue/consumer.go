package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/medilink/internal/metrics"
)

// Sender delivers a text message to a phone number.
type Sender interface {
	Send(ctx context.Context, to, message string) error
}

// Consumer listens on the bed.allocated queue and sends the allocation SMS
// for every event.  A message that cannot be handled is rejected without
// requeue so a poison message never blocks the queue.
type Consumer struct {
	url         string
	sender      Sender
	log         *zap.Logger
	metrics     *metrics.Collector
	sendTimeout time.Duration
}

func NewConsumer(url string, sender Sender, log *zap.Logger, m *metrics.Collector) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{url: url, sender: sender, log: log, metrics: m, sendTimeout: 15 * time.Second}
}

// Run connects to the broker and consumes until ctx is cancelled.  Lost
// connections are re-dialled with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("sms-consumer: failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("sms-consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		c.log.Warn("sms-consumer: set QoS failed", zap.Error(err))
	}
	if err := declareQueue(ch); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(BedAllocatedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info("sms-consumer: consuming", zap.String("queue", BedAllocatedQueue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(ctx, d.Body); err != nil {
				c.log.Warn("sms-consumer: handle message failed", zap.String("message_id", d.MessageId), zap.Error(err))
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, body []byte) error {
	var ev BedAllocatedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.metrics.Notify("sms", "invalid")
		return fmt.Errorf("unmarshal: %w", err)
	}
	if strings.TrimSpace(ev.Phone) == "" {
		c.metrics.Notify("sms", "invalid")
		return fmt.Errorf("allocation %s: missing phone number", ev.AllocationID)
	}

	sctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()
	if err := c.sender.Send(sctx, ev.Phone, ev.Message()); err != nil {
		c.metrics.Notify("sms", "error")
		return fmt.Errorf("send sms for allocation %s: %w", ev.AllocationID, err)
	}
	c.metrics.Notify("sms", "ok")
	c.log.Info("sms-consumer: allocation sms sent",
		zap.String("allocation_id", ev.AllocationID),
		zap.Uint64("patient_id", ev.PatientID),
		zap.String("ward", ev.WardName),
		zap.Int("ward_number", ev.WardNumber),
		zap.Int("bed_number", ev.BedNumber))
	return nil
}

// sleep waits for d or until ctx is done; it reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
