package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// defaultDialTimeout bounds connect and handshake when the caller's context
// carries no deadline.
const defaultDialTimeout = 5 * time.Second

// Publisher sends domain events to RabbitMQ.  Each publish dials its own
// connection and channel within the deadline of its context.
type Publisher struct {
	url string
	log *zap.Logger
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, log: log}
}

// PublishBedAllocated publishes ev to the bed.allocated queue.  Errors are
// logged and returned so the caller can choose to ignore them.
func (p *Publisher) PublishBedAllocated(ctx context.Context, ev BedAllocatedEvent) error {
	pub, err := bedAllocatedPublishing(ev, time.Now())
	if err != nil {
		p.log.Warn("rabbitmq: marshal event failed", zap.Error(err))
		return err
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout(ctx)),
	})
	if err != nil {
		p.log.Warn("rabbitmq: dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("rabbitmq: channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := declareQueue(ch); err != nil {
		p.log.Warn("rabbitmq: queue declare failed", zap.Error(err))
		return err
	}

	if err := ch.PublishWithContext(ctx,
		"",                // default exchange
		BedAllocatedQueue, // routing key = queue name
		false,             // mandatory
		false,             // immediate
		pub,
	); err != nil {
		p.log.Warn("rabbitmq: publish failed", zap.Error(err))
		return err
	}
	p.log.Debug("rabbitmq: published", zap.String("queue", BedAllocatedQueue), zap.String("allocation_id", ev.AllocationID))
	return nil
}

// dialTimeout returns the time left on ctx, or defaultDialTimeout when ctx
// has no deadline.
func dialTimeout(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return defaultDialTimeout
	}
	if left := time.Until(deadline); left > 0 {
		return left
	}
	return time.Millisecond
}

// declareQueue makes sure the durable queue exists.  It is idempotent.
func declareQueue(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(
		BedAllocatedQueue, // name
		true,              // durable
		false,             // autoDelete
		false,             // exclusive
		false,             // noWait
		nil,               // args
	)
	return err
}

func bedAllocatedPublishing(ev BedAllocatedEvent, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    ev.AllocationID,
		Timestamp:    now.UTC(),
		Body:         body,
	}, nil
}
