package events

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/observability"
)

// Outbox is the storage side of the publisher.
type Outbox interface {
	PublishPending(ctx context.Context, limit int, fn func(ctx context.Context, events []domain.OutboxEvent) error) (int, error)
	Pending(ctx context.Context) (int, error)
}

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	outbox    Outbox
	writer    MessageWriter
	logger    *slog.Logger
	metrics   *observability.BookingMetrics
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
}

// NewPublisher returns nil when no brokers are configured.
func NewPublisher(outbox Outbox, logger *slog.Logger, metrics *observability.BookingMetrics, cfg PublisherConfig) *Publisher {
	brokers := SplitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return NewPublisherWithWriter(outbox, writer, logger, metrics, cfg)
}

func NewPublisherWithWriter(outbox Outbox, writer MessageWriter, logger *slog.Logger, metrics *observability.BookingMetrics, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		outbox:    outbox,
		writer:    writer,
		logger:    logger,
		metrics:   metrics,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// Run publishes on every tick until ctx is done, then closes the writer.
func (p *Publisher) Run(ctx context.Context) {
	if p == nil {
		return
	}
	defer func() {
		if err := p.writer.Close(); err != nil {
			p.logger.Warn("kafka writer close failed", slog.Any("err", err))
		}
	}()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PublishBatch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Error("outbox publish failed", slog.Any("err", err))
				continue
			}
			if n > 0 {
				p.logger.Debug("outbox events published", slog.Int("count", n))
			}
			p.reportBacklog(ctx)
		}
	}
}

func (p *Publisher) reportBacklog(ctx context.Context) {
	pending, err := p.outbox.Pending(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("outbox backlog count failed", slog.Any("err", err))
		}
		return
	}
	p.metrics.SetOutboxBacklog(pending)
}

// PublishBatch ships one batch of pending events. Events are marked
// published only after Kafka accepted all of them.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	return p.outbox.PublishPending(ctx, p.batchSize, func(ctx context.Context, records []domain.OutboxEvent) error {
		msgs := make([]kafka.Message, 0, len(records))
		for _, r := range records {
			msgs = append(msgs, Message(ctx, r))
		}
		if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
			return err
		}
		for _, r := range records {
			p.metrics.ObserveOutboxPublished(r.EventType)
		}
		return nil
	})
}

// Message builds the Kafka record for an outbox row: topic is the event
// type, key is the appointment id.
func Message(ctx context.Context, r domain.OutboxEvent) kafka.Message {
	msgCtx := observability.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
	msg := kafka.Message{
		Topic: r.EventType,
		Key:   []byte(r.AggregateID),
		Value: []byte(r.Payload),
		Time:  r.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(r.ID.String())},
			{Key: "event_type", Value: []byte(r.EventType)},
		},
	}
	msg.Headers = InjectTraceHeaders(msgCtx, msg.Headers)
	return msg
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
