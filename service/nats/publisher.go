package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/brojonat/ledgerlens/service/metrics"
)

// Publisher publishes summary events.
type Publisher interface {
	// PublishSummary publishes one event to "summaries.{wallet}".
	PublishSummary(ctx context.Context, event *SummaryEvent) error

	// PublishSummaryBatch publishes events in order. It reports how many were
	// published; a failed event does not stop the rest.
	PublishSummaryBatch(ctx context.Context, events []*SummaryEvent) (int, error)

	Close() error
}

const (
	// StreamName is the name of the JetStream stream for summaries.
	StreamName = "SUMMARIES"

	// SubjectPrefix prefixes every wallet subject.
	SubjectPrefix = "summaries"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = SubjectPrefix + ".*"

	// StreamRetention is how long messages are retained.
	StreamRetention = 30 * 24 * time.Hour
)

// JetStreamPublisher publishes summary events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Connect dials NATS with reconnects enabled and opens a JetStream context.
func Connect(natsURL, name string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return nc, js, nil
}

// NewPublisher connects to NATS and ensures the stream exists.
// If m is nil, no metrics are recorded.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, js, err := Connect(natsURL, "ledgerlens-publisher")
	if err != nil {
		return nil, err
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)
	return publisher, nil
}

func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		if info, err := stream.Info(ctx); err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return err
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)
	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Wallet transaction summaries",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// PublishSummary publishes a single summary event. The summary id is used as
// the message id so JetStream drops duplicates from a retried sync.
func (p *JetStreamPublisher) PublishSummary(ctx context.Context, event *SummaryEvent) error {
	subject := Subject(event.Wallet)
	start := time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal summary event: %w", err)
	}

	_, err = p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.Wallet+":"+event.Summary.ID))
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordNATSPublish(SubjectPrefix, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish summary: %w", err)
	}

	p.logger.DebugContext(ctx, "published summary event",
		"subject", subject,
		"signature", event.Summary.ID,
	)
	return nil
}

// PublishSummaryBatch publishes events one by one, logging failures.
func (p *JetStreamPublisher) PublishSummaryBatch(ctx context.Context, events []*SummaryEvent) (int, error) {
	published := 0
	var errs []error
	for _, event := range events {
		if err := p.PublishSummary(ctx, event); err != nil {
			p.logger.ErrorContext(ctx, "failed to publish summary in batch",
				"signature", event.Summary.ID,
				"wallet", event.Wallet,
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		published++
	}
	return published, errors.Join(errs...)
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}

// Subscribe streams a wallet's summary events to handle until ctx is done.
// An empty durable creates an ephemeral consumer.
func Subscribe(ctx context.Context, js jetstream.JetStream, wallet, durable string, handle func(*SummaryEvent)) error {
	cfg := jetstream.ConsumerConfig{
		FilterSubject: Subject(wallet),
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if durable != "" {
		cfg.Durable = durable
		cfg.Name = durable
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, StreamName, cfg)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		var event SummaryEvent
		if err := json.Unmarshal(msg.Data(), &event); err == nil {
			handle(&event)
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}
	defer cc.Stop()

	<-ctx.Done()
	return nil
}
