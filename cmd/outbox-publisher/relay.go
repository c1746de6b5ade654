package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshora-backend/pkg/config"
	"github.com/angelmondragon/freshora-backend/pkg/db/models"
	"github.com/angelmondragon/freshora-backend/pkg/enums"
	"github.com/angelmondragon/freshora-backend/pkg/logger"
	"github.com/angelmondragon/freshora-backend/pkg/metrics"
	"github.com/angelmondragon/freshora-backend/pkg/outbox/registry"
)

const (
	fallbackBatchSize   = 50
	fallbackPoll        = 500 * time.Millisecond
	fallbackMaxAttempts = 10
	publishTimeout      = 15 * time.Second
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type RelayParams struct {
	Outbox      config.OutboxConfig
	Logger      *logger.Logger
	DB          txRunner
	PubSub      topicSource
	Events      eventStore
	DeadLetters deadLetterStore
	Registry    eventResolver
	Metrics     *metrics.OutboxMetrics
	// Publishers overrides how a topic publisher is built.
	Publishers publisherBuilder
}

// Relay moves committed outbox rows onto Pub/Sub. Each batch is claimed and
// settled inside one transaction so a crash replays at most that batch.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	pubsub      topicSource
	events      eventStore
	deadLetters deadLetterStore
	registry    eventResolver
	metrics     *metrics.OutboxMetrics
	topics      *topicPublishers

	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case p.Events == nil:
		return nil, errors.New("outbox repository is required")
	case p.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	build := p.Publishers
	if build == nil {
		build = gcpPublisherBuilder(p.PubSub)
	}

	return &Relay{
		logg:        p.Logger,
		db:          p.DB,
		pubsub:      p.PubSub,
		events:      p.Events,
		deadLetters: p.DeadLetters,
		registry:    p.Registry,
		metrics:     p.Metrics,
		topics:      newTopicPublishers(build),
		batchSize:   positiveOr(p.Outbox.BatchSize, fallbackBatchSize),
		maxAttempts: positiveOr(p.Outbox.MaxAttempts, fallbackMaxAttempts),
		poll:        pollInterval(p.Outbox.PollIntervalMS),
	}, nil
}

// Run drains until ctx is canceled. An empty batch waits one poll interval;
// a failed batch backs off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": r.db.Ping,
		"pubsub":   r.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			r.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	defer r.topics.stopAll()

	pace := newPacer(r.poll)
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay context canceled")
			return err
		}

		handled, err := r.drain(ctx)
		if err != nil {
			r.metrics.IncBatchFailure()
			r.logg.Error(ctx, "outbox relay batch error", err)
		}
		if err == nil && handled > 0 {
			pace.reset()
			continue
		}
		if err := pace.wait(ctx, err != nil); err != nil {
			return err
		}
	}
}

// drain claims one batch and settles every row in it. It returns the number
// of rows claimed.
func (r *Relay) drain(ctx context.Context) (int, error) {
	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		batch, err := r.events.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		handled = len(batch)
		for _, event := range batch {
			if err := r.settle(ctx, tx, r.deliver(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return handled, err
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLetter
)

func (o outcome) label() string {
	switch o {
	case outcomePublished:
		return metrics.RelayOutcomePublished
	case outcomeRetry:
		return metrics.RelayOutcomeRetry
	default:
		return metrics.RelayOutcomeDeadLetter
	}
}

// delivery is the result of one publish attempt, applied to the row by settle.
type delivery struct {
	event   models.OutboxEvent
	topic   string
	eventID string
	outcome outcome
	reason  enums.OutboxDLQErrorReason
	err     error
}

func (r *Relay) deliver(ctx context.Context, event models.OutboxEvent) delivery {
	d := delivery{event: event}

	resolved, err := r.registry.Resolve(event)
	if err != nil {
		d.outcome, d.reason, d.err = outcomeDeadLetter, enums.OutboxDLQReasonNonRetryable, err
		return d
	}
	d.topic = resolved.Descriptor.Topic
	d.eventID = resolved.Envelope.EventID

	err = r.publish(ctx, d.topic, buildMessage(event, resolved))
	var nonRetryable registry.NonRetryableError
	switch {
	case err == nil:
		d.outcome = outcomePublished
	case errors.As(err, &nonRetryable):
		d.outcome, d.reason, d.err = outcomeDeadLetter, enums.OutboxDLQReasonNonRetryable, err
	case event.AttemptCount+1 >= r.maxAttempts:
		d.outcome, d.reason = outcomeDeadLetter, enums.OutboxDLQReasonMaxAttempts
		d.err = fmt.Errorf("max publish attempts reached: %w", err)
	default:
		d.outcome, d.err = outcomeRetry, err
	}
	return d
}

func (r *Relay) publish(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := r.topics.get(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(ctx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(ctx)
	return err
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, d delivery) error {
	id := d.event.ID
	logCtx := r.logg.WithFields(ctx, r.logFields(d))
	r.metrics.IncEvent(string(d.event.EventType), d.outcome.label())

	switch d.outcome {
	case outcomePublished:
		if err := r.events.MarkPublishedTx(tx, id); err != nil {
			return fmt.Errorf("mark published %s: %w", id, err)
		}
		r.logg.Info(logCtx, "outbox event published")
	case outcomeRetry:
		r.logg.Warn(logCtx, "outbox publish failed")
		if err := r.events.MarkFailedTx(tx, id, d.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", id, err)
		}
	case outcomeDeadLetter:
		r.logg.Warn(logCtx, "outbox event will not be retried")
		msg := d.err.Error()
		entry := models.OutboxDLQ{
			EventID:       id,
			EventType:     d.event.EventType,
			AggregateType: d.event.AggregateType,
			AggregateID:   d.event.AggregateID,
			Payload:       d.event.Payload,
			ErrorReason:   d.reason,
			ErrorMessage:  &msg,
			AttemptCount:  d.event.AttemptCount,
			FailedAt:      time.Now().UTC(),
		}
		if err := r.deadLetters.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", id, err)
		}
		if err := r.events.MarkTerminalTx(tx, id, d.err, r.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", id, err)
		}
	}
	return nil
}

func (r *Relay) logFields(d delivery) map[string]any {
	fields := map[string]any{
		"outbox_id":      d.event.ID.String(),
		"event_type":     d.event.EventType,
		"aggregate_type": d.event.AggregateType,
		"aggregate_id":   d.event.AggregateID.String(),
		"attempt_count":  d.event.AttemptCount,
		"outcome":        d.outcome.label(),
	}
	if d.topic != "" {
		fields["topic"] = d.topic
	}
	if d.eventID != "" {
		fields["event_id"] = d.eventID
	}
	if d.reason != "" {
		fields["error_reason"] = d.reason
	}
	if d.err != nil {
		fields["error"] = d.err.Error()
	}
	return fields
}

// buildMessage carries the stored envelope as-is. Order events also get an
// order_id attribute so subscribers can filter without decoding.
func buildMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"schema_version": strconv.Itoa(resolved.Envelope.Version),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
	if event.AggregateType == enums.AggregateOrder {
		attrs["order_id"] = event.AggregateID.String()
	}
	return &gcppubsub.Message{Data: event.Payload, Attributes: attrs}
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func pollInterval(ms int) time.Duration {
	if ms <= 0 {
		return fallbackPoll
	}
	return time.Duration(ms) * time.Millisecond
}
