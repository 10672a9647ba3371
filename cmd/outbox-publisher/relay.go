package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockflow-backend/pkg/config"
	"github.com/angelmondragon/stockflow-backend/pkg/db/models"
	"github.com/angelmondragon/stockflow-backend/pkg/enums"
	"github.com/angelmondragon/stockflow-backend/pkg/logger"
	"github.com/angelmondragon/stockflow-backend/pkg/outbox"
	"github.com/angelmondragon/stockflow-backend/pkg/outbox/registry"
)

const (
	fallbackBatchSize   = 50
	fallbackPoll        = 500 * time.Millisecond
	fallbackMaxAttempts = 10
	sendTimeout         = 15 * time.Second
	maxBackoff          = 10 * time.Second
	jitterWindow        = 250 * time.Millisecond
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

// sender delivers one message and waits for the broker ack.
type sender interface {
	Send(ctx context.Context, msg *gcppubsub.Message) (string, error)
}

type senderFor func(topic string) sender

type RelayParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          txRunner
	PubSub      topicSource
	Events      eventStore
	DeadLetters deadLetterStore
	Registry    eventResolver
	Senders     senderFor
}

// Relay moves sales order and inventory events from the outbox table to
// Pub/Sub. Rows that can never be delivered land in the dead-letter table.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	pubsub      topicSource
	events      eventStore
	deadLetters deadLetterStore
	registry    eventResolver
	senders     senderFor
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	missing := []struct {
		ok   bool
		name string
	}{
		{p.Config != nil, "config"},
		{p.Logger != nil, "logger"},
		{p.DB != nil, "database client"},
		{p.PubSub != nil, "pubsub client"},
		{p.Events != nil, "outbox store"},
		{p.DeadLetters != nil, "dead-letter store"},
		{p.Registry != nil, "event registry"},
	}
	for _, dep := range missing {
		if !dep.ok {
			return nil, fmt.Errorf("relay: %s is required", dep.name)
		}
	}

	senders := p.Senders
	if senders == nil {
		senders = func(topic string) sender {
			if pub := p.PubSub.Publisher(topic); pub != nil {
				return gcpSender{pub: pub}
			}
			return nil
		}
	}

	cfg := p.Config.Outbox
	return &Relay{
		logg:        p.Logger,
		db:          p.DB,
		pubsub:      p.PubSub,
		events:      p.Events,
		deadLetters: p.DeadLetters,
		registry:    p.Registry,
		senders:     senders,
		batchSize:   positiveOr(cfg.BatchSize, fallbackBatchSize),
		maxAttempts: positiveOr(cfg.MaxAttempts, fallbackMaxAttempts),
		poll:        time.Duration(positiveOr(cfg.PollIntervalMS, int(fallbackPoll/time.Millisecond))) * time.Millisecond,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run drains the outbox until ctx is canceled. A busy batch loops straight
// back, an empty one waits one poll interval and a failed one backs off.
func (r *Relay) Run(ctx context.Context) error {
	deps := []struct {
		name string
		ping func(context.Context) error
	}{{"database", r.db.Ping}, {"pubsub", r.pubsub.Ping}}
	for _, dep := range deps {
		if err := dep.ping(ctx); err != nil {
			r.logg.Error(ctx, dep.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}

	backoff := r.backoff()
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "stock event relay stopping")
			return err
		}

		drained, err := r.drain(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "stock event relay batch failed", err)
			wait, _ = backoff.Next()
		case drained > 0:
			backoff = r.backoff()
			continue
		default:
			backoff = r.backoff()
			wait = r.poll
		}
		if err := pause(ctx, wait); err != nil {
			return err
		}
	}
}

// backoff doubles the wait after each failed batch, capped at maxBackoff.
func (r *Relay) backoff() retry.Backoff {
	return retry.WithJitter(jitterWindow, retry.WithCappedDuration(maxBackoff, retry.NewExponential(r.poll)))
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// drain claims one batch of pending rows and settles each of them inside the
// same transaction. It returns how many rows were claimed.
func (r *Relay) drain(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.events.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		claimed = len(rows)
		for _, row := range rows {
			if err := r.settle(ctx, tx, row, r.deliver(ctx, row)); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

type outcome int

const (
	delivered outcome = iota
	retryLater
	deadLettered
)

type verdict struct {
	outcome outcome
	reason  enums.OutboxDLQErrorReason
	err     error
	topic   string
	env     outbox.PayloadEnvelope
}

// deliver resolves and sends one row and reports what should happen to it.
// It never touches the database.
func (r *Relay) deliver(ctx context.Context, row models.OutboxEvent) verdict {
	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return verdict{outcome: deadLettered, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	v := verdict{topic: resolved.Descriptor.Topic, env: resolved.Envelope}

	err = r.send(ctx, row, resolved)
	var permanent registry.NonRetryableError
	switch {
	case err == nil:
		v.outcome = delivered
	case errors.As(err, &permanent):
		v.outcome, v.reason, v.err = deadLettered, enums.OutboxDLQReasonNonRetryable, err
	case row.AttemptCount+1 >= r.maxAttempts:
		v.outcome, v.reason = deadLettered, enums.OutboxDLQReasonMaxAttempts
		v.err = fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, err)
	default:
		v.outcome, v.err = retryLater, err
	}
	return v
}

func (r *Relay) send(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	out := r.senders(topic)
	if out == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	_, err := out.Send(sendCtx, &gcppubsub.Message{
		Data:       row.Payload,
		Attributes: messageAttributes(row, resolved.Envelope),
	})
	return err
}

// messageAttributes lets subscribers route on the event without decoding the
// envelope body.
func messageAttributes(row models.OutboxEvent, env outbox.PayloadEnvelope) map[string]string {
	return map[string]string{
		"event_id":       env.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"created_at":     row.CreatedAt.Format(time.RFC3339Nano),
		"schema_version": strconv.Itoa(env.Version),
	}
}

// settle records a verdict against the row.
func (r *Relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, v verdict) error {
	ctx = r.logg.WithFields(ctx, r.rowFields(row, v))

	switch v.outcome {
	case delivered:
		if err := r.events.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark %s published: %w", row.ID, err)
		}
		r.logg.Info(ctx, "stock event delivered")
	case retryLater:
		r.logg.Warn(r.logg.WithField(ctx, "error", v.err.Error()), "stock event delivery failed, will retry")
		if err := r.events.MarkFailedTx(tx, row.ID, v.err); err != nil {
			return fmt.Errorf("mark %s failed: %w", row.ID, err)
		}
	case deadLettered:
		r.logg.Warn(r.logg.WithField(ctx, "error", v.err.Error()), "stock event dead-lettered")
		msg := v.err.Error()
		entry := models.OutboxDLQ{
			EventID:       row.ID,
			EventType:     row.EventType,
			AggregateType: row.AggregateType,
			AggregateID:   row.AggregateID,
			Payload:       row.Payload,
			ErrorReason:   v.reason,
			ErrorMessage:  &msg,
			AttemptCount:  row.AttemptCount,
			FailedAt:      time.Now().UTC(),
		}
		if err := r.deadLetters.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("dead-letter %s: %w", row.ID, err)
		}
		if err := r.events.MarkTerminalTx(tx, row.ID, v.err, r.maxAttempts); err != nil {
			return fmt.Errorf("mark %s terminal: %w", row.ID, err)
		}
	}
	return nil
}

func (r *Relay) rowFields(row models.OutboxEvent, v verdict) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
	if v.outcome == retryLater {
		fields["attempt_count"] = row.AttemptCount + 1
	}
	if v.reason != "" {
		fields["error_reason"] = v.reason
	}
	if v.topic != "" {
		fields["topic"] = v.topic
	}
	if v.env.EventID != "" {
		fields["event_id"] = v.env.EventID
		fields["occurred_at"] = v.env.OccurredAt.Format(time.RFC3339Nano)
	}
	return fields
}

type gcpSender struct {
	pub *gcppubsub.Publisher
}

func (s gcpSender) Send(ctx context.Context, msg *gcppubsub.Message) (string, error) {
	return s.pub.Publish(ctx, msg).Get(ctx)
}
