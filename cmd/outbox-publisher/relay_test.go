package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockflow-backend/pkg/config"
	"github.com/angelmondragon/stockflow-backend/pkg/db/models"
	"github.com/angelmondragon/stockflow-backend/pkg/enums"
	"github.com/angelmondragon/stockflow-backend/pkg/logger"
	"github.com/angelmondragon/stockflow-backend/pkg/outbox"
	"github.com/angelmondragon/stockflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/stockflow-backend/pkg/outbox/registry"
)

const testTopic = "sf-sales-order-events"

func TestDrainRetriesFailedRowAndDeliversTheRest(t *testing.T) {
	first, second := orderRow(t, enums.EventSalesOrderCreated, 0), orderRow(t, enums.EventSalesOrderCreated, 0)
	store := &memEventStore{rows: []models.OutboxEvent{first, second}}
	out := &recordingSender{errs: []error{errors.New("unavailable")}}
	relay := newTestRelay(t, store, out, &staticResolver{}, &memDeadLetters{}, 5)

	claimed, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, claimed)
	assert.Equal(t, []uuid.UUID{first.ID}, store.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, store.published)
	assert.Empty(t, store.terminal)
}

func TestDrainStampsRoutingAttributes(t *testing.T) {
	row := orderRow(t, enums.EventSalesOrderCompleted, 0)
	store := &memEventStore{rows: []models.OutboxEvent{row}}
	out := &recordingSender{}
	relay := newTestRelay(t, store, out, &staticResolver{payload: &payloads.SalesOrderCompletedEvent{}}, &memDeadLetters{}, 5)
	relay.senders = func(topic string) sender {
		require.Equal(t, testTopic, topic)
		return out
	}

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, out.sent, 1)
	attrs := out.sent[0].Attributes
	assert.Equal(t, string(enums.EventSalesOrderCompleted), attrs["event_type"])
	assert.Equal(t, row.AggregateID.String(), attrs["aggregate_id"])
	assert.Equal(t, row.ID.String(), attrs["event_id"])
	assert.Equal(t, "1", attrs["schema_version"])
	assert.JSONEq(t, string(row.Payload), string(out.sent[0].Data))
	assert.Equal(t, []uuid.UUID{row.ID}, store.published)
}

func TestDrainDeadLettersUnresolvableRow(t *testing.T) {
	row := orderRow(t, enums.EventSalesOrderCreated, 0)
	store := &memEventStore{rows: []models.OutboxEvent{row}}
	dead := &memDeadLetters{}
	resolver := &staticResolver{err: registry.NewNonRetryableError(errors.New("unsupported event type"))}
	out := &recordingSender{}
	relay := newTestRelay(t, store, out, resolver, dead, 5)

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out.sent)
	require.Len(t, dead.entries, 1)
	assert.Equal(t, row.ID, dead.entries[0].EventID)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, dead.entries[0].ErrorReason)
	assert.JSONEq(t, string(row.Payload), string(dead.entries[0].Payload))
	assert.Equal(t, []uuid.UUID{row.ID}, store.terminal)
}

func TestDrainDeadLettersWhenAttemptsRunOut(t *testing.T) {
	row := orderRow(t, enums.EventSalesOrderCreated, 1)
	store := &memEventStore{rows: []models.OutboxEvent{row}}
	dead := &memDeadLetters{}
	out := &recordingSender{errs: []error{errors.New("deadline exceeded")}}
	relay := newTestRelay(t, store, out, &staticResolver{}, dead, 2)

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, dead.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, dead.entries[0].ErrorReason)
	require.NotNil(t, dead.entries[0].ErrorMessage)
	assert.Contains(t, *dead.entries[0].ErrorMessage, "gave up after 2 attempts")
	assert.Empty(t, store.failed)
	assert.Equal(t, []uuid.UUID{row.ID}, store.terminal)
}

func TestDrainDeadLettersWhenTopicHasNoPublisher(t *testing.T) {
	row := orderRow(t, enums.EventSalesOrderCreated, 0)
	store := &memEventStore{rows: []models.OutboxEvent{row}}
	dead := &memDeadLetters{}
	relay := newTestRelay(t, store, nil, &staticResolver{}, dead, 5)
	relay.senders = func(string) sender { return nil }

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, dead.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, dead.entries[0].ErrorReason)
}

func TestDrainOnEmptyOutboxClaimsNothing(t *testing.T) {
	relay := newTestRelay(t, &memEventStore{}, &recordingSender{}, &staticResolver{}, &memDeadLetters{}, 5)

	claimed, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, claimed)
}

func TestBackoffIsCapped(t *testing.T) {
	relay := newTestRelay(t, &memEventStore{}, &recordingSender{}, &staticResolver{}, &memDeadLetters{}, 5)
	backoff := relay.backoff()
	var last time.Duration
	for i := 0; i < 12; i++ {
		next, stop := backoff.Next()
		require.False(t, stop)
		last = next
	}
	assert.LessOrEqual(t, last, maxBackoff+jitterWindow)
}

func TestNewRelayRequiresDependencies(t *testing.T) {
	_, err := NewRelay(RelayParams{Config: &config.Config{}})
	require.EqualError(t, err, "relay: logger is required")
}

func TestNewRelayFallsBackToDefaults(t *testing.T) {
	relay := newTestRelay(t, &memEventStore{}, &recordingSender{}, &staticResolver{}, &memDeadLetters{}, 0)
	assert.Equal(t, fallbackMaxAttempts, relay.maxAttempts)
	assert.Equal(t, 2, relay.batchSize)
	assert.Equal(t, 100*time.Millisecond, relay.poll)
}

func TestRunStopsWhenContextCanceled(t *testing.T) {
	relay := newTestRelay(t, &memEventStore{}, &recordingSender{}, &staticResolver{}, &memDeadLetters{}, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := relay.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func newTestRelay(t *testing.T, store eventStore, out sender, resolver eventResolver, dead deadLetterStore, maxAttempts int) *Relay {
	t.Helper()
	relay, err := NewRelay(RelayParams{
		Config: &config.Config{Outbox: config.OutboxConfig{
			BatchSize:      2,
			PollIntervalMS: 100,
			MaxAttempts:    maxAttempts,
		}},
		Logger:      logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:          noTxDB{},
		PubSub:      noTopics{},
		Events:      store,
		DeadLetters: dead,
		Registry:    resolver,
		Senders:     func(string) sender { return out },
	})
	require.NoError(t, err)
	return relay
}

func orderRow(t *testing.T, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    id.String(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            id,
		EventType:     eventType,
		AggregateType: enums.AggregateSalesOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
		CreatedAt:     time.Now(),
	}
}

type memEventStore struct {
	rows      []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (m *memEventStore) FetchUnpublishedForPublish(_ *gorm.DB, _, _ int) ([]models.OutboxEvent, error) {
	return m.rows, nil
}

func (m *memEventStore) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	m.published = append(m.published, id)
	return nil
}

func (m *memEventStore) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	m.failed = append(m.failed, id)
	return nil
}

func (m *memEventStore) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	m.terminal = append(m.terminal, id)
	return nil
}

type memDeadLetters struct {
	entries []models.OutboxDLQ
}

func (m *memDeadLetters) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	m.entries = append(m.entries, entry)
	return nil
}

type noTxDB struct{}

func (noTxDB) Ping(context.Context) error { return nil }

func (noTxDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type noTopics struct{}

func (noTopics) Ping(context.Context) error { return nil }

func (noTopics) Publisher(string) *gcppubsub.Publisher { return nil }

type recordingSender struct {
	errs []error
	sent []*gcppubsub.Message
}

func (r *recordingSender) Send(_ context.Context, msg *gcppubsub.Message) (string, error) {
	r.sent = append(r.sent, msg)
	if len(r.errs) == 0 {
		return "msg-id", nil
	}
	err := r.errs[0]
	r.errs = r.errs[1:]
	return "", err
}

type staticResolver struct {
	payload any
	err     error
}

func (s *staticResolver) Resolve(row models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	payload := s.payload
	if payload == nil {
		payload = &payloads.SalesOrderEvent{}
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: testTopic, AggregateType: row.AggregateType},
		Envelope:   outbox.PayloadEnvelope{Version: 1, EventID: row.ID.String(), OccurredAt: row.CreatedAt},
		Payload:    payload,
	}, nil
}
