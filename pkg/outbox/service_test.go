package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockflow-backend/pkg/db/models"
	"github.com/angelmondragon/stockflow-backend/pkg/enums"
	"github.com/angelmondragon/stockflow-backend/pkg/logger"
)

func TestEmitWritesEnvelopeInTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, logger.Nop())
	orderID := uuid.New()
	actor := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventSalesOrderApproved,
			AggregateType: enums.AggregateSalesOrder,
			AggregateID:   orderID,
			Actor:         &ActorRef{UserID: actor},
			Data:          map[string]string{"status": "approved"},
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListByAggregate(context.Background(), enums.AggregateSalesOrder, orderID)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &env))
	require.Equal(t, currentEnvelopeVersion, env.Version)
	require.NotEmpty(t, env.EventID)
	require.Equal(t, actor, env.Actor.UserID)
	require.JSONEq(t, `{"status":"approved"}`, string(env.Data))
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	orderID := uuid.New()

	boom := errors.New("boom")
	err := conn.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventSalesOrderCreated,
			AggregateType: enums.AggregateSalesOrder,
			AggregateID:   orderID,
			Data:          struct{}{},
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := repo.ListByAggregate(context.Background(), enums.AggregateSalesOrder, orderID)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestEmitRequiresTransactionAndKnownType(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventSalesOrderCreated}))

	conn := dbtest.Open(t)
	require.Error(t, svc.Emit(context.Background(), conn, DomainEvent{EventType: "bogus"}))
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	first := models.OutboxEvent{EventType: enums.EventSalesOrderCreated, AggregateType: enums.AggregateSalesOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	second := models.OutboxEvent{EventType: enums.EventSalesOrderCancelled, AggregateType: enums.AggregateSalesOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Insert(conn, first))
	require.NoError(t, repo.Insert(conn, second))

	var claimed []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		claimed, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		if err != nil {
			return err
		}
		if err := repo.MarkPublishedTx(tx, claimed[0].ID); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, claimed[1].ID, errors.New("bad payload"), 3)
	}))
	require.Len(t, claimed, 2)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		pending, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.Empty(t, pending)
		return err
	}))

	removed, err := repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}

func TestMarkFailedIncrementsAttempts(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	row := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventSalesOrderCreated, AggregateType: enums.AggregateSalesOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Insert(conn, row))
	require.NoError(t, repo.MarkFailedTx(conn, row.ID, errors.New("unavailable")))
	require.NoError(t, repo.MarkFailedTx(conn, row.ID, errors.New("unavailable")))

	var stored models.OutboxEvent
	require.NoError(t, conn.First(&stored, "id = ?", row.ID).Error)
	require.Equal(t, 2, stored.AttemptCount)
	require.NotNil(t, stored.LastError)
	require.Equal(t, "unavailable", *stored.LastError)
}

func TestDLQRepositoryRoundTrip(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)
	eventID := uuid.New()

	missing, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.Nil(t, missing)

	long := strings.Repeat("x", maxErrorLen+50)
	require.NoError(t, dlq.InsertTx(conn, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventSalesOrderCreated,
		AggregateType: enums.AggregateSalesOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &long,
		FailedAt:      time.Now(),
	}))

	found, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Len(t, *found.ErrorMessage, maxErrorLen)
}
