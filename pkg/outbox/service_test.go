package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusdigs/campusdigs-backend/pkg/db/dbtest"
	"github.com/campusdigs/campusdigs-backend/pkg/db/models"
	"github.com/campusdigs/campusdigs-backend/pkg/enums"
	"github.com/campusdigs/campusdigs-backend/pkg/outbox"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	svc := outbox.NewService(outbox.NewRepository(conn), nil)

	bookingID := uuid.New()
	tx := conn.Begin()
	require.NoError(t, svc.Emit(context.Background(), tx, outbox.DomainEvent{
		EventType:     enums.EventBookingApproved,
		AggregateType: enums.AggregateBooking,
		AggregateID:   bookingID,
		Actor:         &outbox.ActorRef{UserID: uuid.New(), Role: "landlord"},
		Data:          map[string]string{"to_status": "approved"},
	}))
	require.NoError(t, tx.Commit().Error)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, bookingID, rows[0].AggregateID)
	assert.Nil(t, rows[0].PublishedAt)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.Equal(t, rows[0].ID.String(), envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, "landlord", envelope.Actor.Role)
	assert.JSONEq(t, `{"to_status":"approved"}`, string(envelope.Data))

	opened, err := outbox.OpenEnvelope(rows[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, envelope.EventID, opened.EventID)
}

func TestOpenEnvelopeRejectsMissingData(t *testing.T) {
	for _, raw := range []string{`{"version":1}`, `{"version":1,"data":null}`, `not json`} {
		_, err := outbox.OpenEnvelope([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := outbox.NewService(outbox.NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, outbox.DomainEvent{})
	require.Error(t, err)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewRepository(conn)

	first := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventBookingCreated, AggregateType: enums.AggregateBooking, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	second := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventBookingPaid, AggregateType: enums.AggregateBooking, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Insert(conn, first))
	require.NoError(t, repo.Insert(conn, second))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, repo.MarkPublishedTx(conn, first.ID))
	require.NoError(t, repo.MarkFailedTx(conn, second.ID, errors.New("topic unavailable")))

	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, second.ID, rows[0].ID)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)

	require.NoError(t, repo.MarkTerminalTx(conn, second.ID, errors.New("gave up"), 3))
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDeletePublishedBefore(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewRepository(conn)
	cutoff := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-48 * time.Hour)
	recent := cutoff.Add(48 * time.Hour)

	rows := []models.OutboxEvent{
		{ID: uuid.New(), CreatedAt: old, PublishedAt: &old},
		{ID: uuid.New(), CreatedAt: recent, PublishedAt: &recent},
		{ID: uuid.New(), CreatedAt: old, AttemptCount: 10},
		{ID: uuid.New(), CreatedAt: old, AttemptCount: 2},
	}
	for i := range rows {
		rows[i].EventType = enums.EventBookingCreated
		rows[i].AggregateType = enums.AggregateBooking
		rows[i].AggregateID = uuid.New()
		rows[i].Payload = []byte(`{}`)
		require.NoError(t, conn.Create(&rows[i]).Error)
	}

	deleted, err := repo.DeletePublishedBefore(context.Background(), conn, cutoff, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Order("attempt_count ASC").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	assert.Equal(t, rows[1].ID, remaining[0].ID)
	assert.Equal(t, rows[3].ID, remaining[1].ID)
}

func TestDLQRepositoryRoundTrip(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewDLQRepository(conn)
	ctx := context.Background()

	eventID := uuid.New()
	missing, err := repo.FindByEventID(ctx, eventID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	long := strings.Repeat("é", 600)
	require.NoError(t, repo.InsertTx(conn, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventBookingPaid,
		AggregateType: enums.AggregateBooking,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &long,
		AttemptCount:  10,
		FailedAt:      time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.Error(t, repo.InsertTx(nil, models.OutboxDLQ{}))

	entry, err := repo.FindByEventID(ctx, eventID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, entry.ErrorReason)
	require.NotNil(t, entry.ErrorMessage)
	assert.Len(t, *entry.ErrorMessage, 1024)
	assert.True(t, utf8.ValidString(*entry.ErrorMessage))
}
