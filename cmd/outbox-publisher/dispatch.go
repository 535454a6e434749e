package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/campusdigs/campusdigs-backend/pkg/db/models"
	"github.com/campusdigs/campusdigs-backend/pkg/enums"
	"github.com/campusdigs/campusdigs-backend/pkg/outbox/registry"
)

// verdict is what a single publish attempt decided for its row.
type verdict struct {
	topic  string
	err    error
	reason enums.OutboxDLQErrorReason
}

func (v verdict) published() bool { return v.err == nil }

func (v verdict) terminal() bool { return v.reason != "" }

// processBatch locks a page of pending rows and settles each one inside the
// same transaction. It reports whether any rows were claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		claimed = len(events) > 0

		for _, event := range events {
			if err := s.settle(ctx, tx, event, s.dispatch(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

// dispatch resolves and publishes one row without touching the database.
func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent) verdict {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return verdict{err: err, reason: enums.OutboxDLQReasonNonRetryable}
	}

	v := verdict{topic: resolved.Descriptor.Topic}
	v.err = s.publish(ctx, event, resolved)
	if v.err == nil {
		return v
	}

	var nonRetryable registry.NonRetryableError
	if errors.As(v.err, &nonRetryable) {
		v.reason = enums.OutboxDLQReasonNonRetryable
		return v
	}
	if event.AttemptCount+1 >= s.maxAttempts {
		v.err = fmt.Errorf("max publish attempts reached: %w", v.err)
		v.reason = enums.OutboxDLQReasonMaxAttempts
	}
	return v
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, v verdict) error {
	eventType := string(event.EventType)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     eventType,
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
		"topic":          v.topic,
	})

	switch {
	case v.published():
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(eventType)
		s.logg.Info(logCtx, "outbox event published")
		return nil

	case v.terminal():
		logCtx = s.logg.WithFields(logCtx, map[string]any{"error_reason": string(v.reason), "error": v.err.Error()})
		s.logg.Warn(logCtx, "outbox event moved to dlq")
		message := v.err.Error()
		entry := models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   v.reason,
			ErrorMessage:  &message,
			AttemptCount:  event.AttemptCount,
			FailedAt:      s.now().UTC(),
		}
		if err := s.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := s.repo.MarkTerminalTx(tx, event.ID, v.err, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		s.metrics.IncDeadLettered(eventType, string(v.reason))
		return nil

	default:
		s.logg.Warn(s.logg.WithField(logCtx, "error", v.err.Error()), "outbox publish failed, will retry")
		if err := s.repo.MarkFailedTx(tx, event.ID, v.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		s.metrics.IncRetried(eventType)
		return nil
	}
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publishers(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	result := pub.Publish(publishCtx, newMessage(event, resolved))
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func newMessageAttributes(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if event.AggregateType == enums.AggregateBooking {
		attrs["booking_id"] = event.AggregateID.String()
	}
	return attrs
}
