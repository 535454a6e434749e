package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusdigs/campusdigs-backend/pkg/enums"
	"github.com/campusdigs/campusdigs-backend/pkg/redis"
)

// Intent is the server-side record of an initialized checkout awaiting verification.
type Intent struct {
	Reference   string            `json:"reference"`
	BookingID   *uuid.UUID        `json:"booking_id,omitempty"`
	PropertyID  uuid.UUID         `json:"property_id"`
	StudentID   uuid.UUID         `json:"student_id"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    enums.Currency    `json:"currency"`
	PaymentType enums.PaymentType `json:"payment_type"`
	Email       string            `json:"email"`
	CreatedAt   time.Time         `json:"created_at"`
}

// IntentStore keeps pending intents keyed by reference.
type IntentStore interface {
	Save(ctx context.Context, intent Intent) error
	Get(ctx context.Context, reference string) (*Intent, error)
	Delete(ctx context.Context, reference string) error
	ListCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	Forget(ctx context.Context, references ...string) error
}

// RedisIntentStore stores intents as JSON with a TTL and indexes them by creation time.
type RedisIntentStore struct {
	store redis.IntentStore
	ttl   time.Duration
}

func NewRedisIntentStore(store redis.IntentStore, ttl time.Duration) (*RedisIntentStore, error) {
	if store == nil {
		return nil, errors.New("intent store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("intent ttl must be positive")
	}
	return &RedisIntentStore{store: store, ttl: ttl}, nil
}

func (s *RedisIntentStore) Save(ctx context.Context, intent Intent) error {
	if intent.Reference == "" {
		return errors.New("intent reference is required")
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}
	if err := s.store.Set(ctx, s.store.IntentKey(intent.Reference), string(raw), s.ttl); err != nil {
		return fmt.Errorf("store intent: %w", err)
	}
	score := float64(intent.CreatedAt.UnixMilli())
	if err := s.store.ZAdd(ctx, s.store.IntentIndexKey(), score, intent.Reference); err != nil {
		return fmt.Errorf("index intent: %w", err)
	}
	return nil
}

// Get returns nil without error when the intent is missing or expired.
func (s *RedisIntentStore) Get(ctx context.Context, reference string) (*Intent, error) {
	raw, err := s.store.Get(ctx, s.store.IntentKey(reference))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load intent: %w", err)
	}
	var intent Intent
	if err := json.Unmarshal([]byte(raw), &intent); err != nil {
		return nil, fmt.Errorf("decode intent: %w", err)
	}
	return &intent, nil
}

func (s *RedisIntentStore) Delete(ctx context.Context, reference string) error {
	if err := s.store.Del(ctx, s.store.IntentKey(reference)); err != nil {
		return fmt.Errorf("delete intent: %w", err)
	}
	return s.Forget(ctx, reference)
}

// ListCreatedBefore returns up to limit indexed references created before cutoff, oldest first.
func (s *RedisIntentStore) ListCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	refs, err := s.store.ZRangeByScore(ctx, s.store.IntentIndexKey(), math.Inf(-1), float64(cutoff.UnixMilli()), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("scan intent index: %w", err)
	}
	return refs, nil
}

// Forget drops references from the index only.
func (s *RedisIntentStore) Forget(ctx context.Context, references ...string) error {
	if len(references) == 0 {
		return nil
	}
	if err := s.store.ZRem(ctx, s.store.IntentIndexKey(), references...); err != nil {
		return fmt.Errorf("prune intent index: %w", err)
	}
	return nil
}
