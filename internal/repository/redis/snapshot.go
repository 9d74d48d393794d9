package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marcus-menezes/starstore-backend/internal/domain"
	apperrors "github.com/marcus-menezes/starstore-backend/pkg/errors"
)

const keyPrefix = "cart:"

// SnapshotStore implements repository.SnapshotStore using Redis. Each
// snapshot is a single JSON array of cart items under one key, so a cart is
// always written and read as a whole.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotStore creates a Redis-backed snapshot store. Snapshots expire
// after ttl; a ttl of 0 keeps them forever.
func NewSnapshotStore(client *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves the snapshot stored under key.
func (s *SnapshotStore) Get(ctx context.Context, key string) ([]domain.CartItem, error) {
	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("cart snapshot", key)
		}
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}

	var items []domain.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return items, nil
}

// Save stores the snapshot under key with the configured TTL.
func (s *SnapshotStore) Save(ctx context.Context, key string, items []domain.CartItem) error {
	if items == nil {
		items = []domain.CartItem{}
	}

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := s.client.Set(ctx, keyPrefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}

	return nil
}

// Delete removes the snapshot under key.
func (s *SnapshotStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del snapshot: %w", err)
	}

	return nil
}
