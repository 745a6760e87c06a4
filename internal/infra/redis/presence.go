package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"math-game-service/internal/domain"
)

// PresenceStore keeps per-player position markers (online / at room /
// in game) in Redis. Markers are advisory and expire on their own, so
// a crashed process never leaves a player stuck "in game".
type PresenceStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresenceStore(client *redis.Client, ttl time.Duration) *PresenceStore {
	return &PresenceStore{client: client, ttl: ttl}
}

func (s *PresenceStore) SetPosition(ctx context.Context, userID string, pos domain.Position) error {
	return s.client.Set(ctx, s.key(userID), string(pos), s.ttl).Err()
}

// Position returns the stored marker, defaulting to online when the
// marker expired or was never written.
func (s *PresenceStore) Position(ctx context.Context, userID string) (domain.Position, error) {
	val, err := s.client.Get(ctx, s.key(userID)).Result()
	if err == redis.Nil {
		return domain.PositionOnline, nil
	}
	if err != nil {
		return domain.PositionOnline, err
	}
	return domain.Position(val), nil
}

func (s *PresenceStore) key(userID string) string {
	return "game:presence:" + userID
}
