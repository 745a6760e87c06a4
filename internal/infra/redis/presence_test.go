package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"math-game-service/internal/domain"
)

func TestPresenceRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewPresenceStore(client, time.Minute)
	ctx := context.Background()

	if err := store.SetPosition(ctx, "u1", domain.PositionAtGame); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("game:presence:u1") {
		t.Fatalf("expected presence key to be set")
	}

	pos, err := store.Position(ctx, "u1")
	if err != nil || pos != domain.PositionAtGame {
		t.Fatalf("Position = (%s, %v), want atGame", pos, err)
	}
}

func TestPresenceDefaultsToOnline(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewPresenceStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	pos, err := store.Position(context.Background(), "ghost")
	if err != nil || pos != domain.PositionOnline {
		t.Fatalf("Position = (%s, %v), want online default", pos, err)
	}
}

func TestPresenceExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewPresenceStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Second)
	_ = store.SetPosition(context.Background(), "u1", domain.PositionAtRoom)

	mr.FastForward(2 * time.Second)

	pos, err := store.Position(context.Background(), "u1")
	if err != nil || pos != domain.PositionOnline {
		t.Fatalf("expected marker to expire to online, got (%s, %v)", pos, err)
	}
}
