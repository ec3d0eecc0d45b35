package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"engagement-engine/internal/config"
	"engagement-engine/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestNoopNeverHits(t *testing.T) {
	var c RankingCache = Noop{}
	ctx := context.Background()

	if err := c.Set(ctx, "k", []domain.RankingEntry{{UserID: "a"}}); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.Get(ctx, "k"); ok || err != nil {
		t.Errorf("Get() = %v, %v; want miss", ok, err)
	}
	if filled, err := c.Fill(ctx, "k", nil); filled || err != nil {
		t.Errorf("Fill() = %v, %v; want no write", filled, err)
	}
}

func TestNewRankingCacheWithoutRedis(t *testing.T) {
	c := NewRankingCache(nil, &config.Config{}, zerolog.Nop())
	if _, ok := c.(Noop); !ok {
		t.Errorf("NewRankingCache(nil) = %T, want Noop", c)
	}
}

func TestNewRedisClientUnconfigured(t *testing.T) {
	rdb, err := NewRedisClient(&config.Config{}, zerolog.Nop())
	if err != nil || rdb != nil {
		t.Errorf("NewRedisClient() = %v, %v; want nil, nil", rdb, err)
	}
}

func TestRedisRankingCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	c := NewRedisRankingCache(rdb, time.Minute, zerolog.Nop())
	key := "ranking:test:" + t.Name()
	defer c.Invalidate(ctx, key)

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	want := []domain.RankingEntry{{Type: domain.RankingDaily, PeriodStart: start, UserID: "a", Points: 10, Position: 1}}
	if err := c.Set(ctx, key, want); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if len(got) != 1 || got[0].UserID != "a" || !got[0].PeriodStart.Equal(start) {
		t.Errorf("Get() = %+v", got)
	}

	stale := []domain.RankingEntry{{Type: domain.RankingDaily, PeriodStart: start, UserID: "old", Points: 1, Position: 1}}
	if filled, err := c.Fill(ctx, key, stale); err != nil || filled {
		t.Errorf("Fill() over existing entry = %v, %v; want no write", filled, err)
	}
	if got, _, _ := c.Get(ctx, key); len(got) != 1 || got[0].UserID != "a" {
		t.Errorf("Get() after Fill = %+v, want the Set entry kept", got)
	}

	if err := c.Invalidate(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, key); ok {
		t.Error("Get() hit after Invalidate")
	}
	if filled, err := c.Fill(ctx, key, stale); err != nil || !filled {
		t.Errorf("Fill() on empty key = %v, %v; want written", filled, err)
	}
}
