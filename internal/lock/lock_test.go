package lock

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("u1")
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if km.Len() != 0 {
		t.Errorf("Len() = %d after all released, want 0", km.Len())
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestKeyedMutexUnlockIsIdempotent(t *testing.T) {
	km := NewKeyedMutex()
	unlock := km.Lock("a")
	unlock()
	unlock()

	again := km.Lock("a")
	again()
	if km.Len() != 0 {
		t.Errorf("Len() = %d, want 0", km.Len())
	}
}

func TestLocalLockerTryLock(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlock, ok, err := l.TryLock(ctx, "bucket")
	if err != nil || !ok {
		t.Fatalf("first TryLock() = %v, %v", ok, err)
	}

	if _, ok, _ := l.TryLock(ctx, "bucket"); ok {
		t.Error("second TryLock() acquired a held bucket")
	}
	if _, ok, _ := l.TryLock(ctx, "other"); !ok {
		t.Error("TryLock() on a different bucket failed")
	}

	unlock()
	if _, ok, _ := l.TryLock(ctx, "bucket"); !ok {
		t.Error("TryLock() after release failed")
	}
}

func TestRedisLockerTryLock(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	key := "lock:test:" + t.Name()
	rdb.Del(ctx, key)

	l := NewRedisLocker(rdb, time.Minute, zerolog.Nop())
	unlock, ok, err := l.TryLock(ctx, key)
	if err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}
	if _, ok, err := l.TryLock(ctx, key); err != nil || ok {
		t.Errorf("second TryLock() = %v, %v", ok, err)
	}
	unlock()
	if n, _ := rdb.Exists(ctx, key).Result(); n != 0 {
		t.Error("lock key survived unlock")
	}
}
