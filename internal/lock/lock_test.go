package lock

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryTryLock(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()

	release, err := m.TryLock(ctx, "workflow:a")
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if _, err := m.TryLock(ctx, "workflow:a"); !errors.Is(err, ErrHeld) {
		t.Fatalf("second TryLock = %v, want ErrHeld", err)
	}
	if _, err := m.TryLock(ctx, "workflow:b"); err != nil {
		t.Fatalf("other key: %v", err)
	}
	release()
	release()
	if m.Held("workflow:a") {
		t.Fatal("lock still held after release")
	}
	if _, err := m.TryLock(ctx, "workflow:a"); err != nil {
		t.Fatalf("re-lock after release: %v", err)
	}
}

func TestMemoryOnlyOneWinner(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.TryLock(context.Background(), "k"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("winners = %d, want 1", wins.Load())
	}
}

func TestMemoryCanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMemory().TryLock(ctx, "k"); err == nil {
		t.Fatal("expected context error")
	}
}

// Set AUTOSCHED_TEST_REDIS=host:port to run against a real server.
func TestRedisTryLock(t *testing.T) {
	addr := os.Getenv("AUTOSCHED_TEST_REDIS")
	if addr == "" {
		t.Skip("AUTOSCHED_TEST_REDIS not set")
	}
	r := NewRedis(RedisConfig{Addr: addr, Prefix: "autosched:test:" + time.Now().Format("150405.000000"), TTL: 5 * time.Second})
	defer r.Close()
	ctx := context.Background()
	if err := r.Ping(ctx); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	release, err := r.TryLock(ctx, "workflow:a")
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if _, err := r.TryLock(ctx, "workflow:a"); !errors.Is(err, ErrHeld) {
		t.Fatalf("second TryLock = %v, want ErrHeld", err)
	}
	release()
	again, err := r.TryLock(ctx, "workflow:a")
	if err != nil {
		t.Fatalf("re-lock: %v", err)
	}
	again()
}
