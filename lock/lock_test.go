package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func lockers(t *testing.T) map[string]Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	rl := DialRedis(mr.Addr(), "", 0, WithRetryInterval(5*time.Millisecond))
	t.Cleanup(func() { _ = rl.Close() })

	return map[string]Locker{
		"memory": NewMemory(),
		"redis":  rl,
	}
}

func TestAcquireRelease(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			release, err := l.Acquire(ctx, "k", time.Second)
			if err != nil {
				t.Fatalf("Acquire failed: %v", err)
			}
			release()

			release2, err := l.Acquire(ctx, "k", time.Second)
			if err != nil {
				t.Fatalf("second Acquire failed: %v", err)
			}
			release2()
		})
	}
}

func TestTryAcquireHeld(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			release, ok, err := l.TryAcquire(ctx, "held", time.Second)
			if err != nil || !ok {
				t.Fatalf("first TryAcquire: ok=%v err=%v", ok, err)
			}
			defer release()

			_, ok, err = l.TryAcquire(ctx, "held", time.Second)
			if err != nil {
				t.Fatal(err)
			}
			if ok {
				t.Error("expected TryAcquire to fail while held")
			}

			_, ok, err = l.TryAcquire(ctx, "other", time.Second)
			if err != nil || !ok {
				t.Errorf("different key should be free: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestAcquireContextCancel(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			release, err := l.Acquire(context.Background(), "busy", time.Minute)
			if err != nil {
				t.Fatal(err)
			}
			defer release()

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			if _, err := l.Acquire(ctx, "busy", time.Minute); err == nil {
				t.Fatal("expected error when context expires")
			}
		})
	}
}

func TestReleaseIdempotent(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			release, err := l.Acquire(context.Background(), "twice", time.Second)
			if err != nil {
				t.Fatal(err)
			}
			release()
			release()

			_, ok, _ := l.TryAcquire(context.Background(), "twice", time.Second)
			if !ok {
				t.Error("lock should be free after release")
			}
		})
	}
}

func TestMemoryMutualExclusion(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	var (
		inside  atomic.Int64
		maxSeen atomic.Int64
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				release, err := l.Acquire(ctx, "shared", 0)
				if err != nil {
					t.Errorf("Acquire failed: %v", err)
					return
				}
				n := inside.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				inside.Add(-1)
				release()
			}
		}()
	}
	wg.Wait()

	if maxSeen.Load() != 1 {
		t.Errorf("critical section overlapped: max %d holders", maxSeen.Load())
	}
}

func TestMemoryHeldPastTTL(t *testing.T) {
	l := NewMemory()
	release, err := l.Acquire(context.Background(), "ttl", 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	if _, ok, _ := l.TryAcquire(context.Background(), "ttl", 0); ok {
		t.Fatal("lock released by ttl while the holder is still running")
	}

	release()
	again, ok, err := l.TryAcquire(context.Background(), "ttl", 0)
	if err != nil || !ok {
		t.Fatalf("expected lock free after release: ok=%v err=%v", ok, err)
	}
	again()
}

func TestRedisTTLExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	l := DialRedis(mr.Addr(), "", 0)
	defer l.Close() //nolint:errcheck

	ctx := context.Background()
	if _, err := l.Acquire(ctx, "ttl", 500*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(time.Second)

	release, ok, err := l.TryAcquire(ctx, "ttl", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected lock free after expiry: ok=%v err=%v", ok, err)
	}
	release()
}

func TestRedisForeignTokenCannotRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	a := DialRedis(mr.Addr(), "", 0, WithKeyPrefix("subvault:"))
	b := DialRedis(mr.Addr(), "", 0, WithKeyPrefix("subvault:"))
	defer a.Close() //nolint:errcheck
	defer b.Close() //nolint:errcheck

	ctx := context.Background()
	release, err := a.Acquire(ctx, "sub:1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	if !mr.Exists("subvault:sub:1") {
		t.Fatal("expected prefixed key in redis")
	}

	b.buildRelease("subvault:sub:1", "wrong-token")()

	_, ok, err := b.TryAcquire(ctx, "sub:1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("foreign release must not free the lock")
	}
}

func TestInterface(t *testing.T) {
	var _ Locker = (*Memory)(nil)
	var _ Locker = (*RedisLocker)(nil)
}
