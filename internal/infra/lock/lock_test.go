package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestMemoryLockSerializesSameKey(t *testing.T) {
	locker := NewMemory()
	var active, maxActive atomic.Int32
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			unlock, err := locker.Lock(context.Background(), "tree:a")
			if err != nil {
				return err
			}
			defer unlock()
			n := active.Add(1)
			for {
				cur := maxActive.Load()
				if n <= cur || maxActive.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if maxActive.Load() != 1 {
		t.Fatalf("expected exclusive access, saw %d concurrent holders", maxActive.Load())
	}
	if locker.Held() != 0 {
		t.Fatalf("expected entries released, got %d", locker.Held())
	}
}

func TestMemoryLockIndependentKeys(t *testing.T) {
	locker := NewMemory()
	unlockA, err := locker.Lock(context.Background(), "tree:a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locker.Lock(ctx, "tree:b")
	if err != nil {
		t.Fatalf("expected independent key to lock, got %v", err)
	}
	unlockB()
}

func TestMemoryLockHonoursContext(t *testing.T) {
	locker := NewMemory()
	unlock, err := locker.Lock(context.Background(), "tree:a")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "tree:a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	unlock()
	unlock()
	if locker.Held() != 0 {
		t.Fatalf("expected no tracked entries, got %d", locker.Held())
	}
}

func TestMemoryUnlockHandsOverToWaiter(t *testing.T) {
	locker := NewMemory()
	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	var wg sync.WaitGroup
	acquired := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		u, err := locker.Lock(context.Background(), "k")
		if err != nil {
			return
		}
		close(acquired)
		u()
	}()
	select {
	case <-acquired:
		t.Fatalf("waiter acquired while lock held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("waiter never acquired lock")
	}
	wg.Wait()
}

func waiting(m *Memory, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		return e.refs
	}
	return 0
}

func TestMemoryServesEveryQueuedWaiter(t *testing.T) {
	locker := NewMemory()
	unlock, err := locker.Lock(context.Background(), "tree:a")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	const waiters = 5
	served := make(chan int, waiters)
	var g errgroup.Group
	for i := 0; i < waiters; i++ {
		g.Go(func() error {
			u, err := locker.Lock(context.Background(), "tree:a")
			if err != nil {
				return err
			}
			served <- i
			u()
			return nil
		})
	}
	deadline := time.Now().Add(time.Second)
	for waiting(locker, "tree:a") != waiters+1 {
		if time.Now().After(deadline) {
			t.Fatalf("waiters never queued, refs=%d", waiting(locker, "tree:a"))
		}
		time.Sleep(time.Millisecond)
	}
	if len(served) != 0 {
		t.Fatalf("waiter served while lock held")
	}

	unlock()
	if err := g.Wait(); err != nil {
		t.Fatalf("waiter: %v", err)
	}
	close(served)
	seen := make(map[int]bool)
	for i := range served {
		seen[i] = true
	}
	if len(seen) != waiters {
		t.Fatalf("expected every waiter served once, got %v", seen)
	}
	if locker.Held() != 0 {
		t.Fatalf("expected entries released, got %d", locker.Held())
	}
}
